package tor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nao1215/tornago"
)

// DefaultStartupTimeout is how long Start waits for Tor to bootstrap.
const DefaultStartupTimeout = 3 * time.Minute

// Daemon is a Tor process owned by the crawler, launched with tornago.
//
// Bootstrapping takes one to three minutes: Tor fetches directory
// information and builds its first circuits before the SOCKS port answers.
type Daemon struct {
	startupTimeout time.Duration

	mu        sync.Mutex
	process   *tornago.TorProcess
	socksAddr string
}

// DaemonOption configures a Daemon.
type DaemonOption func(*Daemon)

// WithStartupTimeout sets the maximum time to wait for Tor to bootstrap.
func WithStartupTimeout(timeout time.Duration) DaemonOption {
	return func(d *Daemon) {
		if timeout > 0 {
			d.startupTimeout = timeout
		}
	}
}

// NewDaemon creates a Daemon. Nothing is started until Start.
func NewDaemon(opts ...DaemonOption) *Daemon {
	d := &Daemon{startupTimeout: DefaultStartupTimeout}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches Tor on OS-assigned ports and blocks until it has
// bootstrapped. If ctx ends during startup the process is stopped again.
func (d *Daemon) Start(ctx context.Context) error {
	cfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(d.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	process, err := tornago.StartTorDaemon(cfg)
	if err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}

	if err := ctx.Err(); err != nil {
		_ = process.Stop() //nolint:errcheck // best effort
		return err
	}

	d.mu.Lock()
	d.process = process
	d.socksAddr = process.SocksAddr()
	d.mu.Unlock()
	return nil
}

// Stop shuts the daemon down. Calling it on a stopped Daemon is a no-op.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	process := d.process
	d.process = nil
	d.socksAddr = ""
	d.mu.Unlock()

	if process == nil {
		return nil
	}
	return process.Stop()
}

// SocksAddr returns the SOCKS5 address of the running daemon, or "".
func (d *Daemon) SocksAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.socksAddr
}

// IsRunning reports whether Start succeeded and Stop has not been called.
func (d *Daemon) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.process != nil
}

// Proxy returns a Proxy for the daemon's SOCKS port.
func (d *Daemon) Proxy() (*Proxy, error) {
	addr := d.SocksAddr()
	if addr == "" {
		return nil, ErrDaemonNotRunning
	}
	return NewProxy(addr)
}
