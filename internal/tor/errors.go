package tor

import "errors"

// Proxy errors returned by NewProxy and Proxy.Probe.
var (
	// ErrInvalidProxyAddress is returned when the proxy address is not
	// "host:port" with a port in 1..65535.
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrProxyCannotConnect is returned when no TCP connection to the proxy
	// could be made. Tor is most likely not running.
	ErrProxyCannotConnect = errors.New("cannot connect to Tor proxy")

	// ErrProxyNotSOCKS5 is returned when the proxy answers but does not
	// speak unauthenticated SOCKS5.
	ErrProxyNotSOCKS5 = errors.New("proxy is not a SOCKS5 proxy")

	// ErrProxyTimeout is returned when the proxy did not answer in time.
	ErrProxyTimeout = errors.New("timeout connecting to Tor proxy")

	// ErrDaemonNotRunning is returned when a client is requested from a
	// Daemon that was not started.
	ErrDaemonNotRunning = errors.New("embedded Tor daemon is not running")
)
