package tor

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// probeTimeout bounds the SOCKS5 handshake done by Probe.
const probeTimeout = 2 * time.Second

// DefaultMaxRedirects is the redirect limit of clients built by a Proxy.
const DefaultMaxRedirects = 10

// SOCKS5 protocol bytes used by Probe.
const (
	socks5Version      = 0x05
	socks5AuthNone     = 0x00
	socks5CmdConnect   = 0x01
	socks5AddrTypeFQDN = 0x03

	// probeHost is a syntactically valid but nonexistent onion host. Probe
	// only needs the proxy to answer the CONNECT, not to reach it.
	probeHost = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.onion"
)

// Proxy is a SOCKS5 proxy that crawler connections are routed through.
type Proxy struct {
	address string
	dialer  proxy.ContextDialer
}

// NewProxy validates address and prepares a SOCKS5 dialer for it. It does not
// contact the proxy; call Probe for that.
func NewProxy(address string) (*Proxy, error) {
	if !isValidProxyAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, address)
	}

	d, err := proxy.SOCKS5("tcp", address, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		cd = contextDialer{d}
	}
	return &Proxy{address: address, dialer: cd}, nil
}

// isValidProxyAddress reports whether address is host:port with a usable port.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// Address returns the proxy address.
func (p *Proxy) Address() string {
	return p.address
}

// DialContext opens a connection to address through the proxy.
func (p *Proxy) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return p.dialer.DialContext(ctx, network, address)
}

// Probe checks that a SOCKS5 proxy without authentication is listening.
// It completes the greeting and sends one CONNECT request; any SOCKS5 reply
// to the CONNECT, including a failure code, counts as success.
func (p *Proxy) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.address)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrProxyTimeout
		}
		return fmt.Errorf("%w: %v", ErrProxyCannotConnect, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("%w: %v", ErrProxyCannotConnect, err)
		}
	}

	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return fmt.Errorf("%w: %v", ErrProxyCannotConnect, err)
	}

	greeting := make([]byte, 2)
	if _, err := io.ReadFull(conn, greeting); err != nil {
		return readError(err)
	}
	if greeting[0] != socks5Version || greeting[1] != socks5AuthNone {
		return ErrProxyNotSOCKS5
	}

	req := []byte{socks5Version, socks5CmdConnect, 0x00, socks5AddrTypeFQDN, byte(len(probeHost))}
	req = append(req, probeHost...)
	req = append(req, 0x00, 80)
	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("%w: %v", ErrProxyCannotConnect, err)
	}

	reply := make([]byte, 4)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return readError(err)
	}
	if reply[0] != socks5Version {
		return ErrProxyNotSOCKS5
	}
	return nil
}

// readError maps a failed handshake read to a proxy error.
func readError(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrProxyTimeout
	}
	return ErrProxyNotSOCKS5
}

// ClientOption configures an HTTP client built by a Proxy.
type ClientOption func(*clientConfig)

type clientConfig struct {
	timeout      time.Duration
	maxRedirects int
}

// WithTimeout sets the per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithMaxRedirects sets how many redirects a request follows.
func WithMaxRedirects(n int) ClientOption {
	return func(c *clientConfig) {
		c.maxRedirects = n
	}
}

// HTTPClient returns a client whose connections all go through the proxy.
//
// TLS verification is disabled because onion services commonly present
// self-signed certificates; the onion address authenticates the service.
// Responses are not transparently decompressed; the fetcher decodes
// Content-Encoding itself.
func (p *Proxy) HTTPClient(opts ...ClientOption) *http.Client {
	cfg := clientConfig{maxRedirects: DefaultMaxRedirects}
	for _, opt := range opts {
		opt(&cfg)
	}

	transport := &http.Transport{
		DialContext: p.dialer.DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // Required for .onion services
		},
		// Every connection holds a Tor circuit.
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
		DisableCompression:  true,
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	return &http.Client{
		Transport:     transport,
		Timeout:       cfg.timeout,
		Jar:           jar,
		CheckRedirect: redirectLimit(cfg.maxRedirects),
	}
}

// redirectLimit stops following redirects after n hops and returns the last
// response as is.
func redirectLimit(n int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) >= n {
			return http.ErrUseLastResponse
		}
		return nil
	}
}

// contextDialer adapts a proxy.Dialer without context support. The dial
// keeps running in the background when ctx ends first.
type contextDialer struct {
	proxy.Dialer
}

func (d contextDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := d.Dial(network, address)
		ch <- result{conn, err}
	}()

	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}
