package tor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"
)

func TestNewProxy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{name: "ipv4", address: "127.0.0.1:9050"},
		{name: "hostname", address: "localhost:9150"},
		{name: "ipv6", address: "[::1]:9050"},
		{name: "missing port", address: "127.0.0.1", wantErr: true},
		{name: "empty host", address: ":9050", wantErr: true},
		{name: "port zero", address: "127.0.0.1:0", wantErr: true},
		{name: "port too large", address: "127.0.0.1:70000", wantErr: true},
		{name: "non-numeric port", address: "127.0.0.1:tor", wantErr: true},
		{name: "empty", address: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := NewProxy(tt.address)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidProxyAddress) {
					t.Errorf("NewProxy(%q) error = %v, want ErrInvalidProxyAddress", tt.address, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProxy(%q) error = %v", tt.address, err)
			}
			if p.Address() != tt.address {
				t.Errorf("Address() = %q, want %q", p.Address(), tt.address)
			}
		})
	}
}

func TestProxyHTTPClient(t *testing.T) {
	t.Parallel()

	p, err := NewProxy("127.0.0.1:9050")
	if err != nil {
		t.Fatal(err)
	}

	client := p.HTTPClient(WithTimeout(5*time.Second), WithMaxRedirects(3))
	if client.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", client.Timeout)
	}
	if client.Jar == nil {
		t.Error("expected a cookie jar")
	}

	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Transport is %T, want *http.Transport", client.Transport)
	}
	if !transport.DisableCompression {
		t.Error("expected compression to be disabled")
	}
	if transport.TLSClientConfig == nil || !transport.TLSClientConfig.InsecureSkipVerify {
		t.Error("expected TLS verification to be disabled")
	}

	via := make([]*http.Request, 3)
	if err := client.CheckRedirect(nil, via); !errors.Is(err, http.ErrUseLastResponse) {
		t.Errorf("CheckRedirect after 3 hops = %v, want ErrUseLastResponse", err)
	}
	if err := client.CheckRedirect(nil, via[:2]); err != nil {
		t.Errorf("CheckRedirect after 2 hops = %v, want nil", err)
	}
}

// serveOnce accepts one connection on a fresh listener and hands it to fn.
func serveOnce(t *testing.T, fn func(net.Conn)) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
	if err != nil {
		t.Fatalf("failed to start mock server: %v", err)
	}
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fn(conn)
	}()

	return listener.Addr().String()
}

func TestProxyProbe(t *testing.T) {
	t.Parallel()

	t.Run("nothing listening", func(t *testing.T) {
		t.Parallel()

		listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
		if err != nil {
			t.Fatal(err)
		}
		addr := listener.Addr().String()
		_ = listener.Close()

		p, err := NewProxy(addr)
		if err != nil {
			t.Fatal(err)
		}
		if err := p.Probe(context.Background()); !errors.Is(err, ErrProxyCannotConnect) {
			t.Errorf("Probe() = %v, want ErrProxyCannotConnect", err)
		}
	})

	t.Run("not a SOCKS5 server", func(t *testing.T) {
		t.Parallel()

		addr := serveOnce(t, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\n\r\n"))
		})

		p, err := NewProxy(addr)
		if err != nil {
			t.Fatal(err)
		}
		if err := p.Probe(context.Background()); !errors.Is(err, ErrProxyNotSOCKS5) {
			t.Errorf("Probe() = %v, want ErrProxyNotSOCKS5", err)
		}
	})

	t.Run("SOCKS5 requiring auth", func(t *testing.T) {
		t.Parallel()

		addr := serveOnce(t, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte{0x05, 0xFF})
		})

		p, err := NewProxy(addr)
		if err != nil {
			t.Fatal(err)
		}
		if err := p.Probe(context.Background()); !errors.Is(err, ErrProxyNotSOCKS5) {
			t.Errorf("Probe() = %v, want ErrProxyNotSOCKS5", err)
		}
	})

	t.Run("silent server times out", func(t *testing.T) {
		t.Parallel()

		hold := make(chan struct{})
		t.Cleanup(func() { close(hold) })
		addr := serveOnce(t, func(net.Conn) {
			<-hold
		})

		p, err := NewProxy(addr)
		if err != nil {
			t.Fatal(err)
		}
		if err := p.Probe(context.Background()); !errors.Is(err, ErrProxyTimeout) {
			t.Errorf("Probe() = %v, want ErrProxyTimeout", err)
		}
	})

	t.Run("working SOCKS5 proxy", func(t *testing.T) {
		t.Parallel()

		addr := serveOnce(t, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte{0x05, 0x00})

			req := make([]byte, 256)
			_, _ = conn.Read(req)
			// Host unreachable still proves the proxy handled the request.
			_, _ = conn.Write([]byte{0x05, 0x04, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
		})

		p, err := NewProxy(addr)
		if err != nil {
			t.Fatal(err)
		}
		if err := p.Probe(context.Background()); err != nil {
			t.Errorf("Probe() = %v, want nil", err)
		}
	})
}

func TestContextDialer(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	d := contextDialer{Dialer: blockingDialer(block)}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := d.DialContext(ctx, "tcp", "example.onion:80"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("DialContext() = %v, want DeadlineExceeded", err)
	}
}

type blockingDialer chan struct{}

func (b blockingDialer) Dial(string, string) (net.Conn, error) {
	<-b
	return nil, errors.New("unblocked")
}
