package tor

import (
	"errors"
	"testing"
	"time"
)

func TestNewDaemon(t *testing.T) {
	t.Parallel()

	t.Run("default timeout", func(t *testing.T) {
		t.Parallel()

		d := NewDaemon()
		if d.startupTimeout != DefaultStartupTimeout {
			t.Errorf("startupTimeout = %v, want %v", d.startupTimeout, DefaultStartupTimeout)
		}
	})

	t.Run("WithStartupTimeout", func(t *testing.T) {
		t.Parallel()

		d := NewDaemon(WithStartupTimeout(5 * time.Minute))
		if d.startupTimeout != 5*time.Minute {
			t.Errorf("startupTimeout = %v, want 5m", d.startupTimeout)
		}
	})

	t.Run("non-positive timeout is ignored", func(t *testing.T) {
		t.Parallel()

		d := NewDaemon(WithStartupTimeout(0))
		if d.startupTimeout != DefaultStartupTimeout {
			t.Errorf("startupTimeout = %v, want %v", d.startupTimeout, DefaultStartupTimeout)
		}
	})
}

func TestDaemonNotStarted(t *testing.T) {
	t.Parallel()

	d := NewDaemon()
	if d.IsRunning() {
		t.Error("IsRunning() = true before Start")
	}
	if d.SocksAddr() != "" {
		t.Errorf("SocksAddr() = %q before Start", d.SocksAddr())
	}
	if _, err := d.Proxy(); !errors.Is(err, ErrDaemonNotRunning) {
		t.Errorf("Proxy() error = %v, want ErrDaemonNotRunning", err)
	}
	if err := d.Stop(); err != nil {
		t.Errorf("Stop() on unstarted daemon = %v", err)
	}
}
