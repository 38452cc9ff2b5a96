package ports

import (
	"errors"
	"fmt"
	"net"
	"testing"
)

// reserveRange binds listeners on [base, base+n) and returns a release func.
// It retries with a different base if any port in the range is taken.
func reserveRange(t *testing.T, n int) (int, func()) {
	t.Helper()

	for base := 42000; base < 60000; base += 100 {
		var listeners []net.Listener
		ok := true
		for port := base; port < base+n; port++ {
			l, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
			if err != nil {
				ok = false
				break
			}
			listeners = append(listeners, l)
		}
		if ok {
			return base, func() {
				for _, l := range listeners {
					l.Close()
				}
			}
		}
		for _, l := range listeners {
			l.Close()
		}
	}
	t.Fatal("could not reserve a contiguous port range for the test")
	return 0, nil
}

func TestIsFree(t *testing.T) {
	base, release := reserveRange(t, 1)
	defer release()

	if IsFree(base) {
		t.Errorf("IsFree(%d) = true for an occupied port", base)
	}

	release()
	if !IsFree(base) {
		t.Errorf("IsFree(%d) = false after the listener was closed", base)
	}
}

func TestAllocate_SkipsOccupiedPorts(t *testing.T) {
	// Occupy preferred..preferred+2; preferred+3 stays free.
	base, release := reserveRange(t, 3)
	defer release()

	got, err := Allocate(base, 50)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got != base+3 {
		t.Errorf("Allocate(%d, 50) = %d, want %d", base, got, base+3)
	}

	// The skipped ports are untouched: still held by our listeners.
	for port := base; port < base+3; port++ {
		if IsFree(port) {
			t.Errorf("port %d was released as a side effect of allocation", port)
		}
	}
}

func TestAllocate_PrefersFirstFree(t *testing.T) {
	base, release := reserveRange(t, 1)
	release()

	got, err := Allocate(base, 50)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got != base {
		t.Errorf("Allocate(%d, 50) = %d, want the preferred port when free", base, got)
	}
}

func TestAllocate_Exhausted(t *testing.T) {
	base, release := reserveRange(t, 4)
	defer release()

	_, err := Allocate(base, 3)
	if !errors.Is(err, ErrNoPortAvailable) {
		t.Errorf("Allocate on a fully occupied range: err = %v, want ErrNoPortAvailable", err)
	}
}
