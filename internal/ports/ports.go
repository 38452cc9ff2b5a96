// Package ports allocates the local port the tunnel subprocess binds.
//
// Allocation is probe-based: a port counts as free when a throwaway listener
// can bind it on all interfaces. The allocator never falls back to an occupied
// preferred port. The port it returns is authoritative for the SQL gateway,
// so handing out a port the tunnel cannot bind would break that contract.
package ports

import (
	"errors"
	"fmt"
	"net"
)

// ErrNoPortAvailable is returned when every port in the scan range is in use.
var ErrNoPortAvailable = errors.New("no free port available in scan range")

// IsFree reports whether a throwaway listener can bind 0.0.0.0:port.
// The listener is always closed before returning.
func IsFree(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return false
	}
	l.Close()
	return true
}

// Allocate returns the first free port in [preferred, preferred+scanCount].
func Allocate(preferred, scanCount int) (int, error) {
	for port := preferred; port <= preferred+scanCount; port++ {
		if IsFree(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("%w (scanned %d-%d)", ErrNoPortAvailable, preferred, preferred+scanCount)
}
