// Package netprobe distinguishes "tunnel down" from "query failed".
//
// A probe is a short TCP connect-and-close against the tunnel's local
// endpoint; no data is transferred.
package netprobe

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Probe attempts a TCP connect to host:port within timeout. It returns nil
// when something is listening, otherwise the underlying dial error.
func Probe(host string, port int, timeout time.Duration) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("probe %s: %w", addr, err)
	}
	conn.Close()
	return nil
}
