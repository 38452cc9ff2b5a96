package gateway

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func failureCode(t *testing.T, err error) Code {
	t.Helper()
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("error %v is not a *Failure", err)
	}
	return f.Code
}

func TestExecute_BadRequest(t *testing.T) {
	g := New(200 * time.Millisecond)
	ctx := context.Background()

	cases := []struct {
		name  string
		query string
		db    *DBConfig
	}{
		{"missing query", "", &DBConfig{Host: "localhost", Port: 3306, User: "ro"}},
		{"missing dbConfig", "SELECT * FROM t", nil},
		{"missing port", "SELECT * FROM t", &DBConfig{Host: "localhost", User: "ro"}},
		{"missing user", "SELECT * FROM t", &DBConfig{Host: "localhost", Port: 3306}},
	}
	for _, tc := range cases {
		_, err := g.Execute(ctx, tc.query, tc.db)
		if got := failureCode(t, err); got != CodeBadRequest {
			t.Errorf("%s: code = %s, want BadRequest", tc.name, got)
		}
	}
}

func TestExecute_QueryRejected(t *testing.T) {
	g := New(200 * time.Millisecond)
	_, err := g.Execute(context.Background(), "DROP TABLE users",
		&DBConfig{Host: "localhost", Port: 3306, User: "ro"})
	if got := failureCode(t, err); got != CodeQueryRejected {
		t.Errorf("code = %s, want QueryRejected", got)
	}
}

func TestExecute_TunnelUnreachableBeforeHandshake(t *testing.T) {
	// Find a port with nothing listening.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	g := New(200 * time.Millisecond)
	_, err = g.Execute(context.Background(), "SELECT * FROM t",
		&DBConfig{Host: "localhost", Port: port, User: "ro"})
	if got := failureCode(t, err); got != CodeTunnelUnreachable {
		t.Errorf("code = %s, want TunnelUnreachable (probe must run before any database handshake)", got)
	}
}

func TestExecute_QueryExecutionFailed(t *testing.T) {
	// A listener that accepts then hangs up: passes the reachability probe
	// but fails the database handshake.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	port := l.Addr().(*net.TCPAddr).Port
	g := New(200 * time.Millisecond)
	g.DialTimeout = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = g.Execute(ctx, "SELECT * FROM t",
		&DBConfig{Host: "127.0.0.1", Port: port, User: "ro"})
	if got := failureCode(t, err); got != CodeQueryExecutionFailed {
		t.Errorf("code = %s, want QueryExecutionFailed", got)
	}
}

func TestNormalizeHost(t *testing.T) {
	cases := map[string]string{
		"":            "127.0.0.1",
		"localhost":   "127.0.0.1",
		"::1":         "127.0.0.1",
		"127.0.0.1":   "127.0.0.1",
		"db.internal": "db.internal",
	}
	for in, want := range cases {
		if got := normalizeHost(in); got != want {
			t.Errorf("normalizeHost(%q) = %q, want %q", in, got, want)
		}
	}
}
