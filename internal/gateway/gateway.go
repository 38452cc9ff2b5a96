// Package gateway executes one read-only statement through the tunnel's
// local endpoint.
//
// Order matters: the query text is validated first, then the endpoint is
// probed, and only then is a database connection opened. The probe runs
// before the handshake so a closed tunnel is reported as TunnelUnreachable
// instead of a misleading driver error.
package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/perimetra/tunnelgate/internal/netprobe"
	"github.com/perimetra/tunnelgate/internal/sqlcheck"
)

// Code classifies a gateway failure for the API surface.
type Code string

const (
	CodeBadRequest           Code = "BadRequest"
	CodeQueryRejected        Code = "QueryRejected"
	CodeTunnelUnreachable    Code = "TunnelUnreachable"
	CodeQueryExecutionFailed Code = "QueryExecutionFailed"
)

// Failure is a classified gateway error with a human-readable diagnostic.
type Failure struct {
	Code   Code
	Detail string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Detail)
}

// DBConfig carries the connection parameters supplied by the caller. Host
// normally points at the tunnel's local endpoint.
type DBConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password,omitempty"`
	Database string `json:"database,omitempty"`
}

// Gateway validates, probes, and executes single read-only statements.
type Gateway struct {
	// ProbeTimeout bounds the reachability check against the tunnel endpoint.
	ProbeTimeout time.Duration
	// DialTimeout bounds the database connection attempt.
	DialTimeout time.Duration
}

// New returns a Gateway with the given probe timeout and a 5s dial timeout.
func New(probeTimeout time.Duration) *Gateway {
	return &Gateway{ProbeTimeout: probeTimeout, DialTimeout: 5 * time.Second}
}

// Execute runs exactly one statement and returns its rows. All failures are
// returned as *Failure with a stable code.
func (g *Gateway) Execute(ctx context.Context, query string, db *DBConfig) ([]map[string]any, error) {
	if query == "" || db == nil {
		return nil, &Failure{CodeBadRequest, "query and dbConfig are required"}
	}
	if err := sqlcheck.Validate(query); err != nil {
		return nil, &Failure{CodeQueryRejected, err.Error()}
	}

	host := normalizeHost(db.Host)
	if db.Port <= 0 {
		return nil, &Failure{CodeBadRequest, "dbConfig.port is required"}
	}
	if db.User == "" {
		return nil, &Failure{CodeBadRequest, "dbConfig.user is required"}
	}

	if err := netprobe.Probe(host, db.Port, g.ProbeTimeout); err != nil {
		return nil, &Failure{CodeTunnelUnreachable,
			fmt.Sprintf("tunnel endpoint %s:%d is not reachable: %v", host, db.Port, err)}
	}

	cfg := mysql.NewConfig()
	cfg.User = db.User
	cfg.Passwd = db.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(db.Port))
	cfg.DBName = db.Database
	cfg.Timeout = g.DialTimeout
	// MultiStatements stays disabled: one statement per call.

	conn, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, &Failure{CodeQueryExecutionFailed, err.Error()}
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, &Failure{CodeQueryExecutionFailed, err.Error()}
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return nil, &Failure{CodeQueryExecutionFailed, err.Error()}
	}
	return result, nil
}

// normalizeHost maps blank and loopback aliases to the loopback literal the
// tunnel binds.
func normalizeHost(host string) string {
	switch host {
	case "", "localhost", "::1":
		return "127.0.0.1"
	default:
		return host
	}
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			// The driver hands back []byte for text results.
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
