// Package warehouse loads flat files into a local SQLite database and runs
// SQL transformation scripts against it.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aleix-cd/recap-ae-challenge/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

var (
	rowsLoadedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warehouse_rows_loaded_total",
		Help: "Total rows loaded into the warehouse by table",
	}, []string{"table"})

	scriptsRunTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warehouse_scripts_total",
		Help: "Total SQL scripts executed by status",
	}, []string{"status"})
)

// ErrInvalidTable is returned for empty table names.
var ErrInvalidTable = errors.New("invalid table name")

// DB wraps the SQLite database connection.
type DB struct {
	conn   *sql.DB
	path   string
	logger zerolog.Logger
}

// Open opens (or creates) the SQLite file at path.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &DB{
		conn:   conn,
		path:   path,
		logger: logging.NewLogger("warehouse"),
	}, nil
}

// Remove deletes the database file at path and its WAL side files. A missing
// file is not an error.
func Remove(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// RowCount returns the number of rows in table.
func (db *DB) RowCount(ctx context.Context, table string) (int64, error) {
	if table == "" {
		return 0, ErrInvalidTable
	}
	var n int64
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// Tables returns the user table names in lexical order.
func (db *DB) Tables(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Preview returns the column names and up to limit rows of table, each value
// rendered as text (NULL as "").
func (db *DB) Preview(ctx context.Context, table string, limit int) ([]string, [][]string, error) {
	if table == "" {
		return nil, nil, ErrInvalidTable
	}

	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteIdent(table), limit))
	if err != nil {
		return nil, nil, fmt.Errorf("preview %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("preview columns: %w", err)
	}

	var out [][]string
	for rows.Next() {
		values := make([]sql.NullString, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("preview scan: %w", err)
		}
		row := make([]string, len(columns))
		for i, v := range values {
			row[i] = v.String
		}
		out = append(out, row)
	}
	return columns, out, rows.Err()
}

// quoteIdent quotes a SQLite identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
