package warehouse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RunSQLDir executes every *.sql file in dir in lexical order, each in its own
// transaction. It stops at the first failing script and returns the names of
// the scripts that completed.
func (db *DB) RunSQLDir(ctx context.Context, dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("sql dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sql dir: %s is not a directory", dir)
	}

	scripts, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	sort.Strings(scripts)

	if len(scripts) == 0 {
		db.logger.Warn().Str("dir", dir).Msg("No SQL scripts found")
	}

	done := make([]string, 0, len(scripts))
	for _, script := range scripts {
		name := filepath.Base(script)
		if err := db.RunSQLFile(ctx, script); err != nil {
			return done, fmt.Errorf("script %s: %w", name, err)
		}
		done = append(done, name)
	}
	return done, nil
}

// RunSQLFile executes one script in a transaction.
func (db *DB) RunSQLFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}

	query := strings.TrimSpace(string(data))
	if query == "" {
		db.logger.Debug().Str("script", path).Msg("Skipping empty script")
		return nil
	}

	start := time.Now()
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, query); err != nil {
		scriptsRunTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("exec: %w", err)
	}
	if err := tx.Commit(); err != nil {
		scriptsRunTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("commit: %w", err)
	}

	scriptsRunTotal.WithLabelValues("success").Inc()
	db.logger.Info().
		Str("script", filepath.Base(path)).
		Dur("duration", time.Since(start)).
		Msg("Executed SQL script")
	return nil
}
