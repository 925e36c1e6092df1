package warehouse

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// ColumnType is the SQLite type chosen for a loaded column.
type ColumnType string

const (
	TypeInteger ColumnType = "INTEGER"
	TypeReal    ColumnType = "REAL"
	TypeBoolean ColumnType = "BOOLEAN"
	TypeText    ColumnType = "TEXT"
)

// Column is one column of a loaded table.
type Column struct {
	Name string
	Type ColumnType
}

// LoadResult describes a completed load.
type LoadResult struct {
	Table   string
	Columns []Column
	Rows    int64

	// Empty is true when the source file had no header; the table is dropped.
	Empty bool
}

// LoadCSV replaces table with the contents of the CSV file at path. Column
// types are inferred from the values; empty cells become NULL. The whole
// replacement runs in one transaction.
func (db *DB) LoadCSV(ctx context.Context, table, path string) (*LoadResult, error) {
	if table == "" {
		return nil, ErrInvalidTable
	}

	start := time.Now()
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	result := &LoadResult{Table: table}
	if len(header) == 0 {
		if _, err := db.conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table)); err != nil {
			return nil, fmt.Errorf("drop %s: %w", table, err)
		}
		result.Empty = true
		db.logger.Warn().
			Str("table", table).
			Str("path", path).
			Msg("Source file is empty - table dropped")
		return result, nil
	}

	result.Columns = inferColumns(header, rows)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table)); err != nil {
		return nil, fmt.Errorf("drop %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, createTableSQL(table, result.Columns)); err != nil {
		return nil, fmt.Errorf("create %s: %w", table, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL(table, len(result.Columns)))
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(result.Columns))
	for i, row := range rows {
		for j, col := range result.Columns {
			args[j] = convert(row[j], col.Type)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return nil, fmt.Errorf("insert row %d: %w", i+1, err)
		}
		result.Rows++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	rowsLoadedTotal.WithLabelValues(table).Add(float64(result.Rows))
	db.logger.Info().
		Str("table", table).
		Str("path", path).
		Int("columns", len(result.Columns)).
		Int64("rows", result.Rows).
		Dur("duration", time.Since(start)).
		Msg("Loaded table")

	return result, nil
}

// readCSV reads the header and all rows. An empty file returns no header.
func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}

	seen := make(map[string]bool, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
			header[0] = name
		}
		if name == "" {
			return nil, nil, fmt.Errorf("csv header: column %d has no name", i+1)
		}
		key := strings.ToLower(name)
		if seen[key] {
			return nil, nil, fmt.Errorf("csv header: duplicate column %q", name)
		}
		seen[key] = true
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	return header, rows, nil
}

// inferColumns picks the narrowest type that fits every non-empty value of
// each column. Columns with no values are TEXT.
func inferColumns(header []string, rows [][]string) []Column {
	columns := make([]Column, len(header))
	for j, name := range header {
		columns[j] = Column{Name: name, Type: inferType(rows, j)}
	}
	return columns
}

func inferType(rows [][]string, j int) ColumnType {
	isInt, isReal, isBool := true, true, true
	seen := false

	for _, row := range rows {
		v := row[j]
		if v == "" {
			continue
		}
		seen = true
		if isInt {
			isInt = plainNumber(v) && !strings.ContainsAny(v, ".eE")
			if isInt {
				_, err := strconv.ParseInt(v, 10, 64)
				isInt = err == nil
			}
		}
		if isReal {
			isReal = plainNumber(v)
			if isReal {
				_, err := strconv.ParseFloat(v, 64)
				isReal = err == nil
			}
		}
		if isBool {
			isBool = v == "true" || v == "false"
		}
		if !isInt && !isReal && !isBool {
			break
		}
	}

	switch {
	case !seen:
		return TypeText
	case isInt:
		return TypeInteger
	case isReal:
		return TypeReal
	case isBool:
		return TypeBoolean
	default:
		return TypeText
	}
}

// plainNumber rejects forms that would not survive a round trip through a
// numeric column: leading zeros, NaN/Inf spellings, surrounding spaces.
func plainNumber(v string) bool {
	digits := strings.TrimPrefix(v, "-")
	if digits == "" || digits[0] < '0' || digits[0] > '9' {
		return false
	}
	if len(digits) > 1 && digits[0] == '0' && digits[1] != '.' {
		return false
	}
	last := v[len(v)-1]
	return last >= '0' && last <= '9'
}

func convert(v string, t ColumnType) any {
	if v == "" {
		return nil
	}
	switch t {
	case TypeInteger:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case TypeReal:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case TypeBoolean:
		return v == "true"
	default:
		return v
	}
}

func createTableSQL(table string, columns []Column) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = quoteIdent(c.Name) + " " + string(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(defs, ", "))
}

func insertSQL(table string, n int) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
	return fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(table), placeholders)
}
