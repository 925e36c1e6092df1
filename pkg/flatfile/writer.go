// Package flatfile serializes schemaless records into a single CSV file whose
// header is the sorted union of every field observed across the records.
package flatfile

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aleix-cd/recap-ae-challenge/pkg/record"
)

var (
	rowsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_rows_written_total",
		Help: "Total number of CSV data rows written",
	})

	writeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_write_errors_total",
		Help: "Total number of failed flat-file writes",
	})
)

// FieldUnion returns the lexicographically sorted set of field names present
// in any of the records.
func FieldUnion(records []record.Record) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		for k := range r {
			seen[k] = struct{}{}
		}
	}

	fields := make([]string, 0, len(seen))
	for k := range seen {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// Writer writes record sets to CSV files.
type Writer struct {
	logger zerolog.Logger
}

// NewWriter creates a Writer logging with the given logger.
func NewWriter(logger zerolog.Logger) *Writer {
	return &Writer{logger: logger}
}

// Write serializes records to path, replacing any previous file.
//
// With zero records the file is created empty, without a header row.
// The content is written to a temporary file in the destination directory and
// renamed into place, so readers never see a partially written artifact.
func (w *Writer) Write(records []record.Record, path string) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		writeErrorsTotal.Inc()
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		writeErrorsTotal.Inc()
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
			writeErrorsTotal.Inc()
		}
	}()

	if len(records) == 0 {
		w.logger.Warn().Str("path", path).Msg("No rows to write, creating empty CSV")
	} else {
		if err = WriteCSV(tmp, FieldUnion(records), records); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}

	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}

	rowsWrittenTotal.Add(float64(len(records)))
	w.logger.Info().
		Int("rows", len(records)).
		Str("path", path).
		Msg("Wrote rows to single CSV")

	return nil
}

// Write serializes records to path using the global logger.
func Write(records []record.Record, path string) error {
	return NewWriter(log.Logger).Write(records, path)
}

// WriteCSV writes a header row of fields followed by one row per record.
// Fields a record lacks, or holds as nil, are written as empty values; record
// keys outside fields are ignored.
func WriteCSV(out io.Writer, fields []string, records []record.Record) error {
	cw := csv.NewWriter(out)

	if err := cw.Write(fields); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(fields))
	for i, r := range records {
		for j, f := range fields {
			row[j] = FormatValue(r[f])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// FormatValue renders a record value as CSV cell text.
// nil becomes the empty string; nested values are encoded as compact JSON.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case fmt.Stringer:
		return val.String()
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
