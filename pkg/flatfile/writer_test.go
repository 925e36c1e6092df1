package flatfile

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aleix-cd/recap-ae-challenge/pkg/record"
)

func TestFieldUnion(t *testing.T) {
	records := []record.Record{
		{"id": 1, "amount": 5},
		{"id": 2, "note": "x"},
		{},
	}

	require.Equal(t, []string{"amount", "id", "note"}, FieldUnion(records))
	require.Empty(t, FieldUnion(nil))
}

func TestFieldUnion_OrderIndependent(t *testing.T) {
	a := []record.Record{{"b": 1}, {"a": 1, "c": 1}}
	b := []record.Record{{"c": 1}, {"a": 1}, {"b": 1}}

	require.Equal(t, FieldUnion(a), FieldUnion(b))
}

func TestWriteCSV_MissingFieldsAreEmpty(t *testing.T) {
	records := []record.Record{
		{"id": json.Number("1"), "amount": json.Number("5")},
		{"id": json.Number("2"), "note": "x"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, FieldUnion(records), records))

	want := "amount,id,note\n5,1,\n,2,x\n"
	require.Equal(t, want, buf.String())
}

func TestWriteCSV_NullIsEmptyNotLiteral(t *testing.T) {
	records := []record.Record{{"id": "a", "due": nil}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, FieldUnion(records), records))

	require.Equal(t, "due,id\n,a\n", buf.String())
	require.NotContains(t, buf.String(), "null")
}

func TestWriteCSV_IgnoresKeysOutsideFields(t *testing.T) {
	records := []record.Record{{"id": "a", "secret": "s"}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []string{"id"}, records))

	require.Equal(t, "id\na\n", buf.String())
}

func TestWriteCSV_QuotesSpecialCharacters(t *testing.T) {
	records := []record.Record{{"note": `say "hi", ok`}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, FieldUnion(records), records))

	require.Equal(t, "note\n\"say \"\"hi\"\", ok\"\n", buf.String())
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "abc", "abc"},
		{"json number int", json.Number("10"), "10"},
		{"json number float", json.Number("10.50"), "10.50"},
		{"float64", 12.5, "12.5"},
		{"float64 whole", float64(3), "3"},
		{"int", 7, "7"},
		{"int64", int64(-4), "-4"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"nested object", map[string]any{"a": 1}, `{"a":1}`},
		{"nested list", []any{"x", 1}, `["x",1]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, FormatValue(tt.in))
		})
	}
}

func TestWriter_EmptyRecordsProducesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	w := NewWriter(zerolog.Nop())
	require.NoError(t, w.Write(nil, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Empty(t, data)
}

func TestWriter_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "out.csv")

	w := NewWriter(zerolog.Nop())
	require.NoError(t, w.Write([]record.Record{{"id": 1}}, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "id\n1\n", string(data))
}

func TestWriter_RoundTrip(t *testing.T) {
	records := []record.Record{
		{"id": json.Number("1"), "amount": json.Number("10"), "currency": "EUR"},
		{"id": json.Number("2"), "currency": nil},
		{"id": json.Number("3"), "customer": "Acme, Inc."},
	}
	path := filepath.Join(t.TempDir(), "invoices.csv")

	w := NewWriter(zerolog.Nop())
	require.NoError(t, w.Write(records, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, len(records)+1)

	header := rows[0]
	require.Equal(t, FieldUnion(records), header)

	for i, r := range records {
		row := rows[i+1]
		require.Len(t, row, len(header))
		for j, field := range header {
			require.Equal(t, FormatValue(r[field]), row[j], "row %d field %s", i, field)
		}
	}
}

func TestWriter_Idempotent(t *testing.T) {
	records := []record.Record{
		{"b": "2", "a": "1"},
		{"c": true},
	}
	path := filepath.Join(t.TempDir(), "out.csv")
	w := NewWriter(zerolog.Nop())

	require.NoError(t, w.Write(records, path))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, w.Write(records, path))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestWriter_OverwritesPreviousContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w := NewWriter(zerolog.Nop())

	require.NoError(t, w.Write([]record.Record{{"id": 1}, {"id": 2}}, path))
	require.NoError(t, w.Write(nil, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Empty(t, data)
}

func TestWriter_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	w := NewWriter(zerolog.Nop())
	require.NoError(t, w.Write([]record.Record{{"id": 1}}, path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.False(t, strings.HasSuffix(entries[0].Name(), ".tmp"))
}

func TestWriter_FailsWhenParentIsAFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	w := NewWriter(zerolog.Nop())
	err := w.Write([]record.Record{{"id": 1}}, filepath.Join(blocker, "out.csv"))
	require.Error(t, err)
}

func TestWrite_UsesGlobalLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	records := []record.Record{
		{"id": json.Number("1"), "amount": json.Number("5")},
		{"id": json.Number("2"), "note": "x"},
	}
	require.NoError(t, Write(records, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "amount,id,note\n5,1,\n,2,x\n", string(data))
}
