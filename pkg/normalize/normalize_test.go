package normalize

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aleix-cd/recap-ae-challenge/pkg/record"
)

// decode parses a JSON literal the same way the HTTP client does.
func decode(t *testing.T, body string) any {
	t.Helper()

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
	return v
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantShape   Shape
		wantKey     string
		wantRecords int
	}{
		{
			name:        "bare list",
			body:        `[{"id": 1}, {"id": 2}]`,
			wantShape:   ShapeList,
			wantRecords: 2,
		},
		{
			name:        "invoices envelope",
			body:        `{"invoices": [{"id": 1}], "total_pages": 1}`,
			wantShape:   ShapeEnvelope,
			wantKey:     "invoices",
			wantRecords: 1,
		},
		{
			name:        "data envelope",
			body:        `{"data": [{"id": 1}, {"id": 2}, {"id": 3}]}`,
			wantShape:   ShapeEnvelope,
			wantKey:     "data",
			wantRecords: 3,
		},
		{
			name:        "earlier envelope key wins",
			body:        `{"results": [{"id": 9}], "invoices": [{"id": 1}, {"id": 2}]}`,
			wantShape:   ShapeEnvelope,
			wantKey:     "invoices",
			wantRecords: 2,
		},
		{
			name:        "non-list envelope value is skipped",
			body:        `{"invoices": "nope", "items": [{"id": 1}]}`,
			wantShape:   ShapeEnvelope,
			wantKey:     "items",
			wantRecords: 1,
		},
		{
			name:        "empty envelope",
			body:        `{"invoices": [], "total_pages": 2}`,
			wantShape:   ShapeEnvelope,
			wantKey:     "invoices",
			wantRecords: 0,
		},
		{
			name:        "single record by invoice_id",
			body:        `{"invoice_id": "INV-1", "amount": 10}`,
			wantShape:   ShapeSingle,
			wantRecords: 1,
		},
		{
			name:        "single record by invoiceId",
			body:        `{"invoiceId": 7}`,
			wantShape:   ShapeSingle,
			wantRecords: 1,
		},
		{
			name:      "object without identity",
			body:      `{"total_pages": 3, "message": "hi"}`,
			wantShape: ShapeUnrecognized,
		},
		{
			name:      "empty object",
			body:      `{}`,
			wantShape: ShapeUnrecognized,
		},
		{
			name:      "empty list",
			body:      `[]`,
			wantShape: ShapeUnrecognized,
		},
		{
			name:      "null",
			body:      `null`,
			wantShape: ShapeUnrecognized,
		},
		{
			name:      "string",
			body:      `"invoices"`,
			wantShape: ShapeUnrecognized,
		},
		{
			name:      "number",
			body:      `42`,
			wantShape: ShapeUnrecognized,
		},
		{
			name:        "list drops scalar elements",
			body:        `[{"id": 1}, 2, "x", null, [1], {"id": 3}]`,
			wantShape:   ShapeList,
			wantRecords: 2,
		},
	}

	n := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Classify(decode(t, tt.body))

			if got.Shape != tt.wantShape {
				t.Errorf("Shape = %v, want %v", got.Shape, tt.wantShape)
			}
			if got.EnvelopeKey != tt.wantKey {
				t.Errorf("EnvelopeKey = %q, want %q", got.EnvelopeKey, tt.wantKey)
			}
			if len(got.Records) != tt.wantRecords {
				t.Errorf("len(Records) = %d, want %d", len(got.Records), tt.wantRecords)
			}
		})
	}
}

func TestNormalize_SingleRecordIsWholeObject(t *testing.T) {
	page := decode(t, `{"invoice_id": "INV-42", "amount": 12.5, "paid": true}`)

	got := Normalize(page)

	want := []record.Record{{
		"invoice_id": "INV-42",
		"amount":     json.Number("12.5"),
		"paid":       true,
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_PreservesOrder(t *testing.T) {
	page := decode(t, `{"items": [{"id": "c"}, {"id": "a"}, {"id": "b"}]}`)

	got := Normalize(page)

	ids := make([]any, 0, len(got))
	for _, r := range got {
		ids = append(ids, r["id"])
	}
	if diff := cmp.Diff([]any{"c", "a", "b"}, ids); diff != "" {
		t.Errorf("record order mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_NeverPanics(t *testing.T) {
	inputs := []any{
		nil,
		0,
		3.14,
		true,
		"",
		[]any{},
		[]any{nil},
		map[string]any{},
		map[string]any{"invoices": nil},
		map[string]any{"data": map[string]any{"id": 1}},
		[]record.Record{},
		record.Record{"id": 1},
		struct{}{},
		make(chan int),
	}

	for _, in := range inputs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Normalize(%#v) panicked: %v", in, r)
				}
			}()
			_ = Normalize(in)
		}()
	}
}

func TestNormalizer_CustomKeys(t *testing.T) {
	n := &Normalizer{
		EnvelopeKeys: []string{"rows"},
		IdentityKeys: []string{"uuid"},
	}

	if got := n.Normalize(decode(t, `{"invoices": [{"id": 1}]}`)); len(got) != 0 {
		t.Errorf("default envelope key should not match custom normalizer, got %d records", len(got))
	}
	if got := n.Normalize(decode(t, `{"rows": [{"id": 1}, {"id": 2}]}`)); len(got) != 2 {
		t.Errorf("custom envelope: got %d records, want 2", len(got))
	}
	if got := n.Normalize(decode(t, `{"uuid": "abc"}`)); len(got) != 1 {
		t.Errorf("custom identity: got %d records, want 1", len(got))
	}
}

func TestShape_String(t *testing.T) {
	tests := map[Shape]string{
		ShapeUnrecognized: "unrecognized",
		ShapeList:         "list",
		ShapeEnvelope:     "envelope",
		ShapeSingle:       "single",
		Shape(99):         "unrecognized",
	}
	for shape, want := range tests {
		if got := shape.String(); got != want {
			t.Errorf("Shape(%d).String() = %q, want %q", int(shape), got, want)
		}
	}
}
