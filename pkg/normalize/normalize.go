// Package normalize turns API page bodies of unknown shape into records.
//
// A decoded JSON page is classified into one of a closed set of shapes by an
// ordered list of structural predicates:
//
//   - ShapeList: the page is a JSON array of objects
//   - ShapeEnvelope: the page is an object holding a record array under one of
//     the envelope keys (first key in priority order wins)
//   - ShapeSingle: the page is an object that carries an identity key
//   - ShapeUnrecognized: anything else, including nil and empty values
//
// Classification never fails. Unknown shapes yield zero records.
package normalize

import (
	"github.com/aleix-cd/recap-ae-challenge/pkg/record"
)

// Shape identifies which page layout a body was recognized as.
type Shape int

const (
	// ShapeUnrecognized means no records could be extracted.
	ShapeUnrecognized Shape = iota

	// ShapeList is a bare array of records.
	ShapeList

	// ShapeEnvelope is an object wrapping the record array under a known key.
	ShapeEnvelope

	// ShapeSingle is an object that is itself one record.
	ShapeSingle
)

// String returns the shape name used in logs.
func (s Shape) String() string {
	switch s {
	case ShapeList:
		return "list"
	case ShapeEnvelope:
		return "envelope"
	case ShapeSingle:
		return "single"
	default:
		return "unrecognized"
	}
}

// DefaultEnvelopeKeys are the envelope keys inspected, in priority order.
var DefaultEnvelopeKeys = []string{"invoices", "data", "items", "results"}

// DefaultIdentityKeys mark an object as a single record when no envelope matches.
var DefaultIdentityKeys = []string{"invoice_id", "invoiceId", "id", "invoice_number"}

// Classification is the outcome of inspecting one page.
type Classification struct {
	Shape Shape

	// EnvelopeKey is the key the records were found under (ShapeEnvelope only).
	EnvelopeKey string

	Records []record.Record
}

// Normalizer extracts records from decoded page bodies.
type Normalizer struct {
	// EnvelopeKeys are tried in order; earlier keys win.
	EnvelopeKeys []string

	// IdentityKeys make an unwrapped object count as one record.
	IdentityKeys []string
}

// New returns a Normalizer using the default envelope and identity keys.
func New() *Normalizer {
	return &Normalizer{
		EnvelopeKeys: DefaultEnvelopeKeys,
		IdentityKeys: DefaultIdentityKeys,
	}
}

var defaultNormalizer = New()

// Normalize extracts records from page using the default keys.
func Normalize(page any) []record.Record {
	return defaultNormalizer.Normalize(page)
}

// Normalize extracts the records held by page. It never fails: unrecognized
// shapes produce an empty slice.
func (n *Normalizer) Normalize(page any) []record.Record {
	return n.Classify(page).Records
}

// Classify decides the shape of page and extracts its records.
func (n *Normalizer) Classify(page any) Classification {
	switch v := page.(type) {
	case []any:
		if len(v) == 0 {
			return Classification{Shape: ShapeUnrecognized}
		}
		return Classification{Shape: ShapeList, Records: toRecords(v)}

	case []record.Record:
		if len(v) == 0 {
			return Classification{Shape: ShapeUnrecognized}
		}
		return Classification{Shape: ShapeList, Records: v}

	case map[string]any:
		return n.classifyObject(v)

	case record.Record:
		return n.classifyObject(v)
	}

	return Classification{Shape: ShapeUnrecognized}
}

func (n *Normalizer) classifyObject(obj map[string]any) Classification {
	if len(obj) == 0 {
		return Classification{Shape: ShapeUnrecognized}
	}

	for _, key := range n.EnvelopeKeys {
		if list, ok := obj[key].([]any); ok {
			return Classification{
				Shape:       ShapeEnvelope,
				EnvelopeKey: key,
				Records:     toRecords(list),
			}
		}
	}

	for _, key := range n.IdentityKeys {
		if _, ok := obj[key]; ok {
			return Classification{
				Shape:   ShapeSingle,
				Records: []record.Record{record.Record(obj)},
			}
		}
	}

	return Classification{Shape: ShapeUnrecognized}
}

// toRecords keeps the object elements of list. Scalars and nested arrays
// cannot be laid out as rows and are dropped.
func toRecords(list []any) []record.Record {
	records := make([]record.Record, 0, len(list))
	for _, item := range list {
		switch obj := item.(type) {
		case map[string]any:
			records = append(records, record.Record(obj))
		case record.Record:
			records = append(records, obj)
		}
	}
	return records
}
