// Package record defines the schemaless row type shared by the ingestion pipeline.
package record

import "sort"

// Record is one logical business entity extracted from an API page.
// Values are scalars (string, json.Number, float64, bool) or nil.
// Different records may carry different key sets.
type Record map[string]any

// Keys returns the record's field names in lexicographic order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether the record carries the given field, even if its value is nil.
func (r Record) Has(field string) bool {
	_, ok := r[field]
	return ok
}
