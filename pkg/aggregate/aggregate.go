// Package aggregate folds a sequence of fetched pages into one ordered
// record list and reports progress after every page.
package aggregate

import (
	"iter"

	"github.com/aleix-cd/recap-ae-challenge/pkg/normalize"
	"github.com/aleix-cd/recap-ae-challenge/pkg/pagination"
	"github.com/aleix-cd/recap-ae-challenge/pkg/record"
)

// Progress is the running state after one page.
type Progress struct {
	// Page is the page number just processed
	Page int

	// PageRecords is the number of records the page contributed
	PageRecords int

	// TotalRecords is the number of records accumulated so far
	TotalRecords int

	// TotalPages is the page count declared by the API, 0 when unknown
	TotalPages int
}

// Result is the outcome of a completed aggregation.
type Result struct {
	// Records in page order, then in within-page order
	Records []record.Record

	PagesSeen   int
	RecordsSeen int
}

// Aggregate drains pages and appends their records in order. Records already
// normalized by the fetcher (Page.Records) are used as is, so the records
// collected always match the ones that drove termination; pages without them
// are normalized with n. observer is called after every page. The first error
// from pages is returned unchanged and no partial result is produced. A nil
// normalizer uses the default keys; a nil observer reports nothing.
func Aggregate(pages iter.Seq2[pagination.Page, error], n *normalize.Normalizer, observer Observer) (*Result, error) {
	if n == nil {
		n = normalize.New()
	}
	if observer == nil {
		observer = NopObserver{}
	}

	result := &Result{Records: []record.Record{}}
	for page, err := range pages {
		if err != nil {
			return nil, err
		}

		records := page.Records
		if records == nil {
			records = n.Normalize(page.Body)
		}
		result.Records = append(result.Records, records...)
		result.PagesSeen++
		result.RecordsSeen += len(records)

		progress := Progress{
			Page:         page.Number,
			PageRecords:  len(records),
			TotalRecords: result.RecordsSeen,
		}
		if page.TotalKnown {
			progress.TotalPages = page.TotalPages
		}
		observer.PageObserved(progress)
	}

	return result, nil
}
