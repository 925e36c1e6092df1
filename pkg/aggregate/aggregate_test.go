package aggregate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aleix-cd/recap-ae-challenge/pkg/normalize"
	"github.com/aleix-cd/recap-ae-challenge/pkg/pagination"
	"github.com/aleix-cd/recap-ae-challenge/pkg/record"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	require.NoError(t, dec.Decode(&v))
	return v
}

// seq yields the given pages in order, then err if non-nil.
func seq(pages []pagination.Page, err error) iter.Seq2[pagination.Page, error] {
	return func(yield func(pagination.Page, error) bool) {
		for _, p := range pages {
			if !yield(p, nil) {
				return
			}
		}
		if err != nil {
			yield(pagination.Page{}, err)
		}
	}
}

func TestAggregate_PreservesOrder(t *testing.T) {
	pages := []pagination.Page{
		{Number: 1, Body: decode(t, `{"invoices": [{"id": 1}, {"id": 2}], "total_pages": 2}`), TotalPages: 2, TotalKnown: true},
		{Number: 2, Body: decode(t, `[{"id": 3}]`)},
	}

	result, err := Aggregate(seq(pages, nil), normalize.New(), nil)
	require.NoError(t, err)

	require.Equal(t, []record.Record{
		{"id": json.Number("1")},
		{"id": json.Number("2")},
		{"id": json.Number("3")},
	}, result.Records)
	require.Equal(t, 2, result.PagesSeen)
	require.Equal(t, 3, result.RecordsSeen)
}

func TestAggregate_SingleRecordPage(t *testing.T) {
	pages := []pagination.Page{
		{Number: 1, Body: decode(t, `{"invoice_id": "A", "amount": 10}`)},
		{Number: 2, Body: decode(t, `{"unrelated": true}`)},
	}

	result, err := Aggregate(seq(pages, nil), nil, nil)
	require.NoError(t, err)

	require.Equal(t, []record.Record{{"invoice_id": "A", "amount": json.Number("10")}}, result.Records)
	require.Equal(t, 2, result.PagesSeen)
}

func TestAggregate_EmptySequence(t *testing.T) {
	result, err := Aggregate(seq(nil, nil), nil, nil)
	require.NoError(t, err)
	require.Empty(t, result.Records)
	require.NotNil(t, result.Records)
	require.Zero(t, result.PagesSeen)
}

func TestAggregate_ErrorDiscardsPartialResult(t *testing.T) {
	fetchErr := &pagination.FetchError{Page: 2, Err: errors.New("boom")}
	pages := []pagination.Page{
		{Number: 1, Body: decode(t, `[{"id": 1}]`)},
	}

	var observed int
	result, err := Aggregate(seq(pages, fetchErr), nil, ObserverFunc(func(Progress) { observed++ }))

	require.Nil(t, result)
	require.ErrorIs(t, err, fetchErr)
	require.Equal(t, 1, observed)
}

func TestAggregate_ProgressReports(t *testing.T) {
	pages := []pagination.Page{
		{Number: 1, Body: decode(t, `{"invoices": [{"id": 1}, {"id": 2}], "total_pages": 3}`), TotalPages: 3, TotalKnown: true},
		{Number: 2, Body: decode(t, `{"invoices": [{"id": 3}], "total_pages": 3}`), TotalPages: 3, TotalKnown: true},
		{Number: 3, Body: decode(t, `{"invoices": [], "total_pages": 3}`), TotalPages: 3, TotalKnown: true},
	}

	var got []Progress
	_, err := Aggregate(seq(pages, nil), nil, ObserverFunc(func(p Progress) { got = append(got, p) }))
	require.NoError(t, err)

	require.Equal(t, []Progress{
		{Page: 1, PageRecords: 2, TotalRecords: 2, TotalPages: 3},
		{Page: 2, PageRecords: 1, TotalRecords: 3, TotalPages: 3},
		{Page: 3, PageRecords: 0, TotalRecords: 3, TotalPages: 3},
	}, got)
}

func TestAggregate_ObserverDoesNotAffectResult(t *testing.T) {
	pages := func() []pagination.Page {
		return []pagination.Page{
			{Number: 1, Body: decode(t, `[{"id": 1}, {"id": 2}]`)},
		}
	}

	quiet, err := Aggregate(seq(pages(), nil), nil, NopObserver{})
	require.NoError(t, err)

	var buf bytes.Buffer
	noisy, err := Aggregate(seq(pages(), nil), nil, MultiObserver{
		NewLogObserver(zerolog.New(&buf)),
		MetricsObserver{},
		nil,
	})
	require.NoError(t, err)

	require.Equal(t, quiet, noisy)
	require.Contains(t, buf.String(), `"page_records":2`)
}

func TestMultiObserver_Order(t *testing.T) {
	var calls []string
	m := MultiObserver{
		ObserverFunc(func(Progress) { calls = append(calls, "a") }),
		ObserverFunc(func(Progress) { calls = append(calls, "b") }),
	}

	m.PageObserved(Progress{Page: 1})

	require.Equal(t, []string{"a", "b"}, calls)
}

func TestLogObserver_TotalPagesOnlyWhenKnown(t *testing.T) {
	var buf bytes.Buffer
	o := NewLogObserver(zerolog.New(&buf))

	o.PageObserved(Progress{Page: 1, PageRecords: 1, TotalRecords: 1})
	require.NotContains(t, buf.String(), "total_pages")

	buf.Reset()
	o.PageObserved(Progress{Page: 1, PageRecords: 1, TotalRecords: 1, TotalPages: 4})
	require.Contains(t, buf.String(), `"total_pages":4`)
}

func TestMetricsObserver(t *testing.T) {
	pagesBefore := testutil.ToFloat64(pagesTotal)
	recordsBefore := testutil.ToFloat64(recordsTotal)
	emptyBefore := testutil.ToFloat64(emptyPagesTotal)

	var o MetricsObserver
	o.PageObserved(Progress{Page: 1, PageRecords: 5})
	o.PageObserved(Progress{Page: 2, PageRecords: 0})

	require.Equal(t, pagesBefore+2, testutil.ToFloat64(pagesTotal))
	require.Equal(t, recordsBefore+5, testutil.ToFloat64(recordsTotal))
	require.Equal(t, emptyBefore+1, testutil.ToFloat64(emptyPagesTotal))
}

func TestAggregate_PrefersFetchedRecords(t *testing.T) {
	pages := []pagination.Page{
		{
			Number:  1,
			Body:    decode(t, `{"rows": [{"id": 1}], "invoices": [{"id": 99}]}`),
			Records: []record.Record{{"id": json.Number("1")}},
		},
		{
			Number:  2,
			Body:    decode(t, `{"rows": [], "invoices": [{"id": 100}]}`),
			Records: []record.Record{},
		},
	}

	// The default normalizer would pick "invoices"; the fetched records win.
	result, err := Aggregate(seq(pages, nil), normalize.New(), nil)
	require.NoError(t, err)

	require.Equal(t, []record.Record{{"id": json.Number("1")}}, result.Records)
	require.Equal(t, 2, result.PagesSeen)
	require.Equal(t, 1, result.RecordsSeen)
}

func TestAggregate_MatchesFetcherTermination(t *testing.T) {
	getter := pagination.GetterFunc(func(_ context.Context, _ string, query url.Values) (any, error) {
		switch query.Get("page") {
		case "1":
			return decode(t, `{"rows": [{"id": 1}], "total_pages": 3}`), nil
		case "2":
			return decode(t, `{"rows": [], "invoices": [{"id": 2}], "total_pages": 3}`), nil
		}
		return nil, errors.New("unexpected page " + query.Get("page"))
	})

	cfg := pagination.DefaultConfig()
	cfg.Normalizer = &normalize.Normalizer{EnvelopeKeys: []string{"rows"}}
	pages := pagination.NewFetcher(getter, cfg).Pages(context.Background(), "/invoices", 1)

	result, err := Aggregate(pages, nil, nil)
	require.NoError(t, err)

	require.Equal(t, []record.Record{{"id": json.Number("1")}}, result.Records)
	require.Equal(t, 2, result.PagesSeen)
}
