package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aleix-cd/recap-ae-challenge/pkg/logging"
	"github.com/aleix-cd/recap-ae-challenge/pkg/normalize"
	"github.com/aleix-cd/recap-ae-challenge/pkg/record"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var walksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ingest_pagination_walks_total",
	Help: "Completed page walks by stop reason",
}, []string{"reason"})

// Config holds fetcher configuration.
type Config struct {
	// PageParam is the query parameter carrying the page number
	PageParam string

	// TotalPagesField is the body field declaring the page count
	TotalPagesField string

	// MaxPages stops the walk after this many pages (0 = unlimited)
	MaxPages int

	// Normalizer extracts the records of each page (default: normalize.New())
	Normalizer *normalize.Normalizer
}

// DefaultConfig returns the configuration for the invoices API.
func DefaultConfig() Config {
	return Config{
		PageParam:       "page",
		TotalPagesField: "total_pages",
		Normalizer:      normalize.New(),
	}
}

// Getter is the interface the API client must implement for single-page fetching.
type Getter interface {
	// GetJSON fetches one response and returns its decoded JSON body.
	GetJSON(ctx context.Context, path string, query url.Values) (any, error)
}

// GetterFunc adapts a function to the Getter interface.
type GetterFunc func(ctx context.Context, path string, query url.Values) (any, error)

// GetJSON calls f.
func (f GetterFunc) GetJSON(ctx context.Context, path string, query url.Values) (any, error) {
	return f(ctx, path, query)
}

// Page is one fetched page.
type Page struct {
	// Number is the page number that was requested
	Number int

	// Body is the decoded JSON body
	Body any

	// Records are the records normalized from Body. They decided whether
	// the walk stopped on this page. Non-nil for every fetched page.
	Records []record.Record

	// TotalPages is the page count declared by this response, if any
	TotalPages int
	TotalKnown bool
}

// FetchError reports the page whose request failed.
type FetchError struct {
	Page int
	Err  error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch page %d: %v", e.Page, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher walks paginated endpoints sequentially.
type Fetcher struct {
	getter Getter
	config Config
	logger zerolog.Logger
}

// NewFetcher creates a new fetcher. Empty config fields take their defaults.
func NewFetcher(getter Getter, config Config) *Fetcher {
	defaults := DefaultConfig()
	if config.PageParam == "" {
		config.PageParam = defaults.PageParam
	}
	if config.TotalPagesField == "" {
		config.TotalPagesField = defaults.TotalPagesField
	}
	if config.Normalizer == nil {
		config.Normalizer = defaults.Normalizer
	}
	if config.MaxPages < 0 {
		config.MaxPages = 0
	}

	return &Fetcher{
		getter: getter,
		config: config,
		logger: logging.NewLogger("fetcher"),
	}
}

// Pages returns a lazy sequence over the pages of endpoint starting at
// startPage. Each call starts a fresh walk. A failed request is yielded once
// as a *FetchError and ends the sequence. The page that triggers termination
// (such as an empty page) is still yielded.
func (f *Fetcher) Pages(ctx context.Context, endpoint string, startPage int) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		start := time.Now()
		cursor := NewCursor(startPage, f.config.MaxPages)

		if startPage < 1 {
			cursor.Fail()
			walksTotal.WithLabelValues(string(cursor.Reason())).Inc()
			yield(Page{Number: startPage}, &FetchError{
				Page: startPage,
				Err:  fmt.Errorf("start page must be >= 1"),
			})
			return
		}

		f.logger.Info().
			Str("endpoint", endpoint).
			Int("start_page", startPage).
			Msg("Starting page walk")

		for !cursor.Done() {
			number := cursor.Page()
			query := url.Values{f.config.PageParam: []string{strconv.Itoa(number)}}

			body, err := f.getter.GetJSON(ctx, endpoint, query)
			if err != nil {
				cursor.Fail()
				f.logger.Error().
					Err(err).
					Str("endpoint", endpoint).
					Int("page", number).
					Msg("Page fetch failed")
				walksTotal.WithLabelValues(string(cursor.Reason())).Inc()
				yield(Page{Number: number}, &FetchError{Page: number, Err: err})
				return
			}

			total, known := TotalPages(body, f.config.TotalPagesField)
			records := f.config.Normalizer.Normalize(body)
			if records == nil {
				records = []record.Record{}
			}
			cursor.Observe(len(records), total, known)

			f.logger.Debug().
				Int("page", number).
				Int("records", len(records)).
				Int("total_pages", total).
				Bool("total_known", known).
				Msg("Fetched page")

			page := Page{Number: number, Body: body, Records: records, TotalPages: total, TotalKnown: known}
			if !yield(page, nil) {
				return
			}
		}

		if cursor.Reason() == StopEmptyPage {
			if total, known := cursor.TotalPages(); known && cursor.Page() < total {
				f.logger.Warn().
					Int("page", cursor.Page()).
					Int("total_pages", total).
					Msg("Empty page before declared total - stopping early")
			}
		}

		walksTotal.WithLabelValues(string(cursor.Reason())).Inc()
		f.logger.Info().
			Str("endpoint", endpoint).
			Int("pages", cursor.Fetched()).
			Str("stop_reason", string(cursor.Reason())).
			Dur("duration", time.Since(start)).
			Msg("Page walk complete")
	}
}

// TotalPages reads the declared page count from a page body. Integral JSON
// numbers and numeric strings are accepted; anything else is unknown.
func TotalPages(body any, field string) (int, bool) {
	m, ok := body.(map[string]any)
	if !ok {
		return 0, false
	}

	switch v := m[field].(type) {
	case json.Number:
		return parseTotal(v.String())
	case string:
		return parseTotal(strings.TrimSpace(v))
	case float64:
		return floatTotal(v)
	case int:
		return v, true
	case int64:
		return int(v), true
	default:
		return 0, false
	}
}

func parseTotal(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return floatTotal(f)
}

func floatTotal(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
