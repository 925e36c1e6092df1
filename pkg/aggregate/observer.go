package aggregate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	pagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_pages_total",
		Help: "Total pages aggregated",
	})

	recordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_records_total",
		Help: "Total records aggregated",
	})

	emptyPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_empty_pages_total",
		Help: "Total pages that contributed no records",
	})
)

// Observer receives progress after every aggregated page. Observers must not
// affect the aggregation.
type Observer interface {
	PageObserved(Progress)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Progress)

// PageObserved calls f(p).
func (f ObserverFunc) PageObserved(p Progress) { f(p) }

// NopObserver discards progress.
type NopObserver struct{}

// PageObserved does nothing.
func (NopObserver) PageObserved(Progress) {}

// MultiObserver fans progress out to several observers in order.
type MultiObserver []Observer

// PageObserved forwards p to every non-nil observer.
func (m MultiObserver) PageObserved(p Progress) {
	for _, o := range m {
		if o != nil {
			o.PageObserved(p)
		}
	}
}

// LogObserver writes one structured log line per page.
type LogObserver struct {
	Logger zerolog.Logger
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(logger zerolog.Logger) *LogObserver {
	return &LogObserver{Logger: logger}
}

// PageObserved logs the page progress.
func (o *LogObserver) PageObserved(p Progress) {
	event := o.Logger.Info().
		Int("page", p.Page).
		Int("page_records", p.PageRecords).
		Int("total_records", p.TotalRecords)
	if p.TotalPages > 0 {
		event = event.Int("total_pages", p.TotalPages)
	}
	event.Msg("Fetched page")
}

// MetricsObserver counts pages and records in Prometheus.
type MetricsObserver struct{}

// PageObserved updates the page and record counters.
func (MetricsObserver) PageObserved(p Progress) {
	pagesTotal.Inc()
	recordsTotal.Add(float64(p.PageRecords))
	if p.PageRecords == 0 {
		emptyPagesTotal.Inc()
	}
}
