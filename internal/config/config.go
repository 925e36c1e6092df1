// Package config reads the pipeline configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aleix-cd/recap-ae-challenge/pkg/logging"
)

// Defaults for every setting.
const (
	DefaultAPIBase         = "https://europe-west3-recap-dev-347108.cloudfunctions.net/analytics-challenge-api"
	DefaultAPIPath         = "/invoices"
	DefaultOutCSV          = "./invoices_full.csv"
	DefaultStartPage       = 1
	DefaultPageParam       = "page"
	DefaultTotalPagesField = "total_pages"
	DefaultHTTPTimeout     = 30 * time.Second
	DefaultRateLimit       = 10.0
	DefaultUserAgent       = "recap-ingest/1.0"
	DefaultDBFile          = "recap_database.db"
	DefaultSourceTable     = "invoices"
	DefaultCacheTTL        = 5 * time.Minute
	DefaultLogLevel        = "info"
)

// Error reports an invalid setting.
type Error struct {
	Field  string
	Value  string
	Reason string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("config %s=%q: %s", e.Field, e.Value, e.Reason)
}

// Table is an extra CSV file loaded next to the fetched one.
type Table struct {
	Name string
	Path string
}

// Config holds every pipeline setting.
type Config struct {
	// Fetch
	APIBase         string
	APIPath         string
	OutCSV          string
	StartPage       int
	PageParam       string
	TotalPagesField string
	MaxPages        int
	HTTPTimeout     time.Duration
	RateLimit       float64
	UserAgent       string

	// Load / transform
	DBFile      string
	SourceTable string
	ExtraTables []Table
	SQLDir      string

	// Cache (disabled when RedisURL is empty)
	RedisURL string
	CacheTTL time.Duration

	// Observability
	LogLevel    string
	LogPretty   bool
	MetricsAddr string
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		APIBase:         DefaultAPIBase,
		APIPath:         DefaultAPIPath,
		OutCSV:          DefaultOutCSV,
		StartPage:       DefaultStartPage,
		PageParam:       DefaultPageParam,
		TotalPagesField: DefaultTotalPagesField,
		HTTPTimeout:     DefaultHTTPTimeout,
		RateLimit:       DefaultRateLimit,
		UserAgent:       DefaultUserAgent,
		DBFile:          DefaultDBFile,
		SourceTable:     DefaultSourceTable,
		CacheTTL:        DefaultCacheTTL,
		LogLevel:        DefaultLogLevel,
	}
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads the configuration through getenv. Unset or empty variables
// keep their defaults.
func LoadFrom(getenv func(string) string) (Config, error) {
	cfg := Default()
	env := envReader{getenv: getenv}

	cfg.APIBase = env.str("INVOICES_API_BASE", cfg.APIBase)
	cfg.APIPath = env.str("INVOICES_PATH", cfg.APIPath)
	cfg.OutCSV = env.str("OUT_CSV_PATH", cfg.OutCSV)
	cfg.StartPage = env.integer("START_PAGE", cfg.StartPage)
	cfg.PageParam = env.str("PAGE_PARAM", cfg.PageParam)
	cfg.TotalPagesField = env.str("TOTAL_PAGES_FIELD", cfg.TotalPagesField)
	cfg.MaxPages = env.integer("MAX_PAGES", cfg.MaxPages)
	cfg.HTTPTimeout = env.duration("HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.RateLimit = env.float("RATE_LIMIT", cfg.RateLimit)
	cfg.UserAgent = env.str("USER_AGENT", cfg.UserAgent)

	cfg.DBFile = env.str("DB_FILE", cfg.DBFile)
	cfg.SourceTable = env.str("SOURCE_TABLE", cfg.SourceTable)
	cfg.SQLDir = env.str("SQL_DIR", cfg.SQLDir)
	if raw := env.str("EXTRA_TABLES", ""); raw != "" {
		tables, err := ParseTables(raw)
		if err != nil {
			env.fail(err)
		}
		cfg.ExtraTables = tables
	}

	cfg.RedisURL = env.str("REDIS_URL", cfg.RedisURL)
	cfg.CacheTTL = env.duration("CACHE_TTL", cfg.CacheTTL)

	cfg.LogLevel = env.str("LOG_LEVEL", cfg.LogLevel)
	cfg.LogPretty = env.boolean("LOG_PRETTY", cfg.LogPretty)
	cfg.MetricsAddr = env.str("METRICS_ADDR", cfg.MetricsAddr)

	if env.err != nil {
		return Config{}, env.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail mid-run.
func (c Config) Validate() error {
	u, err := url.Parse(c.APIBase)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &Error{Field: "INVOICES_API_BASE", Value: c.APIBase, Reason: "must be an absolute http(s) URL"}
	}
	if c.APIPath == "" {
		return &Error{Field: "INVOICES_PATH", Value: c.APIPath, Reason: "must not be empty"}
	}
	if c.OutCSV == "" {
		return &Error{Field: "OUT_CSV_PATH", Value: c.OutCSV, Reason: "must not be empty"}
	}
	if c.StartPage < 1 {
		return &Error{Field: "START_PAGE", Value: strconv.Itoa(c.StartPage), Reason: "must be >= 1"}
	}
	if c.PageParam == "" {
		return &Error{Field: "PAGE_PARAM", Value: c.PageParam, Reason: "must not be empty"}
	}
	if c.MaxPages < 0 {
		return &Error{Field: "MAX_PAGES", Value: strconv.Itoa(c.MaxPages), Reason: "must be >= 0"}
	}
	if c.HTTPTimeout <= 0 {
		return &Error{Field: "HTTP_TIMEOUT", Value: c.HTTPTimeout.String(), Reason: "must be > 0"}
	}
	if c.RateLimit < 0 {
		return &Error{Field: "RATE_LIMIT", Value: strconv.FormatFloat(c.RateLimit, 'g', -1, 64), Reason: "must be >= 0"}
	}
	if c.UserAgent == "" {
		return &Error{Field: "USER_AGENT", Value: c.UserAgent, Reason: "must not be empty"}
	}
	if c.SourceTable == "" {
		return &Error{Field: "SOURCE_TABLE", Value: c.SourceTable, Reason: "must not be empty"}
	}
	if c.CacheTTL < 0 {
		return &Error{Field: "CACHE_TTL", Value: c.CacheTTL.String(), Reason: "must be >= 0"}
	}
	if !logging.ValidLevel(c.LogLevel) {
		return &Error{Field: "LOG_LEVEL", Value: c.LogLevel, Reason: "must be debug, info, warn or error"}
	}
	return nil
}

// ParseTables parses "name=path,name=path".
func ParseTables(raw string) ([]Table, error) {
	var tables []Table
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, path, ok := strings.Cut(part, "=")
		name, path = strings.TrimSpace(name), strings.TrimSpace(path)
		if !ok || name == "" || path == "" {
			return nil, &Error{Field: "EXTRA_TABLES", Value: raw, Reason: fmt.Sprintf("entry %q is not name=path", part)}
		}
		if seen[name] {
			return nil, &Error{Field: "EXTRA_TABLES", Value: raw, Reason: fmt.Sprintf("table %q listed twice", name)}
		}
		seen[name] = true
		tables = append(tables, Table{Name: name, Path: path})
	}
	return tables, nil
}

// envReader keeps the first parse error.
type envReader struct {
	getenv func(string) string
	err    error
}

func (r *envReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *envReader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *envReader) integer(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(&Error{Field: key, Value: v, Reason: "must be an integer"})
		return def
	}
	return n
}

func (r *envReader) float(key string, def float64) float64 {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(&Error{Field: key, Value: v, Reason: "must be a number"})
		return def
	}
	return f
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Bare integers are seconds.
		if secs, convErr := strconv.Atoi(v); convErr == nil {
			return time.Duration(secs) * time.Second
		}
		r.fail(&Error{Field: key, Value: v, Reason: "must be a duration such as 30s"})
		return def
	}
	return d
}

func (r *envReader) boolean(key string, def bool) bool {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(&Error{Field: key, Value: v, Reason: "must be true or false"})
		return def
	}
	return b
}
