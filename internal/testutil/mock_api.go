// Package testutil provides testing utilities for the ingestion pipeline.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock API response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable paginated API server for testing. Pages are
// served from one path and selected by a query parameter.
type MockAPI struct {
	server    *httptest.Server
	path      string
	pageParam string

	mu       sync.RWMutex
	pages    map[int]MockResponse
	handlers map[string]http.HandlerFunc

	// Tracking
	requestCount      int
	requestedPages    []int
	lastRequestHeader http.Header
}

// NewMockAPI creates a mock API serving pages under path using the "page"
// query parameter.
func NewMockAPI(path string) *MockAPI {
	return NewMockAPIWithParam(path, "page")
}

// NewMockAPIWithParam is NewMockAPI with a custom page parameter name.
func NewMockAPIWithParam(path, pageParam string) *MockAPI {
	mock := &MockAPI{
		path:      path,
		pageParam: pageParam,
		pages:     make(map[int]MockResponse),
		handlers:  make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

func (m *MockAPI) serve(w http.ResponseWriter, r *http.Request) {
	page, pageErr := strconv.Atoi(r.URL.Query().Get(m.pageParam))

	m.mu.Lock()
	m.requestCount++
	m.lastRequestHeader = r.Header.Clone()
	if pageErr == nil && r.URL.Path == m.path {
		m.requestedPages = append(m.requestedPages, page)
	}
	handler, hasHandler := m.handlers[r.URL.Path]
	resp, hasPage := m.pages[page]
	m.mu.Unlock()

	if hasHandler {
		handler(w, r)
		return
	}

	if r.URL.Path != m.path || pageErr != nil || !hasPage {
		writeResponse(w, NewNotFoundResponse())
		return
	}

	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.requestedPages = nil
	m.lastRequestHeader = nil
}

// SetPage configures the response for one page number.
func (m *MockAPI) SetPage(page int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[page] = resp
}

// SetPageJSON serves body as a 200 JSON response for one page number.
func (m *MockAPI) SetPageJSON(page int, body string) {
	m.SetPage(page, NewJSONResponse(body))
}

// SetHandler overrides all responses for a path.
func (m *MockAPI) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// RequestedPages returns the page numbers requested, in arrival order.
func (m *MockAPI) RequestedPages() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.requestedPages...)
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockAPI) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader
}

// NewJSONResponse creates a 200 OK JSON response.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error": "page not found"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Retry-After":  strconv.Itoa(retryAfter),
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewMalformedResponse creates a 200 response whose body is not JSON.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"invoices": [`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
