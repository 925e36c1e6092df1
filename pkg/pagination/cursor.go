package pagination

// StopReason records why a Cursor terminated.
type StopReason string

const (
	StopNone       StopReason = ""
	StopTotalPages StopReason = "total_pages"
	StopEmptyPage  StopReason = "empty_page"
	StopMaxPages   StopReason = "max_pages"
	StopError      StopReason = "error"
)

// Cursor tracks the position of one walk over an endpoint. It only moves
// forward and, once stopped, stays stopped.
type Cursor struct {
	page       int
	fetched    int
	maxPages   int
	totalPages int
	totalKnown bool
	reason     StopReason
}

// NewCursor starts a cursor at startPage. maxPages <= 0 means unbounded.
func NewCursor(startPage, maxPages int) *Cursor {
	return &Cursor{page: startPage, maxPages: maxPages}
}

// Page returns the page number to request next.
func (c *Cursor) Page() int { return c.page }

// Fetched returns how many pages have been observed.
func (c *Cursor) Fetched() int { return c.fetched }

// TotalPages returns the last declared total, if any.
func (c *Cursor) TotalPages() (int, bool) { return c.totalPages, c.totalKnown }

// Done reports whether the walk has ended.
func (c *Cursor) Done() bool { return c.reason != StopNone }

// Reason returns why the walk ended, or StopNone while it is running.
func (c *Cursor) Reason() StopReason { return c.reason }

// Observe records the outcome of the current page and advances. total is the
// declared page count from this response when known is true.
func (c *Cursor) Observe(records, total int, known bool) {
	if c.Done() {
		return
	}

	c.fetched++
	if known {
		c.totalPages, c.totalKnown = total, true
	}

	switch {
	case records == 0:
		c.reason = StopEmptyPage
		return
	case c.maxPages > 0 && c.fetched >= c.maxPages:
		c.reason = StopMaxPages
		return
	}

	c.page++
	if c.totalKnown && c.page > c.totalPages {
		c.reason = StopTotalPages
	}
}

// Fail terminates the walk after a request error.
func (c *Cursor) Fail() {
	if !c.Done() {
		c.reason = StopError
	}
}
