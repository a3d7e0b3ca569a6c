package sheet

import (
	"sync"
	"time"
)

// RowIndex maps order ids to sheet rows and remembers the run numbers in use.
// It is a derived index: a full read rebuilds it, appends and status updates
// patch single entries. The record snapshot is held alongside so the dashboard
// can be served without a remote read on every request.
type RowIndex struct {
	mu sync.RWMutex

	rows    map[string]int
	runs    map[int]struct{}
	lastRow int
	loaded  bool
	builtAt time.Time

	headers   []string
	snapshot  []Row
	fetchedAt time.Time
}

// NewRowIndex creates an empty index
func NewRowIndex() *RowIndex {
	return &RowIndex{
		rows: make(map[string]int),
		runs: make(map[int]struct{}),
	}
}

// Replace swaps in the result of a full read
func (c *RowIndex) Replace(headers []string, records []Row, rows map[string]int, runs map[int]struct{}, lastRow int, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.headers = headers
	c.snapshot = records
	c.fetchedAt = at
	c.rows = rows
	c.runs = runs
	c.lastRow = lastRow
	c.loaded = true
	c.builtAt = at
}

// Loaded reports whether a full read has populated the index. Entries added
// through Put before that are hits but not an authoritative key set.
func (c *RowIndex) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Lookup returns the row for an order id
func (c *RowIndex) Lookup(orderID string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	row, ok := c.rows[orderID]
	return row, ok
}

// Contains reports whether an order id is indexed
func (c *RowIndex) Contains(orderID string) bool {
	_, ok := c.Lookup(orderID)
	return ok
}

// Len is the number of indexed order ids
func (c *RowIndex) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rows)
}

// Put records a single order id to row mapping
func (c *RowIndex) Put(orderID string, row int) {
	if orderID == "" || row <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[orderID] = row
	if row > c.lastRow {
		c.lastRow = row
	}
}

// AddRun marks a run number as used
func (c *RowIndex) AddRun(n int) {
	if n <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs[n] = struct{}{}
}

// Runs returns a copy of the run numbers when the index was built within maxAge
func (c *RowIndex) Runs(now time.Time, maxAge time.Duration) (map[int]struct{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.builtAt.IsZero() || now.Sub(c.builtAt) > maxAge {
		return nil, false
	}

	runs := make(map[int]struct{}, len(c.runs))
	for n := range c.runs {
		runs[n] = struct{}{}
	}
	return runs, true
}

// LastRow is the highest sheet row known to be occupied, 0 before any read
func (c *RowIndex) LastRow() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRow
}

// Headers returns the normalized headers from the last full read
func (c *RowIndex) Headers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.headers
}

// SetHeaders stores headers read outside of a full read
func (c *RowIndex) SetHeaders(headers []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers = headers
}

// Snapshot returns the cached records when they are younger than maxAge
func (c *RowIndex) Snapshot(now time.Time, maxAge time.Duration) ([]Row, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.snapshot == nil || now.Sub(c.fetchedAt) > maxAge {
		return nil, time.Time{}, false
	}
	return c.snapshot, c.fetchedAt, true
}

// InvalidateSnapshot drops the cached records. The id index is kept.
func (c *RowIndex) InvalidateSnapshot() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = nil
	c.fetchedAt = time.Time{}
}
