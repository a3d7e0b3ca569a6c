package sheet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Snapshot is the normalized content of the sheet at one point in time
type Snapshot struct {
	Headers   []string  `json:"headers"`
	Rows      []Row     `json:"rows"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Store is the order sheet: reads, appends and status updates against the
// remote table, with a RowIndex kept in step so lookups stay local.
type Store struct {
	table      Table
	index      *RowIndex
	ttl        time.Duration
	timeSource TimeSource
	reads      singleflight.Group

	mu      sync.Mutex
	pending map[int]struct{}
	claimed map[string]struct{}

	// appends made while a full read is in flight, replayed into its result
	readers int
	journal []appended
}

type appended struct {
	orderID string
	row     int
	run     int
}

// NewStore creates a Store. ttl bounds how long a full read is trusted for the
// dashboard snapshot and for run number allocation.
func NewStore(table Table, ttl time.Duration) *Store {
	return NewStoreWithDeps(table, NewRowIndex(), ttl, &defaultTimeSource{})
}

// NewStoreWithDeps creates a Store with custom dependencies for testing
func NewStoreWithDeps(table Table, index *RowIndex, ttl time.Duration, timeSrc TimeSource) *Store {
	return &Store{
		table:      table,
		index:      index,
		ttl:        ttl,
		timeSource: timeSrc,
		pending:    make(map[int]struct{}),
		claimed:    make(map[string]struct{}),
	}
}

// Index exposes the row index for inspection
func (s *Store) Index() *RowIndex {
	return s.index
}

// ReadAll reads the whole sheet and rebuilds the row index. Concurrent callers
// share one remote read, which is not cancelled with any single caller.
func (s *Store) ReadAll(ctx context.Context) (*Snapshot, error) {
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.reads.Do("all", func() (interface{}, error) {
		return s.readAll(shared)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (s *Store) readAll(ctx context.Context) (*Snapshot, error) {
	start := s.beginRead()
	defer s.endRead()

	values, err := s.table.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading orders: %w", err)
	}

	var headers []string
	if len(values) > 0 {
		headers = normalizeHeaders(values[0])
	}
	idCol := columnFor(headers, orderIDHeaders, ColOrderID)
	runCol := columnFor(headers, runNumberHeaders, ColRunNumber)

	records := []Row{}
	rows := make(map[string]int)
	runs := make(map[int]struct{})
	for i := 1; i < len(values); i++ {
		cells := padRow(values[i], len(headers))
		record := make(Row, len(headers))
		for j, h := range headers {
			record[h] = cells[j]
		}
		records = append(records, record)

		if idCol >= 0 {
			if id := strings.TrimSpace(cells[idCol]); id != "" {
				if _, seen := rows[id]; !seen {
					rows[id] = i + 1
				}
			}
		}
		if runCol >= 0 {
			if n, ok := parseRunNumber(cells[runCol]); ok {
				runs[n] = struct{}{}
			}
		}
	}

	now := s.timeSource.Now()
	lastRow := len(values)

	s.mu.Lock()
	missed := s.journal[start:]
	for _, a := range missed {
		if _, seen := rows[a.orderID]; a.orderID != "" && !seen {
			rows[a.orderID] = a.row
		}
		if a.run > 0 {
			runs[a.run] = struct{}{}
		}
		if a.row > lastRow {
			lastRow = a.row
		}
	}
	s.index.Replace(headers, records, rows, runs, lastRow, now)
	if len(missed) > 0 {
		// the records predate those appends
		s.index.InvalidateSnapshot()
	}
	s.mu.Unlock()

	slog.Debug("Rebuilt row index", "rows", len(records), "orders", len(rows), "replayed", len(missed))

	return &Snapshot{Headers: headers, Rows: records, FetchedAt: now}, nil
}

// beginRead marks a full read in flight and returns the journal position it
// started from
func (s *Store) beginRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readers++
	return len(s.journal)
}

func (s *Store) endRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readers--
	if s.readers == 0 {
		s.journal = nil
	}
}

// columnFor picks the first matching header or falls back to the fixed layout
func columnFor(headers []string, aliases []string, fallback int) int {
	if i := headerIndex(headers, aliases); i >= 0 {
		return i
	}
	if len(headers) >= fallback {
		return fallback - 1
	}
	return -1
}

// Records serves the cached snapshot while it is younger than the ttl and
// reads through otherwise
func (s *Store) Records(ctx context.Context) (*Snapshot, error) {
	if rows, at, ok := s.index.Snapshot(s.timeSource.Now(), s.ttl); ok {
		return &Snapshot{Headers: s.index.Headers(), Rows: rows, FetchedAt: at}, nil
	}
	return s.ReadAll(ctx)
}

// InvalidateSnapshot forces the next Records call to read the sheet
func (s *Store) InvalidateSnapshot() {
	s.index.InvalidateSnapshot()
}

// IsDuplicate reports whether an order id is already recorded or claimed by
// an append in flight. A loaded index answers alone; before the first full
// read a single column read decides. A false answer claims the id for the
// caller until Append or ReleaseOrder.
func (s *Store) IsDuplicate(ctx context.Context, orderID string) (bool, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return false, nil
	}

	if s.taken(orderID) {
		return true, nil
	}

	if !s.index.Loaded() {
		values, err := s.table.ColumnValues(ctx, ColOrderID)
		if err != nil {
			return false, fmt.Errorf("reading order ids: %w", err)
		}
		for _, v := range values {
			if strings.TrimSpace(v) == orderID {
				return true, nil
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claimed[orderID]; ok || s.index.Contains(orderID) {
		return true, nil
	}
	s.claimed[orderID] = struct{}{}
	return false, nil
}

func (s *Store) taken(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.claimed[orderID]
	return ok || s.index.Contains(orderID)
}

// ReleaseOrder drops the claim IsDuplicate took on an order id that will not
// be appended
func (s *Store) ReleaseOrder(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claimed, strings.TrimSpace(orderID))
}

// NextRunNumber returns the smallest positive run number not present in the
// sheet and not handed out to an append still in flight. The caller must pass
// the number to Append (or Release it).
func (s *Store) NextRunNumber(ctx context.Context) (int, error) {
	used, ok := s.index.Runs(s.timeSource.Now(), s.ttl)
	if !ok {
		values, err := s.table.ColumnValues(ctx, ColRunNumber)
		if err != nil {
			return 0, fmt.Errorf("reading run numbers: %w", err)
		}
		used = make(map[int]struct{}, len(values))
		for _, v := range values {
			if n, ok := parseRunNumber(v); ok {
				used[n] = struct{}{}
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for n := range s.pending {
		used[n] = struct{}{}
	}
	n := NextFree(used)
	s.pending[n] = struct{}{}
	return n, nil
}

// Release returns an allocated run number that will not be appended
func (s *Store) Release(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, n)
}

// NextFree is the smallest positive integer not in used
func NextFree(used map[int]struct{}) int {
	n := 1
	for {
		if _, taken := used[n]; !taken {
			return n
		}
		n++
	}
}

func parseRunNumber(v string) (int, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Append writes a record as a new row and indexes it without a full re-read.
// The record's run number reservation and order id claim are released either
// way.
func (s *Store) Append(ctx context.Context, rec Record) error {
	orderID := strings.TrimSpace(rec.OrderID)
	defer s.Release(rec.RunNumber)
	defer s.ReleaseOrder(orderID)

	row, err := s.table.AppendRow(ctx, rec.values())
	if err != nil {
		return fmt.Errorf("appending order %s: %w", rec.OrderID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if row == 0 && s.index.Loaded() {
		row = s.index.LastRow() + 1
	}
	if s.readers > 0 {
		s.journal = append(s.journal, appended{orderID: orderID, row: row, run: rec.RunNumber})
	}
	s.index.Put(orderID, row)
	s.index.AddRun(rec.RunNumber)
	return nil
}

// UpdateStatus sets the status cell of an order. An order missing from the
// index is searched for once and the index backfilled.
func (s *Store) UpdateStatus(ctx context.Context, orderID string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	orderID = strings.TrimSpace(orderID)
	row, ok := s.index.Lookup(orderID)
	if !ok {
		found, err := s.table.FindRow(ctx, orderID)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, orderID)
		}
		if err != nil {
			return fmt.Errorf("finding order %s: %w", orderID, err)
		}
		row = found
		s.index.Put(orderID, row)
	}

	col := s.statusColumn(ctx)
	if err := s.table.UpdateCell(ctx, row, col, string(status)); err != nil {
		return fmt.Errorf("updating status of %s: %w", orderID, err)
	}

	s.index.InvalidateSnapshot()
	return nil
}

// statusColumn locates the status column by header, defaulting to column O
func (s *Store) statusColumn(ctx context.Context) int {
	headers := s.index.Headers()
	if headers == nil {
		raw, err := s.table.Row(ctx, 1)
		if err != nil {
			slog.Warn("Failed to read header row, using default status column", "error", err)
			return ColStatus
		}
		headers = normalizeHeaders(raw)
		s.index.SetHeaders(headers)
	}

	if i := headerIndex(headers, statusHeaders); i >= 0 {
		return i + 1
	}
	return ColStatus
}
