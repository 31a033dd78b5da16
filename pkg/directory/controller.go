package directory

import (
	"context"
	"sync"
	"time"
)

// listAPI is the slice of the client the controller consumes.
type listAPI interface {
	List(ctx context.Context, filters Filters) (*ListResult, error)
	Delete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) (*Student, error)
	BulkStatus(ctx context.Context, ids []string, status string) (int, error)
	BulkDelete(ctx context.Context, ids []string) (int, error)
}

// DefaultSearchDebounce is the quiet period applied to search input before
// a request is issued.
const DefaultSearchDebounce = 300 * time.Millisecond

// ListController keeps one page of the roster consistent with the current
// filters. All filter mutations go through explicit setters; each one issues
// exactly one list request. Responses carry a sequence number so a slow,
// superseded request can never overwrite a newer page.
//
// Any non-page filter change resets the page to 1, and every refetch clears
// the selection: selection is scoped to the displayed page.
type ListController struct {
	api      listAPI
	ctx      context.Context
	debounce time.Duration

	mu          sync.Mutex
	filters     Filters
	searchRaw   string
	searchTimer *time.Timer

	seq     uint64
	rows    []Student
	total   int
	loading bool
	lastErr error

	selection        map[string]struct{}
	bulkDeleteStaged bool
	rowDeleteStaged  string

	onChange func()
}

// ControllerOption customises a ListController.
type ControllerOption func(*ListController)

// WithDebounce overrides the search quiet period. Zero or negative applies
// search input immediately.
func WithDebounce(d time.Duration) ControllerOption {
	return func(c *ListController) { c.debounce = d }
}

// WithContext sets the context used for requests issued by the controller.
func WithContext(ctx context.Context) ControllerOption {
	return func(c *ListController) { c.ctx = ctx }
}

// NewListController builds a controller over the given API. Call Reload to
// fetch the initial page.
func NewListController(api listAPI, opts ...ControllerOption) *ListController {
	c := &ListController{
		api:       api,
		ctx:       context.Background(),
		debounce:  DefaultSearchDebounce,
		filters:   DefaultFilters(),
		selection: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnChange registers a callback fired after every applied state change,
// including request completions.
func (c *ListController) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *ListController) notify() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Filters returns a copy of the applied filters.
func (c *ListController) Filters() Filters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filters
}

// SearchText returns the raw, not yet debounced search input.
func (c *ListController) SearchText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.searchRaw
}

// Rows returns the displayed page.
func (c *ListController) Rows() []Student {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows := make([]Student, len(c.rows))
	copy(rows, c.rows)
	return rows
}

// Total returns the matching row count across all pages.
func (c *ListController) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Loading reports whether a list request is outstanding.
func (c *ListController) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Err returns the failure of the most recent completed request, if any.
func (c *ListController) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// SetSearch records the raw input immediately and applies it to the filters
// once it has been stable for the quiet period. Applying search resets the
// page to 1.
func (c *ListController) SetSearch(text string) {
	c.mu.Lock()
	c.searchRaw = text
	if c.searchTimer != nil {
		c.searchTimer.Stop()
		c.searchTimer = nil
	}
	if c.debounce <= 0 {
		c.applySearchLocked(text)
		c.mu.Unlock()
		c.notify()
		return
	}
	c.searchTimer = time.AfterFunc(c.debounce, func() {
		c.mu.Lock()
		if c.searchRaw != text {
			c.mu.Unlock()
			return
		}
		c.applySearchLocked(text)
		c.mu.Unlock()
		c.notify()
	})
	c.mu.Unlock()
	c.notify()
}

func (c *ListController) applySearchLocked(text string) {
	c.filters.Search = text
	c.filters.Page = 1
	c.fetchLocked()
}

// SetCourse applies a course filter; empty clears it.
func (c *ListController) SetCourse(course string) {
	c.applyFilter(func(f *Filters) { f.Course = course })
}

// SetStatus applies a status filter; empty clears it.
func (c *ListController) SetStatus(status string) {
	c.applyFilter(func(f *Filters) { f.Status = status })
}

// SetJoinedRange applies joined-date bounds; zero times disable a bound.
func (c *ListController) SetJoinedRange(from, to time.Time) {
	c.applyFilter(func(f *Filters) {
		f.JoinedFrom = from
		f.JoinedTo = to
	})
}

// SetShowDeleted toggles inclusion of soft-deleted rows.
func (c *ListController) SetShowDeleted(show bool) {
	c.applyFilter(func(f *Filters) { f.ShowDeleted = show })
}

// SetLimit changes the page size. Unknown sizes fall back to the default.
func (c *ListController) SetLimit(limit int) {
	c.applyFilter(func(f *Filters) { f.Limit = normalizeLimit(limit) })
}

func (c *ListController) applyFilter(mutate func(*Filters)) {
	c.mu.Lock()
	mutate(&c.filters)
	c.filters.Page = 1
	c.fetchLocked()
	c.mu.Unlock()
	c.notify()
}

// SetPage moves to the given 1-based page.
func (c *ListController) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	c.mu.Lock()
	c.filters.Page = page
	c.fetchLocked()
	c.mu.Unlock()
	c.notify()
}

// ResetFilters restores every filter to its default in one step, including
// page 1, and refetches.
func (c *ListController) ResetFilters() {
	c.mu.Lock()
	c.searchRaw = ""
	if c.searchTimer != nil {
		c.searchTimer.Stop()
		c.searchTimer = nil
	}
	c.filters = DefaultFilters()
	c.fetchLocked()
	c.mu.Unlock()
	c.notify()
}

// Reload refetches the current page with the current filters.
func (c *ListController) Reload() {
	c.mu.Lock()
	c.fetchLocked()
	c.mu.Unlock()
	c.notify()
}

// fetchLocked issues one list request for the current filters. Callers must
// hold the mutex. The response is applied only if no newer request has been
// issued meanwhile.
func (c *ListController) fetchLocked() {
	c.seq++
	mine := c.seq
	c.loading = true
	c.selection = make(map[string]struct{})
	c.bulkDeleteStaged = false
	filters := c.filters

	go func() {
		result, err := c.api.List(c.ctx, filters)

		c.mu.Lock()
		if mine != c.seq {
			c.mu.Unlock()
			return
		}
		if err != nil {
			c.rows = nil
			c.total = 0
			c.lastErr = err
		} else {
			c.rows = result.Data
			c.total = result.Total
			c.lastErr = nil
		}
		c.loading = false
		c.mu.Unlock()
		c.notify()
	}()
}

// RestoreRow clears a row's soft-delete marker and refetches. No
// confirmation step: restore is non-destructive and idempotent.
func (c *ListController) RestoreRow(id string) error {
	if _, err := c.api.Restore(c.ctx, id); err != nil {
		return err
	}
	c.Reload()
	return nil
}

// RequestDeleteRow stages a single-row delete pending confirmation.
func (c *ListController) RequestDeleteRow(id string) {
	c.mu.Lock()
	c.rowDeleteStaged = id
	c.mu.Unlock()
	c.notify()
}

// RowDeletePending returns the staged row id, empty when nothing is staged.
func (c *ListController) RowDeletePending() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rowDeleteStaged
}

// ConfirmDeleteRow performs the staged soft-delete and refetches.
func (c *ListController) ConfirmDeleteRow() error {
	c.mu.Lock()
	id := c.rowDeleteStaged
	c.rowDeleteStaged = ""
	c.mu.Unlock()
	if id == "" {
		return nil
	}
	if err := c.api.Delete(c.ctx, id); err != nil {
		return err
	}
	c.Reload()
	return nil
}

// CancelDeleteRow discards the staged row delete.
func (c *ListController) CancelDeleteRow() {
	c.mu.Lock()
	c.rowDeleteStaged = ""
	c.mu.Unlock()
	c.notify()
}
