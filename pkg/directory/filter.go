package directory

import (
	"net/url"
	"strconv"
	"time"
)

// PageSizes are the allowed page sizes for list requests.
var PageSizes = []int{10, 25, 50, 100}

// DefaultPageSize is used when no explicit limit has been picked.
const DefaultPageSize = 10

// Filters describes which subset of the roster is being viewed. Zero values
// mean the filter is inactive; a zero time disables the corresponding date
// bound.
type Filters struct {
	Search      string
	Course      string
	Status      string
	JoinedFrom  time.Time
	JoinedTo    time.Time
	ShowDeleted bool
	Page        int
	Limit       int
}

// DefaultFilters returns the initial view: page 1, default page size, no
// active filters, deleted rows hidden.
func DefaultFilters() Filters {
	return Filters{Page: 1, Limit: DefaultPageSize}
}

// ActiveFilterCount counts the structured filters currently narrowing the
// view. Search and pagination do not count.
func (f Filters) ActiveFilterCount() int {
	count := 0
	if f.Course != "" {
		count++
	}
	if f.Status != "" {
		count++
	}
	if !f.JoinedFrom.IsZero() {
		count++
	}
	if !f.JoinedTo.IsZero() {
		count++
	}
	if f.ShowDeleted {
		count++
	}
	return count
}

// Query serialises the filters as list query parameters. Inactive filters
// are omitted entirely; deleted appears only when soft-deleted rows are
// requested.
func (f Filters) Query() url.Values {
	v := url.Values{}
	page := f.Page
	if page < 1 {
		page = 1
	}
	v.Set("page", strconv.Itoa(page))
	v.Set("limit", strconv.Itoa(normalizeLimit(f.Limit)))
	if f.Search != "" {
		v.Set("q", f.Search)
	}
	if f.Course != "" {
		v.Set("course", f.Course)
	}
	if f.Status != "" {
		v.Set("status", f.Status)
	}
	if !f.JoinedFrom.IsZero() {
		v.Set("joinedFrom", f.JoinedFrom.Format("2006-01-02"))
	}
	if !f.JoinedTo.IsZero() {
		v.Set("joinedTo", f.JoinedTo.Format("2006-01-02"))
	}
	if f.ShowDeleted {
		v.Set("deleted", "true")
	}
	return v
}

func normalizeLimit(limit int) int {
	for _, size := range PageSizes {
		if limit == size {
			return limit
		}
	}
	return DefaultPageSize
}
