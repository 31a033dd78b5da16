package directory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiltersQueryOmitsInactiveFields(t *testing.T) {
	f := DefaultFilters()
	f.Search = "Priya"
	f.Status = "active"

	q := f.Query()
	assert.Equal(t, "Priya", q.Get("q"))
	assert.Equal(t, "active", q.Get("status"))
	assert.Equal(t, "1", q.Get("page"))
	assert.Equal(t, "10", q.Get("limit"))

	_, hasDeleted := q["deleted"]
	assert.False(t, hasDeleted, "deleted must be omitted entirely when false")
	_, hasCourse := q["course"]
	assert.False(t, hasCourse)
	_, hasFrom := q["joinedFrom"]
	assert.False(t, hasFrom)
}

func TestFiltersQueryDeletedOnlyWhenTrue(t *testing.T) {
	f := DefaultFilters()
	f.ShowDeleted = true
	assert.Equal(t, "true", f.Query().Get("deleted"))
}

func TestFiltersQueryDateFormat(t *testing.T) {
	f := DefaultFilters()
	f.JoinedFrom = time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	f.JoinedTo = time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)

	q := f.Query()
	assert.Equal(t, "2026-03-01", q.Get("joinedFrom"))
	assert.Equal(t, "2026-06-30", q.Get("joinedTo"))
}

func TestFiltersQueryNormalizesPagination(t *testing.T) {
	f := Filters{Page: 0, Limit: 37}
	q := f.Query()
	assert.Equal(t, "1", q.Get("page"))
	assert.Equal(t, "10", q.Get("limit"))

	f = Filters{Page: 3, Limit: 50}
	q = f.Query()
	assert.Equal(t, "3", q.Get("page"))
	assert.Equal(t, "50", q.Get("limit"))
}

func TestActiveFilterCount(t *testing.T) {
	f := DefaultFilters()
	require.Equal(t, 0, f.ActiveFilterCount())

	f.Search = "anything"
	assert.Equal(t, 0, f.ActiveFilterCount(), "search does not count as a structured filter")

	f.Course = "physics"
	f.Status = "active"
	f.ShowDeleted = true
	assert.Equal(t, 3, f.ActiveFilterCount())

	f.JoinedFrom = time.Now()
	f.JoinedTo = time.Now()
	assert.Equal(t, 5, f.ActiveFilterCount())
}
