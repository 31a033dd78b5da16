package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, StaticToken("test-token")), srv
}

func TestClientListParsesDataAndTotal(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/counsellor/students", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"s-1","fullName":"Priya Nair","phone":"9876543210","course":"physics","status":"active"}],"total":41}`))
	}))

	result, err := client.List(context.Background(), DefaultFilters())
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.Equal(t, "s-1", result.Data[0].ID)
	assert.Equal(t, "Priya Nair", result.Data[0].FullName)
	assert.Equal(t, 41, result.Total)
}

func TestClientListSendsFilterQuery(t *testing.T) {
	var gotQuery map[string][]string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"data":[],"total":0}`))
	}))

	f := DefaultFilters()
	f.Search = "Priya"
	f.Status = "active"
	_, err := client.List(context.Background(), f)
	require.NoError(t, err)

	assert.Equal(t, []string{"Priya"}, gotQuery["q"])
	assert.Equal(t, []string{"active"}, gotQuery["status"])
	_, hasDeleted := gotQuery["deleted"]
	assert.False(t, hasDeleted)
}

func TestClientServerErrorSurfacesMessageVerbatim(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"ROW_DELETED","message":"record is deleted and must be restored first"}}`))
	}))

	_, err := client.Get(context.Background(), "s-1")
	require.Error(t, err)

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, KindServer, callErr.Kind)
	assert.Equal(t, http.StatusConflict, callErr.Status)
	assert.Equal(t, "record is deleted and must be restored first", callErr.Message)
}

func TestClientDecodeErrorOnMalformedBody(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": not json`))
	}))

	_, err := client.Get(context.Background(), "s-1")
	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, KindDecode, callErr.Kind)
	assert.Equal(t, decodeErrMessage, callErr.Message)
}

func TestClientNetworkErrorOnUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(url, StaticToken("t"))
	_, err := client.List(context.Background(), DefaultFilters())

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, KindNetwork, callErr.Kind)
	assert.Equal(t, networkErrMessage, callErr.Message)
}

type rotatingToken struct {
	mu    sync.Mutex
	token string
}

func (r *rotatingToken) Token() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token, nil
}

func TestClientReadsTokenAtCallTime(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[],"total":0}`))
	}))
	defer srv.Close()

	source := &rotatingToken{token: "first"}
	client := NewClient(srv.URL, source)

	_, err := client.List(context.Background(), DefaultFilters())
	require.NoError(t, err)

	source.mu.Lock()
	source.token = "second"
	source.mu.Unlock()

	_, err = client.List(context.Background(), DefaultFilters())
	require.NoError(t, err)

	require.Equal(t, []string{"Bearer first", "Bearer second"}, seen)
}

func TestClientExportUsesContentDispositionFilename(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasPage := r.URL.Query()["page"]
		assert.False(t, hasPage, "export must not paginate")
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=students-20260831-120000.csv")
		_, _ = w.Write([]byte("ID,Full Name\n"))
	}))

	file, err := client.Export(context.Background(), DefaultFilters())
	require.NoError(t, err)
	assert.Equal(t, "students-20260831-120000.csv", file.Filename)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.NotEmpty(t, file.Data)
}

// rosterHandler is a minimal in-memory students endpoint used for the
// round-trip test.
type rosterHandler struct {
	mu       sync.Mutex
	students []Student
	nextID   int
}

func (h *rosterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodPost:
		var payload CreateStudent
		_ = json.NewDecoder(r.Body).Decode(&payload)
		h.nextID++
		student := Student{
			ID:       fmt.Sprintf("s-%d", h.nextID),
			FullName: payload.FullName,
			Phone:    payload.Phone,
			Course:   payload.Course,
			Status:   "active",
			JoinedAt: time.Now(),
		}
		h.students = append(h.students, student)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": student})
	case http.MethodGet:
		course := r.URL.Query().Get("course")
		matches := []Student{}
		for _, s := range h.students {
			if course == "" || s.Course == course {
				matches = append(matches, s)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": matches, "total": len(matches)})
	}
}

func TestClientCreateThenListByCourseRoundTrip(t *testing.T) {
	client, _ := newTestClient(t, &rosterHandler{})

	created, err := client.Create(context.Background(), CreateStudent{
		FullName: "Arjun Mehta",
		Phone:    "9876543210",
		Course:   "ielts-prep",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	f := DefaultFilters()
	f.Course = "ielts-prep"
	result, err := client.List(context.Background(), f)
	require.NoError(t, err)

	ids := make([]string, 0, len(result.Data))
	for _, s := range result.Data {
		ids = append(ids, s.ID)
	}
	assert.Contains(t, ids, created.ID)
}
