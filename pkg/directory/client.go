// Package directory is the Go client SDK for the GuideXpert counsellor API.
// It wraps the students endpoints behind typed operations, normalises every
// failure into a CallError and keeps list/filter/selection state for
// portal-style consumers.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrorKind classifies a failed call.
type ErrorKind string

const (
	// KindNetwork means the request never reached the server.
	KindNetwork ErrorKind = "network"
	// KindServer means the server answered with a non-2xx status.
	KindServer ErrorKind = "server"
	// KindDecode means the response body could not be parsed.
	KindDecode ErrorKind = "decode"
)

const (
	networkErrMessage = "could not reach the server, please check your connection"
	decodeErrMessage  = "received an invalid response from the server"
)

// CallError is the only error type returned by Client operations.
type CallError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *CallError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *CallError) Unwrap() error { return e.Err }

func networkError(err error) *CallError {
	return &CallError{Kind: KindNetwork, Message: networkErrMessage, Err: err}
}

func decodeError(err error) *CallError {
	return &CallError{Kind: KindDecode, Message: decodeErrMessage, Err: err}
}

// TokenSource supplies the bearer token for each call. Implementations are
// consulted at call time, never cached, so a rotated token takes effect on
// the next request.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource returning a fixed token. Useful for scripts
// and tests.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token() (string, error) { return string(t), nil }

// Student mirrors the API's student resource.
type Student struct {
	ID        string     `json:"id"`
	FullName  string     `json:"fullName"`
	Phone     string     `json:"phone"`
	Course    string     `json:"course"`
	Email     *string    `json:"email,omitempty"`
	Status    string     `json:"status"`
	JoinedAt  time.Time  `json:"joinedAt"`
	Notes     *string    `json:"notes,omitempty"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// IsDeleted reports whether the row is soft deleted.
func (s Student) IsDeleted() bool { return s.DeletedAt != nil }

// CreateStudent is the payload for registering a student.
type CreateStudent struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Course   string `json:"course"`
	Email    string `json:"email,omitempty"`
	Status   string `json:"status,omitempty"`
	JoinedAt string `json:"joinedAt,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// StudentPatch carries a partial update. Nil fields are left untouched.
// JoinedAt uses the same YYYY-MM-DD format as CreateStudent.
type StudentPatch struct {
	FullName *string `json:"fullName,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Course   *string `json:"course,omitempty"`
	Email    *string `json:"email,omitempty"`
	Status   *string `json:"status,omitempty"`
	JoinedAt *string `json:"joinedAt,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

// ListResult is a fetched page of students.
type ListResult struct {
	Data  []Student
	Total int
}

// ExportFile holds an exported roster payload.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Client calls the counsellor students API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a Client for the given API base URL, e.g.
// "https://api.guidexpert.example/api/v1".
func NewClient(baseURL string, tokens TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Total *int                   `json:"total"`
	Meta  map[string]interface{} `json:"meta"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}) (*envelope, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, decodeError(err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, networkError(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, networkError(err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, networkError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkError(err)
	}

	if resp.StatusCode >= 400 {
		message := http.StatusText(resp.StatusCode)
		var env envelope
		if json.Unmarshal(raw, &env) == nil && env.Error != nil && env.Error.Message != "" {
			message = env.Error.Message
		}
		return nil, &CallError{Kind: KindServer, Status: resp.StatusCode, Message: message}
	}

	if resp.StatusCode == http.StatusNoContent || len(raw) == 0 {
		return &envelope{}, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, decodeError(err)
	}
	return &env, nil
}

func (c *Client) doInto(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	env, err := c.do(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return decodeError(err)
	}
	return nil
}

// List fetches one page of students matching the filters.
func (c *Client) List(ctx context.Context, filters Filters) (*ListResult, error) {
	env, err := c.do(ctx, http.MethodGet, "/counsellor/students", filters.Query(), nil)
	if err != nil {
		return nil, err
	}
	result := &ListResult{Data: []Student{}}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &result.Data); err != nil {
			return nil, decodeError(err)
		}
	}
	if env.Total != nil {
		result.Total = *env.Total
	}
	return result, nil
}

// Get fetches a single student, soft-deleted rows included.
func (c *Client) Get(ctx context.Context, id string) (*Student, error) {
	var student Student
	if err := c.doInto(ctx, http.MethodGet, "/counsellor/students/"+url.PathEscape(id), nil, nil, &student); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create registers a new student. The server assigns id and timestamps.
func (c *Client) Create(ctx context.Context, payload CreateStudent) (*Student, error) {
	var student Student
	if err := c.doInto(ctx, http.MethodPost, "/counsellor/students", nil, payload, &student); err != nil {
		return nil, err
	}
	return &student, nil
}

// Update applies a partial update and returns the fresh server copy.
func (c *Client) Update(ctx context.Context, id string, patch StudentPatch) (*Student, error) {
	var student Student
	if err := c.doInto(ctx, http.MethodPatch, "/counsellor/students/"+url.PathEscape(id), nil, patch, &student); err != nil {
		return nil, err
	}
	return &student, nil
}

// Delete soft-deletes a student. The row stays retrievable with ShowDeleted.
func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/counsellor/students/"+url.PathEscape(id), nil, nil)
	return err
}

// Restore clears a student's soft-delete marker. Restoring an already
// restored row succeeds.
func (c *Client) Restore(ctx context.Context, id string) (*Student, error) {
	var student Student
	if err := c.doInto(ctx, http.MethodPost, "/counsellor/students/"+url.PathEscape(id)+"/restore", nil, nil, &student); err != nil {
		return nil, err
	}
	return &student, nil
}

type bulkStatusPayload struct {
	IDs    []string `json:"ids"`
	Status string   `json:"status"`
}

type bulkDeletePayload struct {
	IDs []string `json:"ids"`
}

// BulkStatus applies a status to every listed id in one call.
func (c *Client) BulkStatus(ctx context.Context, ids []string, status string) (int, error) {
	env, err := c.do(ctx, http.MethodPatch, "/counsellor/students/bulk/status", nil, bulkStatusPayload{IDs: ids, Status: status})
	if err != nil {
		return 0, err
	}
	return affectedFromMeta(env), nil
}

// BulkDelete soft-deletes every listed id in one call.
func (c *Client) BulkDelete(ctx context.Context, ids []string) (int, error) {
	env, err := c.do(ctx, http.MethodDelete, "/counsellor/students/bulk", nil, bulkDeletePayload{IDs: ids})
	if err != nil {
		return 0, err
	}
	return affectedFromMeta(env), nil
}

func affectedFromMeta(env *envelope) int {
	if env.Meta == nil {
		return 0
	}
	if v, ok := env.Meta["affected"].(float64); ok {
		return int(v)
	}
	return 0
}

// Export downloads the full filtered roster as CSV. Pagination is ignored
// server-side. The filename comes from Content-Disposition when present,
// otherwise a timestamped default is used.
func (c *Client) Export(ctx context.Context, filters Filters) (*ExportFile, error) {
	endpoint := c.baseURL + "/counsellor/students/export"
	query := filters.Query()
	query.Del("page")
	query.Del("limit")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, networkError(err)
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, networkError(err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, networkError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkError(err)
	}
	if resp.StatusCode >= 400 {
		message := http.StatusText(resp.StatusCode)
		var env envelope
		if json.Unmarshal(raw, &env) == nil && env.Error != nil && env.Error.Message != "" {
			message = env.Error.Message
		}
		return nil, &CallError{Kind: KindServer, Status: resp.StatusCode, Message: message}
	}

	filename := exportFilename(resp.Header.Get("Content-Disposition"))
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/csv"
	}
	return &ExportFile{Filename: filename, ContentType: contentType, Data: raw}, nil
}

func exportFilename(disposition string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := params["filename"]; name != "" {
				return name
			}
		}
	}
	return fmt.Sprintf("students-%s.csv", time.Now().UTC().Format("20060102-150405"))
}
