// Package testutil provides testing utilities for the marketplace gateway.
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock backend response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is a request seen by the mock backend.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   string
}

// MockBackend is a configurable mock of the commerce REST API.
type MockBackend struct {
	server *httptest.Server

	mu        sync.Mutex
	sequences map[string][]MockResponse // key: "METHOD path" or "path"
	calls     map[string]int
	requests  []RecordedRequest
}

// NewMockBackend creates a new mock backend server.
func NewMockBackend() *MockBackend {
	mock := &MockBackend{
		sequences: make(map[string][]MockResponse),
		calls:     make(map[string]int),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockBackend) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockBackend) Close() {
	m.server.Close()
}

// Reset clears responses and tracking.
func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequences = make(map[string][]MockResponse)
	m.calls = make(map[string]int)
	m.requests = nil
}

// SetResponse configures the response for every request to path.
func (m *MockBackend) SetResponse(path string, resp MockResponse) {
	m.SetSequence(path, resp)
}

// SetSequence configures successive responses for path. The last response
// repeats once the sequence is used up. The path may be prefixed with a
// method ("PUT /wc/v3/orders/1") to match only that method.
func (m *MockBackend) SetSequence(path string, resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequences[path] = resps
}

// RequestCount returns the total number of requests received.
func (m *MockBackend) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// CallCount returns the number of requests received for path.
func (m *MockBackend) CallCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[path]
}

// Requests returns a copy of the recorded requests.
func (m *MockBackend) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// LastRequest returns the most recent request, if any.
func (m *MockBackend) LastRequest() (RecordedRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return RecordedRequest{}, false
	}
	return m.requests[len(m.requests)-1], true
}

func (m *MockBackend) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   string(body),
	})
	m.calls[r.URL.Path]++

	key := r.Method + " " + r.URL.Path
	seq, ok := m.sequences[key]
	if !ok {
		key = r.URL.Path
		seq, ok = m.sequences[key]
	}
	var resp MockResponse
	if ok && len(seq) > 0 {
		resp = seq[0]
		if len(seq) > 1 {
			m.sequences[key] = seq[1:]
		}
	}
	m.mu.Unlock()

	if !ok {
		m.defaultHandler(w, r)
		return
	}

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// defaultHandler answers unknown paths like the WordPress REST API does.
func (m *MockBackend) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprintf(w, `{"code":"rest_no_route","message":"No route was found matching the URL and request method.","data":{"status":404}}`)
}

// NewJSONResponse creates a 200 OK response with the given JSON body.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
	}
}

// NewPagedResponse creates a 200 OK list response with WooCommerce paging headers.
func NewPagedResponse(body string, total, totalPages int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"X-WP-Total":      fmt.Sprintf("%d", total),
			"X-WP-TotalPages": fmt.Sprintf("%d", totalPages),
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"code":"internal_server_error","message":"There has been a critical error on this website.","data":{"status":500}}`,
	}
}

// NewInvalidNonceResponse creates the 401 the backend sends for an expired nonce.
func NewInvalidNonceResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"code":"rest_cookie_invalid_nonce","message":"Cookie check failed","data":{"status":403}}`,
	}
}

// NewValidationErrorResponse creates a 422 with field-level parameters.
func NewValidationErrorResponse(field, message string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnprocessableEntity,
		Body: fmt.Sprintf(`{"code":"rest_invalid_param","message":"Invalid parameter(s): %s","data":{"status":422,"params":{%q:%q}}}`,
			field, field, message),
	}
}

// NewSlowResponse wraps resp with a delay.
func NewSlowResponse(resp MockResponse, delay time.Duration) MockResponse {
	resp.Delay = delay
	return resp
}
