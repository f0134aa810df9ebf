package ferresdbtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
)

// MockTransport is an http.RoundTripper that records requests and returns
// configured responses. Useful for testing client behavior without a server.
type MockTransport struct {
	mu        sync.Mutex
	requests  []RecordedRequest
	responses []*http.Response
	errors    []error
	index     int
}

// NewMockTransport creates a new MockTransport.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Client returns an HTTP client that sends every request through mt.
func (mt *MockTransport) Client() *http.Client {
	return &http.Client{Transport: mt}
}

// AddResponse adds a response (or transport error) to be returned by the next request.
func (mt *MockTransport) AddResponse(resp *http.Response, err error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.responses = append(mt.responses, resp)
	mt.errors = append(mt.errors, err)
}

// AddJSONResponse is a helper to add a JSON response.
func (mt *MockTransport) AddJSONResponse(status int, body any) {
	data, _ := json.Marshal(body)
	mt.AddRawResponse(status, string(data))
}

// AddRawResponse adds a response with a verbatim body.
func (mt *MockTransport) AddRawResponse(status int, body string) {
	resp := &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
	resp.Header.Set("Content-Type", "application/json")
	mt.AddResponse(resp, nil)
}

// AddError adds a response carrying the documented error body.
func (mt *MockTransport) AddError(status int, code, message string) {
	mt.AddJSONResponse(status, map[string]any{
		"error":   code,
		"message": message,
		"code":    status,
	})
}

// Requests returns all recorded requests.
func (mt *MockTransport) Requests() []RecordedRequest {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return slices.Clone(mt.requests)
}

// RoundTrip implements http.RoundTripper.
func (mt *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()

	mt.requests = append(mt.requests, RecordedRequest{
		Method: req.Method,
		Path:   req.URL.Path,
		Query:  req.URL.RawQuery,
		Header: req.Header.Clone(),
		Body:   bytes.Clone(body),
	})

	if mt.index >= len(mt.responses) {
		return nil, fmt.Errorf("no more mock responses configured")
	}

	resp := mt.responses[mt.index]
	err := mt.errors[mt.index]
	mt.index++

	if resp != nil {
		resp.Request = req
	}
	return resp, err
}

// Reset clears all recorded requests and responses.
func (mt *MockTransport) Reset() {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.requests = nil
	mt.responses = nil
	mt.errors = nil
	mt.index = 0
}
