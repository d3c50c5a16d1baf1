package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
)

// MockTransport provides a mock implementation for testing.
type MockTransport struct {
	mu sync.Mutex

	// Response configuration, keyed by path. A path may queue several
	// responses; they are consumed in order, the last one sticking.
	responses map[string][]mockResponse

	// Error injection, keyed by path. Takes precedence over responses.
	errors map[string]error

	// Connectivity
	Online bool

	// Request tracking
	Requests []RecordedRequest

	token      string
	authorizer Authorizer
}

type mockResponse struct {
	status int
	body   interface{}
}

// RecordedRequest tracks one executed request.
type RecordedRequest struct {
	Method string
	Path   string
	Body   interface{}
	Header map[string]string
	Token  string
}

// NewMockTransport creates a mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		responses: make(map[string][]mockResponse),
		errors:    make(map[string]error),
		Online:    true,
	}
}

// AddResponse queues a response for a path.
func (m *MockTransport) AddResponse(path string, status int, body interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[path] = append(m.responses[path], mockResponse{status: status, body: body})
}

// AddError injects a network error for a path.
func (m *MockTransport) AddError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[path] = err
}

// ClearError removes an injected error.
func (m *MockTransport) ClearError(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.errors, path)
}

// Do mocks request execution, including the 401 recovery path.
func (m *MockTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	resp, err := m.exec(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || req.NoAuthRetry {
		return resp, nil
	}

	m.mu.Lock()
	authorizer := m.authorizer
	m.mu.Unlock()

	if authorizer == nil || !authorizer.HandleUnauthorized(ctx) {
		return resp, nil
	}

	return m.exec(req)
}

func (m *MockTransport) exec(req *Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, RecordedRequest{
		Method: req.Method,
		Path:   req.Path,
		Body:   req.Body,
		Header: req.Header,
		Token:  m.token,
	})

	if err := m.errors[req.Path]; err != nil {
		return nil, err
	}

	queued, ok := m.responses[req.Path]
	if !ok || len(queued) == 0 {
		return &Response{StatusCode: http.StatusNotFound, Body: []byte(`{}`)}, nil
	}

	next := queued[0]
	if len(queued) > 1 {
		m.responses[req.Path] = queued[1:]
	}

	body, _ := json.Marshal(next.body)
	if next.body == nil {
		body = []byte(`{}`)
	}

	return &Response{StatusCode: next.status, Body: body}, nil
}

// PostJSON mocks a POST request.
func (m *MockTransport) PostJSON(ctx context.Context, path string, payload interface{}) (*Response, error) {
	return m.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: payload})
}

// Ping mocks the connectivity probe.
func (m *MockTransport) Ping(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Online
}

// SetToken mocks token setting.
func (m *MockTransport) SetToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

// Token returns the current token.
func (m *MockTransport) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// SetAuthorizer wires the 401 recovery hook.
func (m *MockTransport) SetAuthorizer(a Authorizer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authorizer = a
}

// RequestCount returns how many requests hit a path.
func (m *MockTransport) RequestCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, r := range m.Requests {
		if r.Path == path {
			count++
		}
	}
	return count
}

// Close mocks connection closing.
func (m *MockTransport) Close() error {
	return nil
}
