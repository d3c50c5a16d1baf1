package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kirakosyanara/gropos-sub007/internal/config"
	"github.com/kirakosyanara/gropos-sub007/internal/events"
	"github.com/kirakosyanara/gropos-sub007/internal/models"
)

// Request describes one authenticated API call.
type Request struct {
	Method string
	Path   string
	Body   interface{}

	// Extra headers, e.g. an idempotency key.
	Header map[string]string

	// NoAuthRetry disables the 401 refresh-and-retry path. Auth
	// endpoints set it so a refresh call can never recurse into
	// another refresh.
	NoAuthRetry bool
}

// Response is the outcome of a call that reached the server. A status
// code is data for the caller to classify, never a Go error; errors are
// reserved for failures that produced no HTTP status at all.
type Response struct {
	StatusCode int
	Body       []byte
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// DecodeJSON unmarshals the response body.
func (r *Response) DecodeJSON(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// APIError parses a structured error body, falling back to a bare
// status-code error.
func (r *Response) APIError() *models.APIError {
	var apiErr models.APIError
	if err := json.Unmarshal(r.Body, &apiErr); err == nil && apiErr.Message != "" {
		apiErr.StatusCode = r.StatusCode
		return &apiErr
	}
	return &models.APIError{
		Code:       models.ErrCodeServerError,
		Message:    http.StatusText(r.StatusCode),
		StatusCode: r.StatusCode,
	}
}

// Authorizer is consulted when a call fails with 401. It reports
// whether the credential was refreshed and the call is worth one
// re-issue. The token refresh manager implements it.
type Authorizer interface {
	HandleUnauthorized(ctx context.Context) bool
}

// Transport issues authenticated API calls.
type Transport interface {
	// Do executes one request, applying the single 401
	// refresh-and-retry described on HTTPClient.
	Do(ctx context.Context, req *Request) (*Response, error)

	// PostJSON is shorthand for a POST request.
	PostJSON(ctx context.Context, path string, payload interface{}) (*Response, error)

	// Ping probes backend connectivity. Any HTTP response counts as
	// reachable.
	Ping(ctx context.Context) bool

	// Authentication
	SetToken(token string)
	Token() string
	SetAuthorizer(a Authorizer)

	// Lifecycle
	Close() error
}

// NewTransport creates the default HTTP transport.
func NewTransport(cfg *config.APIConfig, logger *events.Logger) Transport {
	return NewHTTPClient(cfg, logger)
}
