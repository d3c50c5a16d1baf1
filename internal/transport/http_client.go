package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"

	"github.com/kirakosyanara/gropos-sub007/internal/config"
	"github.com/kirakosyanara/gropos-sub007/internal/events"
)

// HTTPClient executes authenticated HTTP calls against the API.
//
// It attaches the device credential and the current bearer token, read
// fresh on every call so a just-refreshed token is always used. On a
// 401 it asks the authorizer to refresh once and re-issues the request
// once; any further retry policy belongs to the sync handler and
// worker, not here.
type HTTPClient struct {
	client    *http.Client
	baseURL   string
	userAgent string
	deviceID  string
	logger    *events.Logger

	mu         sync.RWMutex
	token      string
	authorizer Authorizer
}

// NewHTTPClient creates an HTTP client.
func NewHTTPClient(cfg *config.APIConfig, logger *events.Logger) *HTTPClient {
	// Create transport with HTTP/2 support
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			NextProtos: []string{"h2", "http/1.1"},
		},
	}

	if err := http2.ConfigureTransport(transport); err != nil {
		logger.WithError(err).Warn("Failed to configure HTTP/2")
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		deviceID:  cfg.DeviceID,
		logger:    logger.WithField("component", "http_client"),
	}
}

// SetToken sets the bearer token used on subsequent calls.
func (c *HTTPClient) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token.
func (c *HTTPClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetAuthorizer wires the 401 recovery hook.
func (c *HTTPClient) SetAuthorizer(a Authorizer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authorizer = a
}

// Do executes one request with the single 401 recovery attempt.
func (c *HTTPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || req.NoAuthRetry {
		return resp, nil
	}

	c.mu.RLock()
	authorizer := c.authorizer
	c.mu.RUnlock()

	if authorizer == nil {
		return resp, nil
	}

	c.logger.WithField("path", req.Path).Debug("Unauthorized, attempting token refresh")

	if !authorizer.HandleUnauthorized(ctx) {
		// Refresh failed; surface the original 401 unchanged.
		return resp, nil
	}

	return c.send(ctx, req)
}

// PostJSON sends a JSON POST request.
func (c *HTTPClient) PostJSON(ctx context.Context, path string, payload interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: payload})
}

// Ping probes backend connectivity.
func (c *HTTPClient) Ping(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/ping", nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WithError(err).Debug("Ping failed")
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return true
}

// send issues a single HTTP exchange.
func (c *HTTPClient) send(ctx context.Context, req *Request) (*Response, error) {
	url := c.baseURL + req.Path

	var body io.Reader
	var size int
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
		size = len(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if c.deviceID != "" {
		httpReq.Header.Set("X-Device-ID", c.deviceID)
	}
	// Token read at send time, not request-build time.
	if token := c.Token(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}

	c.logger.WithFields(map[string]interface{}{
		"method": req.Method,
		"url":    url,
		"size":   size,
	}).Debug("Sending request")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"status": httpResp.StatusCode,
		"size":   len(respBody),
	}).Debug("Received response")

	return &Response{
		StatusCode: httpResp.StatusCode,
		Body:       respBody,
	}, nil
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
