package models

import (
	"errors"
	"fmt"
)

// Error codes for structured error handling.
const (
	ErrCodeAuth        = "AUTH_ERROR"
	ErrCodeNetwork     = "NETWORK_ERROR"
	ErrCodeQueue       = "QUEUE_ERROR"
	ErrCodePayload     = "PAYLOAD_ERROR"
	ErrCodeConfig      = "CONFIG_ERROR"
	ErrCodeServerError = "SERVER_ERROR"
)

// Sentinel errors
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrSyncInProgress   = errors.New("sync already in progress")
	ErrWorkerStopped    = errors.New("sync worker stopped")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrRefreshFailed    = errors.New("token refresh failed")
	ErrOffline          = errors.New("backend unreachable")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrUnknownItemType  = errors.New("unknown item type")
)

// APIError represents an error response from the API.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
	RequestID  string `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// SyncError provides detailed per-item failure information.
type SyncError struct {
	Code   string
	ItemID string
	Type   ItemType
	Err    error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync item %s [%s] (%s): %v", e.ItemID, e.Code, e.Type, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// PayloadError represents an undecodable item payload.
type PayloadError struct {
	ItemID string
	Type   ItemType
	Err    error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("payload for item %s (%s): %v", e.ItemID, e.Type, e.Err)
}

func (e *PayloadError) Unwrap() error {
	return ErrMalformedPayload
}
