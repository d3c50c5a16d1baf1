package models

import (
	"encoding/json"
	"time"
)

// ItemType identifies the kind of outbound work a queued item carries.
// The sync handler dispatches on it to pick the right sender.
type ItemType string

const (
	ItemTransaction   ItemType = "transaction"
	ItemReturn        ItemType = "return"
	ItemAdjustment    ItemType = "adjustment"
	ItemClockEvent    ItemType = "clock_event"
	ItemApprovalAudit ItemType = "approval_audit"
)

// QueuedItem is one unit of outbound work awaiting delivery. The engine
// treats Payload as opaque; only the per-type sender interprets it.
type QueuedItem struct {
	ID         string          `json:"id"`
	Type       ItemType        `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}

// Verdict is the outcome class of one sync attempt.
type Verdict int

const (
	// VerdictSuccess removes the item permanently; it reached the backend
	// (or the backend already held it).
	VerdictSuccess Verdict = iota

	// VerdictRetry keeps the item queued and increments its attempt count.
	VerdictRetry

	// VerdictAbandon removes the item permanently without delivery. This is
	// a deliberate data-loss decision for payloads that can never succeed.
	VerdictAbandon
)

func (v Verdict) String() string {
	switch v {
	case VerdictSuccess:
		return "success"
	case VerdictRetry:
		return "retry"
	case VerdictAbandon:
		return "abandon"
	default:
		return "unknown"
	}
}

// ProcessResult is the sealed outcome of processing one queued item.
type ProcessResult struct {
	Verdict Verdict
	Reason  string
}

// Success reports a delivered item.
func Success() ProcessResult {
	return ProcessResult{Verdict: VerdictSuccess}
}

// Retry keeps the item for a later drain cycle.
func Retry(reason string) ProcessResult {
	return ProcessResult{Verdict: VerdictRetry, Reason: reason}
}

// Abandon drops the item permanently.
func Abandon(reason string) ProcessResult {
	return ProcessResult{Verdict: VerdictAbandon, Reason: reason}
}

// SyncOutcome summarizes one drain cycle.
type SyncOutcome struct {
	Success     bool      `json:"success"`
	ItemsSynced int       `json:"items_synced"`
	Remaining   int       `json:"remaining"`
	Errors      []string  `json:"errors,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// SyncWorkerState is the observable state of the sync worker. It is
// mutated only by the worker loop.
type SyncWorkerState struct {
	IsRunning           bool      `json:"is_running"`
	IsSyncing           bool      `json:"is_syncing"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSyncAt          time.Time `json:"last_sync_at"`
	PendingItems        int       `json:"pending_items"`
}
