package queue

import (
	"context"
	"errors"

	"github.com/kirakosyanara/gropos-sub007/internal/models"
)

// Handler processes one queued item and returns its verdict.
type Handler func(ctx context.Context, item *models.QueuedItem) models.ProcessResult

// Store is the durable outbound work queue.
//
// Drain iterates pending items in FIFO order and commits each verdict
// before handling the next item: Success and Abandon remove the item,
// Retry persists the incremented attempt count. A crash mid-drain can
// therefore re-deliver the current item but never lose or double-remove
// one.
type Store interface {
	// Enqueue appends an item durably. Assigns an ID and enqueue
	// timestamp when the caller left them empty. Never touches the
	// network.
	Enqueue(ctx context.Context, item *models.QueuedItem) error

	// PendingCount returns the current backlog size.
	PendingCount(ctx context.Context) (int, error)

	// Drain processes every currently-pending item through the handler
	// and returns how many reached Success.
	Drain(ctx context.Context, handler Handler) (int, error)

	// Items returns a snapshot of pending items for diagnostics.
	Items(ctx context.Context) ([]*models.QueuedItem, error)

	// Close releases resources.
	Close() error
}

// Errors
var (
	ErrItemExists   = errors.New("item already queued")
	ErrStoreClosed  = errors.New("queue store closed")
	ErrEmptyPayload = errors.New("empty payload")
)
