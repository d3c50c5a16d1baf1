package testutil

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/kirakosyanara/gropos-sub007/internal/events"
	"github.com/kirakosyanara/gropos-sub007/internal/models"
)

// NewTestLogger creates a quiet logger for tests.
func NewTestLogger() *events.Logger {
	return events.NewTestLogger(events.ErrorLevel, "json", io.Discard)
}

// NewDebugLogger creates a verbose logger writing to the given sink.
func NewDebugLogger(w io.Writer) *events.Logger {
	return events.NewTestLogger(events.DebugLevel, "json", w)
}

// TestContext creates a test context with a reasonable timeout.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// Item builds a queued item with a valid payload for its type.
func Item(typ models.ItemType, fields map[string]interface{}) *models.QueuedItem {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	payload, _ := json.Marshal(fields)
	return &models.QueuedItem{
		Type:    typ,
		Payload: payload,
	}
}

// TransactionItem builds a plausible transaction item.
func TransactionItem(txID string) *models.QueuedItem {
	return Item(models.ItemTransaction, map[string]interface{}{
		"transaction_id": txID,
		"register_id":    "reg-1",
		"total":          1999,
		"lines":          []interface{}{},
		"completed_at":   time.Now().UTC().Format(time.RFC3339),
	})
}

// WaitForCondition waits for a condition to be true with timeout.
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	t.Helper()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			t.Fatalf("Timeout waiting for condition: %s", message)
		case <-ticker.C:
			if condition() {
				return
			}
		}
	}
}
