package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/kirakosyanara/gropos-sub007/internal/events"
	"github.com/kirakosyanara/gropos-sub007/internal/models"
	"github.com/kirakosyanara/gropos-sub007/internal/transport"
)

// Sender delivers one item type's payload to the backend.
type Sender interface {
	Send(ctx context.Context, item *models.QueuedItem) (*transport.Response, error)
}

// Handler processes queued items: it dispatches on item type to the
// registered sender and maps the outcome onto a verdict. Every failure
// source must land in one of the three verdicts; nothing is left
// unclassified.
type Handler struct {
	senders map[models.ItemType]Sender
	logger  *events.Logger
}

// NewHandler creates an item sync handler with the standard senders.
func NewHandler(t transport.Transport, logger *events.Logger) *Handler {
	h := &Handler{
		senders: make(map[models.ItemType]Sender),
		logger:  logger.WithField("service", "sync_handler"),
	}

	h.Register(models.ItemTransaction, NewTransactionSender(t))
	h.Register(models.ItemReturn, NewReturnSender(t))
	h.Register(models.ItemAdjustment, NewAdjustmentSender(t))
	h.Register(models.ItemClockEvent, NewClockEventSender(t))
	h.Register(models.ItemApprovalAudit, NewApprovalAuditSender(t))

	return h
}

// Register installs a sender for an item type.
func (h *Handler) Register(typ models.ItemType, sender Sender) {
	h.senders[typ] = sender
}

// Process syncs one item and returns its verdict.
func (h *Handler) Process(ctx context.Context, item *models.QueuedItem) models.ProcessResult {
	log := h.logger.WithFields(map[string]interface{}{
		"item_id":  item.ID,
		"type":     item.Type,
		"attempts": item.Attempts,
	})

	sender, ok := h.senders[item.Type]
	if !ok {
		// An item type no sender knows cannot self-heal by retrying,
		// same as a payload that will not decode.
		log.Error("No sender for item type")
		return models.Abandon(models.ErrUnknownItemType.Error())
	}

	resp, err := sender.Send(ctx, item)
	result := classify(resp, err)

	switch result.Verdict {
	case models.VerdictSuccess:
		log.Debug("Item synced")
	case models.VerdictRetry:
		log.WithField("reason", result.Reason).Info("Item sync deferred")
	case models.VerdictAbandon:
		log.WithField("reason", result.Reason).Error("Item sync abandoned")
	}

	return result
}

// classify maps one sync attempt's outcome onto a verdict.
//
//	malformed payload   -> Abandon   will never succeed
//	400                 -> Abandon   permanent validation failure
//	401                 -> Retry     credential refreshed on the executor path
//	403                 -> Abandon   permission will not change by retrying
//	404                 -> Abandon   endpoint problem, not transient
//	409                 -> Success   backend already holds the item
//	5xx                 -> Retry     transient server failure
//	network error       -> Retry     transient
//	anything else       -> Retry     never silently drop unknown failures
func classify(resp *transport.Response, err error) models.ProcessResult {
	if err != nil {
		if errors.Is(err, models.ErrMalformedPayload) {
			return models.Abandon(err.Error())
		}
		return models.Retry(fmt.Sprintf("network: %v", err))
	}

	switch {
	case resp.IsSuccess():
		return models.Success()

	case resp.StatusCode == http.StatusBadRequest:
		return models.Abandon(resp.APIError().Error())

	case resp.StatusCode == http.StatusUnauthorized:
		return models.Retry("unauthorized; token refresh pending")

	case resp.StatusCode == http.StatusForbidden:
		return models.Abandon(resp.APIError().Error())

	case resp.StatusCode == http.StatusNotFound:
		return models.Abandon(resp.APIError().Error())

	case resp.StatusCode == http.StatusConflict:
		// Idempotency-key collision: the backend already processed
		// this item, treat as delivered.
		return models.Success()

	case resp.StatusCode >= 500:
		return models.Retry(fmt.Sprintf("server error %d", resp.StatusCode))

	default:
		return models.Retry(fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}
}
