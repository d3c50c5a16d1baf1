package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kirakosyanara/gropos-sub007/internal/models"
	"github.com/kirakosyanara/gropos-sub007/internal/transport"
)

// jsonSender posts an item's payload to a fixed endpoint. The item ID
// doubles as the idempotency key, which is what lets the handler treat
// a 409 as delivered.
type jsonSender struct {
	transport transport.Transport
	path      string

	// decode validates the payload shape before it goes on the wire.
	decode func(payload json.RawMessage) error
}

func (s *jsonSender) Send(ctx context.Context, item *models.QueuedItem) (*transport.Response, error) {
	if err := s.decode(item.Payload); err != nil {
		return nil, &models.PayloadError{ItemID: item.ID, Type: item.Type, Err: err}
	}

	return s.transport.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		Path:   s.path,
		Body:   json.RawMessage(item.Payload),
		Header: map[string]string{
			"Idempotency-Key": item.ID,
		},
	})
}

// decodeInto builds a payload validator for a request envelope. Extra
// fields ride along; what matters is that the envelope decodes at all.
func decodeInto(v func() interface{}) func(json.RawMessage) error {
	return func(payload json.RawMessage) error {
		if err := json.Unmarshal(payload, v()); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return nil
	}
}

// Per-type request envelopes. Only the fields the backend requires at
// the boundary; everything else rides along opaquely.

type transactionPayload struct {
	TransactionID string          `json:"transaction_id"`
	RegisterID    string          `json:"register_id"`
	Total         int64           `json:"total"`
	Lines         json.RawMessage `json:"lines"`
	CompletedAt   string          `json:"completed_at"`
	CashierID     string          `json:"cashier_id,omitempty"`
	TenderType    string          `json:"tender_type,omitempty"`
}

type returnPayload struct {
	ReturnID          string          `json:"return_id"`
	OriginalReceiptID string          `json:"original_receipt_id"`
	RegisterID        string          `json:"register_id"`
	Total             int64           `json:"total"`
	Lines             json.RawMessage `json:"lines"`
	Reason            string          `json:"reason,omitempty"`
}

type adjustmentPayload struct {
	AdjustmentID string `json:"adjustment_id"`
	RegisterID   string `json:"register_id"`
	Amount       int64  `json:"amount"`
	Kind         string `json:"kind"` // paid_in, paid_out, drop, float
	Note         string `json:"note,omitempty"`
}

type clockEventPayload struct {
	EventID    string `json:"event_id"`
	EmployeeID string `json:"employee_id"`
	Action     string `json:"action"` // clock_in, clock_out, break_start, break_end
	At         string `json:"at"`
}

type approvalAuditPayload struct {
	AuditID    string `json:"audit_id"`
	ApproverID string `json:"approver_id"`
	Action     string `json:"action"`
	TargetID   string `json:"target_id,omitempty"`
	At         string `json:"at"`
}

// NewTransactionSender posts completed sales.
func NewTransactionSender(t transport.Transport) Sender {
	return &jsonSender{
		transport: t,
		path:      "/api/v1/transactions",
		decode:    decodeInto(func() interface{} { return &transactionPayload{} }),
	}
}

// NewReturnSender posts returns.
func NewReturnSender(t transport.Transport) Sender {
	return &jsonSender{
		transport: t,
		path:      "/api/v1/returns",
		decode:    decodeInto(func() interface{} { return &returnPayload{} }),
	}
}

// NewAdjustmentSender posts cash drawer adjustments.
func NewAdjustmentSender(t transport.Transport) Sender {
	return &jsonSender{
		transport: t,
		path:      "/api/v1/adjustments",
		decode:    decodeInto(func() interface{} { return &adjustmentPayload{} }),
	}
}

// NewClockEventSender posts employee clock events.
func NewClockEventSender(t transport.Transport) Sender {
	return &jsonSender{
		transport: t,
		path:      "/api/v1/clock-events",
		decode:    decodeInto(func() interface{} { return &clockEventPayload{} }),
	}
}

// NewApprovalAuditSender posts manager approval audit records.
func NewApprovalAuditSender(t transport.Transport) Sender {
	return &jsonSender{
		transport: t,
		path:      "/api/v1/approval-audits",
		decode:    decodeInto(func() interface{} { return &approvalAuditPayload{} }),
	}
}
