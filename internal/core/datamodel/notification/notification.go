package notification

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Reconciliation outcomes recorded for every webhook delivery.
const (
	OutcomeProcessed    = "processed"
	OutcomeDuplicate    = "duplicate"
	OutcomeUnresolved   = "unresolved"
	OutcomeLookupFailed = "lookup_failed"
	OutcomeIgnored      = "ignored"
	OutcomeConflict     = "conflict"
)

// WebhookNotification is an append-only audit row; it is never updated.
type WebhookNotification struct {
	ID               string         `db:"id" json:"id"`
	GatewayPaymentID string         `db:"gateway_payment_id" json:"gateway_payment_id"`
	Topic            string         `db:"topic" json:"topic"`
	Action           string         `db:"action" json:"action"`
	Outcome          string         `db:"outcome" json:"outcome"`
	MatchedBy        *string        `db:"matched_by" json:"matched_by,omitempty"`
	PaymentID        *string        `db:"payment_id" json:"payment_id,omitempty"`
	ErrorMessage     *string        `db:"error_message" json:"error_message,omitempty"`
	Payload          types.JSONText `db:"payload" json:"payload"`
	ReceivedAt       time.Time      `db:"received_at" json:"received_at"`
}

// NeedsRetry reports whether a later manual reconcile could still succeed.
func (n *WebhookNotification) NeedsRetry() bool {
	return n.Outcome == OutcomeUnresolved || n.Outcome == OutcomeLookupFailed
}
