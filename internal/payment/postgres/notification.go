package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/frahmantamala/receptionist-billing/internal/core/datamodel/notification"
)

const notificationColumns = `id, gateway_payment_id, topic, action, outcome, matched_by, payment_id, error_message, payload, received_at`

// NotificationRepository is the append-only webhook audit log.
type NotificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Record(ctx context.Context, n *notification.WebhookNotification) error {
	if len(n.Payload) == 0 {
		n.Payload = []byte("{}")
	}
	query := r.db.Rebind(`INSERT INTO webhook_notifications (` + notificationColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.GatewayPaymentID, n.Topic, n.Action, n.Outcome,
		n.MatchedBy, n.PaymentID, n.ErrorMessage, n.Payload, n.ReceivedAt)
	if err != nil {
		return fmt.Errorf("insert webhook notification: %w", err)
	}
	return nil
}

// ListByOutcome returns the newest notifications with any of outcomes.
func (r *NotificationRepository) ListByOutcome(ctx context.Context, outcomes []string, limit int) ([]*notification.WebhookNotification, error) {
	if len(outcomes) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	query, args, err := sqlx.In(`SELECT `+notificationColumns+` FROM webhook_notifications
WHERE outcome IN (?) ORDER BY received_at DESC LIMIT ?`, outcomes, limit)
	if err != nil {
		return nil, fmt.Errorf("build outcome query: %w", err)
	}

	var out []*notification.WebhookNotification
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list webhook notifications: %w", err)
	}
	return out, nil
}

// ListByGatewayPaymentID returns every delivery for the id, oldest first.
func (r *NotificationRepository) ListByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) ([]*notification.WebhookNotification, error) {
	var out []*notification.WebhookNotification
	query := r.db.Rebind(`SELECT ` + notificationColumns + ` FROM webhook_notifications
WHERE gateway_payment_id = ? ORDER BY received_at ASC`)
	if err := r.db.SelectContext(ctx, &out, query, gatewayPaymentID); err != nil {
		return nil, fmt.Errorf("list webhook notifications: %w", err)
	}
	return out, nil
}
