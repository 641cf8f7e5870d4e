package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/receptionist-billing/internal/core/events"
)

// EventHandler turns payment lifecycle events into operator-facing log lines.
// Paid events carry the business action the payment unlocks; unresolved
// notifications are the signal that manual reconciliation is needed.
type EventHandler struct {
	logger *slog.Logger
}

func NewEventHandler(logger *slog.Logger) *EventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHandler{logger: logger}
}

func (h *EventHandler) HandlePaymentPaid(ctx context.Context, event events.Event) error {
	paid, ok := event.(*events.PaymentPaidEvent)
	if !ok {
		h.logger.Error("invalid event type for payment paid handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentPaidEvent, got %T", event)
	}

	attrs := []any{
		"payment_id", paid.PaymentID,
		"user_id", paid.UserID,
		"gateway_payment_id", paid.GatewayPaymentID,
		"amount", paid.Amount,
		"currency", paid.Currency,
		"source", paid.Source,
		"event_id", paid.EventID(),
	}
	if paid.ActionType != nil {
		attrs = append(attrs, "action_type", *paid.ActionType)
	}
	if paid.ActionID != nil {
		attrs = append(attrs, "action_id", *paid.ActionID)
	}
	h.logger.Info("payment settled", attrs...)
	return nil
}

func (h *EventHandler) HandleNotificationUnresolved(ctx context.Context, event events.Event) error {
	unresolved, ok := event.(*events.NotificationUnresolvedEvent)
	if !ok {
		h.logger.Error("invalid event type for unresolved notification handler", "event_type", event.EventType())
		return fmt.Errorf("expected NotificationUnresolvedEvent, got %T", event)
	}

	h.logger.Warn("gateway payment needs manual reconciliation",
		"gateway_payment_id", unresolved.GatewayPaymentID,
		"external_reference", unresolved.ExternalReference,
		"preference_id", unresolved.PreferenceID,
		"gateway_status", unresolved.GatewayStatus,
		"event_id", unresolved.EventID())
	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentPaid, h.HandlePaymentPaid)
	eventBus.Subscribe(events.EventTypeNotificationUnresolved, h.HandleNotificationUnresolved)

	h.logger.Info("payment event handlers registered",
		"handlers", []string{events.EventTypePaymentPaid, events.EventTypeNotificationUnresolved})
}
