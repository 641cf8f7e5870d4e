package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentCreated         = "payment.created"
	EventTypePaymentPaid            = "payment.paid"
	EventTypeNotificationUnresolved = "payment.notification_unresolved"
)

// PaymentEventTypes lists every event this service emits.
var PaymentEventTypes = []string{
	EventTypePaymentCreated,
	EventTypePaymentPaid,
	EventTypeNotificationUnresolved,
}

type PaymentCreatedEvent struct {
	BaseEvent
	PaymentID         string `json:"payment_id"`
	UserID            string `json:"user_id"`
	ExternalReference string `json:"external_reference"`
	PreferenceID      string `json:"preference_id"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
}

func NewPaymentCreatedEvent(paymentID, userID, externalReference, preferenceID, amount, currency string) *PaymentCreatedEvent {
	return &PaymentCreatedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentCreated,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"payment_id":         paymentID,
				"user_id":            userID,
				"external_reference": externalReference,
				"preference_id":      preferenceID,
				"amount":             amount,
				"currency":           currency,
			},
		},
		PaymentID:         paymentID,
		UserID:            userID,
		ExternalReference: externalReference,
		PreferenceID:      preferenceID,
		Amount:            amount,
		Currency:          currency,
	}
}

// PaymentPaidEvent is emitted exactly once per payment, by whichever path won
// the pending to paid transition.
type PaymentPaidEvent struct {
	BaseEvent
	PaymentID         string  `json:"payment_id"`
	UserID            string  `json:"user_id"`
	ExternalReference string  `json:"external_reference"`
	GatewayPaymentID  string  `json:"gateway_payment_id"`
	ActionType        *string `json:"action_type,omitempty"`
	ActionID          *string `json:"action_id,omitempty"`
	Amount            string  `json:"amount"`
	Currency          string  `json:"currency"`
	Source            string  `json:"source"`
}

func NewPaymentPaidEvent(paymentID, userID, externalReference, gatewayPaymentID string, actionType, actionID *string, amount, currency, source string) *PaymentPaidEvent {
	data := map[string]interface{}{
		"payment_id":         paymentID,
		"user_id":            userID,
		"external_reference": externalReference,
		"gateway_payment_id": gatewayPaymentID,
		"amount":             amount,
		"currency":           currency,
		"source":             source,
	}
	if actionType != nil {
		data["action_type"] = *actionType
	}
	if actionID != nil {
		data["action_id"] = *actionID
	}
	return &PaymentPaidEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentPaid,
			Timestamp: time.Now().UTC(),
			Data:      data,
		},
		PaymentID:         paymentID,
		UserID:            userID,
		ExternalReference: externalReference,
		GatewayPaymentID:  gatewayPaymentID,
		ActionType:        actionType,
		ActionID:          actionID,
		Amount:            amount,
		Currency:          currency,
		Source:            source,
	}
}

type NotificationUnresolvedEvent struct {
	BaseEvent
	GatewayPaymentID  string `json:"gateway_payment_id"`
	ExternalReference string `json:"external_reference,omitempty"`
	PreferenceID      string `json:"preference_id,omitempty"`
	GatewayStatus     string `json:"gateway_status,omitempty"`
}

func NewNotificationUnresolvedEvent(gatewayPaymentID, externalReference, preferenceID, gatewayStatus string) *NotificationUnresolvedEvent {
	return &NotificationUnresolvedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeNotificationUnresolved,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"gateway_payment_id": gatewayPaymentID,
				"external_reference": externalReference,
				"preference_id":      preferenceID,
				"gateway_status":     gatewayStatus,
			},
		},
		GatewayPaymentID:  gatewayPaymentID,
		ExternalReference: externalReference,
		PreferenceID:      preferenceID,
		GatewayStatus:     gatewayStatus,
	}
}
