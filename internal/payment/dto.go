package payment

import (
	"time"

	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/receptionist-billing/internal"
	"github.com/frahmantamala/receptionist-billing/internal/core/common/validation"
	"github.com/frahmantamala/receptionist-billing/internal/core/datamodel/payment"
)

// CreateOrderRequest is the body of POST /payments/create-order.
type CreateOrderRequest struct {
	Title       string          `json:"title"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description,omitempty"`
	ActionType  *string         `json:"actionType,omitempty"`
	ActionID    *string         `json:"actionId,omitempty"`
}

func (r *CreateOrderRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("title", r.Title).Required().MaxLength(255)
	validator.Field("quantity", int64(r.Quantity)).
		MinInt(1, errors.ErrCodeInvalidQuantity).
		MaxInt(1000, errors.ErrCodeInvalidQuantity)
	validator.Field("price", r.Price).
		PositiveDecimal(errors.ErrCodeInvalidAmount).
		MaxDecimalPlaces(2, errors.ErrCodeInvalidAmount)
	validator.Field("description", r.Description).MaxLength(1000)
	validator.Field("actionType", r.ActionType).MaxLength(64)
	validator.Field("actionId", r.ActionID).MaxLength(64)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// Total is price times quantity.
func (r *CreateOrderRequest) Total() decimal.Decimal {
	return r.Price.Mul(decimal.NewFromInt(int64(r.Quantity)))
}

// CreateOrderResponse keeps the field names checkout front-ends already read.
type CreateOrderResponse struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
	PaymentID        string `json:"paymentId"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

func (r *UpdateStatusRequest) Validate() error {
	validator := validation.NewValidator()
	validator.Field("status", r.Status).Required().OneOf(errors.ErrCodeInvalidStatus, payment.StatusPending, payment.StatusPaid)
	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// PaymentView is the read model returned by the query endpoints. The raw
// gateway payload stays internal.
type PaymentView struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	Status              string     `json:"status"`
	Title               string     `json:"title"`
	Description         string     `json:"description,omitempty"`
	Quantity            int        `json:"quantity"`
	Amount              string     `json:"amount"`
	Currency            string     `json:"currency"`
	ExternalReference   string     `json:"external_reference"`
	GatewayPaymentID    *string    `json:"gateway_payment_id,omitempty"`
	GatewayPreferenceID *string    `json:"gateway_preference_id,omitempty"`
	PaymentMethod       *string    `json:"payment_method,omitempty"`
	ActionType          *string    `json:"action_type,omitempty"`
	ActionID            *string    `json:"action_id,omitempty"`
	PaidAt              *time.Time `json:"paid_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func ToView(p *payment.Payment) PaymentView {
	return PaymentView{
		ID:                  p.ID,
		UserID:              p.UserID,
		Status:              p.Status,
		Title:               p.Title,
		Description:         p.Description,
		Quantity:            p.Quantity,
		Amount:              p.Amount.StringFixed(2),
		Currency:            p.Currency,
		ExternalReference:   p.ExternalReference,
		GatewayPaymentID:    p.GatewayPaymentID,
		GatewayPreferenceID: p.GatewayPreferenceID,
		PaymentMethod:       p.PaymentMethod,
		ActionType:          p.ActionType,
		ActionID:            p.ActionID,
		PaidAt:              p.PaidAt,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

func ToViews(ps []*payment.Payment) []PaymentView {
	views := make([]PaymentView, 0, len(ps))
	for _, p := range ps {
		views = append(views, ToView(p))
	}
	return views
}

// WebhookResponse is deliberately terse; the caller is unauthenticated.
type WebhookResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
