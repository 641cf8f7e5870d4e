package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	// not produced by reconciliation yet
	StatusFailed   = "failed"
	StatusRefunded = "refunded"
)

// Payment is one checkout attempt. Amount and currency are fixed at creation;
// gateway fields are filled in by reconciliation.
type Payment struct {
	ID                  string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID              string          `json:"user_id" gorm:"column:user_id;not null;index"`
	GatewayPaymentID    *string         `json:"gateway_payment_id,omitempty" gorm:"column:gateway_payment_id;uniqueIndex"`
	GatewayPreferenceID *string         `json:"gateway_preference_id,omitempty" gorm:"column:gateway_preference_id;index"`
	ExternalReference   string          `json:"external_reference" gorm:"column:external_reference;not null;uniqueIndex"`
	Status              string          `json:"status" gorm:"column:status;not null;default:pending;index"`
	PaymentMethod       *string         `json:"payment_method,omitempty" gorm:"column:payment_method"`
	Title               string          `json:"title" gorm:"column:title;not null"`
	Description         string          `json:"description,omitempty" gorm:"column:description"`
	Quantity            int             `json:"quantity" gorm:"column:quantity;not null"`
	Amount              decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(12,2);not null"`
	Currency            string          `json:"currency" gorm:"column:currency;type:varchar(3);not null"`
	ActionType          *string         `json:"action_type,omitempty" gorm:"column:action_type"`
	ActionID            *string         `json:"action_id,omitempty" gorm:"column:action_id;index"`
	RawGatewayPayload   datatypes.JSON  `json:"raw_gateway_payload,omitempty" gorm:"column:raw_gateway_payload"`
	PaidAt              *time.Time      `json:"paid_at,omitempty" gorm:"column:paid_at"`
	CreatedAt           time.Time       `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time       `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	return nil
}

func (p *Payment) IsPaid() bool {
	return p.Status == StatusPaid
}

func (p *Payment) OwnedBy(userID string) bool {
	return userID != "" && p.UserID == userID
}
