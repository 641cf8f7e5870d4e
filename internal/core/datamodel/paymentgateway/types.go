package paymentgateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrGatewayUnavailable covers transport failures, timeouts and 5xx/429 answers.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrGatewayRejected means the gateway refused the request as invalid.
	ErrGatewayRejected = errors.New("payment gateway rejected the request")
	// ErrGatewayLookupFailed means a payment could not be fetched by its gateway id.
	ErrGatewayLookupFailed = errors.New("payment gateway lookup failed")
)

// Error carries the HTTP detail of a failed gateway call; it unwraps to one of
// the sentinel errors above.
type Error struct {
	Kind       error
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%v: status %d: %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Gateway payment statuses.
const (
	StatusApproved    = "approved"
	StatusAuthorized  = "authorized"
	StatusPending     = "pending"
	StatusInProcess   = "in_process"
	StatusInMediation = "in_mediation"
	StatusRejected    = "rejected"
	StatusCancelled   = "cancelled"
	StatusRefunded    = "refunded"
	StatusChargedBack = "charged_back"
)

// IsApproved reports whether a gateway status means the money was captured.
func IsApproved(status string) bool {
	switch strings.ToLower(status) {
	case StatusApproved, StatusAuthorized:
		return true
	}
	return false
}

// ID is a gateway identifier that may arrive as a JSON string or number.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("gateway id must be a string or number: %w", err)
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*id = ID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

type CheckoutItem struct {
	ID          string  `json:"id,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Quantity    int     `json:"quantity"`
	CurrencyID  string  `json:"currency_id"`
	UnitPrice   float64 `json:"unit_price"`
}

// BackURLs are browser redirects only; they never mark a payment paid.
type BackURLs struct {
	Success string `json:"success,omitempty"`
	Pending string `json:"pending,omitempty"`
	Failure string `json:"failure,omitempty"`
}

type CheckoutRequest struct {
	Items             []CheckoutItem `json:"items"`
	ExternalReference string         `json:"external_reference"`
	BackURLs          BackURLs       `json:"back_urls"`
	AutoReturn        string         `json:"auto_return,omitempty"`
	NotificationURL   string         `json:"notification_url,omitempty"`
}

type CheckoutSession struct {
	PreferenceID     string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// Payment is the authoritative view of a gateway payment returned by the lookup call.
type Payment struct {
	ID                ID      `json:"id"`
	Status            string  `json:"status"`
	StatusDetail      string  `json:"status_detail,omitempty"`
	ExternalReference string  `json:"external_reference"`
	PreferenceID      string  `json:"preference_id"`
	PaymentType       string  `json:"payment_type,omitempty"`
	PaymentTypeID     string  `json:"payment_type_id,omitempty"`
	PaymentMethodID   string  `json:"payment_method_id,omitempty"`
	TransactionAmount float64 `json:"transaction_amount,omitempty"`
	CurrencyID        string  `json:"currency_id,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Method returns the most specific payment type the gateway reported, or "".
func (p *Payment) Method() string {
	if p.PaymentType != "" {
		return p.PaymentType
	}
	if p.PaymentTypeID != "" {
		return p.PaymentTypeID
	}
	return p.PaymentMethodID
}

// APIErrorBody is the error envelope the gateway answers with on 4xx/5xx.
type APIErrorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Status  int    `json:"status"`
}

func (b APIErrorBody) Text() string {
	if b.Message != "" {
		return b.Message
	}
	return b.Error
}
