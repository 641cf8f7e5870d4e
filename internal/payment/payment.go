package payment

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/frahmantamala/receptionist-billing/internal"
	"github.com/frahmantamala/receptionist-billing/internal/core/datamodel/notification"
	"github.com/frahmantamala/receptionist-billing/internal/core/datamodel/payment"
	gatewaytypes "github.com/frahmantamala/receptionist-billing/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/receptionist-billing/internal/core/events"
)

// ErrGatewayIDConflict is returned by the store when the gateway payment id is
// already linked to a different payment row.
var ErrGatewayIDConflict = stdErrors.New("gateway payment id already linked to another payment")

// RepositoryAPI is the payment record store.
type RepositoryAPI interface {
	Create(ctx context.Context, p *payment.Payment) error
	GetByID(ctx context.Context, id string) (*payment.Payment, error)
	GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*payment.Payment, error)
	GetByExternalReference(ctx context.Context, reference string) (*payment.Payment, error)
	GetByPreferenceID(ctx context.Context, preferenceID string) (*payment.Payment, error)
	GetLatestPendingUnmatched(ctx context.Context) (*payment.Payment, error)
	ListByUserID(ctx context.Context, userID string) ([]*payment.Payment, error)
	ListByActionID(ctx context.Context, actionID, ownerID string) ([]*payment.Payment, error)
	ApplyGatewayResult(ctx context.Context, id string, update GatewayUpdate) (bool, error)
	UpdateStatus(ctx context.Context, id, status string) (bool, error)
}

// GatewayAPI is the checkout gateway as seen by this package.
type GatewayAPI interface {
	CreateCheckoutSession(ctx context.Context, req *gatewaytypes.CheckoutRequest) (*gatewaytypes.CheckoutSession, error)
	FetchPayment(ctx context.Context, gatewayPaymentID string) (*gatewaytypes.Payment, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// NotificationLog stores the outcome of every webhook delivery.
type NotificationLog interface {
	Record(ctx context.Context, n *notification.WebhookNotification) error
}

// GatewayUpdate is what reconciliation writes onto a resolved payment row.
// MarkPaid moves a pending row to paid; it never moves a paid row back.
// GatewayPaymentID is bound only together with MarkPaid, so a row whose
// attempts are still in_process or rejected stays unbound and remains a
// candidate for the recency fallback.
type GatewayUpdate struct {
	GatewayPaymentID string
	PaymentMethod    *string
	RawPayload       datatypes.JSON
	MarkPaid         bool
	At               time.Time
}

// NewExternalReference mints the correlation key handed to the gateway, shaped
// payment_<unix millis>_<random>.
func NewExternalReference(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("payment_%d_%s", now.UnixMilli(), suffix)
}

// canRead is the owner-or-admin rule used by every read.
func canRead(p *payment.Payment, requester *internal.User) bool {
	return requester != nil && (requester.IsAdmin() || p.OwnedBy(requester.ID))
}

func isNotFound(err error) bool {
	return err != nil && stdErrors.Is(err, internal.ErrPaymentNotFound)
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
