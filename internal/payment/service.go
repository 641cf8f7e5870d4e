package payment

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/frahmantamala/receptionist-billing/internal"
	"github.com/frahmantamala/receptionist-billing/internal/core/datamodel/payment"
	gatewaytypes "github.com/frahmantamala/receptionist-billing/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/receptionist-billing/internal/core/events"
)

// ServiceAPI is what the HTTP handlers need from the payment service.
type ServiceAPI interface {
	CreateOrder(ctx context.Context, req *CreateOrderRequest, userID string) (*CreateOrderResponse, error)
	GetPayment(ctx context.Context, id string, requester *internal.User) (*payment.Payment, error)
	ListByUser(ctx context.Context, userID string, requester *internal.User) ([]*payment.Payment, error)
	ListByAction(ctx context.Context, actionID string, requester *internal.User) ([]*payment.Payment, error)
	UpdateStatus(ctx context.Context, id, status string, requester *internal.User) (*payment.Payment, error)
}

// CheckoutConfig is the static part of every checkout session.
type CheckoutConfig struct {
	Currency        string
	BackURLs        gatewaytypes.BackURLs
	NotificationURL string
}

type Service struct {
	repository RepositoryAPI
	gateway    GatewayAPI
	publisher  EventPublisher
	checkout   CheckoutConfig
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(repository RepositoryAPI, gateway GatewayAPI, publisher EventPublisher, checkout CheckoutConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if checkout.Currency == "" {
		checkout.Currency = "ARS"
	}
	return &Service{
		repository: repository,
		gateway:    gateway,
		publisher:  publisher,
		checkout:   checkout,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder opens a checkout session and records the pending payment.
//
// The gateway call happens first so a rejected or unreachable gateway leaves no
// row behind. If the insert fails afterwards the session is orphaned on the
// gateway side; it expires unpaid and is logged here.
func (s *Service) CreateOrder(ctx context.Context, req *CreateOrderRequest, userID string) (*CreateOrderResponse, error) {
	if userID == "" {
		return nil, internal.NewUnauthorizedError("authentication required", internal.ErrCodeInvalidToken)
	}
	if err := req.Validate(); err != nil {
		s.logger.Warn("create order validation failed", "user_id", userID, "error", err)
		return nil, err
	}

	now := s.now()
	reference := NewExternalReference(now)
	amount := req.Total()

	session, err := s.gateway.CreateCheckoutSession(ctx, &gatewaytypes.CheckoutRequest{
		Items: []gatewaytypes.CheckoutItem{{
			ID:          reference,
			Title:       req.Title,
			Description: req.Description,
			Quantity:    req.Quantity,
			CurrencyID:  s.checkout.Currency,
			UnitPrice:   req.Price.InexactFloat64(),
		}},
		ExternalReference: reference,
		BackURLs:          s.checkout.BackURLs,
		AutoReturn:        autoReturn(s.checkout.BackURLs),
		NotificationURL:   s.checkout.NotificationURL,
	})
	if err != nil {
		s.logger.Error("checkout session creation failed", "user_id", userID, "external_reference", reference, "error", err)
		return nil, gatewayError(err)
	}

	record := &payment.Payment{
		ID:                  uuid.NewString(),
		UserID:              userID,
		GatewayPreferenceID: stringPtr(session.PreferenceID),
		ExternalReference:   reference,
		Status:              payment.StatusPending,
		Title:               req.Title,
		Description:         req.Description,
		Quantity:            req.Quantity,
		Amount:              amount,
		Currency:            s.checkout.Currency,
		ActionType:          req.ActionType,
		ActionID:            req.ActionID,
	}

	if err := s.repository.Create(ctx, record); err != nil {
		s.logger.Error("orphaned checkout session: payment row not persisted",
			"user_id", userID,
			"external_reference", reference,
			"preference_id", session.PreferenceID,
			"error", err)
		return nil, internal.NewInternalError("failed to record payment", err)
	}

	s.logger.Info("payment order created",
		"payment_id", record.ID,
		"user_id", userID,
		"external_reference", reference,
		"preference_id", session.PreferenceID,
		"amount", amount.StringFixed(2),
		"currency", record.Currency)

	s.publish(ctx, events.NewPaymentCreatedEvent(record.ID, userID, reference, session.PreferenceID, amount.StringFixed(2), record.Currency))

	return &CreateOrderResponse{
		ID:               session.PreferenceID,
		InitPoint:        session.InitPoint,
		SandboxInitPoint: session.SandboxInitPoint,
		PaymentID:        record.ID,
	}, nil
}

func (s *Service) GetPayment(ctx context.Context, id string, requester *internal.User) (*payment.Payment, error) {
	p, err := s.repository.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, internal.ErrPaymentNotFound
		}
		return nil, internal.NewInternalError("failed to load payment", err)
	}
	if !canRead(p, requester) {
		return nil, internal.ErrUnauthorizedAccess
	}
	return p, nil
}

// ListByUser returns userID's payments, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, requester *internal.User) ([]*payment.Payment, error) {
	if requester == nil || (!requester.IsAdmin() && requester.ID != userID) {
		return nil, internal.ErrUnauthorizedAccess
	}
	ps, err := s.repository.ListByUserID(ctx, userID)
	if err != nil {
		return nil, internal.NewInternalError("failed to list payments", err)
	}
	return ps, nil
}

// ListByAction returns the payments linked to actionID. Non-admins only see
// their own.
func (s *Service) ListByAction(ctx context.Context, actionID string, requester *internal.User) ([]*payment.Payment, error) {
	if requester == nil {
		return nil, internal.ErrUnauthorizedAccess
	}
	owner := requester.ID
	if requester.IsAdmin() {
		owner = ""
	}
	ps, err := s.repository.ListByActionID(ctx, actionID, owner)
	if err != nil {
		return nil, internal.NewInternalError("failed to list payments", err)
	}
	return ps, nil
}

// UpdateStatus is the manual counterpart of webhook reconciliation. It follows
// the same monotonic rule: a paid payment cannot go back to pending.
func (s *Service) UpdateStatus(ctx context.Context, id, status string, requester *internal.User) (*payment.Payment, error) {
	if requester == nil || !requester.IsAdmin() {
		return nil, internal.ErrUnauthorizedAccess
	}
	req := UpdateStatusRequest{Status: status}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	current, err := s.repository.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, internal.ErrPaymentNotFound
		}
		return nil, internal.NewInternalError("failed to load payment", err)
	}
	if current.IsPaid() && status != payment.StatusPaid {
		return nil, internal.ErrInvalidStatusTransition
	}

	transitioned, err := s.repository.UpdateStatus(ctx, id, status)
	if err != nil {
		if appErr, ok := internal.IsAppError(err); ok {
			return nil, appErr
		}
		return nil, internal.NewInternalError("failed to update payment status", err)
	}

	updated, err := s.repository.GetByID(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("failed to reload payment", err)
	}

	s.logger.Info("payment status updated manually",
		"payment_id", id,
		"admin_id", requester.ID,
		"from", current.Status,
		"to", updated.Status,
		"transitioned", transitioned)

	if transitioned && updated.IsPaid() {
		s.publish(ctx, paidEvent(updated, "manual"))
	}
	return updated, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish event", "event_type", event.EventType(), "event_id", event.EventID(), "error", err)
	}
}

func paidEvent(p *payment.Payment, source string) *events.PaymentPaidEvent {
	gatewayID := ""
	if p.GatewayPaymentID != nil {
		gatewayID = *p.GatewayPaymentID
	}
	return events.NewPaymentPaidEvent(p.ID, p.UserID, p.ExternalReference, gatewayID,
		p.ActionType, p.ActionID, p.Amount.StringFixed(2), p.Currency, source)
}

// gatewayError maps gateway failures onto the order-creation error surface.
func gatewayError(err error) error {
	var gwErr *gatewaytypes.Error
	message := "payment gateway is unavailable, please retry"
	if stdErrors.As(err, &gwErr) && gwErr.Message != "" && stdErrors.Is(err, gatewaytypes.ErrGatewayRejected) {
		message = "payment gateway rejected the order: " + gwErr.Message
	}
	if stdErrors.Is(err, gatewaytypes.ErrGatewayRejected) {
		return internal.NewExternalError(message, internal.ErrCodeGatewayRejected, http.StatusUnprocessableEntity, err)
	}
	return internal.NewExternalError(message, internal.ErrCodeGatewayUnavailable, http.StatusBadGateway, err)
}

func autoReturn(urls gatewaytypes.BackURLs) string {
	if urls.Success != "" {
		return "approved"
	}
	return ""
}
