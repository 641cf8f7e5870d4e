package payment

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/frahmantamala/receptionist-billing/internal/core/datamodel/notification"
	"github.com/frahmantamala/receptionist-billing/internal/core/datamodel/payment"
	gatewaytypes "github.com/frahmantamala/receptionist-billing/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/receptionist-billing/internal/core/events"
)

// ReconcileResult describes what one delivery did.
type ReconcileResult struct {
	Outcome      string
	MatchedBy    MatchTier
	Payment      *payment.Payment
	Transitioned bool
}

// Reconciler resolves gateway notifications to payment rows and applies the
// gateway's authoritative status to them.
//
// It holds no locks. Concurrent deliveries for the same payment are safe
// because the store applies the pending to paid transition conditionally and
// refuses to rebind a gateway payment id.
type Reconciler struct {
	repository RepositoryAPI
	gateway    GatewayAPI
	publisher  EventPublisher
	log        NotificationLog
	matchers   []Matcher
	logger     *slog.Logger
	now        func() time.Time
}

type ReconcilerOption func(*Reconciler)

func WithMatchers(matchers ...Matcher) ReconcilerOption {
	return func(r *Reconciler) {
		r.matchers = matchers
	}
}

func WithNotificationLog(log NotificationLog) ReconcilerOption {
	return func(r *Reconciler) {
		r.log = log
	}
}

func NewReconciler(repository RepositoryAPI, gateway GatewayAPI, publisher EventPublisher, logger *slog.Logger, opts ...ReconcilerOption) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		repository: repository,
		gateway:    gateway,
		publisher:  publisher,
		matchers:   DefaultMatchers(true),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile handles one delivery. Semantic dead ends (not a payment, lookup
// failure, no match, id conflict) are reported through the result outcome; an
// error is returned only when the store itself fails.
func (r *Reconciler) Reconcile(ctx context.Context, n Notification) (*ReconcileResult, error) {
	logger := r.logger.With("gateway_payment_id", n.GatewayPaymentID, "topic", n.Topic, "action", n.Action)

	if !n.IsPayment() || n.GatewayPaymentID == "" {
		logger.Info("webhook notification ignored")
		res := &ReconcileResult{Outcome: notification.OutcomeIgnored}
		r.record(ctx, n, res, nil)
		return res, nil
	}

	lookup, err := r.gateway.FetchPayment(ctx, n.GatewayPaymentID)
	if err != nil {
		logger.Error("gateway lookup failed, notification left unresolved", "error", err)
		res := &ReconcileResult{Outcome: notification.OutcomeLookupFailed}
		r.record(ctx, n, res, err)
		return res, nil
	}
	logger = logger.With(
		"gateway_status", lookup.Status,
		"external_reference", lookup.ExternalReference,
		"preference_id", lookup.PreferenceID)

	matched, matcher, err := r.resolve(ctx, MatchInput{Notification: n, Lookup: lookup})
	if err != nil {
		logger.Error("payment resolution failed", "error", err)
		return nil, fmt.Errorf("resolve notification %s: %w", n.GatewayPaymentID, err)
	}
	if matched == nil {
		logger.Warn("no payment matched notification")
		res := &ReconcileResult{Outcome: notification.OutcomeUnresolved}
		r.record(ctx, n, res, nil)
		r.publish(ctx, events.NewNotificationUnresolvedEvent(n.GatewayPaymentID, lookup.ExternalReference, lookup.PreferenceID, lookup.Status))
		return res, nil
	}

	logger = logger.With("payment_id", matched.ID, "matched_by", matcher.Tier)
	if matcher.Degraded {
		logger.Warn("payment matched by degraded strategy, attribution may be wrong")
	}

	update := GatewayUpdate{
		GatewayPaymentID: n.GatewayPaymentID,
		PaymentMethod:    stringPtr(lookup.Method()),
		RawPayload:       rawPayload(lookup, n),
		MarkPaid:         gatewaytypes.IsApproved(lookup.Status),
		At:               r.now(),
	}

	transitioned, err := r.repository.ApplyGatewayResult(ctx, matched.ID, update)
	if err != nil {
		if stdErrors.Is(err, ErrGatewayIDConflict) {
			logger.Error("gateway payment id conflicts with existing link, row left untouched")
			res := &ReconcileResult{Outcome: notification.OutcomeConflict, MatchedBy: matcher.Tier, Payment: matched}
			r.record(ctx, n, res, err)
			return res, nil
		}
		logger.Error("failed to apply gateway result", "error", err)
		return nil, fmt.Errorf("apply gateway result to payment %s: %w", matched.ID, err)
	}

	current, err := r.repository.GetByID(ctx, matched.ID)
	if err != nil {
		return nil, fmt.Errorf("reload payment %s: %w", matched.ID, err)
	}

	res := &ReconcileResult{
		Outcome:      notification.OutcomeProcessed,
		MatchedBy:    matcher.Tier,
		Payment:      current,
		Transitioned: transitioned,
	}
	switch {
	case transitioned:
		logger.Info("payment marked paid")
		r.publish(ctx, paidEvent(current, "webhook"))
	case current.IsPaid():
		res.Outcome = notification.OutcomeDuplicate
		logger.Info("notification for already paid payment, payload refreshed")
	default:
		logger.Info("payment not approved by gateway yet, left pending")
	}
	r.record(ctx, n, res, nil)
	return res, nil
}

// resolve walks the matchers in order and stops at the first hit.
func (r *Reconciler) resolve(ctx context.Context, in MatchInput) (*payment.Payment, *Matcher, error) {
	for i := range r.matchers {
		m := &r.matchers[i]
		p, err := m.Match(ctx, in, r.repository)
		if err != nil {
			return nil, nil, fmt.Errorf("%s matcher: %w", m.Tier, err)
		}
		if p != nil {
			return p, m, nil
		}
	}
	return nil, nil, nil
}

func (r *Reconciler) record(ctx context.Context, n Notification, res *ReconcileResult, cause error) {
	if r.log == nil {
		return
	}
	entry := &notification.WebhookNotification{
		ID:               uuid.NewString(),
		GatewayPaymentID: n.GatewayPaymentID,
		Topic:            n.Topic,
		Action:           n.Action,
		Outcome:          res.Outcome,
		Payload:          normalizePayload(n.Payload),
		ReceivedAt:       r.now(),
	}
	if res.MatchedBy != "" {
		entry.MatchedBy = stringPtr(string(res.MatchedBy))
	}
	if res.Payment != nil {
		entry.PaymentID = stringPtr(res.Payment.ID)
	}
	if cause != nil {
		entry.ErrorMessage = stringPtr(cause.Error())
	}
	if err := r.log.Record(ctx, entry); err != nil {
		r.logger.Error("failed to record webhook notification",
			"gateway_payment_id", n.GatewayPaymentID,
			"outcome", res.Outcome,
			"error", err)
	}
}

func (r *Reconciler) publish(ctx context.Context, event events.Event) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Error("failed to publish event", "event_type", event.EventType(), "event_id", event.EventID(), "error", err)
	}
}

// rawPayload prefers the lookup response; the notification body is kept when
// the gateway returned nothing raw.
func rawPayload(lookup *gatewaytypes.Payment, n Notification) datatypes.JSON {
	if len(lookup.Raw) > 0 {
		return datatypes.JSON(lookup.Raw)
	}
	return datatypes.JSON(normalizePayload(n.Payload))
}
