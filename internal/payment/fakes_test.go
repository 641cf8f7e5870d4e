package payment_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/frahmantamala/receptionist-billing/internal"
	"github.com/frahmantamala/receptionist-billing/internal/core/datamodel/notification"
	"github.com/frahmantamala/receptionist-billing/internal/core/datamodel/payment"
	gatewaytypes "github.com/frahmantamala/receptionist-billing/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/receptionist-billing/internal/core/events"
	paymentpkg "github.com/frahmantamala/receptionist-billing/internal/payment"
)

// mockPaymentRepository mirrors the conditional update rules of the SQL store.
type mockPaymentRepository struct {
	mu       sync.Mutex
	payments map[string]*payment.Payment

	createError error
	getError    error
	applyError  error
	applyCalls  int

	// beforeUpdateStatus runs ahead of the status write, standing in for a
	// concurrent writer.
	beforeUpdateStatus func(id string)
}

func newMockPaymentRepository() *mockPaymentRepository {
	return &mockPaymentRepository{payments: make(map[string]*payment.Payment)}
}

func (m *mockPaymentRepository) put(p *payment.Payment) *payment.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.UpdatedAt = p.CreatedAt
	m.payments[p.ID] = p
	return p
}

func (m *mockPaymentRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments)
}

func (m *mockPaymentRepository) snapshot(id string) payment.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.payments[id]
}

func (m *mockPaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	if m.createError != nil {
		return m.createError
	}
	m.put(p)
	return nil
}

func (m *mockPaymentRepository) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	return m.find(func(p *payment.Payment) bool { return p.ID == id })
}

func (m *mockPaymentRepository) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*payment.Payment, error) {
	return m.find(func(p *payment.Payment) bool {
		return p.GatewayPaymentID != nil && *p.GatewayPaymentID == gatewayPaymentID
	})
}

func (m *mockPaymentRepository) GetByExternalReference(ctx context.Context, reference string) (*payment.Payment, error) {
	return m.find(func(p *payment.Payment) bool { return p.ExternalReference == reference })
}

func (m *mockPaymentRepository) GetByPreferenceID(ctx context.Context, preferenceID string) (*payment.Payment, error) {
	return m.find(func(p *payment.Payment) bool {
		return p.GatewayPreferenceID != nil && *p.GatewayPreferenceID == preferenceID
	})
}

func (m *mockPaymentRepository) GetLatestPendingUnmatched(ctx context.Context) (*payment.Payment, error) {
	return m.find(func(p *payment.Payment) bool {
		return p.Status == payment.StatusPending && p.GatewayPaymentID == nil
	})
}

// find returns a copy of the newest row matching pred.
func (m *mockPaymentRepository) find(pred func(*payment.Payment) bool) (*payment.Payment, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	matches := m.filter(pred)
	if len(matches) == 0 {
		return nil, internal.ErrPaymentNotFound
	}
	return matches[0], nil
}

func (m *mockPaymentRepository) filter(pred func(*payment.Payment) bool) []*payment.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payment.Payment
	for _, p := range m.payments {
		if pred(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *mockPaymentRepository) ListByUserID(ctx context.Context, userID string) ([]*payment.Payment, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	return m.filter(func(p *payment.Payment) bool { return p.UserID == userID }), nil
}

func (m *mockPaymentRepository) ListByActionID(ctx context.Context, actionID, ownerID string) ([]*payment.Payment, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	return m.filter(func(p *payment.Payment) bool {
		return p.ActionID != nil && *p.ActionID == actionID && (ownerID == "" || p.UserID == ownerID)
	}), nil
}

func (m *mockPaymentRepository) ApplyGatewayResult(ctx context.Context, id string, u paymentpkg.GatewayUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyCalls++
	if m.applyError != nil {
		return false, m.applyError
	}

	p, ok := m.payments[id]
	if !ok {
		return false, internal.ErrPaymentNotFound
	}
	if p.GatewayPaymentID != nil && *p.GatewayPaymentID != u.GatewayPaymentID {
		return false, paymentpkg.ErrGatewayIDConflict
	}
	if u.MarkPaid {
		for _, other := range m.payments {
			if other.ID != id && other.GatewayPaymentID != nil && *other.GatewayPaymentID == u.GatewayPaymentID {
				return false, paymentpkg.ErrGatewayIDConflict
			}
		}
		gid := u.GatewayPaymentID
		p.GatewayPaymentID = &gid
	}
	p.RawGatewayPayload = u.RawPayload
	if u.PaymentMethod != nil {
		method := *u.PaymentMethod
		p.PaymentMethod = &method
	}
	p.UpdatedAt = u.At

	if u.MarkPaid && p.Status != payment.StatusPaid {
		p.Status = payment.StatusPaid
		at := u.At
		p.PaidAt = &at
		return true, nil
	}
	return false, nil
}

func (m *mockPaymentRepository) UpdateStatus(ctx context.Context, id, status string) (bool, error) {
	if m.beforeUpdateStatus != nil {
		m.beforeUpdateStatus(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return false, internal.ErrPaymentNotFound
	}
	if p.Status == payment.StatusPaid {
		if status != payment.StatusPaid {
			return false, internal.ErrInvalidStatusTransition
		}
		return false, nil
	}
	p.Status = status
	if status == payment.StatusPaid {
		now := time.Now()
		p.PaidAt = &now
	}
	return true, nil
}

type mockGateway struct {
	mu       sync.Mutex
	session  *gatewaytypes.CheckoutSession
	payments map[string]*gatewaytypes.Payment

	createError error
	fetchError  error

	checkoutRequests []*gatewaytypes.CheckoutRequest
	fetchCalls       int
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		session: &gatewaytypes.CheckoutSession{
			PreferenceID:     "pref-1",
			InitPoint:        "https://gateway.test/checkout?pref_id=pref-1",
			SandboxInitPoint: "https://sandbox.gateway.test/checkout?pref_id=pref-1",
		},
		payments: make(map[string]*gatewaytypes.Payment),
	}
}

func (g *mockGateway) CreateCheckoutSession(ctx context.Context, req *gatewaytypes.CheckoutRequest) (*gatewaytypes.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checkoutRequests = append(g.checkoutRequests, req)
	if g.createError != nil {
		return nil, g.createError
	}
	s := *g.session
	return &s, nil
}

func (g *mockGateway) FetchPayment(ctx context.Context, gatewayPaymentID string) (*gatewaytypes.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetchCalls++
	if g.fetchError != nil {
		return nil, g.fetchError
	}
	p, ok := g.payments[gatewayPaymentID]
	if !ok {
		return nil, &gatewaytypes.Error{Kind: gatewaytypes.ErrGatewayLookupFailed, StatusCode: 404, Message: "not found"}
	}
	cp := *p
	return &cp, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (r *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingPublisher) ofType(eventType string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

type recordingNotificationLog struct {
	mu      sync.Mutex
	entries []*notification.WebhookNotification
	err     error
}

func (r *recordingNotificationLog) Record(ctx context.Context, n *notification.WebhookNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, n)
	return r.err
}

func (r *recordingNotificationLog) outcomes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Outcome)
	}
	return out
}

var errDatabaseDown = errors.New("database connection refused")

func strPtr(s string) *string { return &s }
