package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/receptionist-billing/internal"
	"github.com/frahmantamala/receptionist-billing/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/receptionist-billing/internal/payment"
)

// PaymentRepository stores payments through gorm. The gorm handle should be
// opened with TranslateError so unique violations surface as gorm.ErrDuplicatedKey.
type PaymentRepository struct {
	db *gorm.DB
}

var _ paymentpkg.RepositoryAPI = (*PaymentRepository)(nil)

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{
		db: db,
	}
}

func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *PaymentRepository) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*payment.Payment, error) {
	return r.first(ctx, "gateway_payment_id = ?", gatewayPaymentID)
}

func (r *PaymentRepository) GetByExternalReference(ctx context.Context, reference string) (*payment.Payment, error) {
	return r.first(ctx, "external_reference = ?", reference)
}

// GetByPreferenceID returns the newest row for a preference. Preferences are
// one per order, so there is normally only one.
func (r *PaymentRepository) GetByPreferenceID(ctx context.Context, preferenceID string) (*payment.Payment, error) {
	return r.first(ctx, "gateway_preference_id = ?", preferenceID)
}

// GetLatestPendingUnmatched returns the most recently created pending row that
// has no gateway payment id yet.
func (r *PaymentRepository) GetLatestPendingUnmatched(ctx context.Context) (*payment.Payment, error) {
	return r.first(ctx, "status = ? AND gateway_payment_id IS NULL", payment.StatusPending)
}

func (r *PaymentRepository) first(ctx context.Context, query string, args ...interface{}) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.WithContext(ctx).
		Where(query, args...).
		Order("created_at DESC").
		Order("id DESC").
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("query payment: %w", err)
	}
	return &p, nil
}

func (r *PaymentRepository) ListByUserID(ctx context.Context, userID string) ([]*payment.Payment, error) {
	var payments []*payment.Payment
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&payments).Error
	return payments, err
}

// ListByActionID lists payments for a business action. An empty ownerID lists
// every owner's payments.
func (r *PaymentRepository) ListByActionID(ctx context.Context, actionID, ownerID string) ([]*payment.Payment, error) {
	var payments []*payment.Payment
	q := r.db.WithContext(ctx).Where("action_id = ?", actionID)
	if ownerID != "" {
		q = q.Where("user_id = ?", ownerID)
	}
	err := q.Order("created_at DESC").Find(&payments).Error
	return payments, err
}

// ApplyGatewayResult writes a reconciled gateway result onto row id and reports
// whether this call moved the row from pending to paid.
//
// Both statements are conditional on the row either having no gateway payment
// id or already holding u.GatewayPaymentID, so a bound id is never replaced.
// The paid transition is additionally conditional on the row not being paid,
// which makes concurrent deliveries race on a single UPDATE and only one of
// them observe a transition.
func (r *PaymentRepository) ApplyGatewayResult(ctx context.Context, id string, u paymentpkg.GatewayUpdate) (bool, error) {
	at := u.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if u.MarkPaid {
		updates := map[string]interface{}{
			"gateway_payment_id":  u.GatewayPaymentID,
			"raw_gateway_payload": u.RawPayload,
			"status":              payment.StatusPaid,
			"paid_at":             at,
			"updated_at":          at,
		}
		if u.PaymentMethod != nil {
			updates["payment_method"] = *u.PaymentMethod
		}
		res := r.db.WithContext(ctx).
			Model(&payment.Payment{}).
			Where("id = ? AND status <> ?", id, payment.StatusPaid).
			Where("(gateway_payment_id IS NULL OR gateway_payment_id = ?)", u.GatewayPaymentID).
			Updates(updates)
		if res.Error != nil {
			return false, translate(res.Error)
		}
		if res.RowsAffected == 1 {
			return true, nil
		}
	}

	refresh := map[string]interface{}{
		"raw_gateway_payload": u.RawPayload,
		"updated_at":          at,
	}
	if u.MarkPaid {
		refresh["gateway_payment_id"] = u.GatewayPaymentID
	}
	if u.PaymentMethod != nil {
		refresh["payment_method"] = *u.PaymentMethod
	}
	res := r.db.WithContext(ctx).
		Model(&payment.Payment{}).
		Where("id = ?", id).
		Where("(gateway_payment_id IS NULL OR gateway_payment_id = ?)", u.GatewayPaymentID).
		Updates(refresh)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return false, err
		}
		return false, paymentpkg.ErrGatewayIDConflict
	}
	return false, nil
}

// UpdateStatus sets status manually. Moving to paid is conditional in the same
// way as ApplyGatewayResult; moving a paid row anywhere else is refused.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id, status string) (bool, error) {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": now,
	}
	if status == payment.StatusPaid {
		updates["paid_at"] = now
	}

	res := r.db.WithContext(ctx).
		Model(&payment.Payment{}).
		Where("id = ? AND status <> ?", id, payment.StatusPaid).
		Updates(updates)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if current.IsPaid() && status != payment.StatusPaid {
		return false, internal.ErrInvalidStatusTransition
	}
	return false, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return paymentpkg.ErrGatewayIDConflict
	}
	return fmt.Errorf("update payment: %w", err)
}
