package payment

import (
	"context"

	"github.com/frahmantamala/receptionist-billing/internal/core/datamodel/payment"
	gatewaytypes "github.com/frahmantamala/receptionist-billing/internal/core/datamodel/paymentgateway"
)

type MatchTier string

const (
	TierGatewayPaymentID  MatchTier = "gateway_payment_id"
	TierExternalReference MatchTier = "external_reference"
	TierPreferenceID      MatchTier = "preference_id"
	TierRecencyFallback   MatchTier = "recency_fallback"
)

// MatchStore is the read side of the record store that matchers may use.
type MatchStore interface {
	GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*payment.Payment, error)
	GetByExternalReference(ctx context.Context, reference string) (*payment.Payment, error)
	GetByPreferenceID(ctx context.Context, preferenceID string) (*payment.Payment, error)
	GetLatestPendingUnmatched(ctx context.Context) (*payment.Payment, error)
}

// MatchInput carries the notification and the gateway's authoritative view of
// the payment it names.
type MatchInput struct {
	Notification Notification
	Lookup       *gatewaytypes.Payment
}

// MatchFunc returns (nil, nil) when it has no candidate.
type MatchFunc func(ctx context.Context, in MatchInput, store MatchStore) (*payment.Payment, error)

// Matcher is one tier of the resolution chain. Degraded tiers can attribute a
// notification to the wrong row and are logged as such.
type Matcher struct {
	Tier     MatchTier
	Degraded bool
	Match    MatchFunc
}

// DefaultMatchers is the resolution chain in tie-break order.
func DefaultMatchers(recencyFallback bool) []Matcher {
	matchers := []Matcher{
		{Tier: TierGatewayPaymentID, Match: matchByGatewayPaymentID},
		{Tier: TierExternalReference, Match: matchByExternalReference},
		{Tier: TierPreferenceID, Match: matchByPreferenceID},
	}
	if recencyFallback {
		matchers = append(matchers, Matcher{Tier: TierRecencyFallback, Degraded: true, Match: matchByRecency})
	}
	return matchers
}

func matchByGatewayPaymentID(ctx context.Context, in MatchInput, store MatchStore) (*payment.Payment, error) {
	if in.Notification.GatewayPaymentID == "" {
		return nil, nil
	}
	return found(store.GetByGatewayPaymentID(ctx, in.Notification.GatewayPaymentID))
}

func matchByExternalReference(ctx context.Context, in MatchInput, store MatchStore) (*payment.Payment, error) {
	if in.Lookup == nil || in.Lookup.ExternalReference == "" {
		return nil, nil
	}
	return found(store.GetByExternalReference(ctx, in.Lookup.ExternalReference))
}

func matchByPreferenceID(ctx context.Context, in MatchInput, store MatchStore) (*payment.Payment, error) {
	if in.Lookup == nil || in.Lookup.PreferenceID == "" {
		return nil, nil
	}
	return found(store.GetByPreferenceID(ctx, in.Lookup.PreferenceID))
}

func matchByRecency(ctx context.Context, _ MatchInput, store MatchStore) (*payment.Payment, error) {
	return found(store.GetLatestPendingUnmatched(ctx))
}

// found turns a store not-found into "no candidate".
func found(p *payment.Payment, err error) (*payment.Payment, error) {
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}
