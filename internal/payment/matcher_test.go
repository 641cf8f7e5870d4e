package payment_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/receptionist-billing/internal/core/datamodel/payment"
	gatewaytypes "github.com/frahmantamala/receptionist-billing/internal/core/datamodel/paymentgateway"
	paymentpkg "github.com/frahmantamala/receptionist-billing/internal/payment"
)

// resolveFirst walks matchers the way the reconciler does.
func resolveFirst(ctx context.Context, matchers []paymentpkg.Matcher, in paymentpkg.MatchInput, store paymentpkg.MatchStore) (*payment.Payment, paymentpkg.MatchTier, error) {
	for _, m := range matchers {
		p, err := m.Match(ctx, in, store)
		if err != nil || p != nil {
			return p, m.Tier, err
		}
	}
	return nil, "", nil
}

var _ = Describe("DefaultMatchers", func() {
	var (
		repo *mockPaymentRepository
		ctx  context.Context
	)

	BeforeEach(func() {
		repo = newMockPaymentRepository()
		ctx = context.Background()
	})

	It("should evaluate tiers in tie-break order", func() {
		tiers := []paymentpkg.MatchTier{}
		for _, m := range paymentpkg.DefaultMatchers(true) {
			tiers = append(tiers, m.Tier)
		}
		Expect(tiers).To(Equal([]paymentpkg.MatchTier{
			paymentpkg.TierGatewayPaymentID,
			paymentpkg.TierExternalReference,
			paymentpkg.TierPreferenceID,
			paymentpkg.TierRecencyFallback,
		}))
	})

	It("should flag only the recency fallback as degraded", func() {
		for _, m := range paymentpkg.DefaultMatchers(true) {
			Expect(m.Degraded).To(Equal(m.Tier == paymentpkg.TierRecencyFallback), string(m.Tier))
		}
		Expect(paymentpkg.DefaultMatchers(false)).To(HaveLen(3))
	})

	Context("when a row carries both a reference and a preference id", func() {
		It("should resolve by reference and never fall through", func() {
			// Given
			repo.put(&payment.Payment{ID: "by-ref", Status: payment.StatusPending, ExternalReference: "payment_ref", GatewayPreferenceID: strPtr("pref-a")})
			repo.put(&payment.Payment{ID: "by-pref", Status: payment.StatusPending, ExternalReference: "payment_other", GatewayPreferenceID: strPtr("pref-b")})
			in := paymentpkg.MatchInput{
				Notification: paymentpkg.Notification{Topic: "payment", GatewayPaymentID: "1"},
				Lookup:       &gatewaytypes.Payment{ExternalReference: "payment_ref", PreferenceID: "pref-b"},
			}

			// When
			p, tier, err := resolveFirst(ctx, paymentpkg.DefaultMatchers(true), in, repo)

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(tier).To(Equal(paymentpkg.TierExternalReference))
			Expect(p.ID).To(Equal("by-ref"))
		})
	})

	It("should prefer a bound gateway id over everything else", func() {
		repo.put(&payment.Payment{ID: "bound", Status: payment.StatusPaid, ExternalReference: "payment_a", GatewayPaymentID: strPtr("42")})
		repo.put(&payment.Payment{ID: "ref", Status: payment.StatusPending, ExternalReference: "payment_b"})
		in := paymentpkg.MatchInput{
			Notification: paymentpkg.Notification{GatewayPaymentID: "42"},
			Lookup:       &gatewaytypes.Payment{ExternalReference: "payment_b"},
		}

		p, tier, err := resolveFirst(ctx, paymentpkg.DefaultMatchers(true), in, repo)

		Expect(err).NotTo(HaveOccurred())
		Expect(tier).To(Equal(paymentpkg.TierGatewayPaymentID))
		Expect(p.ID).To(Equal("bound"))
	})

	It("should fall back to the preference id when the reference is missing", func() {
		repo.put(&payment.Payment{ID: "pref", Status: payment.StatusPending, ExternalReference: "payment_c", GatewayPreferenceID: strPtr("pref-c")})
		in := paymentpkg.MatchInput{
			Notification: paymentpkg.Notification{GatewayPaymentID: "7"},
			Lookup:       &gatewaytypes.Payment{PreferenceID: "pref-c"},
		}

		p, tier, err := resolveFirst(ctx, paymentpkg.DefaultMatchers(false), in, repo)

		Expect(err).NotTo(HaveOccurred())
		Expect(tier).To(Equal(paymentpkg.TierPreferenceID))
		Expect(p.ID).To(Equal("pref"))
	})

	It("should report no candidate instead of a not-found error", func() {
		in := paymentpkg.MatchInput{
			Notification: paymentpkg.Notification{GatewayPaymentID: "7"},
			Lookup:       &gatewaytypes.Payment{ExternalReference: "nope", PreferenceID: "nope"},
		}

		p, _, err := resolveFirst(ctx, paymentpkg.DefaultMatchers(true), in, repo)

		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeNil())
	})

	It("should surface store failures", func() {
		repo.getError = errDatabaseDown
		in := paymentpkg.MatchInput{Notification: paymentpkg.Notification{GatewayPaymentID: "7"}}

		_, _, err := resolveFirst(ctx, paymentpkg.DefaultMatchers(true), in, repo)

		Expect(err).To(MatchError(errDatabaseDown))
	})
})
