package payment_test

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/receptionist-billing/internal"
	"github.com/frahmantamala/receptionist-billing/internal/core/datamodel/payment"
	gatewaytypes "github.com/frahmantamala/receptionist-billing/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/receptionist-billing/internal/core/events"
	paymentpkg "github.com/frahmantamala/receptionist-billing/internal/payment"
)

var _ = Describe("PaymentService", func() {
	var (
		service   *paymentpkg.Service
		repo      *mockPaymentRepository
		gateway   *mockGateway
		publisher *recordingPublisher
		ctx       context.Context
		owner     *internal.User
		stranger  *internal.User
		admin     *internal.User
	)

	BeforeEach(func() {
		repo = newMockPaymentRepository()
		gateway = newMockGateway()
		publisher = &recordingPublisher{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = paymentpkg.NewService(repo, gateway, publisher, paymentpkg.CheckoutConfig{
			Currency: "ARS",
			BackURLs: gatewaytypes.BackURLs{
				Success: "https://app.test/payment/success",
				Pending: "https://app.test/payment/pending",
				Failure: "https://app.test/payment/failure",
			},
			NotificationURL: "https://api.test/payments/webhook",
		}, logger)
		ctx = context.Background()
		owner = &internal.User{ID: "user-1"}
		stranger = &internal.User{ID: "user-2"}
		admin = &internal.User{ID: "admin-1", Permissions: []string{internal.PermissionAdmin}}
	})

	validOrder := func() *paymentpkg.CreateOrderRequest {
		return &paymentpkg.CreateOrderRequest{
			Title:    "Consultation",
			Quantity: 2,
			Price:    decimal.RequireFromString("50.00"),
		}
	}

	Describe("CreateOrder", func() {
		Context("when the gateway accepts the checkout", func() {
			It("should persist a pending payment and return the checkout links", func() {
				// Given
				req := validOrder()
				req.ActionType = strPtr("appointment")
				req.ActionID = strPtr("appt-9")

				// When
				resp, err := service.CreateOrder(ctx, req, owner.ID)

				// Then
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.ID).To(Equal("pref-1"))
				Expect(resp.InitPoint).To(ContainSubstring("pref_id=pref-1"))
				Expect(resp.SandboxInitPoint).NotTo(BeEmpty())
				Expect(resp.PaymentID).NotTo(BeEmpty())

				stored := repo.snapshot(resp.PaymentID)
				Expect(stored.Status).To(Equal(payment.StatusPending))
				Expect(stored.UserID).To(Equal(owner.ID))
				Expect(stored.Amount.StringFixed(2)).To(Equal("100.00"))
				Expect(stored.Currency).To(Equal("ARS"))
				Expect(*stored.GatewayPreferenceID).To(Equal("pref-1"))
				Expect(stored.GatewayPaymentID).To(BeNil())
				Expect(*stored.ActionID).To(Equal("appt-9"))
				Expect(stored.ExternalReference).To(HavePrefix("payment_"))
			})

			It("should send the external reference and webhook target to the gateway", func() {
				resp, err := service.CreateOrder(ctx, validOrder(), owner.ID)
				Expect(err).NotTo(HaveOccurred())

				Expect(gateway.checkoutRequests).To(HaveLen(1))
				sent := gateway.checkoutRequests[0]
				stored := repo.snapshot(resp.PaymentID)
				Expect(sent.ExternalReference).To(Equal(stored.ExternalReference))
				Expect(sent.NotificationURL).To(Equal("https://api.test/payments/webhook"))
				Expect(sent.AutoReturn).To(Equal("approved"))
				Expect(sent.Items).To(HaveLen(1))
				Expect(sent.Items[0].Quantity).To(Equal(2))
				Expect(sent.Items[0].UnitPrice).To(Equal(50.0))
				Expect(sent.Items[0].CurrencyID).To(Equal("ARS"))
			})

			It("should mint a distinct reference per order", func() {
				first, err := service.CreateOrder(ctx, validOrder(), owner.ID)
				Expect(err).NotTo(HaveOccurred())
				second, err := service.CreateOrder(ctx, validOrder(), owner.ID)
				Expect(err).NotTo(HaveOccurred())

				Expect(repo.snapshot(first.PaymentID).ExternalReference).
					NotTo(Equal(repo.snapshot(second.PaymentID).ExternalReference))
			})

			It("should publish a payment created event", func() {
				resp, err := service.CreateOrder(ctx, validOrder(), owner.ID)
				Expect(err).NotTo(HaveOccurred())

				created := publisher.ofType(events.EventTypePaymentCreated)
				Expect(created).To(HaveLen(1))
				Expect(created[0].(*events.PaymentCreatedEvent).PaymentID).To(Equal(resp.PaymentID))
			})
		})

		Context("when the gateway rejects the checkout", func() {
			It("should return 422 and write no payment row", func() {
				// Given
				gateway.createError = &gatewaytypes.Error{
					Kind:       gatewaytypes.ErrGatewayRejected,
					StatusCode: http.StatusBadRequest,
					Message:    "invalid unit_price",
				}

				// When
				resp, err := service.CreateOrder(ctx, validOrder(), owner.ID)

				// Then
				Expect(resp).To(BeNil())
				appErr, ok := internal.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				Expect(appErr.Code).To(Equal(internal.ErrCodeGatewayRejected))
				Expect(appErr.Message).To(ContainSubstring("invalid unit_price"))
				Expect(repo.count()).To(Equal(0))
				Expect(publisher.events).To(BeEmpty())
			})
		})

		Context("when the gateway is unreachable", func() {
			It("should return 502 and write no payment row", func() {
				gateway.createError = &gatewaytypes.Error{Kind: gatewaytypes.ErrGatewayUnavailable, Message: "timeout"}

				_, err := service.CreateOrder(ctx, validOrder(), owner.ID)

				appErr, ok := internal.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.StatusCode).To(Equal(http.StatusBadGateway))
				Expect(appErr.Code).To(Equal(internal.ErrCodeGatewayUnavailable))
				Expect(repo.count()).To(Equal(0))
			})
		})

		Context("when the payment row cannot be written", func() {
			It("should return an internal error after the session was created", func() {
				repo.createError = errDatabaseDown

				_, err := service.CreateOrder(ctx, validOrder(), owner.ID)

				appErr, ok := internal.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(gateway.checkoutRequests).To(HaveLen(1))
				Expect(publisher.events).To(BeEmpty())
			})
		})

		Context("when the request is invalid", func() {
			DescribeTable("should reject it before calling the gateway",
				func(mutate func(*paymentpkg.CreateOrderRequest)) {
					req := validOrder()
					mutate(req)

					_, err := service.CreateOrder(ctx, req, owner.ID)

					appErr, ok := internal.IsAppError(err)
					Expect(ok).To(BeTrue())
					Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
					Expect(gateway.checkoutRequests).To(BeEmpty())
					Expect(repo.count()).To(Equal(0))
				},
				Entry("empty title", func(r *paymentpkg.CreateOrderRequest) { r.Title = "" }),
				Entry("zero quantity", func(r *paymentpkg.CreateOrderRequest) { r.Quantity = 0 }),
				Entry("negative price", func(r *paymentpkg.CreateOrderRequest) { r.Price = decimal.RequireFromString("-1") }),
				Entry("zero price", func(r *paymentpkg.CreateOrderRequest) { r.Price = decimal.Zero }),
				Entry("too many decimals", func(r *paymentpkg.CreateOrderRequest) { r.Price = decimal.RequireFromString("1.005") }),
				Entry("oversized title", func(r *paymentpkg.CreateOrderRequest) { r.Title = strings.Repeat("x", 256) }),
			)

			It("should require an authenticated user", func() {
				_, err := service.CreateOrder(ctx, validOrder(), "")

				appErr, ok := internal.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.StatusCode).To(Equal(http.StatusUnauthorized))
			})
		})
	})

	Describe("GetPayment", func() {
		var existing *payment.Payment

		BeforeEach(func() {
			existing = repo.put(&payment.Payment{
				ID:                "pay-1",
				UserID:            owner.ID,
				Status:            payment.StatusPending,
				ExternalReference: "payment_1_a",
				Amount:            decimal.RequireFromString("10.00"),
				Currency:          "ARS",
			})
		})

		It("should return the payment to its owner", func() {
			p, err := service.GetPayment(ctx, existing.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.ID).To(Equal(existing.ID))
		})

		It("should return the payment to an admin", func() {
			p, err := service.GetPayment(ctx, existing.ID, admin)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.UserID).To(Equal(owner.ID))
		})

		It("should refuse anyone else", func() {
			_, err := service.GetPayment(ctx, existing.ID, stranger)
			Expect(err).To(Equal(internal.ErrUnauthorizedAccess))
		})

		It("should report a missing payment", func() {
			_, err := service.GetPayment(ctx, "missing", owner)
			Expect(err).To(Equal(internal.ErrPaymentNotFound))
		})

		It("should wrap store failures as internal errors", func() {
			repo.getError = errDatabaseDown
			_, err := service.GetPayment(ctx, existing.ID, owner)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("ListByUser and ListByAction", func() {
		BeforeEach(func() {
			repo.put(&payment.Payment{ID: "a", UserID: owner.ID, ActionID: strPtr("act-1"), ExternalReference: "r-a"})
			repo.put(&payment.Payment{ID: "b", UserID: owner.ID, ExternalReference: "r-b"})
			repo.put(&payment.Payment{ID: "c", UserID: stranger.ID, ActionID: strPtr("act-1"), ExternalReference: "r-c"})
		})

		It("should list a user's own payments", func() {
			ps, err := service.ListByUser(ctx, owner.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(ps).To(HaveLen(2))
		})

		It("should refuse listing another user's payments", func() {
			_, err := service.ListByUser(ctx, owner.ID, stranger)
			Expect(err).To(Equal(internal.ErrUnauthorizedAccess))
		})

		It("should let an admin list any user's payments", func() {
			ps, err := service.ListByUser(ctx, stranger.ID, admin)
			Expect(err).NotTo(HaveOccurred())
			Expect(ps).To(HaveLen(1))
		})

		It("should scope action listings to the requester unless admin", func() {
			mine, err := service.ListByAction(ctx, "act-1", owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(mine).To(HaveLen(1))
			Expect(mine[0].ID).To(Equal("a"))

			all, err := service.ListByAction(ctx, "act-1", admin)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(2))
		})
	})

	Describe("UpdateStatus", func() {
		BeforeEach(func() {
			repo.put(&payment.Payment{ID: "pending-1", UserID: owner.ID, Status: payment.StatusPending, ExternalReference: "r-1"})
			repo.put(&payment.Payment{ID: "paid-1", UserID: owner.ID, Status: payment.StatusPaid, ExternalReference: "r-2"})
		})

		It("should mark a pending payment paid and publish once", func() {
			p, err := service.UpdateStatus(ctx, "pending-1", payment.StatusPaid, admin)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Status).To(Equal(payment.StatusPaid))
			Expect(p.PaidAt).NotTo(BeNil())

			paid := publisher.ofType(events.EventTypePaymentPaid)
			Expect(paid).To(HaveLen(1))
			Expect(paid[0].(*events.PaymentPaidEvent).Source).To(Equal("manual"))

			_, err = service.UpdateStatus(ctx, "pending-1", payment.StatusPaid, admin)
			Expect(err).NotTo(HaveOccurred())
			Expect(publisher.ofType(events.EventTypePaymentPaid)).To(HaveLen(1))
		})

		It("should refuse moving a paid payment back to pending", func() {
			_, err := service.UpdateStatus(ctx, "paid-1", payment.StatusPending, admin)
			Expect(err).To(Equal(internal.ErrInvalidStatusTransition))
			Expect(repo.snapshot("paid-1").Status).To(Equal(payment.StatusPaid))
		})

		It("should report a conflict when a webhook pays the row mid-update", func() {
			// Given
			repo.beforeUpdateStatus = func(id string) {
				repo.put(&payment.Payment{ID: id, UserID: owner.ID, Status: payment.StatusPaid, ExternalReference: "r-1"})
			}

			// When
			_, err := service.UpdateStatus(ctx, "pending-1", payment.StatusPending, admin)

			// Then
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusConflict))
			Expect(repo.snapshot("pending-1").Status).To(Equal(payment.StatusPaid))
		})

		It("should require an admin", func() {
			_, err := service.UpdateStatus(ctx, "pending-1", payment.StatusPaid, owner)
			Expect(err).To(Equal(internal.ErrUnauthorizedAccess))
			Expect(repo.snapshot("pending-1").Status).To(Equal(payment.StatusPending))
		})

		It("should reject unknown statuses", func() {
			_, err := service.UpdateStatus(ctx, "pending-1", "shipped", admin)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should report a missing payment", func() {
			_, err := service.UpdateStatus(ctx, "missing", payment.StatusPaid, admin)
			Expect(err).To(Equal(internal.ErrPaymentNotFound))
		})
	})
})
