package payment_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/receptionist-billing/internal"
	"github.com/frahmantamala/receptionist-billing/internal/core/datamodel/payment"
	gatewaytypes "github.com/frahmantamala/receptionist-billing/internal/core/datamodel/paymentgateway"
	paymentpkg "github.com/frahmantamala/receptionist-billing/internal/payment"
)

// withUser stands in for the auth middleware.
func withUser(user *internal.User) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user != nil {
				r = r.WithContext(internal.ContextWithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func paymentRouter(handler *paymentpkg.Handler, user *internal.User) http.Handler {
	r := chi.NewRouter()
	r.Use(withUser(user))
	r.Post("/payments/create-order", handler.CreateOrder)
	r.Get("/payments/user/{userId}", handler.ListByUser)
	r.Get("/payments/action/{actionId}", handler.ListByAction)
	r.Get("/payments/{id}", handler.GetPayment)
	r.Patch("/payments/{id}/status", handler.UpdateStatus)
	return r
}

type errorBody struct {
	Error struct {
		Type string `json:"type"`
		Code string `json:"code"`
	} `json:"error"`
}

var _ = Describe("PaymentHandler", func() {
	var (
		repo    *mockPaymentRepository
		gateway *mockGateway
		handler *paymentpkg.Handler
		owner   *internal.User
	)

	BeforeEach(func() {
		repo = newMockPaymentRepository()
		gateway = newMockGateway()
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service := paymentpkg.NewService(repo, gateway, &recordingPublisher{}, paymentpkg.CheckoutConfig{Currency: "ARS"}, logger)
		handler = paymentpkg.NewHandler(service, logger)
		owner = &internal.User{ID: "user-1"}
	})

	serve := func(user *internal.User, method, path string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		paymentRouter(handler, user).ServeHTTP(rec, req)
		return rec
	}

	Describe("CreateOrder", func() {
		It("should return 201 with the checkout links", func() {
			// Given
			body := []byte(`{"title":"Consultation","quantity":1,"price":"50.00","actionType":"appointment"}`)

			// When
			rec := serve(owner, http.MethodPost, "/payments/create-order", body)

			// Then
			Expect(rec.Code).To(Equal(http.StatusCreated))
			var resp paymentpkg.CreateOrderResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.ID).To(Equal("pref-1"))
			Expect(resp.InitPoint).NotTo(BeEmpty())
			Expect(resp.PaymentID).NotTo(BeEmpty())

			var raw map[string]interface{}
			Expect(json.Unmarshal(rec.Body.Bytes(), &raw)).To(Succeed())
			Expect(raw).To(HaveKey("init_point"))
			Expect(raw).To(HaveKey("sandbox_init_point"))
			Expect(raw).To(HaveKey("paymentId"))
		})

		It("should return 400 for a malformed body", func() {
			rec := serve(owner, http.MethodPost, "/payments/create-order", []byte(`{"title":`))

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			var body errorBody
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Error.Code).To(Equal(string(internal.ErrCodeInvalidRequest)))
		})

		It("should return 400 for an invalid order", func() {
			rec := serve(owner, http.MethodPost, "/payments/create-order", []byte(`{"title":"x","quantity":0,"price":"1"}`))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(repo.count()).To(Equal(0))
		})

		It("should return 401 without a user", func() {
			rec := serve(nil, http.MethodPost, "/payments/create-order", []byte(`{}`))
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("should return 502 when the gateway is down", func() {
			gateway.createError = &gatewaytypes.Error{Kind: gatewaytypes.ErrGatewayUnavailable, Message: "connection refused"}

			rec := serve(owner, http.MethodPost, "/payments/create-order", []byte(`{"title":"x","quantity":1,"price":"10"}`))

			Expect(rec.Code).To(Equal(http.StatusBadGateway))
			Expect(rec.Body.String()).NotTo(ContainSubstring("connection refused"))
			Expect(repo.count()).To(Equal(0))
		})
	})

	Describe("read endpoints", func() {
		BeforeEach(func() {
			repo.put(&payment.Payment{
				ID:                "pay-1",
				UserID:            owner.ID,
				Status:            payment.StatusPending,
				ExternalReference: "payment_1_a",
				Amount:            decimal.RequireFromString("50"),
				Currency:          "ARS",
				ActionID:          strPtr("act-1"),
				RawGatewayPayload: []byte(`{"secret":"internal"}`),
			})
		})

		It("should return the payment without the raw gateway payload", func() {
			rec := serve(owner, http.MethodGet, "/payments/pay-1", nil)

			Expect(rec.Code).To(Equal(http.StatusOK))
			var view paymentpkg.PaymentView
			Expect(json.Unmarshal(rec.Body.Bytes(), &view)).To(Succeed())
			Expect(view.ID).To(Equal("pay-1"))
			Expect(view.Amount).To(Equal("50.00"))
			Expect(rec.Body.String()).NotTo(ContainSubstring("internal"))
		})

		It("should return 403 to another user", func() {
			rec := serve(&internal.User{ID: "user-2"}, http.MethodGet, "/payments/pay-1", nil)
			Expect(rec.Code).To(Equal(http.StatusForbidden))
		})

		It("should return 404 for an unknown payment", func() {
			rec := serve(owner, http.MethodGet, "/payments/nope", nil)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("should list by user and by action", func() {
			rec := serve(owner, http.MethodGet, "/payments/user/user-1", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			var views []paymentpkg.PaymentView
			Expect(json.Unmarshal(rec.Body.Bytes(), &views)).To(Succeed())
			Expect(views).To(HaveLen(1))

			rec = serve(owner, http.MethodGet, "/payments/action/act-1", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(json.Unmarshal(rec.Body.Bytes(), &views)).To(Succeed())
			Expect(views).To(HaveLen(1))
		})

		It("should return an empty array when nothing matches", func() {
			rec := serve(owner, http.MethodGet, "/payments/action/none", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("[]\n"))
		})
	})

	Describe("UpdateStatus", func() {
		var admin *internal.User

		BeforeEach(func() {
			admin = &internal.User{ID: "admin-1", Permissions: []string{internal.PermissionAdmin}}
			repo.put(&payment.Payment{ID: "pay-1", UserID: owner.ID, Status: payment.StatusPaid, ExternalReference: "r"})
		})

		It("should return 409 when moving a paid payment back", func() {
			rec := serve(admin, http.MethodPatch, "/payments/pay-1/status", []byte(`{"status":"pending"}`))
			Expect(rec.Code).To(Equal(http.StatusConflict))
		})

		It("should return 403 for a non admin", func() {
			rec := serve(owner, http.MethodPatch, "/payments/pay-1/status", []byte(`{"status":"paid"}`))
			Expect(rec.Code).To(Equal(http.StatusForbidden))
		})
	})
})
