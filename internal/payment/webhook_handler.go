package payment

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/receptionist-billing/internal/transport"
)

const maxWebhookBodyBytes = 1 << 20

// ReconcilerAPI is what the webhook endpoint needs from the reconciler.
type ReconcilerAPI interface {
	Reconcile(ctx context.Context, n Notification) (*ReconcileResult, error)
}

type WebhookHandler struct {
	*transport.BaseHandler
	reconciler ReconcilerAPI
	verifier   *SignatureVerifier
	logger     *slog.Logger
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, reconciler ReconcilerAPI, verifier *SignatureVerifier, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if baseHandler == nil {
		baseHandler = transport.NewBaseHandler(logger)
	}
	return &WebhookHandler{
		BaseHandler: baseHandler,
		reconciler:  reconciler,
		verifier:    verifier,
		logger:      logger,
	}
}

// HandleNotification handles POST /payments/webhook.
//
// Every notification the service could deal with, including ones that match
// nothing, is acknowledged with 200 so the gateway stops redelivering. Only a
// store failure answers 500, which lets the gateway retry later.
func (h *WebhookHandler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		h.logger.Warn("failed to read webhook body", "error", err)
		h.WriteJSON(w, http.StatusOK, WebhookResponse{Status: "ignored", Message: "unreadable body"})
		return
	}

	n := ParseNotification(body, r.URL.Query())

	if h.verifier.Enabled() {
		dataID := r.URL.Query().Get("data.id")
		if dataID == "" {
			dataID = n.GatewayPaymentID
		}
		if err := h.verifier.Verify(r.Header.Get(HeaderSignature), r.Header.Get(HeaderRequestID), dataID); err != nil {
			h.logger.Warn("webhook signature rejected", "gateway_payment_id", n.GatewayPaymentID)
			h.HandleServiceError(w, err)
			return
		}
	}

	h.logger.Info("received payment notification",
		"gateway_payment_id", n.GatewayPaymentID,
		"topic", n.Topic,
		"action", n.Action)

	res, err := h.reconciler.Reconcile(r.Context(), n)
	if err != nil {
		h.logger.Error("webhook reconciliation failed", "gateway_payment_id", n.GatewayPaymentID, "error", err)
		h.WriteError(w, http.StatusInternalServerError, "failed to process notification")
		return
	}

	h.WriteJSON(w, http.StatusOK, WebhookResponse{Status: res.Outcome})
}
