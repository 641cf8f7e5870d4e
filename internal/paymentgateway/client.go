package paymentgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	gatewaytypes "github.com/frahmantamala/receptionist-billing/internal/core/datamodel/paymentgateway"
)

const (
	defaultTimeout = 10 * time.Second

	checkoutPreferencesPath = "/checkout/preferences"
	paymentByIDPath         = "/v1/payments/{id}"
)

type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// Client talks to the hosted checkout gateway. It keeps no local state: every
// method is a single request bounded by the configured timeout.
type Client struct {
	http    *resty.Client
	timeout time.Duration
	logger  *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(config.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	if config.AccessToken != "" {
		httpClient.SetAuthToken(config.AccessToken)
	}

	return &Client{
		http:    httpClient,
		timeout: timeout,
		logger:  logger,
	}
}

// CreateCheckoutSession registers a checkout preference tied to req.ExternalReference.
func (c *Client) CreateCheckoutSession(ctx context.Context, req *gatewaytypes.CheckoutRequest) (*gatewaytypes.CheckoutSession, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var session gatewaytypes.CheckoutSession
	var apiErr gatewaytypes.APIErrorBody

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Idempotency-Key", req.ExternalReference).
		SetBody(req).
		SetResult(&session).
		SetError(&apiErr).
		ForceContentType("application/json").
		Post(checkoutPreferencesPath)
	if err != nil {
		c.logger.Error("gateway create checkout failed", "external_reference", req.ExternalReference, "error", err)
		return nil, &gatewaytypes.Error{Kind: gatewaytypes.ErrGatewayUnavailable, Message: err.Error()}
	}

	if resp.IsError() {
		status := resp.StatusCode()
		kind := gatewaytypes.ErrGatewayRejected
		if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
			kind = gatewaytypes.ErrGatewayUnavailable
		}
		c.logger.Error("gateway create checkout returned error",
			"external_reference", req.ExternalReference,
			"status", status,
			"message", apiErr.Text())
		return nil, &gatewaytypes.Error{Kind: kind, StatusCode: status, Message: messageOr(apiErr.Text(), resp.String())}
	}

	if session.PreferenceID == "" {
		return nil, &gatewaytypes.Error{
			Kind:       gatewaytypes.ErrGatewayUnavailable,
			StatusCode: resp.StatusCode(),
			Message:    "checkout response without preference id",
		}
	}

	c.logger.Info("gateway checkout session created",
		"external_reference", req.ExternalReference,
		"preference_id", session.PreferenceID)

	return &session, nil
}

// FetchPayment returns the gateway's authoritative record for gatewayPaymentID.
func (c *Client) FetchPayment(ctx context.Context, gatewayPaymentID string) (*gatewaytypes.Payment, error) {
	if strings.TrimSpace(gatewayPaymentID) == "" {
		return nil, &gatewaytypes.Error{Kind: gatewaytypes.ErrGatewayLookupFailed, Message: "empty gateway payment id"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var apiErr gatewaytypes.APIErrorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", gatewayPaymentID).
		SetError(&apiErr).
		ForceContentType("application/json").
		Get(paymentByIDPath)
	if err != nil {
		c.logger.Error("gateway payment lookup failed", "gateway_payment_id", gatewayPaymentID, "error", err)
		return nil, &gatewaytypes.Error{Kind: gatewaytypes.ErrGatewayLookupFailed, Message: err.Error()}
	}

	if resp.IsError() {
		c.logger.Warn("gateway payment lookup returned error",
			"gateway_payment_id", gatewayPaymentID,
			"status", resp.StatusCode(),
			"message", apiErr.Text())
		return nil, &gatewaytypes.Error{
			Kind:       gatewaytypes.ErrGatewayLookupFailed,
			StatusCode: resp.StatusCode(),
			Message:    messageOr(apiErr.Text(), resp.String()),
		}
	}

	body := resp.Body()
	var p gatewaytypes.Payment
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &gatewaytypes.Error{
			Kind:       gatewaytypes.ErrGatewayLookupFailed,
			StatusCode: resp.StatusCode(),
			Message:    fmt.Sprintf("decode payment: %v", err),
		}
	}
	p.Raw = append(json.RawMessage(nil), body...)

	c.logger.Debug("gateway payment fetched",
		"gateway_payment_id", gatewayPaymentID,
		"status", p.Status,
		"external_reference", p.ExternalReference)

	return &p, nil
}

func messageOr(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	if len(fallback) > 256 {
		return fallback[:256]
	}
	return fallback
}
