package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/receptionist-billing/internal/core/events"
	"github.com/frahmantamala/receptionist-billing/internal/payment"
	"github.com/frahmantamala/receptionist-billing/pkg/logger"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event tooling",
	Long:  `Publish sample payment events and sign simulated gateway webhooks`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a sample payment event",
	Long: `Publish a sample payment.created, payment.paid or payment.notification_unresolved event
through the event bus, and through the AMQP exchange when messaging is enabled`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return publishSampleEvent(args[0])
	},
}

var signWebhookCmd = &cobra.Command{
	Use:   "sign-webhook [gateway-payment-id]",
	Short: "Print an x-signature header for a simulated webhook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		if cfg.Payment.WebhookSecret == "" {
			return fmt.Errorf("payment.webhook_secret is not configured")
		}
		requestID := webhookRequestID
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
		verifier := payment.NewSignatureVerifier(cfg.Payment.WebhookSecret)
		fmt.Printf("%s: %s\n", payment.HeaderRequestID, requestID)
		fmt.Printf("%s: %s\n", payment.HeaderSignature, verifier.Sign(requestID, args[0], ts))
		return nil
	},
}

var (
	eventPaymentID   string
	webhookRequestID string
)

func publishSampleEvent(eventType string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	lg := logger.LoggerWrapper()

	bus, forwarder, err := initEventBus(cfg.Messaging, lg)
	if err != nil {
		return err
	}
	if forwarder != nil {
		defer forwarder.Close()
	}

	paymentID := eventPaymentID
	if paymentID == "" {
		paymentID = uuid.NewString()
	}
	reference := payment.NewExternalReference(time.Now())

	var event events.Event
	switch eventType {
	case events.EventTypePaymentCreated:
		event = events.NewPaymentCreatedEvent(paymentID, "cli-user", reference, "cli-preference", "50.00", cfg.Payment.Currency)
	case events.EventTypePaymentPaid:
		event = events.NewPaymentPaidEvent(paymentID, "cli-user", reference, "cli-gateway-payment", nil, nil, "50.00", cfg.Payment.Currency, "cli")
	case events.EventTypeNotificationUnresolved:
		event = events.NewNotificationUnresolvedEvent("cli-gateway-payment", reference, "cli-preference", "approved")
	default:
		return fmt.Errorf("unknown event type %q, expected one of %v", eventType, events.PaymentEventTypes)
	}

	lg.Info("publishing sample event", "event_type", eventType, "event_id", event.EventID())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := bus.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	if err := bus.Wait(ctx); err != nil {
		return fmt.Errorf("wait for handlers: %w", err)
	}

	lg.Info("sample event published", "event_id", event.EventID())
	return nil
}

func init() {
	publishEventCmd.Flags().StringVar(&eventPaymentID, "payment-id", "", "payment id to put on the event (random when empty)")
	signWebhookCmd.Flags().StringVar(&webhookRequestID, "request-id", "", "x-request-id to sign (random when empty)")

	eventCmd.AddCommand(publishEventCmd)
	eventCmd.AddCommand(signWebhookCmd)
}
