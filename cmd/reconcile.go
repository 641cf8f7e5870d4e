package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/receptionist-billing/internal/core/datamodel/notification"
	"github.com/frahmantamala/receptionist-billing/internal/payment"
	"github.com/frahmantamala/receptionist-billing/pkg/logger"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [gateway-payment-id...]",
	Short: "Re-run webhook reconciliation for gateway payments",
	Long: `Re-run reconciliation for the given gateway payment ids, or with --unresolved for every
notification that previously matched nothing or failed the gateway lookup.`,
	RunE: runReconcile,
}

var (
	reconcileUnresolved bool
	reconcileLimit      int
)

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileUnresolved, "unresolved", false, "retry notifications recorded as unresolved or lookup_failed")
	reconcileCmd.Flags().IntVar(&reconcileLimit, "limit", 100, "maximum notifications to load with --unresolved")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !reconcileUnresolved {
		return errors.New("pass gateway payment ids or --unresolved")
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger.Init(cfg.Env, cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	lg := logger.LoggerWrapper()

	db, err := initDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	gormDB, err := openGorm(db)
	if err != nil {
		return err
	}

	bus, forwarder, err := initEventBus(cfg.Messaging, lg)
	if err != nil {
		return err
	}
	if forwarder != nil {
		defer forwarder.Close()
	}

	stack := buildPaymentStack(cfg, db, gormDB, bus, lg)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	ids := args
	if reconcileUnresolved {
		pending, err := replayCandidates(ctx, stack.Notifications, reconcileLimit)
		if err != nil {
			return err
		}
		ids = append(ids, pending...)
	}

	reconciler := newReplayReconciler(stack.Repository, stack.Gateway, bus, stack.Notifications, lg)
	summary := reconcileAll(ctx, reconciler, uniqueNonEmpty(ids), lg)
	if err := bus.Wait(ctx); err != nil {
		lg.Warn("event handlers still running", "error", err)
	}

	for outcome, count := range summary {
		fmt.Printf("%-14s %d\n", outcome, count)
	}
	return nil
}

// replayLog is the part of the webhook audit log a replay reads.
type replayLog interface {
	ListByOutcome(ctx context.Context, outcomes []string, limit int) ([]*notification.WebhookNotification, error)
	ListByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) ([]*notification.WebhookNotification, error)
}

// replayCandidates returns the gateway ids whose most recent delivery still
// needs a retry. Ids resolved by a later delivery are skipped.
func replayCandidates(ctx context.Context, log replayLog, limit int) ([]string, error) {
	recent, err := log.ListByOutcome(ctx,
		[]string{notification.OutcomeUnresolved, notification.OutcomeLookupFailed}, limit)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(recent))
	for _, n := range recent {
		ids = append(ids, n.GatewayPaymentID)
	}

	out := make([]string, 0, len(ids))
	for _, id := range uniqueNonEmpty(ids) {
		history, err := log.ListByGatewayPaymentID(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(history) == 0 || !history[len(history)-1].NeedsRetry() {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// newReplayReconciler builds a reconciler without the recency fallback. A
// replayed notification is never attributed to whichever payment happens to
// be pending at replay time.
func newReplayReconciler(repo payment.RepositoryAPI, gateway payment.GatewayAPI, publisher payment.EventPublisher, log payment.NotificationLog, lg *slog.Logger) *payment.Reconciler {
	return payment.NewReconciler(repo, gateway, publisher, lg,
		payment.WithMatchers(payment.DefaultMatchers(false)...),
		payment.WithNotificationLog(log),
	)
}

// reconcileAll runs ids one by one and counts outcomes. Store failures are
// counted as "error" and do not stop the run.
func reconcileAll(ctx context.Context, reconciler payment.ReconcilerAPI, ids []string, lg *slog.Logger) map[string]int {
	summary := make(map[string]int)
	for _, id := range ids {
		res, err := reconciler.Reconcile(ctx, payment.Notification{
			Topic:            "payment",
			Action:           "manual.reconcile",
			GatewayPaymentID: id,
			Payload:          []byte(fmt.Sprintf(`{"source":"cli","data":{"id":%q}}`, id)),
		})
		if err != nil {
			lg.Error("reconcile failed", "gateway_payment_id", id, "error", err)
			summary["error"]++
			continue
		}
		lg.Info("reconciled", "gateway_payment_id", id, "outcome", res.Outcome, "matched_by", res.MatchedBy)
		summary[res.Outcome]++
	}
	return summary
}

func uniqueNonEmpty(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
