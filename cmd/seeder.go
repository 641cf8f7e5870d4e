package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	paymentmodel "github.com/frahmantamala/receptionist-billing/internal/core/datamodel/payment"
	"github.com/frahmantamala/receptionist-billing/internal/payment"
	paymentpostgres "github.com/frahmantamala/receptionist-billing/internal/payment/postgres"
)

var (
	seedUserID string
	seedCount  int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed pending payments for local webhook testing",
	Long: `Insert pending payments with fresh external references so simulated gateway
notifications have something to reconcile against.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		defer db.Close()

		gormDB, err := openGorm(db)
		if err != nil {
			return err
		}
		repo := paymentpostgres.NewPaymentRepository(gormDB)

		for i := 0; i < seedCount; i++ {
			preference := "seed-pref-" + uuid.NewString()[:8]
			p := &paymentmodel.Payment{
				ID:                  uuid.NewString(),
				UserID:              seedUserID,
				GatewayPreferenceID: &preference,
				ExternalReference:   payment.NewExternalReference(time.Now()),
				Status:              paymentmodel.StatusPending,
				Title:               "Receptionist monthly plan",
				Quantity:            1,
				Amount:              decimal.RequireFromString("50.00"),
				Currency:            cfg.Payment.Currency,
			}
			if err := repo.Create(cmd.Context(), p); err != nil {
				return err
			}
			fmt.Printf("%s\t%s\t%s\n", p.ID, p.ExternalReference, preference)
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedUserID, "user", "seed-user", "owner of the seeded payments")
	seedCmd.Flags().IntVar(&seedCount, "count", 1, "number of pending payments to insert")
}
