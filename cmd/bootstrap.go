package cmd

import (
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/frahmantamala/receptionist-billing/internal"
	"github.com/frahmantamala/receptionist-billing/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/receptionist-billing/internal/core/events"
	"github.com/frahmantamala/receptionist-billing/internal/payment"
	paymentpostgres "github.com/frahmantamala/receptionist-billing/internal/payment/postgres"
	gatewayclient "github.com/frahmantamala/receptionist-billing/internal/paymentgateway"
)

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	if cfg.ConnMaxLifetime > 0 {
		dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// openGorm shares db's pool with gorm.
func openGorm(db *sqlx.DB) (*gorm.DB, error) {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}
	return gormDB, nil
}

// paymentStack is the wired payment domain.
type paymentStack struct {
	Repository    *paymentpostgres.PaymentRepository
	Notifications *paymentpostgres.NotificationRepository
	Gateway       *gatewayclient.Client
	Service       *payment.Service
	Reconciler    *payment.Reconciler
}

func buildPaymentStack(cfg *internal.Config, db *sqlx.DB, gormDB *gorm.DB, bus *events.EventBus, logger *slog.Logger) *paymentStack {
	repo := paymentpostgres.NewPaymentRepository(gormDB)
	notifications := paymentpostgres.NewNotificationRepository(db)

	gateway := gatewayclient.NewClient(gatewayclient.Config{
		BaseURL:     cfg.Payment.Gateway.BaseURL,
		AccessToken: cfg.Payment.Gateway.AccessToken,
		Timeout:     cfg.Payment.Gateway.Timeout,
	}, logger)

	service := payment.NewService(repo, gateway, bus, payment.CheckoutConfig{
		Currency: cfg.Payment.Currency,
		BackURLs: paymentgateway.BackURLs{
			Success: cfg.Payment.BackURLs.Success,
			Pending: cfg.Payment.BackURLs.Pending,
			Failure: cfg.Payment.BackURLs.Failure,
		},
		NotificationURL: cfg.Payment.NotificationURL,
	}, logger)

	if cfg.Payment.Reconcile.RecencyFallback {
		logger.Warn("recency fallback matcher enabled; unmatched notifications may be attributed to the newest pending payment")
	}
	reconciler := payment.NewReconciler(repo, gateway, bus, logger,
		payment.WithMatchers(payment.DefaultMatchers(cfg.Payment.Reconcile.RecencyFallback)...),
		payment.WithNotificationLog(notifications),
	)

	return &paymentStack{
		Repository:    repo,
		Notifications: notifications,
		Gateway:       gateway,
		Service:       service,
		Reconciler:    reconciler,
	}
}

// initEventBus builds the bus, registers the logging handlers and, when
// enabled, the AMQP forwarder. The returned forwarder may be nil.
func initEventBus(cfg internal.MessagingConfig, logger *slog.Logger) (*events.EventBus, *events.AMQPForwarder, error) {
	bus := events.NewEventBus(logger)
	payment.NewEventHandler(logger).RegisterEventHandlers(bus)

	if !cfg.Enabled {
		return bus, nil, nil
	}

	forwarder, err := events.DialAMQPForwarder(events.AMQPConfig{
		URL:        cfg.URL,
		Exchange:   cfg.Exchange,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	forwarder.Attach(bus, events.PaymentEventTypes...)
	return bus, forwarder, nil
}
