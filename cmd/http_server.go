package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/receptionist-billing/api"
	"github.com/frahmantamala/receptionist-billing/internal"
	"github.com/frahmantamala/receptionist-billing/internal/auth"
	"github.com/frahmantamala/receptionist-billing/internal/core/events"
	"github.com/frahmantamala/receptionist-billing/internal/payment"
	"github.com/frahmantamala/receptionist-billing/internal/transport"
	"github.com/frahmantamala/receptionist-billing/internal/transport/middleware"
	"github.com/frahmantamala/receptionist-billing/internal/transport/rest"
	"github.com/frahmantamala/receptionist-billing/internal/transport/swagger"
	"github.com/frahmantamala/receptionist-billing/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server handling checkout, payment queries and gateway webhooks`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config    *internal.Config
	DB        *sqlx.DB
	Router    *chi.Mux
	Bus       *events.EventBus
	Forwarder *events.AMQPForwarder
	Limiter   *middleware.RateLimiter
	Logger    *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	if deps.Limiter != nil {
		go deps.Limiter.Run(bgCtx)
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		if err := deps.Bus.Wait(ctx); err != nil {
			deps.Logger.Warn("event handlers still running at shutdown", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	if deps.Forwarder != nil {
		if err := deps.Forwarder.Close(); err != nil {
			deps.Logger.Error("AMQP forwarder close error", "error", err)
		}
	}
	if err := deps.DB.Close(); err != nil {
		deps.Logger.Error("Database close error", "error", err)
	}

	deps.Logger.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Env, config.Observability.Logging.Level, config.Observability.Logging.Format)
	lg := logger.LoggerWrapper()

	if _, err := swagger.LoadSpec(context.Background(), api.OpenAPISpec); err != nil {
		return nil, fmt.Errorf("invalid embedded openapi document: %w", err)
	}

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := openGorm(db)
	if err != nil {
		return nil, err
	}

	bus, forwarder, err := initEventBus(config.Messaging, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize event bus: %w", err)
	}

	stack := buildPaymentStack(config, db, gormDB, bus, lg)

	var verifier *payment.SignatureVerifier
	if config.Payment.WebhookSecret != "" {
		verifier = payment.NewSignatureVerifier(config.Payment.WebhookSecret)
	} else {
		lg.Warn("webhook signature verification disabled; relying on gateway lookup only")
	}

	var limiter *middleware.RateLimiter
	if config.Server.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(config.Server.RateLimit.RequestsPerSecond, config.Server.RateLimit.Burst)
		if err := limiter.TrustProxies(config.Server.RateLimit.Proxies()...); err != nil {
			return nil, fmt.Errorf("invalid rate limit trusted proxies: %w", err)
		}
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, rest.Routes{
		Health:         rest.NewHealthHandler(db),
		Auth:           auth.NewHandler(auth.NewJWTValidator(config.Security.JWTSecret, config.Security.JWTIssuer)),
		Payments:       payment.NewHandler(stack.Service, lg),
		Webhook:        payment.NewWebhookHandler(transport.NewBaseHandler(lg), stack.Reconciler, verifier, lg),
		WebhookLimiter: limiter,
		OpenAPISpec:    api.OpenAPISpec,
		AllowedOrigins: config.Server.Origins(),
		Logger:         lg,
	})

	return &Dependencies{
		Config:    config,
		DB:        db,
		Router:    router,
		Bus:       bus,
		Forwarder: forwarder,
		Limiter:   limiter,
		Logger:    lg,
	}, nil
}
