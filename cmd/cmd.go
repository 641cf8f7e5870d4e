package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/frahmantamala/receptionist-billing/internal"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "receptionist-billing",
	Short: "Receptionist Billing",
	Long:  `Checkout creation and asynchronous payment reconciliation for the AI receptionist platform.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*internal.Config, error) {
	// Check if we're running in Docker environment
	if os.Getenv("APP_ENV") == "production" || os.Getenv("DOCKER_ENV") == "true" {
		cfg := internal.LoadConfigFromEnv()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("error validating config from environment: %w", err)
		}
		return cfg, nil
	}

	// Load configuration from file (development)
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix("ENV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	var cfg internal.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("error validating config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("http_server.port", 8080)
	v.SetDefault("http_server.rate_limit.enabled", true)
	v.SetDefault("http_server.rate_limit.requests_per_second", 20)
	v.SetDefault("http_server.rate_limit.burst", 40)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("observability.logging.level", "debug")
	v.SetDefault("observability.logging.format", "text")
	v.SetDefault("payment.gateway.base_url", "https://api.mercadopago.com")
	v.SetDefault("payment.gateway.timeout", "10s")
	v.SetDefault("payment.currency", "ARS")
	v.SetDefault("payment.reconcile.recency_fallback", true)
	v.SetDefault("messaging.exchange", "billing.events")
	v.SetDefault("messaging.max_retries", 5)
	v.SetDefault("messaging.retry_delay", "2s")
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config-path", "c", ".", "directory holding config.yml")

	rootCmd.AddCommand(httpServerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(eventCmd)
}
