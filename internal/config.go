package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env           string              `mapstructure:"env"`
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	Messaging     MessagingConfig     `mapstructure:"messaging"`
}

type ServerConfig struct {
	Port              int             `mapstructure:"port" validate:"required,min=1,max=65535"`
	BaseURL           string          `mapstructure:"base_url" validate:"omitempty,url"`
	AllowedOrigins    string          `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration   `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration   `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration   `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration   `mapstructure:"write_timeout"`
	RateLimit         RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig throttles the public webhook endpoint per client IP.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"required_if=Enabled true,gte=0"`
	Burst             int     `mapstructure:"burst" validate:"required_if=Enabled true,gte=0"`
	// TrustedProxies is a comma separated list of CIDRs whose forwarding
	// headers are honoured. Empty means the peer address is always used.
	TrustedProxies string `mapstructure:"trusted_proxies"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"omitempty,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"omitempty,min=1m"`
	Source          string        `mapstructure:"source" validate:"required"`
}

type SecurityConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

type PaymentConfig struct {
	Gateway         GatewayConfig   `mapstructure:"gateway"`
	Currency        string          `mapstructure:"currency" validate:"required,len=3"`
	BackURLs        BackURLsConfig  `mapstructure:"back_urls"`
	NotificationURL string          `mapstructure:"notification_url" validate:"omitempty,url"`
	WebhookSecret   string          `mapstructure:"webhook_secret"`
	Reconcile       ReconcileConfig `mapstructure:"reconcile"`
}

type GatewayConfig struct {
	BaseURL     string        `mapstructure:"base_url" validate:"required,url"`
	AccessToken string        `mapstructure:"access_token" validate:"required"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// BackURLsConfig holds the browser redirect targets handed to the checkout session.
// They carry no authority over payment status.
type BackURLsConfig struct {
	Success string `mapstructure:"success" validate:"omitempty,url"`
	Pending string `mapstructure:"pending" validate:"omitempty,url"`
	Failure string `mapstructure:"failure" validate:"omitempty,url"`
}

type ReconcileConfig struct {
	RecencyFallback bool `mapstructure:"recency_fallback"`
}

type MessagingConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	URL        string        `mapstructure:"url" validate:"required_if=Enabled true"`
	Exchange   string        `mapstructure:"exchange" validate:"required_if=Enabled true"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json text"`
}

// LoadConfigFromEnv builds the configuration from plain environment variables, used
// for container deployments where no config.yml is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Env: getEnv("APP_ENV", "production"),
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("BASE_URL", ""),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("WRITE_TIMEOUT", 30*time.Second),
			RateLimit: RateLimitConfig{
				Enabled:           getEnvAsBool("WEBHOOK_RATE_LIMIT_ENABLED", true),
				RequestsPerSecond: getEnvAsFloat("WEBHOOK_RATE_LIMIT_RPS", 20),
				Burst:             getEnvAsInt("WEBHOOK_RATE_LIMIT_BURST", 40),
				TrustedProxies:    getEnv("WEBHOOK_RATE_LIMIT_TRUSTED_PROXIES", ""),
			},
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_URL", ""),
		},
		Security: SecurityConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			JWTIssuer: getEnv("JWT_ISSUER", ""),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
		Payment: PaymentConfig{
			Gateway: GatewayConfig{
				BaseURL:     getEnv("PAYMENT_GATEWAY_URL", "https://api.mercadopago.com"),
				AccessToken: getEnv("PAYMENT_GATEWAY_ACCESS_TOKEN", ""),
				Timeout:     getEnvAsDuration("PAYMENT_GATEWAY_TIMEOUT", 10*time.Second),
			},
			Currency: getEnv("PAYMENT_CURRENCY", "ARS"),
			BackURLs: BackURLsConfig{
				Success: getEnv("PAYMENT_SUCCESS_URL", ""),
				Pending: getEnv("PAYMENT_PENDING_URL", ""),
				Failure: getEnv("PAYMENT_FAILURE_URL", ""),
			},
			NotificationURL: getEnv("PAYMENT_NOTIFICATION_URL", ""),
			WebhookSecret:   getEnv("PAYMENT_WEBHOOK_SECRET", ""),
			Reconcile: ReconcileConfig{
				RecencyFallback: getEnvAsBool("PAYMENT_RECENCY_FALLBACK", true),
			},
		},
		Messaging: MessagingConfig{
			Enabled:    getEnvAsBool("AMQP_ENABLED", false),
			URL:        getEnv("AMQP_URL", ""),
			Exchange:   getEnv("AMQP_EXCHANGE", "billing.events"),
			MaxRetries: getEnvAsInt("AMQP_MAX_RETRIES", 5),
			RetryDelay: getEnvAsDuration("AMQP_RETRY_DELAY", 2*time.Second),
		},
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	return c.ValidateWith(validator.New())
}

// ValidateWith runs the struct tag rules through validate and then the
// cross-field checks the tags cannot express.
func (c *Config) ValidateWith(validate *validator.Validate) error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	for _, origin := range c.Origins() {
		if origin == "*" {
			continue
		}
		if _, err := url.Parse(origin); err != nil {
			return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
		}
	}
	if c.ReadHeaderTimeout > 0 && c.ReadTimeout > 0 && c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

// Origins splits AllowedOrigins, defaulting to every origin.
func (c *ServerConfig) Origins() []string {
	if strings.TrimSpace(c.AllowedOrigins) == "" {
		return []string{"*"}
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *RateLimitConfig) Proxies() []string {
	var out []string
	for _, p := range strings.Split(c.TrustedProxies, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
