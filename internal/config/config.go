package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"subledger/internal/subscription"
)

// Config is the API server configuration, read from the environment after an
// optional .env file.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR,default=:8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s"`

	DatabaseDriver string `env:"DATABASE_DRIVER,default=memory"`
	DatabaseURL    string `env:"DATABASE_URL"`

	JWTSecret string `env:"JWT_SECRET,required"`

	// 10 tokens with 18 decimals
	SubscriptionFee    decimal.Decimal `env:"SUBSCRIPTION_FEE,default=10000000000000000000"`
	SubscriptionPeriod time.Duration   `env:"SUBSCRIPTION_PERIOD,default=720h"`
	PaymentToken       string          `env:"PAYMENT_TOKEN,default=SUB"`
	OwnerAccount       string          `env:"OWNER_ACCOUNT,required"`
	CustodyAccount     string          `env:"CUSTODY_ACCOUNT,default=custody"`

	// Empty selects the in-process token ledger.
	PaymentRailURL     string        `env:"PAYMENT_RAIL_URL"`
	PaymentRailTimeout time.Duration `env:"PAYMENT_RAIL_TIMEOUT,default=10s"`
	DevFaucet          bool          `env:"DEV_FAUCET,default=false"`

	RedisURL     string `env:"REDIS_URL"`
	RedisChannel string `env:"REDIS_CHANNEL,default=subledger.events"`

	EventOutboxCapacity int `env:"EVENT_OUTBOX_CAPACITY,default=10000"`
	AutomationRateLimit int `env:"AUTOMATION_RATE_LIMIT,default=120"`

	MetricsUser         string `env:"METRICS_USER,default=metrics"`
	MetricsPasswordHash string `env:"METRICS_PASSWORD_HASH"`

	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS,default=http://localhost:3000;http://localhost:5173"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
}

// RelayConfig configures the automation relay process.
type RelayConfig struct {
	ServerURL string        `env:"RELAY_SERVER_URL,default=http://localhost:8080"`
	Schedule  string        `env:"RELAY_SCHEDULE,default=@every 1m"`
	BatchSize int           `env:"RELAY_BATCH_SIZE,default=50"`
	Timeout   time.Duration `env:"RELAY_HTTP_TIMEOUT,default=15s"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=console"`
}

func Load() (*Config, error) {
	loadDotEnv()

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.DevFaucet && cfg.PaymentRailURL != "" {
		return nil, errors.New("DEV_FAUCET needs the in-process token ledger, unset PAYMENT_RAIL_URL")
	}
	if _, err := cfg.Ledger(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadRelay() (*RelayConfig, error) {
	loadDotEnv()

	var cfg RelayConfig
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("decode relay config: %w", err)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("RELAY_BATCH_SIZE must be positive, got %d", cfg.BatchSize)
	}
	return &cfg, nil
}

// Ledger builds the validated subscription settings.
func (c *Config) Ledger() (subscription.Config, error) {
	lc := subscription.Config{
		Fee:          c.SubscriptionFee,
		Period:       c.SubscriptionPeriod,
		PaymentToken: c.PaymentToken,
		Owner:        strings.TrimSpace(c.OwnerAccount),
	}
	if err := lc.Validate(); err != nil {
		return subscription.Config{}, err
	}
	return lc, nil
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, using process environment")
	}
}
