package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Core
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	Port        int    `env:"PORT" envDefault:"8080"`
	JWTSecret   string `env:"JWT_SECRET,required,notEmpty"`

	// Payment gateway
	StripeSecretKey string        `env:"STRIPE_SECRET_KEY"`
	StripeAPIURL    string        `env:"STRIPE_API_URL" envDefault:"https://api.stripe.com/v1"`
	GatewayTimeout  time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`

	// HTTP
	CORSOrigins      []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	PaymentRateLimit float64  `env:"PAYMENT_RATE_LIMIT" envDefault:"2"`
	PaymentRateBurst int      `env:"PAYMENT_RATE_BURST" envDefault:"5"`

	// Transactions
	TxMaxAttempts int `env:"TX_MAX_ATTEMPTS" envDefault:"3"`

	// Notifications
	NotifyWorkers int `env:"NOTIFY_WORKERS" envDefault:"5"`

	// Coins granted when an account is first provisioned
	SignupBonusWorker int64 `env:"SIGNUP_BONUS_WORKER" envDefault:"10"`
	SignupBonusBuyer  int64 `env:"SIGNUP_BONUS_BUYER" envDefault:"50"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.TxMaxAttempts < 1 {
		return nil, fmt.Errorf("TX_MAX_ATTEMPTS must be >= 1, got %d", cfg.TxMaxAttempts)
	}
	return cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("0.0.0.0:%d", c.Port)
}
