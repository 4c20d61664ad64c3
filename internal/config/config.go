package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the credit engine daemon.
type Config struct {
	// Database
	DatabaseURL string

	// Server (ops surface only: health, metrics, websocket upgrade)
	Port string
	Env  string

	// Engine tunables
	CVLUpgradeBufferPct decimal.Decimal
	ObligationDueGrace  time.Duration
	ObligationOverdueAt time.Duration
	ProjectionLookahead int // months; validated at load, not read by the repayment-plan projector

	// Retry budgets (spec §5)
	PaymentAllocationMaxAttempts int
	WriterMaxAttempts            int

	// Accrual job scheduling
	AccrualPollInterval      time.Duration
	AwaitSyncMaxReschedules  int
	AwaitSyncRescheduleDelay time.Duration

	// Other tick-driven workers
	ObligationTimerPollInterval   time.Duration
	CollateralMonitorPollInterval time.Duration
}

// Load reads configuration from environment variables, falling back to a
// .env file in the working directory if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cvlBuffer, err := decimal.NewFromString(getEnv("CVL_UPGRADE_BUFFER_PCT", "5"))
	if err != nil {
		return nil, fmt.Errorf("CVL_UPGRADE_BUFFER_PCT: %w", err)
	}

	lookahead, err := strconv.Atoi(getEnv("PROJECTION_LOOKAHEAD_MONTHS", "12"))
	if err != nil {
		return nil, fmt.Errorf("PROJECTION_LOOKAHEAD_MONTHS: %w", err)
	}

	paymentAttempts, err := strconv.Atoi(getEnv("PAYMENT_ALLOCATION_MAX_ATTEMPTS", "15"))
	if err != nil {
		return nil, fmt.Errorf("PAYMENT_ALLOCATION_MAX_ATTEMPTS: %w", err)
	}

	writerAttempts, err := strconv.Atoi(getEnv("WRITER_MAX_ATTEMPTS", "5"))
	if err != nil {
		return nil, fmt.Errorf("WRITER_MAX_ATTEMPTS: %w", err)
	}

	awaitSyncMax, err := strconv.Atoi(getEnv("AWAIT_SYNC_MAX_RESCHEDULES", "12"))
	if err != nil {
		return nil, fmt.Errorf("AWAIT_SYNC_MAX_RESCHEDULES: %w", err)
	}

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),

		CVLUpgradeBufferPct: cvlBuffer,
		ObligationDueGrace:  mustParseDuration(getEnv("OBLIGATION_DUE_GRACE", "0h")),
		ObligationOverdueAt: mustParseDuration(getEnv("OBLIGATION_OVERDUE_AT", "24h")),
		ProjectionLookahead: lookahead,

		PaymentAllocationMaxAttempts: paymentAttempts,
		WriterMaxAttempts:            writerAttempts,

		AccrualPollInterval:      mustParseDuration(getEnv("ACCRUAL_POLL_INTERVAL", "5m")),
		AwaitSyncMaxReschedules:  awaitSyncMax,
		AwaitSyncRescheduleDelay: mustParseDuration(getEnv("AWAIT_SYNC_RESCHEDULE_DELAY", "5m")),

		ObligationTimerPollInterval:   mustParseDuration(getEnv("OBLIGATION_TIMER_POLL_INTERVAL", "1m")),
		CollateralMonitorPollInterval: mustParseDuration(getEnv("COLLATERAL_MONITOR_POLL_INTERVAL", "1m")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.CVLUpgradeBufferPct.IsNegative() {
		return fmt.Errorf("CVL_UPGRADE_BUFFER_PCT must not be negative")
	}
	if c.ProjectionLookahead <= 0 {
		return fmt.Errorf("PROJECTION_LOOKAHEAD_MONTHS must be positive")
	}
	if c.PaymentAllocationMaxAttempts <= 0 || c.WriterMaxAttempts <= 0 {
		return fmt.Errorf("retry attempt budgets must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustParseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
