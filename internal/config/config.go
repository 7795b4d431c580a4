package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password", "token",
}

const (
	LedgerSheets   = "sheets"
	LedgerPostgres = "postgres"
	LedgerMemory   = "memory"
)

type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// WhatsApp Cloud API
	WhatsAppAccessToken   string `env:"WHATSAPP_ACCESS_TOKEN"`
	WhatsAppPhoneNumberID string `env:"WHATSAPP_PHONE_NUMBER_ID"`
	WhatsAppVerifyToken   string `env:"WHATSAPP_VERIFY_TOKEN"`
	WhatsAppAppSecret     string `env:"WHATSAPP_APP_SECRET"`

	// Mercado Pago
	MPAccessToken        string  `env:"MP_ACCESS_TOKEN"`
	DepositAmount        float64 `env:"DEPOSIT_AMOUNT" envDefault:"5000"`
	PaymentWindowMinutes int     `env:"PAYMENT_WINDOW_MINUTES" envDefault:"15"`

	// Conversation stores
	SessionTTLMinutes int `env:"SESSION_TTL_MINUTES" envDefault:"60"`
	DedupTTLMinutes   int `env:"DEDUP_TTL_MINUTES" envDefault:"10"`

	// Case ledger
	LedgerBackend         string `env:"LEDGER_BACKEND" envDefault:"sheets"`
	SheetsID              string `env:"SHEETS_ID"`
	GoogleCredentialsFile string `env:"GOOGLE_CREDENTIALS_FILE" envDefault:"credentials.json"`
	DatabaseURL           string `env:"DATABASE_URL"`
	RedisURL              string `env:"REDIS_URL"`

	// Clinic copy, injected into the reply catalog
	BookingURLTurnos   string `env:"BOOKING_URL_TURNOS"`
	BookingURLEstudios string `env:"BOOKING_URL_ESTUDIOS"`
	ClinicName         string `env:"CLINIC_NAME" envDefault:"la clínica"`
	ClinicPhone        string `env:"CLINIC_PHONE"`
	ClinicAddress      string `env:"CLINIC_ADDRESS"`
	ClinicHours        string `env:"CLINIC_HOURS" envDefault:"lunes a viernes de 8 a 20 hs"`
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

func (c *Config) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLMinutes) * time.Minute
}

func (c *Config) PaymentWindow() time.Duration {
	return time.Duration(c.PaymentWindowMinutes) * time.Minute
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	switch c.LedgerBackend {
	case LedgerSheets:
		if c.SheetsID == "" {
			return fmt.Errorf("SHEETS_ID is required when LEDGER_BACKEND=sheets")
		}
	case LedgerPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when LEDGER_BACKEND=postgres")
		}
	case LedgerMemory:
	default:
		return fmt.Errorf("LEDGER_BACKEND must be one of sheets, postgres, memory (got %q)", c.LedgerBackend)
	}

	if c.DepositAmount <= 0 {
		return fmt.Errorf("DEPOSIT_AMOUNT must be positive (got %v)", c.DepositAmount)
	}

	if isProduction {
		if err := validateSecret("WHATSAPP_VERIFY_TOKEN", c.WhatsAppVerifyToken); err != nil {
			return err
		}

		if c.WhatsAppAppSecret == "" {
			log.Warn().Msg("WHATSAPP_APP_SECRET is empty in production: webhook signature verification disabled")
		}
		if c.WhatsAppAccessToken == "" || c.WhatsAppPhoneNumberID == "" {
			log.Warn().Msg("WhatsApp credentials missing: outbound sends will be skipped and logged")
		}
		if c.MPAccessToken == "" {
			log.Warn().Msg("MP_ACCESS_TOKEN is empty: payment links cannot be created, cases will divert to handoff")
		}
		if c.RedisURL != "" && strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.BookingURLTurnos == "" || c.BookingURLEstudios == "" {
			log.Warn().Msg("booking URLs missing: menu replies will point users to the front desk")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 16 {
		return fmt.Errorf("%s must be at least 16 characters in production (generate with: go run scripts/gen-verify-token.go)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
