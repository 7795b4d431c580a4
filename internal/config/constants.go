package config

import "time"

// Database connection pool settings (postgres ledger backend)
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const SweepJobInterval = 5 * time.Minute

// Outbound WhatsApp send timeout
const SendTimeout = 10 * time.Second

// Webhook request body cap
const MaxWebhookBodyBytes = 1 << 20

// Audit recorder queue depth
const AuditQueueSize = 256

// Event preview truncation length
const EventPreviewMaxLen = 120
