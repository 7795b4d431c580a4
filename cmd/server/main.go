package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/audit"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/config"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/conversation"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/database"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/dedup"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/handler"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/httputil"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/jobs"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/ledger"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/messaging"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/middleware"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/model"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/payments"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/redis"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/session"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	caseLedger := buildLedger(cfg)

	dedupStore, memDedup := buildDedup(cfg)

	sessions := session.NewStore(cfg.SessionTTL())
	reminders := jobs.NewReminderScheduler()
	defer reminders.Stop()

	sender := messaging.NewWhatsAppSender(cfg.WhatsAppAccessToken, cfg.WhatsAppPhoneNumberID)

	var links payments.LinkCreator
	var provider payments.Provider
	if cfg.MPAccessToken != "" {
		mp, err := payments.NewMercadoPago(cfg.MPAccessToken)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init mercado pago client")
		}
		links, provider = mp, mp
		log.Info().Msg("mercado pago client ready")
	} else {
		log.Warn().Msg("MP_ACCESS_TOKEN not set: deposits divert to handoff, payments cannot be verified")
	}

	recorder := audit.NewRecorder(caseLedger, config.AuditQueueSize)

	// Expiry cancels the sender's pending reminder and leaves a trace in
	// the ledger; the case itself survives.
	sessions.SetOnEvict(func(sess *model.Session) {
		reminders.Cancel(sess.SenderID)
		recorder.Record(ledger.NewEvent(sess.CaseID, sess.SenderID, model.EventSessionExpired,
			"sesión expirada", map[string]any{"state": string(sess.State)}))
	})

	engine := conversation.New(conversation.Params{
		Sessions:      sessions,
		Ledger:        caseLedger,
		Sender:        sender,
		Links:         links,
		Provider:      provider,
		Audit:         recorder,
		Reminders:     reminders,
		Replies:       conversation.NewReplies(cfg),
		Deposit:       cfg.DepositAmount,
		PaymentWindow: cfg.PaymentWindow(),
	})

	webhookHandler := handler.NewWebhookHandler(cfg.WhatsAppVerifyToken, dedupStore, engine)
	privacyHandler := handler.NewPrivacyHandler(cfg.ClinicName, cfg.ClinicPhone)

	signatureMiddleware := middleware.NewSignatureMiddleware(cfg.WhatsAppAppSecret)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	startedAt := time.Now()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"uptime_seconds": int64(time.Since(startedAt).Seconds()),
			"timestamp":      time.Now().UnixMilli(),
		})
	})

	r.Get("/privacidad", privacyHandler.ServeHTTP)

	r.Route("/webhook/whatsapp", func(r chi.Router) {
		r.Get("/", webhookHandler.Verify)
		r.With(signatureMiddleware.Handler).Post("/", webhookHandler.Receive)
	})

	var dedupSweep jobs.SweepTarget
	if memDedup != nil {
		dedupSweep = memDedup
	}
	sweepJob := jobs.NewSweepJob(sessions, dedupSweep, config.SweepJobInterval)
	sweepJob.Start()
	defer sweepJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("ledger", cfg.LedgerBackend).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Acked deliveries may still be mid-conversation; finish them, then
	// flush whatever audit events they produced.
	webhookHandler.Wait()
	recorder.Close()

	log.Info().Msg("server stopped")
}

// buildLedger selects the case mirror backend. The spreadsheet is the
// production default; postgres serves deployments that outgrew it and
// memory keeps local runs free of credentials.
func buildLedger(cfg *config.Config) ledger.Ledger {
	switch cfg.LedgerBackend {
	case config.LedgerPostgres:
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping database")
		}

		pg := ledger.NewPostgresLedger(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ensure ledger schema")
		}
		log.Info().Msg("postgres ledger ready")
		return pg

	case config.LedgerMemory:
		log.Warn().Msg("memory ledger selected: cases are lost on restart")
		return ledger.NewMemoryLedger()

	default:
		sheetsLedger, err := ledger.NewSheetsLedger(context.Background(), cfg.GoogleCredentialsFile, cfg.SheetsID)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init sheets ledger")
		}
		log.Info().Str("spreadsheet", cfg.SheetsID).Msg("sheets ledger ready")
		return sheetsLedger
	}
}

// buildDedup picks the webhook dedup store: Redis when configured (shared
// across instances), otherwise the in-memory window. The memory store is
// returned separately so the sweep job can prune it.
func buildDedup(cfg *config.Config) (dedup.Store, *dedup.MemoryStore) {
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		log.Info().Msg("redis dedup store ready")
		return dedup.NewRedisStore(client, cfg.DedupTTL()), nil
	}

	mem := dedup.NewMemoryStore(cfg.DedupTTL())
	return mem, mem
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
