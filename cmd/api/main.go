package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/gbcenter/intake-ai/internal/admin"
	"github.com/gbcenter/intake-ai/internal/api/router"
	appconfig "github.com/gbcenter/intake-ai/internal/config"
	"github.com/gbcenter/intake-ai/internal/intake"
	"github.com/gbcenter/intake-ai/internal/messagelog"
	"github.com/gbcenter/intake-ai/internal/notify"
	"github.com/gbcenter/intake-ai/internal/observability/metrics"
	"github.com/gbcenter/intake-ai/internal/schedule"
	"github.com/gbcenter/intake-ai/internal/webhook"
	"github.com/gbcenter/intake-ai/pkg/logging"
)

func main() {
	// Load .env in development; in production the environment is already set.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting intake-ai API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	metricsHandler, m := setupIntakeMetrics()

	sessions := newSessionStore(cfg, logger)
	llm := newLanguageModel(ctx, cfg, m, logger)

	var brain intake.Interpreter
	var extractor intake.FieldExtractor = intake.RegexExtractor{}
	if llm != nil {
		brain = intake.NewBrain(llm, logger)
		extractor = intake.NewLLMExtractor(llm, logger)
	}
	replies := intake.NewReplyGenerator(llm, cfg.FallbackReply, logger)

	// The Google Calendar client serves both slot listing and tentative event
	// creation; without credentials the engine runs without booking.
	var availability intake.AvailabilityService
	var sink intake.BookingSink
	if cfg.GoogleServiceAccountB64 != "" && cfg.CalendarID != "" {
		cal, err := schedule.NewGoogleCalendar(ctx, cfg.GoogleServiceAccountB64, cfg.CalendarID, logger)
		if err != nil {
			logger.Error("calendar unavailable, booking disabled", "error", err)
		} else {
			availability = cal
			sink = cal
		}
	} else {
		logger.Warn("calendar not configured, booking disabled")
	}

	var notifier intake.BookingNotifier
	if emailSender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); emailSender != nil {
		if n := notify.NewBookingEmailNotifier(emailSender, cfg.BookingNotifyEmail, logger); n != nil {
			notifier = n
		}
	}

	engine := intake.NewEngine(sessions, brain, extractor, replies, availability, sink, notifier, m, intake.EngineConfig{
		Timezone:        cfg.CalendarTimezone,
		LookaheadDays:   cfg.CalendarLookaheadDays,
		SlotMinutes:     cfg.CalendarSlotMinutes,
		WorkStart:       cfg.CalendarWorkStart,
		WorkEnd:         cfg.CalendarWorkEnd,
		MaxSlots:        cfg.CalendarMaxSlots,
		ExternalTimeout: cfg.ExternalCallTimeout,
	}, logger)

	msgStore := connectMessageLog(ctx, cfg.DatabaseURL, logger)

	var replySender *webhook.Sender
	if sender, err := webhook.NewSender(cfg.WhatsAppToken, cfg.PhoneNumberID); err != nil {
		logger.Warn("WhatsApp sender not configured, replies disabled", "error", err)
	} else {
		sender.SetBaseURL(cfg.GraphBaseURL)
		replySender = sender
	}

	var webhookSender webhook.ReplySender
	var webhookLog webhook.MessageLog
	if replySender != nil {
		webhookSender = replySender
	}
	if msgStore != nil {
		webhookLog = msgStore
	}
	webhookHandler := webhook.NewHandler(cfg.VerifyToken, cfg.AppSecret, engine, webhookSender, webhookLog, m, logger)

	var adminHandler *admin.Handler
	if cfg.AdminJWTSecret != "" {
		var adminSender admin.MessageSender
		var adminLog admin.MessageLogger
		if replySender != nil {
			adminSender = replySender
		}
		if msgStore != nil {
			adminLog = msgStore
		}
		adminHandler = admin.NewHandler(msgStore, adminSender, adminLog, logger)
	}

	routerCfg := &router.Config{
		Logger:               logger,
		Webhook:              webhookHandler,
		Admin:                adminHandler,
		AdminAuthSecret:      cfg.AdminJWTSecret,
		MetricsHandler:       metricsHandler,
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
		WebhookRatePerSecond: cfg.WebhookRatePerSecond,
		WebhookRateBurst:     cfg.WebhookRateBurst,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// setupIntakeMetrics builds the Prometheus registry, the dialogue metrics and
// the /metrics handler.
func setupIntakeMetrics() (http.Handler, *metrics.IntakeMetrics) {
	reg := prometheus.NewRegistry()
	m := metrics.NewIntakeMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

// newSessionStore selects the session backend. Anything but "redis" falls
// back to the in-process store.
func newSessionStore(cfg *appconfig.Config, logger *logging.Logger) intake.SessionStore {
	if cfg.SessionBackend != "redis" {
		return intake.NewMemorySessionStore()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	logger.Info("using redis session store", "addr", cfg.RedisAddr, "ttl", cfg.SessionTTL)
	return intake.NewRedisSessionStore(client, cfg.SessionTTL)
}

// newLanguageModel wires the OpenAI primary with the Gemini fallback. With no
// keys configured it returns nil and the engine runs on regex extraction and
// canned replies only.
func newLanguageModel(ctx context.Context, cfg *appconfig.Config, m *metrics.IntakeMetrics, logger *logging.Logger) intake.LLMClient {
	var primary, secondary intake.LLMClient

	if cfg.OpenAIAPIKey != "" {
		client, err := intake.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			logger.Error("openai client init failed", "error", err)
		} else {
			primary = client
		}
	}
	if cfg.GeminiAPIKey != "" {
		client, err := intake.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Error("gemini client init failed", "error", err)
		} else {
			secondary = client
		}
	}

	switch {
	case primary != nil && secondary != nil:
		fb := intake.NewFallbackLLMClient(primary, secondary, logger)
		fb.SetFallbackHook(m.ObserveLLMFallback)
		return fb
	case primary != nil:
		return primary
	case secondary != nil:
		return secondary
	default:
		logger.Warn("no language model configured, running regex-only")
		return nil
	}
}

// connectMessageLog opens the conversation log database. An empty URL or a
// failed connection disables logging rather than blocking startup.
func connectMessageLog(ctx context.Context, databaseURL string, logger *logging.Logger) *messagelog.Store {
	if databaseURL == "" {
		logger.Warn("DATABASE_URL not set, message log disabled")
		return nil
	}
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		logger.Error("message log open failed", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		logger.Error("message log ping failed", "error", err)
		_ = db.Close()
		return nil
	}
	logger.Info("message log connected")
	return messagelog.NewStore(db)
}
