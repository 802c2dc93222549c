package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// WhatsApp Cloud API
	VerifyToken   string
	AppSecret     string
	WhatsAppToken string
	PhoneNumberID string
	GraphBaseURL  string

	// Language model backends
	OpenAIAPIKey  string
	OpenAIModel   string
	GeminiAPIKey  string
	GeminiModel   string
	FallbackReply string

	// Calendar / scheduling
	CalendarID              string
	CalendarTimezone        string
	CalendarSlotMinutes     int
	CalendarWorkStart       string
	CalendarWorkEnd         string
	CalendarLookaheadDays   int
	CalendarMaxSlots        int
	GoogleServiceAccountB64 string

	// Session state
	SessionBackend string // "memory" or "redis"
	SessionTTL     time.Duration
	RedisAddr      string
	RedisPassword  string

	// External call budget for interpreter/extractor/calendar calls
	ExternalCallTimeout time.Duration

	// Conversation log
	DatabaseURL string

	// Admin inbox
	AdminJWTSecret     string
	CORSAllowedOrigins []string

	// Webhook rate limiting; zero disables it.
	WebhookRatePerSecond float64
	WebhookRateBurst     int

	// Staff notifications
	SendGridAPIKey     string
	SendGridFromEmail  string
	SendGridFromName   string
	BookingNotifyEmail string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		VerifyToken:   getEnv("VERIFY_TOKEN", ""),
		AppSecret:     getEnv("APP_SECRET", ""),
		WhatsAppToken: getEnv("WHATSAPP_TOKEN", ""),
		PhoneNumberID: getEnv("PHONE_NUMBER_ID", ""),
		GraphBaseURL:  getEnv("GRAPH_BASE_URL", "https://graph.facebook.com/v23.0"),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		FallbackReply: getEnv("FALLBACK_REPLY", "Gracias por tu mensaje. ¿En qué puedo ayudarte?"),

		CalendarID:              getEnv("CALENDAR_ID", ""),
		CalendarTimezone:        getEnv("CALENDAR_TIMEZONE", "America/Mexico_City"),
		CalendarSlotMinutes:     getEnvAsInt("CALENDAR_SLOT_MINUTES", 30),
		CalendarWorkStart:       getEnv("CALENDAR_WORK_START", "09:00"),
		CalendarWorkEnd:         getEnv("CALENDAR_WORK_END", "18:00"),
		CalendarLookaheadDays:   getEnvAsInt("CALENDAR_LOOKAHEAD_DAYS", 14),
		CalendarMaxSlots:        getEnvAsInt("CALENDAR_MAX_SLOTS", 6),
		GoogleServiceAccountB64: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON_B64", ""),

		SessionBackend: getEnv("SESSION_BACKEND", "memory"),
		SessionTTL:     getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		RedisAddr:      getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),

		ExternalCallTimeout: getEnvAsDuration("EXTERNAL_CALL_TIMEOUT", 10*time.Second),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		WebhookRatePerSecond: getEnvAsFloat("WEBHOOK_RATE_PER_SECOND", 10),
		WebhookRateBurst:     getEnvAsInt("WEBHOOK_RATE_BURST", 30),

		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:  getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:   getEnv("SENDGRID_FROM_NAME", "GBC Intake"),
		BookingNotifyEmail: getEnv("BOOKING_NOTIFY_EMAIL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
