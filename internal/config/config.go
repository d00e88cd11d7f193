package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioPhoneNumber   string
	TwilioWebhookSecret string

	RedisAddr       string
	RedisPassword   string
	StatusCacheTTL  time.Duration
	VoiceSessionTTL time.Duration

	ClientJWTSecret    string
	CORSAllowedOrigins string

	GatherTimeoutSeconds int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		TwilioAccountSID:    getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioPhoneNumber:   getEnv("TWILIO_PHONE_NUMBER", ""),
		TwilioWebhookSecret: getEnv("TWILIO_WEBHOOK_SECRET", ""),

		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		StatusCacheTTL:  getEnvAsDuration("STATUS_CACHE_TTL", 5*time.Second),
		VoiceSessionTTL: getEnvAsDuration("VOICE_SESSION_TTL", 30*time.Minute),

		ClientJWTSecret:    getEnv("CLIENT_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),

		GatherTimeoutSeconds: getEnvAsInt("GATHER_TIMEOUT_SECONDS", 5),
	}
}

// TwilioCredentials is the credential triple the telephony provider needs.
// Absence of any field is a configuration error, surfaced once at client
// construction rather than rechecked ad hoc.
type TwilioCredentials struct {
	AccountSID  string
	AuthToken   string
	PhoneNumber string
}

// Twilio returns the provider credentials from the loaded config.
func (c *Config) Twilio() TwilioCredentials {
	return TwilioCredentials{
		AccountSID:  c.TwilioAccountSID,
		AuthToken:   c.TwilioAuthToken,
		PhoneNumber: c.TwilioPhoneNumber,
	}
}

// MissingCredentials flags which provider credentials are absent. The JSON
// shape is part of the client API contract: the UI renders a remediation
// panel from it.
type MissingCredentials struct {
	AccountSID  bool `json:"accountSid"`
	AuthToken   bool `json:"authToken"`
	PhoneNumber bool `json:"phoneNumber"`
}

// Missing reports which credentials are absent.
func (t TwilioCredentials) Missing() MissingCredentials {
	return MissingCredentials{
		AccountSID:  t.AccountSID == "",
		AuthToken:   t.AuthToken == "",
		PhoneNumber: t.PhoneNumber == "",
	}
}

// Complete reports whether all credentials are present.
func (t TwilioCredentials) Complete() bool {
	m := t.Missing()
	return !m.AccountSID && !m.AuthToken && !m.PhoneNumber
}

// Any reports whether at least one credential is absent.
func (m MissingCredentials) Any() bool {
	return m.AccountSID || m.AuthToken || m.PhoneNumber
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
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
