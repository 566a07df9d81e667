// Package config loads authcore's runtime configuration from the
// environment, following the teacher's flat env-var Config struct
// (internal/config/config.go) rather than a config file or flags
// library — no pack repo reaches for viper/koanf for a service this
// small, so this stays os.Getenv-based like the teacher.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable named in spec.md §6.
type Config struct {
	DatabaseURL string
	RedisURL    string

	// Session (spec.md §6 session settings)
	MaxConcurrentSessions int
	SessionTimeoutMinutes int
	ExtendOnActivity      bool

	// Account lockout
	MaxFailedAttempts          int
	AccountLockDurationMinutes int
	PasswordExpiryDays         int

	// Tokens
	AccessTokenTTLMinutes int
	RefreshTokenTTLDays   int
	JWTSigningSecret      string

	// MFA
	TOTPWindowSeconds int
	TOTPIssuer        string

	// Credential encryption (C5)
	DataKeyCacheTTLMinutes int
	KMSKeyID               string

	// Per-breaker settings (spec.md §6), one set per named dependency.
	Breakers map[string]BreakerSettings

	// External services
	AllowPublicRegistration bool
	AppURL                  string
	SMTPFromAddress         string
	SESFromAddress          string
	SNSSMSSenderID          string
	GeoIPDatabasePath       string

	SentryDSN string
}

// BreakerSettings mirrors breaker.Settings field-for-field so config stays
// decoupled from the breaker package's internal types.
type BreakerSettings struct {
	FailureRateThresholdPercent float64
	SlidingWindowSize           int
	MinimumCalls                int
	OpenDurationSeconds         int
	HalfOpenPermittedCalls      int
	CallTimeout                 time.Duration
}

var defaultBreakerTimeouts = map[string]time.Duration{
	"database":     2 * time.Second,
	"cache":        200 * time.Millisecond,
	"email":        10 * time.Second,
	"sms":          10 * time.Second,
	"external_api": 5 * time.Second,
	"kms":          5 * time.Second,
	"mfa_provider": 5 * time.Second,
}

// Load reads configuration from environment variables, falling back to the
// defaults spec.md §6 names for anything unset.
func Load() Config {
	breakers := make(map[string]BreakerSettings, len(defaultBreakerTimeouts))
	for name, timeout := range defaultBreakerTimeouts {
		prefix := "BREAKER_" + envSafe(name) + "_"
		breakers[name] = BreakerSettings{
			FailureRateThresholdPercent: getEnvAsFloat(prefix+"FAILURE_RATE_THRESHOLD_PERCENT", 50),
			SlidingWindowSize:           getEnvAsInt(prefix+"SLIDING_WINDOW_SIZE", 10),
			MinimumCalls:                getEnvAsInt(prefix+"MINIMUM_CALLS", 5),
			OpenDurationSeconds:         getEnvAsInt(prefix+"OPEN_DURATION_SECONDS", 30),
			HalfOpenPermittedCalls:      getEnvAsInt(prefix+"HALF_OPEN_PERMITTED_CALLS", 3),
			CallTimeout:                 getEnvAsDuration(prefix+"CALL_TIMEOUT", timeout),
		}
	}

	return Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		MaxConcurrentSessions: getEnvAsInt("MAX_CONCURRENT_SESSIONS", 3),
		SessionTimeoutMinutes: getEnvAsInt("SESSION_TIMEOUT_MINUTES", 30),
		ExtendOnActivity:      getEnvAsBool("EXTEND_ON_ACTIVITY", true),

		MaxFailedAttempts:          getEnvAsInt("MAX_FAILED_ATTEMPTS", 5),
		AccountLockDurationMinutes: getEnvAsInt("ACCOUNT_LOCK_DURATION_MINUTES", 30),
		PasswordExpiryDays:         getEnvAsInt("PASSWORD_EXPIRY_DAYS", 90),

		AccessTokenTTLMinutes: getEnvAsInt("ACCESS_TOKEN_TTL_MINUTES", 15),
		RefreshTokenTTLDays:   getEnvAsInt("REFRESH_TOKEN_TTL_DAYS", 14),
		JWTSigningSecret:      os.Getenv("JWT_SIGNING_SECRET"),

		TOTPWindowSeconds: getEnvAsInt("TOTP_WINDOW_SECONDS", 30),
		TOTPIssuer:        getEnvOr("TOTP_ISSUER", "authcore"),

		DataKeyCacheTTLMinutes: getEnvAsInt("DATA_KEY_CACHE_TTL_MINUTES", 60),
		KMSKeyID:               os.Getenv("KMS_KEY_ID"),

		Breakers: breakers,

		AllowPublicRegistration: getEnvAsBool("ALLOW_PUBLIC_REGISTRATION", false),
		AppURL:                  os.Getenv("APP_URL"),
		SMTPFromAddress:         os.Getenv("SMTP_FROM_ADDRESS"),
		SESFromAddress:          os.Getenv("SES_FROM_ADDRESS"),
		SNSSMSSenderID:          getEnvOr("SNS_SMS_SENDER_ID", "AUTHCORE"),
		GeoIPDatabasePath:       os.Getenv("GEOIP_DATABASE_PATH"),

		SentryDSN: os.Getenv("SENTRY_DSN"),
	}
}

func envSafe(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func getEnvOr(name, defaultVal string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultVal
}

func getEnvAsBool(name string, defaultVal bool) bool {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsInt(name string, defaultVal int) int {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsFloat(name string, defaultVal float64) float64 {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := time.ParseDuration(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}
