package config

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Profile  string
	HTTPAddr string

	DatabaseDSN string
	RedisAddr   string

	JWTSecret     string
	JWTIssuer     string
	JWTAudience   string
	RefreshPepper string

	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	MaxActiveSessions int

	VerifyInterval        time.Duration
	VerifyBatchSize       int
	VerifyMaxAttempts     int
	VerifyBackoffCap      time.Duration
	VerifyFallbackBackoff time.Duration
	VerifyTXTPrefix       string
	DNSLookupTimeout      time.Duration

	JanitorInterval     time.Duration
	CredentialRetention time.Duration

	CORSOrigins      []string
	APIRateLimitRPM  int
	AuthRateLimitRPM int

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracesEnabled         bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration

	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Profile:  getEnv("APP_PROFILE", "dev"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DatabaseDSN: getEnv("DATABASE_DSN", "file:supportd.db?cache=shared"),
		RedisAddr:   getEnv("REDIS_ADDR", ""),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWTIssuer:     getEnv("JWT_ISSUER", "supportd"),
		JWTAudience:   getEnv("JWT_AUDIENCE", "supportd-api"),
		RefreshPepper: getEnv("REFRESH_TOKEN_PEPPER", ""),

		AccessTokenTTL:    getDuration("ACCESS_TOKEN_TTL", 60*time.Minute),
		RefreshTokenTTL:   getDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		MaxActiveSessions: getInt("MAX_ACTIVE_SESSIONS", 5),

		VerifyInterval:        getDuration("DOMAIN_VERIFY_INTERVAL", 5*time.Minute),
		VerifyBatchSize:       getInt("DOMAIN_VERIFY_BATCH_SIZE", 25),
		VerifyMaxAttempts:     getInt("DOMAIN_VERIFY_MAX_ATTEMPTS", 10),
		VerifyBackoffCap:      getDuration("DOMAIN_VERIFY_BACKOFF_CAP", 60*time.Minute),
		VerifyFallbackBackoff: getDuration("DOMAIN_VERIFY_FALLBACK_BACKOFF", 5*time.Minute),
		VerifyTXTPrefix:       getEnv("DOMAIN_VERIFY_TXT_PREFIX", "_supportd-verify."),
		DNSLookupTimeout:      getDuration("DNS_LOOKUP_TIMEOUT", 5*time.Second),

		JanitorInterval:     getDuration("CREDENTIAL_JANITOR_INTERVAL", 24*time.Hour),
		CredentialRetention: getDuration("CREDENTIAL_RETENTION", 90*24*time.Hour),

		CORSOrigins:      splitAndTrim(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		APIRateLimitRPM:  getInt("API_RATE_LIMIT_RPM", 300),
		AuthRateLimitRPM: getInt("AUTH_RATE_LIMIT_RPM", 30),

		OTELServiceName:           getEnv("OTEL_SERVICE_NAME", "supportd"),
		OTELEnvironment:           getEnv("OTEL_ENVIRONMENT", "dev"),
		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure:  getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELMetricsEnabled:        getBool("OTEL_METRICS_ENABLED", false),
		OTELTracesEnabled:         getBool("OTEL_TRACES_ENABLED", false),
		OTELLogsEnabled:           getBool("OTEL_LOGS_ENABLED", false),
		OTELMetricsExportInterval: getDuration("OTEL_METRICS_EXPORT_INTERVAL", 30*time.Second),

		ShutdownTimeout:              getDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		ShutdownHTTPDrainTimeout:     getDuration("SHUTDOWN_HTTP_DRAIN_TIMEOUT", 5*time.Second),
		ShutdownObservabilityTimeout: getDuration("SHUTDOWN_OBSERVABILITY_TIMEOUT", 5*time.Second),
	}

	if err := cfg.validate(); err != nil {
		recordConfigValidationEvent(context.Background(), cfg.Profile, "failure", classifyConfigLoadError(err))
		return nil, err
	}
	recordConfigValidationEvent(context.Background(), cfg.Profile, "success", "none")
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Profile == "dev" {
		if c.JWTSecret == "" {
			c.JWTSecret = "dev-only-insecure-signing-secret"
		}
		if c.RefreshPepper == "" {
			c.RefreshPepper = "dev-only-insecure-pepper"
		}
	}
	if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("validate config: JWT_SECRET must be at least 32 bytes"))
	}
	if c.RefreshPepper == "" {
		errs = append(errs, errors.New("validate config: REFRESH_TOKEN_PEPPER is required"))
	}
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("validate config: DATABASE_DSN is required"))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("validate config: token TTLs must be positive"))
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		errs = append(errs, errors.New("validate config: refresh TTL must exceed access TTL"))
	}
	if c.MaxActiveSessions < 0 {
		errs = append(errs, errors.New("validate config: MAX_ACTIVE_SESSIONS must be >= 0"))
	}
	if c.VerifyInterval <= 0 || c.VerifyBatchSize <= 0 || c.VerifyMaxAttempts <= 0 {
		errs = append(errs, errors.New("validate config: domain verification settings must be positive"))
	}
	if c.DNSLookupTimeout <= 0 {
		errs = append(errs, errors.New("validate config: DNS_LOOKUP_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// IsPostgres reports whether the DSN targets postgres rather than the
// embedded sqlite fallback used for local development.
func (c *Config) IsPostgres() bool {
	return strings.HasPrefix(c.DatabaseDSN, "postgres://") ||
		strings.HasPrefix(c.DatabaseDSN, "postgresql://") ||
		strings.Contains(c.DatabaseDSN, "host=")
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
