package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port            string        `mapstructure:"PORT"`
	Env             string        `mapstructure:"ENV"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	DBSchema        string        `mapstructure:"DB_SCHEMA"`
	DBMaxConns      int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL        string        `mapstructure:"REDIS_URL"`
	AuthIssuer      string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL     string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience    string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey  string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS    float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `mapstructure:"RATE_LIMIT_BURST"`
	ClinicTimezone  string        `mapstructure:"CLINIC_TIMEZONE"`
	SequenceBackend string        `mapstructure:"SEQUENCE_BACKEND"`
	CalendarBackend string        `mapstructure:"CALENDAR_BACKEND"`
	EmailProvider   string        `mapstructure:"EMAIL_PROVIDER"`
	SendGridAPIKey  string        `mapstructure:"SENDGRID_API_KEY"`
	AWSRegion       string        `mapstructure:"AWS_REGION"`
	EmailFrom       string        `mapstructure:"EMAIL_FROM"`
	EmailFromName   string        `mapstructure:"EMAIL_FROM_NAME"`
	SchedulerOn     bool          `mapstructure:"SCHEDULER_ENABLED"`
	SweepInterval   time.Duration `mapstructure:"SWEEP_INTERVAL"`
	OTELEndpoint    string        `mapstructure:"OTEL_ENDPOINT"`
	OTELSampleRate  float64       `mapstructure:"OTEL_SAMPLE_RATE"`
	MetricsEnabled  bool          `mapstructure:"METRICS_ENABLED"`
	// PublicURL prefixes the portal links put in patient emails.
	PublicURL string `mapstructure:"PUBLIC_URL"`
}

// MaxSweepInterval is the longest scheduler period that still lands inside
// the 30 minute two-hour reminder window.
const MaxSweepInterval = 30 * time.Minute

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_SCHEMA", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "CLINIC_TIMEZONE",
	"SEQUENCE_BACKEND", "CALENDAR_BACKEND", "EMAIL_PROVIDER", "SENDGRID_API_KEY",
	"AWS_REGION", "EMAIL_FROM", "EMAIL_FROM_NAME", "SCHEDULER_ENABLED", "SWEEP_INTERVAL",
	"OTEL_ENDPOINT", "OTEL_SAMPLE_RATE", "METRICS_ENABLED", "PUBLIC_URL",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("CLINIC_TIMEZONE", "UTC")
	v.SetDefault("SEQUENCE_BACKEND", "postgres")
	v.SetDefault("CALENDAR_BACKEND", "postgres")
	v.SetDefault("EMAIL_PROVIDER", "log")
	v.SetDefault("EMAIL_FROM", "citas@hospital.local")
	v.SetDefault("EMAIL_FROM_NAME", "Hospital Appointments")
	v.SetDefault("SCHEDULER_ENABLED", false)
	v.SetDefault("SWEEP_INTERVAL", "10m")
	v.SetDefault("OTEL_SAMPLE_RATE", 1.0)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("PUBLIC_URL", "http://localhost:8000")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.AuthSigningKey == "" && cfg.AuthJWKSURL == "" {
		log.Println("WARNING: development mode without AUTH_SIGNING_KEY or AUTH_JWKS_URL: every request is treated as admin.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// DevAuth reports whether the permissive development auth middleware applies.
func (c *Config) DevAuth() bool {
	return c.IsDev() && c.AuthSigningKey == "" && c.AuthJWKSURL == ""
}

// Location resolves CLINIC_TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	return loc, nil
}

// Validate checks cross-field rules before the server starts.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" && c.AuthJWKSURL == "" && c.AuthIssuer == "" {
		return fmt.Errorf("one of AUTH_SIGNING_KEY, AUTH_JWKS_URL or AUTH_ISSUER must be set when ENV=%q", c.Env)
	}
	if c.IsProduction() && c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters in production")
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.SequenceBackend {
	case "postgres":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SEQUENCE_BACKEND is \"redis\"")
		}
	default:
		return fmt.Errorf("SEQUENCE_BACKEND must be \"postgres\" or \"redis\", got %q", c.SequenceBackend)
	}

	if c.CalendarBackend != "postgres" && c.CalendarBackend != "memory" {
		return fmt.Errorf("CALENDAR_BACKEND must be \"postgres\" or \"memory\", got %q", c.CalendarBackend)
	}

	switch c.EmailProvider {
	case "log":
	case "sendgrid":
		if c.SendGridAPIKey == "" {
			return fmt.Errorf("SENDGRID_API_KEY is required when EMAIL_PROVIDER is \"sendgrid\"")
		}
	case "ses":
		if c.AWSRegion == "" {
			return fmt.Errorf("AWS_REGION is required when EMAIL_PROVIDER is \"ses\"")
		}
	default:
		return fmt.Errorf("EMAIL_PROVIDER must be \"log\", \"sendgrid\" or \"ses\", got %q", c.EmailProvider)
	}
	if c.EmailProvider != "log" && !strings.Contains(c.EmailFrom, "@") {
		return fmt.Errorf("EMAIL_FROM must be an email address, got %q", c.EmailFrom)
	}

	if c.SchedulerOn {
		if c.SweepInterval <= 0 {
			return fmt.Errorf("SWEEP_INTERVAL must be positive")
		}
		if c.SweepInterval > MaxSweepInterval {
			return fmt.Errorf("SWEEP_INTERVAL %s exceeds %s: the two-hour reminder window would be skipped", c.SweepInterval, MaxSweepInterval)
		}
	}

	if !strings.HasPrefix(c.PublicURL, "http://") && !strings.HasPrefix(c.PublicURL, "https://") {
		return fmt.Errorf("PUBLIC_URL must be an http(s) URL, got %q", c.PublicURL)
	}

	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0 and 1, got %v", c.OTELSampleRate)
	}

	return nil
}
