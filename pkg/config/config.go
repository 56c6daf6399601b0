package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	OTP       OTPConfig
	Cookies   CookieConfig
	RateLimit RateLimitConfig
	SMTP      SMTPConfig
	Mail      MailConfig
	CORS      CORSConfig
	Log       LogConfig
	Exports   ExportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// JWTConfig governs access-token signing and session lifetimes.
type JWTConfig struct {
	Secret            string
	AccessExpiration  time.Duration
	RefreshExpiration time.Duration
	Issuer            string
}

// OTPConfig tunes one-time passcode issuance and lockout behaviour.
type OTPConfig struct {
	Length      int
	TTL         time.Duration
	MaxAttempts int
	LockoutTTL  time.Duration
}

// CookieConfig controls the attributes of the auth cookies.
type CookieConfig struct {
	Domain string
	Secure bool
}

// RateLimitConfig configures the fixed-window Redis counters.
type RateLimitConfig struct {
	Enabled     bool
	LoginLimit  int
	LoginWindow time.Duration
	APILimit    int
	APIWindow   time.Duration
}

// SMTPConfig configures the outbound mail relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLSMode  string
}

// MailConfig configures sender identity and dispatch workers.
type MailConfig struct {
	FromName        string
	FromEmail       string
	AdmissionsInbox string
	Workers         int
	MaxRetries      int
	RetryDelay      time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ExportsConfig gates the applicant roster export endpoints.
type ExportsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		PoolSize: v.GetInt("REDIS_POOL_SIZE"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		AccessExpiration:  parseDuration(v.GetString("ACCESS_TOKEN_EXPIRATION"), 15*time.Minute),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		Issuer:            v.GetString("JWT_ISSUER"),
	}

	cfg.OTP = OTPConfig{
		Length:      v.GetInt("OTP_LENGTH"),
		TTL:         parseDuration(v.GetString("OTP_TTL"), 5*time.Minute),
		MaxAttempts: v.GetInt("OTP_MAX_ATTEMPTS"),
		LockoutTTL:  parseDuration(v.GetString("OTP_LOCKOUT_TTL"), 15*time.Minute),
	}

	cfg.Cookies = CookieConfig{
		Domain: v.GetString("COOKIE_DOMAIN"),
		Secure: v.GetBool("COOKIE_SECURE"),
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled:     v.GetBool("ENABLE_RATE_LIMIT"),
		LoginLimit:  v.GetInt("RATE_LIMIT_LOGIN_MAX"),
		LoginWindow: parseDuration(v.GetString("RATE_LIMIT_LOGIN_WINDOW"), 15*time.Minute),
		APILimit:    v.GetInt("RATE_LIMIT_API_MAX"),
		APIWindow:   parseDuration(v.GetString("RATE_LIMIT_API_WINDOW"), 15*time.Minute),
	}

	cfg.SMTP = SMTPConfig{
		Host:     v.GetString("SMTP_HOST"),
		Port:     v.GetInt("SMTP_PORT"),
		Username: v.GetString("SMTP_USERNAME"),
		Password: v.GetString("SMTP_PASSWORD"),
		TLSMode:  v.GetString("SMTP_TLS_MODE"),
	}

	cfg.Mail = MailConfig{
		FromName:        v.GetString("MAIL_FROM_NAME"),
		FromEmail:       v.GetString("MAIL_FROM_EMAIL"),
		AdmissionsInbox: v.GetString("MAIL_ADMISSIONS_INBOX"),
		Workers:         v.GetInt("MAIL_WORKERS"),
		MaxRetries:      v.GetInt("MAIL_MAX_RETRIES"),
		RetryDelay:      parseDuration(v.GetString("MAIL_RETRY_DELAY"), 5*time.Second),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Exports = ExportsConfig{
		Enabled: v.GetBool("ENABLE_EXPORTS"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "fgc_admissions")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "fgc-admissions-api")
	v.SetDefault("ACCESS_TOKEN_EXPIRATION", "15m")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("OTP_LENGTH", 6)
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("OTP_MAX_ATTEMPTS", 3)
	v.SetDefault("OTP_LOCKOUT_TTL", "15m")

	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("COOKIE_SECURE", false)

	v.SetDefault("ENABLE_RATE_LIMIT", true)
	v.SetDefault("RATE_LIMIT_LOGIN_MAX", 5)
	v.SetDefault("RATE_LIMIT_LOGIN_WINDOW", "15m")
	v.SetDefault("RATE_LIMIT_API_MAX", 100)
	v.SetDefault("RATE_LIMIT_API_WINDOW", "15m")

	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_TLS_MODE", "starttls")

	v.SetDefault("MAIL_FROM_NAME", "FIRST Global Team Kenya")
	v.SetDefault("MAIL_FROM_EMAIL", "no-reply@fgc-kenya.org")
	v.SetDefault("MAIL_ADMISSIONS_INBOX", "admissions@fgc-kenya.org")
	v.SetDefault("MAIL_WORKERS", 2)
	v.SetDefault("MAIL_MAX_RETRIES", 3)
	v.SetDefault("MAIL_RETRY_DELAY", "5s")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_EXPORTS", true)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
