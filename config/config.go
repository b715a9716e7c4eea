// Package config loads runtime settings from the environment (and a .env file
// when one is present).
package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Campaign    string `env:"CAMPAIGN_NAME" envDefault:"YouTravel x Yandex Travel"`

	BotToken        string  `env:"BOT_TOKEN,required,notEmpty"`
	SupportUsername string  `env:"SUPPORT_USERNAME" envDefault:"vostoklov"`
	RegistrationURL string  `env:"PARTNER_REGISTRATION_URL" envDefault:"https://passport.yandex.ru/auth/reg/org?origin=travel_unmanaged&retpath=https://id.yandex.ru/org/members"`
	PromoURL        string  `env:"PROMO_USAGE_URL" envDefault:"https://travel.yandex.ru/b2b"`
	AdminUserIDs    []int64 `env:"ADMIN_USER_IDS" envSeparator:","`

	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	Redis RedisConfig

	Sheets SheetsConfig

	R2 R2Config

	Admin AdminConfig

	Monitoring MonitoringConfig

	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`
}

type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

type SheetsConfig struct {
	EmailsSheetID   string        `env:"GOOGLE_SHEET_EMAILS_ID"`
	PromosSheetID   string        `env:"GOOGLE_SHEET_PROMOS_ID"`
	CredentialsFile string        `env:"GOOGLE_CREDENTIALS_JSON" envDefault:"credentials.json"`
	SyncInterval    time.Duration `env:"SHEETS_SYNC_INTERVAL" envDefault:"5m"`
}

// Enabled reports whether both sheets are configured.
func (s SheetsConfig) Enabled() bool {
	return s.EmailsSheetID != "" && s.PromosSheetID != ""
}

type R2Config struct {
	AccountID       string `env:"CLOUDFLARE_ACCOUNT_ID"`
	AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"R2_ACCESS_KEY_SECRET"`
	Bucket          string `env:"R2_BUCKET_NAME"`
}

// Enabled reports whether exports can be uploaded.
func (r R2Config) Enabled() bool {
	return r.AccountID != "" && r.AccessKeyID != "" && r.AccessKeySecret != "" && r.Bucket != ""
}

type AdminConfig struct {
	Addr     string `env:"ADMIN_ADDR" envDefault:":5200"`
	APIToken string `env:"ADMIN_API_TOKEN"`
}

type MonitoringConfig struct {
	LowPromoThreshold    int64   `env:"LOW_PROMO_THRESHOLD" envDefault:"5"`
	LowConversionPercent float64 `env:"LOW_CONVERSION_PERCENT" envDefault:"20"`
	DailyReportHour      uint    `env:"DAILY_REPORT_HOUR" envDefault:"9"`
}

// Load reads .env (if any) and parses the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return Parse()
}

// Parse reads the environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Monitoring.DailyReportHour > 23 {
		return nil, fmt.Errorf("DAILY_REPORT_HOUR must be 0-23, got %d", cfg.Monitoring.DailyReportHour)
	}
	return &cfg, nil
}

// Development reports whether ENVIRONMENT is "development". The Telegram
// client logs raw API traffic in that mode.
func (c *Config) Development() bool {
	return strings.EqualFold(c.Environment, "development")
}
