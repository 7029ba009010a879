// Package config builds the process configuration once at startup. Components
// receive the values they need at construction time and never read the
// environment themselves.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	BaseURL     string
	LogLevel    string
	LogFormat   string
	DatabaseURL string
	RedisAddr   string

	Storage     Storage
	Workers     Workers
	PostProcess PostProcess
	Email       Email
	Retry       Retry
	RateLimit   RateLimit

	CallbackSecret string
	AdminToken     string
}

type Storage struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

type Workers struct {
	ContentQueue    string
	ScriptWorkerURL string
	AudioWorkerURL  string
	APIKey          string
	Timeout         time.Duration
}

type PostProcess struct {
	Enabled     bool
	URL         string
	SkipTitle   bool
	SkipSummary bool
	SkipImage   bool
}

type Email struct {
	Provider       string
	From           string
	MailgunDomain  string
	MailgunAPIKey  string
	SendGridAPIKey string
}

type Retry struct {
	MaxAttempts int
	BatchSize   int
	Interval    string
}

type RateLimit struct {
	RPS   float64
	Burst int
	// TrustedProxies are addresses or CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("BASE_URL", "http://localhost:8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_PREFIX", "")
	v.SetDefault("CONTENT_QUEUE", "content")
	v.SetDefault("WORKER_TIMEOUT", "30s")
	v.SetDefault("POST_PROCESSING_ENABLED", true)
	v.SetDefault("EMAIL_PROVIDER", "none")
	v.SetDefault("RETRY_MAX_ATTEMPTS", 3)
	v.SetDefault("RETRY_BATCH_SIZE", 50)
	v.SetDefault("RETRY_INTERVAL", "@every 15m")
	v.SetDefault("RATE_LIMIT_RPS", 1.0)
	v.SetDefault("RATE_LIMIT_BURST", 3)
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Error loading .env file")
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:        v.GetString("PORT"),
		BaseURL:     strings.TrimRight(v.GetString("BASE_URL"), "/"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		LogFormat:   v.GetString("LOG_FORMAT"),
		DatabaseURL: v.GetString("DATABASE_URL"),
		RedisAddr:   v.GetString("REDIS_ADDR"),
		Storage: Storage{
			Bucket:          v.GetString("S3_BUCKET"),
			Region:          v.GetString("S3_REGION"),
			Endpoint:        v.GetString("S3_ENDPOINT"),
			Prefix:          v.GetString("S3_PREFIX"),
			AccessKeyID:     v.GetString("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("AWS_SECRET_ACCESS_KEY"),
		},
		Workers: Workers{
			ContentQueue:    v.GetString("CONTENT_QUEUE"),
			ScriptWorkerURL: v.GetString("SCRIPT_WORKER_URL"),
			AudioWorkerURL:  v.GetString("AUDIO_WORKER_URL"),
			APIKey:          v.GetString("WORKER_API_KEY"),
			Timeout:         v.GetDuration("WORKER_TIMEOUT"),
		},
		PostProcess: PostProcess{
			Enabled:     v.GetBool("POST_PROCESSING_ENABLED"),
			URL:         v.GetString("POST_PROCESS_URL"),
			SkipTitle:   v.GetBool("SKIP_TITLE_GENERATION"),
			SkipSummary: v.GetBool("SKIP_SUMMARY_GENERATION"),
			SkipImage:   v.GetBool("SKIP_IMAGE_GENERATION"),
		},
		Email: Email{
			Provider:       strings.ToLower(v.GetString("EMAIL_PROVIDER")),
			From:           v.GetString("EMAIL_FROM"),
			MailgunDomain:  v.GetString("MAILGUN_DOMAIN"),
			MailgunAPIKey:  v.GetString("MAILGUN_API_KEY"),
			SendGridAPIKey: v.GetString("SENDGRID_API_KEY"),
		},
		Retry: Retry{
			MaxAttempts: v.GetInt("RETRY_MAX_ATTEMPTS"),
			BatchSize:   v.GetInt("RETRY_BATCH_SIZE"),
			Interval:    v.GetString("RETRY_INTERVAL"),
		},
		RateLimit: RateLimit{
			RPS:            v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:          v.GetInt("RATE_LIMIT_BURST"),
			TrustedProxies: splitList(v.GetString("RATE_LIMIT_TRUSTED_PROXIES")),
		},
		CallbackSecret: v.GetString("CALLBACK_SECRET"),
		AdminToken:     v.GetString("ADMIN_API_TOKEN"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList reads a comma or space separated env value.
func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
}

// Validate checks the keys every binary needs.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	if c.Storage.Bucket == "" {
		return errors.New("S3_BUCKET is not set")
	}
	if c.Workers.Timeout <= 0 {
		c.Workers.Timeout = 30 * time.Second
	}
	if c.Retry.MaxAttempts < 0 {
		c.Retry.MaxAttempts = 0
	}
	return nil
}
