// Package config loads process configuration once at startup. Components
// receive the values they need through their constructors.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	KeyBotToken          = "TELEGRAM_BOT_TOKEN"
	KeyBotTokenParam     = "TELEGRAM_BOT_TOKEN_PARAM"
	KeyAPIURL            = "TELEGRAM_API_URL"
	KeyWebhookSecret     = "TELEGRAM_WEBHOOK_SECRET"
	KeyDatabaseURL       = "DATABASE_URL"
	KeyMaxDBSizeMB       = "MAX_DB_SIZE_MB"
	KeyRetentionHours    = "RETENTION_HORIZON_HOURS"
	KeyCleanupInterval   = "CLEANUP_INTERVAL"
	KeySizeCheckInterval = "SIZE_CHECK_INTERVAL"
	KeyRetentionDelay    = "RETENTION_INITIAL_DELAY"
	KeyPollTimeout       = "POLL_TIMEOUT"
	KeyMetricsAddr       = "METRICS_ADDR"
	KeyLogLevel          = "LOG_LEVEL"
	KeyLogFormat         = "LOG_FORMAT"
)

type Config struct {
	BotToken      string
	BotTokenParam string
	APIURL        string
	WebhookSecret string
	DatabaseURL   string

	MaxDBSizeBytes    int64
	RetentionHorizon  time.Duration
	CleanupInterval   time.Duration
	SizeCheckInterval time.Duration
	RetentionDelay    time.Duration
	PollTimeout       time.Duration

	MetricsAddr string
	LogLevel    string
	LogFormat   string
}

// New returns a viper instance with defaults and environment lookup set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyAPIURL, "https://api.telegram.org")
	v.SetDefault(KeyDatabaseURL, "sqlite:///translator_bot.db")
	v.SetDefault(KeyMaxDBSizeMB, 400)
	v.SetDefault(KeyRetentionHours, 24)
	v.SetDefault(KeyCleanupInterval, "24h")
	v.SetDefault(KeySizeCheckInterval, "6h")
	v.SetDefault(KeyRetentionDelay, "1m")
	v.SetDefault(KeyPollTimeout, "30s")
	v.SetDefault(KeyMetricsAddr, ":9090")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.AutomaticEnv()
	return v
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"token":        KeyBotToken,
	"token-param":  KeyBotTokenParam,
	"database-url": KeyDatabaseURL,
	"metrics-addr": KeyMetricsAddr,
	"log-level":    KeyLogLevel,
	"log-format":   KeyLogFormat,
}

// RegisterFlags adds the overridable settings to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("token", "", "Telegram bot token (env "+KeyBotToken+")")
	fs.String("token-param", "", "SSM parameter holding the bot token (env "+KeyBotTokenParam+")")
	fs.String("database-url", "", "message store DSN (env "+KeyDatabaseURL+")")
	fs.String("metrics-addr", "", "metrics and health listen address, empty disables (env "+KeyMetricsAddr+")")
	fs.String("log-level", "", "debug, info, warn or error (env "+KeyLogLevel+")")
	fs.String("log-format", "", "text or json (env "+KeyLogFormat+")")
}

// BindFlags makes flags that were set on the command line win over env and
// file values.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("config: bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the optional config file and returns the validated Config.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	cfg := Config{
		BotToken:          strings.TrimSpace(v.GetString(KeyBotToken)),
		BotTokenParam:     strings.TrimSpace(v.GetString(KeyBotTokenParam)),
		APIURL:            strings.TrimSpace(v.GetString(KeyAPIURL)),
		WebhookSecret:     v.GetString(KeyWebhookSecret),
		DatabaseURL:       strings.TrimSpace(v.GetString(KeyDatabaseURL)),
		MaxDBSizeBytes:    v.GetInt64(KeyMaxDBSizeMB) << 20,
		RetentionHorizon:  time.Duration(v.GetInt64(KeyRetentionHours)) * time.Hour,
		CleanupInterval:   v.GetDuration(KeyCleanupInterval),
		SizeCheckInterval: v.GetDuration(KeySizeCheckInterval),
		RetentionDelay:    v.GetDuration(KeyRetentionDelay),
		PollTimeout:       v.GetDuration(KeyPollTimeout),
		MetricsAddr:       strings.TrimSpace(v.GetString(KeyMetricsAddr)),
		LogLevel:          strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
		LogFormat:         strings.ToLower(strings.TrimSpace(v.GetString(KeyLogFormat))),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RequireToken fails unless the bot token or its SSM parameter is set.
// Commands that talk to Telegram call it before anything else.
func (c Config) RequireToken() error {
	if c.BotToken == "" && c.BotTokenParam == "" {
		return fmt.Errorf("config: %s or %s is required", KeyBotToken, KeyBotTokenParam)
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("config: %s must not be empty", KeyDatabaseURL))
	}
	if c.MaxDBSizeBytes <= 0 {
		errs = append(errs, fmt.Errorf("config: %s must be positive", KeyMaxDBSizeMB))
	}
	if c.RetentionHorizon <= 0 {
		errs = append(errs, fmt.Errorf("config: %s must be positive", KeyRetentionHours))
	}
	if c.CleanupInterval <= 0 {
		errs = append(errs, fmt.Errorf("config: %s must be positive", KeyCleanupInterval))
	}
	if c.SizeCheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("config: %s must be positive", KeySizeCheckInterval))
	}
	if c.RetentionDelay < 0 {
		errs = append(errs, fmt.Errorf("config: %s must not be negative", KeyRetentionDelay))
	}
	if c.PollTimeout < 0 {
		errs = append(errs, fmt.Errorf("config: %s must not be negative", KeyPollTimeout))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("config: %s must be text or json, got %q", KeyLogFormat, c.LogFormat))
	}
	return errors.Join(errs...)
}
