package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds the bot token, the admin group and update transport.
type TelegramConfig struct {
	Token string `yaml:"token" envconfig:"BOT_TOKEN"`
	// AdminGroupID is the forum supergroup that hosts one topic per user.
	AdminGroupID int64 `yaml:"admin_group_id" envconfig:"ADMIN_GROUP_ID"`
	// AdminIDs lists primary admins. It is fixed for the process lifetime.
	AdminIDs []string `yaml:"admin_ids" envconfig:"ADMIN_IDS"`
	RunMode  string   `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	// HTTPRetries is the number of transport-level retries for dial failures.
	HTTPRetries int `yaml:"http_retries" envconfig:"TELEGRAM_HTTP_RETRIES"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL         string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen      string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port        int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
	Path        string `yaml:"path" envconfig:"WEBHOOK_PATH"`
	SecretToken string `yaml:"secret_token" envconfig:"WEBHOOK_SECRET_TOKEN"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateEdited identifies edited message updates for rate limit exclusions.
	UpdateEdited = "edited_message"
)

// DefaultWebhookPath is used when webhook.path is not configured.
const DefaultWebhookPath = "/webhook"

// RateLimitConfig throttles each sender to one update per IntervalMS.
// ExcludeUpdates lists update kinds that bypass the limit.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := LoadInto(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadInto decodes the YAML file at path into dst, then overlays environment
// variables through envconfig. dst may embed Config inline.
func LoadInto(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := envconfig.Process("", dst); err != nil {
		return fmt.Errorf("config: env overlay: %w", err)
	}
	return nil
}

// Normalize validates cfg and fills defaults in place. Every problem found
// is reported in the returned error.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil config")
	}
	return errors.Join(
		normalizeTelegram(&cfg.Telegram),
		normalizeTransport(cfg),
		normalizeRateLimit(&cfg.RateLimit),
	)
}

func normalizeTelegram(t *TelegramConfig) error {
	var errs []error
	if strings.TrimSpace(t.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if t.AdminGroupID == 0 {
		errs = append(errs, errors.New("telegram.admin_group_id is required"))
	}
	if t.HTTPRetries < 0 {
		errs = append(errs, errors.New("telegram.http_retries must be >= 0"))
	}

	ids := t.AdminIDs[:0]
	for _, raw := range t.AdminIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, err := strconv.ParseInt(id, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("telegram.admin_ids: %q is not a user id", raw))
			continue
		}
		ids = append(ids, id)
	}
	t.AdminIDs = ids
	return errors.Join(errs...)
}

// normalizeTransport resolves the run mode and checks the settings it needs.
func normalizeTransport(cfg *Config) error {
	mode := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	switch mode {
	case "":
		mode = RunModeWebhook
	case "polling":
		mode = RunModeLongpoll
	}

	switch mode {
	case RunModeWebhook:
		w := &cfg.Webhook
		var errs []error
		if strings.TrimSpace(w.URL) == "" {
			errs = append(errs, errors.New("webhook.url is required in webhook mode"))
		}
		if w.Port <= 0 {
			errs = append(errs, errors.New("webhook.port must be > 0 in webhook mode"))
		}
		if strings.TrimSpace(w.Listen) == "" {
			w.Listen = "0.0.0.0"
		}
		w.Path = "/" + strings.TrimPrefix(strings.TrimSpace(w.Path), "/")
		if w.Path == "/" {
			w.Path = DefaultWebhookPath
		}
		if len(errs) > 0 {
			return errors.Join(errs...)
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return errors.New("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("telegram.run_mode %q is not one of webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = mode
	return nil
}

func normalizeRateLimit(rl *RateLimitConfig) error {
	if rl.IntervalMS < 0 {
		return errors.New("rate_limit.interval_ms must be >= 0")
	}
	kinds := rl.ExcludeUpdates[:0]
	for _, v := range rl.ExcludeUpdates {
		kind := strings.ToLower(strings.TrimSpace(v))
		switch kind {
		case "":
			continue
		case UpdateCallback, UpdateMessage, UpdateEdited:
			kinds = append(kinds, kind)
		default:
			return fmt.Errorf("rate_limit.exclude_updates: %q is not one of callback, message, edited_message", v)
		}
	}
	rl.ExcludeUpdates = kinds
	return nil
}
