package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Token:        "123:abc",
			AdminGroupID: -1001,
			AdminIDs:     []string{" 42 ", "", "7"},
		},
		Webhook: WebhookConfig{URL: "https://example.org/hook", Port: 8080},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, Normalize(cfg))

	assert.Equal(t, RunModeWebhook, cfg.Telegram.RunMode)
	assert.Equal(t, DefaultWebhookPath, cfg.Webhook.Path)
	assert.Equal(t, "0.0.0.0", cfg.Webhook.Listen)
	assert.Equal(t, []string{"42", "7"}, cfg.Telegram.AdminIDs)
}

func TestNormalizeRejectsInvalidInput(t *testing.T) {
	cases := map[string]func(*Config){
		"missing token":       func(c *Config) { c.Telegram.Token = "" },
		"missing group":       func(c *Config) { c.Telegram.AdminGroupID = 0 },
		"bad admin id":        func(c *Config) { c.Telegram.AdminIDs = []string{"abc"} },
		"webhook without url": func(c *Config) { c.Webhook.URL = "" },
		"bad run mode":        func(c *Config) { c.Telegram.RunMode = "carrier-pigeon" },
		"bad exclude":         func(c *Config) { c.RateLimit.ExcludeUpdates = []string{"inline_query"} },
		"negative retries":    func(c *Config) { c.Telegram.HTTPRetries = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			assert.Error(t, Normalize(cfg))
		})
	}
}

func TestNormalizePollingAlias(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = "Polling"
	cfg.Webhook = WebhookConfig{}
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
}

func TestLoadOverlaysEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`telegram:
  token: from-file
  admin_group_id: -100500
  run_mode: longpoll
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("BOT_TOKEN", "from-env")
	t.Setenv("ADMIN_IDS", "1,2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.Equal(t, int64(-100500), cfg.Telegram.AdminGroupID)
	assert.Equal(t, []string{"1", "2"}, cfg.Telegram.AdminIDs)
}

func TestNormalizeReportsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.Token = ""
	cfg.Telegram.AdminGroupID = 0
	cfg.Webhook.Port = 0

	err := Normalize(cfg)
	require.Error(t, err)
	for _, want := range []string{"telegram.token", "telegram.admin_group_id", "webhook.port"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestNormalizeWebhookPath(t *testing.T) {
	cfg := validConfig()
	cfg.Webhook.Path = " relay/hook "
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, "/relay/hook", cfg.Webhook.Path)
}
