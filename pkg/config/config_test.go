package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
endpoint: https://example.appspot.com
push_url: wss://push.example.com/push
sender_id: "123456"
codec: json
timeout: 5s
workers: 8
watermark_path: /var/lib/cloudbackend
log:
  level: debug
  console: true
`)
	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "https://example.appspot.com", cfg.Endpoint)
	assert.Equal(t, "wss://push.example.com/push", cfg.PushURL)
	assert.Equal(t, "123456", cfg.SenderID)
	assert.Equal(t, "json", cfg.Codec)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Console)
	assert.Equal(t, Default().MaxElapsedRetry, cfg.MaxElapsedRetry)
	assert.Equal(t, "example.appspot.com", cfg.EndpointURL().Host)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "config.yaml", "endpoint: https://file.example.com\nworkers: 2\n")
	t.Setenv(EnvPrefix+"ENDPOINT", "http://env.example.com")
	t.Setenv(EnvPrefix+"WORKERS", "3")
	t.Setenv(EnvPrefix+"REGISTRATION_TIMEOUT", "1m")
	t.Setenv(EnvPrefix+"RECONNECT_INTERVAL", "250ms")

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "http://env.example.com", cfg.Endpoint)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, time.Minute, cfg.RegistrationTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.ReconnectInterval)
}

func TestLoadDotEnv(t *testing.T) {
	key := EnvPrefix + "CREDENTIAL"
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
	envFile := writeFile(t, ".env", key+"=secret\n")

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Credential)
}

func TestMissingDotEnvIsIgnored(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), ".env"))
	assert.NoError(t, err)
}

func TestBadEnvValue(t *testing.T) {
	t.Setenv(EnvPrefix+"TIMEOUT", "soon")
	_, err := Load("", "")
	assert.ErrorContains(t, err, EnvPrefix+"TIMEOUT")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		modify func(*Config)
	}{
		{"no host", func(c *Config) { c.Endpoint = "http://" }},
		{"bad scheme", func(c *Config) { c.Endpoint = "ftp://example.com" }},
		{"push not ws", func(c *Config) { c.PushURL = "http://example.com"; c.SenderID = "1" }},
		{"sender not numeric", func(c *Config) { c.PushURL = "ws://example.com"; c.SenderID = "abc" }},
		{"codec", func(c *Config) { c.Codec = "xml" }},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }},
		{"workers", func(c *Config) { c.Workers = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
