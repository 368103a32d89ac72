// Package config loads the client settings from a YAML file, an optional
// .env file and CLOUDBACKEND_* environment variables, in that order of
// precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mobilebackend/cloudbackend.go/internal/codec"
	"github.com/mobilebackend/cloudbackend.go/pkg/constants"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CLOUDBACKEND_"

type Log struct {
	Level   string `yaml:"level"`
	Path    string `yaml:"path"`
	Console bool   `yaml:"console"`
}

type Config struct {
	// Endpoint is the backend root URL, such as https://project.appspot.com.
	Endpoint string `yaml:"endpoint"`
	// PushURL is the WebSocket push endpoint. Empty disables continuous queries.
	PushURL    string `yaml:"push_url"`
	SenderID   string `yaml:"sender_id"`
	Credential string `yaml:"credential"`
	Codec      string `yaml:"codec"`

	Timeout             time.Duration `yaml:"timeout"`
	MaxElapsedRetry     time.Duration `yaml:"max_elapsed_retry"`
	RegistrationTimeout time.Duration `yaml:"registration_timeout"`
	ReconnectInterval   time.Duration `yaml:"reconnect_interval"`
	Workers             int           `yaml:"workers"`

	// WatermarkPath is the pebble directory for topic watermarks. Empty keeps
	// them in memory.
	WatermarkPath string `yaml:"watermark_path"`
	MetricsAddr   string `yaml:"metrics_addr"`

	Log Log `yaml:"log"`
}

func Default() *Config {
	return &Config{
		Endpoint:            "http://localhost:8080",
		Codec:               "cbor",
		Timeout:             constants.DefaultHTTPTimeout,
		MaxElapsedRetry:     constants.DefaultMaxElapsedRetry,
		RegistrationTimeout: constants.DefaultRegistrationTimeout,
		ReconnectInterval:   constants.DefaultReconnectInterval,
		Workers:             constants.DefaultWorkers,
		Log:                 Log{Level: "info"},
	}
}

// Load reads path (skipped when empty), then envFile (skipped when missing),
// then applies the environment and validates the result.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from CLOUDBACKEND_* variables that are set.
func (c *Config) ApplyEnv() error {
	c.Endpoint = getEnvOrDefault("ENDPOINT", c.Endpoint)
	c.PushURL = getEnvOrDefault("PUSH_URL", c.PushURL)
	c.SenderID = getEnvOrDefault("SENDER_ID", c.SenderID)
	c.Credential = getEnvOrDefault("CREDENTIAL", c.Credential)
	c.Codec = getEnvOrDefault("CODEC", c.Codec)
	c.WatermarkPath = getEnvOrDefault("WATERMARK_PATH", c.WatermarkPath)
	c.MetricsAddr = getEnvOrDefault("METRICS_ADDR", c.MetricsAddr)
	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Path = getEnvOrDefault("LOG_PATH", c.Log.Path)

	for key, dst := range map[string]*time.Duration{
		"TIMEOUT":              &c.Timeout,
		"MAX_ELAPSED_RETRY":    &c.MaxElapsedRetry,
		"REGISTRATION_TIMEOUT": &c.RegistrationTimeout,
		"RECONNECT_INTERVAL":   &c.ReconnectInterval,
	} {
		if v := getEnvOrDefault(key, ""); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = d
		}
	}
	if v := getEnvOrDefault("WORKERS", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sWORKERS: %w", EnvPrefix, err)
		}
		c.Workers = n
	}
	if v := getEnvOrDefault("LOG_CONSOLE", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sLOG_CONSOLE: %w", EnvPrefix, err)
		}
		c.Log.Console = b
	}
	return nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Host == "" {
		return fmt.Errorf("config: invalid endpoint %q", c.Endpoint)
	}
	switch u.Scheme {
	case constants.HTTPScheme, constants.HTTPSecureScheme:
	default:
		return fmt.Errorf("config: endpoint scheme %q is not http(s)", u.Scheme)
	}
	if c.PushURL != "" {
		p, err := url.Parse(c.PushURL)
		if err != nil || (p.Scheme != constants.WebsocketScheme && p.Scheme != constants.WebsocketSecureScheme) {
			return fmt.Errorf("config: push url %q is not ws(s)", c.PushURL)
		}
		if _, err := strconv.ParseUint(c.SenderID, 10, 64); err != nil {
			return fmt.Errorf("config: sender id %q must be numeric", c.SenderID)
		}
	}
	if _, ok := codec.ByName(c.Codec); !ok {
		return fmt.Errorf("config: unknown codec %q", c.Codec)
	}
	if c.Timeout < 0 || c.MaxElapsedRetry < 0 || c.RegistrationTimeout < 0 || c.ReconnectInterval < 0 {
		return fmt.Errorf("config: durations must not be negative")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: workers must be positive, got %d", c.Workers)
	}
	return nil
}

// EndpointURL returns the parsed Endpoint. Call it after Validate.
func (c *Config) EndpointURL() *url.URL {
	u, _ := url.Parse(c.Endpoint)
	return u
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}

	return value
}
