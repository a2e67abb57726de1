package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// WebSocket timing shared by the server pumps and the client channel.
const (
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10
	MaxMessageSize = 8 * 1024
)

const (
	defaultServerAddr     = ":3000"
	defaultNatsURL        = "nats://127.0.0.1:4222"
	defaultStreamName     = "CHAT_MESSAGES"
	defaultSubjectPrefix  = "chat"
	defaultStreamMaxAge   = 24 * time.Hour
	defaultDataDir        = "./data/history"
	defaultHistoryLimit   = 100
	defaultLogLevel       = "info"
	defaultSendRate       = 5.0
	defaultSendBurst      = 10
	defaultMaxClockSkew   = 5 * time.Minute
	defaultServerURL      = "http://127.0.0.1:3000"
	defaultRequestTimeout = 10 * time.Second
)

// Config holds both the server and the client settings. Each binary only
// reads the half it needs.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`

	LogLevel string `yaml:"log_level"`
}

type ServerConfig struct {
	Addr          string        `yaml:"addr"`
	NatsURL       string        `yaml:"nats_url"`
	StreamName    string        `yaml:"stream_name"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	StreamMaxAge  time.Duration `yaml:"stream_max_age"`
	DataDir       string        `yaml:"data_dir"`
	HistoryLimit  int           `yaml:"history_limit"`

	// SendRate is the sustained sendMessage rate per connection (events/second).
	SendRate  float64 `yaml:"send_rate"`
	SendBurst int     `yaml:"send_burst"`

	// MaxClockSkew bounds how far a client supplied sentAt may drift from
	// server time before it is replaced.
	MaxClockSkew time.Duration `yaml:"max_clock_skew"`
}

type ClientConfig struct {
	ServerURL      string        `yaml:"server_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Default returns a config with every field populated.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:          defaultServerAddr,
			NatsURL:       defaultNatsURL,
			StreamName:    defaultStreamName,
			SubjectPrefix: defaultSubjectPrefix,
			StreamMaxAge:  defaultStreamMaxAge,
			DataDir:       defaultDataDir,
			HistoryLimit:  defaultHistoryLimit,
			SendRate:      defaultSendRate,
			SendBurst:     defaultSendBurst,
			MaxClockSkew:  defaultMaxClockSkew,
		},
		Client: ClientConfig{
			ServerURL:      defaultServerURL,
			RequestTimeout: defaultRequestTimeout,
		},
		LogLevel: defaultLogLevel,
	}
}

// Load builds the config from defaults, then the optional YAML file at path,
// then MATCHCHAT_* environment variables (a local .env file is honoured).
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server or client cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Server.Addr == "":
		return fmt.Errorf("server.addr must not be empty")
	case c.Server.StreamName == "":
		return fmt.Errorf("server.stream_name must not be empty")
	case c.Server.SubjectPrefix == "" || strings.ContainsAny(c.Server.SubjectPrefix, " *>"):
		return fmt.Errorf("server.subject_prefix %q is not a valid NATS subject token", c.Server.SubjectPrefix)
	case c.Server.HistoryLimit <= 0:
		return fmt.Errorf("server.history_limit must be positive")
	case c.Server.SendRate <= 0 || c.Server.SendBurst <= 0:
		return fmt.Errorf("server.send_rate and server.send_burst must be positive")
	case c.Client.RequestTimeout <= 0:
		return fmt.Errorf("client.request_timeout must be positive")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Addr, "MATCHCHAT_ADDR")
	setString(&cfg.Server.NatsURL, "MATCHCHAT_NATS_URL")
	setString(&cfg.Server.StreamName, "MATCHCHAT_STREAM_NAME")
	setString(&cfg.Server.SubjectPrefix, "MATCHCHAT_SUBJECT_PREFIX")
	setString(&cfg.Server.DataDir, "MATCHCHAT_DATA_DIR")
	setString(&cfg.Client.ServerURL, "MATCHCHAT_SERVER_URL")
	setString(&cfg.LogLevel, "MATCHCHAT_LOG_LEVEL")

	if err := setDuration(&cfg.Server.StreamMaxAge, "MATCHCHAT_STREAM_MAX_AGE"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Server.MaxClockSkew, "MATCHCHAT_MAX_CLOCK_SKEW"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Client.RequestTimeout, "MATCHCHAT_REQUEST_TIMEOUT"); err != nil {
		return err
	}
	if err := setInt(&cfg.Server.HistoryLimit, "MATCHCHAT_HISTORY_LIMIT"); err != nil {
		return err
	}
	if err := setInt(&cfg.Server.SendBurst, "MATCHCHAT_SEND_BURST"); err != nil {
		return err
	}
	if v := os.Getenv("MATCHCHAT_SEND_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid MATCHCHAT_SEND_RATE %q: %w", v, err)
		}
		cfg.Server.SendRate = f
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = d
	return nil
}
