package config

import (
	"time"

	"github.com/mattjoyce/lyftr/internal/storage"
)

// Config is the resolved runtime configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	HTTP     HTTPConfig     `yaml:"http"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Database DatabaseConfig `yaml:"database"`
	Stats    StatsConfig    `yaml:"stats"`
	Events   EventsConfig   `yaml:"events"`

	// SourceFile is the YAML file that was merged, if any.
	SourceFile string `yaml:"-"`
}

type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

type HTTPConfig struct {
	Listen           string        `yaml:"listen"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	ReadinessTimeout time.Duration `yaml:"readiness_timeout"`
}

type WebhookConfig struct {
	Secret          string `yaml:"secret"`
	SignatureHeader string `yaml:"signature_header"`
	// MaxBodySize is the configured text ("1MB"); MaxBodyBytes its value.
	MaxBodySize  string `yaml:"max_body_size"`
	MaxBodyBytes int64  `yaml:"-"`
}

type DatabaseConfig struct {
	URL       string        `yaml:"url"`
	OpTimeout time.Duration `yaml:"op_timeout"`
	// Lock guards the database file with a PID lock beside it.
	Lock bool `yaml:"lock"`
}

// Path is the filesystem path named by URL.
func (d DatabaseConfig) Path() string {
	return storage.PathFromURL(d.URL)
}

// LockPath is where the PID lock lives, or "" when locking is disabled.
func (d DatabaseConfig) LockPath() string {
	if !d.Lock || d.Path() == "" {
		return ""
	}
	return d.Path() + ".lock"
}

type StatsConfig struct {
	// TopSenders caps messages_per_sender; 0 lists every sender.
	TopSenders int `yaml:"top_senders"`
}

type EventsConfig struct {
	Buffer int `yaml:"buffer"`
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Webhook.Secret != "" {
		c.Webhook.Secret = "********"
	}
	return c
}
