package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when no path is given and it exists in the working directory.
const DefaultFile = "lyftr.yaml"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// envBindings maps config keys to the environment names operators already use.
var envBindings = map[string]string{
	"webhook.secret":     "WEBHOOK_SECRET",
	"database.url":       "DATABASE_URL",
	"service.log_level":  "LOG_LEVEL",
	"service.log_format": "LYFTR_LOG_FORMAT",
	"http.listen":        "LYFTR_LISTEN",
	"stats.top_senders":  "LYFTR_TOP_SENDERS",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "lyftr")
	v.SetDefault("service.log_level", "INFO")
	v.SetDefault("service.log_format", "json")
	v.SetDefault("http.listen", ":8000")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.shutdown_timeout", "5s")
	v.SetDefault("http.readiness_timeout", "2s")
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.signature_header", "X-Signature")
	v.SetDefault("webhook.max_body_size", "1MB")
	v.SetDefault("database.url", "sqlite:////data/app.db")
	v.SetDefault("database.op_timeout", "5s")
	v.SetDefault("database.lock", true)
	v.SetDefault("stats.top_senders", 10)
	v.SetDefault("events.buffer", 256)
}

// Load resolves configuration from defaults, then the YAML file, then the
// environment (including a .env file in the working directory).
//
// path selects the YAML file; when empty, LYFTR_CONFIG and then DefaultFile
// are tried, and a missing default file is not an error. A missing
// webhook secret is not an error here: the service starts but reports
// not-ready and rejects every webhook.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	file, err := resolveFile(path)
	if err != nil {
		return nil, err
	}
	if file != "" {
		m, err := readFile(file)
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(m); err != nil {
			return nil, fmt.Errorf("merge config %s: %w", file, err)
		}
	}

	v.SetEnvPrefix("LYFTR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	cfg, err := build(v)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.SourceFile = file
	return cfg, nil
}

func resolveFile(path string) (string, error) {
	explicit := path != ""
	if !explicit {
		path = os.Getenv("LYFTR_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		path = DefaultFile
	}

	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return "", fmt.Errorf("config path %s is a directory", path)
	case err == nil:
		return path, nil
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		return "", nil
	default:
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", path)
	}
}

func readFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var m map[string]any
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), &m); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func build(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:      strings.TrimSpace(v.GetString("service.name")),
			LogLevel:  strings.ToUpper(strings.TrimSpace(v.GetString("service.log_level"))),
			LogFormat: strings.ToLower(strings.TrimSpace(v.GetString("service.log_format"))),
		},
		HTTP: HTTPConfig{
			Listen: strings.TrimSpace(v.GetString("http.listen")),
		},
		Webhook: WebhookConfig{
			Secret:          v.GetString("webhook.secret"),
			SignatureHeader: strings.TrimSpace(v.GetString("webhook.signature_header")),
			MaxBodySize:     strings.TrimSpace(v.GetString("webhook.max_body_size")),
		},
		Database: DatabaseConfig{
			URL:  strings.TrimSpace(v.GetString("database.url")),
			Lock: v.GetBool("database.lock"),
		},
		Stats:  StatsConfig{TopSenders: v.GetInt("stats.top_senders")},
		Events: EventsConfig{Buffer: v.GetInt("events.buffer")},
	}

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"http.read_timeout", &cfg.HTTP.ReadTimeout},
		{"http.write_timeout", &cfg.HTTP.WriteTimeout},
		{"http.shutdown_timeout", &cfg.HTTP.ShutdownTimeout},
		{"http.readiness_timeout", &cfg.HTTP.ReadinessTimeout},
		{"database.op_timeout", &cfg.Database.OpTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(v.GetString(d.key)); err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
	}

	if cfg.Webhook.MaxBodyBytes, err = ParseSize(cfg.Webhook.MaxBodySize); err != nil {
		return nil, fmt.Errorf("webhook.max_body_size: %w", err)
	}
	if cfg.Webhook.SignatureHeader == "" {
		return nil, fmt.Errorf("webhook.signature_header is empty")
	}
	if cfg.Stats.TopSenders < 0 {
		return nil, fmt.Errorf("stats.top_senders must be >= 0, got %d", cfg.Stats.TopSenders)
	}
	if cfg.Events.Buffer <= 0 {
		cfg.Events.Buffer = 256
	}
	return cfg, nil
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}
