package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file or
// environment. Appliance address and intervals mirror the exporter's
// historical defaults.
const (
	DefaultHost         = "127.0.0.1:5666"
	DefaultListen       = ":9100"
	DefaultPollInterval = 5 * time.Second
	DefaultTimeout      = 10 * time.Second
	DefaultLogLevel     = "info"
	DefaultPasswordEnv  = "FNOS_PASSWORD"
	DefaultAuthHeader   = "X-Api-Key"
)

// Config is the top-level exporter configuration. Fields map 1:1 to
// config.example.yaml; every field can also be supplied through the
// environment variable named in its envconfig tag.
type Config struct {
	Fnos     FnosConfig     `yaml:"fnos"`
	Exporter ExporterConfig `yaml:"exporter"`
}

// FnosConfig describes the monitored appliance.
type FnosConfig struct {
	// Host is the appliance address: host:port, or a full http(s) URL.
	Host string `yaml:"host" envconfig:"FNOS_HOST"`

	// User is the management API login name.
	User string `yaml:"user" envconfig:"FNOS_USER"`

	// PasswordEnv is the name of the environment variable that holds the
	// password. The password itself never appears in the config file.
	PasswordEnv string `yaml:"password_env" envconfig:"FNOS_PASSWORD_ENV"`

	// Timeout bounds every single appliance API call.
	Timeout time.Duration `yaml:"timeout" envconfig:"FNOS_TIMEOUT"`

	// TLS holds dial options for HTTPS appliances.
	TLS TLSConfig `yaml:"tls"`
}

// Password returns the appliance password resolved from the environment.
func (f FnosConfig) Password() string {
	if f.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(f.PasswordEnv)
}

// TLSConfig holds TLS dial options for the appliance connection.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for self-signed appliance certificates.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" envconfig:"FNOS_TLS_INSECURE_SKIP_VERIFY"`
}

// ExporterConfig holds the exporter's own settings.
type ExporterConfig struct {
	// Listen is the address the metrics endpoint binds to.
	Listen string `yaml:"listen" envconfig:"FNOS_EXPORTER_LISTEN"`

	// PollInterval controls how often the appliance is polled.
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"FNOS_EXPORTER_POLL_INTERVAL"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level" envconfig:"FNOS_EXPORTER_LOG_LEVEL"`

	// CollectSmart enables per-disk SMART collection. Off by default since
	// it issues one extra appliance call per disk per cycle.
	CollectSmart bool `yaml:"collect_smart" envconfig:"FNOS_EXPORTER_COLLECT_SMART"`

	// Auth optionally protects the exporter's HTTP surface.
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig configures authentication for incoming scrape requests.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode" envconfig:"FNOS_EXPORTER_AUTH_MODE"`

	// Header is the HTTP header name the key is expected in.
	Header string `yaml:"header" envconfig:"FNOS_EXPORTER_AUTH_HEADER"`

	// KeyEnv is the name of the environment variable holding the expected key.
	KeyEnv string `yaml:"key_env" envconfig:"FNOS_EXPORTER_AUTH_KEY_ENV"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// FromEnv builds a Config entirely from environment variables, for
// deployments (containers, systemd units) that carry no config file.
func FromEnv() (*Config, error) {
	cfg := defaults()
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("config: process environment: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Fnos: FnosConfig{
			Host:        DefaultHost,
			PasswordEnv: DefaultPasswordEnv,
			Timeout:     DefaultTimeout,
		},
		Exporter: ExporterConfig{
			Listen:       DefaultListen,
			PollInterval: DefaultPollInterval,
			LogLevel:     DefaultLogLevel,
			Auth: AuthConfig{
				Header: DefaultAuthHeader,
			},
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Fnos.Host == "" {
		return fmt.Errorf("fnos.host is required")
	}
	if cfg.Fnos.User == "" {
		return fmt.Errorf("fnos.user is required")
	}
	if cfg.Fnos.Timeout <= 0 {
		return fmt.Errorf("fnos.timeout must be positive")
	}
	if cfg.Exporter.PollInterval <= 0 {
		return fmt.Errorf("exporter.poll_interval must be positive")
	}
	switch cfg.Exporter.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("exporter.log_level: unknown level %q", cfg.Exporter.LogLevel)
	}
	switch cfg.Exporter.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("exporter.auth: unknown mode %q", cfg.Exporter.Auth.Mode)
	}
	return nil
}
