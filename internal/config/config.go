// Package config loads the process configuration from a YAML file, applies
// environment variable overrides (the surface enumerated in spec.md §6),
// and validates cross-field rules the struct tags can't express.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP listeners.
type ServerConfig struct {
	WebhookPort string `yaml:"webhook_port" validate:"required"`
	MetricsPort string `yaml:"metrics_port"`
}

// ModelConfig controls the Analysis Engine's model client.
type ModelConfig struct {
	Provider    string        `yaml:"provider" validate:"required,oneof=anthropic bedrock langchain"`
	Endpoint    string        `yaml:"endpoint"`
	Model       string        `yaml:"model" validate:"required"`
	APIKey      string        `yaml:"-"` // sourced from MODEL_API_KEY, never serialized
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	RetryCount  int           `yaml:"retry_count"`
}

// KubernetesConfig controls the Kubernetes adapter's client.
type KubernetesConfig struct {
	KubeconfigPath string `yaml:"kubeconfig_path"`
	Context        string `yaml:"context"`
	Namespace      string `yaml:"namespace"`
}

// WebhookAuthConfig controls HMAC signature validation of inbound webhooks.
type WebhookAuthConfig struct {
	Secret string `yaml:"-"` // sourced from WEBHOOK_SECRET
}

// WebhookConfig controls the ingress HTTP surface.
type WebhookConfig struct {
	Path string            `yaml:"path"`
	Auth WebhookAuthConfig `yaml:"-"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// IncidentManagementConfig controls PagerDuty acknowledge/resolve calls.
type IncidentManagementConfig struct {
	APIKey    string `yaml:"-"` // INCIDENT_MANAGEMENT_API_KEY
	UserEmail string `yaml:"-"` // INCIDENT_MANAGEMENT_USER_EMAIL
}

// DedupConfig controls the incident deduplication window.
type DedupConfig struct {
	WindowSeconds int `yaml:"window_seconds"`
}

// SlackConfig controls the optional lifecycle-notification integration.
// Channel is left empty to disable it entirely.
type SlackConfig struct {
	Token   string `yaml:"-"` // SLACK_TOKEN
	Channel string `yaml:"channel"`
}

// MetricsBackendConfig controls the optional Prometheus context adapter.
// Address is left empty to disable it entirely.
type MetricsBackendConfig struct {
	Address  string        `yaml:"address"`
	Lookback time.Duration `yaml:"lookback"`
}

// SourceControlConfig controls the optional GitHub context adapter.
// Token is left empty to disable it entirely.
type SourceControlConfig struct {
	Token    string        `yaml:"-"` // SCM_TOKEN
	Lookback time.Duration `yaml:"lookback"`
}

// DocsConfig controls the optional runbook-index context adapter.
// RunbooksPath is left empty to disable it entirely.
type DocsConfig struct {
	RunbooksPath string `yaml:"runbooks_path"`
}

// Config is the process-wide static configuration, loaded once at startup.
// AutonomyConfig (mode/thresholds/risk matrix) is separate and hot-reloadable
// — see autonomy.go.
type Config struct {
	Server             ServerConfig             `yaml:"server"`
	Model              ModelConfig              `yaml:"model"`
	Kubernetes         KubernetesConfig         `yaml:"kubernetes"`
	Webhook            WebhookConfig            `yaml:"webhook"`
	Logging            LoggingConfig            `yaml:"logging"`
	IncidentManagement IncidentManagementConfig `yaml:"-"`
	Dedup              DedupConfig              `yaml:"dedup"`
	Slack              SlackConfig              `yaml:"slack"`
	MetricsBackend     MetricsBackendConfig     `yaml:"metrics_backend"`
	SourceControl      SourceControlConfig      `yaml:"source_control"`
	Docs               DocsConfig               `yaml:"docs"`
	RedisAddr          string                   `yaml:"redis_addr"`
	PostgresDSN        string                   `yaml:"postgres_dsn"`
	AutonomyConfigPath string                   `yaml:"autonomy_config_path"`
}

var v = validator.New()

// Load reads the YAML file at path, applies defaults, overlays environment
// variables, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(cfg)

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.WebhookPort == "" {
		cfg.Server.WebhookPort = "8080"
	}
	if cfg.Server.MetricsPort == "" {
		cfg.Server.MetricsPort = "9090"
	}
	if cfg.Kubernetes.Namespace == "" {
		cfg.Kubernetes.Namespace = "default"
	}
	if cfg.Webhook.Path == "" {
		cfg.Webhook.Path = "/webhook"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Model.Timeout == 0 {
		cfg.Model.Timeout = 60 * time.Second
	}
	if cfg.Model.RetryCount == 0 {
		cfg.Model.RetryCount = 3
	}
	if cfg.Model.Temperature == 0 {
		cfg.Model.Temperature = 0.3
	}
	if cfg.Model.MaxTokens == 0 {
		cfg.Model.MaxTokens = 1024
	}
	if cfg.Dedup.WindowSeconds == 0 {
		cfg.Dedup.WindowSeconds = 300
	}
	if cfg.AutonomyConfigPath == "" {
		cfg.AutonomyConfigPath = "autonomy.yaml"
	}
	if cfg.MetricsBackend.Lookback == 0 {
		cfg.MetricsBackend.Lookback = 15 * time.Minute
	}
	if cfg.SourceControl.Lookback == 0 {
		cfg.SourceControl.Lookback = 24 * time.Hour
	}
}

// loadFromEnv overlays the environment variables enumerated in spec.md §6.
// Missing variables leave the corresponding field untouched.
func loadFromEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("MODEL_API_KEY"); ok {
		cfg.Model.APIKey = v
	}
	if v, ok := os.LookupEnv("MODEL_PROVIDER"); ok {
		cfg.Model.Provider = v
	}
	if v, ok := os.LookupEnv("KUBERNETES_KUBECONFIG_PATH"); ok {
		cfg.Kubernetes.KubeconfigPath = v
	}
	if v, ok := os.LookupEnv("KUBERNETES_CONTEXT"); ok {
		cfg.Kubernetes.Context = v
	}
	if v, ok := os.LookupEnv("INCIDENT_MANAGEMENT_API_KEY"); ok {
		cfg.IncidentManagement.APIKey = v
	}
	if v, ok := os.LookupEnv("INCIDENT_MANAGEMENT_USER_EMAIL"); ok {
		cfg.IncidentManagement.UserEmail = v
	}
	if v, ok := os.LookupEnv("WEBHOOK_SECRET"); ok {
		cfg.Webhook.Auth.Secret = v
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := os.LookupEnv("WEBHOOK_PORT"); ok {
		cfg.Server.WebhookPort = v
	}
	if v, ok := os.LookupEnv("METRICS_PORT"); ok {
		cfg.Server.MetricsPort = v
	}
	if v, ok := os.LookupEnv("REDIS_ADDR"); ok {
		cfg.RedisAddr = v
	}
	if v, ok := os.LookupEnv("POSTGRES_DSN"); ok {
		cfg.PostgresDSN = v
	}
	if v, ok := os.LookupEnv("INCIDENT_DEDUP_WINDOW_SECONDS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("INCIDENT_DEDUP_WINDOW_SECONDS: %w", err)
		}
		cfg.Dedup.WindowSeconds = n
	}
	if v, ok := os.LookupEnv("SLACK_TOKEN"); ok {
		cfg.Slack.Token = v
	}
	if v, ok := os.LookupEnv("SCM_TOKEN"); ok {
		cfg.SourceControl.Token = v
	}
	return nil
}

func validateConfig(cfg *Config) error {
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	switch cfg.Model.Provider {
	case "anthropic", "bedrock", "langchain":
	default:
		return fmt.Errorf("unsupported model provider: %s", cfg.Model.Provider)
	}

	if cfg.Model.Temperature < 0.0 || cfg.Model.Temperature > 1.0 {
		return fmt.Errorf("model temperature must be between 0.0 and 1.0")
	}
	if cfg.Model.MaxTokens <= 0 {
		return fmt.Errorf("model max tokens must be greater than 0")
	}
	if cfg.Kubernetes.Namespace == "" {
		return fmt.Errorf("Kubernetes namespace is required")
	}
	return nil
}
