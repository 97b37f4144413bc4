package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models missionline.yml.
type Config struct {
	Log struct {
		Dir string `yaml:"dir"`
	} `yaml:"log"`
	Execution struct {
		TimeoutSeconds int     `yaml:"timeout_seconds"`
		MinConfidence  float64 `yaml:"min_confidence"`
	} `yaml:"execution"`
	Auth struct {
		AllowLegacyActorHeader bool `yaml:"allow_legacy_actor_header"`
	} `yaml:"auth"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig is one delivery target for mission records.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Statuses       []string `yaml:"statuses"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "missionline.yml")
}

// Load reads config from the workspace, falling back to defaults when the
// file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	cfg.Log.Dir = ".missionline"
	cfg.Execution.TimeoutSeconds = 60
	cfg.Execution.MinConfidence = 0.5
	return &cfg
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Log.Dir == "" {
		return fmt.Errorf("config.log.dir is required")
	}
	if c.Execution.TimeoutSeconds <= 0 {
		return fmt.Errorf("config.execution.timeout_seconds must be positive")
	}
	if c.Execution.MinConfidence < 0 || c.Execution.MinConfidence > 1 {
		return fmt.Errorf("config.execution.min_confidence must be in [0,1]")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		for _, status := range hook.Statuses {
			switch status {
			case "proposed", "approved", "active", "completed", "failed":
			default:
				return fmt.Errorf("config.webhooks[%d] has unknown status %q", i, status)
			}
		}
	}
	return nil
}

// ExecutionTimeout returns the tool invocation deadline.
func (c *Config) ExecutionTimeout() time.Duration {
	return time.Duration(c.Execution.TimeoutSeconds) * time.Second
}

// LogDir resolves the stream directory relative to a workspace.
func (c *Config) LogDir(workspace string) string {
	if filepath.IsAbs(c.Log.Dir) {
		return c.Log.Dir
	}
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, c.Log.Dir)
}

// GenerateDefault returns the default config YAML for ml init-style flows.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `log:
  dir: .missionline

execution:
  timeout_seconds: 60
  min_confidence: 0.5

auth:
  allow_legacy_actor_header: false

# webhooks:
#   - url: https://example.com/hooks/missionline
#     secret: change-me
#     statuses: [completed, failed]
`
