package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"runline/internal/domain"
)

// Config models runline.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret     string `yaml:"jwt_secret"`
		DevLogin      bool   `yaml:"dev_login"`
		TokenTTLHours int    `yaml:"token_ttl_hours"`
	} `yaml:"auth"`
	Plans    map[string]domain.PlanLimits `yaml:"plans"`
	Webhooks []WebhookConfig              `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Limits returns the configured limits for a plan tier. Unknown tiers get
// the free tier's limits, the most restrictive configured set.
func (c *Config) Limits(plan domain.PlanName) domain.PlanLimits {
	if l, ok := c.Plans[string(plan)]; ok {
		return l
	}
	if l, ok := c.Plans[string(domain.PlanFree)]; ok {
		return l
	}
	return domain.PlanLimits{MaxProjects: 1, MaxModels: 5}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Plans) == 0 {
		return fmt.Errorf("config.plans is required")
	}
	for _, name := range []domain.PlanName{domain.PlanFree, domain.PlanTeam, domain.PlanPro, domain.PlanUnlimited} {
		if _, ok := c.Plans[string(name)]; !ok {
			return fmt.Errorf("config.plans must define tier %s", name)
		}
	}
	for name, l := range c.Plans {
		if l.MaxProjects == 0 || l.MaxModels == 0 {
			return fmt.Errorf("plan %s has a zero limit; use -1 for unlimited", name)
		}
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	if c.Auth.TokenTTLHours < 0 {
		return fmt.Errorf("auth.token_ttl_hours must not be negative")
	}
	return nil
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Load reads config from path, falling back to defaults when the file is
// absent.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1

auth:
  jwt_secret: ""
  dev_login: true
  token_ttl_hours: 24

# Plan limits are business configuration; -1 means unlimited.
plans:
  free:
    max_projects: 1
    max_models: 5
  team:
    max_projects: 10
    max_models: 100
  pro:
    max_projects: 100
    max_models: 1000
  unlimited:
    max_projects: -1
    max_models: -1

webhooks: []
`
