package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models omtobe.yml.
type Config struct {
	Server struct {
		Addr        string   `yaml:"addr" json:"addr"`
		BasePath    string   `yaml:"base_path" json:"base_path"`
		CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`
	} `yaml:"server" json:"server"`
	Auth struct {
		JWTSecret             string `yaml:"jwt_secret" json:"-"`
		AllowLegacyUserHeader bool   `yaml:"allow_legacy_user_header" json:"allow_legacy_user_header"`
		DevLoginEnabled       bool   `yaml:"dev_login_enabled" json:"dev_login_enabled"`
	} `yaml:"auth" json:"auth"`
	Logging struct {
		Mode string `yaml:"mode" json:"mode"`
	} `yaml:"logging" json:"logging"`
	Sources Sources `yaml:"sources" json:"sources"`
	Lock    struct {
		Backend    string `yaml:"backend" json:"backend"`
		RedisAddr  string `yaml:"redis_addr" json:"redis_addr"`
		TTLSeconds int    `yaml:"ttl_seconds" json:"ttl_seconds"`
	} `yaml:"lock" json:"lock"`
	Scheduler struct {
		ResetIntervalSeconds int `yaml:"reset_interval_seconds" json:"reset_interval_seconds"`
	} `yaml:"scheduler" json:"scheduler"`
	Reflection struct {
		Hour int `yaml:"hour" json:"hour"`
	} `yaml:"reflection" json:"reflection"`
}

// Sources configures the HRV and calendar adapters.
type Sources struct {
	Mode      string `yaml:"mode" json:"mode"`
	HealthKit struct {
		BaseURL        string `yaml:"base_url" json:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
	} `yaml:"healthkit" json:"healthkit"`
	Calendar struct {
		CalendarID     string `yaml:"calendar_id" json:"calendar_id"`
		LookaheadHours int    `yaml:"lookahead_hours" json:"lookahead_hours"`
		ClientID       string `yaml:"client_id" json:"client_id"`
		ClientSecret   string `yaml:"client_secret" json:"-"`
		RedirectURL    string `yaml:"redirect_url" json:"redirect_url,omitempty"`
		// Endpoint overrides the Google API base URL; used by tests and proxies.
		Endpoint       string `yaml:"endpoint" json:"endpoint,omitempty"`
	} `yaml:"calendar" json:"calendar"`
}

const (
	SourcesMock = "mock"
	SourcesLive = "live"

	LockLocal = "local"
	LockRedis = "redis"
)

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with omtobe config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	switch c.Logging.Mode {
	case "", "development", "dev", "production", "prod":
	default:
		return fmt.Errorf("config.logging.mode must be development or production")
	}
	switch c.Sources.Mode {
	case SourcesMock:
	case SourcesLive:
		if strings.TrimSpace(c.Sources.HealthKit.BaseURL) == "" {
			return fmt.Errorf("config.sources.healthkit.base_url is required in live mode")
		}
	default:
		return fmt.Errorf("config.sources.mode must be %s or %s", SourcesMock, SourcesLive)
	}
	if c.Sources.HealthKit.TimeoutSeconds < 0 {
		return fmt.Errorf("config.sources.healthkit.timeout_seconds must not be negative")
	}
	if c.Sources.Calendar.LookaheadHours < 0 {
		return fmt.Errorf("config.sources.calendar.lookahead_hours must not be negative")
	}
	switch c.Lock.Backend {
	case LockLocal:
	case LockRedis:
		if strings.TrimSpace(c.Lock.RedisAddr) == "" {
			return fmt.Errorf("config.lock.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("config.lock.backend must be %s or %s", LockLocal, LockRedis)
	}
	if c.Lock.TTLSeconds < 0 {
		return fmt.Errorf("config.lock.ttl_seconds must not be negative")
	}
	if c.Scheduler.ResetIntervalSeconds < 0 {
		return fmt.Errorf("config.scheduler.reset_interval_seconds must not be negative")
	}
	if c.Reflection.Hour < 0 || c.Reflection.Hour > 23 {
		return fmt.Errorf("config.reflection.hour must be between 0 and 23")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "omtobe.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses config from raw YAML bytes on top of the defaults and validates it.
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

const defaultTemplate = `server:
  addr: ":8000"
  base_path: /api/v1
  cors_origins:
    - http://localhost:3000
    - http://localhost:5173

auth:
  jwt_secret: ""
  allow_legacy_user_header: false
  dev_login_enabled: false

logging:
  mode: development

sources:
  mode: mock
  healthkit:
    base_url: https://api.healthkit.apple.com
    timeout_seconds: 10
  calendar:
    calendar_id: primary
    lookahead_hours: 24
    redirect_url: urn:ietf:wg:oauth:2.0:oob

lock:
  backend: local
  ttl_seconds: 10

scheduler:
  reset_interval_seconds: 60

reflection:
  hour: 9
`
