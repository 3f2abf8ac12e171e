package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in a project directory.
const FileName = "pagepatch.yaml"

// Config represents the pagepatch configuration
type Config struct {
	Title   string        `yaml:"title"`
	Server  ServerConfig  `yaml:"server"`
	Editor  EditorConfig  `yaml:"editor"`
	Project ProjectConfig `yaml:"project"`
	Store   StoreConfig   `yaml:"store"`
	API     *APIConfig    `yaml:"api,omitempty"`
	Preview PreviewConfig `yaml:"preview"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port  int    `yaml:"port"`
	Host  string `yaml:"host"`
	Debug bool   `yaml:"debug"`
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EditorConfig holds the timing of the patch pipeline
type EditorConfig struct {
	ThrottleWindow string `yaml:"throttle_window,omitempty"` // Coalescing window for sections (default: 100ms)
	SettleDelay    string `yaml:"settle_delay,omitempty"`    // Delay before autosave after a selection change (default: 1s)
}

// GetThrottleWindow returns the parsed throttle window (default: 100ms)
func (c EditorConfig) GetThrottleWindow() time.Duration {
	return parseDuration(c.ThrottleWindow, 100*time.Millisecond)
}

// GetSettleDelay returns the parsed settle delay (default: 1s)
func (c EditorConfig) GetSettleDelay() time.Duration {
	return parseDuration(c.SettleDelay, time.Second)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// ProjectConfig describes where pages come from
type ProjectConfig struct {
	Dir     string `yaml:"dir,omitempty"`     // Page directory, relative to the config file (default: ".")
	Current string `yaml:"current,omitempty"` // Page shown first (default: first page in name order)
	Watch   bool   `yaml:"watch"`             // Reload pages when their files change
}

// StoreConfig selects the persistence backend for saved pages
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" or "postgres"; empty disables persistence
	DSN    string `yaml:"dsn,omitempty"`    // Data source name (env vars expanded)
}

// GetDSN returns the DSN with environment variable expansion
func (c StoreConfig) GetDSN() string {
	return os.ExpandEnv(c.DSN)
}

// Enabled reports whether a store is configured
func (c StoreConfig) Enabled() bool {
	return c.Driver != ""
}

// APIConfig holds configuration of the section intake API
type APIConfig struct {
	Auth *AuthConfig `yaml:"auth,omitempty"`
}

// AuthConfig holds authentication configuration for the API
type AuthConfig struct {
	// APIKey is the required API key for authentication.
	// Supports environment variable expansion (e.g., "${API_KEY}" or "$API_KEY")
	APIKey string `yaml:"api_key,omitempty"`
	// HeaderName is the HTTP header name for the API key (default: "X-API-Key")
	// Also supports "Authorization: Bearer <token>" format when set to "Authorization"
	HeaderName string `yaml:"header_name,omitempty"`
}

// IsAuthEnabled returns true if API authentication is configured
func (c *APIConfig) IsAuthEnabled() bool {
	if c == nil || c.Auth == nil {
		return false
	}
	return c.Auth.GetAPIKey() != ""
}

// GetAPIKey returns the configured API key with environment variable expansion
func (c *AuthConfig) GetAPIKey() string {
	if c == nil || c.APIKey == "" {
		return ""
	}
	return os.ExpandEnv(c.APIKey)
}

// GetHeaderName returns the header name for authentication (default: "X-API-Key")
func (c *AuthConfig) GetHeaderName() string {
	if c == nil || c.HeaderName == "" {
		return "X-API-Key"
	}
	return c.HeaderName
}

// PreviewConfig holds configuration of the preview websocket
type PreviewConfig struct {
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// RateLimitConfig limits manual edits accepted from one preview client
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"` // Messages per second (default: 20)
	Burst             int     `yaml:"burst,omitempty"`               // Burst size (default: 40)
}

// GetRateLimitRPS returns the rate limit in messages per second (default: 20)
func (c PreviewConfig) GetRateLimitRPS() float64 {
	if c.RateLimit == nil || c.RateLimit.RequestsPerSecond <= 0 {
		return 20
	}
	return c.RateLimit.RequestsPerSecond
}

// GetRateLimitBurst returns the burst size (default: 40)
func (c PreviewConfig) GetRateLimitBurst() int {
	if c.RateLimit == nil || c.RateLimit.Burst <= 0 {
		return 40
	}
	return c.RateLimit.Burst
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Title: "pagepatch",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Project: ProjectConfig{
			Dir:   ".",
			Watch: true,
		},
	}
}

// Validate checks values yaml cannot check on its own.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Store.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("store.driver %q: want sqlite or postgres", c.Store.Driver)
	}
	if c.Store.Enabled() && c.Store.GetDSN() == "" {
		return fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver)
	}
	return nil
}

// Load loads configuration from a YAML file
// If the file doesn't exist, returns the default configuration
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig() // Start with defaults
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return config, nil
}

// LoadFromDir looks for pagepatch.yaml in the given directory. The project
// directory is resolved relative to dir.
func LoadFromDir(dir string) (*Config, error) {
	cfg, err := Load(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(cfg.Project.Dir) {
		cfg.Project.Dir = filepath.Join(dir, cfg.Project.Dir)
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
