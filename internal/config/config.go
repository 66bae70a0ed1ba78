package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the lingorelay service configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Database    DatabaseConfig    `yaml:"database"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Relay       RelayConfig       `yaml:"relay"`
	Broadcaster BroadcasterConfig `yaml:"broadcaster"`
	Auth        AuthConfig        `yaml:"auth"`
	Storage     StorageConfig     `yaml:"storage"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds key-value store connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// ProvidersConfig holds translation provider settings.
type ProvidersConfig struct {
	DeepL      DeepLConfig      `yaml:"deepl"`
	AppsScript AppsScriptConfig `yaml:"apps_script"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
}

// DeepLConfig holds the metered primary provider settings.
// An empty APIKey disables the primary provider entirely.
type DeepLConfig struct {
	APIKey           string `yaml:"api_key"`
	BaseURL          string `yaml:"base_url"`
	TimeoutSec       int    `yaml:"timeout_sec"`
	MonthlyCharLimit int64  `yaml:"monthly_char_limit"`
}

// AppsScriptConfig holds the unmetered secondary provider settings.
type AppsScriptConfig struct {
	URL        string `yaml:"url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// OpenAIConfig holds the optional LLM fallback translator settings.
// An empty APIKey disables the fallback.
type OpenAIConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// RelayConfig holds the two target languages and their render labels.
type RelayConfig struct {
	HomeLang           string `yaml:"home_lang"`
	ComplementaryLang  string `yaml:"complementary_lang"`
	HomeLabel          string `yaml:"home_label"`
	ComplementaryLabel string `yaml:"complementary_label"`
}

// BroadcasterConfig holds the webhook broadcaster settings.
type BroadcasterConfig struct {
	APIBaseURL  string `yaml:"api_base_url"`
	BotToken    string `yaml:"bot_token"`
	WebhookName string `yaml:"webhook_name"`
	TimeoutSec  int    `yaml:"timeout_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "lingorelay:"
	}
	if c.Providers.DeepL.BaseURL == "" {
		c.Providers.DeepL.BaseURL = "https://api-free.deepl.com/v2/translate"
	}
	if c.Providers.DeepL.TimeoutSec <= 0 {
		c.Providers.DeepL.TimeoutSec = 15
	}
	if c.Providers.DeepL.MonthlyCharLimit <= 0 {
		c.Providers.DeepL.MonthlyCharLimit = 500000
	}
	if c.Providers.AppsScript.TimeoutSec <= 0 {
		c.Providers.AppsScript.TimeoutSec = 15
	}
	if c.Providers.OpenAI.Model == "" {
		c.Providers.OpenAI.Model = "gpt-4o-mini"
	}
	if c.Providers.OpenAI.TimeoutSec <= 0 {
		c.Providers.OpenAI.TimeoutSec = 20
	}
	if c.Relay.HomeLang == "" {
		c.Relay.HomeLang = "JA"
	}
	if c.Relay.ComplementaryLang == "" {
		c.Relay.ComplementaryLang = "EN"
	}
	if c.Relay.HomeLabel == "" {
		c.Relay.HomeLabel = "\U0001F1EF\U0001F1F5" // 🇯🇵
	}
	if c.Relay.ComplementaryLabel == "" {
		c.Relay.ComplementaryLabel = "\U0001F1FA\U0001F1F8" // 🇺🇸
	}
	if c.Broadcaster.APIBaseURL == "" {
		c.Broadcaster.APIBaseURL = "https://discord.com/api/v10"
	}
	if c.Broadcaster.WebhookName == "" {
		c.Broadcaster.WebhookName = "lingorelay translator"
	}
	if c.Broadcaster.TimeoutSec <= 0 {
		c.Broadcaster.TimeoutSec = 15
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	home := strings.ToUpper(c.Relay.HomeLang)
	comp := strings.ToUpper(c.Relay.ComplementaryLang)
	if home == comp {
		return fmt.Errorf("relay.home_lang and relay.complementary_lang must differ, both are %q", home)
	}
	if c.Providers.AppsScript.URL == "" && c.Providers.DeepL.APIKey == "" && c.Providers.OpenAI.APIKey == "" {
		return fmt.Errorf("at least one translation provider must be configured")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
