// Package config provides YAML-based configuration loading for Megazord.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// EncryptionKeyEnv overrides security.encryption_key when set.
const EncryptionKeyEnv = "MEGAZORD_ENCRYPTION_KEY"

// Config is the top-level Megazord configuration, loaded from megazord.yaml.
type Config struct {
	Database     DatabaseConfig     `yaml:"database"`
	Provider     ProviderConfig     `yaml:"provider"`
	Conversation ConversationConfig `yaml:"conversation"`
	Security     SecurityConfig     `yaml:"security"`
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
}

// DatabaseConfig selects and addresses the backing SQL store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite or mysql
	Path     string `yaml:"path"`   // sqlite file
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// ProviderConfig holds settings for the outbound completion provider.
type ProviderConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	Referer     string        `yaml:"referer"`
	Title       string        `yaml:"title"`
}

// ConversationConfig tunes the orchestrator.
type ConversationConfig struct {
	MaxRecursionDepth  int           `yaml:"max_recursion_depth"`
	HistoryLimit       int           `yaml:"history_limit"`
	TitleAfterMessages int           `yaml:"title_after_messages"`
	MetadataTimeout    time.Duration `yaml:"metadata_timeout"`
}

// SecurityConfig holds the credential encryption secret and token sweeping schedule.
type SecurityConfig struct {
	EncryptionKey   string `yaml:"encryption_key"`
	RevocationSweep string `yaml:"revocation_sweep"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LogConfig controls slog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if key := os.Getenv(EncryptionKeyEnv); key != "" {
		cfg.Security.EncryptionKey = key
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "megazord.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Name == "" {
			c.Database.Name = "megazord"
		}
	}

	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://openrouter.ai/api/v1"
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = 60 * time.Second
	}
	if c.Provider.MaxRetries == 0 {
		c.Provider.MaxRetries = 3
	}
	if c.Provider.BackoffBase == 0 {
		c.Provider.BackoffBase = time.Second
	}
	if c.Provider.Title == "" {
		c.Provider.Title = "Megazord AI"
	}

	if c.Conversation.MaxRecursionDepth == 0 {
		c.Conversation.MaxRecursionDepth = 5
	}
	if c.Conversation.HistoryLimit == 0 {
		c.Conversation.HistoryLimit = 50
	}
	if c.Conversation.TitleAfterMessages == 0 {
		c.Conversation.TitleAfterMessages = 4
	}
	if c.Conversation.MetadataTimeout == 0 {
		c.Conversation.MetadataTimeout = 30 * time.Second
	}

	if c.Security.RevocationSweep == "" {
		c.Security.RevocationSweep = "*/10 * * * *"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (sqlite, mysql)", c.Database.Driver))
	}
	if c.Provider.MaxRetries < 0 {
		errs = append(errs, "provider.max_retries must not be negative")
	}
	if c.Provider.Timeout < 0 {
		errs = append(errs, "provider.timeout must not be negative")
	}
	if c.Conversation.MaxRecursionDepth < 1 {
		errs = append(errs, "conversation.max_recursion_depth must be at least 1")
	}
	if c.Conversation.HistoryLimit < 1 {
		errs = append(errs, "conversation.history_limit must be at least 1")
	}
	if c.Security.EncryptionKey == "" {
		errs = append(errs, fmt.Sprintf("security.encryption_key is required (or set %s)", EncryptionKeyEnv))
	}
	if _, err := cron.ParseStandard(c.Security.RevocationSweep); err != nil {
		errs = append(errs, fmt.Sprintf("security.revocation_sweep: %v", err))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q is not supported (text, json)", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
