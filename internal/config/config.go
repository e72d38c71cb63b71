package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds client settings
type Config struct {
	// DatabasePath is the local SQLite database (default ~/.ironsync/tasks.db)
	DatabasePath string `yaml:"database_path" json:"database_path"`

	// Sync server connection
	ServerURL string `yaml:"server_url" json:"server_url"`
	Token     string `yaml:"token" json:"token"`
	UserID    string `yaml:"user_id" json:"user_id"`

	// SyncEnabled turns remote coordination on
	SyncEnabled bool `yaml:"sync_enabled" json:"sync_enabled"`
	// SyncOnWrite pushes each mutation to the server before returning
	// instead of queueing it for the daemon
	SyncOnWrite bool `yaml:"sync_on_write" json:"sync_on_write"`
	// SyncInterval is the daemon's drain interval
	SyncInterval time.Duration `yaml:"sync_interval" json:"sync_interval"`
	// MaxRetries bounds attempts per queued operation
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// Logging configuration
	LogLevel   string `yaml:"log_level" json:"log_level"`
	LogFile    string `yaml:"log_file" json:"log_file"`
	LogConsole bool   `yaml:"log_console" json:"log_console"`
}

// DefaultConfig returns default settings
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	dbPath := ""
	logPath := ""
	if home != "" {
		dbPath = filepath.Join(home, ".ironsync", "tasks.db")
		logPath = filepath.Join(home, ".ironsync", "logs", "ironsync.log")
	}

	return &Config{
		DatabasePath: dbPath,
		ServerURL:    getEnv("IRONSYNC_SERVER", "http://localhost:8080"),
		Token:        getEnv("IRONSYNC_TOKEN", ""),
		UserID:       getEnv("IRONSYNC_USER", "default"),
		SyncEnabled:  getEnv("IRONSYNC_SYNC", "true") == "true",
		SyncOnWrite:  getEnv("IRONSYNC_SYNC_ON_WRITE", "false") == "true",
		SyncInterval: 30 * time.Second,
		MaxRetries:   envInt("IRONSYNC_MAX_RETRIES", 3),
		LogLevel:     getEnv("IRONSYNC_LOG_LEVEL", "INFO"),
		LogFile:      getEnv("IRONSYNC_LOG_FILE", logPath),
		LogConsole:   getEnv("IRONSYNC_LOG_CONSOLE", "false") == "true",
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ironsync", "config.yaml"), nil
}

// Load loads config from ~/.ironsync/config.yaml, falling back to defaults
// when the file does not exist
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	return cfg, nil
}

// Save saves config to ~/.ironsync/config.yaml
func (c *Config) Save() error {
	path, err := configPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
