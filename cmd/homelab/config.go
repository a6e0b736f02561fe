package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all tool configuration.
type Config struct {
	Paths     PathsConfig     `mapstructure:"paths"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Compose   ComposeConfig   `mapstructure:"compose"`
	Docker    DockerConfig    `mapstructure:"docker"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Serve     ServeConfig     `mapstructure:"serve"`
	Log       LogConfig       `mapstructure:"log"`
}

// PathsConfig holds the conventional deployment target candidates,
// probed production first.
type PathsConfig struct {
	Production  string `mapstructure:"production"`
	Development string `mapstructure:"development"`
}

// WorkspaceConfig holds the declarative workspace layout.
type WorkspaceConfig struct {
	// RegistryFile is the service registry file name inside the
	// deployment root.
	RegistryFile string `mapstructure:"registry_file"`

	// ComposePrefix is the fragment naming prefix: <prefix>.yml is the
	// base fragment, <prefix>.<name>.yml a feature fragment.
	ComposePrefix string `mapstructure:"compose_prefix"`
}

// ComposeConfig holds the runtime dispatch configuration.
type ComposeConfig struct {
	// Binary is the container runtime binary with a compose subcommand.
	Binary string `mapstructure:"binary"`

	// ProjectName groups every homelab container under one compose
	// project.
	ProjectName string `mapstructure:"project_name"`

	// SubstitutionVar is the variable fragment files interpolate for
	// the deployment root. Exported only to the runtime child process.
	SubstitutionVar string `mapstructure:"substitution_var"`

	// RetryAttempts and RetryDelay bound the retry on transient
	// runtime daemon unavailability, the only retryable failure.
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

// DockerConfig holds the inspection client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// JournalConfig holds the invocation journal configuration.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ServeConfig holds the status API configuration.
type ServeConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	home, _ := os.UserHomeDir()

	v.SetDefault("paths.production", "/opt/homelab")
	v.SetDefault("paths.development", filepath.Join(home, "homelab"))
	v.SetDefault("workspace.registry_file", "services.yaml")
	v.SetDefault("workspace.compose_prefix", "docker-compose")
	v.SetDefault("compose.binary", "docker")
	v.SetDefault("compose.project_name", "homelab")
	v.SetDefault("compose.substitution_var", "HOMELAB_ROOT")
	v.SetDefault("compose.retry_attempts", 3)
	v.SetDefault("compose.retry_delay", "2s")
	v.SetDefault("docker.host", "")
	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", filepath.Join(home, ".local", "state", "homelab", "journal.db"))
	v.SetDefault("serve.addr", "127.0.0.1:8199")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, defaults apply.
		}
	}

	v.SetEnvPrefix("HOMELAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
// Logs go to stderr: stdout belongs to command output and the runtime
// passthrough.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
