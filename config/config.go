package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig
	GitHub  GitHubConfig
	Session SessionConfig
	Admin   AdminConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// GitHubConfig identifies the remote catalog file and how to reach it
type GitHubConfig struct {
	Repo     string        `mapstructure:"repo"`      // "owner/name"
	FilePath string        `mapstructure:"file_path"` // path within the repo
	Branch   string        `mapstructure:"branch"`
	Token    string        `mapstructure:"token"` // optional; public repos work without one
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SessionConfig holds the cookie session settings
type SessionConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// AdminConfig holds the operator credential
type AdminConfig struct {
	Password string `mapstructure:"password"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pricecheck/")

	// Environment variable settings
	v.SetEnvPrefix("PRICECHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using environment variables and defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:8080"})

	// GitHub defaults
	v.SetDefault("github.repo", "")
	v.SetDefault("github.file_path", "products.csv")
	v.SetDefault("github.branch", "main")
	v.SetDefault("github.token", "")
	v.SetDefault("github.base_url", "https://api.github.com")
	v.SetDefault("github.timeout", "30s")

	// Session defaults
	v.SetDefault("session.secret", "")
	v.SetDefault("session.ttl", "1h")

	// Admin defaults
	v.SetDefault("admin.password", "")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.GitHub.Repo == "" {
		return fmt.Errorf("GitHub repository is required (set PRICECHECK_GITHUB_REPO, e.g. \"owner/repo\")")
	}

	if !strings.Contains(config.GitHub.Repo, "/") {
		return fmt.Errorf("GitHub repository must be \"owner/repo\", got: %s", config.GitHub.Repo)
	}

	if config.GitHub.FilePath == "" {
		return fmt.Errorf("catalog file path is required (set PRICECHECK_GITHUB_FILE_PATH)")
	}

	if config.Admin.Password == "" {
		return fmt.Errorf("admin password is required (set PRICECHECK_ADMIN_PASSWORD)")
	}

	if config.Session.Secret == "" {
		return fmt.Errorf("session secret is required (set PRICECHECK_SESSION_SECRET)")
	}

	if config.GitHub.Timeout <= 0 {
		return fmt.Errorf("GitHub timeout must be positive, got: %s", config.GitHub.Timeout)
	}

	return nil
}
