package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Storage StorageConfig `toml:"storage"`
	Tools   ToolsConfig   `toml:"tools"`
	Limits  LimitsConfig  `toml:"limits"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// StorageConfig contains database and media directory settings.
type StorageConfig struct {
	DatabasePath string `toml:"database_path"`
	TempDir      string `toml:"temp_dir"`
	OutputDir    string `toml:"output_dir"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ToolsConfig names the external binaries the pipeline shells out to.
type ToolsConfig struct {
	YTDLP       string `toml:"ytdlp"`
	Demucs      string `toml:"demucs"`
	DemucsModel string `toml:"demucs_model"`
}

// LimitsConfig contains pipeline policy knobs.
type LimitsConfig struct {
	MaxDurationSeconds       int     `toml:"max_duration_seconds"`
	SeparationTimeoutSeconds int     `toml:"separation_timeout_seconds"`
	ProcessRequestsPerMinute float64 `toml:"process_requests_per_minute"`
}

// SeparationTimeout returns the configured separation wall-clock bound.
func (l LimitsConfig) SeparationTimeout() time.Duration {
	return time.Duration(l.SeparationTimeoutSeconds) * time.Second
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	// Write the embedded example config to the file
	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
