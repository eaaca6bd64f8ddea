package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Files   FilesConfig   `mapstructure:"files"`
	Output  OutputConfig  `mapstructure:"output"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Name      string `mapstructure:"name"`
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// EngineConfig holds MATLAB engine startup settings
type EngineConfig struct {
	// MATLABPath is the installation root; bin/matlab is resolved under it.
	MATLABPath        string   `mapstructure:"matlab_path"`
	Binary            string   `mapstructure:"binary"`
	Args              []string `mapstructure:"args"`
	StartupTimeoutSec int      `mapstructure:"startup_timeout_sec"`
	Preload           bool     `mapstructure:"preload"`
}

// FilesConfig holds the managed root settings
type FilesConfig struct {
	Root      string `mapstructure:"root"`
	Extension string `mapstructure:"extension"`
	Watch     bool   `mapstructure:"watch"`
}

// OutputConfig bounds what is returned to callers
type OutputConfig struct {
	MaxLength        int  `mapstructure:"max_length"`
	MaxArrayElements int  `mapstructure:"max_array_elements"`
	CaptureFigures   bool `mapstructure:"capture_figures"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// EnvPrefix is prepended to every environment override, e.g. MATLAB_MCP_SERVER_TRANSPORT.
const EnvPrefix = "MATLAB_MCP"

// New loads and validates the application configuration
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	return load(v)
}

// Load reads the configuration from an explicit file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("engine.matlab_path", EnvPrefix+"_ENGINE_MATLAB_PATH", "MATLAB_PATH"); err != nil {
		return nil, fmt.Errorf("error binding MATLAB_PATH: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "matlab")
	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.http_port", 8080)

	v.SetDefault("engine.matlab_path", "")
	v.SetDefault("engine.binary", "")
	v.SetDefault("engine.args", []string{"-nodisplay", "-nosplash", "-nodesktop"})
	v.SetDefault("engine.startup_timeout_sec", 120)
	v.SetDefault("engine.preload", false)

	v.SetDefault("files.root", "src")
	v.SetDefault("files.extension", ".m")
	v.SetDefault("files.watch", true)

	v.SetDefault("output.max_length", 4000)
	v.SetDefault("output.max_array_elements", 100)
	v.SetDefault("output.capture_figures", true)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.HTTPPort <= 0 {
		return fmt.Errorf("server.http_port must be positive, got: %d", c.Server.HTTPPort)
	}

	if c.Engine.StartupTimeoutSec <= 0 {
		return fmt.Errorf("engine.startup_timeout_sec must be positive, got: %d", c.Engine.StartupTimeoutSec)
	}

	if strings.TrimSpace(c.Files.Root) == "" {
		return fmt.Errorf("files.root must not be empty")
	}

	if !strings.HasPrefix(c.Files.Extension, ".") || len(c.Files.Extension) < 2 {
		return fmt.Errorf("invalid files.extension: %q, must start with a dot", c.Files.Extension)
	}

	if c.Output.MaxLength <= 0 {
		return fmt.Errorf("output.max_length must be positive, got: %d", c.Output.MaxLength)
	}

	if c.Output.MaxArrayElements <= 0 {
		return fmt.Errorf("output.max_array_elements must be positive, got: %d", c.Output.MaxArrayElements)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	validLevels := map[string]bool{
		"debug":  true,
		"info":   true,
		"warn":   true,
		"error":  true,
		"dpanic": true,
		"panic":  true,
		"fatal":  true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	return nil
}

// GetStartupTimeout returns the engine startup timeout as a duration
func (c *Config) GetStartupTimeout() time.Duration {
	return time.Duration(c.Engine.StartupTimeoutSec) * time.Second
}
