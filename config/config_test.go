package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:      "matlab",
			Transport: "http",
			HTTPPort:  8080,
		},
		Engine: EngineConfig{
			Args:              []string{"-nodisplay"},
			StartupTimeoutSec: 60,
		},
		Files: FilesConfig{
			Root:      "src",
			Extension: ".m",
		},
		Output: OutputConfig{
			MaxLength:        4000,
			MaxArrayElements: 100,
		},
		Logging: LoggingConfig{
			Mode:  "production",
			Level: "info",
		},
	}
}

func writeYAML(t *testing.T, doc map[string]any) string {
	t.Helper()
	data, err := yaml.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestConfigValidation(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		require.NoError(t, validConfig().validate())
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"InvalidServerTransport", func(c *Config) { c.Server.Transport = "invalid" }, "invalid server.transport"},
		{"InvalidHTTPPort", func(c *Config) { c.Server.HTTPPort = 0 }, "server.http_port must be positive"},
		{"InvalidStartupTimeout", func(c *Config) { c.Engine.StartupTimeoutSec = 0 }, "engine.startup_timeout_sec must be positive"},
		{"EmptyRoot", func(c *Config) { c.Files.Root = "  " }, "files.root must not be empty"},
		{"ExtensionWithoutDot", func(c *Config) { c.Files.Extension = "m" }, "invalid files.extension"},
		{"BareDotExtension", func(c *Config) { c.Files.Extension = "." }, "invalid files.extension"},
		{"InvalidMaxLength", func(c *Config) { c.Output.MaxLength = -1 }, "output.max_length must be positive"},
		{"InvalidArrayElements", func(c *Config) { c.Output.MaxArrayElements = 0 }, "output.max_array_elements must be positive"},
		{"InvalidLoggingMode", func(c *Config) { c.Logging.Mode = "invalid_mode" }, "invalid logging.mode"},
		{"InvalidLogLevel", func(c *Config) { c.Logging.Level = "invalid_level" }, "invalid logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MATLAB_PATH", "")
	path := writeYAML(t, map[string]any{})

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "matlab", cfg.Server.Name)
	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, []string{"-nodisplay", "-nosplash", "-nodesktop"}, cfg.Engine.Args)
	assert.Equal(t, 120, cfg.Engine.StartupTimeoutSec)
	assert.False(t, cfg.Engine.Preload)
	assert.Equal(t, "src", cfg.Files.Root)
	assert.Equal(t, ".m", cfg.Files.Extension)
	assert.True(t, cfg.Files.Watch)
	assert.Equal(t, 4000, cfg.Output.MaxLength)
	assert.Equal(t, 100, cfg.Output.MaxArrayElements)
	assert.True(t, cfg.Output.CaptureFigures)
	assert.Equal(t, "production", cfg.Logging.Mode)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 120*time.Second, cfg.GetStartupTimeout())
}

func TestLoadFromFile(t *testing.T) {
	path := writeYAML(t, map[string]any{
		"server": map[string]any{"transport": "http", "http_port": 9090},
		"files":  map[string]any{"root": "/srv/matlab", "watch": false},
		"output": map[string]any{"max_length": 256, "capture_figures": false},
		"logging": map[string]any{
			"mode":  "development",
			"level": "debug",
		},
	})

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http", cfg.Server.Transport)
	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, "/srv/matlab", cfg.Files.Root)
	assert.False(t, cfg.Files.Watch)
	assert.Equal(t, 256, cfg.Output.MaxLength)
	assert.False(t, cfg.Output.CaptureFigures)
	assert.Equal(t, "development", cfg.Logging.Mode)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadMATLABPathFromEnvironment(t *testing.T) {
	t.Setenv("MATLAB_PATH", "/opt/MATLAB/R2024a")
	path := writeYAML(t, map[string]any{})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/MATLAB/R2024a", cfg.Engine.MATLABPath)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := writeYAML(t, map[string]any{
		"server": map[string]any{"transport": "carrier-pigeon"},
	})

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation error")
}
