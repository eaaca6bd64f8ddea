// Package config provides application configuration management.
//
// The config package handles loading and validation of the application's
// configuration from YAML files and MATLAB_MCP_* environment variables. It
// covers server transport settings, MATLAB engine startup, the managed
// source root, output bounds, and logging.
//
// The MATLAB installation directory may also be supplied through the
// MATLAB_PATH environment variable.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Server transport: %s\n", cfg.Server.Transport)
package config
