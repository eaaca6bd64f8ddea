// Package main is the entry point for the MATLAB MCP server.
//
// The server exposes one long-lived MATLAB engine session to Model Context
// Protocol (MCP) clients. Clients can check, evaluate, save and run MATLAB
// code and test files under a managed source directory. The engine starts on
// first use, or at startup when engine.preload is set. The server supports
// both stdio and HTTP transports.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
