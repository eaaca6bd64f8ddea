// Package mcpserver exposes the gateway over the Model Context Protocol (MCP).
//
// Every entry of the gateway dispatch table becomes an MCP tool with the
// same name and argument schema. A tool call returns one text item holding
// the JSON Result, followed by an image item per captured figure. Managed
// files are also readable as resources under matlab://scripts/{name}.
//
// The server supports both stdio and HTTP transports as configured by the
// application configuration.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, gw)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
