package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/matlab-mcp/config"
	"github.com/isdmx/matlab-mcp/gateway"
)

// Version is reported to clients during initialization.
const Version = "1.0.0"

// Resource URIs for managed files.
const (
	ScriptIndexURI  = "matlab://scripts"
	ScriptURIPrefix = ScriptIndexURI + "/"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	gateway   *gateway.Gateway
	mcpServer *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, gw *gateway.Gateway) (*MCPServer, error) {
	s := &MCPServer{
		config:  cfg,
		logger:  logger,
		gateway: gw,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.String("engine.matlab_path", cfg.Engine.MATLABPath),
		zap.String("engine.binary", cfg.Engine.Binary),
		zap.Int("engine.startup_timeout_sec", cfg.Engine.StartupTimeoutSec),
		zap.Bool("engine.preload", cfg.Engine.Preload),
		zap.String("files.root", cfg.Files.Root),
		zap.Bool("files.watch", cfg.Files.Watch),
		zap.Int("output.max_length", cfg.Output.MaxLength),
		zap.Bool("output.capture_figures", cfg.Output.CaptureFigures),
	)

	s.mcpServer = server.NewMCPServer(cfg.Server.Name, Version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	for _, op := range gw.Operations() {
		s.registerTool(op)
	}
	s.registerScriptResource()

	return s, nil
}

// registerTool exposes one dispatch table entry as an MCP tool
func (s *MCPServer) registerTool(op gateway.Operation) {
	properties := op.Properties
	if properties == nil {
		properties = map[string]any{}
	}

	tool := mcp.Tool{
		Name:        op.Name,
		Description: op.Description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: properties,
			Required:   op.Required,
		},
	}

	s.mcpServer.AddTool(tool, s.toolHandler(op.Name))
}

func (s *MCPServer) toolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.logger.Debug("tool call received", zap.String("tool", name))

		res := s.gateway.Dispatch(ctx, name, request.GetArguments())
		return toCallToolResult(res)
	}
}

// toCallToolResult renders a Result as one JSON text item plus an image
// item per figure.
func toCallToolResult(res gateway.Result) (*mcp.CallToolResult, error) {
	payload, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	content := make([]mcp.Content, 0, 1+len(res.Figures))
	content = append(content, mcp.NewTextContent(string(payload)))
	for _, fig := range res.Figures {
		content = append(content, mcp.NewImageContent(base64.StdEncoding.EncodeToString(fig.Data), fig.MIMEType))
	}

	return &mcp.CallToolResult{
		Content: content,
		IsError: !res.Success,
	}, nil
}

// registerScriptResource exposes managed files as matlab://scripts/{name}
// and their names as matlab://scripts
func (s *MCPServer) registerScriptResource() {
	template := mcp.NewResourceTemplate(
		ScriptURIPrefix+"{name}",
		"MATLAB script",
		mcp.WithTemplateDescription("Content of a MATLAB file under the managed root"),
		mcp.WithTemplateMIMEType("text/x-matlab"),
	)

	s.mcpServer.AddResourceTemplate(template, s.handleReadScript)

	index := mcp.NewResource(
		ScriptIndexURI,
		"MATLAB scripts",
		mcp.WithResourceDescription("Names of the MATLAB files under the managed root"),
		mcp.WithMIMEType("application/json"),
	)
	s.mcpServer.AddResource(index, s.handleListScripts)
}

func (s *MCPServer) handleListScripts(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	names, err := s.gateway.ListScripts()
	if err != nil {
		return nil, fmt.Errorf("failed to list scripts: %w", err)
	}

	payload, err := json.Marshal(map[string]any{"scripts": names})
	if err != nil {
		return nil, fmt.Errorf("failed to encode script list: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(payload),
		},
	}, nil
}

func (s *MCPServer) handleReadScript(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := request.Params.URI
	name, err := scriptName(uri)
	if err != nil {
		return nil, err
	}

	content, err := s.gateway.GetScript(name)
	if err != nil {
		s.logger.Info("script resource unavailable", zap.String("uri", uri), zap.Error(err))
		return nil, fmt.Errorf("script %q: %w", name, err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/x-matlab",
			Text:     content,
		},
	}, nil
}

func scriptName(uri string) (string, error) {
	raw, ok := strings.CutPrefix(uri, ScriptURIPrefix)
	if !ok || raw == "" {
		return "", fmt.Errorf("invalid script URI: %s", uri)
	}
	name, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("invalid script URI %s: %w", uri, err)
	}
	return name, nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
