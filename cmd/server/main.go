package main

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/matlab-mcp/config"
	"github.com/isdmx/matlab-mcp/engine"
	"github.com/isdmx/matlab-mcp/filestore"
	"github.com/isdmx/matlab-mcp/gateway"
	"github.com/isdmx/matlab-mcp/logger"
	"github.com/isdmx/matlab-mcp/mcpserver"
)

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Managed source files
			filestore.NewFromConfig,

			// The single MATLAB engine session
			engine.NewLauncherManager,
			func(m *engine.Manager) gateway.SessionProvider { return m },

			// Operation dispatcher
			gateway.New,

			// MCP Server
			mcpserver.New,
		),

		fx.Invoke(
			registerWatcher,
			registerEngine,
			serve,
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}

// registerWatcher keeps the engine's view of the managed root fresh when
// files are edited outside the server.
func registerWatcher(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, store *filestore.Store) error {
	if !cfg.Files.Watch {
		return nil
	}

	w, err := filestore.NewWatcher(log, store)
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return w.Start()
		},
		OnStop: func(context.Context) error {
			return w.Stop()
		},
	})
	return nil
}

func registerEngine(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, mgr *engine.Manager) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if cfg.Engine.Preload {
				// Warm in the background so OnStart returns immediately.
				go func() {
					if err := mgr.Warm(context.Background()); err != nil {
						log.Warn("engine preload failed", zap.Error(err))
					}
				}()
			}
			return nil
		},
		OnStop: func(context.Context) error {
			log.Info("stopping MATLAB engine")
			return mgr.Close()
		},
	})
}

// serve starts the configured transport and stops the app when it ends.
func serve(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, server *mcpserver.MCPServer, shutdowner fx.Shutdowner) {
	var run func() error
	switch cfg.Server.Transport {
	case "stdio":
		run = server.ServeStdio
	case "http":
		run = server.ServeHTTP
	default:
		panic("unsupported transport: " + cfg.Server.Transport)
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := run(); err != nil {
					log.Error("transport stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
					return
				}
				_ = shutdowner.Shutdown()
			}()
			return nil
		},
	})
}
