package integration

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/matlab-mcp/config"
	"github.com/isdmx/matlab-mcp/engine"
	"github.com/isdmx/matlab-mcp/filestore"
	"github.com/isdmx/matlab-mcp/gateway"
	"github.com/isdmx/matlab-mcp/logger"
	"github.com/isdmx/matlab-mcp/mcpserver"
)

// recordingSession is an engine.Session that records the ops it receives.
type recordingSession struct {
	mu  sync.Mutex
	ops []engine.Op
}

func (s *recordingSession) Redirect(io.Writer) func() { return func() {} }

func (s *recordingSession) Call(_ context.Context, req engine.Request) (*engine.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, req.Op)
	return &engine.Reply{OK: true}, nil
}

func (s *recordingSession) Alive() bool       { return true }
func (s *recordingSession) Info() engine.Info { return engine.Info{Release: "2024a"} }
func (s *recordingSession) Close() error      { return nil }

func (s *recordingSession) takeOps() []engine.Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := s.ops
	s.ops = nil
	return ops
}

type staticStarter struct {
	session engine.Session
}

func (s staticStarter) Start(context.Context) (engine.Session, error) {
	return s.session, nil
}

func writeConfig(t *testing.T, root string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := "server:\n  transport: stdio\n" +
		"engine:\n  binary: /nonexistent/bin/matlab\n  startup_timeout_sec: 5\n" +
		"files:\n  root: " + root + "\n" +
		"output:\n  capture_figures: false\n" +
		"logging:\n  mode: development\n  level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

// TestIntegrationConfigLogger tests the integration between config and logger packages
func TestIntegrationConfigLogger(t *testing.T) {
	t.Setenv("MATLAB_PATH", "")
	root := filepath.Join(t.TempDir(), "src")

	cfg, err := config.Load(writeConfig(t, root))
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Files.Root)
	assert.Equal(t, "/nonexistent/bin/matlab", cfg.Engine.Binary)

	appLogger, err := logger.NewFromConfig(cfg)
	require.NoError(t, err)
	require.NotNil(t, appLogger)

	appLogger.Info("Integration test started")
	_ = appLogger.Sync()
}

// TestIntegrationWithoutMATLAB wires the production launcher against a
// missing binary: file operations work, engine operations report it.
func TestIntegrationWithoutMATLAB(t *testing.T) {
	t.Setenv("MATLAB_PATH", "")
	root := filepath.Join(t.TempDir(), "src")
	cfg, err := config.Load(writeConfig(t, root))
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	store, err := filestore.NewFromConfig(log, cfg)
	require.NoError(t, err)

	manager := engine.NewLauncherManager(log, cfg)
	gw, err := gateway.New(cfg, log, store, manager)
	require.NoError(t, err)

	server, err := mcpserver.New(cfg, log, gw)
	require.NoError(t, err)
	require.NotNil(t, server.GetMCPServer())

	ctx := context.Background()

	t.Run("CreateFileNeedsNoEngine", func(t *testing.T) {
		res := gw.Dispatch(ctx, "create_file", map[string]any{"filename": "foo", "content": "x=1"})
		require.True(t, res.Success, "%+v", res.Error)
		assert.Equal(t, filepath.Join(root, "foo.m"), res.Path)

		content, err := gw.GetScript("foo")
		require.NoError(t, err)
		assert.Equal(t, "x=1", content)
	})

	t.Run("LexicalSyntaxErrorNeedsNoEngine", func(t *testing.T) {
		res := gw.Dispatch(ctx, "check_syntax", map[string]any{"code": "x = [1, 2, 3"})
		assert.False(t, res.Success)
		require.NotNil(t, res.Error)
		assert.Equal(t, gateway.CodeSyntaxError, res.Error.Code)
	})

	t.Run("EvaluateReportsUnavailableEngine", func(t *testing.T) {
		res := gw.Dispatch(ctx, "evaluate", map[string]any{"code": "2 + 3 * 4"})
		assert.False(t, res.Success)
		require.NotNil(t, res.Error)
		assert.Equal(t, gateway.CodeEngineUnavailable, res.Error.Code)
		assert.Contains(t, res.Error.Message, "/nonexistent/bin/matlab")
		assert.Nil(t, res.Value)
	})

	t.Run("StatusShowsLastFailure", func(t *testing.T) {
		res := gw.Dispatch(ctx, "engine_status", map[string]any{})
		assert.True(t, res.Success)
		require.NotNil(t, res.Status)
		assert.False(t, res.Status.Started)
		assert.Equal(t, 1, res.Status.Starts)
		assert.Contains(t, res.Status.LastError, "not found")
	})
}

// TestIntegrationWatcherTriggersRehash checks that files edited outside the
// server are reloaded before the next run.
func TestIntegrationWatcherTriggersRehash(t *testing.T) {
	log := zaptest.NewLogger(t)
	cfg := &config.Config{
		Engine: config.EngineConfig{StartupTimeoutSec: 5},
		Files:  config.FilesConfig{Root: filepath.Join(t.TempDir(), "src"), Extension: ".m", Watch: true},
		Output: config.OutputConfig{MaxLength: 4000, MaxArrayElements: 100},
	}

	store, err := filestore.NewFromConfig(log, cfg)
	require.NoError(t, err)
	watcher, err := filestore.NewWatcher(log, store)
	require.NoError(t, err)
	require.NoError(t, watcher.Start())
	t.Cleanup(func() { _ = watcher.Stop() })

	session := &recordingSession{}
	manager := engine.NewManager(log, cfg, staticStarter{session: session})
	t.Cleanup(func() { _ = manager.Close() })

	gw, err := gateway.New(cfg, log, store, manager)
	require.NoError(t, err)
	ctx := context.Background()

	gw.Dispatch(ctx, "evaluate", map[string]any{"code": "1"})
	assert.Equal(t, []engine.Op{engine.OpRehash, engine.OpEval}, session.takeOps())

	gw.Dispatch(ctx, "evaluate", map[string]any{"code": "1"})
	assert.Equal(t, []engine.Op{engine.OpEval}, session.takeOps())

	require.NoError(t, os.WriteFile(filepath.Join(store.Root(), "edited.m"), []byte("y = 2;"), 0o644))

	assert.Eventually(t, func() bool {
		gw.Dispatch(ctx, "evaluate", map[string]any{"code": "1"})
		ops := session.takeOps()
		return len(ops) > 0 && ops[0] == engine.OpRehash
	}, 2*time.Second, 50*time.Millisecond)
}
