package engine

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/matlab-mcp/config"
)

//go:embed helper/mcpgw_serve.m
var helperSource []byte

// File permission constants
const (
	DirPermission  = 0o755
	FilePermission = 0o644
)

// Starter starts a new engine session.
type Starter interface {
	Start(ctx context.Context) (Session, error)
}

// Launcher starts MATLAB as a child process and speaks the helper protocol
// over its stdio.
type Launcher struct {
	logger     *zap.Logger
	matlabPath string
	binary     string
	args       []string
	root       string
	timeout    time.Duration
	lookPath   func(string) (string, error)
}

// LauncherOption defines a functional option for Launcher
type LauncherOption func(*Launcher)

// WithLookPath replaces exec.LookPath when resolving the MATLAB binary
func WithLookPath(fn func(string) (string, error)) LauncherOption {
	return func(l *Launcher) {
		l.lookPath = fn
	}
}

// NewLauncher creates a Launcher from the engine section of the config. The
// managed root (files.root) becomes the engine's working directory and is
// added to the MATLAB path.
func NewLauncher(logger *zap.Logger, cfg *config.Config, opts ...LauncherOption) *Launcher {
	l := &Launcher{
		logger:     logger,
		matlabPath: cfg.Engine.MATLABPath,
		binary:     cfg.Engine.Binary,
		args:       cfg.Engine.Args,
		root:       cfg.Files.Root,
		timeout:    cfg.GetStartupTimeout(),
		lookPath:   exec.LookPath,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// ResolveBinary finds the MATLAB executable: MATLAB_PATH first, then the
// configured binary, then "matlab" on PATH.
func (l *Launcher) ResolveBinary() (string, error) {
	if l.matlabPath != "" {
		info, err := os.Stat(l.matlabPath)
		if err != nil || !info.IsDir() {
			return "", fmt.Errorf("MATLAB installation not found at %s; set MATLAB_PATH to your MATLAB installation", l.matlabPath)
		}
		bin := filepath.Join(l.matlabPath, "bin", "matlab")
		if _, err := os.Stat(bin); err != nil {
			return "", fmt.Errorf("MATLAB executable not found at %s: %w", bin, err)
		}
		return bin, nil
	}

	name := l.binary
	if name == "" {
		name = "matlab"
	}
	bin, err := l.lookPath(name)
	if err != nil {
		return "", fmt.Errorf("MATLAB executable %q not found; set MATLAB_PATH or engine.binary: %w", name, err)
	}
	return bin, nil
}

// Start launches MATLAB and waits for the helper handshake.
func (l *Launcher) Start(ctx context.Context) (Session, error) {
	bin, err := l.ResolveBinary()
	if err != nil {
		return nil, err
	}

	root, err := filepath.Abs(l.root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve managed root: %w", err)
	}
	if err := os.MkdirAll(root, DirPermission); err != nil {
		return nil, fmt.Errorf("failed to create managed root: %w", err)
	}

	helperDir, err := os.MkdirTemp("", "matlab-mcp-helper-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create helper dir: %w", err)
	}
	// Once the process runs, wait owns the helper dir.
	started := false
	defer func() {
		if !started {
			l.removeHelperDir(helperDir)
		}
	}()

	if err := os.WriteFile(filepath.Join(helperDir, helperFunction+".m"), helperSource, FilePermission); err != nil {
		return nil, fmt.Errorf("failed to write helper: %w", err)
	}

	// The process outlives ctx, which only bounds the handshake.
	cmd := exec.Command(bin, l.args...) //nolint:gosec // binary comes from operator configuration
	cmd.Dir = root
	cmd.Stderr = &logWriter{logger: l.logger}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open engine stdout: %w", err)
	}

	l.logger.Info("starting MATLAB engine", zap.String("binary", bin), zap.Strings("args", l.args))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start MATLAB: %w", err)
	}
	started = true

	wait := func() error {
		err := cmd.Wait()
		l.removeHelperDir(helperDir)
		return err
	}
	p := newProcess(l.logger, cmd.Process.Pid, stdin, stdout, wait, cmd.Process.Kill)

	if err := l.handshake(ctx, p, helperDir, root); err != nil {
		if killErr := cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			l.logger.Warn("failed to kill engine after handshake failure", zap.Error(killErr))
		}
		return nil, err
	}

	l.logger.Info("MATLAB engine ready",
		zap.Int("pid", p.info.PID),
		zap.String("release", p.info.Release),
		zap.Duration("startup", time.Since(p.info.StartedAt)))
	return p, nil
}

func (l *Launcher) handshake(ctx context.Context, p *Process, helperDir, root string) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := p.exec(fmt.Sprintf("addpath('%s'); addpath('%s');", quote(helperDir), quote(root))); err != nil {
		return err
	}

	reply, err := p.Call(ctx, Request{Op: OpPing})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("MATLAB did not answer within %s", l.timeout)
		}
		return fmt.Errorf("MATLAB handshake failed: %w", err)
	}
	if err := reply.Err(); err != nil {
		return fmt.Errorf("MATLAB handshake failed: %w", err)
	}

	var ping struct {
		Release string `json:"release"`
	}
	if err := reply.DecodeData(&ping); err != nil {
		return err
	}
	p.info.Release = ping.Release
	return nil
}

func (l *Launcher) removeHelperDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		l.logger.Error("failed to remove helper directory", zap.String("path", dir), zap.Error(err))
	}
}

// quote escapes s for use inside a MATLAB single-quoted char vector.
func quote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// logWriter forwards engine stderr to the logger line by line.
type logWriter struct {
	logger *zap.Logger
}

func (w *logWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if strings.TrimSpace(line) != "" {
			w.logger.Warn("engine stderr", zap.String("line", line))
		}
	}
	return len(p), nil
}
