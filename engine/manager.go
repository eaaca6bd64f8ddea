package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/matlab-mcp/config"
)

// Manager owns the one engine session of the process. The session starts
// lazily and is reused by every operation; its workspace is shared mutable
// state that lives as long as the process does.
type Manager struct {
	logger  *zap.Logger
	starter Starter
	timeout time.Duration

	mu       sync.Mutex
	session  Session
	firstErr error
	starts   int
}

// NewManager creates a Manager that starts sessions through starter.
func NewManager(logger *zap.Logger, cfg *config.Config, starter Starter) *Manager {
	return &Manager{
		logger:  logger,
		starter: starter,
		timeout: cfg.GetStartupTimeout(),
	}
}

// NewLauncherManager wires a Manager to the MATLAB process Launcher.
func NewLauncherManager(logger *zap.Logger, cfg *config.Config) *Manager {
	return NewManager(logger, cfg, NewLauncher(logger, cfg))
}

// Do runs fn with exclusive use of the session, starting it first if
// needed. Session acquisition is the single serialization point for all
// engine work.
func (m *Manager) Do(ctx context.Context, fn func(Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.acquireLocked(ctx)
	if err != nil {
		return err
	}
	return fn(s)
}

// Warm starts the session ahead of the first operation.
func (m *Manager) Warm(ctx context.Context) error {
	return m.Do(ctx, func(Session) error { return nil })
}

func (m *Manager) acquireLocked(ctx context.Context) (Session, error) {
	if m.session != nil {
		if m.session.Alive() {
			return m.session, nil
		}
		m.logger.Warn("engine session is no longer alive; starting a new one",
			zap.Int("pid", m.session.Info().PID))
		m.session = nil
	}

	// Callers that give up do not abort a startup others will reuse.
	startCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	m.starts++
	s, err := m.starter.Start(startCtx)
	if err != nil {
		if m.firstErr == nil {
			m.firstErr = err
		}
		m.logger.Error("engine startup failed", zap.Int("attempt", m.starts), zap.Error(err))
		return nil, &UnavailableError{Err: err, First: m.firstErr}
	}

	m.firstErr = nil
	m.session = s
	return s, nil
}

// Status describes the current session without starting one.
type Status struct {
	Started bool   `json:"started"`
	Alive   bool   `json:"alive"`
	Starts  int    `json:"start_attempts"`
	Info    *Info  `json:"info,omitempty"`
	Stats   *Stats `json:"stats,omitempty"`
	// LastError is the first startup failure not yet cleared by a success.
	LastError string `json:"last_error,omitempty"`
}

// Status reports on the session. It never starts the engine.
func (m *Manager) Status(ctx context.Context) Status {
	m.mu.Lock()
	s := m.session
	st := Status{Started: s != nil, Starts: m.starts}
	if m.firstErr != nil {
		st.LastError = m.firstErr.Error()
	}
	m.mu.Unlock()

	if s == nil {
		return st
	}
	info := s.Info()
	st.Info = &info
	st.Alive = s.Alive()
	if st.Alive && info.PID > 0 {
		stats, err := ProcessStats(ctx, info.PID)
		if err != nil {
			m.logger.Debug("failed to read engine process stats", zap.Error(err))
		} else {
			st.Stats = &stats
		}
	}
	return st
}

// Close shuts the session down at application exit.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil
	}
	err := m.session.Close()
	m.session = nil
	return err
}
