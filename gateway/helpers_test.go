package gateway

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/matlab-mcp/config"
	"github.com/isdmx/matlab-mcp/engine"
	"github.com/isdmx/matlab-mcp/filestore"
)

// handlerFunc answers one helper request. emit writes to the session's
// current output sink.
type handlerFunc func(req engine.Request, emit func(string)) (*engine.Reply, error)

// fakeSession is an in-memory engine.Session that records every request.
type fakeSession struct {
	mu     sync.Mutex
	sink   io.Writer
	reqs   []engine.Request
	handle handlerFunc
	closed bool
}

func (f *fakeSession) Redirect(w io.Writer) func() {
	f.mu.Lock()
	prev := f.sink
	f.sink = w
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.sink = prev
		f.mu.Unlock()
	}
}

func (f *fakeSession) Call(_ context.Context, req engine.Request) (*engine.Reply, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	sink := f.sink
	handle := f.handle
	f.mu.Unlock()

	emit := func(s string) {
		if sink != nil {
			_, _ = io.WriteString(sink, s)
		}
	}
	if handle == nil {
		return &engine.Reply{OK: true}, nil
	}
	return handle(req, emit)
}

func (f *fakeSession) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeSession) Info() engine.Info {
	return engine.Info{PID: os.Getpid(), Release: "2024a"}
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSession) ops() []engine.Op {
	f.mu.Lock()
	defer f.mu.Unlock()
	ops := make([]engine.Op, len(f.reqs))
	for i, r := range f.reqs {
		ops[i] = r.Op
	}
	return ops
}

func (f *fakeSession) lastRequest(op engine.Op) (engine.Request, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.reqs) - 1; i >= 0; i-- {
		if f.reqs[i].Op == op {
			return f.reqs[i], true
		}
	}
	return engine.Request{}, false
}

func (f *fakeSession) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = nil
}

// countingStarter hands out one session, or fails with err.
type countingStarter struct {
	mu      sync.Mutex
	session engine.Session
	err     error
	starts  int
}

func (s *countingStarter) Start(context.Context) (engine.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	if s.err != nil {
		return nil, s.err
	}
	return s.session, nil
}

func (s *countingStarter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

type fixture struct {
	gw      *Gateway
	session *fakeSession
	starter *countingStarter
	store   *filestore.Store
	manager *engine.Manager
}

func testConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{StartupTimeoutSec: 5},
		Files:  config.FilesConfig{Root: "src", Extension: ".m"},
		Output: config.OutputConfig{
			MaxLength:        4000,
			MaxArrayElements: 100,
		},
	}
}

func newFixture(t *testing.T, handle handlerFunc, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	logger := zaptest.NewLogger(t)
	store, err := filestore.New(logger, filepath.Join(t.TempDir(), "src"), ".m")
	require.NoError(t, err)

	session := &fakeSession{handle: handle}
	starter := &countingStarter{session: session}
	manager := engine.NewManager(logger, cfg, starter)

	gw, err := New(cfg, logger, store, manager)
	require.NoError(t, err)

	return &fixture{gw: gw, session: session, starter: starter, store: store, manager: manager}
}

// writeSource stores a file directly, bypassing the gateway.
func (f *fixture) writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path, err := f.store.ResolvePath(name, "")
	require.NoError(t, err)
	require.NoError(t, f.store.Write(path, content))
	return path
}

func scalar(v float64) *engine.Value {
	return &engine.Value{Kind: engine.KindScalar, Class: "double", Size: []int{1, 1}, Scalar: &v}
}

func dataReply(t *testing.T, data any) *engine.Reply {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return &engine.Reply{OK: true, Data: raw}
}

func errorReply(identifier, message string) *engine.Reply {
	return &engine.Reply{OK: false, Error: &engine.RuntimeError{Identifier: identifier, Message: message}}
}

func okReply() *engine.Reply {
	return &engine.Reply{OK: true}
}
