package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxLineBytes = 64 * 1024 * 1024
	closeGrace   = 10 * time.Second
)

// Info identifies a running engine.
type Info struct {
	PID       int       `json:"pid"`
	Release   string    `json:"release"`
	StartedAt time.Time `json:"started_at"`
}

// Session is a live handle to a MATLAB engine. The engine's base workspace
// is shared by every call made through the same session and is never reset.
type Session interface {
	Redirector
	Call(ctx context.Context, req Request) (*Reply, error)
	Alive() bool
	Info() Info
	Close() error
}

type frame struct {
	id    string
	reply *Reply
	err   error
}

// Process is a Session backed by a MATLAB process driven over its stdio.
// Requests are written to stdin; printed output and framed replies are
// read back from stdout.
type Process struct {
	logger *zap.Logger
	stdin  io.WriteCloser
	info   Info

	// wait reaps the process once stdout is drained; kill forces exit.
	wait func() error
	kill func() error

	callMu sync.Mutex

	sinkMu sync.Mutex
	sink   io.Writer

	frames    chan frame
	done      chan struct{}
	exitErr   error
	closeOnce sync.Once
}

func newProcess(logger *zap.Logger, pid int, stdin io.WriteCloser, stdout io.Reader, wait, kill func() error) *Process {
	p := &Process{
		logger: logger,
		stdin:  stdin,
		info:   Info{PID: pid, StartedAt: time.Now()},
		wait:   wait,
		kill:   kill,
		frames: make(chan frame, 16),
		done:   make(chan struct{}),
	}
	go p.readLoop(stdout)
	return p
}

// Call sends req to the helper and waits for its reply. Cancelling ctx
// stops the wait but does not interrupt the engine; the late reply is
// discarded when it arrives.
func (p *Process) Call(ctx context.Context, req Request) (*Reply, error) {
	p.callMu.Lock()
	defer p.callMu.Unlock()

	if !p.Alive() {
		return nil, p.exitError()
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	lines, err := encodeCommands(req)
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		if err := p.send(line); err != nil {
			return nil, err
		}
	}

	for {
		select {
		case f := <-p.frames:
			if f.id != req.ID {
				p.logger.Debug("discarding stale engine reply", zap.String("id", f.id), zap.String("want", req.ID))
				continue
			}
			if f.err != nil {
				return nil, f.err
			}
			return f.reply, nil
		case <-p.done:
			return nil, p.exitError()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Redirect routes printed engine output to w until restore is called.
func (p *Process) Redirect(w io.Writer) func() {
	p.sinkMu.Lock()
	prev := p.sink
	p.sink = w
	p.sinkMu.Unlock()

	return func() {
		p.sinkMu.Lock()
		p.sink = prev
		p.sinkMu.Unlock()
	}
}

// Alive reports whether the engine process is still running.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Info returns the process identity recorded at startup.
func (p *Process) Info() Info {
	return p.info
}

// Close closes the engine's stdin, which makes MATLAB exit. The process is
// killed if it has not exited within a grace period.
func (p *Process) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.stdin.Close()
		select {
		case <-p.done:
		case <-time.After(closeGrace):
			p.logger.Warn("engine did not exit after stdin closed; killing", zap.Int("pid", p.info.PID))
			if p.kill != nil {
				if killErr := p.kill(); killErr != nil {
					err = killErr
				}
			}
		}
	})
	return err
}

// exec writes a raw MATLAB command line, outside the request protocol.
func (p *Process) exec(command string) error {
	p.callMu.Lock()
	defer p.callMu.Unlock()
	return p.send(command)
}

func (p *Process) send(line string) error {
	if _, err := io.WriteString(p.stdin, line+"\n"); err != nil {
		return &UnavailableError{Err: fmt.Errorf("writing to engine: %w", err)}
	}
	return nil
}

func (p *Process) exitError() error {
	<-p.done
	if p.exitErr != nil {
		return &UnavailableError{Err: fmt.Errorf("engine process exited: %w", p.exitErr)}
	}
	return &UnavailableError{Err: fmt.Errorf("engine process exited")}
}

func (p *Process) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	// The helper prints a newline before each frame; the blank line that
	// produces is held back and dropped when the frame follows.
	pendingBlank := false
	for scanner.Scan() {
		line := stripPrompt(strings.TrimRight(scanner.Text(), "\r"))

		if reply, isFrame, err := parseFrame(line); isFrame {
			pendingBlank = false
			f := frame{reply: reply, err: err}
			if reply != nil {
				f.id = reply.ID
			} else {
				f.id = frameID(line)
			}
			select {
			case p.frames <- f:
			default:
				p.logger.Warn("dropping engine reply nobody is waiting for", zap.String("id", f.id))
			}
			continue
		}

		if line == "" {
			if pendingBlank {
				p.writeOutput("\n")
			}
			pendingBlank = true
			continue
		}
		if pendingBlank {
			p.writeOutput("\n")
			pendingBlank = false
		}
		p.writeOutput(line + "\n")
	}

	exitErr := scanner.Err()
	if p.wait != nil {
		if err := p.wait(); err != nil && exitErr == nil {
			exitErr = err
		}
	}
	p.exitErr = exitErr
	close(p.done)
	p.logger.Info("engine output stream closed", zap.Int("pid", p.info.PID), zap.Error(exitErr))
}

func (p *Process) writeOutput(s string) {
	p.sinkMu.Lock()
	defer p.sinkMu.Unlock()

	if p.sink == nil {
		p.logger.Debug("engine output outside of a call", zap.String("text", strings.TrimRight(s, "\n")))
		return
	}
	if _, err := io.WriteString(p.sink, s); err != nil {
		p.logger.Warn("failed to capture engine output", zap.Error(err))
	}
}

func frameID(line string) string {
	fields := strings.Fields(strings.TrimPrefix(line, replyMarker))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
