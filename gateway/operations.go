package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/matlab-mcp/engine"
	"github.com/isdmx/matlab-mcp/filestore"
	"github.com/isdmx/matlab-mcp/syntax"
)

const workspaceNote = " Runs in the shared MATLAB session: variables persist between calls and are visible to every caller."

var functionDecl = regexp.MustCompile(`^function\b`)

// parseErrorIDs are checkcode message ids that mean the code cannot be parsed.
var parseErrorIDs = map[string]bool{
	"SYNER":  true,
	"EOFER":  true,
	"NOPAR":  true,
	"ENDPAR": true,
}

func (g *Gateway) operations() []Operation {
	codeProp := map[string]any{"type": "string", "description": "MATLAB source code"}
	filenameProp := map[string]any{
		"type":        "string",
		"description": "File name under the managed root, without directories; the .m extension is optional",
	}

	return []Operation{
		{
			Name:        "check_syntax",
			Description: "Check MATLAB code for syntax errors without executing it.",
			Properties:  map[string]any{"code": codeProp},
			Required:    []string{"code"},
			handler:     g.checkSyntax,
		},
		{
			Name:        "evaluate",
			Description: "Evaluate MATLAB code and return printed output and the value of ans." + workspaceNote,
			Properties:  map[string]any{"code": codeProp},
			Required:    []string{"code"},
			handler:     g.evaluate,
		},
		{
			Name:        "create_file",
			Description: "Create a MATLAB script file under the managed root.",
			Properties: map[string]any{
				"filename":  filenameProp,
				"content":   map[string]any{"type": "string", "description": "File content"},
				"overwrite": map[string]any{"type": "boolean", "description": "Replace an existing file"},
			},
			Required: []string{"filename", "content"},
			handler:  g.createFile,
		},
		{
			Name:        "create_function",
			Description: "Create a MATLAB function file under the managed root. The content must start with a function declaration.",
			Properties: map[string]any{
				"filename":  filenameProp,
				"content":   map[string]any{"type": "string", "description": "Function source, starting with 'function'"},
				"overwrite": map[string]any{"type": "boolean", "description": "Replace an existing file"},
			},
			Required: []string{"filename", "content"},
			handler:  g.createFunction,
		},
		{
			Name:        "run_file",
			Description: "Run a script or function file from the managed root." + workspaceNote,
			Properties: map[string]any{
				"filename": filenameProp,
				"args": map[string]any{
					"type":        "array",
					"description": "Positional arguments. Numbers arrive as double, booleans as logical, strings as character vectors",
					"items":       map[string]any{"type": []string{"string", "number", "boolean"}},
				},
			},
			Required: []string{"filename"},
			handler:  g.runFile,
		},
		{
			Name:        "run_test_file",
			Description: "Run a test file from the managed root with runtests and report each test.",
			Properties:  map[string]any{"filename": filenameProp},
			Required:    []string{"filename"},
			handler:     g.runTestFile,
		},
		{
			Name:        "detect_toolboxes",
			Description: "List installed MATLAB products and toolboxes.",
			handler:     g.detectToolboxes,
		},
		{
			Name:        "list_workspace",
			Description: "Describe the variables in the shared base workspace.",
			handler:     g.listWorkspace,
		},
		{
			Name:        "engine_status",
			Description: "Report whether the MATLAB engine is running, with its pid, release and resource usage. Never starts the engine.",
			handler:     g.engineStatus,
		},
	}
}

func (g *Gateway) checkSyntax(ctx context.Context, args Args) (Result, error) {
	code := args.String("code")
	if err := syntax.Check(code); err != nil {
		return Result{}, err
	}

	var report *engine.CheckReport
	err := g.sessions.Do(ctx, func(s engine.Session) error {
		var err error
		report, err = engine.CheckCode(ctx, s, code)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	if !report.Available {
		return Result{Output: "No syntax errors found (static analysis is not available in this engine)."}, nil
	}
	if len(report.Messages) == 0 {
		return Result{Output: "No syntax errors found."}, nil
	}

	lines := make([]string, len(report.Messages))
	var first *engine.CheckMessage
	for i := range report.Messages {
		m := &report.Messages[i]
		lines[i] = fmt.Sprintf("L %d (C %d): %s: %s", m.Line, m.Column, m.ID, m.Message)
		if first == nil && isParseError(*m) {
			first = m
		}
	}

	var res Result
	res.Output, res.Truncated = engine.Truncate(strings.Join(lines, "\n"), g.maxLength)
	if first != nil {
		return res, &syntax.Error{Line: first.Line, Column: first.Column, Message: first.Message}
	}
	return res, nil
}

func isParseError(m engine.CheckMessage) bool {
	if parseErrorIDs[m.ID] {
		return true
	}
	msg := strings.ToLower(m.Message)
	for _, marker := range []string{"parse error", "invalid syntax", "not terminated", "unbalanced", "might be missing a closing"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (g *Gateway) evaluate(ctx context.Context, args Args) (Result, error) {
	code := args.String("code")
	return g.execute(ctx, func(s engine.Session) (*engine.Value, error) {
		return engine.Eval(ctx, s, code, g.maxElements)
	})
}

func (g *Gateway) runFile(ctx context.Context, args Args) (Result, error) {
	path, err := g.existingFile(args.String("filename"))
	if err != nil {
		return Result{}, err
	}
	name := g.store.NameOf(path)
	argv := args.Values("args")

	res, err := g.execute(ctx, func(s engine.Session) (*engine.Value, error) {
		return engine.RunFile(ctx, s, name, argv, g.maxElements)
	})
	res.Path = path
	return res, err
}

// execute runs fn with output capture, after refreshing engine state and
// clearing figures, and collects any figures it leaves open.
func (g *Gateway) execute(ctx context.Context, fn func(engine.Session) (*engine.Value, error)) (Result, error) {
	var res Result
	err := g.sessions.Do(ctx, func(s engine.Session) error {
		if err := g.refresh(ctx, s); err != nil {
			return err
		}
		if g.captureFigures {
			if err := engine.CloseFigures(ctx, s); err != nil {
				return err
			}
		}

		out, err := engine.Capture(s, g.maxLength, func() error {
			v, err := fn(s)
			res.Value = v
			return err
		})
		res.Output, res.Truncated = out.Text, out.Truncated
		if err != nil {
			return err
		}

		if g.captureFigures {
			res.Figures = g.collectFigures(ctx, s)
		}
		return nil
	})
	return res, err
}

// refresh makes the engine reload files that changed on disk.
func (g *Gateway) refresh(ctx context.Context, s engine.Session) error {
	if !g.store.TakeChanged() {
		return nil
	}
	if err := engine.Rehash(ctx, s); err != nil {
		g.store.MarkChanged()
		return err
	}
	return nil
}

func (g *Gateway) collectFigures(ctx context.Context, s engine.Session) []Figure {
	dir, err := os.MkdirTemp("", "mcpgw-figures-")
	if err != nil {
		g.logger.Warn("failed to create figure directory", zap.Error(err))
		return nil
	}
	defer os.RemoveAll(dir)

	files, err := engine.SaveFigures(ctx, s, dir)
	if err != nil {
		g.logger.Warn("failed to save figures", zap.Error(err))
		return nil
	}

	figures := make([]Figure, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			g.logger.Warn("failed to read figure", zap.String("path", f), zap.Error(err))
			continue
		}
		figures = append(figures, Figure{Name: filepath.Base(f), MIMEType: "image/png", Data: data})
	}
	return figures
}

func (g *Gateway) createFile(_ context.Context, args Args) (Result, error) {
	return g.writeFile(args.String("filename"), args.String("content"), args.Bool("overwrite"))
}

func (g *Gateway) createFunction(_ context.Context, args Args) (Result, error) {
	content := args.String("content")
	if !startsWithFunction(content) {
		return Result{}, fmt.Errorf("%w: content must begin with a function declaration", ErrInvalidArguments)
	}
	return g.writeFile(args.String("filename"), content, args.Bool("overwrite"))
}

// startsWithFunction reports whether the first line of code that is not
// blank or a comment declares a function.
func startsWithFunction(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		return functionDecl.MatchString(line)
	}
	return false
}

func (g *Gateway) writeFile(filename, content string, overwrite bool) (Result, error) {
	path, err := g.store.ResolvePath(filename, "")
	if err != nil {
		return Result{}, err
	}

	exists, err := g.store.Exists(path)
	if err != nil {
		return Result{}, err
	}
	if exists && !overwrite {
		return Result{Path: path}, fmt.Errorf("%w: %s", filestore.ErrAlreadyExists, filepath.Base(path))
	}

	if err := g.store.Write(path, content); err != nil {
		return Result{}, err
	}
	return Result{Path: path, Output: "Created " + path}, nil
}

func (g *Gateway) existingFile(filename string) (string, error) {
	path, err := g.store.ResolvePath(filename, "")
	if err != nil {
		return "", err
	}
	exists, err := g.store.Exists(path)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", filestore.ErrNotFound, filepath.Base(path))
	}
	return path, nil
}

func (g *Gateway) runTestFile(ctx context.Context, args Args) (Result, error) {
	path, err := g.existingFile(args.String("filename"))
	if err != nil {
		return Result{}, err
	}

	res := Result{Path: path}
	err = g.sessions.Do(ctx, func(s engine.Session) error {
		if err := g.refresh(ctx, s); err != nil {
			return err
		}

		var outcomes []engine.TestOutcome
		out, err := engine.Capture(s, g.maxLength, func() error {
			var err error
			outcomes, err = engine.RunTests(ctx, s, path)
			return err
		})
		res.Output, res.Truncated = out.Text, out.Truncated
		if err != nil {
			if errors.Is(err, engine.ErrRuntime) {
				return fmt.Errorf("%w: %w", ErrTestRunner, err)
			}
			return err
		}

		res.Report = newTestReport(outcomes)
		return nil
	})
	return res, err
}

func (g *Gateway) detectToolboxes(ctx context.Context, _ Args) (Result, error) {
	var toolboxes []engine.Toolbox
	err := g.sessions.Do(ctx, func(s engine.Session) error {
		var err error
		toolboxes, err = engine.Toolboxes(ctx, s)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	lines := make([]string, len(toolboxes))
	for i, t := range toolboxes {
		lines[i] = fmt.Sprintf("%s %s %s", t.Name, t.Version, t.Release)
	}

	res := Result{Toolboxes: toolboxes}
	res.Output, res.Truncated = engine.Truncate(strings.Join(lines, "\n"), g.maxLength)
	return res, nil
}

func (g *Gateway) listWorkspace(ctx context.Context, _ Args) (Result, error) {
	var vars []engine.Variable
	err := g.sessions.Do(ctx, func(s engine.Session) error {
		var err error
		vars, err = engine.Workspace(ctx, s, g.maxElements)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	lines := make([]string, len(vars))
	for i, v := range vars {
		if v.Value != nil && v.Value.Text != "" {
			v.Value.Text, _ = engine.Truncate(v.Value.Text, g.maxLength)
		}
		lines[i] = fmt.Sprintf("%s = %s", v.Name, v.Value)
	}

	res := Result{Variables: vars}
	res.Output, res.Truncated = engine.Truncate(strings.Join(lines, "\n"), g.maxLength)
	return res, nil
}

func (g *Gateway) engineStatus(ctx context.Context, _ Args) (Result, error) {
	st := g.sessions.Status(ctx)

	var out string
	switch {
	case !st.Started:
		out = "MATLAB engine is not running."
	case !st.Alive:
		out = fmt.Sprintf("MATLAB engine (pid %d) has exited.", st.Info.PID)
	default:
		out = fmt.Sprintf("MATLAB engine running: pid %d, release %s, up %s.",
			st.Info.PID, st.Info.Release, time.Since(st.Info.StartedAt).Round(time.Second))
		if st.Stats != nil {
			out += fmt.Sprintf(" RSS %d bytes, CPU %.1f%%.", st.Stats.RSSBytes, st.Stats.CPUPercent)
		}
	}
	if st.LastError != "" {
		out += " Last startup failure: " + st.LastError
	}
	return Result{Output: out, Status: &st}, nil
}
