package engine

import (
	"context"
)

// CheckMessage is one checkcode finding.
type CheckMessage struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
}

// CheckReport is the result of a static check. Available is false when the
// engine has no checkcode facility.
type CheckReport struct {
	Available bool           `json:"available"`
	Messages  []CheckMessage `json:"messages"`
}

// TestOutcome is one test case from runtests.
type TestOutcome struct {
	Name       string  `json:"name"`
	Passed     bool    `json:"passed"`
	Incomplete bool    `json:"incomplete"`
	Duration   float64 `json:"duration"`
	Message    string  `json:"message"`
}

// Toolbox is one entry of the installed product list.
type Toolbox struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Release string `json:"release"`
}

// Variable is one base workspace variable.
type Variable struct {
	Name  string `json:"name"`
	Value *Value `json:"value"`
}

// Eval runs code in the base workspace and returns ans if the code set it.
func Eval(ctx context.Context, s Session, code string, maxElems int) (*Value, error) {
	reply, err := s.Call(ctx, Request{Op: OpEval, Code: code, Limit: maxElems})
	if err != nil {
		return nil, err
	}
	if err := reply.Err(); err != nil {
		return nil, err
	}
	return reply.Value, nil
}

// CheckCode runs checkcode over code without executing it.
func CheckCode(ctx context.Context, s Session, code string) (*CheckReport, error) {
	var report CheckReport
	if err := callData(ctx, s, Request{Op: OpCheck, Code: code}, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// RunFile invokes a script or function on the MATLAB path by name.
func RunFile(ctx context.Context, s Session, name string, args []any, maxElems int) (*Value, error) {
	reply, err := s.Call(ctx, Request{Op: OpRun, Name: name, Args: args, Limit: maxElems})
	if err != nil {
		return nil, err
	}
	if err := reply.Err(); err != nil {
		return nil, err
	}
	return reply.Value, nil
}

// RunTests runs the test file at path with runtests.
func RunTests(ctx context.Context, s Session, path string) ([]TestOutcome, error) {
	var data struct {
		Entries []TestOutcome `json:"entries"`
	}
	if err := callData(ctx, s, Request{Op: OpTest, Path: path}, &data); err != nil {
		return nil, err
	}
	return data.Entries, nil
}

// Toolboxes lists installed products.
func Toolboxes(ctx context.Context, s Session) ([]Toolbox, error) {
	var data struct {
		Toolboxes []Toolbox `json:"toolboxes"`
	}
	if err := callData(ctx, s, Request{Op: OpToolboxes}, &data); err != nil {
		return nil, err
	}
	if data.Toolboxes == nil {
		data.Toolboxes = []Toolbox{}
	}
	return data.Toolboxes, nil
}

// Workspace describes every variable in the base workspace.
func Workspace(ctx context.Context, s Session, maxElems int) ([]Variable, error) {
	var data struct {
		Variables []Variable `json:"variables"`
	}
	if err := callData(ctx, s, Request{Op: OpWorkspace, Limit: maxElems}, &data); err != nil {
		return nil, err
	}
	if data.Variables == nil {
		data.Variables = []Variable{}
	}
	return data.Variables, nil
}

// SaveFigures writes every open figure as PNG into dir, closes them, and
// returns the file paths.
func SaveFigures(ctx context.Context, s Session, dir string) ([]string, error) {
	var data struct {
		Files []string `json:"files"`
	}
	if err := callData(ctx, s, Request{Op: OpFigures, Dir: dir}, &data); err != nil {
		return nil, err
	}
	return data.Files, nil
}

// CloseFigures closes all open figures.
func CloseFigures(ctx context.Context, s Session) error {
	return callNoData(ctx, s, Request{Op: OpCloseFigs})
}

// Rehash makes MATLAB pick up files changed on disk.
func Rehash(ctx context.Context, s Session) error {
	return callNoData(ctx, s, Request{Op: OpRehash})
}

func callNoData(ctx context.Context, s Session, req Request) error {
	reply, err := s.Call(ctx, req)
	if err != nil {
		return err
	}
	return reply.Err()
}

func callData(ctx context.Context, s Session, req Request, v any) error {
	reply, err := s.Call(ctx, req)
	if err != nil {
		return err
	}
	if err := reply.Err(); err != nil {
		return err
	}
	return reply.DecodeData(v)
}
