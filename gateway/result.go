package gateway

import (
	"errors"

	"github.com/isdmx/matlab-mcp/engine"
	"github.com/isdmx/matlab-mcp/filestore"
	"github.com/isdmx/matlab-mcp/syntax"
)

// Error codes reported in Result.Error.Code.
const (
	CodeEngineUnavailable  = "engine_unavailable"
	CodeInvalidIdentifier  = "invalid_identifier"
	CodeNotFound           = "not_found"
	CodeAlreadyExists      = "already_exists"
	CodeIOFailure          = "io_failure"
	CodeEngineRuntimeError = "engine_runtime_error"
	CodeSyntaxError        = "syntax_error"
	CodeTestRunnerError    = "test_runner_error"
	CodeInvalidArguments   = "invalid_arguments"
	CodeInternal           = "internal"
)

var (
	// ErrInvalidArguments indicates arguments that do not fit an operation.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrTestRunner indicates the test runner itself failed, as opposed to
	// a failing test.
	ErrTestRunner = errors.New("test runner failed")

	// ErrUnknownOperation indicates a name missing from the dispatch table.
	ErrUnknownOperation = errors.New("unknown operation")
)

// Result is the uniform outcome of every operation.
type Result struct {
	Success   bool              `json:"success"`
	Output    string            `json:"output"`
	Truncated bool              `json:"truncated"`
	Error     *ErrorInfo        `json:"error,omitempty"`
	Value     *engine.Value     `json:"result,omitempty"`
	Path      string            `json:"path,omitempty"`
	Report    *TestReport       `json:"report,omitempty"`
	Toolboxes []engine.Toolbox  `json:"toolboxes,omitzero"`
	Variables []engine.Variable `json:"variables,omitzero"`
	Status    *engine.Status    `json:"status,omitempty"`
	Figures   []Figure          `json:"-"`
}

// ErrorInfo describes why an operation failed.
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Identifier string `json:"identifier,omitempty"`
	Line       int    `json:"line,omitempty"`
	Column     int    `json:"column,omitempty"`
}

// Figure is a rendered plot returned alongside a result.
type Figure struct {
	Name     string
	MIMEType string
	Data     []byte
}

// TestEntry is one test case outcome.
type TestEntry struct {
	Name    string  `json:"name"`
	Passed  bool    `json:"passed"`
	Message string  `json:"message,omitempty"`
	Seconds float64 `json:"duration_sec"`
}

// TestTotals counts passed and failed entries.
type TestTotals struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// TestReport is the structured result of a test file run. Totals always
// equal the sums over Entries.
type TestReport struct {
	Entries []TestEntry `json:"entries"`
	Totals  TestTotals  `json:"totals"`
}

// newTestReport builds a report from runner outcomes. Incomplete tests
// count as failed.
func newTestReport(outcomes []engine.TestOutcome) *TestReport {
	report := &TestReport{Entries: make([]TestEntry, 0, len(outcomes))}
	for _, o := range outcomes {
		passed := o.Passed && !o.Incomplete
		report.Entries = append(report.Entries, TestEntry{
			Name:    o.Name,
			Passed:  passed,
			Message: o.Message,
			Seconds: o.Duration,
		})
		if passed {
			report.Totals.Passed++
		} else {
			report.Totals.Failed++
		}
	}
	return report
}

// errorInfo maps err onto the error code taxonomy.
func errorInfo(err error) *ErrorInfo {
	info := &ErrorInfo{Code: CodeInternal, Message: err.Error()}

	var runtimeErr *engine.RuntimeError
	var syntaxErr *syntax.Error
	switch {
	case errors.Is(err, ErrInvalidArguments), errors.Is(err, ErrUnknownOperation):
		info.Code = CodeInvalidArguments
	case errors.Is(err, ErrTestRunner):
		info.Code = CodeTestRunnerError
	case errors.Is(err, engine.ErrUnavailable):
		info.Code = CodeEngineUnavailable
	case errors.Is(err, filestore.ErrInvalidIdentifier):
		info.Code = CodeInvalidIdentifier
	case errors.Is(err, filestore.ErrNotFound):
		info.Code = CodeNotFound
	case errors.Is(err, filestore.ErrAlreadyExists):
		info.Code = CodeAlreadyExists
	case errors.Is(err, filestore.ErrIOFailure):
		info.Code = CodeIOFailure
	case errors.As(err, &syntaxErr):
		info.Code = CodeSyntaxError
		info.Line = syntaxErr.Line
		info.Column = syntaxErr.Column
	case errors.As(err, &runtimeErr):
		info.Code = CodeEngineRuntimeError
	}

	if errors.As(err, &runtimeErr) {
		info.Identifier = runtimeErr.Identifier
		if len(runtimeErr.Stack) > 0 {
			info.Line = runtimeErr.Stack[0].Line
		}
	}
	return info
}
