package gateway

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/isdmx/matlab-mcp/config"
	"github.com/isdmx/matlab-mcp/engine"
	"github.com/isdmx/matlab-mcp/filestore"
)

// SessionProvider hands out exclusive use of the engine session.
type SessionProvider interface {
	Do(ctx context.Context, fn func(engine.Session) error) error
	Status(ctx context.Context) engine.Status
}

// Operation is one entry of the dispatch table.
type Operation struct {
	Name        string
	Description string
	// Properties and Required form the JSON schema of the arguments object.
	Properties map[string]any
	Required   []string

	handler func(ctx context.Context, args Args) (Result, error)
	schema  *gojsonschema.Schema
}

// Gateway dispatches operations against the shared engine session.
type Gateway struct {
	logger   *zap.Logger
	store    *filestore.Store
	sessions SessionProvider

	maxLength      int
	maxElements    int
	captureFigures bool

	ops   []Operation
	index map[string]int
}

// New creates a Gateway and compiles the argument schema of every operation.
func New(cfg *config.Config, logger *zap.Logger, store *filestore.Store, sessions SessionProvider) (*Gateway, error) {
	g := &Gateway{
		logger:         logger,
		store:          store,
		sessions:       sessions,
		maxLength:      cfg.Output.MaxLength,
		maxElements:    cfg.Output.MaxArrayElements,
		captureFigures: cfg.Output.CaptureFigures,
		index:          make(map[string]int),
	}

	g.ops = g.operations()
	for i := range g.ops {
		schema, err := compileSchema(g.ops[i])
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema for %s: %w", g.ops[i].Name, err)
		}
		g.ops[i].schema = schema
		g.index[g.ops[i].Name] = i
	}

	return g, nil
}

// Operations returns the dispatch table in registration order.
func (g *Gateway) Operations() []Operation {
	out := make([]Operation, len(g.ops))
	copy(out, g.ops)
	return out
}

// Dispatch runs the named operation. It always returns a Result; failures,
// including panics, are reported through Result.Error.
func (g *Gateway) Dispatch(ctx context.Context, name string, args map[string]any) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("operation panicked",
				zap.String("operation", name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			res = Result{Error: &ErrorInfo{Code: CodeInternal, Message: fmt.Sprintf("internal error: %v", r)}}
		}

		fields := []zap.Field{
			zap.String("operation", name),
			zap.Duration("duration", time.Since(start)),
			zap.Bool("success", res.Success),
		}
		if res.Error != nil {
			fields = append(fields, zap.String("code", res.Error.Code))
		}
		g.logger.Info("operation completed", fields...)
	}()

	i, ok := g.index[name]
	if !ok {
		return failure(Result{}, fmt.Errorf("%w: %q", ErrUnknownOperation, name))
	}
	op := g.ops[i]

	if args == nil {
		args = map[string]any{}
	}
	if err := validate(op.schema, args); err != nil {
		return failure(Result{}, err)
	}

	res, err := op.handler(ctx, Args(args))
	if err != nil {
		return failure(res, err)
	}
	res.Success = true
	return res
}

// GetScript returns the content of a managed file.
func (g *Gateway) GetScript(name string) (string, error) {
	path, err := g.store.ResolvePath(name, "")
	if err != nil {
		return "", err
	}
	return g.store.Read(path)
}

// ListScripts returns the names of all managed files.
func (g *Gateway) ListScripts() ([]string, error) {
	return g.store.List()
}

func failure(res Result, err error) Result {
	res.Success = false
	res.Value = nil
	res.Error = errorInfo(err)
	return res
}

func compileSchema(op Operation) (*gojsonschema.Schema, error) {
	properties := op.Properties
	if properties == nil {
		properties = map[string]any{}
	}
	schemaMap := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(op.Required) > 0 {
		schemaMap["required"] = op.Required
	}
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}

func validate(schema *gojsonschema.Schema, args map[string]any) error {
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidArguments, strings.Join(msgs, "; "))
}

// Args is a validated arguments object.
type Args map[string]any

// String returns the string argument key, or "" if absent.
func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Bool returns the boolean argument key, or false if absent.
func (a Args) Bool(key string) bool {
	b, _ := a[key].(bool)
	return b
}

// Values returns the array argument key with its elements as decoded
// from JSON, or nil if absent.
func (a Args) Values(key string) []any {
	switch v := a[key].(type) {
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out
	}
	return nil
}
