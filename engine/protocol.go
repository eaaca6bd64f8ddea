package engine

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Op names a request understood by the MATLAB helper.
type Op string

// Helper operations
const (
	OpPing      Op = "ping"
	OpEval      Op = "eval"
	OpCheck     Op = "check"
	OpRun       Op = "run"
	OpTest      Op = "test"
	OpToolboxes Op = "toolboxes"
	OpWorkspace Op = "workspace"
	OpFigures   Op = "figures"
	OpCloseFigs Op = "closefigs"
	OpRehash    Op = "rehash"
)

const (
	replyMarker    = "@@MCPGW@@"
	promptPrefix   = ">> "
	chunkSize      = 2048
	helperFunction = "mcpgw_serve"
)

// Request is one call into the helper. Every field is always encoded so the
// helper can read them without existence checks.
type Request struct {
	ID    string `json:"id"`
	Op    Op     `json:"op"`
	Code  string `json:"code"`
	Name  string `json:"name"`
	Path  string `json:"path"`
	Args  []any  `json:"args"`
	Limit int    `json:"limit"`
	Dir   string `json:"dir"`
}

// Reply is the helper's answer to a Request.
type Reply struct {
	ID    string          `json:"id"`
	OK    bool            `json:"ok"`
	Value *Value          `json:"value,omitempty"`
	Error *RuntimeError   `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Err returns the engine error carried by a failed reply.
func (r *Reply) Err() error {
	if r.OK {
		return nil
	}
	if r.Error == nil {
		return &RuntimeError{Message: "engine reported failure without diagnostic"}
	}
	return r.Error
}

// DecodeData unmarshals the reply payload into v.
func (r *Reply) DecodeData(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("%w: reply %s carries no data", ErrProtocol, r.ID)
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("%w: decoding reply data: %v", ErrProtocol, err)
	}
	return nil
}

// encodeCommands renders req as the MATLAB command lines that feed the helper.
func encodeCommands(req Request) ([]string, error) {
	if req.Args == nil {
		req.Args = []any{}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(payload)

	var lines []string
	for len(encoded) > chunkSize {
		lines = append(lines, fmt.Sprintf("%s('%s', 0)", helperFunction, encoded[:chunkSize]))
		encoded = encoded[chunkSize:]
	}
	lines = append(lines, fmt.Sprintf("%s('%s', 1)", helperFunction, encoded))
	return lines, nil
}

// stripPrompt removes any leading MATLAB prompts from an output line.
func stripPrompt(line string) string {
	for strings.HasPrefix(line, promptPrefix) {
		line = line[len(promptPrefix):]
	}
	if line == ">>" {
		return ""
	}
	return line
}

// parseFrame recognizes a reply line of the form "@@MCPGW@@ <id> <json>".
func parseFrame(line string) (*Reply, bool, error) {
	if !strings.HasPrefix(line, replyMarker) {
		return nil, false, nil
	}
	rest := strings.TrimSpace(line[len(replyMarker):])
	id, body, found := strings.Cut(rest, " ")
	if !found {
		return nil, true, fmt.Errorf("%w: truncated frame %q", ErrProtocol, line)
	}

	var reply Reply
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		return nil, true, fmt.Errorf("%w: invalid frame for %s: %v", ErrProtocol, id, err)
	}
	if reply.ID == "" {
		reply.ID = id
	}
	if reply.Error != nil {
		reply.Error.Stack = userFrames(reply.Error.Stack)
	}
	return &reply, true, nil
}

// userFrames drops the helper's own frames so error locations point at
// user code.
func userFrames(stack []StackFrame) []StackFrame {
	var out []StackFrame
	for _, f := range stack {
		if strings.HasPrefix(f.Name, helperFunction) {
			continue
		}
		out = append(out, f)
	}
	return out
}
