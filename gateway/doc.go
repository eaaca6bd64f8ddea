// Package gateway turns tool calls into engine operations.
//
// Every operation is an entry in a plain dispatch table. Dispatch validates
// the arguments against the entry's JSON schema, runs the handler with the
// shared engine session, and folds any failure into a Result with a stable
// error code. Typed errors never cross Dispatch.
//
// Usage:
//
//	gw, err := gateway.New(cfg, logger, store, manager)
//	res := gw.Dispatch(ctx, "evaluate", map[string]any{"code": "2 + 3 * 4"})
//	if res.Success {
//	    fmt.Println(res.Value)
//	}
package gateway
