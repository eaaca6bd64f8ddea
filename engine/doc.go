// Package engine manages the MATLAB engine session behind the gateway.
//
// A Manager owns at most one live Session and starts it lazily through a
// Starter. The production Starter, Launcher, runs MATLAB as a child process
// with an embedded helper function (mcpgw_serve.m) on its path. Requests are
// written to the engine's stdin as base64 JSON, and every reply comes back
// as one framed stdout line. Any other stdout text is printed output. Capture
// routes that text into a bounded buffer for the duration of a call.
//
// The engine's base workspace is shared by every call for the lifetime of
// the process. Nothing here isolates or resets it.
//
// Usage:
//
//	mgr := engine.NewLauncherManager(logger, cfg)
//	err := mgr.Do(ctx, func(s engine.Session) error {
//	    out, err := engine.Capture(s, 4000, func() error {
//	        v, err := engine.Eval(ctx, s, "2 + 3 * 4", 100)
//	        ...
//	    })
//	    ...
//	})
package engine
