// Package bridge provides the IPC bridge to the Pike analyzer subprocess.
//
// The language server does no Pike parsing or compilation itself; all
// analysis is delegated to an external Pike process speaking line-delimited
// JSON-RPC over stdio. This package wraps that process and turns its raw
// line stream into a correlated, typed request/response API.
//
// # Architecture
//
// The package is organized around three layers:
//
//   - Process: spawns and supervises exactly one analyzer process and
//     provides line-oriented bidirectional I/O. Pure plumbing; it contains
//     no request/response correlation.
//   - Bridge: correlates requests and responses by id, enforces per-request
//     timeouts, deduplicates concurrent identical requests, caches results
//     by content fingerprint, and survives analyzer crashes and restarts.
//   - Typed facade (pike.go): narrow methods such as Parse, Tokenize,
//     Compile, and Introspect, plus the consolidated Analyze call that
//     bundles several capabilities into one subprocess round trip.
//
// # Quick Start
//
//	b := bridge.New(bridge.Config{
//	    Command: "pike",
//	    Args:    []string{"/usr/lib/pike-lsp/analyzer.pike"},
//	}, logger)
//
//	if err := b.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Stop()
//
//	res, err := b.Parse(ctx, "int x = 5;", "a.pike")
//
// # Wire Protocol
//
// Each request is a single newline-terminated JSON object:
//
//	{"id": 1, "method": "parse", "params": {"code": "...", "filename": "a.pike"}}
//
// Responses carry either a result or a flat error:
//
//	{"id": 1, "result": {"symbols": [...]}}
//	{"id": 1, "error": {"kind": "CompilationError", "msg": "...", "line": 3}}
//
// Stderr is never protocol data; it is captured line by line and forwarded
// to the logger.
//
// # Failure Model
//
// Spawn failures are reported synchronously from Start. A crash after spawn
// fails every outstanding request with ErrCrashed; the bridge is then
// stopped and an explicit Restart is required. A single request timeout
// does not condemn the process: the entry is dropped, a late response for
// it is discarded, and the consecutive-timeout counter is left for callers
// to build a restart policy on.
package bridge
