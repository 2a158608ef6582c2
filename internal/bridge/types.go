package bridge

import "encoding/json"

// Capability is one named unit of analysis, requestable individually or
// bundled into a consolidated analyze call.
type Capability string

const (
	CapabilityParse       Capability = "parse"
	CapabilityIntrospect  Capability = "introspect"
	CapabilityDiagnostics Capability = "diagnostics"
	CapabilityTokenize    Capability = "tokenize"
)

// request is one line written to the analyzer's stdin.
type request struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// response is one line read from the analyzer's stdout.
type response struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ProtocolError  `json:"error,omitempty"`
}

// Symbol is one declaration reported by the analyzer.
type Symbol struct {
	Name      string   `json:"name"`
	Kind      string   `json:"kind"`
	Type      string   `json:"type,omitempty"`
	Modifiers []string `json:"modifiers,omitempty"`
	Line      int      `json:"line"`
	Column    int      `json:"column,omitempty"`
	Doc       string   `json:"doc,omitempty"`
}

// Token is one lexer token.
type Token struct {
	Type   string `json:"type"`
	Value  string `json:"value"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// Diagnostic is one analyzer-reported problem in a file.
type Diagnostic struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Line     int    `json:"line"`
	Column   int    `json:"column,omitempty"`
}

// Occurrence is one appearance of an identifier in a file.
type Occurrence struct {
	Name   string `json:"name"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// ParseResult is the response shape of the parse method.
type ParseResult struct {
	Symbols []Symbol `json:"symbols"`
	// Dependencies lists the files this file was observed to import or
	// inherit, used for cross-file cache invalidation.
	Dependencies []string `json:"dependencies,omitempty"`
}

// TokenizeResult is the response shape of the tokenize method.
type TokenizeResult struct {
	Tokens []Token `json:"tokens"`
}

// CompileResult is the response shape of the compile method.
type CompileResult struct {
	OK           bool         `json:"ok"`
	Diagnostics  []Diagnostic `json:"diagnostics"`
	Dependencies []string     `json:"dependencies,omitempty"`
}

// IntrospectResult is the response shape of the introspect method.
type IntrospectResult struct {
	Symbols  []Symbol `json:"symbols"`
	Inherits []string `json:"inherits,omitempty"`
}

// DiagnosticsResult is the diagnostics capability payload.
type DiagnosticsResult struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// StdlibModule is the response shape of the resolveStdlib method.
type StdlibModule struct {
	Name    string   `json:"name"`
	Doc     string   `json:"doc,omitempty"`
	Symbols []Symbol `json:"symbols"`
}

// OccurrencesResult is the response shape of the findOccurrences method.
type OccurrencesResult struct {
	Occurrences []Occurrence `json:"occurrences"`
}

// UninitializedResult is the response shape of the analyzeUninitialized
// method: uses of variables before any assignment.
type UninitializedResult struct {
	Variables []Occurrence `json:"variables"`
}

// AnalyzeResult is the result of a consolidated analyze call. Only the
// fields for requested capabilities are populated; a capability that
// failed independently appears in Failures instead, and its field is nil.
type AnalyzeResult struct {
	Parse       *ParseResult
	Tokens      *TokenizeResult
	Introspect  *IntrospectResult
	Diagnostics *DiagnosticsResult

	// Failures records per-capability errors. Partial failure is expected:
	// the overall call succeeds as long as the envelope itself decodes.
	Failures map[Capability]*ProtocolError

	// CacheHit reports whether the analyzer answered from its own
	// compiled-program cache, as carried in the response's _perf block.
	CacheHit bool
}

// VersionInfo is the response shape of the version handshake probe.
type VersionInfo struct {
	Version string `json:"version"`
}
