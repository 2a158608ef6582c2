package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// This file is the typed method facade: one narrow method per analyzer
// capability, plus the consolidated Analyze call. Each method knows its
// JSON-RPC method name and response shape, validates the shape once at
// this boundary, and normalizes malformed responses to empty defaults —
// a malformed response is an analyzer-side bug the editor session should
// survive, not crash on.

// Parse parses Pike source and returns its symbols and observed
// dependencies.
func (b *Bridge) Parse(ctx context.Context, text, filename string) (*ParseResult, error) {
	raw, err := b.Send(ctx, Call{
		Method:      "parse",
		Params:      map[string]any{"code": text, "filename": filename},
		Fingerprint: Fingerprint("parse", filename, text),
		Cacheable:   true,
		Filename:    filename,
	})
	if err != nil {
		return nil, err
	}
	return decodeParse(raw, b.logger), nil
}

// Tokenize lexes Pike source. Tokenize is deduplicated but not cached:
// it is typically called on transient editor text.
func (b *Bridge) Tokenize(ctx context.Context, text string) (*TokenizeResult, error) {
	raw, err := b.Send(ctx, Call{
		Method:      "tokenize",
		Params:      map[string]any{"code": text},
		Fingerprint: Fingerprint("tokenize", text),
	})
	if err != nil {
		return nil, err
	}
	return decodeTokenize(raw, b.logger), nil
}

// Compile compiles Pike source and returns diagnostics plus observed
// dependencies.
func (b *Bridge) Compile(ctx context.Context, text, filename string) (*CompileResult, error) {
	raw, err := b.Send(ctx, Call{
		Method:      "compile",
		Params:      map[string]any{"code": text, "filename": filename},
		Fingerprint: Fingerprint("compile", filename, text),
		Cacheable:   true,
		Filename:    filename,
	})
	if err != nil {
		return nil, err
	}
	return decodeCompile(raw, b.logger), nil
}

// Introspect compiles Pike source and reports the program's symbols and
// inherits as seen by the runtime.
func (b *Bridge) Introspect(ctx context.Context, text, filename string) (*IntrospectResult, error) {
	raw, err := b.Send(ctx, Call{
		Method:      "introspect",
		Params:      map[string]any{"code": text, "filename": filename},
		Fingerprint: Fingerprint("introspect", filename, text),
		Cacheable:   true,
		Filename:    filename,
	})
	if err != nil {
		return nil, err
	}
	return decodeIntrospect(raw, b.logger), nil
}

// ResolveStdlib resolves a Pike stdlib module (e.g. "Stdio.File") to its
// symbols and documentation. Stdlib contents do not change within an
// analyzer session, so results are cached.
func (b *Bridge) ResolveStdlib(ctx context.Context, moduleName string) (*StdlibModule, error) {
	raw, err := b.Send(ctx, Call{
		Method:      "resolve",
		Params:      map[string]any{"module": moduleName},
		Fingerprint: Fingerprint("resolve", moduleName),
		Cacheable:   true,
	})
	if err != nil {
		return nil, err
	}
	return decodeStdlibModule(raw, b.logger), nil
}

// FindOccurrences reports every identifier occurrence in the given text.
func (b *Bridge) FindOccurrences(ctx context.Context, text string) (*OccurrencesResult, error) {
	raw, err := b.Send(ctx, Call{
		Method:      "findOccurrences",
		Params:      map[string]any{"code": text},
		Fingerprint: Fingerprint("findOccurrences", text),
	})
	if err != nil {
		return nil, err
	}
	return decodeOccurrences(raw, b.logger), nil
}

// AnalyzeUninitialized reports uses of variables before any assignment.
func (b *Bridge) AnalyzeUninitialized(ctx context.Context, text, filename string) (*UninitializedResult, error) {
	raw, err := b.Send(ctx, Call{
		Method:      "analyzeUninitialized",
		Params:      map[string]any{"code": text, "filename": filename},
		Fingerprint: Fingerprint("analyzeUninitialized", filename, text),
	})
	if err != nil {
		return nil, err
	}
	return decodeUninitialized(raw, b.logger), nil
}

// Version probes the analyzer's protocol version.
func (b *Bridge) Version(ctx context.Context) (*VersionInfo, error) {
	raw, err := b.Send(ctx, Call{Method: "version"})
	if err != nil {
		return nil, err
	}
	var info VersionInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("%w: version: %v", ErrMalformedResponse, err)
	}
	return &info, nil
}

// Analyze requests several capabilities in one subprocess round trip.
// Capabilities fail independently: a capability that errored on the
// analyzer side appears in Failures while the rest are populated, and the
// overall call still succeeds. Per-capability payloads decode through the
// same functions as the narrow methods, so Analyze(text, ["parse"]) and
// Parse(text) yield structurally identical results.
func (b *Bridge) Analyze(ctx context.Context, text string, capabilities []Capability, filename string, version int) (*AnalyzeResult, error) {
	if len(capabilities) == 0 {
		capabilities = []Capability{CapabilityParse, CapabilityDiagnostics}
	}

	caps := make([]string, len(capabilities))
	for i, c := range capabilities {
		caps[i] = string(c)
	}
	// Fingerprint over the sorted capability set so request order does not
	// defeat dedup.
	sorted := append([]string(nil), caps...)
	sort.Strings(sorted)

	raw, err := b.Send(ctx, Call{
		Method: "analyze",
		Params: map[string]any{
			"code":         text,
			"filename":     filename,
			"version":      version,
			"capabilities": caps,
		},
		Fingerprint: Fingerprint("analyze", filename, strconv.Itoa(version), strings.Join(sorted, ","), text),
		Cacheable:   true,
		Filename:    filename,
	})
	if err != nil {
		return nil, err
	}
	return b.decodeAnalyze(raw, capabilities), nil
}

// decodeAnalyze splits a consolidated response into the legacy
// per-capability shapes.
func (b *Bridge) decodeAnalyze(raw json.RawMessage, capabilities []Capability) *AnalyzeResult {
	out := &AnalyzeResult{
		Failures: make(map[Capability]*ProtocolError),
	}

	var envelope struct {
		Result   map[Capability]json.RawMessage `json:"result"`
		Failures map[Capability]*ProtocolError  `json:"failures"`
		Perf     *struct {
			CacheHit bool `json:"cache_hit"`
		} `json:"_perf"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		b.logger.Warn("malformed analyze envelope; returning empty result", zap.Error(err))
		for _, c := range capabilities {
			out.Failures[c] = &ProtocolError{Kind: "MalformedResponse", Msg: err.Error()}
		}
		return out
	}
	if envelope.Perf != nil {
		out.CacheHit = envelope.Perf.CacheHit
	}

	for _, c := range capabilities {
		if failure, ok := envelope.Failures[c]; ok && failure != nil {
			out.Failures[c] = failure
			continue
		}
		payload, ok := envelope.Result[c]
		if !ok {
			out.Failures[c] = &ProtocolError{Kind: "MissingCapability", Msg: string(c) + " absent from analyze response"}
			continue
		}
		switch c {
		case CapabilityParse:
			out.Parse = decodeParse(payload, b.logger)
		case CapabilityTokenize:
			out.Tokens = decodeTokenize(payload, b.logger)
		case CapabilityIntrospect:
			out.Introspect = decodeIntrospect(payload, b.logger)
		case CapabilityDiagnostics:
			out.Diagnostics = decodeDiagnostics(payload, b.logger)
		default:
			b.logger.Warn("unrecognized capability in analyze response", zap.String("capability", string(c)))
		}
	}
	return out
}

// --- Response decoding ---

// Each decoder probes the loosely-typed payload for the one field that
// defines its shape before committing to a full unmarshal. On any
// mismatch it returns an empty default and logs; it never fails.

func decodeParse(raw json.RawMessage, logger *zap.Logger) *ParseResult {
	empty := &ParseResult{Symbols: []Symbol{}}
	if !gjson.GetBytes(raw, "symbols").IsArray() {
		logger.Warn("parse response has no symbols array; normalized to empty",
			zap.Error(ErrMalformedResponse))
		return empty
	}
	var res ParseResult
	if err := json.Unmarshal(raw, &res); err != nil {
		logger.Warn("parse response undecodable; normalized to empty", zap.Error(err))
		return empty
	}
	if res.Symbols == nil {
		res.Symbols = []Symbol{}
	}
	return &res
}

func decodeTokenize(raw json.RawMessage, logger *zap.Logger) *TokenizeResult {
	empty := &TokenizeResult{Tokens: []Token{}}
	if !gjson.GetBytes(raw, "tokens").IsArray() {
		logger.Warn("tokenize response has no tokens array; normalized to empty",
			zap.Error(ErrMalformedResponse))
		return empty
	}
	var res TokenizeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		logger.Warn("tokenize response undecodable; normalized to empty", zap.Error(err))
		return empty
	}
	if res.Tokens == nil {
		res.Tokens = []Token{}
	}
	return &res
}

func decodeCompile(raw json.RawMessage, logger *zap.Logger) *CompileResult {
	empty := &CompileResult{Diagnostics: []Diagnostic{}}
	if !gjson.GetBytes(raw, "diagnostics").Exists() {
		logger.Warn("compile response has no diagnostics; normalized to empty",
			zap.Error(ErrMalformedResponse))
		return empty
	}
	var res CompileResult
	if err := json.Unmarshal(raw, &res); err != nil {
		logger.Warn("compile response undecodable; normalized to empty", zap.Error(err))
		return empty
	}
	if res.Diagnostics == nil {
		res.Diagnostics = []Diagnostic{}
	}
	return &res
}

func decodeIntrospect(raw json.RawMessage, logger *zap.Logger) *IntrospectResult {
	empty := &IntrospectResult{Symbols: []Symbol{}}
	if !gjson.GetBytes(raw, "symbols").IsArray() {
		logger.Warn("introspect response has no symbols array; normalized to empty",
			zap.Error(ErrMalformedResponse))
		return empty
	}
	var res IntrospectResult
	if err := json.Unmarshal(raw, &res); err != nil {
		logger.Warn("introspect response undecodable; normalized to empty", zap.Error(err))
		return empty
	}
	if res.Symbols == nil {
		res.Symbols = []Symbol{}
	}
	return &res
}

func decodeDiagnostics(raw json.RawMessage, logger *zap.Logger) *DiagnosticsResult {
	empty := &DiagnosticsResult{Diagnostics: []Diagnostic{}}
	if !gjson.GetBytes(raw, "diagnostics").IsArray() {
		logger.Warn("diagnostics response has no diagnostics array; normalized to empty",
			zap.Error(ErrMalformedResponse))
		return empty
	}
	var res DiagnosticsResult
	if err := json.Unmarshal(raw, &res); err != nil {
		logger.Warn("diagnostics response undecodable; normalized to empty", zap.Error(err))
		return empty
	}
	if res.Diagnostics == nil {
		res.Diagnostics = []Diagnostic{}
	}
	return &res
}

func decodeStdlibModule(raw json.RawMessage, logger *zap.Logger) *StdlibModule {
	empty := &StdlibModule{Symbols: []Symbol{}}
	if !gjson.GetBytes(raw, "name").Exists() {
		logger.Warn("resolve response has no name; normalized to empty",
			zap.Error(ErrMalformedResponse))
		return empty
	}
	var res StdlibModule
	if err := json.Unmarshal(raw, &res); err != nil {
		logger.Warn("resolve response undecodable; normalized to empty", zap.Error(err))
		return empty
	}
	if res.Symbols == nil {
		res.Symbols = []Symbol{}
	}
	return &res
}

func decodeOccurrences(raw json.RawMessage, logger *zap.Logger) *OccurrencesResult {
	empty := &OccurrencesResult{Occurrences: []Occurrence{}}
	if !gjson.GetBytes(raw, "occurrences").IsArray() {
		logger.Warn("findOccurrences response has no occurrences array; normalized to empty",
			zap.Error(ErrMalformedResponse))
		return empty
	}
	var res OccurrencesResult
	if err := json.Unmarshal(raw, &res); err != nil {
		logger.Warn("findOccurrences response undecodable; normalized to empty", zap.Error(err))
		return empty
	}
	if res.Occurrences == nil {
		res.Occurrences = []Occurrence{}
	}
	return &res
}

func decodeUninitialized(raw json.RawMessage, logger *zap.Logger) *UninitializedResult {
	empty := &UninitializedResult{Variables: []Occurrence{}}
	if !gjson.GetBytes(raw, "variables").IsArray() {
		logger.Warn("analyzeUninitialized response has no variables array; normalized to empty",
			zap.Error(ErrMalformedResponse))
		return empty
	}
	var res UninitializedResult
	if err := json.Unmarshal(raw, &res); err != nil {
		logger.Warn("analyzeUninitialized response undecodable; normalized to empty", zap.Error(err))
		return empty
	}
	if res.Variables == nil {
		res.Variables = []Occurrence{}
	}
	return &res
}
