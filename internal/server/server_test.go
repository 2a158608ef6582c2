package server

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"go.uber.org/zap/zaptest"

	"github.com/poppa/pike-lsp-sub006/internal/bridge"
)

// stubAnalyzer returns a canned result (or error) and records calls.
type stubAnalyzer struct {
	mu     sync.Mutex
	result *bridge.AnalyzeResult
	err    error
	calls  []string
}

func (a *stubAnalyzer) Analyze(_ context.Context, _ string, _ []bridge.Capability, filename string, _ int) (*bridge.AnalyzeResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, filename)
	if a.err != nil {
		return nil, a.err
	}
	return a.result, nil
}

func (a *stubAnalyzer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

// recordingGraph records Observe and Forget calls.
type recordingGraph struct {
	mu        sync.Mutex
	observed  map[string][]string
	forgotten []string
}

func (g *recordingGraph) Observe(file string, deps []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.observed == nil {
		g.observed = make(map[string][]string)
	}
	g.observed[file] = deps
}

func (g *recordingGraph) Forget(file string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.forgotten = append(g.forgotten, file)
}

func capturingContext() (*glsp.Context, *[]*protocol.PublishDiagnosticsParams) {
	var captured []*protocol.PublishDiagnosticsParams
	ctx := &glsp.Context{
		Notify: func(method string, params any) {
			if method == protocol.ServerTextDocumentPublishDiagnostics {
				captured = append(captured, params.(*protocol.PublishDiagnosticsParams))
			}
		},
	}
	return ctx, &captured
}

func testResult() *bridge.AnalyzeResult {
	return &bridge.AnalyzeResult{
		Parse: &bridge.ParseResult{
			Symbols: []bridge.Symbol{
				{Name: "create", Kind: "method", Type: "void", Line: 3, Doc: "Constructor."},
				{Name: "counter", Kind: "variable", Type: "int", Line: 1},
			},
			Dependencies: []string{"/ws/util.pike"},
		},
		Diagnostics: &bridge.DiagnosticsResult{
			Diagnostics: []bridge.Diagnostic{
				{Severity: "error", Message: "syntax error", Line: 5, Column: 2},
				{Severity: "warning", Message: "unused variable", Line: 1, Column: 5},
			},
		},
		Failures: map[bridge.Capability]*bridge.ProtocolError{},
	}
}

func openParams(uri, text string, version int) *protocol.DidOpenTextDocumentParams {
	return &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:     protocol.DocumentUri(uri),
			Version: protocol.Integer(version),
			Text:    text,
		},
	}
}

func TestInitialize_ReportsRootToHandler(t *testing.T) {
	var gotRoot string
	s := New(&stubAnalyzer{result: testResult()}, zaptest.NewLogger(t),
		WithRootHandler(func(root string) { gotRoot = root }))
	ctx, _ := capturingContext()

	rootURI := protocol.DocumentUri("file:///ws")
	result, err := s.initialize(ctx, &protocol.InitializeParams{RootURI: &rootURI})
	require.NoError(t, err)
	require.IsType(t, protocol.InitializeResult{}, result)
	assert.Equal(t, "/ws", gotRoot)
}

func TestDidOpen_PublishesDiagnostics(t *testing.T) {
	a := &stubAnalyzer{result: testResult()}
	s := New(a, zaptest.NewLogger(t))
	ctx, captured := capturingContext()

	require.NoError(t, s.textDocumentDidOpen(ctx, openParams("file:///ws/main.pike", "int counter;", 1)))

	require.Len(t, *captured, 1)
	params := (*captured)[0]
	assert.Equal(t, "file:///ws/main.pike", string(params.URI))
	require.Len(t, params.Diagnostics, 2)
	assert.Equal(t, "syntax error", params.Diagnostics[0].Message)
	assert.Equal(t, protocol.DiagnosticSeverityError, *params.Diagnostics[0].Severity)
	assert.Equal(t, protocol.DiagnosticSeverityWarning, *params.Diagnostics[1].Severity)

	// 1-based analyzer positions become 0-based LSP positions.
	assert.Equal(t, protocol.UInteger(4), params.Diagnostics[0].Range.Start.Line)
	assert.Equal(t, protocol.UInteger(1), params.Diagnostics[0].Range.Start.Character)
}

func TestDidOpen_FeedsDependencyGraph(t *testing.T) {
	a := &stubAnalyzer{result: testResult()}
	g := &recordingGraph{}
	s := New(a, zaptest.NewLogger(t), WithDependencyObserver(g))
	ctx, _ := capturingContext()

	require.NoError(t, s.textDocumentDidOpen(ctx, openParams("file:///ws/main.pike", "int counter;", 1)))

	assert.Equal(t, []string{"/ws/util.pike"}, g.observed["/ws/main.pike"])
}

func TestAnalyzeFailure_PublishesEmptyDiagnostics(t *testing.T) {
	a := &stubAnalyzer{err: errors.New("analyzer crashed")}
	s := New(a, zaptest.NewLogger(t))
	ctx, captured := capturingContext()

	// The handler must not return the bridge error to the client.
	require.NoError(t, s.textDocumentDidOpen(ctx, openParams("file:///ws/main.pike", "int x;", 1)))

	require.Len(t, *captured, 1)
	assert.Empty(t, (*captured)[0].Diagnostics)
}

func TestDidChange_ReanalyzesWithNewText(t *testing.T) {
	a := &stubAnalyzer{result: testResult()}
	s := New(a, zaptest.NewLogger(t))
	ctx, captured := capturingContext()

	require.NoError(t, s.textDocumentDidOpen(ctx, openParams("file:///ws/main.pike", "int a;", 1)))
	require.NoError(t, s.textDocumentDidChange(ctx, &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: "file:///ws/main.pike"},
			Version:                2,
		},
		ContentChanges: []any{
			protocol.TextDocumentContentChangeEventWhole{Text: "int a; int b;"},
		},
	}))

	assert.Equal(t, 2, a.callCount())
	require.Len(t, *captured, 2)
	require.NotNil(t, (*captured)[1].Version)
	assert.Equal(t, protocol.UInteger(2), *(*captured)[1].Version)

	doc := s.docs.Get("file:///ws/main.pike")
	require.NotNil(t, doc)
	assert.Equal(t, "int a; int b;", doc.Text)
}

func TestDidClose_ClearsDiagnosticsAndForgetsDeps(t *testing.T) {
	a := &stubAnalyzer{result: testResult()}
	g := &recordingGraph{}
	s := New(a, zaptest.NewLogger(t), WithDependencyObserver(g))
	ctx, captured := capturingContext()

	require.NoError(t, s.textDocumentDidOpen(ctx, openParams("file:///ws/main.pike", "int a;", 1)))
	require.NoError(t, s.textDocumentDidClose(ctx, &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: "file:///ws/main.pike"},
	}))

	assert.Nil(t, s.docs.Get("file:///ws/main.pike"))
	assert.Equal(t, []string{"/ws/main.pike"}, g.forgotten)

	// The close publishes an empty diagnostics set to clear the client.
	require.Len(t, *captured, 2)
	assert.Empty(t, (*captured)[1].Diagnostics)
}

func TestDocumentSymbol(t *testing.T) {
	a := &stubAnalyzer{result: testResult()}
	s := New(a, zaptest.NewLogger(t))
	ctx, _ := capturingContext()

	require.NoError(t, s.textDocumentDidOpen(ctx, openParams("file:///ws/main.pike", "int counter;", 1)))

	result, err := s.textDocumentDocumentSymbol(ctx, &protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: "file:///ws/main.pike"},
	})
	require.NoError(t, err)

	syms, ok := result.([]protocol.DocumentSymbol)
	require.True(t, ok, "expected []protocol.DocumentSymbol, got %T", result)
	require.Len(t, syms, 2)
	assert.Equal(t, "create", syms[0].Name)
	assert.Equal(t, protocol.SymbolKindFunction, syms[0].Kind)
	require.NotNil(t, syms[0].Detail)
	assert.Equal(t, "void", *syms[0].Detail)
}

func TestDocumentSymbol_UnknownDocument(t *testing.T) {
	s := New(&stubAnalyzer{result: testResult()}, zaptest.NewLogger(t))
	ctx, _ := capturingContext()

	result, err := s.textDocumentDocumentSymbol(ctx, &protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: "file:///ws/ghost.pike"},
	})
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestHover(t *testing.T) {
	a := &stubAnalyzer{result: testResult()}
	s := New(a, zaptest.NewLogger(t))
	ctx, _ := capturingContext()

	require.NoError(t, s.textDocumentDidOpen(ctx, openParams("file:///ws/main.pike", "int counter;", 1)))

	// Line 2 zero-based = line 3 in analyzer terms, where create lives.
	hover, err := s.textDocumentHover(ctx, &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: "file:///ws/main.pike"},
			Position:     protocol.Position{Line: 2, Character: 0},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, hover)
	assert.Contains(t, hover.Contents.(protocol.MarkupContent).Value, "void create")
	assert.Contains(t, hover.Contents.(protocol.MarkupContent).Value, "Constructor.")
}

func TestHover_NoSymbolOnLine(t *testing.T) {
	a := &stubAnalyzer{result: testResult()}
	s := New(a, zaptest.NewLogger(t))
	ctx, _ := capturingContext()

	require.NoError(t, s.textDocumentDidOpen(ctx, openParams("file:///ws/main.pike", "int counter;", 1)))

	hover, err := s.textDocumentHover(ctx, &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: "file:///ws/main.pike"},
			Position:     protocol.Position{Line: 40, Character: 0},
		},
	})
	require.NoError(t, err)
	assert.Nil(t, hover)
}
