package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/poppa/pike-lsp-sub006/internal/bridge"
)

var parseFixture = bridge.ParseResult{
	Symbols: []bridge.Symbol{{Name: "main", Kind: "method", Line: 1}},
}

func TestURIConversion(t *testing.T) {
	assert.Equal(t, "/ws/a.pike", uriToPath("file:///ws/a.pike"))
	assert.Equal(t, "untitled:Untitled-1", uriToPath("untitled:Untitled-1"))
	assert.Equal(t, "file:///ws/a.pike", pathToURI("/ws/a.pike"))
	assert.Equal(t, "file:///ws/a.pike", pathToURI("file:///ws/a.pike"))
}

func TestSeverityMapping(t *testing.T) {
	tests := []struct {
		in   string
		want protocol.DiagnosticSeverity
	}{
		{"error", protocol.DiagnosticSeverityError},
		{"warning", protocol.DiagnosticSeverityWarning},
		{"Warning", protocol.DiagnosticSeverityWarning},
		{"warn", protocol.DiagnosticSeverityWarning},
		{"info", protocol.DiagnosticSeverityInformation},
		{"hint", protocol.DiagnosticSeverityHint},
		{"", protocol.DiagnosticSeverityError},
		{"fatal", protocol.DiagnosticSeverityError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, severityToLSP(tt.in), "severity %q", tt.in)
	}
}

func TestSymbolKindMapping(t *testing.T) {
	assert.Equal(t, protocol.SymbolKindClass, symbolKindToLSP("class"))
	assert.Equal(t, protocol.SymbolKindFunction, symbolKindToLSP("method"))
	assert.Equal(t, protocol.SymbolKindConstant, symbolKindToLSP("constant"))
	assert.Equal(t, protocol.SymbolKindModule, symbolKindToLSP("import"))
	assert.Equal(t, protocol.SymbolKindVariable, symbolKindToLSP("mystery"))
}

func TestLineRange_Clamps(t *testing.T) {
	r := lineRange(0, 0)
	assert.Equal(t, protocol.UInteger(0), r.Start.Line)
	assert.Equal(t, protocol.UInteger(0), r.Start.Character)

	r = lineRange(7, 4)
	assert.Equal(t, protocol.UInteger(6), r.Start.Line)
	assert.Equal(t, protocol.UInteger(3), r.Start.Character)
	assert.Equal(t, r.Start, r.End)
}

func TestDiagnosticsToLSP_SetsSource(t *testing.T) {
	out := diagnosticsToLSP([]bridge.Diagnostic{{Severity: "error", Message: "boom", Line: 2}})
	assert.Len(t, out, 1)
	assert.Equal(t, "pike", *out[0].Source)
	assert.Equal(t, "boom", out[0].Message)
}

func TestDiagnosticsToLSP_NilInput(t *testing.T) {
	out := diagnosticsToLSP(nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}
