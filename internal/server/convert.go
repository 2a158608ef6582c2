package server

import (
	"net/url"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/poppa/pike-lsp-sub006/internal/bridge"
)

// uriToPath converts a file:// URI to a filesystem path. Non-file URIs
// pass through unchanged so they still work as cache and graph keys.
func uriToPath(uri string) string {
	if !strings.HasPrefix(uri, "file://") {
		return uri
	}
	u, err := url.Parse(uri)
	if err != nil {
		return strings.TrimPrefix(uri, "file://")
	}
	return u.Path
}

// pathToURI converts a filesystem path to a file:// URI.
func pathToURI(path string) string {
	if strings.HasPrefix(path, "file://") {
		return path
	}
	return "file://" + path
}

// severityToLSP maps analyzer severity strings onto LSP severities.
// Unknown severities report as errors rather than vanishing.
func severityToLSP(severity string) protocol.DiagnosticSeverity {
	switch strings.ToLower(severity) {
	case "warning", "warn":
		return protocol.DiagnosticSeverityWarning
	case "info", "information":
		return protocol.DiagnosticSeverityInformation
	case "hint":
		return protocol.DiagnosticSeverityHint
	default:
		return protocol.DiagnosticSeverityError
	}
}

// symbolKindToLSP maps analyzer symbol kinds onto LSP symbol kinds.
func symbolKindToLSP(kind string) protocol.SymbolKind {
	switch strings.ToLower(kind) {
	case "class", "program":
		return protocol.SymbolKindClass
	case "method", "function":
		return protocol.SymbolKindFunction
	case "variable":
		return protocol.SymbolKindVariable
	case "constant":
		return protocol.SymbolKindConstant
	case "inherit":
		return protocol.SymbolKindInterface
	case "import", "module":
		return protocol.SymbolKindModule
	case "typedef":
		return protocol.SymbolKindTypeParameter
	case "enum":
		return protocol.SymbolKindEnum
	default:
		return protocol.SymbolKindVariable
	}
}

// lineRange builds a zero-width LSP range from the analyzer's 1-based
// line and column. Zero and negative positions clamp to the origin.
func lineRange(line, column int) protocol.Range {
	l := line - 1
	if l < 0 {
		l = 0
	}
	c := column - 1
	if c < 0 {
		c = 0
	}
	pos := protocol.Position{Line: protocol.UInteger(l), Character: protocol.UInteger(c)}
	return protocol.Range{Start: pos, End: pos}
}

// diagnosticsToLSP converts analyzer diagnostics to LSP diagnostics.
func diagnosticsToLSP(diags []bridge.Diagnostic) []protocol.Diagnostic {
	source := "pike"
	out := make([]protocol.Diagnostic, 0, len(diags))
	for _, d := range diags {
		sev := severityToLSP(d.Severity)
		out = append(out, protocol.Diagnostic{
			Range:    lineRange(d.Line, d.Column),
			Severity: &sev,
			Source:   &source,
			Message:  d.Message,
		})
	}
	return out
}

// symbolsToLSP converts analyzer symbols to LSP document symbols.
func symbolsToLSP(syms []bridge.Symbol) []protocol.DocumentSymbol {
	out := make([]protocol.DocumentSymbol, 0, len(syms))
	for _, s := range syms {
		r := lineRange(s.Line, s.Column)
		out = append(out, protocol.DocumentSymbol{
			Name:           s.Name,
			Detail:         detailFor(s),
			Kind:           symbolKindToLSP(s.Kind),
			Range:          r,
			SelectionRange: r,
		})
	}
	return out
}

func detailFor(s bridge.Symbol) *string {
	if s.Type == "" {
		return nil
	}
	detail := s.Type
	return &detail
}
