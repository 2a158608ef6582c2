package server

import (
	"context"
	"strings"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"go.uber.org/zap"

	"github.com/poppa/pike-lsp-sub006/internal/bridge"
)

func (s *Server) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	s.captureNotify(ctx)
	doc := s.docs.Open(string(params.TextDocument.URI), int(params.TextDocument.Version), params.TextDocument.Text)
	s.analyzeAndPublish(doc)
	return nil
}

func (s *Server) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	s.captureNotify(ctx)

	var text string
	var seen bool
	for _, change := range params.ContentChanges {
		switch c := change.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			text = c.Text
			seen = true
		case protocol.TextDocumentContentChangeEvent:
			// Full sync is advertised, so a ranged event still carries the
			// whole document text.
			text = c.Text
			seen = true
		}
	}
	if !seen {
		return nil
	}

	doc := s.docs.Update(string(params.TextDocument.URI), int(params.TextDocument.Version), text)
	s.analyzeAndPublish(doc)
	return nil
}

func (s *Server) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	s.captureNotify(ctx)
	uri := string(params.TextDocument.URI)
	if doc := s.docs.Get(uri); doc != nil && s.deps != nil {
		s.deps.Forget(doc.Path)
	}
	s.docs.Close(uri)

	// Clear diagnostics for the closed document.
	s.sendNotification(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentUri(uri),
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// analyzeAndPublish runs a consolidated analyze for the document and
// publishes the resulting diagnostics. Bridge failures degrade to empty
// diagnostics; an analyzer problem must never take the editor session down.
func (s *Server) analyzeAndPublish(doc *Document) {
	res, err := s.analyzer.Analyze(context.Background(), doc.Text,
		[]bridge.Capability{bridge.CapabilityParse, bridge.CapabilityDiagnostics},
		doc.Path, doc.Version)
	if err != nil {
		s.logger.Warn("analyze failed; publishing empty diagnostics",
			zap.String("uri", doc.URI), zap.Error(err))
		s.publishDiagnostics(doc, nil)
		return
	}

	for name, failure := range res.Failures {
		s.logger.Warn("capability failed",
			zap.String("uri", doc.URI),
			zap.String("capability", string(name)),
			zap.String("kind", failure.Kind),
			zap.String("msg", failure.Msg))
	}

	if res.Parse != nil {
		doc.Parse = res.Parse
		if s.deps != nil {
			s.deps.Observe(doc.Path, res.Parse.Dependencies)
		}
	}

	var diags []bridge.Diagnostic
	if res.Diagnostics != nil {
		diags = res.Diagnostics.Diagnostics
	}
	s.publishDiagnostics(doc, diags)
}

func (s *Server) publishDiagnostics(doc *Document, diags []bridge.Diagnostic) {
	version := protocol.UInteger(doc.Version)
	s.sendNotification(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentUri(doc.URI),
		Version:     &version,
		Diagnostics: diagnosticsToLSP(diags),
	})
}

func (s *Server) textDocumentDocumentSymbol(ctx *glsp.Context, params *protocol.DocumentSymbolParams) (any, error) {
	s.captureNotify(ctx)
	doc := s.docs.Get(string(params.TextDocument.URI))
	if doc == nil || doc.Parse == nil {
		return []protocol.DocumentSymbol{}, nil
	}
	return symbolsToLSP(doc.Parse.Symbols), nil
}

func (s *Server) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	s.captureNotify(ctx)
	doc := s.docs.Get(string(params.TextDocument.URI))
	if doc == nil || doc.Parse == nil {
		return nil, nil
	}

	line := int(params.Position.Line) + 1
	sym := symbolAtLine(doc.Parse.Symbols, line)
	if sym == nil {
		return nil, nil
	}

	var b strings.Builder
	if sym.Type != "" {
		b.WriteString(sym.Type)
		b.WriteString(" ")
	}
	b.WriteString(sym.Name)
	if sym.Doc != "" {
		b.WriteString("\n\n")
		b.WriteString(sym.Doc)
	}

	r := lineRange(sym.Line, sym.Column)
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindPlainText,
			Value: b.String(),
		},
		Range: &r,
	}, nil
}

// symbolAtLine returns the symbol declared on the given 1-based line, or
// nil when the line holds no known declaration.
func symbolAtLine(syms []bridge.Symbol, line int) *bridge.Symbol {
	for i := range syms {
		if syms[i].Line == line {
			return &syms[i]
		}
	}
	return nil
}
