// Package server is the LSP serving surface for pike-lsp.
//
// It wires a glsp protocol_3_16.Handler to the analyzer bridge: document
// lifecycle notifications trigger a consolidated analyze call, diagnostics
// are published back to the client, and observed file dependencies feed
// the cross-file invalidation graph. The package deliberately stays thin;
// all Pike knowledge lives on the other side of the bridge.
package server
