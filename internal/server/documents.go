package server

import (
	"sync"

	"github.com/poppa/pike-lsp-sub006/internal/bridge"
)

// Document is one open text document and its latest analysis.
type Document struct {
	URI     string
	Path    string
	Version int
	Text    string

	// Parse holds the most recent parse capability result for this
	// document, used to answer documentSymbol and hover without another
	// subprocess round trip. Nil until the first successful analyze.
	Parse *bridge.ParseResult
}

// DocumentStore tracks open documents by URI.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewDocumentStore returns an empty store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]*Document)}
}

// Open registers a document and returns it.
func (s *DocumentStore) Open(uri string, version int, text string) *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := &Document{
		URI:     uri,
		Path:    uriToPath(uri),
		Version: version,
		Text:    text,
	}
	s.docs[uri] = doc
	return doc
}

// Update replaces a document's content. Unknown URIs are opened implicitly;
// some clients send didChange for documents the server never saw opened.
func (s *DocumentStore) Update(uri string, version int, text string) *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uri]
	if !ok {
		doc = &Document{URI: uri, Path: uriToPath(uri)}
		s.docs[uri] = doc
	}
	doc.Version = version
	doc.Text = text
	doc.Parse = nil
	return doc
}

// Close forgets a document. Closing an unknown URI is a no-op.
func (s *DocumentStore) Close(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, uri)
}

// Get returns the document for uri, or nil.
func (s *DocumentStore) Get(uri string) *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[uri]
}

// All returns a snapshot of the open documents.
func (s *DocumentStore) All() []*Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, doc)
	}
	return out
}

// Len reports the number of open documents.
func (s *DocumentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
