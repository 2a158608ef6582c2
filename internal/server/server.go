package server

import (
	"context"
	"sync"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"
	"go.uber.org/zap"

	"github.com/poppa/pike-lsp-sub006/internal/bridge"
)

const serverName = "pike-lsp"

// analyzer is the slice of the bridge facade the serving surface consumes.
type analyzer interface {
	Analyze(ctx context.Context, text string, capabilities []bridge.Capability, filename string, version int) (*bridge.AnalyzeResult, error)
}

// depObserver receives file dependencies observed in analyzer responses.
type depObserver interface {
	Observe(file string, deps []string)
	Forget(file string)
}

// Server binds the LSP handler to the analyzer bridge.
type Server struct {
	handler protocol.Handler
	glspSrv *glspserver.Server
	docs    *DocumentStore

	analyzer analyzer
	deps     depObserver
	logger   *zap.Logger
	version  string
	onRoot   func(rootPath string)

	// Notification function captured from the latest request context, for
	// publishing diagnostics outside a request handler.
	notifyMu sync.Mutex
	notify   glsp.NotifyFunc
}

// Option configures the server.
type Option func(*Server)

// WithDependencyObserver feeds observed file dependencies into g.
func WithDependencyObserver(g depObserver) Option {
	return func(s *Server) { s.deps = g }
}

// WithVersion sets the version reported in the initialize result.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithRootHandler registers a callback invoked with the workspace root
// path once the client announces it during initialize. Used to point the
// on-disk watcher at the workspace.
func WithRootHandler(fn func(rootPath string)) Option {
	return func(s *Server) { s.onRoot = fn }
}

// New builds a server around the given analyzer bridge.
func New(a analyzer, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		docs:     NewDocumentStore(),
		analyzer: a,
		logger:   logger,
		version:  "dev",
	}
	for _, o := range opts {
		o(s)
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentDocumentSymbol: s.textDocumentDocumentSymbol,
		TextDocumentHover:          s.textDocumentHover,
	}

	s.glspSrv = glspserver.NewServer(&s.handler, serverName, false)
	return s
}

// RunStdio serves LSP over stdin/stdout. It blocks until the client
// disconnects.
func (s *Server) RunStdio() error {
	return s.glspSrv.RunStdio()
}

func (s *Server) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	s.captureNotify(ctx)

	capabilities := s.handler.CreateServerCapabilities()
	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	rootPath := ""
	if params.RootURI != nil {
		rootPath = uriToPath(string(*params.RootURI))
	} else if params.RootPath != nil {
		rootPath = *params.RootPath
	}
	if rootPath != "" && s.onRoot != nil {
		s.onRoot(rootPath)
	}

	s.logger.Info("client connected", zap.String("root", rootPath))

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    serverName,
			Version: &s.version,
		},
	}, nil
}

func (s *Server) initialized(ctx *glsp.Context, _ *protocol.InitializedParams) error {
	s.captureNotify(ctx)
	return nil
}

func (s *Server) shutdown(*glsp.Context) error {
	s.logger.Info("shutdown requested", zap.Int("open_documents", s.docs.Len()))
	return nil
}

func (s *Server) setTrace(*glsp.Context, *protocol.SetTraceParams) error {
	return nil
}

func (s *Server) captureNotify(ctx *glsp.Context) {
	s.notifyMu.Lock()
	s.notify = ctx.Notify
	s.notifyMu.Unlock()
}

func (s *Server) sendNotification(method string, params any) {
	s.notifyMu.Lock()
	fn := s.notify
	s.notifyMu.Unlock()
	if fn != nil {
		fn(method, params)
	}
}

func boolPtr(b bool) *bool {
	return &b
}
