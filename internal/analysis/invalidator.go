package analysis

import "go.uber.org/zap"

// Evictor drops every cached analysis result computed from one file.
// Implemented by the bridge.
type Evictor interface {
	EvictFile(filename string)
}

// Invalidator connects file-change events to the dependency graph and the
// bridge's result cache.
type Invalidator struct {
	graph   *Graph
	evictor Evictor
	logger  *zap.Logger
}

// NewInvalidator creates an invalidator over the given graph and cache.
func NewInvalidator(graph *Graph, evictor Evictor, logger *zap.Logger) *Invalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invalidator{graph: graph, evictor: evictor, logger: logger}
}

// FileChanged invalidates the changed file and, transitively, every file
// observed to depend on it. Returns the full invalidation set.
func (inv *Invalidator) FileChanged(path string) []string {
	set := inv.graph.InvalidationSet(path)
	for _, stale := range set {
		inv.evictor.EvictFile(stale)
	}
	if len(set) > 1 {
		inv.logger.Debug("cascading invalidation",
			zap.String("changed", path),
			zap.Int("affected", len(set)))
	}
	return set
}

// FileRemoved invalidates dependents and drops the file from the graph.
func (inv *Invalidator) FileRemoved(path string) []string {
	set := inv.FileChanged(path)
	inv.graph.Forget(path)
	return set
}
