// Package analysis provides cross-file cache invalidation for the bridge.
//
// Pike files import and inherit each other, so a cached analysis result
// for file B is stale the moment one of B's dependencies changes, even
// though B's own text did not. The Graph records which files each file was
// observed to depend on during its last successful compile; the
// Invalidator walks the graph's reverse edges on every change and evicts
// the affected results from the bridge cache. The Watcher feeds the
// Invalidator with on-disk changes to Pike sources; in-editor changes
// arrive through the LSP document events instead.
//
// Dependency edges are only ever rebuilt from actual analyzer responses;
// the graph is never populated speculatively.
package analysis
