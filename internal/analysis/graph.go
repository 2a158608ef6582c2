package analysis

import (
	"sort"
	"sync"
)

// Graph maps each file to the set of files it was observed to import or
// inherit, plus the reverse index. Safe for concurrent use.
type Graph struct {
	mu sync.RWMutex

	// deps: file -> files it depends on.
	deps map[string]map[string]struct{}

	// dependents: file -> files that depend on it.
	dependents map[string]map[string]struct{}
}

// NewGraph creates an empty dependency graph.
func NewGraph() *Graph {
	return &Graph{
		deps:       make(map[string]map[string]struct{}),
		dependents: make(map[string]map[string]struct{}),
	}
}

// Observe replaces path's dependency set with the one just reported by a
// successful compile or analyze response. Stale reverse edges from the
// previous observation are dropped.
func (g *Graph) Observe(path string, deps []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Drop reverse edges from the previous observation.
	for old := range g.deps[path] {
		delete(g.dependents[old], path)
		if len(g.dependents[old]) == 0 {
			delete(g.dependents, old)
		}
	}

	if len(deps) == 0 {
		delete(g.deps, path)
		return
	}

	set := make(map[string]struct{}, len(deps))
	for _, dep := range deps {
		if dep == "" || dep == path {
			continue
		}
		set[dep] = struct{}{}
		rev, ok := g.dependents[dep]
		if !ok {
			rev = make(map[string]struct{})
			g.dependents[dep] = rev
		}
		rev[path] = struct{}{}
	}
	g.deps[path] = set
}

// Forget removes path and its edges entirely (file deleted).
func (g *Graph) Forget(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for dep := range g.deps[path] {
		delete(g.dependents[dep], path)
		if len(g.dependents[dep]) == 0 {
			delete(g.dependents, dep)
		}
	}
	delete(g.deps, path)
}

// DependenciesOf returns the files path was last observed to depend on.
func (g *Graph) DependenciesOf(path string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return setToSorted(g.deps[path])
}

// DependentsOf returns the files that directly depend on path.
func (g *Graph) DependentsOf(path string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return setToSorted(g.dependents[path])
}

// InvalidationSet returns path plus every file that transitively depends
// on it: when path changes, every member's cached result is stale.
func (g *Graph) InvalidationSet(path string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := map[string]struct{}{path: {}}
	queue := []string{path}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for dependent := range g.dependents[current] {
			if _, ok := seen[dependent]; ok {
				continue
			}
			seen[dependent] = struct{}{}
			queue = append(queue, dependent)
		}
	}
	return setToSorted(seen)
}

// Len returns the number of files with recorded dependencies.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.deps)
}

func setToSorted(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
