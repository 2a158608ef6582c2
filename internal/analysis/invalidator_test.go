package analysis

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type recordingEvictor struct {
	mu      sync.Mutex
	evicted []string
}

func (r *recordingEvictor) EvictFile(filename string) {
	r.mu.Lock()
	r.evicted = append(r.evicted, filename)
	r.mu.Unlock()
}

func (r *recordingEvictor) files() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.evicted...)
}

func TestInvalidator_CascadesThroughGraph(t *testing.T) {
	g := NewGraph()
	g.Observe("b.pike", []string{"a.pike"})
	g.Observe("c.pike", []string{"b.pike"})

	ev := &recordingEvictor{}
	inv := NewInvalidator(g, ev, zap.NewNop())

	set := inv.FileChanged("a.pike")
	assert.Equal(t, []string{"a.pike", "b.pike", "c.pike"}, set)
	assert.ElementsMatch(t, []string{"a.pike", "b.pike", "c.pike"}, ev.files())
}

func TestInvalidator_FileRemovedForgets(t *testing.T) {
	g := NewGraph()
	g.Observe("b.pike", []string{"a.pike"})

	ev := &recordingEvictor{}
	inv := NewInvalidator(g, ev, zap.NewNop())

	inv.FileRemoved("b.pike")
	assert.Equal(t, 0, g.Len())
	assert.Contains(t, ev.files(), "b.pike")
}

func TestInvalidator_UnknownFileOnlySelf(t *testing.T) {
	g := NewGraph()
	ev := &recordingEvictor{}
	inv := NewInvalidator(g, ev, zap.NewNop())

	set := inv.FileChanged("orphan.pike")
	assert.Equal(t, []string{"orphan.pike"}, set)
}
