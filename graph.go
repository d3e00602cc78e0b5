package pipeflow

import (
	"sync"
)

// ModifierGraph indexes which stages apply a given modifier. A modifier
// instance may be shared by stages of several pipelines; editing it must
// invalidate all of them.
type ModifierGraph struct {
	stages map[Modifier][]*Stage
	mu     sync.RWMutex
}

func NewModifierGraph() *ModifierGraph {
	return &ModifierGraph{
		stages: make(map[Modifier][]*Stage),
	}
}

// Add records that st applies m. Modifiers are used as map keys, so
// implementations must be comparable, typically pointers.
func (g *ModifierGraph) Add(m Modifier, st *Stage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stages[m] = appendUnique(g.stages[m], st)
}

// Remove forgets that st applies m.
func (g *ModifierGraph) Remove(m Modifier, st *Stage) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.stages[m] = removeElement(g.stages[m], st)
	if len(g.stages[m]) == 0 {
		delete(g.stages, m)
	}
}

// StagesOf returns the stages applying m.
func (g *ModifierGraph) StagesOf(m Modifier) []*Stage {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if stages, exists := g.stages[m]; exists {
		result := make([]*Stage, len(stages))
		copy(result, stages)
		return result
	}
	return nil
}

// Modifiers returns the number of distinct modifiers in use.
func (g *ModifierGraph) Modifiers() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.stages)
}

func appendUnique[T comparable](slice []T, item T) []T {
	for _, existing := range slice {
		if existing == item {
			return slice
		}
	}
	return append(slice, item)
}

func removeElement[T comparable](slice []T, item T) []T {
	for i, existing := range slice {
		if existing == item {
			return append(slice[:i], slice[i+1:]...)
		}
	}
	return slice
}
