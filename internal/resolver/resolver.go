// Package resolver classifies work items as ready, blocked, or cyclic by
// interpreting the declarative dependency graph against a snapshot of the
// item store.
package resolver

import (
	"sort"

	"github.com/elephantgerald/bartleby-sub001/internal/graph"
	"github.com/elephantgerald/bartleby-sub001/internal/types"
)

// Resolver is pure over a snapshot of (graph, work items). Build a fresh one
// per decision point; it holds no locks and performs no I/O.
type Resolver struct {
	graph *graph.Graph
	items map[string]*types.WorkItem
}

// Resolution is the aggregate output of a single Resolve pass.
type Resolution struct {
	ReadyItems   []*types.WorkItem
	BlockedItems []*types.WorkItem
	Cycles       [][]string
	CyclicItems  []string
}

// New creates a resolver over the given graph and item snapshot. A nil graph
// is treated as empty: every item then has zero dependencies.
func New(g *graph.Graph, items []*types.WorkItem) *Resolver {
	index := make(map[string]*types.WorkItem, len(items))
	for _, item := range items {
		index[item.ID] = item
	}
	return &Resolver{graph: g, items: index}
}

// IsReady reports whether the item with the given id is eligible for
// execution: its status is pending or ready and every dependency declared in
// the graph resolves to a complete item.
func (r *Resolver) IsReady(id string) bool {
	item, ok := r.items[id]
	if !ok {
		return false
	}
	if item.Status != types.StatusPending && item.Status != types.StatusReady {
		return false
	}
	for _, dep := range r.graph.Dependencies(id) {
		depItem, ok := r.items[dep]
		if !ok || depItem.Status != types.StatusComplete {
			return false
		}
	}
	return true
}

// GetReadyItems returns every ready item ordered by ascending CreatedAt with
// a stable tie-break on id.
func (r *Resolver) GetReadyItems() []*types.WorkItem {
	var ready []*types.WorkItem
	for id, item := range r.items {
		if r.IsReady(id) {
			ready = append(ready, item)
		}
	}
	sortItems(ready)
	return ready
}

// GetDependencyChain returns the transitive dependency ids of the given item
// in dependency order (deepest first), deduplicated. The item itself is not
// included.
func (r *Resolver) GetDependencyChain(id string) []string {
	var chain []string
	seen := map[string]bool{id: true}

	var visit func(string)
	visit = func(current string) {
		for _, dep := range sortedDeps(r.graph, current) {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			visit(dep)
			chain = append(chain, dep)
		}
	}
	visit(id)
	return chain
}

// DFS colors for cycle detection.
const (
	white = iota // unvisited
	gray         // on the recursion stack
	black        // fully explored
)

// DetectCycles returns every simple cycle found by a three-colour DFS, each
// as the ordered list of ids forming the loop. A back-edge into a gray node
// yields the cycle slice from the recursion stack. Traversal visits ids in
// ascending order, making detection deterministic. Self-loops are cycles.
func (r *Resolver) DetectCycles() [][]string {
	color := make(map[string]int)
	var stack []string
	var cycles [][]string

	var visit func(string)
	visit = func(id string) {
		color[id] = gray
		stack = append(stack, id)

		for _, dep := range sortedDeps(r.graph, id) {
			switch color[dep] {
			case white:
				visit(dep)
			case gray:
				// Back edge: the loop is the stack segment from dep onward.
				for i, s := range stack {
					if s == dep {
						cycle := make([]string, len(stack)-i)
						copy(cycle, stack[i:])
						cycles = append(cycles, cycle)
						break
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for _, id := range r.graph.IDs() {
		if color[id] == white {
			visit(id)
		}
	}
	return cycles
}

// Resolve performs a single classification pass. Items present in any cycle
// are excluded from Ready even when otherwise eligible.
func (r *Resolver) Resolve() *Resolution {
	res := &Resolution{Cycles: r.DetectCycles()}

	cyclic := make(map[string]bool)
	for _, cycle := range res.Cycles {
		for _, id := range cycle {
			if !cyclic[id] {
				cyclic[id] = true
				res.CyclicItems = append(res.CyclicItems, id)
			}
		}
	}
	sort.Strings(res.CyclicItems)

	for id, item := range r.items {
		if cyclic[id] {
			continue
		}
		if item.Status != types.StatusPending && item.Status != types.StatusReady {
			continue
		}
		if r.IsReady(id) {
			res.ReadyItems = append(res.ReadyItems, item)
		} else {
			res.BlockedItems = append(res.BlockedItems, item)
		}
	}
	sortItems(res.ReadyItems)
	sortItems(res.BlockedItems)
	return res
}

// sortedDeps returns the declared dependencies of id in ascending order,
// restricted to ids the graph declares (dangling references cannot form
// cycles).
func sortedDeps(g *graph.Graph, id string) []string {
	deps := g.Dependencies(id)
	if len(deps) == 0 {
		return nil
	}
	out := make([]string, 0, len(deps))
	for _, dep := range deps {
		if g.Contains(dep) {
			out = append(out, dep)
		}
	}
	sort.Strings(out)
	return out
}

func sortItems(items []*types.WorkItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
