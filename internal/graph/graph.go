// Package graph provides the declarative dependency graph: a typed in-memory
// DAG of work-item ids, a parser for the component-diagram DSL it is stored
// in, and a file-backed store that maintains the alias-to-id binding.
package graph

import "sort"

// Node is a single vertex in the dependency graph.
type Node struct {
	Title     string
	DependsOn []string // Ids of nodes this node depends on
}

// Graph maps stable work-item ids to their declared dependencies.
// It is a pure value: rebuilt from the DSL on load, never mutated in place
// by readers.
type Graph struct {
	Nodes map[string]Node
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{Nodes: make(map[string]Node)}
}

// Contains reports whether the graph declares the given id.
func (g *Graph) Contains(id string) bool {
	if g == nil {
		return false
	}
	_, ok := g.Nodes[id]
	return ok
}

// Dependencies returns the declared dependency ids for the given id.
// Ids absent from the graph have zero dependencies.
func (g *Graph) Dependencies(id string) []string {
	if g == nil {
		return nil
	}
	return g.Nodes[id].DependsOn
}

// IDs returns every declared id in ascending order. Sorting keeps traversal
// (and therefore cycle detection) deterministic.
func (g *Graph) IDs() []string {
	if g == nil {
		return nil
	}
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AddNode declares a node, keeping any existing dependency list.
func (g *Graph) AddNode(id, title string) {
	n := g.Nodes[id]
	n.Title = title
	g.Nodes[id] = n
}

// AddDependency records that dependent depends on dependency, declaring
// either node if missing.
func (g *Graph) AddDependency(dependent, dependency string) {
	if _, ok := g.Nodes[dependency]; !ok {
		g.Nodes[dependency] = Node{}
	}
	n := g.Nodes[dependent]
	n.DependsOn = append(n.DependsOn, dependency)
	g.Nodes[dependent] = n
}

// Clone returns a deep copy of the graph. Readers receive clones so that a
// concurrent reload never mutates a snapshot they are holding.
func (g *Graph) Clone() *Graph {
	if g == nil {
		return New()
	}
	out := &Graph{Nodes: make(map[string]Node, len(g.Nodes))}
	for id, n := range g.Nodes {
		deps := make([]string, len(n.DependsOn))
		copy(deps, n.DependsOn)
		out.Nodes[id] = Node{Title: n.Title, DependsOn: deps}
	}
	return out
}
