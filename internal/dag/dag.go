// Package dag provides directed acyclic graph operations for feature lineage.
// It supports cycle detection and upstream/downstream traversal over entity ids.
package dag

import (
	"fmt"
	"sort"
)

// Graph is a directed graph keyed by entity id. Edges point from a consumer
// to the entity it consumes.
type Graph struct {
	nodes     map[string]struct{}
	consumes  map[string][]string // consumer -> inputs
	consumers map[string][]string // input -> consumers
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:     make(map[string]struct{}),
		consumes:  make(map[string][]string),
		consumers: make(map[string][]string),
	}
}

// AddNode adds a node to the graph. Adding an existing node is a no-op.
func (g *Graph) AddNode(id string) {
	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = struct{}{}
	g.consumes[id] = nil
	g.consumers[id] = nil
}

// AddEdge records that consumer depends on input. Both nodes are created if
// they do not exist yet. Self-loops are rejected.
func (g *Graph) AddEdge(consumer, input string) error {
	if consumer == input {
		return fmt.Errorf("self-loop on %q", consumer)
	}
	g.AddNode(consumer)
	g.AddNode(input)
	if !contains(g.consumes[consumer], input) {
		g.consumes[consumer] = append(g.consumes[consumer], input)
	}
	if !contains(g.consumers[input], consumer) {
		g.consumers[input] = append(g.consumers[input], consumer)
	}
	return nil
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// HasCycle reports whether the graph contains a cycle, returning the cycle
// path when one is found.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	parent := make(map[string]string)

	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true

		for _, next := range g.consumes[id] {
			if !visited[next] {
				parent[next] = id
				if dfs(next) {
					return true
				}
			} else if onStack[next] {
				cycle = []string{next}
				for cur := id; cur != next; cur = parent[cur] {
					cycle = append([]string{cur}, cycle...)
				}
				cycle = append([]string{next}, cycle...)
				return true
			}
		}

		onStack[id] = false
		return false
	}

	// Deterministic iteration keeps the reported cycle stable.
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if !visited[id] {
			if dfs(id) {
				return true, cycle
			}
		}
	}
	return false, nil
}

// Upstream returns every node reachable by following consumes edges from id,
// excluding id itself. Sorted for deterministic output.
func (g *Graph) Upstream(id string) []string {
	return g.walk(id, g.consumes)
}

// Downstream returns every node that transitively consumes id, excluding id
// itself. Sorted for deterministic output.
func (g *Graph) Downstream(id string) []string {
	return g.walk(id, g.consumers)
}

func (g *Graph) walk(start string, edges map[string][]string) []string {
	seen := make(map[string]bool)
	var visit func(id string)
	visit = func(id string) {
		for _, next := range edges[id] {
			if !seen[next] {
				seen[next] = true
				visit(next)
			}
		}
	}
	visit(start)

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func contains(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}
