// SPDX-License-Identifier: MPL-2.0

// Package dag provides directed graph operations over data model package ids:
// reverse-dependency reachability, topological ordering and cycle detection.
// The build-update adapter memoizes one Graph per registry generation to find
// every package affected by a descriptor change; the CLI uses the ordering and
// cycle reports.
package dag

import (
	"fmt"
	"slices"
	"strings"
)

type (
	// CycleError indicates that the graph contains a cycle, preventing topological ordering.
	CycleError struct {
		// Cycle contains the nodes that form the cycle (not necessarily all of them,
		// but enough to identify the problem).
		Cycle []string
	}

	// Graph is a directed graph keyed by package id.
	// An edge from A to B means "B depends on A": a change to A affects B.
	Graph struct {
		// adjacency maps each node to its outgoing neighbors (its dependents).
		adjacency map[string][]string
		// nodes tracks all nodes in insertion order for deterministic output.
		nodes []string
		// nodeSet provides O(1) lookup for node existence.
		nodeSet map[string]bool
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		adjacency: make(map[string][]string),
		nodeSet:   make(map[string]bool),
	}
}

// AddNode adds a node to the graph. If the node already exists, this is a no-op.
func (g *Graph) AddNode(name string) {
	if g.nodeSet[name] {
		return
	}
	g.nodeSet[name] = true
	g.nodes = append(g.nodes, name)
}

// AddEdge adds a directed edge from -> to, meaning "to" depends on "from".
// Both nodes are implicitly added if they don't exist. Duplicate edges are
// ignored.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	if slices.Contains(g.adjacency[from], to) {
		return
	}
	g.adjacency[from] = append(g.adjacency[from], to)
}

// HasNode reports whether name is part of the graph.
func (g *Graph) HasNode(name string) bool {
	return g.nodeSet[name]
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []string {
	return slices.Clone(g.nodes)
}

// Successors returns the direct dependents of name.
func (g *Graph) Successors(name string) []string {
	return slices.Clone(g.adjacency[name])
}

// Descendants returns the starting nodes followed by every node reachable
// from them, in breadth-first order. Starting nodes unknown to the graph are
// still returned. Cycles are tolerated.
func (g *Graph) Descendants(starts ...string) []string {
	visited := make(map[string]bool, len(starts))
	var out, queue []string
	for _, s := range starts {
		if visited[s] {
			continue
		}
		visited[s] = true
		out = append(out, s)
		queue = append(queue, s)
	}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range g.adjacency[node] {
			if visited[next] {
				continue
			}
			visited[next] = true
			out = append(out, next)
			queue = append(queue, next)
		}
	}
	return out
}

// TopologicalSort returns dependencies before their dependents using Kahn's
// algorithm. Returns CycleError if the graph contains a cycle.
// The returned order is deterministic: nodes at the same topological level
// appear in the order they were first added to the graph.
func (g *Graph) TopologicalSort() ([]string, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	// Compute in-degrees.
	inDegree := make(map[string]int, len(g.nodes))
	for _, node := range g.nodes {
		inDegree[node] = 0
	}
	for _, neighbors := range g.adjacency {
		for _, neighbor := range neighbors {
			inDegree[neighbor]++
		}
	}

	// Seed the queue with nodes that have no incoming edges, in insertion order.
	queue := make([]string, 0)
	for _, node := range g.nodes {
		if inDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	var result []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, neighbor := range g.adjacency[node] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
			}
		}
	}

	if len(result) != len(g.nodes) {
		if cycles := g.Cycles(); len(cycles) > 0 {
			return nil, &CycleError{Cycle: cycles[0]}
		}
		var rest []string
		for _, node := range g.nodes {
			if inDegree[node] > 0 {
				rest = append(rest, node)
			}
		}
		return nil, &CycleError{Cycle: rest}
	}

	return result, nil
}

// Cycles returns every set of nodes that can reach each other, including
// self-loops. Each cycle lists its nodes in insertion order; cycles are
// ordered by their first node.
func (g *Graph) Cycles() [][]string {
	t := &tarjan{
		g:       g,
		index:   make(map[string]int, len(g.nodes)),
		lowlink: make(map[string]int, len(g.nodes)),
		onStack: make(map[string]bool, len(g.nodes)),
	}
	for _, node := range g.nodes {
		if _, seen := t.index[node]; !seen {
			t.connect(node)
		}
	}

	position := make(map[string]int, len(g.nodes))
	for i, node := range g.nodes {
		position[node] = i
	}
	byPosition := func(a, b string) int { return position[a] - position[b] }

	var out [][]string
	for _, scc := range t.components {
		if len(scc) == 1 && !slices.Contains(g.adjacency[scc[0]], scc[0]) {
			continue
		}
		slices.SortFunc(scc, byPosition)
		out = append(out, scc)
	}
	slices.SortFunc(out, func(a, b []string) int { return byPosition(a[0], b[0]) })
	return out
}

// tarjan holds the state of Tarjan's strongly connected components search.
type tarjan struct {
	g          *Graph
	counter    int
	index      map[string]int
	lowlink    map[string]int
	stack      []string
	onStack    map[string]bool
	components [][]string
}

func (t *tarjan) connect(v string) {
	t.index[v] = t.counter
	t.lowlink[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.g.adjacency[v] {
		if _, seen := t.index[w]; !seen {
			t.connect(w)
			t.lowlink[v] = min(t.lowlink[v], t.lowlink[w])
		} else if t.onStack[w] {
			t.lowlink[v] = min(t.lowlink[v], t.index[w])
		}
	}

	if t.lowlink[v] != t.index[v] {
		return
	}
	var scc []string
	for {
		w := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.onStack[w] = false
		scc = append(scc, w)
		if w == v {
			break
		}
	}
	t.components = append(t.components, scc)
}
