// Package depgraph implements the raw-value cascade graph.
//
// The graph is a static table mapping one canonical source key to the
// target keys that receive the same value verbatim - direct propagation
// with no arithmetic. It is an AUXILIARY mechanism: the calculation
// engine is authoritative on the primary update path, and nothing in
// the recalculation orchestrator consults this graph. It exists for
// tooling (the cascade CLI command) and for producers that need cheap
// value mirroring without a full recompute.
//
// Cycles are rejected when the configuration is loaded, not at
// propagation time. Cascade additionally enforces a step quota as a
// backstop against a graph that was never validated.
package depgraph

import (
	"fmt"
	"strings"

	"github.com/taxline/taxline/internal/fieldid"
	"github.com/taxline/taxline/internal/fieldval"
)

// DefaultMaxSteps bounds a single cascade walk. A validated (acyclic)
// graph of realistic size stays far below this.
const DefaultMaxSteps = 1000

// Graph is an immutable cascade edge table keyed canonically.
type Graph struct {
	edges    map[string][]string
	maxSteps int
}

// Option configures a Graph.
type Option func(*Graph)

// WithMaxSteps overrides the cascade step quota.
func WithMaxSteps(n int) Option {
	return func(g *Graph) {
		g.maxSteps = n
	}
}

// New builds a Graph from raw edges. Source and target keys are
// canonicalized, so legacy underscore- and colon-separated tables can
// be merged without pre-processing.
func New(edges map[string][]string, opts ...Option) *Graph {
	g := &Graph{
		edges:    make(map[string][]string, len(edges)),
		maxSteps: DefaultMaxSteps,
	}
	for src, targets := range edges {
		canonical := make([]string, len(targets))
		for i, t := range targets {
			canonical[i] = fieldid.Canonical(t)
		}
		g.edges[fieldid.Canonical(src)] = canonical
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Targets returns the direct propagation targets for a key.
// The key is canonicalized before lookup.
func (g *Graph) Targets(key string) []string {
	return g.edges[fieldid.Canonical(key)]
}

// Len returns the number of source keys with outgoing edges.
func (g *Graph) Len() int {
	return len(g.edges)
}

// CycleError reports a cycle discovered during validation.
// Path lists the keys along the cycle, ending where it started.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency graph contains a cycle: %s", strings.Join(e.Path, " -> "))
}

// StepsExceededError reports a cascade that hit the step quota.
type StepsExceededError struct {
	Start string
	Limit int
}

func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("cascade from %s exceeded %d steps", e.Start, e.Limit)
}

// Validate rejects a graph containing any cycle, including self-loops.
// Called at configuration-load time; a graph that fails validation
// must never reach Cascade.
//
// Detection uses Tarjan's strongly-connected-components algorithm:
// any SCC larger than one node, or a single node with a self-edge,
// is a cycle.
func (g *Graph) Validate() error {
	for _, scc := range g.tarjanSCC() {
		if len(scc) > 1 {
			return &CycleError{Path: g.reconstructCycle(scc)}
		}
		if len(scc) == 1 && g.hasSelfLoop(scc[0]) {
			return &CycleError{Path: []string{scc[0], scc[0]}}
		}
	}
	return nil
}

// Cascade applies value to key and every key reachable from it,
// depth-first. Propagation is value copy only - no recomputation.
// The fields map is mutated in place; keys not present in the map are
// still written (the caller decides what the map's domain means).
func (g *Graph) Cascade(fields map[string]fieldval.Value, key string, value fieldval.Value) error {
	start := fieldid.Canonical(key)
	steps := 0
	return g.cascade(fields, start, start, value, &steps)
}

func (g *Graph) cascade(fields map[string]fieldval.Value, start, key string, value fieldval.Value, steps *int) error {
	*steps++
	if *steps > g.maxSteps {
		return &StepsExceededError{Start: start, Limit: g.maxSteps}
	}

	fields[key] = value
	for _, target := range g.edges[key] {
		if err := g.cascade(fields, start, target, value, steps); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) hasSelfLoop(node string) bool {
	for _, t := range g.edges[node] {
		if t == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components over the edge table.
// Target-only nodes count as graph nodes too.
func (g *Graph) tarjanSCC() [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for node := range g.edges {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// reconstructCycle builds a readable cycle path from an SCC by
// following edges between members until the walk returns to its start.
func (g *Graph) reconstructCycle(scc []string) []string {
	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[0]
	current := start
	path := []string{start}
	visited := make(map[string]bool)
	for {
		visited[current] = true
		next := ""
		for _, neighbor := range g.edges[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
