package careflow

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// Compile validates the graph and creates an executable Workflow.
// Multiple errors are joined together.
//
// Validation checks:
//  1. Name must be set
//  2. Entry point must be set and reference an existing node
//  3. All edge sources and targets must reference existing nodes or END
//  4. All conditional edge sources must reference existing nodes
//  5. The entry must have a path to END
//
// Unreachable nodes are logged as warnings but do not fail compilation.
func (g *Graph) Compile() (*Workflow, error) {
	var errs []error

	if g.name == "" {
		errs = append(errs, ErrNoName)
	}

	if g.entryPoint == "" {
		errs = append(errs, ErrNoEntryPoint)
	} else if _, exists := g.nodes[g.entryPoint]; !exists {
		errs = append(errs, fmt.Errorf("%w: %s", ErrEntryNotFound, g.entryPoint))
	}

	for _, from := range slices.Sorted(maps.Keys(g.edges)) {
		if _, exists := g.nodes[from]; !exists {
			errs = append(errs, fmt.Errorf("%w: edge source '%s' does not exist", ErrNodeNotFound, from))
		}
		for _, to := range g.edges[from] {
			if to == END {
				continue
			}
			if _, exists := g.nodes[to]; !exists {
				errs = append(errs, fmt.Errorf("%w: edge target '%s' does not exist", ErrNodeNotFound, to))
			}
		}
	}

	for _, from := range slices.Sorted(maps.Keys(g.conditional)) {
		if _, exists := g.nodes[from]; !exists {
			errs = append(errs, fmt.Errorf("%w: conditional edge source '%s' does not exist", ErrNodeNotFound, from))
		}
	}

	if _, exists := g.nodes[g.entryPoint]; exists && !g.hasPathToEnd() {
		errs = append(errs, ErrNoPathToEnd)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	g.warnUnreachableNodes()
	return g.build(), nil
}

// hasPathToEnd propagates "can reach END" backwards over declared edges.
// Conditional nodes are assumed able to reach END.
func (g *Graph) hasPathToEnd() bool {
	canReachEnd := map[string]bool{END: true}
	for from := range g.conditional {
		canReachEnd[from] = true
	}

	changed := true
	for changed {
		changed = false
		for from, targets := range g.edges {
			if canReachEnd[from] {
				continue
			}
			for _, to := range targets {
				if canReachEnd[to] {
					canReachEnd[from] = true
					changed = true
					break
				}
			}
		}
	}

	return canReachEnd[g.entryPoint]
}

func (g *Graph) warnUnreachableNodes() {
	reachable := map[string]bool{g.entryPoint: true}
	queue := []string{g.entryPoint}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		next := g.edges[current]
		// A router may return any node.
		if _, ok := g.conditional[current]; ok {
			next = g.order
		}
		for _, target := range next {
			if target != END && !reachable[target] {
				reachable[target] = true
				queue = append(queue, target)
			}
		}
	}

	for _, id := range g.order {
		if !reachable[id] {
			slog.Warn("node is unreachable from entry", "workflow", g.name, "node_id", id)
		}
	}
}

func (g *Graph) build() *Workflow {
	allowed := make(map[string]map[string]bool, len(g.edges))
	edges := make(map[string][]string, len(g.edges))
	for from, targets := range g.edges {
		edges[from] = slices.Clone(targets)
		allowed[from] = make(map[string]bool, len(targets))
		for _, to := range targets {
			allowed[from][to] = true
		}
	}

	return &Workflow{
		name:          g.name,
		nodes:         maps.Clone(g.nodes),
		order:         slices.Clone(g.order),
		edges:         edges,
		allowed:       allowed,
		conditional:   maps.Clone(g.conditional),
		entryPoint:    g.entryPoint,
		maxIterations: g.maxIterations,
		handoffKeys:   slices.Clone(g.handoffKeys),
	}
}
