package careflow

import (
	"fmt"
	"strings"
)

// DefaultMaxIterations bounds follow-up loops when SetMaxIterations is not
// called.
const DefaultMaxIterations = 5

// Graph is a mutable builder for a workflow definition. Build it from one
// goroutine, then Compile it into an immutable Workflow.
//
// Edges declare the transitions a node may take. Advance to a target that
// is not declared fails the instance, so loops must declare their
// self-edge:
//
//	wf, err := careflow.NewGraph("triage").
//	    AddNode("intake", intake).
//	    AddNode("gather", loop).
//	    AddNode("assess", assess).
//	    AddEdge("intake", "gather").
//	    AddEdge("gather", "gather").
//	    AddEdge("gather", "assess").
//	    AddEdge("assess", careflow.END).
//	    SetEntry("intake").
//	    SetMaxIterations(3).
//	    Compile()
type Graph struct {
	name          string
	nodes         map[string]Step
	order         []string
	edges         map[string][]string
	conditional   map[string]RouterFunc
	entryPoint    string
	maxIterations int
	handoffKeys   []string
}

// NewGraph creates a builder for the workflow called name.
func NewGraph(name string) *Graph {
	return &Graph{
		name:          name,
		nodes:         make(map[string]Step),
		edges:         make(map[string][]string),
		conditional:   make(map[string]RouterFunc),
		maxIterations: DefaultMaxIterations,
	}
}

// AddNode adds a named node.
//
// Panics if id is empty, reserved, contains whitespace, or is already
// defined, or if step is nil.
func (g *Graph) AddNode(id string, step Step) *Graph {
	if id == "" {
		panic("careflow: node ID cannot be empty")
	}
	if lower := strings.ToLower(id); lower == "end" || lower == END {
		panic("careflow: node ID cannot be reserved word 'END'")
	}
	if strings.ContainsAny(id, " \t\n\r") {
		panic("careflow: node ID cannot contain whitespace")
	}
	if step == nil {
		panic("careflow: node step cannot be nil")
	}
	if _, exists := g.nodes[id]; exists {
		panic(fmt.Sprintf("careflow: duplicate node ID: %s", id))
	}

	g.nodes[id] = step
	g.order = append(g.order, id)
	return g
}

// AddStep is AddNode for a plain function.
func (g *Graph) AddStep(id string, fn func(ctx Context, in Instance, input *string) (Instance, Outcome)) *Graph {
	if fn == nil {
		panic("careflow: node step cannot be nil")
	}
	return g.AddNode(id, StepFunc(fn))
}

// AddEdge declares that from may transition to to. The first edge added is
// the one Continue follows. Validation happens at Compile.
func (g *Graph) AddEdge(from, to string) *Graph {
	for _, existing := range g.edges[from] {
		if existing == to {
			return g
		}
	}
	g.edges[from] = append(g.edges[from], to)
	return g
}

// AddConditionalEdge makes Continue from from ask router for the target.
// Router targets must exist but need not be declared as edges.
func (g *Graph) AddConditionalEdge(from string, router RouterFunc) *Graph {
	if router == nil {
		panic("careflow: router function cannot be nil")
	}
	g.conditional[from] = router
	return g
}

// SetEntry designates the entry node.
func (g *Graph) SetEntry(id string) *Graph {
	g.entryPoint = id
	return g
}

// SetMaxIterations sets the follow-up budget stamped on new instances.
//
// Panics if n is negative.
func (g *Graph) SetMaxIterations(n int) *Graph {
	if n < 0 {
		panic("careflow: max iterations cannot be negative")
	}
	g.maxIterations = n
	return g
}

// SetHandoffKeys lists the fields published to the next workflow on
// completion.
func (g *Graph) SetHandoffKeys(keys ...string) *Graph {
	g.handoffKeys = append([]string(nil), keys...)
	return g
}
