package careflow

import (
	"maps"
	"slices"
	"time"
)

// Workflow is an immutable, executable workflow definition created by
// Graph.Compile. It holds no per-session state and is safe for concurrent
// use by any number of instances.
type Workflow struct {
	name          string
	nodes         map[string]Step
	order         []string
	edges         map[string][]string
	allowed       map[string]map[string]bool
	conditional   map[string]RouterFunc
	entryPoint    string
	maxIterations int
	handoffKeys   []string
}

// Name returns the workflow name.
func (w *Workflow) Name() string { return w.name }

// EntryPoint returns the entry node ID.
func (w *Workflow) EntryPoint() string { return w.entryPoint }

// MaxIterations returns the follow-up budget for new instances.
func (w *Workflow) MaxIterations() int { return w.maxIterations }

// HandoffKeys returns the fields published on completion.
func (w *Workflow) HandoffKeys() []string { return slices.Clone(w.handoffKeys) }

// NodeIDs returns node IDs in the order they were added.
func (w *Workflow) NodeIDs() []string { return slices.Clone(w.order) }

// HasNode checks if a node exists.
func (w *Workflow) HasNode(id string) bool {
	_, ok := w.nodes[id]
	return ok
}

// Successors returns the declared edge targets of id.
func (w *Workflow) Successors(id string) []string { return slices.Clone(w.edges[id]) }

// IsConditional returns true if the node has a conditional edge.
func (w *Workflow) IsConditional(id string) bool {
	_, ok := w.conditional[id]
	return ok
}

// NewInstance creates a fresh instance for sessionID with Collected seeded
// from seed. The instance is not started.
func (w *Workflow) NewInstance(sessionID string, seed map[string]string) Instance {
	collected := make(map[string]string, len(seed))
	for k, v := range seed {
		if v != "" {
			collected[k] = v
		}
	}
	return Instance{
		SessionID:     sessionID,
		Workflow:      w.name,
		MaxIterations: w.maxIterations,
		Collected:     collected,
	}
}

// handoff copies the declared keys from collected data and output data.
// Output data wins when both carry a key.
func (w *Workflow) handoff(in Instance, out Output) map[string]string {
	if len(w.handoffKeys) == 0 {
		return nil
	}
	payload := make(map[string]string, len(w.handoffKeys))
	for _, k := range w.handoffKeys {
		if v := in.Collected[k]; v != "" {
			payload[k] = v
		}
		if v := out.Data[k]; v != "" {
			payload[k] = v
		}
	}
	if len(payload) == 0 {
		return nil
	}
	return payload
}

func (w *Workflow) stamp(in *Instance, now time.Time) {
	if in.StartedAt.IsZero() {
		in.StartedAt = now
	}
	in.UpdatedAt = now
}

// mergeHandoff fills declared keys the step already placed in out.Handoff.
func mergeHandoff(explicit, derived map[string]string) map[string]string {
	if len(explicit) == 0 {
		return derived
	}
	merged := maps.Clone(derived)
	if merged == nil {
		merged = make(map[string]string, len(explicit))
	}
	maps.Copy(merged, explicit)
	return merged
}
