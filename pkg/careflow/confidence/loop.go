// Package confidence implements the follow-up question loop: a node that
// keeps asking for the first missing field until enough fields are
// covered or the iteration budget runs out.
//
// A Loop is an ordinary careflow.Step. On entry it measures coverage and
// either advances to Next or suspends with a question. On resume it
// records the answer, increments IterationCount, and advances to itself
// through a declared self-edge, so the coverage check runs again.
//
//	loop := &confidence.Loop{
//	    Name:   "gather",
//	    Next:   "assess",
//	    Fields: []confidence.Field{{Name: "duration"}, {Name: "severity"}},
//	}
//	g := careflow.NewGraph("triage")
//	loop.Attach(g)
package confidence

import (
	"strings"

	"github.com/randalmurphal/careflow/pkg/careflow"
	cferrors "github.com/randalmurphal/careflow/pkg/careflow/errors"
)

// DefaultThreshold is the coverage at which a loop stops asking.
const DefaultThreshold = 0.7

// Field is one piece of information the loop tries to collect.
type Field struct {
	// Name is the key in Instance.Collected.
	Name string
	// Question is asked when the field is missing. Empty uses a generic
	// "Can you tell me more about your ..." question.
	Question string
}

// Prompt returns the question to ask for f.
func (f Field) Prompt() string {
	if f.Question != "" {
		return f.Question
	}
	return "Can you tell me more about your " + strings.ReplaceAll(f.Name, "_", " ") + "?"
}

// Loop is the confidence-driven follow-up step.
type Loop struct {
	// Name is the node ID the loop is registered under. Resume advances
	// back to it.
	Name string
	// Fields are asked in declared order.
	Fields []Field
	// Threshold is the coverage needed to move on. Zero means
	// DefaultThreshold.
	Threshold float64
	// Next is the node to advance to once done.
	Next string
	// Extract, when set, pulls additional fields out of each answer.
	Extract Extractor
}

// Attach registers the loop on g with its self-edge and its edge to Next.
func (l *Loop) Attach(g *careflow.Graph) *careflow.Graph {
	if l.Name == "" || l.Next == "" {
		panic("confidence: loop needs Name and Next")
	}
	if len(l.Fields) == 0 {
		panic("confidence: loop " + l.Name + " has no fields")
	}
	return g.AddNode(l.Name, l).
		AddEdge(l.Name, l.Name).
		AddEdge(l.Name, l.Next)
}

// Step implements careflow.Step.
func (l *Loop) Step(ctx careflow.Context, in careflow.Instance, input *string) (careflow.Instance, careflow.Outcome) {
	if input == nil {
		return l.enter(in)
	}
	return l.answer(ctx, in, *input)
}

func (l *Loop) enter(in careflow.Instance) (careflow.Instance, careflow.Outcome) {
	missing := l.Missing(in)
	if len(missing) == 0 || l.Confidence(in) >= l.threshold() {
		return in, careflow.Advance(l.Next)
	}
	if in.IterationCount >= in.MaxIterations {
		in.IncompleteAssessment = true
		return in, careflow.Advance(l.Next)
	}
	f := missing[0]
	return in, careflow.Suspend(careflow.Question{Text: f.Prompt(), Field: f.Name})
}

func (l *Loop) answer(ctx careflow.Context, in careflow.Instance, answer string) (careflow.Instance, careflow.Outcome) {
	answer = strings.TrimSpace(answer)

	// The asked field is the first missing one: nothing changed since the
	// question was issued.
	if missing := l.Missing(in); len(missing) > 0 {
		in.Collect(missing[0].Name, answer)
	}

	if l.Extract != nil && answer != "" {
		if missing := l.Missing(in); len(missing) > 0 {
			values, err := l.Extract.Extract(ctx, answer, missing)
			if err != nil {
				ctx.Degraded(cferrors.KindNodeDegraded, "no extraction", err)
			}
			for _, f := range missing {
				in.Collect(f.Name, strings.TrimSpace(values[f.Name]))
			}
		}
	}

	if in.IterationCount < in.MaxIterations {
		in.IterationCount++
	}
	return in, careflow.Advance(l.Name)
}

// Confidence is the fraction of fields covered in in. A loop with no
// fields is fully confident.
func (l *Loop) Confidence(in careflow.Instance) float64 {
	if len(l.Fields) == 0 {
		return 1
	}
	covered := 0
	for _, f := range l.Fields {
		if in.Has(f.Name) {
			covered++
		}
	}
	return float64(covered) / float64(len(l.Fields))
}

// Missing returns the uncovered fields in declared order.
func (l *Loop) Missing(in careflow.Instance) []Field {
	var out []Field
	for _, f := range l.Fields {
		if !in.Has(f.Name) {
			out = append(out, f)
		}
	}
	return out
}

func (l *Loop) threshold() float64 {
	if l.Threshold <= 0 {
		return DefaultThreshold
	}
	return l.Threshold
}
