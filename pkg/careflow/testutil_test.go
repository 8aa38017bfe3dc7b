package careflow

import (
	"context"
	"time"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// fixedClock returns a clock that advances one second per call.
func fixedClock() func() time.Time {
	now := testEpoch
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

// mark records the node in Collected under "visited_<id>" and continues.
func mark(id string) StepFunc {
	return func(_ Context, in Instance, _ *string) (Instance, Outcome) {
		in.Collect("visited_"+id, "yes")
		return in, Continue()
	}
}

// ask suspends on entry with field's question and records the answer on
// resume.
func ask(field string) StepFunc {
	return func(_ Context, in Instance, input *string) (Instance, Outcome) {
		if input == nil {
			if in.Has(field) {
				return in, Continue()
			}
			return in, Suspend(Question{Text: "What is your " + field + "?", Field: field})
		}
		in.Collect(field, *input)
		return in, Continue()
	}
}

// gather asks for fields in order, one per iteration, and advances to next
// once all are collected or the budget is spent.
func gather(fields []string, next string) StepFunc {
	return func(_ Context, in Instance, input *string) (Instance, Outcome) {
		if input != nil {
			for _, f := range fields {
				if !in.Has(f) {
					in.Collect(f, *input)
					break
				}
			}
			in.IterationCount++
			return in, Advance("gather")
		}
		for _, f := range fields {
			if !in.Has(f) {
				if in.IterationCount >= in.MaxIterations {
					in.IncompleteAssessment = true
					return in, Advance(next)
				}
				return in, Suspend(Question{Text: "Tell me your " + f, Field: f})
			}
		}
		return in, Advance(next)
	}
}

func done(_ Context, in Instance, _ *string) (Instance, Outcome) {
	return in, Complete(Output{Text: "done", Data: map[string]string{"count": "1"}})
}

// twoQuestionWorkflow asks for name then city and completes.
func twoQuestionWorkflow() *Workflow {
	return NewGraph("intake").
		AddNode("name", ask("name")).
		AddNode("city", ask("city")).
		AddStep("done", done).
		AddEdge("name", "city").
		AddEdge("city", "done").
		AddEdge("done", END).
		SetEntry("name").
		SetHandoffKeys("name", "city", "count").
		mustCompile()
}

func gatherWorkflow(maxIterations int, fields ...string) *Workflow {
	return NewGraph("gathering").
		AddNode("gather", gather(fields, "done")).
		AddStep("done", done).
		AddEdge("gather", "gather").
		AddEdge("gather", "done").
		AddEdge("done", END).
		SetEntry("gather").
		SetMaxIterations(maxIterations).
		mustCompile()
}

func (g *Graph) mustCompile() *Workflow {
	wf, err := g.Compile()
	if err != nil {
		panic(err)
	}
	return wf
}

func testCtx() context.Context {
	return context.Background()
}
