/*
Package careflow is an interruptible workflow engine for multi-turn
conversations.

# Overview

A workflow is a graph of named steps. Each step receives the instance state
by value and returns the transformed state plus an Outcome: Advance to a
declared node, Continue along the node's routing, Suspend with a question,
Complete with an output, or Fail. A suspended instance is just data: it can
be encoded with EncodeSnapshot, stored, and resumed later by another
process with Resume.

# Basic Usage

	wf, err := careflow.NewGraph("greeting").
	    AddStep("ask", func(ctx careflow.Context, in careflow.Instance, input *string) (careflow.Instance, careflow.Outcome) {
	        if input == nil {
	            return in, careflow.Suspend(careflow.Question{Text: "What is your name?", Field: "name"})
	        }
	        in.Collect("name", *input)
	        return in, careflow.Continue()
	    }).
	    AddEdge("ask", careflow.END).
	    SetEntry("ask").
	    Compile()

	inst, _ := wf.Start(ctx, wf.NewInstance("session-1", nil))
	// inst.Status == careflow.StatusSuspended, inst.PendingQuestion.Text == "What is your name?"

	inst, _ = wf.Resume(ctx, inst, "Ada")
	// inst.Status == careflow.StatusCompleted, inst.Collected["name"] == "Ada"

# Loops

A node that asks repeatedly advances to itself. The self-edge must be
declared and every pass increments IterationCount, which the engine never
lets exceed MaxIterations:

	graph.AddEdge("gather", "gather").AddEdge("gather", "assess")

The confidence subpackage provides the standard follow-up loop.

# Persistence

WithCheckpoint saves the instance after every step through a
checkpoint.Cursor and deletes the checkpoint once the instance completes
or fails. The cursor carries the version read at the start of the turn, so
a second writer holding the same version gets checkpoint.ErrVersionConflict
instead of overwriting.

# Invariants

The engine enforces, after every step:
  - Status is suspended exactly when PendingQuestion is set
  - IterationCount stays within [0, MaxIterations] and never decreases
  - Collected is append-only: a value once set is never changed or removed
  - Advance targets are declared edges

A step that breaks one fails the instance with a typed error. A panicking
step fails the instance with a PanicError.
*/
package careflow
