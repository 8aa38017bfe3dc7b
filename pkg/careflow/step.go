package careflow

// END is the terminal node identifier. Reaching it completes the instance.
const END = "__end__"

// OutcomeKind tells the engine what to do after a step.
type OutcomeKind int

const (
	// OutcomeContinue follows the node's conditional router or first edge.
	OutcomeContinue OutcomeKind = iota
	// OutcomeAdvance moves to a named node, which must be a declared edge.
	OutcomeAdvance
	// OutcomeSuspend stops the drive and waits for an answer.
	OutcomeSuspend
	// OutcomeComplete finishes the instance with an output.
	OutcomeComplete
	// OutcomeFail finishes the instance as failed.
	OutcomeFail
)

// String returns the outcome name used in logs and metrics.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeContinue:
		return "continue"
	case OutcomeAdvance:
		return "advance"
	case OutcomeSuspend:
		return "suspend"
	case OutcomeComplete:
		return "complete"
	case OutcomeFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Outcome is the result of one step.
type Outcome struct {
	Kind     OutcomeKind
	Next     string
	Question Question
	Output   Output
	Reason   string
}

// Advance moves to next. A node may advance to itself only if it declared
// the self-edge.
func Advance(next string) Outcome { return Outcome{Kind: OutcomeAdvance, Next: next} }

// Continue follows the node's declared routing.
func Continue() Outcome { return Outcome{Kind: OutcomeContinue} }

// Suspend stops and asks q.
func Suspend(q Question) Outcome { return Outcome{Kind: OutcomeSuspend, Question: q} }

// Complete finishes with out.
func Complete(out Output) Outcome { return Outcome{Kind: OutcomeComplete, Output: out} }

// Fail finishes with a failure reason.
func Fail(reason string) Outcome { return Outcome{Kind: OutcomeFail, Reason: reason} }

// Step is one node of a workflow. input is nil when the node is entered by a
// transition and points at the user's answer when the node is re-entered by
// Resume.
//
// Example:
//
//	func greet(ctx careflow.Context, in careflow.Instance, input *string) (careflow.Instance, careflow.Outcome) {
//	    if input == nil {
//	        return in, careflow.Suspend(careflow.Question{Text: "What is your name?", Field: "name"})
//	    }
//	    in.Collect("name", *input)
//	    return in, careflow.Continue()
//	}
type Step interface {
	Step(ctx Context, in Instance, input *string) (Instance, Outcome)
}

// StepFunc adapts a function to Step.
type StepFunc func(ctx Context, in Instance, input *string) (Instance, Outcome)

// Step implements Step.
func (f StepFunc) Step(ctx Context, in Instance, input *string) (Instance, Outcome) {
	return f(ctx, in, input)
}

// RouterFunc picks the next node for OutcomeContinue at runtime.
// It should return a declared node ID or END.
type RouterFunc func(ctx Context, in Instance) string
