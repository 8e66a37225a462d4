package phase

import "github.com/marcus-qen/turnengine/internal/money"

// AIOperation is one gateway call recorded against a phase's AI usage.
type AIOperation struct {
	Operation string
	Model     string
	Cost      money.Micros
	Tokens    int64
}

// AIUsage aggregates every AI gateway call a phase made. Invariant:
// sum(Operations.Cost) == TotalCost and sum(Operations.Tokens) ==
// TotalTokens — enforced by AddOperation, never by the caller summing by
// hand.
type AIUsage struct {
	TotalCost   money.Micros
	TotalTokens int64
	Operations  []AIOperation
}

// AddOperation appends an operation and keeps the running totals exact.
func (u *AIUsage) AddOperation(op AIOperation) {
	u.Operations = append(u.Operations, op)
	u.TotalCost = u.TotalCost.Add(op.Cost)
	u.TotalTokens += op.Tokens
}

// ErrorDetails carries the structured failure payload for a phase.
type ErrorDetails struct {
	ErrorKind    string
	ErrorType    string
	ErrorMessage string
	TimeoutMs    int64
	Extra        map[string]any
}

// CrossContextCall records one outbound collaborator invocation.
type CrossContextCall struct {
	CallID         string
	Timestamp      int64 // unix millis
	Target         string
	Operation      string
	Parameters     map[string]any
	Response       map[string]any
	ResponseTimeMs int64
	Success        bool
}

// Result is the outcome of one phase execution.
type Result struct {
	Success            bool
	EventsProcessed    int
	EventsGenerated    []string
	ArtifactsCreated   []string
	PerformanceMetrics map[string]float64
	AIUsage            *AIUsage
	ErrorDetails       *ErrorDetails
	RollbackData       map[string]any
	CrossContextCalls  []CrossContextCall
	Metadata           map[string]any
}

// Validate checks the result's shape invariants: eventsProcessed >= 0, and
// the AI usage shape is internally consistent when present.
func (r Result) Validate() error {
	if r.EventsProcessed < 0 {
		return errInvalidResult("events_processed must be >= 0")
	}
	if r.AIUsage != nil {
		var costSum money.Micros
		var tokenSum int64
		for _, op := range r.AIUsage.Operations {
			costSum = costSum.Add(op.Cost)
			tokenSum += op.Tokens
		}
		if costSum != r.AIUsage.TotalCost {
			return errInvalidResult("ai usage total cost does not match sum of operation costs")
		}
		if tokenSum != r.AIUsage.TotalTokens {
			return errInvalidResult("ai usage total tokens does not match sum of operation tokens")
		}
	}
	return nil
}

type resultValidationError string

func (e resultValidationError) Error() string { return string(e) }

func errInvalidResult(msg string) error { return resultValidationError(msg) }
