package domain

import "time"

// =============================================================================
// Invocation Journal
// =============================================================================

// InvocationOutcome classifies how a recorded invocation ended.
type InvocationOutcome string

const (
	OutcomeSuccess InvocationOutcome = "success"
	OutcomeFailure InvocationOutcome = "failure"
)

// InvocationRecord is one journal row describing a mutating invocation
// (fix, up, down, ...). The journal is write-only with respect to the
// composition path: no stage ever reads it back to make a decision.
type InvocationRecord struct {
	ID        string
	Command   string
	Target    string
	Fragments []string
	Services  []string
	Outcome   InvocationOutcome
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}
