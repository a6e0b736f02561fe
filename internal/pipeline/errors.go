// Package pipeline runs one invocation through the fixed stage
// sequence: resolve target, load registry, compose bundle, inject env,
// dispatch. Every failure is terminal and tagged with its stage; no
// container is touched until every validation stage has passed.
package pipeline

import "fmt"

// =============================================================================
// Stages
// =============================================================================

// Stage identifies one step of the invocation pipeline.
type Stage string

const (
	StageResolve  Stage = "resolve"
	StageRegistry Stage = "registry"
	StageCompose  Stage = "compose"
	StageInject   Stage = "inject"
	StageDispatch Stage = "dispatch"
)

// StageError tags a failure with the pipeline stage it occurred in,
// producing the single-line diagnostic operators see.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError creates a new StageError.
func NewStageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
