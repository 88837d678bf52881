package model

import (
	"fmt"
	"strings"
)

type NotFoundError struct {
	Kind string
	Key  string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

type DependencyUnmetError struct {
	StepName string
	Missing  []string
}

func (e DependencyUnmetError) Error() string {
	return fmt.Sprintf("step %s has unmet dependencies: %s", e.StepName, strings.Join(e.Missing, ", "))
}

// InvariantViolationError signals a stuck workflow: not every step is
// complete yet no pending step is eligible to activate.
type InvariantViolationError struct {
	WorkflowId string
}

func (e InvariantViolationError) Error() string {
	return fmt.Sprintf("workflow %s has incomplete steps but no eligible next step", e.WorkflowId)
}

type ProtocolParseError struct {
	Raw string
}

func (e ProtocolParseError) Error() string {
	return "completion reply did not parse into a dialog result"
}

type TransitionUnresolvedError struct {
	Selection string
	Available []string
}

func (e TransitionUnresolvedError) Error() string {
	return fmt.Sprintf("selection %q matches no registered template", e.Selection)
}

type WorkflowConflictError struct {
	ThreadId string
}

func (e WorkflowConflictError) Error() string {
	return fmt.Sprintf("thread %s already has an active workflow", e.ThreadId)
}

// StaleStepError rejects a step transition whose workflow moved on while the
// request was in flight.
type StaleStepError struct {
	StepId string
}

func (e StaleStepError) Error() string {
	return fmt.Sprintf("step %s is no longer the workflow's current step", e.StepId)
}

type StorageLayerError struct{}

func (e StorageLayerError) Error() string {
	return "error in underline storage layer"
}
