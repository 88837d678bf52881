package persistence

import (
	"context"

	"github.com/austin-honeyjar/honeyjar-server-sub004/model"
)

// WorkflowStorage is the durable store for workflows and their steps. Step
// updates are always field-level partial updates so concurrent writers of
// disjoint fields (status vs. metadata markers) do not clobber each other.
type WorkflowStorage interface {
	CreateWorkflow(ctx context.Context, wf model.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*model.Workflow, error)
	ListWorkflowsByThread(ctx context.Context, threadId string) ([]model.Workflow, error)
	UpdateWorkflowStatus(ctx context.Context, id string, status model.WorkflowStatus) error
	// UpdateWorkflowCurrentStep sets the active step pointer; empty stepId
	// clears it.
	UpdateWorkflowCurrentStep(ctx context.Context, id string, stepId string) error
	// DeleteWorkflow removes the workflow after cascading over its steps.
	DeleteWorkflow(ctx context.Context, id string) error

	CreateStep(ctx context.Context, step model.WorkflowStep) error
	GetStep(ctx context.Context, id string) (*model.WorkflowStep, error)
	ListSteps(ctx context.Context, workflowId string) ([]model.WorkflowStep, error)
	UpdateStep(ctx context.Context, id string, update model.StepUpdate) error
	DeleteStep(ctx context.Context, id string) error
}
