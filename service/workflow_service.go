package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/austin-honeyjar/honeyjar-server-sub004/executor"
	"github.com/austin-honeyjar/honeyjar-server-sub004/logger"
	"github.com/austin-honeyjar/honeyjar-server-sub004/model"
	"github.com/austin-honeyjar/honeyjar-server-sub004/persistence"
	"github.com/austin-honeyjar/honeyjar-server-sub004/template"
	"github.com/austin-honeyjar/honeyjar-server-sub004/transition"
)

// WorkflowService is the engine's public surface. All step-response calls for
// one thread are serialized through a per-thread lock, so two requests racing
// on the same step can never both advance the state machine.
type WorkflowService struct {
	storage    persistence.WorkflowStorage
	registry   *template.Registry
	executor   *executor.StepExecutor
	transition *transition.Manager

	threadLocks sync.Map
}

func NewWorkflowService(storage persistence.WorkflowStorage, registry *template.Registry,
	exec *executor.StepExecutor, trans *transition.Manager) *WorkflowService {
	return &WorkflowService{
		storage:    storage,
		registry:   registry,
		executor:   exec,
		transition: trans,
	}
}

func (s *WorkflowService) lockThread(threadId string) func() {
	value, _ := s.threadLocks.LoadOrStore(threadId, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// CreateWorkflow instantiates the named template on a thread. A thread may
// hold at most one active workflow; a second create is rejected outright.
func (s *WorkflowService) CreateWorkflow(ctx context.Context, threadId string, templateName string) (*model.Workflow, error) {
	tpl, err := s.registry.GetByName(templateName)
	if err != nil {
		tpl, err = s.registry.GetById(templateName)
		if err != nil {
			return nil, model.NotFoundError{Kind: "template", Key: templateName}
		}
	}
	unlock := s.lockThread(threadId)
	defer unlock()

	active, err := s.activeWorkflow(ctx, threadId)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, model.WorkflowConflictError{ThreadId: threadId}
	}
	wf, _, err := s.executor.Instantiate(ctx, threadId, tpl)
	if err != nil {
		return nil, err
	}
	return wf, nil
}

func (s *WorkflowService) GetWorkflow(ctx context.Context, id string) (*model.Workflow, error) {
	return s.storage.GetWorkflow(ctx, id)
}

// GetWorkflowByThread returns the thread's active workflow, or nil when the
// thread has none.
func (s *WorkflowService) GetWorkflowByThread(ctx context.Context, threadId string) (*model.Workflow, error) {
	return s.activeWorkflow(ctx, threadId)
}

func (s *WorkflowService) GetWorkflowSteps(ctx context.Context, workflowId string) ([]model.WorkflowStep, error) {
	if _, err := s.storage.GetWorkflow(ctx, workflowId); err != nil {
		return nil, err
	}
	return s.storage.ListSteps(ctx, workflowId)
}

// HandleStepResponse applies one user message to a step. When the call
// completes an entry workflow, the transition to the selected successor
// workflow happens inside the same per-thread critical section.
func (s *WorkflowService) HandleStepResponse(ctx context.Context, stepId string, userInput string) (*model.StepResponse, error) {
	step, err := s.storage.GetStep(ctx, stepId)
	if err != nil {
		return nil, err
	}
	wf, err := s.storage.GetWorkflow(ctx, step.WorkflowId)
	if err != nil {
		return nil, err
	}
	unlock := s.lockThread(wf.ThreadId)
	defer unlock()

	resp, err := s.executor.HandleStepResponse(ctx, stepId, userInput)
	if err != nil {
		return nil, err
	}
	if !resp.IsComplete {
		return resp, nil
	}
	completed, err := s.storage.GetWorkflow(ctx, wf.Id)
	if err != nil {
		return nil, err
	}
	transitioned, err := s.transition.HandleCompletion(ctx, completed)
	if err != nil {
		logger.Error("workflow transition failed", zap.String("workflowId", wf.Id), zap.Error(err))
		return resp, nil
	}
	if transitioned != nil {
		return transitioned, nil
	}
	return resp, nil
}

func (s *WorkflowService) DeleteWorkflow(ctx context.Context, id string) error {
	wf, err := s.storage.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}
	unlock := s.lockThread(wf.ThreadId)
	defer unlock()
	return s.storage.DeleteWorkflow(ctx, id)
}

// ListTemplates returns the registered template names.
func (s *WorkflowService) ListTemplates() []string {
	return s.registry.List()
}

func (s *WorkflowService) activeWorkflow(ctx context.Context, threadId string) (*model.Workflow, error) {
	workflows, err := s.storage.ListWorkflowsByThread(ctx, threadId)
	if err != nil {
		return nil, err
	}
	var active *model.Workflow
	for i := range workflows {
		if workflows[i].Status != model.WORKFLOW_STATUS_ACTIVE {
			continue
		}
		if active != nil {
			// more than one active workflow on a thread is an inconsistent
			// state; surface it rather than guessing
			logger.Error("multiple active workflows on thread", zap.String("threadId", threadId))
			return nil, model.InvariantViolationError{WorkflowId: workflows[i].Id}
		}
		active = &workflows[i]
	}
	return active, nil
}
