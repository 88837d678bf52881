package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/austin-honeyjar/honeyjar-server-sub004/model"
	"github.com/austin-honeyjar/honeyjar-server-sub004/persistence"
)

var _ persistence.WorkflowStorage = new(InMemStorage)

// InMemStorage keeps workflows and steps in process memory. Used for local
// development and tests.
type InMemStorage struct {
	mu        sync.RWMutex
	workflows map[string]model.Workflow
	steps     map[string]model.WorkflowStep
}

func NewInMemStorage() *InMemStorage {
	return &InMemStorage{
		workflows: make(map[string]model.Workflow),
		steps:     make(map[string]model.WorkflowStep),
	}
}

func (s *InMemStorage) CreateWorkflow(ctx context.Context, wf model.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[wf.Id] = wf
	return nil
}

func (s *InMemStorage) GetWorkflow(ctx context.Context, id string) (*model.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, model.NotFoundError{Kind: "workflow", Key: id}
	}
	return &wf, nil
}

func (s *InMemStorage) ListWorkflowsByThread(ctx context.Context, threadId string) ([]model.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Workflow
	for _, wf := range s.workflows {
		if wf.ThreadId == threadId {
			out = append(out, wf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemStorage) UpdateWorkflowStatus(ctx context.Context, id string, status model.WorkflowStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[id]
	if !ok {
		return model.NotFoundError{Kind: "workflow", Key: id}
	}
	wf.Status = status
	wf.UpdatedAt = time.Now().UTC()
	s.workflows[id] = wf
	return nil
}

func (s *InMemStorage) UpdateWorkflowCurrentStep(ctx context.Context, id string, stepId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[id]
	if !ok {
		return model.NotFoundError{Kind: "workflow", Key: id}
	}
	wf.CurrentStepId = stepId
	wf.UpdatedAt = time.Now().UTC()
	s.workflows[id] = wf
	return nil
}

func (s *InMemStorage) DeleteWorkflow(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for stepId, step := range s.steps {
		if step.WorkflowId == id {
			delete(s.steps, stepId)
		}
	}
	delete(s.workflows, id)
	return nil
}

func (s *InMemStorage) CreateStep(ctx context.Context, step model.WorkflowStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps[step.Id] = copyStep(step)
	return nil
}

func (s *InMemStorage) GetStep(ctx context.Context, id string) (*model.WorkflowStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	step, ok := s.steps[id]
	if !ok {
		return nil, model.NotFoundError{Kind: "step", Key: id}
	}
	out := copyStep(step)
	return &out, nil
}

func (s *InMemStorage) ListSteps(ctx context.Context, workflowId string) ([]model.WorkflowStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.WorkflowStep
	for _, step := range s.steps {
		if step.WorkflowId == workflowId {
			out = append(out, copyStep(step))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (s *InMemStorage) UpdateStep(ctx context.Context, id string, update model.StepUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	step, ok := s.steps[id]
	if !ok {
		return model.NotFoundError{Kind: "step", Key: id}
	}
	if update.Status != nil {
		step.Status = *update.Status
	}
	if update.UserInput != nil {
		step.UserInput = *update.UserInput
	}
	if update.Output != nil {
		step.Output = *update.Output
	}
	if update.Prompt != nil {
		step.Prompt = *update.Prompt
	}
	if len(update.Metadata) > 0 {
		if step.Metadata == nil {
			step.Metadata = make(map[string]any)
		} else {
			merged := make(map[string]any, len(step.Metadata))
			for k, v := range step.Metadata {
				merged[k] = v
			}
			step.Metadata = merged
		}
		for k, v := range update.Metadata {
			step.Metadata[k] = v
		}
	}
	s.steps[id] = step
	return nil
}

func (s *InMemStorage) DeleteStep(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.steps, id)
	return nil
}

func copyStep(step model.WorkflowStep) model.WorkflowStep {
	out := step
	if step.Metadata != nil {
		out.Metadata = make(map[string]any, len(step.Metadata))
		for k, v := range step.Metadata {
			out.Metadata[k] = v
		}
	}
	if step.Dependencies != nil {
		out.Dependencies = append([]string(nil), step.Dependencies...)
	}
	return out
}
