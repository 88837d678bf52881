package transition

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/austin-honeyjar/honeyjar-server-sub004/executor"
	"github.com/austin-honeyjar/honeyjar-server-sub004/logger"
	"github.com/austin-honeyjar/honeyjar-server-sub004/model"
	"github.com/austin-honeyjar/honeyjar-server-sub004/persistence"
	"github.com/austin-honeyjar/honeyjar-server-sub004/template"
	"github.com/austin-honeyjar/honeyjar-server-sub004/util"
)

// Manager replaces a just-completed entry workflow with the workflow the
// user selected, on the same thread.
type Manager struct {
	registry *template.Registry
	storage  persistence.WorkflowStorage
	executor *executor.StepExecutor
}

func NewManager(registry *template.Registry, storage persistence.WorkflowStorage, exec *executor.StepExecutor) *Manager {
	return &Manager{registry: registry, storage: storage, executor: exec}
}

// HandleCompletion inspects a completed workflow and, when it is the entry
// template, resolves its recorded selection to a successor template and
// instantiates it. Returns the successor's first step and prompt, or a
// recovery message listing the valid options when the selection resolves to
// nothing; in that case the thread is left with no active workflow.
func (m *Manager) HandleCompletion(ctx context.Context, wf *model.Workflow) (*model.StepResponse, error) {
	tpl, err := m.registry.GetById(wf.TemplateId)
	if err != nil {
		return nil, err
	}
	if !tpl.Entry {
		return nil, nil
	}
	selection, err := m.recordedSelection(ctx, wf, tpl.SelectionStep)
	if err != nil {
		return nil, err
	}
	candidates := m.candidateNames(tpl.Name)
	resolved := util.MatchName(selection, candidates)
	if resolved == "" {
		unresolved := model.TransitionUnresolvedError{Selection: selection, Available: candidates}
		logger.Warn("selection resolved to no template",
			zap.String("workflowId", wf.Id), zap.Error(unresolved))
		return &model.StepResponse{
			Response: "I couldn't match " + strings.TrimSpace(selection) +
				" to a workflow. Available options: " + strings.Join(candidates, ", "),
			IsComplete: true,
		}, nil
	}
	next, err := m.registry.GetByName(resolved)
	if err != nil {
		return nil, err
	}
	newWf, firstStep, err := m.executor.Instantiate(ctx, wf.ThreadId, next)
	if err != nil {
		return nil, err
	}
	logger.Info("workflow transition",
		zap.String("from", tpl.Name),
		zap.String("to", next.Name),
		zap.String("threadId", wf.ThreadId),
		zap.String("newWorkflowId", newWf.Id))
	return &model.StepResponse{Response: firstStep.Prompt, NextStep: firstStep, IsComplete: false}, nil
}

func (m *Manager) recordedSelection(ctx context.Context, wf *model.Workflow, stepName string) (string, error) {
	steps, err := m.storage.ListSteps(ctx, wf.Id)
	if err != nil {
		return "", err
	}
	for _, step := range steps {
		if step.Name != stepName {
			continue
		}
		if collected, ok := step.Metadata[model.MetaCollectedInformation].(map[string]any); ok {
			if sel, ok := collected[model.MetaSelection].(string); ok && sel != "" {
				return sel, nil
			}
		}
		return step.UserInput, nil
	}
	return "", model.NotFoundError{Kind: "step", Key: stepName}
}

// candidateNames is every registered template except the entry template
// itself.
func (m *Manager) candidateNames(entryName string) []string {
	var out []string
	for _, name := range m.registry.List() {
		if name == entryName {
			continue
		}
		out = append(out, name)
	}
	return out
}
