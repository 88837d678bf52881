package executor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/austin-honeyjar/honeyjar-server-sub004/completion"
	"github.com/austin-honeyjar/honeyjar-server-sub004/generator"
	"github.com/austin-honeyjar/honeyjar-server-sub004/logger"
	"github.com/austin-honeyjar/honeyjar-server-sub004/model"
	"github.com/austin-honeyjar/honeyjar-server-sub004/notify"
	"github.com/austin-honeyjar/honeyjar-server-sub004/persistence"
	"github.com/austin-honeyjar/honeyjar-server-sub004/template"
	"github.com/austin-honeyjar/honeyjar-server-sub004/util"
)

const DefaultMaxAutoChainDepth = 8

// StepExecutor is the orchestration core: it applies a user response to a
// step, resolves the next eligible step over the dependency graph and drives
// the step-type-specific behavior through a per-kind handler table.
type StepExecutor struct {
	storage       persistence.WorkflowStorage
	registry      *template.Registry
	client        completion.Client
	dialog        *completion.Adapter
	generator     *generator.AssetGenerator
	actions       *ApiActionRegistry
	notifier      *notify.Notifier
	maxChainDepth int

	handlers map[model.StepType]stepHandler
}

type execContext struct {
	wf        *model.Workflow
	tpl       *model.WorkflowTemplate
	step      *model.WorkflowStep
	def       *model.StepDefinition
	steps     []model.WorkflowStep
	userInput string
}

type handlerResult struct {
	response string
	// completed reports whether the step reached Complete in this turn.
	completed bool
	// selfLoop keeps the same step active and returns it as nextStep.
	selfLoop      bool
	suggestedNext string
}

type stepHandler func(ctx context.Context, ec *execContext) (*handlerResult, error)

func NewStepExecutor(storage persistence.WorkflowStorage, registry *template.Registry,
	client completion.Client, dialog *completion.Adapter, gen *generator.AssetGenerator,
	actions *ApiActionRegistry, notifier *notify.Notifier, maxChainDepth int) *StepExecutor {
	if maxChainDepth <= 0 {
		maxChainDepth = DefaultMaxAutoChainDepth
	}
	e := &StepExecutor{
		storage:       storage,
		registry:      registry,
		client:        client,
		dialog:        dialog,
		generator:     gen,
		actions:       actions,
		notifier:      notifier,
		maxChainDepth: maxChainDepth,
	}
	e.handlers = map[model.StepType]stepHandler{
		model.STEP_TYPE_USER_INPUT:     e.handleUserInput,
		model.STEP_TYPE_AI_SUGGESTION:  e.handleAiSuggestion,
		model.STEP_TYPE_JSON_DIALOG:    e.handleJsonDialog,
		model.STEP_TYPE_API_CALL:       e.handleApiCall,
		model.STEP_TYPE_ASSET_CREATION: e.handleAssetCreation,
	}
	return e
}

// Instantiate creates a workflow and all its steps from a template on the
// given thread. The first step by order is activated, all others start
// Pending.
func (e *StepExecutor) Instantiate(ctx context.Context, threadId string, tpl *model.WorkflowTemplate) (*model.Workflow, *model.WorkflowStep, error) {
	now := time.Now().UTC()
	wf := model.Workflow{
		Id:         uuid.New().String(),
		ThreadId:   threadId,
		TemplateId: tpl.Id,
		Status:     model.WORKFLOW_STATUS_ACTIVE,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	defs := make([]model.StepDefinition, len(tpl.Steps))
	copy(defs, tpl.Steps)
	sort.Slice(defs, func(i, j int) bool { return defs[i].Order < defs[j].Order })

	steps := make([]model.WorkflowStep, 0, len(defs))
	for i, def := range defs {
		status := model.STEP_STATUS_PENDING
		if i == 0 {
			status = model.STEP_STATUS_IN_PROGRESS
		}
		steps = append(steps, model.WorkflowStep{
			Id:           uuid.New().String(),
			WorkflowId:   wf.Id,
			Name:         def.Name,
			Type:         def.Type,
			Prompt:       def.Prompt,
			Order:        def.Order,
			Dependencies: append([]string(nil), def.Dependencies...),
			Status:       status,
		})
	}
	wf.CurrentStepId = steps[0].Id
	if err := e.storage.CreateWorkflow(ctx, wf); err != nil {
		return nil, nil, err
	}
	for _, step := range steps {
		if err := e.storage.CreateStep(ctx, step); err != nil {
			return nil, nil, err
		}
	}
	logger.Info("workflow instantiated",
		zap.String("workflowId", wf.Id),
		zap.String("template", tpl.Name),
		zap.String("threadId", threadId))
	e.notify(threadId, steps[0].Prompt)
	return &wf, &steps[0], nil
}

// HandleStepResponse applies one user response to a step and advances the
// state machine: step-state update first, then dependency resolution, then
// next-step activation, in that order.
func (e *StepExecutor) HandleStepResponse(ctx context.Context, stepId string, userInput string) (*model.StepResponse, error) {
	step, err := e.storage.GetStep(ctx, stepId)
	if err != nil {
		return nil, err
	}
	wf, err := e.storage.GetWorkflow(ctx, step.WorkflowId)
	if err != nil {
		return nil, err
	}
	tpl, err := e.registry.GetById(wf.TemplateId)
	if err != nil {
		return nil, err
	}
	def := findDef(tpl, step.Name)
	if def == nil {
		return nil, model.NotFoundError{Kind: "step definition", Key: step.Name}
	}

	// a step already advanced past stays advanced: report current state
	// instead of re-running the transition
	if step.Status == model.STEP_STATUS_COMPLETE {
		return e.currentState(ctx, wf)
	}

	steps, err := e.storage.ListSteps(ctx, wf.Id)
	if err != nil {
		return nil, err
	}
	// responding to a step whose dependencies are not all met would
	// force-activate it out of order
	if step.Status == model.STEP_STATUS_PENDING {
		if missing := unmetDependencies(step, steps); len(missing) > 0 {
			return nil, model.DependencyUnmetError{StepName: step.Name, Missing: missing}
		}
	}
	ec := &execContext{wf: wf, tpl: tpl, step: step, def: def, steps: steps, userInput: userInput}

	handler, ok := e.handlers[step.Type]
	if !ok {
		return nil, fmt.Errorf("no handler for step type %s", step.Type)
	}
	result, err := handler(ctx, ec)
	if err != nil {
		return nil, err
	}

	if !result.completed {
		resp := &model.StepResponse{Response: result.response, IsComplete: false}
		if result.selfLoop {
			current, err := e.storage.GetStep(ctx, step.Id)
			if err != nil {
				return nil, err
			}
			resp.NextStep = current
		}
		return resp, nil
	}
	return e.advance(ctx, wf, step.Id, result.response, result.suggestedNext, 0)
}

// advance re-reads the step set, resolves the next eligible step and
// activates it, auto-chaining through ApiCall steps up to the depth guard.
func (e *StepExecutor) advance(ctx context.Context, wf *model.Workflow, completedStepId string, response string, suggestedNext string, depth int) (*model.StepResponse, error) {
	steps, err := e.storage.ListSteps(ctx, wf.Id)
	if err != nil {
		return nil, err
	}
	// a step already active and awaiting its own input keeps the floor: the
	// caller answered steps out of order, which is not a stuck workflow and
	// must not activate a second step alongside it
	for i := range steps {
		if steps[i].Status == model.STEP_STATUS_IN_PROGRESS {
			return &model.StepResponse{Response: response, NextStep: &steps[i], IsComplete: false}, nil
		}
	}
	next := resolveNext(steps, suggestedNext)
	if next == nil {
		for _, s := range steps {
			if s.Status != model.STEP_STATUS_COMPLETE {
				logger.Error("workflow stuck: incomplete steps but no eligible next step",
					zap.String("workflowId", wf.Id), zap.String("blocked", s.Name))
				return nil, model.InvariantViolationError{WorkflowId: wf.Id}
			}
		}
		if err := e.storage.UpdateWorkflowStatus(ctx, wf.Id, model.WORKFLOW_STATUS_COMPLETED); err != nil {
			return nil, err
		}
		if err := e.storage.UpdateWorkflowCurrentStep(ctx, wf.Id, ""); err != nil {
			return nil, err
		}
		logger.Info("workflow completed", zap.String("workflowId", wf.Id))
		return &model.StepResponse{Response: response, IsComplete: true}, nil
	}

	// commit-time staleness check: abort if another request moved the
	// workflow off the step we just handled
	current, err := e.storage.GetWorkflow(ctx, wf.Id)
	if err != nil {
		return nil, err
	}
	if current.CurrentStepId != "" && current.CurrentStepId != completedStepId && current.CurrentStepId != next.Id {
		return nil, model.StaleStepError{StepId: completedStepId}
	}

	if err := e.activate(ctx, wf, next); err != nil {
		return nil, err
	}

	if next.Type == model.STEP_TYPE_API_CALL {
		if depth >= e.maxChainDepth {
			logger.Error("auto-chain depth exceeded", zap.String("workflowId", wf.Id), zap.String("step", next.Name))
			return nil, fmt.Errorf("auto-execution chain exceeded %d steps in workflow %s", e.maxChainDepth, wf.Id)
		}
		return e.autoExecute(ctx, wf, next, depth+1)
	}

	return &model.StepResponse{Response: response, NextStep: next, IsComplete: false}, nil
}

// autoExecute runs an ApiCall step without waiting for user input and chains
// into the following activation.
func (e *StepExecutor) autoExecute(ctx context.Context, wf *model.Workflow, step *model.WorkflowStep, depth int) (*model.StepResponse, error) {
	tpl, err := e.registry.GetById(wf.TemplateId)
	if err != nil {
		return nil, err
	}
	def := findDef(tpl, step.Name)
	if def == nil {
		return nil, model.NotFoundError{Kind: "step definition", Key: step.Name}
	}
	steps, err := e.storage.ListSteps(ctx, wf.Id)
	if err != nil {
		return nil, err
	}
	ec := &execContext{wf: wf, tpl: tpl, step: step, def: def, steps: steps}
	result, err := e.handleApiCall(ctx, ec)
	if err != nil {
		return nil, err
	}
	return e.advance(ctx, wf, step.Id, result.response, result.suggestedNext, depth)
}

func (e *StepExecutor) activate(ctx context.Context, wf *model.Workflow, step *model.WorkflowStep) error {
	status := model.STEP_STATUS_IN_PROGRESS
	if err := e.storage.UpdateStep(ctx, step.Id, model.StepUpdate{Status: &status}); err != nil {
		return err
	}
	if err := e.storage.UpdateWorkflowCurrentStep(ctx, wf.Id, step.Id); err != nil {
		return err
	}
	step.Status = status
	logger.Debug("step activated", zap.String("workflowId", wf.Id), zap.String("step", step.Name))
	if step.Type != model.STEP_TYPE_API_CALL {
		e.notify(wf.ThreadId, step.Prompt)
	}
	return nil
}

// currentState reports the workflow as it stands without advancing it. Used
// when a step response arrives for an already completed step.
func (e *StepExecutor) currentState(ctx context.Context, wf *model.Workflow) (*model.StepResponse, error) {
	if wf.Status == model.WORKFLOW_STATUS_COMPLETED {
		return &model.StepResponse{Response: "This workflow is already complete.", IsComplete: true}, nil
	}
	resp := &model.StepResponse{Response: "This step is already complete.", IsComplete: false}
	if wf.CurrentStepId != "" {
		current, err := e.storage.GetStep(ctx, wf.CurrentStepId)
		if err != nil {
			return nil, err
		}
		resp.NextStep = current
		resp.Response = current.Prompt
	}
	return resp, nil
}

func (e *StepExecutor) notify(threadId string, content string) {
	if e.notifier == nil || content == "" {
		return
	}
	if err := e.notifier.AddDirectMessage(threadId, content); err != nil {
		logger.Warn("notification delivery failed", zap.String("threadId", threadId), zap.Error(err))
	}
}

// resolveNext selects the first Pending step by ascending order whose named
// dependencies are all Complete. A suggested step name wins when it is
// itself eligible.
func resolveNext(steps []model.WorkflowStep, suggested string) *model.WorkflowStep {
	complete := make(map[string]bool, len(steps))
	for _, s := range steps {
		complete[s.Name] = s.Status == model.STEP_STATUS_COMPLETE
	}
	eligible := func(s *model.WorkflowStep) bool {
		if s.Status != model.STEP_STATUS_PENDING {
			return false
		}
		for _, dep := range s.Dependencies {
			if !complete[dep] {
				return false
			}
		}
		return true
	}
	sorted := make([]*model.WorkflowStep, 0, len(steps))
	for i := range steps {
		sorted = append(sorted, &steps[i])
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	if suggested != "" {
		for _, s := range sorted {
			if s.Name == suggested && eligible(s) {
				return s
			}
		}
	}
	for _, s := range sorted {
		if eligible(s) {
			return s
		}
	}
	return nil
}

func unmetDependencies(step *model.WorkflowStep, steps []model.WorkflowStep) []string {
	complete := make(map[string]bool, len(steps))
	for _, s := range steps {
		complete[s.Name] = s.Status == model.STEP_STATUS_COMPLETE
	}
	var missing []string
	for _, dep := range step.Dependencies {
		if !complete[dep] {
			missing = append(missing, dep)
		}
	}
	return missing
}

func findDef(tpl *model.WorkflowTemplate, name string) *model.StepDefinition {
	for i := range tpl.Steps {
		if tpl.Steps[i].Name == name {
			return &tpl.Steps[i]
		}
	}
	return nil
}

func findStep(steps []model.WorkflowStep, name string) *model.WorkflowStep {
	for i := range steps {
		if steps[i].Name == name {
			return &steps[i]
		}
	}
	return nil
}

// buildContext assembles the completed steps' recorded outputs as collaborator
// context.
func buildContext(steps []model.WorkflowStep) []model.StepContext {
	sorted := make([]model.WorkflowStep, len(steps))
	copy(sorted, steps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	var out []model.StepContext
	for _, s := range sorted {
		if s.Status != model.STEP_STATUS_COMPLETE {
			continue
		}
		sc := model.StepContext{StepName: s.Name, UserInput: s.UserInput, Output: s.Output}
		if collected, ok := s.Metadata[model.MetaCollectedInformation].(map[string]any); ok {
			sc.Collected = collected
		}
		out = append(out, sc)
	}
	return out
}

// collectedData flattens completed steps' recorded values into a lookup map
// keyed by the steps' context keys, for jsonpath resolution.
func collectedData(steps []model.WorkflowStep, sourceSteps []string) map[string]any {
	include := func(name string) bool {
		if len(sourceSteps) == 0 {
			return true
		}
		for _, s := range sourceSteps {
			if s == name {
				return true
			}
		}
		return false
	}
	data := make(map[string]any)
	for _, s := range steps {
		if s.Status != model.STEP_STATUS_COMPLETE || !include(s.Name) {
			continue
		}
		key := util.ContextKey(s.Name)
		if collected, ok := s.Metadata[model.MetaCollectedInformation].(map[string]any); ok {
			data[key] = collected
		} else if s.Output != "" {
			data[key] = s.Output
		} else if s.UserInput != "" {
			data[key] = s.UserInput
		}
	}
	return data
}
