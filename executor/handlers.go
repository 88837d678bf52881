package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/austin-honeyjar/honeyjar-server-sub004/logger"
	"github.com/austin-honeyjar/honeyjar-server-sub004/model"
	"github.com/austin-honeyjar/honeyjar-server-sub004/util"
)

func (e *StepExecutor) handleUserInput(ctx context.Context, ec *execContext) (*handlerResult, error) {
	status := model.STEP_STATUS_COMPLETE
	update := model.StepUpdate{
		Status:    &status,
		UserInput: &ec.userInput,
	}
	if err := e.storage.UpdateStep(ctx, ec.step.Id, update); err != nil {
		return nil, err
	}
	return &handlerResult{response: "Noted.", completed: true}, nil
}

// handleAiSuggestion records the user's input as the step's final value and
// produces a best-effort suggestion; a collaborator failure never blocks the
// step from completing.
func (e *StepExecutor) handleAiSuggestion(ctx context.Context, ec *execContext) (*handlerResult, error) {
	conf, ok := ec.def.Config.(model.AiSuggestionConfig)
	if !ok {
		return nil, fmt.Errorf("step %s carries no ai suggestion config", ec.step.Name)
	}
	response := "Noted."
	var output string
	if conf.Instructions != "" {
		suggestion, err := e.client.Complete(ctx, model.CompletionRequest{
			Instructions: conf.Instructions,
			UserText:     ec.userInput,
			Context:      buildContext(ec.steps),
		})
		if err != nil {
			logger.Warn("suggestion generation failed", zap.String("step", ec.step.Name), zap.Error(err))
		} else {
			output = suggestion
			response = suggestion
		}
	}
	status := model.STEP_STATUS_COMPLETE
	update := model.StepUpdate{
		Status:    &status,
		UserInput: &ec.userInput,
	}
	if output != "" {
		update.Output = &output
	}
	if err := e.storage.UpdateStep(ctx, ec.step.Id, update); err != nil {
		return nil, err
	}
	return &handlerResult{response: response, completed: true}, nil
}

func (e *StepExecutor) handleJsonDialog(ctx context.Context, ec *execContext) (*handlerResult, error) {
	conf, ok := ec.def.Config.(model.JsonDialogConfig)
	if !ok {
		return nil, fmt.Errorf("step %s carries no json dialog config", ec.step.Name)
	}
	if conf.ReviewOf != "" {
		return e.handleReview(ctx, ec, conf)
	}

	stepContext := buildContext(ec.steps)
	partial, _ := ec.step.Metadata[model.MetaCollectedInformation].(map[string]any)
	if len(partial) > 0 {
		stepContext = append(stepContext, model.StepContext{StepName: ec.step.Name, Collected: partial})
	}
	result := e.dialog.RunDialog(ctx, conf, ec.userInput, stepContext)

	collected := make(map[string]any, len(partial)+len(result.CollectedInformation))
	for k, v := range partial {
		collected[k] = v
	}
	for k, v := range result.CollectedInformation {
		collected[k] = v
	}

	update := model.StepUpdate{UserInput: &ec.userInput}
	if len(collected) > 0 {
		update.Metadata = map[string]any{model.MetaCollectedInformation: collected}
	}
	if !result.IsComplete {
		if err := e.storage.UpdateStep(ctx, ec.step.Id, update); err != nil {
			return nil, err
		}
		return &handlerResult{response: result.NextQuestion}, nil
	}
	status := model.STEP_STATUS_COMPLETE
	update.Status = &status
	if err := e.storage.UpdateStep(ctx, ec.step.Id, update); err != nil {
		return nil, err
	}
	return &handlerResult{
		response:      fmt.Sprintf("Great, I have what I need for %s.", ec.step.Name),
		completed:     true,
		suggestedNext: result.SuggestedNextStep,
	}, nil
}

// handleReview drives the generate/review/revise loop. The review step has a
// self-loop edge: revision feedback regenerates the reviewed asset and
// re-activates the same step with the new draft embedded in its prompt.
func (e *StepExecutor) handleReview(ctx context.Context, ec *execContext, conf model.JsonDialogConfig) (*handlerResult, error) {
	assetStep := findStep(ec.steps, conf.ReviewOf)
	if assetStep == nil {
		return nil, model.NotFoundError{Kind: "step", Key: conf.ReviewOf}
	}
	review := e.dialog.ClassifyReview(ctx, conf, ec.userInput, assetStep.Output)

	switch review.Classification {
	case model.REVIEW_APPROVED:
		status := model.STEP_STATUS_COMPLETE
		update := model.StepUpdate{
			Status:    &status,
			UserInput: &ec.userInput,
			Metadata:  map[string]any{model.MetaApproved: true},
		}
		if err := e.storage.UpdateStep(ctx, ec.step.Id, update); err != nil {
			return nil, err
		}
		if conf.SkipOnApprove != "" {
			if err := e.skipStep(ctx, ec.steps, conf.SkipOnApprove); err != nil {
				return nil, err
			}
		}
		return &handlerResult{response: "Approved.", completed: true}, nil

	case model.REVIEW_REVISION_REQUESTED:
		return e.reviseAsset(ctx, ec, conf, assetStep, review.Feedback)

	default:
		if err := e.storage.UpdateStep(ctx, ec.step.Id, model.StepUpdate{UserInput: &ec.userInput}); err != nil {
			return nil, err
		}
		return &handlerResult{response: "Should I revise the draft, or is it good as is?"}, nil
	}
}

func (e *StepExecutor) reviseAsset(ctx context.Context, ec *execContext, conf model.JsonDialogConfig, assetStep *model.WorkflowStep, feedback string) (*handlerResult, error) {
	assetDef := findDef(ec.tpl, conf.ReviewOf)
	if assetDef == nil {
		return nil, model.NotFoundError{Kind: "step definition", Key: conf.ReviewOf}
	}
	assetConf, ok := assetDef.Config.(model.AssetCreationConfig)
	if !ok {
		return nil, fmt.Errorf("step %s carries no asset creation config", conf.ReviewOf)
	}
	if feedback == "" {
		feedback = ec.userInput
	}
	data := collectedData(ec.steps, assetConf.SourceSteps)
	artifact, err := e.generator.Generate(ctx, assetConf, data, buildContext(ec.steps), assetStep.Output, feedback)
	if err != nil {
		// collaborator unavailable: stay on the review step and tell the
		// user instead of failing the call
		return &handlerResult{response: "I couldn't revise the draft just now. Please try again in a moment."}, nil
	}
	if err := e.storage.UpdateStep(ctx, assetStep.Id, model.StepUpdate{Output: &artifact}); err != nil {
		return nil, err
	}

	revisions := 0
	if n, ok := ec.step.Metadata[model.MetaRevisionCount].(float64); ok {
		revisions = int(n)
	} else if n, ok := ec.step.Metadata[model.MetaRevisionCount].(int); ok {
		revisions = n
	}
	prompt := "Here is the revised draft:\n\n" + artifact + "\n\nWould you like any further changes, or does it look good?"
	update := model.StepUpdate{
		UserInput: &ec.userInput,
		Prompt:    &prompt,
		Metadata:  map[string]any{model.MetaRevisionCount: revisions + 1},
	}
	if err := e.storage.UpdateStep(ctx, ec.step.Id, update); err != nil {
		return nil, err
	}
	e.notify(ec.wf.ThreadId, prompt)
	return &handlerResult{response: prompt, selfLoop: true}, nil
}

// skipStep marks a dependency-gate step Complete with a skip marker so
// resolution can proceed past it without its own input.
func (e *StepExecutor) skipStep(ctx context.Context, steps []model.WorkflowStep, name string) error {
	step := findStep(steps, name)
	if step == nil {
		return model.NotFoundError{Kind: "step", Key: name}
	}
	if step.Status == model.STEP_STATUS_COMPLETE {
		return nil
	}
	status := model.STEP_STATUS_COMPLETE
	return e.storage.UpdateStep(ctx, step.Id, model.StepUpdate{
		Status:   &status,
		Metadata: map[string]any{model.MetaSkipped: true},
	})
}

// handleApiCall runs the step's registered action with its params resolved
// against everything collected so far. No user input is involved.
func (e *StepExecutor) handleApiCall(ctx context.Context, ec *execContext) (*handlerResult, error) {
	conf, ok := ec.def.Config.(model.ApiCallConfig)
	if !ok {
		return nil, fmt.Errorf("step %s carries no api call config", ec.step.Name)
	}
	action, err := e.actions.Get(conf.Action)
	if err != nil {
		return nil, err
	}
	data := collectedData(ec.steps, nil)
	params := util.ResolveParams(data, conf.Params)
	result, err := action.Execute(ctx, params, buildContext(ec.steps))
	if err != nil {
		logger.Error("api action failed", zap.String("action", conf.Action), zap.String("step", ec.step.Name), zap.Error(err))
		return nil, fmt.Errorf("executing action %s: %w", conf.Action, err)
	}
	status := model.STEP_STATUS_COMPLETE
	update := model.StepUpdate{
		Status:   &status,
		Metadata: map[string]any{model.MetaApiResult: result},
	}
	response := ""
	if summary, ok := result["summary"].(string); ok {
		update.Output = &summary
		response = summary
	}
	if err := e.storage.UpdateStep(ctx, ec.step.Id, update); err != nil {
		return nil, err
	}
	return &handlerResult{response: response, completed: true}, nil
}

func (e *StepExecutor) handleAssetCreation(ctx context.Context, ec *execContext) (*handlerResult, error) {
	conf, ok := ec.def.Config.(model.AssetCreationConfig)
	if !ok {
		return nil, fmt.Errorf("step %s carries no asset creation config", ec.step.Name)
	}
	data := collectedData(ec.steps, conf.SourceSteps)
	artifact, err := e.generator.Generate(ctx, conf, data, buildContext(ec.steps), "", "")
	if err != nil {
		return nil, err
	}
	status := model.STEP_STATUS_COMPLETE
	update := model.StepUpdate{
		Status:    &status,
		UserInput: &ec.userInput,
		Output:    &artifact,
	}
	if err := e.storage.UpdateStep(ctx, ec.step.Id, update); err != nil {
		return nil, err
	}
	e.notify(ec.wf.ThreadId, artifact)
	return &handlerResult{response: artifact, completed: true}, nil
}
