package executor

import (
	"context"
	"fmt"

	"github.com/austin-honeyjar/honeyjar-server-sub004/completion"
	"github.com/austin-honeyjar/honeyjar-server-sub004/model"
)

// ApiAction is one automatically executed lookup or generation action bound
// to an ApiCall step. External integrations (contact enrichment, article
// search) register implementations here.
type ApiAction interface {
	Name() string
	Execute(ctx context.Context, params map[string]any, stepContext []model.StepContext) (map[string]any, error)
}

type ApiActionRegistry struct {
	actions map[string]ApiAction
}

func NewApiActionRegistry(actions ...ApiAction) *ApiActionRegistry {
	r := &ApiActionRegistry{actions: make(map[string]ApiAction)}
	for _, a := range actions {
		r.actions[a.Name()] = a
	}
	return r
}

func (r *ApiActionRegistry) Register(a ApiAction) {
	r.actions[a.Name()] = a
}

func (r *ApiActionRegistry) Get(name string) (ApiAction, error) {
	a, ok := r.actions[name]
	if !ok {
		return nil, fmt.Errorf("api action %s not registered", name)
	}
	return a, nil
}

// summarizeCollectedAction condenses everything collected upstream into a
// short factual summary via the completion collaborator.
type summarizeCollectedAction struct {
	client completion.Client
}

func NewSummarizeCollectedAction(client completion.Client) ApiAction {
	return &summarizeCollectedAction{client: client}
}

func (a *summarizeCollectedAction) Name() string {
	return "summarize_collected"
}

func (a *summarizeCollectedAction) Execute(ctx context.Context, params map[string]any, stepContext []model.StepContext) (map[string]any, error) {
	focus, _ := params["focus"].(string)
	instructions := "Summarize the information gathered so far into short factual bullet points."
	if focus != "" {
		instructions += " Focus: " + focus
	}
	summary, err := a.client.Complete(ctx, model.CompletionRequest{
		Instructions: instructions,
		Context:      stepContext,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"summary": summary}, nil
}
