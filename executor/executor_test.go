package executor

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/austin-honeyjar/honeyjar-server-sub004/completion"
	"github.com/austin-honeyjar/honeyjar-server-sub004/generator"
	"github.com/austin-honeyjar/honeyjar-server-sub004/model"
	"github.com/austin-honeyjar/honeyjar-server-sub004/notify"
	"github.com/austin-honeyjar/honeyjar-server-sub004/persistence/inmem"
	"github.com/austin-honeyjar/honeyjar-server-sub004/template"
)

type fakeClient struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   []model.CompletionRequest
}

func (f *fakeClient) Complete(ctx context.Context, req model.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", nil
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

func (f *fakeClient) push(replies ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = replies
}

type testEngine struct {
	exec    *StepExecutor
	storage *inmem.InMemStorage
	client  *fakeClient
}

func newTestEngine(t *testing.T, templates ...model.WorkflowTemplate) *testEngine {
	t.Helper()
	registry := template.NewRegistry()
	for _, tpl := range templates {
		require.NoError(t, registry.Register(tpl))
	}
	client := &fakeClient{}
	storage := inmem.NewInMemStorage()
	exec := NewStepExecutor(storage, registry, client,
		completion.NewAdapter(client),
		generator.NewAssetGenerator(client),
		NewApiActionRegistry(NewSummarizeCollectedAction(client)),
		notify.NewNotifier(notify.LogSink{}), 0)
	return &testEngine{exec: exec, storage: storage, client: client}
}

func twoStepTemplate() model.WorkflowTemplate {
	return model.WorkflowTemplate{
		Id:   "tpl-two",
		Name: "Two Steps",
		Steps: []model.StepDefinition{
			{Name: "First", Type: model.STEP_TYPE_USER_INPUT, Prompt: "first?", Order: 0, Config: model.UserInputConfig{}},
			{Name: "Second", Type: model.STEP_TYPE_USER_INPUT, Prompt: "second?", Order: 1, Config: model.UserInputConfig{}},
		},
	}
}

func stepByName(t *testing.T, e *testEngine, wfId string, name string) *model.WorkflowStep {
	t.Helper()
	steps, err := e.storage.ListSteps(context.Background(), wfId)
	require.NoError(t, err)
	for i := range steps {
		if steps[i].Name == name {
			return &steps[i]
		}
	}
	t.Fatalf("step %s not found", name)
	return nil
}

func TestInstantiate(t *testing.T) {
	e := newTestEngine(t, twoStepTemplate())
	ctx := context.Background()

	wf, first, err := e.exec.Instantiate(ctx, "thread-1", mustTemplate(t, e, "tpl-two"))
	require.NoError(t, err)
	require.Equal(t, model.WORKFLOW_STATUS_ACTIVE, wf.Status)
	require.Equal(t, "First", first.Name)
	require.Equal(t, first.Id, wf.CurrentStepId)

	steps, err := e.storage.ListSteps(ctx, wf.Id)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, model.STEP_STATUS_IN_PROGRESS, steps[0].Status)
	require.Equal(t, model.STEP_STATUS_PENDING, steps[1].Status)
	require.Equal(t, 0, steps[0].Order)
	require.Equal(t, 1, steps[1].Order)
}

func mustTemplate(t *testing.T, e *testEngine, id string) *model.WorkflowTemplate {
	t.Helper()
	tpl, err := e.exec.registry.GetById(id)
	require.NoError(t, err)
	return tpl
}

func TestIndependentStepsAdvance(t *testing.T) {
	e := newTestEngine(t, twoStepTemplate())
	ctx := context.Background()
	wf, first, err := e.exec.Instantiate(ctx, "thread-1", mustTemplate(t, e, "tpl-two"))
	require.NoError(t, err)

	resp, err := e.exec.HandleStepResponse(ctx, first.Id, "anything")
	require.NoError(t, err)
	require.False(t, resp.IsComplete)
	require.NotNil(t, resp.NextStep)
	require.Equal(t, "Second", resp.NextStep.Name)
	require.Equal(t, model.STEP_STATUS_IN_PROGRESS, resp.NextStep.Status)

	reloaded, err := e.storage.GetWorkflow(ctx, wf.Id)
	require.NoError(t, err)
	require.Equal(t, resp.NextStep.Id, reloaded.CurrentStepId)
}

func TestOutOfOrderResponseKeepsWorkflowRecoverable(t *testing.T) {
	e := newTestEngine(t, twoStepTemplate())
	ctx := context.Background()
	wf, first, err := e.exec.Instantiate(ctx, "thread-1", mustTemplate(t, e, "tpl-two"))
	require.NoError(t, err)

	// both steps are independent, so answering the later one first is valid;
	// the active first step must come back instead of an error
	second := stepByName(t, e, wf.Id, "Second")
	resp, err := e.exec.HandleStepResponse(ctx, second.Id, "answering ahead")
	require.NoError(t, err)
	require.False(t, resp.IsComplete)
	require.NotNil(t, resp.NextStep)
	require.Equal(t, "First", resp.NextStep.Name)
	require.Equal(t, model.STEP_STATUS_COMPLETE, stepByName(t, e, wf.Id, "Second").Status)
	require.Equal(t, model.STEP_STATUS_IN_PROGRESS, stepByName(t, e, wf.Id, "First").Status)

	resp, err = e.exec.HandleStepResponse(ctx, first.Id, "and the first one")
	require.NoError(t, err)
	require.True(t, resp.IsComplete)

	reloaded, err := e.storage.GetWorkflow(ctx, wf.Id)
	require.NoError(t, err)
	require.Equal(t, model.WORKFLOW_STATUS_COMPLETED, reloaded.Status)
}

func TestStepResponseIdempotent(t *testing.T) {
	e := newTestEngine(t, twoStepTemplate())
	ctx := context.Background()
	wf, first, err := e.exec.Instantiate(ctx, "thread-1", mustTemplate(t, e, "tpl-two"))
	require.NoError(t, err)

	resp1, err := e.exec.HandleStepResponse(ctx, first.Id, "hello")
	require.NoError(t, err)
	second := resp1.NextStep

	// replaying the same response must not advance the machine again
	resp2, err := e.exec.HandleStepResponse(ctx, first.Id, "hello")
	require.NoError(t, err)
	require.False(t, resp2.IsComplete)
	require.Equal(t, second.Id, resp2.NextStep.Id)
	require.Equal(t, model.STEP_STATUS_IN_PROGRESS, stepByName(t, e, wf.Id, "Second").Status)
}

func TestWorkflowCompletion(t *testing.T) {
	e := newTestEngine(t, twoStepTemplate())
	ctx := context.Background()
	wf, first, err := e.exec.Instantiate(ctx, "thread-1", mustTemplate(t, e, "tpl-two"))
	require.NoError(t, err)

	resp, err := e.exec.HandleStepResponse(ctx, first.Id, "one")
	require.NoError(t, err)
	resp, err = e.exec.HandleStepResponse(ctx, resp.NextStep.Id, "two")
	require.NoError(t, err)
	require.True(t, resp.IsComplete)
	require.Nil(t, resp.NextStep)

	reloaded, err := e.storage.GetWorkflow(ctx, wf.Id)
	require.NoError(t, err)
	require.Equal(t, model.WORKFLOW_STATUS_COMPLETED, reloaded.Status)
	require.Empty(t, reloaded.CurrentStepId)
}

func dialogTemplate() model.WorkflowTemplate {
	return model.WorkflowTemplate{
		Id:   "tpl-dialog",
		Name: "Dialog",
		Steps: []model.StepDefinition{
			{Name: "Gather", Type: model.STEP_TYPE_JSON_DIALOG, Prompt: "tell me", Order: 0,
				Config: model.JsonDialogConfig{Goal: "collect info"}},
			{Name: "Other", Type: model.STEP_TYPE_USER_INPUT, Prompt: "other?", Order: 1, Config: model.UserInputConfig{}},
			{Name: "Target", Type: model.STEP_TYPE_USER_INPUT, Prompt: "target?", Order: 2, Config: model.UserInputConfig{}},
		},
	}
}

func TestJsonDialogLoop(t *testing.T) {
	e := newTestEngine(t, dialogTemplate())
	ctx := context.Background()
	wf, gather, err := e.exec.Instantiate(ctx, "thread-1", mustTemplate(t, e, "tpl-dialog"))
	require.NoError(t, err)

	e.client.push(`{"isComplete":false,"collectedInformation":{"name":"Acme"},"missingInformation":["industry"],"completionPercentage":40,"nextQuestion":"What industry is Acme in?"}`)
	resp, err := e.exec.HandleStepResponse(ctx, gather.Id, "we are Acme")
	require.NoError(t, err)
	require.False(t, resp.IsComplete)
	require.Nil(t, resp.NextStep)
	require.Equal(t, "What industry is Acme in?", resp.Response)
	require.Equal(t, model.STEP_STATUS_IN_PROGRESS, stepByName(t, e, wf.Id, "Gather").Status)

	// suggested next step wins over order when eligible
	e.client.push(`{"isComplete":true,"collectedInformation":{"name":"Acme","industry":"robotics"},"suggestedNextStep":"Target"}`)
	resp, err = e.exec.HandleStepResponse(ctx, gather.Id, "robotics")
	require.NoError(t, err)
	require.False(t, resp.IsComplete)
	require.Equal(t, "Target", resp.NextStep.Name)

	gathered := stepByName(t, e, wf.Id, "Gather")
	require.Equal(t, model.STEP_STATUS_COMPLETE, gathered.Status)
	collected := gathered.Metadata[model.MetaCollectedInformation].(map[string]any)
	require.Equal(t, "robotics", collected["industry"])
	// partial information from the first turn is retained
	require.Equal(t, "Acme", collected["name"])
}

func TestJsonDialogUnparseableReply(t *testing.T) {
	e := newTestEngine(t, dialogTemplate())
	ctx := context.Background()
	wf, gather, err := e.exec.Instantiate(ctx, "thread-1", mustTemplate(t, e, "tpl-dialog"))
	require.NoError(t, err)

	e.client.push("I think you should tell me more about your company")
	resp, err := e.exec.HandleStepResponse(ctx, gather.Id, "hello")
	require.NoError(t, err)
	require.False(t, resp.IsComplete)
	require.Equal(t, completion.GenericClarifyingQuestion, resp.Response)
	require.Equal(t, model.STEP_STATUS_IN_PROGRESS, stepByName(t, e, wf.Id, "Gather").Status)
	// one retry happened before degrading
	require.Len(t, e.client.calls, 2)
}

func reviewTemplate() model.WorkflowTemplate {
	return model.WorkflowTemplate{
		Id:   "tpl-review",
		Name: "Review Flow",
		Steps: []model.StepDefinition{
			{Name: "Brief", Type: model.STEP_TYPE_USER_INPUT, Prompt: "brief?", Order: 0, Config: model.UserInputConfig{}},
			{Name: "Draft", Type: model.STEP_TYPE_ASSET_CREATION, Prompt: "drafting...", Order: 1,
				Dependencies: []string{"Brief"},
				Config: model.AssetCreationConfig{
					AssetKind:    model.ASSET_KIND_PRESS_RELEASE,
					Instructions: "Write a release about {$.brief}",
				}},
			{Name: "Asset Review", Type: model.STEP_TYPE_JSON_DIALOG, Prompt: "feedback?", Order: 2,
				Dependencies: []string{"Draft"},
				Config: model.JsonDialogConfig{
					Goal:          "classify feedback",
					ReviewOf:      "Draft",
					SkipOnApprove: "Asset Revision",
				}},
			{Name: "Asset Revision", Type: model.STEP_TYPE_USER_INPUT, Prompt: "changes?", Order: 3,
				Dependencies: []string{"Asset Review"}, Config: model.UserInputConfig{}},
			{Name: "Wrap Up", Type: model.STEP_TYPE_USER_INPUT, Prompt: "wrap?", Order: 4,
				Dependencies: []string{"Asset Revision"}, Config: model.UserInputConfig{}},
		},
	}
}

func driveToReview(t *testing.T, e *testEngine) (string, *model.WorkflowStep) {
	t.Helper()
	ctx := context.Background()
	wf, brief, err := e.exec.Instantiate(ctx, "thread-1", mustTemplate(t, e, "tpl-review"))
	require.NoError(t, err)

	resp, err := e.exec.HandleStepResponse(ctx, brief.Id, "robot launch")
	require.NoError(t, err)
	require.Equal(t, "Draft", resp.NextStep.Name)

	e.client.push("DRAFT v1")
	resp, err = e.exec.HandleStepResponse(ctx, resp.NextStep.Id, "go ahead")
	require.NoError(t, err)
	require.Equal(t, "Asset Review", resp.NextStep.Name)
	require.Equal(t, "DRAFT v1", stepByName(t, e, wf.Id, "Draft").Output)
	return wf.Id, resp.NextStep
}

func TestRevisionSelfLoop(t *testing.T) {
	e := newTestEngine(t, reviewTemplate())
	ctx := context.Background()
	wfId, review := driveToReview(t, e)

	e.client.push(
		`{"classification":"revision_requested","feedback":"make it shorter"}`,
		"DRAFT v2",
	)
	resp, err := e.exec.HandleStepResponse(ctx, review.Id, "too long, trim it")
	require.NoError(t, err)
	require.False(t, resp.IsComplete)
	// self-loop: the review step itself comes back as next step
	require.Equal(t, review.Id, resp.NextStep.Id)
	require.Contains(t, resp.Response, "DRAFT v2")
	require.Contains(t, resp.NextStep.Prompt, "DRAFT v2")
	require.Equal(t, "DRAFT v2", stepByName(t, e, wfId, "Draft").Output)
	require.Equal(t, model.STEP_STATUS_IN_PROGRESS, stepByName(t, e, wfId, "Asset Review").Status)
}

func TestApprovalSkipsRevisionGate(t *testing.T) {
	e := newTestEngine(t, reviewTemplate())
	ctx := context.Background()
	wfId, review := driveToReview(t, e)

	e.client.push(`{"classification":"approved"}`)
	resp, err := e.exec.HandleStepResponse(ctx, review.Id, "looks great")
	require.NoError(t, err)
	require.False(t, resp.IsComplete)
	require.Equal(t, "Wrap Up", resp.NextStep.Name)

	revision := stepByName(t, e, wfId, "Asset Revision")
	require.Equal(t, model.STEP_STATUS_COMPLETE, revision.Status)
	require.Equal(t, true, revision.Metadata[model.MetaSkipped])
	reviewStep := stepByName(t, e, wfId, "Asset Review")
	require.Equal(t, true, reviewStep.Metadata[model.MetaApproved])
}

func apiChainTemplate() model.WorkflowTemplate {
	return model.WorkflowTemplate{
		Id:   "tpl-chain",
		Name: "Chain",
		Steps: []model.StepDefinition{
			{Name: "Ask", Type: model.STEP_TYPE_USER_INPUT, Prompt: "ask?", Order: 0, Config: model.UserInputConfig{}},
			{Name: "Summarize", Type: model.STEP_TYPE_API_CALL, Prompt: "summarizing...", Order: 1,
				Dependencies: []string{"Ask"},
				Config:       model.ApiCallConfig{Action: "summarize_collected"}},
			{Name: "Final", Type: model.STEP_TYPE_USER_INPUT, Prompt: "final?", Order: 2,
				Dependencies: []string{"Summarize"}, Config: model.UserInputConfig{}},
		},
	}
}

func TestApiCallAutoChains(t *testing.T) {
	e := newTestEngine(t, apiChainTemplate())
	ctx := context.Background()
	wf, ask, err := e.exec.Instantiate(ctx, "thread-1", mustTemplate(t, e, "tpl-chain"))
	require.NoError(t, err)

	e.client.push("• fact one\n• fact two")
	resp, err := e.exec.HandleStepResponse(ctx, ask.Id, "details here")
	require.NoError(t, err)
	// the api step executed without a separate user turn
	require.Equal(t, "Final", resp.NextStep.Name)

	summarize := stepByName(t, e, wf.Id, "Summarize")
	require.Equal(t, model.STEP_STATUS_COMPLETE, summarize.Status)
	require.Contains(t, summarize.Output, "fact one")
	require.NotNil(t, summarize.Metadata[model.MetaApiResult])
}

func stuckTemplate() model.WorkflowTemplate {
	return model.WorkflowTemplate{
		Id:   "tpl-stuck",
		Name: "Stuck",
		Steps: []model.StepDefinition{
			{Name: "A", Type: model.STEP_TYPE_USER_INPUT, Prompt: "a?", Order: 0, Config: model.UserInputConfig{}},
			{Name: "B", Type: model.STEP_TYPE_USER_INPUT, Prompt: "b?", Order: 1,
				Dependencies: []string{"C"}, Config: model.UserInputConfig{}},
			{Name: "C", Type: model.STEP_TYPE_USER_INPUT, Prompt: "c?", Order: 2,
				Dependencies: []string{"B"}, Config: model.UserInputConfig{}},
		},
	}
}

func TestUnsatisfiableDependenciesSurfaceAsError(t *testing.T) {
	e := newTestEngine(t, stuckTemplate())
	ctx := context.Background()
	_, a, err := e.exec.Instantiate(ctx, "thread-1", mustTemplate(t, e, "tpl-stuck"))
	require.NoError(t, err)

	_, err = e.exec.HandleStepResponse(ctx, a.Id, "done")
	require.Error(t, err)
	_, ok := err.(model.InvariantViolationError)
	require.True(t, ok, "expected invariant violation, got %v", err)
}

func TestRespondingToBlockedStepIsRejected(t *testing.T) {
	e := newTestEngine(t, reviewTemplate())
	ctx := context.Background()
	wf, _, err := e.exec.Instantiate(ctx, "thread-1", mustTemplate(t, e, "tpl-review"))
	require.NoError(t, err)

	wrapUp := stepByName(t, e, wf.Id, "Wrap Up")
	_, err = e.exec.HandleStepResponse(ctx, wrapUp.Id, "jumping ahead")
	require.Error(t, err)
	depErr, ok := err.(model.DependencyUnmetError)
	require.True(t, ok, "expected dependency error, got %v", err)
	require.Contains(t, depErr.Missing, "Asset Revision")
	require.Equal(t, model.STEP_STATUS_PENDING, stepByName(t, e, wf.Id, "Wrap Up").Status)
}

func TestHandleStepResponseUnknownStep(t *testing.T) {
	e := newTestEngine(t, twoStepTemplate())
	_, err := e.exec.HandleStepResponse(context.Background(), "missing-step", "x")
	require.Error(t, err)
	_, ok := err.(model.NotFoundError)
	require.True(t, ok)
}
