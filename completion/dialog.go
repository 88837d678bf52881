package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.uber.org/zap"

	"github.com/austin-honeyjar/honeyjar-server-sub004/logger"
	"github.com/austin-honeyjar/honeyjar-server-sub004/model"
	"github.com/austin-honeyjar/honeyjar-server-sub004/util"
)

const GenericClarifyingQuestion = "I didn't quite catch that. Could you rephrase or add a bit more detail?"

const defaultCompletionRule = "completionPercentage >= 80 || proceedRequested"

var proceedPhrases = []string{"proceed", "move on", "that's enough", "thats enough", "skip this", "continue", "next step"}

// Adapter runs the json-dialog protocol against the completion collaborator:
// it renders the step's instructions into a structured request, parses the
// free-text reply into the discriminated Incomplete/Complete shape and applies
// the step's completion policy. Parse failures are retried once and then
// degrade to a generic clarifying question, never to a hard failure.
type Adapter struct {
	client Client

	mu       sync.Mutex
	programs map[string]*vm.Program
}

func NewAdapter(client Client) *Adapter {
	return &Adapter{
		client:   client,
		programs: make(map[string]*vm.Program),
	}
}

// RunDialog performs one information-gathering turn for a json dialog step.
func (a *Adapter) RunDialog(ctx context.Context, conf model.JsonDialogConfig, userText string, stepContext []model.StepContext) *model.DialogResult {
	req := model.CompletionRequest{
		Instructions: dialogInstructions(conf),
		UserText:     userText,
		Context:      stepContext,
	}
	result, err := a.completeAndParse(ctx, req)
	if err != nil {
		logger.Warn("dialog protocol degraded to clarifying question", zap.String("goal", conf.Goal), zap.Error(err))
		return &model.DialogResult{IsComplete: false, NextQuestion: GenericClarifyingQuestion}
	}
	a.applyCompletionPolicy(conf, userText, result)
	return result
}

// ClassifyReview classifies user feedback on a generated artifact into
// approved, revision_requested or unclear.
func (a *Adapter) ClassifyReview(ctx context.Context, conf model.JsonDialogConfig, userText string, artifact string) *model.ReviewResult {
	req := model.CompletionRequest{
		Instructions: reviewInstructions(conf),
		UserText:     userText,
		Context: []model.StepContext{
			{StepName: conf.ReviewOf, Output: artifact},
		},
	}
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		raw, err := a.client.Complete(ctx, req)
		if err != nil {
			lastErr = err
			continue
		}
		result, err := parseReviewResult(raw)
		if err != nil {
			lastErr = err
			continue
		}
		return result
	}
	logger.Warn("review classification degraded to unclear", zap.Error(lastErr))
	return &model.ReviewResult{Classification: model.REVIEW_UNCLEAR}
}

func (a *Adapter) completeAndParse(ctx context.Context, req model.CompletionRequest) (*model.DialogResult, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		raw, err := a.client.Complete(ctx, req)
		if err != nil {
			lastErr = err
			continue
		}
		result, err := parseDialogResult(raw)
		if err != nil {
			lastErr = err
			continue
		}
		return result, nil
	}
	return nil, lastErr
}

// applyCompletionPolicy is the step-specific completion decision: a closed
// option set requires a resolvable match, everything else goes through the
// step's expr rule over the dialog result.
func (a *Adapter) applyCompletionPolicy(conf model.JsonDialogConfig, userText string, result *model.DialogResult) {
	matched := ""
	if len(conf.Options) > 0 {
		matched = a.matchSelection(conf.Options, userText, result)
		if matched == "" {
			result.IsComplete = false
			if result.NextQuestion == "" {
				result.NextQuestion = optionsQuestion(conf.Options)
			}
			return
		}
		if result.CollectedInformation == nil {
			result.CollectedInformation = make(map[string]any)
		}
		result.CollectedInformation[model.MetaSelection] = matched
		if conf.CompletionRule == "" {
			result.IsComplete = true
			return
		}
	}
	rule := conf.CompletionRule
	if rule == "" {
		rule = defaultCompletionRule
	}
	pass, err := a.evalRule(rule, ruleEnv(userText, matched != "", result))
	if err != nil {
		logger.Error("completion rule evaluation failed", zap.String("rule", rule), zap.Error(err))
		pass = false
	}
	if len(conf.Options) > 0 {
		// a closed option set with an explicit rule completes only when the
		// rule passes
		result.IsComplete = pass
	} else {
		result.IsComplete = result.IsComplete || pass
	}
	if !result.IsComplete && result.NextQuestion == "" {
		result.NextQuestion = GenericClarifyingQuestion
	}
}

func (a *Adapter) matchSelection(options []string, userText string, result *model.DialogResult) string {
	if sel, ok := result.CollectedInformation[model.MetaSelection].(string); ok {
		if matched := util.MatchName(sel, options); matched != "" {
			return matched
		}
	}
	return util.MatchName(userText, options)
}

func (a *Adapter) evalRule(rule string, env map[string]any) (bool, error) {
	a.mu.Lock()
	program, ok := a.programs[rule]
	a.mu.Unlock()
	if !ok {
		compiled, err := expr.Compile(rule, expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			return false, err
		}
		a.mu.Lock()
		a.programs[rule] = compiled
		a.mu.Unlock()
		program = compiled
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	pass, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("rule %q did not evaluate to bool", rule)
	}
	return pass, nil
}

func ruleEnv(userText string, optionMatched bool, result *model.DialogResult) map[string]any {
	normalized := strings.ToLower(userText)
	proceed := false
	for _, phrase := range proceedPhrases {
		if strings.Contains(normalized, phrase) {
			proceed = true
			break
		}
	}
	return map[string]any{
		"completionPercentage": result.CompletionPercentage,
		"missingCount":         len(result.MissingInformation),
		"proceedRequested":     proceed,
		"optionMatched":        optionMatched,
	}
}

func dialogInstructions(conf model.JsonDialogConfig) string {
	var b strings.Builder
	b.WriteString("You are conducting a structured information-gathering dialog.\n")
	b.WriteString("Goal: " + conf.Goal + "\n")
	if conf.BaseInstructions != "" {
		b.WriteString(conf.BaseInstructions + "\n")
	}
	if len(conf.Options) > 0 {
		b.WriteString("The answer must resolve to one of these options: " + strings.Join(conf.Options, ", ") + "\n")
	}
	b.WriteString("Reply with a single JSON object and nothing else, shaped as either\n")
	b.WriteString(`{"isComplete":false,"collectedInformation":{},"missingInformation":[],"completionPercentage":0,"nextQuestion":"..."}` + "\n")
	b.WriteString("or\n")
	b.WriteString(`{"isComplete":true,"collectedInformation":{},"missingInformation":[],"suggestedNextStep":null}`)
	return b.String()
}

func reviewInstructions(conf model.JsonDialogConfig) string {
	var b strings.Builder
	b.WriteString("The user was shown a generated draft and replied with feedback.\n")
	if conf.BaseInstructions != "" {
		b.WriteString(conf.BaseInstructions + "\n")
	}
	b.WriteString("Classify the feedback. Reply with a single JSON object and nothing else:\n")
	b.WriteString(`{"classification":"approved|revision_requested|unclear","feedback":"the requested changes, if any"}`)
	return b.String()
}

func optionsQuestion(options []string) string {
	return "Which of these would you like? " + strings.Join(options, ", ")
}

func parseDialogResult(raw string) (*model.DialogResult, error) {
	body, err := extractJsonObject(raw)
	if err != nil {
		return nil, err
	}
	var result model.DialogResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, model.ProtocolParseError{Raw: raw}
	}
	// a reply carrying neither a question nor any collected state fits
	// neither branch of the protocol
	if !result.IsComplete && result.NextQuestion == "" &&
		len(result.CollectedInformation) == 0 && len(result.MissingInformation) == 0 &&
		result.CompletionPercentage == 0 {
		return nil, model.ProtocolParseError{Raw: raw}
	}
	return &result, nil
}

func parseReviewResult(raw string) (*model.ReviewResult, error) {
	body, err := extractJsonObject(raw)
	if err != nil {
		return nil, err
	}
	var result model.ReviewResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, model.ProtocolParseError{Raw: raw}
	}
	switch result.Classification {
	case model.REVIEW_APPROVED, model.REVIEW_REVISION_REQUESTED, model.REVIEW_UNCLEAR:
		return &result, nil
	}
	return nil, model.ProtocolParseError{Raw: raw}
}

// extractJsonObject tolerates markdown fences and prose around the JSON body.
func extractJsonObject(raw string) ([]byte, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, model.ProtocolParseError{Raw: raw}
	}
	return []byte(raw[start : end+1]), nil
}
