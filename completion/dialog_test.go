package completion

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/austin-honeyjar/honeyjar-server-sub004/model"
)

type scriptedClient struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
}

func (s *scriptedClient) Complete(ctx context.Context, req model.CompletionRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if len(s.replies) == 0 {
		return "", nil
	}
	reply := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return reply, nil
}

func TestParseDialogResult(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"complete result":      testParseComplete,
		"incomplete result":    testParseIncomplete,
		"fenced json":          testParseFenced,
		"prose reply rejected": testParseProse,
		"empty shape rejected": testParseEmptyShape,
	} {
		t.Run(scenario, fn)
	}
}

func testParseComplete(t *testing.T) {
	res, err := parseDialogResult(`{"isComplete":true,"collectedInformation":{"a":1},"suggestedNextStep":"Next"}`)
	require.NoError(t, err)
	require.True(t, res.IsComplete)
	require.Equal(t, "Next", res.SuggestedNextStep)
}

func testParseIncomplete(t *testing.T) {
	res, err := parseDialogResult(`{"isComplete":false,"completionPercentage":40,"nextQuestion":"And?"}`)
	require.NoError(t, err)
	require.False(t, res.IsComplete)
	require.Equal(t, 40, res.CompletionPercentage)
	require.Equal(t, "And?", res.NextQuestion)
}

func testParseFenced(t *testing.T) {
	raw := "```json\n{\"isComplete\":false,\"nextQuestion\":\"More?\"}\n```"
	res, err := parseDialogResult(raw)
	require.NoError(t, err)
	require.Equal(t, "More?", res.NextQuestion)
}

func testParseProse(t *testing.T) {
	_, err := parseDialogResult("tell me more about the company")
	require.Error(t, err)
	_, ok := err.(model.ProtocolParseError)
	require.True(t, ok)
}

func testParseEmptyShape(t *testing.T) {
	_, err := parseDialogResult(`{"unrelated":"stuff"}`)
	require.Error(t, err)
	_, ok := err.(model.ProtocolParseError)
	require.True(t, ok)
}

func TestRunDialogRetriesThenDegrades(t *testing.T) {
	client := &scriptedClient{replies: []string{"not json at all"}}
	a := NewAdapter(client)

	res := a.RunDialog(context.Background(), model.JsonDialogConfig{Goal: "collect"}, "hi", nil)
	require.False(t, res.IsComplete)
	require.Equal(t, GenericClarifyingQuestion, res.NextQuestion)
	require.Equal(t, 2, client.calls)
}

func TestRunDialogClientErrorDegrades(t *testing.T) {
	client := &scriptedClient{err: errors.New("timeout")}
	a := NewAdapter(client)

	res := a.RunDialog(context.Background(), model.JsonDialogConfig{Goal: "collect"}, "hi", nil)
	require.False(t, res.IsComplete)
	require.Equal(t, GenericClarifyingQuestion, res.NextQuestion)
}

func TestCompletionRuleThreshold(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"isComplete":false,"collectedInformation":{"a":1},"completionPercentage":85,"nextQuestion":"more?"}`,
	}}
	a := NewAdapter(client)

	// collaborator said incomplete, but the threshold rule overrides
	res := a.RunDialog(context.Background(), model.JsonDialogConfig{
		Goal:           "collect",
		CompletionRule: "completionPercentage >= 80",
	}, "here you go", nil)
	require.True(t, res.IsComplete)
}

func TestCompletionRuleProceedRequested(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"isComplete":false,"collectedInformation":{"a":1},"completionPercentage":30,"nextQuestion":"more?"}`,
	}}
	a := NewAdapter(client)

	res := a.RunDialog(context.Background(), model.JsonDialogConfig{Goal: "collect"},
		"that's all I have, let's proceed", nil)
	require.True(t, res.IsComplete)
}

func TestOptionMatchingPolicy(t *testing.T) {
	conf := model.JsonDialogConfig{
		Goal:    "pick",
		Options: []string{"Launch Announcement", "Media Pitch"},
	}

	client := &scriptedClient{replies: []string{
		`{"isComplete":true,"collectedInformation":{"selection":"  launch announcement "}}`,
	}}
	a := NewAdapter(client)
	res := a.RunDialog(context.Background(), conf, "the launch one", nil)
	require.True(t, res.IsComplete)
	require.Equal(t, "Launch Announcement", res.CollectedInformation[model.MetaSelection])

	// no resolvable option keeps the step open and asks again
	client = &scriptedClient{replies: []string{
		`{"isComplete":true,"collectedInformation":{"selection":"a poem"}}`,
	}}
	a = NewAdapter(client)
	res = a.RunDialog(context.Background(), conf, "write me a poem", nil)
	require.False(t, res.IsComplete)
	require.Contains(t, res.NextQuestion, "Launch Announcement")
}

func TestOptionMatchedRule(t *testing.T) {
	conf := model.JsonDialogConfig{
		Goal:           "pick",
		Options:        []string{"Launch Announcement", "Media Pitch"},
		CompletionRule: "optionMatched",
	}

	client := &scriptedClient{replies: []string{
		`{"isComplete":false,"collectedInformation":{"selection":"Media Pitch"}}`,
	}}
	a := NewAdapter(client)
	res := a.RunDialog(context.Background(), conf, "the pitch", nil)
	require.True(t, res.IsComplete)
	require.Equal(t, "Media Pitch", res.CollectedInformation[model.MetaSelection])

	client = &scriptedClient{replies: []string{
		`{"isComplete":true,"collectedInformation":{"selection":"something else"}}`,
	}}
	a = NewAdapter(client)
	res = a.RunDialog(context.Background(), conf, "something else entirely", nil)
	require.False(t, res.IsComplete)
	require.Contains(t, res.NextQuestion, "Media Pitch")
}

func TestClassifyReview(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"classification":"revision_requested","feedback":"shorter"}`,
	}}
	a := NewAdapter(client)
	res := a.ClassifyReview(context.Background(), model.JsonDialogConfig{ReviewOf: "Draft"}, "trim it", "DRAFT")
	require.Equal(t, model.REVIEW_REVISION_REQUESTED, res.Classification)
	require.Equal(t, "shorter", res.Feedback)
}

func TestClassifyReviewMalformedDegradesToUnclear(t *testing.T) {
	client := &scriptedClient{replies: []string{`{"classification":"maybe"}`}}
	a := NewAdapter(client)
	res := a.ClassifyReview(context.Background(), model.JsonDialogConfig{ReviewOf: "Draft"}, "hm", "DRAFT")
	require.Equal(t, model.REVIEW_UNCLEAR, res.Classification)
}
