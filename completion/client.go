package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/austin-honeyjar/honeyjar-server-sub004/config"
	"github.com/austin-honeyjar/honeyjar-server-sub004/model"
)

// Client is the text-completion collaborator. It is the only unbounded
// external dependency on the step-response critical path, so every call is
// bounded by the configured timeout.
type Client interface {
	Complete(ctx context.Context, req model.CompletionRequest) (string, error)
}

type httpClient struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewHttpClient(conf config.CompletionConfig) *httpClient {
	timeout := conf.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &httpClient{
		endpoint:   conf.Endpoint,
		apiKey:     conf.ApiKey,
		model:      conf.Model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type completionPayload struct {
	Model        string              `json:"model,omitempty"`
	Instructions string              `json:"instructions"`
	Input        string              `json:"input"`
	Context      []model.StepContext `json:"context,omitempty"`
}

type completionReply struct {
	Output string `json:"output"`
}

func (c *httpClient) Complete(ctx context.Context, req model.CompletionRequest) (string, error) {
	payload := completionPayload{
		Model:        c.model,
		Instructions: req.Instructions,
		Input:        req.UserText,
		Context:      req.Context,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("completion service returned %d: %s", resp.StatusCode, string(data))
	}
	var reply completionReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", err
	}
	return reply.Output, nil
}
