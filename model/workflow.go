package model

import "time"

type WorkflowStatus string

const WORKFLOW_STATUS_ACTIVE WorkflowStatus = "ACTIVE"
const WORKFLOW_STATUS_COMPLETED WorkflowStatus = "COMPLETED"

type StepStatus string

const STEP_STATUS_PENDING StepStatus = "PENDING"
const STEP_STATUS_IN_PROGRESS StepStatus = "IN_PROGRESS"
const STEP_STATUS_COMPLETE StepStatus = "COMPLETE"

type StepType string

const STEP_TYPE_USER_INPUT StepType = "USER_INPUT"
const STEP_TYPE_AI_SUGGESTION StepType = "AI_SUGGESTION"
const STEP_TYPE_JSON_DIALOG StepType = "JSON_DIALOG"
const STEP_TYPE_API_CALL StepType = "API_CALL"
const STEP_TYPE_ASSET_CREATION StepType = "ASSET_CREATION"

// Workflow is a stateful instance of a template bound to one thread.
type Workflow struct {
	Id            string         `json:"id"`
	ThreadId      string         `json:"threadId"`
	TemplateId    string         `json:"templateId"`
	Status        WorkflowStatus `json:"status"`
	CurrentStepId string         `json:"currentStepId,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

type WorkflowStep struct {
	Id           string         `json:"id"`
	WorkflowId   string         `json:"workflowId"`
	Name         string         `json:"name"`
	Type         StepType       `json:"type"`
	Prompt       string         `json:"prompt"`
	Order        int            `json:"order"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Status       StepStatus     `json:"status"`
	UserInput    string         `json:"userInput,omitempty"`
	Output       string         `json:"output,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Well-known metadata keys on a WorkflowStep.
const (
	MetaCollectedInformation = "collectedInformation"
	MetaApproved             = "approved"
	MetaSkipped              = "skipped"
	MetaRevisionCount        = "revisionCount"
	MetaSelection            = "selection"
	MetaApiResult            = "apiResult"
)

// StepResponse is the result of handling one user response against a step.
type StepResponse struct {
	Response   string        `json:"response"`
	NextStep   *WorkflowStep `json:"nextStep,omitempty"`
	IsComplete bool          `json:"isComplete"`
}

// StepUpdate carries a field-level partial update for a step. Nil fields are
// left untouched; Metadata entries are merged key-wise into the stored map.
type StepUpdate struct {
	Status    *StepStatus
	UserInput *string
	Output    *string
	Prompt    *string
	Metadata  map[string]any
}
