package model

// DialogResult is the discriminated reply of the json-dialog protocol. The
// completion collaborator returns free text which the adapter parses into
// this shape; anything that fits neither branch is a protocol error.
type DialogResult struct {
	IsComplete           bool           `json:"isComplete"`
	CollectedInformation map[string]any `json:"collectedInformation,omitempty"`
	MissingInformation   []string       `json:"missingInformation,omitempty"`
	CompletionPercentage int            `json:"completionPercentage,omitempty"`
	NextQuestion         string         `json:"nextQuestion,omitempty"`
	SuggestedNextStep    string         `json:"suggestedNextStep,omitempty"`
}

type ReviewClassification string

const REVIEW_APPROVED ReviewClassification = "approved"
const REVIEW_REVISION_REQUESTED ReviewClassification = "revision_requested"
const REVIEW_UNCLEAR ReviewClassification = "unclear"

// ReviewResult classifies user feedback on a generated asset.
type ReviewResult struct {
	Classification ReviewClassification `json:"classification"`
	Feedback       string               `json:"feedback,omitempty"`
}

// CompletionRequest is the contract sent to the completion collaborator.
type CompletionRequest struct {
	Instructions string
	UserText     string
	Context      []StepContext
}

// StepContext is one previously completed step's recorded output, passed to
// the collaborator as conversation context.
type StepContext struct {
	StepName  string         `json:"stepName"`
	UserInput string         `json:"userInput,omitempty"`
	Output    string         `json:"output,omitempty"`
	Collected map[string]any `json:"collectedInformation,omitempty"`
}
