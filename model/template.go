package model

// WorkflowTemplate is an immutable ordered set of step definitions. The code
// definition is authoritative; persisted copies are never read back.
type WorkflowTemplate struct {
	Id          string
	Name        string
	Description string
	// Entry marks the template whose sole purpose is routing the thread to a
	// specialized workflow once its selection step completes.
	Entry bool
	// SelectionStep names the step whose recorded value drives the
	// workflow-to-workflow transition. Only meaningful on entry templates.
	SelectionStep string
	Steps         []StepDefinition
}

type StepDefinition struct {
	Name         string
	Type         StepType
	Prompt       string
	Order        int
	Dependencies []string
	Config       StepConfig
}

// StepConfig is the per-type configuration union. Each step definition carries
// exactly the config struct matching its type, validated at registration.
type StepConfig interface {
	Kind() StepType
}

type UserInputConfig struct {
	// Placeholder shown alongside the prompt, if any.
	Placeholder string
}

func (UserInputConfig) Kind() StepType { return STEP_TYPE_USER_INPUT }

type AiSuggestionConfig struct {
	Instructions string
}

func (AiSuggestionConfig) Kind() StepType { return STEP_TYPE_AI_SUGGESTION }

type JsonDialogConfig struct {
	Goal             string
	BaseInstructions string
	// Options constrains the dialog to a closed set; the adapter requires a
	// match against one of them before the step can complete.
	Options []string
	// CompletionRule is an expr boolean over the dialog result environment
	// (completionPercentage, missingCount, proceedRequested, optionMatched).
	// Empty means the default threshold rule.
	CompletionRule string
	// ReviewOf names an upstream AssetCreation step this dialog reviews.
	// When set the dialog classifies feedback instead of collecting data.
	ReviewOf string
	// SkipOnApprove names a paired revision-gate step marked Complete with a
	// skip marker when the review classifies as approved.
	SkipOnApprove string
}

func (JsonDialogConfig) Kind() StepType { return STEP_TYPE_JSON_DIALOG }

type ApiCallConfig struct {
	// Action is the registered api-action name executed for this step.
	Action string
	Params map[string]any
}

func (ApiCallConfig) Kind() StepType { return STEP_TYPE_API_CALL }

type AssetKind string

const ASSET_KIND_PRESS_RELEASE AssetKind = "PRESS_RELEASE"
const ASSET_KIND_MEDIA_PITCH AssetKind = "MEDIA_PITCH"
const ASSET_KIND_SOCIAL_POST AssetKind = "SOCIAL_POST"
const ASSET_KIND_BLOG_POST AssetKind = "BLOG_POST"

type AssetCreationConfig struct {
	AssetKind AssetKind
	// Instructions may reference upstream collected information with
	// $-prefixed jsonpath expressions resolved at generation time.
	Instructions string
	// SourceSteps names the steps whose recorded outputs feed generation.
	// Empty means all completed steps.
	SourceSteps []string
}

func (AssetCreationConfig) Kind() StepType { return STEP_TYPE_ASSET_CREATION }
