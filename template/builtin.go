package template

import "github.com/austin-honeyjar/honeyjar-server-sub004/model"

const ENTRY_TEMPLATE_NAME = "Content Selection"

// BuiltinTemplates is the shipped template set: the entry routing template
// plus the content templates it can transition to.
func BuiltinTemplates() []model.WorkflowTemplate {
	return []model.WorkflowTemplate{
		contentSelection(),
		launchAnnouncement(),
		mediaPitch(),
	}
}

func contentSelection() model.WorkflowTemplate {
	return model.WorkflowTemplate{
		Id:            "tpl-content-selection",
		Name:          ENTRY_TEMPLATE_NAME,
		Description:   "Routes the thread to a specialized content workflow",
		Entry:         true,
		SelectionStep: "Content Type Selection",
		Steps: []model.StepDefinition{
			{
				Name:   "Content Type Selection",
				Type:   model.STEP_TYPE_JSON_DIALOG,
				Prompt: "What would you like to create today? I can help with a Launch Announcement or a Media Pitch.",
				Order:  0,
				Config: model.JsonDialogConfig{
					Goal:             "Determine which content type the user wants to create.",
					BaseInstructions: "Match the user's request against the available content types. Do not complete until the request clearly maps to exactly one option.",
					Options:          []string{"Launch Announcement", "Media Pitch"},
					CompletionRule:   "optionMatched",
				},
			},
		},
	}
}

func launchAnnouncement() model.WorkflowTemplate {
	return model.WorkflowTemplate{
		Id:          "tpl-launch-announcement",
		Name:        "Launch Announcement",
		Description: "Guided creation of a product or company launch press release",
		Steps: []model.StepDefinition{
			{
				Name:   "Company Information",
				Type:   model.STEP_TYPE_JSON_DIALOG,
				Prompt: "Let's start with your company. What is the company name, and what does it do?",
				Order:  0,
				Config: model.JsonDialogConfig{
					Goal:             "Collect company name, description, location and website.",
					BaseInstructions: "Gather the company profile for a press release boilerplate. Required: company_name, description. Optional: location, website, founding_year.",
					CompletionRule:   "completionPercentage >= 80 || proceedRequested",
				},
			},
			{
				Name:         "Announcement Details",
				Type:         model.STEP_TYPE_JSON_DIALOG,
				Prompt:       "Now tell me about the launch itself. What are you announcing, and when?",
				Order:        1,
				Dependencies: []string{"Company Information"},
				Config: model.JsonDialogConfig{
					Goal:             "Collect what is being launched, the launch date, key features and target audience.",
					BaseInstructions: "Gather launch specifics. Required: product_name, launch_date, key_features. Optional: pricing, availability, target_audience.",
					CompletionRule:   "completionPercentage >= 80 || proceedRequested",
				},
			},
			{
				Name:         "Spokesperson Quote",
				Type:         model.STEP_TYPE_USER_INPUT,
				Prompt:       "Who should be quoted in the release, and what would you like the quote to convey?",
				Order:        2,
				Dependencies: []string{"Announcement Details"},
				Config:       model.UserInputConfig{Placeholder: "e.g. Jane Doe, CEO — excitement about the launch"},
			},
			{
				Name:         "Key Facts Summary",
				Type:         model.STEP_TYPE_API_CALL,
				Prompt:       "Summarizing the key facts collected so far...",
				Order:        3,
				Dependencies: []string{"Announcement Details"},
				Config: model.ApiCallConfig{
					Action: "summarize_collected",
					Params: map[string]any{"focus": "facts suitable for a press release bullet list"},
				},
			},
			{
				Name:         "Press Release Draft",
				Type:         model.STEP_TYPE_ASSET_CREATION,
				Prompt:       "Drafting your press release...",
				Order:        4,
				Dependencies: []string{"Spokesperson Quote", "Key Facts Summary"},
				Config: model.AssetCreationConfig{
					AssetKind: model.ASSET_KIND_PRESS_RELEASE,
					Instructions: "Write a complete press release for {$.company_information.company_name} announcing " +
						"{$.announcement_details.product_name}. Use standard press release structure: headline, dateline, " +
						"lead paragraph, body with key features, spokesperson quote, company boilerplate, media contact placeholder.",
				},
			},
			{
				Name:         "Asset Review",
				Type:         model.STEP_TYPE_JSON_DIALOG,
				Prompt:       "Here is your draft. Would you like any changes, or does it look good?",
				Order:        5,
				Dependencies: []string{"Press Release Draft"},
				Config: model.JsonDialogConfig{
					Goal:             "Classify the user's feedback on the generated press release.",
					BaseInstructions: "Decide whether the user approved the draft, requested a revision, or was unclear.",
					ReviewOf:         "Press Release Draft",
					SkipOnApprove:    "Asset Revision",
				},
			},
			{
				Name:         "Asset Revision",
				Type:         model.STEP_TYPE_USER_INPUT,
				Prompt:       "What would you like to change in the draft?",
				Order:        6,
				Dependencies: []string{"Asset Review"},
				Config:       model.UserInputConfig{},
			},
			{
				Name:         "Distribution Strategy",
				Type:         model.STEP_TYPE_AI_SUGGESTION,
				Prompt:       "Finally, how do you plan to distribute this release? I can suggest an outreach plan.",
				Order:        7,
				Dependencies: []string{"Asset Revision"},
				Config: model.AiSuggestionConfig{
					Instructions: "Suggest a short distribution plan for the finished press release: wire services, direct outreach, owned channels.",
				},
			},
		},
	}
}

func mediaPitch() model.WorkflowTemplate {
	return model.WorkflowTemplate{
		Id:          "tpl-media-pitch",
		Name:        "Media Pitch",
		Description: "Guided creation of a journalist pitch email",
		Steps: []model.StepDefinition{
			{
				Name:   "Story Angle",
				Type:   model.STEP_TYPE_JSON_DIALOG,
				Prompt: "What's the story you want to pitch, and why is it newsworthy right now?",
				Order:  0,
				Config: model.JsonDialogConfig{
					Goal:             "Collect the story angle, the news hook and supporting proof points.",
					BaseInstructions: "Gather pitch material. Required: story_angle, news_hook. Optional: proof_points, exclusives_offered.",
					CompletionRule:   "completionPercentage >= 70 || proceedRequested",
				},
			},
			{
				Name:         "Target Outlets",
				Type:         model.STEP_TYPE_USER_INPUT,
				Prompt:       "Which outlets or journalists are you targeting?",
				Order:        1,
				Dependencies: []string{"Story Angle"},
				Config:       model.UserInputConfig{Placeholder: "e.g. TechCrunch, The Verge"},
			},
			{
				Name:         "Pitch Draft",
				Type:         model.STEP_TYPE_ASSET_CREATION,
				Prompt:       "Drafting your pitch...",
				Order:        2,
				Dependencies: []string{"Target Outlets"},
				Config: model.AssetCreationConfig{
					AssetKind: model.ASSET_KIND_MEDIA_PITCH,
					Instructions: "Write a concise journalist pitch email around this angle: {$.story_angle.story_angle}. " +
						"Subject line, personalized opening, the hook, three supporting points, clear ask.",
				},
			},
			{
				Name:         "Asset Review",
				Type:         model.STEP_TYPE_JSON_DIALOG,
				Prompt:       "Here is your pitch. Any changes, or is it ready to send?",
				Order:        3,
				Dependencies: []string{"Pitch Draft"},
				Config: model.JsonDialogConfig{
					Goal:             "Classify the user's feedback on the generated pitch.",
					BaseInstructions: "Decide whether the user approved the pitch, requested a revision, or was unclear.",
					ReviewOf:         "Pitch Draft",
					SkipOnApprove:    "Asset Revision",
				},
			},
			{
				Name:         "Asset Revision",
				Type:         model.STEP_TYPE_USER_INPUT,
				Prompt:       "What would you like to change in the pitch?",
				Order:        4,
				Dependencies: []string{"Asset Review"},
				Config:       model.UserInputConfig{},
			},
			{
				Name:         "Send Checklist",
				Type:         model.STEP_TYPE_AI_SUGGESTION,
				Prompt:       "Want a quick checklist before you hit send?",
				Order:        5,
				Dependencies: []string{"Asset Revision"},
				Config: model.AiSuggestionConfig{
					Instructions: "Suggest a short pre-send checklist for a media pitch: timing, personalization, follow-up cadence.",
				},
			},
		},
	}
}
