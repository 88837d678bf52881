package template

import (
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/austin-honeyjar/honeyjar-server-sub004/model"
)

// Validate checks a template definition at registration time: unique step
// names, dependency references resolvable within the template, a config
// struct matching each step's declared type, and compilable completion rules.
func Validate(tpl *model.WorkflowTemplate) error {
	if tpl.Id == "" || tpl.Name == "" {
		return fmt.Errorf("template id and name are required")
	}
	if len(tpl.Steps) == 0 {
		return fmt.Errorf("template has no steps")
	}
	byName := make(map[string]*model.StepDefinition, len(tpl.Steps))
	orders := make(map[int]string, len(tpl.Steps))
	for i := range tpl.Steps {
		step := &tpl.Steps[i]
		if step.Name == "" {
			return fmt.Errorf("step %d has no name", i)
		}
		if _, dup := byName[step.Name]; dup {
			return fmt.Errorf("duplicate step name %s", step.Name)
		}
		if prev, dup := orders[step.Order]; dup {
			return fmt.Errorf("steps %s and %s share order %d", prev, step.Name, step.Order)
		}
		byName[step.Name] = step
		orders[step.Order] = step.Name
	}
	for i := range tpl.Steps {
		step := &tpl.Steps[i]
		for _, dep := range step.Dependencies {
			if dep == step.Name {
				return fmt.Errorf("step %s depends on itself", step.Name)
			}
			if _, ok := byName[dep]; !ok {
				return fmt.Errorf("step %s depends on unknown step %s", step.Name, dep)
			}
		}
		if err := validateConfig(step, byName); err != nil {
			return err
		}
	}
	first := &tpl.Steps[0]
	for i := range tpl.Steps {
		if tpl.Steps[i].Order < first.Order {
			first = &tpl.Steps[i]
		}
	}
	// the lowest-order step is activated directly at instantiation and only
	// api call steps run without a user turn, so one there would never execute
	if first.Type == model.STEP_TYPE_API_CALL {
		return fmt.Errorf("first step %s cannot be an api call step", first.Name)
	}
	if tpl.Entry {
		sel, ok := byName[tpl.SelectionStep]
		if !ok {
			return fmt.Errorf("entry template selection step %s not found", tpl.SelectionStep)
		}
		if sel.Type != model.STEP_TYPE_JSON_DIALOG {
			return fmt.Errorf("selection step %s must be a json dialog step", tpl.SelectionStep)
		}
	}
	return nil
}

func validateConfig(step *model.StepDefinition, byName map[string]*model.StepDefinition) error {
	if step.Config == nil {
		return fmt.Errorf("step %s has no config", step.Name)
	}
	if step.Config.Kind() != step.Type {
		return fmt.Errorf("step %s declares type %s but carries %s config", step.Name, step.Type, step.Config.Kind())
	}
	switch conf := step.Config.(type) {
	case model.JsonDialogConfig:
		if conf.CompletionRule != "" {
			if err := CompileRule(conf.CompletionRule); err != nil {
				return fmt.Errorf("step %s completion rule: %w", step.Name, err)
			}
		}
		if conf.ReviewOf != "" {
			target, ok := byName[conf.ReviewOf]
			if !ok {
				return fmt.Errorf("step %s reviews unknown step %s", step.Name, conf.ReviewOf)
			}
			if target.Type != model.STEP_TYPE_ASSET_CREATION {
				return fmt.Errorf("step %s reviews non-asset step %s", step.Name, conf.ReviewOf)
			}
		}
		if conf.SkipOnApprove != "" {
			if _, ok := byName[conf.SkipOnApprove]; !ok {
				return fmt.Errorf("step %s skip target %s not found", step.Name, conf.SkipOnApprove)
			}
		}
	case model.ApiCallConfig:
		if conf.Action == "" {
			return fmt.Errorf("step %s has no api action", step.Name)
		}
	case model.AssetCreationConfig:
		if conf.AssetKind == "" {
			return fmt.Errorf("step %s has no asset kind", step.Name)
		}
		if conf.Instructions == "" {
			return fmt.Errorf("step %s has no generation instructions", step.Name)
		}
		for _, src := range conf.SourceSteps {
			if _, ok := byName[src]; !ok {
				return fmt.Errorf("step %s sources unknown step %s", step.Name, src)
			}
		}
	}
	return nil
}

// CompileRule checks that a completion rule compiles to a boolean expression
// over the dialog result environment.
func CompileRule(rule string) error {
	_, err := expr.Compile(rule, expr.AsBool(), expr.AllowUndefinedVariables())
	return err
}
