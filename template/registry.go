package template

import (
	"fmt"

	"github.com/austin-honeyjar/honeyjar-server-sub004/model"
)

// Registry holds the immutable workflow template definitions. The code
// definitions registered here are authoritative; a stale persisted copy of a
// template is never consulted. Lookup only, no mutation after Register.
type Registry struct {
	byName map[string]*model.WorkflowTemplate
	byId   map[string]*model.WorkflowTemplate
	names  []string
	entry  *model.WorkflowTemplate
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*model.WorkflowTemplate),
		byId:   make(map[string]*model.WorkflowTemplate),
	}
}

// NewDefaultRegistry returns a registry loaded with the builtin template set.
func NewDefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	for _, tpl := range BuiltinTemplates() {
		if err := r.Register(tpl); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(tpl model.WorkflowTemplate) error {
	if err := Validate(&tpl); err != nil {
		return fmt.Errorf("invalid template %s: %w", tpl.Name, err)
	}
	if _, ok := r.byName[tpl.Name]; ok {
		return fmt.Errorf("template %s already registered", tpl.Name)
	}
	if _, ok := r.byId[tpl.Id]; ok {
		return fmt.Errorf("template id %s already registered", tpl.Id)
	}
	if tpl.Entry {
		if r.entry != nil {
			return fmt.Errorf("entry template already registered: %s", r.entry.Name)
		}
		r.entry = &tpl
	}
	r.byName[tpl.Name] = &tpl
	r.byId[tpl.Id] = &tpl
	r.names = append(r.names, tpl.Name)
	return nil
}

func (r *Registry) GetByName(name string) (*model.WorkflowTemplate, error) {
	tpl, ok := r.byName[name]
	if !ok {
		return nil, model.NotFoundError{Kind: "template", Key: name}
	}
	return tpl, nil
}

func (r *Registry) GetById(id string) (*model.WorkflowTemplate, error) {
	tpl, ok := r.byId[id]
	if !ok {
		return nil, model.NotFoundError{Kind: "template", Key: id}
	}
	return tpl, nil
}

// List returns template names in registration order.
func (r *Registry) List() []string {
	return append([]string(nil), r.names...)
}

// Entry returns the designated routing template, or nil when none is
// registered.
func (r *Registry) Entry() *model.WorkflowTemplate {
	return r.entry
}
