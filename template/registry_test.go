package template

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/austin-honeyjar/honeyjar-server-sub004/model"
)

func TestDefaultRegistry(t *testing.T) {
	r, err := NewDefaultRegistry()
	require.NoError(t, err)

	names := r.List()
	require.Contains(t, names, ENTRY_TEMPLATE_NAME)
	require.Contains(t, names, "Launch Announcement")
	require.Contains(t, names, "Media Pitch")

	entry := r.Entry()
	require.NotNil(t, entry)
	require.Equal(t, ENTRY_TEMPLATE_NAME, entry.Name)

	byName, err := r.GetByName("Launch Announcement")
	require.NoError(t, err)
	byId, err := r.GetById(byName.Id)
	require.NoError(t, err)
	require.Equal(t, byName.Name, byId.Name)
}

func TestRegistryNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.GetByName("missing")
	require.Error(t, err)
	_, ok := err.(model.NotFoundError)
	require.True(t, ok)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	tpl := model.WorkflowTemplate{
		Id:   "tpl-a",
		Name: "A",
		Steps: []model.StepDefinition{
			{Name: "Only", Type: model.STEP_TYPE_USER_INPUT, Order: 0, Config: model.UserInputConfig{}},
		},
	}
	require.NoError(t, r.Register(tpl))
	require.Error(t, r.Register(tpl))
}

func TestRegistryRejectsSecondEntryTemplate(t *testing.T) {
	r := NewRegistry()
	entry := func(id, name string) model.WorkflowTemplate {
		return model.WorkflowTemplate{
			Id: id, Name: name, Entry: true, SelectionStep: "Pick",
			Steps: []model.StepDefinition{
				{Name: "Pick", Type: model.STEP_TYPE_JSON_DIALOG, Order: 0,
					Config: model.JsonDialogConfig{Goal: "pick", Options: []string{"X"}}},
			},
		}
	}
	require.NoError(t, r.Register(entry("tpl-1", "One")))
	require.Error(t, r.Register(entry("tpl-2", "Two")))
}
