package chatbot

import (
	"encoding/json"
	"testing"

	"github.com/Asyl777/neuroflow-instagramapi/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActions(t *testing.T) {
	actions, err := ParseActions(`[
		{"type":"send_message","data":{"text":"hi"}},
		{"type":"tag_user","data":{"tag":"lead"}}
	]`)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, ActionSendMessage, actions[0].Type)
	assert.Equal(t, ActionTagUser, actions[1].Type)

	actions, err = ParseActions("")
	require.NoError(t, err)
	assert.Nil(t, actions)

	_, err = ParseActions(`{"not":"a list"}`)
	require.Error(t, err)
}

func TestValidateActionRequiredFields(t *testing.T) {
	cases := []struct {
		name   string
		action Action
		errMsg string
	}{
		{"send_message without text", Action{Type: ActionSendMessage, Data: json.RawMessage(`{}`)}, "text is required"},
		{"send_template without id", Action{Type: ActionSendTemplate, Data: json.RawMessage(`{}`)}, "template_id is required"},
		{"set_user_state unknown state", Action{Type: ActionSetUserState, Data: json.RawMessage(`{"state":"astronaut"}`)}, "unknown state"},
		{"webhook_call without url", Action{Type: ActionWebhookCall, Data: json.RawMessage(`{}`)}, "url is required"},
		{"go_to_step without scenario", Action{Type: ActionGoToStep, Data: json.RawMessage(`{}`)}, "scenario_id is required"},
		{"tag_user without tag", Action{Type: ActionTagUser, Data: json.RawMessage(`{}`)}, "tag is required"},
		{"collect_data without key", Action{Type: ActionCollectData, Data: json.RawMessage(`{}`)}, "key is required"},
		{"delay negative", Action{Type: ActionDelay, Data: json.RawMessage(`{"seconds":-5}`)}, "must not be negative"},
		{"unknown type", Action{Type: "launch_rocket"}, "unknown action type"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateAction(tc.action)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestValidateActionAccepts(t *testing.T) {
	valid := []Action{
		{Type: ActionSendMessage, Data: json.RawMessage(`{"text":"hi"}`)},
		{Type: ActionSendTemplate, Data: json.RawMessage(`{"template_id":"abc"}`)},
		{Type: ActionSetUserState, Data: json.RawMessage(`{"state":"vip"}`)},
		{Type: ActionAIAgentCall},
		{Type: ActionWebhookCall, Data: json.RawMessage(`{"url":"https://example.com"}`)},
		{Type: ActionGoToStep, Data: json.RawMessage(`{"scenario_id":"abc","step_number":2}`)},
		{Type: ActionTagUser, Data: json.RawMessage(`{"tag":"lead"}`)},
		{Type: ActionCollectData, Data: json.RawMessage(`{"key":"email"}`)},
		{Type: ActionDelay, Data: json.RawMessage(`{"seconds":3}`)},
	}
	require.NoError(t, ValidateActions(valid))
}

func TestValidateActionsReportsIndex(t *testing.T) {
	err := ValidateActions([]Action{
		{Type: ActionSendMessage, Data: json.RawMessage(`{"text":"ok"}`)},
		{Type: ActionTagUser, Data: json.RawMessage(`{}`)},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "action 1")
}

func TestValidateTriggerValue(t *testing.T) {
	require.NoError(t, ValidateTriggerValue(models.TriggerExactMatch, "hello"))
	require.Error(t, ValidateTriggerValue(models.TriggerExactMatch, ""))

	require.NoError(t, ValidateTriggerValue(models.TriggerRegex, `order\s+\d+`))
	require.Error(t, ValidateTriggerValue(models.TriggerRegex, `[unclosed`))

	require.NoError(t, ValidateTriggerValue(models.TriggerNumberRange, `{"min":1,"max":10}`))
	require.Error(t, ValidateTriggerValue(models.TriggerNumberRange, `not json`))
	require.Error(t, ValidateTriggerValue(models.TriggerNumberRange, `{"min":10,"max":1}`))

	require.NoError(t, ValidateTriggerValue(models.TriggerUserState, "vip"))
	require.Error(t, ValidateTriggerValue(models.TriggerUserState, "astronaut"))

	// Payload-free trigger types accept an empty value.
	require.NoError(t, ValidateTriggerValue(models.TriggerUserJoin, ""))
	require.NoError(t, ValidateTriggerValue(models.TriggerTimeBased, ""))
}

func TestParseStepTriggers(t *testing.T) {
	triggers, err := ParseStepTriggers(`[{"type":"exact_match","value":"yes"},{"value":"no"}]`)
	require.NoError(t, err)
	require.Len(t, triggers, 2)
	assert.Equal(t, "exact_match", triggers[0].Type)
	assert.Empty(t, triggers[1].Type)

	triggers, err = ParseStepTriggers("")
	require.NoError(t, err)
	assert.Nil(t, triggers)

	_, err = ParseStepTriggers(`broken`)
	require.Error(t, err)
}
