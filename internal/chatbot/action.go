package chatbot

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Asyl777/neuroflow-instagramapi/internal/models"
)

// ActionType enumerates the closed set of action kinds the executor handles.
// Adding a kind here requires extending the executor switch and ValidateAction.
type ActionType string

const (
	ActionSendMessage  ActionType = "send_message"
	ActionSendTemplate ActionType = "send_template"
	ActionSetUserState ActionType = "set_user_state"
	ActionWebhookCall  ActionType = "webhook_call"
	ActionAIAgentCall  ActionType = "ai_agent_call"
	ActionDelay        ActionType = "delay"
	ActionGoToStep     ActionType = "go_to_step"
	ActionCollectData  ActionType = "collect_data"
	ActionTagUser      ActionType = "tag_user"
)

// Action is a single effect descriptor. Data is decoded into the per-kind
// payload struct matching Type. TriggerID/TriggerName are filled by the
// selector for audit when the action originates from a global trigger.
type Action struct {
	Type ActionType      `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`

	TriggerID   string `json:"trigger_id,omitempty"`
	TriggerName string `json:"trigger_name,omitempty"`
}

// Per-kind action payloads.

type SendMessageData struct {
	Text string `json:"text"`
}

type SendTemplateData struct {
	TemplateID string `json:"template_id"`
}

type SetUserStateData struct {
	State string `json:"state"`
}

type AIAgentCallData struct {
	AgentURL string `json:"agent_url"`
}

type WebhookCallData struct {
	URL     string         `json:"url"`
	Payload map[string]any `json:"payload"`
}

type GoToStepData struct {
	ScenarioID string `json:"scenario_id"`
	StepNumber int    `json:"step_number"`
}

type TagUserData struct {
	Tag string `json:"tag"`
}

type CollectDataData struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type DelayData struct {
	Seconds int `json:"seconds"`
}

// decodeData unmarshals an action payload, tolerating an absent payload.
func decodeData(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// ParseActions decodes a JSON action list column.
func ParseActions(raw string) ([]Action, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var actions []Action
	if err := json.Unmarshal([]byte(raw), &actions); err != nil {
		return nil, fmt.Errorf("parse actions: %w", err)
	}
	return actions, nil
}

// ValidateAction checks an action descriptor at administration time so that
// malformed configuration is rejected early instead of no-op'ing at runtime.
func ValidateAction(a Action) error {
	switch a.Type {
	case ActionSendMessage:
		var d SendMessageData
		if err := decodeData(a.Data, &d); err != nil {
			return fmt.Errorf("send_message: %w", err)
		}
		if d.Text == "" {
			return fmt.Errorf("send_message: text is required")
		}
	case ActionSendTemplate:
		var d SendTemplateData
		if err := decodeData(a.Data, &d); err != nil {
			return fmt.Errorf("send_template: %w", err)
		}
		if d.TemplateID == "" {
			return fmt.Errorf("send_template: template_id is required")
		}
	case ActionSetUserState:
		var d SetUserStateData
		if err := decodeData(a.Data, &d); err != nil {
			return fmt.Errorf("set_user_state: %w", err)
		}
		if !models.ValidUserState(d.State) {
			return fmt.Errorf("set_user_state: unknown state %q", d.State)
		}
	case ActionAIAgentCall:
		var d AIAgentCallData
		if err := decodeData(a.Data, &d); err != nil {
			return fmt.Errorf("ai_agent_call: %w", err)
		}
	case ActionWebhookCall:
		var d WebhookCallData
		if err := decodeData(a.Data, &d); err != nil {
			return fmt.Errorf("webhook_call: %w", err)
		}
		if d.URL == "" {
			return fmt.Errorf("webhook_call: url is required")
		}
	case ActionGoToStep:
		var d GoToStepData
		if err := decodeData(a.Data, &d); err != nil {
			return fmt.Errorf("go_to_step: %w", err)
		}
		if d.ScenarioID == "" {
			return fmt.Errorf("go_to_step: scenario_id is required")
		}
	case ActionTagUser:
		var d TagUserData
		if err := decodeData(a.Data, &d); err != nil {
			return fmt.Errorf("tag_user: %w", err)
		}
		if d.Tag == "" {
			return fmt.Errorf("tag_user: tag is required")
		}
	case ActionCollectData:
		var d CollectDataData
		if err := decodeData(a.Data, &d); err != nil {
			return fmt.Errorf("collect_data: %w", err)
		}
		if d.Key == "" {
			return fmt.Errorf("collect_data: key is required")
		}
	case ActionDelay:
		var d DelayData
		if err := decodeData(a.Data, &d); err != nil {
			return fmt.Errorf("delay: %w", err)
		}
		if d.Seconds < 0 {
			return fmt.Errorf("delay: seconds must not be negative")
		}
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}

// ValidateActions validates a whole descriptor list.
func ValidateActions(actions []Action) error {
	for i, a := range actions {
		if err := ValidateAction(a); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

// NumberRangeValue is the trigger value schema for number_range triggers.
type NumberRangeValue struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

// ValidateTriggerValue checks a trigger value against its type's schema.
func ValidateTriggerValue(triggerType models.TriggerType, value string) error {
	switch triggerType {
	case models.TriggerRegex:
		if _, err := regexp.Compile("(?i)" + value); err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
	case models.TriggerNumberRange:
		var r NumberRangeValue
		if err := json.Unmarshal([]byte(value), &r); err != nil {
			return fmt.Errorf("number_range value must be JSON {\"min\",\"max\"}: %w", err)
		}
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			return fmt.Errorf("number_range: min greater than max")
		}
	case models.TriggerUserState:
		if !models.ValidUserState(value) {
			return fmt.Errorf("user_state: unknown state %q", value)
		}
	case models.TriggerExactMatch, models.TriggerContains,
		models.TriggerStartsWith, models.TriggerEndsWith:
		if value == "" {
			return fmt.Errorf("%s: value is required", triggerType)
		}
	}
	return nil
}

// StepTrigger is an inline trigger descriptor attached to a scenario step.
// Unlike global triggers these are plain JSON objects, not persisted rows.
type StepTrigger struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ParseStepTriggers decodes a step's JSON trigger list column.
func ParseStepTriggers(raw string) ([]StepTrigger, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var triggers []StepTrigger
	if err := json.Unmarshal([]byte(raw), &triggers); err != nil {
		return nil, fmt.Errorf("parse step triggers: %w", err)
	}
	return triggers, nil
}
