package chatbot

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/Asyl777/neuroflow-instagramapi/internal/models"
	"gorm.io/gorm"
)

// Event types recorded by the engine.
const (
	EventUserJoined             = "user_joined"
	EventTriggerActivated       = "trigger_activated"
	EventTriggerMatchError      = "trigger_match_error"
	EventScenarioStarted        = "scenario_started"
	EventScenarioStepCompleted  = "scenario_step_completed"
	EventScenarioCompleted      = "scenario_completed"
	EventUserStateChanged       = "user_state_changed"
	EventUserTagged             = "user_tagged"
	EventUserDataCollected      = "user_data_collected"
	EventWebhookCalled          = "webhook_called"
	EventActionExecutionError   = "action_execution_error"
	EventMessageProcessingError = "message_processing_error"
)

// EventRefs are the optional entity links attached to an audit event.
type EventRefs struct {
	UserID     *string
	ScenarioID *string
	TriggerID  *string
}

func userRef(user *models.User) EventRefs {
	if user == nil {
		return EventRefs{}
	}
	id := user.ID
	return EventRefs{UserID: &id}
}

// logEvent appends one audit row. Event writing is best-effort: a failed
// insert is logged and swallowed so audit problems never break processing.
func logEvent(tx *gorm.DB, eventType string, refs EventRefs, data map[string]any) {
	writeEvent(tx, eventType, refs, data, true, "")
}

// logWarnEvent appends an unsuccessful audit row carrying an error message.
func logWarnEvent(tx *gorm.DB, eventType string, refs EventRefs, data map[string]any, errMsg string) {
	writeEvent(tx, eventType, refs, data, false, errMsg)
}

func writeEvent(tx *gorm.DB, eventType string, refs EventRefs, data map[string]any, success bool, errMsg string) {
	payload := "{}"
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			payload = string(raw)
		}
	}

	event := models.Event{
		EventType:    eventType,
		EventName:    eventName(eventType),
		UserID:       refs.UserID,
		ScenarioID:   refs.ScenarioID,
		TriggerID:    refs.TriggerID,
		EventData:    payload,
		Success:      success,
		ErrorMessage: errMsg,
	}

	if err := tx.Create(&event).Error; err != nil {
		log.Printf("Failed to record %s event: %v", eventType, err)
	}
}

// eventName turns "scenario_step_completed" into "Scenario Step Completed".
func eventName(eventType string) string {
	words := strings.Split(eventType, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
