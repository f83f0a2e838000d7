package chatbot

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Asyl777/neuroflow-instagramapi/internal/models"
	"gorm.io/gorm"
)

// Response is one entry of the response list produced by executing actions.
// The caller (integration layer) is responsible for delivering send_message/
// send_template texts to the channel and for dispatching ai_agent_call
// descriptors; the core only describes the calls to be made.
type Response struct {
	Type         string          `json:"type"`
	Text         string          `json:"text,omitempty"`
	Message      string          `json:"message,omitempty"` // error description
	TemplateType string          `json:"template_type,omitempty"`
	Buttons      json.RawMessage `json:"buttons,omitempty"`
	MessageID    string          `json:"message_id,omitempty"`
	AgentURL     string          `json:"agent_url,omitempty"`
	Payload      *AgentPayload   `json:"payload,omitempty"`
	DelaySeconds int             `json:"delay_seconds,omitempty"`
}

// AgentPayload is the context handed to an external reasoning agent.
type AgentPayload struct {
	UserID              string           `json:"user_id"`
	InstagramUserID     int64            `json:"instagram_user_id"`
	Username            string           `json:"username"`
	Message             string           `json:"message"`
	UserState           string           `json:"user_state"`
	Context             map[string]any   `json:"context"`
	ConversationHistory []HistoryMessage `json:"conversation_history"`
}

// HistoryMessage is one past turn included in the agent context.
type HistoryMessage struct {
	Content    string `json:"content"`
	SenderType string `json:"sender_type"`
	CreatedAt  string `json:"created_at"`
}

// Executor interprets an ordered action list and performs the effects.
type Executor struct {
	now             func() time.Time
	historyLimit    int
	defaultAgentURL string
}

// NewExecutor constructs an Executor. defaultAgentURL is used for
// ai_agent_call actions whose data carries no agent_url of its own.
func NewExecutor(defaultAgentURL string) *Executor {
	return &Executor{
		now:             time.Now,
		historyLimit:    10,
		defaultAgentURL: defaultAgentURL,
	}
}

// Execute runs the actions strictly in list order against the user. A
// failure in one action is isolated: it is recorded as an
// action_execution_error event and execution continues with the next action.
func (e *Executor) Execute(tx *gorm.DB, user *models.User, actions []Action, originalMessage *models.Message) []Response {
	var responses []Response

	for _, action := range actions {
		response, err := e.executeOne(tx, user, action, originalMessage)
		if err != nil {
			log.Printf("Action %s failed: %v", action.Type, err)
			logWarnEvent(tx, EventActionExecutionError, userRef(user), map[string]any{
				"action_type": string(action.Type),
				"trigger_id":  action.TriggerID,
				"user_id":     user.ID,
			}, err.Error())
			continue
		}
		if response != nil {
			responses = append(responses, *response)
		}
	}

	return responses
}

// executeOne handles a single action. The switch over ActionType is
// exhaustive over the closed action set; an unknown tag is an error.
func (e *Executor) executeOne(tx *gorm.DB, user *models.User, action Action, originalMessage *models.Message) (*Response, error) {
	switch action.Type {
	case ActionSendMessage:
		return e.sendMessage(tx, user, action)
	case ActionSendTemplate:
		return e.sendTemplate(tx, user, action)
	case ActionSetUserState:
		return nil, e.setUserState(tx, user, action)
	case ActionAIAgentCall:
		return e.callAIAgent(tx, user, action, originalMessage)
	case ActionWebhookCall:
		return nil, e.callWebhook(tx, user, action)
	case ActionGoToStep:
		return nil, e.goToStep(tx, user, action)
	case ActionTagUser:
		return nil, e.tagUser(tx, user, action)
	case ActionCollectData:
		return nil, e.collectData(tx, user, action, originalMessage)
	case ActionDelay:
		var d DelayData
		if err := decodeData(action.Data, &d); err != nil {
			return nil, err
		}
		if d.Seconds <= 0 {
			d.Seconds = 1
		}
		// No state mutation: the caller schedules the continuation.
		return &Response{Type: "delay", DelaySeconds: d.Seconds}, nil
	}
	return nil, fmt.Errorf("unknown action type %q", action.Type)
}

func (e *Executor) sendMessage(tx *gorm.DB, user *models.User, action Action) (*Response, error) {
	var d SendMessageData
	if err := decodeData(action.Data, &d); err != nil {
		return nil, err
	}

	text := e.resolveVariables(d.Text, user)

	botMessage, err := saveMessage(tx, user.ID, text, "bot", nil, nil)
	if err != nil {
		return nil, err
	}

	return &Response{Type: "send_message", Text: text, MessageID: botMessage.ID}, nil
}

func (e *Executor) sendTemplate(tx *gorm.DB, user *models.User, action Action) (*Response, error) {
	var d SendTemplateData
	if err := decodeData(action.Data, &d); err != nil {
		return nil, err
	}
	if d.TemplateID == "" {
		return &Response{Type: "error", Message: "Template ID not specified"}, nil
	}

	var template models.Template
	if err := tx.First(&template, "id = ?", d.TemplateID).Error; err != nil {
		return &Response{Type: "error", Message: "Template not found"}, nil
	}

	text := e.resolveVariables(template.TemplateText, user)

	botMessage, err := saveMessage(tx, user.ID, text, "bot", nil, nil)
	if err != nil {
		return nil, err
	}

	if err := tx.Model(&template).
		Update("usage_count", gorm.Expr("usage_count + 1")).Error; err != nil {
		log.Printf("Failed to bump usage count for template %s: %v", template.ID, err)
	}

	var buttons json.RawMessage
	if template.Buttons != "" {
		buttons = json.RawMessage(template.Buttons)
	}

	return &Response{
		Type:         "send_template",
		Text:         text,
		TemplateType: template.TemplateType,
		Buttons:      buttons,
		MessageID:    botMessage.ID,
	}, nil
}

func (e *Executor) setUserState(tx *gorm.DB, user *models.User, action Action) error {
	var d SetUserStateData
	if err := decodeData(action.Data, &d); err != nil {
		return err
	}
	if d.State == "" || !models.ValidUserState(d.State) {
		return nil // unknown target state is absorbed, not fatal
	}

	oldState := user.CurrentState
	user.PreviousState = oldState
	user.CurrentState = models.UserState(d.State)

	logEvent(tx, EventUserStateChanged, userRef(user), map[string]any{
		"user_id":   user.ID,
		"old_state": string(oldState),
		"new_state": d.State,
	})
	return nil
}

func (e *Executor) callAIAgent(tx *gorm.DB, user *models.User, action Action, originalMessage *models.Message) (*Response, error) {
	var d AIAgentCallData
	if err := decodeData(action.Data, &d); err != nil {
		return nil, err
	}
	agentURL := d.AgentURL
	if agentURL == "" {
		agentURL = e.defaultAgentURL
	}
	if agentURL == "" {
		return nil, nil
	}

	history, err := recentMessages(tx, user.ID, e.historyLimit)
	if err != nil {
		return nil, err
	}

	payload := &AgentPayload{
		UserID:              user.ID,
		InstagramUserID:     user.InstagramUserID,
		Username:            user.Username,
		Message:             originalMessage.Content,
		UserState:           string(user.CurrentState),
		Context:             user.StateDataMap(),
		ConversationHistory: history,
	}

	// The message stays pending until the agent's reply is delivered.
	if err := tx.Model(originalMessage).Update("ai_processed", false).Error; err != nil {
		return nil, err
	}

	return &Response{
		Type:      "ai_agent_call",
		AgentURL:  agentURL,
		Payload:   payload,
		MessageID: originalMessage.ID,
	}, nil
}

func (e *Executor) callWebhook(tx *gorm.DB, user *models.User, action Action) error {
	var d WebhookCallData
	if err := decodeData(action.Data, &d); err != nil {
		return err
	}

	payload := d.Payload
	if payload == nil {
		payload = make(map[string]any)
	}
	payload["user_id"] = user.ID
	payload["instagram_user_id"] = user.InstagramUserID
	payload["username"] = user.Username
	payload["timestamp"] = e.now().UTC().Format(time.RFC3339)

	// Actual HTTP dispatch, retries and timeouts belong to the
	// integration layer; the core records the call descriptor.
	logEvent(tx, EventWebhookCalled, userRef(user), map[string]any{
		"webhook_url": d.URL,
		"payload":     payload,
	})
	return nil
}

func (e *Executor) goToStep(tx *gorm.DB, user *models.User, action Action) error {
	var d GoToStepData
	if err := decodeData(action.Data, &d); err != nil {
		return err
	}
	if d.ScenarioID == "" {
		return nil
	}
	if d.StepNumber <= 0 {
		d.StepNumber = 1
	}

	now := e.now()
	scenarioID := d.ScenarioID
	user.CurrentScenarioID = &scenarioID
	user.CurrentStep = d.StepNumber
	user.ScenarioStartedAt = &now
	user.CurrentState = models.StateInScenario
	user.TotalScenariosStarted++

	if err := tx.Model(&models.Scenario{}).Where("id = ?", scenarioID).
		Update("total_starts", gorm.Expr("total_starts + 1")).Error; err != nil {
		log.Printf("Failed to bump start count for scenario %s: %v", scenarioID, err)
	}

	// One active session per (user, scenario) pairing: re-entering an
	// in-progress scenario reuses the existing session.
	var count int64
	tx.Model(&models.ScenarioSession{}).
		Where("user_id = ? AND scenario_id = ? AND status = ?", user.ID, scenarioID, "active").
		Count(&count)
	if count == 0 {
		session := models.ScenarioSession{
			UserID:      user.ID,
			ScenarioID:  scenarioID,
			Status:      "active",
			CurrentStep: d.StepNumber,
			SessionData: "{}",
		}
		if err := tx.Create(&session).Error; err != nil {
			return err
		}
	}

	logEvent(tx, EventScenarioStarted, EventRefs{UserID: &user.ID, ScenarioID: &scenarioID}, map[string]any{
		"user_id":     user.ID,
		"scenario_id": scenarioID,
		"step":        d.StepNumber,
	})
	return nil
}

func (e *Executor) tagUser(tx *gorm.DB, user *models.User, action Action) error {
	var d TagUserData
	if err := decodeData(action.Data, &d); err != nil {
		return err
	}
	if d.Tag == "" {
		return nil
	}

	if user.AddTag(d.Tag) {
		logEvent(tx, EventUserTagged, userRef(user), map[string]any{
			"user_id": user.ID,
			"tag":     d.Tag,
		})
	}
	return nil
}

func (e *Executor) collectData(tx *gorm.DB, user *models.User, action Action, originalMessage *models.Message) error {
	var d CollectDataData
	if err := decodeData(action.Data, &d); err != nil {
		return err
	}
	if d.Key == "" {
		return nil
	}

	value := d.Value
	if value == "" {
		value = strings.TrimSpace(originalMessage.Content)
	}
	user.SetCollected(d.Key, value)

	logEvent(tx, EventUserDataCollected, userRef(user), map[string]any{
		"user_id": user.ID,
		"key":     d.Key,
	})
	return nil
}

// resolveVariables substitutes literal {name} tokens against the user.
// Undefined variables are left as-is: best-effort templating, not a strict
// template language.
func (e *Executor) resolveVariables(text string, user *models.User) string {
	collected := user.CollectedMap()
	firstName := collected["first_name"]
	if firstName == "" {
		firstName = user.Username
	}

	now := e.now()
	replacements := map[string]string{
		"{username}":     user.Username,
		"{first_name}":   firstName,
		"{user_state}":   string(user.CurrentState),
		"{current_time}": now.Format("15:04"),
		"{current_date}": now.Format("02.01.2006"),
	}

	for token, value := range replacements {
		text = strings.ReplaceAll(text, token, value)
	}
	return text
}

// saveMessage persists one message row.
func saveMessage(tx *gorm.DB, userID, content, senderType string, igMessageID, igThreadID *string) (*models.Message, error) {
	message := models.Message{
		UserID:             userID,
		Content:            content,
		SenderType:         senderType,
		InstagramMessageID: igMessageID,
		InstagramThreadID:  igThreadID,
	}
	if err := tx.Create(&message).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// recentMessages returns the user's last messages in chronological order.
func recentMessages(tx *gorm.DB, userID string, limit int) ([]HistoryMessage, error) {
	var rows []models.Message
	if err := tx.Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	history := make([]HistoryMessage, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		history = append(history, HistoryMessage{
			Content:    rows[i].Content,
			SenderType: rows[i].SenderType,
			CreatedAt:  rows[i].CreatedAt.Format(time.RFC3339),
		})
	}
	return history, nil
}
