package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Asyl777/neuroflow-instagramapi/internal/models"
	"gorm.io/gorm"
)

// Service is the orchestrator: the single entry point sequencing user
// lookup, trigger selection, scenario stepping and action execution for one
// inbound message. All effects of one message commit atomically; on failure
// the whole turn rolls back and only the error event survives.
type Service struct {
	db       *gorm.DB
	selector *Selector
	stepper  *Stepper
	executor *Executor
	now      func() time.Time
}

// NewService wires the engine components around one database handle.
// defaultAgentURL configures ai_agent_call actions that carry no explicit
// agent URL (no process-wide mutable registry).
func NewService(db *gorm.DB, defaultAgentURL string) *Service {
	return &Service{
		db:       db,
		selector: NewSelector(),
		stepper:  NewStepper(),
		executor: NewExecutor(defaultAgentURL),
		now:      time.Now,
	}
}

// ProcessRequest is one inbound message to process.
type ProcessRequest struct {
	InstagramUserID    int64  `json:"instagram_user_id" binding:"required"`
	Username           string `json:"username" binding:"required"`
	Message            string `json:"message"`
	InstagramMessageID string `json:"instagram_message_id"`
	InstagramThreadID  string `json:"instagram_thread_id"`
	ButtonPayload      string `json:"button_payload"`
	Scheduled          bool   `json:"scheduled"`
}

// ProcessResult is the aggregated outcome of one processed message.
type ProcessResult struct {
	Success          bool       `json:"success"`
	Duplicate        bool       `json:"duplicate,omitempty"`
	UserID           string     `json:"user_id,omitempty"`
	Responses        []Response `json:"responses"`
	ActionsExecuted  int        `json:"actions_executed"`
	ProcessingTimeMs int        `json:"processing_time_ms"`
	UserState        string     `json:"user_state,omitempty"`
	Error            string     `json:"error,omitempty"`
}

// ProcessMessage handles one inbound message end to end. It never lets an
// internal error propagate to the caller: any failure is logged as a
// message_processing_error event and surfaces as {success:false}.
func (s *Service) ProcessMessage(ctx context.Context, req ProcessRequest) ProcessResult {
	start := s.now()
	result := ProcessResult{Responses: []Response{}}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Duplicate suppression on the external message id: an already
		// recorded message is acknowledged without reprocessing.
		if req.InstagramMessageID != "" {
			var existing models.Message
			err := tx.Where("instagram_message_id = ?", req.InstagramMessageID).
				First(&existing).Error
			if err == nil {
				result.Success = true
				result.Duplicate = true
				result.UserID = existing.UserID
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		user, err := s.getOrCreateUser(tx, req.InstagramUserID, req.Username)
		if err != nil {
			return err
		}

		message, err := saveMessage(tx, user.ID, req.Message, "user",
			optional(req.InstagramMessageID), optional(req.InstagramThreadID))
		if err != nil {
			return err
		}

		in := Inbound{
			Text:          req.Message,
			ButtonPayload: req.ButtonPayload,
			Scheduled:     req.Scheduled,
		}

		triggerActions, err := s.selector.Select(tx, user, in)
		if err != nil {
			return err
		}

		scenarioActions, err := s.stepper.Advance(tx, user, in)
		if err != nil {
			return err
		}

		// Trigger actions execute before scenario actions, in the order
		// they were appended.
		allActions := append(triggerActions, scenarioActions...)

		responses := s.executor.Execute(tx, user, allActions, message)

		processingMs := int(s.now().Sub(start).Milliseconds())
		if err := s.finalizeMessage(tx, user, message, allActions, processingMs); err != nil {
			return err
		}

		result.Success = true
		result.UserID = user.ID
		result.Responses = responses
		result.ActionsExecuted = len(allActions)
		result.UserState = string(user.CurrentState)
		return nil
	})

	result.ProcessingTimeMs = int(s.now().Sub(start).Milliseconds())

	if err != nil {
		log.Printf("Message processing failed for user %d: %v", req.InstagramUserID, err)
		// The transaction rolled back; record the failure on the base
		// handle so the audit trail survives.
		logWarnEvent(s.db, EventMessageProcessingError, EventRefs{}, map[string]any{
			"instagram_user_id": req.InstagramUserID,
			"message":           req.Message,
		}, err.Error())

		return ProcessResult{
			Success:          false,
			Error:            err.Error(),
			Responses:        []Response{},
			ProcessingTimeMs: result.ProcessingTimeMs,
		}
	}

	return result
}

func (s *Service) getOrCreateUser(tx *gorm.DB, instagramUserID int64, username string) (*models.User, error) {
	var user models.User
	err := tx.Where("instagram_user_id = ?", instagramUserID).First(&user).Error
	if err == nil {
		user.LastActivityAt = s.now()
		user.Username = username // keep current in case it changed
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user = models.User{
		InstagramUserID: instagramUserID,
		Username:        username,
		CurrentState:    models.StateNew,
		LastActivityAt:  s.now(),
	}
	if err := tx.Create(&user).Error; err != nil {
		return nil, err
	}

	logEvent(tx, EventUserJoined, EventRefs{UserID: &user.ID}, map[string]any{
		"user_id":  user.ID,
		"username": username,
	})

	return &user, nil
}

// finalizeMessage stamps the inbound message and the user's aggregate
// counters at the end of a successful run.
func (s *Service) finalizeMessage(tx *gorm.DB, user *models.User, message *models.Message, actions []Action, processingMs int) error {
	now := s.now()
	user.TotalMessages++
	user.LastMessageAt = &now

	audit := "[]"
	if len(actions) > 0 {
		if raw, err := json.Marshal(actions); err == nil {
			audit = string(raw)
		}
	}

	if err := tx.Model(message).Updates(map[string]any{
		"processed":          true,
		"processing_time_ms": processingMs,
		"triggered_actions":  audit,
	}).Error; err != nil {
		return err
	}

	return tx.Save(user).Error
}

// AgentResponseRequest is the reply delivered by the external reasoning
// agent for a previously dispatched ai_agent_call.
type AgentResponseRequest struct {
	Response   string   `json:"response" binding:"required"`
	Confidence float64  `json:"confidence"`
	Actions    []Action `json:"actions"`
	UserState  string   `json:"user_state"`
}

// DeliverResult reports the outcome of an agent response delivery.
type DeliverResult struct {
	Success         bool       `json:"success"`
	MessageID       string     `json:"message_id"`
	ActionsExecuted int        `json:"actions_executed"`
	Responses       []Response `json:"responses"`
}

// DeliverAgentResponse persists the agent's reply as a bot message,
// optionally updates the user state, and runs any attached actions through
// the executor.
func (s *Service) DeliverAgentResponse(ctx context.Context, userID string, req AgentResponseRequest) (*DeliverResult, error) {
	result := &DeliverResult{Responses: []Response{}}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("user %s not found", userID)
			}
			return err
		}

		message := models.Message{
			UserID:      user.ID,
			Content:     req.Response,
			SenderType:  "bot",
			AIProcessed: true,
		}
		if raw, err := json.Marshal(req); err == nil {
			message.AIAgentResponse = string(raw)
		}
		if err := tx.Create(&message).Error; err != nil {
			return err
		}

		if req.UserState != "" && models.ValidUserState(req.UserState) {
			user.PreviousState = user.CurrentState
			user.CurrentState = models.UserState(req.UserState)
		}

		if len(req.Actions) > 0 {
			result.Responses = s.executor.Execute(tx, &user, req.Actions, &message)
		}

		if err := tx.Save(&user).Error; err != nil {
			return err
		}

		result.Success = true
		result.MessageID = message.ID
		result.ActionsExecuted = len(req.Actions)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UserContext is the snapshot handed to the external agent on demand.
type UserContext struct {
	UserID          string           `json:"user_id"`
	InstagramUserID int64            `json:"instagram_user_id"`
	Username        string           `json:"username"`
	CurrentState    string           `json:"current_state"`
	CollectedData   map[string]string `json:"collected_data"`
	Tags            []string         `json:"tags"`
	Segment         string           `json:"segment"`
	TotalMessages   int              `json:"total_messages"`
	FirstSeenAt     time.Time        `json:"first_seen_at"`
	LastActivityAt  time.Time        `json:"last_activity_at"`
	CurrentScenario *ScenarioInfo    `json:"current_scenario,omitempty"`
	MessageHistory  []HistoryMessage `json:"message_history,omitempty"`
}

// ScenarioInfo identifies the user's active scenario position.
type ScenarioInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CurrentStep int    `json:"current_step"`
}

// GetUserContext assembles the agent-facing context for one user.
func (s *Service) GetUserContext(ctx context.Context, userID string, includeMessages bool, messagesLimit int) (*UserContext, error) {
	db := s.db.WithContext(ctx)

	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, err
	}

	uc := &UserContext{
		UserID:          user.ID,
		InstagramUserID: user.InstagramUserID,
		Username:        user.Username,
		CurrentState:    string(user.CurrentState),
		CollectedData:   user.CollectedMap(),
		Tags:            user.TagList(),
		Segment:         user.Segment,
		TotalMessages:   user.TotalMessages,
		FirstSeenAt:     user.FirstSeenAt,
		LastActivityAt:  user.LastActivityAt,
	}

	if user.CurrentScenarioID != nil {
		var scenario models.Scenario
		if err := db.First(&scenario, "id = ?", *user.CurrentScenarioID).Error; err == nil {
			uc.CurrentScenario = &ScenarioInfo{
				ID:          scenario.ID,
				Name:        scenario.Name,
				CurrentStep: user.CurrentStep,
			}
		}
	}

	if includeMessages {
		if messagesLimit <= 0 {
			messagesLimit = 20
		}
		history, err := recentMessages(db, user.ID, messagesLimit)
		if err != nil {
			return nil, err
		}
		uc.MessageHistory = history
	}

	return uc, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
