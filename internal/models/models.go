package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserState is the lifecycle state of a chatbot user.
type UserState string

const (
	StateNew          UserState = "new"
	StateActive       UserState = "active"
	StateWaitingInput UserState = "waiting_input"
	StateInScenario   UserState = "in_scenario"
	StateBlocked      UserState = "blocked"
	StateVIP          UserState = "vip"
)

// ValidUserState reports whether s is one of the recognized states.
func ValidUserState(s string) bool {
	switch UserState(s) {
	case StateNew, StateActive, StateWaitingInput, StateInScenario, StateBlocked, StateVIP:
		return true
	}
	return false
}

// TriggerType is the matching strategy of a trigger.
type TriggerType string

const (
	TriggerExactMatch  TriggerType = "exact_match"
	TriggerContains    TriggerType = "contains"
	TriggerStartsWith  TriggerType = "starts_with"
	TriggerEndsWith    TriggerType = "ends_with"
	TriggerRegex       TriggerType = "regex"
	TriggerNumberRange TriggerType = "number_range"
	TriggerButtonClick TriggerType = "button_click"
	TriggerUserJoin    TriggerType = "user_join"
	TriggerTimeBased   TriggerType = "time_based"
	TriggerUserState   TriggerType = "user_state"
)

// ValidTriggerType reports whether t is a known trigger type.
func ValidTriggerType(t string) bool {
	switch TriggerType(t) {
	case TriggerExactMatch, TriggerContains, TriggerStartsWith, TriggerEndsWith,
		TriggerRegex, TriggerNumberRange, TriggerButtonClick, TriggerUserJoin,
		TriggerTimeBased, TriggerUserState:
		return true
	}
	return false
}

// User is a chatbot user with persisted conversational state.
type User struct {
	ID              string    `gorm:"type:uuid;primaryKey" json:"id"`
	InstagramUserID int64     `gorm:"uniqueIndex;not null" json:"instagram_user_id"`
	Username        string    `gorm:"type:varchar(100);index;not null" json:"username"`
	CurrentState    UserState `gorm:"type:varchar(20);index;default:'new'" json:"current_state"`
	PreviousState   UserState `gorm:"type:varchar(20)" json:"previous_state"`
	StateData       string    `gorm:"type:text" json:"state_data"` // JSON object

	// Scenario pointer. CurrentStep is meaningful only while
	// CurrentScenarioID is set; both are cleared together.
	CurrentScenarioID *string    `gorm:"type:uuid;index" json:"current_scenario_id"`
	CurrentStep       int        `gorm:"default:0" json:"current_step"`
	ScenarioStartedAt *time.Time `json:"scenario_started_at"`

	CollectedData   string `gorm:"type:text" json:"collected_data"`   // JSON object
	UserPreferences string `gorm:"type:text" json:"user_preferences"` // JSON object
	Tags            string `gorm:"type:text" json:"tags"`             // JSON array
	Segment         string `gorm:"type:varchar(50)" json:"segment"`

	TotalMessages           int `gorm:"default:0" json:"total_messages"`
	TotalScenariosStarted   int `gorm:"default:0" json:"total_scenarios_started"`
	TotalScenariosCompleted int `gorm:"default:0" json:"total_scenarios_completed"`

	FirstSeenAt    time.Time  `gorm:"autoCreateTime" json:"first_seen_at"`
	LastActivityAt time.Time  `gorm:"index" json:"last_activity_at"`
	LastMessageAt  *time.Time `json:"last_message_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "chatbot_users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.LastActivityAt.IsZero() {
		u.LastActivityAt = time.Now()
	}
	return nil
}

// Trigger is a global rule mapping a match condition to a list of actions.
type Trigger struct {
	ID          string `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string `gorm:"type:varchar(200);not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`

	TriggerType  TriggerType `gorm:"type:varchar(30);index;not null" json:"trigger_type"`
	TriggerValue string      `gorm:"type:text;not null" json:"trigger_value"`

	IsActive bool `gorm:"index;default:true" json:"is_active"`
	Priority int  `gorm:"default:100" json:"priority"` // lower = evaluated first
	IsGlobal bool `gorm:"default:false" json:"is_global"`

	MaxTriggersPerUser *int   `json:"max_triggers_per_user"`
	CooldownSeconds    int    `gorm:"default:0" json:"cooldown_seconds"`
	ActiveHours        string `gorm:"type:text" json:"active_hours"` // JSON {"start","end"}

	Actions string `gorm:"type:text;not null" json:"actions"` // JSON array of action descriptors

	TotalTriggers   int        `gorm:"default:0" json:"total_triggers"`
	SuccessRate     float64    `gorm:"default:0" json:"success_rate"`
	LastTriggeredAt *time.Time `json:"last_triggered_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Trigger) TableName() string {
	return "chatbot_triggers"
}

func (t *Trigger) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Scenario is a named ordered sequence of steps.
type Scenario struct {
	ID          string `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string `gorm:"type:varchar(200);not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`

	IsActive bool `gorm:"index;default:true" json:"is_active"`
	Priority int  `gorm:"default:100" json:"priority"`

	StartTriggers   string `gorm:"type:text" json:"start_triggers"` // JSON array of inline triggers
	StartConditions string `gorm:"type:text" json:"start_conditions"`

	TotalSteps        int     `gorm:"default:0" json:"total_steps"`
	SuccessRate       float64 `gorm:"default:0" json:"success_rate"`
	AvgCompletionTime int     `gorm:"default:0" json:"avg_completion_time"`
	TotalStarts       int     `gorm:"default:0" json:"total_starts"`
	TotalCompletions  int     `gorm:"default:0" json:"total_completions"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Steps []Step `gorm:"foreignKey:ScenarioID;constraint:OnDelete:CASCADE" json:"steps,omitempty"`
}

func (Scenario) TableName() string {
	return "chatbot_scenarios"
}

func (s *Scenario) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Step is one node of a scenario with its own triggers, actions and
// success/failure transitions.
type Step struct {
	ID         string `gorm:"type:uuid;primaryKey" json:"id"`
	ScenarioID string `gorm:"type:uuid;index;not null" json:"scenario_id"`

	Name        string `gorm:"type:varchar(200);not null" json:"name"`
	StepOrder   int    `gorm:"index;not null" json:"step_order"` // 1-based
	Description string `gorm:"type:text" json:"description"`

	IsActive       bool `gorm:"default:true" json:"is_active"`
	IsRequired     bool `gorm:"default:false" json:"is_required"`
	TimeoutSeconds int  `gorm:"default:300" json:"timeout_seconds"`

	Triggers   string `gorm:"type:text" json:"triggers"` // JSON array of inline {type,value}
	Conditions string `gorm:"type:text" json:"conditions"`
	Actions    string `gorm:"type:text" json:"actions"` // JSON array of action descriptors

	CollectData     string `gorm:"type:text" json:"collect_data"`
	ValidationRules string `gorm:"type:text" json:"validation_rules"`

	// A nil SuccessNextStep marks the terminal step of the scenario.
	SuccessNextStep *int   `json:"success_next_step"`
	FailureNextStep *int   `json:"failure_next_step"`
	FallbackActions string `gorm:"type:text" json:"fallback_actions"`

	TotalVisits  int `gorm:"default:0" json:"total_visits"`
	SuccessCount int `gorm:"default:0" json:"success_count"`
	AvgTimeSpent int `gorm:"default:0" json:"avg_time_spent"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Step) TableName() string {
	return "chatbot_steps"
}

func (s *Step) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// ScenarioSession records one user's traversal of one scenario instance.
type ScenarioSession struct {
	ID         string `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     string `gorm:"type:uuid;index;not null" json:"user_id"`
	ScenarioID string `gorm:"type:uuid;index;not null" json:"scenario_id"`

	Status      string `gorm:"type:varchar(20);index;default:'active'" json:"status"` // active, completed, abandoned, failed
	CurrentStep int    `gorm:"default:1" json:"current_step"`

	SessionData string `gorm:"type:text" json:"session_data"` // JSON object
	StepHistory string `gorm:"type:text" json:"step_history"` // JSON array

	StartedAt      time.Time  `gorm:"autoCreateTime" json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`

	CompletionRate      float64 `gorm:"default:0" json:"completion_rate"`
	TotalStepsCompleted int     `gorm:"default:0" json:"total_steps_completed"`
	ErrorsCount         int     `gorm:"default:0" json:"errors_count"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ScenarioSession) TableName() string {
	return "user_scenario_sessions"
}

func (s *ScenarioSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.LastActivityAt.IsZero() {
		s.LastActivityAt = time.Now()
	}
	return nil
}

// Message is an immutable record of one exchanged turn.
type Message struct {
	ID     string `gorm:"type:uuid;primaryKey" json:"id"`
	UserID string `gorm:"type:uuid;index;not null" json:"user_id"`

	Content     string `gorm:"type:text;not null" json:"content"`
	MessageType string `gorm:"type:varchar(20);default:'text'" json:"message_type"` // text, image, button, template
	SenderType  string `gorm:"type:varchar(10);index;not null" json:"sender_type"`  // user or bot

	ScenarioID *string `gorm:"type:uuid" json:"scenario_id"`
	StepID     *string `gorm:"type:uuid" json:"step_id"`
	TriggerID  *string `gorm:"type:uuid" json:"trigger_id"`

	InstagramMessageID *string `gorm:"type:varchar(100);uniqueIndex" json:"instagram_message_id"`
	InstagramThreadID  *string `gorm:"type:varchar(100)" json:"instagram_thread_id"`

	Processed        bool   `gorm:"index;default:false" json:"processed"`
	TriggeredActions string `gorm:"type:text" json:"triggered_actions"` // JSON audit copy
	ProcessingTimeMs *int   `json:"processing_time_ms"`

	AIProcessed     bool   `gorm:"default:false" json:"ai_processed"`
	AIAgentResponse string `gorm:"type:text" json:"ai_agent_response"` // JSON payload

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Message) TableName() string {
	return "chatbot_messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Template is a reusable response text with {variable} placeholders.
type Template struct {
	ID       string `gorm:"type:uuid;primaryKey" json:"id"`
	Name     string `gorm:"type:varchar(200);not null" json:"name"`
	Category string `gorm:"type:varchar(50);index;default:'general'" json:"category"`

	TemplateText      string `gorm:"type:text;not null" json:"template_text"`
	TemplateVariables string `gorm:"type:text" json:"template_variables"` // JSON array
	TemplateType      string `gorm:"type:varchar(20);default:'text'" json:"template_type"`

	IsActive bool   `gorm:"index;default:true" json:"is_active"`
	Language string `gorm:"type:varchar(10);default:'ru'" json:"language"`

	Buttons      string `gorm:"type:text" json:"buttons"`       // JSON array
	QuickReplies string `gorm:"type:text" json:"quick_replies"` // JSON array

	UsageCount  int     `gorm:"default:0" json:"usage_count"`
	SuccessRate float64 `gorm:"default:0" json:"success_rate"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Template) TableName() string {
	return "chatbot_templates"
}

func (t *Template) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Event is an append-only audit row. Never updated after creation.
type Event struct {
	ID string `gorm:"type:uuid;primaryKey" json:"id"`

	EventType string `gorm:"type:varchar(50);index;not null" json:"event_type"`
	EventName string `gorm:"type:varchar(200);not null" json:"event_name"`

	UserID     *string `gorm:"type:uuid;index" json:"user_id"`
	ScenarioID *string `gorm:"type:uuid" json:"scenario_id"`
	TriggerID  *string `gorm:"type:uuid;index" json:"trigger_id"`

	EventData string `gorm:"type:text" json:"event_data"` // JSON object
	Context   string `gorm:"type:text" json:"context"`

	Success          bool   `gorm:"index;default:true" json:"success"`
	ErrorMessage     string `gorm:"type:text" json:"error_message"`
	ProcessingTimeMs *int   `json:"processing_time_ms"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Event) TableName() string {
	return "chatbot_events"
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
