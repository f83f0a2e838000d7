package api

import (
	"encoding/json"
	"net/http"

	"github.com/Asyl777/neuroflow-instagramapi/internal/chatbot"
	"github.com/Asyl777/neuroflow-instagramapi/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ChatbotHandler serves the admin CRUD surface for triggers, scenarios and
// templates. Action and trigger payloads are validated here, at write time,
// so the engine can treat stored configuration as trusted.
type ChatbotHandler struct {
	DB *gorm.DB
}

func NewChatbotHandler(db *gorm.DB) *ChatbotHandler {
	return &ChatbotHandler{DB: db}
}

// GetTriggers returns all triggers in evaluation order
func (h *ChatbotHandler) GetTriggers(c *gin.Context) {
	var triggers []models.Trigger
	if err := h.DB.Order("priority ASC, created_at ASC").Find(&triggers).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, triggers)
}

// CreateTrigger creates a new trigger
func (h *ChatbotHandler) CreateTrigger(c *gin.Context) {
	var req struct {
		Name               string          `json:"name" binding:"required"`
		Description        string          `json:"description"`
		TriggerType        string          `json:"trigger_type" binding:"required"`
		TriggerValue       string          `json:"trigger_value"`
		Priority           int             `json:"priority"`
		Actions            json.RawMessage `json:"actions" binding:"required"`
		CooldownSeconds    int             `json:"cooldown_seconds"`
		MaxTriggersPerUser *int            `json:"max_triggers_per_user"`
		ActiveHours        json.RawMessage `json:"active_hours"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !models.ValidTriggerType(req.TriggerType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown trigger_type: " + req.TriggerType})
		return
	}
	if err := chatbot.ValidateTriggerValue(models.TriggerType(req.TriggerType), req.TriggerValue); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actions, err := chatbot.ParseActions(string(req.Actions))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := chatbot.ValidateActions(actions); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trigger := models.Trigger{
		Name:               req.Name,
		Description:        req.Description,
		TriggerType:        models.TriggerType(req.TriggerType),
		TriggerValue:       req.TriggerValue,
		Priority:           req.Priority,
		Actions:            string(req.Actions),
		CooldownSeconds:    req.CooldownSeconds,
		MaxTriggersPerUser: req.MaxTriggersPerUser,
		IsActive:           true,
	}
	if len(req.ActiveHours) > 0 {
		trigger.ActiveHours = string(req.ActiveHours)
	}

	if err := h.DB.Create(&trigger).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": trigger.ID, "message": "Trigger created successfully"})
}

// UpdateTrigger updates an existing trigger
func (h *ChatbotHandler) UpdateTrigger(c *gin.Context) {
	id := c.Param("id")

	var req struct {
		Name               string          `json:"name"`
		Description        string          `json:"description"`
		TriggerType        string          `json:"trigger_type"`
		TriggerValue       *string         `json:"trigger_value"`
		Priority           *int            `json:"priority"`
		Actions            json.RawMessage `json:"actions"`
		CooldownSeconds    *int            `json:"cooldown_seconds"`
		MaxTriggersPerUser *int            `json:"max_triggers_per_user"`
		ActiveHours        json.RawMessage `json:"active_hours"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updateData := map[string]interface{}{}
	if req.Name != "" {
		updateData["name"] = req.Name
	}
	if req.Description != "" {
		updateData["description"] = req.Description
	}
	if req.TriggerType != "" {
		if !models.ValidTriggerType(req.TriggerType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown trigger_type: " + req.TriggerType})
			return
		}
		updateData["trigger_type"] = req.TriggerType
	}
	if req.TriggerValue != nil {
		updateData["trigger_value"] = *req.TriggerValue
	}
	if req.Priority != nil {
		updateData["priority"] = *req.Priority
	}
	if len(req.Actions) > 0 {
		actions, err := chatbot.ParseActions(string(req.Actions))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := chatbot.ValidateActions(actions); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		updateData["actions"] = string(req.Actions)
	}
	if req.CooldownSeconds != nil {
		updateData["cooldown_seconds"] = *req.CooldownSeconds
	}
	if req.MaxTriggersPerUser != nil {
		updateData["max_triggers_per_user"] = *req.MaxTriggersPerUser
	}
	if len(req.ActiveHours) > 0 {
		updateData["active_hours"] = string(req.ActiveHours)
	}

	if err := h.DB.Model(&models.Trigger{}).Where("id = ?", id).Updates(updateData).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Trigger updated successfully"})
}

// DeleteTrigger deletes a trigger
func (h *ChatbotHandler) DeleteTrigger(c *gin.Context) {
	id := c.Param("id")

	if err := h.DB.Delete(&models.Trigger{}, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Trigger deleted successfully"})
}

// ToggleTrigger enables or disables a trigger
func (h *ChatbotHandler) ToggleTrigger(c *gin.Context) {
	id := c.Param("id")

	var req struct {
		IsActive bool `json:"is_active"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.DB.Model(&models.Trigger{}).Where("id = ?", id).Update("is_active", req.IsActive).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Trigger toggled successfully"})
}

// GetScenarios returns all scenarios with their steps
func (h *ChatbotHandler) GetScenarios(c *gin.Context) {
	var scenarios []models.Scenario
	if err := h.DB.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_order ASC")
	}).Order("created_at DESC").Find(&scenarios).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, scenarios)
}

type stepRequest struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Triggers        json.RawMessage `json:"triggers"`
	Actions         json.RawMessage `json:"actions" binding:"required"`
	SuccessNextStep *int            `json:"success_next_step"`
	FailureNextStep *int            `json:"failure_next_step"`
}

// CreateScenario creates a scenario together with its ordered steps. Steps
// without an explicit success_next_step are chained to the following step;
// the last step stays terminal.
func (h *ChatbotHandler) CreateScenario(c *gin.Context) {
	var req struct {
		Name        string        `json:"name" binding:"required"`
		Description string        `json:"description"`
		Steps       []stepRequest `json:"steps" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Steps) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scenario requires at least one step"})
		return
	}

	for _, s := range req.Steps {
		actions, err := chatbot.ParseActions(string(s.Actions))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := chatbot.ValidateActions(actions); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(s.Triggers) > 0 {
			if _, err := chatbot.ParseStepTriggers(string(s.Triggers)); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
	}

	scenario := models.Scenario{
		Name:        req.Name,
		Description: req.Description,
		TotalSteps:  len(req.Steps),
		IsActive:    true,
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&scenario).Error; err != nil {
			return err
		}
		for i, s := range req.Steps {
			step := models.Step{
				ScenarioID:      scenario.ID,
				StepOrder:       i + 1,
				Name:            s.Name,
				Description:     s.Description,
				IsActive:        true,
				Actions:         string(s.Actions),
				SuccessNextStep: s.SuccessNextStep,
				FailureNextStep: s.FailureNextStep,
			}
			if len(s.Triggers) > 0 {
				step.Triggers = string(s.Triggers)
			}
			if step.SuccessNextStep == nil && i+1 < len(req.Steps) {
				next := i + 2
				step.SuccessNextStep = &next
			}
			if err := tx.Create(&step).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": scenario.ID, "message": "Scenario created successfully"})
}

// DeleteScenario deletes a scenario and its steps
func (h *ChatbotHandler) DeleteScenario(c *gin.Context) {
	id := c.Param("id")

	if err := h.DB.Select("Steps").Delete(&models.Scenario{ID: id}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Scenario deleted successfully"})
}

// ToggleScenario enables or disables a scenario
func (h *ChatbotHandler) ToggleScenario(c *gin.Context) {
	id := c.Param("id")

	var req struct {
		IsActive bool `json:"is_active"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.DB.Model(&models.Scenario{}).Where("id = ?", id).Update("is_active", req.IsActive).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Scenario toggled successfully"})
}

// GetTemplates returns all message templates
func (h *ChatbotHandler) GetTemplates(c *gin.Context) {
	var templates []models.Template
	if err := h.DB.Order("created_at DESC").Find(&templates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, templates)
}

// CreateTemplate creates a new message template
func (h *ChatbotHandler) CreateTemplate(c *gin.Context) {
	var req struct {
		Name         string          `json:"name" binding:"required"`
		Category     string          `json:"category"`
		TemplateType string          `json:"template_type"`
		TemplateText string          `json:"template_text" binding:"required"`
		Language     string          `json:"language"`
		Buttons      json.RawMessage `json:"buttons"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	template := models.Template{
		Name:         req.Name,
		Category:     req.Category,
		TemplateType: req.TemplateType,
		TemplateText: req.TemplateText,
		Language:     req.Language,
		IsActive:     true,
	}
	if template.Category == "" {
		template.Category = "general"
	}
	if template.Language == "" {
		template.Language = "ru"
	}
	if template.TemplateType == "" {
		template.TemplateType = "text"
	}
	if len(req.Buttons) > 0 {
		template.Buttons = string(req.Buttons)
	}

	if err := h.DB.Create(&template).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": template.ID, "message": "Template created successfully"})
}

// DeleteTemplate deletes a message template
func (h *ChatbotHandler) DeleteTemplate(c *gin.Context) {
	id := c.Param("id")

	if err := h.DB.Delete(&models.Template{}, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Template deleted successfully"})
}
