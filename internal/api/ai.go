package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Asyl777/neuroflow-instagramapi/internal/chatbot"
	"github.com/Asyl777/neuroflow-instagramapi/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AIHandler serves the endpoints the external reasoning agent talks to:
// direct message processing, agent response delivery and user context.
type AIHandler struct {
	DB     *gorm.DB
	Engine *chatbot.Service
}

func NewAIHandler(db *gorm.DB, engine *chatbot.Service) *AIHandler {
	return &AIHandler{DB: db, Engine: engine}
}

// ProcessMessage runs one message through the chatbot engine synchronously
func (h *AIHandler) ProcessMessage(c *gin.Context) {
	var req chatbot.ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := h.Engine.ProcessMessage(c.Request.Context(), req)
	if !result.Success {
		c.JSON(http.StatusInternalServerError, result)
		return
	}

	c.JSON(http.StatusOK, result)
}

// AgentResponse delivers the reasoning agent's reply for a user
func (h *AIHandler) AgentResponse(c *gin.Context) {
	userID := c.Param("id")

	var req chatbot.AgentResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.Engine.DeliverAgentResponse(c.Request.Context(), userID, req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetUserContext returns the agent-facing context snapshot for a user
func (h *AIHandler) GetUserContext(c *gin.Context) {
	userID := c.Param("id")
	includeMessages := c.DefaultQuery("include_messages", "true") == "true"
	limit, _ := strconv.Atoi(c.DefaultQuery("messages_limit", "20"))

	uc, err := h.Engine.GetUserContext(c.Request.Context(), userID, includeMessages, limit)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, uc)
}

// GetActiveUsers lists users with recent activity
func (h *AIHandler) GetActiveUsers(c *gin.Context) {
	hours, _ := strconv.Atoi(c.DefaultQuery("hours", "24"))
	if hours <= 0 {
		hours = 24
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 {
		limit = 100
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	var users []models.User
	if err := h.DB.Where("last_activity_at >= ?", since).
		Order("last_activity_at DESC").
		Limit(limit).
		Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": len(users), "users": users})
}
