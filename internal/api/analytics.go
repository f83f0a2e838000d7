package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Asyl777/neuroflow-instagramapi/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type AnalyticsHandler struct {
	DB *gorm.DB
}

func NewAnalyticsHandler(db *gorm.DB) *AnalyticsHandler {
	return &AnalyticsHandler{DB: db}
}

// GetOverview returns aggregate chatbot statistics over a trailing window
func (h *AnalyticsHandler) GetOverview(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	if days <= 0 {
		days = 7
	}
	since := time.Now().AddDate(0, 0, -days)

	var stats struct {
		TotalUsers         int64            `json:"total_users"`
		NewUsers           int64            `json:"new_users"`
		ActiveUsers        int64            `json:"active_users"`
		TotalMessages      int64            `json:"total_messages"`
		MessagesInPeriod   int64            `json:"messages_in_period"`
		TriggersActivated  int64            `json:"triggers_activated"`
		ScenariosCompleted int64            `json:"scenarios_completed"`
		EngagementRate     float64          `json:"engagement_rate"`
		StateDistribution  map[string]int64 `json:"state_distribution"`
	}

	h.DB.Model(&models.User{}).Count(&stats.TotalUsers)
	h.DB.Model(&models.User{}).Where("first_seen_at >= ?", since).Count(&stats.NewUsers)
	h.DB.Model(&models.User{}).Where("last_activity_at >= ?", since).Count(&stats.ActiveUsers)
	h.DB.Model(&models.Message{}).Count(&stats.TotalMessages)
	h.DB.Model(&models.Message{}).Where("created_at >= ?", since).Count(&stats.MessagesInPeriod)
	h.DB.Model(&models.Event{}).Where("event_type = ? AND created_at >= ?", "trigger_activated", since).Count(&stats.TriggersActivated)
	h.DB.Model(&models.Event{}).Where("event_type = ? AND created_at >= ?", "scenario_completed", since).Count(&stats.ScenariosCompleted)

	if stats.TotalUsers > 0 {
		stats.EngagementRate = float64(stats.ActiveUsers) / float64(stats.TotalUsers)
	}

	stats.StateDistribution = map[string]int64{}
	var rows []struct {
		CurrentState string
		Count        int64
	}
	h.DB.Model(&models.User{}).
		Select("current_state, count(*) as count").
		Group("current_state").
		Scan(&rows)
	for _, row := range rows {
		stats.StateDistribution[row.CurrentState] = row.Count
	}

	c.JSON(http.StatusOK, stats)
}

// GetEvents returns recent audit events, optionally filtered by type
func (h *AnalyticsHandler) GetEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := h.DB.Order("created_at DESC").Limit(limit)
	if eventType := c.Query("type"); eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}
	if userID := c.Query("user_id"); userID != "" {
		query = query.Where("user_id = ?", userID)
	}

	var events []models.Event
	if err := query.Find(&events).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, events)
}
