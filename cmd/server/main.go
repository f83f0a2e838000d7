package main

import (
	"log"

	"github.com/Asyl777/neuroflow-instagramapi/internal/api"
	"github.com/Asyl777/neuroflow-instagramapi/internal/chatbot"
	"github.com/Asyl777/neuroflow-instagramapi/internal/config"
	"github.com/Asyl777/neuroflow-instagramapi/internal/database"
	"github.com/Asyl777/neuroflow-instagramapi/internal/dispatch"
	"github.com/Asyl777/neuroflow-instagramapi/internal/webhook"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.LoadConfig()

	db, err := database.Init(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	r := gin.Default()

	// CORS Middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	engine := chatbot.NewService(db, cfg.DefaultAgentURL)
	dispatcher := dispatch.NewClient()
	webhookHandler := webhook.NewHandler(cfg, engine, dispatcher)
	chatbotHandler := api.NewChatbotHandler(db)
	aiHandler := api.NewAIHandler(db, engine)
	analyticsHandler := api.NewAnalyticsHandler(db)

	// Webhook Routes
	r.GET("/webhook", webhookHandler.VerifyWebhook)
	r.POST("/webhook", webhookHandler.HandleWebhook)

	apiGroup := r.Group("/api/v1")
	{
		// Trigger Routes
		apiGroup.GET("/triggers", chatbotHandler.GetTriggers)
		apiGroup.POST("/triggers", chatbotHandler.CreateTrigger)
		apiGroup.PUT("/triggers/:id", chatbotHandler.UpdateTrigger)
		apiGroup.DELETE("/triggers/:id", chatbotHandler.DeleteTrigger)
		apiGroup.POST("/triggers/:id/toggle", chatbotHandler.ToggleTrigger)

		// Scenario Routes
		apiGroup.GET("/scenarios", chatbotHandler.GetScenarios)
		apiGroup.POST("/scenarios", chatbotHandler.CreateScenario)
		apiGroup.DELETE("/scenarios/:id", chatbotHandler.DeleteScenario)
		apiGroup.POST("/scenarios/:id/toggle", chatbotHandler.ToggleScenario)

		// Template Routes
		apiGroup.GET("/templates", chatbotHandler.GetTemplates)
		apiGroup.POST("/templates", chatbotHandler.CreateTemplate)
		apiGroup.DELETE("/templates/:id", chatbotHandler.DeleteTemplate)

		// AI Agent Routes
		aiGroup := apiGroup.Group("/ai")
		{
			aiGroup.POST("/process-message", aiHandler.ProcessMessage)
			aiGroup.POST("/users/:id/agent-response", aiHandler.AgentResponse)
			aiGroup.GET("/users/:id/context", aiHandler.GetUserContext)
			aiGroup.GET("/users/active", aiHandler.GetActiveUsers)
		}

		// Analytics Routes
		apiGroup.GET("/analytics/overview", analyticsHandler.GetOverview)
		apiGroup.GET("/events", analyticsHandler.GetEvents)
	}

	log.Printf("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
