package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/Asyl777/neuroflow-instagramapi/internal/chatbot"
	"github.com/Asyl777/neuroflow-instagramapi/internal/config"
	"github.com/Asyl777/neuroflow-instagramapi/internal/dispatch"
	"github.com/gin-gonic/gin"
)

// Payload is the Instagram messaging webhook envelope.
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID        string      `json:"id"`
	Time      int64       `json:"time"`
	Messaging []Messaging `json:"messaging"`
}

type Messaging struct {
	Sender    Participant `json:"sender"`
	Recipient Participant `json:"recipient"`
	Timestamp int64       `json:"timestamp"`
	Message   *Message    `json:"message"`
	Postback  *Postback   `json:"postback"`
}

type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Message struct {
	MID  string `json:"mid"`
	Text string `json:"text"`
}

type Postback struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

type Handler struct {
	Config     *config.Config
	Engine     *chatbot.Service
	Dispatcher *dispatch.Client
}

func NewHandler(cfg *config.Config, engine *chatbot.Service, dispatcher *dispatch.Client) *Handler {
	return &Handler{
		Config:     cfg,
		Engine:     engine,
		Dispatcher: dispatcher,
	}
}

func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "" && token != "" {
		if mode == "subscribe" && token == h.Config.VerifyToken {
			log.Println("Webhook verified successfully!")
			c.String(http.StatusOK, challenge)
		} else {
			c.Status(http.StatusForbidden)
		}
	} else {
		c.Status(http.StatusBadRequest)
	}
}

func (h *Handler) HandleWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	if !h.validSignature(c.GetHeader("X-Hub-Signature"), body) {
		log.Println("Webhook signature verification failed")
		c.Status(http.StatusForbidden)
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Printf("Error binding JSON: %v", err)
		c.Status(http.StatusBadRequest)
		return
	}

	if payload.Object != "instagram" {
		c.Status(http.StatusOK)
		return
	}

	for _, entry := range payload.Entry {
		for _, msg := range entry.Messaging {
			req, ok := h.toProcessRequest(msg)
			if !ok {
				continue
			}
			// Instagram requires a fast ack; processing happens off the
			// request path.
			go h.process(req)
		}
	}

	c.Status(http.StatusOK)
}

// validSignature checks the X-Hub-Signature HMAC-SHA1 header against the
// configured app secret. An empty secret disables verification.
func (h *Handler) validSignature(header string, body []byte) bool {
	if h.Config.AppSecret == "" {
		log.Println("Warning: INSTAGRAM_APP_SECRET not set, skipping signature check")
		return true
	}
	if len(header) < len("sha1=") || header[:5] != "sha1=" {
		return false
	}

	mac := hmac.New(sha1.New, []byte(h.Config.AppSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header[5:]))
}

func (h *Handler) toProcessRequest(msg Messaging) (chatbot.ProcessRequest, bool) {
	senderID, err := strconv.ParseInt(msg.Sender.ID, 10, 64)
	if err != nil {
		log.Printf("Unparsable sender id %q: %v", msg.Sender.ID, err)
		return chatbot.ProcessRequest{}, false
	}

	username := msg.Sender.Username
	if username == "" {
		username = msg.Sender.ID
	}

	req := chatbot.ProcessRequest{
		InstagramUserID: senderID,
		Username:        username,
	}

	switch {
	case msg.Postback != nil:
		req.Message = msg.Postback.Title
		req.ButtonPayload = msg.Postback.Payload
	case msg.Message != nil:
		req.Message = msg.Message.Text
		req.InstagramMessageID = msg.Message.MID
	default:
		return chatbot.ProcessRequest{}, false
	}

	return req, true
}

func (h *Handler) process(req chatbot.ProcessRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result := h.Engine.ProcessMessage(ctx, req)
	if !result.Success {
		log.Printf("Webhook processing failed for user %d: %s", req.InstagramUserID, result.Error)
		return
	}

	for _, resp := range result.Responses {
		if resp.Type == "ai_agent_call" && resp.Payload != nil && resp.AgentURL != "" {
			if err := h.Dispatcher.SendAgentRequest(resp.AgentURL, resp.Payload); err != nil {
				log.Printf("Agent dispatch failed for user %s: %v", result.UserID, err)
			}
		}
	}
}
