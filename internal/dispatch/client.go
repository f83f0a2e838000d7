package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/Asyl777/neuroflow-instagramapi/internal/chatbot"
)

// Client delivers engine output to external services: the reasoning agent
// behind ai_agent_call actions and the integration endpoints behind
// webhook_call actions.
type Client struct {
	httpClient *http.Client
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// SendAgentRequest posts the user context payload to the reasoning agent.
// The agent replies asynchronously through the agent-response endpoint, so
// only the delivery status matters here.
func (c *Client) SendAgentRequest(agentURL string, payload *chatbot.AgentPayload) error {
	return c.postJSON(agentURL, payload)
}

// SendWebhook posts an enriched payload to an integration endpoint.
func (c *Client) SendWebhook(url string, payload map[string]any) error {
	return c.postJSON(url, payload)
}

func (c *Client) postJSON(url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		log.Printf("Dispatch to %s returned %d: %s", url, resp.StatusCode, string(respBody))
		return fmt.Errorf("dispatch failed with status %d", resp.StatusCode)
	}

	return nil
}
