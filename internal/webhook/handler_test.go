package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Asyl777/neuroflow-instagramapi/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newTestHandler(cfg *config.Config) (*Handler, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(cfg, nil, nil)

	r := gin.New()
	r.GET("/webhook", h.VerifyWebhook)
	return h, r
}

func TestVerifyWebhook(t *testing.T) {
	_, r := newTestHandler(&config.Config{VerifyToken: "secret-token"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=12345", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "12345", w.Body.String())
}

func TestVerifyWebhookWrongToken(t *testing.T) {
	_, r := newTestHandler(&config.Config{VerifyToken: "secret-token"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestVerifyWebhookMissingParams(t *testing.T) {
	_, r := newTestHandler(&config.Config{VerifyToken: "secret-token"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidSignature(t *testing.T) {
	h, _ := newTestHandler(&config.Config{AppSecret: "app-secret"})

	body := []byte(`{"object":"instagram"}`)
	mac := hmac.New(sha1.New, []byte("app-secret"))
	mac.Write(body)
	signature := "sha1=" + hex.EncodeToString(mac.Sum(nil))

	assert.True(t, h.validSignature(signature, body))
	assert.False(t, h.validSignature("sha1=deadbeef", body))
	assert.False(t, h.validSignature("", body))
	assert.False(t, h.validSignature("md5=abc", body))
}

func TestValidSignatureSkippedWithoutSecret(t *testing.T) {
	h, _ := newTestHandler(&config.Config{})
	assert.True(t, h.validSignature("", []byte("{}")))
}

func TestToProcessRequest(t *testing.T) {
	h, _ := newTestHandler(&config.Config{})

	req, ok := h.toProcessRequest(Messaging{
		Sender:  Participant{ID: "555", Username: "alice"},
		Message: &Message{MID: "mid.1", Text: "hello"},
	})
	assert.True(t, ok)
	assert.EqualValues(t, 555, req.InstagramUserID)
	assert.Equal(t, "alice", req.Username)
	assert.Equal(t, "hello", req.Message)
	assert.Equal(t, "mid.1", req.InstagramMessageID)

	// Postbacks carry the button payload.
	req, ok = h.toProcessRequest(Messaging{
		Sender:   Participant{ID: "555"},
		Postback: &Postback{Title: "Buy", Payload: "BUY_NOW"},
	})
	assert.True(t, ok)
	assert.Equal(t, "BUY_NOW", req.ButtonPayload)
	assert.Equal(t, "555", req.Username, "username falls back to the sender id")

	// Events without message or postback are ignored.
	_, ok = h.toProcessRequest(Messaging{Sender: Participant{ID: "555"}})
	assert.False(t, ok)

	// Non-numeric sender ids are dropped.
	_, ok = h.toProcessRequest(Messaging{
		Sender:  Participant{ID: "abc"},
		Message: &Message{Text: "hello"},
	})
	assert.False(t, ok)
}
