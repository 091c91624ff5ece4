package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hray3182/MindIt/internal/delivery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingHandler struct {
	mu    sync.Mutex
	calls []string
	at    []time.Time
}

func (h *recordingHandler) HandleIncomingMessage(ctx context.Context, sender, text string, receivedAt time.Time) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, sender+"|"+text)
	h.at = append(h.at, receivedAt)
	return "resposta: " + text
}

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *recordingSender) Send(ctx context.Context, to, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, to+"|"+text)
	return nil
}

var _ delivery.Sender = (*recordingSender)(nil)

const textEvent = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "1",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "messages": [{
          "id": "wamid.A",
          "from": "5511999990000",
          "timestamp": "1741784400",
          "type": "text",
          "text": {"body": " tomar remédio as 9 "}
        }]
      }
    }]
  }]
}`

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWebhook_Verify(t *testing.T) {
	wh := NewWebhook(WebhookConfig{VerifyToken: "mindit"}, &recordingHandler{}, &recordingSender{}, zap.NewNop())

	rec := httptest.NewRecorder()
	wh.Verify(rec, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=mindit&hub.challenge=42", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", rec.Body.String())

	rec = httptest.NewRecorder()
	wh.Verify(rec, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhook_ReceiveRoutesAndReplies(t *testing.T) {
	handler := &recordingHandler{}
	sender := &recordingSender{}
	wh := NewWebhook(WebhookConfig{AppSecret: "s3cret"}, handler, sender, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textEvent))
	req.Header.Set("X-Hub-Signature-256", sign("s3cret", textEvent))
	rec := httptest.NewRecorder()
	wh.Receive(rec, req)
	wh.Wait()

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, handler.calls, 1)
	assert.Equal(t, "5511999990000|tomar remédio as 9", handler.calls[0])
	assert.Equal(t, time.Unix(1741784400, 0), handler.at[0])
	assert.Equal(t, []string{"5511999990000|resposta: tomar remédio as 9"}, sender.sent)
}

func TestWebhook_DeduplicatesRedeliveries(t *testing.T) {
	handler := &recordingHandler{}
	wh := NewWebhook(WebhookConfig{}, handler, &recordingSender{}, zap.NewNop())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		wh.Receive(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textEvent)))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	wh.Wait()

	assert.Len(t, handler.calls, 1)
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	handler := &recordingHandler{}
	wh := NewWebhook(WebhookConfig{AppSecret: "s3cret"}, handler, &recordingSender{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textEvent))
	req.Header.Set("X-Hub-Signature-256", sign("other", textEvent))
	rec := httptest.NewRecorder()
	wh.Receive(rec, req)
	wh.Wait()

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, handler.calls)
}

func TestWebhook_RejectsUnknownObject(t *testing.T) {
	wh := NewWebhook(WebhookConfig{}, &recordingHandler{}, &recordingSender{}, zap.NewNop())

	rec := httptest.NewRecorder()
	wh.Receive(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"object":"page"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifySignature(t *testing.T) {
	assert.True(t, VerifySignature("k", []byte("body"), sign("k", "body")))
	assert.False(t, VerifySignature("k", []byte("body"), "sha1=abc"))
	assert.False(t, VerifySignature("k", []byte("body"), "sha256=zz"))
}
