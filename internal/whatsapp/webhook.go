package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hray3182/MindIt/internal/delivery"
	"go.uber.org/zap"
)

// MessageHandler turns an inbound message into the reply text.
type MessageHandler interface {
	HandleIncomingMessage(ctx context.Context, sender, text string, receivedAt time.Time) string
}

type WebhookConfig struct {
	VerifyToken string
	AppSecret   string
}

type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				MessagingProduct string `json:"messaging_product"`
				Messages         []struct {
					ID        string `json:"id"`
					From      string `json:"from"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      *struct {
						Body string `json:"body"`
					} `json:"text,omitempty"`
					Button *struct {
						Text string `json:"text"`
					} `json:"button,omitempty"`
				} `json:"messages,omitempty"`
				Statuses []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
				} `json:"statuses,omitempty"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inbound struct {
	id         string
	from       string
	text       string
	receivedAt time.Time
}

// Webhook receives WhatsApp Cloud API events. Messages are acknowledged
// before they are processed; replies go out through the replier.
type Webhook struct {
	cfg     WebhookConfig
	handler MessageHandler
	replier delivery.Sender
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	processed map[string]time.Time
	wg        sync.WaitGroup
}

func NewWebhook(cfg WebhookConfig, handler MessageHandler, replier delivery.Sender, logger *zap.Logger) *Webhook {
	return &Webhook{
		cfg:       cfg,
		handler:   handler,
		replier:   replier,
		logger:    logger,
		now:       time.Now,
		processed: make(map[string]time.Time),
	}
}

// Verify answers the subscription handshake:
// GET /webhook?hub.mode=subscribe&hub.verify_token=xxx&hub.challenge=yyy
func (wh *Webhook) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && wh.cfg.VerifyToken != "" && token == wh.cfg.VerifyToken {
		wh.logger.Info("whatsapp webhook verified")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
		return
	}

	wh.logger.Warn("whatsapp webhook verification failed", zap.String("mode", mode))
	http.Error(w, "forbidden", http.StatusForbidden)
}

func (wh *Webhook) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		wh.logger.Error("whatsapp read body failed", zap.Error(err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if wh.cfg.AppSecret != "" && !VerifySignature(wh.cfg.AppSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		wh.logger.Warn("whatsapp signature verification failed")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		wh.logger.Error("whatsapp parse webhook failed", zap.Error(err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if payload.Object != "whatsapp_business_account" {
		http.Error(w, "unsupported object", http.StatusBadRequest)
		return
	}

	messages := wh.collect(&payload)

	// Meta retries anything not acknowledged quickly, so answer first.
	w.WriteHeader(http.StatusOK)

	ctx := context.WithoutCancel(r.Context())
	for _, msg := range messages {
		wh.wg.Add(1)
		go func(msg inbound) {
			defer wh.wg.Done()
			wh.process(ctx, msg)
		}(msg)
	}
}

// Wait blocks until every message accepted so far has been processed.
func (wh *Webhook) Wait() {
	wh.wg.Wait()
}

func (wh *Webhook) collect(payload *webhookPayload) []inbound {
	var out []inbound
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				var text string
				switch {
				case m.Type == "text" && m.Text != nil:
					text = m.Text.Body
				case m.Type == "button" && m.Button != nil:
					text = m.Button.Text
				default:
					wh.logger.Debug("whatsapp non-text message ignored", zap.String("type", m.Type))
					continue
				}
				text = strings.TrimSpace(text)
				if text == "" || wh.seen(m.ID) {
					continue
				}
				out = append(out, inbound{id: m.ID, from: m.From, text: text, receivedAt: wh.timestamp(m.Timestamp)})
			}
			if n := len(change.Value.Statuses); n > 0 {
				wh.logger.Debug("whatsapp status updates ignored", zap.Int("count", n))
			}
		}
	}
	return out
}

func (wh *Webhook) process(ctx context.Context, msg inbound) {
	wh.logger.Info("whatsapp message received", zap.String("from", msg.from), zap.String("message_id", msg.id))

	reply := wh.handler.HandleIncomingMessage(ctx, msg.from, msg.text, msg.receivedAt)
	if reply == "" {
		return
	}
	if err := wh.replier.Send(ctx, msg.from, reply); err != nil {
		wh.logger.Error("whatsapp reply failed", zap.String("to", msg.from), zap.Error(err))
	}
}

// seen records id and reports whether it was already processed within the
// last hour. Meta redelivers webhooks it considers unacknowledged.
func (wh *Webhook) seen(id string) bool {
	if id == "" {
		return false
	}
	wh.mu.Lock()
	defer wh.mu.Unlock()

	now := wh.now()
	if _, ok := wh.processed[id]; ok {
		return true
	}
	wh.processed[id] = now

	if len(wh.processed) > 1000 {
		cutoff := now.Add(-time.Hour)
		for k, t := range wh.processed {
			if t.Before(cutoff) {
				delete(wh.processed, k)
			}
		}
	}
	return false
}

func (wh *Webhook) timestamp(raw string) time.Time {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs <= 0 {
		return wh.now()
	}
	return time.Unix(secs, 0)
}

// VerifySignature checks the X-Hub-Signature-256 header against body.
func VerifySignature(appSecret string, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	expected, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}
