package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hray3182/MindIt/internal/delivery"
)

const (
	defaultBaseURL    = "https://graph.facebook.com"
	defaultAPIVersion = "v21.0"
	maxBodyLength     = 4096
	channel           = "whatsapp"
)

// Provider error codes that clear up on their own.
var retryableCodes = map[int]bool{
	4:      true, // application request limit
	10:     true, // permission denied, usually outside the messaging window
	80007:  true, // rate limit
	130429: true, // throughput limit
	131047: true, // re-engagement window expired
	131048: true, // spam rate limit
}

type Config struct {
	PhoneNumberID string
	AccessToken   string
	APIVersion    string
	BaseURL       string
}

func (c Config) Enabled() bool {
	return c.PhoneNumberID != "" && c.AccessToken != ""
}

// Client sends text messages through the WhatsApp Cloud API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

type textPayload struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		PreviewURL bool   `json:"preview_url"`
		Body       string `json:"body"`
	} `json:"text"`
}

type apiError struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		FBTraceID    string `json:"fbtrace_id"`
	} `json:"error"`
}

func (c *Client) Send(ctx context.Context, to, text string) error {
	if !c.cfg.Enabled() {
		return &delivery.Error{Channel: channel, Message: "whatsapp channel not configured"}
	}
	if text == "" {
		return nil
	}
	text = truncate(text, maxBodyLength)

	payload := textPayload{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
	}
	payload.Text.Body = text

	body, err := json.Marshal(payload)
	if err != nil {
		return &delivery.Error{Channel: channel, Message: "encode payload", Err: err}
	}

	url := fmt.Sprintf("%s/%s/%s/messages", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.APIVersion, c.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &delivery.Error{Channel: channel, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return delivery.FromContext(channel, ctx, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}
	return classify(resp.StatusCode, respBody)
}

func classify(status int, body []byte) *delivery.Error {
	de := &delivery.Error{Channel: channel, Status: status}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		de.Code = apiErr.Error.Code
		de.Message = apiErr.Error.Message
	} else {
		de.Message = strings.TrimSpace(string(body))
	}

	switch {
	case retryableCodes[de.Code]:
		de.Retryable = true
	case strings.Contains(strings.ToLower(de.Message), "permission"):
		de.Retryable = true
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		de.Retryable = true
	}
	return de
}

// truncate caps text at limit characters, counted in runes as the API does.
func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit-3]) + "..."
}
