package delivery

import (
	"context"
	"strings"
)

// TelegramPrefix marks recipient ids that belong to Telegram chats.
const TelegramPrefix = "tg:"

// Router sends to Telegram for "tg:" recipients and to the default
// channel for everything else.
type Router struct {
	fallback Sender
	telegram Sender
}

func NewRouter(fallback, telegram Sender) *Router {
	return &Router{fallback: fallback, telegram: telegram}
}

func (r *Router) Send(ctx context.Context, to, text string) error {
	if strings.HasPrefix(to, TelegramPrefix) {
		if r.telegram == nil {
			return &Error{Channel: "telegram", Message: "telegram channel not configured"}
		}
		return r.telegram.Send(ctx, to, text)
	}
	if r.fallback == nil {
		return &Error{Channel: "whatsapp", Message: "whatsapp channel not configured"}
	}
	return r.fallback.Send(ctx, to, text)
}
