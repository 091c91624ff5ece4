package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hray3182/MindIt/internal/delivery"
	"github.com/hray3182/MindIt/internal/format"
	"go.uber.org/zap"
)

// MessageHandler turns an inbound message into the reply text.
type MessageHandler interface {
	HandleIncomingMessage(ctx context.Context, sender, text string, receivedAt time.Time) string
}

// telegramAPI is the subset of *tgbotapi.BotAPI the bot uses.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot is the Telegram channel. Chats are identified to the rest of the
// service as "tg:<chat id>".
type Bot struct {
	api    telegramAPI
	logger *zap.Logger
}

// httpTimeout bounds every Bot API call. It must exceed the 60s long-poll.
const httpTimeout = 90 * time.Second

func New(token string, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: httpTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	logger.Info("telegram bot authorized", zap.String("account", api.Self.UserName))
	return &Bot{api: api, logger: logger}, nil
}

// Start long-polls for updates and hands each text message to handler
// until ctx is cancelled.
func (b *Bot) Start(ctx context.Context, handler MessageHandler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, handler, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, handler MessageHandler, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Text == "" {
		return
	}

	sender := ChatRecipient(msg.Chat.ID)
	reply := handler.HandleIncomingMessage(ctx, sender, msg.Text, msg.Time())
	if reply == "" {
		return
	}
	if err := b.Send(ctx, sender, reply); err != nil {
		b.logger.Error("failed to send telegram reply",
			zap.String("sender", sender),
			zap.Error(err))
	}
}

// Send delivers text to a "tg:<chat id>" recipient, converting *bold*
// markup into message entities.
func (b *Bot) Send(ctx context.Context, to, text string) error {
	chatID, err := ParseChatID(to)
	if err != nil {
		return &delivery.Error{Channel: "telegram", Message: "invalid recipient", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return delivery.FromContext("telegram", ctx, err)
	}

	parsed := format.ParseWhatsApp(text)
	msg := tgbotapi.NewMessage(chatID, parsed.Text)
	msg.Entities = parsed.Entities

	// The Bot API client takes no context, so the call is raced against ctx.
	done := make(chan error, 1)
	go func() {
		_, err := b.api.Send(msg)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return classify(err)
		}
		return nil
	case <-ctx.Done():
		return delivery.FromContext("telegram", ctx, ctx.Err())
	}
}

func classify(err error) error {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return &delivery.Error{
			Channel:   "telegram",
			Code:      tgErr.Code,
			Message:   tgErr.Message,
			Retryable: tgErr.Code == 429 || tgErr.Code >= 500,
			Err:       err,
		}
	}
	return &delivery.Error{Channel: "telegram", Message: "request failed", Retryable: true, Err: err}
}

// ChatRecipient returns the recipient id of a Telegram chat.
func ChatRecipient(chatID int64) string {
	return delivery.TelegramPrefix + strconv.FormatInt(chatID, 10)
}

// ParseChatID extracts the chat id from a "tg:<chat id>" recipient.
func ParseChatID(recipient string) (int64, error) {
	raw, ok := strings.CutPrefix(recipient, delivery.TelegramPrefix)
	if !ok {
		return 0, fmt.Errorf("not a telegram recipient: %q", recipient)
	}
	return strconv.ParseInt(raw, 10, 64)
}
