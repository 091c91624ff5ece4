package handlers

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hray3182/MindIt/internal/metrics"
	"github.com/hray3182/MindIt/internal/models"
	"github.com/hray3182/MindIt/internal/parser"
	"github.com/hray3182/MindIt/internal/reminder"
	"go.uber.org/zap"
)

// Lifecycle is the part of the reminder manager the router drives.
type Lifecycle interface {
	Create(ctx context.Context, phone string, intent parser.Intent) ([]*models.Reminder, error)
	Confirm(ctx context.Context, phone string, reminderID *int64) (reminder.Outcome, error)
	Cancel(ctx context.Context, phone string, reminderID int64) (reminder.Outcome, error)
	List(ctx context.Context, phone string) ([]reminder.Entry, error)
}

// Notifier is woken when a new reminder falls due before the next tick.
type Notifier interface {
	Notify()
}

type Options struct {
	Location    *time.Location
	FollowUpTTL time.Duration
	// SoonWindow is how close to now a new reminder must be for the
	// notifier to be woken.
	SoonWindow time.Duration
	Notifier   Notifier
	Metrics    *metrics.Collector
	Now        func() time.Time
}

type Handlers struct {
	reminders Lifecycle
	logger    *zap.Logger
	metrics   *metrics.Collector
	notifier  Notifier
	loc       *time.Location
	soon      time.Duration
	now       func() time.Time
	followUps *followUps
}

func New(reminders Lifecycle, logger *zap.Logger, opts Options) *Handlers {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.FollowUpTTL <= 0 {
		opts.FollowUpTTL = 10 * time.Minute
	}
	if opts.SoonWindow <= 0 {
		opts.SoonWindow = 2 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handlers{
		reminders: reminders,
		logger:    logger,
		metrics:   opts.Metrics,
		notifier:  opts.Notifier,
		loc:       opts.Location,
		soon:      opts.SoonWindow,
		now:       opts.Now,
		followUps: newFollowUps(opts.FollowUpTTL),
	}
}

var (
	botSuffixRe = regexp.MustCompile(`^(/\S+?)@\S+`)
	confirmRe   = regexp.MustCompile(`^(?:feito|feita|fez|pronto|pronta|conclu[íi]do|ok|certo|j[áa] fiz|sim|✅|confirmar)(?:\s+#?(\d+))?[.!]*$`)
	cancelRe    = regexp.MustCompile(`^(?:cancelar|cancela|❌)(?:\s+#?(\S+))?$`)
	legacyRe    = regexp.MustCompile(`(?i)^/novo(?:\s+(.*))?$`)
	legacyArgRe = regexp.MustCompile(`^(.+?)\s*#\s*(\S+)$`)
)

// HandleIncomingMessage routes one inbound message and returns the reply
// text. It never returns an empty reply.
func (h *Handlers) HandleIncomingMessage(ctx context.Context, sender, text string, receivedAt time.Time) string {
	if receivedAt.IsZero() {
		receivedAt = h.now()
	}
	ref := receivedAt.In(h.loc)

	trimmed := botSuffixRe.ReplaceAllString(strings.TrimSpace(text), "$1")
	command := strings.ToLower(trimmed)

	h.logger.Debug("incoming message",
		zap.String("sender", sender),
		zap.String("text", trimmed))

	switch {
	case command == "":
		h.count("empty")
		return helpText
	case isGreeting(command):
		h.followUps.clear(sender)
		h.count("greeting")
		return welcomeText
	case isHelp(command):
		h.followUps.clear(sender)
		h.count("help")
		return helpText
	case isList(command):
		h.followUps.clear(sender)
		h.count("list")
		return h.handleList(ctx, sender)
	}

	if m := confirmRe.FindStringSubmatch(strings.TrimPrefix(command, "/")); m != nil {
		h.followUps.clear(sender)
		h.count("confirm")
		return h.handleConfirm(ctx, sender, m[1])
	}
	if m := cancelRe.FindStringSubmatch(strings.TrimPrefix(command, "/")); m != nil {
		h.followUps.clear(sender)
		h.count("cancel")
		return h.handleCancel(ctx, sender, m[1])
	}
	if m := legacyRe.FindStringSubmatch(trimmed); m != nil {
		h.followUps.clear(sender)
		h.count("legacy_create")
		return h.handleLegacyCreate(ctx, sender, strings.TrimSpace(m[1]), ref)
	}

	if reply, ok := h.handleFollowUp(ctx, sender, trimmed, ref); ok {
		return reply
	}
	return h.handleParse(ctx, sender, trimmed, ref)
}

func (h *Handlers) count(command string) {
	if h.metrics != nil {
		h.metrics.Commands.WithLabelValues(command).Inc()
	}
}

func isGreeting(command string) bool {
	switch command {
	case "oi", "olá", "ola", "hello", "hi", "start", "/start", "bom dia", "boa tarde", "boa noite":
		return true
	}
	return false
}

func isHelp(command string) bool {
	switch command {
	case "ajuda", "help", "/ajuda", "/help", "?":
		return true
	}
	return false
}

func isList(command string) bool {
	switch command {
	case "lista", "listar", "/lista", "/listar", "lembretes", "/lembretes":
		return true
	}
	return false
}

// parseID accepts an optional id argument. ok is false when an argument is
// present but not a positive number.
func parseID(raw string) (id *int64, ok bool) {
	if raw == "" {
		return nil, true
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(raw, "#"), 10, 64)
	if err != nil || n <= 0 {
		return nil, false
	}
	return &n, true
}

const welcomeText = `👋 Olá! Eu sou o *Mind It*, seu assistente de lembretes.

É só me dizer o que você precisa lembrar e quando:
• "comprar pão às 18h"
• "ligar pro médico amanhã 9:30"
• "reunião sexta 14h"
• "tomar remédio em 20 minutos" (eu insisto até você confirmar)

Quando eu te lembrar, responda *feito* para encerrar.
Envie *ajuda* para ver todos os comandos.`

const helpText = `📖 *COMO USAR*

*Criar lembrete*
• tarefa às 14:30
• tarefa amanhã 8h
• tarefa sexta às 10
• tarefa em 30 minutos

*Comandos*
• *lista* - ver lembretes pendentes
• *feito* - confirmar o último lembrete
• *feito <id>* - confirmar um lembrete específico
• *cancelar <id>* - cancelar um lembrete
• */novo tarefa # 19:00* - formato antigo

Horários aceitos: 14:30, 14h30, 14.30, 1430, 8h`
