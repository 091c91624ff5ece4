package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hray3182/MindIt/internal/apperr"
	"github.com/hray3182/MindIt/internal/format"
	"github.com/hray3182/MindIt/internal/parser"
	"go.uber.org/zap"
)

const (
	invalidTimeText = "⚠️ Horário inválido. Use o formato 14:30 ou 8h."
	unavailableText = "⚠️ Não consegui acessar seus lembretes agora. Tente de novo em instantes."
	cancelUsageText = "Para cancelar, envie *cancelar <id>*.\nEnvie *lista* para ver os ids dos seus lembretes."
	legacyUsageText = "Formato incorreto! Use: /novo [tarefa] # [hora]\nEx: /novo Comprar leite # 19:00"
	emptyListText   = "📭 Você não tem lembretes pendentes.\nEnvie algo como: comprar pão às 18h"
)

func (h *Handlers) handleParse(ctx context.Context, sender, text string, ref time.Time) string {
	intent, err := parser.Parse(text, ref)
	if apperr.IsInvalidTime(err) {
		h.count("invalid_time")
		return invalidTimeText
	}
	if err != nil {
		h.logger.Error("parse failed", zap.String("sender", sender), zap.Error(err))
		h.count("parse_failure")
		return "Não entendi 🤔\n\n" + helpText
	}

	switch intent.Kind {
	case parser.Complete, parser.Escalating:
		h.count("create")
		return h.create(ctx, sender, intent, ref)
	case parser.Partial:
		h.count("partial")
		h.followUps.save(sender, intent, h.now())
		return fmt.Sprintf("⏰ Que horas devo te lembrar de *%s* %s?\nResponda só com o horário, ex: 14:30 ou 8h",
			intent.Task, dayLabel(intent.Day, ref))
	default:
		h.count("parse_failure")
		return "Não entendi 🤔\n\n" + helpText
	}
}

// handleFollowUp completes a pending partial intent. ok is false when the
// sender has nothing pending or the text is not a time, in which case the
// text is parsed as a new message.
func (h *Handlers) handleFollowUp(ctx context.Context, sender, text string, ref time.Time) (string, bool) {
	partial, found := h.followUps.get(sender, h.now())
	if !found {
		return "", false
	}

	intent, ok, err := parser.CompleteWithTime(partial, text, ref)
	if !ok {
		h.followUps.clear(sender)
		return "", false
	}
	if err != nil {
		h.count("invalid_time")
		return invalidTimeText, true
	}

	h.followUps.clear(sender)
	h.count("follow_up")
	return h.create(ctx, sender, intent, ref), true
}

func (h *Handlers) handleLegacyCreate(ctx context.Context, sender, args string, ref time.Time) string {
	m := legacyArgRe.FindStringSubmatch(args)
	if m == nil {
		return legacyUsageText
	}

	clock, err := parser.ParseClock(m[2])
	if err != nil {
		return "⚠️ Hora inválida! Use o formato HH:MM (ex: 19:00)"
	}
	target := clock.On(ref)
	if !target.After(ref) {
		target = target.AddDate(0, 0, 1)
	}

	return h.create(ctx, sender, parser.Intent{
		Kind:   parser.Complete,
		Task:   strings.TrimSpace(m[1]),
		Target: target,
		Rule:   "legacy",
	}, ref)
}

func (h *Handlers) create(ctx context.Context, sender string, intent parser.Intent, ref time.Time) string {
	label := format.RelativeLabel(intent.Target, ref)

	created, err := h.reminders.Create(ctx, sender, intent)
	if apperr.IsStoreFailure(err) {
		h.logger.Error("reminder not persisted, acknowledged anyway",
			zap.Bool("degraded", true),
			zap.String("sender", sender),
			zap.String("task", intent.Task),
			zap.Time("target", intent.Target),
			zap.Error(err))
		if h.metrics != nil {
			h.metrics.DegradedAcks.Inc()
		}
		return fmt.Sprintf("📝 Anotado: *%s*\n⏰ %s", intent.Task, label)
	}
	if err != nil {
		h.logger.Error("failed to create reminder", zap.String("sender", sender), zap.Error(err))
		return "Não entendi 🤔\n\n" + helpText
	}

	if h.metrics != nil {
		h.metrics.RemindersMade.Add(float64(len(created)))
	}
	root := created[0]
	if h.notifier != nil && root.ScheduledTime.Sub(h.now()) <= h.soon {
		h.notifier.Notify()
	}

	h.logger.Info("reminder created",
		zap.String("sender", sender),
		zap.Int64("reminder_id", root.ReminderID),
		zap.String("rule", intent.Rule),
		zap.Int("rows", len(created)))

	var sb strings.Builder
	sb.WriteString("✅ *Lembrete criado!*\n\n")
	sb.WriteString(fmt.Sprintf("📝 %s\n", root.Task))
	sb.WriteString(fmt.Sprintf("⏰ %s\n", label))
	sb.WriteString(fmt.Sprintf("🆔 %d\n", root.ReminderID))
	if len(created) > 1 {
		offsets := make([]string, 0, len(created)-1)
		for _, sibling := range created[1:] {
			offsets = append(offsets, format.Duration(sibling.ScheduledTime.Sub(root.ScheduledTime)))
		}
		sb.WriteString(fmt.Sprintf("\n🔁 Se você não confirmar, eu repito após %s.\n", strings.Join(offsets, " e ")))
	}
	sb.WriteString("\nResponda *feito* quando concluir.")
	return sb.String()
}

func (h *Handlers) handleList(ctx context.Context, sender string) string {
	entries, err := h.reminders.List(ctx, sender)
	if err != nil {
		h.logger.Error("failed to list reminders", zap.String("sender", sender), zap.Error(err))
		return unavailableText
	}
	if len(entries) == 0 {
		return emptyListText
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 *SEUS LEMBRETES* (%d)\n", len(entries)))
	for i, e := range entries {
		r := e.Reminder
		sb.WriteString(fmt.Sprintf("\n%d. %s", i+1, r.Task))
		if !r.IsRoot() {
			sb.WriteString(fmt.Sprintf(" 🔁 (repetição %d)", r.RecurrenceCount))
		}
		sb.WriteString(fmt.Sprintf("\n   ⏰ %s • id %d\n", e.Label, r.ReminderID))
	}
	sb.WriteString("\nPara cancelar: *cancelar <id>*")
	return sb.String()
}

func (h *Handlers) handleConfirm(ctx context.Context, sender, rawID string) string {
	id, ok := parseID(rawID)
	if !ok {
		return "⚠️ Id inválido. Envie *lista* para ver os ids dos seus lembretes."
	}

	out, err := h.reminders.Confirm(ctx, sender, id)
	if reply, failed := h.closeFailure(sender, id, err); failed {
		return reply
	}

	switch {
	case out.Affected == 0 && id == nil:
		return "🤷 Você não tem lembretes pendentes para confirmar."
	case out.Affected == 0:
		return fmt.Sprintf("O lembrete %d já estava encerrado.", *id)
	case out.Task == "":
		return fmt.Sprintf("✅ %d lembretes concluídos! Bem lembrado! 😊", out.Affected)
	default:
		return fmt.Sprintf("✅ Lembrete concluído! Bem lembrado! 😊\n\n📝 %s", out.Task)
	}
}

func (h *Handlers) handleCancel(ctx context.Context, sender, rawID string) string {
	id, ok := parseID(rawID)
	if !ok || id == nil {
		return cancelUsageText
	}

	out, err := h.reminders.Cancel(ctx, sender, *id)
	if reply, failed := h.closeFailure(sender, id, err); failed {
		return reply
	}
	if out.Affected == 0 {
		return fmt.Sprintf("O lembrete %d já estava encerrado.", *id)
	}
	return fmt.Sprintf("🗑️ Lembrete cancelado.\n\n📝 %s", out.Task)
}

func (h *Handlers) closeFailure(sender string, id *int64, err error) (string, bool) {
	switch {
	case err == nil:
		return "", false
	case apperr.IsNotFound(err) && id != nil:
		return fmt.Sprintf("❌ Lembrete %d não encontrado.", *id), true
	default:
		h.logger.Error("failed to close reminder group", zap.String("sender", sender), zap.Error(err))
		return unavailableText, true
	}
}

func dayLabel(day parser.Day, ref time.Time) string {
	if day.IsToday() {
		return "hoje"
	}
	tomorrow := time.Date(ref.Year(), ref.Month(), ref.Day()+1, 0, 0, 0, 0, ref.Location())
	if day.Date.Equal(tomorrow) {
		return "amanhã"
	}
	return fmt.Sprintf("%s (%s)", format.WeekdayName(day.Date.Weekday()), day.Date.Format("02/01"))
}
