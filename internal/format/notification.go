package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/hray3182/MindIt/internal/models"
)

// Notification renders the message delivered for a due reminder. The
// heading escalates with the reminder's position in its group.
func Notification(r *models.Reminder, loc *time.Location) string {
	var heading, urgency string
	switch {
	case r.RecurrenceCount <= 0:
		heading = "🔔 *LEMBRETE:*"
	case r.RecurrenceCount == 1:
		heading = "🔔 *LEMBRETE (repetição):*"
		urgency = "\n⚠️ *Esta é a segunda notificação*"
	default:
		heading = "🔔 *LEMBRETE URGENTE:*"
		urgency = "\n🚨 *Esta é a última notificação!*"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n📝 %s%s\n\n", heading, r.Task, urgency)
	fmt.Fprintf(&b, "⏰ Horário: %sh\n\n", Clock(r.ScheduledTime.In(loc)))
	b.WriteString("✅ *Comandos:*\n")
	b.WriteString("• \"feito\" - Marcar como concluído\n")
	fmt.Fprintf(&b, "• \"feito %d\" - Confirmar este específico\n", r.ReminderID)
	fmt.Fprintf(&b, "• \"cancelar %d\" - Parar todos lembretes", r.GroupRootID())
	return b.String()
}
