package format

import (
	"fmt"
	"math"
	"time"
)

var weekdayNames = [...]string{"domingo", "segunda", "terça", "quarta", "quinta", "sexta", "sábado"}

// WeekdayName returns the Portuguese short name of a weekday
func WeekdayName(d time.Weekday) string {
	return weekdayNames[d]
}

// Clock formats t as HH:MM
func Clock(t time.Time) string {
	return t.Format("15:04")
}

// RelativeLabel describes t relative to now, both read in now's location:
// minutes remaining within the hour, then today, tomorrow, weekday, date.
func RelativeLabel(t, now time.Time) string {
	t = t.In(now.Location())
	d := t.Sub(now)

	if d < 0 {
		return "atrasado (" + Clock(t) + ")"
	}
	if d < time.Hour {
		minutes := int(math.Ceil(d.Minutes()))
		if minutes <= 1 {
			return "em 1 minuto"
		}
		return fmt.Sprintf("em %d minutos", minutes)
	}

	days := daysBetween(now, t)
	switch {
	case days == 0:
		return "hoje às " + Clock(t)
	case days == 1:
		return "amanhã às " + Clock(t)
	case days < 7:
		return WeekdayName(t.Weekday()) + " às " + Clock(t)
	default:
		return t.Format("02/01") + " às " + Clock(t)
	}
}

// Duration formats a positive duration the way the reminder summaries do:
// "45 min", "2h", "2h 15min", "3 dias".
func Duration(d time.Duration) string {
	if d < time.Hour {
		return fmt.Sprintf("%d min", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		if minutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh %dmin", hours, minutes)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 dia"
	}
	return fmt.Sprintf("%d dias", days)
}

func daysBetween(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, from.Location())
	return int(math.Round(b.Sub(a).Hours() / 24))
}
