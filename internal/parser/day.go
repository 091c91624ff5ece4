package parser

import (
	"strings"
	"time"
)

const dayTokenPattern = `hoje|amanh[ãa]|(?:segunda|ter[çc]a|quarta|quinta|sexta)(?:-feira|\s+feira)?|s[áa]bado|domingo`

var weekdays = map[string]time.Weekday{
	"domingo": time.Sunday,
	"segunda": time.Monday,
	"terça":   time.Tuesday,
	"terca":   time.Tuesday,
	"quarta":  time.Wednesday,
	"quinta":  time.Thursday,
	"sexta":   time.Friday,
	"sábado":  time.Saturday,
	"sabado":  time.Saturday,
}

// ResolveDay maps a day token to its calendar day relative to ref.
// Weekdays resolve strictly after the reference day, so naming today's
// weekday means next week.
func ResolveDay(token string, ref time.Time) (Day, bool) {
	key := strings.ToLower(strings.TrimSpace(token))
	key = strings.TrimSuffix(key, "-feira")
	key = strings.TrimSuffix(key, " feira")
	key = strings.TrimSpace(key)

	today := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())

	switch key {
	case "hoje":
		return Day{Token: "hoje", Date: today}, true
	case "amanhã", "amanha":
		return Day{Token: "amanhã", Date: today.AddDate(0, 0, 1)}, true
	}

	weekday, ok := weekdays[key]
	if !ok {
		return Day{}, false
	}
	delta := (int(weekday) - int(ref.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	return Day{Token: key, Date: today.AddDate(0, 0, delta)}, true
}
