package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hray3182/MindIt/internal/apperr"
)

// timeTokenPattern matches H, HH, H:MM, H.MM, HhMM and 3-4 digit clock
// tokens with an optional h/hr/hrs/horas suffix. It is embedded in the
// grammar rules, so it carries no anchors or groups of its own.
const timeTokenPattern = `\d{1,4}(?:(?:[:.]|h)\d{2})?(?:\s*(?:horas|hrs|hr|h))?`

var timeTokenRe = regexp.MustCompile(`(?i)^(\d{1,4})(?:([:.]|h)(\d{2}))?\s*(horas|hrs|hr|h)?$`)

// Clock is an hour and minute of the day.
type Clock struct {
	Hour   int
	Minute int
	Marked bool // token had a separator or an hour suffix
}

// On returns the clock time on the calendar day of date, in date's location.
func (c Clock) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour, c.Minute, 0, 0, date.Location())
}

// ParseClock parses a single time token. It returns an InvalidTime error
// when the token is time-shaped but out of range, and a ParseFailure when
// it is not a time token at all.
func ParseClock(token string) (Clock, error) {
	token = strings.TrimSpace(token)
	m := timeTokenRe.FindStringSubmatch(token)
	if m == nil {
		return Clock{}, apperr.NewParseFailure("not a time token: " + token)
	}

	digits, sep, minutes, suffix := m[1], m[2], m[3], m[4]
	clock := Clock{Marked: sep != "" || suffix != ""}

	var hourStr, minStr string
	switch {
	case sep != "":
		if len(digits) > 2 {
			return Clock{}, apperr.NewInvalidTime(token)
		}
		hourStr, minStr = digits, minutes
	case len(digits) <= 2:
		hourStr, minStr = digits, "0"
	case len(digits) == 3:
		hourStr, minStr = digits[:1], digits[1:]
	default:
		hourStr, minStr = digits[:2], digits[2:]
	}

	hour, _ := strconv.Atoi(hourStr)
	minute, _ := strconv.Atoi(minStr)
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Clock{}, apperr.NewInvalidTime(token)
	}
	clock.Hour = hour
	clock.Minute = minute
	return clock, nil
}

// atOrRollover places clock on the reference day and pushes it to the
// next day if that instant is not after ref.
func atOrRollover(clock Clock, ref time.Time) time.Time {
	t := clock.On(ref)
	if !t.After(ref) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}
