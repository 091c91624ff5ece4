package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hray3182/MindIt/internal/apperr"
)

// FallbackDelay is the lead time given to text that names no time at all.
const FallbackDelay = time.Hour

const (
	unitPattern       = `minutos|minuto|minutes|minute|mins|min|horas|hora|hours|hour|hrs|hr|dias|dia|days|day`
	connectivePattern = `às|as|ás`
)

var (
	relativeRe = regexp.MustCompile(`(?i)^(.+?)\s+(?:daqui\s+a|daqui|dentro\s+de|em|in)\s+(\d{1,4})\s*(` + unitPattern + `)(?:\s+(?:from\s+now|a\s+partir\s+de\s+agora))?$`)
	dayTimeRe  = regexp.MustCompile(`(?i)^(.+?)\s+(?:(?:na|no)\s+)?(` + dayTokenPattern + `)\s+(?:(?:` + connectivePattern + `|pelas|pela)\s+)?(` + timeTokenPattern + `)$`)
	atTimeRe   = regexp.MustCompile(`(?i)^(.+?)\s+(?:` + connectivePattern + `)\s+(` + timeTokenPattern + `)$`)
	bareTimeRe = regexp.MustCompile(`(?i)^(.+?)\s+(` + timeTokenPattern + `)$`)
	dayOnlyRe  = regexp.MustCompile(`(?i)^(.+?)\s+(?:(?:na|no)\s+)?(` + dayTokenPattern + `)$`)
	trailingRe = regexp.MustCompile(`^(.+?)\s+(\d{1,2})$`)

	onlyTokenRe = regexp.MustCompile(`(?i)^(?:(?:` + connectivePattern + `)\s+)?(?:` + timeTokenPattern + `|` + dayTokenPattern + `)$`)
	prefixRe    = regexp.MustCompile(`(?i)^(?:me\s+lembr[ae]\s+(?:de\s+)?|lembr(?:ar|e-me|a-me)\s+(?:de\s+)?|lembrete:?\s+)`)
	spaceRe     = regexp.MustCompile(`\s+`)
	leadingAtRe = regexp.MustCompile(`(?i)^(?:` + connectivePattern + `)\s+`)
	glueOnlyRe  = regexp.MustCompile(`(?i)^(?:` + connectivePattern + `|na|no|em|in|daqui(?:\s+a)?|pelas?)$`)
)

type state struct {
	text string
	ref  time.Time
	// rejected holds the first time-shaped token that failed validation
	// in a position where only a time could appear.
	rejected string
}

func (s *state) reject(token string) {
	if s.rejected == "" {
		s.rejected = token
	}
}

type rule struct {
	name  string
	apply func(s *state) (Intent, bool)
}

// rules are tried in order; the first that yields an intent wins.
var rules = []rule{
	{"relative", matchRelative},
	{"day_time", matchDayTime},
	{"at_time", matchAtTime},
	{"bare_time", matchBareTime},
	{"day_only", matchDayOnly},
	{"trailing_hour", matchTrailingHour},
	{"fallback", matchFallback},
}

// Parse turns a message into an intent relative to ref, the instant the
// message was received. ref's location decides what "today" means.
//
// A time token that is out of range where only a time could appear makes
// Parse return an InvalidTime error instead of falling back.
func Parse(text string, ref time.Time) (Intent, error) {
	s := &state{text: normalize(text), ref: ref}
	if s.text == "" {
		return Intent{Kind: NoMatch}, nil
	}

	for _, r := range rules {
		if intent, ok := r.apply(s); ok {
			intent.Rule = r.name
			return intent, nil
		}
	}

	if s.rejected != "" {
		return Intent{Kind: NoMatch}, apperr.NewInvalidTime(s.rejected)
	}
	return Intent{Kind: NoMatch}, nil
}

// CompleteWithTime finishes a partial intent with the user's follow-up
// reply, which must be a bare time token, optionally after "às". A reply
// that is not a time token yields ok == false.
func CompleteWithTime(partial Intent, reply string, ref time.Time) (intent Intent, ok bool, err error) {
	token := normalize(reply)
	token = leadingAtRe.ReplaceAllString(token, "")

	clock, err := ParseClock(token)
	if apperr.IsParseFailure(err) {
		return Intent{}, false, nil
	}
	if err != nil {
		return Intent{}, true, err
	}

	target := clock.On(partial.Day.Date)
	if partial.Day.IsToday() && !target.After(ref) {
		target = target.AddDate(0, 0, 1)
	}
	return Intent{Kind: Complete, Task: partial.Task, Target: target, Rule: "follow_up"}, true, nil
}

func normalize(text string) string {
	text = spaceRe.ReplaceAllString(strings.TrimSpace(text), " ")
	text = strings.TrimRight(text, ".!?,;")
	text = prefixRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// cleanTask trims punctuation around a captured task and refuses captures
// that are only grammar words or tokens.
func cleanTask(task string) (string, bool) {
	task = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(task), ",;:-"))
	if task == "" || glueOnlyRe.MatchString(task) || onlyTokenRe.MatchString(task) {
		return "", false
	}
	return task, true
}

func matchRelative(s *state) (Intent, bool) {
	m := relativeRe.FindStringSubmatch(s.text)
	if m == nil {
		return Intent{}, false
	}
	task, ok := cleanTask(m[1])
	if !ok {
		return Intent{}, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n <= 0 {
		return Intent{}, false
	}

	var unit time.Duration
	switch u := strings.ToLower(m[3]); {
	case strings.HasPrefix(u, "min"):
		unit = time.Minute
	case strings.HasPrefix(u, "h"):
		unit = time.Hour
	default:
		unit = 24 * time.Hour
	}

	return Intent{
		Kind:             Escalating,
		Task:             task,
		Target:           s.ref.Add(time.Duration(n) * unit),
		TotalEscalations: DefaultEscalations,
	}, true
}

func matchDayTime(s *state) (Intent, bool) {
	m := dayTimeRe.FindStringSubmatch(s.text)
	if m == nil {
		return Intent{}, false
	}
	task, ok := cleanTask(m[1])
	if !ok {
		return Intent{}, false
	}
	day, ok := ResolveDay(m[2], s.ref)
	if !ok {
		return Intent{}, false
	}
	clock, err := ParseClock(m[3])
	if err != nil {
		s.reject(m[3])
		return Intent{}, false
	}

	target := clock.On(day.Date)
	if day.IsToday() && !target.After(s.ref) {
		target = target.AddDate(0, 0, 1)
	}
	return Intent{Kind: Complete, Task: task, Target: target}, true
}

func matchAtTime(s *state) (Intent, bool) {
	m := atTimeRe.FindStringSubmatch(s.text)
	if m == nil {
		return Intent{}, false
	}
	return todayAt(s, m[1], m[2], true)
}

func matchBareTime(s *state) (Intent, bool) {
	m := bareTimeRe.FindStringSubmatch(s.text)
	if m == nil {
		return Intent{}, false
	}
	// Bare one or two digit numbers belong to the trailing-hour rule.
	if digitsOnly(m[2]) && len(m[2]) <= 2 {
		return Intent{}, false
	}
	return todayAt(s, m[1], m[2], false)
}

func todayAt(s *state, rawTask, token string, afterConnective bool) (Intent, bool) {
	task, ok := cleanTask(rawTask)
	if !ok {
		return Intent{}, false
	}
	clock, err := ParseClock(token)
	if err != nil {
		if afterConnective || !digitsOnly(strings.TrimSpace(token)) {
			s.reject(token)
		}
		return Intent{}, false
	}
	return Intent{Kind: Complete, Task: task, Target: atOrRollover(clock, s.ref)}, true
}

func matchDayOnly(s *state) (Intent, bool) {
	m := dayOnlyRe.FindStringSubmatch(s.text)
	if m == nil {
		return Intent{}, false
	}
	task, ok := cleanTask(m[1])
	if !ok {
		return Intent{}, false
	}
	day, ok := ResolveDay(m[2], s.ref)
	if !ok {
		return Intent{}, false
	}
	return Intent{Kind: Partial, Task: task, Day: day}, true
}

func matchTrailingHour(s *state) (Intent, bool) {
	m := trailingRe.FindStringSubmatch(s.text)
	if m == nil {
		return Intent{}, false
	}
	task, ok := cleanTask(m[1])
	if !ok {
		return Intent{}, false
	}
	hour, _ := strconv.Atoi(m[2])
	if hour > 23 {
		return Intent{}, false
	}
	return Intent{Kind: Complete, Task: task, Target: atOrRollover(Clock{Hour: hour}, s.ref)}, true
}

func matchFallback(s *state) (Intent, bool) {
	if s.rejected != "" || onlyTokenRe.MatchString(s.text) {
		return Intent{}, false
	}
	task, ok := cleanTask(s.text)
	if !ok {
		return Intent{}, false
	}
	return Intent{Kind: Complete, Task: task, Target: s.ref.Add(FallbackDelay)}, true
}

func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
