package reminder

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

var scheduleEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// escalationRule describes a root and n escalations spaced step apart as
// an RFC 5545 recurrence, e.g. FREQ=MINUTELY;INTERVAL=30;COUNT=3.
func escalationRule(step time.Duration, n int) (*rrule.RRule, error) {
	if step < time.Second {
		return nil, fmt.Errorf("escalation step %s is below one second", step)
	}
	freq, interval := rrule.MINUTELY, int(step/time.Minute)
	if step%time.Minute != 0 {
		freq, interval = rrule.SECONDLY, int(step/time.Second)
	}
	return rrule.NewRRule(rrule.ROption{
		Freq:     freq,
		Interval: interval,
		Count:    n + 1,
		Dtstart:  scheduleEpoch,
	})
}

// escalationOffsets returns how long after the root each of the n
// escalations fires. The rule is evaluated on a fixed UTC epoch so the
// offsets do not depend on the target's zone or sub-second part.
func escalationOffsets(step time.Duration, n int) ([]time.Duration, error) {
	rule, err := escalationRule(step, n)
	if err != nil {
		return nil, err
	}

	occurrences := rule.All()
	if len(occurrences) != n+1 {
		return nil, fmt.Errorf("rule %s produced %d occurrences, want %d", rule, len(occurrences), n+1)
	}
	offsets := make([]time.Duration, 0, n)
	for _, t := range occurrences[1:] {
		offsets = append(offsets, t.Sub(occurrences[0]))
	}
	return offsets, nil
}
