package parser

import "time"

type Kind int

const (
	NoMatch Kind = iota
	Complete
	Partial
	Escalating
)

func (k Kind) String() string {
	switch k {
	case Complete:
		return "complete"
	case Partial:
		return "partial"
	case Escalating:
		return "escalating"
	default:
		return "no_match"
	}
}

// DefaultEscalations is the number of follow-up reminders an escalating
// intent spawns after its root.
const DefaultEscalations = 2

// Day is a resolved day token. Date is midnight of that day in the
// reference location.
type Day struct {
	Token string
	Date  time.Time
}

// IsToday reports whether the token was "hoje".
func (d Day) IsToday() bool {
	return d.Token == "hoje"
}

// Intent is the parser's tagged result. Which fields are meaningful
// depends on Kind:
//
//	Complete:   Task, Target
//	Partial:    Task, Day
//	Escalating: Task, Target, TotalEscalations
//	NoMatch:    none
type Intent struct {
	Kind             Kind
	Task             string
	Target           time.Time
	Day              Day
	TotalEscalations int
	Rule             string // name of the grammar rule that produced the intent
}
