package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/hray3182/MindIt/internal/apperr"
	"github.com/hray3182/MindIt/internal/format"
	"github.com/hray3182/MindIt/internal/models"
	"github.com/hray3182/MindIt/internal/parser"
	"go.uber.org/zap"
)

type UserStore interface {
	GetOrCreate(ctx context.Context, phone string) (*models.User, error)
}

type ReminderStore interface {
	Insert(ctx context.Context, reminders ...*models.Reminder) error
	GetByID(ctx context.Context, reminderID, userID int64) (*models.Reminder, error)
	UpdateGroupStatus(ctx context.Context, userID, rootID int64, status models.Status) (int64, error)
	CompleteAllOpen(ctx context.Context, userID int64) (int64, error)
	LatestOpenGroup(ctx context.Context, userID int64) (int64, bool, error)
	GetPendingByUser(ctx context.Context, userID int64) ([]*models.Reminder, error)
}

// ConfirmScope decides what a confirmation without an id closes.
type ConfirmScope string

const (
	// ScopeGroup closes only the group most recently notified (or, failing
	// that, most recently created).
	ScopeGroup ConfirmScope = "group"
	// ScopeAll closes every open reminder the user has.
	ScopeAll ConfirmScope = "all"
)

const DefaultEscalationStep = 30 * time.Minute

type Options struct {
	Scope          ConfirmScope
	EscalationStep time.Duration
	Location       *time.Location
	Now            func() time.Time
}

type Manager struct {
	users     UserStore
	reminders ReminderStore
	logger    *zap.Logger
	scope     ConfirmScope
	step      time.Duration
	loc       *time.Location
	now       func() time.Time
}

func NewManager(users UserStore, reminders ReminderStore, logger *zap.Logger, opts Options) *Manager {
	if opts.Scope == "" {
		opts.Scope = ScopeGroup
	}
	if opts.EscalationStep <= 0 {
		opts.EscalationStep = DefaultEscalationStep
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		users:     users,
		reminders: reminders,
		logger:    logger,
		scope:     opts.Scope,
		step:      opts.EscalationStep,
		loc:       opts.Location,
		now:       opts.Now,
	}
}

// Outcome summarises a confirm or cancel.
type Outcome struct {
	RootID   int64
	Task     string
	Affected int64
}

// Entry is a pending reminder with its human-readable due label.
type Entry struct {
	Reminder *models.Reminder
	Label    string
}

// Create persists the reminders for a complete or escalating intent and
// returns them root first. Escalation siblings are written after the root;
// if that fails the root stands on its own and only the log records it.
func (m *Manager) Create(ctx context.Context, phone string, intent parser.Intent) ([]*models.Reminder, error) {
	if intent.Kind != parser.Complete && intent.Kind != parser.Escalating {
		return nil, apperr.NewParseFailure(fmt.Sprintf("cannot create reminder from %s intent", intent.Kind))
	}

	user, err := m.users.GetOrCreate(ctx, phone)
	if err != nil {
		return nil, err
	}

	root := &models.Reminder{
		UserID:        user.UserID,
		Task:          intent.Task,
		ScheduledTime: intent.Target,
		Status:        models.StatusPending,
	}
	if err := m.reminders.Insert(ctx, root); err != nil {
		return nil, err
	}
	created := []*models.Reminder{root}

	if intent.Kind != parser.Escalating || intent.TotalEscalations <= 0 {
		return created, nil
	}

	rootID := root.ReminderID
	offsets, err := escalationOffsets(m.step, intent.TotalEscalations)
	if err != nil {
		m.logger.Error("escalation schedule invalid, root kept",
			zap.Int64("reminder_id", rootID),
			zap.Duration("step", m.step),
			zap.Error(err))
		return created, nil
	}

	siblings := make([]*models.Reminder, 0, len(offsets))
	for i, offset := range offsets {
		siblings = append(siblings, &models.Reminder{
			UserID:          user.UserID,
			Task:            intent.Task,
			ScheduledTime:   intent.Target.Add(offset),
			Status:          models.StatusPending,
			ParentID:        &rootID,
			RecurrenceCount: i + 1,
		})
	}
	if err := m.reminders.Insert(ctx, siblings...); err != nil {
		m.logger.Error("escalation reminders not created, root kept",
			zap.Int64("reminder_id", rootID),
			zap.Int64("user_id", user.UserID),
			zap.Error(err))
		return created, nil
	}
	return append(created, siblings...), nil
}

// Confirm completes the group containing reminderID. Without an id the
// configured scope decides what is closed.
func (m *Manager) Confirm(ctx context.Context, phone string, reminderID *int64) (Outcome, error) {
	user, err := m.users.GetOrCreate(ctx, phone)
	if err != nil {
		return Outcome{}, err
	}

	if reminderID != nil {
		return m.closeGroupOf(ctx, user.UserID, *reminderID, models.StatusCompleted)
	}

	if m.scope == ScopeAll {
		affected, err := m.reminders.CompleteAllOpen(ctx, user.UserID)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Affected: affected}, nil
	}

	rootID, found, err := m.reminders.LatestOpenGroup(ctx, user.UserID)
	if err != nil || !found {
		return Outcome{}, err
	}
	return m.closeGroupOf(ctx, user.UserID, rootID, models.StatusCompleted)
}

// Cancel stops every reminder in the group containing reminderID.
func (m *Manager) Cancel(ctx context.Context, phone string, reminderID int64) (Outcome, error) {
	user, err := m.users.GetOrCreate(ctx, phone)
	if err != nil {
		return Outcome{}, err
	}
	return m.closeGroupOf(ctx, user.UserID, reminderID, models.StatusCancelled)
}

func (m *Manager) closeGroupOf(ctx context.Context, userID, reminderID int64, status models.Status) (Outcome, error) {
	r, err := m.reminders.GetByID(ctx, reminderID, userID)
	if err != nil {
		return Outcome{}, err
	}

	rootID := r.GroupRootID()
	affected, err := m.reminders.UpdateGroupStatus(ctx, userID, rootID, status)
	if err != nil {
		return Outcome{}, err
	}

	m.logger.Info("reminder group closed",
		zap.Int64("user_id", userID),
		zap.Int64("root_id", rootID),
		zap.String("status", string(status)),
		zap.Int64("affected", affected))
	return Outcome{RootID: rootID, Task: r.Task, Affected: affected}, nil
}

// List returns the user's pending reminders, soonest first.
func (m *Manager) List(ctx context.Context, phone string) ([]Entry, error) {
	user, err := m.users.GetOrCreate(ctx, phone)
	if err != nil {
		return nil, err
	}

	pending, err := m.reminders.GetPendingByUser(ctx, user.UserID)
	if err != nil {
		return nil, err
	}

	now := m.now().In(m.loc)
	entries := make([]Entry, 0, len(pending))
	for _, r := range pending {
		entries = append(entries, Entry{Reminder: r, Label: format.RelativeLabel(r.ScheduledTime, now)})
	}
	return entries, nil
}
