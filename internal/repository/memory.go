package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hray3182/MindIt/internal/apperr"
	"github.com/hray3182/MindIt/internal/models"
)

// MemoryStore keeps users and reminders in process memory. It honours the
// same status guards as the Postgres repositories and backs STORE_DRIVER=memory
// as well as the package tests of the lifecycle, dispatcher and router.
type MemoryStore struct {
	mu         sync.Mutex
	now        func() time.Time
	users      map[string]*models.User
	reminders  map[int64]*models.Reminder
	nextUserID int64
	nextID     int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:       time.Now,
		users:     make(map[string]*models.User),
		reminders: make(map[int64]*models.Reminder),
	}
}

// SetClock replaces the clock used for bookkeeping timestamps.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) GetOrCreate(ctx context.Context, phone string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.users[phone]; ok {
		u := *user
		return &u, nil
	}
	s.nextUserID++
	user := &models.User{UserID: s.nextUserID, Phone: phone, CreatedAt: s.now()}
	s.users[phone] = user
	u := *user
	return &u, nil
}

func (s *MemoryStore) Insert(ctx context.Context, reminders ...*models.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, reminder := range reminders {
		if strings.TrimSpace(reminder.Task) == "" {
			return apperr.NewStoreFailure("insert reminder", errEmptyTask)
		}
	}

	now := s.now()
	for _, reminder := range reminders {
		s.nextID++
		reminder.ReminderID = s.nextID
		if reminder.Status == "" {
			reminder.Status = models.StatusPending
		}
		reminder.CreatedAt = now
		reminder.UpdatedAt = now
		stored := *reminder
		s.reminders[stored.ReminderID] = &stored
	}
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, reminderID, userID int64) (*models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reminder, ok := s.reminders[reminderID]
	if !ok || reminder.UserID != userID {
		return nil, apperr.NewNotFound("reminder", reminderID)
	}
	return s.copyOf(reminder), nil
}

func (s *MemoryStore) IsConfirmed(ctx context.Context, reminderID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reminder, ok := s.reminders[reminderID]
	return ok && reminder.Confirmed, nil
}

func (s *MemoryStore) UpdateGroupStatus(ctx context.Context, userID, rootID int64, status models.Status) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	for _, reminder := range s.reminders {
		if reminder.UserID != userID || reminder.GroupRootID() != rootID || !isOpen(reminder) {
			continue
		}
		reminder.Status = status
		reminder.Confirmed = true
		reminder.UpdatedAt = s.now()
		affected++
	}
	return affected, nil
}

func (s *MemoryStore) CompleteAllOpen(ctx context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	for _, reminder := range s.reminders {
		if reminder.UserID != userID || reminder.Confirmed || !isOpen(reminder) {
			continue
		}
		reminder.Status = models.StatusCompleted
		reminder.Confirmed = true
		reminder.UpdatedAt = s.now()
		affected++
	}
	return affected, nil
}

func (s *MemoryStore) LatestOpenGroup(ctx context.Context, userID int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*models.Reminder
	for _, reminder := range s.reminders {
		if reminder.UserID == userID && !reminder.Confirmed && isOpen(reminder) {
			candidates = append(candidates, reminder)
		}
	}
	if len(candidates) == 0 {
		return 0, false, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		switch {
		case a.SentAt != nil && b.SentAt == nil:
			return true
		case a.SentAt == nil && b.SentAt != nil:
			return false
		case a.SentAt != nil && !a.SentAt.Equal(*b.SentAt):
			return a.SentAt.After(*b.SentAt)
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ReminderID > b.ReminderID
	})
	return candidates[0].GroupRootID(), true, nil
}

func (s *MemoryStore) MarkSent(ctx context.Context, reminderID int64, sentAt time.Time) (bool, error) {
	return s.transition(reminderID, func(r *models.Reminder) {
		r.Status = models.StatusSent
		at := sentAt
		r.SentAt = &at
	}), nil
}

func (s *MemoryStore) MarkSkipped(ctx context.Context, reminderID int64) (bool, error) {
	return s.transition(reminderID, func(r *models.Reminder) {
		r.Status = models.StatusCancelled
		r.Confirmed = true
	}), nil
}

func (s *MemoryStore) Reschedule(ctx context.Context, reminderID int64, at time.Time) (bool, error) {
	return s.transition(reminderID, func(r *models.Reminder) {
		r.ScheduledTime = at
		r.RecurrenceCount++
		r.RetryCount++
	}), nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, reminderID int64, failedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reminder, ok := s.reminders[reminderID]
	if !ok || reminder.Status != models.StatusPending || reminder.FailedAt != nil {
		return false, nil
	}
	at := failedAt
	reminder.FailedAt = &at
	reminder.UpdatedAt = s.now()
	return true, nil
}

func (s *MemoryStore) GetDue(ctx context.Context, start, end time.Time) ([]*models.Reminder, error) {
	return s.selectSorted(func(r *models.Reminder) bool {
		return r.Status == models.StatusPending && !r.Confirmed && r.FailedAt == nil &&
			!r.ScheduledTime.Before(start) && !r.ScheduledTime.After(end)
	}), nil
}

func (s *MemoryStore) GetPendingByUser(ctx context.Context, userID int64) ([]*models.Reminder, error) {
	return s.selectSorted(func(r *models.Reminder) bool {
		return r.UserID == userID && r.Status == models.StatusPending
	}), nil
}

func (s *MemoryStore) ExpireStale(ctx context.Context, cutoff time.Time) ([]*models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*models.Reminder
	for _, reminder := range s.reminders {
		if reminder.Status != models.StatusPending || reminder.Confirmed || !reminder.ScheduledTime.Before(cutoff) {
			continue
		}
		reminder.Status = models.StatusExpired
		reminder.UpdatedAt = s.now()
		expired = append(expired, s.copyOf(reminder))
	}
	sortBySchedule(expired)
	return expired, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// All returns a snapshot of every stored reminder ordered by id.
func (s *MemoryStore) All() []*models.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]*models.Reminder, 0, len(s.reminders))
	for _, reminder := range s.reminders {
		all = append(all, s.copyOf(reminder))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ReminderID < all[j].ReminderID })
	return all
}

func (s *MemoryStore) transition(reminderID int64, apply func(r *models.Reminder)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	reminder, ok := s.reminders[reminderID]
	if !ok || reminder.Status != models.StatusPending {
		return false
	}
	apply(reminder)
	reminder.UpdatedAt = s.now()
	return true
}

func (s *MemoryStore) selectSorted(match func(r *models.Reminder) bool) []*models.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Reminder
	for _, reminder := range s.reminders {
		if match(reminder) {
			out = append(out, s.copyOf(reminder))
		}
	}
	sortBySchedule(out)
	return out
}

// copyOf must be called with s.mu held.
func (s *MemoryStore) copyOf(reminder *models.Reminder) *models.Reminder {
	c := *reminder
	for _, user := range s.users {
		if user.UserID == c.UserID {
			c.Phone = user.Phone
			break
		}
	}
	return &c
}

func isOpen(r *models.Reminder) bool {
	return r.Status == models.StatusPending || r.Status == models.StatusSent
}

func sortBySchedule(reminders []*models.Reminder) {
	sort.Slice(reminders, func(i, j int) bool {
		if !reminders[i].ScheduledTime.Equal(reminders[j].ScheduledTime) {
			return reminders[i].ScheduledTime.Before(reminders[j].ScheduledTime)
		}
		return reminders[i].ReminderID < reminders[j].ReminderID
	})
}
