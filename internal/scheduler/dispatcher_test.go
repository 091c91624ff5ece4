package scheduler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hray3182/MindIt/internal/delivery"
	"github.com/hray3182/MindIt/internal/metrics"
	"github.com/hray3182/MindIt/internal/models"
	"github.com/hray3182/MindIt/internal/repository"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var brt = time.FixedZone("BRT", -3*60*60)

var sweepNow = time.Date(2025, 3, 12, 10, 0, 0, 0, brt)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	to   []string
	err  func(text string) error
}

func (f *fakeSender) Send(ctx context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		if err := f.err(text); err != nil {
			return err
		}
	}
	f.to = append(f.to, to)
	f.sent = append(f.sent, text)
	return nil
}

type fixture struct {
	store      *repository.MemoryStore
	sender     *fakeSender
	dispatcher *Dispatcher
	metrics    *metrics.Collector
	userID     int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	user, err := store.GetOrCreate(context.Background(), "5511999990000")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Location = brt
	sender := &fakeSender{}
	m := metrics.NewCollector()
	d := NewDispatcher(store, sender, cfg, zap.NewNop(), m)
	d.SetClock(func() time.Time { return sweepNow })

	return &fixture{store: store, sender: sender, dispatcher: d, metrics: m, userID: user.UserID}
}

func (f *fixture) group(t *testing.T, rootAt time.Time) []*models.Reminder {
	t.Helper()
	root := &models.Reminder{UserID: f.userID, Task: "ler contrato", ScheduledTime: rootAt}
	require.NoError(t, f.store.Insert(context.Background(), root))
	id := root.ReminderID
	siblings := []*models.Reminder{
		{UserID: f.userID, Task: "ler contrato", ScheduledTime: rootAt.Add(30 * time.Minute), ParentID: &id, RecurrenceCount: 1},
		{UserID: f.userID, Task: "ler contrato", ScheduledTime: rootAt.Add(60 * time.Minute), ParentID: &id, RecurrenceCount: 2},
	}
	require.NoError(t, f.store.Insert(context.Background(), siblings...))
	return append([]*models.Reminder{root}, siblings...)
}

func (f *fixture) get(t *testing.T, id int64) *models.Reminder {
	t.Helper()
	r, err := f.store.GetByID(context.Background(), id, f.userID)
	require.NoError(t, err)
	return r
}

func TestRunSweep_DeliversDueReminder(t *testing.T) {
	f := newFixture(t)
	group := f.group(t, sweepNow.Add(-time.Minute))

	report, err := f.dispatcher.RunSweep(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, report.SweepID)
	assert.Equal(t, 1, report.Due)
	assert.Equal(t, 1, report.Sent)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "5511999990000", f.sender.to[0])
	assert.Contains(t, f.sender.sent[0], "🔔 *LEMBRETE:*")

	root := f.get(t, group[0].ReminderID)
	assert.Equal(t, models.StatusSent, root.Status)
	require.NotNil(t, root.SentAt)
	assert.Equal(t, sweepNow, *root.SentAt)
	assert.Equal(t, models.StatusPending, f.get(t, group[1].ReminderID).Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SweepOutcomes.WithLabelValues(OutcomeSent)))
}

func TestRunSweep_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.group(t, sweepNow)

	_, err := f.dispatcher.RunSweep(context.Background())
	require.NoError(t, err)
	report, err := f.dispatcher.RunSweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Due)
	assert.Len(t, f.sender.sent, 1)
}

func TestRunSweep_EscalationFraming(t *testing.T) {
	f := newFixture(t)
	group := f.group(t, sweepNow.Add(-30*time.Minute))
	_, err := f.store.MarkSent(context.Background(), group[0].ReminderID, sweepNow.Add(-30*time.Minute))
	require.NoError(t, err)

	_, err = f.dispatcher.RunSweep(context.Background())
	require.NoError(t, err)

	require.Len(t, f.sender.sent, 1)
	assert.Contains(t, f.sender.sent[0], "segunda notificação")
}

func TestRunSweep_SkipsSiblingOfConfirmedGroup(t *testing.T) {
	f := newFixture(t)
	group := f.group(t, sweepNow.Add(-30*time.Minute))
	ctx := context.Background()

	_, err := f.store.MarkSent(ctx, group[0].ReminderID, sweepNow.Add(-30*time.Minute))
	require.NoError(t, err)
	// The user confirmed via the root; the sibling must not be delivered even
	// if it is still pending when the sweep reaches it.
	_, err = f.store.UpdateGroupStatus(ctx, f.userID, group[0].ReminderID, models.StatusCompleted)
	require.NoError(t, err)
	sibling := &models.Reminder{UserID: f.userID, Task: "ler contrato", ScheduledTime: sweepNow, ParentID: &group[0].ReminderID, RecurrenceCount: 1}
	require.NoError(t, f.store.Insert(ctx, sibling))

	report, err := f.dispatcher.RunSweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, f.sender.sent)
	got := f.get(t, sibling.ReminderID)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.True(t, got.Confirmed)
}

func TestRunSweep_PermissionErrorReschedules(t *testing.T) {
	f := newFixture(t)
	group := f.group(t, sweepNow)
	f.sender.err = func(string) error {
		return &delivery.Error{Channel: "whatsapp", Status: http.StatusForbidden, Code: 10, Message: "(#10) permission", Retryable: true}
	}

	report, err := f.dispatcher.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Retried)
	assert.Equal(t, "(#10) permission", report.Details[0].Error)

	root := f.get(t, group[0].ReminderID)
	assert.Equal(t, models.StatusPending, root.Status)
	assert.Equal(t, sweepNow.Add(5*time.Minute), root.ScheduledTime)
	assert.Equal(t, 1, root.RecurrenceCount)
	assert.Equal(t, 1, root.RetryCount)
}

func TestRunSweep_RetryIsCapped(t *testing.T) {
	f := newFixture(t)
	group := f.group(t, sweepNow)
	f.sender.err = func(string) error {
		return &delivery.Error{Channel: "whatsapp", Code: 10, Retryable: true}
	}

	for i := 0; i < 3; i++ {
		_, err := f.store.Reschedule(context.Background(), group[0].ReminderID, sweepNow)
		require.NoError(t, err)
	}

	report, err := f.dispatcher.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Retried)

	root := f.get(t, group[0].ReminderID)
	assert.Equal(t, models.StatusPending, root.Status)
	assert.Equal(t, 3, root.RetryCount)
	assert.Equal(t, sweepNow, root.ScheduledTime)

	report, err = f.dispatcher.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Due, "a reminder that exhausted its retries is not due again")
}

func TestRunSweep_TerminalFailureLeavesPending(t *testing.T) {
	f := newFixture(t)
	bad := &models.Reminder{UserID: f.userID, Task: "falha", ScheduledTime: sweepNow.Add(-time.Minute)}
	good := &models.Reminder{UserID: f.userID, Task: "ok", ScheduledTime: sweepNow.Add(time.Minute)}
	require.NoError(t, f.store.Insert(context.Background(), bad, good))

	f.sender.err = func(text string) error {
		if strings.Contains(text, "falha") {
			return &delivery.Error{Channel: "whatsapp", Status: http.StatusBadRequest, Code: 131030, Message: "template not approved"}
		}
		return nil
	}

	report, err := f.dispatcher.RunSweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Sent, "one failure must not block the rest of the sweep")
	assert.Equal(t, models.StatusPending, f.get(t, bad.ReminderID).Status)
	assert.NotNil(t, f.get(t, bad.ReminderID).FailedAt)
	assert.Equal(t, models.StatusSent, f.get(t, good.ReminderID).Status)
}

func TestRunSweep_TerminalFailureIsNotRetriedByLaterSweeps(t *testing.T) {
	f := newFixture(t)
	bad := &models.Reminder{UserID: f.userID, Task: "falha", ScheduledTime: sweepNow}
	require.NoError(t, f.store.Insert(context.Background(), bad))

	attempts := 0
	f.sender.err = func(string) error {
		attempts++
		return &delivery.Error{Channel: "whatsapp", Status: http.StatusBadRequest, Code: 131030, Message: "recipient not allowed"}
	}

	// Every sweep from now-2m to now+2m has the reminder inside its window.
	for offset := -2; offset <= 2; offset++ {
		at := sweepNow.Add(time.Duration(offset) * time.Minute)
		f.dispatcher.SetClock(func() time.Time { return at })
		_, err := f.dispatcher.RunSweep(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, 1, attempts)
	got := f.get(t, bad.ReminderID)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, 0, got.RetryCount)

	f.dispatcher.SetClock(func() time.Time { return sweepNow.Add(61 * time.Minute) })
	report, err := f.dispatcher.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, models.StatusExpired, f.get(t, bad.ReminderID).Status)
}

func TestRunSweep_ExpiresStaleReminders(t *testing.T) {
	f := newFixture(t)
	stale := &models.Reminder{UserID: f.userID, Task: "velho", ScheduledTime: sweepNow.Add(-61 * time.Minute)}
	recent := &models.Reminder{UserID: f.userID, Task: "recente", ScheduledTime: sweepNow.Add(-30 * time.Minute)}
	require.NoError(t, f.store.Insert(context.Background(), stale, recent))

	report, err := f.dispatcher.RunSweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, models.StatusExpired, f.get(t, stale.ReminderID).Status)
	assert.Equal(t, models.StatusPending, f.get(t, recent.ReminderID).Status)
}

func TestRunSweep_ProcessesInScheduleOrder(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Insert(context.Background(),
		&models.Reminder{UserID: f.userID, Task: "segundo", ScheduledTime: sweepNow.Add(time.Minute)},
		&models.Reminder{UserID: f.userID, Task: "primeiro", ScheduledTime: sweepNow.Add(-time.Minute)},
	))

	_, err := f.dispatcher.RunSweep(context.Background())
	require.NoError(t, err)

	require.Len(t, f.sender.sent, 2)
	assert.Contains(t, f.sender.sent[0], "primeiro")
	assert.Contains(t, f.sender.sent[1], "segundo")
}
