package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hray3182/MindIt/internal/apperr"
	"github.com/hray3182/MindIt/internal/models"
	"github.com/hray3182/MindIt/internal/parser"
	"github.com/hray3182/MindIt/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const phone = "5511999990000"

var brt = time.FixedZone("BRT", -3*60*60)

func fixedNow() time.Time {
	return time.Date(2025, 3, 12, 10, 0, 0, 0, brt)
}

func newManager(store *repository.MemoryStore, scope ConfirmScope) *Manager {
	return NewManager(store, store, zap.NewNop(), Options{Scope: scope, Location: brt, Now: fixedNow})
}

func escalating(t *testing.T, m *Manager, text string) []*models.Reminder {
	t.Helper()
	intent, err := parser.Parse(text, fixedNow())
	require.NoError(t, err)
	require.Equal(t, parser.Escalating, intent.Kind)
	created, err := m.Create(context.Background(), phone, intent)
	require.NoError(t, err)
	return created
}

func TestManager_CreateEscalationChainShape(t *testing.T) {
	store := repository.NewMemoryStore()
	m := newManager(store, ScopeGroup)
	T := fixedNow()

	created := escalating(t, m, "ler contrato em 20 minutos")
	require.Len(t, created, 3)

	root := created[0]
	assert.Nil(t, root.ParentID)
	assert.Equal(t, 0, root.RecurrenceCount)
	assert.Equal(t, T.Add(20*time.Minute), root.ScheduledTime)

	for i, offset := range []time.Duration{50 * time.Minute, 80 * time.Minute} {
		sibling := created[i+1]
		require.NotNil(t, sibling.ParentID)
		assert.Equal(t, root.ReminderID, *sibling.ParentID)
		assert.Equal(t, i+1, sibling.RecurrenceCount)
		assert.Equal(t, T.Add(offset), sibling.ScheduledTime)
		assert.Equal(t, models.StatusPending, sibling.Status)
	}
	assert.Len(t, store.All(), 3)
}

func TestManager_CreateCompleteIntentSingleRow(t *testing.T) {
	store := repository.NewMemoryStore()
	m := newManager(store, ScopeGroup)

	intent, err := parser.Parse("pagar boleto amanhã às 9", fixedNow())
	require.NoError(t, err)
	created, err := m.Create(context.Background(), phone, intent)
	require.NoError(t, err)

	require.Len(t, created, 1)
	assert.True(t, created[0].IsRoot())
}

func TestManager_CreateRejectsPartialIntent(t *testing.T) {
	store := repository.NewMemoryStore()
	m := newManager(store, ScopeGroup)

	intent, err := parser.Parse("dentista amanhã", fixedNow())
	require.NoError(t, err)
	_, err = m.Create(context.Background(), phone, intent)
	assert.True(t, apperr.IsParseFailure(err))
	assert.Empty(t, store.All())
}

type failingSiblings struct {
	*repository.MemoryStore
	calls int
}

func (f *failingSiblings) Insert(ctx context.Context, reminders ...*models.Reminder) error {
	f.calls++
	if f.calls > 1 {
		return apperr.NewStoreFailure("insert reminder", errors.New("connection lost"))
	}
	return f.MemoryStore.Insert(ctx, reminders...)
}

func TestManager_CreateKeepsRootWhenSiblingsFail(t *testing.T) {
	store := &failingSiblings{MemoryStore: repository.NewMemoryStore()}
	m := NewManager(store, store, zap.NewNop(), Options{Location: brt, Now: fixedNow})

	intent, err := parser.Parse("ler contrato em 20 minutos", fixedNow())
	require.NoError(t, err)
	created, err := m.Create(context.Background(), phone, intent)

	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Len(t, store.All(), 1)
}

func TestManager_ConfirmViaSiblingClosesWholeGroup(t *testing.T) {
	store := repository.NewMemoryStore()
	m := newManager(store, ScopeGroup)
	created := escalating(t, m, "ler contrato em 20 minutos")

	outcome, err := m.Confirm(context.Background(), phone, &created[2].ReminderID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), outcome.Affected)
	assert.Equal(t, created[0].ReminderID, outcome.RootID)
	assert.Equal(t, "ler contrato", outcome.Task)

	for _, r := range store.All() {
		assert.Equal(t, models.StatusCompleted, r.Status)
		assert.True(t, r.Confirmed)
	}
}

func TestManager_ConfirmUnknownIDIsNotFound(t *testing.T) {
	store := repository.NewMemoryStore()
	m := newManager(store, ScopeGroup)
	created := escalating(t, m, "ler contrato em 20 minutos")

	missing := int64(999)
	_, err := m.Confirm(context.Background(), phone, &missing)
	assert.True(t, apperr.IsNotFound(err))

	_, err = m.Confirm(context.Background(), "5522000000000", &created[0].ReminderID)
	assert.True(t, apperr.IsNotFound(err), "another user's reminder must not be reachable")

	for _, r := range store.All() {
		assert.Equal(t, models.StatusPending, r.Status)
	}
}

func TestManager_BareConfirmGroupScope(t *testing.T) {
	store := repository.NewMemoryStore()
	m := newManager(store, ScopeGroup)
	first := escalating(t, m, "ler contrato em 20 minutos")
	second := escalating(t, m, "ligar pra ana em 2 horas")

	_, err := store.MarkSent(context.Background(), first[0].ReminderID, fixedNow())
	require.NoError(t, err)

	outcome, err := m.Confirm(context.Background(), phone, nil)
	require.NoError(t, err)
	assert.Equal(t, first[0].ReminderID, outcome.RootID)
	assert.Equal(t, int64(3), outcome.Affected)

	pending, err := store.GetPendingByUser(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, second[0].ReminderID, pending[0].GroupRootID())
}

func TestManager_BareConfirmAllScope(t *testing.T) {
	store := repository.NewMemoryStore()
	m := newManager(store, ScopeAll)
	escalating(t, m, "ler contrato em 20 minutos")
	escalating(t, m, "ligar pra ana em 2 horas")

	outcome, err := m.Confirm(context.Background(), phone, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(6), outcome.Affected)
}

func TestManager_BareConfirmWithNothingOpen(t *testing.T) {
	store := repository.NewMemoryStore()
	m := newManager(store, ScopeGroup)

	outcome, err := m.Confirm(context.Background(), phone, nil)
	require.NoError(t, err)
	assert.Zero(t, outcome.Affected)
}

func TestManager_CancelClosesGroup(t *testing.T) {
	store := repository.NewMemoryStore()
	m := newManager(store, ScopeGroup)
	created := escalating(t, m, "ler contrato em 20 minutos")

	outcome, err := m.Cancel(context.Background(), phone, created[1].ReminderID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), outcome.Affected)

	for _, r := range store.All() {
		assert.Equal(t, models.StatusCancelled, r.Status)
		assert.True(t, r.Confirmed)
	}

	_, err = m.Cancel(context.Background(), phone, 404)
	assert.True(t, apperr.IsNotFound(err))
}

func TestManager_ListRoundTrip(t *testing.T) {
	store := repository.NewMemoryStore()
	m := newManager(store, ScopeGroup)

	entries, err := m.List(context.Background(), phone)
	require.NoError(t, err)
	assert.Empty(t, entries)

	intent, err := parser.Parse("comprar pão as 18:30", fixedNow())
	require.NoError(t, err)
	_, err = m.Create(context.Background(), phone, intent)
	require.NoError(t, err)

	entries, err = m.List(context.Background(), phone)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "comprar pão", entries[0].Reminder.Task)
	assert.Equal(t, time.Date(2025, 3, 12, 18, 30, 0, 0, brt), entries[0].Reminder.ScheduledTime)
	assert.Equal(t, "hoje às 18:30", entries[0].Label)
}
