package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hray3182/MindIt/internal/apperr"
	"github.com/hray3182/MindIt/internal/database"
	"github.com/hray3182/MindIt/internal/models"
	"github.com/jackc/pgx/v5"
)

const reminderColumns = `reminder_id, user_id, task, scheduled_time, status, confirmed, parent_id,
	recurrence_count, retry_count, created_at, updated_at, sent_at, delivery_failed_at`

// Every status transition below is guarded on the prior status in its WHERE
// clause, so a concurrent sweep or command that lost the race affects no rows.
type ReminderRepository struct {
	db database.Querier
}

func NewReminderRepository(db database.Querier) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// Insert writes all reminders in a single transaction and fills in their
// ids and timestamps.
func (r *ReminderRepository) Insert(ctx context.Context, reminders ...*models.Reminder) error {
	if len(reminders) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return apperr.NewStoreFailure("begin insert", err)
	}
	defer tx.Rollback(ctx)

	for _, reminder := range reminders {
		if reminder.Status == "" {
			reminder.Status = models.StatusPending
		}
		err := tx.QueryRow(ctx,
			`INSERT INTO reminders (user_id, task, scheduled_time, status, confirmed, parent_id, recurrence_count)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING reminder_id, created_at, updated_at`,
			reminder.UserID, reminder.Task, reminder.ScheduledTime, reminder.Status, reminder.Confirmed,
			reminder.ParentID, reminder.RecurrenceCount,
		).Scan(&reminder.ReminderID, &reminder.CreatedAt, &reminder.UpdatedAt)
		if err != nil {
			return apperr.NewStoreFailure("insert reminder", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.NewStoreFailure("commit insert", err)
	}
	return nil
}

func (r *ReminderRepository) GetByID(ctx context.Context, reminderID, userID int64) (*models.Reminder, error) {
	reminder, err := scanReminder(r.db.QueryRow(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE reminder_id = $1 AND user_id = $2`,
		reminderID, userID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NewNotFound("reminder", reminderID)
	}
	if err != nil {
		return nil, apperr.NewStoreFailure("get reminder", err)
	}
	return reminder, nil
}

// IsConfirmed reports the confirmed flag of a single reminder. A missing
// reminder counts as unconfirmed.
func (r *ReminderRepository) IsConfirmed(ctx context.Context, reminderID int64) (bool, error) {
	var confirmed bool
	err := r.db.QueryRow(ctx,
		`SELECT confirmed FROM reminders WHERE reminder_id = $1`,
		reminderID,
	).Scan(&confirmed)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.NewStoreFailure("get confirmed flag", err)
	}
	return confirmed, nil
}

// UpdateGroupStatus moves every open (pending or sent) member of the group
// rooted at rootID to status and marks it confirmed.
func (r *ReminderRepository) UpdateGroupStatus(ctx context.Context, userID, rootID int64, status models.Status) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE reminders SET status = $1, confirmed = TRUE, updated_at = NOW()
		 WHERE user_id = $2 AND (reminder_id = $3 OR parent_id = $3)
		   AND status IN ('pending', 'sent')`,
		status, userID, rootID,
	)
	if err != nil {
		return 0, apperr.NewStoreFailure("update group status", err)
	}
	return tag.RowsAffected(), nil
}

// CompleteAllOpen confirms every open, unconfirmed reminder of the user.
func (r *ReminderRepository) CompleteAllOpen(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE reminders SET status = 'completed', confirmed = TRUE, updated_at = NOW()
		 WHERE user_id = $1 AND confirmed = FALSE AND status IN ('pending', 'sent')`,
		userID,
	)
	if err != nil {
		return 0, apperr.NewStoreFailure("complete all reminders", err)
	}
	return tag.RowsAffected(), nil
}

// LatestOpenGroup returns the root id of the group a bare confirmation most
// likely refers to: the last one notified, else the last one created.
func (r *ReminderRepository) LatestOpenGroup(ctx context.Context, userID int64) (int64, bool, error) {
	var rootID int64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(parent_id, reminder_id) FROM reminders
		 WHERE user_id = $1 AND confirmed = FALSE AND status IN ('pending', 'sent')
		 ORDER BY sent_at DESC NULLS LAST, created_at DESC, reminder_id DESC
		 LIMIT 1`,
		userID,
	).Scan(&rootID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, apperr.NewStoreFailure("get latest open group", err)
	}
	return rootID, true, nil
}

func (r *ReminderRepository) MarkSent(ctx context.Context, reminderID int64, sentAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE reminders SET status = 'sent', sent_at = $2, updated_at = NOW()
		 WHERE reminder_id = $1 AND status = 'pending'`,
		reminderID, sentAt,
	)
	if err != nil {
		return false, apperr.NewStoreFailure("mark sent", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkSkipped cancels a pending sibling whose group was already confirmed.
func (r *ReminderRepository) MarkSkipped(ctx context.Context, reminderID int64) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE reminders SET status = 'cancelled', confirmed = TRUE, updated_at = NOW()
		 WHERE reminder_id = $1 AND status = 'pending'`,
		reminderID,
	)
	if err != nil {
		return false, apperr.NewStoreFailure("mark skipped", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Reschedule moves a pending reminder to at and bumps both counters.
func (r *ReminderRepository) Reschedule(ctx context.Context, reminderID int64, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE reminders
		 SET scheduled_time = $2, recurrence_count = recurrence_count + 1,
		     retry_count = retry_count + 1, updated_at = NOW()
		 WHERE reminder_id = $1 AND status = 'pending'`,
		reminderID, at,
	)
	if err != nil {
		return false, apperr.NewStoreFailure("reschedule", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed records that delivery of a pending reminder gave up. The
// reminder keeps its status so ExpireStale can close it later.
func (r *ReminderRepository) MarkFailed(ctx context.Context, reminderID int64, failedAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE reminders SET delivery_failed_at = $2, updated_at = NOW()
		 WHERE reminder_id = $1 AND status = 'pending' AND delivery_failed_at IS NULL`,
		reminderID, failedAt,
	)
	if err != nil {
		return false, apperr.NewStoreFailure("mark failed", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetDue returns pending, unconfirmed reminders scheduled within [start, end]
// whose delivery has not failed, with the owner's phone number, oldest first.
func (r *ReminderRepository) GetDue(ctx context.Context, start, end time.Time) ([]*models.Reminder, error) {
	rows, err := r.db.Query(ctx,
		`SELECT r.reminder_id, r.user_id, r.task, r.scheduled_time, r.status, r.confirmed, r.parent_id,
		        r.recurrence_count, r.retry_count, r.created_at, r.updated_at, r.sent_at, r.delivery_failed_at, u.phone_number
		 FROM reminders r JOIN users u ON u.user_id = r.user_id
		 WHERE r.status = 'pending' AND r.confirmed = FALSE AND r.delivery_failed_at IS NULL
		   AND r.scheduled_time >= $1 AND r.scheduled_time <= $2
		 ORDER BY r.scheduled_time ASC, r.reminder_id ASC`,
		start, end,
	)
	if err != nil {
		return nil, apperr.NewStoreFailure("query due reminders", err)
	}
	defer rows.Close()

	var reminders []*models.Reminder
	for rows.Next() {
		reminder := &models.Reminder{}
		if err := rows.Scan(&reminder.ReminderID, &reminder.UserID, &reminder.Task, &reminder.ScheduledTime,
			&reminder.Status, &reminder.Confirmed, &reminder.ParentID, &reminder.RecurrenceCount,
			&reminder.RetryCount, &reminder.CreatedAt, &reminder.UpdatedAt, &reminder.SentAt,
			&reminder.FailedAt, &reminder.Phone); err != nil {
			return nil, apperr.NewStoreFailure("scan due reminder", err)
		}
		reminders = append(reminders, reminder)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.NewStoreFailure("iterate due reminders", err)
	}
	return reminders, nil
}

func (r *ReminderRepository) GetPendingByUser(ctx context.Context, userID int64) ([]*models.Reminder, error) {
	return r.queryReminders(ctx, "query pending reminders",
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE user_id = $1 AND status = 'pending'
		 ORDER BY scheduled_time ASC, reminder_id ASC`,
		userID,
	)
}

// ExpireStale marks pending, unconfirmed reminders scheduled before cutoff as
// expired and returns them.
func (r *ReminderRepository) ExpireStale(ctx context.Context, cutoff time.Time) ([]*models.Reminder, error) {
	return r.queryReminders(ctx, "expire stale reminders",
		`UPDATE reminders SET status = 'expired', updated_at = NOW()
		 WHERE status = 'pending' AND confirmed = FALSE AND scheduled_time < $1
		 RETURNING `+reminderColumns,
		cutoff,
	)
}

func (r *ReminderRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *ReminderRepository) queryReminders(ctx context.Context, op, query string, args ...any) ([]*models.Reminder, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.NewStoreFailure(op, err)
	}
	defer rows.Close()

	var reminders []*models.Reminder
	for rows.Next() {
		reminder, err := scanReminder(rows)
		if err != nil {
			return nil, apperr.NewStoreFailure(op, err)
		}
		reminders = append(reminders, reminder)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.NewStoreFailure(op, err)
	}
	return reminders, nil
}

func scanReminder(row pgx.Row) (*models.Reminder, error) {
	reminder := &models.Reminder{}
	err := row.Scan(&reminder.ReminderID, &reminder.UserID, &reminder.Task, &reminder.ScheduledTime,
		&reminder.Status, &reminder.Confirmed, &reminder.ParentID, &reminder.RecurrenceCount,
		&reminder.RetryCount, &reminder.CreatedAt, &reminder.UpdatedAt, &reminder.SentAt,
		&reminder.FailedAt)
	if err != nil {
		return nil, fmt.Errorf("scan reminder: %w", err)
	}
	return reminder, nil
}
