package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hray3182/MindIt/internal/delivery"
	"github.com/hray3182/MindIt/internal/format"
	"github.com/hray3182/MindIt/internal/metrics"
	"github.com/hray3182/MindIt/internal/models"
	"go.uber.org/zap"
)

type Store interface {
	GetDue(ctx context.Context, start, end time.Time) ([]*models.Reminder, error)
	IsConfirmed(ctx context.Context, reminderID int64) (bool, error)
	MarkSent(ctx context.Context, reminderID int64, sentAt time.Time) (bool, error)
	MarkSkipped(ctx context.Context, reminderID int64) (bool, error)
	Reschedule(ctx context.Context, reminderID int64, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, reminderID int64, failedAt time.Time) (bool, error)
	ExpireStale(ctx context.Context, cutoff time.Time) ([]*models.Reminder, error)
}

type Config struct {
	Window          time.Duration // half-width of the due window around now
	RetryDelay      time.Duration
	MaxRetries      int
	StaleAfter      time.Duration
	DeliveryTimeout time.Duration
	Location        *time.Location
}

func DefaultConfig() Config {
	return Config{
		Window:          2 * time.Minute,
		RetryDelay:      5 * time.Minute,
		MaxRetries:      3,
		StaleAfter:      time.Hour,
		DeliveryTimeout: 5 * time.Second,
		Location:        time.Local,
	}
}

const (
	OutcomeSent     = "sent"
	OutcomeRetried  = "retried"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
	OutcomeExpired  = "expired"
	OutcomeRaceLost = "superseded"
)

type Detail struct {
	ReminderID int64  `json:"reminder_id"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
}

// Report is the summary of one sweep.
type Report struct {
	SweepID     string    `json:"sweep_id"`
	StartedAt   time.Time `json:"started_at"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Due         int       `json:"due"`
	Sent        int       `json:"sent"`
	Retried     int       `json:"retried"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	Expired     int       `json:"expired"`
	Errors      []string  `json:"errors,omitempty"`
	Details     []Detail  `json:"details"`
}

func (r *Report) add(id int64, outcome string, err error) {
	d := Detail{ReminderID: id, Outcome: outcome}
	if err != nil {
		d.Error = delivery.Describe(err)
	}
	r.Details = append(r.Details, d)

	switch outcome {
	case OutcomeSent:
		r.Sent++
	case OutcomeRetried:
		r.Retried++
	case OutcomeFailed:
		r.Failed++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeExpired:
		r.Expired++
	}
}

func (r *Report) outcomes() map[string]int {
	return map[string]int{
		OutcomeSent:    r.Sent,
		OutcomeRetried: r.Retried,
		OutcomeFailed:  r.Failed,
		OutcomeSkipped: r.Skipped,
		OutcomeExpired: r.Expired,
	}
}

// Dispatcher delivers due reminders. RunSweep is a single pass that is safe
// to call redundantly: every state change is conditional on the reminder
// still being pending, so overlapping sweeps cannot deliver twice through
// the store.
type Dispatcher struct {
	store   Store
	sender  delivery.Sender
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

func NewDispatcher(store Store, sender delivery.Sender, cfg Config, logger *zap.Logger, m *metrics.Collector) *Dispatcher {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Dispatcher{
		store:   store,
		sender:  sender,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// SetClock replaces the dispatcher's notion of now.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// RunSweep processes every reminder due within the window around now, then
// expires stale ones. Per-reminder failures land in the report; only a
// failed due query aborts the sweep.
func (d *Dispatcher) RunSweep(ctx context.Context) (*Report, error) {
	started := d.now()
	report := &Report{
		SweepID:     uuid.NewString(),
		StartedAt:   started,
		WindowStart: started.Add(-d.cfg.Window),
		WindowEnd:   started.Add(d.cfg.Window),
		Details:     []Detail{},
	}
	log := d.logger.With(zap.String("sweep_id", report.SweepID))

	due, err := d.store.GetDue(ctx, report.WindowStart, report.WindowEnd)
	if err != nil {
		log.Error("failed to query due reminders", zap.Error(err))
		return report, err
	}
	report.Due = len(due)

	for _, r := range due {
		if ctx.Err() != nil {
			report.Errors = append(report.Errors, "sweep interrupted: "+ctx.Err().Error())
			break
		}
		outcome, err := d.process(ctx, r)
		report.add(r.ReminderID, outcome, err)
		if err != nil {
			log.Warn("reminder not delivered",
				zap.Int64("reminder_id", r.ReminderID),
				zap.String("outcome", outcome),
				zap.Error(err))
		}
	}

	expired, err := d.store.ExpireStale(ctx, d.now().Add(-d.cfg.StaleAfter))
	if err != nil {
		log.Error("failed to expire stale reminders", zap.Error(err))
		report.Errors = append(report.Errors, "expire stale: "+err.Error())
	}
	for _, r := range expired {
		report.add(r.ReminderID, OutcomeExpired, nil)
	}

	elapsed := d.now().Sub(started)
	if d.metrics != nil {
		d.metrics.ObserveSweep(elapsed, report.outcomes())
	}
	log.Info("sweep finished",
		zap.Int("due", report.Due),
		zap.Int("sent", report.Sent),
		zap.Int("retried", report.Retried),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int("expired", report.Expired),
		zap.Duration("elapsed", elapsed))
	return report, nil
}

func (d *Dispatcher) process(ctx context.Context, r *models.Reminder) (string, error) {
	if !r.IsRoot() {
		confirmed, err := d.store.IsConfirmed(ctx, r.GroupRootID())
		if err != nil {
			return OutcomeFailed, err
		}
		if confirmed {
			ok, err := d.store.MarkSkipped(ctx, r.ReminderID)
			if err != nil {
				return OutcomeFailed, err
			}
			if !ok {
				return OutcomeRaceLost, nil
			}
			return OutcomeSkipped, nil
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
	err := d.sender.Send(sendCtx, r.Phone, format.Notification(r, d.cfg.Location))
	cancel()

	if err == nil {
		ok, err := d.store.MarkSent(ctx, r.ReminderID, d.now())
		if err != nil {
			return OutcomeFailed, err
		}
		if !ok {
			return OutcomeRaceLost, nil
		}
		return OutcomeSent, nil
	}

	if !delivery.IsRetryable(err) {
		return d.giveUp(ctx, r, err)
	}
	if r.RetryCount >= d.cfg.MaxRetries {
		d.logger.Warn("retry limit reached",
			zap.Int64("reminder_id", r.ReminderID),
			zap.Int("retries", r.RetryCount))
		return d.giveUp(ctx, r, err)
	}

	ok, rerr := d.store.Reschedule(ctx, r.ReminderID, d.now().Add(d.cfg.RetryDelay))
	if rerr != nil {
		return OutcomeFailed, rerr
	}
	if !ok {
		return OutcomeRaceLost, err
	}
	return OutcomeRetried, err
}

// giveUp stamps the reminder so later sweeps leave it alone. It stays pending
// until ExpireStale closes it.
func (d *Dispatcher) giveUp(ctx context.Context, r *models.Reminder, sendErr error) (string, error) {
	if _, err := d.store.MarkFailed(ctx, r.ReminderID, d.now()); err != nil {
		d.logger.Error("failed to record delivery failure",
			zap.Int64("reminder_id", r.ReminderID),
			zap.Error(err))
	}
	return OutcomeFailed, sendErr
}
