package delivery

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type BreakerConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	MaxFailures uint32
}

func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		MaxFailures: 5,
	}
}

// BreakerSender stops calling a failing channel for a while so one
// unreachable provider cannot stall a whole sweep. Recipient-specific
// rejections (4xx other than 429) do not count towards tripping.
type BreakerSender struct {
	next    Sender
	breaker *gobreaker.CircuitBreaker
	channel string
}

func NewBreakerSender(next Sender, cfg BreakerConfig, logger *zap.Logger) *BreakerSender {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isRecipientFault(err)
		},
	}

	return &BreakerSender{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
		channel: cfg.Name,
	}
}

func (b *BreakerSender) Send(ctx context.Context, to, text string) error {
	_, err := b.breaker.Execute(func() (any, error) {
		return nil, b.next.Send(ctx, to, text)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &Error{Channel: b.channel, Message: "circuit open", Err: err}
	}
	return err
}

// State exposes the breaker state for health reporting.
func (b *BreakerSender) State() string {
	return b.breaker.State().String()
}

func isRecipientFault(err error) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	return de.Status >= http.StatusBadRequest && de.Status < http.StatusInternalServerError &&
		de.Status != http.StatusTooManyRequests
}
