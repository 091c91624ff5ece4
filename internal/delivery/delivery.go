package delivery

import (
	"context"
	"errors"
	"fmt"
)

// Sender delivers a plain-text message to a recipient id.
type Sender interface {
	Send(ctx context.Context, to, text string) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, to, text string) error

func (f SenderFunc) Send(ctx context.Context, to, text string) error {
	return f(ctx, to, text)
}

// Error describes a failed delivery. Retryable failures (permission
// windows, rate limits, upstream 5xx) are rescheduled by the dispatcher;
// everything else is reported and left alone.
type Error struct {
	Channel   string
	Status    int // HTTP status, 0 when the request never completed
	Code      int // provider error code
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s delivery failed", e.Channel)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Code != 0 {
		msg += fmt.Sprintf(" [code %d]", e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a delivery error worth rescheduling.
func IsRetryable(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// Describe returns a short reason suitable for sweep summaries.
func Describe(err error) string {
	var de *Error
	if errors.As(err, &de) {
		if de.Message != "" {
			return de.Message
		}
		if de.Err != nil {
			return de.Err.Error()
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// FromContext converts a cancelled or timed-out request into a terminal
// delivery error.
func FromContext(channel string, ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		reason := "cancelled"
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			reason = "timeout"
		}
		return &Error{Channel: channel, Message: reason, Err: err}
	}
	return &Error{Channel: channel, Message: "request failed", Retryable: true, Err: err}
}
