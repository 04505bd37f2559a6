// Package notify delivers one-time codes to users. The concrete transport
// (log, SMTP or Kafka) is chosen by configuration; callers only see Sender.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrSendTimeout is returned when delivery does not finish within the timeout
var ErrSendTimeout = errors.New("notification send timed out")

// DefaultTimeout bounds a single delivery attempt
const DefaultTimeout = 10 * time.Second

// Sender delivers a one-time code to an email address
type Sender interface {
	SendOTP(ctx context.Context, email, code string, ttl time.Duration) error
}

// WithTimeout wraps a Sender so each delivery is abandoned after d.
// The wrapped sender sees a context carrying the same deadline.
func WithTimeout(next Sender, d time.Duration) Sender {
	if d <= 0 {
		d = DefaultTimeout
	}
	return &timeoutSender{next: next, timeout: d}
}

type timeoutSender struct {
	next    Sender
	timeout time.Duration
}

func (t *timeoutSender) SendOTP(ctx context.Context, email, code string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- t.next.SendOTP(ctx, email, code, ttl)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrSendTimeout, ctx.Err())
	}
}

// LogSender writes codes to the application log instead of delivering them.
// Intended for local development.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendOTP(ctx context.Context, email, code string, ttl time.Duration) error {
	s.logger.InfoContext(ctx, "otp delivery skipped, log driver active",
		slog.String("email", email),
		slog.String("code", code),
		slog.Duration("ttl", ttl),
	)
	return nil
}

// otpMessageBody is the human readable text shared by the mail transports
func otpMessageBody(code string, ttl time.Duration) string {
	return fmt.Sprintf(
		"Your verification code is %s.\r\n\r\nIt expires in %d minutes. If you did not request this code you can ignore this message.\r\n",
		code, int(ttl.Minutes()),
	)
}
