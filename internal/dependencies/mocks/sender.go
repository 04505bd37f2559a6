package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/mcoot/gameauth/internal/services/notify"
)

// SentOTP records one delivery made through MockSender
type SentOTP struct {
	Email string
	Code  string
	TTL   time.Duration
}

// MockSender records deliveries instead of sending them
type MockSender struct {
	mu   sync.Mutex
	sent []SentOTP
	err  error
}

// Ensure MockSender implements Sender
var _ notify.Sender = (*MockSender)(nil)

// NewMockSender creates a new MockSender
func NewMockSender() *MockSender {
	return &MockSender{}
}

// SendOTP records the code, or returns the configured failure
func (s *MockSender) SendOTP(ctx context.Context, email, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, SentOTP{Email: email, Code: code, TTL: ttl})
	return nil
}

// FailWith makes subsequent sends return err; nil restores success
func (s *MockSender) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Sent returns every recorded delivery
func (s *MockSender) Sent() []SentOTP {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SentOTP(nil), s.sent...)
}

// LastCode returns the most recent code sent to email, or "" if none
func (s *MockSender) LastCode(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].Email == email {
			return s.sent[i].Code
		}
	}
	return ""
}
