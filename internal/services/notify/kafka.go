package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaSender
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OTPEvent is the payload published for a downstream mailer to deliver
type OTPEvent struct {
	Email            string    `json:"email"`
	Code             string    `json:"code"`
	ExpiresInSeconds int64     `json:"expiresInSeconds"`
	Body             string    `json:"body"`
	RequestedAt      time.Time `json:"requestedAt"`
}

// KafkaSender publishes codes to a topic. Messages are keyed by email so
// all codes for one address land on the same partition in order.
type KafkaSender struct {
	writer MessageWriter
	now    func() time.Time
}

// NewKafkaWriter builds a synchronous writer for the given brokers and topic
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

// NewKafkaSender creates a KafkaSender over an existing writer
func NewKafkaSender(writer MessageWriter, now func() time.Time) *KafkaSender {
	if now == nil {
		now = time.Now
	}
	return &KafkaSender{writer: writer, now: now}
}

func (s *KafkaSender) SendOTP(ctx context.Context, email, code string, ttl time.Duration) error {
	payload, err := json.Marshal(OTPEvent{
		Email:            email,
		Code:             code,
		ExpiresInSeconds: int64(ttl.Seconds()),
		Body:             otpMessageBody(code, ttl),
		RequestedAt:      s.now(),
	})
	if err != nil {
		return err
	}

	if err := s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(email),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("publishing otp event: %w", err)
	}
	return nil
}

// Close releases the underlying writer
func (s *KafkaSender) Close() error {
	return s.writer.Close()
}
