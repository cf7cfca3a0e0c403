package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
)

type Message struct {
	Kind    string    `json:"kind"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	QueueAt time.Time `json:"queued_at"`
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Producer publishes keyed messages to a topic.
type Producer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// KafkaMailer hands messages to the delivery worker through a topic keyed by
// recipient.
type KafkaMailer struct {
	producer Producer
	topic    string
}

func NewKafkaMailer(producer Producer, topic string) *KafkaMailer {
	return &KafkaMailer{producer: producer, topic: topic}
}

func (m *KafkaMailer) Send(ctx context.Context, msg Message) error {
	if msg.QueueAt.IsZero() {
		msg.QueueAt = time.Now().UTC()
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal mail: %w", err)
	}
	if err := m.producer.ProduceMessage(ctx, m.topic, []byte(msg.To), value, map[string]string{"kind": msg.Kind}); err != nil {
		return fmt.Errorf("failed to queue mail: %w", err)
	}
	return nil
}

// LogMailer writes messages to the log. Used when no transport is configured.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("outbound mail",
		zap.String("kind", msg.Kind),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}

// Composer builds the account mails with links under BaseURL.
type Composer struct {
	From    string
	BaseURL string
}

func (c Composer) Verification(to, name, token string) Message {
	link := c.link("/verify-email", token)
	return Message{
		Kind:    "email_verification",
		From:    c.From,
		To:      to,
		Subject: "Confirm your BuddiesFinder account",
		Body: fmt.Sprintf("Hi %s,\n\nConfirm your email address by opening the link below. "+
			"It expires in one hour.\n\n%s\n", name, link),
	}
}

func (c Composer) PasswordReset(to, name, token string) Message {
	link := c.link("/reset-password", token)
	return Message{
		Kind:    "password_reset",
		From:    c.From,
		To:      to,
		Subject: "Reset your BuddiesFinder password",
		Body: fmt.Sprintf("Hi %s,\n\nSomeone asked to reset your password. If it was you, open the "+
			"link below within 60 minutes. Otherwise ignore this message.\n\n%s\n", name, link),
	}
}

func (c Composer) link(path, token string) string {
	return c.BaseURL + path + "?" + url.Values{"token": {token}}.Encode()
}
