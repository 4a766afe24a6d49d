package mail

import (
	"time"

	"github.com/google/uuid"
)

// Message is a plain-text email waiting for delivery.
type Message struct {
	ID         string    `json:"id"`
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	LastError  string    `json:"last_error,omitempty"`

	// receipt is the payload as it sits in the processing list.
	receipt string
}

// NewMessage builds a message with a fresh id.
func NewMessage(to, subject, body string) Message {
	return Message{
		ID:         uuid.NewString(),
		To:         to,
		Subject:    subject,
		Body:       body,
		EnqueuedAt: time.Now().UTC(),
	}
}
