package events

import (
	"time"

	"github.com/vacvault/vacvault-api/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserRegistered         EventType = "user_registered"
	EventVerificationCodeIssued EventType = "verification_code_issued"
	EventEmailVerified          EventType = "email_verified"
	EventPasswordResetRequested EventType = "password_reset_requested"
	EventPasswordResetCompleted EventType = "password_reset_completed"
)

// Event represents a domain event emitted by services.
type Event struct {
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id"`
	Email     string      `json:"email"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// CodeIssuedPayload accompanies events that must deliver a one-time code to the user.
type CodeIssuedPayload struct {
	Code      string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserRegisteredPayload payload.
type UserRegisteredPayload struct {
	ExternalID int64       `json:"external_id"`
	Role       domain.Role `json:"role"`
}

// NewEvent stamps an event for the user.
func NewEvent(eventType EventType, user *domain.User, payload interface{}) Event {
	return Event{
		Type:      eventType,
		UserID:    user.ID,
		Email:     user.Email,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
