package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vacvault/vacvault-api/internal/events"
	"github.com/vacvault/vacvault-api/internal/mail"
	"github.com/vacvault/vacvault-api/internal/observability"
)

const (
	subjectVerifyEmail   = "Verify your email"
	subjectPasswordReset = "Password Reset"
)

// NotificationService turns code-bearing domain events into outgoing mail.
type NotificationService struct {
	dispatcher events.Dispatcher
	queue      mail.Queue
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, queue mail.Queue, metrics *observability.Metrics, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		queue:      queue,
		metrics:    metrics,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventVerificationCodeIssued, n.handleCodeIssued(subjectVerifyEmail))
	n.dispatcher.Subscribe(events.EventPasswordResetRequested, n.handleCodeIssued(subjectPasswordReset))
	n.dispatcher.Subscribe(events.EventUserRegistered, n.logEvent)
	n.dispatcher.Subscribe(events.EventEmailVerified, n.logEvent)
	n.dispatcher.Subscribe(events.EventPasswordResetCompleted, n.logEvent)
}

func (n *NotificationService) handleCodeIssued(subject string) events.EventHandler {
	return func(ctx context.Context, event events.Event) error {
		payload, ok := event.Payload.(events.CodeIssuedPayload)
		if !ok || payload.Code == "" {
			return errors.New("event carries no one-time code")
		}
		if n.queue == nil {
			return errors.New("mail queue not configured")
		}

		msg := mail.NewMessage(event.Email, subject, otpBody(payload.Code))
		if err := n.queue.Enqueue(ctx, msg); err != nil {
			n.metrics.RecordMail("enqueue_failed")
			n.logger.Error("mail enqueue failed",
				zap.String("event", string(event.Type)),
				zap.String("user_id", event.UserID),
				zap.Error(err))
			return fmt.Errorf("enqueue %q mail: %w", subject, err)
		}

		n.metrics.RecordMail("enqueued")
		n.logger.Debug("mail enqueued",
			zap.String("message_id", msg.ID),
			zap.String("event", string(event.Type)),
			zap.String("user_id", event.UserID))
		return nil
	}
}

func (n *NotificationService) logEvent(_ context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("user_id", event.UserID),
		zap.Time("at", event.Timestamp),
		zap.Any("payload", event.Payload))
	return nil
}

func otpBody(code string) string {
	return "Your OTP is " + code
}
