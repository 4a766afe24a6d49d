package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/vacvault/vacvault-api/internal/mail"
	"github.com/vacvault/vacvault-api/internal/observability"
)

const (
	defaultPollTimeout = 2 * time.Second
	settleTimeout      = 5 * time.Second
)

// Outbox is the queue surface the worker drains.
type Outbox interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*mail.Message, error)
	Ack(ctx context.Context, msg mail.Message) error
	Retry(ctx context.Context, msg mail.Message, dueAt time.Time) error
	PromoteDue(ctx context.Context, now time.Time) (int, error)
	DeadLetter(ctx context.Context, msg mail.Message) error
	RequeueInFlight(ctx context.Context) (int, error)
}

// MailWorkerConfig tunes delivery retries.
type MailWorkerConfig struct {
	MaxAttempts  int
	RetryBackoff time.Duration
	PollTimeout  time.Duration
}

// MailWorker delivers queued mail until its context is cancelled.
type MailWorker struct {
	outbox  Outbox
	sender  mail.Sender
	cfg     MailWorkerConfig
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewMailWorker builds a worker.
func NewMailWorker(outbox Outbox, sender mail.Sender, cfg MailWorkerConfig, metrics *observability.Metrics, logger *zap.Logger) *MailWorker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MailWorker{
		outbox:  outbox,
		sender:  sender,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Run processes messages until ctx is done.
func (w *MailWorker) Run(ctx context.Context) {
	w.logger.Info("mail worker started", zap.Int("max_attempts", w.cfg.MaxAttempts))
	defer w.logger.Info("mail worker stopped")

	if n, err := w.outbox.RequeueInFlight(ctx); err != nil {
		w.logger.Warn("unable to requeue in-flight mail", zap.Error(err))
	} else if n > 0 {
		w.logger.Info("requeued in-flight mail", zap.Int("count", n))
	}

	for ctx.Err() == nil {
		if err := w.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("mail worker iteration failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(w.cfg.PollTimeout):
			}
		}
	}
}

// ProcessOnce promotes due retries and delivers at most one message.
func (w *MailWorker) ProcessOnce(ctx context.Context) error {
	if n, err := w.outbox.PromoteDue(ctx, w.now()); err != nil {
		return err
	} else if n > 0 {
		w.logger.Debug("promoted mail retries", zap.Int("count", n))
	}

	msg, err := w.outbox.Dequeue(ctx, w.cfg.PollTimeout)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	if msg == nil {
		return nil
	}
	return w.deliver(ctx, *msg)
}

// deliver sends msg and settles it in the outbox. Settling runs on a detached context so a
// shutdown mid-send still leaves the message retried or parked.
func (w *MailWorker) deliver(ctx context.Context, msg mail.Message) error {
	msg.Attempts++
	sendErr := w.sender.Send(ctx, msg)

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	if sendErr == nil {
		w.metrics.RecordMail("sent")
		w.logger.Info("mail sent",
			zap.String("message_id", msg.ID),
			zap.String("subject", msg.Subject),
			zap.Int("attempts", msg.Attempts))
		return w.outbox.Ack(settleCtx, msg)
	}

	msg.LastError = sendErr.Error()
	if msg.Attempts >= w.cfg.MaxAttempts {
		w.metrics.RecordMail("dead_lettered")
		w.logger.Error("mail dead-lettered",
			zap.String("message_id", msg.ID),
			zap.Int("attempts", msg.Attempts),
			zap.Error(sendErr))
		return w.outbox.DeadLetter(settleCtx, msg)
	}

	dueAt := w.now().Add(w.backoff(msg.Attempts))
	w.metrics.RecordMail("retried")
	w.logger.Warn("mail send failed, retry scheduled",
		zap.String("message_id", msg.ID),
		zap.Int("attempts", msg.Attempts),
		zap.Time("due_at", dueAt),
		zap.Error(sendErr))
	return w.outbox.Retry(settleCtx, msg, dueAt)
}

// backoff doubles per attempt.
func (w *MailWorker) backoff(attempts int) time.Duration {
	d := w.cfg.RetryBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
	}
	return d
}
