package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/vacvault/vacvault-api/internal/config"
	"github.com/vacvault/vacvault-api/internal/domain"
	"github.com/vacvault/vacvault-api/internal/events"
	"github.com/vacvault/vacvault-api/internal/mail"
	"github.com/vacvault/vacvault-api/internal/repository"
)

const testBcryptCost = 4

// memUserRepo wraps the in-memory store with a hook for failing saves.
type memUserRepo struct {
	repository.UserRepository
	saveErr error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{UserRepository: repository.NewMemoryUserRepository(testBcryptCost)}
}

func (r *memUserRepo) Save(ctx context.Context, u *domain.User) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	return r.UserRepository.Save(ctx, u)
}

func (r *memUserRepo) count() int {
	n := 0
	for _, role := range []domain.Role{domain.RoleUser, domain.RoleAdmin} {
		users, err := r.ListByRole(context.Background(), role)
		if err != nil {
			panic(err)
		}
		n += len(users)
	}
	return n
}

func (r *memUserRepo) stored(email string) domain.User {
	u, err := r.GetByEmail(context.Background(), email)
	if err != nil {
		panic(err)
	}
	return *u
}

// seqCodes hands out predictable codes: 100001, 100002, ...
type seqCodes struct {
	mu       sync.Mutex
	n        int
	validity time.Duration
}

func (s *seqCodes) Generate() (domain.OneTimeCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	validity := s.validity
	if validity == 0 {
		validity = time.Hour
	}
	return domain.OneTimeCode{
		Value:     strconv.Itoa(100000 + s.n),
		ExpiresAt: time.Now().Add(validity),
	}, nil
}

// inbox records every code delivered through the dispatcher, keyed by email.
type inbox struct {
	mu    sync.Mutex
	codes map[events.EventType]map[string][]string
}

func newInbox(d events.Dispatcher) *inbox {
	in := &inbox{codes: make(map[events.EventType]map[string][]string)}
	for _, t := range []events.EventType{events.EventVerificationCodeIssued, events.EventPasswordResetRequested} {
		eventType := t
		d.Subscribe(eventType, func(_ context.Context, e events.Event) error {
			p := e.Payload.(events.CodeIssuedPayload)
			in.mu.Lock()
			defer in.mu.Unlock()
			if in.codes[eventType] == nil {
				in.codes[eventType] = make(map[string][]string)
			}
			in.codes[eventType][e.Email] = append(in.codes[eventType][e.Email], p.Code)
			return nil
		})
	}
	return in
}

func (in *inbox) all(t events.EventType, email string) []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]string(nil), in.codes[t][email]...)
}

func (in *inbox) last(t events.EventType, email string) string {
	codes := in.all(t, email)
	if len(codes) == 0 {
		return ""
	}
	return codes[len(codes)-1]
}

// captureQueue stores enqueued mail.
type captureQueue struct {
	mu   sync.Mutex
	msgs []mail.Message
	err  error
}

func (q *captureQueue) Enqueue(_ context.Context, msg mail.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, msg)
	return nil
}

func (q *captureQueue) messages() []mail.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]mail.Message(nil), q.msgs...)
}

func testConfig() config.Config {
	return config.Config{
		App:  config.AppConfig{Name: "vacvault-api", Env: "test"},
		Auth: config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 60, BcryptCost: testBcryptCost},
		OTP:  config.OTPConfig{ValidityMinutes: 60},
	}
}
