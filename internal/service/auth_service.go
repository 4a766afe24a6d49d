package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vacvault/vacvault-api/internal/auth"
	"github.com/vacvault/vacvault-api/internal/config"
	"github.com/vacvault/vacvault-api/internal/domain"
	"github.com/vacvault/vacvault-api/internal/events"
	"github.com/vacvault/vacvault-api/internal/observability"
	"github.com/vacvault/vacvault-api/internal/repository"
	apperrors "github.com/vacvault/vacvault-api/pkg/util/errorutil"
	"github.com/vacvault/vacvault-api/pkg/util/validate"
)

const minPasswordLength = 6

// RegisterInput carries the profile submitted at sign-up.
type RegisterInput struct {
	FirstName   string
	LastName    string
	Email       string
	PhoneNumber string
	Password    string
	Country     string
	City        string
	Role        domain.Role
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// CodeIssuer produces one-time codes.
type CodeIssuer interface {
	Generate() (domain.OneTimeCode, error)
}

// AuthService coordinates registration, verification, login and password reset.
type AuthService struct {
	users            repository.UserRepository
	codes            CodeIssuer
	tokenMgr         *auth.TokenManager
	events           events.Dispatcher
	metrics          *observability.Metrics
	logger           *zap.Logger
	allowAdminSignup bool
	now              func() time.Time
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo   repository.UserRepository
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	// Codes overrides the default code generator.
	Codes CodeIssuer
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	codes := deps.Codes
	if codes == nil {
		codes = auth.NewCodeGenerator(cfg.OTP.Validity())
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher()
	}
	return &AuthService{
		users:            deps.UserRepo,
		codes:            codes,
		tokenMgr:         auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL()),
		events:           dispatcher,
		metrics:          deps.Metrics,
		logger:           logger,
		allowAdminSignup: cfg.Auth.AllowAdminSignup,
		now:              time.Now,
	}
}

// WithClock replaces the time source used to check code expiry.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

// Register creates an unverified account and sends it a verification code.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	if err := s.validateRegistration(&in); err != nil {
		s.metrics.RecordAuth("register", "invalid")
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		s.metrics.RecordAuth("register", "duplicate")
		return nil, apperrors.ErrDuplicateUser
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewInternalError(fmt.Errorf("lookup user: %w", err))
	}

	code, err := s.codes.Generate()
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("generate otp: %w", err))
	}

	user := &domain.User{
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Email:       in.Email,
		PhoneNumber: in.PhoneNumber,
		Country:     in.Country,
		City:        in.City,
		Role:        in.Role,
	}
	user.SetPassword(in.Password)
	user.IssueVerificationCode(code)

	if err := s.users.Save(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateUser) {
			s.metrics.RecordAuth("register", "duplicate")
			return nil, apperrors.ErrDuplicateUser
		}
		return nil, apperrors.NewInternalError(fmt.Errorf("save user: %w", err))
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.Int64("external_id", user.ExternalID))
	s.publish(ctx, events.NewEvent(events.EventUserRegistered, user, events.UserRegisteredPayload{
		ExternalID: user.ExternalID,
		Role:       user.Role,
	}))
	s.publish(ctx, events.NewEvent(events.EventVerificationCodeIssued, user, codePayload(code)))

	s.metrics.RecordAuth("register", "success")
	return user, nil
}

// VerifyEmail consumes the verification code and marks the account verified.
func (s *AuthService) VerifyEmail(ctx context.Context, email, otp string) error {
	user, err := s.findByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.RecordAuth("verify_email", "unknown_email")
			return apperrors.ErrInvalidEmail
		}
		return err
	}

	if !user.VerificationCodeValid(otp, s.now()) {
		s.metrics.RecordAuth("verify_email", "invalid_otp")
		return apperrors.ErrInvalidOrExpiredOTP
	}

	user.MarkVerified()
	if err := s.users.Save(ctx, user); err != nil {
		return apperrors.NewInternalError(fmt.Errorf("save user: %w", err))
	}

	s.publish(ctx, events.NewEvent(events.EventEmailVerified, user, nil))
	s.metrics.RecordAuth("verify_email", "success")
	return nil
}

// Login authenticates a verified user and issues a session token. An unverified user gets
// a fresh verification code instead and ErrEmailNotVerified.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.findByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.RecordAuth("login", "invalid_credentials")
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsVerified {
		if err := s.reissueVerificationCode(ctx, user); err != nil {
			return nil, err
		}
		s.metrics.RecordAuth("login", "email_not_verified")
		return nil, apperrors.ErrEmailNotVerified
	}

	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		if auth.IsPasswordMismatch(err) {
			s.metrics.RecordAuth("login", "invalid_credentials")
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, apperrors.NewInternalError(fmt.Errorf("compare password: %w", err))
	}

	token, exp, err := s.tokenMgr.Issue(user.ID, user.Role)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("issue token: %w", err))
	}

	s.metrics.RecordAuth("login", "success")
	return &LoginResult{User: user, Token: token, ExpiresAt: exp}, nil
}

// RequestPasswordReset stores a reset code for a verified account and mails it.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.findByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.RecordAuth("request_password_reset", "unknown_email")
			return apperrors.ErrInvalidEmail
		}
		return err
	}

	if !user.IsVerified {
		if err := s.reissueVerificationCode(ctx, user); err != nil {
			return err
		}
		s.metrics.RecordAuth("request_password_reset", "email_not_verified")
		return apperrors.ErrEmailNotVerified
	}

	code, err := s.codes.Generate()
	if err != nil {
		return apperrors.NewInternalError(fmt.Errorf("generate otp: %w", err))
	}
	user.IssueResetCode(code)
	if err := s.users.Save(ctx, user); err != nil {
		return apperrors.NewInternalError(fmt.Errorf("save user: %w", err))
	}

	s.publish(ctx, events.NewEvent(events.EventPasswordResetRequested, user, codePayload(code)))
	s.metrics.RecordAuth("request_password_reset", "success")
	return nil
}

// VerifyPasswordResetOTP checks a reset code without consuming it.
func (s *AuthService) VerifyPasswordResetOTP(ctx context.Context, email, otp string) error {
	user, err := s.findByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrInvalidOrExpiredOTP
		}
		return err
	}
	if !user.ResetCodeValid(otp, s.now()) {
		s.metrics.RecordAuth("verify_password_reset_otp", "invalid_otp")
		return apperrors.ErrInvalidOrExpiredOTP
	}
	s.metrics.RecordAuth("verify_password_reset_otp", "success")
	return nil
}

// SetNewPassword replaces the password when the reset code is valid and consumes the code.
func (s *AuthService) SetNewPassword(ctx context.Context, email, otp, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return apperrors.NewValidationError("validation failed", map[string]any{
			"newPassword": fmt.Sprintf("must be at least %d characters", minPasswordLength),
		})
	}

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrInvalidOrExpiredOTP
		}
		return err
	}
	if !user.ResetCodeValid(otp, s.now()) {
		s.metrics.RecordAuth("set_new_password", "invalid_otp")
		return apperrors.ErrInvalidOrExpiredOTP
	}

	user.SetPassword(newPassword)
	user.ClearResetCode()
	if err := s.users.Save(ctx, user); err != nil {
		return apperrors.NewInternalError(fmt.Errorf("save user: %w", err))
	}

	s.publish(ctx, events.NewEvent(events.EventPasswordResetCompleted, user, nil))
	s.metrics.RecordAuth("set_new_password", "success")
	return nil
}

func (s *AuthService) reissueVerificationCode(ctx context.Context, user *domain.User) error {
	code, err := s.codes.Generate()
	if err != nil {
		return apperrors.NewInternalError(fmt.Errorf("generate otp: %w", err))
	}
	user.IssueVerificationCode(code)
	if err := s.users.Save(ctx, user); err != nil {
		return apperrors.NewInternalError(fmt.Errorf("save user: %w", err))
	}
	s.publish(ctx, events.NewEvent(events.EventVerificationCodeIssued, user, codePayload(code)))
	return nil
}

func (s *AuthService) findByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, apperrors.NewInternalError(fmt.Errorf("lookup user: %w", err))
	}
	return user, nil
}

// publish runs after the credential change is committed. Subscriber failures are logged only.
func (s *AuthService) publish(ctx context.Context, event events.Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error("event dispatch failed after commit",
			zap.String("event", string(event.Type)),
			zap.String("user_id", event.UserID),
			zap.Error(err))
	}
}

func (s *AuthService) validateRegistration(in *RegisterInput) error {
	in.Email = strings.TrimSpace(in.Email)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)

	details := map[string]any{}
	required := map[string]string{
		"first_name": in.FirstName,
		"last_name":  in.LastName,
		"email":      in.Email,
		"country":    in.Country,
		"city":       in.City,
	}
	for field, val := range required {
		if strings.TrimSpace(val) == "" {
			details[field] = "is required"
		}
	}
	if in.Email != "" && !validate.Email(in.Email) {
		details["email"] = "must be a valid email address"
	}
	if !domain.ValidPhoneNumber(in.PhoneNumber) {
		details["phone_number"] = in.PhoneNumber + " is not a valid phone number"
	}
	if len(in.Password) < minPasswordLength {
		details["password"] = fmt.Sprintf("must be at least %d characters", minPasswordLength)
	}

	switch {
	case in.Role == "":
		in.Role = domain.RoleUser
	case !in.Role.Valid():
		details["role"] = "must be one of: user admin"
	case in.Role == domain.RoleAdmin && !s.allowAdminSignup:
		details["role"] = "admin accounts cannot be self-registered"
	}

	if len(details) > 0 {
		return apperrors.NewValidationError("validation failed", details)
	}
	return nil
}

func codePayload(code domain.OneTimeCode) events.CodeIssuedPayload {
	return events.CodeIssuedPayload{Code: code.Value, ExpiresAt: code.ExpiresAt}
}
