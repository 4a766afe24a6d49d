package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vacvault/vacvault-api/internal/domain"
	"github.com/vacvault/vacvault-api/internal/events"
	"github.com/vacvault/vacvault-api/internal/observability"
	apperrors "github.com/vacvault/vacvault-api/pkg/util/errorutil"
)

const (
	testEmail    = "a@x.com"
	testPassword = "s3cret-pw"
)

type authFixture struct {
	svc     *AuthService
	repo    *memUserRepo
	inbox   *inbox
	events  events.Dispatcher
	metrics *observability.Metrics
}

func newAuthFixture(t *testing.T, opts ...func(*AuthDependencies)) *authFixture {
	t.Helper()
	repo := newMemUserRepo()
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics("test")
	deps := AuthDependencies{
		UserRepo:   repo,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return &authFixture{
		svc:     NewAuthService(testConfig(), deps),
		repo:    repo,
		inbox:   newInbox(dispatcher),
		events:  dispatcher,
		metrics: metrics,
	}
}

func withCodes(c CodeIssuer) func(*AuthDependencies) {
	return func(d *AuthDependencies) { d.Codes = c }
}

func validRegistration(email string) RegisterInput {
	return RegisterInput{
		FirstName:   "Amaka",
		LastName:    "Eze",
		Email:       email,
		PhoneNumber: "+2348012345678",
		Password:    testPassword,
		Country:     "Nigeria",
		City:        "Enugu",
	}
}

func (f *authFixture) registerAndVerify(t *testing.T, email string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.Register(ctx, validRegistration(email))
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifyEmail(ctx, email, f.inbox.last(events.EventVerificationCodeIssued, email)))
}

func TestAuthService_Register(t *testing.T) {
	f := newAuthFixture(t)

	user, err := f.svc.Register(context.Background(), validRegistration(testEmail))

	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, domain.RoleUser, user.Role)
	assert.False(t, user.IsVerified)
	assert.NotEqual(t, testPassword, user.PasswordHash)

	stored := f.repo.stored(testEmail)
	require.NotNil(t, stored.EmailVerificationOTP)
	require.NotNil(t, stored.EmailVerificationExpires)
	assert.Equal(t, *stored.EmailVerificationOTP, f.inbox.last(events.EventVerificationCodeIssued, testEmail))
	assert.WithinDuration(t, time.Now().Add(time.Hour), *stored.EmailVerificationExpires, time.Minute)
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, validRegistration(testEmail))
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, validRegistration(testEmail))

	assert.ErrorIs(t, err, apperrors.ErrDuplicateUser)
	assert.Equal(t, 1, f.repo.count())
	assert.Len(t, f.inbox.all(events.EventVerificationCodeIssued, testEmail), 1)
}

func TestAuthService_Register_Validation(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(*RegisterInput)
		field string
	}{
		{"bad phone", func(in *RegisterInput) { in.PhoneNumber = "08012345678" }, "phone_number"},
		{"short password", func(in *RegisterInput) { in.Password = "12345" }, "password"},
		{"bad email", func(in *RegisterInput) { in.Email = "not-an-email" }, "email"},
		{"missing city", func(in *RegisterInput) { in.City = "" }, "city"},
		{"unknown role", func(in *RegisterInput) { in.Role = "owner" }, "role"},
		{"admin self signup", func(in *RegisterInput) { in.Role = domain.RoleAdmin }, "role"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newAuthFixture(t)
			in := validRegistration(testEmail)
			tc.edit(&in)

			_, err := f.svc.Register(context.Background(), in)

			var de *apperrors.DomainError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, apperrors.CodeValidationFailed, de.Code)
			assert.Contains(t, de.Details, tc.field)
			assert.Zero(t, f.repo.count())
		})
	}
}

func TestAuthService_Register_AdminAllowedByConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.AllowAdminSignup = true
	svc := NewAuthService(cfg, AuthDependencies{UserRepo: newMemUserRepo()})
	in := validRegistration(testEmail)
	in.Role = domain.RoleAdmin

	user, err := svc.Register(context.Background(), in)

	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, user.Role)
}

func TestAuthService_Register_SubscriberFailureDoesNotFailRequest(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	f := newAuthFixture(t, func(d *AuthDependencies) { d.Logger = zap.New(core) })
	f.events.Subscribe(events.EventVerificationCodeIssued, func(context.Context, events.Event) error {
		return errors.New("smtp down")
	})

	_, err := f.svc.Register(context.Background(), validRegistration(testEmail))

	require.NoError(t, err)
	assert.Equal(t, 1, f.repo.count())
	assert.Equal(t, 1, logs.FilterMessage("event dispatch failed after commit").Len())
}

func TestAuthService_LoginBeforeVerification(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, validRegistration(testEmail))
	require.NoError(t, err)

	res, err := f.svc.Login(ctx, testEmail, testPassword)

	assert.ErrorIs(t, err, apperrors.ErrEmailNotVerified)
	assert.Nil(t, res)
}

func TestAuthService_LoginUnverifiedRotatesCode(t *testing.T) {
	f := newAuthFixture(t, withCodes(&seqCodes{}))
	ctx := context.Background()
	_, err := f.svc.Register(ctx, validRegistration(testEmail))
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, testEmail, testPassword)
	require.ErrorIs(t, err, apperrors.ErrEmailNotVerified)
	_, err = f.svc.Login(ctx, testEmail, "wrong-password")
	require.ErrorIs(t, err, apperrors.ErrEmailNotVerified)

	codes := f.inbox.all(events.EventVerificationCodeIssued, testEmail)
	require.Equal(t, []string{"100001", "100002", "100003"}, codes)

	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, testEmail, "100001"), apperrors.ErrInvalidOrExpiredOTP)
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, testEmail, "100002"), apperrors.ErrInvalidOrExpiredOTP)
	assert.NoError(t, f.svc.VerifyEmail(ctx, testEmail, "100003"))
}

func TestAuthService_VerifyEmail(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, validRegistration(testEmail))
	require.NoError(t, err)
	code := f.inbox.last(events.EventVerificationCodeIssued, testEmail)

	require.NoError(t, f.svc.VerifyEmail(ctx, testEmail, code))

	stored := f.repo.stored(testEmail)
	assert.True(t, stored.IsVerified)
	assert.Nil(t, stored.EmailVerificationOTP)
	assert.Nil(t, stored.EmailVerificationExpires)
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, testEmail, code), apperrors.ErrInvalidOrExpiredOTP)
}

func TestAuthService_VerifyEmail_ExpiredAndWrongCodeLookAlike(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, validRegistration(testEmail))
	require.NoError(t, err)
	code := f.inbox.last(events.EventVerificationCodeIssued, testEmail)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	wrongErr := f.svc.VerifyEmail(ctx, testEmail, wrong)

	f.svc.WithClock(func() time.Time { return time.Now().Add(2 * time.Hour) })
	expiredErr := f.svc.VerifyEmail(ctx, testEmail, code)

	require.ErrorIs(t, wrongErr, apperrors.ErrInvalidOrExpiredOTP)
	require.ErrorIs(t, expiredErr, apperrors.ErrInvalidOrExpiredOTP)
	assert.Equal(t, wrongErr.Error(), expiredErr.Error())
	assert.False(t, f.repo.stored(testEmail).IsVerified)
}

func TestAuthService_VerifyEmail_UnknownEmail(t *testing.T) {
	f := newAuthFixture(t)

	err := f.svc.VerifyEmail(context.Background(), "ghost@x.com", "123456")

	assert.ErrorIs(t, err, apperrors.ErrInvalidEmail)
}

func TestAuthService_Login(t *testing.T) {
	f := newAuthFixture(t)
	f.registerAndVerify(t, testEmail)
	ctx := context.Background()

	t.Run("wrong password", func(t *testing.T) {
		_, err := f.svc.Login(ctx, testEmail, "nope-nope")
		assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})
	t.Run("unknown email", func(t *testing.T) {
		_, err := f.svc.Login(ctx, "ghost@x.com", testPassword)
		assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})
	t.Run("success", func(t *testing.T) {
		res, err := f.svc.Login(ctx, testEmail, testPassword)
		require.NoError(t, err)
		assert.NotEmpty(t, res.Token)
		assert.WithinDuration(t, time.Now().Add(time.Hour), res.ExpiresAt, time.Minute)
	})
}

func TestAuthService_PasswordReset(t *testing.T) {
	f := newAuthFixture(t)
	f.registerAndVerify(t, testEmail)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestPasswordReset(ctx, testEmail))
	code := f.inbox.last(events.EventPasswordResetRequested, testEmail)
	require.NotEmpty(t, code)

	// checking the code leaves it usable
	require.NoError(t, f.svc.VerifyPasswordResetOTP(ctx, testEmail, code))
	require.NoError(t, f.svc.VerifyPasswordResetOTP(ctx, testEmail, code))

	require.NoError(t, f.svc.SetNewPassword(ctx, testEmail, code, "brand-new-pw"))

	_, err := f.svc.Login(ctx, testEmail, testPassword)
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	res, err := f.svc.Login(ctx, testEmail, "brand-new-pw")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)

	stored := f.repo.stored(testEmail)
	assert.Nil(t, stored.ResetPasswordOTP)
	assert.Nil(t, stored.ResetPasswordExpires)
	assert.ErrorIs(t, f.svc.SetNewPassword(ctx, testEmail, code, "another-pw"), apperrors.ErrInvalidOrExpiredOTP)
}

func TestAuthService_PasswordReset_InvalidCodes(t *testing.T) {
	f := newAuthFixture(t, withCodes(&seqCodes{}))
	f.registerAndVerify(t, testEmail)
	ctx := context.Background()
	require.NoError(t, f.svc.RequestPasswordReset(ctx, testEmail))
	code := f.inbox.last(events.EventPasswordResetRequested, testEmail)

	assert.ErrorIs(t, f.svc.VerifyPasswordResetOTP(ctx, testEmail, "999999"), apperrors.ErrInvalidOrExpiredOTP)
	assert.ErrorIs(t, f.svc.SetNewPassword(ctx, testEmail, "999999", "brand-new-pw"), apperrors.ErrInvalidOrExpiredOTP)
	assert.ErrorIs(t, f.svc.VerifyPasswordResetOTP(ctx, "ghost@x.com", code), apperrors.ErrInvalidOrExpiredOTP)

	f.svc.WithClock(func() time.Time { return time.Now().Add(2 * time.Hour) })
	assert.ErrorIs(t, f.svc.VerifyPasswordResetOTP(ctx, testEmail, code), apperrors.ErrInvalidOrExpiredOTP)
	assert.ErrorIs(t, f.svc.SetNewPassword(ctx, testEmail, code, "brand-new-pw"), apperrors.ErrInvalidOrExpiredOTP)
}

func TestAuthService_SetNewPassword_TooShort(t *testing.T) {
	f := newAuthFixture(t)
	f.registerAndVerify(t, testEmail)
	ctx := context.Background()
	require.NoError(t, f.svc.RequestPasswordReset(ctx, testEmail))
	code := f.inbox.last(events.EventPasswordResetRequested, testEmail)

	err := f.svc.SetNewPassword(ctx, testEmail, code, "123")

	var de *apperrors.DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, apperrors.CodeValidationFailed, de.Code)
	assert.NotNil(t, f.repo.stored(testEmail).ResetPasswordOTP)
}

func TestAuthService_RequestPasswordReset(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	t.Run("unknown email", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.RequestPasswordReset(ctx, "ghost@x.com"), apperrors.ErrInvalidEmail)
	})

	t.Run("unverified account gets a new verification code", func(t *testing.T) {
		_, err := f.svc.Register(ctx, validRegistration(testEmail))
		require.NoError(t, err)

		err = f.svc.RequestPasswordReset(ctx, testEmail)

		assert.ErrorIs(t, err, apperrors.ErrEmailNotVerified)
		assert.Len(t, f.inbox.all(events.EventVerificationCodeIssued, testEmail), 2)
		assert.Empty(t, f.inbox.all(events.EventPasswordResetRequested, testEmail))
		assert.Nil(t, f.repo.stored(testEmail).ResetPasswordOTP)
	})
}

func TestAuthService_EndToEnd(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, validRegistration(testEmail))
	require.NoError(t, err)
	otp := f.inbox.last(events.EventVerificationCodeIssued, testEmail)
	require.Len(t, otp, 6)

	require.NoError(t, f.svc.VerifyEmail(ctx, testEmail, otp))
	res, err := f.svc.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)

	claims, err := f.svc.TokenManager().Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, claims.Role)
	assert.Equal(t, f.repo.stored(testEmail).ID, claims.UserID)
}
