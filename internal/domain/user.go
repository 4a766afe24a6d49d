package domain

import (
	"regexp"
	"time"
)

// Role is the coarse authorization tag carried by users and their tokens.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

var phonePattern = regexp.MustCompile(`^\+\d{1,3}\d{10}$`)

// ValidPhoneNumber reports whether phone matches +<1-3 digit country code><10 digits>.
func ValidPhoneNumber(phone string) bool {
	return phonePattern.MatchString(phone)
}

// User is a marketplace account together with its verification and reset state.
type User struct {
	ID           string
	ExternalID   int64
	FirstName    string
	LastName     string
	Email        string
	PhoneNumber  string
	Country      string
	City         string
	PasswordHash string
	Role         Role

	IsVerified               bool
	EmailVerificationOTP     *string
	EmailVerificationExpires *time.Time
	ResetPasswordOTP         *string
	ResetPasswordExpires     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	// plaintext staged by SetPassword, hashed and cleared by the store on save
	pendingPassword *string
}

// SetPassword stages a new plaintext password. The store hashes it when the user is saved.
func (u *User) SetPassword(plain string) {
	u.pendingPassword = &plain
}

// PendingPassword returns the staged plaintext password, if any.
func (u *User) PendingPassword() (string, bool) {
	if u.pendingPassword == nil {
		return "", false
	}
	return *u.pendingPassword, true
}

// ApplyPasswordHash replaces the stored hash and drops the staged plaintext.
func (u *User) ApplyPasswordHash(hash string) {
	u.PasswordHash = hash
	u.pendingPassword = nil
}

// IssueVerificationCode stores a fresh email verification code.
func (u *User) IssueVerificationCode(code OneTimeCode) {
	u.EmailVerificationOTP = &code.Value
	u.EmailVerificationExpires = &code.ExpiresAt
}

// MarkVerified flags the email as verified and consumes the verification code.
func (u *User) MarkVerified() {
	u.IsVerified = true
	u.EmailVerificationOTP = nil
	u.EmailVerificationExpires = nil
}

// IssueResetCode stores a fresh password reset code.
func (u *User) IssueResetCode(code OneTimeCode) {
	u.ResetPasswordOTP = &code.Value
	u.ResetPasswordExpires = &code.ExpiresAt
}

// ClearResetCode consumes the password reset code.
func (u *User) ClearResetCode() {
	u.ResetPasswordOTP = nil
	u.ResetPasswordExpires = nil
}

// VerificationCodeValid reports whether otp is the current, unexpired verification code.
func (u *User) VerificationCodeValid(otp string, now time.Time) bool {
	return OTPMatches(u.EmailVerificationOTP, u.EmailVerificationExpires, otp, now)
}

// ResetCodeValid reports whether otp is the current, unexpired reset code.
func (u *User) ResetCodeValid(otp string, now time.Time) bool {
	return OTPMatches(u.ResetPasswordOTP, u.ResetPasswordExpires, otp, now)
}
