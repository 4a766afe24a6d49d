package errorutil

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes returned to API callers.
const (
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeDuplicateUser       = "DUPLICATE_USER"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeEmailNotVerified    = "EMAIL_NOT_VERIFIED"
	CodeInvalidOrExpiredOTP = "INVALID_OR_EXPIRED_OTP"
	CodeInvalidEmail        = "INVALID_EMAIL"
	CodeMissingToken        = "MISSING_TOKEN"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeInternal            = "INTERNAL_ERROR"
)

// Shared failures of the authentication workflow. Compare with errors.Is.
var (
	ErrDuplicateUser       = NewDomainError(CodeDuplicateUser, "user already exists", http.StatusBadRequest, nil)
	ErrInvalidCredentials  = NewDomainError(CodeInvalidCredentials, "invalid credentials", http.StatusBadRequest, nil)
	ErrEmailNotVerified    = NewDomainError(CodeEmailNotVerified, "email not verified, a new OTP has been sent", http.StatusBadRequest, nil)
	ErrInvalidOrExpiredOTP = NewDomainError(CodeInvalidOrExpiredOTP, "invalid or expired OTP", http.StatusBadRequest, nil)
	ErrInvalidEmail        = NewDomainError(CodeInvalidEmail, "invalid email", http.StatusBadRequest, nil)
	ErrMissingToken        = NewDomainError(CodeMissingToken, "no token, authorization denied", http.StatusUnauthorized, nil)
	ErrInvalidToken        = NewDomainError(CodeInvalidToken, "invalid token, authorization denied", http.StatusUnauthorized, nil)
	ErrTokenExpired        = NewDomainError(CodeTokenExpired, "token expired", http.StatusUnauthorized, nil)
	ErrForbidden           = NewDomainError(CodeForbidden, "access denied", http.StatusForbidden, nil)
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError carrying the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}
