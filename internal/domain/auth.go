package domain

import (
	"crypto/subtle"
	"time"
)

// OneTimeCode is a numeric code delivered out-of-band together with its expiry.
type OneTimeCode struct {
	Value     string
	ExpiresAt time.Time
}

// OTPMatches reports whether supplied equals the stored code and now is strictly before expiry.
// A missing stored code or expiry never matches.
func OTPMatches(stored *string, expires *time.Time, supplied string, now time.Time) bool {
	if stored == nil || expires == nil || supplied == "" {
		return false
	}
	if !now.Before(*expires) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*stored), []byte(supplied)) == 1
}
