package auth

import (
	"crypto/rand"
	"io"
	"math/big"
	"strconv"
	"time"

	"github.com/vacvault/vacvault-api/internal/domain"
)

const (
	otpMin = 100000
	otpMax = 999999

	// DefaultOTPValidity is used when no validity window is configured.
	DefaultOTPValidity = time.Hour
)

// CodeGenerator issues 6-digit one-time codes drawn uniformly from [100000, 999999].
type CodeGenerator struct {
	validity time.Duration
	random   io.Reader
	now      func() time.Time
}

// NewCodeGenerator builds a generator whose codes expire after validity.
func NewCodeGenerator(validity time.Duration) *CodeGenerator {
	if validity <= 0 {
		validity = DefaultOTPValidity
	}
	return &CodeGenerator{validity: validity, random: rand.Reader, now: time.Now}
}

// Generate returns a new code and its expiry.
func (g *CodeGenerator) Generate() (domain.OneTimeCode, error) {
	n, err := rand.Int(g.random, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return domain.OneTimeCode{}, err
	}
	return domain.OneTimeCode{
		Value:     strconv.FormatInt(n.Int64()+otpMin, 10),
		ExpiresAt: g.now().Add(g.validity),
	}, nil
}

// Validity returns the configured lifetime of issued codes.
func (g *CodeGenerator) Validity() time.Duration {
	return g.validity
}
