package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/propulse/internal/identity/store"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var (
	ErrInvalidTOTPCode         = errors.New("invalid TOTP code")
	ErrTwoFactorNotEnrolled    = errors.New("two factor not enrolled")
	ErrTwoFactorAlreadyEnabled = errors.New("two factor already enabled")
)

type TwoFactorService struct {
	Store  store.Store
	Issuer string // shown by authenticator apps
}

// Enrollment is what the TwoFactor page shows while enrolment is pending.
type Enrollment struct {
	Secret  string
	URL     string // otpauth:// URI for the QR code
	Account string
}

// Enroll stores a new unverified secret, replacing any pending one. Two
// factor is not enforced until Verify succeeds.
func (s *TwoFactorService) Enroll(ctx context.Context, userID string) (Enrollment, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return Enrollment{}, fmt.Errorf("get user: %w", err)
	}
	if u.HasTwoFactor() {
		return Enrollment{}, ErrTwoFactorAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: u.Email,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Enrollment{}, fmt.Errorf("generate TOTP key: %w", err)
	}

	secret := key.Secret()
	if err := s.Store.Users().UpdateTwoFactor(ctx, userID, &secret, nil); err != nil {
		return Enrollment{}, fmt.Errorf("store TOTP secret: %w", err)
	}
	return Enrollment{Secret: secret, URL: key.URL(), Account: u.Email}, nil
}

// Verify checks code against the pending secret and enables two factor.
func (s *TwoFactorService) Verify(ctx context.Context, userID, code string) error {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if u.TOTPSecret == nil || *u.TOTPSecret == "" {
		return ErrTwoFactorNotEnrolled
	}
	if u.TwoFactorEnabled != nil {
		return ErrTwoFactorAlreadyEnabled
	}
	if !totp.Validate(code, *u.TOTPSecret) {
		return ErrInvalidTOTPCode
	}

	now := time.Now()
	return s.Store.Users().UpdateTwoFactor(ctx, userID, u.TOTPSecret, &now)
}

// Disable clears the secret after checking a current code.
func (s *TwoFactorService) Disable(ctx context.Context, userID, code string) error {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if !u.HasTwoFactor() {
		return ErrTwoFactorNotEnrolled
	}
	if !totp.Validate(code, *u.TOTPSecret) {
		return ErrInvalidTOTPCode
	}
	return s.Store.Users().UpdateTwoFactor(ctx, userID, nil, nil)
}
