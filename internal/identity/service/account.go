package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
	"github.com/aussiebroadwan/propulse/internal/identity/mail"
	"github.com/aussiebroadwan/propulse/internal/identity/store"
	"github.com/aussiebroadwan/propulse/pkg/cryptox"
	"github.com/aussiebroadwan/propulse/pkg/idx"
	"github.com/aussiebroadwan/propulse/pkg/slogx"
	"github.com/pquerna/otp/totp"
)

const (
	DefaultMaxFailedAttempts = 5
	DefaultLockoutDuration   = 5 * time.Minute
	DefaultUserTokenTTL      = 24 * time.Hour
)

// AccountService implements the self-service account flows behind the
// /Account pages.
type AccountService struct {
	Store  store.Store
	Mailer mail.Sender

	// PublicURL prefixes the links put in emails.
	PublicURL               string
	RequireConfirmedAccount bool
	MaxFailedAttempts       int
	LockoutDuration         time.Duration
	UserTokenTTL            time.Duration
}

type RegisterInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	DisplayName     string
}

// RegisterResult tells the caller whether to sign the user in. User is nil
// when the email was already taken; that case must look like a success.
type RegisterResult struct {
	User   *domain.User
	SignIn bool
}

func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	l := slogx.FromContext(ctx)

	f := FormErrors{}
	validateEmail(f, "Email", in.Email)
	validatePassword(f, "Password", in.Password)
	validateConfirmPassword(f, "ConfirmPassword", in.Password, in.ConfirmPassword)
	validateDisplayName(f, "DisplayName", in.DisplayName)
	if err := f.OrNil(); err != nil {
		return nil, err
	}

	email := strings.TrimSpace(in.Email)
	if _, err := s.Store.Users().GetUserByEmail(ctx, domain.NormalizeEmail(email)); err == nil {
		l.Info("registration for existing email ignored")
		return &RegisterResult{}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := domain.User{
		ID:             idx.New().String(),
		Email:          email,
		Username:       email,
		DisplayName:    strings.TrimSpace(in.DisplayName),
		PasswordHash:   hash,
		SecurityStamp:  cryptox.MustGenerateToken(cryptox.TokenSize128),
		LockoutEnabled: true,
		Roles:          []string{domain.RoleUser},
	}
	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return &RegisterResult{}, nil
		}
		return nil, err
	}
	l.Info("user registered", slog.String("user_id", u.ID))

	if err := s.SendConfirmation(ctx, u); err != nil {
		return nil, err
	}
	return &RegisterResult{User: &u, SignIn: !s.RequireConfirmedAccount}, nil
}

// SendConfirmation emails a fresh confirmation link to u.
func (s *AccountService) SendConfirmation(ctx context.Context, u domain.User) error {
	token, err := s.newUserToken(ctx, u.ID, domain.PurposeConfirmEmail)
	if err != nil {
		return err
	}
	return s.Mailer.SendConfirmationLink(ctx, u.Email, s.link("/Account/ConfirmEmail", u.ID, token))
}

// ConfirmEmail consumes a confirmation code. ErrUnknownUser and
// ErrInvalidUserToken are the expected failures; the latter still returns
// the user so the caller can offer a fresh link.
func (s *AccountService) ConfirmEmail(ctx context.Context, userID, code string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUnknownUser
		}
		return domain.User{}, err
	}
	if err := s.consumeUserToken(ctx, u.ID, domain.PurposeConfirmEmail, code); err != nil {
		if errors.Is(err, ErrInvalidUserToken) {
			return u, err
		}
		return domain.User{}, err
	}
	if err := s.Store.Users().ConfirmEmail(ctx, u.ID); err != nil {
		return domain.User{}, err
	}
	u.EmailConfirmed = true
	return u, nil
}

// ResendConfirmation reports whether an email went out. Confirmed accounts
// get nothing.
func (s *AccountService) ResendConfirmation(ctx context.Context, email string) (bool, error) {
	u, err := s.Store.Users().GetUserByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, ErrUnknownEmail
		}
		return false, err
	}
	if u.EmailConfirmed {
		return false, nil
	}
	return true, s.SendConfirmation(ctx, u)
}

type LoginInput struct {
	Email    string
	Password string
	Code     string // TOTP, only when two factor is enabled
}

// Login checks credentials and applies lockout. The expected failures are
// ErrInvalidLogin, ErrLockedOut and ErrTwoFactorRequired.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (domain.User, error) {
	l := slogx.FromContext(ctx)
	now := time.Now()

	u, err := s.Store.Users().GetUserByEmail(ctx, domain.NormalizeEmail(in.Email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrInvalidLogin
		}
		return domain.User{}, err
	}

	if s.RequireConfirmedAccount && !u.EmailConfirmed {
		return domain.User{}, ErrInvalidLogin
	}
	if u.IsLockedOut(now) {
		l.Info("login attempt on locked out account", slog.String("user_id", u.ID))
		return domain.User{}, ErrLockedOut
	}

	if u.PasswordHash == "" || cryptox.VerifyPassword(in.Password, u.PasswordHash) != nil {
		return domain.User{}, s.recordFailure(ctx, u, now)
	}

	if u.HasTwoFactor() {
		code := strings.TrimSpace(in.Code)
		if code == "" {
			return domain.User{}, ErrTwoFactorRequired
		}
		if !totp.Validate(code, *u.TOTPSecret) {
			return domain.User{}, s.recordFailure(ctx, u, now)
		}
	}

	if u.AccessFailedCount > 0 || u.LockoutEnd != nil {
		if err := s.Store.Users().SetAccessFailed(ctx, u.ID, 0, nil); err != nil {
			return domain.User{}, err
		}
		u.AccessFailedCount = 0
		u.LockoutEnd = nil
	}
	l.Info("user signed in", slog.String("user_id", u.ID))
	return u, nil
}

// recordFailure counts a failed attempt and locks the account once the
// limit is reached. The counter restarts after a lock.
func (s *AccountService) recordFailure(ctx context.Context, u domain.User, now time.Time) error {
	if !u.LockoutEnabled {
		return ErrInvalidLogin
	}

	limit := s.MaxFailedAttempts
	if limit <= 0 {
		limit = DefaultMaxFailedAttempts
	}
	duration := s.LockoutDuration
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}

	count := u.AccessFailedCount + 1
	if count >= limit {
		end := now.Add(duration)
		if err := s.Store.Users().SetAccessFailed(ctx, u.ID, 0, &end); err != nil {
			return err
		}
		slogx.FromContext(ctx).Warn("account locked out",
			slog.String("user_id", u.ID), slog.Time("until", end))
		return ErrLockedOut
	}
	if err := s.Store.Users().SetAccessFailed(ctx, u.ID, count, u.LockoutEnd); err != nil {
		return err
	}
	return ErrInvalidLogin
}

// ForgotPassword emails a reset link when the account exists and is
// confirmed. The outcome is deliberately invisible to the caller.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.Store.Users().GetUserByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if !u.EmailConfirmed {
		return nil
	}

	token, err := s.newUserToken(ctx, u.ID, domain.PurposeResetPassword)
	if err != nil {
		return err
	}
	return s.Mailer.SendPasswordResetLink(ctx, u.Email, s.link("/Account/ResetPassword", u.ID, token))
}

type ResetPasswordInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	Code            string
}

// ResetPassword sets a new password from a reset code, rotates the security
// stamp, clears lockout and revokes refresh tokens.
func (s *AccountService) ResetPassword(ctx context.Context, in ResetPasswordInput) (domain.User, error) {
	f := FormErrors{}
	validateEmail(f, "Email", in.Email)
	validatePassword(f, "Password", in.Password)
	validateConfirmPassword(f, "ConfirmPassword", in.Password, in.ConfirmPassword)
	if in.Code == "" {
		f.Add("Code", "The Code field is required.")
	}
	if err := f.OrNil(); err != nil {
		return domain.User{}, err
	}

	u, err := s.Store.Users().GetUserByEmail(ctx, domain.NormalizeEmail(in.Email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUnknownEmail
		}
		return domain.User{}, err
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, err
	}
	if err := s.consumeUserToken(ctx, u.ID, domain.PurposeResetPassword, in.Code); err != nil {
		return domain.User{}, err
	}

	stamp := cryptox.MustGenerateToken(cryptox.TokenSize128)
	if err := s.Store.Users().UpdatePassword(ctx, u.ID, hash, stamp); err != nil {
		return domain.User{}, err
	}
	if err := s.Store.RefreshTokens().RevokeAllUserRefreshTokens(ctx, u.ID); err != nil {
		return domain.User{}, err
	}

	u.PasswordHash = hash
	u.SecurityStamp = stamp
	u.AccessFailedCount = 0
	u.LockoutEnd = nil
	return u, nil
}

func (s *AccountService) newUserToken(ctx context.Context, userID, purpose string) (string, error) {
	raw, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}
	ttl := s.UserTokenTTL
	if ttl <= 0 {
		ttl = DefaultUserTokenTTL
	}

	now := time.Now()
	if err := s.Store.UserTokens().CreateUserToken(ctx, domain.UserToken{
		ID:        idx.New().String(),
		TokenHash: cryptox.FingerprintToken(raw),
		UserID:    userID,
		Purpose:   purpose,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}); err != nil {
		return "", fmt.Errorf("store %s token: %w", purpose, err)
	}
	return EncodeToken(raw), nil
}

func (s *AccountService) consumeUserToken(ctx context.Context, userID, purpose, code string) error {
	raw, err := DecodeToken(code)
	if err != nil {
		return ErrInvalidUserToken
	}
	err = s.Store.UserTokens().ConsumeUserToken(ctx, userID, purpose, cryptox.FingerprintToken(raw), time.Now())
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidUserToken
	}
	return err
}

func (s *AccountService) link(path, userID, code string) string {
	q := url.Values{}
	q.Set("userId", userID)
	q.Set("code", code)
	return strings.TrimRight(s.PublicURL, "/") + path + "?" + q.Encode()
}

// EncodeToken wraps a raw account token for use in a URL.
func EncodeToken(raw string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeToken(code string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(code))
	if err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if len(b) == 0 {
		return "", errors.New("decode token: empty")
	}
	return string(b), nil
}
