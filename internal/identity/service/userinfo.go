package service

import (
	"context"
	"errors"
	"strconv"

	"github.com/aussiebroadwan/propulse/internal/identity/store"
	"github.com/aussiebroadwan/propulse/pkg/authsdk"
	"github.com/aussiebroadwan/propulse/pkg/jwtx"
)

type UserInfoService struct {
	Store store.Store
}

// GetUserInfo returns the current claims of the token subject, or
// ErrAccountGone when the account was deleted after the token was issued.
func (s *UserInfoService) GetUserInfo(ctx context.Context, subject string) (*authsdk.UserInfoResponse, error) {
	if subject == "" {
		return nil, ErrAccountGone
	}
	u, err := s.Store.Users().GetUserByID(ctx, subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAccountGone
		}
		return nil, err
	}

	return &authsdk.UserInfoResponse{
		Subject:       u.ID,
		Name:          u.DisplayName,
		Email:         u.Email,
		EmailVerified: strconv.FormatBool(u.EmailConfirmed),
		Role:          jwtx.StringList(u.Roles),
	}, nil
}
