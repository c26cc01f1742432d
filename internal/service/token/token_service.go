package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/verdantcart/storefront/internal/cache"
	"github.com/verdantcart/storefront/internal/tokens"
)

// ErrInvalidToken covers every terminal auth failure on the refresh path:
// bad signature, expiry, and a presented token that no longer matches the
// cached one (logout, or a newer login overwrote it).
var ErrInvalidToken = errors.New("invalid refresh token")

type Pair struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
}

// Service owns the access/refresh token lifecycle. The cache holds at most
// one live refresh token per user; presence of the entry is the only session
// state there is.
type Service struct {
	Cache         cache.Store
	AccessSecret  []byte
	RefreshSecret []byte
}

func sessionKey(userID uint) string {
	return fmt.Sprintf("refresh_token:%d", userID)
}

// IssuePair mints a 15-minute access token and a 7-day refresh token, each
// signed with its own secret.
func (s *Service) IssuePair(userID uint, role string) (*Pair, error) {
	accessExp := time.Now().Add(tokens.AccessTTL)
	access, err := tokens.SignAccessToken(userID, role, s.AccessSecret, accessExp)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshExp := time.Now().Add(tokens.RefreshTTL)
	refresh, err := tokens.SignRefreshToken(userID, s.RefreshSecret, refreshExp)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

// PersistRefresh overwrites the user's session entry unconditionally. A new
// login therefore revokes whatever token was stored before.
func (s *Service) PersistRefresh(ctx context.Context, userID uint, refreshToken string) error {
	return s.Cache.Set(ctx, sessionKey(userID), refreshToken, tokens.RefreshTTL)
}

// VerifyRefresh checks signature and expiry only.
func (s *Service) VerifyRefresh(refreshToken string) (uint, error) {
	claims, err := tokens.RefreshClaimsFromToken(refreshToken, s.RefreshSecret)
	if err != nil {
		return 0, ErrInvalidToken
	}
	userID, err := tokens.UserID(claims.Subject)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return userID, nil
}

// RotateAccess exchanges a refresh token for a fresh access token. The
// presented token must byte-equal the cached value; anything else means the
// session was revoked or superseded. The refresh token itself is not rotated.
func (s *Service) RotateAccess(ctx context.Context, refreshToken, role string) (string, time.Time, error) {
	userID, err := s.VerifyRefresh(refreshToken)
	if err != nil {
		return "", time.Time{}, err
	}

	stored, err := s.Cache.Get(ctx, sessionKey(userID))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return "", time.Time{}, ErrInvalidToken
		}
		return "", time.Time{}, fmt.Errorf("session lookup: %w", err)
	}
	if stored != refreshToken {
		return "", time.Time{}, ErrInvalidToken
	}

	accessExp := time.Now().Add(tokens.AccessTTL)
	access, err := tokens.SignAccessToken(userID, role, s.AccessSecret, accessExp)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return access, accessExp, nil
}

// Revoke drops the session entry. Missing entries are a no-op, so logout is
// always safe to call.
func (s *Service) Revoke(ctx context.Context, userID uint) error {
	return s.Cache.Del(ctx, sessionKey(userID))
}
