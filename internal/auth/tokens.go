package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken indicates a token whose signature or expiry failed
	// verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenMismatch indicates a cryptographically valid refresh token that
	// has been superseded by a newer rotation.
	ErrTokenMismatch = errors.New("refresh token superseded")
	// ErrInvalidUserID is returned when attempting to issue a token without a
	// user identifier.
	ErrInvalidUserID = errors.New("userID is required")
)

const (
	// DefaultAccessTTL bounds how long a minted access token stays valid.
	DefaultAccessTTL = 15 * time.Minute
	// DefaultRefreshTTL bounds how long a minted refresh token stays valid.
	DefaultRefreshTTL = 10 * 24 * time.Hour
)

// TokenConfig carries the signing secrets and lifetimes for issued tokens.
// Access and refresh tokens are signed with distinct secrets so a leaked
// access secret cannot mint refresh tokens.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenOption configures a TokenService instance.
type TokenOption func(*TokenService)

// WithClock overrides the time source used for issuance and verification.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// TokenService mints and verifies the signed access and refresh tokens that
// drive session state. Tokens are stateless HMAC-signed claim sets; rotation
// bookkeeping lives on the stored user record, not in this service.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenService constructs a TokenService from the provided configuration.
// Both secrets are mandatory.
func NewTokenService(cfg TokenConfig, opts ...TokenOption) (*TokenService, error) {
	if cfg.AccessSecret == "" {
		return nil, fmt.Errorf("access token secret is required")
	}
	if cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("refresh token secret is required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, fmt.Errorf("access and refresh token secrets must differ")
	}
	service := &TokenService{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}
	if service.accessTTL <= 0 {
		service.accessTTL = DefaultAccessTTL
	}
	if service.refreshTTL <= 0 {
		service.refreshTTL = DefaultRefreshTTL
	}
	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}
	return service, nil
}

// IssueAccessToken signs a short-lived claim set for the provided user.
func (s *TokenService) IssueAccessToken(userID string) (string, time.Time, error) {
	return s.issue(userID, s.accessSecret, s.accessTTL)
}

// IssueRefreshToken signs a long-lived claim set for the provided user. The
// caller is responsible for persisting the returned token on the user record
// so earlier rotations can be rejected.
func (s *TokenService) IssueRefreshToken(userID string) (string, time.Time, error) {
	return s.issue(userID, s.refreshSecret, s.refreshTTL)
}

// VerifyAccessToken checks signature and expiry and returns the subject user ID.
func (s *TokenService) VerifyAccessToken(token string) (string, error) {
	return s.verify(token, s.accessSecret)
}

// VerifyRefreshToken checks signature and expiry and returns the subject user ID.
// Rotation (superseded-token) checks are the caller's responsibility because
// they require the currently stored token for the user.
func (s *TokenService) VerifyRefreshToken(token string) (string, error) {
	return s.verify(token, s.refreshSecret)
}

func (s *TokenService) issue(userID string, secret []byte, ttl time.Duration) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, ErrInvalidUserID
	}
	now := s.now().UTC()
	expiresAt := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		// iat/exp have second resolution, so a unique jti keeps tokens
		// minted within the same second distinct for rotation checks.
		ID:        uuid.NewString(),
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *TokenService) verify(token string, secret []byte) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
