package utils

import (
	"errors"
	"fmt"
	"time"

	"clinic-portal-server/internal/apperr"
	"clinic-portal-server/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultAccessTTL is the lifetime of an access token when none is configured.
const DefaultAccessTTL = 7 * 24 * time.Hour

// Claims represents the JWT claims.
type Claims struct {
	UserID string      `json:"userId"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies bearer tokens. Access and refresh tokens use
// different secrets, so one can never be presented as the other.
type TokenService struct {
	secret        []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenService builds a TokenService. Non-positive lifetimes fall back to
// seven days for access tokens and thirty for refresh tokens.
func NewTokenService(secret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &TokenService{
		secret:        []byte(secret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// RefreshTTL returns the refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// Issue signs an access token for the given principal.
func (s *TokenService) Issue(userID string, role models.Role) (string, error) {
	token, _, err := s.sign(userID, role, s.accessTTL, s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return token, nil
}

// IssueRefresh signs a refresh token and returns it with its expiry.
func (s *TokenService) IssueRefresh(userID string, role models.Role) (string, time.Time, error) {
	token, exp, err := s.sign(userID, role, s.refreshTTL, s.refreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return token, exp, nil
}

// Verify checks an access token and returns its claims. Every failure is
// reported as apperr.ErrInvalidToken.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	return s.parse(tokenString, s.secret)
}

// VerifyRefresh checks a refresh token.
func (s *TokenService) VerifyRefresh(tokenString string) (*Claims, error) {
	return s.parse(tokenString, s.refreshSecret)
}

func (s *TokenService) sign(userID string, role models.Role, ttl time.Duration, key []byte) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(ttl)
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (s *TokenService) parse(tokenString string, key []byte) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, apperr.ErrInvalidToken.Wrap(err)
	}

	if claims.UserID == "" {
		return nil, apperr.ErrInvalidToken.Wrap(errors.New("token has no user id"))
	}
	if !claims.Role.Valid() {
		return nil, apperr.ErrInvalidToken.Wrap(fmt.Errorf("token carries unknown role %q", claims.Role))
	}

	return claims, nil
}
