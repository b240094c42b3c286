package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"clinic-portal-server/internal/apperr"
	"clinic-portal-server/internal/metrics"
	"clinic-portal-server/internal/models"
	"clinic-portal-server/internal/revocation"
	"clinic-portal-server/internal/store"
	"clinic-portal-server/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Context keys set by Authenticate.
const (
	ContextUserID    = "userID"
	ContextUserRole  = "userRole"
	ContextPrincipal = "principal"
	ContextClaims    = "tokenClaims"
)

// Auth resolves bearer tokens into live principals. Every request re-reads
// the user, so deactivation and role changes apply immediately rather than
// when the token expires.
type Auth struct {
	tokens   *utils.TokenService
	users    store.UserStore
	denylist revocation.Denylist
	metrics  *metrics.Metrics
}

// NewAuth builds the auth middleware. denylist and m may be nil.
func NewAuth(tokens *utils.TokenService, users store.UserStore, denylist revocation.Denylist, m *metrics.Metrics) *Auth {
	return &Auth{tokens: tokens, users: users, denylist: denylist, metrics: m}
}

// Authenticate rejects the request unless it carries a valid token for an
// existing, active user.
func (a *Auth) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, claims, err := a.resolve(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		attach(c, user, claims)
		c.Next()
	}
}

// OptionalAuthenticate attaches the principal when the request carries a
// usable token and otherwise lets the request through as anonymous.
func (a *Auth) OptionalAuthenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, claims, err := a.resolve(c)
		if err != nil {
			if _, expected := apperr.As(err); !expected {
				log.Warn().Err(err).
					Str("request_id", c.GetString(utils.RequestIDKey)).
					Msg("optional authentication failed, continuing anonymously")
			}
			c.Next()
			return
		}
		attach(c, user, claims)
		c.Next()
	}
}

func (a *Auth) resolve(c *gin.Context) (*models.User, *utils.Claims, error) {
	raw, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		return nil, nil, apperr.ErrMissingToken
	}

	claims, err := a.tokens.Verify(raw)
	if err != nil {
		return nil, nil, err
	}

	if a.revoked(c.Request.Context(), claims.ID) {
		return nil, nil, apperr.ErrInvalidToken
	}

	user, err := a.users.FindByID(c.Request.Context(), claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, apperr.ErrAccountNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load principal: %w", err)
	}
	if !user.IsActive {
		return nil, nil, apperr.ErrAccountDeactivated
	}
	return user, claims, nil
}

// revoked checks the denylist. A denylist outage is logged and treated as
// not revoked.
func (a *Auth) revoked(ctx context.Context, jti string) bool {
	if a.denylist == nil || jti == "" {
		return false
	}
	revoked, err := a.denylist.IsRevoked(ctx, jti)
	if err != nil {
		a.metrics.ObserveDenylistFailure()
		log.Warn().Err(err).Str("jti", jti).Msg("token denylist unavailable, failing open")
		return false
	}
	return revoked
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func attach(c *gin.Context, user *models.User, claims *utils.Claims) {
	c.Set(ContextUserID, user.ID)
	c.Set(ContextUserRole, user.Role)
	c.Set(ContextPrincipal, user)
	c.Set(ContextClaims, claims)
}

// GetUserIDFromContext returns the authenticated user id.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	id, ok := c.Get(ContextUserID)
	if !ok {
		return "", false
	}
	s, ok := id.(string)
	return s, ok
}

// GetUserRoleFromContext returns the authenticated user's live role.
func GetUserRoleFromContext(c *gin.Context) (models.Role, bool) {
	role, ok := c.Get(ContextUserRole)
	if !ok {
		return "", false
	}
	r, ok := role.(models.Role)
	return r, ok
}

// GetPrincipal returns the live user record attached by Authenticate.
func GetPrincipal(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(ContextPrincipal)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok
}

// GetClaims returns the verified claims of the request's token.
func GetClaims(c *gin.Context) (*utils.Claims, bool) {
	v, ok := c.Get(ContextClaims)
	if !ok {
		return nil, false
	}
	cl, ok := v.(*utils.Claims)
	return cl, ok
}
