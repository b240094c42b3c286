package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"clinic-portal-server/internal/apperr"
	"clinic-portal-server/internal/config"
	"clinic-portal-server/internal/middleware"
	"clinic-portal-server/internal/models"
	"clinic-portal-server/internal/revocation"
	"clinic-portal-server/internal/store"
	"clinic-portal-server/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const refreshCookie = "refresh_token"

// AuthHandler handles authentication-related requests.
type AuthHandler struct {
	users    store.UserStore
	refresh  store.RefreshTokenStore
	tokens   *utils.TokenService
	denylist revocation.Denylist
	cfg      *config.Config
	now      func() time.Time
}

// NewAuthHandler creates a new AuthHandler. denylist may be nil, in which
// case logout only revokes the refresh token.
func NewAuthHandler(users store.UserStore, refresh store.RefreshTokenStore, tokens *utils.TokenService, denylist revocation.Denylist, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		users:    users,
		refresh:  refresh,
		tokens:   tokens,
		denylist: denylist,
		cfg:      cfg,
		now:      time.Now,
	}
}

// RegisterRequest represents the request body for user registration.
type RegisterRequest struct {
	FirstName      string `json:"firstName" binding:"required"`
	LastName       string `json:"lastName" binding:"required"`
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password" binding:"required,min=8"`
	Role           string `json:"role" binding:"omitempty,role"`
	PhoneNumber    string `json:"phoneNumber"`
	Specialization string `json:"specialization"`
}

// Register handles self-registration. Patients are usable at once; clinical
// roles wait for an admin to verify them. Admin accounts are only created by
// other admins.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	role := models.RolePatient
	if req.Role != "" {
		role, _ = models.ParseRole(req.Role)
	}
	if role == models.RoleAdmin {
		utils.RespondError(c, apperr.Invalid("Admin accounts cannot be self-registered"))
		return
	}

	user := models.User{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       normalizeEmail(req.Email),
		Role:        role,
		IsActive:    true,
		IsVerified:  !role.RequiresApproval(),
		PhoneNumber: req.PhoneNumber,
	}
	if role == models.RoleDoctor {
		user.Specialization = req.Specialization
	}
	if err := user.SetPassword(req.Password); err != nil {
		utils.RespondError(c, fmt.Errorf("hash password: %w", err))
		return
	}

	if err := h.users.Create(c.Request.Context(), &user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			utils.RespondError(c, apperr.ErrConflict.WithMessage("User with this email already exists"))
			return
		}
		utils.RespondError(c, fmt.Errorf("create user: %w", err))
		return
	}

	log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("user registered")
	utils.Created(c, "User registered successfully", user.Sanitize())
}

// LoginRequest represents the request body for user login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the response body for successful login.
type LoginResponse struct {
	AccessToken  string               `json:"accessToken"`
	RefreshToken string               `json:"refreshToken"`
	User         models.UserSanitized `json:"user"`
}

// Login handles user login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	user, err := h.users.FindByEmail(c.Request.Context(), normalizeEmail(req.Email))
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondError(c, apperr.ErrInvalidCredentials)
		return
	}
	if err != nil {
		utils.RespondError(c, fmt.Errorf("find user by email: %w", err))
		return
	}

	if !user.CheckPassword(req.Password) {
		utils.RespondError(c, apperr.ErrInvalidCredentials)
		return
	}
	if !user.IsActive {
		utils.RespondError(c, apperr.ErrAccountDeactivated)
		return
	}

	access, refresh, err := h.issuePair(c, user)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.Success(c, "Login successful", LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user.Sanitize(),
	})
}

// RefreshTokenRequest represents the request body for token refresh.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// RefreshTokenResponse represents the response body for successful token refresh.
type RefreshTokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RefreshToken exchanges a refresh token for a new pair. The old refresh
// token is revoked; presenting it again fails.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	raw, ok := h.refreshTokenFromRequest(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	claims, err := h.tokens.VerifyRefresh(raw)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	stored, err := h.refresh.FindUsable(ctx, raw, h.now())
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondError(c, apperr.ErrInvalidToken.WithMessage("Refresh token not found, expired, or revoked"))
		return
	}
	if err != nil {
		utils.RespondError(c, fmt.Errorf("find refresh token: %w", err))
		return
	}
	if stored.UserID != claims.UserID {
		utils.RespondError(c, apperr.ErrInvalidToken)
		return
	}

	user, err := h.users.FindByID(ctx, stored.UserID)
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondError(c, apperr.ErrAccountNotFound)
		return
	}
	if err != nil {
		utils.RespondError(c, fmt.Errorf("load user: %w", err))
		return
	}
	if !user.IsActive {
		utils.RespondError(c, apperr.ErrAccountDeactivated)
		return
	}

	// Two concurrent refreshes with the same token: only one revokes it.
	if err := h.refresh.Revoke(ctx, raw); err != nil {
		if errors.Is(err, store.ErrStale) || errors.Is(err, store.ErrNotFound) {
			utils.RespondError(c, apperr.ErrInvalidToken.WithMessage("Refresh token not found, expired, or revoked"))
			return
		}
		utils.RespondError(c, fmt.Errorf("revoke refresh token: %w", err))
		return
	}

	access, refresh, err := h.issuePair(c, user)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.Success(c, "Access token refreshed successfully", RefreshTokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
	})
}

// LogoutRequest represents the optional request body for user logout.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Logout revokes the caller's presented refresh token and denylists the
// access token used for this request until it would have expired anyway.
// Presenting another user's refresh token is forbidden.
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := c.Request.Context()

	raw, _ := c.Cookie(refreshCookie)
	if raw == "" {
		var req LogoutRequest
		// The body is optional.
		_ = c.ShouldBindJSON(&req)
		raw = req.RefreshToken
	}
	// A token that no longer verifies cannot be redeemed; there is nothing
	// to revoke. One that verifies must belong to the caller.
	if raw != "" {
		if refreshClaims, err := h.tokens.VerifyRefresh(raw); err == nil {
			userID, _ := middleware.GetUserIDFromContext(c)
			if refreshClaims.UserID != userID {
				utils.RespondError(c, apperr.ErrForbidden)
				return
			}
			err := h.refresh.Revoke(ctx, raw)
			if err != nil && !errors.Is(err, store.ErrStale) && !errors.Is(err, store.ErrNotFound) {
				utils.RespondError(c, fmt.Errorf("revoke refresh token: %w", err))
				return
			}
		}
	}

	if claims, ok := middleware.GetClaims(c); ok && h.denylist != nil && claims.ExpiresAt != nil {
		if err := h.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
			log.Warn().Err(err).Str("jti", claims.ID).Msg("could not denylist access token on logout")
		}
	}

	h.setRefreshCookie(c, "", -1)
	utils.Success(c, "Logout successful", nil)
}

// GetProfile returns the authenticated user's profile.
func (h *AuthHandler) GetProfile(c *gin.Context) {
	user, ok := middleware.GetPrincipal(c)
	if !ok {
		utils.RespondError(c, apperr.ErrMissingToken)
		return
	}
	utils.Success(c, "Profile fetched successfully", user.Sanitize())
}

// UpdateProfileRequest represents the request body for updating user profile.
// Email, role and fee are changed by admins only.
type UpdateProfileRequest struct {
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	PhoneNumber    string `json:"phoneNumber"`
	Address        string `json:"address"`
	DateOfBirth    string `json:"dateOfBirth" binding:"omitempty,date"`
	Specialization string `json:"specialization"`
	Password       string `json:"password" binding:"omitempty,min=8"`
}

// UpdateProfile handles updating the currently authenticated user's profile.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		utils.RespondError(c, apperr.ErrMissingToken)
		return
	}

	var req UpdateProfileRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	user := *principal
	if req.FirstName != "" {
		user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		user.LastName = req.LastName
	}
	if req.PhoneNumber != "" {
		user.PhoneNumber = req.PhoneNumber
	}
	if req.Address != "" {
		user.Address = req.Address
	}
	if req.DateOfBirth != "" {
		dob, _ := time.Parse(models.DateLayout, req.DateOfBirth)
		user.DateOfBirth = &dob
	}
	if req.Specialization != "" && user.Role == models.RoleDoctor {
		user.Specialization = req.Specialization
	}
	if req.Password != "" {
		if err := user.SetPassword(req.Password); err != nil {
			utils.RespondError(c, fmt.Errorf("hash password: %w", err))
			return
		}
	}

	if err := h.users.Update(c.Request.Context(), &user); err != nil {
		utils.RespondError(c, fmt.Errorf("update profile: %w", err))
		return
	}
	if req.Password != "" {
		// Other sessions must log in again with the new password.
		if err := h.refresh.RevokeAllForUser(c.Request.Context(), user.ID); err != nil {
			utils.RespondError(c, fmt.Errorf("revoke refresh tokens: %w", err))
			return
		}
	}

	utils.Success(c, "Profile updated successfully", user.Sanitize())
}

func (h *AuthHandler) issuePair(c *gin.Context, user *models.User) (string, string, error) {
	access, err := h.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return "", "", fmt.Errorf("issue access token: %w", err)
	}
	refresh, expiresAt, err := h.tokens.IssueRefresh(user.ID, user.Role)
	if err != nil {
		return "", "", fmt.Errorf("issue refresh token: %w", err)
	}

	record := models.RefreshToken{
		UserID:    user.ID,
		Token:     refresh,
		ExpiresAt: expiresAt,
	}
	if err := h.refresh.Create(c.Request.Context(), &record); err != nil {
		return "", "", fmt.Errorf("store refresh token: %w", err)
	}

	h.setRefreshCookie(c, refresh, int(h.tokens.RefreshTTL()/time.Second))
	return access, refresh, nil
}

// refreshTokenFromRequest prefers the HTTP-only cookie and falls back to the
// JSON body.
func (h *AuthHandler) refreshTokenFromRequest(c *gin.Context) (string, bool) {
	if raw, err := c.Cookie(refreshCookie); err == nil && raw != "" {
		return raw, true
	}
	var req RefreshTokenRequest
	if !utils.BindAndValidate(c, &req) {
		return "", false
	}
	return req.RefreshToken, true
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, value string, maxAge int) {
	secure := h.cfg == nil || !h.cfg.IsDevelopment()
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookie, value, maxAge, "/", "", secure, true)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
