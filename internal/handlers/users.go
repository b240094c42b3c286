package handlers

import (
	"errors"
	"fmt"

	"clinic-portal-server/internal/apperr"
	"clinic-portal-server/internal/middleware"
	"clinic-portal-server/internal/models"
	"clinic-portal-server/internal/store"
	"clinic-portal-server/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// UserHandler handles user-related requests (typically admin operations).
type UserHandler struct {
	users   store.UserStore
	refresh store.RefreshTokenStore
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users store.UserStore, refresh store.RefreshTokenStore) *UserHandler {
	return &UserHandler{users: users, refresh: refresh}
}

// CreateUserRequest represents the request body for creating a user by an admin.
type CreateUserRequest struct {
	FirstName       string  `json:"firstName" binding:"required"`
	LastName        string  `json:"lastName" binding:"required"`
	Email           string  `json:"email" binding:"required,email"`
	Password        string  `json:"password" binding:"required,min=8"`
	Role            string  `json:"role" binding:"required,role"`
	Specialization  string  `json:"specialization"`
	ConsultationFee float64 `json:"consultationFee" binding:"min=0"`
}

// CreateUser creates an account on an admin's behalf. Such accounts are
// verified on creation; this is the only way to create another admin.
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	role, _ := models.ParseRole(req.Role)

	user := models.User{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      normalizeEmail(req.Email),
		Role:       role,
		IsActive:   true,
		IsVerified: true,
	}
	if role == models.RoleDoctor {
		user.Specialization = req.Specialization
		user.ConsultationFee = req.ConsultationFee
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

	utils.Created(c, "User created successfully", user.Sanitize())
}

// GetUsers lists every user, optionally narrowed by ?role=.
func (h *UserHandler) GetUsers(c *gin.Context) {
	var filter store.UserFilter
	if raw := c.Query("role"); raw != "" {
		role, err := models.ParseRole(raw)
		if err != nil {
			utils.RespondError(c, apperr.Invalid("Unknown role "+raw))
			return
		}
		filter.Role = role
	}

	users, err := h.users.List(c.Request.Context(), filter)
	if err != nil {
		utils.RespondError(c, fmt.Errorf("list users: %w", err))
		return
	}
	utils.Success(c, "Users fetched successfully", models.SanitizeAll(users))
}

// GetUserByID handles fetching a single user by ID (admin).
func (h *UserHandler) GetUserByID(c *gin.Context) {
	user, err := findUser(c.Request.Context(), h.users, c.Param("id"), "")
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "User fetched successfully", user.Sanitize())
}

// UpdateUserRequest represents the request body for updating a user by an admin.
type UpdateUserRequest struct {
	FirstName       string   `json:"firstName"`
	LastName        string   `json:"lastName"`
	Email           string   `json:"email" binding:"omitempty,email"`
	Role            string   `json:"role" binding:"omitempty,role"`
	Specialization  string   `json:"specialization"`
	ConsultationFee *float64 `json:"consultationFee" binding:"omitempty,min=0"`
}

// UpdateUser handles updating a user by ID (admin). A role change applies
// to the user's next request; outstanding tokens are not reissued.
func (h *UserHandler) UpdateUser(c *gin.Context) {
	var req UpdateUserRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	user, err := findUser(c.Request.Context(), h.users, c.Param("id"), "")
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	if req.FirstName != "" {
		user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		user.LastName = req.LastName
	}
	if req.Email != "" {
		user.Email = normalizeEmail(req.Email)
	}
	if req.Role != "" {
		user.Role, _ = models.ParseRole(req.Role)
	}
	if req.Specialization != "" {
		user.Specialization = req.Specialization
	}
	if req.ConsultationFee != nil {
		user.ConsultationFee = *req.ConsultationFee
	}

	if err := h.users.Update(c.Request.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			utils.RespondError(c, apperr.ErrConflict.WithMessage("New email is already in use"))
			return
		}
		utils.RespondError(c, fmt.Errorf("update user: %w", err))
		return
	}

	utils.Success(c, "User updated successfully", user.Sanitize())
}

// VerifyUserRequest defaults to verifying when isVerified is omitted.
type VerifyUserRequest struct {
	IsVerified *bool `json:"isVerified"`
}

// VerifyUser approves (or un-approves) an account.
func (h *UserHandler) VerifyUser(c *gin.Context) {
	var req VerifyUserRequest
	if c.Request.ContentLength > 0 && !utils.BindAndValidate(c, &req) {
		return
	}
	verified := req.IsVerified == nil || *req.IsVerified

	user, err := findUser(c.Request.Context(), h.users, c.Param("id"), "")
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	user.IsVerified = verified
	if err := h.users.Update(c.Request.Context(), user); err != nil {
		utils.RespondError(c, fmt.Errorf("verify user: %w", err))
		return
	}

	adminID, _ := middleware.GetUserIDFromContext(c)
	log.Info().Str("user_id", user.ID).Str("admin_id", adminID).Bool("verified", verified).Msg("user verification changed")
	utils.Success(c, "User verification updated successfully", user.Sanitize())
}

// SetActiveRequest represents the request body for activating or
// deactivating an account.
type SetActiveRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

// SetActive activates or deactivates an account. Users are never deleted.
// Deactivation locks the account out on its next request and revokes its
// refresh tokens.
func (h *UserHandler) SetActive(c *gin.Context) {
	var req SetActiveRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	adminID, _ := middleware.GetUserIDFromContext(c)
	targetID := c.Param("id")
	if targetID == adminID && !*req.IsActive {
		utils.RespondError(c, apperr.Invalid("You cannot deactivate your own account"))
		return
	}

	user, err := findUser(c.Request.Context(), h.users, targetID, "")
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	user.IsActive = *req.IsActive
	if err := h.users.Update(c.Request.Context(), user); err != nil {
		utils.RespondError(c, fmt.Errorf("set user active: %w", err))
		return
	}

	if !user.IsActive {
		if err := h.refresh.RevokeAllForUser(c.Request.Context(), user.ID); err != nil {
			utils.RespondError(c, fmt.Errorf("revoke refresh tokens: %w", err))
			return
		}
	}

	log.Info().Str("user_id", user.ID).Str("admin_id", adminID).Bool("active", user.IsActive).Msg("user activation changed")
	utils.Success(c, "User status updated successfully", user.Sanitize())
}

// GetDoctors lists doctors patients can book. Admins additionally see
// doctors that are inactive or awaiting verification.
func (h *UserHandler) GetDoctors(c *gin.Context) {
	filter := store.UserFilter{Role: models.RoleDoctor, ActiveOnly: true, VerifiedOnly: true}
	if role, ok := middleware.GetUserRoleFromContext(c); ok && role == models.RoleAdmin {
		filter.ActiveOnly = false
		filter.VerifiedOnly = false
	}

	doctors, err := h.users.List(c.Request.Context(), filter)
	if err != nil {
		utils.RespondError(c, fmt.Errorf("list doctors: %w", err))
		return
	}
	utils.Success(c, "Doctors fetched successfully", models.SanitizeAll(doctors))
}

// GetPatients lists active patients for medical staff.
func (h *UserHandler) GetPatients(c *gin.Context) {
	patients, err := h.users.List(c.Request.Context(), store.UserFilter{Role: models.RolePatient, ActiveOnly: true})
	if err != nil {
		utils.RespondError(c, fmt.Errorf("list patients: %w", err))
		return
	}
	utils.Success(c, "Patients fetched successfully", models.SanitizeAll(patients))
}
