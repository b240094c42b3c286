package handlers

import (
	"context"
	"errors"
	"fmt"

	"clinic-portal-server/internal/apperr"
	"clinic-portal-server/internal/middleware"
	"clinic-portal-server/internal/models"
	"clinic-portal-server/internal/store"
	"clinic-portal-server/internal/utils"

	"github.com/gin-gonic/gin"
)

// caller returns the authenticated principal's id and live role. Routes
// behind Authenticate always have both; the error path covers handlers
// mounted without it.
func caller(c *gin.Context) (string, models.Role, bool) {
	id, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.RespondError(c, apperr.ErrMissingToken)
		return "", "", false
	}
	role, _ := middleware.GetUserRoleFromContext(c)
	return id, role, true
}

// notFound maps store.ErrNotFound to a 404 naming resource and wraps
// anything else for the 500 path.
func notFound(err error, resource string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(resource)
	}
	return fmt.Errorf("load %s: %w", resource, err)
}

// findUser loads a user, optionally requiring a role.
func findUser(ctx context.Context, users store.UserStore, id string, role models.Role) (*models.User, error) {
	user, err := users.FindByID(ctx, id)
	if err != nil {
		if role != "" {
			return nil, notFound(err, roleLabel(role))
		}
		return nil, notFound(err, "User")
	}
	if role != "" && user.Role != role {
		return nil, apperr.NotFound(roleLabel(role))
	}
	return user, nil
}

func roleLabel(role models.Role) string {
	switch role {
	case models.RoleDoctor:
		return "Doctor"
	case models.RolePatient:
		return "Patient"
	default:
		return "User"
	}
}
