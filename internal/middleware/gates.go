package middleware

import (
	"clinic-portal-server/internal/apperr"
	"clinic-portal-server/internal/models"
	"clinic-portal-server/internal/utils"

	"github.com/gin-gonic/gin"
)

// RoleSet is a set of roles. Membership is exact: no role implies another.
type RoleSet map[models.Role]struct{}

// NewRoleSet builds a RoleSet.
func NewRoleSet(roles ...models.Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Allows reports whether role is in the set.
func (s RoleSet) Allows(role models.Role) bool {
	_, ok := s[role]
	return ok
}

// With returns a new set holding s and roles. s is not modified.
func (s RoleSet) With(roles ...models.Role) RoleSet {
	out := make(RoleSet, len(s)+len(roles))
	for r := range s {
		out[r] = struct{}{}
	}
	for _, r := range roles {
		out[r] = struct{}{}
	}
	return out
}

var (
	AdminRoles    = NewRoleSet(models.RoleAdmin)
	DoctorRoles   = NewRoleSet(models.RoleDoctor)
	PatientRoles  = NewRoleSet(models.RolePatient)
	PharmacyRoles = NewRoleSet(models.RolePharmacy, models.RoleAdmin)
	// MedicalStaff may read clinical data across patients.
	MedicalStaff = NewRoleSet(models.RoleDoctor, models.RoleNurse, models.RoleAdmin)
	// HealthcareProviders adds the pharmacy and lab to MedicalStaff.
	HealthcareProviders = NewRoleSet(models.RoleDoctor, models.RoleNurse, models.RolePharmacy, models.RoleLab, models.RoleAdmin)
	// RecordAuthors may write medical records.
	RecordAuthors = NewRoleSet(models.RoleDoctor, models.RoleNurse, models.RoleLab)
)

// AuthorizeRoles lets the request through only when the principal's live
// role is in allowed. It must run after Authenticate.
func AuthorizeRoles(allowed RoleSet) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := GetUserRoleFromContext(c)
		if !ok {
			utils.RespondError(c, apperr.ErrMissingToken)
			return
		}
		if !allowed.Allows(role) {
			utils.RespondError(c, apperr.ErrForbidden)
			return
		}
		c.Next()
	}
}

func AdminOnly() gin.HandlerFunc   { return AuthorizeRoles(AdminRoles) }
func DoctorOnly() gin.HandlerFunc  { return AuthorizeRoles(DoctorRoles) }
func PatientOnly() gin.HandlerFunc { return AuthorizeRoles(PatientRoles) }

// MedicalStaffOnly admits doctors, nurses and admins.
func MedicalStaffOnly() gin.HandlerFunc { return AuthorizeRoles(MedicalStaff) }

// HealthcareProviderOnly admits every clinical role and admins.
func HealthcareProviderOnly() gin.HandlerFunc { return AuthorizeRoles(HealthcareProviders) }

// ResourceOwnershipGate restricts patients to resources they own. The owning
// patient id is read from the path parameter field, or from the query string
// when the path has none. Admins and non-patient roles pass.
func ResourceOwnershipGate(field string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserIDFromContext(c)
		if !ok {
			utils.RespondError(c, apperr.ErrMissingToken)
			return
		}
		role, _ := GetUserRoleFromContext(c)
		if role != models.RolePatient {
			c.Next()
			return
		}

		owner := c.Param(field)
		if owner == "" {
			owner = c.Query(field)
		}
		if owner != userID {
			utils.RespondError(c, apperr.ErrForbidden)
			return
		}
		c.Next()
	}
}

// VerifiedOnly rejects principals an admin has not verified yet.
func VerifiedOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := GetPrincipal(c)
		if !ok {
			utils.RespondError(c, apperr.ErrMissingToken)
			return
		}
		if !user.IsVerified {
			utils.RespondError(c, apperr.ErrVerificationRequired)
			return
		}
		c.Next()
	}
}
