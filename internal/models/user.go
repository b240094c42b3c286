package models

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role is the closed set of principal roles.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleDoctor   Role = "DOCTOR"
	RolePatient  Role = "PATIENT"
	RoleNurse    Role = "NURSE"
	RolePharmacy Role = "PHARMACY"
	RoleLab      Role = "LAB"
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleDoctor, RolePatient, RoleNurse, RolePharmacy, RoleLab}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole converts user input such as "doctor" into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// RequiresApproval reports whether a self-registered account with this role
// must be verified by an admin before it can act.
func (r Role) RequiresApproval() bool {
	return r != RolePatient
}

// User represents a user in the system
type User struct {
	BaseModel
	Email           string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password        string     `gorm:"size:255;not null" json:"-"` // Never send password in JSON
	FirstName       string     `gorm:"size:100" json:"firstName"`
	LastName        string     `gorm:"size:100" json:"lastName"`
	Role            Role       `gorm:"size:20;index;not null" json:"role"`
	IsActive        bool       `gorm:"not null" json:"isActive"`
	IsVerified      bool       `gorm:"not null" json:"isVerified"`
	DateOfBirth     *time.Time `json:"dateOfBirth,omitempty"`
	PhoneNumber     string     `gorm:"size:30" json:"phoneNumber,omitempty"`
	Address         string     `gorm:"size:255" json:"address,omitempty"`
	Specialization  string     `gorm:"size:100" json:"specialization,omitempty"`
	ConsultationFee float64    `gorm:"type:decimal(10,2);default:0" json:"consultationFee"`
}

// UserSanitized represents the user data that is safe to send in API responses.
type UserSanitized struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	FirstName       string     `json:"firstName"`
	LastName        string     `json:"lastName"`
	Role            Role       `json:"role"`
	IsActive        bool       `json:"isActive"`
	IsVerified      bool       `json:"isVerified"`
	DateOfBirth     *time.Time `json:"dateOfBirth,omitempty"`
	PhoneNumber     string     `json:"phoneNumber,omitempty"`
	Address         string     `json:"address,omitempty"`
	Specialization  string     `json:"specialization,omitempty"`
	ConsultationFee float64    `json:"consultationFee,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// SetPassword hashes a password and sets it on the user
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

// CheckPassword compares a password with the user's hashed password
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}

// CanPractice reports whether the user is a doctor who may take bookings.
func (u *User) CanPractice() bool {
	return u.Role == RoleDoctor && u.IsActive && u.IsVerified
}

// Sanitize creates a UserSanitized struct from a User model, excluding sensitive data.
func (u *User) Sanitize() UserSanitized {
	return UserSanitized{
		ID:              u.ID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Role:            u.Role,
		IsActive:        u.IsActive,
		IsVerified:      u.IsVerified,
		DateOfBirth:     u.DateOfBirth,
		PhoneNumber:     u.PhoneNumber,
		Address:         u.Address,
		Specialization:  u.Specialization,
		ConsultationFee: u.ConsultationFee,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

// SanitizeAll maps Sanitize over a slice.
func SanitizeAll(users []User) []UserSanitized {
	out := make([]UserSanitized, len(users))
	for i := range users {
		out[i] = users[i].Sanitize()
	}
	return out
}
