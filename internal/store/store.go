// Package store defines persistence for the portal. Each store has a gorm
// implementation here and an in-process one in store/memory.
package store

import (
	"context"
	"errors"
	"time"

	"clinic-portal-server/internal/models"
)

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")
	// ErrStale is returned by compare-and-set updates whose precondition no
	// longer holds.
	ErrStale = errors.New("record changed concurrently")
)

// UserFilter narrows UserStore.List. Zero values match everything.
type UserFilter struct {
	Role         models.Role
	ActiveOnly   bool
	VerifiedOnly bool
}

// UserStore persists principals.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	// Update writes every column of user.
	Update(ctx context.Context, user *models.User) error
	List(ctx context.Context, filter UserFilter) ([]models.User, error)
}

// AppointmentFilter narrows AppointmentStore.List.
type AppointmentFilter struct {
	PatientID string
	DoctorID  string
}

// AppointmentStore persists appointments. Create must reject a second row
// holding the same ActiveSlot with ErrDuplicate.
type AppointmentStore interface {
	FindByID(ctx context.Context, id string) (*models.Appointment, error)
	// FindConflicting returns the appointment occupying the slot with one of
	// statuses, or nil when the slot is free.
	FindConflicting(ctx context.Context, doctorID, date, clock string, statuses []models.AppointmentStatus) (*models.Appointment, error)
	Create(ctx context.Context, appt *models.Appointment) error
	// UpdateStatus writes the mutable fields of appt only if the stored
	// status still equals from, and returns ErrStale otherwise.
	UpdateStatus(ctx context.Context, appt *models.Appointment, from models.AppointmentStatus) error
	List(ctx context.Context, filter AppointmentFilter) ([]models.Appointment, error)
}

// RefreshTokenStore persists issued refresh tokens.
type RefreshTokenStore interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	// FindUsable returns the token if it is neither revoked nor expired at now.
	FindUsable(ctx context.Context, token string, now time.Time) (*models.RefreshToken, error)
	// Revoke marks token revoked. It returns ErrStale if the token was
	// already revoked and ErrNotFound if it never existed.
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	// DeleteExpired removes tokens expired or revoked before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// MedicalRecordStore persists medical records and their attachments.
type MedicalRecordStore interface {
	Create(ctx context.Context, record *models.MedicalRecord) error
	FindByID(ctx context.Context, id string) (*models.MedicalRecord, error)
	ListForPatient(ctx context.Context, patientID string) ([]models.MedicalRecord, error)
	Update(ctx context.Context, record *models.MedicalRecord) error
	Delete(ctx context.Context, id string) error
	AddAttachment(ctx context.Context, attachment *models.MedicalRecordAttachment) error
	FindAttachment(ctx context.Context, id string) (*models.MedicalRecordAttachment, error)
}

// PrescriptionStore persists prescriptions.
type PrescriptionStore interface {
	Create(ctx context.Context, p *models.Prescription) error
	FindByID(ctx context.Context, id string) (*models.Prescription, error)
	ListForPatient(ctx context.Context, patientID string) ([]models.Prescription, error)
	// UpdateStatus is compare-and-set on the stored status, like
	// AppointmentStore.UpdateStatus.
	UpdateStatus(ctx context.Context, p *models.Prescription, from models.PrescriptionStatus) error
}

// MessageFilter narrows MessageStore.List to messages involving UserID,
// optionally only those exchanged with WithUserID or created after Since.
type MessageFilter struct {
	UserID      string
	WithUserID  string
	Since       time.Time
	NewestFirst bool
}

// MessageStore persists messages between users.
type MessageStore interface {
	Create(ctx context.Context, msg *models.Message) error
	FindByID(ctx context.Context, id string) (*models.Message, error)
	List(ctx context.Context, filter MessageFilter) ([]models.Message, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	// MarkAllRead marks every unread message to receiverID as read, limited
	// to those from senderID when it is not empty.
	MarkAllRead(ctx context.Context, receiverID, senderID string, at time.Time) error
	// Partners lists the ids of everyone userID has exchanged messages with.
	Partners(ctx context.Context, userID string) ([]string, error)
	Latest(ctx context.Context, userID, partnerID string) (*models.Message, error)
	CountUnread(ctx context.Context, receiverID, senderID string) (int64, error)
}

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Stores bundles every store the server needs.
type Stores struct {
	Users          UserStore
	Appointments   AppointmentStore
	RefreshTokens  RefreshTokenStore
	MedicalRecords MedicalRecordStore
	Prescriptions  PrescriptionStore
	Messages       MessageStore
	Health         Pinger
}
