// Package memory holds in-process implementations of the store interfaces,
// used when STORE_DRIVER=memory and by tests.
package memory

import (
	"context"
	"time"

	"clinic-portal-server/internal/store"

	"github.com/google/uuid"
)

// New builds every store in memory.
func New() *store.Stores {
	return &store.Stores{
		Users:          NewUserStore(),
		Appointments:   NewAppointmentStore(),
		RefreshTokens:  NewRefreshTokenStore(),
		MedicalRecords: NewMedicalRecordStore(),
		Prescriptions:  NewPrescriptionStore(),
		Messages:       NewMessageStore(),
		Health:         alwaysUp{},
	}
}

type alwaysUp struct{}

func (alwaysUp) Ping(context.Context) error { return nil }

// stamp fills the id and timestamps the gorm hooks would set.
func stamp(id *string, createdAt, updatedAt *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	now := time.Now()
	if createdAt.IsZero() {
		*createdAt = now
	}
	*updatedAt = now
}
