package store

import (
	"context"

	"gorm.io/gorm"
)

// NewGormStores builds every store on one gorm connection.
func NewGormStores(db *gorm.DB) *Stores {
	return &Stores{
		Users:          NewUserStore(db),
		Appointments:   NewAppointmentStore(db),
		RefreshTokens:  NewRefreshTokenStore(db),
		MedicalRecords: NewMedicalRecordStore(db),
		Prescriptions:  NewPrescriptionStore(db),
		Messages:       NewMessageStore(db),
		Health:         dbPinger{db: db},
	}
}

type dbPinger struct {
	db *gorm.DB
}

func (p dbPinger) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
