package store

import (
	"context"

	"clinic-portal-server/internal/models"

	"gorm.io/gorm"
)

type appointmentStore struct {
	db *gorm.DB
}

// NewAppointmentStore returns an AppointmentStore backed by gorm. Slot
// uniqueness rests on the unique index over active_slot.
func NewAppointmentStore(db *gorm.DB) AppointmentStore {
	return &appointmentStore{db: db}
}

func (s *appointmentStore) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	var appt models.Appointment
	if err := s.db.WithContext(ctx).First(&appt, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &appt, nil
}

func (s *appointmentStore) FindConflicting(ctx context.Context, doctorID, date, clock string, statuses []models.AppointmentStatus) (*models.Appointment, error) {
	var appts []models.Appointment
	err := s.db.WithContext(ctx).
		Where("doctor_id = ? AND date = ? AND time = ? AND status IN ?", doctorID, date, clock, statuses).
		Limit(1).
		Find(&appts).Error
	if err != nil {
		return nil, translate(err)
	}
	if len(appts) == 0 {
		return nil, nil
	}
	return &appts[0], nil
}

func (s *appointmentStore) Create(ctx context.Context, appt *models.Appointment) error {
	return translate(s.db.WithContext(ctx).Create(appt).Error)
}

func (s *appointmentStore) UpdateStatus(ctx context.Context, appt *models.Appointment, from models.AppointmentStatus) error {
	// A map so that nil pointers are written as NULL.
	fields := map[string]interface{}{
		"status":              appt.Status,
		"notes":               appt.Notes,
		"cancellation_reason": appt.CancellationReason,
		"cancelled_at":        appt.CancelledAt,
		"cancelled_by":        appt.CancelledBy,
		"checked_in_at":       appt.CheckedInAt,
		"checked_out_at":      appt.CheckedOutAt,
		"active_slot":         appt.ActiveSlot,
	}

	result := s.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Where("id = ? AND status = ?", appt.ID, from).
		Updates(fields)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStale
	}
	return nil
}

func (s *appointmentStore) List(ctx context.Context, filter AppointmentFilter) ([]models.Appointment, error) {
	query := s.db.WithContext(ctx).Order("date asc, time asc")
	if filter.PatientID != "" {
		query = query.Where("patient_id = ?", filter.PatientID)
	}
	if filter.DoctorID != "" {
		query = query.Where("doctor_id = ?", filter.DoctorID)
	}

	var appts []models.Appointment
	if err := query.Find(&appts).Error; err != nil {
		return nil, translate(err)
	}
	return appts, nil
}
