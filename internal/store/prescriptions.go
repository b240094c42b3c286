package store

import (
	"context"

	"clinic-portal-server/internal/models"

	"gorm.io/gorm"
)

type prescriptionStore struct {
	db *gorm.DB
}

// NewPrescriptionStore returns a PrescriptionStore backed by gorm.
func NewPrescriptionStore(db *gorm.DB) PrescriptionStore {
	return &prescriptionStore{db: db}
}

func (s *prescriptionStore) Create(ctx context.Context, p *models.Prescription) error {
	return translate(s.db.WithContext(ctx).Create(p).Error)
}

func (s *prescriptionStore) FindByID(ctx context.Context, id string) (*models.Prescription, error) {
	var p models.Prescription
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *prescriptionStore) ListForPatient(ctx context.Context, patientID string) ([]models.Prescription, error) {
	var ps []models.Prescription
	err := s.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("created_at desc").
		Find(&ps).Error
	if err != nil {
		return nil, translate(err)
	}
	return ps, nil
}

func (s *prescriptionStore) UpdateStatus(ctx context.Context, p *models.Prescription, from models.PrescriptionStatus) error {
	result := s.db.WithContext(ctx).
		Model(&models.Prescription{}).
		Where("id = ? AND status = ?", p.ID, from).
		Updates(map[string]interface{}{
			"status":       p.Status,
			"dispensed_by": p.DispensedBy,
			"dispensed_at": p.DispensedAt,
		})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStale
	}
	return nil
}
