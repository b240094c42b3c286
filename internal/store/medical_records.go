package store

import (
	"context"

	"clinic-portal-server/internal/models"

	"gorm.io/gorm"
)

type medicalRecordStore struct {
	db *gorm.DB
}

// NewMedicalRecordStore returns a MedicalRecordStore backed by gorm.
func NewMedicalRecordStore(db *gorm.DB) MedicalRecordStore {
	return &medicalRecordStore{db: db}
}

// withoutFileData preloads attachment metadata only.
func withoutFileData(db *gorm.DB) *gorm.DB {
	return db.Select("id", "created_at", "updated_at", "medical_record_id", "file_name", "file_type")
}

func (s *medicalRecordStore) Create(ctx context.Context, record *models.MedicalRecord) error {
	return translate(s.db.WithContext(ctx).Omit("Attachments").Create(record).Error)
}

func (s *medicalRecordStore) FindByID(ctx context.Context, id string) (*models.MedicalRecord, error) {
	var record models.MedicalRecord
	err := s.db.WithContext(ctx).
		Preload("Attachments", withoutFileData).
		First(&record, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &record, nil
}

func (s *medicalRecordStore) ListForPatient(ctx context.Context, patientID string) ([]models.MedicalRecord, error) {
	var records []models.MedicalRecord
	err := s.db.WithContext(ctx).
		Preload("Attachments", withoutFileData).
		Where("patient_id = ?", patientID).
		Order("created_at desc").
		Find(&records).Error
	if err != nil {
		return nil, translate(err)
	}
	return records, nil
}

func (s *medicalRecordStore) Update(ctx context.Context, record *models.MedicalRecord) error {
	return translate(s.db.WithContext(ctx).Omit("Attachments").Save(record).Error)
}

func (s *medicalRecordStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("medical_record_id = ?", id).Delete(&models.MedicalRecordAttachment{}).Error; err != nil {
			return translate(err)
		}
		result := tx.Delete(&models.MedicalRecord{}, "id = ?", id)
		if result.Error != nil {
			return translate(result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *medicalRecordStore) AddAttachment(ctx context.Context, attachment *models.MedicalRecordAttachment) error {
	return translate(s.db.WithContext(ctx).Create(attachment).Error)
}

func (s *medicalRecordStore) FindAttachment(ctx context.Context, id string) (*models.MedicalRecordAttachment, error) {
	var attachment models.MedicalRecordAttachment
	if err := s.db.WithContext(ctx).First(&attachment, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &attachment, nil
}
