package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"clinic-portal-server/internal/models"
	"clinic-portal-server/internal/store"
)

// MedicalRecordStore keeps records and attachments in memory. Records are
// returned with attachment metadata only, matching the gorm store.
type MedicalRecordStore struct {
	mu          sync.RWMutex
	records     map[string]models.MedicalRecord
	attachments map[string]models.MedicalRecordAttachment
}

var _ store.MedicalRecordStore = (*MedicalRecordStore)(nil)

func NewMedicalRecordStore() *MedicalRecordStore {
	return &MedicalRecordStore{
		records:     map[string]models.MedicalRecord{},
		attachments: map[string]models.MedicalRecordAttachment{},
	}
}

func (s *MedicalRecordStore) Create(_ context.Context, record *models.MedicalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp(&record.ID, &record.CreatedAt, &record.UpdatedAt)
	if _, taken := s.records[record.ID]; taken {
		return store.ErrDuplicate
	}
	r := *record
	r.Attachments = nil
	s.records[r.ID] = r
	return nil
}

func (s *MedicalRecordStore) withAttachments(r models.MedicalRecord) models.MedicalRecord {
	r.Attachments = nil
	for _, a := range s.attachments {
		if a.MedicalRecordID == r.ID {
			a.FileData = nil
			r.Attachments = append(r.Attachments, a)
		}
	}
	sort.Slice(r.Attachments, func(i, j int) bool {
		return r.Attachments[i].CreatedAt.Before(r.Attachments[j].CreatedAt)
	})
	return r
}

func (s *MedicalRecordStore) FindByID(_ context.Context, id string) (*models.MedicalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	r = s.withAttachments(r)
	return &r, nil
}

func (s *MedicalRecordStore) ListForPatient(_ context.Context, patientID string) ([]models.MedicalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.MedicalRecord, 0)
	for _, r := range s.records {
		if r.PatientID == patientID {
			out = append(out, s.withAttachments(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MedicalRecordStore) Update(_ context.Context, record *models.MedicalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.ID]; !ok {
		return store.ErrNotFound
	}
	record.UpdatedAt = time.Now()
	r := *record
	r.Attachments = nil
	s.records[r.ID] = r
	return nil
}

func (s *MedicalRecordStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.records, id)
	for k, a := range s.attachments {
		if a.MedicalRecordID == id {
			delete(s.attachments, k)
		}
	}
	return nil
}

func (s *MedicalRecordStore) AddAttachment(_ context.Context, attachment *models.MedicalRecordAttachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[attachment.MedicalRecordID]; !ok {
		return store.ErrNotFound
	}
	stamp(&attachment.ID, &attachment.CreatedAt, &attachment.UpdatedAt)
	s.attachments[attachment.ID] = *attachment
	return nil
}

func (s *MedicalRecordStore) FindAttachment(_ context.Context, id string) (*models.MedicalRecordAttachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attachments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}
