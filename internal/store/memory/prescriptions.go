package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"clinic-portal-server/internal/models"
	"clinic-portal-server/internal/store"
)

// PrescriptionStore keeps prescriptions in memory.
type PrescriptionStore struct {
	mu            sync.RWMutex
	prescriptions map[string]models.Prescription
}

var _ store.PrescriptionStore = (*PrescriptionStore)(nil)

func NewPrescriptionStore() *PrescriptionStore {
	return &PrescriptionStore{prescriptions: map[string]models.Prescription{}}
}

func (s *PrescriptionStore) Create(_ context.Context, p *models.Prescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if _, taken := s.prescriptions[p.ID]; taken {
		return store.ErrDuplicate
	}
	s.prescriptions[p.ID] = *p
	return nil
}

func (s *PrescriptionStore) FindByID(_ context.Context, id string) (*models.Prescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prescriptions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *PrescriptionStore) ListForPatient(_ context.Context, patientID string) ([]models.Prescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Prescription, 0)
	for _, p := range s.prescriptions {
		if p.PatientID == patientID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *PrescriptionStore) UpdateStatus(_ context.Context, p *models.Prescription, from models.PrescriptionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.prescriptions[p.ID]
	if !ok || cur.Status != from {
		return store.ErrStale
	}
	cur.Status = p.Status
	cur.DispensedBy = p.DispensedBy
	cur.DispensedAt = p.DispensedAt
	cur.UpdatedAt = time.Now()
	s.prescriptions[p.ID] = cur
	return nil
}
