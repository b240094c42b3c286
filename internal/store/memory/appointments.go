package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"clinic-portal-server/internal/models"
	"clinic-portal-server/internal/store"
)

// AppointmentStore keeps appointments in memory. slots mirrors the unique
// index on ActiveSlot: it is checked and written under the same lock as the
// appointment itself.
type AppointmentStore struct {
	mu    sync.RWMutex
	appts map[string]models.Appointment
	slots map[string]string
}

var _ store.AppointmentStore = (*AppointmentStore)(nil)

func NewAppointmentStore() *AppointmentStore {
	return &AppointmentStore{
		appts: map[string]models.Appointment{},
		slots: map[string]string{},
	}
}

func (s *AppointmentStore) FindByID(_ context.Context, id string) (*models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.appts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (s *AppointmentStore) FindConflicting(_ context.Context, doctorID, date, clock string, statuses []models.AppointmentStatus) (*models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.appts {
		if a.DoctorID != doctorID || a.Date != date || a.Time != clock {
			continue
		}
		for _, st := range statuses {
			if a.Status == st {
				found := a
				return &found, nil
			}
		}
	}
	return nil, nil
}

func (s *AppointmentStore) Create(_ context.Context, appt *models.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if appt.ActiveSlot != nil {
		if _, taken := s.slots[*appt.ActiveSlot]; taken {
			return store.ErrDuplicate
		}
	}
	stamp(&appt.ID, &appt.CreatedAt, &appt.UpdatedAt)
	if _, taken := s.appts[appt.ID]; taken {
		return store.ErrDuplicate
	}

	s.appts[appt.ID] = *appt
	if appt.ActiveSlot != nil {
		s.slots[*appt.ActiveSlot] = appt.ID
	}
	return nil
}

func (s *AppointmentStore) UpdateStatus(_ context.Context, appt *models.Appointment, from models.AppointmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.appts[appt.ID]
	if !ok || cur.Status != from {
		return store.ErrStale
	}
	if appt.ActiveSlot != nil {
		if owner, taken := s.slots[*appt.ActiveSlot]; taken && owner != appt.ID {
			return store.ErrDuplicate
		}
	}

	if cur.ActiveSlot != nil {
		delete(s.slots, *cur.ActiveSlot)
	}
	if appt.ActiveSlot != nil {
		s.slots[*appt.ActiveSlot] = appt.ID
	}

	cur.Status = appt.Status
	cur.Notes = appt.Notes
	cur.CancellationReason = appt.CancellationReason
	cur.CancelledAt = appt.CancelledAt
	cur.CancelledBy = appt.CancelledBy
	cur.CheckedInAt = appt.CheckedInAt
	cur.CheckedOutAt = appt.CheckedOutAt
	cur.ActiveSlot = appt.ActiveSlot
	cur.UpdatedAt = time.Now()
	s.appts[appt.ID] = cur
	return nil
}

func (s *AppointmentStore) List(_ context.Context, filter store.AppointmentFilter) ([]models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Appointment, 0)
	for _, a := range s.appts {
		if filter.PatientID != "" && a.PatientID != filter.PatientID {
			continue
		}
		if filter.DoctorID != "" && a.DoctorID != filter.DoctorID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}
