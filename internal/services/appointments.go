// Package services holds business rules that span more than one store.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinic-portal-server/internal/apperr"
	"clinic-portal-server/internal/metrics"
	"clinic-portal-server/internal/models"
	"clinic-portal-server/internal/store"
)

// DefaultCancelLeadTime is how long before the visit a patient may still
// cancel.
const DefaultCancelLeadTime = 24 * time.Hour

// maxStatusAttempts bounds the reload loop when a status write loses a race.
const maxStatusAttempts = 3

// BookRequest is a patient's request for one slot.
type BookRequest struct {
	PatientID string
	DoctorID  string
	Date      string
	Time      string
	Reason    string
}

// AppointmentService guards appointment creation and status changes.
type AppointmentService struct {
	users          store.UserStore
	appointments   store.AppointmentStore
	metrics        *metrics.Metrics
	loc            *time.Location
	cancelLeadTime time.Duration
	now            func() time.Time
}

// NewAppointmentService builds the service. Slots are interpreted in loc;
// a nil loc means UTC. m may be nil.
func NewAppointmentService(users store.UserStore, appointments store.AppointmentStore, loc *time.Location, cancelLeadTime time.Duration, m *metrics.Metrics) *AppointmentService {
	if loc == nil {
		loc = time.UTC
	}
	if cancelLeadTime <= 0 {
		cancelLeadTime = DefaultCancelLeadTime
	}
	return &AppointmentService{
		users:          users,
		appointments:   appointments,
		metrics:        m,
		loc:            loc,
		cancelLeadTime: cancelLeadTime,
		now:            time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *AppointmentService) WithClock(now func() time.Time) *AppointmentService {
	s.now = now
	return s
}

// Book creates a SCHEDULED appointment. Preconditions are checked in order:
// the doctor can take bookings, the slot is in the future, and the slot is
// free. The insert itself is conflict-aware, so two concurrent bookings for
// one slot cannot both succeed.
func (s *AppointmentService) Book(ctx context.Context, req BookRequest) (*models.Appointment, error) {
	appt, outcome, err := s.book(ctx, req)
	s.metrics.ObserveBooking(outcome)
	return appt, err
}

func (s *AppointmentService) book(ctx context.Context, req BookRequest) (*models.Appointment, string, error) {
	at, err := models.ParseSlot(req.Date, req.Time, s.loc)
	if err != nil {
		return nil, metrics.OutcomeInvalid, apperr.Invalid("Date must be YYYY-MM-DD and time HH:MM")
	}
	date := at.Format(models.DateLayout)
	clock := at.Format(models.TimeLayout)

	doctor, err := s.users.FindByID(ctx, req.DoctorID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, metrics.OutcomeDoctorUnavailable, apperr.ErrDoctorUnavailable
	case err != nil:
		return nil, metrics.OutcomeError, fmt.Errorf("load doctor: %w", err)
	case !doctor.CanPractice():
		return nil, metrics.OutcomeDoctorUnavailable, apperr.ErrDoctorUnavailable
	}

	if !at.After(s.now()) {
		return nil, metrics.OutcomeDateInPast, apperr.ErrDateInPast
	}

	existing, err := s.appointments.FindConflicting(ctx, doctor.ID, date, clock, models.SlotHoldingStatuses)
	if err != nil {
		return nil, metrics.OutcomeError, fmt.Errorf("check slot: %w", err)
	}
	if existing != nil {
		return nil, metrics.OutcomeSlotTaken, apperr.ErrSlotTaken
	}

	slot := models.SlotKey(doctor.ID, date, clock)
	appt := &models.Appointment{
		PatientID:  req.PatientID,
		DoctorID:   doctor.ID,
		Date:       date,
		Time:       clock,
		Status:     models.StatusScheduled,
		Fee:        doctor.ConsultationFee,
		Reason:     req.Reason,
		ActiveSlot: &slot,
	}
	if err := s.appointments.Create(ctx, appt); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, metrics.OutcomeSlotTaken, apperr.ErrSlotTaken
		}
		return nil, metrics.OutcomeError, fmt.Errorf("create appointment: %w", err)
	}
	return appt, metrics.OutcomeBooked, nil
}

// doctorSettable are the statuses a doctor may move an appointment to.
var doctorSettable = map[models.AppointmentStatus]bool{
	models.StatusConfirmed:  true,
	models.StatusInProgress: true,
	models.StatusCompleted:  true,
	models.StatusCancelled:  true,
}

// UpdateStatus moves an appointment forward on behalf of its assigned
// doctor; a visit never returns to an earlier stage. IN_PROGRESS stamps the check-in time and COMPLETED the check-out time.
// CANCELLED behaves like a doctor cancellation with notes as the reason.
func (s *AppointmentService) UpdateStatus(ctx context.Context, appointmentID, doctorID string, status models.AppointmentStatus, notes string) (*models.Appointment, error) {
	return s.transition(ctx, appointmentID, func(appt *models.Appointment) (bool, error) {
		if appt.DoctorID != doctorID {
			return false, apperr.ErrNotOwner
		}
		if !doctorSettable[status] || !appt.Status.CanAdvanceTo(status) {
			return false, apperr.ErrInvalidTransition
		}

		now := s.now()
		if status == models.StatusCancelled {
			s.markCancelled(appt, doctorID, notes, now)
			return true, nil
		}

		appt.Status = status
		if notes != "" {
			appt.Notes = notes
		}
		switch status {
		case models.StatusInProgress:
			appt.CheckedInAt = &now
		case models.StatusCompleted:
			appt.CheckedOutAt = &now
		}
		return true, nil
	})
}

// Cancel cancels an appointment for its patient, its doctor or an admin.
// Cancelling an already cancelled appointment returns it unchanged. Patients
// must cancel at least the configured lead time before the visit.
func (s *AppointmentService) Cancel(ctx context.Context, appointmentID, userID string, role models.Role, reason string) (*models.Appointment, error) {
	return s.transition(ctx, appointmentID, func(appt *models.Appointment) (bool, error) {
		isPatient := role == models.RolePatient && appt.PatientID == userID
		isDoctor := role == models.RoleDoctor && appt.DoctorID == userID
		if !isPatient && !isDoctor && role != models.RoleAdmin {
			return false, apperr.ErrForbidden
		}

		switch appt.Status {
		case models.StatusCancelled:
			return false, nil
		case models.StatusCompleted:
			return false, apperr.ErrInvalidTransition
		}

		now := s.now()
		if role == models.RolePatient {
			at, err := appt.ScheduledAt(s.loc)
			if err != nil {
				return false, fmt.Errorf("appointment %s has unparseable slot: %w", appt.ID, err)
			}
			if at.Sub(now) < s.cancelLeadTime {
				return false, apperr.ErrTooLateToCancel.WithMessage(fmt.Sprintf(
					"Appointments cannot be cancelled less than %s in advance", formatLeadTime(s.cancelLeadTime)))
			}
		}

		s.markCancelled(appt, userID, reason, now)
		return true, nil
	})
}

func (s *AppointmentService) markCancelled(appt *models.Appointment, by, reason string, at time.Time) {
	appt.Status = models.StatusCancelled
	appt.CancelledAt = &at
	appt.CancelledBy = &by
	if reason != "" {
		appt.CancellationReason = &reason
	}
	appt.ActiveSlot = nil
}

// transition loads the appointment, lets apply mutate it and writes it back
// with a compare-and-set on the loaded status. When the write loses a race
// the appointment is reloaded and apply runs again. apply returns false to
// leave the appointment untouched.
func (s *AppointmentService) transition(ctx context.Context, id string, apply func(*models.Appointment) (bool, error)) (*models.Appointment, error) {
	for attempt := 0; attempt < maxStatusAttempts; attempt++ {
		appt, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}

		from := appt.Status
		changed, err := apply(appt)
		if err != nil {
			return nil, err
		}
		if !changed {
			return appt, nil
		}

		err = s.appointments.UpdateStatus(ctx, appt, from)
		if errors.Is(err, store.ErrStale) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update appointment: %w", err)
		}
		return appt, nil
	}
	return nil, fmt.Errorf("update appointment %s: %w", id, store.ErrStale)
}

func (s *AppointmentService) load(ctx context.Context, id string) (*models.Appointment, error) {
	appt, err := s.appointments.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Appointment")
	}
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return appt, nil
}

// seesAllAppointments reports whether role may read every appointment, not
// only those it takes part in.
func seesAllAppointments(role models.Role) bool {
	return role == models.RoleAdmin || role == models.RoleNurse
}

// Get returns an appointment to one of its participants, an admin or a
// nurse.
func (s *AppointmentService) Get(ctx context.Context, id, userID string, role models.Role) (*models.Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !seesAllAppointments(role) && appt.PatientID != userID && appt.DoctorID != userID {
		return nil, apperr.ErrForbidden
	}
	return appt, nil
}

// ListForUser returns the appointments visible to the caller: patients and
// doctors see their own, admins and nurses see all.
func (s *AppointmentService) ListForUser(ctx context.Context, userID string, role models.Role) ([]models.Appointment, error) {
	var filter store.AppointmentFilter
	switch {
	case role == models.RolePatient:
		filter.PatientID = userID
	case role == models.RoleDoctor:
		filter.DoctorID = userID
	case seesAllAppointments(role):
	default:
		return nil, apperr.ErrForbidden
	}

	appts, err := s.appointments.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

func formatLeadTime(d time.Duration) string {
	if d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	return d.String()
}
