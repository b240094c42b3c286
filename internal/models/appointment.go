package models

import (
	"fmt"
	"time"
)

// AppointmentStatus represents the status of an appointment
type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "SCHEDULED"
	StatusConfirmed  AppointmentStatus = "CONFIRMED"
	StatusInProgress AppointmentStatus = "IN_PROGRESS"
	StatusCompleted  AppointmentStatus = "COMPLETED"
	StatusCancelled  AppointmentStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed from s.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// visitStage orders the statuses a visit moves through. CANCELLED sits
// outside the sequence.
var visitStage = map[AppointmentStatus]int{
	StatusScheduled:  0,
	StatusConfirmed:  1,
	StatusInProgress: 2,
	StatusCompleted:  3,
}

// CanAdvanceTo reports whether an appointment in s may move to next. Visits
// only move forward, skipping stages is allowed, and any open appointment
// may be cancelled.
func (s AppointmentStatus) CanAdvanceTo(next AppointmentStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	from, ok := visitStage[s]
	to, known := visitStage[next]
	return ok && known && to > from
}

// SlotHoldingStatuses are the statuses that keep a doctor's slot occupied.
var SlotHoldingStatuses = []AppointmentStatus{
	StatusScheduled,
	StatusConfirmed,
	StatusInProgress,
	StatusCompleted,
}

const (
	// DateLayout is the wire and storage format of Appointment.Date.
	DateLayout = "2006-01-02"
	// TimeLayout is the wire and storage format of Appointment.Time.
	TimeLayout = "15:04"
)

// Appointment represents a scheduled medical appointment
type Appointment struct {
	BaseModel
	PatientID          string            `gorm:"size:36;index;not null" json:"patientId"`
	DoctorID           string            `gorm:"size:36;index:idx_doctor_slot;not null" json:"doctorId"`
	Date               string            `gorm:"size:10;index:idx_doctor_slot;not null" json:"date"`
	Time               string            `gorm:"size:5;index:idx_doctor_slot;not null" json:"time"`
	Status             AppointmentStatus `gorm:"size:20;not null" json:"status"`
	Fee                float64           `gorm:"type:decimal(10,2)" json:"fee"`
	Reason             string            `gorm:"size:255" json:"reason"`
	Notes              string            `gorm:"type:text" json:"notes,omitempty"`
	CancellationReason *string           `gorm:"size:255" json:"cancellationReason,omitempty"`
	CancelledAt        *time.Time        `json:"cancelledAt,omitempty"`
	CancelledBy        *string           `gorm:"size:36" json:"cancelledBy,omitempty"`
	CheckedInAt        *time.Time        `json:"checkedInAt,omitempty"`
	CheckedOutAt       *time.Time        `json:"checkedOutAt,omitempty"`

	// ActiveSlot is non-nil while the appointment holds its slot. The unique
	// index allows many NULLs, so cancelled rows never collide.
	ActiveSlot *string `gorm:"size:64;uniqueIndex" json:"-"`
}

// SlotKey identifies one bookable (doctor, date, time) window.
func SlotKey(doctorID, date, clock string) string {
	return fmt.Sprintf("%s|%s|%s", doctorID, date, clock)
}

// ScheduledAt resolves Date and Time in loc.
func (a *Appointment) ScheduledAt(loc *time.Location) (time.Time, error) {
	return ParseSlot(a.Date, a.Time, loc)
}

// ParseSlot parses a date and a wall-clock time in loc.
func ParseSlot(date, clock string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, loc)
}
