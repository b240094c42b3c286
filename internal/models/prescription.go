package models

import (
	"time"
)

// PrescriptionStatus tracks a prescription from issue to pharmacy hand-off.
type PrescriptionStatus string

const (
	PrescriptionActive    PrescriptionStatus = "ACTIVE"
	PrescriptionDispensed PrescriptionStatus = "DISPENSED"
	PrescriptionCancelled PrescriptionStatus = "CANCELLED"
)

// Prescription is a medication order written by a doctor for a patient.
type Prescription struct {
	BaseModel
	PatientID     string             `gorm:"size:36;index;not null" json:"patientId"`
	DoctorID      string             `gorm:"size:36;index;not null" json:"doctorId"`
	AppointmentID *string            `gorm:"size:36;index" json:"appointmentId,omitempty"`
	Medication    string             `gorm:"size:255;not null" json:"medication"`
	Dosage        string             `gorm:"size:100;not null" json:"dosage"`
	Frequency     string             `gorm:"size:100;not null" json:"frequency"`
	DurationDays  int                `json:"durationDays"`
	Instructions  string             `gorm:"type:text" json:"instructions,omitempty"`
	Status        PrescriptionStatus `gorm:"size:20;not null" json:"status"`
	DispensedBy   *string            `gorm:"size:36" json:"dispensedBy,omitempty"`
	DispensedAt   *time.Time         `json:"dispensedAt,omitempty"`
}
