package models

import (
	"time"
)

// MedicalRecordType classifies a clinical entry.
type MedicalRecordType string

const (
	RecordTypeConsultation     MedicalRecordType = "ConsultationNote"
	RecordTypeLabResult        MedicalRecordType = "LabResult"
	RecordTypeImagingReport    MedicalRecordType = "ImagingReport"
	RecordTypeVaccination      MedicalRecordType = "VaccinationRecord"
	RecordTypeAllergy          MedicalRecordType = "AllergyRecord"
	RecordTypeDischargeSummary MedicalRecordType = "DischargeSummary"
)

// MedicalRecord is a clinical entry about a patient written by a member of
// staff. AuthorRole is captured at creation and not updated afterwards.
type MedicalRecord struct {
	BaseModel
	PatientID  string            `gorm:"size:36;index" json:"patientId"`
	AuthorID   string            `gorm:"size:36;index" json:"authorId"`
	AuthorRole Role              `gorm:"size:20" json:"authorRole"`
	RecordType MedicalRecordType `gorm:"size:50" json:"recordType"`
	RecordDate time.Time         `json:"date"`
	Title      string            `gorm:"size:255;not null" json:"title"`
	Department string            `gorm:"size:100" json:"department"`
	Summary    string            `gorm:"type:text" json:"summary"`
	Details    string            `gorm:"type:text" json:"details"`

	Attachments []MedicalRecordAttachment `gorm:"foreignKey:MedicalRecordID" json:"attachments,omitempty"`
}

// MedicalRecordAttachment holds an uploaded file. The bytes never leave the
// server as JSON; they are served raw by the attachment endpoint.
type MedicalRecordAttachment struct {
	BaseModel
	MedicalRecordID string `gorm:"not null;type:varchar(36);index" json:"medicalRecordId"`
	UploadedBy      string `gorm:"size:36" json:"uploadedBy"`
	FileName        string `gorm:"not null" json:"fileName"`
	FileType        string `gorm:"not null" json:"fileType"`
	FileSize        int64  `json:"fileSize"`
	FileData        []byte `gorm:"type:longblob;not null" json:"-"`
}
