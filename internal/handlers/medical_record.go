package handlers

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"clinic-portal-server/internal/apperr"
	"clinic-portal-server/internal/middleware"
	"clinic-portal-server/internal/models"
	"clinic-portal-server/internal/store"
	"clinic-portal-server/internal/utils"

	"github.com/gin-gonic/gin"
)

// MaxAttachmentSize caps an uploaded attachment.
const MaxAttachmentSize = 10 << 20

// MedicalRecordHandler handles medical record related requests.
type MedicalRecordHandler struct {
	records store.MedicalRecordStore
	users   store.UserStore
}

// NewMedicalRecordHandler creates a new MedicalRecordHandler.
func NewMedicalRecordHandler(records store.MedicalRecordStore, users store.UserStore) *MedicalRecordHandler {
	return &MedicalRecordHandler{records: records, users: users}
}

// CreateMedicalRecordRequest represents the request body for creating a medical record.
type CreateMedicalRecordRequest struct {
	PatientID  string                   `json:"patientId" binding:"required,uuid"`
	RecordType models.MedicalRecordType `json:"recordType" binding:"required,oneof=ConsultationNote LabResult ImagingReport VaccinationRecord AllergyRecord DischargeSummary"`
	RecordDate string                   `json:"recordDate"`
	Title      string                   `json:"title" binding:"required,max=255"`
	Department string                   `json:"department" binding:"max=100"`
	Summary    string                   `json:"summary" binding:"required"`
	Details    string                   `json:"details"`
}

// CreateMedicalRecord records a clinical entry for a patient, authored by
// the caller.
func (h *MedicalRecordHandler) CreateMedicalRecord(c *gin.Context) {
	authorID, authorRole, ok := caller(c)
	if !ok {
		return
	}

	var req CreateMedicalRecordRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	recordDate := time.Now().UTC()
	if req.RecordDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.RecordDate)
		if err != nil {
			utils.BadRequest(c, "Invalid date format. Please use ISO 8601 format (YYYY-MM-DDTHH:MM:SSZ)")
			return
		}
		recordDate = parsed
	}

	if _, err := findUser(c.Request.Context(), h.users, req.PatientID, models.RolePatient); err != nil {
		utils.RespondError(c, err)
		return
	}

	record := models.MedicalRecord{
		PatientID:  req.PatientID,
		AuthorID:   authorID,
		AuthorRole: authorRole,
		RecordType: req.RecordType,
		RecordDate: recordDate,
		Title:      req.Title,
		Department: req.Department,
		Summary:    req.Summary,
		Details:    req.Details,
	}
	if err := h.records.Create(c.Request.Context(), &record); err != nil {
		utils.RespondError(c, fmt.Errorf("create medical record: %w", err))
		return
	}

	utils.Created(c, "Medical record created successfully", record)
}

// GetMedicalRecordsForPatient lists a patient's records. The route's
// ownership gate keeps patients to their own.
func (h *MedicalRecordHandler) GetMedicalRecordsForPatient(c *gin.Context) {
	records, err := h.records.ListForPatient(c.Request.Context(), c.Param("patientId"))
	if err != nil {
		utils.RespondError(c, fmt.Errorf("list medical records: %w", err))
		return
	}
	utils.Success(c, "Medical records fetched successfully", records)
}

// GetMedicalRecordByID handles fetching a single medical record by its ID.
func (h *MedicalRecordHandler) GetMedicalRecordByID(c *gin.Context) {
	record, ok := h.loadReadable(c, c.Param("id"))
	if !ok {
		return
	}
	utils.Success(c, "Medical record fetched successfully", record)
}

// UpdateMedicalRecordRequest represents the request body for updating a medical record.
type UpdateMedicalRecordRequest struct {
	RecordType models.MedicalRecordType `json:"recordType" binding:"omitempty,oneof=ConsultationNote LabResult ImagingReport VaccinationRecord AllergyRecord DischargeSummary"`
	RecordDate string                   `json:"recordDate"`
	Title      string                   `json:"title" binding:"max=255"`
	Department string                   `json:"department" binding:"max=100"`
	Summary    string                   `json:"summary"`
	Details    string                   `json:"details"`
}

// UpdateMedicalRecord lets the author or an admin amend a record.
func (h *MedicalRecordHandler) UpdateMedicalRecord(c *gin.Context) {
	var req UpdateMedicalRecordRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	record, ok := h.loadEditable(c, c.Param("id"))
	if !ok {
		return
	}

	if req.RecordType != "" {
		record.RecordType = req.RecordType
	}
	if req.RecordDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.RecordDate)
		if err != nil {
			utils.BadRequest(c, "Invalid date format for recordDate. Please use ISO 8601 format (YYYY-MM-DDTHH:MM:SSZ)")
			return
		}
		record.RecordDate = parsed
	}
	if req.Title != "" {
		record.Title = req.Title
	}
	if req.Department != "" {
		record.Department = req.Department
	}
	if req.Summary != "" {
		record.Summary = req.Summary
	}
	if req.Details != "" {
		record.Details = req.Details
	}

	if err := h.records.Update(c.Request.Context(), record); err != nil {
		utils.RespondError(c, fmt.Errorf("update medical record: %w", err))
		return
	}
	utils.Success(c, "Medical record updated successfully", record)
}

// DeleteMedicalRecord removes a record and its attachments. Only the author
// or an admin may do this.
func (h *MedicalRecordHandler) DeleteMedicalRecord(c *gin.Context) {
	record, ok := h.loadEditable(c, c.Param("id"))
	if !ok {
		return
	}

	if err := h.records.Delete(c.Request.Context(), record.ID); err != nil {
		utils.RespondError(c, notFound(err, "Medical record"))
		return
	}
	utils.Success(c, "Medical record deleted successfully", nil)
}

// UploadMedicalRecordAttachment stores a multipart "file" against a record.
func (h *MedicalRecordHandler) UploadMedicalRecordAttachment(c *gin.Context) {
	record, ok := h.loadEditable(c, c.Param("id"))
	if !ok {
		return
	}
	uploaderID, _, _ := caller(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxAttachmentSize+1<<20)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		utils.BadRequest(c, "A file is required in the \"file\" form field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxAttachmentSize+1))
	if err != nil {
		utils.RespondError(c, fmt.Errorf("read attachment: %w", err))
		return
	}
	if len(data) > MaxAttachmentSize {
		utils.BadRequest(c, "Attachment exceeds the 10 MB limit")
		return
	}

	fileType := header.Header.Get("Content-Type")
	if fileType == "" {
		fileType = http.DetectContentType(data)
	}
	attachment := models.MedicalRecordAttachment{
		MedicalRecordID: record.ID,
		FileName:        header.Filename,
		FileType:        fileType,
		FileSize:        int64(len(data)),
		UploadedBy:      uploaderID,
		FileData:        data,
	}
	if err := h.records.AddAttachment(c.Request.Context(), &attachment); err != nil {
		utils.RespondError(c, notFound(err, "Medical record"))
		return
	}

	// FileData is never serialised.
	utils.Created(c, "File uploaded and linked to medical record successfully", attachment)
}

// GetMedicalRecordAttachment serves an attachment's bytes to anyone who may
// read the parent record.
func (h *MedicalRecordHandler) GetMedicalRecordAttachment(c *gin.Context) {
	attachment, err := h.records.FindAttachment(c.Request.Context(), c.Param("attachmentId"))
	if err != nil {
		utils.RespondError(c, notFound(err, "Attachment"))
		return
	}
	if _, ok := h.loadReadable(c, attachment.MedicalRecordID); !ok {
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", attachment.FileName))
	c.Data(http.StatusOK, attachment.FileType, attachment.FileData)
}

// loadReadable loads a record the caller may read: the patient it belongs
// to, its author, or medical staff.
func (h *MedicalRecordHandler) loadReadable(c *gin.Context, id string) (*models.MedicalRecord, bool) {
	userID, role, ok := caller(c)
	if !ok {
		return nil, false
	}
	record, err := h.records.FindByID(c.Request.Context(), id)
	if err != nil {
		utils.RespondError(c, notFound(err, "Medical record"))
		return nil, false
	}

	if record.PatientID != userID && record.AuthorID != userID && !middleware.MedicalStaff.Allows(role) {
		utils.RespondError(c, apperr.ErrForbidden)
		return nil, false
	}
	return record, true
}

// loadEditable loads a record the caller may change: its author or an admin.
func (h *MedicalRecordHandler) loadEditable(c *gin.Context, id string) (*models.MedicalRecord, bool) {
	userID, role, ok := caller(c)
	if !ok {
		return nil, false
	}
	record, err := h.records.FindByID(c.Request.Context(), id)
	if err != nil {
		utils.RespondError(c, notFound(err, "Medical record"))
		return nil, false
	}

	if record.AuthorID != userID && role != models.RoleAdmin {
		utils.RespondError(c, apperr.ErrForbidden)
		return nil, false
	}
	return record, true
}
