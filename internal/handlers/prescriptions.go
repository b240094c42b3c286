package handlers

import (
	"errors"
	"fmt"
	"time"

	"clinic-portal-server/internal/apperr"
	"clinic-portal-server/internal/models"
	"clinic-portal-server/internal/store"
	"clinic-portal-server/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var errPrescriptionNotActive = apperr.ErrInvalidTransition.WithMessage("Prescription is no longer active")

// PrescriptionHandler handles prescription requests.
type PrescriptionHandler struct {
	prescriptions store.PrescriptionStore
	users         store.UserStore
	appointments  store.AppointmentStore
	now           func() time.Time
}

// NewPrescriptionHandler creates a new PrescriptionHandler.
func NewPrescriptionHandler(prescriptions store.PrescriptionStore, users store.UserStore, appointments store.AppointmentStore) *PrescriptionHandler {
	return &PrescriptionHandler{
		prescriptions: prescriptions,
		users:         users,
		appointments:  appointments,
		now:           time.Now,
	}
}

// CreatePrescriptionRequest represents the request body for writing a prescription.
type CreatePrescriptionRequest struct {
	PatientID     string `json:"patientId" binding:"required,uuid"`
	AppointmentID string `json:"appointmentId" binding:"omitempty,uuid"`
	Medication    string `json:"medication" binding:"required,max=255"`
	Dosage        string `json:"dosage" binding:"required,max=100"`
	Frequency     string `json:"frequency" binding:"required,max=100"`
	DurationDays  int    `json:"durationDays" binding:"required,min=1,max=365"`
	Instructions  string `json:"instructions"`
}

// CreatePrescription writes a prescription from the calling doctor. When it
// references an appointment, that appointment must be between the same
// doctor and patient.
func (h *PrescriptionHandler) CreatePrescription(c *gin.Context) {
	doctorID, _, ok := caller(c)
	if !ok {
		return
	}

	var req CreatePrescriptionRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	ctx := c.Request.Context()

	if _, err := findUser(ctx, h.users, req.PatientID, models.RolePatient); err != nil {
		utils.RespondError(c, err)
		return
	}

	p := models.Prescription{
		PatientID:    req.PatientID,
		DoctorID:     doctorID,
		Medication:   req.Medication,
		Dosage:       req.Dosage,
		Frequency:    req.Frequency,
		DurationDays: req.DurationDays,
		Instructions: req.Instructions,
		Status:       models.PrescriptionActive,
	}

	if req.AppointmentID != "" {
		appt, err := h.appointments.FindByID(ctx, req.AppointmentID)
		if err != nil {
			utils.RespondError(c, notFound(err, "Appointment"))
			return
		}
		if appt.DoctorID != doctorID || appt.PatientID != req.PatientID {
			utils.RespondError(c, apperr.Invalid("Appointment does not belong to this doctor and patient"))
			return
		}
		p.AppointmentID = &appt.ID
	}

	if err := h.prescriptions.Create(ctx, &p); err != nil {
		utils.RespondError(c, fmt.Errorf("create prescription: %w", err))
		return
	}
	utils.Created(c, "Prescription created successfully", p)
}

// GetPrescriptionsForPatient lists a patient's prescriptions. The route's
// ownership gate keeps patients to their own.
func (h *PrescriptionHandler) GetPrescriptionsForPatient(c *gin.Context) {
	ps, err := h.prescriptions.ListForPatient(c.Request.Context(), c.Param("patientId"))
	if err != nil {
		utils.RespondError(c, fmt.Errorf("list prescriptions: %w", err))
		return
	}
	utils.Success(c, "Prescriptions fetched successfully", ps)
}

// DispensePrescription marks an active prescription as handed out by the
// calling pharmacist.
func (h *PrescriptionHandler) DispensePrescription(c *gin.Context) {
	userID, _, ok := caller(c)
	if !ok {
		return
	}

	p, err := h.prescriptions.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondError(c, notFound(err, "Prescription"))
		return
	}

	now := h.now().UTC()
	p.Status = models.PrescriptionDispensed
	p.DispensedBy = &userID
	p.DispensedAt = &now
	if !h.advance(c, p) {
		return
	}

	log.Info().Str("prescription_id", p.ID).Str("dispensed_by", userID).Msg("prescription dispensed")
	utils.Success(c, "Prescription dispensed successfully", p)
}

// CancelPrescription withdraws an active prescription. Only the prescribing
// doctor or an admin may do this.
func (h *PrescriptionHandler) CancelPrescription(c *gin.Context) {
	userID, role, ok := caller(c)
	if !ok {
		return
	}

	p, err := h.prescriptions.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondError(c, notFound(err, "Prescription"))
		return
	}
	if p.DoctorID != userID && role != models.RoleAdmin {
		utils.RespondError(c, apperr.ErrForbidden)
		return
	}

	p.Status = models.PrescriptionCancelled
	if !h.advance(c, p) {
		return
	}
	utils.Success(c, "Prescription cancelled successfully", p)
}

// advance writes p's new status if the stored one is still ACTIVE.
func (h *PrescriptionHandler) advance(c *gin.Context, p *models.Prescription) bool {
	err := h.prescriptions.UpdateStatus(c.Request.Context(), p, models.PrescriptionActive)
	if errors.Is(err, store.ErrStale) {
		utils.RespondError(c, errPrescriptionNotActive)
		return false
	}
	if err != nil {
		utils.RespondError(c, fmt.Errorf("update prescription status: %w", err))
		return false
	}
	return true
}
