package handlers

import (
	"strings"

	"clinic-portal-server/internal/models"
	"clinic-portal-server/internal/services"
	"clinic-portal-server/internal/utils"

	"github.com/gin-gonic/gin"
)

// AppointmentHandler exposes the booking guard over HTTP.
type AppointmentHandler struct {
	appointments *services.AppointmentService
}

// NewAppointmentHandler creates a new AppointmentHandler.
func NewAppointmentHandler(appointments *services.AppointmentService) *AppointmentHandler {
	return &AppointmentHandler{appointments: appointments}
}

// CreateAppointmentRequest represents the request body for booking. Date and
// time are checked by the booking guard, which reports malformed values.
type CreateAppointmentRequest struct {
	DoctorID string `json:"doctorId" binding:"required"`
	Date     string `json:"date" binding:"required"`
	Time     string `json:"time" binding:"required"`
	Reason   string `json:"reason" binding:"max=255"`
}

// CreateAppointment books a slot for the calling patient.
func (h *AppointmentHandler) CreateAppointment(c *gin.Context) {
	patientID, _, ok := caller(c)
	if !ok {
		return
	}

	var req CreateAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	appt, err := h.appointments.Book(c.Request.Context(), services.BookRequest{
		PatientID: patientID,
		DoctorID:  req.DoctorID,
		Date:      strings.TrimSpace(req.Date),
		Time:      strings.TrimSpace(req.Time),
		Reason:    req.Reason,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.Created(c, "Appointment booked successfully", appt)
}

// GetAppointments lists the appointments visible to the caller.
func (h *AppointmentHandler) GetAppointments(c *gin.Context) {
	userID, role, ok := caller(c)
	if !ok {
		return
	}

	appts, err := h.appointments.ListForUser(c.Request.Context(), userID, role)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointments fetched successfully", appts)
}

// GetAppointmentByID returns one appointment to a participant or an admin.
func (h *AppointmentHandler) GetAppointmentByID(c *gin.Context) {
	userID, role, ok := caller(c)
	if !ok {
		return
	}

	appt, err := h.appointments.Get(c.Request.Context(), c.Param("id"), userID, role)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment fetched successfully", appt)
}

// UpdateStatusRequest represents the request body for a doctor's status change.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes"`
}

// UpdateAppointmentStatus moves an appointment along its lifecycle. Only the
// assigned doctor may do this.
func (h *AppointmentHandler) UpdateAppointmentStatus(c *gin.Context) {
	doctorID, _, ok := caller(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	status := models.AppointmentStatus(strings.ToUpper(strings.TrimSpace(req.Status)))

	appt, err := h.appointments.UpdateStatus(c.Request.Context(), c.Param("id"), doctorID, status, req.Notes)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment status updated successfully", appt)
}

// CancelAppointmentRequest represents the optional body of a cancellation.
type CancelAppointmentRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}

// CancelAppointment cancels an appointment for its patient, its doctor or an
// admin. Cancelling twice returns the cancelled appointment.
func (h *AppointmentHandler) CancelAppointment(c *gin.Context) {
	userID, role, ok := caller(c)
	if !ok {
		return
	}

	var req CancelAppointmentRequest
	if c.Request.ContentLength > 0 && !utils.BindAndValidate(c, &req) {
		return
	}

	appt, err := h.appointments.Cancel(c.Request.Context(), c.Param("id"), userID, role, req.Reason)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment cancelled successfully", appt)
}
