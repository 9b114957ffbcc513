package v1

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clinicflow/intake/internal/domain/appointment"
	"github.com/clinicflow/intake/internal/service"
)

type AppointmentHandler struct {
	svc *service.AppointmentService
}

func NewAppointmentHandler(svc *service.AppointmentService) *AppointmentHandler {
	return &AppointmentHandler{svc: svc}
}

type createAppointmentRequest struct {
	PatientID   *uuid.UUID `json:"patient_id"`
	DoctorID    uuid.UUID  `json:"doctor_id" binding:"required"`
	Department  string     `json:"department"`
	ScheduledAt time.Time  `json:"scheduled_at" binding:"required"`
}

func (h *AppointmentHandler) Create(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}

	var req createAppointmentRequest
	if !bindJSON(c, &req) {
		return
	}

	// Patients book for themselves unless staff set an explicit patient.
	patientID := claims.UserID
	if req.PatientID != nil {
		patientID = *req.PatientID
	}

	a, err := h.svc.Schedule(c.Request.Context(), &appointment.CreateAppointmentCommand{
		PatientID:   patientID,
		DoctorID:    req.DoctorID,
		Department:  req.Department,
		ScheduledAt: req.ScheduledAt,
		CreatedBy:   claims.UserID,
	}, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, a)
}

func (h *AppointmentHandler) Get(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	a, err := h.svc.Get(c.Request.Context(), id, claims.UserID, string(claims.Role))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, a)
}

func (h *AppointmentHandler) List(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}

	q := &appointment.ListAppointmentsQuery{
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "page_size", 20),
	}
	if raw := c.Query("status"); raw != "" {
		status := appointment.Status(raw)
		q.Status = &status
	}

	page, err := h.svc.List(c.Request.Context(), q, claims.UserID, string(claims.Role))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, page)
}

type cancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

func (h *AppointmentHandler) Cancel(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req cancelAppointmentRequest
	if !bindJSON(c, &req) {
		return
	}

	a, err := h.svc.Cancel(c.Request.Context(), id, &appointment.CancelAppointmentCommand{
		Reason:      req.Reason,
		CancelledBy: claims.UserID,
	}, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, a)
}

func (h *AppointmentHandler) Complete(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	a, err := h.svc.Complete(c.Request.Context(), id, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, a)
}
