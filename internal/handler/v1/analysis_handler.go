package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clinicflow/intake/internal/domain"
	"github.com/clinicflow/intake/internal/domain/analysis"
	"github.com/clinicflow/intake/internal/service"
)

// AnalysisHandler serves stored analysis records; new analyses go through the
// intake handler.
type AnalysisHandler struct {
	bridge *service.AnalysisBridge
}

func NewAnalysisHandler(bridge *service.AnalysisBridge) *AnalysisHandler {
	return &AnalysisHandler{bridge: bridge}
}

func (h *AnalysisHandler) Get(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	rec, err := h.bridge.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if claims.Role == domain.RolePatient && rec.PatientID != claims.UserID {
		respondServiceError(c, service.ErrForbidden)
		return
	}
	respondOK(c, rec)
}

func (h *AnalysisHandler) List(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}

	q := &analysis.ListRecordsQuery{
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "page_size", 20),
	}

	// Patients only see their own records; staff may filter by patient.
	if claims.Role == domain.RolePatient {
		q.PatientID = &claims.UserID
	} else if raw := c.Query("patient_id"); raw != "" {
		pid, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid patient_id: must be a valid UUID")
			return
		}
		q.PatientID = &pid
	}
	if raw := c.Query("appointment_id"); raw != "" {
		aid, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid appointment_id: must be a valid UUID")
			return
		}
		q.AppointmentID = &aid
	}

	records, err := h.bridge.List(c.Request.Context(), q)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, records)
}
