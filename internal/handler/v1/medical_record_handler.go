package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/clinicflow/intake/internal/domain/medicalrecord"
	"github.com/clinicflow/intake/internal/service"
)

type MedicalRecordHandler struct {
	svc *service.MedicalRecordService
}

func NewMedicalRecordHandler(svc *service.MedicalRecordService) *MedicalRecordHandler {
	return &MedicalRecordHandler{svc: svc}
}

func (h *MedicalRecordHandler) Get(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	rec, err := h.svc.GetByAppointment(c.Request.Context(), id, claims.UserID, string(claims.Role))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, rec)
}

type diagnoseRequest struct {
	DoctorDiagnosis string `json:"doctor_diagnosis" binding:"required"`
	Prescription    string `json:"prescription"`
}

func (h *MedicalRecordHandler) Diagnose(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req diagnoseRequest
	if !bindJSON(c, &req) {
		return
	}

	rec, err := h.svc.Diagnose(c.Request.Context(), &medicalrecord.DiagnoseCommand{
		AppointmentID:   id,
		DoctorDiagnosis: req.DoctorDiagnosis,
		Prescription:    req.Prescription,
	}, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, rec)
}
