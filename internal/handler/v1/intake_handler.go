package v1

import (
	"encoding/base64"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clinicflow/intake/internal/domain/analysis"
	"github.com/clinicflow/intake/internal/domain/symptom"
	"github.com/clinicflow/intake/internal/service"
)

// IntakeHandler exposes the intake flow: symptom submission, photo analysis
// and the triage conversation.
type IntakeHandler struct {
	svc      *service.IntakeService
	maxBytes int64
}

func NewIntakeHandler(svc *service.IntakeService, maxBytes int64) *IntakeHandler {
	return &IntakeHandler{svc: svc, maxBytes: maxBytes}
}

type submitSymptomsRequest struct {
	Description      string   `json:"description" binding:"required"`
	DurationCategory string   `json:"duration_category" binding:"required"`
	SeverityLevel    string   `json:"severity_level" binding:"required"`
	Tags             []string `json:"tags"`
	Notes            string   `json:"notes"`
	// Optional symptom photo, base64-encoded. Stored alongside the record.
	ImageBase64 string `json:"image_base64"`
}

func (h *IntakeHandler) SubmitSymptoms(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req submitSymptomsRequest
	if !bindJSON(c, &req) {
		return
	}

	var image []byte
	if req.ImageBase64 != "" {
		var err error
		image, err = base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			respondError(c, http.StatusBadRequest, "image_base64 is not valid base64")
			return
		}
		if int64(len(image)) > h.maxBytes {
			respondServiceError(c, analysis.ErrImageTooLarge)
			return
		}
	}

	rec, err := h.svc.SubmitSymptoms(c.Request.Context(), &symptom.SubmitCommand{
		AppointmentID:    id,
		Description:      req.Description,
		DurationCategory: symptom.DurationCategory(req.DurationCategory),
		SeverityLevel:    symptom.SeverityLevel(req.SeverityLevel),
		Tags:             req.Tags,
		Image:            image,
		Notes:            req.Notes,
		SubmittedBy:      claims.UserID,
	}, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, rec)
}

func (h *IntakeHandler) GetSymptoms(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	rec, err := h.svc.GetSymptoms(c.Request.Context(), id, claims.UserID, string(claims.Role))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, rec)
}

// AnalyzeImage accepts a multipart upload. The appointment_id field is
// optional; without it the analysis is standalone.
func (h *IntakeHandler) AnalyzeImage(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}

	file, _, err := c.Request.FormFile("image")
	if err != nil {
		respondError(c, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	// Read one byte past the limit so oversized uploads are detected without
	// buffering the whole body.
	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		respondError(c, http.StatusBadRequest, "reading image: "+err.Error())
		return
	}
	if int64(len(data)) > h.maxBytes {
		respondServiceError(c, analysis.ErrImageTooLarge)
		return
	}

	cmd := &service.AnalyzeImageCommand{
		PatientID:    claims.UserID,
		AnalysisType: c.PostForm("analysis_type"),
		Image:        data,
	}
	if raw := c.PostForm("appointment_id"); raw != "" {
		apptID, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid appointment_id: must be a valid UUID")
			return
		}
		cmd.AppointmentID = &apptID
	}

	rec, err := h.svc.AnalyzeImage(c.Request.Context(), cmd, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, rec)
}

type postMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

func (h *IntakeHandler) PostMessage(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req postMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	reply, err := h.svc.PostMessage(c.Request.Context(), id, req.Message, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, reply)
}

func (h *IntakeHandler) GetConversation(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	turns, err := h.svc.GetConversation(c.Request.Context(), id, claims.UserID, string(claims.Role))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, turns)
}
