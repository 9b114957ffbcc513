package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/clinicflow/intake/internal/service"
)

// ReferenceHandler serves the lists booking screens need before login.
type ReferenceHandler struct {
	svc *service.ReferenceService
}

func NewReferenceHandler(svc *service.ReferenceService) *ReferenceHandler {
	return &ReferenceHandler{svc: svc}
}

func (h *ReferenceHandler) ListDoctors(c *gin.Context) {
	doctors, err := h.svc.ListDoctors(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, doctors)
}

func (h *ReferenceHandler) ListDepartments(c *gin.Context) {
	departments, err := h.svc.ListDepartments(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, departments)
}
