package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clinicflow/intake/internal/domain"
	"github.com/clinicflow/intake/internal/domain/analysis"
	"github.com/clinicflow/intake/internal/domain/appointment"
	"github.com/clinicflow/intake/internal/domain/conversation"
	mr "github.com/clinicflow/intake/internal/domain/medicalrecord"
	"github.com/clinicflow/intake/internal/domain/symptom"
	"github.com/clinicflow/intake/internal/service"
)

type APIResponse[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

type ValidationErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse[any]{Data: data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, APIResponse[any]{Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

func respondServiceError(c *gin.Context, err error) {
	var validErr *service.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, ValidationErrorResponse{
			Error:  "validation failed",
			Fields: validErr.Fields,
		})
		return
	}

	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound),
		errors.Is(err, symptom.ErrRecordNotFound),
		errors.Is(err, analysis.ErrRecordNotFound),
		errors.Is(err, mr.ErrRecordNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})

	case errors.Is(err, appointment.ErrAppointmentConflict),
		errors.Is(err, appointment.ErrInvalidStatusTransition),
		errors.Is(err, appointment.ErrStatusChanged),
		errors.Is(err, service.ErrAppointmentClosed),
		errors.Is(err, service.ErrUsernameTaken):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})

	case errors.Is(err, conversation.ErrConversationBusy):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: err.Error(),
			Code:  "CONVERSATION_BUSY",
		})

	case errors.Is(err, appointment.ErrScheduledInPast),
		errors.Is(err, appointment.ErrOutsideBusinessHours),
		errors.Is(err, appointment.ErrUnknownDoctor),
		errors.Is(err, appointment.ErrUnknownDepartment),
		errors.Is(err, analysis.ErrEmptyImage):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})

	case errors.Is(err, analysis.ErrImageTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error()})

	case errors.Is(err, analysis.ErrUnsupportedFormat):
		c.JSON(http.StatusUnsupportedMediaType, ErrorResponse{Error: err.Error()})

	case errors.Is(err, service.ErrAnalysisService),
		errors.Is(err, service.ErrTriageService):
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})

	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "access denied"})

	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})

	case errors.Is(err, service.ErrAccountInactive):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "account inactive"})

	case errors.Is(err, service.ErrAccountLocked):
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Error: "account temporarily locked",
			Code:  "ACCOUNT_LOCKED",
		})

	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return false
	}

	return true
}

func parseUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	raw := c.Param(param)
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + param + ": must be a valid UUID"})
		return uuid.Nil, false
	}
	return id, true
}

func parseQueryInt(c *gin.Context, key string, defaultVal int) int {
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return defaultVal
}

// currentClaims returns the authenticated caller set by the auth middleware.
func currentClaims(c *gin.Context) (*domain.Claims, bool) {
	v, ok := c.Get(claimsContextKey)
	if !ok {
		respondError(c, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	claims, ok := v.(*domain.Claims)
	if !ok {
		respondError(c, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	return claims, true
}
