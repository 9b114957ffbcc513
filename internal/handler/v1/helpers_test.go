package v1

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clinicflow/intake/internal/config"
	"github.com/clinicflow/intake/internal/domain"
	"github.com/clinicflow/intake/internal/domain/analysis"
	"github.com/clinicflow/intake/internal/domain/appointment"
	"github.com/clinicflow/intake/internal/domain/conversation"
	"github.com/clinicflow/intake/internal/service"
	"github.com/clinicflow/intake/pkg/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRespondServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", &service.ValidationError{Fields: []string{"description is required"}}, http.StatusBadRequest},
		{"appointment not found", appointment.ErrAppointmentNotFound, http.StatusNotFound},
		{"schedule conflict", appointment.ErrAppointmentConflict, http.StatusConflict},
		{"invalid transition", appointment.ErrInvalidStatusTransition, http.StatusConflict},
		{"concurrent status change", appointment.ErrStatusChanged, http.StatusConflict},
		{"closed appointment", service.ErrAppointmentClosed, http.StatusConflict},
		{"conversation busy", conversation.ErrConversationBusy, http.StatusConflict},
		{"outside business hours", appointment.ErrOutsideBusinessHours, http.StatusBadRequest},
		{"unsupported format", analysis.ErrUnsupportedFormat, http.StatusUnsupportedMediaType},
		{"image too large", analysis.ErrImageTooLarge, http.StatusRequestEntityTooLarge},
		{"analysis upstream down", service.ErrAnalysisService, http.StatusBadGateway},
		{"triage upstream down", service.ErrTriageService, http.StatusBadGateway},
		{"forbidden", service.ErrForbidden, http.StatusForbidden},
		{"bad credentials", service.ErrInvalidCredentials, http.StatusUnauthorized},
		{"locked account", service.ErrAccountLocked, http.StatusTooManyRequests},
		{"unknown error", opaqueError{}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondServiceError(c, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("response is not JSON: %v", err)
			}
			if _, ok := body["error"]; !ok {
				t.Error("response has no error field")
			}
		})
	}
}

type opaqueError struct{}

func (opaqueError) Error() string { return "something internal" }

func TestAuthMiddleware(t *testing.T) {
	jwtManager := auth.NewJWTManager(config.JWTConfig{
		Secret:          "test-secret-test-secret-test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		Issuer:          "intake-test",
	})

	router := gin.New()
	router.GET("/protected", Auth(jwtManager), func(c *gin.Context) {
		claims, ok := currentClaims(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": claims.UserID})
	})

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("valid access token", func(t *testing.T) {
		pair, err := jwtManager.GenerateTokenPair(&domain.Claims{
			UserID:   uuid.New(),
			Username: "pat",
			Role:     domain.RolePatient,
		})
		if err != nil {
			t.Fatalf("GenerateTokenPair: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200, body %s", w.Code, w.Body.String())
		}
	})

	t.Run("refresh token rejected on access endpoints", func(t *testing.T) {
		pair, err := jwtManager.GenerateTokenPair(&domain.Claims{
			UserID:   uuid.New(),
			Username: "pat",
			Role:     domain.RolePatient,
		})
		if err != nil {
			t.Fatalf("GenerateTokenPair: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}

func TestRequireRole(t *testing.T) {
	router := gin.New()
	router.GET("/staff",
		func(c *gin.Context) {
			c.Set(claimsContextKey, &domain.Claims{UserID: uuid.New(), Role: domain.RolePatient})
		},
		RequireRole(domain.RoleDoctor, domain.RoleAdmin),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/staff", nil))
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}
