package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/clinicflow/intake/internal/service"
)

type AuthHandler struct {
	authSvc *service.AuthService
	refSvc  *service.ReferenceService
}

func NewAuthHandler(authSvc *service.AuthService, refSvc *service.ReferenceService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc, refSvc: refSvc}
}

type registerRequest struct {
	Username   string `json:"username" binding:"required"`
	Password   string `json:"password" binding:"required"`
	FullName   string `json:"full_name" binding:"required"`
	Role       string `json:"role" binding:"required"`
	Department string `json:"department"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.authSvc.Register(c.Request.Context(), &service.RegisterCommand{
		Username:   req.Username,
		Password:   req.Password,
		FullName:   req.FullName,
		Role:       req.Role,
		Department: req.Department,
	}, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	// A new doctor changes the cached booking lists.
	if req.Role == "doctor" {
		h.refSvc.Invalidate(c.Request.Context())
	}

	respondCreated(c, gin.H{
		"id":        user.ID,
		"username":  user.Username,
		"full_name": user.FullName,
		"role":      user.Role,
	})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	pair, err := h.authSvc.Login(c.Request.Context(), req.Username, req.Password, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}

	pair, err := h.authSvc.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, pair)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}

	var req changePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authSvc.ChangePassword(c.Request.Context(), claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, gin.H{"message": "password updated"})
}
