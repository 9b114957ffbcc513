package service

import (
	"errors"
	"strings"
)

var (
	ErrForbidden = errors.New("forbidden: insufficient permissions")

	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountLocked      = errors.New("account is temporarily locked due to multiple failed login attempts")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrUsernameTaken      = errors.New("username is already registered")

	// ErrAppointmentClosed covers any write against a cancelled or completed
	// appointment.
	ErrAppointmentClosed = errors.New("appointment is cancelled or completed")

	// External dependency failures. Surfaced distinctly from validation so
	// callers can tell "fix your input" from "retry later".
	ErrAnalysisService = errors.New("image analysis service failed")
	ErrTriageService   = errors.New("triage assistant is temporarily unavailable")
)

type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}
