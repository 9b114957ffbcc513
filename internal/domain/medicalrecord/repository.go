package medicalrecord

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// GetByAppointmentID returns ErrRecordNotFound when no record exists yet.
	GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*Record, error)

	// UpsertAIPrediction creates the record on first use and updates the AI
	// fields on subsequent triage turns.
	UpsertAIPrediction(ctx context.Context, appointmentID uuid.UUID, prediction, summary string) error

	// SetDiagnosis writes the doctor's final diagnosis and prescription.
	SetDiagnosis(ctx context.Context, cmd *DiagnoseCommand) (*Record, error)
}
