package symptom

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Upsert replaces any existing record for the appointment (last-write-wins).
	Upsert(ctx context.Context, r *Record) error

	// GetByAppointmentID returns ErrRecordNotFound when no submission exists.
	GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*Record, error)
}
