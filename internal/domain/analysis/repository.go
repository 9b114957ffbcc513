package analysis

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	List(ctx context.Context, q *ListRecordsQuery) ([]*Record, error)

	// LatestForAppointment returns the most recent linked record, or
	// ErrRecordNotFound when the appointment has none.
	LatestForAppointment(ctx context.Context, appointmentID uuid.UUID) (*Record, error)
}
