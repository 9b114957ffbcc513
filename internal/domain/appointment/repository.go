package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, q *ListAppointmentsQuery) (*PagedAppointments, error)

	// UpdateStatus persists the status fields of an appointment whose
	// transition has already been validated in memory. The write only applies
	// while the stored status still equals expected; otherwise
	// ErrStatusChanged is returned and the caller must reload and re-validate.
	UpdateStatus(ctx context.Context, a *Appointment, expected Status) error

	// HasConflict checks whether a doctor already has a live appointment at
	// the exact scheduled time.
	HasConflict(ctx context.Context, doctorID uuid.UUID, scheduledAt time.Time, excludeID *uuid.UUID) (bool, error)
}
