package conversation

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Append persists a turn. Returns ErrSequenceConflict if a turn with the
	// same (appointment, seq) already exists.
	Append(ctx context.Context, t *Turn) error

	// ListByAppointment returns the full transcript in seq order.
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*Turn, error)

	// NextSeq returns the sequence number the next appended turn must carry.
	NextSeq(ctx context.Context, appointmentID uuid.UUID) (int, error)
}
