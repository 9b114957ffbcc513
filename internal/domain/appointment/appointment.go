package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks the intake lifecycle of an appointment.
//
// Allowed progression:
//
//	created → symptoms_submitted → analysis_attached → in_conversation → completed
//
// Any intermediate step may be skipped going forward (analysis is optional,
// a conversation may start straight after creation), but the status never
// moves backwards. cancelled is terminal and reachable from every
// non-completed state.
type Status string

const (
	StatusCreated           Status = "created"
	StatusSymptomsSubmitted Status = "symptoms_submitted"
	StatusAnalysisAttached  Status = "analysis_attached"
	StatusInConversation    Status = "in_conversation"
	StatusCompleted         Status = "completed"
	StatusCancelled         Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusSymptomsSubmitted, StatusAnalysisAttached,
		StatusInConversation, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// rank orders the forward progression. cancelled sits outside the order.
var rank = map[Status]int{
	StatusCreated:           0,
	StatusSymptomsSubmitted: 1,
	StatusAnalysisAttached:  2,
	StatusInConversation:    3,
	StatusCompleted:         4,
}

type Appointment struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
	DeletedAt *time.Time `gorm:"index"`

	PatientID uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index"`
	DoctorID  uuid.UUID `gorm:"column:doctor_id;type:uuid;not null;index"`

	Department  string    `gorm:"column:department;type:varchar(100);not null;index"`
	ScheduledAt time.Time `gorm:"column:scheduled_at;not null;index"`
	Status      Status    `gorm:"column:status;type:varchar(30);not null;default:'created';index"`

	// Cancellation tracking
	CancelledAt        *time.Time `gorm:"column:cancelled_at"`
	CancellationReason string     `gorm:"column:cancellation_reason;type:text"`
	CancelledBy        *uuid.UUID `gorm:"column:cancelled_by;type:uuid"`

	CompletedAt *time.Time `gorm:"column:completed_at"`

	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null"`
}

func (Appointment) TableName() string {
	return "clinical.appointments"
}

// CanTransitionTo reports whether moving to newStatus respects the
// forward-only ordering. Terminal states permit nothing.
func (a *Appointment) CanTransitionTo(newStatus Status) bool {
	allowed := map[Status][]Status{
		StatusCreated:           {StatusSymptomsSubmitted, StatusAnalysisAttached, StatusInConversation, StatusCompleted, StatusCancelled},
		StatusSymptomsSubmitted: {StatusAnalysisAttached, StatusInConversation, StatusCompleted, StatusCancelled},
		StatusAnalysisAttached:  {StatusInConversation, StatusCompleted, StatusCancelled},
		StatusInConversation:    {StatusCompleted, StatusCancelled},
		StatusCompleted:         {},
		StatusCancelled:         {},
	}

	for _, s := range allowed[a.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

// Transition applies a forward move, rejecting regressions and writes to
// terminal states.
func (a *Appointment) Transition(newStatus Status) error {
	if !newStatus.IsValid() {
		return ErrInvalidStatusTransition
	}
	if newStatus == StatusCancelled {
		return a.Cancel("", uuid.Nil)
	}
	if !a.CanTransitionTo(newStatus) {
		return ErrInvalidStatusTransition
	}
	a.Status = newStatus
	if newStatus == StatusCompleted {
		now := time.Now()
		a.CompletedAt = &now
	}
	return nil
}

// AdvanceTo moves the appointment forward to target unless it is already at
// or past it, in which case nothing changes. Terminal states reject the move.
func (a *Appointment) AdvanceTo(target Status) (changed bool, err error) {
	if a.Status.IsTerminal() {
		return false, ErrInvalidStatusTransition
	}
	if rank[target] <= rank[a.Status] {
		return false, nil
	}
	a.Status = target
	return true, nil
}

// Cancel is idempotent: cancelling an already-cancelled appointment is a
// no-op. Completed appointments cannot be cancelled.
func (a *Appointment) Cancel(reason string, cancelledBy uuid.UUID) error {
	if a.Status == StatusCancelled {
		return nil
	}
	if a.Status == StatusCompleted {
		return ErrInvalidStatusTransition
	}
	now := time.Now()
	a.Status = StatusCancelled
	a.CancelledAt = &now
	a.CancellationReason = reason
	if cancelledBy != uuid.Nil {
		a.CancelledBy = &cancelledBy
	}
	return nil
}

type CreateAppointmentCommand struct {
	PatientID   uuid.UUID
	DoctorID    uuid.UUID
	Department  string
	ScheduledAt time.Time
	CreatedBy   uuid.UUID
}

type CancelAppointmentCommand struct {
	Reason      string
	CancelledBy uuid.UUID
}

type ListAppointmentsQuery struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    *Status
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
}

type PagedAppointments struct {
	Appointments []*Appointment
	TotalCount   int64
	Page         int
	PageSize     int
	TotalPages   int
}
