package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicflow/intake/internal/config"
	"github.com/clinicflow/intake/internal/domain"
	"github.com/clinicflow/intake/internal/domain/appointment"
	"github.com/clinicflow/intake/pkg/metrics"
)

type AppointmentService struct {
	repo     appointment.Repository
	userRepo UserRepository
	auditSvc *AuditService
	metrics  *metrics.Collector
	policy   config.IntakeConfig
	log      *zap.Logger
}

func NewAppointmentService(
	repo appointment.Repository,
	userRepo UserRepository,
	auditSvc *AuditService,
	m *metrics.Collector,
	policy config.IntakeConfig,
	log *zap.Logger,
) *AppointmentService {
	return &AppointmentService{
		repo:     repo,
		userRepo: userRepo,
		auditSvc: auditSvc,
		metrics:  m,
		policy:   policy,
		log:      log,
	}
}

func (s *AppointmentService) Schedule(
	ctx context.Context,
	cmd *appointment.CreateAppointmentCommand,
	callerID uuid.UUID,
	callerRole string,
	ip string,
) (*appointment.Appointment, error) {
	if cmd.ScheduledAt.Before(time.Now()) {
		return nil, appointment.ErrScheduledInPast
	}
	if !s.withinBusinessHours(cmd.ScheduledAt) {
		return nil, appointment.ErrOutsideBusinessHours
	}

	// Patients book for themselves; staff may book on a patient's behalf.
	if callerRole == string(domain.RolePatient) && cmd.PatientID != callerID {
		return nil, ErrForbidden
	}

	doctor, err := s.userRepo.GetByID(ctx, cmd.DoctorID)
	if err != nil {
		return nil, appointment.ErrUnknownDoctor
	}
	if doctor.Role != domain.RoleDoctor || !doctor.IsActive {
		return nil, appointment.ErrUnknownDoctor
	}
	if cmd.Department != "" && doctor.Department != cmd.Department {
		return nil, appointment.ErrUnknownDepartment
	}

	conflict, err := s.repo.HasConflict(ctx, cmd.DoctorID, cmd.ScheduledAt, nil)
	if err != nil {
		return nil, fmt.Errorf("checking conflicts: %w", err)
	}
	if conflict {
		return nil, appointment.ErrAppointmentConflict
	}

	a := &appointment.Appointment{
		PatientID:   cmd.PatientID,
		DoctorID:    cmd.DoctorID,
		Department:  doctor.Department,
		ScheduledAt: cmd.ScheduledAt,
		Status:      appointment.StatusCreated,
		CreatedBy:   cmd.CreatedBy,
	}

	if err := s.repo.Create(ctx, a); err != nil {
		s.log.Error("failed to create appointment", zap.Error(err))
		return nil, fmt.Errorf("creating appointment: %w", err)
	}

	s.metrics.AppointmentsTotal.WithLabelValues(string(appointment.StatusCreated)).Inc()

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID:       callerID,
		UserRole:     callerRole,
		Action:       "create",
		ResourceType: "appointment",
		ResourceID:   a.ID.String(),
		IPAddress:    ip,
	})

	return a, nil
}

func (s *AppointmentService) Get(ctx context.Context, id uuid.UUID, callerID uuid.UUID, callerRole string) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeAppointmentAccess(a, callerID, callerRole); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AppointmentService) List(ctx context.Context, q *appointment.ListAppointmentsQuery, callerID uuid.UUID, callerRole string) (*appointment.PagedAppointments, error) {
	// Patients can only see their own appointments, doctors their own schedule.
	switch callerRole {
	case string(domain.RolePatient):
		q.PatientID = &callerID
	case string(domain.RoleDoctor):
		q.DoctorID = &callerID
	}
	if q.PageSize <= 0 || q.PageSize > 100 {
		q.PageSize = 20
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	return s.repo.List(ctx, q)
}

func (s *AppointmentService) Cancel(ctx context.Context, id uuid.UUID, cmd *appointment.CancelAppointmentCommand, callerID uuid.UUID, callerRole string, ip string) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeAppointmentAccess(a, callerID, callerRole); err != nil {
		return nil, err
	}

	for {
		// Repeated cancels are no-ops; skip the write and the audit entry.
		if a.Status == appointment.StatusCancelled {
			return a, nil
		}

		expected := a.Status
		if err := a.Cancel(cmd.Reason, cmd.CancelledBy); err != nil {
			return nil, err
		}

		err = s.repo.UpdateStatus(ctx, a, expected)
		if err == nil {
			break
		}
		if !errors.Is(err, appointment.ErrStatusChanged) {
			return nil, fmt.Errorf("updating appointment status: %w", err)
		}

		// Lost the race; re-validate against the current state.
		a, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	s.metrics.AppointmentsTotal.WithLabelValues(string(appointment.StatusCancelled)).Inc()

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "appointment", ResourceID: id.String(), IPAddress: ip,
		Changes: fmt.Sprintf(`{"status":"cancelled","reason":%q}`, cmd.Reason),
	})

	return a, nil
}

func (s *AppointmentService) Complete(ctx context.Context, id uuid.UUID, callerID uuid.UUID, callerRole string, ip string) (*appointment.Appointment, error) {
	// Only clinic staff close out a visit.
	if callerRole != string(domain.RoleDoctor) && callerRole != string(domain.RoleAdmin) {
		return nil, ErrForbidden
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeAppointmentAccess(a, callerID, callerRole); err != nil {
		return nil, err
	}

	for {
		expected := a.Status
		if err := a.Transition(appointment.StatusCompleted); err != nil {
			return nil, err
		}

		err = s.repo.UpdateStatus(ctx, a, expected)
		if err == nil {
			break
		}
		if !errors.Is(err, appointment.ErrStatusChanged) {
			return nil, fmt.Errorf("updating appointment status: %w", err)
		}

		a, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	s.metrics.AppointmentsTotal.WithLabelValues(string(appointment.StatusCompleted)).Inc()

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "appointment", ResourceID: id.String(), IPAddress: ip,
		Changes: `{"status":"completed"}`,
	})

	return a, nil
}

func (s *AppointmentService) withinBusinessHours(t time.Time) bool {
	h := t.Hour()
	return h >= s.policy.OpeningHour && h < s.policy.ClosingHour
}

func authorizeAppointmentAccess(a *appointment.Appointment, callerID uuid.UUID, callerRole string) error {
	switch callerRole {
	case string(domain.RolePatient):
		if a.PatientID != callerID {
			return ErrForbidden
		}
	case string(domain.RoleDoctor):
		if a.DoctorID != callerID {
			return ErrForbidden
		}
	}
	return nil
}
