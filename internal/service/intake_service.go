package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicflow/intake/internal/domain/analysis"
	"github.com/clinicflow/intake/internal/domain/appointment"
	"github.com/clinicflow/intake/internal/domain/conversation"
	"github.com/clinicflow/intake/internal/domain/symptom"
	"github.com/clinicflow/intake/internal/storage"
	"github.com/clinicflow/intake/pkg/metrics"
)

// IntakeService orchestrates the intake flow around an appointment: symptom
// submission, photo analysis and the triage conversation. It is the only
// writer of appointment status transitions, so every step observes the same
// monotonic lifecycle.
type IntakeService struct {
	appointments appointment.Repository
	symptoms     symptom.Repository
	bridge       *AnalysisBridge
	engine       *TriageEngine
	store        storage.ObjectStore
	auditSvc     *AuditService
	metrics      *metrics.Collector
	log          *zap.Logger
}

func NewIntakeService(
	appointments appointment.Repository,
	symptoms symptom.Repository,
	bridge *AnalysisBridge,
	engine *TriageEngine,
	store storage.ObjectStore,
	auditSvc *AuditService,
	m *metrics.Collector,
	log *zap.Logger,
) *IntakeService {
	return &IntakeService{
		appointments: appointments,
		symptoms:     symptoms,
		bridge:       bridge,
		engine:       engine,
		store:        store,
		auditSvc:     auditSvc,
		metrics:      m,
		log:          log,
	}
}

// SubmitSymptoms records the structured symptom report for an appointment.
// Resubmission replaces the previous report wholesale; the appointment status
// only ever moves forward.
func (s *IntakeService) SubmitSymptoms(ctx context.Context, cmd *symptom.SubmitCommand, callerID uuid.UUID, callerRole string, ip string) (*symptom.Record, error) {
	a, err := s.loadWritable(ctx, cmd.AppointmentID, callerID, callerRole)
	if err != nil {
		return nil, err
	}

	if errs := cmd.Validate(); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}

	var imageRef string
	if len(cmd.Image) > 0 {
		contentType, err := sniffImageFormat(cmd.Image)
		if err != nil {
			return nil, err
		}
		imageRef, err = s.store.PutImage(ctx, cmd.Image, contentType)
		if err != nil {
			s.log.Error("failed to store symptom image", zap.Error(err))
			return nil, fmt.Errorf("storing symptom image: %w", err)
		}
	}

	rec := &symptom.Record{
		AppointmentID:    cmd.AppointmentID,
		Description:      cmd.Description,
		DurationCategory: cmd.DurationCategory,
		SeverityLevel:    cmd.SeverityLevel,
		Tags:             cmd.Tags,
		ImageRef:         imageRef,
		Notes:            cmd.Notes,
		CreatedBy:        cmd.SubmittedBy,
	}

	if err := s.symptoms.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("saving symptom record: %w", err)
	}
	s.metrics.SymptomSubmissions.Inc()

	if err := s.advance(ctx, a, appointment.StatusSymptomsSubmitted); err != nil {
		return nil, err
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "symptom_record", ResourceID: cmd.AppointmentID.String(), IPAddress: ip,
	})

	return rec, nil
}

// GetSymptoms returns the current symptom report for an appointment.
func (s *IntakeService) GetSymptoms(ctx context.Context, appointmentID uuid.UUID, callerID uuid.UUID, callerRole string) (*symptom.Record, error) {
	a, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := authorizeAppointmentAccess(a, callerID, callerRole); err != nil {
		return nil, err
	}
	return s.symptoms.GetByAppointmentID(ctx, appointmentID)
}

// AnalyzeImage runs a photo through the analysis pipeline. When the analysis
// is linked to an appointment the status advances; a standalone analysis has
// no status side effect.
func (s *IntakeService) AnalyzeImage(ctx context.Context, cmd *AnalyzeImageCommand, callerID uuid.UUID, callerRole string, ip string) (*analysis.Record, error) {
	var a *appointment.Appointment
	if cmd.AppointmentID != nil {
		var err error
		a, err = s.loadWritable(ctx, *cmd.AppointmentID, callerID, callerRole)
		if err != nil {
			return nil, err
		}
	}

	rec, err := s.bridge.Analyze(ctx, cmd)
	if err != nil {
		return nil, err
	}

	if a != nil {
		if err := s.advance(ctx, a, appointment.StatusAnalysisAttached); err != nil {
			return nil, err
		}
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "create", ResourceType: "analysis_record", ResourceID: rec.ID.String(), IPAddress: ip,
	})

	return rec, nil
}

// PostMessage sends a patient message into the triage conversation and
// returns the assistant's reply turn.
func (s *IntakeService) PostMessage(ctx context.Context, appointmentID uuid.UUID, message string, callerID uuid.UUID, callerRole string, ip string) (*conversation.Turn, error) {
	a, err := s.loadWritable(ctx, appointmentID, callerID, callerRole)
	if err != nil {
		return nil, err
	}

	reply, err := s.engine.Converse(ctx, appointmentID, message)
	if err != nil {
		return nil, err
	}

	if err := s.advance(ctx, a, appointment.StatusInConversation); err != nil {
		return nil, err
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "create", ResourceType: "conversation_turn", ResourceID: appointmentID.String(), IPAddress: ip,
	})

	return reply, nil
}

// GetConversation returns the transcript. Reads never interact with the
// conversation busy gate.
func (s *IntakeService) GetConversation(ctx context.Context, appointmentID uuid.UUID, callerID uuid.UUID, callerRole string) ([]*conversation.Turn, error) {
	a, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := authorizeAppointmentAccess(a, callerID, callerRole); err != nil {
		return nil, err
	}
	return s.engine.Transcript(ctx, appointmentID)
}

// loadWritable fetches an appointment and checks that the caller may write
// intake data to it. Cancelled and completed appointments reject all intake
// writes.
func (s *IntakeService) loadWritable(ctx context.Context, id uuid.UUID, callerID uuid.UUID, callerRole string) (*appointment.Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeAppointmentAccess(a, callerID, callerRole); err != nil {
		return nil, err
	}
	if a.Status.IsTerminal() {
		return nil, ErrAppointmentClosed
	}
	return a, nil
}

// advance moves the appointment forward to target if it is not already at or
// past it. The persist is conditional on the status the transition was
// computed from; when another writer got there first the appointment is
// reloaded and the transition re-validated, so a stale copy can never regress
// the status or resurrect a terminal appointment.
func (s *IntakeService) advance(ctx context.Context, a *appointment.Appointment, target appointment.Status) error {
	for {
		expected := a.Status
		changed, err := a.AdvanceTo(target)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		err = s.appointments.UpdateStatus(ctx, a, expected)
		if err == nil {
			s.metrics.AppointmentsTotal.WithLabelValues(string(target)).Inc()
			return nil
		}
		if !errors.Is(err, appointment.ErrStatusChanged) {
			return fmt.Errorf("updating appointment status: %w", err)
		}

		fresh, err := s.appointments.GetByID(ctx, a.ID)
		if err != nil {
			return err
		}
		if fresh.Status.IsTerminal() {
			return ErrAppointmentClosed
		}
		*a = *fresh
	}
}
