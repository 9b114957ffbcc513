package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicflow/intake/internal/domain"
	"github.com/clinicflow/intake/internal/domain/appointment"
	"github.com/clinicflow/intake/internal/domain/medicalrecord"
)

// MedicalRecordService exposes the per-appointment record holding the AI
// triage output and the doctor's final diagnosis.
type MedicalRecordService struct {
	records      medicalrecord.Repository
	appointments appointment.Repository
	auditSvc     *AuditService
	log          *zap.Logger
}

func NewMedicalRecordService(
	records medicalrecord.Repository,
	appointments appointment.Repository,
	auditSvc *AuditService,
	log *zap.Logger,
) *MedicalRecordService {
	return &MedicalRecordService{
		records:      records,
		appointments: appointments,
		auditSvc:     auditSvc,
		log:          log,
	}
}

func (s *MedicalRecordService) GetByAppointment(ctx context.Context, appointmentID uuid.UUID, callerID uuid.UUID, callerRole string) (*medicalrecord.Record, error) {
	a, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := authorizeAppointmentAccess(a, callerID, callerRole); err != nil {
		return nil, err
	}
	return s.records.GetByAppointmentID(ctx, appointmentID)
}

// Diagnose records the doctor's final diagnosis. Only the appointment's
// doctor (or an admin) may write it.
func (s *MedicalRecordService) Diagnose(ctx context.Context, cmd *medicalrecord.DiagnoseCommand, callerID uuid.UUID, callerRole string, ip string) (*medicalrecord.Record, error) {
	if callerRole != string(domain.RoleDoctor) && callerRole != string(domain.RoleAdmin) {
		return nil, ErrForbidden
	}

	if strings.TrimSpace(cmd.DoctorDiagnosis) == "" {
		return nil, &ValidationError{Fields: []string{"doctor_diagnosis is required"}}
	}

	a, err := s.appointments.GetByID(ctx, cmd.AppointmentID)
	if err != nil {
		return nil, err
	}
	if callerRole == string(domain.RoleDoctor) && a.DoctorID != callerID {
		return nil, ErrForbidden
	}

	cmd.DoctorID = callerID
	rec, err := s.records.SetDiagnosis(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("saving diagnosis: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "medical_record", ResourceID: cmd.AppointmentID.String(), IPAddress: ip,
	})

	return rec, nil
}
