package medicalrecord

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormRepo struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) Repository {
	return &gormRepo{db: db}
}

func (r *gormRepo) GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*Record, error) {
	var rec Record
	err := r.db.WithContext(ctx).First(&rec, "appointment_id = ?", appointmentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *gormRepo) UpsertAIPrediction(ctx context.Context, appointmentID uuid.UUID, prediction, summary string) error {
	rec := &Record{
		AppointmentID:       appointmentID,
		AIDiseasePrediction: prediction,
		AISummary:           summary,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "appointment_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"ai_disease_prediction", "ai_summary", "updated_at"}),
	}).Create(rec).Error
}

func (r *gormRepo) SetDiagnosis(ctx context.Context, cmd *DiagnoseCommand) (*Record, error) {
	rec := &Record{
		AppointmentID:   cmd.AppointmentID,
		DoctorDiagnosis: cmd.DoctorDiagnosis,
		Prescription:    cmd.Prescription,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "appointment_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"doctor_diagnosis", "prescription", "updated_at"}),
	}).Create(rec).Error
	if err != nil {
		return nil, err
	}
	return r.GetByAppointmentID(ctx, cmd.AppointmentID)
}
