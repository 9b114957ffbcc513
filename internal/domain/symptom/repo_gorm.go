package symptom

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

func (r *gormRepo) Upsert(ctx context.Context, rec *Record) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "appointment_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"description", "duration_category", "severity_level",
			"tags", "image_ref", "notes", "created_by", "updated_at",
		}),
	}).Create(rec).Error
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
