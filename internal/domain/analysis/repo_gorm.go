package analysis

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormRepo struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) Repository {
	return &gormRepo{db: db}
}

func (r *gormRepo) Create(ctx context.Context, rec *Record) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *gormRepo) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	var rec Record
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *gormRepo) LatestForAppointment(ctx context.Context, appointmentID uuid.UUID) (*Record, error) {
	var rec Record
	err := r.db.WithContext(ctx).
		Where("appointment_id = ?", appointmentID).
		Order("created_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *gormRepo) List(ctx context.Context, q *ListRecordsQuery) ([]*Record, error) {
	db := r.db.WithContext(ctx).Model(&Record{})

	if q.PatientID != nil {
		db = db.Where("patient_id = ?", *q.PatientID)
	}
	if q.AppointmentID != nil {
		db = db.Where("appointment_id = ?", *q.AppointmentID)
	}
	if q.AnalysisType != nil {
		db = db.Where("analysis_type = ?", *q.AnalysisType)
	}
	if q.PageSize > 0 {
		db = db.Offset((q.Page - 1) * q.PageSize).Limit(q.PageSize)
	}

	var items []*Record
	if err := db.Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
