package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormRepo struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) Repository {
	return &gormRepo{db: db}
}

func (r *gormRepo) Create(ctx context.Context, a *Appointment) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *gormRepo) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var a Appointment
	err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *gormRepo) UpdateStatus(ctx context.Context, a *Appointment, expected Status) error {
	res := r.db.WithContext(ctx).Model(&Appointment{}).
		Where("id = ? AND status = ?", a.ID, expected).
		Updates(map[string]any{
			"status":              a.Status,
			"cancelled_at":        a.CancelledAt,
			"cancellation_reason": a.CancellationReason,
			"cancelled_by":        a.CancelledBy,
			"completed_at":        a.CompletedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Either the row is gone or another writer moved the status first.
		var count int64
		if err := r.db.WithContext(ctx).Model(&Appointment{}).
			Where("id = ?", a.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrAppointmentNotFound
		}
		return ErrStatusChanged
	}
	return nil
}

func (r *gormRepo) HasConflict(ctx context.Context, doctorID uuid.UUID, scheduledAt time.Time, excludeID *uuid.UUID) (bool, error) {
	q := r.db.WithContext(ctx).Model(&Appointment{}).
		Where("doctor_id = ? AND scheduled_at = ? AND status NOT IN ?",
			doctorID, scheduledAt, []Status{StatusCancelled, StatusCompleted})
	if excludeID != nil {
		q = q.Where("id <> ?", *excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *gormRepo) List(ctx context.Context, q *ListAppointmentsQuery) (*PagedAppointments, error) {
	db := r.db.WithContext(ctx).Model(&Appointment{})

	if q.PatientID != nil {
		db = db.Where("patient_id = ?", *q.PatientID)
	}
	if q.DoctorID != nil {
		db = db.Where("doctor_id = ?", *q.DoctorID)
	}
	if q.Status != nil {
		db = db.Where("status = ?", *q.Status)
	}
	if q.DateFrom != nil {
		db = db.Where("scheduled_at >= ?", *q.DateFrom)
	}
	if q.DateTo != nil {
		db = db.Where("scheduled_at < ?", *q.DateTo)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, err
	}

	var items []*Appointment
	err := db.Order("scheduled_at DESC").
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(q.PageSize) - 1) / int64(q.PageSize))
	return &PagedAppointments{
		Appointments: items,
		TotalCount:   total,
		Page:         q.Page,
		PageSize:     q.PageSize,
		TotalPages:   totalPages,
	}, nil
}
