package conversation

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormRepo struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) Repository {
	return &gormRepo{db: db}
}

func (r *gormRepo) Append(ctx context.Context, t *Turn) error {
	err := r.db.WithContext(ctx).Create(t).Error
	if err != nil && isUniqueViolation(err) {
		return ErrSequenceConflict
	}
	return err
}

func (r *gormRepo) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*Turn, error) {
	var turns []*Turn
	err := r.db.WithContext(ctx).
		Where("appointment_id = ?", appointmentID).
		Order("seq ASC").
		Find(&turns).Error
	if err != nil {
		return nil, err
	}
	return turns, nil
}

func (r *gormRepo) NextSeq(ctx context.Context, appointmentID uuid.UUID) (int, error) {
	var max *int
	err := r.db.WithContext(ctx).Model(&Turn{}).
		Where("appointment_id = ?", appointmentID).
		Select("MAX(seq)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max + 1, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// Postgres unique_violation surfaces as SQLSTATE 23505.
	return strings.Contains(err.Error(), "23505")
}
