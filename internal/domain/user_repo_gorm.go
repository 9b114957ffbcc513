package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

const (
	maxFailedLogins = 5
	lockDuration    = 15 * time.Minute
)

// UserRepo is the gorm-backed identity store.
type UserRepo struct {
	db *gorm.DB
}

func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(ctx context.Context, u *User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).First(&u, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&User{}).
		Where("username = ?", username).
		Count(&count).Error
	return count > 0, err
}

// UpdateLoginAttempt records a login outcome: success resets the failure
// counter, repeated failures lock the account for lockDuration.
func (r *UserRepo) UpdateLoginAttempt(ctx context.Context, id uuid.UUID, success bool) error {
	if success {
		now := time.Now()
		return r.db.WithContext(ctx).Model(&User{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"failed_login_count": 0,
				"locked_until":       nil,
				"last_login_at":      now,
			}).Error
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u User
		if err := tx.First(&u, "id = ?", id).Error; err != nil {
			return err
		}
		u.FailedLoginCount++
		updates := map[string]any{"failed_login_count": u.FailedLoginCount}
		if u.FailedLoginCount >= maxFailedLogins {
			until := time.Now().Add(lockDuration)
			updates["locked_until"] = until
		}
		return tx.Model(&User{}).Where("id = ?", id).Updates(updates).Error
	})
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	return r.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", id).
		Update("password_hash", hash).Error
}

// ListDoctors returns active doctor accounts ordered by department and name.
func (r *UserRepo) ListDoctors(ctx context.Context) ([]*User, error) {
	var doctors []*User
	err := r.db.WithContext(ctx).
		Where("role = ? AND is_active = ?", RoleDoctor, true).
		Order("department ASC, full_name ASC").
		Find(&doctors).Error
	if err != nil {
		return nil, err
	}
	return doctors, nil
}

// ListDepartments returns the distinct departments of active doctors.
func (r *UserRepo) ListDepartments(ctx context.Context) ([]string, error) {
	var departments []string
	err := r.db.WithContext(ctx).Model(&User{}).
		Where("role = ? AND is_active = ? AND department <> ''", RoleDoctor, true).
		Distinct("department").
		Order("department ASC").
		Pluck("department", &departments).Error
	if err != nil {
		return nil, err
	}
	return departments, nil
}
