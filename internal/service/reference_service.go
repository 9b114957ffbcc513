package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicflow/intake/internal/cache"
	"github.com/clinicflow/intake/internal/domain"
)

const (
	doctorsCacheKey     = "reference:doctors"
	departmentsCacheKey = "reference:departments"
)

// Doctor is the public projection of a doctor account for booking screens.
type Doctor struct {
	ID         uuid.UUID `json:"id"`
	FullName   string    `json:"full_name"`
	Department string    `json:"department"`
}

type ReferenceRepository interface {
	ListDoctors(ctx context.Context) ([]*domain.User, error)
	ListDepartments(ctx context.Context) ([]string, error)
}

// ReferenceService serves the doctor and department lists shown on booking
// screens, with a redis cache in front of the database. Cache failures are
// logged and ignored; the database is always authoritative.
type ReferenceService struct {
	userRepo ReferenceRepository
	cache    *cache.Cache
	ttl      time.Duration
	log      *zap.Logger
}

func NewReferenceService(userRepo ReferenceRepository, c *cache.Cache, ttl time.Duration, log *zap.Logger) *ReferenceService {
	return &ReferenceService{userRepo: userRepo, cache: c, ttl: ttl, log: log}
}

func (s *ReferenceService) ListDoctors(ctx context.Context) ([]Doctor, error) {
	var doctors []Doctor
	if s.cacheGet(ctx, doctorsCacheKey, &doctors) {
		return doctors, nil
	}

	users, err := s.userRepo.ListDoctors(ctx)
	if err != nil {
		return nil, err
	}

	doctors = make([]Doctor, 0, len(users))
	for _, u := range users {
		doctors = append(doctors, Doctor{
			ID:         u.ID,
			FullName:   u.FullName,
			Department: u.Department,
		})
	}

	s.cacheSet(ctx, doctorsCacheKey, doctors)
	return doctors, nil
}

func (s *ReferenceService) ListDepartments(ctx context.Context) ([]string, error) {
	var departments []string
	if s.cacheGet(ctx, departmentsCacheKey, &departments) {
		return departments, nil
	}

	departments, err := s.userRepo.ListDepartments(ctx)
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, departmentsCacheKey, departments)
	return departments, nil
}

// Invalidate drops the cached lists, e.g. after a doctor registers.
func (s *ReferenceService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, doctorsCacheKey, departmentsCacheKey); err != nil {
		s.log.Warn("failed to invalidate reference cache", zap.Error(err))
	}
}

func (s *ReferenceService) cacheGet(ctx context.Context, key string, out any) bool {
	if s.cache == nil {
		return false
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("reference cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		s.log.Warn("reference cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *ReferenceService) cacheSet(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, string(raw), s.ttl); err != nil {
		s.log.Warn("reference cache write failed", zap.String("key", key), zap.Error(err))
	}
}
