package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicflow/intake/internal/domain"
	"github.com/clinicflow/intake/pkg/auth"
)

type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	UpdateLoginAttempt(ctx context.Context, id uuid.UUID, success bool) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
}

type RegisterCommand struct {
	Username   string
	Password   string
	FullName   string
	Role       string
	Department string
}

type AuthService struct {
	userRepo   UserRepository
	jwtManager *auth.JWTManager
	auditSvc   *AuditService
	log        *zap.Logger
}

func NewAuthService(userRepo UserRepository, jwtManager *auth.JWTManager, auditSvc *AuditService, log *zap.Logger) *AuthService {
	return &AuthService{userRepo: userRepo, jwtManager: jwtManager, auditSvc: auditSvc, log: log}
}

// Register creates a new account. Doctors must declare a department so that
// appointment scheduling can match them against the requested specialty.
func (s *AuthService) Register(ctx context.Context, cmd *RegisterCommand, ip string) (*domain.User, error) {
	var fields []string

	username := strings.TrimSpace(strings.ToLower(cmd.Username))
	if len(username) < 3 || len(username) > 100 {
		fields = append(fields, "username must be between 3 and 100 characters")
	}
	if err := validatePasswordStrength(cmd.Password); err != nil {
		fields = append(fields, err.Error())
	}
	if strings.TrimSpace(cmd.FullName) == "" {
		fields = append(fields, "full_name is required")
	}

	role := domain.Role(cmd.Role)
	if !role.IsValid() {
		fields = append(fields, "role must be one of: patient, doctor, admin")
	}
	if role == domain.RoleDoctor && strings.TrimSpace(cmd.Department) == "" {
		fields = append(fields, "department is required for doctors")
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	exists, err := s.userRepo.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("checking username: %w", err)
	}
	if exists {
		return nil, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &domain.User{
		Username:     username,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(cmd.FullName),
		Role:         role,
		Department:   strings.TrimSpace(cmd.Department),
		IsActive:     true,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		s.log.Error("failed to create user", zap.Error(err))
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: user.ID, UserRole: string(user.Role),
		Action: "create", ResourceType: "user", ResourceID: user.ID.String(), IPAddress: ip,
	})

	s.log.Info("user registered",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)),
	)

	return user, nil
}

func (s *AuthService) Login(ctx context.Context, username, password string, ip string) (*domain.TokenPair, error) {
	user, err := s.userRepo.GetByUsername(ctx, strings.ToLower(username))
	if err != nil {
		// Use bcrypt dummy hash to prevent timing-based user enumeration.
		// An attacker measuring response time should not be able to determine
		// whether the username exists in the system.
		_, _ = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	if user.IsLocked() {
		return nil, ErrAccountLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		// Record failed attempt; lock if threshold exceeded
		_ = s.userRepo.UpdateLoginAttempt(ctx, user.ID, false)
		s.log.Warn("failed login attempt",
			zap.String("username", username),
			zap.String("ip", ip),
		)
		return nil, ErrInvalidCredentials
	}

	_ = s.userRepo.UpdateLoginAttempt(ctx, user.ID, true)

	claims := &domain.Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	}

	pair, err := s.jwtManager.GenerateTokenPair(claims)
	if err != nil {
		s.log.Error("failed to generate token pair", zap.Error(err))
		return nil, fmt.Errorf("generating tokens: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: user.ID, UserRole: string(user.Role),
		Action: "login", ResourceType: "user", ResourceID: user.ID.String(), IPAddress: ip,
	})

	s.log.Info("user logged in",
		zap.String("user_id", user.ID.String()),
		zap.String("ip", ip),
	)

	return pair, nil
}

// RefreshToken issues a new token pair given a valid refresh token.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	// Re-validate user is still active
	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil || !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	return s.jwtManager.GenerateTokenPair(&domain.Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	})
}

// ChangePassword updates a user's password after verifying the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrInvalidCredentials
	}

	if err := validatePasswordStrength(newPassword); err != nil {
		return &ValidationError{Fields: []string{err.Error()}}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	return s.userRepo.UpdatePassword(ctx, userID, string(hash))
}

func validatePasswordStrength(password string) error {
	if len(password) < 12 {
		return errors.New("password must be at least 12 characters")
	}
	return nil
}
