package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/clinicflow/intake/internal/config"
	"github.com/clinicflow/intake/internal/domain"
	"github.com/clinicflow/intake/pkg/auth"
)

func newTestAuthService(t *testing.T) (*AuthService, *fakeUserRepo) {
	t.Helper()
	repo := newFakeUserRepo()
	jwtManager := auth.NewJWTManager(config.JWTConfig{
		Secret:          "test-secret-test-secret-test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		Issuer:          "intake-test",
	})
	return NewAuthService(repo, jwtManager, newAuditService(), testLogger()), repo
}

func TestRegisterDoctorRequiresDepartment(t *testing.T) {
	svc, _ := newTestAuthService(t)

	cmd := &RegisterCommand{
		Username: "dr.house",
		Password: "a-long-enough-password",
		FullName: "Gregory House",
		Role:     "doctor",
	}
	var vErr *ValidationError
	if _, err := svc.Register(context.Background(), cmd, ""); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	cmd.Department = "Diagnostics"
	u, err := svc.Register(context.Background(), cmd, "")
	if err != nil {
		t.Fatalf("Register with department: %v", err)
	}
	if u.Department != "Diagnostics" {
		t.Errorf("department = %q", u.Department)
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	svc, _ := newTestAuthService(t)

	cmd := &RegisterCommand{
		Username: "pat",
		Password: "a-long-enough-password",
		FullName: "Pat Smith",
		Role:     "patient",
	}
	if _, err := svc.Register(context.Background(), cmd, ""); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := svc.Register(context.Background(), cmd, ""); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestRegisterNormalizesUsername(t *testing.T) {
	svc, repo := newTestAuthService(t)

	cmd := &RegisterCommand{
		Username: "  Pat.Smith ",
		Password: "a-long-enough-password",
		FullName: "Pat Smith",
		Role:     "patient",
	}
	u, err := svc.Register(context.Background(), cmd, "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Username != "pat.smith" {
		t.Errorf("username = %q, want pat.smith", u.Username)
	}
	if _, err := repo.GetByUsername(context.Background(), "pat.smith"); err != nil {
		t.Errorf("normalized username not stored: %v", err)
	}
}

func TestLoginIssuesTokenPair(t *testing.T) {
	svc, _ := newTestAuthService(t)

	cmd := &RegisterCommand{
		Username: "pat",
		Password: "a-long-enough-password",
		FullName: "Pat Smith",
		Role:     "patient",
	}
	if _, err := svc.Register(context.Background(), cmd, ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	pair, err := svc.Login(context.Background(), "pat", "a-long-enough-password", "127.0.0.1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("token pair has empty tokens")
	}
	if pair.TokenType != "Bearer" {
		t.Errorf("token type = %q", pair.TokenType)
	}

	refreshed, err := svc.RefreshToken(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if refreshed.AccessToken == "" {
		t.Error("refresh produced an empty access token")
	}

	// An access token is not accepted as a refresh token.
	if _, err := svc.RefreshToken(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newTestAuthService(t)

	cmd := &RegisterCommand{
		Username: "pat",
		Password: "a-long-enough-password",
		FullName: "Pat Smith",
		Role:     "patient",
	}
	if _, err := svc.Register(context.Background(), cmd, ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := svc.Login(context.Background(), "pat", "wrong-password", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "nobody", "whatever", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	svc, repo := newTestAuthService(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-password-123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashing: %v", err)
	}
	user := &domain.User{
		Username:     "pat",
		PasswordHash: string(hash),
		FullName:     "Pat Smith",
		Role:         domain.RolePatient,
		IsActive:     true,
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("seeding user: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := svc.Login(context.Background(), "pat", "wrong", ""); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	// The account locks, even with the correct password.
	if _, err := svc.Login(context.Background(), "pat", "correct-password-123", ""); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	svc, repo := newTestAuthService(t)

	hash, _ := bcrypt.GenerateFromPassword([]byte("correct-password-123"), bcrypt.MinCost)
	user := &domain.User{
		Username:     "gone",
		PasswordHash: string(hash),
		FullName:     "Gone User",
		Role:         domain.RolePatient,
		IsActive:     false,
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("seeding user: %v", err)
	}

	if _, err := svc.Login(context.Background(), "gone", "correct-password-123", ""); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}
