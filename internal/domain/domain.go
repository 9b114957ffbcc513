package domain

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time  `gorm:"autoCreateTime"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
	DeletedAt *time.Time `gorm:"index"`

	Username     string `gorm:"column:username;type:varchar(100);uniqueIndex;not null"`
	PasswordHash string `gorm:"column:password_hash;type:varchar(255);not null"`
	FullName     string `gorm:"column:full_name;type:varchar(200);not null"`
	Role         Role   `gorm:"column:role;type:varchar(20);not null;index"`

	// Department is only meaningful for doctors (e.g. "Dermatology").
	Department string `gorm:"column:department;type:varchar(100);index"`

	IsActive         bool       `gorm:"column:is_active;default:true;index"`
	FailedLoginCount int        `gorm:"column:failed_login_count;default:0"`
	LockedUntil      *time.Time `gorm:"column:locked_until"`
	LastLoginAt      *time.Time `gorm:"column:last_login_at"`
}

func (User) TableName() string {
	return "identity.users"
}

// IsLocked returns true if the account is temporarily locked due to failed logins.
func (u *User) IsLocked() bool {
	return u.LockedUntil != nil && time.Now().Before(*u.LockedUntil)
}

type AuditAction string

const (
	ActionCreate AuditAction = "create"
	ActionRead   AuditAction = "read"
	ActionUpdate AuditAction = "update"
	ActionDelete AuditAction = "delete"
	ActionLogin  AuditAction = "login"
)

type AuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OccurredAt time.Time `gorm:"autoCreateTime;index"`

	// Who
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	UserRole  Role      `gorm:"column:user_role;type:varchar(20);not null"`
	IPAddress string    `gorm:"column:ip_address;type:varchar(45)"` // Supports IPv6

	// What
	Action       AuditAction `gorm:"column:action;type:varchar(20);not null;index"`
	ResourceType string      `gorm:"column:resource_type;type:varchar(50);not null;index"`
	ResourceID   string      `gorm:"column:resource_id;type:varchar(50);index"`

	RequestID  string `gorm:"column:request_id;type:varchar(50);index"`
	StatusCode int    `gorm:"column:status_code"`

	Changes string `gorm:"column:changes;type:jsonb"`
}

func (AuditLog) TableName() string {
	return "audit.logs"
}

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"` // Always "Bearer"
}

type Claims struct {
	UserID   uuid.UUID `json:"sub"`
	Username string    `json:"username"`
	Role     Role      `json:"role"`
}
