package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role enum constants. Roles are stored and compared in this canonical
// lowercase form only; NormalizeRole must be applied at every boundary
// (payloads, JWT claims, seeds) before comparison.
const (
	RoleEmployee       = "employee"
	RoleManager        = "manager"
	RoleDepartmentHead = "department_head"
	RoleFinance        = "finance"
	RoleAdmin          = "admin"
)

// NormalizeRole folds a role string to its canonical lowercase form.
func NormalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

// ValidRole reports whether role (after normalization) is a known role.
func ValidRole(role string) bool {
	switch NormalizeRole(role) {
	case RoleEmployee, RoleManager, RoleDepartmentHead, RoleFinance, RoleAdmin:
		return true
	}
	return false
}

// User represents the central user entity for logic and database structure
type User struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Username     string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"username"`
	Email        string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password     string         `gorm:"type:varchar(255);not null" json:"-"` // Omit password from JSON requests/responses
	Role         string         `gorm:"type:varchar(50);not null" json:"role"`
	DepartmentID *uuid.UUID     `gorm:"type:uuid;index" json:"department_id"`
	Department   *Department    `gorm:"foreignKey:DepartmentID" json:"department,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"` // GORM soft delete
}

// RefreshToken stores long-lived tokens allowing users to request new access tokens
type RefreshToken struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Token     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"token"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// OTPCode is a short-lived one-time code emailed to a user after a successful
// password check. A code is consumed exactly once to obtain a token pair.
type OTPCode struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	User       User       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"-"`
	Code       string     `gorm:"type:varchar(10);not null" json:"-"`
	ExpiresAt  time.Time  `gorm:"not null" json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
