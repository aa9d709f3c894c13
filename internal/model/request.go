package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RequestStatus enum constants, the canonical lifecycle of a resource request
const (
	RequestStatusDraft        = "DRAFT"
	RequestStatusSubmitted    = "SUBMITTED"
	RequestStatusSemiApproved = "SEMI_APPROVED" // cleared by a manager (or auto-elevated), awaiting admin sign-off
	RequestStatusApproved     = "APPROVED"
	RequestStatusRejected     = "REJECTED"
	RequestStatusPaid         = "PAID"
)

// RequestPriority enum constants
const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
	PriorityUrgent = "URGENT"
)

// ResourceRequest represents an employee's ask for a resource moving through
// the approval pipeline (submit -> manager approval -> admin approval -> payment).
type ResourceRequest struct {
	ID            uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"` // Request owner
	User          *User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	DepartmentID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"department_id"`
	Department    *Department     `gorm:"foreignKey:DepartmentID" json:"department,omitempty"`
	Title         string          `gorm:"type:varchar(255);not null" json:"title"`
	ResourceName  string          `gorm:"type:varchar(255);not null" json:"resource_name"`
	ResourceType  string          `gorm:"type:varchar(100);not null" json:"resource_type"`
	Description   string          `gorm:"type:text" json:"description"`
	Quantity      int             `gorm:"not null;default:1" json:"quantity"`
	EstimatedCost decimal.Decimal `gorm:"type:numeric(14,4);not null;default:0" json:"estimated_cost"`
	Priority      string          `gorm:"type:varchar(20);not null;default:'MEDIUM'" json:"priority"` // LOW, MEDIUM, HIGH, URGENT
	Status        string          `gorm:"type:varchar(20);not null;default:'SUBMITTED';index" json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ValidPriority reports whether p is one of the known priority levels.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}
