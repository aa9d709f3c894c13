package model

import (
	"time"

	"github.com/google/uuid"
)

// ApprovalDecision enum constants
const (
	ApprovalDecisionApproved = "APPROVED"
	ApprovalDecisionRejected = "REJECTED"
)

// Approval is an immutable audit record of one approve/reject decision on a
// request. Multiple rows may exist per request (one per stage: manager, then
// admin). Rows are never updated or deleted by normal flow.
type Approval struct {
	ID         uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RequestID  uuid.UUID        `gorm:"type:uuid;not null;index" json:"request_id"`
	Request    *ResourceRequest `gorm:"foreignKey:RequestID" json:"request,omitempty"`
	ApproverID uuid.UUID        `gorm:"type:uuid;not null;index" json:"approver_id"`
	Approver   *User            `gorm:"foreignKey:ApproverID" json:"approver,omitempty"`
	Decision   string           `gorm:"type:varchar(20);not null" json:"decision"` // APPROVED, REJECTED
	Comment    string           `gorm:"type:text" json:"comment"`
	DecidedAt  time.Time        `gorm:"not null;index" json:"decided_at"`
	CreatedAt  time.Time        `json:"created_at"`
}
