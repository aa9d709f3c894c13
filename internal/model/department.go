package model

import (
	"time"

	"github.com/google/uuid"
)

// Department is the scoping unit for requests and manager authority. A
// request belongs to exactly one department; a manager may only act on
// requests from their own department.
type Department struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"name"`
	ManagerID *uuid.UUID `gorm:"type:uuid" json:"manager_id"`
	Manager   *User      `gorm:"foreignKey:ManagerID" json:"manager,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
