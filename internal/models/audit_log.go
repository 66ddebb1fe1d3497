package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog is an append-only record of an access or change to a
// PHI-bearing resource.
type AuditLog struct {
	BaseModel
	UserID       string         `gorm:"size:36;index" json:"userId"`
	UserRole     Role           `gorm:"size:20" json:"userRole"`
	Action       string         `gorm:"size:50;index;not null" json:"action"`
	ResourceType string         `gorm:"size:50;index;not null" json:"resourceType"`
	ResourceID   string         `gorm:"size:36;index" json:"resourceId"`
	Metadata     datatypes.JSON `json:"metadata"`
	IPAddress    string         `gorm:"size:64" json:"ipAddress,omitempty"`
	UserAgent    string         `gorm:"size:255" json:"userAgent,omitempty"`
	OccurredAt   time.Time      `gorm:"not null;index" json:"occurredAt"`
}
