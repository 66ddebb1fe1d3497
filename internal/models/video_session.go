package models

import "time"

// VideoSession records the Daily room provisioned for an appointment.
type VideoSession struct {
	BaseModel
	AppointmentID string     `gorm:"size:36;not null;uniqueIndex" json:"appointmentId"`
	RoomName      string     `gorm:"size:128;not null" json:"roomName"`
	RoomURL       string     `gorm:"size:512;not null" json:"roomUrl"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	CreatedBy     string     `gorm:"size:36" json:"createdBy"`
}
