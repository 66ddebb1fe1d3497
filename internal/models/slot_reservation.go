package models

import "time"

// SlotReservation claims one 15-minute UTC cell of a provider's calendar
// for an appointment. The unique index on (provider_id, slot_start) is what
// prevents two concurrent bookings of the same slot.
type SlotReservation struct {
	BaseModel
	ProviderID    string    `gorm:"size:36;not null;uniqueIndex:idx_provider_slot"`
	SlotStart     time.Time `gorm:"not null;uniqueIndex:idx_provider_slot"`
	AppointmentID string    `gorm:"size:36;not null;index"`
}
