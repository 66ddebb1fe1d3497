package models

import (
	"time"
)

// AppointmentStatus enum
type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no_show"
)

// Terminal reports whether no further lifecycle move is allowed.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// Appointment is a booked telehealth session between a patient and a
// provider, optionally attended by a sign-language interpreter. Rows are
// never deleted; cancellation is a status.
type Appointment struct {
	BaseModel
	PatientID             string            `gorm:"size:36;index;not null" json:"patientId"`
	ProviderID            string            `gorm:"size:36;index;not null" json:"providerId"`
	InterpreterID         *string           `gorm:"size:36;index" json:"interpreterId"`
	ScheduledStart        time.Time         `gorm:"not null;index" json:"scheduledStart"`
	ScheduledEnd          time.Time         `gorm:"not null" json:"scheduledEnd"`
	DurationMinutes       int               `gorm:"not null" json:"durationMinutes"`
	ActualStart           *time.Time        `json:"actualStart,omitempty"`
	ActualEnd             *time.Time        `json:"actualEnd,omitempty"`
	Status                AppointmentStatus `gorm:"size:20;default:'scheduled';index" json:"status"`
	NeedsInterpreter      bool              `gorm:"default:false" json:"needsInterpreter"`
	PreferredSignLanguage *SignLanguage     `gorm:"size:8" json:"preferredSignLanguage"`
	Reason                string            `gorm:"size:500;not null" json:"reason"`
	Notes                 *string           `gorm:"type:text" json:"notes"`
	CancellationReason    *string           `gorm:"type:text" json:"cancellationReason"`
	CancelledAt           *time.Time        `json:"cancelledAt,omitempty"`
	CancelledBy           *string           `gorm:"size:36" json:"cancelledBy,omitempty"`
	ReminderSentAt        *time.Time        `json:"-"`

	Patient     *User `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
	Provider    *User `gorm:"foreignKey:ProviderID" json:"provider,omitempty"`
	Interpreter *User `gorm:"foreignKey:InterpreterID" json:"interpreter,omitempty"`
}

// Overlaps reports whether [start, end) intersects the scheduled interval.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return start.Before(a.ScheduledEnd) && end.After(a.ScheduledStart)
}

// HasParticipant reports whether userID is the patient, provider or
// assigned interpreter.
func (a *Appointment) HasParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	if a.PatientID == userID || a.ProviderID == userID {
		return true
	}
	return a.InterpreterID != nil && *a.InterpreterID == userID
}

// DurationBetween returns the whole minutes between start and end.
func DurationBetween(start, end time.Time) int {
	return int(end.Sub(start) / time.Minute)
}
