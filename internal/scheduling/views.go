package scheduling

import (
	"strings"
	"time"

	"signbridge-server/internal/apperr"
	"signbridge-server/internal/models"
)

// View is a display filter over a caller's appointment list.
type View string

const (
	ViewUpcoming  View = "upcoming"
	ViewPast      View = "past"
	ViewCancelled View = "cancelled"
	ViewAll       View = "all"
)

// ParseView accepts an empty string as ViewAll.
func ParseView(value string) (View, error) {
	switch v := View(strings.ToLower(strings.TrimSpace(value))); v {
	case "":
		return ViewAll, nil
	case ViewUpcoming, ViewPast, ViewCancelled, ViewAll:
		return v, nil
	}
	return "", apperr.Validation("view", "view must be one of upcoming, past, cancelled, all")
}

// Matches applies the view's predicate. An appointment starting exactly at
// now is neither upcoming nor past unless it is completed.
func (v View) Matches(apt *models.Appointment, now time.Time) bool {
	switch v {
	case ViewUpcoming:
		return apt.ScheduledStart.After(now) && apt.Status != models.StatusCancelled
	case ViewPast:
		return apt.ScheduledStart.Before(now) || apt.Status == models.StatusCompleted
	case ViewCancelled:
		return apt.Status == models.StatusCancelled
	default:
		return true
	}
}

// FilterByView keeps the appointments matching view, preserving order.
func FilterByView(appointments []models.Appointment, view View, now time.Time) []models.Appointment {
	out := make([]models.Appointment, 0, len(appointments))
	for i := range appointments {
		if view.Matches(&appointments[i], now) {
			out = append(out, appointments[i])
		}
	}
	return out
}

// Counts tallies every view at once, for list headers.
type Counts struct {
	Upcoming  int `json:"upcoming"`
	Past      int `json:"past"`
	Cancelled int `json:"cancelled"`
	All       int `json:"all"`
}

// CountViews computes Counts over appointments.
func CountViews(appointments []models.Appointment, now time.Time) Counts {
	c := Counts{All: len(appointments)}
	for i := range appointments {
		apt := &appointments[i]
		if ViewUpcoming.Matches(apt, now) {
			c.Upcoming++
		}
		if ViewPast.Matches(apt, now) {
			c.Past++
		}
		if ViewCancelled.Matches(apt, now) {
			c.Cancelled++
		}
	}
	return c
}
