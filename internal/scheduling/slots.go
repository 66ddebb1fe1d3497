package scheduling

import (
	"fmt"
	"time"
)

// Provider working hours and slot granularity, in local wall-clock time.
const (
	DayStartHour = 9
	DayEndHour   = 17
	SlotDuration = 30 * time.Minute
)

// ReservationGranularity is the UTC grid reservations are keyed on. Every
// zone offset in use is a multiple of it, so each local slot covers whole
// reservation cells and never shares one with its neighbour.
const ReservationGranularity = 15 * time.Minute

// SlotsPerDay is the number of candidate slots in a working day.
const SlotsPerDay = (DayEndHour - DayStartHour) * int(time.Hour/SlotDuration)

// Slot is one candidate booking window.
type Slot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
	Label     string    `json:"display"`
}

// Interval is a half-open [Start, End) range.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the two half-open ranges intersect.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && i.End.After(other.Start)
}

// dayBounds returns local midnight of date and the following midnight.
func dayBounds(date time.Time) (time.Time, time.Time) {
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, date.Location())
	return start, start.AddDate(0, 0, 1)
}

// BuildSlots lays out the working-day grid for date, in date's location,
// and marks every slot that intersects a booked interval as unavailable.
func BuildSlots(date time.Time, booked []Interval) []Slot {
	y, m, d := date.Date()
	slots := make([]Slot, 0, SlotsPerDay)
	for hour := DayStartHour; hour < DayEndHour; hour++ {
		for minute := 0; minute < 60; minute += int(SlotDuration / time.Minute) {
			start := time.Date(y, m, d, hour, minute, 0, 0, date.Location())
			slot := Interval{Start: start, End: start.Add(SlotDuration)}

			available := true
			for _, b := range booked {
				if slot.Overlaps(b) {
					available = false
					break
				}
			}
			slots = append(slots, Slot{
				Start:     slot.Start,
				End:       slot.End,
				Available: available,
				Label:     fmt.Sprintf("%02d:%02d", hour, minute),
			})
		}
	}
	return slots
}

// reservationSlots returns the UTC grid cell starts that [start, end)
// touches. These are the keys claimed in slot_reservations.
func reservationSlots(start, end time.Time) []time.Time {
	var keys []time.Time
	for t := start.UTC().Truncate(ReservationGranularity); t.Before(end); t = t.Add(ReservationGranularity) {
		keys = append(keys, t)
	}
	return keys
}
