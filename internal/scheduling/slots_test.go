package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSlotsEmptyDay(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	date := time.Date(2025, 3, 10, 18, 45, 0, 0, loc)

	slots := BuildSlots(date, nil)

	require.Len(t, slots, SlotsPerDay)
	assert.Equal(t, 16, SlotsPerDay)
	assert.Equal(t, "09:00", slots[0].Label)
	assert.Equal(t, "16:30", slots[len(slots)-1].Label)
	assert.True(t, slots[0].Start.Equal(time.Date(2025, 3, 10, 9, 0, 0, 0, loc)))
	assert.True(t, slots[len(slots)-1].End.Equal(time.Date(2025, 3, 10, 17, 0, 0, 0, loc)))
	for i, s := range slots {
		assert.True(t, s.Available, "slot %s", s.Label)
		assert.Equal(t, SlotDuration, s.End.Sub(s.Start))
		if i > 0 {
			assert.True(t, s.Start.Equal(slots[i-1].End), "slots must be contiguous")
		}
	}
}

func TestBuildSlotsOverlapRule(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return time.Date(2025, 3, 10, h, m, 0, 0, time.UTC) }

	tests := []struct {
		name        string
		booked      Interval
		unavailable []string
	}{
		{"exact slot", Interval{at(10, 0), at(10, 30)}, []string{"10:00"}},
		{"straddles two slots", Interval{at(10, 15), at(10, 45)}, []string{"10:00", "10:30"}},
		{"touching end is free", Interval{at(9, 30), at(10, 0)}, []string{"09:30"}},
		{"hour long", Interval{at(14, 0), at(15, 0)}, []string{"14:00", "14:30"}},
		{"before hours", Interval{at(7, 0), at(9, 0)}, nil},
		{"after hours", Interval{at(17, 0), at(18, 0)}, nil},
		{"spans lunch edge", Interval{at(11, 59), at(12, 1)}, []string{"11:30", "12:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots := BuildSlots(day, []Interval{tt.booked})

			var got []string
			for _, s := range slots {
				if !s.Available {
					got = append(got, s.Label)
				}
				overlaps := s.Start.Before(tt.booked.End) && s.End.After(tt.booked.Start)
				assert.Equal(t, !overlaps, s.Available, "slot %s", s.Label)
			}
			assert.Equal(t, tt.unavailable, got)
		})
	}
}

func TestReservationSlots(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)

	keys := reservationSlots(
		time.Date(2025, 3, 10, 10, 15, 0, 0, loc),
		time.Date(2025, 3, 10, 11, 0, 0, 0, loc),
	)

	assert.Equal(t, []time.Time{
		time.Date(2025, 3, 10, 15, 15, 0, 0, time.UTC),
		time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC),
		time.Date(2025, 3, 10, 15, 45, 0, 0, time.UTC),
	}, keys)
}

func TestReservationSlotsAdjacentLocalSlotsNeverShareAKey(t *testing.T) {
	zones := []*time.Location{
		time.FixedZone("NPT", 5*3600+45*60),
		time.FixedZone("ACWST", 8*3600+45*60),
		time.FixedZone("CHAST", 12*3600+45*60),
		time.FixedZone("IST", 5*3600+30*60),
		time.FixedZone("NST", -(3*3600 + 30*60)),
	}
	for _, loc := range zones {
		t.Run(loc.String(), func(t *testing.T) {
			slots := BuildSlots(time.Date(2025, 3, 10, 0, 0, 0, 0, loc), nil)
			seen := map[time.Time]string{}
			for _, s := range slots {
				for _, k := range reservationSlots(s.Start, s.End) {
					owner, taken := seen[k]
					assert.False(t, taken, "%s and %s share key %s", owner, s.Label, k)
					seen[k] = s.Label
				}
			}
		})
	}
}

func TestReservationSlotsOverlappingIntervalsShareAKey(t *testing.T) {
	a := reservationSlots(time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC), time.Date(2025, 3, 10, 10, 50, 0, 0, time.UTC))
	b := reservationSlots(time.Date(2025, 3, 10, 10, 40, 0, 0, time.UTC), time.Date(2025, 3, 10, 11, 10, 0, 0, time.UTC))

	assert.Contains(t, b, a[len(a)-1])
}
