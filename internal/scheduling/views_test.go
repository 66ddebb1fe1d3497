package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signbridge-server/internal/apperr"
	"signbridge-server/internal/models"
)

func TestParseView(t *testing.T) {
	v, err := ParseView("")
	require.NoError(t, err)
	assert.Equal(t, ViewAll, v)

	v, err = ParseView(" Upcoming ")
	require.NoError(t, err)
	assert.Equal(t, ViewUpcoming, v)

	_, err = ParseView("tomorrow")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestViewPredicates(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	apt := func(start time.Time, status models.AppointmentStatus) *models.Appointment {
		return &models.Appointment{ScheduledStart: start, Status: status}
	}
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name string
		apt  *models.Appointment
		want map[View]bool
	}{
		{"future scheduled", apt(future, models.StatusScheduled),
			map[View]bool{ViewUpcoming: true, ViewPast: false, ViewCancelled: false, ViewAll: true}},
		{"future cancelled", apt(future, models.StatusCancelled),
			map[View]bool{ViewUpcoming: false, ViewPast: false, ViewCancelled: true, ViewAll: true}},
		{"future completed early", apt(future, models.StatusCompleted),
			map[View]bool{ViewUpcoming: true, ViewPast: true, ViewCancelled: false, ViewAll: true}},
		{"past cancelled", apt(past, models.StatusCancelled),
			map[View]bool{ViewUpcoming: false, ViewPast: true, ViewCancelled: true, ViewAll: true}},
		{"past scheduled", apt(past, models.StatusScheduled),
			map[View]bool{ViewUpcoming: false, ViewPast: true, ViewCancelled: false, ViewAll: true}},
		{"starting now", apt(now, models.StatusScheduled),
			map[View]bool{ViewUpcoming: false, ViewPast: false, ViewCancelled: false, ViewAll: true}},
		{"starting now completed", apt(now, models.StatusCompleted),
			map[View]bool{ViewUpcoming: false, ViewPast: true, ViewCancelled: false, ViewAll: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for view, want := range tt.want {
				assert.Equal(t, want, view.Matches(tt.apt, now), "view %s", view)
			}
		})
	}
}

func TestFilterByViewKeepsOrderAndCounts(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	list := []models.Appointment{
		{BaseModel: models.BaseModel{ID: "a"}, ScheduledStart: now.Add(-48 * time.Hour), Status: models.StatusCompleted},
		{BaseModel: models.BaseModel{ID: "b"}, ScheduledStart: now.Add(2 * time.Hour), Status: models.StatusScheduled},
		{BaseModel: models.BaseModel{ID: "c"}, ScheduledStart: now.Add(3 * time.Hour), Status: models.StatusCancelled},
		{BaseModel: models.BaseModel{ID: "d"}, ScheduledStart: now.Add(4 * time.Hour), Status: models.StatusScheduled},
	}

	upcoming := FilterByView(list, ViewUpcoming, now)
	require.Len(t, upcoming, 2)
	assert.Equal(t, "b", upcoming[0].ID)
	assert.Equal(t, "d", upcoming[1].ID)

	assert.Len(t, FilterByView(list, ViewAll, now), 4)
	assert.Equal(t, Counts{Upcoming: 2, Past: 1, Cancelled: 1, All: 4}, CountViews(list, now))
}
