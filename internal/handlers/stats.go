package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"signbridge-server/internal/audit"
	"signbridge-server/internal/models"
	"signbridge-server/internal/scheduling"
	"signbridge-server/internal/utils"
)

const activeUserWindow = 30 * 24 * time.Hour

// StatsHandler serves the admin analytics summary.
type StatsHandler struct {
	DB          *gorm.DB
	DefaultZone *time.Location
	now         func() time.Time
}

// NewStatsHandler creates a StatsHandler. Calendar windows are computed in
// defaultZone unless the request names another zone.
func NewStatsHandler(db *gorm.DB, defaultZone *time.Location) *StatsHandler {
	if defaultZone == nil {
		defaultZone = time.UTC
	}
	return &StatsHandler{DB: db, DefaultZone: defaultZone, now: time.Now}
}

// UserStats counts accounts.
type UserStats struct {
	Total        int64                 `json:"total"`
	ByRole       map[models.Role]int64 `json:"byRole"`
	ActiveLast30 int64                 `json:"activeLast30Days"`
}

// AppointmentStats counts appointments by status, calendar window and
// display view.
type AppointmentStats struct {
	Total     int64                              `json:"total"`
	ByStatus  map[models.AppointmentStatus]int64 `json:"byStatus"`
	Today     int64                              `json:"today"`
	ThisWeek  int64                              `json:"thisWeek"`
	ThisMonth int64                              `json:"thisMonth"`
	Views     scheduling.Counts                  `json:"views"`
}

// VideoStats summarizes video usage. The average covers appointments with
// both an actual start and end.
type VideoStats struct {
	Sessions              int64   `json:"sessions"`
	AverageSessionMinutes float64 `json:"averageSessionMinutes"`
}

// Stats is the admin dashboard payload.
type Stats struct {
	Timezone       string           `json:"timezone"`
	GeneratedAt    time.Time        `json:"generatedAt"`
	Users          UserStats        `json:"users"`
	Appointments   AppointmentStats `json:"appointments"`
	Video          VideoStats       `json:"video"`
	MedicalRecords int64            `json:"medicalRecords"`
}

// GetStats handles GET /admin/stats?tz=Area/City.
func (h *StatsHandler) GetStats(c *gin.Context) {
	zone := h.DefaultZone
	if tz := c.Query("tz"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			utils.BadRequest(c, "Unknown time zone: "+tz)
			return
		}
		zone = loc
	}

	stats, err := h.collect(h.DB.WithContext(c.Request.Context()), h.now().In(zone))
	if err != nil {
		utils.InternalServerError(c, "Failed to compute statistics")
		return
	}
	utils.Success(c, "Statistics fetched successfully", stats)
}

func (h *StatsHandler) collect(db *gorm.DB, now time.Time) (*Stats, error) {
	stats := &Stats{
		Timezone:     now.Location().String(),
		GeneratedAt:  now.UTC(),
		Users:        UserStats{ByRole: map[models.Role]int64{}},
		Appointments: AppointmentStats{ByStatus: map[models.AppointmentStatus]int64{}},
	}

	var roles []struct {
		Role  models.Role
		Total int64
	}
	if err := db.Model(&models.User{}).Select("role, COUNT(*) AS total").Group("role").Scan(&roles).Error; err != nil {
		return nil, err
	}
	for _, r := range roles {
		stats.Users.ByRole[r.Role] = r.Total
		stats.Users.Total += r.Total
	}

	if err := db.Model(&models.AuditLog{}).
		Where("action = ? AND occurred_at >= ?", audit.ActionSignIn, now.Add(-activeUserWindow).UTC()).
		Distinct("user_id").
		Count(&stats.Users.ActiveLast30).Error; err != nil {
		return nil, err
	}

	var appointments []models.Appointment
	if err := db.Select("id", "status", "scheduled_start", "actual_start", "actual_end").
		Find(&appointments).Error; err != nil {
		return nil, err
	}

	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	weekday := (int(today.Weekday()) + 6) % 7
	week := today.AddDate(0, 0, -weekday)
	month := time.Date(y, m, 1, 0, 0, 0, 0, now.Location())

	var minutes float64
	var timed int
	for i := range appointments {
		apt := &appointments[i]
		stats.Appointments.Total++
		stats.Appointments.ByStatus[apt.Status]++

		start := apt.ScheduledStart
		if within(start, today, today.AddDate(0, 0, 1)) {
			stats.Appointments.Today++
		}
		if within(start, week, week.AddDate(0, 0, 7)) {
			stats.Appointments.ThisWeek++
		}
		if within(start, month, month.AddDate(0, 1, 0)) {
			stats.Appointments.ThisMonth++
		}
		if apt.ActualStart != nil && apt.ActualEnd != nil && apt.ActualEnd.After(*apt.ActualStart) {
			minutes += apt.ActualEnd.Sub(*apt.ActualStart).Minutes()
			timed++
		}
	}
	stats.Appointments.Views = scheduling.CountViews(appointments, now)

	if err := db.Model(&models.VideoSession{}).Count(&stats.Video.Sessions).Error; err != nil {
		return nil, err
	}
	if timed > 0 {
		stats.Video.AverageSessionMinutes = minutes / float64(timed)
	}

	if err := db.Model(&models.MedicalRecord{}).Count(&stats.MedicalRecords).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

func within(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}
