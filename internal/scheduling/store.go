package scheduling

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"signbridge-server/internal/apperr"
	"signbridge-server/internal/models"
)

// Scope restricts a listing to one party column. The zero Scope lists
// everything.
type Scope struct {
	PatientID     string
	ProviderID    string
	InterpreterID string
}

// Store is the persistence boundary of the scheduling services. Every
// error it returns is an *apperr.Error.
type Store interface {
	FindUser(ctx context.Context, id string) (*models.User, error)
	ListBookedIntervals(ctx context.Context, providerID string, from, to time.Time) ([]Interval, error)
	GetAppointment(ctx context.Context, id string) (*models.Appointment, error)
	ListAppointments(ctx context.Context, scope Scope) ([]models.Appointment, error)
	// CreateAppointment inserts apt, claims its grid slots and appends
	// entry, all in one transaction.
	CreateAppointment(ctx context.Context, apt *models.Appointment, entry *models.AuditLog) error
	// UpdateAppointment writes apt only if its stored status is still from,
	// appends entry, and when rebook is set re-claims its grid slots (none
	// for a cancelled appointment). One transaction.
	UpdateAppointment(ctx context.Context, apt *models.Appointment, from models.AppointmentStatus, entry *models.AuditLog, rebook bool) error
}

// GormStore implements Store on gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store backed by db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FindUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user", id)
		}
		return nil, apperr.DataAccess("find user", err)
	}
	return &user, nil
}

func (s *GormStore) ListBookedIntervals(ctx context.Context, providerID string, from, to time.Time) ([]Interval, error) {
	var rows []struct {
		ScheduledStart time.Time
		ScheduledEnd   time.Time
	}
	err := s.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Select("scheduled_start", "scheduled_end").
		Where("provider_id = ? AND status <> ?", providerID, models.StatusCancelled).
		Where("scheduled_start < ? AND scheduled_end > ?", to.UTC(), from.UTC()).
		Order("scheduled_start").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.DataAccess("list booked intervals", err)
	}

	intervals := make([]Interval, len(rows))
	for i, r := range rows {
		intervals[i] = Interval{Start: r.ScheduledStart, End: r.ScheduledEnd}
	}
	return intervals, nil
}

func (s *GormStore) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	var apt models.Appointment
	err := s.withParties(s.db.WithContext(ctx)).First(&apt, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("appointment", id)
		}
		return nil, apperr.DataAccess("get appointment", err)
	}
	return &apt, nil
}

func (s *GormStore) ListAppointments(ctx context.Context, scope Scope) ([]models.Appointment, error) {
	q := s.withParties(s.db.WithContext(ctx))
	switch {
	case scope.PatientID != "":
		q = q.Where("patient_id = ?", scope.PatientID)
	case scope.ProviderID != "":
		q = q.Where("provider_id = ?", scope.ProviderID)
	case scope.InterpreterID != "":
		q = q.Where("interpreter_id = ?", scope.InterpreterID)
	}

	var appointments []models.Appointment
	if err := q.Order("scheduled_start asc").Find(&appointments).Error; err != nil {
		return nil, apperr.DataAccess("list appointments", err)
	}
	return appointments, nil
}

func (s *GormStore) CreateAppointment(ctx context.Context, apt *models.Appointment, entry *models.AuditLog) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Patient", "Provider", "Interpreter").Create(apt).Error; err != nil {
			return err
		}
		if err := reserve(tx, apt); err != nil {
			return err
		}
		return tx.Create(entry).Error
	})
	return storeError("create appointment", err)
}

func (s *GormStore) UpdateAppointment(ctx context.Context, apt *models.Appointment, from models.AppointmentStatus, entry *models.AuditLog, rebook bool) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Appointment{}).
			Where("id = ? AND status = ?", apt.ID, from).
			Updates(map[string]any{
				"interpreter_id":          apt.InterpreterID,
				"scheduled_start":         apt.ScheduledStart,
				"scheduled_end":           apt.ScheduledEnd,
				"duration_minutes":        apt.DurationMinutes,
				"actual_start":            apt.ActualStart,
				"actual_end":              apt.ActualEnd,
				"status":                  apt.Status,
				"needs_interpreter":       apt.NeedsInterpreter,
				"preferred_sign_language": apt.PreferredSignLanguage,
				"reason":                  apt.Reason,
				"notes":                   apt.Notes,
				"cancellation_reason":     apt.CancellationReason,
				"cancelled_at":            apt.CancelledAt,
				"cancelled_by":            apt.CancelledBy,
				"updated_at":              apt.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("appointment_modified", "appointment was changed by another request").
				WithDetail("id", apt.ID)
		}

		if rebook {
			if err := tx.Where("appointment_id = ?", apt.ID).Delete(&models.SlotReservation{}).Error; err != nil {
				return err
			}
			if apt.Status != models.StatusCancelled {
				if err := reserve(tx, apt); err != nil {
					return err
				}
			}
		}
		return tx.Create(entry).Error
	})
	return storeError("update appointment", err)
}

func (s *GormStore) withParties(db *gorm.DB) *gorm.DB {
	return db.Preload("Patient").Preload("Provider").Preload("Interpreter")
}

// reserve claims every grid slot apt touches. A unique violation means
// another appointment already holds one of them.
func reserve(tx *gorm.DB, apt *models.Appointment) error {
	keys := reservationSlots(apt.ScheduledStart, apt.ScheduledEnd)
	if len(keys) == 0 {
		return nil
	}
	rows := make([]models.SlotReservation, len(keys))
	for i, k := range keys {
		rows[i] = models.SlotReservation{
			ProviderID:    apt.ProviderID,
			SlotStart:     k,
			AppointmentID: apt.ID,
		}
	}
	if err := tx.Create(&rows).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Conflict("slot_unavailable", "the provider is already booked for part of this time").
				WithDetail("providerId", apt.ProviderID)
		}
		return err
	}
	return nil
}

func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperr.DataAccess(op, err)
}
