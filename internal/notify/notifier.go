package notify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"signbridge-server/internal/audit"
	"signbridge-server/internal/logger"
	"signbridge-server/internal/metrics"
	"signbridge-server/internal/models"
)

const (
	dispatchTimeout       = 30 * time.Second
	templatePasswordReset = "password_reset"
)

// Notifier emails patients about their appointments.
type Notifier struct {
	db          *gorm.DB
	sender      Sender
	recorder    *audit.Recorder
	appURL      string
	defaultZone *time.Location
	log         *logger.Logger
	now         func() time.Time
	inflight    sync.WaitGroup
}

// NewNotifier creates a notifier. A nil sender disables delivery.
func NewNotifier(db *gorm.DB, sender Sender, recorder *audit.Recorder, appURL string, defaultZone *time.Location, log *logger.Logger) *Notifier {
	if defaultZone == nil {
		defaultZone = time.UTC
	}
	return &Notifier{
		db:          db,
		sender:      sender,
		recorder:    recorder,
		appURL:      strings.TrimRight(appURL, "/"),
		defaultZone: defaultZone,
		log:         log,
		now:         time.Now,
	}
}

// WithClock replaces the time source.
func (n *Notifier) WithClock(now func() time.Time) *Notifier {
	n.now = now
	return n
}

// Enabled reports whether emails are delivered at all.
func (n *Notifier) Enabled() bool {
	return n != nil && n.sender != nil
}

// Dispatch sends in the background. Failures are logged; the caller's
// request is never affected.
func (n *Notifier) Dispatch(kind Kind, appointmentID string) {
	if !n.Enabled() {
		return
	}
	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		if err := n.Notify(ctx, kind, appointmentID); err != nil {
			n.log.WithComponent("notify").WithError(err).WithFields(map[string]any{
				"appointment_id": appointmentID,
				"template":       kind,
			}).Error("appointment email failed")
		}
	}()
}

// Wait blocks until every dispatched email has finished or ctx is done.
func (n *Notifier) Wait(ctx context.Context) error {
	if n == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		n.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notify renders and sends one email to the appointment's patient.
func (n *Notifier) Notify(ctx context.Context, kind Kind, appointmentID string) (err error) {
	if !n.Enabled() {
		return nil
	}
	defer func() { metrics.ObserveNotification(string(kind), err) }()

	var apt models.Appointment
	if err := n.db.WithContext(ctx).
		Preload("Patient").Preload("Provider").
		First(&apt, "id = ?", appointmentID).Error; err != nil {
		return fmt.Errorf("load appointment %s: %w", appointmentID, err)
	}
	if apt.Patient == nil || apt.Provider == nil {
		return errors.New("appointment is missing its patient or provider")
	}
	if apt.Patient.Email == "" {
		return fmt.Errorf("patient %s has no email address", apt.PatientID)
	}

	msg, err := Render(kind, apt.Patient.Locale(), n.emailData(&apt))
	if err != nil {
		return err
	}
	msg.To = apt.Patient.Email

	messageID, err := n.sender.Send(ctx, msg)
	if err != nil {
		return err
	}

	n.recorder.Record(ctx, audit.Event{
		ActorID:      apt.PatientID,
		ActorRole:    models.RolePatient,
		Action:       audit.ActionSendEmail,
		ResourceType: audit.ResourceEmail,
		ResourceID:   apt.ID,
		Metadata: map[string]any{
			"template":  kind,
			"messageId": messageID,
		},
	})
	return nil
}

// SendPasswordReset emails user a single-use link carrying token. It sends
// synchronously so the caller can log a delivery failure.
func (n *Notifier) SendPasswordReset(ctx context.Context, user *models.User, token string, ttl time.Duration) (err error) {
	if !n.Enabled() {
		return nil
	}
	defer func() { metrics.ObserveNotification(templatePasswordReset, err) }()

	msg, err := RenderPasswordReset(user.Locale(), PasswordResetData{
		Name:             user.FullName(),
		ResetURL:         fmt.Sprintf("%s/reset-password?token=%s", n.appURL, url.QueryEscape(token)),
		ExpiresInMinutes: int(ttl.Minutes()),
	})
	if err != nil {
		return err
	}
	msg.To = user.Email

	messageID, err := n.sender.Send(ctx, msg)
	if err != nil {
		return err
	}

	n.recorder.Record(ctx, audit.Event{
		ActorID:      user.ID,
		ActorRole:    user.Role,
		Action:       audit.ActionSendEmail,
		ResourceType: audit.ResourceEmail,
		ResourceID:   user.ID,
		Metadata: map[string]any{
			"template":  templatePasswordReset,
			"messageId": messageID,
		},
	})
	return nil
}

// SendReminders emails every scheduled appointment starting within the
// window that has not been reminded yet, and returns how many were sent.
func (n *Notifier) SendReminders(ctx context.Context, within time.Duration) (int, error) {
	if !n.Enabled() {
		return 0, nil
	}
	now := n.now().UTC()

	var due []models.Appointment
	err := n.db.WithContext(ctx).
		Where("status = ? AND reminder_sent_at IS NULL", models.StatusScheduled).
		Where("scheduled_start > ? AND scheduled_start <= ?", now, now.Add(within)).
		Order("scheduled_start").
		Find(&due).Error
	if err != nil {
		return 0, fmt.Errorf("find due reminders: %w", err)
	}

	sent := 0
	var errs []error
	for _, apt := range due {
		if err := n.Notify(ctx, KindReminder, apt.ID); err != nil {
			errs = append(errs, fmt.Errorf("appointment %s: %w", apt.ID, err))
			continue
		}
		if err := n.db.WithContext(ctx).Model(&models.Appointment{}).
			Where("id = ?", apt.ID).
			Update("reminder_sent_at", now).Error; err != nil {
			errs = append(errs, fmt.Errorf("mark reminded %s: %w", apt.ID, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

func (n *Notifier) emailData(apt *models.Appointment) EmailData {
	zone := n.defaultZone
	if apt.Patient.Timezone != "" {
		if loc, err := time.LoadLocation(apt.Patient.Timezone); err == nil {
			zone = loc
		}
	}

	data := EmailData{
		PatientName:      apt.Patient.FullName(),
		ProviderName:     apt.Provider.FullName(),
		Specialty:        apt.Provider.Specialty,
		Start:            apt.ScheduledStart.In(zone),
		Reason:           apt.Reason,
		NeedsInterpreter: apt.NeedsInterpreter,
		AppointmentID:    apt.ID,
		VideoCallURL:     fmt.Sprintf("%s/video-call/%s", n.appURL, apt.ID),
		HoursUntil:       int(math.Round(apt.ScheduledStart.Sub(n.now()).Hours())),
	}
	if apt.PreferredSignLanguage != nil {
		data.SignLanguage = string(*apt.PreferredSignLanguage)
	}
	if apt.CancellationReason != nil {
		data.CancellationReason = *apt.CancellationReason
	}
	return data
}
