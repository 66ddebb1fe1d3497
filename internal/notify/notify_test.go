package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"signbridge-server/internal/audit"
	"signbridge-server/internal/config"
	"signbridge-server/internal/logger"
	"signbridge-server/internal/models"
	"signbridge-server/internal/testdb"
)

type captureSender struct {
	mu   sync.Mutex
	sent []Message
}

func (c *captureSender) Send(_ context.Context, msg Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return "msg-1", nil
}

func sampleData() EmailData {
	return EmailData{
		PatientName:      "Ana Lopez",
		ProviderName:     "Grace Hopper",
		Specialty:        "Cardiology",
		Start:            time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
		Reason:           "Chest pain <follow-up>",
		NeedsInterpreter: true,
		SignLanguage:     "ASL",
		AppointmentID:    "apt-123",
		VideoCallURL:     "https://app.example.com/video-call/apt-123",
		HoursUntil:       24,
	}
}

func TestRenderConfirmationEnglish(t *testing.T) {
	msg, err := Render(KindConfirmation, models.LanguageEnglish, sampleData())
	require.NoError(t, err)

	assert.Equal(t, "Appointment Confirmation - Monday, March 10, 2025", msg.Subject)
	assert.Contains(t, msg.HTML, "Dear Ana Lopez")
	assert.Contains(t, msg.HTML, "Chest pain &lt;follow-up&gt;")
	assert.Contains(t, msg.HTML, "ASL (Requested)")
	assert.Contains(t, msg.HTML, "https://app.example.com/video-call/apt-123")
	assert.Contains(t, msg.Text, "Time: 10:00 AM")
	assert.Contains(t, msg.Text, "Chest pain <follow-up>")
	assert.Contains(t, msg.Text, "Appointment ID: apt-123")
}

func TestRenderSpanish(t *testing.T) {
	msg, err := Render(KindConfirmation, models.LanguageSpanish, sampleData())
	require.NoError(t, err)
	assert.Equal(t, "Confirmación de Cita - lunes, 10 de marzo de 2025", msg.Subject)
	assert.Contains(t, msg.Text, "Estimado/a Ana Lopez")
	assert.Contains(t, msg.Text, "Hora: 10:00")

	reminder, err := Render(KindReminder, models.LanguageSpanish, sampleData())
	require.NoError(t, err)
	assert.Equal(t, "Recordatorio: Cita en 24 horas", reminder.Subject)
}

func TestRenderCancellationOmitsJoinLink(t *testing.T) {
	data := sampleData()
	data.CancellationReason = "Provider unavailable"

	msg, err := Render(KindCancellation, models.LanguageEnglish, data)
	require.NoError(t, err)
	assert.Equal(t, "Appointment Cancelled - Monday, March 10, 2025", msg.Subject)
	assert.Contains(t, msg.Text, "Cancellation reason: Provider unavailable")
	assert.NotContains(t, msg.HTML, "Join Video Call")
}

func TestRenderUnknownKind(t *testing.T) {
	_, err := Render(Kind("invoice"), models.LanguageEnglish, sampleData())
	assert.Error(t, err)
}

func TestResendSender(t *testing.T) {
	var got resendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"email-42"}`))
	}))
	defer server.Close()

	sender := NewResendSender(server.URL+"/", "re_test", "SignBridge <noreply@example.com>", server.Client())
	id, err := sender.Send(context.Background(), Message{To: "ana@example.com", Subject: "Hi", HTML: "<p>Hi</p>", Text: "Hi"})
	require.NoError(t, err)

	assert.Equal(t, "email-42", id)
	assert.Equal(t, []string{"ana@example.com"}, got.To)
	assert.Equal(t, "SignBridge <noreply@example.com>", got.From)
}

func TestResendSenderReportsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid from"}`))
	}))
	defer server.Close()

	sender := NewResendSender(server.URL, "re_test", "bad", server.Client())
	_, err := sender.Send(context.Background(), Message{To: "a@example.com", Subject: "s", HTML: "h"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestNewSenderTransports(t *testing.T) {
	log := logger.Discard()

	s, err := NewSender(config.MailerConfig{Transport: "none"}, false, log)
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = NewSender(config.MailerConfig{Transport: "resend"}, true, log)
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, s)

	_, err = NewSender(config.MailerConfig{Transport: "resend"}, false, log)
	assert.Error(t, err)

	s, err = NewSender(config.MailerConfig{Transport: "resend", ResendAPIKey: "k"}, false, log)
	require.NoError(t, err)
	assert.IsType(t, &ResendSender{}, s)
}

func seedAppointment(t *testing.T, db *gorm.DB, patient, provider *models.User, start time.Time, status models.AppointmentStatus) *models.Appointment {
	t.Helper()
	apt := &models.Appointment{
		PatientID:       patient.ID,
		ProviderID:      provider.ID,
		ScheduledStart:  start.UTC(),
		ScheduledEnd:    start.Add(30 * time.Minute).UTC(),
		DurationMinutes: 30,
		Status:          status,
		Reason:          "Checkup",
	}
	require.NoError(t, db.Create(apt).Error)
	return apt
}

func TestNotifyUsesPatientLanguageAndZone(t *testing.T) {
	db := testdb.Open(t)
	patient := testdb.CreateUser(t, db, models.RolePatient, "Ana", func(u *models.User) {
		u.PreferredLanguage = models.LanguageSpanish
		u.Timezone = "America/Mexico_City"
	})
	provider := testdb.CreateUser(t, db, models.RoleProvider, "Grace")
	apt := seedAppointment(t, db, patient, provider, time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC), models.StatusScheduled)

	sender := &captureSender{}
	n := NewNotifier(db, sender, audit.NewRecorder(audit.NewGormSink(db), logger.Discard()), "https://app.example.com/", time.UTC, logger.Discard())

	require.NoError(t, n.Notify(context.Background(), KindConfirmation, apt.ID))

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, patient.Email, msg.To)
	assert.Contains(t, msg.Subject, "Confirmación de Cita")
	assert.Contains(t, msg.Text, "Hora: 10:00")
	assert.Contains(t, msg.Text, "https://app.example.com/video-call/"+apt.ID)

	var logged int64
	require.NoError(t, db.Model(&models.AuditLog{}).Where("action = ? AND resource_id = ?", audit.ActionSendEmail, apt.ID).Count(&logged).Error)
	assert.EqualValues(t, 1, logged)
}

func TestSendRemindersOnce(t *testing.T) {
	db := testdb.Open(t)
	patient := testdb.CreateUser(t, db, models.RolePatient, "Ana")
	provider := testdb.CreateUser(t, db, models.RoleProvider, "Grace")
	now := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)

	soon := seedAppointment(t, db, patient, provider, now.Add(20*time.Hour), models.StatusScheduled)
	seedAppointment(t, db, patient, provider, now.Add(30*time.Hour), models.StatusScheduled)
	seedAppointment(t, db, patient, provider, now.Add(2*time.Hour), models.StatusCancelled)
	seedAppointment(t, db, patient, provider, now.Add(-2*time.Hour), models.StatusScheduled)

	sender := &captureSender{}
	n := NewNotifier(db, sender, nil, "https://app.example.com", time.UTC, logger.Discard()).
		WithClock(func() time.Time { return now })

	sent, err := n.SendReminders(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Reminder: Appointment in 20 hours", sender.sent[0].Subject)

	var stored models.Appointment
	require.NoError(t, db.First(&stored, "id = ?", soon.ID).Error)
	assert.NotNil(t, stored.ReminderSentAt)

	sent, err = n.SendReminders(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestDisabledNotifierIsNoop(t *testing.T) {
	n := NewNotifier(nil, nil, nil, "", nil, logger.Discard())

	assert.False(t, n.Enabled())
	assert.NoError(t, n.Notify(context.Background(), KindConfirmation, "x"))
	sent, err := n.SendReminders(context.Background(), time.Hour)
	assert.NoError(t, err)
	assert.Zero(t, sent)
	n.Dispatch(KindConfirmation, "x")
}

type gatedSender struct {
	captureSender
	release chan struct{}
}

func (g *gatedSender) Send(ctx context.Context, msg Message) (string, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return g.captureSender.Send(ctx, msg)
}

func TestWaitDrainsDispatchedEmails(t *testing.T) {
	db := testdb.Open(t)
	patient := testdb.CreateUser(t, db, models.RolePatient, "Ana")
	provider := testdb.CreateUser(t, db, models.RoleProvider, "Grace")
	apt := seedAppointment(t, db, patient, provider, time.Now().Add(48*time.Hour), models.StatusScheduled)

	sender := &gatedSender{release: make(chan struct{})}
	n := NewNotifier(db, sender, nil, "https://app.example.com", time.UTC, logger.Discard())

	n.Dispatch(KindConfirmation, apt.ID)

	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, n.Wait(short), context.DeadlineExceeded)

	close(sender.release)
	require.NoError(t, n.Wait(context.Background()))
	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.sent, 1)
	assert.Equal(t, patient.Email, sender.sent[0].To)
}

func TestRenderPasswordReset(t *testing.T) {
	data := PasswordResetData{Name: "Ana <Lopez>", ResetURL: "https://app.example.com/reset-password?token=abc", ExpiresInMinutes: 60}

	en, err := RenderPasswordReset(models.LanguageEnglish, data)
	require.NoError(t, err)
	assert.Equal(t, "Reset your SignBridge password", en.Subject)
	assert.Contains(t, en.HTML, "Ana &lt;Lopez&gt;")
	assert.Contains(t, en.HTML, `href="https://app.example.com/reset-password?token=abc"`)
	assert.Contains(t, en.Text, "expires in 60 minutes")

	es, err := RenderPasswordReset(models.LanguageSpanish, data)
	require.NoError(t, err)
	assert.Contains(t, es.Subject, "Restablezca")
	assert.Contains(t, es.Text, "vence en 60 minutos")
}

func TestSendPasswordReset(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.CreateUser(t, db, models.RolePatient, "Ana")
	sender := &captureSender{}
	n := NewNotifier(db, sender, audit.NewRecorder(audit.NewGormSink(db), logger.Discard()), "https://app.example.com/", time.UTC, logger.Discard())

	require.NoError(t, n.SendPasswordReset(context.Background(), user, "tok 1", time.Hour))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, user.Email, sender.sent[0].To)
	assert.Contains(t, sender.sent[0].Text, "https://app.example.com/reset-password?token=tok+1")

	var logged int64
	require.NoError(t, db.Model(&models.AuditLog{}).Where("action = ? AND resource_id = ?", audit.ActionSendEmail, user.ID).Count(&logged).Error)
	assert.EqualValues(t, 1, logged)

	disabled := NewNotifier(db, nil, nil, "", nil, logger.Discard())
	assert.NoError(t, disabled.SendPasswordReset(context.Background(), user, "tok", time.Hour))
}
