package video

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"signbridge-server/internal/apperr"
	"signbridge-server/internal/audit"
	"signbridge-server/internal/identity"
	"signbridge-server/internal/logger"
	"signbridge-server/internal/models"
	"signbridge-server/internal/testdb"
)

type fakeDaily struct {
	rooms  atomic.Int32
	tokens atomic.Int32
	server *httptest.Server
	owners map[string]bool
}

func newFakeDaily(t *testing.T) *fakeDaily {
	t.Helper()
	f := &fakeDaily{owners: map[string]bool{}}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer daily-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/rooms":
			var req createRoomRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Privacy != "private" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.rooms.Add(1)
			_ = json.NewEncoder(w).Encode(Room{Name: req.Name, URL: "https://signbridge.daily.co/" + req.Name})
		case "/meeting-tokens":
			var req map[string]tokenProperties
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			props := req["properties"]
			f.tokens.Add(1)
			f.owners[props.UserID] = props.IsOwner
			_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-" + props.UserID})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

type fixture struct {
	db          *gorm.DB
	daily       *fakeDaily
	provisioner *Provisioner
	patient     *models.User
	provider    *models.User
	interpreter *models.User
	apt         *models.Appointment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testdb.Open(t)
	daily := newFakeDaily(t)
	log := logger.Discard()

	patient := testdb.CreateUser(t, db, models.RolePatient, "Ana")
	provider := testdb.CreateUser(t, db, models.RoleProvider, "Grace")
	interpreter := testdb.CreateUser(t, db, models.RoleInterpreter, "Ivan")

	now := time.Date(2025, 3, 10, 14, 55, 0, 0, time.UTC)
	interpreterID := interpreter.ID
	apt := &models.Appointment{
		PatientID:        patient.ID,
		ProviderID:       provider.ID,
		InterpreterID:    &interpreterID,
		ScheduledStart:   now.Add(5 * time.Minute),
		ScheduledEnd:     now.Add(35 * time.Minute),
		DurationMinutes:  30,
		Status:           models.StatusScheduled,
		NeedsInterpreter: true,
		Reason:           "Follow-up",
	}
	require.NoError(t, db.Create(apt).Error)

	client := NewDailyClient(daily.server.URL, "daily-key", daily.server.Client())
	provisioner := NewProvisioner(db, client, audit.NewRecorder(audit.NewGormSink(db), log), "signbridge", time.Hour, log).
		WithClock(func() time.Time { return now })

	return &fixture{
		db:          db,
		daily:       daily,
		provisioner: provisioner,
		patient:     patient,
		provider:    provider,
		interpreter: interpreter,
		apt:         apt,
	}
}

func (f *fixture) caller(u *models.User) identity.Caller {
	return identity.Caller{UserID: u.ID, Role: u.Role}
}

func (f *fixture) auditCount(t *testing.T, action, resourceType string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.AuditLog{}).
		Where("action = ? AND resource_type = ? AND resource_id = ?", action, resourceType, f.apt.ID).
		Count(&n).Error)
	return n
}

func TestJoinCreatesRoomOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.provisioner.Join(ctx, f.caller(f.patient), f.apt.ID)
	require.NoError(t, err)
	second, err := f.provisioner.Join(ctx, f.caller(f.provider), f.apt.ID)
	require.NoError(t, err)

	assert.Equal(t, first.RoomURL, second.RoomURL)
	assert.Equal(t, first.RoomName, second.RoomName)
	assert.Contains(t, first.RoomName, "signbridge-"+f.apt.ID)
	assert.EqualValues(t, 1, f.daily.rooms.Load())
	assert.EqualValues(t, 2, f.daily.tokens.Load())

	assert.Equal(t, "tok-"+f.patient.ID, first.Token)
	assert.Equal(t, "tok-"+f.provider.ID, second.Token)
	assert.False(t, f.daily.owners[f.patient.ID])
	assert.True(t, f.daily.owners[f.provider.ID])

	var sessions int64
	require.NoError(t, f.db.Model(&models.VideoSession{}).Count(&sessions).Error)
	assert.EqualValues(t, 1, sessions)
	assert.EqualValues(t, 1, f.auditCount(t, audit.ActionCreate, audit.ResourceVideoRoom))
	assert.EqualValues(t, 2, f.auditCount(t, audit.ActionJoin, audit.ResourceVideoCall))
}

func TestJoinRosterRolesComeFromAppointment(t *testing.T) {
	f := newFixture(t)

	session, err := f.provisioner.Join(context.Background(), f.caller(f.interpreter), f.apt.ID)
	require.NoError(t, err)

	require.Len(t, session.Participants, 3)
	assert.Equal(t, Participant{UserID: f.patient.ID, DisplayName: "Ana Test", Role: models.RolePatient}, session.Participants[0])
	assert.Equal(t, Participant{UserID: f.provider.ID, DisplayName: "Grace Test", Role: models.RoleProvider}, session.Participants[1])
	assert.Equal(t, Participant{UserID: f.interpreter.ID, DisplayName: "Ivan Test", Role: models.RoleInterpreter}, session.Participants[2])
}

func TestJoinRejectsOutsiders(t *testing.T) {
	f := newFixture(t)
	stranger := testdb.CreateUser(t, f.db, models.RolePatient, "Sam")
	admin := testdb.CreateUser(t, f.db, models.RoleAdmin, "Root")

	_, err := f.provisioner.Join(context.Background(), f.caller(stranger), f.apt.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.provisioner.Join(context.Background(), f.caller(admin), f.apt.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.provisioner.Join(context.Background(), f.caller(f.patient), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Zero(t, f.daily.rooms.Load())
}

func TestJoinTerminalAppointment(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(f.apt).Update("status", models.StatusCancelled).Error)

	_, err := f.provisioner.Join(context.Background(), f.caller(f.patient), f.apt.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Zero(t, f.daily.rooms.Load())
}

func TestJoinWithoutBackend(t *testing.T) {
	f := newFixture(t)
	p := NewProvisioner(f.db, nil, nil, "", 0, logger.Discard())

	_, err := p.Join(context.Background(), f.caller(f.patient), f.apt.ID)
	assert.ErrorIs(t, err, apperr.ErrDataAccess)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDailyClientReportsErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid-request-error"}`))
	}))
	defer server.Close()

	client := NewDailyClient(server.URL, "k", server.Client())
	_, err := client.CreateRoom(context.Background(), "r", time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}
