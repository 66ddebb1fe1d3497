package video

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"signbridge-server/internal/apperr"
	"signbridge-server/internal/audit"
	"signbridge-server/internal/identity"
	"signbridge-server/internal/logger"
	"signbridge-server/internal/models"
)

// roomGrace keeps a room open after the scheduled end.
const roomGrace = time.Hour

// ErrNotConfigured is returned when no video backend is available.
var ErrNotConfigured = errors.New("video service not configured")

// Participant is one party expected in the call.
type Participant struct {
	UserID      string      `json:"userId"`
	DisplayName string      `json:"displayName"`
	Role        models.Role `json:"role"`
}

// Session is what a caller needs to join the call.
type Session struct {
	AppointmentID string        `json:"appointmentId"`
	RoomName      string        `json:"roomName"`
	RoomURL       string        `json:"roomUrl"`
	Token         string        `json:"token"`
	ExpiresAt     *time.Time    `json:"expiresAt,omitempty"`
	Participants  []Participant `json:"participants"`
}

// Provisioner creates at most one room per appointment and admits its
// parties.
type Provisioner struct {
	db       *gorm.DB
	rooms    RoomProvider
	recorder *audit.Recorder
	prefix   string
	tokenTTL time.Duration
	log      *logger.Logger
	now      func() time.Time
}

// NewProvisioner creates a provisioner. A nil rooms makes Join fail with
// ErrNotConfigured.
func NewProvisioner(db *gorm.DB, rooms RoomProvider, recorder *audit.Recorder, prefix string, tokenTTL time.Duration, log *logger.Logger) *Provisioner {
	if tokenTTL <= 0 {
		tokenTTL = 2 * time.Hour
	}
	if prefix == "" {
		prefix = "appointment"
	}
	return &Provisioner{
		db:       db,
		rooms:    rooms,
		recorder: recorder,
		prefix:   prefix,
		tokenTTL: tokenTTL,
		log:      log,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (p *Provisioner) WithClock(now func() time.Time) *Provisioner {
	p.now = now
	return p
}

// Join returns the appointment's room, creating it on first use, and a
// meeting token for the caller.
func (p *Provisioner) Join(ctx context.Context, caller identity.Caller, appointmentID string) (*Session, error) {
	if appointmentID == "" {
		return nil, apperr.Validation("appointment_id", "appointment id is required")
	}

	var apt models.Appointment
	err := p.db.WithContext(ctx).
		Preload("Patient").Preload("Provider").Preload("Interpreter").
		First(&apt, "id = ?", appointmentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("appointment", appointmentID)
	}
	if err != nil {
		return nil, apperr.DataAccess("load appointment", err)
	}
	if !apt.HasParticipant(caller.UserID) {
		return nil, apperr.NotFound("appointment", appointmentID)
	}
	if apt.Status.Terminal() {
		return nil, apperr.InvalidTransition("join", string(apt.Status))
	}
	if p.rooms == nil {
		return nil, apperr.DataAccess("provision video room", ErrNotConfigured)
	}

	session, err := p.session(ctx, caller, &apt)
	if err != nil {
		return nil, err
	}

	participants := roster(&apt)
	token, err := p.rooms.CreateMeetingToken(ctx, TokenRequest{
		RoomName:  session.RoomName,
		UserID:    caller.UserID,
		UserName:  displayName(participants, caller.UserID),
		IsOwner:   caller.UserID == apt.ProviderID,
		ExpiresAt: p.now().Add(p.tokenTTL),
	})
	if err != nil {
		return nil, apperr.DataAccess("create meeting token", err)
	}

	p.recorder.Record(ctx, audit.FromCaller(caller, audit.ActionJoin, audit.ResourceVideoCall, apt.ID, map[string]any{
		"roomName": session.RoomName,
	}))

	return &Session{
		AppointmentID: apt.ID,
		RoomName:      session.RoomName,
		RoomURL:       session.RoomURL,
		Token:         token,
		ExpiresAt:     session.ExpiresAt,
		Participants:  participants,
	}, nil
}

// session returns the stored room or provisions a new one.
func (p *Provisioner) session(ctx context.Context, caller identity.Caller, apt *models.Appointment) (*models.VideoSession, error) {
	existing, err := p.findSession(ctx, apt.ID)
	if err != nil || existing != nil {
		return existing, err
	}

	expires := apt.ScheduledEnd.Add(roomGrace).UTC()
	if floor := p.now().Add(p.tokenTTL); expires.Before(floor) {
		expires = floor.UTC()
	}
	name := fmt.Sprintf("%s-%s-%d", p.prefix, apt.ID, p.now().Unix())

	room, err := p.rooms.CreateRoom(ctx, name, expires)
	if err != nil {
		return nil, apperr.DataAccess("create video room", err)
	}

	session := &models.VideoSession{
		AppointmentID: apt.ID,
		RoomName:      room.Name,
		RoomURL:       room.URL,
		ExpiresAt:     &expires,
		CreatedBy:     caller.UserID,
	}
	entry, err := audit.FromCaller(caller, audit.ActionCreate, audit.ResourceVideoRoom, apt.ID, map[string]any{
		"roomName": room.Name,
		"roomUrl":  room.URL,
	}).Entry(p.now())
	if err != nil {
		return nil, apperr.DataAccess("build audit entry", err)
	}

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(session).Error; err != nil {
			return err
		}
		return tx.Create(entry).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// A concurrent join stored its room first; use that one.
		p.log.WithComponent("video").WithField("appointment_id", apt.ID).
			WithField("room_name", room.Name).Warn("discarding duplicate video room")
		existing, err := p.findSession(ctx, apt.ID)
		if err == nil && existing == nil {
			err = apperr.DataAccess("load video session", gorm.ErrRecordNotFound)
		}
		return existing, err
	}
	if err != nil {
		return nil, apperr.DataAccess("save video session", err)
	}

	p.log.WithComponent("video").WithField("appointment_id", apt.ID).
		WithField("room_name", room.Name).Info("video room created")
	return session, nil
}

func (p *Provisioner) findSession(ctx context.Context, appointmentID string) (*models.VideoSession, error) {
	var session models.VideoSession
	err := p.db.WithContext(ctx).First(&session, "appointment_id = ?", appointmentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.DataAccess("load video session", err)
	}
	return &session, nil
}

// roster lists the appointment's parties. Roles come from the column the
// user occupies on the appointment.
func roster(apt *models.Appointment) []Participant {
	out := []Participant{
		participant(apt.PatientID, apt.Patient, models.RolePatient),
		participant(apt.ProviderID, apt.Provider, models.RoleProvider),
	}
	if apt.InterpreterID != nil {
		out = append(out, participant(*apt.InterpreterID, apt.Interpreter, models.RoleInterpreter))
	}
	return out
}

func participant(id string, user *models.User, role models.Role) Participant {
	p := Participant{UserID: id, Role: role}
	if user != nil {
		p.DisplayName = user.FullName()
	}
	return p
}

func displayName(participants []Participant, userID string) string {
	for _, p := range participants {
		if p.UserID == userID {
			return p.DisplayName
		}
	}
	return ""
}
