package scheduling

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"signbridge-server/internal/apperr"
	"signbridge-server/internal/audit"
	"signbridge-server/internal/identity"
	"signbridge-server/internal/logger"
	"signbridge-server/internal/metrics"
	"signbridge-server/internal/models"
)

// Manager owns the appointment lifecycle. Every method takes the caller
// explicitly and enforces role-scoped visibility before anything else.
type Manager struct {
	store    Store
	recorder *audit.Recorder
	log      *logger.Logger
	now      func() time.Time
}

// NewManager creates a lifecycle manager.
func NewManager(store Store, recorder *audit.Recorder, log *logger.Logger) *Manager {
	return &Manager{store: store, recorder: recorder, log: log, now: time.Now}
}

// WithClock replaces the time source. Used by tests and the reminder job.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// CreateInput is a booking request.
type CreateInput struct {
	PatientID             string
	ProviderID            string
	ScheduledStart        time.Time
	ScheduledEnd          time.Time
	Reason                string
	NeedsInterpreter      bool
	PreferredSignLanguage string
	Notes                 string
}

// Patch is a partial update. Nil fields are left alone.
type Patch struct {
	Reason                *string
	Notes                 *string
	NeedsInterpreter      *bool
	PreferredSignLanguage *string
}

func (p Patch) empty() bool {
	return p.Reason == nil && p.Notes == nil && p.NeedsInterpreter == nil && p.PreferredSignLanguage == nil
}

// Create books a new appointment. Patients book for themselves, providers
// book a patient onto their own calendar, admins book anyone.
func (m *Manager) Create(ctx context.Context, caller identity.Caller, in CreateInput) (apt *models.Appointment, err error) {
	defer func() { metrics.ObserveTransition("create", err) }()

	if !caller.Valid() {
		return nil, apperr.AccessDenied("caller identity required")
	}
	if err := m.validateCreate(in); err != nil {
		return nil, err
	}

	patientID, err := m.resolvePatient(ctx, caller, in)
	if err != nil {
		return nil, err
	}
	provider, err := m.store.FindUser(ctx, in.ProviderID)
	if err != nil {
		return nil, err
	}
	if provider.Role != models.RoleProvider {
		return nil, apperr.NotFound("provider", in.ProviderID)
	}

	start, end := in.ScheduledStart.UTC(), in.ScheduledEnd.UTC()
	apt = &models.Appointment{
		PatientID:        patientID,
		ProviderID:       in.ProviderID,
		ScheduledStart:   start,
		ScheduledEnd:     end,
		DurationMinutes:  models.DurationBetween(start, end),
		Status:           models.StatusScheduled,
		NeedsInterpreter: in.NeedsInterpreter,
		Reason:           strings.TrimSpace(in.Reason),
		Provider:         provider,
	}
	apt.ID = uuid.New().String()
	if in.PreferredSignLanguage != "" {
		lang, _ := models.ParseSignLanguage(in.PreferredSignLanguage)
		apt.PreferredSignLanguage = &lang
	}
	if notes := strings.TrimSpace(in.Notes); notes != "" {
		apt.Notes = &notes
	}

	entry, err := audit.FromCaller(caller, audit.ActionCreate, audit.ResourceAppointment, apt.ID, map[string]any{
		"providerId":       apt.ProviderID,
		"patientId":        apt.PatientID,
		"scheduledStart":   apt.ScheduledStart,
		"scheduledEnd":     apt.ScheduledEnd,
		"needsInterpreter": apt.NeedsInterpreter,
	}).Entry(m.now())
	if err != nil {
		return nil, apperr.DataAccess("build audit entry", err)
	}
	if err := m.store.CreateAppointment(ctx, apt, entry); err != nil {
		return nil, err
	}

	m.logTransition(caller, apt, "create")
	return apt, nil
}

// Update applies a partial patch. Concurrent patches resolve last writer
// wins; a concurrent status change is reported as a conflict.
func (m *Manager) Update(ctx context.Context, caller identity.Caller, id string, patch Patch) (apt *models.Appointment, err error) {
	defer func() { metrics.ObserveTransition("update", err) }()

	if patch.empty() {
		return nil, apperr.Validation("patch", "no fields to update")
	}
	apt, err = m.loadForChange(ctx, caller, id, true)
	if err != nil {
		return nil, err
	}

	changed := map[string]any{}
	if patch.Reason != nil {
		reason := strings.TrimSpace(*patch.Reason)
		if reason == "" {
			return nil, apperr.Validation("reason", "reason cannot be empty")
		}
		apt.Reason = reason
		changed["reason"] = true
	}
	if patch.Notes != nil {
		notes := strings.TrimSpace(*patch.Notes)
		if notes == "" {
			apt.Notes = nil
		} else {
			apt.Notes = &notes
		}
		changed["notes"] = true
	}
	if patch.PreferredSignLanguage != nil {
		if *patch.PreferredSignLanguage == "" {
			apt.PreferredSignLanguage = nil
		} else {
			lang, ok := models.ParseSignLanguage(*patch.PreferredSignLanguage)
			if !ok {
				return nil, apperr.Validation("preferredSignLanguage", "unsupported sign language")
			}
			apt.PreferredSignLanguage = &lang
		}
		changed["preferredSignLanguage"] = apt.PreferredSignLanguage
	}
	if patch.NeedsInterpreter != nil {
		if !*patch.NeedsInterpreter && apt.InterpreterID != nil {
			return nil, apperr.Validation("needsInterpreter", "unassign the interpreter before removing the interpreter request")
		}
		apt.NeedsInterpreter = *patch.NeedsInterpreter
		changed["needsInterpreter"] = apt.NeedsInterpreter
	}

	if err := m.persist(ctx, caller, apt, apt.Status, audit.ActionUpdate, map[string]any{
		"operation": "update",
		"changed":   changed,
	}, false); err != nil {
		return nil, err
	}
	m.logTransition(caller, apt, "update")
	return apt, nil
}

// Cancel moves a scheduled or in-progress appointment to cancelled and
// frees its slots.
func (m *Manager) Cancel(ctx context.Context, caller identity.Caller, id, reason string) (apt *models.Appointment, err error) {
	defer func() { metrics.ObserveTransition("cancel", err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("reason", "a cancellation reason is required")
	}
	apt, err = m.loadForChange(ctx, caller, id, true)
	if err != nil {
		return nil, err
	}
	from := apt.Status
	if from != models.StatusScheduled && from != models.StatusInProgress {
		return nil, apperr.InvalidTransition("cancel", string(from))
	}

	now := m.now().UTC()
	apt.Status = models.StatusCancelled
	apt.CancellationReason = &reason
	apt.CancelledAt = &now
	cancelledBy := caller.UserID
	apt.CancelledBy = &cancelledBy

	if err := m.persist(ctx, caller, apt, from, audit.ActionCancel, map[string]any{
		"reason":     reason,
		"fromStatus": from,
	}, true); err != nil {
		return nil, err
	}
	m.logTransition(caller, apt, "cancel")
	return apt, nil
}

// Reschedule moves a non-terminal appointment to a new interval and resets
// it to scheduled.
func (m *Manager) Reschedule(ctx context.Context, caller identity.Caller, id string, start, end time.Time) (apt *models.Appointment, err error) {
	defer func() { metrics.ObserveTransition("reschedule", err) }()

	if err := m.validateInterval(start, end); err != nil {
		return nil, err
	}
	apt, err = m.loadForChange(ctx, caller, id, true)
	if err != nil {
		return nil, err
	}
	from := apt.Status
	if from != models.StatusScheduled && from != models.StatusInProgress {
		return nil, apperr.InvalidTransition("reschedule", string(from))
	}

	previous := map[string]any{"scheduledStart": apt.ScheduledStart, "scheduledEnd": apt.ScheduledEnd}
	apt.ScheduledStart = start.UTC()
	apt.ScheduledEnd = end.UTC()
	apt.DurationMinutes = models.DurationBetween(apt.ScheduledStart, apt.ScheduledEnd)
	apt.Status = models.StatusScheduled
	if from == models.StatusInProgress {
		previous["actualStart"] = apt.ActualStart
		apt.ActualStart = nil
	}

	if err := m.persist(ctx, caller, apt, from, audit.ActionUpdate, map[string]any{
		"operation":      "reschedule",
		"previous":       previous,
		"scheduledStart": apt.ScheduledStart,
		"scheduledEnd":   apt.ScheduledEnd,
	}, true); err != nil {
		return nil, err
	}
	m.logTransition(caller, apt, "reschedule")
	return apt, nil
}

// Start marks a scheduled appointment as in progress.
func (m *Manager) Start(ctx context.Context, caller identity.Caller, id string) (apt *models.Appointment, err error) {
	defer func() { metrics.ObserveTransition("start", err) }()

	apt, err = m.loadForChange(ctx, caller, id, false)
	if err != nil {
		return nil, err
	}
	if apt.Status != models.StatusScheduled {
		return nil, apperr.InvalidTransition("start", string(apt.Status))
	}

	now := m.now().UTC()
	apt.Status = models.StatusInProgress
	apt.ActualStart = &now

	if err := m.persist(ctx, caller, apt, models.StatusScheduled, audit.ActionStart, nil, false); err != nil {
		return nil, err
	}
	m.logTransition(caller, apt, "start")
	return apt, nil
}

// Complete closes an appointment. Skipping Start is allowed.
func (m *Manager) Complete(ctx context.Context, caller identity.Caller, id string, notes *string) (apt *models.Appointment, err error) {
	defer func() { metrics.ObserveTransition("complete", err) }()

	apt, err = m.loadForChange(ctx, caller, id, false)
	if err != nil {
		return nil, err
	}
	from := apt.Status
	if from != models.StatusInProgress && from != models.StatusScheduled {
		return nil, apperr.InvalidTransition("complete", string(from))
	}

	now := m.now().UTC()
	apt.Status = models.StatusCompleted
	apt.ActualEnd = &now
	if notes != nil {
		trimmed := strings.TrimSpace(*notes)
		if trimmed != "" {
			apt.Notes = &trimmed
		}
	}

	if err := m.persist(ctx, caller, apt, from, audit.ActionComplete, map[string]any{
		"fromStatus": from,
	}, false); err != nil {
		return nil, err
	}
	m.logTransition(caller, apt, "complete")
	return apt, nil
}

// MarkNoShow records that the patient never attended a scheduled appointment.
func (m *Manager) MarkNoShow(ctx context.Context, caller identity.Caller, id string) (apt *models.Appointment, err error) {
	defer func() { metrics.ObserveTransition("no_show", err) }()

	apt, err = m.loadForChange(ctx, caller, id, false)
	if err != nil {
		return nil, err
	}
	if apt.Status != models.StatusScheduled {
		return nil, apperr.InvalidTransition("mark_no_show", string(apt.Status))
	}
	apt.Status = models.StatusNoShow

	if err := m.persist(ctx, caller, apt, models.StatusScheduled, audit.ActionUpdate, map[string]any{
		"operation": "no_show",
	}, false); err != nil {
		return nil, err
	}
	m.logTransition(caller, apt, "no_show")
	return apt, nil
}

// AssignInterpreter attaches an interpreter to an appointment that asked
// for one. An empty interpreterID unassigns.
func (m *Manager) AssignInterpreter(ctx context.Context, caller identity.Caller, id, interpreterID string) (apt *models.Appointment, err error) {
	defer func() { metrics.ObserveTransition("assign_interpreter", err) }()

	apt, err = m.loadForChange(ctx, caller, id, false)
	if err != nil {
		return nil, err
	}
	if apt.Status.Terminal() {
		return nil, apperr.InvalidTransition("assign_interpreter", string(apt.Status))
	}
	if !apt.NeedsInterpreter {
		return nil, apperr.Validation("needsInterpreter", "appointment did not request an interpreter")
	}

	if interpreterID == "" {
		apt.InterpreterID = nil
		apt.Interpreter = nil
	} else {
		interpreter, err := m.store.FindUser(ctx, interpreterID)
		if err != nil {
			return nil, err
		}
		if interpreter.Role != models.RoleInterpreter {
			return nil, apperr.NotFound("interpreter", interpreterID)
		}
		if apt.PreferredSignLanguage != nil && !interpreter.Speaks(*apt.PreferredSignLanguage) {
			return nil, apperr.Validation("interpreterId", "interpreter does not sign "+string(*apt.PreferredSignLanguage))
		}
		apt.InterpreterID = &interpreter.ID
		apt.Interpreter = interpreter
	}

	if err := m.persist(ctx, caller, apt, apt.Status, audit.ActionUpdate, map[string]any{
		"operation":     "assign_interpreter",
		"interpreterId": apt.InterpreterID,
	}, false); err != nil {
		return nil, err
	}
	m.logTransition(caller, apt, "assign_interpreter")
	return apt, nil
}

// Get returns one appointment. Appointments outside the caller's scope are
// reported as not found.
func (m *Manager) Get(ctx context.Context, caller identity.Caller, id string) (*models.Appointment, error) {
	apt, err := m.loadVisible(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	m.recorder.Record(ctx, audit.FromCaller(caller, audit.ActionView, audit.ResourceAppointment, apt.ID, nil))
	return apt, nil
}

// List returns the caller's appointments ordered by start time, narrowed
// by view, along with the per-view counts of the unfiltered list.
func (m *Manager) List(ctx context.Context, caller identity.Caller, view View) ([]models.Appointment, Counts, error) {
	if !caller.Valid() {
		return nil, Counts{}, apperr.AccessDenied("caller identity required")
	}
	scope, err := scopeFor(caller)
	if err != nil {
		return nil, Counts{}, err
	}
	all, err := m.store.ListAppointments(ctx, scope)
	if err != nil {
		return nil, Counts{}, err
	}

	now := m.now()
	filtered := FilterByView(all, view, now)
	m.recorder.Record(ctx, audit.FromCaller(caller, audit.ActionView, audit.ResourceAppointment, "", map[string]any{
		"view":  view,
		"count": len(filtered),
	}))
	return filtered, CountViews(all, now), nil
}

func (m *Manager) loadVisible(ctx context.Context, caller identity.Caller, id string) (*models.Appointment, error) {
	if !caller.Valid() {
		return nil, apperr.AccessDenied("caller identity required")
	}
	apt, err := m.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visibleTo(caller, apt) {
		return nil, apperr.NotFound("appointment", id)
	}
	return apt, nil
}

func (m *Manager) loadForChange(ctx context.Context, caller identity.Caller, id string, patientAllowed bool) (*models.Appointment, error) {
	apt, err := m.loadVisible(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if err := mayChange(caller, apt, patientAllowed); err != nil {
		return nil, err
	}
	return apt, nil
}

func (m *Manager) persist(ctx context.Context, caller identity.Caller, apt *models.Appointment, from models.AppointmentStatus, action string, metadata map[string]any, rebook bool) error {
	now := m.now()
	apt.UpdatedAt = now.UTC()
	entry, err := audit.FromCaller(caller, action, audit.ResourceAppointment, apt.ID, metadata).Entry(now)
	if err != nil {
		return apperr.DataAccess("build audit entry", err)
	}
	return m.store.UpdateAppointment(ctx, apt, from, entry, rebook)
}

func (m *Manager) resolvePatient(ctx context.Context, caller identity.Caller, in CreateInput) (string, error) {
	switch caller.Role {
	case models.RolePatient:
		if in.PatientID != "" && in.PatientID != caller.UserID {
			return "", apperr.AccessDenied("patients can only book appointments for themselves")
		}
		return caller.UserID, nil
	case models.RoleProvider:
		if in.ProviderID != caller.UserID {
			return "", apperr.AccessDenied("providers can only book onto their own calendar")
		}
	case models.RoleAdmin:
	default:
		return "", apperr.AccessDenied("interpreters cannot book appointments")
	}

	if in.PatientID == "" {
		return "", apperr.Validation("patientId", "patient is required")
	}
	patient, err := m.store.FindUser(ctx, in.PatientID)
	if err != nil {
		return "", err
	}
	if patient.Role != models.RolePatient {
		return "", apperr.NotFound("patient", in.PatientID)
	}
	return patient.ID, nil
}

func (m *Manager) validateCreate(in CreateInput) error {
	if strings.TrimSpace(in.ProviderID) == "" {
		return apperr.Validation("providerId", "provider is required")
	}
	if err := m.validateInterval(in.ScheduledStart, in.ScheduledEnd); err != nil {
		return err
	}
	if strings.TrimSpace(in.Reason) == "" {
		return apperr.Validation("reason", "reason for visit is required")
	}
	if in.PreferredSignLanguage != "" {
		if _, ok := models.ParseSignLanguage(in.PreferredSignLanguage); !ok {
			return apperr.Validation("preferredSignLanguage", "unsupported sign language")
		}
	}
	return nil
}

func (m *Manager) validateInterval(start, end time.Time) error {
	if start.IsZero() {
		return apperr.Validation("scheduledStart", "start time is required")
	}
	if end.IsZero() {
		return apperr.Validation("scheduledEnd", "end time is required")
	}
	if !end.After(start) {
		return apperr.Validation("scheduledEnd", "end time must be after start time")
	}
	if !start.After(m.now()) {
		return apperr.Validation("scheduledStart", "appointment must start in the future")
	}
	return nil
}

func (m *Manager) logTransition(caller identity.Caller, apt *models.Appointment, action string) {
	m.log.WithComponent("scheduling").WithFields(map[string]any{
		"appointment_id": apt.ID,
		"action":         action,
		"status":         apt.Status,
		"user_id":        caller.UserID,
		"role":           caller.Role,
	}).Info("appointment updated")
}
