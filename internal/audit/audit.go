// Package audit records who touched which PHI-bearing resource.
//
// State-changing operations write their entry through Entry inside the same
// database transaction as the change. Reads go through Recorder, which never
// fails the caller.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"signbridge-server/internal/identity"
	"signbridge-server/internal/logger"
	"signbridge-server/internal/metrics"
	"signbridge-server/internal/models"
)

// Actions
const (
	ActionCreate    = "create"
	ActionUpdate    = "update"
	ActionCancel    = "cancel"
	ActionView      = "view"
	ActionStart     = "start"
	ActionComplete  = "complete"
	ActionDelete    = "delete"
	ActionUpload    = "upload"
	ActionDownload  = "download"
	ActionJoin      = "join"
	ActionSendEmail = "send_email"
	ActionSignIn    = "sign_in"
	ActionSignOut   = "sign_out"
	ActionSignUp    = "sign_up"

	ActionPasswordChange       = "password_change"
	ActionPasswordResetRequest = "password_reset_request"
)

// Resource types
const (
	ResourceAppointment   = "appointment"
	ResourceMedicalRecord = "medical_record"
	ResourceAttachment    = "medical_record_attachment"
	ResourceVideoRoom     = "video_room"
	ResourceVideoCall     = "video_call"
	ResourceEmail         = "email"
	ResourceSession       = "session"
	ResourceAccount       = "account"
)

// Event describes one audited access.
type Event struct {
	ActorID      string
	ActorRole    models.Role
	Action       string
	ResourceType string
	ResourceID   string
	Metadata     map[string]any
	IPAddress    string
	UserAgent    string
}

// FromCaller builds an event attributed to the caller.
func FromCaller(caller identity.Caller, action, resourceType, resourceID string, metadata map[string]any) Event {
	return Event{
		ActorID:      caller.UserID,
		ActorRole:    caller.Role,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
		IPAddress:    caller.IPAddress,
		UserAgent:    caller.UserAgent,
	}
}

// Entry converts the event into an audit_logs row.
func (e Event) Entry(at time.Time) (*models.AuditLog, error) {
	if e.Action == "" || e.ResourceType == "" {
		return nil, fmt.Errorf("audit event requires action and resource type")
	}
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode audit metadata: %w", err)
	}
	return &models.AuditLog{
		UserID:       e.ActorID,
		UserRole:     e.ActorRole,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Metadata:     datatypes.JSON(raw),
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		OccurredAt:   at.UTC(),
	}, nil
}

// Sink stores audit events.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// GormSink appends events to the audit_logs table.
type GormSink struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormSink creates a sink backed by db.
func NewGormSink(db *gorm.DB) *GormSink {
	return &GormSink{db: db, now: time.Now}
}

// Append writes one event.
func (s *GormSink) Append(ctx context.Context, event Event) error {
	entry, err := event.Entry(s.now())
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(entry).Error
}

// Recorder is the best-effort front of a Sink. Failures are logged and
// counted, never returned.
type Recorder struct {
	sink Sink
	log  *logger.Logger
}

// NewRecorder wraps sink.
func NewRecorder(sink Sink, log *logger.Logger) *Recorder {
	return &Recorder{sink: sink, log: log}
}

// Record appends the event, swallowing any error.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if r == nil || r.sink == nil {
		return
	}
	if err := r.sink.Append(ctx, event); err != nil {
		metrics.ObserveAuditFailure()
		r.log.WithComponent("audit").WithError(err).WithFields(map[string]any{
			"action":        event.Action,
			"resource_type": event.ResourceType,
			"resource_id":   event.ResourceID,
			"user_id":       event.ActorID,
		}).Warn("audit event dropped")
	}
}
