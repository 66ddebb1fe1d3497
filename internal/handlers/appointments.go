package handlers

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"signbridge-server/internal/identity"
	"signbridge-server/internal/middleware"
	"signbridge-server/internal/models"
	"signbridge-server/internal/notify"
	"signbridge-server/internal/scheduling"
	"signbridge-server/internal/utils"
)

// AppointmentHandler handles appointment related requests.
type AppointmentHandler struct {
	Manager      *scheduling.Manager
	Availability *scheduling.AvailabilityCalculator
	Notifier     *notify.Notifier
	DefaultZone  *time.Location
}

// NewAppointmentHandler creates a new AppointmentHandler.
func NewAppointmentHandler(manager *scheduling.Manager, availability *scheduling.AvailabilityCalculator, notifier *notify.Notifier, defaultZone *time.Location) *AppointmentHandler {
	if defaultZone == nil {
		defaultZone = time.UTC
	}
	return &AppointmentHandler{
		Manager:      manager,
		Availability: availability,
		Notifier:     notifier,
		DefaultZone:  defaultZone,
	}
}

// callerFrom returns the authenticated caller or writes a 401.
func callerFrom(c *gin.Context) (identity.Caller, bool) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
	}
	return caller, ok
}

// AvailabilityResponse is one provider's day grid.
type AvailabilityResponse struct {
	ProviderID string            `json:"providerId"`
	Date       string            `json:"date"`
	Timezone   string            `json:"timezone"`
	Slots      []scheduling.Slot `json:"slots"`
}

// GetAvailability returns the bookable slots of a provider on one day.
// The day is interpreted in the tz query parameter, or the server default.
func (h *AppointmentHandler) GetAvailability(c *gin.Context) {
	zone := h.DefaultZone
	if tz := c.Query("tz"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			utils.BadRequest(c, "Unknown time zone: "+tz)
			return
		}
		zone = loc
	}

	dateParam := c.Query("date")
	if dateParam == "" {
		utils.BadRequest(c, "date query parameter is required (YYYY-MM-DD)")
		return
	}
	date, err := time.ParseInLocation("2006-01-02", dateParam, zone)
	if err != nil {
		utils.BadRequest(c, "Invalid date format, expected YYYY-MM-DD")
		return
	}

	slots, err := h.Availability.Slots(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.Success(c, "Availability fetched successfully", AvailabilityResponse{
		ProviderID: c.Param("id"),
		Date:       dateParam,
		Timezone:   zone.String(),
		Slots:      slots,
	})
}

// CreateAppointmentRequest represents the request body for creating an appointment.
type CreateAppointmentRequest struct {
	ProviderID            string    `json:"providerId" binding:"required"`
	PatientID             string    `json:"patientId"`
	ScheduledStart        time.Time `json:"scheduledStart"`
	ScheduledEnd          time.Time `json:"scheduledEnd"`
	Reason                string    `json:"reason" binding:"required,max=500"`
	NeedsInterpreter      bool      `json:"needsInterpreter"`
	PreferredSignLanguage string    `json:"preferredSignLanguage" binding:"omitempty,signlang"`
	Notes                 string    `json:"notes"`
}

// CreateAppointment books an appointment and emails a confirmation.
func (h *AppointmentHandler) CreateAppointment(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req CreateAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	apt, err := h.Manager.Create(c.Request.Context(), caller, scheduling.CreateInput{
		PatientID:             req.PatientID,
		ProviderID:            req.ProviderID,
		ScheduledStart:        req.ScheduledStart,
		ScheduledEnd:          req.ScheduledEnd,
		Reason:                req.Reason,
		NeedsInterpreter:      req.NeedsInterpreter,
		PreferredSignLanguage: req.PreferredSignLanguage,
		Notes:                 req.Notes,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	h.Notifier.Dispatch(notify.KindConfirmation, apt.ID)
	utils.Created(c, "Appointment created successfully", apt)
}

// AppointmentListResponse is a filtered list plus the size of every view.
type AppointmentListResponse struct {
	View         scheduling.View      `json:"view"`
	Appointments []models.Appointment `json:"appointments"`
	Counts       scheduling.Counts    `json:"counts"`
}

// GetAppointments lists the caller's appointments, filtered by ?view=.
func (h *AppointmentHandler) GetAppointments(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	view, err := scheduling.ParseView(c.Query("view"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	appointments, counts, err := h.Manager.List(c.Request.Context(), caller, view)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.Success(c, "Appointments fetched successfully", AppointmentListResponse{
		View:         view,
		Appointments: appointments,
		Counts:       counts,
	})
}

// GetAppointmentByID returns one appointment the caller is party to.
func (h *AppointmentHandler) GetAppointmentByID(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	apt, err := h.Manager.Get(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment fetched successfully", apt)
}

// UpdateAppointmentRequest is a partial update; omitted fields are kept.
type UpdateAppointmentRequest struct {
	Reason                *string `json:"reason" binding:"omitempty,max=500"`
	Notes                 *string `json:"notes"`
	NeedsInterpreter      *bool   `json:"needsInterpreter"`
	PreferredSignLanguage *string `json:"preferredSignLanguage"`
}

// UpdateAppointment patches descriptive fields.
func (h *AppointmentHandler) UpdateAppointment(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req UpdateAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	apt, err := h.Manager.Update(c.Request.Context(), caller, c.Param("id"), scheduling.Patch{
		Reason:                req.Reason,
		Notes:                 req.Notes,
		NeedsInterpreter:      req.NeedsInterpreter,
		PreferredSignLanguage: req.PreferredSignLanguage,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment updated successfully", apt)
}

// CancelAppointmentRequest represents the request body for cancelling.
type CancelAppointmentRequest struct {
	Reason string `json:"reason" binding:"required,max=1000"`
}

// CancelAppointment cancels and emails the patient.
func (h *AppointmentHandler) CancelAppointment(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req CancelAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	apt, err := h.Manager.Cancel(c.Request.Context(), caller, c.Param("id"), req.Reason)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	h.Notifier.Dispatch(notify.KindCancellation, apt.ID)
	utils.Success(c, "Appointment cancelled successfully", apt)
}

// RescheduleAppointmentRequest represents the request body for rescheduling.
type RescheduleAppointmentRequest struct {
	ScheduledStart time.Time `json:"scheduledStart"`
	ScheduledEnd   time.Time `json:"scheduledEnd"`
}

// RescheduleAppointment moves an appointment and emails the patient.
func (h *AppointmentHandler) RescheduleAppointment(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req RescheduleAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	apt, err := h.Manager.Reschedule(c.Request.Context(), caller, c.Param("id"), req.ScheduledStart, req.ScheduledEnd)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	h.Notifier.Dispatch(notify.KindRescheduled, apt.ID)
	utils.Success(c, "Appointment rescheduled successfully", apt)
}

// StartAppointment marks the session as in progress.
func (h *AppointmentHandler) StartAppointment(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	apt, err := h.Manager.Start(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment started", apt)
}

// CompleteAppointmentRequest carries optional closing notes.
type CompleteAppointmentRequest struct {
	Notes *string `json:"notes"`
}

// CompleteAppointment closes the session. The body is optional.
func (h *AppointmentHandler) CompleteAppointment(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req CompleteAppointmentRequest
	if !utils.BindOptionalJSON(c, &req) {
		return
	}

	apt, err := h.Manager.Complete(c.Request.Context(), caller, c.Param("id"), req.Notes)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment completed", apt)
}

// MarkNoShow records that the patient never joined.
func (h *AppointmentHandler) MarkNoShow(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	apt, err := h.Manager.MarkNoShow(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment marked as no-show", apt)
}

// AssignInterpreterRequest names the interpreter; empty unassigns.
type AssignInterpreterRequest struct {
	InterpreterID string `json:"interpreterId"`
}

// AssignInterpreter sets or clears the appointment's interpreter.
func (h *AppointmentHandler) AssignInterpreter(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req AssignInterpreterRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	apt, err := h.Manager.AssignInterpreter(c.Request.Context(), caller, c.Param("id"), strings.TrimSpace(req.InterpreterID))
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	message := "Interpreter assigned"
	if apt.InterpreterID == nil {
		message = "Interpreter removed"
	}
	utils.Success(c, message, apt)
}
