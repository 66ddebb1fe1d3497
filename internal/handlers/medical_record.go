package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"signbridge-server/internal/apperr"
	"signbridge-server/internal/audit"
	"signbridge-server/internal/identity"
	"signbridge-server/internal/logger"
	"signbridge-server/internal/models"
	"signbridge-server/internal/utils"
)

// maxAttachmentBytes caps uploads stored in the database.
const maxAttachmentBytes = 10 << 20

// MedicalRecordHandler handles medical record related requests.
type MedicalRecordHandler struct {
	DB       *gorm.DB
	Recorder *audit.Recorder
	Log      *logger.Logger
}

// NewMedicalRecordHandler creates a new MedicalRecordHandler.
func NewMedicalRecordHandler(db *gorm.DB, recorder *audit.Recorder, log *logger.Logger) *MedicalRecordHandler {
	return &MedicalRecordHandler{DB: db, Recorder: recorder, Log: log}
}

// CreateMedicalRecordRequest represents the request body for creating a medical record.
type CreateMedicalRecordRequest struct {
	PatientID     string                   `json:"patientId"`
	AppointmentID string                   `json:"appointmentId"`
	RecordType    models.MedicalRecordType `json:"recordType" binding:"required"`
	RecordDate    string                   `json:"recordDate"`
	Title         string                   `json:"title" binding:"required,max=255"`
	Summary       string                   `json:"summary" binding:"required"`
	Details       string                   `json:"details"`
}

// CreateMedicalRecord stores a record. Providers write for patients they
// have an appointment with; patients write for themselves.
func (h *MedicalRecordHandler) CreateMedicalRecord(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req CreateMedicalRecordRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	if !req.RecordType.Valid() {
		utils.RespondError(c, apperr.Validation("recordType", "unknown record type"))
		return
	}

	recordDate := time.Now().UTC()
	if req.RecordDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.RecordDate)
		if err != nil {
			utils.BadRequest(c, "Invalid date format. Please use ISO 8601 format (YYYY-MM-DDTHH:MM:SSZ)")
			return
		}
		recordDate = parsed.UTC()
	}

	ctx := c.Request.Context()
	record := models.MedicalRecord{
		CreatedBy:  caller.UserID,
		RecordType: req.RecordType,
		RecordDate: recordDate,
		Title:      req.Title,
		Summary:    req.Summary,
		Details:    req.Details,
	}

	switch caller.Role {
	case models.RolePatient:
		if req.PatientID != "" && req.PatientID != caller.UserID {
			utils.Forbidden(c, "Patients can only add records to their own history")
			return
		}
		record.PatientID = caller.UserID
	case models.RoleProvider:
		if req.PatientID == "" {
			utils.RespondError(c, apperr.Validation("patientId", "patient is required"))
			return
		}
		cares, err := h.hasCareRelationship(ctx, caller.UserID, req.PatientID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if !cares {
			utils.Forbidden(c, "You can only add records for your own patients")
			return
		}
		record.PatientID = req.PatientID
		providerID := caller.UserID
		record.ProviderID = &providerID
	default:
		utils.Forbidden(c, "You are not allowed to create medical records")
		return
	}

	if req.AppointmentID != "" {
		var count int64
		if err := h.DB.WithContext(ctx).Model(&models.Appointment{}).
			Where("id = ? AND patient_id = ?", req.AppointmentID, record.PatientID).
			Count(&count).Error; err != nil {
			utils.RespondError(c, apperr.DataAccess("verify appointment", err))
			return
		}
		if count == 0 {
			utils.RespondError(c, apperr.NotFound("appointment", req.AppointmentID))
			return
		}
		appointmentID := req.AppointmentID
		record.AppointmentID = &appointmentID
	}

	err := h.withAudit(ctx, caller, audit.ActionCreate, audit.ResourceMedicalRecord, func(tx *gorm.DB) (string, map[string]any, error) {
		if err := tx.Create(&record).Error; err != nil {
			return "", nil, err
		}
		return record.ID, map[string]any{"patientId": record.PatientID, "recordType": record.RecordType}, nil
	})
	if err != nil {
		utils.RespondError(c, apperr.DataAccess("create medical record", err))
		return
	}

	utils.Created(c, "Medical record created successfully", record)
}

// GetMedicalRecordsForPatient lists a patient's records, newest first.
func (h *MedicalRecordHandler) GetMedicalRecordsForPatient(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	patientID := c.Param("patientId")
	ctx := c.Request.Context()

	allowed, err := h.canReadPatient(ctx, caller, patientID, nil)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if !allowed {
		utils.Forbidden(c, "You are not authorized to view these medical records")
		return
	}

	var records []models.MedicalRecord
	if err := h.DB.WithContext(ctx).Preload("Attachments", withoutFileData).
		Where("patient_id = ?", patientID).
		Order("record_date desc").Order("created_at desc").
		Find(&records).Error; err != nil {
		utils.RespondError(c, apperr.DataAccess("list medical records", err))
		return
	}

	h.Recorder.Record(ctx, audit.FromCaller(caller, audit.ActionView, audit.ResourceMedicalRecord, patientID, map[string]any{
		"scope": "patient",
		"count": len(records),
	}))
	utils.Success(c, "Medical records fetched successfully", records)
}

// GetMedicalRecordByID returns one record with its attachment metadata.
func (h *MedicalRecordHandler) GetMedicalRecordByID(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	record, err := h.loadRecord(ctx, c.Param("id"), true)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	allowed, err := h.canReadPatient(ctx, caller, record.PatientID, record)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if !allowed {
		utils.Forbidden(c, "You are not authorized to view this medical record")
		return
	}

	h.Recorder.Record(ctx, audit.FromCaller(caller, audit.ActionView, audit.ResourceMedicalRecord, record.ID, nil))
	utils.Success(c, "Medical record fetched successfully", record)
}

// UpdateMedicalRecordRequest represents the request body for updating a medical record.
type UpdateMedicalRecordRequest struct {
	RecordType models.MedicalRecordType `json:"recordType,omitempty"`
	RecordDate string                   `json:"recordDate,omitempty"`
	Title      string                   `json:"title,omitempty" binding:"max=255"`
	Summary    string                   `json:"summary,omitempty"`
	Details    string                   `json:"details,omitempty"`
}

// UpdateMedicalRecord edits a record. Only its author or an admin may.
func (h *MedicalRecordHandler) UpdateMedicalRecord(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req UpdateMedicalRecordRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	ctx := c.Request.Context()

	record, err := h.loadRecord(ctx, c.Param("id"), false)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if !canModify(caller, record) {
		utils.Forbidden(c, "You are not authorized to update this medical record")
		return
	}

	changed := []string{}
	if req.RecordType != "" {
		if !req.RecordType.Valid() {
			utils.RespondError(c, apperr.Validation("recordType", "unknown record type"))
			return
		}
		record.RecordType = req.RecordType
		changed = append(changed, "recordType")
	}
	if req.RecordDate != "" {
		parsedDate, err := time.Parse(time.RFC3339, req.RecordDate)
		if err != nil {
			utils.BadRequest(c, "Invalid date format for recordDate. Please use ISO 8601 format (YYYY-MM-DDTHH:MM:SSZ)")
			return
		}
		record.RecordDate = parsedDate.UTC()
		changed = append(changed, "recordDate")
	}
	if req.Title != "" {
		record.Title = req.Title
		changed = append(changed, "title")
	}
	if req.Summary != "" {
		record.Summary = req.Summary
		changed = append(changed, "summary")
	}
	if req.Details != "" {
		record.Details = req.Details
		changed = append(changed, "details")
	}
	if len(changed) == 0 {
		utils.BadRequest(c, "No fields to update")
		return
	}

	err = h.withAudit(ctx, caller, audit.ActionUpdate, audit.ResourceMedicalRecord, func(tx *gorm.DB) (string, map[string]any, error) {
		if err := tx.Save(record).Error; err != nil {
			return "", nil, err
		}
		return record.ID, map[string]any{"fields": changed}, nil
	})
	if err != nil {
		utils.RespondError(c, apperr.DataAccess("update medical record", err))
		return
	}

	utils.Success(c, "Medical record updated successfully", record)
}

// DeleteMedicalRecord removes a record and its attachments. Only its
// author or an admin may.
func (h *MedicalRecordHandler) DeleteMedicalRecord(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	record, err := h.loadRecord(ctx, c.Param("id"), false)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if !canModify(caller, record) {
		utils.Forbidden(c, "You are not authorized to delete this medical record")
		return
	}

	err = h.withAudit(ctx, caller, audit.ActionDelete, audit.ResourceMedicalRecord, func(tx *gorm.DB) (string, map[string]any, error) {
		if err := tx.Where("medical_record_id = ?", record.ID).Delete(&models.MedicalRecordAttachment{}).Error; err != nil {
			return "", nil, err
		}
		if err := tx.Delete(&models.MedicalRecord{}, "id = ?", record.ID).Error; err != nil {
			return "", nil, err
		}
		return record.ID, map[string]any{"patientId": record.PatientID, "title": record.Title}, nil
	})
	if err != nil {
		utils.RespondError(c, apperr.DataAccess("delete medical record", err))
		return
	}
	h.Log.WithComponent("records").WithFields(map[string]any{
		"medical_record_id": record.ID,
		"user_id":           caller.UserID,
	}).Info("medical record deleted")

	utils.Success(c, "Medical record deleted successfully", nil)
}

// AttachmentResponse is attachment metadata without the file body.
type AttachmentResponse struct {
	ID              string    `json:"id"`
	MedicalRecordID string    `json:"medicalRecordId"`
	FileName        string    `json:"fileName"`
	FileType        string    `json:"fileType"`
	FileSize        int64     `json:"fileSize"`
	CreatedAt       time.Time `json:"createdAt"`
}

// UploadMedicalRecordAttachment stores a multipart "file" field as a blob
// on the record.
func (h *MedicalRecordHandler) UploadMedicalRecordAttachment(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	record, err := h.loadRecord(ctx, c.Param("id"), false)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if !canModify(caller, record) {
		utils.Forbidden(c, "You are not authorized to attach files to this medical record")
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		utils.BadRequest(c, "Error retrieving file from form: "+err.Error())
		return
	}
	defer file.Close()

	fileData, err := io.ReadAll(io.LimitReader(file, maxAttachmentBytes+1))
	if err != nil {
		utils.InternalServerError(c, "Error reading file content")
		return
	}
	if len(fileData) > maxAttachmentBytes {
		utils.BadRequest(c, "File exceeds the 10 MB limit")
		return
	}

	fileType := header.Header.Get("Content-Type")
	if fileType == "" {
		fileType = http.DetectContentType(fileData)
	}
	attachment := models.MedicalRecordAttachment{
		MedicalRecordID: record.ID,
		FileName:        header.Filename,
		FileType:        fileType,
		FileSize:        int64(len(fileData)),
		UploadedBy:      caller.UserID,
		FileData:        fileData,
	}

	err = h.withAudit(ctx, caller, audit.ActionUpload, audit.ResourceAttachment, func(tx *gorm.DB) (string, map[string]any, error) {
		if err := tx.Create(&attachment).Error; err != nil {
			return "", nil, err
		}
		return attachment.ID, map[string]any{
			"medicalRecordId": record.ID,
			"fileName":        attachment.FileName,
			"fileSize":        attachment.FileSize,
		}, nil
	})
	if err != nil {
		utils.RespondError(c, apperr.DataAccess("store attachment", err))
		return
	}

	utils.Created(c, "File uploaded and linked to medical record successfully", AttachmentResponse{
		ID:              attachment.ID,
		MedicalRecordID: attachment.MedicalRecordID,
		FileName:        attachment.FileName,
		FileType:        attachment.FileType,
		FileSize:        attachment.FileSize,
		CreatedAt:       attachment.CreatedAt,
	})
}

// GetMedicalRecordAttachment serves an attachment to anyone who may read
// its parent record.
func (h *MedicalRecordHandler) GetMedicalRecordAttachment(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	attachmentID := c.Param("attachmentId")

	var attachment models.MedicalRecordAttachment
	if err := h.DB.WithContext(ctx).First(&attachment, "id = ?", attachmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Attachment not found")
		} else {
			utils.RespondError(c, apperr.DataAccess("load attachment", err))
		}
		return
	}

	record, err := h.loadRecord(ctx, attachment.MedicalRecordID, false)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	allowed, err := h.canReadPatient(ctx, caller, record.PatientID, record)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if !allowed {
		utils.Forbidden(c, "You are not authorized to view this attachment.")
		return
	}

	h.Recorder.Record(ctx, audit.FromCaller(caller, audit.ActionDownload, audit.ResourceAttachment, attachment.ID, map[string]any{
		"medicalRecordId": record.ID,
		"fileName":        attachment.FileName,
	}))

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", attachment.FileName))
	c.Data(http.StatusOK, attachment.FileType, attachment.FileData)
}

func withoutFileData(db *gorm.DB) *gorm.DB {
	return db.Omit("file_data")
}

func (h *MedicalRecordHandler) loadRecord(ctx context.Context, id string, attachments bool) (*models.MedicalRecord, error) {
	query := h.DB.WithContext(ctx)
	if attachments {
		query = query.Preload("Attachments", withoutFileData)
	}
	var record models.MedicalRecord
	err := query.First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("medical_record", id)
	}
	if err != nil {
		return nil, apperr.DataAccess("load medical record", err)
	}
	return &record, nil
}

// canReadPatient: patients read their own history, providers read the
// history of patients they have an appointment with or records they wrote,
// admins read everything. Interpreters never see records.
func (h *MedicalRecordHandler) canReadPatient(ctx context.Context, caller identity.Caller, patientID string, record *models.MedicalRecord) (bool, error) {
	switch caller.Role {
	case models.RoleAdmin:
		return true, nil
	case models.RolePatient:
		return caller.UserID == patientID, nil
	case models.RoleProvider:
		if record != nil && record.CreatedBy == caller.UserID {
			return true, nil
		}
		return h.hasCareRelationship(ctx, caller.UserID, patientID)
	}
	return false, nil
}

func (h *MedicalRecordHandler) hasCareRelationship(ctx context.Context, providerID, patientID string) (bool, error) {
	var count int64
	err := h.DB.WithContext(ctx).Model(&models.Appointment{}).
		Where("provider_id = ? AND patient_id = ?", providerID, patientID).
		Count(&count).Error
	if err != nil {
		return false, apperr.DataAccess("check care relationship", err)
	}
	return count > 0, nil
}

func canModify(caller identity.Caller, record *models.MedicalRecord) bool {
	return caller.Is(models.RoleAdmin) || record.CreatedBy == caller.UserID
}

// withAudit runs write and its audit entry in one transaction. write
// returns the resource id and metadata for the entry.
func (h *MedicalRecordHandler) withAudit(ctx context.Context, caller identity.Caller, action, resourceType string, write func(tx *gorm.DB) (string, map[string]any, error)) error {
	return h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resourceID, metadata, err := write(tx)
		if err != nil {
			return err
		}
		entry, err := audit.FromCaller(caller, action, resourceType, resourceID, metadata).Entry(time.Now())
		if err != nil {
			return err
		}
		return tx.Create(entry).Error
	})
}
