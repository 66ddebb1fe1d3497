package models

import (
	"time"
)

// MedicalRecordType represents the type of medical record
type MedicalRecordType string

const (
	RecordTypeConsultation MedicalRecordType = "consultation_note"
	RecordTypeLabResult    MedicalRecordType = "lab_result"
	RecordTypePrescription MedicalRecordType = "prescription"
	RecordTypeImaging      MedicalRecordType = "imaging"
	RecordTypeVaccination  MedicalRecordType = "vaccination"
	RecordTypeOther        MedicalRecordType = "other"
)

// Valid reports whether t is a known record type.
func (t MedicalRecordType) Valid() bool {
	switch t {
	case RecordTypeConsultation, RecordTypeLabResult, RecordTypePrescription,
		RecordTypeImaging, RecordTypeVaccination, RecordTypeOther:
		return true
	}
	return false
}

// MedicalRecord is a clinical document for a patient, optionally tied to
// the appointment it came out of.
type MedicalRecord struct {
	BaseModel
	PatientID     string            `gorm:"size:36;index;not null" json:"patientId"`
	ProviderID    *string           `gorm:"size:36;index" json:"providerId"`
	AppointmentID *string           `gorm:"size:36;index" json:"appointmentId,omitempty"`
	CreatedBy     string            `gorm:"size:36;not null" json:"createdBy"`
	RecordType    MedicalRecordType `gorm:"size:50" json:"recordType"`
	RecordDate    time.Time         `json:"date"`
	Title         string            `gorm:"size:255;not null" json:"title"`
	Summary       string            `gorm:"type:text" json:"summary"`
	Details       string            `gorm:"type:text" json:"details"`

	Attachments []MedicalRecordAttachment `gorm:"foreignKey:MedicalRecordID" json:"attachments,omitempty"`
}

// MedicalRecordAttachment represents a file attached to a medical record
type MedicalRecordAttachment struct {
	BaseModel
	MedicalRecordID string `json:"medicalRecordId" gorm:"not null;type:varchar(36);index"`
	FileName        string `json:"fileName" gorm:"not null"`
	FileType        string `json:"fileType" gorm:"not null"`
	FileSize        int64  `json:"fileSize"`
	UploadedBy      string `json:"uploadedBy" gorm:"size:36"`
	FileData        []byte `json:"-" gorm:"not null"`
}
