package models

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
)

// Role enum
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleProvider    Role = "provider"
	RolePatient     Role = "patient"
	RoleInterpreter Role = "interpreter"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleProvider, RolePatient, RoleInterpreter:
		return true
	}
	return false
}

// Language is a spoken/written interface language.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageSpanish Language = "es"
)

// SignLanguage is a sign language code.
type SignLanguage string

const (
	SignLanguageASL SignLanguage = "ASL" // American
	SignLanguageLSM SignLanguage = "LSM" // Mexican
	SignLanguageLSE SignLanguage = "LSE" // Spanish
	SignLanguageLSC SignLanguage = "LSC" // Catalan
	SignLanguageLSA SignLanguage = "LSA" // Argentine
)

// SignLanguages lists every supported code.
var SignLanguages = []SignLanguage{
	SignLanguageASL, SignLanguageLSM, SignLanguageLSE, SignLanguageLSC, SignLanguageLSA,
}

// Valid reports whether s is a supported sign language code.
func (s SignLanguage) Valid() bool {
	for _, known := range SignLanguages {
		if s == known {
			return true
		}
	}
	return false
}

// ParseSignLanguage normalizes and validates a sign language code.
func ParseSignLanguage(value string) (SignLanguage, bool) {
	s := SignLanguage(strings.ToUpper(strings.TrimSpace(value)))
	return s, s.Valid()
}

// CommunicationPreferences is stored as JSON on the profile.
type CommunicationPreferences struct {
	Captions      bool `json:"captions"`
	TextChat      bool `json:"textChat"`
	VideoRelay    bool `json:"videoRelay"`
	EmailReminder bool `json:"emailReminder"`
}

// User is a profile for any role. Provider and interpreter specific columns
// are empty for other roles.
type User struct {
	BaseModel
	Email                    string                                        `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password                 string                                        `gorm:"size:255;not null" json:"-"`
	FirstName                string                                        `gorm:"size:100" json:"firstName"`
	LastName                 string                                        `gorm:"size:100" json:"lastName"`
	Role                     Role                                          `gorm:"size:20;default:'patient';index" json:"role"`
	DateOfBirth              *time.Time                                    `json:"dateOfBirth,omitempty"`
	PhoneNumber              string                                        `gorm:"size:50" json:"phoneNumber,omitempty"`
	PreferredLanguage        Language                                      `gorm:"size:5;default:'en'" json:"preferredLanguage"`
	PreferredSignLanguage    *SignLanguage                                 `gorm:"size:8" json:"preferredSignLanguage,omitempty"`
	Timezone                 string                                        `gorm:"size:64" json:"timezone,omitempty"`
	CommunicationPreferences datatypes.JSONType[CommunicationPreferences] `json:"communicationPreferences"`
	Specialty                string                                        `gorm:"size:100" json:"specialty,omitempty"`
	LicenseNumber            string                                        `gorm:"size:100" json:"-"`
	SignLanguages            datatypes.JSONSlice[SignLanguage]             `json:"signLanguages,omitempty"`
	Certifications           datatypes.JSONSlice[string]                   `json:"certifications,omitempty"`
	Rating                   float64                                       `gorm:"default:0" json:"rating,omitempty"`
	IsVerified               bool                                          `gorm:"default:false" json:"isVerified"`

	RefreshTokens []RefreshToken `gorm:"foreignKey:UserID" json:"-"`
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Speaks reports whether an interpreter profile lists the sign language.
func (u *User) Speaks(lang SignLanguage) bool {
	for _, s := range u.SignLanguages {
		if s == lang {
			return true
		}
	}
	return false
}

// Locale returns the profile's language, defaulting to English.
func (u *User) Locale() Language {
	if u.PreferredLanguage == LanguageSpanish {
		return LanguageSpanish
	}
	return LanguageEnglish
}

// UserSanitized represents the user data that is safe to send in API responses.
type UserSanitized struct {
	ID                       string                   `json:"id"`
	Email                    string                   `json:"email"`
	FirstName                string                   `json:"firstName"`
	LastName                 string                   `json:"lastName"`
	Role                     Role                     `json:"role"`
	DateOfBirth              *time.Time               `json:"dateOfBirth,omitempty"`
	PhoneNumber              string                   `json:"phoneNumber,omitempty"`
	PreferredLanguage        Language                 `json:"preferredLanguage"`
	PreferredSignLanguage    *SignLanguage            `json:"preferredSignLanguage,omitempty"`
	Timezone                 string                   `json:"timezone,omitempty"`
	CommunicationPreferences CommunicationPreferences `json:"communicationPreferences"`
	Specialty                string                   `json:"specialty,omitempty"`
	SignLanguages            []SignLanguage           `json:"signLanguages,omitempty"`
	Certifications           []string                 `json:"certifications,omitempty"`
	Rating                   float64                  `json:"rating,omitempty"`
	IsVerified               bool                     `json:"isVerified"`
	CreatedAt                time.Time                `json:"createdAt"`
	UpdatedAt                time.Time                `json:"updatedAt"`
}

// SetPassword hashes a password and sets it on the user
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

// CheckPassword compares a password with the user's hashed password
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}

// Sanitize creates a UserSanitized struct from a User model, excluding sensitive data.
func (u *User) Sanitize() UserSanitized {
	return UserSanitized{
		ID:                       u.ID,
		Email:                    u.Email,
		FirstName:                u.FirstName,
		LastName:                 u.LastName,
		Role:                     u.Role,
		DateOfBirth:              u.DateOfBirth,
		PhoneNumber:              u.PhoneNumber,
		PreferredLanguage:        u.Locale(),
		PreferredSignLanguage:    u.PreferredSignLanguage,
		Timezone:                 u.Timezone,
		CommunicationPreferences: u.CommunicationPreferences.Data(),
		Specialty:                u.Specialty,
		SignLanguages:            u.SignLanguages,
		Certifications:           u.Certifications,
		Rating:                   u.Rating,
		IsVerified:               u.IsVerified,
		CreatedAt:                u.CreatedAt,
		UpdatedAt:                u.UpdatedAt,
	}
}
