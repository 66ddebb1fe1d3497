package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"signbridge-server/internal/models"
	"signbridge-server/internal/utils"
)

// UserHandler serves the provider/interpreter directories and admin user
// management.
type UserHandler struct {
	DB *gorm.DB
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{DB: db}
}

func sanitizeAll(users []models.User) []models.UserSanitized {
	out := make([]models.UserSanitized, len(users))
	for i := range users {
		out[i] = users[i].Sanitize()
	}
	return out
}

// CreateUserRequest represents the request body for creating a user by an admin.
type CreateUserRequest struct {
	FirstName string `json:"firstName" binding:"required,max=100"`
	LastName  string `json:"lastName" binding:"required,max=100"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	Role      string `json:"role" binding:"required,role"`
	Specialty string `json:"specialty" binding:"max=100"`
}

// CreateUser handles creating a new user (admin).
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	user := models.User{
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		Email:             strings.ToLower(strings.TrimSpace(req.Email)),
		Role:              models.Role(req.Role),
		Specialty:         req.Specialty,
		PreferredLanguage: models.LanguageEnglish,
		IsVerified:        true,
	}
	if err := user.SetPassword(req.Password); err != nil {
		utils.InternalServerError(c, "Failed to hash password")
		return
	}

	if err := h.DB.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.BadRequest(c, "User with this email already exists")
			return
		}
		utils.InternalServerError(c, "Failed to create user")
		return
	}

	utils.Created(c, "User created successfully", user.Sanitize())
}

// GetUsers handles fetching all users (admin), optionally by ?role=.
func (h *UserHandler) GetUsers(c *gin.Context) {
	query := h.DB.Order("last_name, first_name")
	if role := c.Query("role"); role != "" {
		if !models.Role(role).Valid() {
			utils.BadRequest(c, "Unknown role: "+role)
			return
		}
		query = query.Where("role = ?", role)
	}

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch users")
		return
	}
	utils.Success(c, "Users fetched successfully", sanitizeAll(users))
}

// GetUserByID handles fetching a single user by ID (admin).
func (h *UserHandler) GetUserByID(c *gin.Context) {
	var user models.User
	if err := h.DB.First(&user, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User not found")
		} else {
			utils.InternalServerError(c, "Database error")
		}
		return
	}
	utils.Success(c, "User fetched successfully", user.Sanitize())
}

// UpdateUserRequest represents the request body for updating a user by an admin.
type UpdateUserRequest struct {
	FirstName  string `json:"firstName" binding:"max=100"`
	LastName   string `json:"lastName" binding:"max=100"`
	Email      string `json:"email" binding:"omitempty,email"`
	Role       string `json:"role" binding:"omitempty,role"`
	IsVerified *bool  `json:"isVerified"`
}

// UpdateUser handles updating a user by ID (admin).
func (h *UserHandler) UpdateUser(c *gin.Context) {
	var req UpdateUserRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", c.Param("id")).Error; err != nil {
		utils.NotFound(c, "User not found")
		return
	}

	if req.FirstName != "" {
		user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		user.LastName = req.LastName
	}
	if req.Email != "" {
		user.Email = strings.ToLower(strings.TrimSpace(req.Email))
	}
	if req.Role != "" {
		user.Role = models.Role(req.Role)
	}
	if req.IsVerified != nil {
		user.IsVerified = *req.IsVerified
	}

	if err := h.DB.Save(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.BadRequest(c, "New email is already in use")
			return
		}
		utils.InternalServerError(c, "Failed to update user")
		return
	}

	utils.Success(c, "User updated successfully", user.Sanitize())
}

// DeleteUser handles deleting a user by ID (admin). Users that appear on
// an appointment are kept so the appointment history stays intact.
func (h *UserHandler) DeleteUser(c *gin.Context) {
	userID := c.Param("id")

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User not found")
		} else {
			utils.InternalServerError(c, "Database error")
		}
		return
	}

	var booked int64
	if err := h.DB.Model(&models.Appointment{}).
		Where("patient_id = ? OR provider_id = ? OR interpreter_id = ?", userID, userID, userID).
		Count(&booked).Error; err != nil {
		utils.InternalServerError(c, "Database error")
		return
	}
	if booked > 0 {
		utils.Error(c, http.StatusConflict, "User has appointments and cannot be deleted")
		return
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, "id = ?", userID).Error
	})
	if err != nil {
		utils.InternalServerError(c, "Failed to delete user")
		return
	}

	utils.Success(c, "User deleted successfully", nil)
}

// GetProviders lists providers for booking, ordered by last name.
func (h *UserHandler) GetProviders(c *gin.Context) {
	query := h.DB.Where("role = ?", models.RoleProvider)
	if specialty := strings.TrimSpace(c.Query("specialty")); specialty != "" {
		query = query.Where("specialty = ?", specialty)
	}

	var providers []models.User
	if err := query.Order("last_name, first_name").Find(&providers).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch providers")
		return
	}
	utils.Success(c, "Providers fetched successfully", sanitizeAll(providers))
}

// GetInterpreters lists interpreters, best rated first, optionally only
// those signing ?signLanguage=.
func (h *UserHandler) GetInterpreters(c *gin.Context) {
	var lang models.SignLanguage
	if raw := c.Query("signLanguage"); raw != "" {
		parsed, ok := models.ParseSignLanguage(raw)
		if !ok {
			utils.BadRequest(c, "Unsupported sign language: "+raw)
			return
		}
		lang = parsed
	}

	var interpreters []models.User
	if err := h.DB.Where("role = ?", models.RoleInterpreter).
		Order("rating desc").Order("last_name").
		Find(&interpreters).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch interpreters")
		return
	}

	// signLanguages is a JSON column, so the filter runs after loading.
	if lang != "" {
		filtered := interpreters[:0]
		for _, u := range interpreters {
			if u.Speaks(lang) {
				filtered = append(filtered, u)
			}
		}
		interpreters = filtered
	}

	utils.Success(c, "Interpreters fetched successfully", sanitizeAll(interpreters))
}

// GetPatients lists patients. Providers see the patients they have
// appointments with; admins see everyone.
func (h *UserHandler) GetPatients(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	query := h.DB.Where("role = ?", models.RolePatient)
	switch caller.Role {
	case models.RoleAdmin:
	case models.RoleProvider:
		query = query.Where("id IN (?)", h.DB.Model(&models.Appointment{}).
			Select("patient_id").Where("provider_id = ?", caller.UserID))
	default:
		utils.Forbidden(c, "Only providers and admins can view patient lists")
		return
	}

	var patients []models.User
	if err := query.Order("last_name, first_name").Find(&patients).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch patients")
		return
	}
	utils.Success(c, "Patients fetched successfully", sanitizeAll(patients))
}
