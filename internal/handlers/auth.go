package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"signbridge-server/internal/audit"
	"signbridge-server/internal/config"
	"signbridge-server/internal/identity"
	"signbridge-server/internal/logger"
	"signbridge-server/internal/middleware"
	"signbridge-server/internal/models"
	"signbridge-server/internal/notify"
	"signbridge-server/internal/utils"
)

const (
	refreshCookie = "refresh_token"
	resetTokenTTL = time.Hour
)

// AuthHandler handles authentication-related requests.
type AuthHandler struct {
	DB       *gorm.DB
	Cfg      *config.Config
	Recorder *audit.Recorder
	Notifier *notify.Notifier
	Log      *logger.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(db *gorm.DB, cfg *config.Config, recorder *audit.Recorder, notifier *notify.Notifier, log *logger.Logger) *AuthHandler {
	return &AuthHandler{DB: db, Cfg: cfg, Recorder: recorder, Notifier: notifier, Log: log}
}

func requestCaller(c *gin.Context, user *models.User) identity.Caller {
	return identity.Caller{
		UserID:    user.ID,
		Role:      user.Role,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// RegisterRequest represents the request body for user registration.
type RegisterRequest struct {
	FirstName             string   `json:"firstName" binding:"required,max=100"`
	LastName              string   `json:"lastName" binding:"required,max=100"`
	Email                 string   `json:"email" binding:"required,email"`
	Password              string   `json:"password" binding:"required,min=8"`
	Role                  string   `json:"role" binding:"required,oneof=patient provider interpreter"`
	PhoneNumber           string   `json:"phoneNumber" binding:"max=50"`
	PreferredLanguage     string   `json:"preferredLanguage" binding:"omitempty,oneof=en es"`
	PreferredSignLanguage string   `json:"preferredSignLanguage" binding:"omitempty,signlang"`
	Timezone              string   `json:"timezone"`
	Specialty             string   `json:"specialty" binding:"max=100"`
	LicenseNumber         string   `json:"licenseNumber" binding:"max=100"`
	SignLanguages         []string `json:"signLanguages" binding:"omitempty,dive,signlang"`
	Certifications        []string `json:"certifications"`
}

// Register handles user registration.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			utils.BadRequest(c, "Unknown time zone: "+req.Timezone)
			return
		}
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	var existingUser models.User
	if err := h.DB.Where("email = ?", email).First(&existingUser).Error; err == nil {
		utils.BadRequest(c, "User with this email already exists")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		utils.InternalServerError(c, "Database error")
		return
	}

	user := models.User{
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		Email:             email,
		Role:              models.Role(req.Role),
		PhoneNumber:       req.PhoneNumber,
		PreferredLanguage: models.Language(req.PreferredLanguage),
		Timezone:          req.Timezone,
		Specialty:         req.Specialty,
		LicenseNumber:     req.LicenseNumber,
	}
	if user.PreferredLanguage == "" {
		user.PreferredLanguage = models.LanguageEnglish
	}
	if req.PreferredSignLanguage != "" {
		lang, _ := models.ParseSignLanguage(req.PreferredSignLanguage)
		user.PreferredSignLanguage = &lang
	}
	if user.Role == models.RoleInterpreter {
		user.SignLanguages = parseSignLanguages(req.SignLanguages)
		user.Certifications = datatypes.JSONSlice[string](req.Certifications)
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

	h.Recorder.Record(c.Request.Context(), audit.FromCaller(requestCaller(c, &user),
		audit.ActionSignUp, audit.ResourceAccount, user.ID, map[string]any{"role": user.Role}))

	utils.Created(c, "User registered successfully", user.Sanitize())
}

// LoginRequest represents the request body for user login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the response body for successful login.
type LoginResponse struct {
	AccessToken  string               `json:"accessToken"`
	RefreshToken string               `json:"refreshToken"`
	User         models.UserSanitized `json:"user"`
}

// Login handles user login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var user models.User
	if err := h.DB.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Unauthorized(c, "Invalid email or password")
		} else {
			utils.InternalServerError(c, "Database error")
		}
		return
	}

	if !user.CheckPassword(req.Password) {
		utils.Unauthorized(c, "Invalid email or password")
		return
	}

	accessToken, refreshToken, ok := h.issueTokens(c, &user)
	if !ok {
		return
	}

	h.Recorder.Record(c.Request.Context(), audit.FromCaller(requestCaller(c, &user),
		audit.ActionSignIn, audit.ResourceSession, user.ID, nil))

	utils.Success(c, "Login successful", LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user.Sanitize(),
	})
}

// RefreshTokenRequest represents the request body for token refresh.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// RefreshTokenResponse represents the response body for successful token refresh.
type RefreshTokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RefreshToken rotates the refresh token and issues a new access token.
// The cookie is preferred; the body is accepted for non-browser clients.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	presented, err := c.Cookie(refreshCookie)
	if err != nil || presented == "" {
		var req RefreshTokenRequest
		if !utils.BindAndValidate(c, &req) {
			return
		}
		presented = req.RefreshToken
	}

	claims, err := utils.ValidateToken(presented, h.Cfg.JWTRefreshSecret)
	if err != nil {
		utils.Unauthorized(c, "Invalid refresh token")
		return
	}

	var storedToken models.RefreshToken
	if err := h.DB.Where("token_hash = ? AND user_id = ? AND is_revoked = ? AND expires_at > ?",
		models.HashToken(presented), claims.UserID, false, time.Now().UTC()).First(&storedToken).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Unauthorized(c, "Refresh token not found, expired, or revoked")
		} else {
			utils.InternalServerError(c, "Database error checking refresh token")
		}
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", claims.UserID).Error; err != nil {
		utils.Unauthorized(c, "User no longer exists")
		return
	}

	// Revoke conditionally so a token replayed concurrently rotates once.
	result := h.DB.Model(&models.RefreshToken{}).
		Where("id = ? AND is_revoked = ?", storedToken.ID, false).
		Updates(map[string]any{"is_revoked": true, "revoked_at": time.Now().UTC()})
	if result.Error != nil {
		utils.InternalServerError(c, "Failed to revoke refresh token")
		return
	}
	if result.RowsAffected == 0 {
		utils.Unauthorized(c, "Refresh token not found, expired, or revoked")
		return
	}

	accessToken, refreshToken, ok := h.issueTokens(c, &user)
	if !ok {
		return
	}

	utils.Success(c, "Access token refreshed successfully", RefreshTokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

// LogoutRequest represents the request body for user logout.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Logout revokes the presented refresh token and clears the cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req LogoutRequest
	_ = c.ShouldBindJSON(&req)
	if req.RefreshToken == "" {
		req.RefreshToken, _ = c.Cookie(refreshCookie)
	}
	if req.RefreshToken == "" {
		utils.BadRequest(c, "Refresh token is required")
		return
	}

	query := h.DB.Model(&models.RefreshToken{}).Where("token_hash = ? AND is_revoked = ?", models.HashToken(req.RefreshToken), false)
	if userID, ok := middleware.GetUserIDFromContext(c); ok {
		query = query.Where("user_id = ?", userID)
	}
	if err := query.Updates(map[string]any{"is_revoked": true, "revoked_at": time.Now().UTC()}).Error; err != nil {
		utils.InternalServerError(c, "Failed to revoke refresh token")
		return
	}

	if caller, ok := middleware.CallerFromContext(c); ok {
		h.Recorder.Record(c.Request.Context(), audit.FromCaller(caller,
			audit.ActionSignOut, audit.ResourceSession, caller.UserID, nil))
	}

	c.SetCookie(refreshCookie, "", -1, "/", "", !h.Cfg.IsDevelopment(), true)
	utils.Success(c, "Logout successful. Refresh token has been invalidated.", nil)
}

// GetProfile handles fetching the currently authenticated user's profile.
func (h *AuthHandler) GetProfile(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User profile not found")
		} else {
			utils.InternalServerError(c, "Database error")
		}
		return
	}

	utils.Success(c, "Profile fetched successfully", user.Sanitize())
}

// UpdateProfileRequest represents the request body for updating user profile.
// Email and role cannot be changed here.
type UpdateProfileRequest struct {
	FirstName                string                           `json:"firstName" binding:"max=100"`
	LastName                 string                           `json:"lastName" binding:"max=100"`
	PhoneNumber              *string                          `json:"phoneNumber" binding:"omitempty,max=50"`
	PreferredLanguage        string                           `json:"preferredLanguage" binding:"omitempty,oneof=en es"`
	PreferredSignLanguage    *string                          `json:"preferredSignLanguage" binding:"omitempty,signlang"`
	Timezone                 *string                          `json:"timezone"`
	CommunicationPreferences *models.CommunicationPreferences `json:"communicationPreferences"`
	Specialty                *string                          `json:"specialty" binding:"omitempty,max=100"`
	SignLanguages            []string                         `json:"signLanguages" binding:"omitempty,dive,signlang"`
}

// UpdateProfile handles updating the currently authenticated user's profile.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	var req UpdateProfileRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		utils.NotFound(c, "User not found")
		return
	}

	if req.FirstName != "" {
		user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		user.LastName = req.LastName
	}
	if req.PhoneNumber != nil {
		user.PhoneNumber = *req.PhoneNumber
	}
	if req.PreferredLanguage != "" {
		user.PreferredLanguage = models.Language(req.PreferredLanguage)
	}
	if req.PreferredSignLanguage != nil {
		if *req.PreferredSignLanguage == "" {
			user.PreferredSignLanguage = nil
		} else {
			lang, _ := models.ParseSignLanguage(*req.PreferredSignLanguage)
			user.PreferredSignLanguage = &lang
		}
	}
	if req.Timezone != nil {
		if *req.Timezone != "" {
			if _, err := time.LoadLocation(*req.Timezone); err != nil {
				utils.BadRequest(c, "Unknown time zone: "+*req.Timezone)
				return
			}
		}
		user.Timezone = *req.Timezone
	}
	if req.CommunicationPreferences != nil {
		user.CommunicationPreferences = datatypes.NewJSONType(*req.CommunicationPreferences)
	}
	if req.Specialty != nil && user.Role == models.RoleProvider {
		user.Specialty = *req.Specialty
	}
	if req.SignLanguages != nil && user.Role == models.RoleInterpreter {
		user.SignLanguages = parseSignLanguages(req.SignLanguages)
	}

	if err := h.DB.Save(&user).Error; err != nil {
		utils.InternalServerError(c, "Failed to update profile")
		return
	}

	utils.Success(c, "Profile updated successfully", user.Sanitize())
}

// issueTokens signs a token pair, stores the refresh token and sets the
// cookie. It writes the error response itself.
func (h *AuthHandler) issueTokens(c *gin.Context, user *models.User) (string, string, bool) {
	accessToken, refreshToken, err := utils.GenerateTokens(user, h.Cfg)
	if err != nil {
		utils.InternalServerError(c, "Failed to generate tokens")
		return "", "", false
	}

	ttl := utils.RefreshTTL(h.Cfg)
	stored := models.RefreshToken{
		UserID:    user.ID,
		TokenHash: models.HashToken(refreshToken),
		ExpiresAt: time.Now().Add(ttl).UTC(),
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if err := h.DB.Create(&stored).Error; err != nil {
		utils.InternalServerError(c, "Failed to store refresh token")
		return "", "", false
	}

	c.SetCookie(refreshCookie, refreshToken, int(ttl.Seconds()), "/", "", !h.Cfg.IsDevelopment(), true)
	return accessToken, refreshToken, true
}

// ChangePasswordRequest represents the request body for a password change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8"`
}

// ChangePassword replaces the caller's password after checking the current
// one. Every refresh token of the user is revoked.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	var req ChangePasswordRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", caller.UserID).Error; err != nil {
		utils.NotFound(c, "User not found")
		return
	}
	if !user.CheckPassword(req.CurrentPassword) {
		utils.Unauthorized(c, "Current password is incorrect")
		return
	}
	if req.NewPassword == req.CurrentPassword {
		utils.BadRequest(c, "New password must differ from the current one")
		return
	}

	err := h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		return h.replacePassword(tx, &user, req.NewPassword, caller, "change")
	})
	if err != nil {
		utils.InternalServerError(c, "Failed to change password")
		return
	}

	c.SetCookie(refreshCookie, "", -1, "/", "", !h.Cfg.IsDevelopment(), true)
	utils.Success(c, "Password changed successfully. Please sign in again.", nil)
}

// ForgotPasswordRequest represents the request body for a reset link.
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ForgotPassword emails a single-use reset link. The response is the same
// whether or not the address belongs to an account.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	const accepted = "If an account exists for that email, a reset link has been sent"

	var user models.User
	if err := h.DB.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			utils.InternalServerError(c, "Database error")
			return
		}
		utils.Success(c, accepted, nil)
		return
	}

	ctx := c.Request.Context()
	now := time.Now().UTC()
	token := uuid.NewString()
	err := h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PasswordResetToken{}).
			Where("user_id = ? AND used_at IS NULL", user.ID).
			Update("used_at", now).Error; err != nil {
			return err
		}
		return tx.Create(&models.PasswordResetToken{
			UserID:    user.ID,
			TokenHash: models.HashToken(token),
			ExpiresAt: now.Add(resetTokenTTL),
			ClientIP:  c.ClientIP(),
		}).Error
	})
	if err != nil {
		utils.InternalServerError(c, "Failed to create reset token")
		return
	}

	h.Recorder.Record(ctx, audit.FromCaller(requestCaller(c, &user),
		audit.ActionPasswordResetRequest, audit.ResourceAccount, user.ID, nil))

	if err := h.Notifier.SendPasswordReset(ctx, &user, token, resetTokenTTL); err != nil {
		h.Log.WithComponent("auth").WithError(err).WithField("user_id", user.ID).Error("password reset email failed")
	}
	utils.Success(c, accepted, nil)
}

// ResetPasswordRequest represents the request body for completing a reset.
type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8"`
}

var errResetTokenInvalid = errors.New("reset token invalid")

// ResetPassword sets a new password using an emailed reset token.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	ctx := c.Request.Context()
	now := time.Now().UTC()
	err := h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reset models.PasswordResetToken
		if err := tx.Where("token_hash = ?", models.HashToken(req.Token)).First(&reset).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errResetTokenInvalid
			}
			return err
		}
		if !reset.Usable(now) {
			return errResetTokenInvalid
		}

		// A concurrent reset with the same token claims no row.
		res := tx.Model(&models.PasswordResetToken{}).
			Where("id = ? AND used_at IS NULL", reset.ID).
			Update("used_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errResetTokenInvalid
		}

		var user models.User
		if err := tx.First(&user, "id = ?", reset.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errResetTokenInvalid
			}
			return err
		}
		return h.replacePassword(tx, &user, req.NewPassword, requestCaller(c, &user), "reset")
	})
	if errors.Is(err, errResetTokenInvalid) {
		utils.BadRequest(c, "Reset link is invalid or has expired")
		return
	}
	if err != nil {
		utils.InternalServerError(c, "Failed to reset password")
		return
	}

	utils.Success(c, "Password has been reset. Please sign in with your new password.", nil)
}

// replacePassword rehashes, revokes every refresh token and writes the
// password_change audit row, all inside tx.
func (h *AuthHandler) replacePassword(tx *gorm.DB, user *models.User, password string, caller identity.Caller, method string) error {
	if err := user.SetPassword(password); err != nil {
		return err
	}
	if err := tx.Model(user).Update("password", user.Password).Error; err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := tx.Model(&models.RefreshToken{}).
		Where("user_id = ? AND is_revoked = ?", user.ID, false).
		Updates(map[string]any{"is_revoked": true, "revoked_at": now}).Error; err != nil {
		return err
	}

	entry, err := audit.FromCaller(caller, audit.ActionPasswordChange, audit.ResourceAccount, user.ID,
		map[string]any{"method": method}).Entry(now)
	if err != nil {
		return err
	}
	return tx.Create(entry).Error
}

func parseSignLanguages(values []string) datatypes.JSONSlice[models.SignLanguage] {
	out := make(datatypes.JSONSlice[models.SignLanguage], 0, len(values))
	for _, v := range values {
		if lang, ok := models.ParseSignLanguage(v); ok {
			out = append(out, lang)
		}
	}
	return out
}
