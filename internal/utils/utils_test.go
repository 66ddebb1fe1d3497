package utils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signbridge-server/internal/apperr"
	"signbridge-server/internal/config"
	"signbridge-server/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestTokensRoundTrip(t *testing.T) {
	cfg := &config.Config{
		JWTSecret:                 "access-secret",
		JWTRefreshSecret:          "refresh-secret",
		JWTExpirationMinutes:      15,
		JWTRefreshExpirationHours: 24,
	}
	user := &models.User{BaseModel: models.BaseModel{ID: "user-1"}, Role: models.RoleInterpreter}

	access, refresh, err := GenerateTokens(user, cfg)
	require.NoError(t, err)
	assert.NotEqual(t, access, refresh)

	claims, err := ValidateToken(access, cfg.JWTSecret)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleInterpreter, claims.Role)

	_, err = ValidateToken(access, cfg.JWTRefreshSecret)
	assert.Error(t, err)

	_, second, err := GenerateTokens(user, cfg)
	require.NoError(t, err)
	assert.NotEqual(t, refresh, second)
}

func TestRespondErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.Validation("start", "bad start"), http.StatusBadRequest, "invalid_start"},
		{apperr.NotFound("appointment", "x"), http.StatusNotFound, "appointment_not_found"},
		{apperr.InvalidTransition("cancel", "completed"), http.StatusConflict, "cannot_cancel"},
		{apperr.AccessDenied("no"), http.StatusForbidden, "access_denied"},
		{apperr.Conflict("slot_unavailable", "taken"), http.StatusConflict, "slot_unavailable"},
		{apperr.DataAccess("query", errors.New("db down")), http.StatusInternalServerError, "data_access"},
		{errors.New("boom"), http.StatusInternalServerError, "data_access"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		RespondError(c, tc.err)

		assert.Equal(t, tc.status, w.Code, tc.err.Error())
		var body ResponseData
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tc.code, body.Code)
		assert.NotContains(t, body.Error, "db down")
	}
}

func TestValidateCustomTags(t *testing.T) {
	type input struct {
		Lang string `binding:"omitempty,signlang"`
		Role string `binding:"required,role"`
	}

	assert.NoError(t, Validate(input{Lang: "asl", Role: "patient"}))

	err := Validate(input{Lang: "klingon", Role: "doctor"})
	require.Error(t, err)
	msg := FormatValidationError(err)
	assert.Contains(t, msg, "Lang must be a supported sign language")
	assert.Contains(t, msg, "Role must be a valid role")
}

func TestBindOptionalJSON(t *testing.T) {
	type notesBody struct {
		Notes *string `json:"notes" binding:"omitempty,max=20"`
	}

	tests := []struct {
		name      string
		body      io.Reader
		chunked   bool
		wantOK    bool
		wantNotes string
	}{
		{name: "no body", body: nil, wantOK: true},
		{name: "sized body", body: strings.NewReader(`{"notes":"sized"}`), wantOK: true, wantNotes: "sized"},
		{name: "chunked body", body: strings.NewReader(`{"notes":"chunked"}`), chunked: true, wantOK: true, wantNotes: "chunked"},
		{name: "empty chunked body", body: strings.NewReader(""), chunked: true, wantOK: true},
		{name: "malformed", body: strings.NewReader(`{"notes":`), chunked: true, wantOK: false},
		{name: "too long", body: strings.NewReader(`{"notes":"this note is far too long"}`), wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/complete", tt.body)
			if tt.chunked {
				req.ContentLength = -1
				req.TransferEncoding = []string{"chunked"}
			}
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = req

			var got notesBody
			ok := BindOptionalJSON(c, &got)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				assert.Equal(t, http.StatusBadRequest, w.Code)
				return
			}
			if tt.wantNotes == "" {
				assert.Nil(t, got.Notes)
			} else {
				require.NotNil(t, got.Notes)
				assert.Equal(t, tt.wantNotes, *got.Notes)
			}
		})
	}
}
