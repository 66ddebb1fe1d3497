package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsIsMatchesKind(t *testing.T) {
	err := InvalidTransition("cancel", "completed")

	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, &Error{Kind: KindInvalidTransition, Code: "cannot_cancel"})
	assert.NotErrorIs(t, err, &Error{Kind: KindInvalidTransition, Code: "cannot_start"})
}

func TestErrorsIsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("handler: %w", NotFound("appointment", "abc"))

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestDataAccessUnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := DataAccess("list appointments", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrDataAccess)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, KindDataAccess, KindOf(errors.New("boom")))
}

func TestValidationCarriesField(t *testing.T) {
	err := Validation("reason", "reason is required")

	assert.Equal(t, "invalid_reason", err.Code)
	assert.Equal(t, "reason", err.Details["field"])
}
