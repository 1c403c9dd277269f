package validation_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"familybudget/internal/core"
	apperrors "familybudget/internal/errors"
	"familybudget/internal/validation"
)

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=1024"`
	FirstName string `json:"first_name,omitempty" validate:"max=50"`
	Kind      string `json:"type" validate:"omitempty,oneof=EXPENSE INCOME"`
}

func TestValidateSuccess(t *testing.T) {
	v := validation.New()
	err := v.Validate(registerRequest{Email: "ana@example.com", Password: "password123"})
	assert.NoError(t, err)
}

func TestValidateReportsEveryField(t *testing.T) {
	v := validation.New()

	err := v.Validate(registerRequest{Email: "nope", Password: "short", Kind: "GIFT"})
	require.Error(t, err)

	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus())

	fields, ok := appErr.Details.(apperrors.FieldErrors)
	require.True(t, ok)
	assert.Equal(t, "must be a valid email address", fields["email"].Message)
	assert.Equal(t, core.CodeInvalidLength, fields["password"].Code)
	assert.Equal(t, core.CodeInvalidChoice, fields["type"].Code)
	assert.NotContains(t, fields, "first_name")
}

func TestValidateRequired(t *testing.T) {
	err := validation.New().Validate(registerRequest{})

	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	fields := appErr.Details.(apperrors.FieldErrors)
	assert.Equal(t, core.CodeRequired, fields["email"].Code)
	assert.Equal(t, "is required", fields["password"].Message)
}
