package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/license-notifications/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, Struct(domain.CreateNotificationRequest{DaysExpires: 30}))
}

func TestStruct_ReportsJSONFieldNames(t *testing.T) {
	err := Struct(domain.CreateNotificationRequest{Message: strings.Repeat("x", 501)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "this field is required", ve.Fields["days_expires"])
	assert.Equal(t, "must be at most 500 characters", ve.Fields["message"])
}

func TestStruct_PointerFieldsSkippedWhenNil(t *testing.T) {
	assert.NoError(t, Struct(domain.UpdateNotificationRequest{}))

	zero := 0
	err := Struct(domain.UpdateNotificationRequest{DaysExpires: &zero})
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "must be at least 1", ve.Fields["days_expires"])
}

func TestStruct_MergesDecodeTypeErrors(t *testing.T) {
	err := Struct(domain.CreateNotificationRequest{
		Message:    strings.Repeat("x", 501),
		TypeErrors: map[string]string{"days_expires": "must be a number"},
	})
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "must be a number", ve.Fields["days_expires"])
	assert.Equal(t, "must be at most 500 characters", ve.Fields["message"])
}

func TestStruct_TypeErrorsAloneFail(t *testing.T) {
	err := Struct(domain.UpdateNotificationRequest{
		TypeErrors: map[string]string{"message": "must be a string"},
	})
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, map[string]string{"message": "must be a string"}, ve.Fields)
}
