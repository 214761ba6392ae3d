package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "bobinator/pkg/domain-errors"
)

type lookupRequest struct {
	Jurisdiction  string `validate:"required,oneof=VA NC"`
	LicenseNumber string `validate:"required,notblank,max=64,licensenumber"`
	Limit         int    `validate:"min=0,max=100"`
}

func TestValidate(t *testing.T) {
	t.Run("accepts NC prefixed numbers", func(t *testing.T) {
		assert.NoError(t, Validate(lookupRequest{Jurisdiction: "NC", LicenseNumber: "L.12345"}))
	})

	t.Run("rejects unknown jurisdiction", func(t *testing.T) {
		err := Validate(lookupRequest{Jurisdiction: "TX", LicenseNumber: "2705081693"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Equal(t, "jurisdiction must be one of [VA NC]", err.Error())
	})

	t.Run("rejects punctuation in license numbers", func(t *testing.T) {
		err := Validate(lookupRequest{Jurisdiction: "VA", LicenseNumber: "27'; DROP"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "license_number")
	})

	t.Run("rejects blank values", func(t *testing.T) {
		err := Validate(lookupRequest{Jurisdiction: "VA", LicenseNumber: "   "})
		require.Error(t, err)
		assert.Equal(t, "license_number must not be blank", err.Error())
	})

	t.Run("bounds limit", func(t *testing.T) {
		err := Validate(lookupRequest{Jurisdiction: "VA", LicenseNumber: "1", Limit: 101})
		require.Error(t, err)
		assert.Equal(t, "limit must be at most 100", err.Error())
	})
}
