package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"parkdash/backend/services/dashboard/internal/models"
)

func TestFloor(t *testing.T) {
	for floor := models.MinFloor; floor <= models.MaxFloor; floor++ {
		assert.NoError(t, Floor(floor))
	}
	for _, floor := range []int{-1, 5, 100} {
		err := Floor(floor)
		var verr *models.ValidationError
		if assert.True(t, errors.As(err, &verr), "floor %d", floor) {
			assert.Equal(t, "floor", verr.Field)
		}
	}
}

func TestRegistration(t *testing.T) {
	cases := []struct {
		name    string
		reg     string
		country string
		valid   bool
	}{
		{"basic polish plate", "WA12345", "PL", true},
		{"special polish plate", "HPA1234", "PL", true},
		{"special plate too short", "UA123", "PL", false},
		{"unknown polish prefix", "XA12345", "PL", false},
		{"foreign plate skips prefix rules", "XA12345", "DE", true},
		{"too short", "AB1", "DE", false},
		{"too long", "ABCDE12345", "PL", false},
		{"foreign plate with hyphen", "AB-123", "DE", true},
		{"foreign plate with inner space", "M AB 123", "DE", true},
		{"length counts characters not bytes", "ÖÄÜ1234", "AT", true},
		{"multibyte plate too long", "ÖÖÖÖÖÖÖÖÖ", "AT", false},
		{"multibyte plate too short", "ÖÖÖÖ", "AT", false},
		{"missing country", "WA12345", "", false},
		{"missing registration", "", "PL", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Registration(models.NewVehicleID(tc.reg, tc.country))
			if tc.valid {
				assert.NoError(t, err)
				return
			}
			var verr *models.ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}
