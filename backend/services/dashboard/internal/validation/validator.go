package validation

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"parkdash/backend/services/dashboard/internal/models"
)

const (
	minRegistrationLen = 5
	maxRegistrationLen = 8
	minSpecialPlateLen = 6
)

// Polish plates start with a voivodeship letter; H and U are service/army plates that
// are at least six characters long.
var (
	plBasicLetters   = "BCDEFGKLNOPRSTWZ"
	plSpecialLetters = "HU"
)

// Floor rejects floors outside the facility range.
func Floor(floor int) error {
	if floor < models.MinFloor || floor > models.MaxFloor {
		return models.NewValidationError("floor", "must be between "+strconv.Itoa(models.MinFloor)+" and "+strconv.Itoa(models.MaxFloor))
	}
	return nil
}

// Identity checks both parts of a vehicle identity are present.
func Identity(id models.VehicleID) error {
	if id.RegistrationNo == "" {
		return models.NewValidationError("registration_no", "is required")
	}
	if id.Country == "" {
		return models.NewValidationError("country", "is required")
	}
	return nil
}

// Registration applies the plate rules used by the facility for manual entries.
// Lengths count characters, not bytes. The character set is left to the server.
func Registration(id models.VehicleID) error {
	if err := Identity(id); err != nil {
		return err
	}
	reg := id.RegistrationNo
	length := utf8.RuneCountInString(reg)
	if length < minRegistrationLen || length > maxRegistrationLen {
		return models.NewValidationError("registration_no", "must be 5 to 8 characters long")
	}
	if id.Country != "PL" {
		return nil
	}

	r, _ := utf8.DecodeRuneInString(reg)
	first := string(r)
	switch {
	case strings.ContainsRune(plBasicLetters, r):
		return nil
	case strings.ContainsRune(plSpecialLetters, r):
		if length < minSpecialPlateLen {
			return models.NewValidationError("registration_no", "special plates must be at least 6 characters long")
		}
		return nil
	default:
		return models.NewValidationError("registration_no", "unknown Polish plate prefix "+first)
	}
}
