package models

import (
	"strings"
	"time"

	"parkdash/backend/services/dashboard/internal/money"
)

// UnknownSpot and UnknownFloor mark values the feed did not provide.
const (
	UnknownSpot  = -1
	UnknownFloor = -1
)

// Floor domain of the facility, inclusive.
const (
	MinFloor = 0
	MaxFloor = 4
)

// VehicleID is the normalized key of an active parking session.
type VehicleID struct {
	RegistrationNo string `json:"registration_no"`
	Country        string `json:"country"`
}

// NewVehicleID trims and upper-cases both parts.
func NewVehicleID(registrationNo, country string) VehicleID {
	return VehicleID{
		RegistrationNo: normalize(registrationNo),
		Country:        normalize(country),
	}
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// IsZero reports whether the registration number is missing.
func (id VehicleID) IsZero() bool {
	return id.RegistrationNo == ""
}

func (id VehicleID) String() string {
	if id.Country == "" {
		return id.RegistrationNo
	}
	return id.Country + "/" + id.RegistrationNo
}

// Less orders identities by country, then registration.
func (id VehicleID) Less(other VehicleID) bool {
	if id.Country != other.Country {
		return id.Country < other.Country
	}
	return id.RegistrationNo < other.RegistrationNo
}

// VehicleSession is one parked vehicle as known to the dashboard.
type VehicleSession struct {
	Vehicle   VehicleID `json:"vehicle"`
	Floor     int       `json:"floor"`
	Spot      int       `json:"spot_number"`
	EnteredAt time.Time `json:"entered_at"`
	Paid      bool      `json:"is_paid"`
	// Anomalous is set when the session was created implicitly from an update for an unknown vehicle.
	Anomalous bool `json:"anomalous,omitempty"`
}

// RosterEntry is one row of the GET /vehicles snapshot.
type RosterEntry struct {
	Vehicle VehicleID `json:"vehicle"`
	Floor   int       `json:"floor"`
	Spot    int       `json:"spot_number"`
	Paid    bool      `json:"is_paid"`
}

// Aggregate is the facility summary maintained from the event stream.
type Aggregate struct {
	Occupancy    int          `json:"occupancy"`
	Revenue      money.Amount `json:"revenue"`
	Locked       bool         `json:"is_locked"`
	AlertMessage string       `json:"alert_message,omitempty"`
}
