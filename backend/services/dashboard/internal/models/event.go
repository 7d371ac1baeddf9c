package models

import (
	"encoding/json"
	"fmt"

	"parkdash/backend/services/dashboard/internal/money"
)

// EventType is the `type` field of a stream message.
type EventType string

const (
	EventVehicleEntry    EventType = "VEHICLE_ENTRY"
	EventVehicleExit     EventType = "VEHICLE_EXIT"
	EventVehicleUpdated  EventType = "VEHICLE_UPDATED"
	EventPaymentSuccess  EventType = "PAYMENT_SUCCESS"
	EventEmergencyStatus EventType = "EMERGENCY_STATUS"
)

// Structural reports whether the event changes roster membership or paid state
// and therefore warrants a roster refresh.
func (t EventType) Structural() bool {
	switch t {
	case EventVehicleEntry, EventVehicleExit, EventVehicleUpdated, EventPaymentSuccess:
		return true
	default:
		return false
	}
}

// Known reports whether the type is one the store understands.
func (t EventType) Known() bool {
	return t.Structural() || t == EventEmergencyStatus
}

// Event is a decoded stream message. Optional numeric fields are pointers so that
// an absent value can be told apart from zero.
type Event struct {
	Type           EventType     `json:"type"`
	RegistrationNo string        `json:"reg_no"`
	Country        string        `json:"country,omitempty"`
	Floor          *int          `json:"floor,omitempty"`
	Spot           *int          `json:"spot,omitempty"`
	Amount         *money.Amount `json:"amount,omitempty"`
	IsLocked       bool          `json:"is_locked,omitempty"`
	Message        string        `json:"msg,omitempty"`
}

// ParseEvent decodes one raw stream message.
func ParseEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("event: decode: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("event: missing type")
	}
	return ev, nil
}
