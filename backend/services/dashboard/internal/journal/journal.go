package journal

import (
	"context"
	"time"

	"github.com/google/uuid"

	"parkdash/backend/services/dashboard/internal/models"
	"parkdash/backend/services/dashboard/internal/money"
)

const DefaultCapacity = 200

// Entry is one line of the operator activity feed.
type Entry struct {
	ID      string            `json:"id"`
	At      time.Time         `json:"at"`
	Type    models.EventType  `json:"type"`
	Vehicle *models.VehicleID `json:"vehicle,omitempty"`
	Floor   *int              `json:"floor,omitempty"`
	Spot    *int              `json:"spot,omitempty"`
	Amount  *money.Amount     `json:"amount,omitempty"`
	Locked  *bool             `json:"is_locked,omitempty"`
	Message string            `json:"msg,omitempty"`
	Outcome string            `json:"outcome"`
}

// Journal stores the activity feed of one session, newest first.
type Journal interface {
	Append(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Clear(ctx context.Context) error
}

// FromEvent builds the feed entry for an applied stream event.
func FromEvent(ev models.Event, outcome string, at time.Time) Entry {
	e := Entry{
		ID:      uuid.NewString(),
		At:      at,
		Type:    ev.Type,
		Floor:   ev.Floor,
		Spot:    ev.Spot,
		Amount:  ev.Amount,
		Message: ev.Message,
		Outcome: outcome,
	}
	if id := models.NewVehicleID(ev.RegistrationNo, ev.Country); !id.IsZero() {
		e.Vehicle = &id
	}
	if ev.Type == models.EventEmergencyStatus {
		locked := ev.IsLocked
		e.Locked = &locked
	}
	return e
}
