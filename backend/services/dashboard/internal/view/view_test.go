package view

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkdash/backend/services/dashboard/internal/models"
	"parkdash/backend/services/dashboard/internal/money"
	"parkdash/backend/services/dashboard/internal/payment"
	"parkdash/backend/services/dashboard/internal/roster"
	"parkdash/backend/services/dashboard/internal/state"
	"parkdash/backend/services/dashboard/internal/stream"
)

func TestStateViewRendersRevenueAndStatus(t *testing.T) {
	snap := state.Snapshot{
		Version: 7,
		Aggregate: models.Aggregate{
			Occupancy:    2,
			Revenue:      money.MustParse("15.5"),
			Locked:       true,
			AlertMessage: "fire",
		},
		Roster: []models.VehicleSession{
			{Vehicle: models.NewVehicleID("WA12345", "PL"), Floor: 2, Spot: 14, Paid: true},
			{Vehicle: models.NewVehicleID("KR98765", "PL"), Floor: models.UnknownFloor, Spot: models.UnknownSpot, Anomalous: true},
		},
		RosterLoaded: true,
	}

	v := New(snap, stream.StateConnected, roster.Status{Refreshes: 3})
	assert.Equal(t, "15.50", v.Revenue)
	assert.Equal(t, StatusLocked, v.Status)
	assert.Equal(t, "connected", v.Stream)
	assert.Equal(t, uint64(3), v.Roster.Refreshes)
	require.Len(t, v.Vehicles, 2)
	assert.Equal(t, 14, *v.Vehicles[0].Spot)
	assert.Nil(t, v.Vehicles[1].Floor)
	assert.Nil(t, v.Vehicles[1].Spot)

	raw, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"revenue":"15.50"`)
	assert.Contains(t, string(raw), `"spot_number":null`)

	open := New(state.Snapshot{}, stream.StateDisconnected, roster.Status{})
	assert.Equal(t, StatusOpen, open.Status)
	assert.Equal(t, "0.00", open.Revenue)
	assert.NotNil(t, open.Vehicles)
}

func TestPaymentView(t *testing.T) {
	req := payment.Request{
		ID:        uuid.New(),
		Vehicle:   models.NewVehicleID("WA12345", "PL"),
		Phase:     payment.PhaseQuoting,
		CreatedAt: time.Unix(0, 0),
	}
	assert.Empty(t, Payment(req).Fee)

	req.Phase = payment.PhaseAwaitingConfirmation
	req.Fee = money.MustParse("7")
	v := Payment(req)
	assert.Equal(t, "7.00", v.Fee)
	assert.Equal(t, "awaiting_confirmation", v.Phase)
	assert.Equal(t, req.ID.String(), v.ID)

	failed := payment.Request{Phase: payment.PhaseFailed, Error: "boom"}
	assert.Empty(t, Payment(failed).Fee)
}
