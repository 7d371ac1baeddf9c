package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"VEHICLE_ENTRY","reg_no":"abc123","country":"pl","floor":2,"spot":14}`))
	require.NoError(t, err)
	assert.Equal(t, EventVehicleEntry, ev.Type)
	require.NotNil(t, ev.Floor)
	assert.Equal(t, 2, *ev.Floor)
	require.NotNil(t, ev.Spot)
	assert.Equal(t, 14, *ev.Spot)
	assert.Nil(t, ev.Amount)

	ev, err = ParseEvent([]byte(`{"type":"PAYMENT_SUCCESS","reg_no":"ABC123","amount":15.5}`))
	require.NoError(t, err)
	require.NotNil(t, ev.Amount)
	assert.Equal(t, "15.50", ev.Amount.String())

	ev, err = ParseEvent([]byte(`{"type":"EMERGENCY_STATUS","is_locked":true,"msg":"fire alarm"}`))
	require.NoError(t, err)
	assert.True(t, ev.IsLocked)
	assert.Equal(t, "fire alarm", ev.Message)
}

func TestParseEventErrors(t *testing.T) {
	_, err := ParseEvent([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseEvent([]byte(`{"reg_no":"ABC"}`))
	assert.Error(t, err)
}

func TestVehicleIDNormalization(t *testing.T) {
	id := NewVehicleID(" abc123 ", "pl")
	assert.Equal(t, VehicleID{RegistrationNo: "ABC123", Country: "PL"}, id)
	assert.Equal(t, "PL/ABC123", id.String())
	assert.True(t, NewVehicleID(" ", "PL").IsZero())
	assert.True(t, NewVehicleID("A", "DE").Less(NewVehicleID("A", "PL")))
}

func TestStructuralEvents(t *testing.T) {
	assert.True(t, EventVehicleEntry.Structural())
	assert.True(t, EventPaymentSuccess.Structural())
	assert.False(t, EventEmergencyStatus.Structural())
	assert.True(t, EventEmergencyStatus.Known())
	assert.False(t, EventType("SOMETHING").Known())
}
