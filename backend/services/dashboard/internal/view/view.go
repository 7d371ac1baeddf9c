package view

import (
	"time"

	"parkdash/backend/services/dashboard/internal/journal"
	"parkdash/backend/services/dashboard/internal/models"
	"parkdash/backend/services/dashboard/internal/payment"
	"parkdash/backend/services/dashboard/internal/roster"
	"parkdash/backend/services/dashboard/internal/state"
	"parkdash/backend/services/dashboard/internal/stream"
)

const (
	StatusLocked = "LOCKED"
	StatusOpen   = "OPEN"
)

// VehicleRow is one roster line as the console shows it.
type VehicleRow struct {
	RegistrationNo string    `json:"registration_no"`
	Country        string    `json:"country"`
	Floor          *int      `json:"floor"`
	Spot           *int      `json:"spot_number"`
	Paid           bool      `json:"is_paid"`
	Anomalous      bool      `json:"anomalous,omitempty"`
	EnteredAt      time.Time `json:"entered_at"`
}

// StateView is the console rendering of the facility.
type StateView struct {
	Version      uint64        `json:"version"`
	Occupancy    int           `json:"occupancy"`
	Revenue      string        `json:"revenue"`
	Status       string        `json:"status"`
	Locked       bool          `json:"is_locked"`
	AlertMessage string        `json:"alert_message,omitempty"`
	Vehicles     []VehicleRow  `json:"vehicles"`
	RosterLoaded bool          `json:"roster_loaded"`
	Stream       string        `json:"stream"`
	Roster       roster.Status `json:"roster"`
}

// Source is what a view is rendered from.
type Source interface {
	Snapshot() state.Snapshot
	StreamState() stream.State
	RosterStatus() roster.Status
}

// FromSource renders the current state of a session.
func FromSource(src Source) StateView {
	return New(src.Snapshot(), src.StreamState(), src.RosterStatus())
}

// New renders a snapshot.
func New(snap state.Snapshot, st stream.State, rs roster.Status) StateView {
	status := StatusOpen
	if snap.Aggregate.Locked {
		status = StatusLocked
	}
	return StateView{
		Version:      snap.Version,
		Occupancy:    snap.Aggregate.Occupancy,
		Revenue:      snap.Aggregate.Revenue.String(),
		Status:       status,
		Locked:       snap.Aggregate.Locked,
		AlertMessage: snap.Aggregate.AlertMessage,
		Vehicles:     Rows(snap.Roster),
		RosterLoaded: snap.RosterLoaded,
		Stream:       st.String(),
		Roster:       rs,
	}
}

// Rows renders roster entries; unknown floors and spots become null.
func Rows(sessions []models.VehicleSession) []VehicleRow {
	rows := make([]VehicleRow, 0, len(sessions))
	for _, v := range sessions {
		rows = append(rows, VehicleRow{
			RegistrationNo: v.Vehicle.RegistrationNo,
			Country:        v.Vehicle.Country,
			Floor:          known(v.Floor, models.UnknownFloor),
			Spot:           known(v.Spot, models.UnknownSpot),
			Paid:           v.Paid,
			Anomalous:      v.Anomalous,
			EnteredAt:      v.EnteredAt,
		})
	}
	return rows
}

func known(v, unknown int) *int {
	if v == unknown {
		return nil
	}
	return &v
}

// PaymentView is a payment request with the fee rendered for display.
type PaymentView struct {
	ID             string    `json:"id"`
	RegistrationNo string    `json:"registration_no"`
	Country        string    `json:"country"`
	Fee            string    `json:"fee,omitempty"`
	Phase          string    `json:"phase"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Payment renders a payment request. The fee is omitted until it has been quoted.
func Payment(req payment.Request) PaymentView {
	v := PaymentView{
		ID:             req.ID.String(),
		RegistrationNo: req.Vehicle.RegistrationNo,
		Country:        req.Vehicle.Country,
		Phase:          string(req.Phase),
		Error:          req.Error,
		CreatedAt:      req.CreatedAt,
		UpdatedAt:      req.UpdatedAt,
	}
	switch req.Phase {
	case payment.PhaseAwaitingConfirmation, payment.PhaseSubmitting, payment.PhaseSettled:
		v.Fee = req.Fee.String()
	default:
		if req.Fee != 0 {
			v.Fee = req.Fee.String()
		}
	}
	return v
}

// Payments renders a list of payment requests.
func Payments(reqs []payment.Request) []PaymentView {
	out := make([]PaymentView, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, Payment(r))
	}
	return out
}

// ActivityRow is one feed line.
type ActivityRow struct {
	ID             string    `json:"id"`
	At             time.Time `json:"at"`
	Type           string    `json:"type"`
	RegistrationNo string    `json:"registration_no,omitempty"`
	Country        string    `json:"country,omitempty"`
	Floor          *int      `json:"floor,omitempty"`
	Spot           *int      `json:"spot,omitempty"`
	Amount         string    `json:"amount,omitempty"`
	Locked         *bool     `json:"is_locked,omitempty"`
	Message        string    `json:"msg,omitempty"`
	Outcome        string    `json:"outcome"`
}

// Activity renders journal entries.
func Activity(entries []journal.Entry) []ActivityRow {
	out := make([]ActivityRow, 0, len(entries))
	for _, e := range entries {
		row := ActivityRow{
			ID:      e.ID,
			At:      e.At,
			Type:    string(e.Type),
			Floor:   e.Floor,
			Spot:    e.Spot,
			Locked:  e.Locked,
			Message: e.Message,
			Outcome: e.Outcome,
		}
		if e.Vehicle != nil {
			row.RegistrationNo = e.Vehicle.RegistrationNo
			row.Country = e.Vehicle.Country
		}
		if e.Amount != nil {
			row.Amount = e.Amount.String()
		}
		out = append(out, row)
	}
	return out
}
