package clients

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"parkdash/backend/services/dashboard/internal/auth"
	"parkdash/backend/services/dashboard/internal/models"
	"parkdash/backend/services/dashboard/internal/money"
)

const maxDetailLen = 200

// Credentials authenticate every command and the stream handshake. A token returned by
// the login call takes precedence over the basic pair.
type Credentials struct {
	Username string
	Password string
	Token    *auth.Token
}

// Authorization returns the header value for the credentials, or "" when empty.
func (c Credentials) Authorization() string {
	if c.Token != nil {
		return c.Token.Header()
	}
	if c.Username == "" && c.Password == "" {
		return ""
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.Username+":"+c.Password))
}

// Header builds request headers carrying the credentials.
func (c Credentials) Header() http.Header {
	h := http.Header{}
	if v := c.Authorization(); v != "" {
		h.Set("Authorization", v)
	}
	return h
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Credentials Credentials
	Token       *auth.Token
}

// HistoryRecord is one finished stay from GET /entry/history.
type HistoryRecord struct {
	EntryTime string       `json:"entry_time"`
	ExitTime  string       `json:"exit_time"`
	Floor     int          `json:"floor"`
	Fee       money.Amount `json:"fee"`
}

// ParkingClient talks to the facility REST API.
type ParkingClient struct {
	base  *BaseClient
	creds Credentials
}

// NewParkingClient returns a client without credentials.
func NewParkingClient(baseURL string, httpClient HTTPDoer) *ParkingClient {
	return &ParkingClient{base: NewBaseClient(baseURL, httpClient)}
}

// WithCredentials returns a copy of the client that authenticates as creds.
func (c *ParkingClient) WithCredentials(creds Credentials) *ParkingClient {
	return &ParkingClient{base: c.base, creds: creds}
}

// Credentials returns the credentials the client sends.
func (c *ParkingClient) Credentials() Credentials {
	return c.creds
}

type loginResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
}

// Login checks the operator credentials with POST /login.
func (c *ParkingClient) Login(ctx context.Context, username, password string) (LoginResult, error) {
	creds := Credentials{Username: username, Password: password}
	status, body, err := c.base.Do(ctx, http.MethodPost, "/login", nil, creds.Header())
	if err != nil {
		return LoginResult{}, &models.ConnectionError{Op: "login", Err: err}
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return LoginResult{}, models.ErrInvalidCredentials
	}
	if !isSuccess(status) {
		return LoginResult{}, statusError("login", status, body)
	}

	result := LoginResult{Credentials: creds}
	var resp loginResponse
	if len(body) > 0 && json.Unmarshal(body, &resp) == nil {
		raw := resp.AccessToken
		if raw == "" {
			raw = resp.Token
		}
		if raw != "" {
			tok, err := auth.ParseToken(raw)
			if err != nil {
				return LoginResult{}, fmt.Errorf("login: %w", err)
			}
			result.Token = tok
			result.Credentials.Token = tok
		}
	}
	return result, nil
}

// Logout ends the server-side session.
func (c *ParkingClient) Logout(ctx context.Context) error {
	return c.call(ctx, "logout", http.MethodPost, "/logout", nil, nil)
}

type entryRequest struct {
	RegistrationNo string `json:"registration_no"`
	Country        string `json:"country"`
	Floor          int    `json:"floor"`
}

// RegisterEntry records a manual vehicle entry.
func (c *ParkingClient) RegisterEntry(ctx context.Context, id models.VehicleID, floor int) error {
	return c.call(ctx, "register entry", http.MethodPost, "/entry",
		entryRequest{RegistrationNo: id.RegistrationNo, Country: id.Country, Floor: floor}, nil)
}

// RegisterExit records a manual vehicle exit.
func (c *ParkingClient) RegisterExit(ctx context.Context, id models.VehicleID) error {
	return c.call(ctx, "register exit", http.MethodDelete, vehiclePath("/entry", id), nil, nil)
}

type floorRequest struct {
	NewFloor int `json:"new_floor"`
}

// UpdateFloor moves a parked vehicle to another floor.
func (c *ParkingClient) UpdateFloor(ctx context.Context, id models.VehicleID, floor int) error {
	return c.call(ctx, "update floor", http.MethodPatch, vehiclePath("/entry", id), floorRequest{NewFloor: floor}, nil)
}

type vehicleDTO struct {
	Vehicle struct {
		RegistrationNo string `json:"registration_no"`
		Country        string `json:"country"`
	} `json:"vehicle"`
	Floor      int  `json:"floor"`
	SpotNumber *int `json:"spot_number"`
	IsPaid     bool `json:"is_paid"`
}

// ListVehicles fetches the authoritative roster.
func (c *ParkingClient) ListVehicles(ctx context.Context) ([]models.RosterEntry, error) {
	var dtos []vehicleDTO
	if err := c.call(ctx, "list vehicles", http.MethodGet, "/vehicles", nil, &dtos); err != nil {
		return nil, err
	}
	entries := make([]models.RosterEntry, 0, len(dtos))
	for _, d := range dtos {
		spot := models.UnknownSpot
		if d.SpotNumber != nil {
			spot = *d.SpotNumber
		}
		entries = append(entries, models.RosterEntry{
			Vehicle: models.NewVehicleID(d.Vehicle.RegistrationNo, d.Vehicle.Country),
			Floor:   d.Floor,
			Spot:    spot,
			Paid:    d.IsPaid,
		})
	}
	return entries, nil
}

type feeResponse struct {
	Fee *money.Amount `json:"fee"`
}

// QuoteFee asks the server for the amount currently owed.
func (c *ParkingClient) QuoteFee(ctx context.Context, id models.VehicleID) (money.Amount, error) {
	var resp feeResponse
	if err := c.call(ctx, "quote fee", http.MethodGet, vehiclePath("/payment", id), nil, &resp); err != nil {
		return 0, err
	}
	if resp.Fee == nil {
		return 0, &models.ServerError{Op: "quote fee", Status: http.StatusOK, Detail: "response without fee"}
	}
	return *resp.Fee, nil
}

type paymentRequest struct {
	Amount money.Amount `json:"amount"`
}

// SubmitPayment pays the quoted amount.
func (c *ParkingClient) SubmitPayment(ctx context.Context, id models.VehicleID, amount money.Amount) error {
	return c.call(ctx, "submit payment", http.MethodPost, vehiclePath("/payment", id), paymentRequest{Amount: amount}, nil)
}

// History returns finished stays keyed by registration number.
func (c *ParkingClient) History(ctx context.Context) (map[string][]HistoryRecord, error) {
	history := map[string][]HistoryRecord{}
	if err := c.call(ctx, "entry history", http.MethodGet, "/entry/history", nil, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// Ping checks that the API answers at all; any HTTP status counts as reachable.
func (c *ParkingClient) Ping(ctx context.Context) (time.Duration, error) {
	started := time.Now()
	if _, _, err := c.base.Do(ctx, http.MethodGet, "/", nil, nil); err != nil {
		return 0, &models.ConnectionError{Op: "ping", Err: err}
	}
	return time.Since(started), nil
}

func (c *ParkingClient) call(ctx context.Context, op, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = encoded
	}

	status, respBody, err := c.base.Do(ctx, method, path, body, c.creds.Header())
	if err != nil {
		return &models.ConnectionError{Op: op, Err: err}
	}
	if !isSuccess(status) {
		return statusError(op, status, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &models.ServerError{Op: op, Status: status, Detail: "malformed response", Err: err}
	}
	return nil
}

func vehiclePath(prefix string, id models.VehicleID) string {
	return prefix + "/" + url.PathEscape(id.Country) + "/" + url.PathEscape(id.RegistrationNo)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func statusError(op string, status int, body []byte) error {
	err := &models.ServerError{Op: op, Status: status, Detail: errorDetail(body)}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		err.Err = models.ErrInvalidCredentials
	case http.StatusNotFound:
		err.Err = models.ErrVehicleNotFound
	}
	return err
}

// errorDetail extracts the FastAPI "detail" field, which is a string for HTTPException
// and a list of {loc, msg} objects for request validation failures.
func errorDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return truncate(strings.TrimSpace(string(body)))
	}

	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil {
		return truncate(text)
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return truncate(strings.Join(msgs, "; "))
	}
	return truncate(string(envelope.Detail))
}

func truncate(s string) string {
	if len(s) <= maxDetailLen {
		return s
	}
	return s[:maxDetailLen]
}

// IsNotFound reports whether err is a 404 answer.
func IsNotFound(err error) bool {
	return errors.Is(err, models.ErrVehicleNotFound)
}
