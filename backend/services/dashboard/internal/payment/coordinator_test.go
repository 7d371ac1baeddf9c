package payment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"parkdash/backend/services/dashboard/internal/models"
	"parkdash/backend/services/dashboard/internal/money"
)

type fakeAPI struct {
	fee       money.Amount
	quoteErr  error
	submitErr error

	quoteGate  chan struct{}
	submitGate chan struct{}

	quotes  atomic.Int32
	submits atomic.Int32

	mu        sync.Mutex
	submitted []money.Amount
}

func (f *fakeAPI) QuoteFee(ctx context.Context, _ models.VehicleID) (money.Amount, error) {
	f.quotes.Add(1)
	if f.quoteGate != nil {
		select {
		case <-f.quoteGate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return f.fee, f.quoteErr
}

func (f *fakeAPI) SubmitPayment(ctx context.Context, _ models.VehicleID, amount money.Amount) error {
	f.submits.Add(1)
	if f.submitGate != nil {
		select {
		case <-f.submitGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	f.submitted = append(f.submitted, amount)
	f.mu.Unlock()
	return f.submitErr
}

var vehicle = models.NewVehicleID("wa12345", "pl")

func TestHappyPathSettlesAndNotifies(t *testing.T) {
	api := &fakeAPI{fee: money.MustParse("15.50")}
	var settled []models.VehicleID
	co := NewCoordinator(api, zaptest.NewLogger(t), WithSettledHook(func(id models.VehicleID) {
		settled = append(settled, id)
	}))

	req, err := co.Initiate(context.Background(), vehicle)
	require.NoError(t, err)
	assert.Equal(t, PhaseAwaitingConfirmation, req.Phase)
	assert.Equal(t, "15.50", req.Fee.String())

	req, err = co.Confirm(context.Background(), vehicle)
	require.NoError(t, err)
	assert.Equal(t, PhaseSettled, req.Phase)
	assert.Equal(t, []money.Amount{money.MustParse("15.50")}, api.submitted)
	assert.Equal(t, []models.VehicleID{vehicle}, settled)

	assert.Empty(t, co.Pending())
	got, ok := co.Get(vehicle)
	require.True(t, ok)
	assert.Equal(t, PhaseSettled, got.Phase)
}

func TestConcurrentInitiateAllowsOneRequest(t *testing.T) {
	api := &fakeAPI{fee: money.MustParse("10"), quoteGate: make(chan struct{})}
	co := NewCoordinator(api, zaptest.NewLogger(t))

	const callers = 8
	var wg sync.WaitGroup
	var inProgress atomic.Int32
	var accepted atomic.Int32
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := co.Initiate(context.Background(), vehicle)
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, models.ErrPaymentInProgress):
				inProgress.Add(1)
			}
		}()
	}

	require.Eventually(t, func() bool { return inProgress.Load() == callers-1 }, time.Second, time.Millisecond)
	close(api.quoteGate)
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
	assert.Equal(t, int32(1), api.quotes.Load())
}

func TestSecondConfirmCannotDoubleSubmit(t *testing.T) {
	api := &fakeAPI{fee: money.MustParse("7.25"), submitGate: make(chan struct{})}
	co := NewCoordinator(api, zaptest.NewLogger(t))

	_, err := co.Initiate(context.Background(), vehicle)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := co.Confirm(context.Background(), vehicle)
		done <- err
	}()
	require.Eventually(t, func() bool { return api.submits.Load() == 1 }, time.Second, time.Millisecond)

	_, err = co.Confirm(context.Background(), vehicle)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	_, err = co.Initiate(context.Background(), vehicle)
	assert.ErrorIs(t, err, models.ErrPaymentInProgress)
	_, err = co.Cancel(vehicle)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	close(api.submitGate)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), api.submits.Load())
}

func TestCancelDuringQuoteDiscardsLateFee(t *testing.T) {
	api := &fakeAPI{fee: money.MustParse("3"), quoteGate: make(chan struct{})}
	co := NewCoordinator(api, zaptest.NewLogger(t))

	done := make(chan error, 1)
	go func() {
		_, err := co.Initiate(context.Background(), vehicle)
		done <- err
	}()
	require.Eventually(t, func() bool { return api.quotes.Load() == 1 }, time.Second, time.Millisecond)

	req, err := co.Cancel(vehicle)
	require.NoError(t, err)
	assert.Equal(t, PhaseCancelled, req.Phase)

	close(api.quoteGate)
	assert.ErrorIs(t, <-done, models.ErrPaymentCancelled)

	got, ok := co.Get(vehicle)
	require.True(t, ok)
	assert.Equal(t, PhaseCancelled, got.Phase)
	assert.Empty(t, co.Pending())
}

func TestCancelFreesVehicleForNewRequest(t *testing.T) {
	api := &fakeAPI{fee: money.MustParse("5")}
	co := NewCoordinator(api, zaptest.NewLogger(t))

	first, err := co.Initiate(context.Background(), vehicle)
	require.NoError(t, err)
	_, err = co.Cancel(vehicle)
	require.NoError(t, err)

	second, err := co.Initiate(context.Background(), vehicle)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, co.Pending(), 1)
	assert.Equal(t, int32(0), api.submits.Load())
}

func TestQuoteFailureMarksFailed(t *testing.T) {
	api := &fakeAPI{quoteErr: &models.ServerError{Op: "quote fee", Status: 404, Err: models.ErrVehicleNotFound}}
	co := NewCoordinator(api, zaptest.NewLogger(t))

	req, err := co.Initiate(context.Background(), vehicle)
	require.ErrorIs(t, err, models.ErrVehicleNotFound)
	assert.Equal(t, PhaseFailed, req.Phase)
	assert.NotEmpty(t, req.Error)

	_, err = co.Initiate(context.Background(), vehicle)
	assert.ErrorIs(t, err, models.ErrVehicleNotFound, "a failed request frees the vehicle")
}

func TestSubmitFailureMarksFailedWithoutHook(t *testing.T) {
	api := &fakeAPI{fee: money.MustParse("9.99"), submitErr: &models.ConnectionError{Op: "submit payment", Err: errors.New("reset")}}
	hookCalls := 0
	co := NewCoordinator(api, zaptest.NewLogger(t), WithSettledHook(func(models.VehicleID) { hookCalls++ }))

	_, err := co.Initiate(context.Background(), vehicle)
	require.NoError(t, err)

	req, err := co.Confirm(context.Background(), vehicle)
	var connErr *models.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, PhaseFailed, req.Phase)
	assert.Zero(t, hookCalls)
	assert.Empty(t, co.Pending())
}

func TestConfirmWithoutRequest(t *testing.T) {
	co := NewCoordinator(&fakeAPI{}, zaptest.NewLogger(t))

	_, err := co.Confirm(context.Background(), vehicle)
	assert.ErrorIs(t, err, models.ErrNoPendingPayment)
	_, err = co.Cancel(vehicle)
	assert.ErrorIs(t, err, models.ErrNoPendingPayment)
	_, ok := co.Get(vehicle)
	assert.False(t, ok)
}

func TestCloseDropsInFlightResult(t *testing.T) {
	api := &fakeAPI{fee: money.MustParse("4"), quoteGate: make(chan struct{})}
	co := NewCoordinator(api, zaptest.NewLogger(t))

	done := make(chan error, 1)
	go func() {
		_, err := co.Initiate(context.Background(), vehicle)
		done <- err
	}()
	require.Eventually(t, func() bool { return api.quotes.Load() == 1 }, time.Second, time.Millisecond)

	co.Close()
	close(api.quoteGate)
	assert.ErrorIs(t, <-done, models.ErrSessionClosed)

	_, err := co.Initiate(context.Background(), vehicle)
	assert.ErrorIs(t, err, models.ErrSessionClosed)
	assert.Empty(t, co.Pending())
}

func TestRecentIsBounded(t *testing.T) {
	co := NewCoordinator(&fakeAPI{fee: money.MustParse("1")}, zaptest.NewLogger(t), WithRecentLimit(2))

	for _, reg := range []string{"WA11111", "WA22222", "WA33333"} {
		id := models.NewVehicleID(reg, "PL")
		_, err := co.Initiate(context.Background(), id)
		require.NoError(t, err)
		_, err = co.Confirm(context.Background(), id)
		require.NoError(t, err)
	}

	recent := co.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, "WA33333", recent[0].Vehicle.RegistrationNo)
	assert.Equal(t, "WA22222", recent[1].Vehicle.RegistrationNo)
}
