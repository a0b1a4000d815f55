package booking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicware/clinic-booking/internal/booking"
	"github.com/clinicware/clinic-booking/internal/clinic"
	"github.com/clinicware/clinic-booking/internal/clinic/clinictest"
	"github.com/clinicware/clinic-booking/internal/config"
	redisclient "github.com/clinicware/clinic-booking/internal/redis"
)

var testTime = time.Date(2024, 6, 3, 8, 30, 0, 0, time.UTC)

func newService(store *clinictest.Store) *booking.Service {
	return booking.NewService(
		store,
		redisclient.NoopLocker{},
		nil,
		clinic.FixedClock{Time: testTime},
		config.Config{QueueNumberWidth: 3},
		zerolog.Nop(),
	)
}

func TestReserveAssignsSequentialQueueNumbers(t *testing.T) {
	store := clinictest.NewStore()
	doctor := store.AddDoctor("Dr Tan", "A")
	p1 := store.AddPatient("Alice")
	p2 := store.AddPatient("Ben")
	s1 := store.AddSlot(doctor.ID, testTime.Add(30*time.Minute), 1)
	s2 := store.AddSlot(doctor.ID, testTime.Add(time.Hour), 1)

	svc := newService(store)

	a1, err := svc.Reserve(context.Background(), p1.ID, doctor.ID, s1.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, "A001", a1.QueueNumber)
	assert.Equal(t, 1, a1.QueueSequence)
	assert.Equal(t, clinic.StatusConfirmed, a1.Status)

	a2, err := svc.Reserve(context.Background(), p2.ID, doctor.ID, s2.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, "A002", a2.QueueNumber)
	assert.Equal(t, 2, a2.QueueSequence)

	assert.False(t, store.Slot(s1.ID).IsAvailable)
	assert.Equal(t, 1, store.Slot(s1.ID).BookedCount)
}

func TestReserveSlotUnavailable(t *testing.T) {
	store := clinictest.NewStore()
	doctor := store.AddDoctor("Dr Tan", "A")
	p1 := store.AddPatient("Alice")
	p2 := store.AddPatient("Ben")
	slot := store.AddSlot(doctor.ID, testTime.Add(30*time.Minute), 1)

	svc := newService(store)

	_, err := svc.Reserve(context.Background(), p1.ID, doctor.ID, slot.ID, "", "")
	require.NoError(t, err)

	_, err = svc.Reserve(context.Background(), p2.ID, doctor.ID, slot.ID, "", "")
	assert.ErrorIs(t, err, clinic.ErrSlotUnavailable)
}

func TestReserveSlotInPast(t *testing.T) {
	store := clinictest.NewStore()
	doctor := store.AddDoctor("Dr Tan", "A")
	patient := store.AddPatient("Alice")
	slot := store.AddSlot(doctor.ID, testTime.AddDate(0, 0, -1), 1)

	svc := newService(store)

	_, err := svc.Reserve(context.Background(), patient.ID, doctor.ID, slot.ID, "", "")
	assert.ErrorIs(t, err, clinic.ErrSlotInPast)
}

func TestReserveWrongDoctor(t *testing.T) {
	store := clinictest.NewStore()
	owner := store.AddDoctor("Dr Tan", "A")
	other := store.AddDoctor("Dr Lim", "B")
	patient := store.AddPatient("Alice")
	slot := store.AddSlot(owner.ID, testTime.Add(30*time.Minute), 1)

	svc := newService(store)

	_, err := svc.Reserve(context.Background(), patient.ID, other.ID, slot.ID, "", "")
	assert.ErrorIs(t, err, clinic.ErrSlotNotFound)
}

func TestReserveUnknownPatient(t *testing.T) {
	store := clinictest.NewStore()
	doctor := store.AddDoctor("Dr Tan", "A")
	slot := store.AddSlot(doctor.ID, testTime.Add(30*time.Minute), 1)

	svc := newService(store)

	_, err := svc.Reserve(context.Background(), uuid.New(), doctor.ID, slot.ID, "", "")
	assert.ErrorIs(t, err, clinic.ErrPatientNotFound)
}

func TestConcurrentReserveSingleWinner(t *testing.T) {
	store := clinictest.NewStore()
	doctor := store.AddDoctor("Dr Tan", "A")
	slot := store.AddSlot(doctor.ID, testTime.Add(30*time.Minute), 1)

	const n = 32
	patients := make([]uuid.UUID, n)
	for i := range patients {
		patients[i] = store.AddPatient("patient").ID
	}

	svc := newService(store)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Reserve(context.Background(), patients[i], doctor.ID, slot.ID, "", "")
		}(i)
	}
	wg.Wait()

	wins, losses := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, clinic.ErrSlotUnavailable):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, losses)
	assert.Equal(t, 1, store.Slot(slot.ID).BookedCount)
}

func TestConcurrentReserveUniqueSequences(t *testing.T) {
	store := clinictest.NewStore()
	doctor := store.AddDoctor("Dr Tan", "A")

	const n = 20
	type pair struct {
		patientID uuid.UUID
		slotID    uuid.UUID
	}
	pairs := make([]pair, n)
	for i := range pairs {
		pairs[i] = pair{
			patientID: store.AddPatient("patient").ID,
			slotID:    store.AddSlot(doctor.ID, testTime.Add(time.Duration(i+1)*30*time.Minute), 1).ID,
		}
	}

	svc := newService(store)

	var wg sync.WaitGroup
	results := make([]*clinic.Appointment, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Reserve(context.Background(), pairs[i].patientID, doctor.ID, pairs[i].slotID, "", "")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "reserve %d", i)
	}

	seen := make(map[int]bool, n)
	numbers := make(map[string]bool, n)
	for _, appt := range results {
		assert.False(t, seen[appt.QueueSequence], "duplicate sequence %d", appt.QueueSequence)
		assert.False(t, numbers[appt.QueueNumber], "duplicate queue number %s", appt.QueueNumber)
		seen[appt.QueueSequence] = true
		numbers[appt.QueueNumber] = true
		assert.GreaterOrEqual(t, appt.QueueSequence, 1)
		assert.LessOrEqual(t, appt.QueueSequence, n)
	}
}

func TestReserveLockBusy(t *testing.T) {
	store := clinictest.NewStore()
	doctor := store.AddDoctor("Dr Tan", "A")
	patient := store.AddPatient("Alice")
	slot := store.AddSlot(doctor.ID, testTime.Add(30*time.Minute), 1)

	svc := booking.NewService(
		store,
		busyLocker{},
		nil,
		clinic.FixedClock{Time: testTime},
		config.Config{QueueNumberWidth: 3},
		zerolog.Nop(),
	)

	_, err := svc.Reserve(context.Background(), patient.ID, doctor.ID, slot.ID, "", "")
	assert.ErrorIs(t, err, clinic.ErrConcurrencyConflict)

	// Nothing committed, so the slot is untouched.
	assert.True(t, store.Slot(slot.ID).IsAvailable)
	assert.Equal(t, 0, store.Slot(slot.ID).BookedCount)
}

func TestCancelRestoresAvailabilityAndKeepsGap(t *testing.T) {
	store := clinictest.NewStore()
	doctor := store.AddDoctor("Dr Tan", "A")
	p1 := store.AddPatient("Alice")
	p2 := store.AddPatient("Ben")
	s1 := store.AddSlot(doctor.ID, testTime.Add(30*time.Minute), 1)
	s2 := store.AddSlot(doctor.ID, testTime.Add(time.Hour), 1)

	svc := newService(store)

	a1, err := svc.Reserve(context.Background(), p1.ID, doctor.ID, s1.ID, "", "")
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), a1.ID, "patient request")
	require.NoError(t, err)
	assert.Equal(t, clinic.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "patient request", *cancelled.CancelReason)

	assert.True(t, store.Slot(s1.ID).IsAvailable)
	assert.Equal(t, 0, store.Slot(s1.ID).BookedCount)

	// The cancelled sequence is a permanent gap; the next booking takes
	// the next number, never the freed one.
	a2, err := svc.Reserve(context.Background(), p2.ID, doctor.ID, s2.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, a2.QueueSequence)
	assert.Equal(t, "A002", a2.QueueNumber)
}

func TestCancelTerminalAppointment(t *testing.T) {
	store := clinictest.NewStore()
	doctor := store.AddDoctor("Dr Tan", "A")
	patient := store.AddPatient("Alice")
	slot := store.AddSlot(doctor.ID, testTime.Add(30*time.Minute), 1)

	svc := newService(store)

	appt, err := svc.Reserve(context.Background(), patient.ID, doctor.ID, slot.ID, "", "")
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), appt.ID, "first")
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), appt.ID, "second")
	assert.ErrorIs(t, err, clinic.ErrInvalidTransition)
}

// busyLocker simulates a slot lock already held elsewhere.
type busyLocker struct{}

func (busyLocker) WithSlotLock(context.Context, uuid.UUID, func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}
