package clinictest_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicware/clinic-booking/internal/booking"
	"github.com/clinicware/clinic-booking/internal/clinic"
	"github.com/clinicware/clinic-booking/internal/clinic/clinictest"
	"github.com/clinicware/clinic-booking/internal/config"
	"github.com/clinicware/clinic-booking/internal/queue"
	redisclient "github.com/clinicware/clinic-booking/internal/redis"
)

// TestClinicMorningFlow walks a doctor's morning end to end: two bookings,
// a losing concurrent attempt, check-ins out of order, and the queue being
// served strictly in booking order.
func TestClinicMorningFlow(t *testing.T) {
	ctx := context.Background()
	openAt := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	clock := clinic.FixedClock{Time: openAt}
	cfg := config.Config{QueueNumberWidth: 3, GraceWindow: 15 * time.Minute}

	store := clinictest.NewStore()
	bookingSvc := booking.NewService(store, redisclient.NoopLocker{}, nil, clock, cfg, zerolog.Nop())
	queueSvc := queue.NewService(store, nil, clock, cfg, zerolog.Nop())

	doctor := store.AddDoctor("Dr Tan", "A")
	p1 := store.AddPatient("Alice")
	p2 := store.AddPatient("Ben")
	p3 := store.AddPatient("Carol")
	s1 := store.AddSlot(doctor.ID, openAt.Add(time.Hour), 1)
	s2 := store.AddSlot(doctor.ID, openAt.Add(90*time.Minute), 1)

	// Two patients book; queue numbers come out in booking order.
	a1, err := bookingSvc.Reserve(ctx, p1.ID, doctor.ID, s1.ID, "consultation", "")
	require.NoError(t, err)
	assert.Equal(t, "A001", a1.QueueNumber)

	a2, err := bookingSvc.Reserve(ctx, p2.ID, doctor.ID, s2.ID, "consultation", "")
	require.NoError(t, err)
	assert.Equal(t, "A002", a2.QueueNumber)

	// A third patient races for an already-taken slot and loses cleanly.
	_, err = bookingSvc.Reserve(ctx, p3.ID, doctor.ID, s1.ID, "consultation", "")
	assert.ErrorIs(t, err, clinic.ErrSlotUnavailable)

	// Ben arrives first, Alice later; arrival order does not reorder serving.
	_, err = queueSvc.CheckIn(ctx, a2.ID)
	require.NoError(t, err)
	_, err = queueSvc.CheckIn(ctx, a1.ID)
	require.NoError(t, err)

	ptr, serving, err := queueSvc.Advance(ctx, doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, a1.ID, serving.ID)
	assert.Equal(t, "A001", ptr.CurrentNumber)

	_, err = queueSvc.Complete(ctx, a1.ID)
	require.NoError(t, err)

	ptr, serving, err = queueSvc.Advance(ctx, doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, a2.ID, serving.ID)
	assert.Equal(t, "A002", ptr.CurrentNumber)

	_, err = queueSvc.Complete(ctx, a2.ID)
	require.NoError(t, err)

	// Queue drained; the pointer shows the day's tallies.
	_, _, err = queueSvc.Advance(ctx, doctor.ID)
	assert.ErrorIs(t, err, clinic.ErrNoPatientsWaiting)

	status, err := queueSvc.QueueStatus(ctx, doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, status.TotalQueued)
	assert.Equal(t, 2, status.TotalSeen)
	assert.Zero(t, status.TotalNoShow)
	assert.Empty(t, status.CurrentNumber)
}
