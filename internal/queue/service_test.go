package queue_test

import (
	"context"
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
	"github.com/clinicware/clinic-booking/internal/queue"
)

var testTime = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

func newService(store *clinictest.Store, cfg config.Config) *queue.Service {
	return queue.NewService(store, nil, clinic.FixedClock{Time: testTime}, cfg, zerolog.Nop())
}

// book creates a confirmed appointment directly through the repository,
// bypassing the reservation service's lock and validation layers.
func book(t *testing.T, store *clinictest.Store, doctorID uuid.UUID, start time.Time) *clinic.Appointment {
	t.Helper()

	patient := store.AddPatient("patient")
	slot := store.AddSlot(doctorID, start, 1)
	appt, err := store.ReserveSlot(context.Background(), booking.ReserveParams{
		SlotID:      slot.ID,
		PatientID:   patient.ID,
		DoctorID:    doctorID,
		Type:        "consultation",
		Today:       testTime,
		NumberWidth: 3,
	})
	require.NoError(t, err)
	return appt
}

func TestCheckInIsIdempotent(t *testing.T) {
	store := clinictest.NewStore()
	doctor := store.AddDoctor("Dr Tan", "A")
	appt := book(t, store, doctor.ID, testTime.Add(30*time.Minute))

	svc := newService(store, config.Config{})

	first, err := svc.CheckIn(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, clinic.StatusArrived, first.Status)
	require.NotNil(t, first.CheckedInAt)

	second, err := svc.CheckIn(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, clinic.StatusArrived, second.Status)
	assert.Equal(t, first.CheckedInAt, second.CheckedInAt)
}

func TestCheckInWrongDay(t *testing.T) {
	store := clinictest.NewStore()
	doctor := store.AddDoctor("Dr Tan", "A")
	appt := book(t, store, doctor.ID, testTime.AddDate(0, 0, 1))

	svc := newService(store, config.Config{})

	_, err := svc.CheckIn(context.Background(), appt.ID)
	assert.ErrorIs(t, err, clinic.ErrInvalidTransition)
}

func TestCheckInAfterCancel(t *testing.T) {
	store := clinictest.NewStore()
	doctor := store.AddDoctor("Dr Tan", "A")
	appt := book(t, store, doctor.ID, testTime.Add(30*time.Minute))

	_, err := store.CancelAppointment(context.Background(), appt.ID, "changed plans", testTime)
	require.NoError(t, err)

	svc := newService(store, config.Config{})

	_, err = svc.CheckIn(context.Background(), appt.ID)
	assert.ErrorIs(t, err, clinic.ErrInvalidTransition)
}

func TestAdvanceServesArrivedInBookingOrder(t *testing.T) {
	store := clinictest.NewStore()
	doctor := store.AddDoctor("Dr Tan", "A")
	a1 := book(t, store, doctor.ID, testTime.Add(30*time.Minute))
	a2 := book(t, store, doctor.ID, testTime.Add(time.Hour))
	a3 := book(t, store, doctor.ID, testTime.Add(90*time.Minute))

	svc := newService(store, config.Config{})

	// A002 checks in before A001; serve order still follows the sequence.
	_, err := svc.CheckIn(context.Background(), a2.ID)
	require.NoError(t, err)
	_, err = svc.CheckIn(context.Background(), a1.ID)
	require.NoError(t, err)

	ptr, serving, err := svc.Advance(context.Background(), doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, a1.ID, serving.ID)
	assert.Equal(t, clinic.StatusInConsultation, serving.Status)
	assert.Equal(t, "A001", ptr.CurrentNumber)
	assert.Equal(t, 1, ptr.CurrentSequence)

	// A001 is in consultation now, so the next call picks A002 and can
	// never pull the same appointment twice.
	_, serving, err = svc.Advance(context.Background(), doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, a2.ID, serving.ID)

	// A003 never checked in and is therefore not waiting.
	_, _, err = svc.Advance(context.Background(), doctor.ID)
	assert.ErrorIs(t, err, clinic.ErrNoPatientsWaiting)
	assert.Equal(t, clinic.StatusConfirmed, store.Appointment(a3.ID).Status)
}

func TestAdvanceEmptyQueue(t *testing.T) {
	store := clinictest.NewStore()
	doctor := store.AddDoctor("Dr Tan", "A")

	svc := newService(store, config.Config{})

	_, _, err := svc.Advance(context.Background(), doctor.ID)
	assert.ErrorIs(t, err, clinic.ErrNoPatientsWaiting)
}

func TestAdvanceRespectsConsultationCap(t *testing.T) {
	store := clinictest.NewStore()
	doctor := store.AddDoctor("Dr Tan", "A")
	a1 := book(t, store, doctor.ID, testTime.Add(30*time.Minute))
	a2 := book(t, store, doctor.ID, testTime.Add(time.Hour))

	svc := newService(store, config.Config{MaxInConsultation: 1})

	for _, id := range []uuid.UUID{a1.ID, a2.ID} {
		_, err := svc.CheckIn(context.Background(), id)
		require.NoError(t, err)
	}

	_, _, err := svc.Advance(context.Background(), doctor.ID)
	require.NoError(t, err)

	_, _, err = svc.Advance(context.Background(), doctor.ID)
	assert.ErrorIs(t, err, clinic.ErrDoctorBusy)

	// Finishing the first consultation frees the seat.
	_, err = svc.Complete(context.Background(), a1.ID)
	require.NoError(t, err)

	_, serving, err := svc.Advance(context.Background(), doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, a2.ID, serving.ID)
}

func TestCompleteClearsPointerAndCounts(t *testing.T) {
	store := clinictest.NewStore()
	doctor := store.AddDoctor("Dr Tan", "A")
	appt := book(t, store, doctor.ID, testTime.Add(30*time.Minute))

	svc := newService(store, config.Config{})

	_, err := svc.CheckIn(context.Background(), appt.ID)
	require.NoError(t, err)
	_, _, err = svc.Advance(context.Background(), doctor.ID)
	require.NoError(t, err)

	done, err := svc.Complete(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, clinic.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	ptr, err := svc.QueueStatus(context.Background(), doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, ptr.TotalSeen)
	assert.Empty(t, ptr.CurrentNumber)
	assert.Zero(t, ptr.CurrentSequence)
}

func TestCompleteBeforeConsultation(t *testing.T) {
	store := clinictest.NewStore()
	doctor := store.AddDoctor("Dr Tan", "A")
	appt := book(t, store, doctor.ID, testTime.Add(30*time.Minute))

	svc := newService(store, config.Config{})

	// confirmed -> completed skips in_consultation and is illegal.
	_, err := svc.Complete(context.Background(), appt.ID)
	assert.ErrorIs(t, err, clinic.ErrInvalidTransition)
}

func TestMarkNoShowGraceWindow(t *testing.T) {
	store := clinictest.NewStore()
	doctor := store.AddDoctor("Dr Tan", "A")
	cfg := config.Config{GraceWindow: 15 * time.Minute}

	svc := newService(store, cfg)

	// Slot started five minutes ago; grace has not elapsed yet.
	early := book(t, store, doctor.ID, testTime.Add(-5*time.Minute))
	_, err := svc.MarkNoShow(context.Background(), early.ID)
	assert.ErrorIs(t, err, clinic.ErrGraceNotElapsed)
	assert.Equal(t, clinic.StatusConfirmed, store.Appointment(early.ID).Status)

	// Twenty minutes past start clears the window; the slot is released.
	late := book(t, store, doctor.ID, testTime.Add(-20*time.Minute))
	marked, err := svc.MarkNoShow(context.Background(), late.ID)
	require.NoError(t, err)
	assert.Equal(t, clinic.StatusNoShow, marked.Status)
	assert.True(t, store.Slot(late.SlotID).IsAvailable)
	assert.Equal(t, 0, store.Slot(late.SlotID).BookedCount)

	ptr, err := svc.QueueStatus(context.Background(), doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, ptr.TotalNoShow)
}

func TestMarkNoShowInConsultation(t *testing.T) {
	store := clinictest.NewStore()
	doctor := store.AddDoctor("Dr Tan", "A")
	appt := book(t, store, doctor.ID, testTime.Add(-30*time.Minute))

	svc := newService(store, config.Config{GraceWindow: 15 * time.Minute})

	_, err := svc.CheckIn(context.Background(), appt.ID)
	require.NoError(t, err)
	_, _, err = svc.Advance(context.Background(), doctor.ID)
	require.NoError(t, err)

	_, err = svc.MarkNoShow(context.Background(), appt.ID)
	assert.ErrorIs(t, err, clinic.ErrInvalidTransition)
}

func TestSweepNoShows(t *testing.T) {
	store := clinictest.NewStore()
	doctor := store.AddDoctor("Dr Tan", "A")
	cfg := config.Config{GraceWindow: 15 * time.Minute}

	svc := newService(store, cfg)

	overdue := book(t, store, doctor.ID, testTime.Add(-time.Hour))
	upcoming := book(t, store, doctor.ID, testTime.Add(time.Hour))
	seen := book(t, store, doctor.ID, testTime.Add(-45*time.Minute))

	// The third patient was already served; the sweep must leave them alone.
	_, err := svc.CheckIn(context.Background(), seen.ID)
	require.NoError(t, err)
	_, _, err = svc.Advance(context.Background(), doctor.ID)
	require.NoError(t, err)
	_, err = svc.Complete(context.Background(), seen.ID)
	require.NoError(t, err)

	require.NoError(t, svc.SweepNoShows(context.Background()))

	assert.Equal(t, clinic.StatusNoShow, store.Appointment(overdue.ID).Status)
	assert.Equal(t, clinic.StatusConfirmed, store.Appointment(upcoming.ID).Status)
	assert.Equal(t, clinic.StatusCompleted, store.Appointment(seen.ID).Status)
	assert.True(t, store.Slot(overdue.SlotID).IsAvailable)
}

func TestQueueStatusBeforeAnyActivity(t *testing.T) {
	store := clinictest.NewStore()
	doctor := store.AddDoctor("Dr Tan", "A")

	svc := newService(store, config.Config{})

	ptr, err := svc.QueueStatus(context.Background(), doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, doctor.ID, ptr.DoctorID)
	assert.Zero(t, ptr.TotalQueued)
	assert.Empty(t, ptr.CurrentNumber)
}
