package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicware/clinic-booking/internal/clinic"
)

// Repository contains all DB interactions needed by the queue engine. Every
// mutating method is one transaction; a failed call leaves the pointer and
// all appointment statuses exactly as they were.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*clinic.Appointment, error)

	// GetQueuePointer returns the doctor's pointer for the day, or a zeroed
	// pointer when the day has seen no activity yet.
	GetQueuePointer(ctx context.Context, doctorID uuid.UUID, day time.Time) (*clinic.QueuePointer, error)

	// CheckIn moves a confirmed appointment to arrived. Calling it on an
	// already-arrived appointment is a no-op success so duplicate scans
	// don't surface as errors.
	CheckIn(ctx context.Context, id uuid.UUID, now time.Time) (*clinic.Appointment, error)

	// AdvanceNext picks the arrived appointment with the lowest queue
	// sequence, moves it to in_consultation, and repoints the doctor's
	// queue pointer, all under the pointer row lock so two concurrent
	// advances can never start the same patient. Empty queue returns
	// clinic.ErrNoPatientsWaiting.
	AdvanceNext(ctx context.Context, doctorID uuid.UUID, day, now time.Time, maxInConsult int) (*clinic.QueuePointer, *clinic.Appointment, error)

	// Complete moves in_consultation to completed and bumps the day's seen
	// counter. Never advances the queue on its own.
	Complete(ctx context.Context, id uuid.UUID, now time.Time) (*clinic.Appointment, error)

	// MarkNoShow moves confirmed/arrived to no_show once the slot started
	// at or before cutoff, bumps the no-show counter, and releases the
	// underlying slot in the same transaction.
	MarkNoShow(ctx context.Context, id uuid.UUID, cutoff, now time.Time) (*clinic.Appointment, error)

	// FindNoShowCandidates lists confirmed/arrived appointments whose slot
	// started at or before cutoff. Used by the sweep worker.
	FindNoShowCandidates(ctx context.Context, cutoff time.Time) ([]clinic.Appointment, error)
}
