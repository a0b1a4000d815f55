package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicware/clinic-booking/internal/clinic"
)

// ReserveParams carries everything the reservation transaction needs.
// Today is the caller's authoritative calendar date; NumberWidth controls
// queue label padding.
type ReserveParams struct {
	SlotID      uuid.UUID
	PatientID   uuid.UUID
	DoctorID    uuid.UUID
	Type        string
	Notes       string
	Today       time.Time
	NumberWidth int
}

// Repository contains all DB interactions needed by the reservation service.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*clinic.Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*clinic.Patient, error)
	GetSlotByID(ctx context.Context, id uuid.UUID) (*clinic.TimeSlot, error)

	// ReserveSlot runs the whole claim as one transaction: lock the slot
	// row, re-check availability, serialize sequence assignment on the
	// doctor/day queue pointer row, insert the appointment, and mark the
	// slot booked. Either all of it commits or none of it does.
	ReserveSlot(ctx context.Context, p ReserveParams) (*clinic.Appointment, error)

	// CancelAppointment atomically cancels and releases the slot. Other
	// appointments' sequence numbers are never touched; the gap stays.
	CancelAppointment(ctx context.Context, id uuid.UUID, reason string, now time.Time) (*clinic.Appointment, error)
}
