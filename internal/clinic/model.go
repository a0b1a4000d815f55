package clinic

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending        AppointmentStatus = "pending"
	StatusConfirmed      AppointmentStatus = "confirmed"
	StatusArrived        AppointmentStatus = "arrived"
	StatusInConsultation AppointmentStatus = "in_consultation"
	StatusCompleted      AppointmentStatus = "completed"
	StatusNoShow         AppointmentStatus = "no_show"
	StatusCancelled      AppointmentStatus = "cancelled"
)

// transitions is the full appointment state machine. Anything not listed
// here is rejected with ErrInvalidTransition.
var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:        {StatusConfirmed},
	StatusConfirmed:      {StatusArrived, StatusCancelled, StatusNoShow},
	StatusArrived:        {StatusInConsultation, StatusCancelled, StatusNoShow},
	StatusInConsultation: {StatusCompleted},
}

// CanTransition reports whether moving an appointment from one status to
// another is legal.
func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s AppointmentStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

type Doctor struct {
	ID          uuid.UUID
	Name        string
	Specialty   *string
	QueuePrefix string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type TimeSlot struct {
	ID           uuid.UUID
	DoctorID     uuid.UUID
	SlotDate     time.Time
	StartTime    time.Time
	DurationMins int
	Capacity     int
	BookedCount  int
	IsAvailable  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Appointment struct {
	ID            uuid.UUID
	SlotID        uuid.UUID
	PatientID     uuid.UUID
	DoctorID      uuid.UUID
	QueueDate     time.Time
	QueueSequence int
	QueueNumber   string
	Type          string
	Notes         string
	Status        AppointmentStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CheckedInAt   *time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	CancelledAt   *time.Time
	CancelReason  *string
}

// QueuePointer is the per doctor per day "now serving" record. One row per
// (doctor, date); current sequence is zero when nobody is being served.
type QueuePointer struct {
	DoctorID        uuid.UUID
	QueueDate       time.Time
	CurrentNumber   string
	CurrentSequence int
	TotalQueued     int
	TotalSeen       int
	TotalNoShow     int
	IsActive        bool
	LastCalledAt    *time.Time
	UpdatedAt       time.Time
}

// FormatQueueNumber renders the human-readable queue label from a doctor's
// letter prefix and an assigned sequence, e.g. ("A", 7, 3) -> "A007".
func FormatQueueNumber(prefix string, sequence, width int) string {
	if width <= 0 {
		width = 3
	}
	return fmt.Sprintf("%s%0*d", prefix, width, sequence)
}

// DateOnly truncates a timestamp to its calendar date at UTC midnight, which
// matches how Postgres DATE columns come back through pgx.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
