package clinic

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventPatientArrived       = "PATIENT_ARRIVED"
	EventQueueAdvanced        = "QUEUE_ADVANCED"
	EventNoShowRecorded       = "NO_SHOW_RECORDED"
)

// Event is plain data handed to the notification collaborator after a
// successful commit. Delivery never blocks or rolls back the transaction
// that produced it.
type Event struct {
	Type          string
	AppointmentID *uuid.UUID
	DoctorID      uuid.UUID
	Payload       map[string]any
	OccurredAt    time.Time
}

// Notifier consumes post-commit events. Implementations must be cheap;
// anything slow (WhatsApp, SMS, PDF) belongs behind its own dispatcher.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}
