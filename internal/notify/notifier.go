package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/clinicware/clinic-booking/internal/clinic"
)

// LogNotifier writes events to the structured log. Useful on its own in dev
// and as the tail of a Multi in prod.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, ev clinic.Event) error {
	e := n.Log.Info().
		Str("event", ev.Type).
		Str("doctor_id", ev.DoctorID.String())
	if ev.AppointmentID != nil {
		e = e.Str("appointment_id", ev.AppointmentID.String())
	}
	e.Fields(map[string]interface{}{"payload": ev.Payload}).Msg("domain event")
	return nil
}

// Outbox persists events to the event_logs table. The delivery collaborator
// (WhatsApp/SMS) tails this table; the core never waits on it.
type Outbox struct {
	pool *pgxpool.Pool
}

func NewOutbox(pool *pgxpool.Pool) *Outbox {
	return &Outbox{pool: pool}
}

func (o *Outbox) Notify(ctx context.Context, ev clinic.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = o.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, doctor_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.Type, ev.AppointmentID, ev.DoctorID, payload, ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

// Multi fans an event out to several notifiers, returning the first error
// after trying them all.
type Multi []clinic.Notifier

func (m Multi) Notify(ctx context.Context, ev clinic.Event) error {
	var firstErr error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
