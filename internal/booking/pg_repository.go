package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicware/clinic-booking/internal/clinic"
	"github.com/clinicware/clinic-booking/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentCols = `id, slot_id, patient_id, doctor_id, queue_date, queue_sequence, queue_number,
	appointment_type, notes, status, created_at, updated_at,
	checked_in_at, started_at, completed_at, cancelled_at, cancel_reason`

// Helpers

func scanDoctor(row pgx.Row) (*clinic.Doctor, error) {
	var d clinic.Doctor
	var specialty *string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&specialty,
		&d.QueuePrefix,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, clinic.ErrDoctorNotFound
		}
		return nil, err
	}

	d.Specialty = specialty
	return &d, nil
}

func scanPatient(row pgx.Row) (*clinic.Patient, error) {
	var p clinic.Patient
	var phone *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&phone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, clinic.ErrPatientNotFound
		}
		return nil, err
	}

	p.Phone = phone
	return &p, nil
}

func scanSlot(row pgx.Row) (*clinic.TimeSlot, error) {
	var s clinic.TimeSlot

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.SlotDate,
		&s.StartTime,
		&s.DurationMins,
		&s.Capacity,
		&s.BookedCount,
		&s.IsAvailable,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, clinic.ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

// ScanAppointment reads a full appointment row in appointmentCols order.
// Shared with the queue engine's repository.
func ScanAppointment(row pgx.Row) (*clinic.Appointment, error) {
	var a clinic.Appointment

	err := row.Scan(
		&a.ID,
		&a.SlotID,
		&a.PatientID,
		&a.DoctorID,
		&a.QueueDate,
		&a.QueueSequence,
		&a.QueueNumber,
		&a.Type,
		&a.Notes,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.CheckedInAt,
		&a.StartedAt,
		&a.CompletedAt,
		&a.CancelledAt,
		&a.CancelReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, clinic.ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*clinic.Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, queue_prefix, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*clinic.Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*clinic.TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, slot_date, start_time, duration_mins, capacity, booked_count, is_available, created_at, updated_at
		FROM time_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ReserveSlot(ctx context.Context, p ReserveParams) (*clinic.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reserve tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the slot row without waiting; a held lock means another booking
	// is in flight and the caller should retry at the application layer.
	slot, err := scanSlot(tx.QueryRow(ctx, `
		SELECT id, doctor_id, slot_date, start_time, duration_mins, capacity, booked_count, is_available, created_at, updated_at
		FROM time_slots
		WHERE id = $1
		FOR UPDATE NOWAIT
	`, p.SlotID))
	if err != nil {
		if db.IsLockConflict(err) {
			return nil, clinic.ErrConcurrencyConflict
		}
		return nil, err
	}

	if slot.DoctorID != p.DoctorID {
		return nil, clinic.ErrSlotNotFound
	}
	if slot.SlotDate.Before(clinic.DateOnly(p.Today)) {
		return nil, clinic.ErrSlotInPast
	}
	if !slot.IsAvailable || slot.BookedCount >= slot.Capacity {
		return nil, clinic.ErrSlotUnavailable
	}

	doctor, err := scanDoctor(tx.QueryRow(ctx, `
		SELECT id, name, specialty, queue_prefix, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, p.DoctorID))
	if err != nil {
		return nil, err
	}

	day := slot.SlotDate

	// The queue pointer row doubles as the per doctor/day sequence lock:
	// holding it serializes sequence assignment across different slots of
	// the same doctor without contending across doctors.
	if _, err := tx.Exec(ctx, `
		INSERT INTO queue_pointers (doctor_id, queue_date)
		VALUES ($1, $2)
		ON CONFLICT (doctor_id, queue_date) DO NOTHING
	`, p.DoctorID, day); err != nil {
		return nil, fmt.Errorf("ensure queue pointer: %w", err)
	}

	var locked int
	if err := tx.QueryRow(ctx, `
		SELECT 1
		FROM queue_pointers
		WHERE doctor_id = $1 AND queue_date = $2
		FOR UPDATE
	`, p.DoctorID, day).Scan(&locked); err != nil {
		if db.IsLockConflict(err) {
			return nil, clinic.ErrConcurrencyConflict
		}
		return nil, fmt.Errorf("lock queue pointer: %w", err)
	}

	var seq int
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(queue_sequence), 0) + 1
		FROM appointments
		WHERE doctor_id = $1 AND queue_date = $2
	`, p.DoctorID, day).Scan(&seq); err != nil {
		return nil, fmt.Errorf("next queue sequence: %w", err)
	}

	number := clinic.FormatQueueNumber(doctor.QueuePrefix, seq, p.NumberWidth)

	appt, err := ScanAppointment(tx.QueryRow(ctx, `
		INSERT INTO appointments (id, slot_id, patient_id, doctor_id, queue_date, queue_sequence, queue_number,
			appointment_type, notes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'confirmed', now(), now())
		RETURNING `+appointmentCols+`
	`, uuid.New(), p.SlotID, p.PatientID, p.DoctorID, day, seq, number, p.Type, p.Notes))
	if err != nil {
		// Duplicate (doctor, day, sequence) means we lost a race despite the
		// pointer lock; nothing committed, safe to retry.
		if db.IsUniqueViolation(err) {
			return nil, clinic.ErrConcurrencyConflict
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE time_slots
		SET booked_count = booked_count + 1,
		    is_available = (booked_count + 1 < capacity),
		    updated_at = now()
		WHERE id = $1
	`, p.SlotID); err != nil {
		return nil, fmt.Errorf("mark slot booked: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE queue_pointers
		SET total_queued = total_queued + 1,
		    updated_at = now()
		WHERE doctor_id = $1 AND queue_date = $2
	`, p.DoctorID, day); err != nil {
		return nil, fmt.Errorf("bump queued count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if db.IsLockConflict(err) {
			return nil, clinic.ErrConcurrencyConflict
		}
		return nil, fmt.Errorf("commit reserve: %w", err)
	}

	return appt, nil
}

func (r *PgRepository) CancelAppointment(ctx context.Context, id uuid.UUID, reason string, now time.Time) (*clinic.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin cancel tx: %w", err)
	}
	defer tx.Rollback(ctx)

	appt, err := ScanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if db.IsLockConflict(err) {
			return nil, clinic.ErrConcurrencyConflict
		}
		return nil, err
	}

	if !clinic.CanTransition(appt.Status, clinic.StatusCancelled) {
		return nil, clinic.ErrInvalidTransition
	}

	appt, err = ScanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    cancelled_at = $2,
		    cancel_reason = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentCols+`
	`, id, now, reason))
	if err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	if err := ReleaseSlotTx(ctx, tx, appt.SlotID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cancel: %w", err)
	}

	return appt, nil
}

// ReleaseSlotTx restores a slot's availability inside an existing
// transaction. The queue engine calls this from its no-show transaction so
// the status change and the slot release commit together.
func ReleaseSlotTx(ctx context.Context, tx pgx.Tx, slotID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE time_slots
		SET booked_count = GREATEST(booked_count - 1, 0),
		    is_available = (GREATEST(booked_count - 1, 0) < capacity),
		    updated_at = now()
		WHERE id = $1
	`, slotID)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}
