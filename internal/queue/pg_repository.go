package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicware/clinic-booking/internal/booking"
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

const pointerCols = `doctor_id, queue_date, current_number, current_sequence,
	total_queued, total_seen, total_no_show, is_active, last_called_at, updated_at`

func scanPointer(row pgx.Row) (*clinic.QueuePointer, error) {
	var p clinic.QueuePointer

	err := row.Scan(
		&p.DoctorID,
		&p.QueueDate,
		&p.CurrentNumber,
		&p.CurrentSequence,
		&p.TotalQueued,
		&p.TotalSeen,
		&p.TotalNoShow,
		&p.IsActive,
		&p.LastCalledAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*clinic.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE id = $1
	`, id)
	return booking.ScanAppointment(row)
}

func (r *PgRepository) GetQueuePointer(ctx context.Context, doctorID uuid.UUID, day time.Time) (*clinic.QueuePointer, error) {
	ptr, err := scanPointer(r.pool.QueryRow(ctx, `
		SELECT `+pointerCols+`
		FROM queue_pointers
		WHERE doctor_id = $1 AND queue_date = $2
	`, doctorID, day))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &clinic.QueuePointer{DoctorID: doctorID, QueueDate: day, IsActive: true}, nil
		}
		return nil, err
	}
	return ptr, nil
}

func (r *PgRepository) CheckIn(ctx context.Context, id uuid.UUID, now time.Time) (*clinic.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin check-in tx: %w", err)
	}
	defer tx.Rollback(ctx)

	appt, err := booking.ScanAppointment(tx.QueryRow(ctx, `
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

	// Duplicate scan: already arrived is success, not an error.
	if appt.Status == clinic.StatusArrived {
		return appt, tx.Commit(ctx)
	}

	if !clinic.CanTransition(appt.Status, clinic.StatusArrived) {
		return nil, clinic.ErrInvalidTransition
	}

	appt, err = booking.ScanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'arrived',
		    checked_in_at = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentCols+`
	`, id, now))
	if err != nil {
		return nil, fmt.Errorf("check in appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit check-in: %w", err)
	}

	return appt, nil
}

func (r *PgRepository) AdvanceNext(ctx context.Context, doctorID uuid.UUID, day, now time.Time, maxInConsult int) (*clinic.QueuePointer, *clinic.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin advance tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockPointer(ctx, tx, doctorID, day); err != nil {
		return nil, nil, err
	}

	if maxInConsult > 0 {
		var busy int
		if err := tx.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM appointments
			WHERE doctor_id = $1 AND queue_date = $2 AND status = 'in_consultation'
		`, doctorID, day).Scan(&busy); err != nil {
			return nil, nil, fmt.Errorf("count consultations: %w", err)
		}
		if busy >= maxInConsult {
			return nil, nil, clinic.ErrDoctorBusy
		}
	}

	// Strict FIFO by booking order; cancellations leave gaps that are
	// simply skipped over.
	appt, err := booking.ScanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE doctor_id = $1 AND queue_date = $2 AND status = 'arrived'
		ORDER BY queue_sequence ASC
		LIMIT 1
		FOR UPDATE
	`, doctorID, day))
	if err != nil {
		if errors.Is(err, clinic.ErrAppointmentNotFound) {
			return nil, nil, clinic.ErrNoPatientsWaiting
		}
		if db.IsLockConflict(err) {
			return nil, nil, clinic.ErrConcurrencyConflict
		}
		return nil, nil, err
	}

	appt, err = booking.ScanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'in_consultation',
		    started_at = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentCols+`
	`, appt.ID, now))
	if err != nil {
		return nil, nil, fmt.Errorf("start consultation: %w", err)
	}

	ptr, err := scanPointer(tx.QueryRow(ctx, `
		UPDATE queue_pointers
		SET current_number = $3,
		    current_sequence = $4,
		    last_called_at = $5,
		    updated_at = now()
		WHERE doctor_id = $1 AND queue_date = $2
		RETURNING `+pointerCols+`
	`, doctorID, day, appt.QueueNumber, appt.QueueSequence, now))
	if err != nil {
		return nil, nil, fmt.Errorf("update queue pointer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if db.IsLockConflict(err) {
			return nil, nil, clinic.ErrConcurrencyConflict
		}
		return nil, nil, fmt.Errorf("commit advance: %w", err)
	}

	return ptr, appt, nil
}

func (r *PgRepository) Complete(ctx context.Context, id uuid.UUID, now time.Time) (*clinic.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin complete tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Peek first, then take locks in pointer -> appointment order so this
	// cannot deadlock against a concurrent advance.
	appt, err := booking.ScanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE id = $1
	`, id))
	if err != nil {
		return nil, err
	}

	if err := lockPointer(ctx, tx, appt.DoctorID, appt.QueueDate); err != nil {
		return nil, err
	}

	appt, err = booking.ScanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return nil, err
	}

	if !clinic.CanTransition(appt.Status, clinic.StatusCompleted) {
		return nil, clinic.ErrInvalidTransition
	}

	appt, err = booking.ScanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'completed',
		    completed_at = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentCols+`
	`, id, now))
	if err != nil {
		return nil, fmt.Errorf("complete appointment: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE queue_pointers
		SET total_seen = total_seen + 1,
		    updated_at = now()
		WHERE doctor_id = $1 AND queue_date = $2
	`, appt.DoctorID, appt.QueueDate); err != nil {
		return nil, fmt.Errorf("bump seen count: %w", err)
	}

	// Clear the "now serving" display when this was the patient it showed
	// and no other consultation is still running.
	var remaining int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE doctor_id = $1 AND queue_date = $2 AND status = 'in_consultation'
	`, appt.DoctorID, appt.QueueDate).Scan(&remaining); err != nil {
		return nil, fmt.Errorf("count consultations: %w", err)
	}
	if remaining == 0 {
		if _, err := tx.Exec(ctx, `
			UPDATE queue_pointers
			SET current_number = '',
			    current_sequence = 0,
			    updated_at = now()
			WHERE doctor_id = $1 AND queue_date = $2 AND current_sequence = $3
		`, appt.DoctorID, appt.QueueDate, appt.QueueSequence); err != nil {
			return nil, fmt.Errorf("clear queue pointer: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit complete: %w", err)
	}

	return appt, nil
}

func (r *PgRepository) MarkNoShow(ctx context.Context, id uuid.UUID, cutoff, now time.Time) (*clinic.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin no-show tx: %w", err)
	}
	defer tx.Rollback(ctx)

	appt, err := booking.ScanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE id = $1
	`, id))
	if err != nil {
		return nil, err
	}

	if err := lockPointer(ctx, tx, appt.DoctorID, appt.QueueDate); err != nil {
		return nil, err
	}

	appt, err = booking.ScanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return nil, err
	}

	if !clinic.CanTransition(appt.Status, clinic.StatusNoShow) {
		return nil, clinic.ErrInvalidTransition
	}

	var slotStart time.Time
	if err := tx.QueryRow(ctx, `
		SELECT start_time
		FROM time_slots
		WHERE id = $1
		FOR UPDATE
	`, appt.SlotID).Scan(&slotStart); err != nil {
		if db.IsLockConflict(err) {
			return nil, clinic.ErrConcurrencyConflict
		}
		return nil, fmt.Errorf("load slot start: %w", err)
	}

	if slotStart.After(cutoff) {
		return nil, clinic.ErrGraceNotElapsed
	}

	appt, err = booking.ScanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'no_show',
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentCols+`
	`, id))
	if err != nil {
		return nil, fmt.Errorf("mark no-show: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE queue_pointers
		SET total_no_show = total_no_show + 1,
		    updated_at = now()
		WHERE doctor_id = $1 AND queue_date = $2
	`, appt.DoctorID, appt.QueueDate); err != nil {
		return nil, fmt.Errorf("bump no-show count: %w", err)
	}

	// Free the slot in the same transaction so a walk-in can reuse it.
	if err := booking.ReleaseSlotTx(ctx, tx, appt.SlotID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		if db.IsLockConflict(err) {
			return nil, clinic.ErrConcurrencyConflict
		}
		return nil, fmt.Errorf("commit no-show: %w", err)
	}

	return appt, nil
}

func (r *PgRepository) FindNoShowCandidates(ctx context.Context, cutoff time.Time) ([]clinic.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+prefixedAppointmentCols("a")+`
		FROM appointments a
		JOIN time_slots s ON s.id = a.slot_id
		WHERE a.status IN ('confirmed', 'arrived')
		  AND s.start_time <= $1
		ORDER BY s.start_time ASC
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []clinic.Appointment
	for rows.Next() {
		a, err := booking.ScanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func prefixedAppointmentCols(alias string) string {
	return alias + `.id, ` + alias + `.slot_id, ` + alias + `.patient_id, ` + alias + `.doctor_id, ` +
		alias + `.queue_date, ` + alias + `.queue_sequence, ` + alias + `.queue_number, ` +
		alias + `.appointment_type, ` + alias + `.notes, ` + alias + `.status, ` +
		alias + `.created_at, ` + alias + `.updated_at, ` + alias + `.checked_in_at, ` +
		alias + `.started_at, ` + alias + `.completed_at, ` + alias + `.cancelled_at, ` + alias + `.cancel_reason`
}

// lockPointer upserts the doctor/day pointer row and takes its row lock,
// serializing queue mutations per doctor per day.
func lockPointer(ctx context.Context, tx pgx.Tx, doctorID uuid.UUID, day time.Time) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO queue_pointers (doctor_id, queue_date)
		VALUES ($1, $2)
		ON CONFLICT (doctor_id, queue_date) DO NOTHING
	`, doctorID, day); err != nil {
		return fmt.Errorf("ensure queue pointer: %w", err)
	}

	var locked int
	if err := tx.QueryRow(ctx, `
		SELECT 1
		FROM queue_pointers
		WHERE doctor_id = $1 AND queue_date = $2
		FOR UPDATE
	`, doctorID, day).Scan(&locked); err != nil {
		if db.IsLockConflict(err) {
			return clinic.ErrConcurrencyConflict
		}
		return fmt.Errorf("lock queue pointer: %w", err)
	}

	return nil
}
