package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicware/clinic-booking/internal/clinic"
	"github.com/clinicware/clinic-booking/internal/config"
	"github.com/clinicware/clinic-booking/internal/metrics"
	redisclient "github.com/clinicware/clinic-booking/internal/redis"
)

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	notifier clinic.Notifier
	clock    clinic.Clock
	cfg      config.Config
	log      zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, notifier clinic.Notifier, clock clinic.Clock, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
		log:      log,
	}
}

// Reserve claims a slot for a patient and assigns the next queue number for
// the doctor's day. The Redis slot lock fails fast when another booking for
// the same slot is in flight; the row locks inside ReserveSlot make the
// claim itself atomic.
func (s *Service) Reserve(ctx context.Context, patientID, doctorID, slotID uuid.UUID, apptType, notes string) (*clinic.Appointment, error) {
	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, clinic.ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	if apptType == "" {
		apptType = "consultation"
	}

	var created *clinic.Appointment

	err := s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		appt, err := s.repo.ReserveSlot(lockCtx, ReserveParams{
			SlotID:      slotID,
			PatientID:   patientID,
			DoctorID:    doctorID,
			Type:        apptType,
			Notes:       notes,
			Today:       s.clock.Now(),
			NumberWidth: s.cfg.QueueNumberWidth,
		})
		if err != nil {
			return err
		}
		created = appt
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			err = clinic.ErrConcurrencyConflict
		}
		metrics.ReservationsTotal.WithLabelValues(reserveResult(err)).Inc()
		return nil, err
	}

	metrics.ReservationsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	s.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("doctor_id", doctorID.String()).
		Str("queue_number", created.QueueNumber).
		Msg("slot reserved")

	s.notify(ctx, clinic.Event{
		Type:          clinic.EventAppointmentConfirmed,
		AppointmentID: &created.ID,
		DoctorID:      doctorID,
		Payload: map[string]any{
			"patient_id":   patientID.String(),
			"slot_id":      slotID.String(),
			"queue_number": created.QueueNumber,
		},
		OccurredAt: s.clock.Now(),
	})

	return created, nil
}

// Cancel moves a cancellable appointment to cancelled and restores the
// slot's availability. Sequence numbers of other appointments are untouched.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*clinic.Appointment, error) {
	appt, err := s.repo.CancelAppointment(ctx, id, reason, s.clock.Now())
	if err != nil {
		metrics.CancellationsTotal.WithLabelValues(reserveResult(err)).Inc()
		return nil, err
	}

	metrics.CancellationsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("reason", reason).
		Msg("appointment cancelled")

	s.notify(ctx, clinic.Event{
		Type:          clinic.EventAppointmentCancelled,
		AppointmentID: &appt.ID,
		DoctorID:      appt.DoctorID,
		Payload: map[string]any{
			"reason":       reason,
			"queue_number": appt.QueueNumber,
		},
		OccurredAt: s.clock.Now(),
	})

	return appt, nil
}

func (s *Service) notify(ctx context.Context, ev clinic.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", ev.Type).Msg("event delivery failed")
	}
}

func reserveResult(err error) string {
	switch {
	case errors.Is(err, clinic.ErrConcurrencyConflict):
		return metrics.ResultConflict
	case errors.Is(err, clinic.ErrSlotUnavailable),
		errors.Is(err, clinic.ErrSlotInPast),
		errors.Is(err, clinic.ErrSlotNotFound),
		errors.Is(err, clinic.ErrInvalidTransition),
		errors.Is(err, clinic.ErrAppointmentNotFound),
		errors.Is(err, clinic.ErrPatientNotFound),
		errors.Is(err, clinic.ErrDoctorNotFound):
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}
