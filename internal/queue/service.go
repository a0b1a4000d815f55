package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicware/clinic-booking/internal/clinic"
	"github.com/clinicware/clinic-booking/internal/config"
	"github.com/clinicware/clinic-booking/internal/metrics"
)

// Service is the queue progression engine: it owns the per doctor per day
// "now serving" pointer and the appointment status state machine after
// creation. It never reorders patients; serve order is booking order.
type Service struct {
	repo     Repository
	notifier clinic.Notifier
	clock    clinic.Clock
	cfg      config.Config
	log      zerolog.Logger
}

func NewService(repo Repository, notifier clinic.Notifier, clock clinic.Clock, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
		log:      log,
	}
}

// CheckIn marks a confirmed appointment as arrived. Idempotent: a second
// scan of the same QR code succeeds without changing anything.
func (s *Service) CheckIn(ctx context.Context, id uuid.UUID) (*clinic.Appointment, error) {
	now := s.clock.Now()

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !appt.QueueDate.Equal(clinic.DateOnly(now)) {
		return nil, fmt.Errorf("appointment is not for today: %w", clinic.ErrInvalidTransition)
	}

	appt, err = s.repo.CheckIn(ctx, id, now)
	if err != nil {
		return nil, err
	}

	metrics.CheckInsTotal.Inc()
	s.notify(ctx, clinic.Event{
		Type:          clinic.EventPatientArrived,
		AppointmentID: &appt.ID,
		DoctorID:      appt.DoctorID,
		Payload:       map[string]any{"queue_number": appt.QueueNumber},
		OccurredAt:    now,
	})

	return appt, nil
}

// Advance calls the next waiting patient for the doctor: lowest queue
// sequence among arrived appointments, strict FIFO. An empty queue comes
// back as clinic.ErrNoPatientsWaiting, which callers should treat as a
// normal state rather than a failure.
func (s *Service) Advance(ctx context.Context, doctorID uuid.UUID) (*clinic.QueuePointer, *clinic.Appointment, error) {
	now := s.clock.Now()
	day := clinic.DateOnly(now)

	ptr, appt, err := s.repo.AdvanceNext(ctx, doctorID, day, now, s.cfg.MaxInConsultation)
	if err != nil {
		metrics.QueueAdvancesTotal.WithLabelValues(advanceResult(err)).Inc()
		return nil, nil, err
	}

	metrics.QueueAdvancesTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	s.log.Info().
		Str("doctor_id", doctorID.String()).
		Str("queue_number", appt.QueueNumber).
		Msg("queue advanced")

	s.notify(ctx, clinic.Event{
		Type:          clinic.EventQueueAdvanced,
		AppointmentID: &appt.ID,
		DoctorID:      doctorID,
		Payload: map[string]any{
			"queue_number":   appt.QueueNumber,
			"queue_sequence": appt.QueueSequence,
		},
		OccurredAt: now,
	})

	return ptr, appt, nil
}

// Complete finishes the consultation. Deliberately does not pull the next
// patient; the doctor calls Advance again, so a double Complete can never
// skip anyone.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*clinic.Appointment, error) {
	now := s.clock.Now()

	appt, err := s.repo.Complete(ctx, id, now)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, clinic.Event{
		Type:          clinic.EventAppointmentCompleted,
		AppointmentID: &appt.ID,
		DoctorID:      appt.DoctorID,
		Payload:       map[string]any{"queue_number": appt.QueueNumber},
		OccurredAt:    now,
	})

	return appt, nil
}

// MarkNoShow records a no-show once the slot's start time has passed by the
// configured grace window, and frees the slot for walk-ins.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*clinic.Appointment, error) {
	now := s.clock.Now()
	cutoff := now.Add(-s.cfg.GraceWindow)

	appt, err := s.repo.MarkNoShow(ctx, id, cutoff, now)
	if err != nil {
		return nil, err
	}

	metrics.NoShowsTotal.Inc()
	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("queue_number", appt.QueueNumber).
		Msg("no-show recorded")

	s.notify(ctx, clinic.Event{
		Type:          clinic.EventNoShowRecorded,
		AppointmentID: &appt.ID,
		DoctorID:      appt.DoctorID,
		Payload:       map[string]any{"queue_number": appt.QueueNumber},
		OccurredAt:    now,
	})

	return appt, nil
}

// QueueStatus returns the doctor's pointer for today.
func (s *Service) QueueStatus(ctx context.Context, doctorID uuid.UUID) (*clinic.QueuePointer, error) {
	return s.repo.GetQueuePointer(ctx, doctorID, clinic.DateOnly(s.clock.Now()))
}

// SweepNoShows is called periodically by the worker. Each candidate is
// handled independently so one failure does not stall the sweep.
func (s *Service) SweepNoShows(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-s.cfg.GraceWindow)

	candidates, err := s.repo.FindNoShowCandidates(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("find no-show candidates: %w", err)
	}

	for _, appt := range candidates {
		if _, err := s.MarkNoShow(ctx, appt.ID); err != nil {
			// Races with late check-ins and cancellations are expected.
			if errors.Is(err, clinic.ErrInvalidTransition) || errors.Is(err, clinic.ErrGraceNotElapsed) {
				continue
			}
			s.log.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("no-show sweep failed for appointment")
		}
	}

	return nil
}

func (s *Service) notify(ctx context.Context, ev clinic.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", ev.Type).Msg("event delivery failed")
	}
}

func advanceResult(err error) string {
	switch {
	case errors.Is(err, clinic.ErrNoPatientsWaiting):
		return "empty"
	case errors.Is(err, clinic.ErrDoctorBusy):
		return metrics.ResultRejected
	case errors.Is(err, clinic.ErrConcurrencyConflict):
		return metrics.ResultConflict
	default:
		return metrics.ResultError
	}
}
