package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/clinicware/clinic-booking/internal/clinic"
)

// BookingService is the reservation side of the core.
type BookingService interface {
	Reserve(ctx context.Context, patientID, doctorID, slotID uuid.UUID, apptType, notes string) (*clinic.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*clinic.Appointment, error)
}

// QueueService is the progression side of the core.
type QueueService interface {
	CheckIn(ctx context.Context, id uuid.UUID) (*clinic.Appointment, error)
	Advance(ctx context.Context, doctorID uuid.UUID) (*clinic.QueuePointer, *clinic.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID) (*clinic.Appointment, error)
	MarkNoShow(ctx context.Context, id uuid.UUID) (*clinic.Appointment, error)
	QueueStatus(ctx context.Context, doctorID uuid.UUID) (*clinic.QueuePointer, error)
}

var validate = validator.New()

func reserveHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReserveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
			return
		}

		patientID, _ := uuid.Parse(req.PatientID)
		doctorID, _ := uuid.Parse(req.DoctorID)
		slotID, _ := uuid.Parse(req.SlotID)

		appt, err := svc.Reserve(r.Context(), patientID, doctorID, slotID, req.Type, req.Notes)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func cancelHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req CancelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
			return
		}

		appt, err := svc.Cancel(r.Context(), id, req.Reason)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func checkInHandler(svc QueueService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.CheckIn(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func advanceHandler(svc QueueService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		ptr, appt, err := svc.Advance(r.Context(), doctorID)
		if err != nil {
			// An empty queue is a normal state, not a failure.
			if errors.Is(err, clinic.ErrNoPatientsWaiting) {
				writeJSON(w, http.StatusOK, AdvanceResponse{Waiting: false})
				return
			}
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AdvanceResponse{
			Waiting:    true,
			NowServing: toAppointmentResponse(appt),
			Pointer:    toPointerResponse(ptr),
		})
	}
}

func completeHandler(svc QueueService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.Complete(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func noShowHandler(svc QueueService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.MarkNoShow(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func queueStatusHandler(svc QueueService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		ptr, err := svc.QueueStatus(r.Context(), doctorID)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toPointerResponse(ptr))
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, clinic.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, clinic.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, clinic.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, clinic.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, clinic.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "slot no longer available, please choose another")
	case errors.Is(err, clinic.ErrSlotInPast):
		writeError(w, http.StatusUnprocessableEntity, "slot_in_past", err.Error())
	case errors.Is(err, clinic.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, clinic.ErrGraceNotElapsed):
		writeError(w, http.StatusUnprocessableEntity, "grace_not_elapsed", err.Error())
	case errors.Is(err, clinic.ErrDoctorBusy):
		writeError(w, http.StatusConflict, "doctor_busy", err.Error())
	case errors.Is(err, clinic.ErrConcurrencyConflict):
		writeError(w, http.StatusConflict, "concurrency_conflict", "another update is in progress, please retry")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
