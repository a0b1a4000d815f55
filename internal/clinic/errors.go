package clinic

import "errors"

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	ErrSlotUnavailable   = errors.New("slot is no longer available")
	ErrSlotInPast        = errors.New("slot date is in the past")
	ErrInvalidTransition = errors.New("invalid appointment status transition")
	ErrGraceNotElapsed   = errors.New("no-show grace window has not elapsed")
	ErrDoctorBusy        = errors.New("doctor has reached the consultation limit")

	// ErrNoPatientsWaiting is an expected empty-queue signal, not a failure.
	ErrNoPatientsWaiting = errors.New("no patients waiting")

	// ErrConcurrencyConflict means a lock could not be taken immediately or
	// the transaction lost a serialization race; nothing was committed and
	// the caller may retry.
	ErrConcurrencyConflict = errors.New("concurrent update in progress, please retry")
)
