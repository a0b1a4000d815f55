package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicware/clinic-booking/internal/clinic"
)

type ReserveRequest struct {
	PatientID string `json:"patient_id" validate:"required,uuid"`
	DoctorID  string `json:"doctor_id" validate:"required,uuid"`
	SlotID    string `json:"slot_id" validate:"required,uuid"`
	Type      string `json:"type" validate:"omitempty,max=64"`
	Notes     string `json:"notes" validate:"omitempty,max=2000"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type AppointmentResponse struct {
	ID            uuid.UUID  `json:"id"`
	SlotID        uuid.UUID  `json:"slot_id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	QueueDate     string     `json:"queue_date"`
	QueueSequence int        `json:"queue_sequence"`
	QueueNumber   string     `json:"queue_number"`
	Status        string     `json:"status"`
	CheckedInAt   *time.Time `json:"checked_in_at,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

type QueuePointerResponse struct {
	DoctorID        uuid.UUID  `json:"doctor_id"`
	QueueDate       string     `json:"queue_date"`
	CurrentNumber   string     `json:"current_number"`
	CurrentSequence int        `json:"current_sequence"`
	TotalQueued     int        `json:"total_queued"`
	TotalSeen       int        `json:"total_seen"`
	TotalNoShow     int        `json:"total_no_show"`
	LastCalledAt    *time.Time `json:"last_called_at,omitempty"`
}

type AdvanceResponse struct {
	Waiting    bool                  `json:"waiting"`
	NowServing *AppointmentResponse  `json:"now_serving,omitempty"`
	Pointer    *QueuePointerResponse `json:"pointer,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *clinic.Appointment) *AppointmentResponse {
	return &AppointmentResponse{
		ID:            a.ID,
		SlotID:        a.SlotID,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		QueueDate:     a.QueueDate.Format("2006-01-02"),
		QueueSequence: a.QueueSequence,
		QueueNumber:   a.QueueNumber,
		Status:        string(a.Status),
		CheckedInAt:   a.CheckedInAt,
		StartedAt:     a.StartedAt,
		CompletedAt:   a.CompletedAt,
	}
}

func toPointerResponse(p *clinic.QueuePointer) *QueuePointerResponse {
	return &QueuePointerResponse{
		DoctorID:        p.DoctorID,
		QueueDate:       p.QueueDate.Format("2006-01-02"),
		CurrentNumber:   p.CurrentNumber,
		CurrentSequence: p.CurrentSequence,
		TotalQueued:     p.TotalQueued,
		TotalSeen:       p.TotalSeen,
		TotalNoShow:     p.TotalNoShow,
		LastCalledAt:    p.LastCalledAt,
	}
}
