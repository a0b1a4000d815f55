// Package clinictest provides an in-memory store implementing both the
// reservation and queue repositories. The single mutex stands in for the
// row locks of the Postgres implementation, so service-level concurrency
// properties can be exercised without a database.
package clinictest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicware/clinic-booking/internal/booking"
	"github.com/clinicware/clinic-booking/internal/clinic"
)

type Store struct {
	mu       sync.Mutex
	doctors  map[uuid.UUID]*clinic.Doctor
	patients map[uuid.UUID]*clinic.Patient
	slots    map[uuid.UUID]*clinic.TimeSlot
	appts    map[uuid.UUID]*clinic.Appointment
	pointers map[string]*clinic.QueuePointer
}

func NewStore() *Store {
	return &Store{
		doctors:  make(map[uuid.UUID]*clinic.Doctor),
		patients: make(map[uuid.UUID]*clinic.Patient),
		slots:    make(map[uuid.UUID]*clinic.TimeSlot),
		appts:    make(map[uuid.UUID]*clinic.Appointment),
		pointers: make(map[string]*clinic.QueuePointer),
	}
}

// Fixture helpers

func (s *Store) AddDoctor(name, prefix string) *clinic.Doctor {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := &clinic.Doctor{
		ID:          uuid.New(),
		Name:        name,
		QueuePrefix: prefix,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	s.doctors[d.ID] = d
	return d
}

func (s *Store) AddPatient(name string) *clinic.Patient {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &clinic.Patient{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.patients[p.ID] = p
	return p
}

func (s *Store) AddSlot(doctorID uuid.UUID, start time.Time, capacity int) *clinic.TimeSlot {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := &clinic.TimeSlot{
		ID:           uuid.New(),
		DoctorID:     doctorID,
		SlotDate:     clinic.DateOnly(start),
		StartTime:    start,
		DurationMins: 30,
		Capacity:     capacity,
		IsAvailable:  true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	s.slots[slot.ID] = slot
	return slot
}

// Slot returns a copy of the slot's current state.
func (s *Store) Slot(id uuid.UUID) clinic.TimeSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.slots[id]
}

// Appointment returns a copy of the appointment's current state.
func (s *Store) Appointment(id uuid.UUID) clinic.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.appts[id]
}

// booking.Repository

func (s *Store) GetDoctorByID(_ context.Context, id uuid.UUID) (*clinic.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.doctors[id]
	if !ok {
		return nil, clinic.ErrDoctorNotFound
	}
	out := *d
	return &out, nil
}

func (s *Store) GetPatientByID(_ context.Context, id uuid.UUID) (*clinic.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patients[id]
	if !ok {
		return nil, clinic.ErrPatientNotFound
	}
	out := *p
	return &out, nil
}

func (s *Store) GetSlotByID(_ context.Context, id uuid.UUID) (*clinic.TimeSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[id]
	if !ok {
		return nil, clinic.ErrSlotNotFound
	}
	out := *slot
	return &out, nil
}

func (s *Store) ReserveSlot(_ context.Context, p booking.ReserveParams) (*clinic.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[p.SlotID]
	if !ok || slot.DoctorID != p.DoctorID {
		return nil, clinic.ErrSlotNotFound
	}
	if slot.SlotDate.Before(clinic.DateOnly(p.Today)) {
		return nil, clinic.ErrSlotInPast
	}
	if !slot.IsAvailable || slot.BookedCount >= slot.Capacity {
		return nil, clinic.ErrSlotUnavailable
	}

	doctor, ok := s.doctors[p.DoctorID]
	if !ok {
		return nil, clinic.ErrDoctorNotFound
	}

	day := slot.SlotDate
	seq := s.maxSequence(p.DoctorID, day) + 1

	now := time.Now()
	appt := &clinic.Appointment{
		ID:            uuid.New(),
		SlotID:        p.SlotID,
		PatientID:     p.PatientID,
		DoctorID:      p.DoctorID,
		QueueDate:     day,
		QueueSequence: seq,
		QueueNumber:   clinic.FormatQueueNumber(doctor.QueuePrefix, seq, p.NumberWidth),
		Type:          p.Type,
		Notes:         p.Notes,
		Status:        clinic.StatusConfirmed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.appts[appt.ID] = appt

	slot.BookedCount++
	slot.IsAvailable = slot.BookedCount < slot.Capacity

	ptr := s.ensurePointer(p.DoctorID, day)
	ptr.TotalQueued++

	out := *appt
	return &out, nil
}

func (s *Store) CancelAppointment(_ context.Context, id uuid.UUID, reason string, now time.Time) (*clinic.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appts[id]
	if !ok {
		return nil, clinic.ErrAppointmentNotFound
	}
	if !clinic.CanTransition(appt.Status, clinic.StatusCancelled) {
		return nil, clinic.ErrInvalidTransition
	}

	appt.Status = clinic.StatusCancelled
	appt.CancelledAt = &now
	appt.CancelReason = &reason
	appt.UpdatedAt = now

	s.releaseSlot(appt.SlotID)

	out := *appt
	return &out, nil
}

// queue.Repository

func (s *Store) GetAppointmentByID(_ context.Context, id uuid.UUID) (*clinic.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appts[id]
	if !ok {
		return nil, clinic.ErrAppointmentNotFound
	}
	out := *appt
	return &out, nil
}

func (s *Store) GetQueuePointer(_ context.Context, doctorID uuid.UUID, day time.Time) (*clinic.QueuePointer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ptr, ok := s.pointers[pointerKey(doctorID, day)]
	if !ok {
		return &clinic.QueuePointer{DoctorID: doctorID, QueueDate: day, IsActive: true}, nil
	}
	out := *ptr
	return &out, nil
}

func (s *Store) CheckIn(_ context.Context, id uuid.UUID, now time.Time) (*clinic.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appts[id]
	if !ok {
		return nil, clinic.ErrAppointmentNotFound
	}

	if appt.Status == clinic.StatusArrived {
		out := *appt
		return &out, nil
	}
	if !clinic.CanTransition(appt.Status, clinic.StatusArrived) {
		return nil, clinic.ErrInvalidTransition
	}

	appt.Status = clinic.StatusArrived
	appt.CheckedInAt = &now
	appt.UpdatedAt = now

	out := *appt
	return &out, nil
}

func (s *Store) AdvanceNext(_ context.Context, doctorID uuid.UUID, day, now time.Time, maxInConsult int) (*clinic.QueuePointer, *clinic.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxInConsult > 0 && s.countStatus(doctorID, day, clinic.StatusInConsultation) >= maxInConsult {
		return nil, nil, clinic.ErrDoctorBusy
	}

	var next *clinic.Appointment
	for _, a := range s.appts {
		if a.DoctorID != doctorID || !a.QueueDate.Equal(day) || a.Status != clinic.StatusArrived {
			continue
		}
		if next == nil || a.QueueSequence < next.QueueSequence {
			next = a
		}
	}
	if next == nil {
		return nil, nil, clinic.ErrNoPatientsWaiting
	}

	next.Status = clinic.StatusInConsultation
	next.StartedAt = &now
	next.UpdatedAt = now

	ptr := s.ensurePointer(doctorID, day)
	ptr.CurrentNumber = next.QueueNumber
	ptr.CurrentSequence = next.QueueSequence
	ptr.LastCalledAt = &now
	ptr.UpdatedAt = now

	outPtr := *ptr
	outAppt := *next
	return &outPtr, &outAppt, nil
}

func (s *Store) Complete(_ context.Context, id uuid.UUID, now time.Time) (*clinic.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appts[id]
	if !ok {
		return nil, clinic.ErrAppointmentNotFound
	}
	if !clinic.CanTransition(appt.Status, clinic.StatusCompleted) {
		return nil, clinic.ErrInvalidTransition
	}

	appt.Status = clinic.StatusCompleted
	appt.CompletedAt = &now
	appt.UpdatedAt = now

	ptr := s.ensurePointer(appt.DoctorID, appt.QueueDate)
	ptr.TotalSeen++
	if s.countStatus(appt.DoctorID, appt.QueueDate, clinic.StatusInConsultation) == 0 &&
		ptr.CurrentSequence == appt.QueueSequence {
		ptr.CurrentNumber = ""
		ptr.CurrentSequence = 0
	}
	ptr.UpdatedAt = now

	out := *appt
	return &out, nil
}

func (s *Store) MarkNoShow(_ context.Context, id uuid.UUID, cutoff, now time.Time) (*clinic.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appts[id]
	if !ok {
		return nil, clinic.ErrAppointmentNotFound
	}
	if !clinic.CanTransition(appt.Status, clinic.StatusNoShow) {
		return nil, clinic.ErrInvalidTransition
	}

	slot, ok := s.slots[appt.SlotID]
	if !ok {
		return nil, clinic.ErrSlotNotFound
	}
	if slot.StartTime.After(cutoff) {
		return nil, clinic.ErrGraceNotElapsed
	}

	appt.Status = clinic.StatusNoShow
	appt.UpdatedAt = now

	ptr := s.ensurePointer(appt.DoctorID, appt.QueueDate)
	ptr.TotalNoShow++
	ptr.UpdatedAt = now

	s.releaseSlot(appt.SlotID)

	out := *appt
	return &out, nil
}

func (s *Store) FindNoShowCandidates(_ context.Context, cutoff time.Time) ([]clinic.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []clinic.Appointment
	for _, a := range s.appts {
		if a.Status != clinic.StatusConfirmed && a.Status != clinic.StatusArrived {
			continue
		}
		slot, ok := s.slots[a.SlotID]
		if !ok || slot.StartTime.After(cutoff) {
			continue
		}
		result = append(result, *a)
	}
	return result, nil
}

// internals, caller must hold mu

func (s *Store) maxSequence(doctorID uuid.UUID, day time.Time) int {
	max := 0
	for _, a := range s.appts {
		if a.DoctorID == doctorID && a.QueueDate.Equal(day) && a.QueueSequence > max {
			max = a.QueueSequence
		}
	}
	return max
}

func (s *Store) countStatus(doctorID uuid.UUID, day time.Time, status clinic.AppointmentStatus) int {
	n := 0
	for _, a := range s.appts {
		if a.DoctorID == doctorID && a.QueueDate.Equal(day) && a.Status == status {
			n++
		}
	}
	return n
}

func (s *Store) releaseSlot(slotID uuid.UUID) {
	slot, ok := s.slots[slotID]
	if !ok {
		return
	}
	if slot.BookedCount > 0 {
		slot.BookedCount--
	}
	slot.IsAvailable = slot.BookedCount < slot.Capacity
}

func (s *Store) ensurePointer(doctorID uuid.UUID, day time.Time) *clinic.QueuePointer {
	key := pointerKey(doctorID, day)
	ptr, ok := s.pointers[key]
	if !ok {
		ptr = &clinic.QueuePointer{
			DoctorID:  doctorID,
			QueueDate: day,
			IsActive:  true,
			UpdatedAt: time.Now(),
		}
		s.pointers[key] = ptr
	}
	return ptr
}

func pointerKey(doctorID uuid.UUID, day time.Time) string {
	return doctorID.String() + "|" + day.Format("2006-01-02")
}
