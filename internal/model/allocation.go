package model

import "time"

// AllocationStatus is the lifecycle state of a bed allocation.
//
//	active → cancelled
//	active → discharged   (only after admission)
//	active → expired      (sweeper, never admitted within the grace window)
//
// pending and admitted exist in stored data from older releases; the
// service never writes them.
type AllocationStatus string

const (
	StatusPending    AllocationStatus = "pending"
	StatusActive     AllocationStatus = "active"
	StatusAdmitted   AllocationStatus = "admitted"
	StatusDischarged AllocationStatus = "discharged"
	StatusCancelled  AllocationStatus = "cancelled"
	StatusExpired    AllocationStatus = "expired"
)

func (s AllocationStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusAdmitted, StatusDischarged, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Occupies reports whether a record in this status holds its bed.
func (s AllocationStatus) Occupies() bool { return s == StatusActive }

// Terminal reports whether no staff transition may leave this status.
func (s AllocationStatus) Terminal() bool {
	return s == StatusDischarged || s == StatusCancelled || s == StatusExpired
}

// BedKey identifies one physical bed: ward name, room (ward number) and bed.
type BedKey struct {
	WardName   string `json:"wardName"`
	WardNumber int    `json:"wardNumber"`
	BedNumber  int    `json:"bedNumber"`
}

// Allocation mirrors one row of bed_allocations: a single bed assigned to
// a single patient.
type Allocation struct {
	ID             string           `json:"id"`
	PatientID      uint64           `json:"patientId"`
	WardName       string           `json:"wardName"`
	WardNumber     int              `json:"wardNumber"`
	BedNumber      int              `json:"bedNumber"`
	AllocationTime time.Time        `json:"allocationTime"`
	IsAdmitted     bool             `json:"isAdmitted"`
	Status         AllocationStatus `json:"status"`
	DischargedAt   *time.Time       `json:"dischargedAt"`
}

func (a *Allocation) Bed() BedKey {
	return BedKey{WardName: a.WardName, WardNumber: a.WardNumber, BedNumber: a.BedNumber}
}

// ConfirmAdmission marks the patient as physically present.  It is
// idempotent on an active record and refused on every other status.
func (a *Allocation) ConfirmAdmission() error {
	if a.Status != StatusActive {
		return ErrNotActive
	}
	a.IsAdmitted = true
	return nil
}

// Discharge closes an admitted stay.  DischargedAt is written once here and
// never cleared.
func (a *Allocation) Discharge(now time.Time) error {
	if !a.IsAdmitted {
		return ErrNotAdmitted
	}
	a.Status = StatusDischarged
	a.IsAdmitted = false
	t := now.UTC()
	a.DischargedAt = &t
	return nil
}

// Cancel frees the bed immediately.
func (a *Allocation) Cancel() error {
	switch a.Status {
	case StatusDischarged:
		return ErrAlreadyDischarged
	case StatusCancelled:
		return ErrAlreadyCancelled
	}
	a.Status = StatusCancelled
	a.IsAdmitted = false
	return nil
}

// PatientContact is the display subset of a patient attached to
// allocations in staff views.
type PatientContact struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
}

// AllocationDetail is an allocation enriched with patient display fields.
// Patient is nil when the referenced patient no longer exists.
type AllocationDetail struct {
	Allocation
	Patient *PatientContact `json:"patient"`
}
