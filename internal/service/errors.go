package service

import "fmt"

// The service reports failures as one of the typed errors below.  The HTTP
// layer matches them with errors.As and picks the status code; anything
// else is treated as an internal error and never shown to the caller.

// ValidationError is returned when the request itself is malformed.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// NotFoundError is returned when an allocation, bed or ward does not exist.
type NotFoundError struct{ Msg string }

func (e *NotFoundError) Error() string { return e.Msg }

// ConflictError is returned when a bed or patient already holds an active
// allocation.
type ConflictError struct{ Msg string }

func (e *ConflictError) Error() string { return e.Msg }

// InvalidStateError is returned when a transition is not allowed from the
// record's current state.
type InvalidStateError struct{ Msg string }

func (e *InvalidStateError) Error() string { return e.Msg }

// AuthorizationError is returned when the caller does not own the record.
type AuthorizationError struct{ Msg string }

func (e *AuthorizationError) Error() string { return e.Msg }

// DependencyError wraps a failure of the store or another collaborator.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *DependencyError) Unwrap() error { return e.Err }

const (
	msgBedTaken       = "bed already allocated"
	msgPatientActive  = "patient already has an active allocation"
	msgNotFound       = "bed allocation not found"
	msgNoActive       = "no active bed allocation"
	msgBedMissing     = "bed does not exist in this ward"
	msgWardNotFound   = "ward not found"
	msgWardExists     = "ward name already exists"
	msgWardInUse      = "ward has active bed allocations"
	msgNotOwner       = "allocation belongs to another patient"
	msgNotActive      = "only an active allocation can be confirmed"
	msgNotAdmitted    = "cannot discharge an unadmitted patient"
	msgDischarged     = "cannot cancel a discharged allocation"
	msgAlreadyCancel  = "allocation already cancelled"
	msgInvalidRequest = "patient, ward name, ward number and bed number are required"
)
