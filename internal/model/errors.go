package model

import "errors"

// Transition errors returned by Allocation methods.
var (
	ErrNotActive         = errors.New("allocation is not active")
	ErrNotAdmitted       = errors.New("cannot discharge an unadmitted patient")
	ErrAlreadyDischarged = errors.New("cannot cancel a discharged allocation")
	ErrAlreadyCancelled  = errors.New("allocation already cancelled")
)
