// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"fmt"
	"time"
)

// BedAllocatedQueue is the durable queue carrying BedAllocatedEvent.
const BedAllocatedQueue = "bed.allocated"

// BedAllocatedEvent is published when a bed is allocated to a patient.  It
// carries everything the SMS consumer needs so that it never has to query
// the primary database.
type BedAllocatedEvent struct {
	AllocationID  string `json:"allocation_id"`
	PatientID     uint64 `json:"patient_id"`
	PatientName   string `json:"patient_name"`
	Phone         string `json:"phone"`
	WardName      string `json:"ward_name"`
	WardNumber    int    `json:"ward_number"`
	BedNumber     int    `json:"bed_number"`
	AllocatedAt   string `json:"allocated_at"`
	ConfirmWithin string `json:"confirm_within"`
}

// Message renders the SMS text sent to the patient.
func (e BedAllocatedEvent) Message() string {
	within := e.ConfirmWithin
	if within == "" {
		within = "2 hours"
	}
	return fmt.Sprintf("Dear %s,\n\n"+
		"Your bed has been successfully allocated.\n\n"+
		"Ward Name: %s\n"+
		"Room Number: Room %d\n"+
		"Bed Number: Bed %d\n\n"+
		"Please arrive within %s to confirm your admission.\n\n"+
		"- Ministry Of Health",
		e.PatientName, e.WardName, e.WardNumber, e.BedNumber, within)
}

// HumanDuration formats a grace window the way it appears in the SMS,
// e.g. "2 hours", "90 minutes", "1 hour".
func HumanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return ""
	case d%time.Hour == 0:
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	default:
		m := int(d.Round(time.Minute) / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
}
