package model

import "time"

// Patient represents a row of the `patients` table.  Allocations keep only
// the patient ID; the remaining fields are looked up when a view needs
// display data or when the allocation SMS is sent.
//
// Fields:
//  ID           – primary key identifier of the patient.
//  Name         – full name shown to staff.
//  Email        – unique login email.
//  PhoneNumber  – mobile number for SMS notifications (may be empty).
//  PasswordHash – bcrypt hashed password.
//  CreatedAt    – timestamp of creation.
type Patient struct {
	ID           uint64    // patients.id
	Name         string    // patients.name
	Email        string    // patients.email
	PhoneNumber  string    // patients.phone_number (NULL scans as "")
	PasswordHash string    // patients.password_hash
	CreatedAt    time.Time // patients.created_at
}

// Contact returns the display subset of the patient.
func (p Patient) Contact() *PatientContact {
	return &PatientContact{Name: p.Name, Email: p.Email, PhoneNumber: p.PhoneNumber}
}
