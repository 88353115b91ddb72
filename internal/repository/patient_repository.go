package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/medilink/internal/model"
)

// PatientRepo reads the 'patients' table.  Patients are registered by the
// portal; this service only resolves them for login, display and SMS.
type PatientRepo struct{ DB *sql.DB }

func NewPatientRepo(db *sql.DB) *PatientRepo { return &PatientRepo{DB: db} }

const patientColumns = "id,name,email,phone_number,password_hash,created_at"

func scanPatient(s rowScanner) (model.Patient, error) {
	var (
		p     model.Patient
		phone sql.NullString
	)
	err := s.Scan(&p.ID, &p.Name, &p.Email, &phone, &p.PasswordHash, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	p.PhoneNumber = phone.String
	return p, err
}

// GetByEmail fetches a patient by normalized email.
func (r *PatientRepo) GetByEmail(ctx context.Context, email string) (model.Patient, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanPatient(r.DB.QueryRowContext(ctx,
		"SELECT "+patientColumns+" FROM patients WHERE email=? LIMIT 1", email))
}

// GetByID fetches a patient by id.
func (r *PatientRepo) GetByID(ctx context.Context, id uint64) (model.Patient, error) {
	return scanPatient(r.DB.QueryRowContext(ctx,
		"SELECT "+patientColumns+" FROM patients WHERE id=? LIMIT 1", id))
}
