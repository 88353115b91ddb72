package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/medilink/internal/model"
)

// AllocationRepo provides data access to the bed_allocations table.  The
// "one active allocation per bed" and "one active allocation per patient"
// rules are enforced by unique indexes on generated columns, so Create
// fails with ErrBedTaken or ErrPatientHasActive even when two requests pass
// the application-level checks at the same time.  All timestamps are UTC.
type AllocationRepo struct {
	db *sql.DB
}

// NewAllocationRepo returns a new AllocationRepo bound to the provided database.
func NewAllocationRepo(db *sql.DB) *AllocationRepo { return &AllocationRepo{db: db} }

const allocationColumns = `id, patient_id, ward_name, ward_number, bed_number, allocation_time, is_admitted, status, discharged_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAllocation(s rowScanner) (*model.Allocation, error) {
	var (
		a          model.Allocation
		status     string
		discharged sql.NullTime
	)
	if err := s.Scan(&a.ID, &a.PatientID, &a.WardName, &a.WardNumber, &a.BedNumber,
		&a.AllocationTime, &a.IsAdmitted, &status, &discharged); err != nil {
		return nil, err
	}
	a.Status = model.AllocationStatus(status)
	a.AllocationTime = a.AllocationTime.UTC()
	if discharged.Valid {
		t := discharged.Time.UTC()
		a.DischargedAt = &t
	}
	return &a, nil
}

// Create inserts a new allocation.  The caller supplies the ID and
// AllocationTime.  Unique index violations are reported as ErrBedTaken or
// ErrPatientHasActive.
func (r *AllocationRepo) Create(ctx context.Context, a *model.Allocation) error {
	const q = `INSERT INTO bed_allocations (id, patient_id, ward_name, ward_number, bed_number, allocation_time, is_admitted, status)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, a.ID, a.PatientID, a.WardName, a.WardNumber, a.BedNumber,
		a.AllocationTime.UTC(), a.IsAdmitted, string(a.Status))
	if err != nil {
		return translateAllocationWrite(err)
	}
	return nil
}

// GetByID returns the allocation or ErrNotFound.
func (r *AllocationRepo) GetByID(ctx context.Context, id string) (*model.Allocation, error) {
	q := `SELECT ` + allocationColumns + ` FROM bed_allocations WHERE id = ?`
	a, err := scanAllocation(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// Update loads the allocation with a row lock, lets fn mutate it and writes
// the lifecycle columns back in the same transaction.  If fn returns an
// error nothing is written and that error is returned unchanged, so domain
// errors from the model reach the caller as-is.
func (r *AllocationRepo) Update(ctx context.Context, id string, fn func(*model.Allocation) error) (*model.Allocation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	q := `SELECT ` + allocationColumns + ` FROM bed_allocations WHERE id = ? FOR UPDATE`
	a, err := scanAllocation(tx.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := fn(a); err != nil {
		return nil, err
	}

	var discharged any
	if a.DischargedAt != nil {
		discharged = a.DischargedAt.UTC()
	}
	const upd = `UPDATE bed_allocations SET status = ?, is_admitted = ?, discharged_at = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, upd, string(a.Status), a.IsAdmitted, discharged, a.ID); err != nil {
		return nil, translateAllocationWrite(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return a, nil
}

// FindActiveByPatient returns the patient's active allocation, or nil when
// there is none.
func (r *AllocationRepo) FindActiveByPatient(ctx context.Context, patientID uint64) (*model.Allocation, error) {
	q := `SELECT ` + allocationColumns + ` FROM bed_allocations WHERE patient_id = ? AND status = 'active' LIMIT 1`
	a, err := scanAllocation(r.db.QueryRowContext(ctx, q, patientID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// FindActiveByBed returns the active allocation holding the bed, or nil.
func (r *AllocationRepo) FindActiveByBed(ctx context.Context, key model.BedKey) (*model.Allocation, error) {
	q := `SELECT ` + allocationColumns + ` FROM bed_allocations
	      WHERE ward_name = ? AND ward_number = ? AND bed_number = ? AND status = 'active' LIMIT 1`
	a, err := scanAllocation(r.db.QueryRowContext(ctx, q, key.WardName, key.WardNumber, key.BedNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// OccupiedBeds lists bed numbers with an active allocation in one ward
// room, ascending.
func (r *AllocationRepo) OccupiedBeds(ctx context.Context, wardName string, wardNumber int) ([]int, error) {
	const q = `SELECT bed_number FROM bed_allocations
	           WHERE ward_name = ? AND ward_number = ? AND status = 'active'
	           ORDER BY bed_number`
	rows, err := r.db.QueryContext(ctx, q, wardName, wardNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	beds := []int{}
	for rows.Next() {
		var b int
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		beds = append(beds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return beds, nil
}

// ListByWard returns every allocation of a ward room joined with the
// patient's display fields, most recent first.  Discharged rows are
// skipped unless includeDischarged is set.
func (r *AllocationRepo) ListByWard(ctx context.Context, wardName string, wardNumber int, includeDischarged bool) ([]model.AllocationDetail, error) {
	q := `SELECT a.id, a.patient_id, a.ward_name, a.ward_number, a.bed_number, a.allocation_time,
	             a.is_admitted, a.status, a.discharged_at, p.id, p.name, p.email, p.phone_number
	      FROM bed_allocations a
	      LEFT JOIN patients p ON p.id = a.patient_id
	      WHERE a.ward_name = ? AND a.ward_number = ?`
	if !includeDischarged {
		q += ` AND a.status <> 'discharged'`
	}
	q += ` ORDER BY a.allocation_time DESC`

	rows, err := r.db.QueryContext(ctx, q, wardName, wardNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.AllocationDetail{}
	for rows.Next() {
		var (
			d                  model.AllocationDetail
			status             string
			discharged         sql.NullTime
			pid                sql.NullInt64
			name, email, phone sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.PatientID, &d.WardName, &d.WardNumber, &d.BedNumber,
			&d.AllocationTime, &d.IsAdmitted, &status, &discharged,
			&pid, &name, &email, &phone); err != nil {
			return nil, err
		}
		d.Status = model.AllocationStatus(status)
		d.AllocationTime = d.AllocationTime.UTC()
		if discharged.Valid {
			t := discharged.Time.UTC()
			d.DischargedAt = &t
		}
		if pid.Valid {
			d.Patient = &model.PatientContact{Name: name.String, Email: email.String, PhoneNumber: phone.String}
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ExpireStale moves un-admitted occupying allocations created before cutoff
// to the expired status and returns how many rows changed.
func (r *AllocationRepo) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `UPDATE bed_allocations SET status = 'expired'
	           WHERE is_admitted = 0 AND status IN ('active', 'pending') AND allocation_time < ?`
	res, err := r.db.ExecContext(ctx, q, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteStale hard-deletes un-admitted allocations created before cutoff.
// Discharged and cancelled rows are never touched.
func (r *AllocationRepo) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM bed_allocations
	           WHERE is_admitted = 0 AND status IN ('active', 'pending', 'expired') AND allocation_time < ?`
	res, err := r.db.ExecContext(ctx, q, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PurgeExpired deletes expired allocations created before the given time.
func (r *AllocationRepo) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	const q = `DELETE FROM bed_allocations WHERE status = 'expired' AND allocation_time < ?`
	res, err := r.db.ExecContext(ctx, q, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
