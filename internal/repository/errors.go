// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// allocation service to distinguish between different failure scenarios
// without inspecting driver errors.
package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup by primary key matches no row.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness rule enforced
// by the database.
var ErrConflict = errors.New("conflict")

// ErrBedTaken means another active allocation already holds the bed.
var ErrBedTaken = fmt.Errorf("%w: bed already has an active allocation", ErrConflict)

// ErrPatientHasActive means the patient already holds an active allocation.
var ErrPatientHasActive = fmt.Errorf("%w: patient already has an active allocation", ErrConflict)

// ErrWardExists is returned when a ward name is already in use.
var ErrWardExists = fmt.Errorf("%w: ward name already exists", ErrConflict)

// ErrWardInUse is returned when a ward update would rename the ward or drop
// a bed while active allocations still reference it.
var ErrWardInUse = fmt.Errorf("%w: ward has active bed allocations", ErrConflict)

const mysqlDuplicateEntry = 1062

// duplicateKey reports whether err is a MySQL duplicate-entry error and,
// if so, returns the driver message that names the violated index.
func duplicateKey(err error) (string, bool) {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return me.Message, true
	}
	return "", false
}

// translateAllocationWrite maps unique index violations on bed_allocations
// to the matching sentinel.  Other errors pass through unchanged.
func translateAllocationWrite(err error) error {
	msg, ok := duplicateKey(err)
	if !ok {
		return err
	}
	switch {
	case strings.Contains(msg, "uq_active_bed"):
		return ErrBedTaken
	case strings.Contains(msg, "uq_active_patient"):
		return ErrPatientHasActive
	}
	return fmt.Errorf("%w: %s", ErrConflict, msg)
}
