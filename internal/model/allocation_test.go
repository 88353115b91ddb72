package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newActive() *Allocation {
	return &Allocation{ID: "a1", PatientID: 1, WardName: "General", WardNumber: 1, BedNumber: 3, Status: StatusActive}
}

func TestAllocation_ConfirmIsIdempotent(t *testing.T) {
	a := newActive()
	require.NoError(t, a.ConfirmAdmission())
	require.NoError(t, a.ConfirmAdmission())
	assert.True(t, a.IsAdmitted)
	assert.Equal(t, StatusActive, a.Status)
}

func TestAllocation_ConfirmRefusedOnTerminal(t *testing.T) {
	for _, s := range []AllocationStatus{StatusCancelled, StatusDischarged, StatusExpired} {
		a := newActive()
		a.Status = s
		assert.ErrorIs(t, a.ConfirmAdmission(), ErrNotActive, s)
		assert.False(t, a.IsAdmitted)
	}
}

func TestAllocation_DischargeRequiresAdmission(t *testing.T) {
	a := newActive()
	assert.ErrorIs(t, a.Discharge(time.Now()), ErrNotAdmitted)

	require.NoError(t, a.ConfirmAdmission())
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, a.Discharge(now))
	assert.Equal(t, StatusDischarged, a.Status)
	assert.False(t, a.IsAdmitted)
	require.NotNil(t, a.DischargedAt)
	assert.Equal(t, now, *a.DischargedAt)

	// second discharge fails and keeps the first timestamp
	assert.ErrorIs(t, a.Discharge(now.Add(time.Hour)), ErrNotAdmitted)
	assert.Equal(t, now, *a.DischargedAt)
}

func TestAllocation_Cancel(t *testing.T) {
	a := newActive()
	require.NoError(t, a.ConfirmAdmission())
	require.NoError(t, a.Cancel())
	assert.Equal(t, StatusCancelled, a.Status)
	assert.False(t, a.IsAdmitted)
	assert.ErrorIs(t, a.Cancel(), ErrAlreadyCancelled)

	d := newActive()
	d.Status = StatusDischarged
	assert.ErrorIs(t, d.Cancel(), ErrAlreadyDischarged)
}

func TestAllocationStatus_Occupies(t *testing.T) {
	assert.True(t, StatusActive.Occupies())
	for _, s := range []AllocationStatus{StatusPending, StatusAdmitted, StatusDischarged, StatusCancelled, StatusExpired} {
		assert.False(t, s.Occupies(), s)
	}
	assert.False(t, AllocationStatus("gone").IsValid())
}

func TestWard_HasBed(t *testing.T) {
	w := &Ward{Name: "General", Rooms: []WardRoom{{Number: 1, Beds: 6}, {Number: 2, Beds: 4}}}
	assert.True(t, w.HasBed(1, 6))
	assert.True(t, w.HasBed(2, 1))
	assert.False(t, w.HasBed(2, 5))
	assert.False(t, w.HasBed(3, 1))
	assert.False(t, w.HasBed(1, 0))
}

func TestWard_KeepsBeds(t *testing.T) {
	w := &Ward{Name: "General", Rooms: []WardRoom{{Number: 1, Beds: 4}}}
	occupied := []BedKey{{WardName: "General", WardNumber: 1, BedNumber: 3}}

	assert.True(t, w.KeepsBeds(nil))
	assert.True(t, w.KeepsBeds(occupied))

	renamed := &Ward{Name: "General Medicine", Rooms: w.Rooms}
	assert.False(t, renamed.KeepsBeds(occupied))
	assert.True(t, renamed.KeepsBeds(nil))

	shrunk := &Ward{Name: "General", Rooms: []WardRoom{{Number: 1, Beds: 2}}}
	assert.False(t, shrunk.KeepsBeds(occupied))

	dropped := &Ward{Name: "General", Rooms: []WardRoom{{Number: 2, Beds: 6}}}
	assert.False(t, dropped.KeepsBeds(occupied))
}
