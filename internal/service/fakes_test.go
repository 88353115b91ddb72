package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/medilink/internal/model"
	"github.com/iliyamo/medilink/internal/queue"
	"github.com/iliyamo/medilink/internal/repository"
)

// memStore is an in-memory AllocationStore and SweepStore.  Like the MySQL
// unique indexes it refuses a second active row per bed or per patient.
type memStore struct {
	mu       sync.Mutex
	rows     map[string]*model.Allocation
	patients map[uint64]model.Patient

	// hideActive makes the Find* pre-checks miss, so only Create's
	// uniqueness check can catch a conflict.
	hideActive bool
	failWith   error
	panicWith  any
	sweeps     int
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]*model.Allocation{}, patients: map[uint64]model.Patient{}}
}

func (m *memStore) put(a model.Allocation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[a.ID] = &a
}

func (m *memStore) get(id string) (model.Allocation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return model.Allocation{}, false
	}
	return *a, true
}

func (m *memStore) conflictLocked(a *model.Allocation) error {
	if a.Status != model.StatusActive {
		return nil
	}
	for _, r := range m.rows {
		if r.ID == a.ID || r.Status != model.StatusActive {
			continue
		}
		if r.Bed() == a.Bed() {
			return repository.ErrBedTaken
		}
		if r.PatientID == a.PatientID {
			return repository.ErrPatientHasActive
		}
	}
	return nil
}

func (m *memStore) Create(_ context.Context, a *model.Allocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if err := m.conflictLocked(a); err != nil {
		return err
	}
	cp := *a
	m.rows[a.ID] = &cp
	return nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*model.Allocation, error) {
	a, ok := m.get(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (m *memStore) Update(_ context.Context, id string, fn func(*model.Allocation) error) (*model.Allocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	cur, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *cur
	if err := fn(&cp); err != nil {
		return nil, err
	}
	if err := m.conflictLocked(&cp); err != nil {
		return nil, err
	}
	m.rows[id] = &cp
	out := cp
	return &out, nil
}

func (m *memStore) FindActiveByPatient(_ context.Context, patientID uint64) (*model.Allocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	if m.hideActive {
		return nil, nil
	}
	for _, r := range m.rows {
		if r.PatientID == patientID && r.Status == model.StatusActive {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindActiveByBed(_ context.Context, key model.BedKey) (*model.Allocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hideActive {
		return nil, nil
	}
	for _, r := range m.rows {
		if r.Bed() == key && r.Status == model.StatusActive {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) OccupiedBeds(_ context.Context, wardName string, wardNumber int) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	beds := []int{}
	for _, r := range m.rows {
		if r.WardName == wardName && r.WardNumber == wardNumber && r.Status == model.StatusActive {
			beds = append(beds, r.BedNumber)
		}
	}
	sort.Ints(beds)
	return beds, nil
}

func (m *memStore) activeBeds(wardName string) []model.BedKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.BedKey
	for _, r := range m.rows {
		if r.WardName == wardName && r.Status == model.StatusActive {
			out = append(out, r.Bed())
		}
	}
	return out
}

func (m *memStore) ListByWard(_ context.Context, wardName string, wardNumber int, includeDischarged bool) ([]model.AllocationDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.AllocationDetail{}
	for _, r := range m.rows {
		if r.WardName != wardName || r.WardNumber != wardNumber {
			continue
		}
		if !includeDischarged && r.Status == model.StatusDischarged {
			continue
		}
		d := model.AllocationDetail{Allocation: *r}
		if p, ok := m.patients[r.PatientID]; ok {
			d.Patient = p.Contact()
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AllocationTime.After(out[j].AllocationTime) })
	return out, nil
}

func (m *memStore) sweep(match func(*model.Allocation) bool, apply func(id string, a *model.Allocation)) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeps++
	if m.panicWith != nil {
		panic(m.panicWith)
	}
	if m.failWith != nil {
		return 0, m.failWith
	}
	var n int64
	for id, r := range m.rows {
		if match(r) {
			apply(id, r)
			n++
		}
	}
	return n, nil
}

func (m *memStore) ExpireStale(_ context.Context, cutoff time.Time) (int64, error) {
	return m.sweep(func(r *model.Allocation) bool {
		return !r.IsAdmitted && (r.Status == model.StatusActive || r.Status == model.StatusPending) &&
			r.AllocationTime.Before(cutoff)
	}, func(_ string, r *model.Allocation) { r.Status = model.StatusExpired })
}

func (m *memStore) DeleteStale(_ context.Context, cutoff time.Time) (int64, error) {
	return m.sweep(func(r *model.Allocation) bool {
		return !r.IsAdmitted && (r.Status == model.StatusActive || r.Status == model.StatusPending ||
			r.Status == model.StatusExpired) && r.AllocationTime.Before(cutoff)
	}, func(id string, _ *model.Allocation) { delete(m.rows, id) })
}

func (m *memStore) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	return m.sweep(func(r *model.Allocation) bool {
		return r.Status == model.StatusExpired && r.AllocationTime.Before(before)
	}, func(id string, _ *model.Allocation) { delete(m.rows, id) })
}

func (m *memStore) sweepCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweeps
}

type memPatients map[uint64]model.Patient

func (p memPatients) GetByID(_ context.Context, id uint64) (model.Patient, error) {
	pt, ok := p[id]
	if !ok {
		return model.Patient{}, repository.ErrNotFound
	}
	return pt, nil
}

type memWards []*model.Ward

func (w memWards) HasBed(_ context.Context, key model.BedKey) (bool, error) {
	for _, ward := range w {
		if ward.Name == key.WardName {
			return ward.HasBed(key.WardNumber, key.BedNumber), nil
		}
	}
	return false, nil
}

func (w memWards) List(context.Context) ([]*model.Ward, error) { return w, nil }

type recordingNotifier struct {
	mu     sync.Mutex
	events []queue.BedAllocatedEvent
	err    error
}

func (n *recordingNotifier) PublishBedAllocated(_ context.Context, ev queue.BedAllocatedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) sent() []queue.BedAllocatedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]queue.BedAllocatedEvent(nil), n.events...)
}

type stubLocker struct {
	ok       bool
	err      error
	released int
}

func (l *stubLocker) TryLock(context.Context) (func(context.Context) error, bool, error) {
	if l.err != nil || !l.ok {
		return nil, false, l.err
	}
	return func(context.Context) error { l.released++; return nil }, true, nil
}
