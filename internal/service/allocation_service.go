// Package service holds the bed allocation business rules.  Handlers call
// into it, and it talks to MySQL, the ward catalog and the notification
// queue through the small interfaces declared here.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/medilink/internal/metrics"
	"github.com/iliyamo/medilink/internal/model"
	"github.com/iliyamo/medilink/internal/queue"
	"github.com/iliyamo/medilink/internal/repository"
)

// AllocationStore is the persistence the lifecycle needs.  It is satisfied
// by *repository.AllocationRepo.
type AllocationStore interface {
	Create(ctx context.Context, a *model.Allocation) error
	GetByID(ctx context.Context, id string) (*model.Allocation, error)
	Update(ctx context.Context, id string, fn func(*model.Allocation) error) (*model.Allocation, error)
	FindActiveByPatient(ctx context.Context, patientID uint64) (*model.Allocation, error)
	FindActiveByBed(ctx context.Context, key model.BedKey) (*model.Allocation, error)
	OccupiedBeds(ctx context.Context, wardName string, wardNumber int) ([]int, error)
	ListByWard(ctx context.Context, wardName string, wardNumber int, includeDischarged bool) ([]model.AllocationDetail, error)
}

// PatientDirectory resolves patients for display and notifications.
type PatientDirectory interface {
	GetByID(ctx context.Context, id uint64) (model.Patient, error)
}

// WardCatalog answers whether a bed exists and lists the wards.
type WardCatalog interface {
	HasBed(ctx context.Context, key model.BedKey) (bool, error)
	List(ctx context.Context) ([]*model.Ward, error)
}

// Notifier hands the allocation event to the messaging layer.
type Notifier interface {
	PublishBedAllocated(ctx context.Context, ev queue.BedAllocatedEvent) error
}

// ChangeHook runs after every committed allocation change.  The server uses
// it to drop cached bed grids.
type ChangeHook func(ctx context.Context)

// AllocateRequest is the input of Allocate.
type AllocateRequest struct {
	PatientID  uint64
	WardName   string
	WardNumber int
	BedNumber  int
}

type AllocationService struct {
	store    AllocationStore
	patients PatientDirectory
	wards    WardCatalog
	notifier Notifier
	onChange ChangeHook

	log     *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time
	newID   func() string
	grace   time.Duration
}

type Option func(*AllocationService)

func WithNotifier(n Notifier) Option { return func(s *AllocationService) { s.notifier = n } }
func WithChangeHook(h ChangeHook) Option { return func(s *AllocationService) { s.onChange = h } }
func WithLogger(l *zap.Logger) Option { return func(s *AllocationService) { s.log = l } }
func WithMetrics(m *metrics.Collector) Option { return func(s *AllocationService) { s.metrics = m } }
func WithClock(now func() time.Time) Option { return func(s *AllocationService) { s.now = now } }
func WithIDGenerator(f func() string) Option { return func(s *AllocationService) { s.newID = f } }

// WithGraceWindow sets the confirmation window quoted to the patient.
func WithGraceWindow(d time.Duration) Option { return func(s *AllocationService) { s.grace = d } }

func NewAllocationService(store AllocationStore, patients PatientDirectory, wards WardCatalog, opts ...Option) *AllocationService {
	s := &AllocationService{
		store:    store,
		patients: patients,
		wards:    wards,
		log:      zap.NewNop(),
		now:      time.Now,
		newID:    uuid.NewString,
		grace:    2 * time.Hour,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Allocate reserves a bed for a patient.  The new record is active and not
// yet admitted.  A bed or patient that already holds an active allocation
// is a ConflictError, whether the application check or the store's unique
// index catches it.
func (s *AllocationService) Allocate(ctx context.Context, req AllocateRequest) (*model.Allocation, error) {
	const op = "allocate"
	req.WardName = strings.TrimSpace(req.WardName)
	if req.PatientID == 0 || req.WardName == "" || req.WardNumber <= 0 || req.BedNumber <= 0 {
		return nil, s.fail(op, &ValidationError{Msg: msgInvalidRequest})
	}
	key := model.BedKey{WardName: req.WardName, WardNumber: req.WardNumber, BedNumber: req.BedNumber}

	exists, err := s.wards.HasBed(ctx, key)
	if err != nil {
		return nil, s.fail(op, &DependencyError{Op: "check ward", Err: err})
	}
	if !exists {
		return nil, s.fail(op, &NotFoundError{Msg: msgBedMissing})
	}

	held, err := s.store.FindActiveByPatient(ctx, req.PatientID)
	if err != nil {
		return nil, s.fail(op, &DependencyError{Op: "find patient allocation", Err: err})
	}
	if held != nil {
		return nil, s.fail(op, &ConflictError{Msg: msgPatientActive})
	}
	taken, err := s.store.FindActiveByBed(ctx, key)
	if err != nil {
		return nil, s.fail(op, &DependencyError{Op: "find bed allocation", Err: err})
	}
	if taken != nil {
		return nil, s.fail(op, &ConflictError{Msg: msgBedTaken})
	}

	a := &model.Allocation{
		ID:             s.newID(),
		PatientID:      req.PatientID,
		WardName:       key.WardName,
		WardNumber:     key.WardNumber,
		BedNumber:      key.BedNumber,
		AllocationTime: s.now().UTC(),
		Status:         model.StatusActive,
	}
	if err := s.store.Create(ctx, a); err != nil {
		return nil, s.fail(op, translate(err))
	}
	s.succeed(ctx, op, a)
	s.notifyAllocated(ctx, a)
	return a, nil
}

// ConfirmAdmission marks the patient of an active allocation as admitted.
// Confirming twice is a no-op.  The result carries the patient's contact
// details for the staff view.
func (s *AllocationService) ConfirmAdmission(ctx context.Context, id string) (*model.AllocationDetail, error) {
	const op = "confirm"
	a, err := s.transition(ctx, op, id, func(a *model.Allocation) error { return a.ConfirmAdmission() })
	if err != nil {
		return nil, err
	}
	d := &model.AllocationDetail{Allocation: *a}
	p, err := s.patients.GetByID(ctx, a.PatientID)
	switch {
	case err == nil:
		d.Patient = p.Contact()
	case !errors.Is(err, repository.ErrNotFound):
		s.log.Warn("load patient for confirmed allocation",
			zap.String("allocation_id", a.ID), zap.Uint64("patient_id", a.PatientID), zap.Error(err))
	}
	return d, nil
}

// Discharge closes the stay of an admitted patient and frees the bed.
func (s *AllocationService) Discharge(ctx context.Context, id string) (*model.Allocation, error) {
	now := s.now()
	return s.transition(ctx, "discharge", id, func(a *model.Allocation) error { return a.Discharge(now) })
}

// Cancel frees the bed of an allocation that is neither discharged nor
// already cancelled.
func (s *AllocationService) Cancel(ctx context.Context, id string) (*model.Allocation, error) {
	return s.transition(ctx, "cancel", id, func(a *model.Allocation) error { return a.Cancel() })
}

// CancelByPatient is Cancel on behalf of the patient who owns the record.
func (s *AllocationService) CancelByPatient(ctx context.Context, patientID uint64, id string) (*model.Allocation, error) {
	return s.transition(ctx, "cancel", id, func(a *model.Allocation) error {
		if a.PatientID != patientID {
			return errNotOwner
		}
		return a.Cancel()
	})
}

// MyAllocation returns the caller's active allocation.
func (s *AllocationService) MyAllocation(ctx context.Context, patientID uint64) (*model.Allocation, error) {
	a, err := s.store.FindActiveByPatient(ctx, patientID)
	if err != nil {
		return nil, &DependencyError{Op: "find patient allocation", Err: err}
	}
	if a == nil {
		return nil, &NotFoundError{Msg: msgNoActive}
	}
	return a, nil
}

// IsBedOccupied reports whether an active allocation holds the bed.
func (s *AllocationService) IsBedOccupied(ctx context.Context, wardName string, wardNumber, bedNumber int) (bool, error) {
	wardName = strings.TrimSpace(wardName)
	if wardName == "" || wardNumber <= 0 || bedNumber <= 0 {
		return false, &ValidationError{Msg: "ward name, ward number and bed number are required"}
	}
	a, err := s.store.FindActiveByBed(ctx, model.BedKey{WardName: wardName, WardNumber: wardNumber, BedNumber: bedNumber})
	if err != nil {
		return false, &DependencyError{Op: "find bed allocation", Err: err}
	}
	return a != nil, nil
}

// ListOccupiedBeds returns the occupied bed numbers of a ward room in
// ascending order.
func (s *AllocationService) ListOccupiedBeds(ctx context.Context, wardName string, wardNumber int) ([]int, error) {
	wardName = strings.TrimSpace(wardName)
	if wardName == "" || wardNumber <= 0 {
		return nil, &ValidationError{Msg: "ward name and ward number are required"}
	}
	beds, err := s.store.OccupiedBeds(ctx, wardName, wardNumber)
	if err != nil {
		return nil, &DependencyError{Op: "list occupied beds", Err: err}
	}
	return beds, nil
}

// ListAllocationsForWard returns the allocations of a ward room, newest
// first, with patient contact details.
func (s *AllocationService) ListAllocationsForWard(ctx context.Context, wardName string, wardNumber int, includeDischarged bool) ([]model.AllocationDetail, error) {
	wardName = strings.TrimSpace(wardName)
	if wardName == "" || wardNumber <= 0 {
		return nil, &ValidationError{Msg: "ward name and ward number are required"}
	}
	out, err := s.store.ListByWard(ctx, wardName, wardNumber, includeDischarged)
	if err != nil {
		return nil, &DependencyError{Op: "list ward allocations", Err: err}
	}
	return out, nil
}

// ListWards returns the ward catalog used by bed pickers.
func (s *AllocationService) ListWards(ctx context.Context) ([]*model.Ward, error) {
	wards, err := s.wards.List(ctx)
	if err != nil {
		return nil, &DependencyError{Op: "list wards", Err: err}
	}
	return wards, nil
}

var errNotOwner = errors.New("not the allocation owner")

func (s *AllocationService) transition(ctx context.Context, op, id string, fn func(*model.Allocation) error) (*model.Allocation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, s.fail(op, &ValidationError{Msg: "allocation id is required"})
	}
	a, err := s.store.Update(ctx, id, fn)
	if err != nil {
		return nil, s.fail(op, translate(err))
	}
	s.succeed(ctx, op, a)
	return a, nil
}

func (s *AllocationService) succeed(ctx context.Context, op string, a *model.Allocation) {
	s.metrics.Transition(op, "ok")
	s.log.Info("allocation "+op,
		zap.String("allocation_id", a.ID),
		zap.Uint64("patient_id", a.PatientID),
		zap.String("ward", a.WardName),
		zap.Int("ward_number", a.WardNumber),
		zap.Int("bed_number", a.BedNumber),
		zap.String("status", string(a.Status)))
	if s.onChange != nil {
		s.onChange(ctx)
	}
}

// fail records the outcome of a rejected operation and returns err.
func (s *AllocationService) fail(op string, err error) error {
	outcome := "error"
	var (
		ve *ValidationError
		nf *NotFoundError
		ce *ConflictError
		ie *InvalidStateError
		ae *AuthorizationError
		de *DependencyError
	)
	switch {
	case errors.As(err, &ve):
		outcome = "invalid"
	case errors.As(err, &nf):
		outcome = "not_found"
	case errors.As(err, &ce):
		outcome = "conflict"
	case errors.As(err, &ie):
		outcome = "invalid_state"
	case errors.As(err, &ae):
		outcome = "forbidden"
	case errors.As(err, &de):
		s.log.Error("allocation "+op+" failed", zap.Error(err))
	}
	s.metrics.Transition(op, outcome)
	return err
}

// translate maps store and model errors onto the service taxonomy.
func translate(err error) error {
	switch {
	case errors.Is(err, repository.ErrBedTaken):
		return &ConflictError{Msg: msgBedTaken}
	case errors.Is(err, repository.ErrPatientHasActive):
		return &ConflictError{Msg: msgPatientActive}
	case errors.Is(err, repository.ErrNotFound):
		return &NotFoundError{Msg: msgNotFound}
	case errors.Is(err, errNotOwner):
		return &AuthorizationError{Msg: msgNotOwner}
	case errors.Is(err, model.ErrNotActive):
		return &InvalidStateError{Msg: msgNotActive}
	case errors.Is(err, model.ErrNotAdmitted):
		return &InvalidStateError{Msg: msgNotAdmitted}
	case errors.Is(err, model.ErrAlreadyDischarged):
		return &InvalidStateError{Msg: msgDischarged}
	case errors.Is(err, model.ErrAlreadyCancelled):
		return &InvalidStateError{Msg: msgAlreadyCancel}
	}
	return &DependencyError{Op: "store", Err: err}
}

// notifyAllocated publishes the allocation event.  It never fails the
// allocation: errors are logged and counted.
func (s *AllocationService) notifyAllocated(ctx context.Context, a *model.Allocation) {
	if s.notifier == nil {
		return
	}
	p, err := s.patients.GetByID(ctx, a.PatientID)
	if err != nil {
		s.metrics.Notify("publish", "error")
		s.log.Warn("resolve patient for allocation notice",
			zap.String("allocation_id", a.ID), zap.Uint64("patient_id", a.PatientID), zap.Error(err))
		return
	}
	if p.PhoneNumber == "" {
		s.metrics.Notify("publish", "skipped")
		return
	}
	ev := queue.BedAllocatedEvent{
		AllocationID:  a.ID,
		PatientID:     a.PatientID,
		PatientName:   p.Name,
		Phone:         p.PhoneNumber,
		WardName:      a.WardName,
		WardNumber:    a.WardNumber,
		BedNumber:     a.BedNumber,
		AllocatedAt:   a.AllocationTime.Format(time.RFC3339),
		ConfirmWithin: queue.HumanDuration(s.grace),
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.notifier.PublishBedAllocated(pctx, ev); err != nil {
		s.metrics.Notify("publish", "error")
		s.log.Warn("publish bed.allocated", zap.String("allocation_id", a.ID), zap.Error(err))
		return
	}
	s.metrics.Notify("publish", "ok")
}
