package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/medilink/internal/model"
	"github.com/iliyamo/medilink/internal/repository"
)

// WardStore persists the ward catalog.  It is satisfied by
// *repository.WardRepo.
type WardStore interface {
	List(ctx context.Context) ([]*model.Ward, error)
	GetByID(ctx context.Context, id uint64) (*model.Ward, error)
	Create(ctx context.Context, w *model.Ward) error
	Update(ctx context.Context, w *model.Ward) error
}

// WardService manages wards and their rooms for staff.
type WardService struct {
	store    WardStore
	log      *zap.Logger
	onChange ChangeHook
}

func NewWardService(store WardStore, log *zap.Logger, onChange ChangeHook) *WardService {
	if log == nil {
		log = zap.NewNop()
	}
	return &WardService{store: store, log: log, onChange: onChange}
}

func (s *WardService) List(ctx context.Context) ([]*model.Ward, error) {
	wards, err := s.store.List(ctx)
	if err != nil {
		return nil, &DependencyError{Op: "list wards", Err: err}
	}
	return wards, nil
}

// Create validates and stores a new ward.
func (s *WardService) Create(ctx context.Context, w *model.Ward) error {
	if err := normalizeWard(w); err != nil {
		return err
	}
	if err := s.store.Create(ctx, w); err != nil {
		return s.storeErr("create ward", err)
	}
	s.log.Info("ward created", zap.Uint64("ward_id", w.ID), zap.String("ward", w.Name), zap.Int("rooms", len(w.Rooms)))
	s.changed(ctx)
	return nil
}

// Update replaces name, category, features and rooms of a ward.  A rename,
// or a room change that drops a bed, is refused with a ConflictError while
// an active allocation holds a bed of the ward.
func (s *WardService) Update(ctx context.Context, w *model.Ward) error {
	if w.ID == 0 {
		return &ValidationError{Msg: "invalid ward id"}
	}
	if err := normalizeWard(w); err != nil {
		return err
	}
	if err := s.store.Update(ctx, w); err != nil {
		return s.storeErr("update ward", err)
	}
	updated, err := s.store.GetByID(ctx, w.ID)
	if err == nil {
		*w = *updated
	}
	s.log.Info("ward updated", zap.Uint64("ward_id", w.ID), zap.String("ward", w.Name))
	s.changed(ctx)
	return nil
}

func (s *WardService) storeErr(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrWardExists):
		return &ConflictError{Msg: msgWardExists}
	case errors.Is(err, repository.ErrWardInUse):
		return &ConflictError{Msg: msgWardInUse}
	case errors.Is(err, repository.ErrNotFound):
		return &NotFoundError{Msg: msgWardNotFound}
	}
	s.log.Error(op+" failed", zap.Error(err))
	return &DependencyError{Op: op, Err: err}
}

func (s *WardService) changed(ctx context.Context) {
	if s.onChange != nil {
		s.onChange(ctx)
	}
}

// normalizeWard trims the text fields and checks that every room has a
// unique positive number and at least one bed.
func normalizeWard(w *model.Ward) error {
	w.Name = strings.TrimSpace(w.Name)
	w.Category = strings.TrimSpace(w.Category)
	if w.Name == "" || w.Category == "" {
		return &ValidationError{Msg: "ward name and category are required"}
	}
	features := make([]string, 0, len(w.Features))
	for _, f := range w.Features {
		if f = strings.TrimSpace(f); f != "" {
			features = append(features, f)
		}
	}
	w.Features = features

	seen := make(map[int]bool, len(w.Rooms))
	for _, r := range w.Rooms {
		if r.Number <= 0 || r.Beds <= 0 {
			return &ValidationError{Msg: "room numbers and bed counts must be positive"}
		}
		if seen[r.Number] {
			return &ValidationError{Msg: fmt.Sprintf("duplicate room number %d", r.Number)}
		}
		seen[r.Number] = true
	}
	return nil
}
