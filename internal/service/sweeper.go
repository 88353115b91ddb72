package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/medilink/internal/config"
	"github.com/iliyamo/medilink/internal/metrics"
)

// Sweep modes.
const (
	SweepExpire = "expire"
	SweepDelete = "delete"
)

// SweepStore runs the set-based reclaim statements.  It is satisfied by
// *repository.AllocationRepo.
type SweepStore interface {
	ExpireStale(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// Locker serialises sweeps across replicas.  ok is false when another
// replica holds the lock.
type Locker interface {
	TryLock(ctx context.Context) (release func(context.Context) error, ok bool, err error)
}

// SweepResult summarises one sweep.
type SweepResult struct {
	Expired int64
	Deleted int64
	Purged  int64
	Skipped bool
}

func (r SweepResult) Changed() bool { return r.Expired+r.Deleted+r.Purged > 0 }

// Sweeper reclaims beds whose allocation was never confirmed within the
// grace window.  It runs SweepOnce on every tick between Start and Stop.
type Sweeper struct {
	store  SweepStore
	cfg    config.BedConfig
	locker Locker

	log      *zap.Logger
	metrics  *metrics.Collector
	now      func() time.Time
	onChange ChangeHook

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type SweeperOption func(*Sweeper)

func WithSweepLocker(l Locker) SweeperOption { return func(s *Sweeper) { s.locker = l } }
func WithSweepLogger(l *zap.Logger) SweeperOption { return func(s *Sweeper) { s.log = l } }
func WithSweepMetrics(m *metrics.Collector) SweeperOption { return func(s *Sweeper) { s.metrics = m } }
func WithSweepClock(now func() time.Time) SweeperOption { return func(s *Sweeper) { s.now = now } }
func WithSweepChangeHook(h ChangeHook) SweeperOption { return func(s *Sweeper) { s.onChange = h } }

func NewSweeper(store SweepStore, cfg config.BedConfig, opts ...SweeperOption) *Sweeper {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 10 * time.Minute
	}
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = 2 * time.Hour
	}
	if cfg.SweepMode != SweepDelete {
		cfg.SweepMode = SweepExpire
	}
	s := &Sweeper{store: store, cfg: cfg, log: zap.NewNop(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start runs a sweep immediately and then on every interval until ctx is
// cancelled or Stop is called.  Calling Start on a running sweeper has no
// effect.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	s.log.Info("sweeper started",
		zap.Duration("interval", s.cfg.SweepInterval),
		zap.Duration("grace", s.cfg.GraceWindow),
		zap.String("mode", s.cfg.SweepMode))
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info("sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(s.cfg.SweepInterval)
	defer t.Stop()
	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// tick runs one sweep and swallows every failure, panics included, so the
// next tick still happens.
func (s *Sweeper) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.SweepRun("error")
			s.log.Error("sweeper panic", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
		s.log.Error("sweep failed", zap.Error(err))
	}
}

// SweepOnce reclaims stale un-admitted allocations and, when a retention is
// configured, purges old expired rows.  It returns Skipped when another
// replica holds the sweep lock.
func (s *Sweeper) SweepOnce(ctx context.Context) (res SweepResult, err error) {
	if s.locker != nil {
		release, ok, lerr := s.locker.TryLock(ctx)
		if lerr != nil {
			s.metrics.SweepRun("skipped")
			return SweepResult{Skipped: true}, fmt.Errorf("acquire sweep lock: %w", lerr)
		}
		if !ok {
			s.metrics.SweepRun("skipped")
			s.log.Debug("sweep skipped, lock held elsewhere")
			return SweepResult{Skipped: true}, nil
		}
		defer func() {
			if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
				s.log.Warn("release sweep lock", zap.Error(rerr))
			}
		}()
	}

	now := s.now().UTC()
	cutoff := now.Add(-s.cfg.GraceWindow)

	switch s.cfg.SweepMode {
	case SweepDelete:
		res.Deleted, err = s.store.DeleteStale(ctx, cutoff)
	default:
		res.Expired, err = s.store.ExpireStale(ctx, cutoff)
	}
	if err != nil {
		s.metrics.SweepRun("error")
		return res, fmt.Errorf("reclaim stale allocations: %w", err)
	}
	if s.cfg.ExpiredRetention > 0 {
		res.Purged, err = s.store.PurgeExpired(ctx, now.Add(-s.cfg.ExpiredRetention))
		if err != nil {
			s.metrics.SweepRun("error")
			s.finish(ctx, res)
			return res, fmt.Errorf("purge expired allocations: %w", err)
		}
	}
	s.metrics.SweepRun("ok")
	s.finish(ctx, res)
	return res, nil
}

func (s *Sweeper) finish(ctx context.Context, res SweepResult) {
	s.metrics.Reclaimed("expired", res.Expired)
	s.metrics.Reclaimed("deleted", res.Deleted)
	s.metrics.Reclaimed("purged", res.Purged)
	if !res.Changed() {
		return
	}
	s.log.Info("sweep reclaimed allocations",
		zap.Int64("expired", res.Expired),
		zap.Int64("deleted", res.Deleted),
		zap.Int64("purged", res.Purged))
	if s.onChange != nil {
		s.onChange(ctx)
	}
}
