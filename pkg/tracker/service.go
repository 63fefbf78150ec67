package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/opawatch/tracker/pkg/common/logger"
)

// seedBackfill is how far back the one-time initial refresh reaches.
const seedBackfill = 7 * 24 * time.Hour

type Store interface {
	CreateUpdate(ctx context.Context, u *Update) error
	CreateRefresh(ctx context.Context, ref *Refresh) error
	SaveRefresh(ctx context.Context, ref *Refresh) error
	LastRefresh(ctx context.Context) (*Refresh, error)
	LastCompletedRefresh(ctx context.Context) (*Refresh, error)
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

// Service drives refresh attempts: due-ness, updater execution, watermark
// bookkeeping and the Refresh audit trail. Single writer; the process-local
// mutex serializes triggers within the process and the optional redis lock
// serializes them across processes.
type Service struct {
	store    Store
	fetcher  RowFetcher
	updaters []Updater
	producer EventPublisher
	lock     *RefreshLock

	refreshInterval time.Duration
	retryInterval   time.Duration

	mu sync.Mutex
}

func NewService(store Store, fetcher RowFetcher, updaters []Updater, producer EventPublisher, lock *RefreshLock, refreshInterval, retryInterval time.Duration) *Service {
	return &Service{
		store:           store,
		fetcher:         fetcher,
		updaters:        updaters,
		producer:        producer,
		lock:            lock,
		refreshInterval: refreshInterval,
		retryInterval:   retryInterval,
	}
}

// IsDue reports whether a refresh attempt should run now. A completed
// refresh ages out after the refresh interval; a started or failed one
// retries after the shorter retry interval. No prior refresh means the
// seed path runs instead.
func (s *Service) IsDue(last *Refresh, now time.Time) bool {
	if last == nil {
		return false
	}

	elapsed := now.Sub(last.RefreshDate)
	switch last.Status {
	case RefreshCompleted:
		return elapsed > s.refreshInterval
	case RefreshStarted, RefreshFailed:
		return elapsed > s.retryInterval
	}
	return false
}

// Update is the idempotent refresh trigger: a no-op when nothing is due.
// No error escapes; a failed attempt is recorded and retried later.
func (s *Service) Update(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, err := s.store.LastRefresh(ctx)
	if err != nil {
		logger.Log.WithError(err).Error("failed to read last refresh")
		return
	}

	if last == nil {
		s.seed(ctx, now)
		return
	}

	if !s.IsDue(last, now) {
		logger.Log.WithField("last_refresh", last.RefreshDate).Debug("refresh not due, skipping")
		return
	}

	baseline := last
	if last.Status != RefreshCompleted {
		// A failed attempt never advances the baseline: re-base watermarks
		// on the last refresh that actually completed.
		baseline, err = s.store.LastCompletedRefresh(ctx)
		if err != nil {
			logger.Log.WithError(err).Error("failed to read last completed refresh")
			return
		}
		if baseline == nil {
			// Seeding writes a COMPLETED refresh before anything can fail,
			// so this indicates a corrupted audit trail.
			logger.Log.Error("no completed refresh exists to re-base from")
			return
		}
	}

	if s.lock != nil {
		release, ok := s.lock.Acquire(ctx)
		if !ok {
			logger.Log.Debug("refresh lock held elsewhere, skipping")
			return
		}
		defer release()
	}

	logger.Log.Debug("starting refresh")
	s.DoUpdate(ctx, baseline, now)
	logger.Log.Debug("refresh finished")
}

// seed records the one-time initial COMPLETED refresh with watermarks one
// week back. It guarantees a COMPLETED baseline exists before any attempt
// can fail.
func (s *Service) seed(ctx context.Context, now time.Time) {
	start := now.Add(-seedBackfill)
	ref := &Refresh{
		Status:      RefreshCompleted,
		RefreshDate: start,
	}
	for _, u := range s.updaters {
		mark := start
		ref.SetWatermark(u.UpdateType(), &mark)
	}

	if err := s.store.CreateRefresh(ctx, ref); err != nil {
		logger.Log.WithError(err).Error("failed to seed initial refresh")
		return
	}
	logger.Log.Info("first run, seeded refresh baseline")
}

// DoUpdate executes one refresh attempt: exactly one Refresh row moves
// STARTED -> COMPLETED or STARTED -> FAILED. Updates persisted before a
// mid-attempt failure stay persisted.
func (s *Service) DoUpdate(ctx context.Context, baseline *Refresh, now time.Time) {
	refresh := &Refresh{
		Status:      RefreshStarted,
		RefreshDate: now,
	}
	if err := s.store.CreateRefresh(ctx, refresh); err != nil {
		logger.Log.WithError(err).Error("failed to persist started refresh")
		return
	}

	total := 0
	var runErr error

	for _, u := range s.updaters {
		updates, err := runUpdater(ctx, s.fetcher, u, s.sinceFor(baseline, u.UpdateType()), now)
		if err != nil {
			runErr = err
			break
		}

		for _, update := range updates {
			if err := s.store.CreateUpdate(ctx, update); err != nil {
				runErr = err
				break
			}
		}
		if runErr != nil {
			break
		}

		// High-water mark: max event date of the new rows, or carry the
		// baseline forward when the source returned nothing.
		if len(updates) > 0 {
			latest := updates[0].EventDate
			for _, update := range updates[1:] {
				if update.EventDate.After(latest) {
					latest = update.EventDate
				}
			}
			// Watermarks never move backward, even when a source replays
			// rows older than the baseline.
			if prior := baseline.Watermark(u.UpdateType()); prior != nil && prior.After(latest) {
				latest = *prior
			}
			refresh.SetWatermark(u.UpdateType(), &latest)
		} else {
			refresh.SetWatermark(u.UpdateType(), baseline.Watermark(u.UpdateType()))
		}

		logger.Log.WithFields(map[string]interface{}{
			"updater": string(u.UpdateType()),
			"count":   len(updates),
		}).Debug("updater processed")

		total += len(updates)

		if s.producer != nil && len(updates) > 0 {
			_ = s.producer.PublishEvent(ctx, "updates.recorded", string(u.UpdateType()), map[string]interface{}{
				"count":        len(updates),
				"refresh_date": now,
			})
		}
	}

	if runErr != nil {
		refresh.Status = RefreshFailed
		logger.Log.WithError(runErr).Error("refresh failed")
	} else {
		refresh.Status = RefreshCompleted
		refresh.Updates = total
	}

	if err := s.store.SaveRefresh(ctx, refresh); err != nil {
		logger.Log.WithError(err).Error("failed to persist refresh outcome")
	}

	if s.producer != nil {
		eventType := "refresh.completed"
		if refresh.Status == RefreshFailed {
			eventType = "refresh.failed"
		}
		_ = s.producer.PublishEvent(ctx, eventType, "tracker", map[string]interface{}{
			"updates":      refresh.Updates,
			"refresh_date": refresh.RefreshDate,
		})
	}
}

// sinceFor resolves a source's incremental lower bound, falling back to the
// baseline's own refresh date when the watermark was never set.
func (s *Service) sinceFor(baseline *Refresh, t UpdateType) time.Time {
	if mark := baseline.Watermark(t); mark != nil {
		return *mark
	}
	return baseline.RefreshDate
}
