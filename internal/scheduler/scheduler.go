// Package scheduler runs the poll loop: sweep all active
// subscriptions on a fixed interval, detect new items and deliver
// them.
package scheduler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"rsscord/internal/delivery"
	"rsscord/internal/fetcher"
	"rsscord/internal/model"
	"rsscord/internal/novelty"
	"rsscord/internal/storage"
)

const (
	defaultInterval = 5 * time.Minute
	// Spacing between two subscriptions of the same sweep, to smooth
	// external call volume.
	subscriptionDelay = 250 * time.Millisecond
)

// Scheduler periodically checks subscriptions and posts new items.
type Scheduler struct {
	store    storage.Storage
	fetcher  *fetcher.Fetcher
	pipeline *delivery.Pipeline
	log      *slog.Logger

	interval time.Duration
	subDelay time.Duration

	// running guards against overlapping sweeps: a tick that fires
	// while a sweep is still in flight is dropped, not queued.
	running sync.Mutex
}

// New creates a Scheduler with the default HTTP client and interval.
func New(store storage.Storage, pipeline *delivery.Pipeline, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		fetcher:  fetcher.New(http.DefaultClient),
		pipeline: pipeline,
		log:      log,
		interval: defaultInterval,
		subDelay: subscriptionDelay,
	}
}

// NewWithFetcher creates a Scheduler with a custom fetcher (useful for testing).
func NewWithFetcher(store storage.Storage, f *fetcher.Fetcher, pipeline *delivery.Pipeline, log *slog.Logger) *Scheduler {
	s := New(store, pipeline, log)
	s.fetcher = f
	return s
}

// SetInterval overrides the default poll interval.
func (s *Scheduler) SetInterval(d time.Duration) {
	s.interval = d
}

// SetSubscriptionDelay overrides the spacing between subscriptions of
// one sweep (useful for testing).
func (s *Scheduler) SetSubscriptionDelay(d time.Duration) {
	s.subDelay = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled. The
// first sweep happens immediately.
func (s *Scheduler) Run(ctx context.Context) {
	s.checkAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

// checkAll performs one sweep over all active subscriptions. At most
// one sweep runs at a time; triggers that fire mid-sweep are dropped.
func (s *Scheduler) checkAll(ctx context.Context) {
	if !s.running.TryLock() {
		s.log.Warn("poll trigger dropped, previous sweep still running")
		return
	}
	defer s.running.Unlock()

	subs, err := s.store.ListActiveSubscriptions(ctx)
	if err != nil {
		s.log.Error("list active subscriptions", "error", err)
		return
	}

	s.log.Debug("sweep started", "subscriptions", len(subs))

	for i, sub := range subs {
		if ctx.Err() != nil {
			return
		}
		if i > 0 {
			if !sleepCtx(ctx, s.subDelay) {
				return
			}
		}
		s.checkSubscription(ctx, sub)
	}
}

// checkSubscription polls one subscription. Fetch failures leave the
// marker untouched; the next sweep retries. After a delivered batch
// the marker is persisted immediately so a crash mid-sweep does not
// replay items for subscriptions already processed.
func (s *Scheduler) checkSubscription(ctx context.Context, sub model.Subscription) {
	snap, err := s.fetcher.Fetch(ctx, sub.URL)
	if err != nil {
		s.log.Error("fetch feed", "subscription_id", sub.ID, "url", sub.URL, "error", err)
		return
	}

	marker, err := s.store.GetMarker(ctx, sub.ID)
	if err != nil {
		s.log.Error("get marker", "subscription_id", sub.ID, "error", err)
		return
	}

	res := novelty.Detect(marker, snap.Items)

	if len(res.NewItems) > 0 {
		sent := s.pipeline.Deliver(ctx, sub, snap.Title, res.NewItems)
		s.log.Info("delivered new items",
			"subscription_id", sub.ID, "feed", snap.Title, "new", len(res.NewItems), "sent", sent)
	}

	if res.Marker != "" && res.Marker != marker {
		if err := s.store.SetMarker(ctx, sub.ID, res.Marker); err != nil {
			s.log.Error("set marker", "subscription_id", sub.ID, "error", err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
