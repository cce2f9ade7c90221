// Package tracker ties the pieces together: it subscribes to push
// notifications for one resource, re-fetches the device record whenever a
// refresh is signalled, reconciles it into the cache and rebuilds the
// downtime timeline. Readers get consistent snapshots under a read lock.
package tracker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upvigil/upvigil/internal/api"
	"github.com/upvigil/upvigil/internal/device"
	"github.com/upvigil/upvigil/internal/models"
	"github.com/upvigil/upvigil/internal/realtime"
	"github.com/upvigil/upvigil/internal/timeline"
)

// Wildcard subscribes to changes on any device; the tracker then follows
// the public listing instead of a single record.
const Wildcard = "*"

// Status is the condensed view the dashboard serves.
type Status struct {
	Resource        string    `json:"resource"`
	Title           string    `json:"title,omitempty"`
	Alive           bool      `json:"alive"`
	InBlackout      bool      `json:"in_blackout"`
	RealUptime      int       `json:"real_uptime"`
	CorrectedUptime int       `json:"corrected_uptime"`
	ConnectionAlive bool      `json:"connection_alive"`
	LastRefresh     time.Time `json:"last_refresh"`
	LastError       string    `json:"last_error,omitempty"`
}

// Tracker follows one resource (or the wildcard listing) and holds the
// latest reconciled state.
type Tracker struct {
	log      *zap.Logger
	svc      *api.Client
	rec      *device.Reconciler
	rt       *realtime.Manager
	resource string
	edit     bool
	loc      *time.Location
	now      func() time.Time

	mu          sync.RWMutex
	cache       *device.Cache
	snap        device.Snapshot
	hasSnapshot bool
	tl          timeline.Timeline
	listing     *models.Listing
	lastRefresh time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLocation sets the timezone used for day bucketing; defaults to the
// process-local zone.
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) { t.loc = loc }
}

// WithClock substitutes the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithEditAccess marks the resource as an edit token, which fetches the
// record with management fields included.
func WithEditAccess() Option {
	return func(t *Tracker) { t.edit = true }
}

// New creates a Tracker for the given resource.
func New(svc *api.Client, rec *device.Reconciler, rt *realtime.Manager, resource string, log *zap.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		log:      log,
		svc:      svc,
		rec:      rec,
		rt:       rt,
		resource: resource,
		loc:      time.Local,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run subscribes, starts the connection timers and refreshes on every
// push or fallback signal until ctx is cancelled. Signals arriving while
// a refresh is in flight coalesce into one follow-up refresh.
func (t *Tracker) Run(ctx context.Context) error {
	kick := make(chan struct{}, 1)
	sub := t.rt.Subscribe(ctx, t.resource, func() {
		select {
		case kick <- struct{}{}:
		default:
		}
	})
	defer sub.Close()

	go t.rt.Run(ctx)

	if err := t.Refresh(ctx); err != nil {
		t.log.Warn("initial refresh failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-kick:
			if err := t.Refresh(ctx); err != nil {
				t.log.Warn("refresh failed", zap.String("resource", t.resource), zap.Error(err))
			}
		}
	}
}

// Refresh fetches the latest state and reconciles it. For the wildcard
// resource it refreshes the public listing instead.
func (t *Tracker) Refresh(ctx context.Context) error {
	if t.resource == Wildcard {
		listing, err := t.svc.Listing(ctx)
		if err != nil {
			return err
		}
		t.mu.Lock()
		t.listing = listing
		t.lastRefresh = t.now()
		t.mu.Unlock()
		return nil
	}

	d, err := t.svc.Device(ctx, t.resource, t.edit)
	if err != nil {
		return err
	}

	t.mu.Lock()
	cache, snap := t.rec.Reconcile(d, t.cache)
	t.cache = cache
	t.snap = snap
	t.hasSnapshot = true
	t.tl = timeline.Aggregate(snap.Events, t.now(), t.loc)
	t.lastRefresh = t.now()
	t.mu.Unlock()

	t.log.Debug("reconciled",
		zap.String("resource", t.resource),
		zap.Bool("alive", snap.Alive),
		zap.Bool("blackout", snap.InBlackout))
	return nil
}

// Snapshot returns the latest reconciled device view; ok is false before
// the first successful refresh.
func (t *Tracker) Snapshot() (device.Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap, t.hasSnapshot
}

// Timeline returns the latest day-bucketed downtime aggregation.
func (t *Tracker) Timeline() timeline.Timeline {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tl
}

// Listing returns the latest public device index, when following the
// wildcard.
func (t *Tracker) Listing() *models.Listing {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.listing
}

// Status condenses the current state for the dashboard.
func (t *Tracker) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := Status{
		Resource:        t.resource,
		ConnectionAlive: t.rt.Alive(),
		LastRefresh:     t.lastRefresh,
		LastError:       t.svc.LastError(),
	}
	if t.hasSnapshot {
		s.Title = t.snap.Device.Title
		s.Alive = t.snap.Alive
		s.InBlackout = t.snap.InBlackout
		s.RealUptime = t.snap.Uptime.Real
		s.CorrectedUptime = t.snap.Uptime.Corrected
	}
	return s
}
