// Package device reconciles freshly fetched device records into a
// stale-tolerant local cache and derives liveness, blackout state and the
// uptime metrics shown for a device.
//
// The cache exists because the live record is re-fetched frequently and
// must not churn the rendered history on every harmless "still alive"
// poll. It is replaced wholesale, never partially mutated; a reader
// holding the previous snapshot keeps a consistent view.
package device

import (
	"time"

	"github.com/upvigil/upvigil/internal/models"
)

const (
	// DefaultBlackoutCoefficient is the multiplier over the expected
	// check-in interval after which a silent device counts as down.
	// Greater than 1 to absorb normal check-in jitter.
	DefaultBlackoutCoefficient = 2.5

	// DefaultAliveGrace is the slack added to the check-in interval for
	// the liveness predicate. Independent of, and much smaller than, the
	// blackout window: a device can be "not alive" without being in
	// blackout yet.
	DefaultAliveGrace = 5 * time.Second
)

// Cache is the locally held snapshot of one device plus the derived end
// of its most recent real outage.
type Cache struct {
	Device        models.Device
	LastOutageEnd time.Time
}

// Snapshot is the render-ready view produced by one reconciliation pass.
// Events holds the cached event list plus, while the device is in
// blackout, a synthetic in-progress outage appended last. The synthetic
// event is recomputed every pass and never stored in the cache.
type Snapshot struct {
	Device        models.Device
	Events        []models.Event
	LastOutageEnd time.Time
	Alive         bool
	InBlackout    bool
	Uptime        Metrics
}

// Reconciler merges fetched device records into a Cache.
type Reconciler struct {
	coefficient float64
	grace       time.Duration
	now         func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock substitutes the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// NewReconciler creates a Reconciler with the given blackout coefficient
// and liveness grace; non-positive values fall back to the defaults.
func NewReconciler(coefficient float64, grace time.Duration, opts ...Option) *Reconciler {
	r := &Reconciler{
		coefficient: coefficient,
		grace:       grace,
		now:         time.Now,
	}
	if r.coefficient <= 0 {
		r.coefficient = DefaultBlackoutCoefficient
	}
	if r.grace <= 0 {
		r.grace = DefaultAliveGrace
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Alive reports whether the device checked in within its expected
// interval plus the grace period. A device that never checked in is not
// alive.
func (r *Reconciler) Alive(d *models.Device) bool {
	return r.aliveAt(d, r.now())
}

// InBlackout reports whether the device has been silent for longer than
// interval times the blackout coefficient.
func (r *Reconciler) InBlackout(d *models.Device) bool {
	return r.inBlackoutAt(d, r.now())
}

// ShouldReplace reports whether the cache must be rebuilt from the fetched
// record: on blackout, on a raw-downtime change, on a version bump, or
// when there is no cache yet. Anything else is a harmless poll and the
// cached events stay untouched.
func (r *Reconciler) ShouldReplace(d *models.Device, prev *Cache) bool {
	return r.shouldReplaceAt(d, prev, r.now())
}

// Reconcile merges a fetched record into the cache and returns the
// (possibly reused) cache alongside the render snapshot. When nothing
// relevant changed the returned cache is the previous one, untouched.
func (r *Reconciler) Reconcile(d *models.Device, prev *Cache) (*Cache, Snapshot) {
	now := r.now()
	blackout := r.inBlackoutAt(d, now)

	cache := prev
	if r.shouldReplaceAt(d, prev, now) {
		cache = r.rebuild(d)
	}

	events := make([]models.Event, len(cache.Device.Events))
	copy(events, cache.Device.Events)
	if blackout {
		events = append(events, r.syntheticOutage(d, now))
	}

	return cache, Snapshot{
		Device:        *d,
		Events:        events,
		LastOutageEnd: cache.LastOutageEnd,
		Alive:         r.aliveAt(d, now),
		InBlackout:    blackout,
		Uptime:        r.metricsAt(d, now),
	}
}

func (r *Reconciler) aliveAt(d *models.Device, now time.Time) bool {
	if d.Updated.IsZero() {
		return false
	}
	window := time.Duration(d.Interval)*time.Second + r.grace
	return now.Sub(d.Updated) <= window
}

func (r *Reconciler) inBlackoutAt(d *models.Device, now time.Time) bool {
	if d.Updated.IsZero() {
		return true
	}
	window := time.Duration(float64(d.Interval) * r.coefficient * float64(time.Second))
	return now.Sub(d.Updated) > window
}

func (r *Reconciler) shouldReplaceAt(d *models.Device, prev *Cache, now time.Time) bool {
	if prev == nil {
		return true
	}
	return r.inBlackoutAt(d, now) ||
		d.DowntimeRaw != prev.Device.DowntimeRaw ||
		d.Version != prev.Device.Version
}

// rebuild copies the fetched record into a fresh cache, sorts its events
// ascending by id and derives LastOutageEnd.
func (r *Reconciler) rebuild(d *models.Device) *Cache {
	c := &Cache{Device: *d}
	c.Device.Events = make([]models.Event, len(d.Events))
	copy(c.Device.Events, d.Events)
	models.SortEventsByID(c.Device.Events)
	c.LastOutageEnd = lastOutageEnd(c.Device.Events)
	return c
}

// lastOutageEnd scans backward for the most recent event with recorded
// downtime, falling back to the earliest event when only metadata events
// exist.
func lastOutageEnd(events []models.Event) time.Time {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].HasDowntime() || i == 0 {
			return events[i].Ended
		}
	}
	return time.Time{}
}

// syntheticOutage builds the in-progress outage for a device currently in
// blackout. Downtime is nil for a device that never checked in, since
// there is no check-in to measure from.
func (r *Reconciler) syntheticOutage(d *models.Device, now time.Time) models.Event {
	ev := models.Event{Started: d.Updated, Ended: now}
	if !d.Updated.IsZero() {
		sec := int64(now.Sub(d.Updated).Seconds())
		ev.Downtime = &sec
	}
	return ev
}

// metricsAt computes both uptime percentages. While the device is not
// alive, the time elapsed since its last check-in is not yet part of the
// server's accumulated totals, so it is added to both before computing.
func (r *Reconciler) metricsAt(d *models.Device, now time.Time) Metrics {
	raw := float64(d.DowntimeRaw)
	corrected := float64(d.DowntimeCorrected)
	if !r.aliveAt(d, now) && !d.Updated.IsZero() {
		extra := now.Sub(d.Updated).Seconds()
		raw += extra
		corrected += extra
	}
	return Metrics{
		Real:      UptimePercent(d.Created, now, raw),
		Corrected: UptimePercent(d.Created, now, corrected),
	}
}
