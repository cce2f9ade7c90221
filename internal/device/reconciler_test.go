package device

import (
	"testing"
	"time"

	"github.com/upvigil/upvigil/internal/models"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testReconciler() *Reconciler {
	return NewReconciler(DefaultBlackoutCoefficient, DefaultAliveGrace,
		WithClock(func() time.Time { return testNow }))
}

func seconds(n int64) *int64 { return &n }

func testDevice() *models.Device {
	return &models.Device{
		ID:                1,
		Title:             "router",
		Created:           testNow.Add(-30 * 24 * time.Hour),
		Updated:           testNow.Add(-10 * time.Second),
		Interval:          60,
		DowntimeRaw:       3600,
		DowntimeCorrected: 1800,
		Version:           4,
		Events: []models.Event{
			{ID: 1, Ended: testNow.Add(-29 * 24 * time.Hour)},
			{ID: 2, Started: testNow.Add(-48 * time.Hour), Ended: testNow.Add(-47 * time.Hour), Downtime: seconds(3600)},
			{ID: 3, Started: testNow.Add(-24 * time.Hour), Ended: testNow.Add(-24 * time.Hour), NewIP: "10.0.0.2"},
		},
	}
}

func TestLivenessAndBlackoutWindows(t *testing.T) {
	r := testReconciler()

	tests := []struct {
		name         string
		sinceUpdate  time.Duration
		wantAlive    bool
		wantBlackout bool
	}{
		{"fresh check-in", 10 * time.Second, true, false},
		{"at interval plus grace", 65 * time.Second, true, false},
		{"past grace, within blackout window", 100 * time.Second, false, false},
		{"at blackout boundary", 150 * time.Second, false, false},
		{"past blackout window", 500 * time.Second, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testDevice()
			d.Updated = testNow.Add(-tt.sinceUpdate)
			if got := r.Alive(d); got != tt.wantAlive {
				t.Errorf("Alive() = %v, want %v", got, tt.wantAlive)
			}
			if got := r.InBlackout(d); got != tt.wantBlackout {
				t.Errorf("InBlackout() = %v, want %v", got, tt.wantBlackout)
			}
		})
	}
}

func TestNeverCheckedIn(t *testing.T) {
	r := testReconciler()
	d := testDevice()
	d.Updated = time.Time{}

	if r.Alive(d) {
		t.Error("Alive() = true for a device that never checked in")
	}
	if !r.InBlackout(d) {
		t.Error("InBlackout() = false for a device that never checked in")
	}

	_, snap := r.Reconcile(d, nil)
	last := snap.Events[len(snap.Events)-1]
	if !last.Synthetic() {
		t.Fatal("no synthetic event for a device that never checked in")
	}
	if last.HasDowntime() {
		t.Error("synthetic downtime should be nil when there is no check-in to measure from")
	}
}

func TestReconcileIsIdempotentWithoutChanges(t *testing.T) {
	r := testReconciler()
	d := testDevice()

	cache, _ := r.Reconcile(d, nil)
	again, _ := r.Reconcile(d, cache)

	if again != cache {
		t.Error("cache replaced although version, raw downtime and blackout state were all unchanged")
	}
}

func TestReconcileReplacesCacheOnTriggers(t *testing.T) {
	r := testReconciler()

	tests := []struct {
		name   string
		mutate func(*models.Device)
	}{
		{"version bump", func(d *models.Device) { d.Version++ }},
		{"raw downtime change", func(d *models.Device) { d.DowntimeRaw += 120 }},
		{"blackout", func(d *models.Device) { d.Updated = testNow.Add(-500 * time.Second) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testDevice()
			cache, _ := r.Reconcile(d, nil)
			tt.mutate(d)
			next, _ := r.Reconcile(d, cache)
			if next == cache {
				t.Error("cache not replaced")
			}
		})
	}
}

func TestReconcileSuppressesChurnFromUnchangedPolls(t *testing.T) {
	r := testReconciler()
	d := testDevice()
	cache, _ := r.Reconcile(d, nil)

	// Same totals and version, but the poll happens to carry an extra
	// event. Without a trigger the cached history must stay untouched.
	polled := testDevice()
	polled.Events = append(polled.Events, models.Event{
		ID: 4, Started: testNow.Add(-time.Hour), Ended: testNow.Add(-30 * time.Minute), Downtime: seconds(1800),
	})
	next, snap := r.Reconcile(polled, cache)

	if next != cache {
		t.Fatal("cache replaced without a trigger")
	}
	if got := len(snap.Events); got != len(cache.Device.Events) {
		t.Errorf("snapshot has %d events, want the %d cached ones", got, len(cache.Device.Events))
	}
}

func TestSyntheticOutageAppendedDuringBlackout(t *testing.T) {
	r := testReconciler()
	d := testDevice()
	d.Updated = testNow.Add(-500 * time.Second)

	cache, snap := r.Reconcile(d, nil)

	if !snap.InBlackout {
		t.Fatal("InBlackout = false, want true for updated = now-500s, interval = 60s")
	}
	last := snap.Events[len(snap.Events)-1]
	if !last.Synthetic() {
		t.Fatal("no synthetic event appended during blackout")
	}
	if last.Downtime == nil || *last.Downtime != 500 {
		t.Errorf("synthetic downtime = %v, want 500", last.Downtime)
	}
	if !last.Started.Equal(d.Updated) || !last.Ended.Equal(testNow) {
		t.Errorf("synthetic range = [%v, %v], want [updated, now]", last.Started, last.Ended)
	}

	// The synthetic event must never leak into the cache itself.
	for _, ev := range cache.Device.Events {
		if ev.Synthetic() {
			t.Error("synthetic event persisted into the cache")
		}
	}
}

func TestSyntheticOutageClearedOnceAlive(t *testing.T) {
	r := testReconciler()
	d := testDevice()
	d.Updated = testNow.Add(-500 * time.Second)
	cache, snap := r.Reconcile(d, nil)
	if !snap.Events[len(snap.Events)-1].Synthetic() {
		t.Fatal("expected synthetic event while in blackout")
	}

	// Device comes back: fresh check-in, downtime totals bumped.
	d.Updated = testNow.Add(-5 * time.Second)
	d.DowntimeRaw += 500
	d.Version++
	_, snap = r.Reconcile(d, cache)

	if !snap.Alive {
		t.Error("Alive = false after fresh check-in")
	}
	for _, ev := range snap.Events {
		if ev.Synthetic() {
			t.Error("stale synthetic event survived the transition back to alive")
		}
	}
}

func TestLastOutageEndDerivation(t *testing.T) {
	r := testReconciler()

	t.Run("most recent event with downtime", func(t *testing.T) {
		d := testDevice()
		_, snap := r.Reconcile(d, nil)
		want := testNow.Add(-47 * time.Hour) // event 2; event 3 is metadata-only
		if !snap.LastOutageEnd.Equal(want) {
			t.Errorf("LastOutageEnd = %v, want %v", snap.LastOutageEnd, want)
		}
	})

	t.Run("falls back to earliest event", func(t *testing.T) {
		d := testDevice()
		d.Events = []models.Event{
			{ID: 1, Ended: testNow.Add(-29 * 24 * time.Hour)},
			{ID: 2, Started: testNow.Add(-24 * time.Hour), Ended: testNow.Add(-24 * time.Hour), NewIP: "10.0.0.2"},
		}
		_, snap := r.Reconcile(d, nil)
		want := testNow.Add(-29 * 24 * time.Hour)
		if !snap.LastOutageEnd.Equal(want) {
			t.Errorf("LastOutageEnd = %v, want %v", snap.LastOutageEnd, want)
		}
	})

	t.Run("stable across non-replacing polls", func(t *testing.T) {
		d := testDevice()
		cache, first := r.Reconcile(d, nil)
		_, second := r.Reconcile(testDevice(), cache)
		if !second.LastOutageEnd.Equal(first.LastOutageEnd) {
			t.Errorf("LastOutageEnd changed across unchanged polls: %v -> %v",
				first.LastOutageEnd, second.LastOutageEnd)
		}
	})
}

func TestReconcileSortsEventsByID(t *testing.T) {
	r := testReconciler()
	d := testDevice()
	d.Events = []models.Event{d.Events[2], d.Events[0], d.Events[1]}

	cache, _ := r.Reconcile(d, nil)
	for i := 1; i < len(cache.Device.Events); i++ {
		if cache.Device.Events[i-1].ID > cache.Device.Events[i].ID {
			t.Fatalf("events not sorted by id: %v", cache.Device.Events)
		}
	}
}

func TestMetricsAdjustOnlyWhileUnreachable(t *testing.T) {
	r := testReconciler()

	alive := testDevice()
	_, aliveSnap := r.Reconcile(alive, nil)

	silent := testDevice()
	silent.Updated = testNow.Add(-500 * time.Second)
	_, silentSnap := r.Reconcile(silent, nil)

	if silentSnap.Uptime.Real > aliveSnap.Uptime.Real {
		t.Errorf("real uptime rose while unreachable: alive %d, silent %d",
			aliveSnap.Uptime.Real, silentSnap.Uptime.Real)
	}
	if silentSnap.Uptime.Corrected > aliveSnap.Uptime.Corrected {
		t.Errorf("corrected uptime rose while unreachable: alive %d, silent %d",
			aliveSnap.Uptime.Corrected, silentSnap.Uptime.Corrected)
	}
}
