package timeline

import (
	"math"
	"testing"
	"time"

	"github.com/upvigil/upvigil/internal/models"
)

func seconds(n int64) *int64 { return &n }

func ts(day, hour, minute int) time.Time {
	return time.Date(2024, 1, day, hour, minute, 0, 0, time.UTC)
}

// registration opens the history; the aggregator anchors day 0 on its end.
func registration(day, hour int) models.Event {
	return models.Event{ID: 1, Ended: ts(day, hour, 0)}
}

func outage(id, day, startHour, endDay, endHour int, crossed bool) models.Event {
	started := ts(day, startHour, 0)
	ended := ts(endDay, endHour, 0)
	return models.Event{
		ID:       id,
		Started:  started,
		Ended:    ended,
		Downtime: seconds(int64(ended.Sub(started).Seconds())),
		Crossed:  crossed,
	}
}

func approx(got, want float64) bool { return math.Abs(got-want) < 1e-9 }

func TestMidnightSplit(t *testing.T) {
	events := []models.Event{
		registration(1, 8),
		outage(2, 1, 22, 2, 2, false), // 22:00 Jan 1 -> 02:00 Jan 2
	}
	tl := Aggregate(events, ts(2, 12, 0), time.UTC)

	if len(tl.Days) != 2 {
		t.Fatalf("got %d days, want 2", len(tl.Days))
	}

	day1, day2 := tl.Days[0], tl.Days[1]
	if len(day1.Ranges) != 1 || day1.Ranges[0] != (Range{22, 24, false}) {
		t.Errorf("day 1 ranges = %v, want [{22 24 false}]", day1.Ranges)
	}
	if len(day2.Ranges) != 1 || day2.Ranges[0] != (Range{0, 2, false}) {
		t.Errorf("day 2 ranges = %v, want [{0 2 false}]", day2.Ranges)
	}
	if !approx(day1.CountedSeconds, 2*3600) || !approx(day2.CountedSeconds, 2*3600) {
		t.Errorf("counted split = %v / %v seconds, want 7200 / 7200",
			day1.CountedSeconds, day2.CountedSeconds)
	}
	if day1.Summary != "2 hours down" || day2.Summary != "2 hours down" {
		t.Errorf("summaries = %q / %q, want %q", day1.Summary, day2.Summary, "2 hours down")
	}
}

func TestOutageSpanningSeveralDays(t *testing.T) {
	events := []models.Event{
		registration(1, 8),
		outage(2, 1, 20, 3, 6, false), // 20:00 Jan 1 -> 06:00 Jan 3
	}
	tl := Aggregate(events, ts(3, 12, 0), time.UTC)

	if len(tl.Days) != 3 {
		t.Fatalf("got %d days, want 3", len(tl.Days))
	}
	want := [][]Range{
		{{20, 24, false}},
		{{0, 24, false}},
		{{0, 6, false}},
	}
	for i, day := range tl.Days {
		if len(day.Ranges) != 1 || day.Ranges[0] != want[i][0] {
			t.Errorf("day %d ranges = %v, want %v", i+1, day.Ranges, want[i])
		}
	}
	if !approx(tl.Days[1].CountedSeconds, 24*3600) {
		t.Errorf("full middle day counted %v seconds, want 86400", tl.Days[1].CountedSeconds)
	}
}

func TestCrossedEventsOnlyFeedExcluded(t *testing.T) {
	events := []models.Event{
		registration(1, 8),
		outage(2, 2, 3, 2, 4, true), // 1 hour, excluded
	}
	tl := Aggregate(events, ts(2, 12, 0), time.UTC)

	day := tl.Days[1]
	if day.CountedSeconds != 0 {
		t.Errorf("counted = %v, want 0 for a crossed-only day", day.CountedSeconds)
	}
	if !approx(day.ExcludedSeconds, 3600) {
		t.Errorf("excluded = %v, want 3600", day.ExcludedSeconds)
	}
	if day.Summary != "0 seconds down ( + 1 hour excluded)" {
		t.Errorf("summary = %q", day.Summary)
	}

	for _, lane := range tl.Lanes {
		for nday, rg := range lane.Ranges {
			if rg == (Range{}) {
				continue
			}
			if lane.Crossed != rg.Crossed {
				t.Errorf("day %d: range %v landed in lane with Crossed=%v", nday, rg, lane.Crossed)
			}
			if !lane.Crossed {
				t.Errorf("crossed event leaked into a counted lane: %v", rg)
			}
		}
	}
}

func TestLaneGrowth(t *testing.T) {
	events := []models.Event{
		registration(1, 8),
		outage(2, 2, 1, 2, 2, false),
		outage(3, 2, 5, 2, 6, false),
		outage(4, 2, 9, 2, 10, false),
		outage(5, 3, 14, 3, 15, true),
	}
	tl := Aggregate(events, ts(3, 23, 0), time.UTC)

	if len(tl.Days) != 3 {
		t.Fatalf("got %d days, want 3", len(tl.Days))
	}

	var counted, crossed int
	for _, lane := range tl.Lanes {
		if lane.Crossed {
			crossed++
		} else {
			counted++
		}
		if got := len(lane.Ranges); got != len(tl.Days) {
			t.Errorf("lane has %d day slots, want %d", got, len(tl.Days))
		}
	}
	if counted != 3 {
		t.Errorf("counted lanes = %d, want 3 (one per simultaneous same-day range)", counted)
	}
	if crossed != 1 {
		t.Errorf("crossed lanes = %d, want 1", crossed)
	}

	// Counted lanes come first and carry day 2's three ranges; every other
	// day slot in them stays the zero placeholder.
	for i := 0; i < 3; i++ {
		lane := tl.Lanes[i]
		if lane.Ranges[1] == (Range{}) {
			t.Errorf("counted lane %d has no range on day 2", i)
		}
		if lane.Ranges[0] != (Range{}) || lane.Ranges[2] != (Range{}) {
			t.Errorf("counted lane %d not zeroed on unused days: %v", i, lane.Ranges)
		}
	}
	if tl.Lanes[3].Ranges[2] != (Range{14, 15, true}) {
		t.Errorf("crossed lane day 3 = %v, want {14 15 true}", tl.Lanes[3].Ranges[2])
	}
}

func TestMetadataEventsSkipped(t *testing.T) {
	events := []models.Event{
		registration(1, 8),
		{ID: 2, Started: ts(1, 10, 0), Ended: ts(1, 10, 0), OldIP: "10.0.0.1", NewIP: "10.0.0.2"},
		outage(3, 1, 12, 1, 13, false),
	}
	tl := Aggregate(events, ts(1, 23, 0), time.UTC)

	if got := len(tl.Days[0].Ranges); got != 1 {
		t.Errorf("got %d ranges, want 1 (address change must not chart)", got)
	}
}

func TestDayWithNoEvents(t *testing.T) {
	events := []models.Event{
		registration(1, 8),
		outage(2, 3, 10, 3, 11, false),
	}
	tl := Aggregate(events, ts(3, 23, 0), time.UTC)

	if len(tl.Days) != 3 {
		t.Fatalf("got %d days, want 3", len(tl.Days))
	}
	quiet := tl.Days[1]
	if len(quiet.Ranges) != 0 {
		t.Errorf("quiet day has ranges: %v", quiet.Ranges)
	}
	if quiet.Summary != "0 seconds down" {
		t.Errorf("quiet day summary = %q, want %q", quiet.Summary, "0 seconds down")
	}
}

func TestFractionalHours(t *testing.T) {
	events := []models.Event{
		registration(1, 8),
		{
			ID: 2, Started: ts(1, 9, 30), Ended: ts(1, 10, 45),
			Downtime: seconds(4500),
		},
	}
	tl := Aggregate(events, ts(1, 23, 0), time.UTC)

	rg := tl.Days[0].Ranges[0]
	if !approx(rg.Start, 9.5) || !approx(rg.End, 10.75) {
		t.Errorf("range = [%v, %v], want [9.5, 10.75]", rg.Start, rg.End)
	}
}

func TestEmptyInput(t *testing.T) {
	tl := Aggregate(nil, ts(1, 12, 0), time.UTC)
	if len(tl.Days) != 0 || len(tl.Lanes) != 0 {
		t.Errorf("Aggregate(nil) = %+v, want empty", tl)
	}
}

func TestDayLabels(t *testing.T) {
	events := []models.Event{
		registration(1, 8),
		outage(2, 1, 12, 1, 13, false),
	}
	tl := Aggregate(events, ts(2, 12, 0), time.UTC)

	if tl.Days[0].Label != "2024-01-01" || tl.Days[1].Label != "2024-01-02" {
		t.Errorf("labels = %q, %q", tl.Days[0].Label, tl.Days[1].Label)
	}
}
