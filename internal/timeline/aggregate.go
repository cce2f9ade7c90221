// Package timeline folds an ordered outage-event list into per-calendar-day
// buckets of fractional hour ranges, plus the parallel lanes a stacked bar
// chart needs to draw several same-day outages side by side.
package timeline

import (
	"time"

	"github.com/upvigil/upvigil/internal/models"
	"github.com/upvigil/upvigil/internal/timeutil"
)

// Range is one outage interval within a single day, in fractional hours
// of that day (hour + minute/60), both bounds in [0, 24]. A zero Range is
// the empty placeholder lanes use for days they have nothing to draw.
type Range struct {
	Start   float64
	End     float64
	Crossed bool
}

// Day is one calendar-day bucket.
type Day struct {
	// Date is the local midnight opening the day; Label its display form.
	Date  time.Time
	Label string

	Ranges []Range

	// CountedSeconds sums downtime from non-crossed ranges, ExcludedSeconds
	// from crossed ones. Summary is the human-readable combination.
	CountedSeconds  float64
	ExcludedSeconds float64
	Summary         string
}

// Lane is one chart series. Ranges is indexed by day, aligned across all
// lanes; days the lane does not use hold a zero Range.
type Lane struct {
	Crossed bool
	Ranges  []Range
}

// Timeline is the aggregation result: day buckets from the first event's
// day through today, and the lanes derived from them. Non-crossed lanes
// come first.
type Timeline struct {
	Days  []Day
	Lanes []Lane
}

// Aggregate buckets events into calendar days of loc, from the day of the
// first event's end through now. Events must be ordered; index 0 is the
// registration marker and is skipped. Events without recorded downtime are
// ignored. An outage running past midnight is clipped at 24 and resumes at
// hour 0 of the next day.
func Aggregate(events []models.Event, now time.Time, loc *time.Location) Timeline {
	if loc == nil {
		loc = time.Local
	}
	if len(events) == 0 {
		return Timeline{}
	}

	first := events[0].Ended.In(loc)
	current := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)

	// night carries an outage that was still running at midnight into the
	// next day's bucket.
	night := false
	n := 1

	var days []Day
	for !current.After(now) {
		tomorrow := current.AddDate(0, 0, 1)
		var counted, excluded float64
		var ranges []Range

		for n < len(events) {
			ev := events[n]
			if !ev.HasDowntime() {
				n++
				continue
			}
			started := ev.Started.In(loc)
			ended := ev.Ended.In(loc)

			// First event of a later day; this day is complete.
			if !started.Before(tomorrow) {
				break
			}
			if night {
				started = current
			}
			if ended.After(tomorrow) {
				// Clip at midnight and leave the cursor on this event so
				// the remainder lands in the next day.
				night = true
				span := tomorrow.Sub(started).Seconds()
				if ev.Crossed {
					excluded += span
				} else {
					counted += span
				}
				ranges = append(ranges, Range{hourOf(started), 24, ev.Crossed})
				break
			}
			night = false
			span := ended.Sub(started).Seconds()
			if ev.Crossed {
				excluded += span
			} else {
				counted += span
			}
			ranges = append(ranges, Range{hourOf(started), hourOf(ended), ev.Crossed})
			n++
		}

		days = append(days, Day{
			Date:            current,
			Label:           current.Format("2006-01-02"),
			Ranges:          ranges,
			CountedSeconds:  counted,
			ExcludedSeconds: excluded,
			Summary:         summarize(counted, excluded),
		})
		current = tomorrow
	}

	return Timeline{Days: days, Lanes: allocateLanes(days)}
}

func hourOf(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60
}

func summarize(counted, excluded float64) string {
	s := timeutil.FormatSeconds(counted) + " down"
	if excluded > 0 {
		s += " ( + " + timeutil.FormatSeconds(excluded) + " excluded)"
	}
	return s
}

// allocateLanes spreads each day's ranges over parallel lanes, non-crossed
// first, creating a lane the first time some day needs more simultaneous
// same-category ranges than exist so far. New lanes start zeroed for every
// day, keeping bar layering aligned across the whole chart.
func allocateLanes(days []Day) []Lane {
	var lanes []Lane
	for _, crossed := range []bool{false, true} {
		base := len(lanes)
		for nday := range days {
			m := base
			for _, rg := range days[nday].Ranges {
				if rg.Crossed != crossed {
					continue
				}
				if m >= len(lanes) {
					lanes = append(lanes, Lane{Crossed: crossed, Ranges: make([]Range, len(days))})
				}
				lanes[m].Ranges[nday] = rg
				m++
			}
		}
	}
	return lanes
}
