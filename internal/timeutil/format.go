// Package timeutil formats durations and timestamps the way the service
// presents them: seconds become "N days N hours" style strings, UTC
// timestamps become local display strings.
package timeutil

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	secondsPerMinute = 60
	secondsPerHour   = 3600
	secondsPerDay    = 86400
)

// FormatSeconds renders a second count as a human duration:
// "N day(s) [N hour(s)]", "[N hour(s)] [N minute(s)]" or "N second(s)".
// Minutes are dropped once the duration reaches whole days.
func FormatSeconds(seconds float64) string {
	s := int64(math.Round(seconds))
	var b strings.Builder
	hasDays := false

	if s >= secondsPerDay {
		fmt.Fprintf(&b, "%d day%s ", s/secondsPerDay, plural(s >= 2*secondsPerDay))
		s %= secondsPerDay
		hasDays = true
	}
	if s >= secondsPerHour {
		fmt.Fprintf(&b, "%d hour%s ", s/secondsPerHour, plural(s >= 2*secondsPerHour))
		s %= secondsPerHour
	}
	if s >= secondsPerMinute && !hasDays {
		fmt.Fprintf(&b, "%d minute%s ", s/secondsPerMinute, plural(s >= 2*secondsPerMinute))
		s %= secondsPerMinute
	}
	if b.Len() == 0 {
		fmt.Fprintf(&b, "%d second%s ", s, plural(s != 1))
	}
	return strings.TrimSpace(b.String())
}

// FormatDuration is FormatSeconds for a time.Duration.
func FormatDuration(d time.Duration) string {
	return FormatSeconds(d.Seconds())
}

// LocalDateTime converts a UTC timestamp to a local display string.
// A zero time renders as the empty string.
func LocalDateTime(t time.Time) string {
	return LocalDateTimeIn(t, time.Local)
}

// LocalDateTimeIn is LocalDateTime with an explicit location.
func LocalDateTimeIn(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format("2006-01-02 15:04:05")
}

func plural(p bool) string {
	if p {
		return "s"
	}
	return ""
}
