package device

import (
	"math"
	"time"
)

// Metrics holds the two uptime percentages for a device. Real is computed
// from raw accumulated downtime, crossed intervals included; Corrected
// excludes crossed intervals. Displayed as "real uptime" and "corrected
// uptime" respectively.
type Metrics struct {
	Real      int
	Corrected int
}

// UptimePercent computes round((total - downtime) / total * 100) over the
// device's lifetime. The result is clamped to [0, 100] and 100 is returned
// only for exactly zero downtime; any nonzero downtime that would round up
// to 100 reports 99 instead.
func UptimePercent(created, now time.Time, downtimeSeconds float64) int {
	total := now.Sub(created).Seconds()
	if total <= 0 {
		return 100
	}
	if downtimeSeconds < 0 {
		downtimeSeconds = 0
	}
	if downtimeSeconds > total {
		downtimeSeconds = total
	}
	pct := int(math.Round((total - downtimeSeconds) / total * 100))
	if downtimeSeconds > 0 && pct >= 100 {
		pct = 99
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}
