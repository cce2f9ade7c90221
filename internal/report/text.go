package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/upvigil/upvigil/internal/device"
	"github.com/upvigil/upvigil/internal/timeline"
	"github.com/upvigil/upvigil/internal/timeutil"
)

// generateTextSummary writes a plain-text rundown of the device state and
// its per-day downtime.
func (g *Generator) generateTextSummary(outputDir string, snap device.Snapshot, tl timeline.Timeline) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Downtime report: %s\n", snap.Device.Title)
	fmt.Fprintf(&b, "Generated: %s\n\n", g.now().Format("2006-01-02 15:04:05"))

	if snap.Device.Location != "" || snap.Device.ISP != "" {
		fmt.Fprintf(&b, "Location: %s\nISP: %s\n", snap.Device.Location, snap.Device.ISP)
	}
	fmt.Fprintf(&b, "Check-in interval: %d seconds\n", snap.Device.Interval)
	fmt.Fprintf(&b, "Real uptime: %d%%\n", snap.Uptime.Real)
	fmt.Fprintf(&b, "Corrected uptime: %d%%\n", snap.Uptime.Corrected)
	fmt.Fprintf(&b, "Total downtime: %s\n", timeutil.FormatSeconds(float64(snap.Device.DowntimeRaw)))
	if !snap.LastOutageEnd.IsZero() {
		fmt.Fprintf(&b, "Last outage ended: %s\n", timeutil.LocalDateTime(snap.LastOutageEnd))
	}
	if snap.InBlackout {
		b.WriteString("Device is currently unreachable.\n")
	}

	b.WriteString("\nPer-day downtime:\n")
	for _, day := range tl.Days {
		fmt.Fprintf(&b, "  %s: %s\n", day.Label, day.Summary)
	}

	b.WriteString("\nOutage events:\n")
	for _, ev := range snap.Events {
		if !ev.HasDowntime() {
			continue
		}
		line := fmt.Sprintf("  %s - %s: %s",
			timeutil.LocalDateTime(ev.Started),
			timeutil.LocalDateTime(ev.Ended),
			timeutil.FormatSeconds(float64(*ev.Downtime)))
		if ev.Crossed {
			line += " (excluded)"
		}
		if ev.Synthetic() {
			line += " (ongoing)"
		}
		if ev.Comment != "" {
			line += " - " + ev.Comment
		}
		b.WriteString(line + "\n")
	}

	filename := filepath.Join(outputDir, "summary.txt")
	return os.WriteFile(filename, []byte(b.String()), 0o644)
}
