// Package report renders downtime history into static artifacts: a PNG
// bar chart of per-day downtime and a plain-text summary, suitable as
// evidence when disputing outages with a provider.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/upvigil/upvigil/internal/device"
	"github.com/upvigil/upvigil/internal/timeline"
)

// Generator writes report artifacts under a base directory.
type Generator struct {
	log *zap.Logger
	dir string
	now func() time.Time
}

// NewGenerator creates a Generator writing under dir.
func NewGenerator(dir string, log *zap.Logger) *Generator {
	return &Generator{log: log, dir: dir, now: time.Now}
}

// Generate writes the chart and text summary for one snapshot into a
// timestamped subdirectory and returns its path. Individual artifact
// failures are logged, not fatal; an error is returned only when the
// directory itself cannot be created.
func (g *Generator) Generate(snap device.Snapshot, tl timeline.Timeline) (string, error) {
	stamp := g.now().Format("2006-01-02_15-04-05")
	reportDir := filepath.Join(g.dir, fmt.Sprintf("downtime_report_%s", stamp))
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}

	if err := g.generateDowntimeChart(reportDir, tl); err != nil {
		g.log.Warn("downtime chart failed", zap.Error(err))
	}
	if err := g.generateTextSummary(reportDir, snap, tl); err != nil {
		g.log.Warn("text summary failed", zap.Error(err))
	}

	g.log.Info("report generated", zap.String("dir", reportDir))
	return reportDir, nil
}
