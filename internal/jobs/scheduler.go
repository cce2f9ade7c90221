// Package jobs runs the scheduled background work: periodic report
// snapshots and pruning of old report directories.
package jobs

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/upvigil/upvigil/internal/report"
	"github.com/upvigil/upvigil/internal/tracker"
)

// keepReports is how many timestamped report directories survive pruning.
const keepReports = 30

// Scheduler manages background jobs.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
	tr   *tracker.Tracker
	gen  *report.Generator
	dir  string
}

// NewScheduler creates a job scheduler over the tracker's state.
func NewScheduler(tr *tracker.Tracker, gen *report.Generator, reportDir string, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log,
		tr:   tr,
		gen:  gen,
		dir:  reportDir,
	}
}

// Start registers the jobs and starts the cron loop. schedule is a
// standard cron expression for report generation.
func (s *Scheduler) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.snapshotReport); err != nil {
		return err
	}

	// Prune old reports daily at 3:14 AM.
	if _, err := s.cron.AddFunc("14 3 * * *", s.pruneOldReports); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("job scheduler started", zap.String("report_schedule", schedule))
	return nil
}

// Stop stops the scheduler; running jobs finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.log.Info("job scheduler stopped")
}

// snapshotReport renders the current state into a report directory. A
// tracker without data yet is skipped silently.
func (s *Scheduler) snapshotReport() {
	snap, ok := s.tr.Snapshot()
	if !ok {
		s.log.Debug("report skipped, no device data yet")
		return
	}
	if _, err := s.gen.Generate(snap, s.tr.Timeline()); err != nil {
		s.log.Warn("report generation failed", zap.Error(err))
	}
}

// pruneOldReports removes the oldest report directories beyond the
// retention count. Directory names embed their timestamp, so the
// lexicographic order is chronological.
func (s *Scheduler) pruneOldReports() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Warn("report pruning failed", zap.Error(err))
		return
	}

	var reports []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "downtime_report_") {
			reports = append(reports, e.Name())
		}
	}
	if len(reports) <= keepReports {
		return
	}

	// ReadDir returns names sorted ascending; the oldest come first.
	removed := 0
	for _, name := range reports[:len(reports)-keepReports] {
		if err := os.RemoveAll(filepath.Join(s.dir, name)); err != nil {
			s.log.Warn("report removal failed", zap.String("dir", name), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.Info("pruned old reports", zap.Int("removed", removed))
	}
}
