package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/upvigil/upvigil/internal/api"
	"github.com/upvigil/upvigil/internal/device"
	"github.com/upvigil/upvigil/internal/realtime"
	"github.com/upvigil/upvigil/internal/report"
	"github.com/upvigil/upvigil/internal/tracker"
)

func testScheduler(t *testing.T) (*Scheduler, string) {
	t.Helper()
	dir := t.TempDir()
	log := zap.NewNop()
	svc := api.New("http://unused", log, api.WithRetryPolicy(1, time.Millisecond))
	rec := device.NewReconciler(device.DefaultBlackoutCoefficient, device.DefaultAliveGrace)
	rt := realtime.NewManager("ws://unused", log,
		realtime.WithDialer(func(ctx context.Context, url string) (realtime.Conn, error) {
			return nil, fmt.Errorf("not dialed in tests")
		}))
	tr := tracker.New(svc, rec, rt, "tok", log)
	gen := report.NewGenerator(dir, log)
	return NewScheduler(tr, gen, dir, log), dir
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	s, _ := testScheduler(t)
	if err := s.Start("not a schedule"); err == nil {
		s.Stop()
		t.Fatal("Start() accepted an invalid cron expression")
	}
}

func TestSnapshotReportSkipsWithoutData(t *testing.T) {
	s, dir := testScheduler(t)
	s.snapshotReport()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("report written before any device data: %v", entries)
	}
}

func TestPruneOldReportsKeepsNewest(t *testing.T) {
	s, dir := testScheduler(t)

	for i := 0; i < keepReports+5; i++ {
		name := fmt.Sprintf("downtime_report_2024-01-%02d_00-00-00", i+1)
		if err := os.Mkdir(filepath.Join(dir, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	// Unrelated entries must survive pruning.
	if err := os.Mkdir(filepath.Join(dir, "notes"), 0o755); err != nil {
		t.Fatal(err)
	}

	s.pruneOldReports()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var reports []string
	keptOther := false
	for _, e := range entries {
		if e.Name() == "notes" {
			keptOther = true
			continue
		}
		reports = append(reports, e.Name())
	}
	if len(reports) != keepReports {
		t.Errorf("kept %d reports, want %d", len(reports), keepReports)
	}
	if !keptOther {
		t.Error("pruning removed an unrelated directory")
	}
	// The oldest five must be gone.
	for _, name := range reports {
		if name <= "downtime_report_2024-01-05_00-00-00" {
			t.Errorf("old report survived pruning: %s", name)
		}
	}
}
