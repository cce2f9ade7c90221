package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/upvigil/upvigil/internal/api"
	"github.com/upvigil/upvigil/internal/beacon"
	"github.com/upvigil/upvigil/internal/config"
	"github.com/upvigil/upvigil/internal/device"
	"github.com/upvigil/upvigil/internal/jobs"
	"github.com/upvigil/upvigil/internal/logging"
	"github.com/upvigil/upvigil/internal/realtime"
	"github.com/upvigil/upvigil/internal/report"
	"github.com/upvigil/upvigil/internal/timeline"
	"github.com/upvigil/upvigil/internal/tracker"
	"github.com/upvigil/upvigil/internal/web"
)

var version = "dev"

func main() {
	// Environment overrides may come from a local .env file.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "upvigil",
		Short:         "Client for the blackout-tracking uptime service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a device and serve the local dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch()
		},
	}

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Fetch the device once and write a downtime report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport()
		},
	}

	beaconCmd := &cobra.Command{
		Use:   "beacon",
		Short: "Report this device alive to the service on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBeacon()
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("upvigil", version)
		},
	}

	root.AddCommand(watchCmd, reportCmd, beaconCmd, versionCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads config and builds the pieces every command shares.
func setup() (*config.Config, *zap.Logger, *api.Client, *device.Reconciler, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	log, err := logging.New(cfg.Environment)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	svc := api.New(cfg.ServerURL, log,
		api.WithRetryPolicy(cfg.FetchRetries, cfg.FetchRetryDelay()))
	rec := device.NewReconciler(cfg.BlackoutCoefficient, cfg.AliveGrace())
	return cfg, log, svc, rec, nil
}

func runWatch() error {
	cfg, log, svc, rec, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	rt := realtime.NewManager(cfg.WebSocketURL(), log,
		realtime.WithTimings(cfg.Keepalive(), cfg.LivenessTimeout(),
			cfg.FallbackRefresh(), cfg.ReconnectDelay()))

	resource := cfg.Resource
	editToken := ""
	var opts []tracker.Option
	if cfg.EditToken != "" {
		resource = cfg.EditToken
		editToken = cfg.EditToken
		opts = append(opts, tracker.WithEditAccess())
	}
	tr := tracker.New(svc, rec, rt, resource, log, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := tr.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("tracker stopped", zap.Error(err))
		}
	}()

	gen := report.NewGenerator(cfg.ReportDir, log)
	scheduler := jobs.NewScheduler(tr, gen, cfg.ReportDir, log)
	if cfg.ReportSchedule != "" {
		if err := scheduler.Start(cfg.ReportSchedule); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		defer scheduler.Stop()
	}

	router := web.NewRouter(tr, svc, editToken, cfg.CORSOrigins)
	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("dashboard listening", zap.String("addr", cfg.Listen))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("dashboard server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runReport() error {
	cfg, log, svc, rec, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Resource == tracker.Wildcard {
		return fmt.Errorf("report needs a concrete resource, not the wildcard")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := svc.Device(ctx, cfg.Resource, false)
	if err != nil {
		return fmt.Errorf("fetching device: %w", err)
	}
	_, snap := rec.Reconcile(d, nil)

	gen := report.NewGenerator(cfg.ReportDir, log)
	tl := timeline.Aggregate(snap.Events, time.Now(), time.Local)
	dir, err := gen.Generate(snap, tl)
	if err != nil {
		return err
	}
	fmt.Println("report written to", dir)
	return nil
}

func runBeacon() error {
	cfg, log, _, _, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.UpdateToken == "" {
		return fmt.Errorf("update_token is required for the beacon")
	}

	var opts []beacon.Option
	if cfg.ProbeTarget != "" {
		opts = append(opts, beacon.WithProbe(beacon.ICMPProbe(cfg.ProbeTarget, 10*time.Second)))
	}
	b := beacon.New(cfg.ServerURL+"/u/"+cfg.UpdateToken,
		time.Duration(cfg.BeaconInterval)*time.Second, log, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("beacon started", zap.Duration("interval", b.Interval()))
	if err := b.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
