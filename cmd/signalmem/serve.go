package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/genc-murat/crystalsignal/internal/leak"
	"github.com/genc-murat/crystalsignal/internal/lifecycle"
	"github.com/genc-murat/crystalsignal/internal/memory"
	"github.com/genc-murat/crystalsignal/internal/metrics"
	"github.com/genc-murat/crystalsignal/internal/storage"
	utils "github.com/genc-murat/crystalsignal/pkg/utils"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose manager metrics over HTTP and run the memory supervisor",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opMetrics := metrics.NewMetrics()
	m, err := memory.NewManagerFromConfig(cfg.Memory, memory.WithLogger(logger), memory.WithMetrics(opMetrics))
	if err != nil {
		return err
	}
	if err := load.apply(m, newQueue(), cfg.Batch.FlushChunk); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	if err := opMetrics.Register(reg); err != nil {
		return err
	}
	if err := reg.Register(metrics.NewStatsCollector(m, prometheus.Labels{"environment": cfg.Environment})); err != nil {
		return err
	}

	detector := newDetector()
	if cfg.Supervisor.Enabled {
		if err := startSupervisor(ctx, m, detector); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		err := utils.WriteInfoSections(w, []string{"Memory", "Leak"}, map[string]map[string]string{
			"Memory": m.Info(),
			"Leak": {
				"growth_percent":   fmt.Sprintf("%.2f", detector.MemoryGrowthPercentage()),
				"leak_prevention":  fmt.Sprint(detector.LeakPreventionEnabled()),
				"growth_threshold": fmt.Sprint(detector.GrowthThreshold()),
			},
		})
		if err != nil {
			logger.Error("write info", "error", err)
		}
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving", "addr", srv.Addr, "metrics_path", cfg.Metrics.Path, "metrics_enabled", cfg.Metrics.Enabled)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// startSupervisor captures the baseline now and appends every report's
// post-cleanup stats to the snapshot log under the "supervisor" label.
func startSupervisor(ctx context.Context, m *memory.Manager, detector *leak.Detector) error {
	snapshots, err := storage.NewSnapshotLog(cfg.Storage.Path)
	if err != nil {
		return err
	}
	context.AfterFunc(ctx, func() { snapshots.Close() })

	supervisor := lifecycle.NewSupervisor(m, detector,
		lifecycle.WithLogger(logger),
		lifecycle.OnReport(func(r lifecycle.Report) {
			if _, err := snapshots.Append("supervisor", r.After); err != nil && !errors.Is(err, storage.ErrClosed) {
				logger.Error("append supervisor snapshot", "error", err)
			}
		}))
	supervisor.CaptureBaseline()
	return supervisor.Start(ctx, cfg.Supervisor.Interval)
}
