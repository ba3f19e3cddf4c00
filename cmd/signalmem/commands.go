package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/genc-murat/crystalsignal/internal/batch"
	"github.com/genc-murat/crystalsignal/internal/core/models"
	"github.com/genc-murat/crystalsignal/internal/leak"
	"github.com/genc-murat/crystalsignal/internal/lifecycle"
	"github.com/genc-murat/crystalsignal/internal/memory"
	"github.com/genc-murat/crystalsignal/internal/storage"
	"github.com/genc-murat/crystalsignal/internal/util"
	utils "github.com/genc-murat/crystalsignal/pkg/utils"
)

var errLeakDetected = errors.New("memory leak detected")

var (
	load        = workload{prefix: "group"}
	growth      = workload{prefix: "grow"}
	recordLabel string
	snapLabel   string

	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Register a synthetic workload and report memory, batch and leak state",
		Args:  cobra.NoArgs,
		RunE:  runSimulate,
	}

	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Register a synthetic workload and append its stats to the snapshot log",
		Args:  cobra.NoArgs,
		RunE:  runSnapshot,
	}

	leakcheckCmd = &cobra.Command{
		Use:   "leakcheck <baseline-label> <current-label>",
		Short: "Compare the latest snapshots of two labels and exit 2 on a leak",
		Args:  cobra.ExactArgs(2),
		RunE:  runLeakcheck,
	}
)

func init() {
	for _, cmd := range []*cobra.Command{simulateCmd, snapshotCmd, serveCmd} {
		cmd.Flags().IntVar(&load.groups, "groups", 2, "number of groups to create")
		cmd.Flags().IntVar(&load.cells, "cells", 4, "cells per group")
		cmd.Flags().IntVar(&load.computations, "computations", 2, "computations per group")
	}

	simulateCmd.Flags().IntVar(&growth.groups, "grow-groups", 0, "groups added after the baseline")
	simulateCmd.Flags().IntVar(&growth.cells, "grow-cells", 0, "cells per added group")
	simulateCmd.Flags().IntVar(&growth.computations, "grow-computations", 0, "computations per added group")
	simulateCmd.Flags().StringVar(&recordLabel, "record", "", "also append the final stats to the snapshot log under this label")

	snapshotCmd.Flags().StringVar(&snapLabel, "label", "", "snapshot label")
	_ = snapshotCmd.MarkFlagRequired("label")

	rootCmd.AddCommand(simulateCmd, snapshotCmd, leakcheckCmd, serveCmd)
}

func newManager() (*memory.Manager, error) {
	return memory.NewManagerFromConfig(cfg.Memory, memory.WithLogger(logger))
}

func newQueue() *batch.Queue {
	return batch.NewQueueWithSize(cfg.Batch.MaxBatchSize)
}

func newDetector() *leak.Detector {
	d := leak.NewDetectorWithThreshold(cfg.Leak.GrowthThreshold)
	if cfg.Leak.Prevention {
		d.EnableLeakPrevention()
	}
	return d
}

func runSimulate(cmd *cobra.Command, args []string) error {
	m, err := newManager()
	if err != nil {
		return err
	}
	q := newQueue()

	if err := load.apply(m, q, cfg.Batch.FlushChunk); err != nil {
		return err
	}

	supervisor := lifecycle.NewSupervisor(m, newDetector(), lifecycle.WithLogger(logger))
	supervisor.CaptureBaseline()

	if err := growth.apply(m, q, cfg.Batch.FlushChunk); err != nil {
		return err
	}

	report, err := supervisor.Check()
	if err != nil {
		return err
	}

	if recordLabel != "" {
		if _, err := appendSnapshot(recordLabel, m.GetStats()); err != nil {
			return err
		}
	}

	return utils.WriteInfoSections(cmd.OutOrStdout(), []string{"Memory", "Batch", "Leak"}, map[string]map[string]string{
		"Memory": m.Info(),
		"Batch":  batchInfo(q.Stats()),
		"Leak":   reportInfo(report),
	})
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	m, err := newManager()
	if err != nil {
		return err
	}
	if err := load.apply(m, newQueue(), cfg.Batch.FlushChunk); err != nil {
		return err
	}

	rec, err := appendSnapshot(snapLabel, m.GetStats())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", rec.ID, rec.Label, util.FormatBytes(rec.Stats.EstimatedMemoryBytes))
	return nil
}

func runLeakcheck(cmd *cobra.Command, args []string) error {
	log, err := storage.NewSnapshotLog(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer log.Close()

	baseline, err := latest(log, args[0])
	if err != nil {
		return err
	}
	current, err := latest(log, args[1])
	if err != nil {
		return err
	}

	d := newDetector()
	d.SetBaseline(baseline.Stats)
	d.UpdateCurrent(current.Stats)

	leaking, err := d.CheckForLeaks()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "baseline:%s current:%s growth:%.2f%% threshold:%.2f%%\n",
		util.FormatBytes(baseline.Stats.EstimatedMemoryBytes),
		util.FormatBytes(current.Stats.EstimatedMemoryBytes),
		d.MemoryGrowthPercentage(),
		d.GrowthThreshold()*100)

	if leaking {
		fmt.Fprintln(cmd.OutOrStdout(), "leak: yes")
		return errLeakDetected
	}
	fmt.Fprintln(cmd.OutOrStdout(), "leak: no")
	return nil
}

func latest(log *storage.SnapshotLog, label string) (storage.Record, error) {
	rec, found, err := log.Latest(label)
	if err != nil {
		return storage.Record{}, err
	}
	if !found {
		return storage.Record{}, fmt.Errorf("no snapshot labelled %q in %s", label, log.Path())
	}
	return rec, nil
}

func appendSnapshot(label string, stats models.MemoryStats) (storage.Record, error) {
	log, err := storage.NewSnapshotLog(cfg.Storage.Path)
	if err != nil {
		return storage.Record{}, err
	}
	defer log.Close()
	return log.Append(label, stats)
}

func batchInfo(s models.BatchStats) map[string]string {
	return map[string]string{
		"queued":    strconv.Itoa(s.Queued),
		"capacity":  strconv.Itoa(s.Capacity),
		"batching":  strconv.FormatBool(s.Batching),
		"executed":  strconv.FormatInt(s.Executed, 10),
		"rejected":  strconv.FormatInt(s.Rejected, 10),
		"discarded": strconv.FormatInt(s.Discarded, 10),
	}
}

func reportInfo(r lifecycle.Report) map[string]string {
	actions := "none"
	if len(r.Actions) > 0 {
		actions = fmt.Sprint(r.Actions)
	}
	return map[string]string{
		"checked_bytes":  strconv.Itoa(r.Before.EstimatedMemoryBytes),
		"growth_percent": util.FormatFloat(r.Growth),
		"leak":           strconv.FormatBool(r.Leak),
		"pressure":       r.Pressure.String(),
		"actions":        actions,
		"freed_bytes":    strconv.Itoa(r.Freed()),
	}
}
