package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/virtualtestset/vpac/pkg/config"
	"github.com/virtualtestset/vpac/pkg/publisher"
	"github.com/virtualtestset/vpac/pkg/reporting"
	"github.com/virtualtestset/vpac/pkg/sequence"
	"github.com/virtualtestset/vpac/pkg/telemetry"
	"github.com/virtualtestset/vpac/pkg/tripsignal"
)

var sequenceCmd = &cobra.Command{
	Use:   "sequence",
	Short: "Run a time-/event-driven scenario sequence",
}

var sequenceRunCmd = &cobra.Command{
	Use:   "run <sequence.yaml>",
	Args:  cobra.ExactArgs(1),
	Short: "Step through an ordered list of phasor-state snapshots to completion",
	RunE:  runSequenceRun,
}

func init() {
	sequenceCmd.AddCommand(sequenceRunCmd)
	sequenceRunCmd.Flags().String("iface", "", "network interface to publish and subscribe on")
	sequenceRunCmd.Flags().String("format", "text", "progress output format (text, json, tui)")
}

func runSequenceRun(cmd *cobra.Command, args []string) error {
	seqCfg, err := config.LoadSequenceConfig(args[0])
	if err != nil {
		return fmt.Errorf("failed to load sequence: %w", err)
	}
	seq := seqCfg.ToSequence()

	streamIDs := make([]string, 0, len(seq.States))
	seen := make(map[string]bool)
	for _, st := range seq.States {
		for id := range st.StreamStates {
			if !seen[id] {
				seen[id] = true
				streamIDs = append(streamIDs, id)
			}
		}
	}

	outputFormat, _ := cmd.Flags().GetString("format")

	return runSession(cmd, "sequence:"+seq.Name, func(mgr *publisher.Manager, trip *tripsignal.Signal) ([]reporting.PointResult, error) {
		log := telemetry.Nop()
		progress := reporting.NewProgressReporter(reporting.OutputFormat(outputFormat), log)

		eng := sequence.New(mgr, trip, streamIDs, log)
		unsubscribe := eng.Subscribe(func(stateIndex, totalStates int, stateName string, stateElapsedSec float64, message string) {
			progress.ReportStateTransition(fmt.Sprintf("%d/%d", stateIndex, totalStates), stateName)
		})
		defer unsubscribe()

		if err := eng.Start(seq); err != nil {
			return nil, err
		}

		for eng.Status() == sequence.StatusRunning || eng.Status() == sequence.StatusPaused {
			time.Sleep(20 * time.Millisecond)
		}

		status := eng.Status()
		passed := status == sequence.StatusCompleted
		return []reporting.PointResult{{
			Label:   seq.Name,
			Tester:  "sequence",
			Tripped: trip.IsSet(),
			Passed:  passed,
			Message: fmt.Sprintf("ended in state %s", status),
		}}, nil
	})
}
