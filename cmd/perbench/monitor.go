package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/perbench/internal/telemetry"
	"github.com/srg/perbench/session"
	"golang.org/x/sync/errgroup"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor <device-address>",
	Short: "Record a receiver's PER and RSSI telemetry as CSV",
	Long: fmt.Sprintf(`Listens to the telemetry adverts of a DTM receiver and writes one CSV row
per new telemetry frame: time, distance, RSSI and PER. Repeated frames (same
index) are dropped. No connection is made; the receiver is only scanned.

Examples:
  # Print rows to the terminal until Ctrl+C
  perbench monitor %s

  # Record a 2 minute run at 5 m into a file
  perbench monitor %s --distance 5 --duration 2m --output run-5m.csv

%s`, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(1),
	RunE: runMonitor,
}

var (
	monitorDistance string
	monitorOutput   string
	monitorDuration time.Duration
)

// errScanEnded reports that the radio stopped scanning on its own.
var errScanEnded = errors.New("scan ended unexpectedly")

func init() {
	addMonitorFlags()
}

func addMonitorFlags() {
	monitorCmd.Flags().StringVar(&monitorDistance, "distance", "", "Distance in meters recorded in every row (N/A when empty)")
	monitorCmd.Flags().StringVarP(&monitorOutput, "output", "o", "", "CSV file to write; stdout by default")
	monitorCmd.Flags().DurationVarP(&monitorDuration, "duration", "d", 0, "Stop after this long (0 for until Ctrl+C)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	s, cfg, logger, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	cmd.SilenceUsage = true

	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	if monitorDuration > 0 {
		var cancelTimeout context.CancelFunc
		base, cancelTimeout = context.WithTimeout(base, monitorDuration)
		defer cancelTimeout()
	}
	ctx, cancel := interruptible(cmd, base, "monitor")
	defer cancel()

	address, err := findDevice(ctx, s, args[0], cfg.ScanTimeout)
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if monitorOutput != "" {
		f, err := os.Create(monitorOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	mon, err := s.Monitor(address, telemetry.NewCSVSink(out))
	if err != nil {
		return err
	}
	mon.SetDistance(monitorDistance)
	if err := s.StartScan(ctx); err != nil {
		s.StopMonitor()
		return err
	}
	logger.WithField("address", address).Info("Monitoring telemetry")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watchScan(gctx, s)
	})
	if monitorOutput != "" {
		g.Go(func() error {
			reportMonitorProgress(gctx, cmd.ErrOrStderr(), mon)
			return nil
		})
	}
	err = g.Wait()

	if stopErr := s.StopScan(); stopErr != nil && err == nil {
		err = stopErr
	}
	stats := s.StopMonitor()
	fmt.Fprintf(cmd.ErrOrStderr(), "Monitored %s: %d rows written, %d repeated frames dropped, %d lost\n",
		address, stats.Emitted, stats.Duplicates, stats.Overwritten)
	if idx, ok := mon.LastIndex(address); ok {
		fmt.Fprintf(cmd.ErrOrStderr(), "Last frame index: %d\n", idx)
	}
	if stats.SinkErrors > 0 && err == nil {
		err = fmt.Errorf("%d rows could not be written", stats.SinkErrors)
	}
	return err
}

// watchScan returns nil when ctx ends and an error if the scan stops first.
func watchScan(ctx context.Context, s *session.Session) error {
	select {
	case <-ctx.Done():
		return nil
	case <-s.Scanner().Done():
		if ctx.Err() != nil {
			return nil
		}
		if err := s.StopScan(); err != nil {
			return err
		}
		return errScanEnded
	}
}

func reportMonitorProgress(ctx context.Context, w io.Writer, mon *telemetry.Monitor) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Fprint(w, clearLineSequence)
			return
		case <-ticker.C:
			st := mon.Stats()
			fmt.Fprintf(w, "\rRecording (%d rows, %d repeated)   ", st.Emitted, st.Duplicates)
		}
	}
}
