package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/perbench/scanner"
	"github.com/srg/perbench/session"
	"golang.org/x/term"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for DTM peripherals",
	Long: `Scan for and display DTM test-bench peripherals in the vicinity.

Peripherals are listed in discovery order. Only names starting with the
configured prefix (DTM) are admitted unless --all is given. Peripherals that
stop advertising are dropped after a few seconds.`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
	scanWatch    bool
	scanAll      bool
)

var validScanFormats = []string{"table", "json", "csv"}

func init() {
	addScanFlags()
}

// addScanFlags registers the scan flags; tests call it after ResetFlags.
func addScanFlags() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default from configuration, 0 with --watch for indefinite)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "", "Output format (table, json, csv); default from configuration")
	scanCmd.Flags().BoolVarP(&scanWatch, "watch", "w", false, "Continuously scan and redraw the list")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "Show every peripheral, not only DTM ones")
}

func runScan(cmd *cobra.Command, args []string) error {
	s, cfg, _, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	format := scanFormat
	if format == "" {
		format = cfg.OutputFormat
	}
	isValidFormat := false
	for _, f := range validScanFormats {
		if format == f {
			isValidFormat = true
			break
		}
	}
	if !isValidFormat {
		return fmt.Errorf("invalid format '%s': must be one of %v", format, validScanFormats)
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	if scanAll {
		s.Registry().SetFilter(false)
	}

	duration := scanDuration
	if !cmd.Flags().Changed("duration") && !scanWatch {
		duration = cfg.ScanTimeout
	}

	if scanWatch {
		return runWatchMode(cmd, s, duration, format)
	}
	return runSingleScan(cmd, s, duration, format)
}

func runSingleScan(cmd *cobra.Command, s *session.Session, duration time.Duration, format string) error {
	ctx, cancel := interruptible(cmd, cmd.Context(), "scan")
	defer cancel()

	out := cmd.OutOrStdout()
	var progress *ProgressPrinter
	if duration > 0 {
		progress = NewCountdownProgressPrinter(out, "Scanning for DTM devices", "Scanning", duration, "Processing results")
	} else {
		progress = NewProgressPrinter(out, "Scanning for DTM devices", "Scanning", "Processing results")
	}
	progress.Start()
	handles, err := s.Scan(ctx, duration, progress.Callback())
	progress.Stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return displayHandles(out, handles, format)
}

func runWatchMode(cmd *cobra.Command, s *session.Session, duration time.Duration, format string) error {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	if duration > 0 {
		var cancelTimeout context.CancelFunc
		base, cancelTimeout = context.WithTimeout(base, duration)
		defer cancelTimeout()
	}
	ctx, cancel := interruptible(cmd, base, "scan")
	defer cancel()

	if err := s.StartScan(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	redraw := func() error {
		if isTerminal(out) {
			clearScreen(out)
		} else {
			fmt.Fprintln(out)
		}
		return displayHandles(out, s.Registry().Snapshot().Handles, format)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := s.StopScan(); err != nil {
				return err
			}
			return redraw()
		case <-s.Scanner().Done():
			if err := s.StopScan(); err != nil {
				return err
			}
			return redraw()
		case <-ticker.C:
			if err := redraw(); err != nil {
				return err
			}
		}
	}
}

func displayHandles(w io.Writer, handles []scanner.Handle, format string) error {
	switch format {
	case "json":
		return displayHandlesJSON(w, handles)
	case "csv":
		return displayHandlesCSV(w, handles)
	default:
		return displayHandlesTable(w, handles)
	}
}

func displayHandlesTable(out io.Writer, handles []scanner.Handle) error {
	if len(handles) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tLAST SEEN")
	fmt.Fprintln(w, strings.Repeat("-", 64))

	for _, h := range handles {
		name := h.Name
		if name == "" {
			name = "(unnamed)"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		lastSeen := time.Since(h.LastSeen).Truncate(time.Second)
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s ago\n", name, h.Address, h.RSSI, lastSeen)
	}
	return w.Flush()
}

func displayHandlesJSON(w io.Writer, handles []scanner.Handle) error {
	if handles == nil {
		handles = []scanner.Handle{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(handles)
}

func displayHandlesCSV(w io.Writer, handles []scanner.Handle) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"name", "address", "rssi", "connectable"}); err != nil {
		return err
	}
	for _, h := range handles {
		if err := cw.Write([]string{h.Name, h.Address, strconv.Itoa(h.RSSI), strconv.FormatBool(h.Connectable)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func clearScreen(w io.Writer) {
	fmt.Fprint(w, "\033[2J\033[H")
}
