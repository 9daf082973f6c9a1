package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/perbench/internal/devicefactory"
	"github.com/srg/perbench/pkg/config"
	"github.com/srg/perbench/session"
)

// loadConfig reads --config and applies --backend.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.Backend = backend
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// newSession builds the configuration, logger, radio and session for one command run.
func newSession(cmd *cobra.Command) (*session.Session, *config.Config, *logrus.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	radio, err := devicefactory.NewRadio(cfg, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create radio: %w", err)
	}
	s, err := session.New(cfg, radio, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return s, cfg, logger, nil
}

// interruptible returns a context cancelled on Ctrl+C or SIGTERM.
func interruptible(cmd *cobra.Command, parent context.Context, what string) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nCtrl+C pressed, cancelling %s...\n", what)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// lookup finds address in the registry ignoring case; stacks differ in how
// they print MAC addresses.
func lookup(s *session.Session, address string) (string, bool) {
	for _, h := range s.Registry().Snapshot().Handles {
		if strings.EqualFold(h.Address, address) {
			return h.Address, true
		}
	}
	return "", false
}

// findDevice scans until address shows up in the registry or timeout passes
// and returns the address as the stack reports it. Some backends can only
// connect to peripherals they have seen advertising.
func findDevice(ctx context.Context, s *session.Session, address string, timeout time.Duration) (string, error) {
	if addr, ok := lookup(s, address); ok {
		return addr, nil
	}
	var (
		scanCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		scanCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		scanCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	if err := s.StartScan(scanCtx); err != nil {
		return "", err
	}
	defer func() { _ = s.StopScan() }()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if addr, ok := lookup(s, address); ok {
			return addr, nil
		}
		select {
		case <-scanCtx.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("%w: %s did not advertise within %s", ErrDeviceNotFound, address, timeout)
		case <-s.Scanner().Done():
			if err := s.StopScan(); err != nil {
				return "", err
			}
			return "", fmt.Errorf("%w: scan ended before %s was seen", ErrDeviceNotFound, address)
		case <-ticker.C:
		}
	}
}

// connect finds address and connects to it, showing progress.
func connect(ctx context.Context, cmd *cobra.Command, s *session.Session, cfg *config.Config, address string) (string, error) {
	addr, err := findDevice(ctx, s, address, cfg.ScanTimeout)
	if err != nil {
		return "", err
	}
	progress := NewProgressPrinter(cmd.OutOrStdout(), fmt.Sprintf("Connecting to %s", addr), "Connecting", "Connected", "Failed")
	progress.Start()
	defer progress.Stop()
	if err := s.ConnectAndWait(ctx, addr, progress.Callback()); err != nil {
		return "", err
	}
	return addr, nil
}
