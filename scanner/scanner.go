package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/perbench/internal/device"
	"github.com/srg/perbench/internal/groutine"
)

// ErrAlreadyScanning is returned by Start while a scan is running.
var ErrAlreadyScanning = errors.New("scan already in progress")

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// Scanner runs a radio scan into a Registry and keeps the sweeper running for
// as long as the scan does.
type Scanner struct {
	radio    device.Radio
	registry *Registry
	sweeper  *Sweeper
	logger   *logrus.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewScanner creates a new BLE scanner. sweeper may be nil.
func NewScanner(radio device.Radio, registry *Registry, sweeper *Sweeper, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		radio:    radio,
		registry: registry,
		sweeper:  sweeper,
		logger:   logger,
	}
}

// Registry returns the registry the scanner feeds.
func (s *Scanner) Registry() *Registry {
	return s.registry
}

// Start clears the registry and begins scanning in the background.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		select {
		case <-s.done: // ended on its own, never stopped
			s.cancel()
		default:
			return ErrAlreadyScanning
		}
	}

	s.registry.Clear()
	scanCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.err = nil

	if s.sweeper != nil {
		s.sweeper.Start()
	}
	s.logger.Info("Starting BLE scan...")

	groutine.Go(scanCtx, "ble-scan", func(ctx context.Context) {
		defer close(done)
		err := s.radio.Scan(ctx, s.registry.OnAdvertisement)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.logger.WithField("error", err).Error("BLE scan failed")
			s.mu.Lock()
			s.err = device.NormalizeError(err)
			s.mu.Unlock()
		}
		if s.sweeper != nil {
			s.sweeper.Stop()
		}
	})
	return nil
}

// Stop ends the scan and waits for the radio to return. It returns the scan
// error, if the scan failed on its own.
func (s *Scanner) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}

	cancel()
	<-done

	s.mu.Lock()
	err := s.err
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	s.logger.WithField("device_count", s.registry.Len()).Info("BLE scan stopped")
	return err
}

// Scanning reports whether a scan is running.
func (s *Scanner) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Done is closed when the running scan ends. Nil when no scan was started.
func (s *Scanner) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Scan performs a blocking scan for duration (0 means until ctx is done) and
// returns the registry contents at the end.
func (s *Scanner) Scan(ctx context.Context, duration time.Duration, progress ProgressCallback) ([]Handle, error) {
	if progress == nil {
		progress = func(string) {}
	}
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	progress("Scanning")
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
	case <-s.Done():
	}
	if err := s.Stop(); err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	progress("Processing results")
	return s.registry.Snapshot().Handles, nil
}
