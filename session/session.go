// Package session wires the bench components for one process run. Nothing in
// it is global: every component is owned by the Session that built it.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"github.com/srg/perbench/internal/coordinator"
	"github.com/srg/perbench/internal/device"
	"github.com/srg/perbench/internal/groutine"
	"github.com/srg/perbench/internal/params"
	"github.com/srg/perbench/internal/ringchan"
	"github.com/srg/perbench/internal/telemetry"
	"github.com/srg/perbench/pkg/config"
	"github.com/srg/perbench/pkg/connection"
	"github.com/srg/perbench/scanner"
)

// ErrMonitorRunning is returned by Monitor while another monitor is active.
var ErrMonitorRunning = errors.New("telemetry monitor already running")

// ProgressCallback is called when the session phase changes
type ProgressCallback func(phase string)

// Session owns the scan registry, sweeper, scanner, coordinator, connection
// machine and telemetry pipeline.
type Session struct {
	id     string
	cfg    *config.Config
	logger *logrus.Logger

	group       *groutine.Group
	registry    *scanner.Registry
	sweeper     *scanner.Sweeper
	scanner     *scanner.Scanner
	coordinator *coordinator.Coordinator
	machine     *connection.Machine
	decoder     *telemetry.Decoder
	writer      *params.Writer
	store       *params.Store
	events      *ringchan.RingChannel[connection.Event]

	mu            sync.Mutex
	monitor       *telemetry.Monitor
	monitorCancel context.CancelFunc
	monitorDone   chan struct{}
	closed        bool
}

// New builds a session on radio. cfg nil means config.DefaultConfig().
func New(cfg *config.Config, radio device.Radio, logger *logrus.Logger) (*Session, error) {
	if radio == nil {
		return nil, fmt.Errorf("radio cannot be nil")
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = cfg.NewLogger()
	}

	s := &Session{
		id:     newID(time.Now()),
		cfg:    cfg,
		logger: logger,
		group:  groutine.NewGroup(context.Background()),
		events: ringchan.New[connection.Event](64),
	}

	s.registry = scanner.NewRegistry(scanner.RegistryOptions{
		NamePrefix:    cfg.NamePrefix,
		FilterEnabled: cfg.NameFilter,
	}, logger)
	s.sweeper = scanner.NewSweeper(s.registry, cfg.SweepPeriod, cfg.StaleAfter, logger)
	s.scanner = scanner.NewScanner(radio, s.registry, s.sweeper, logger)
	s.coordinator = coordinator.New(logger,
		coordinator.WithTimeout(cfg.OperationTimeout),
		coordinator.WithBuffer(cfg.ResultBuffer),
	)
	s.machine = connection.New(radio, s.coordinator, connection.Options{
		MTU:            cfg.MTU,
		ConnectTimeout: cfg.ConnectTimeout,
	}, logger)
	s.decoder = telemetry.NewDecoder()
	s.writer = params.NewWriter(s.machine, logger)
	if cfg.ParamsFile != "" {
		s.store = params.NewStore(cfg.ParamsFile)
	}

	s.group.Go("session-events", s.watchEvents)

	logger.WithFields(logrus.Fields{
		"session": s.id,
		"backend": cfg.Backend,
	}).Debug("Session created")
	return s, nil
}

func newID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// ID returns the session's ULID.
func (s *Session) ID() string { return s.id }

func (s *Session) Registry() *scanner.Registry           { return s.registry }
func (s *Session) Machine() *connection.Machine          { return s.machine }
func (s *Session) Coordinator() *coordinator.Coordinator { return s.coordinator }
func (s *Session) Scanner() *scanner.Scanner             { return s.scanner }

// Events returns connection events for the UI: failures to report and
// disconnects that must close any parameter view.
func (s *Session) Events() <-chan connection.Event { return s.events.C() }

// StartScan clears the registry and scans in the background.
func (s *Session) StartScan(ctx context.Context) error {
	return s.scanner.Start(ctx)
}

// StopScan ends a background scan. It returns the scan failure, if any.
func (s *Session) StopScan() error {
	return s.scanner.Stop()
}

// Scan scans for duration and returns the visible peripherals.
func (s *Session) Scan(ctx context.Context, duration time.Duration, progress ProgressCallback) ([]scanner.Handle, error) {
	return s.scanner.Scan(ctx, duration, scanner.ProgressCallback(progress))
}

// Connect stops any scan and starts connecting to address.
func (s *Session) Connect(ctx context.Context, address string) error {
	if err := s.scanner.Stop(); err != nil {
		s.logger.WithField("error", err).Warn("Scan ended with an error before connecting")
	}
	name := ""
	if h, ok := s.registry.Get(address); ok {
		name = h.Name
	}
	return s.machine.Connect(ctx, address, name)
}

// ConnectAndWait connects and waits until the link is Ready.
func (s *Session) ConnectAndWait(ctx context.Context, address string, progress ProgressCallback) error {
	if progress == nil {
		progress = func(string) {}
	}
	progress("Connecting")
	if err := s.Connect(ctx, address); err != nil {
		progress("Failed")
		return err
	}
	if err := s.WaitReady(ctx); err != nil {
		progress("Failed")
		return err
	}
	progress("Connected")
	return nil
}

// WaitReady waits for the current connection attempt to become Ready.
func (s *Session) WaitReady(ctx context.Context) error {
	return s.machine.WaitReady(ctx)
}

// Disconnect tears down the link and waits for the confirmation.
func (s *Session) Disconnect(ctx context.Context) error {
	if err := s.machine.Disconnect(); err != nil {
		return err
	}
	return s.machine.WaitState(ctx, connection.Disconnected)
}

// WriteParams writes p to the connected peripheral. Successful TX
// configurations are remembered.
func (s *Session) WriteParams(ctx context.Context, p params.Params) (coordinator.Result, error) {
	res, err := s.writer.Write(ctx, p)
	if err != nil {
		return res, err
	}
	if res.OK() && s.store != nil {
		if err := s.store.Remember(p); err != nil {
			s.logger.WithField("error", err).Warn("Failed to save parameters")
		}
	}
	return res, nil
}

// LastParams returns the remembered TX parameters, or the defaults.
func (s *Session) LastParams() (params.Params, error) {
	if s.store == nil {
		return params.Default(), nil
	}
	return s.store.Load()
}

// Monitor selects address and pipes its telemetry adverts to sink until
// StopMonitor. A scan must be running for adverts to arrive.
func (s *Session) Monitor(address string, sink telemetry.Sink) (*telemetry.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("session closed")
	}
	if s.monitor != nil {
		return nil, ErrMonitorRunning
	}

	mon, err := telemetry.NewMonitor(s.decoder, sink, uint32(s.cfg.TelemetryBuffer), s.logger)
	if err != nil {
		return nil, err
	}
	mon.Reset(address)

	ctx, cancel := context.WithCancel(s.group.Context())
	done := make(chan struct{})
	s.group.Go("telemetry-monitor", func(context.Context) {
		defer close(done)
		_ = mon.Run(ctx)
	})
	s.registry.Select(address, func(addr string, payload []byte) {
		mon.Offer(addr, payload)
	})

	s.monitor, s.monitorCancel, s.monitorDone = mon, cancel, done
	s.logger.WithFields(logrus.Fields{
		"session": s.id,
		"address": address,
	}).Info("Monitoring telemetry")
	return mon, nil
}

// StopMonitor deselects the peripheral and waits for queued rows to be
// written. It returns the final monitor counters.
func (s *Session) StopMonitor() telemetry.MonitorStats {
	s.mu.Lock()
	mon, cancel, done := s.monitor, s.monitorCancel, s.monitorDone
	s.monitor, s.monitorCancel, s.monitorDone = nil, nil, nil
	s.mu.Unlock()
	if mon == nil {
		return telemetry.MonitorStats{}
	}

	s.registry.Deselect()
	cancel()
	<-done
	return mon.Stats()
}

// Close stops everything the session started and drops any link.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.StopMonitor()
	if err := s.scanner.Stop(); err != nil {
		s.logger.WithField("error", err).Debug("Scan ended with an error")
	}
	s.sweeper.Stop()
	s.machine.Close()
	s.coordinator.Close()
	s.group.Stop()
	s.registry.Close()
	s.events.Close()
	s.logger.WithField("session", s.id).Debug("Session closed")
}

// watchEvents logs connection events and republishes them on Events.
func (s *Session) watchEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.machine.Events():
			if !ok {
				return
			}
			switch ev.Type {
			case connection.EventConnectionFailed:
				s.logger.WithFields(logrus.Fields{
					"session": s.id,
					"address": ev.Address,
					"status":  ev.Status.String(),
				}).Error(ev.Message)
			case connection.EventDisconnected:
				s.logger.WithFields(logrus.Fields{
					"session": s.id,
					"address": ev.Address,
				}).Info("Peripheral disconnected")
			case connection.EventStateChanged, connection.EventNotification:
				s.logger.WithFields(logrus.Fields{
					"session": s.id,
					"event":   ev.Type.String(),
					"state":   ev.State.String(),
				}).Debug("Connection event")
			}
			s.events.ForceSend(ev)
		}
	}
}
