package scanner

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	DefaultSweepPeriod = 3 * time.Second
	DefaultStaleAfter  = 3 * time.Second
)

// interval fires every d. cron.Every rounds to whole seconds, which is too
// coarse for short test periods.
type interval time.Duration

func (i interval) Next(t time.Time) time.Time {
	return t.Add(time.Duration(i))
}

// cronLogger routes cron's scheduler chatter to debug and its errors, such as
// a recovered job panic, to error.
type cronLogger struct {
	logger *logrus.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(cronFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(cronFields(keysAndValues)).WithField("error", err).Error("cron: " + msg)
}

func cronFields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{"component": "sweeper"}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

// Sweeper periodically evicts stale handles from a Registry. It runs on its
// own schedule, independent of advertisement arrival.
type Sweeper struct {
	registry *Registry
	period   time.Duration
	maxAge   time.Duration
	logger   *logrus.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	sweeps int
}

// NewSweeper creates a stopped sweeper. Zero durations select the defaults.
func NewSweeper(registry *Registry, period, maxAge time.Duration, logger *logrus.Logger) *Sweeper {
	if period <= 0 {
		period = DefaultSweepPeriod
	}
	if maxAge <= 0 {
		maxAge = DefaultStaleAfter
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Sweeper{
		registry: registry,
		period:   period,
		maxAge:   maxAge,
		logger:   logger,
	}
}

// Start schedules the sweep. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}

	logger := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(interval(s.period), cron.FuncJob(s.sweep))
	c.Start()
	s.cron = c

	s.logger.WithFields(logrus.Fields{
		"period":  s.period,
		"max_age": s.maxAge,
	}).Debug("Staleness sweep started")
}

// Stop cancels future sweeps and waits for a running one to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Debug("Staleness sweep stopped")
}

// Running reports whether sweeps are scheduled.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// Sweeps returns how many sweeps have run.
func (s *Sweeper) Sweeps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweeps
}

func (s *Sweeper) sweep() {
	removed := s.registry.SweepStale(time.Now(), s.maxAge)

	s.mu.Lock()
	s.sweeps++
	s.mu.Unlock()

	if len(removed) > 0 {
		s.logger.WithField("removed", len(removed)).Debug("Staleness sweep evicted devices")
	}
}
