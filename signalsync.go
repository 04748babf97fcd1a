package signalsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/miicoin/signalsync/dashboard"
	"github.com/miicoin/signalsync/internal/poller"
	"github.com/miicoin/signalsync/internal/server"
	"github.com/miicoin/signalsync/internal/store"
)

const defaultInterval = 30 * time.Second

// Synchronizer keeps display targets in step with backend endpoints.
//
// Register tasks with [Register], then call [Synchronizer.Run] (blocking) or
// [Synchronizer.Start] and [Synchronizer.Stop]. Every task runs once
// immediately and then on its own interval. A task never has more than one
// request in flight, and a failed cycle leaves the last rendered payload in
// place.
//
//	s, err := signalsync.New(signalsync.WithBaseURL("http://localhost:5000"))
//	if err != nil {
//	    return err
//	}
//	_, err = signalsync.Register(s, signalsync.Task[signals.SignalList]{
//	    Endpoint: signalsEndpoint,
//	    Sink:     signalsync.SinkFunc[signals.SignalList](show),
//	})
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//	s.Run(ctx)
type Synchronizer struct {
	engine          *poller.Synchronizer
	store           *store.MemoryStore
	baseURL         string
	defaultInterval time.Duration
	port            int
	title           string
	logger          *slog.Logger
	clock           clockwork.Clock
	callbacks       []func(CycleReport)

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
}

// New creates a [Synchronizer] with the given options.
//
// Defaults: tasks without an interval run every 30 seconds, requests go
// through a pooled HTTP client, and no dashboard is served.
func New(opts ...Option) (*Synchronizer, error) {
	cfg := &syncConfig{
		defaultInterval: defaultInterval,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	clock := cfg.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	fetcher := cfg.fetcher
	if fetcher == nil {
		fetcher = poller.NewClient(cfg.jar)
	}

	s := &Synchronizer{
		store:           store.NewMemoryStore(),
		baseURL:         cfg.baseURL,
		defaultInterval: cfg.defaultInterval,
		port:            cfg.port,
		title:           cfg.title,
		logger:          logger,
		clock:           clock,
		callbacks:       cfg.cycleCallbacks,
	}
	s.engine = poller.NewSynchronizer(poller.Config{
		Fetcher:        fetcher,
		Clock:          clock,
		Logger:         logger,
		MaxConcurrency: cfg.maxConcurrency,
		OnCycle:        s.onCycle,
	})
	return s, nil
}

// Register adds task to s and returns its handle.
//
// Registration must happen before Start ([ErrAlreadyStarted]). Endpoint names
// must be unique ([ErrDuplicateTask]) and a sink target may be owned by one
// task only ([ErrSinkShared]).
func Register[T any](s *Synchronizer, task Task[T]) (TaskHandle, error) {
	if task.Sink == nil {
		return TaskHandle{}, fmt.Errorf("task %q: sink is required", task.Endpoint.name)
	}
	if task.Endpoint.parse == nil {
		return TaskHandle{}, errors.New("endpoint is not initialised; use NewEndpoint")
	}

	interval := task.Interval
	if interval == 0 {
		interval = task.Endpoint.interval
	}
	if interval == 0 {
		interval = s.defaultInterval
	}

	info, err := taskInfo(s.baseURL, task.Endpoint, interval, task.Sink)
	if err != nil {
		return TaskHandle{}, fmt.Errorf("task %q: %w", task.Endpoint.name, err)
	}

	h, err := s.engine.Register(info)
	if err != nil {
		return TaskHandle{}, err
	}

	s.store.Apply(info.Name, func(snap *store.Snapshot) {
		snap.URL = info.Request.URL
	})
	return h, nil
}

// Start launches the dashboard server (when configured) and the schedule,
// then returns. Every task runs once immediately.
//
// Start is idempotent and a no-op after Stop. It returns an error only if
// the dashboard server cannot bind its port.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)

	if s.port > 0 {
		httpServer := server.NewServer(s.store, s.port, dashboard.Assets, s.title, s.logger)
		if err := httpServer.Start(runCtx); err != nil {
			cancel()
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	tasks := s.engine.Tasks()
	s.logger.Info("signalsync starting", "task_count", len(tasks))
	for _, t := range tasks {
		s.logger.Debug("sync task scheduled", "task", t.Name, "interval", t.Interval.String())
	}

	s.engine.Start(runCtx)
	s.started = true
	s.cancel = cancel
	return nil
}

// Run starts s and blocks until ctx is cancelled, then stops it.
//
// Returns nil on graceful shutdown, or the error from [Synchronizer.Start].
func (s *Synchronizer) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	if err := s.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	s.Stop()
	s.logger.Info("signalsync stopped")
	return nil
}

// Stop cancels every task, waits for outstanding cycles and shuts the
// dashboard server down. Results of cycles cut short by Stop are discarded.
//
// Stop is idempotent and safe to call before Start. It must not be called
// from a sink or a cycle callback.
func (s *Synchronizer) Stop() {
	s.engine.Stop()

	s.mu.Lock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
}

// StopTask cancels one task's schedule. A cycle in flight may finish but its
// result is discarded; once StopTask returns the task's sink is not called
// again.
func (s *Synchronizer) StopTask(h TaskHandle) error {
	return s.engine.StopTask(h)
}

// Status returns the scheduling counters for one task.
func (s *Synchronizer) Status(h TaskHandle) (TaskStatus, error) {
	return s.engine.Status(h)
}

// Tasks returns the counters of every task in registration order.
func (s *Synchronizer) Tasks() []TaskStatus {
	return s.engine.Tasks()
}

// onCycle records cycle health in the store and fans the report out to the
// registered callbacks.
func (s *Synchronizer) onCycle(r poller.Report) {
	if r.Discarded {
		return
	}

	s.store.Apply(r.Task, func(snap *store.Snapshot) {
		snap.CheckedAt = r.StartedAt
		snap.ResponseTimeMs = r.Latency.Milliseconds()
		snap.Cycles++
		if r.Outcome.OK() {
			snap.ConsecutiveFailures = 0
			snap.Error = nil
			return
		}
		reason := r.Outcome.Reason()
		snap.ConsecutiveFailures++
		snap.Error = &reason
	})

	if len(s.callbacks) == 0 {
		return
	}
	report := toCycleReport(r)
	for _, cb := range s.callbacks {
		invokeCallbackSafe(cb, report, s.logger)
	}
}

// invokeCallbackSafe calls a cycle callback with panic recovery.
func invokeCallbackSafe(cb func(CycleReport), report CycleReport, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("cycle callback panicked",
				"panic", r,
				"task", report.Task,
			)
		}
	}()
	cb(report)
}
