package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// minTick bounds how fast the scheduling loop may tick.
const minTick = time.Millisecond

// State is the lifecycle state of a single task.
type State string

const (
	// StateIdle means no cycle is outstanding.
	StateIdle State = "idle"

	// StateFetching means a cycle has been dispatched and not yet resolved.
	StateFetching State = "fetching"

	// StateStopped is terminal; the task is never scheduled again.
	StateStopped State = "stopped"
)

// Handle identifies a registered task.
type Handle struct {
	id   uint64
	name string
}

// Name returns the registered task name.
func (h Handle) Name() string { return h.name }

// Valid reports whether the handle was issued by a synchronizer.
func (h Handle) Valid() bool { return h.id != 0 }

// Report describes one finished cycle. It is passed to the observer.
type Report struct {
	Task       string
	Cycle      uint64
	Outcome    Outcome
	StatusCode int
	Latency    time.Duration
	StartedAt  time.Time

	// Discarded is true when the task (or the synchronizer) was stopped while
	// the cycle was in flight; the sink was not called.
	Discarded bool
}

// TaskStatus is a point-in-time view of a task's scheduling counters.
type TaskStatus struct {
	Name     string
	State    State
	Interval time.Duration
	Cycles   uint64
	Deferred uint64
}

// Config holds the collaborators of a [Synchronizer].
type Config struct {
	// Fetcher issues requests. Required.
	Fetcher Fetcher

	// Clock drives the schedule. Defaults to the real clock.
	Clock clockwork.Clock

	// Logger receives cycle and panic logs. Defaults to slog.Default().
	Logger *slog.Logger

	// MaxConcurrency caps simultaneous fetches across all tasks. Zero means
	// no cap beyond one per task.
	MaxConcurrency int

	// OnCycle, when set, is called after every cycle, including discarded
	// ones. It must not block. It runs in the cycle goroutine after the
	// render, so it may call StopTask but calling Stop from it deadlocks.
	OnCycle func(Report)
}

type task struct {
	id   uint64
	info TaskInfo

	// guarded by Synchronizer.mu
	state       State
	hasRun      bool
	lastStarted time.Time
	cycles      uint64
	deferred    uint64

	// held while the sink renders so StopTask can wait out a render in progress
	renderMu sync.Mutex
}

// Synchronizer runs registered tasks on their intervals.
//
// All tasks are run once immediately on start. After that a single loop ticks
// at the GCD of the task intervals and dispatches every task that is due and
// idle. A due task whose previous cycle is still outstanding is deferred and
// re-checked on the next tick, so each task has at most one request in flight
// and its renders are applied in cycle order.
//
// All methods are safe for concurrent use.
type Synchronizer struct {
	fetcher  Fetcher
	clock    clockwork.Clock
	logger   *slog.Logger
	onCycle  func(Report)
	sem      chan struct{}
	inflight sync.WaitGroup
	wg       sync.WaitGroup

	mu      sync.Mutex
	tasks   []*task
	byID    map[uint64]*task
	targets map[string]string
	nextID  uint64
	started bool
	stopped bool
	cancel  context.CancelFunc

	baseInterval time.Duration
}

// NewSynchronizer creates a [Synchronizer] from cfg.
//
// Tasks are added with [Synchronizer.Register] before [Synchronizer.Start].
func NewSynchronizer(cfg Config) *Synchronizer {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Synchronizer{
		fetcher: cfg.Fetcher,
		clock:   clock,
		logger:  logger,
		onCycle: cfg.OnCycle,
		byID:    make(map[uint64]*task),
		targets: make(map[string]string),
	}
	if cfg.MaxConcurrency > 0 {
		s.sem = make(chan struct{}, cfg.MaxConcurrency)
	}
	return s
}

// Register adds a task and returns its handle.
//
// Registration is only allowed before Start. Task names must be unique, and
// each display target may be owned by one task only.
func (s *Synchronizer) Register(info TaskInfo) (Handle, error) {
	if info.Name == "" {
		return Handle{}, errors.New("task name cannot be empty")
	}
	if info.Interval <= 0 {
		return Handle{}, fmt.Errorf("task %q: interval must be positive", info.Name)
	}
	if info.Parse == nil {
		return Handle{}, fmt.Errorf("task %q: parse function is required", info.Name)
	}
	if info.Render == nil {
		return Handle{}, fmt.Errorf("task %q: sink is required", info.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return Handle{}, ErrAlreadyStarted
	}
	for _, t := range s.tasks {
		if t.info.Name == info.Name {
			return Handle{}, fmt.Errorf("%w: %q", ErrDuplicateTask, info.Name)
		}
	}
	for _, target := range info.Targets {
		if owner, taken := s.targets[target]; taken {
			return Handle{}, fmt.Errorf("%w: %q is rendered by task %q", ErrSinkShared, target, owner)
		}
	}
	for _, target := range info.Targets {
		s.targets[target] = info.Name
	}

	s.nextID++
	t := &task{id: s.nextID, info: info, state: StateIdle}
	s.tasks = append(s.tasks, t)
	s.byID[t.id] = t

	return Handle{id: t.id, name: info.Name}, nil
}

// Start runs every task once and then schedules them in a background
// goroutine until [Synchronizer.Stop] is called or ctx is cancelled.
//
// Start is non-blocking and idempotent. If Stop was called first, Start is a
// no-op. A nil ctx is treated as context.Background().
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.baseInterval = s.calculateBaseInterval()

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		s.dispatchDue(runCtx, s.clock.Now(), true)

		ticker := s.clock.NewTicker(s.baseInterval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case now := <-ticker.Chan():
				s.dispatchDue(runCtx, now, false)
			}
		}
	}()
}

// Stop halts scheduling, cancels in-flight requests and waits for every
// outstanding cycle to finish. Results of cancelled cycles are discarded.
//
// Stop is idempotent and safe to call before Start.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		for _, t := range s.tasks {
			t.state = StateStopped
		}
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.inflight.Wait()

	if c, ok := s.fetcher.(interface{ Close() }); ok {
		c.Close()
	}
}

// StopTask removes one task from the schedule.
//
// A cycle already in flight is allowed to finish but its result is discarded.
// When StopTask returns the task's sink will not be called again. It waits
// for a render in progress, so calling it from that task's Render deadlocks.
func (s *Synchronizer) StopTask(h Handle) error {
	s.mu.Lock()
	t, ok := s.byID[h.id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownTask, h.name)
	}
	t.state = StateStopped
	s.mu.Unlock()

	// wait out a render that passed its stop check before we got here
	t.renderMu.Lock()
	t.renderMu.Unlock()

	s.logger.Info("sync task stopped", "task", t.info.Name)
	return nil
}

// Status returns the scheduling counters for one task.
func (s *Synchronizer) Status(h Handle) (TaskStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[h.id]
	if !ok {
		return TaskStatus{}, fmt.Errorf("%w: %q", ErrUnknownTask, h.name)
	}
	return t.status(), nil
}

// Tasks returns the counters of every task in registration order.
func (s *Synchronizer) Tasks() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.status())
	}
	return out
}

func (t *task) status() TaskStatus {
	return TaskStatus{
		Name:     t.info.Name,
		State:    t.state,
		Interval: t.info.Interval,
		Cycles:   t.cycles,
		Deferred: t.deferred,
	}
}

// calculateBaseInterval returns the GCD of all task intervals.
// Must be called with mu held.
func (s *Synchronizer) calculateBaseInterval() time.Duration {
	var result time.Duration
	for _, t := range s.tasks {
		result = gcdDuration(result, t.info.Interval)
	}
	if result < minTick {
		result = minTick
	}
	return result
}

// gcdDuration calculates the greatest common divisor of two durations.
func gcdDuration(a, b time.Duration) time.Duration {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// dispatchDue starts a cycle for every idle task whose interval has elapsed.
// If immediate is true every idle task is started regardless of timing.
//
// lastStarted is recorded when a cycle is dispatched, so the interval is
// measured between cycle starts.
func (s *Synchronizer) dispatchDue(ctx context.Context, now time.Time, immediate bool) {
	type dispatch struct {
		t     *task
		cycle uint64
	}

	s.mu.Lock()
	due := make([]dispatch, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.state == StateStopped {
			continue
		}

		isDue := immediate || !t.hasRun || now.Sub(t.lastStarted) >= t.info.Interval
		if !isDue {
			continue
		}
		if t.state == StateFetching {
			// previous cycle outstanding; re-checked on the next tick
			t.deferred++
			continue
		}

		t.state = StateFetching
		t.hasRun = true
		t.lastStarted = now
		t.cycles++
		due = append(due, dispatch{t: t, cycle: t.cycles})
	}
	s.inflight.Add(len(due))
	s.mu.Unlock()

	for _, d := range due {
		go s.runCycle(ctx, d.t, d.cycle, now)
	}
}

// runCycle performs fetch, branch and render for one task.
func (s *Synchronizer) runCycle(ctx context.Context, t *task, cycle uint64, startedAt time.Time) {
	defer s.inflight.Done()

	report := Report{Task: t.info.Name, Cycle: cycle, StartedAt: startedAt}

	if s.sem != nil {
		select {
		case s.sem <- struct{}{}:
			defer func() { <-s.sem }()
		case <-ctx.Done():
			report.Outcome = Failure(&TransportError{Op: "await fetch slot", Err: ctx.Err()})
			report.Discarded = true
			s.finish(t, report)
			return
		}
	}

	outcome, resp := Fetch(ctx, s.fetcher, t.info, func(stage, id string, r any) {
		s.logPanic(stage+" panic", t.info.Name, id, r)
	})
	report.Outcome = outcome
	report.StatusCode = resp.StatusCode
	report.Latency = resp.Latency

	t.renderMu.Lock()
	s.mu.Lock()
	discard := t.state == StateStopped || ctx.Err() != nil
	s.mu.Unlock()
	if !discard && outcome.OK() {
		s.safeRender(t, outcome.Payload)
	}
	t.renderMu.Unlock()

	report.Discarded = discard
	s.finish(t, report)
}

// finish returns the task to idle, logs the cycle and notifies the observer.
func (s *Synchronizer) finish(t *task, r Report) {
	s.mu.Lock()
	if t.state == StateFetching {
		t.state = StateIdle
	}
	s.mu.Unlock()

	attrs := []any{
		"task", r.Task,
		"url", t.info.Request.URL,
		"cycle", r.Cycle,
		"status_code", r.StatusCode,
		"latency_ms", r.Latency.Milliseconds(),
	}
	switch {
	case r.Discarded:
		s.logger.Debug("sync cycle discarded", attrs...)
	case !r.Outcome.OK():
		s.logger.Warn("sync cycle failed", append(attrs, "error", r.Outcome.Reason())...)
	default:
		s.logger.Debug("sync cycle rendered", attrs...)
	}

	if s.onCycle != nil {
		s.notifySafe(r)
	}
}

// safeRender calls the task's sink with panic recovery.
func (s *Synchronizer) safeRender(t *task, payload any) {
	defer func() {
		if r := recover(); r != nil {
			s.logPanic("sink panic", t.info.Name, uuid.NewString(), r)
		}
	}()
	t.info.Render(payload)
}

// notifySafe calls the observer with panic recovery.
func (s *Synchronizer) notifySafe(r Report) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("cycle observer panicked", "panic", rec, "task", r.Task)
		}
	}()
	s.onCycle(r)
}

func (s *Synchronizer) logPanic(msg, taskName, correlationID string, recovered any) {
	s.logger.Error(msg,
		"task", taskName,
		"correlation_id", correlationID,
		"panic", fmt.Sprintf("%v", recovered),
		"stack", string(debug.Stack()),
	)
}
