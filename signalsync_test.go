package signalsync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const signalsBody = `{"status":"success","signals":[{"symbol":"BTC/USDT","type":"BUY","price":43250.5,"timestamp":"2024-01-15T10:30:00Z"}]}`

// signalsBackend answers /api/signals with the payload once, then with
// HTTP 500 {"message":"server error"}.
func signalsBackend(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/signals" {
			http.NotFound(w, r)
			return
		}
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(signalsBody))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":"error","message":"server error"}`))
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

type recorder[T any] struct {
	mu       sync.Mutex
	payloads []T
}

func (r *recorder[T]) Render(p T) {
	r.mu.Lock()
	r.payloads = append(r.payloads, p)
	r.mu.Unlock()
}

func (r *recorder[T]) all() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.payloads...)
}

func waitReport(t *testing.T, ch <-chan CycleReport) CycleReport {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no cycle report within timeout")
		return CycleReport{}
	}
}

func TestFetch_SignalsThenServerError(t *testing.T) {
	ts, _ := signalsBackend(t)
	client := NewHTTPFetcher(nil)
	defer client.Close()

	ep := MustEndpoint("signals", "/api/signals", JSON[map[string]any]())

	first := Fetch(context.Background(), client, ts.URL, ep)
	if !first.OK() {
		t.Fatalf("first fetch failed: %v", first.Err)
	}
	var want map[string]any
	if err := json.Unmarshal([]byte(signalsBody), &want); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first.Payload, want) {
		t.Errorf("payload = %v, want %v", first.Payload, want)
	}

	second := Fetch(context.Background(), client, ts.URL, ep)
	if second.OK() {
		t.Fatal("second fetch should fail")
	}
	if second.Reason() != "server error" {
		t.Errorf("Reason() = %q, want %q", second.Reason(), "server error")
	}
	var se *StatusError
	if !errors.As(second.Err, &se) || se.Code != http.StatusInternalServerError {
		t.Errorf("error = %#v, want *StatusError 500", second.Err)
	}
}

func TestFetch_RelativePathWithoutBaseURL(t *testing.T) {
	ep := MustEndpoint("signals", "/api/signals", Raw)
	res := Fetch(context.Background(), NewHTTPFetcher(nil), "", ep)

	var te *TransportError
	if !errors.As(res.Err, &te) {
		t.Fatalf("error = %v, want *TransportError", res.Err)
	}
}

func TestSynchronizer_RenderThenFailureKeepsPayload(t *testing.T) {
	ts, calls := signalsBackend(t)
	clock := clockwork.NewFakeClock()
	t0 := clock.Now()
	reports := make(chan CycleReport, 8)

	s, err := New(
		WithBaseURL(ts.URL),
		WithClock(clock),
		WithLogger(testLogger()),
		WithCycleCallback(func(r CycleReport) { reports <- r }),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	sink := &recorder[map[string]any]{}
	ep := MustEndpoint("signals", "/api/signals", JSON[map[string]any]())
	if _, err := Register(s, Task[map[string]any]{
		Endpoint: ep,
		Sink:     MultiSink[map[string]any](sink, StoreSink[map[string]any](s, "signals")),
		Interval: 30 * time.Second,
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	// immediate pass, no clock movement
	first := waitReport(t, reports)
	if !first.OK() || first.Cycle != 1 || first.StatusCode != http.StatusOK {
		t.Fatalf("first report = %+v", first)
	}

	clock.BlockUntil(1)
	clock.Advance(30 * time.Second)

	second := waitReport(t, reports)
	if second.OK() || second.Reason() != "server error" || second.Cycle != 2 {
		t.Fatalf("second report = %+v", second)
	}

	if got := sink.all(); len(got) != 1 || got[0]["status"] != "success" {
		t.Errorf("sink payloads = %v, want exactly the first payload", got)
	}
	if calls.Load() != 2 {
		t.Errorf("backend calls = %d, want 2", calls.Load())
	}

	snap, ok := s.store.Get("signals")
	if !ok {
		t.Fatal("store has no snapshot for signals")
	}
	if !strings.Contains(string(snap.Payload), `"BTC/USDT"`) {
		t.Errorf("store payload = %s, want last rendered payload", snap.Payload)
	}
	if snap.Error == nil || *snap.Error != "server error" {
		t.Errorf("store error = %v, want server error", snap.Error)
	}
	if snap.Cycles != 2 || snap.ConsecutiveFailures != 1 {
		t.Errorf("store counters = cycles %d failures %d", snap.Cycles, snap.ConsecutiveFailures)
	}
	if snap.RenderedAt == nil || !snap.RenderedAt.Equal(t0) {
		t.Errorf("store rendered_at = %v, want %v", snap.RenderedAt, t0)
	}
	if want := t0.Add(30 * time.Second); !snap.CheckedAt.Equal(want) {
		t.Errorf("store checked_at = %v, want %v", snap.CheckedAt, want)
	}
}

func TestRegister_Errors(t *testing.T) {
	ep := MustEndpoint("signals", "/api/signals", Raw)

	tests := []struct {
		name    string
		setup   func(s *Synchronizer)
		task    Task[[]byte]
		wantErr error
		errText string
	}{
		{
			name:    "nil sink",
			task:    Task[[]byte]{Endpoint: ep},
			errText: "sink is required",
		},
		{
			name:    "zero endpoint",
			task:    Task[[]byte]{Sink: SinkFunc[[]byte](func([]byte) {})},
			errText: "use NewEndpoint",
		},
		{
			name: "duplicate name",
			setup: func(s *Synchronizer) {
				_, _ = Register(s, Task[[]byte]{Endpoint: ep, Sink: SinkFunc[[]byte](func([]byte) {})})
			},
			task:    Task[[]byte]{Endpoint: ep, Sink: SinkFunc[[]byte](func([]byte) {})},
			wantErr: ErrDuplicateTask,
		},
		{
			name: "shared target",
			setup: func(s *Synchronizer) {
				_, _ = Register(s, Task[[]byte]{Endpoint: ep, Sink: NamedSink("signals-list", func([]byte) {})})
			},
			task: Task[[]byte]{
				Endpoint: MustEndpoint("signals-2", "/api/signals", Raw),
				Sink:     MultiSink[[]byte](SinkFunc[[]byte](func([]byte) {}), NamedSink("signals-list", func([]byte) {})),
			},
			wantErr: ErrSinkShared,
		},
		{
			name: "after start",
			setup: func(s *Synchronizer) {
				_ = s.Start(context.Background())
				s.Stop()
			},
			task:    Task[[]byte]{Endpoint: ep, Sink: SinkFunc[[]byte](func([]byte) {})},
			wantErr: ErrAlreadyStarted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(WithBaseURL("http://localhost:5000"), WithClock(clockwork.NewFakeClock()), WithLogger(testLogger()))
			if err != nil {
				t.Fatal(err)
			}
			if tt.setup != nil {
				tt.setup(s)
			}

			_, err = Register(s, tt.task)
			if err == nil {
				t.Fatal("Register() expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.errText != "" && !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.errText)
			}
		})
	}
}

func TestRegister_IntervalPrecedence(t *testing.T) {
	s, err := New(
		WithBaseURL("http://localhost:5000"),
		WithDefaultInterval(time.Minute),
		WithClock(clockwork.NewFakeClock()),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatal(err)
	}
	noop := SinkFunc[[]byte](func([]byte) {})

	tests := []struct {
		name string
		task Task[[]byte]
		want time.Duration
	}{
		{"default", Task[[]byte]{Endpoint: MustEndpoint("a", "/a", Raw), Sink: noop}, time.Minute},
		{"endpoint", Task[[]byte]{Endpoint: MustEndpoint("b", "/b", Raw, WithInterval(10*time.Second)), Sink: noop}, 10 * time.Second},
		{"task wins", Task[[]byte]{Endpoint: MustEndpoint("c", "/c", Raw, WithInterval(10*time.Second)), Sink: noop, Interval: 5 * time.Second}, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := Register(s, tt.task)
			if err != nil {
				t.Fatalf("Register() error = %v", err)
			}
			st, err := s.Status(h)
			if err != nil {
				t.Fatalf("Status() error = %v", err)
			}
			if st.Interval != tt.want {
				t.Errorf("Interval = %v, want %v", st.Interval, tt.want)
			}
			if st.State != StateIdle {
				t.Errorf("State = %v, want idle", st.State)
			}
		})
	}

	if got := len(s.Tasks()); got != 3 {
		t.Errorf("Tasks() = %d entries, want 3", got)
	}
}

func TestSynchronizer_StopTask(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"status":"success","active_trades":2,"last_trade":null}`))
	}))
	defer ts.Close()

	clock := clockwork.NewFakeClock()
	reports := make(chan CycleReport, 8)
	s, err := New(WithBaseURL(ts.URL), WithClock(clock), WithLogger(testLogger()),
		WithCycleCallback(func(r CycleReport) { reports <- r }))
	if err != nil {
		t.Fatal(err)
	}

	sink := &recorder[[]byte]{}
	h, err := Register(s, Task[[]byte]{Endpoint: MustEndpoint("bot_status", "/api/bot/status", Raw), Sink: sink, Interval: time.Second})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	waitReport(t, reports)

	if err := s.StopTask(h); err != nil {
		t.Fatalf("StopTask() error = %v", err)
	}

	clock.BlockUntil(1)
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
	}
	time.Sleep(50 * time.Millisecond)

	if got := len(sink.all()); got != 1 {
		t.Errorf("sink renders = %d, want 1", got)
	}
	if calls.Load() != 1 {
		t.Errorf("backend calls = %d, want 1", calls.Load())
	}
	st, _ := s.Status(h)
	if st.State != StateStopped {
		t.Errorf("State = %v, want stopped", st.State)
	}

	if err := s.StopTask(TaskHandle{}); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("StopTask(zero) error = %v, want ErrUnknownTask", err)
	}
}

func TestWithCycleCallback_PanicRecovered(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	reports := make(chan CycleReport, 4)
	s, err := New(
		WithBaseURL(ts.URL),
		WithClock(clockwork.NewFakeClock()),
		WithLogger(testLogger()),
		WithCycleCallback(func(CycleReport) { panic("boom") }),
		WithCycleCallback(func(r CycleReport) { reports <- r }),
	)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Register(s, Task[[]byte]{Endpoint: MustEndpoint("profile", "/auth/profile", Raw), Sink: SinkFunc[[]byte](func([]byte) {})}); err != nil {
		t.Fatal(err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	if r := waitReport(t, reports); r.Task != "profile" {
		t.Errorf("report Task = %q", r.Task)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func TestRun_ServesDashboardUntilCancelled(t *testing.T) {
	ts, _ := signalsBackend(t)
	port := freePort(t)

	reports := make(chan CycleReport, 4)
	s, err := New(
		WithBaseURL(ts.URL),
		WithDashboard(port),
		WithTitle("MiiCoin"),
		WithLogger(testLogger()),
		WithCycleCallback(func(r CycleReport) { reports <- r }),
	)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Register(s, Task[map[string]any]{
		Endpoint: MustEndpoint("signals", "/api/signals", JSON[map[string]any]()),
		Sink:     StoreSink[map[string]any](s, "signals"),
		Interval: time.Hour,
	}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitReport(t, reports)

	resp, err := http.Get("http://localhost:" + strconv.Itoa(port) + "/api/tasks/signals")
	if err != nil {
		cancel()
		t.Fatalf("GET /api/tasks/signals: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"BTC/USDT"`) {
		t.Errorf("dashboard response %d: %s", resp.StatusCode, body)
	}

	select {
	case err := <-done:
		t.Fatalf("Run() returned early: %v", err)
	default:
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
}

func TestRun_AlreadyCancelled(t *testing.T) {
	s, err := New(WithLogger(testLogger()))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Run(ctx); err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ln.Close() }()

	s, err := New(WithDashboard(ln.Addr().(*net.TCPAddr).Port), WithLogger(testLogger()))
	if err != nil {
		t.Fatal(err)
	}

	err = s.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "failed to start HTTP server") {
		t.Errorf("Start() error = %v, want bind failure", err)
	}
}
