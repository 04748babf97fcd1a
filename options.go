package signalsync

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
)

// syncConfig holds mutable state during Synchronizer construction.
type syncConfig struct {
	baseURL         string
	defaultInterval time.Duration
	maxConcurrency  int
	logger          *slog.Logger
	fetcher         Fetcher
	jar             http.CookieJar
	clock           clockwork.Clock
	cycleCallbacks  []func(CycleReport)
	port            int
	title           string
}

// Option configures a [Synchronizer] during construction. Options return an
// error if validation fails.
type Option func(*syncConfig) error

// WithBaseURL sets the backend origin that relative endpoint paths resolve
// against, e.g. "http://localhost:5000".
//
// Returns an error if the URL is not absolute http(s).
func WithBaseURL(raw string) Option {
	return func(cfg *syncConfig) error {
		u, err := url.Parse(raw)
		if err != nil {
			return errors.New("invalid base URL: " + err.Error())
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New("base URL must be an absolute http(s) URL")
		}
		cfg.baseURL = raw
		return nil
	}
}

// WithDefaultInterval sets the interval used by tasks that set none.
// Defaults to 30 seconds.
func WithDefaultInterval(d time.Duration) Option {
	return func(cfg *syncConfig) error {
		if d <= 0 {
			return errors.New("default interval must be positive")
		}
		cfg.defaultInterval = d
		return nil
	}
}

// WithMaxConcurrency caps how many fetches may be outstanding across all
// tasks. Without it each task is still limited to one.
func WithMaxConcurrency(n int) Option {
	return func(cfg *syncConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithLogger sets the [slog.Logger] for cycle, panic and server logs. If not
// specified, [slog.Default] is used.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *syncConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithFetcher replaces the default HTTP client. Useful for tests and for
// non-HTTP transports.
func WithFetcher(f Fetcher) Option {
	return func(cfg *syncConfig) error {
		if f == nil {
			return errors.New("fetcher cannot be nil")
		}
		cfg.fetcher = f
		return nil
	}
}

// WithCookieJar makes the default HTTP client store and replay cookies, so a
// session established by a login on the same jar applies to every poll.
// Ignored when [WithFetcher] is used.
func WithCookieJar(jar http.CookieJar) Option {
	return func(cfg *syncConfig) error {
		cfg.jar = jar
		return nil
	}
}

// WithClock sets the clock driving the schedule. Tests pass a
// clockwork.FakeClock to run intervals in virtual time.
func WithClock(c clockwork.Clock) Option {
	return func(cfg *syncConfig) error {
		if c == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.clock = c
		return nil
	}
}

// WithCycleCallback registers a function called after every cycle with its
// [CycleReport]. Callbacks run in the cycle goroutine in registration order
// and must not block. Panics are recovered and logged. A callback may call
// [Synchronizer.StopTask] but not [Synchronizer.Stop], which waits for the
// cycle to end.
func WithCycleCallback(fn func(CycleReport)) Option {
	return func(cfg *syncConfig) error {
		if fn == nil {
			return errors.New("cycle callback cannot be nil")
		}
		cfg.cycleCallbacks = append(cfg.cycleCallbacks, fn)
		return nil
	}
}

// WithDashboard serves the live dashboard on port while the synchronizer
// runs. Tasks render into it through [StoreSink].
//
// Returns an error if the port is outside 1-65535.
func WithDashboard(port int) Option {
	return func(cfg *syncConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithTitle sets the dashboard heading. Defaults to "SignalSync".
func WithTitle(title string) Option {
	return func(cfg *syncConfig) error {
		cfg.title = title
		return nil
	}
}
