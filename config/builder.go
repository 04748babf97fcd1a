package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/miicoin/signalsync"
	"github.com/miicoin/signalsync/internal/sink/console"
	"github.com/miicoin/signalsync/internal/sink/redissink"
	"github.com/miicoin/signalsync/signals"
)

// Deps supplies the outputs that configured sinks write to. Console and
// Redis are only needed when a task lists that sink.
type Deps struct {
	Console *console.Writer
	Redis   redissink.Client
	Logger  *slog.Logger
}

// Plan is one task built from the config, ready to register on a
// synchronizer or to fetch once.
type Plan struct {
	Name  string
	Path  string
	Kind  KindConfig
	Sinks []string

	register func(*signalsync.Synchronizer, Deps) (signalsync.TaskHandle, error)
	probe    func(context.Context, signalsync.Fetcher, string) (any, error)
}

// Register adds the plan's task to s with its configured sinks.
func (p Plan) Register(s *signalsync.Synchronizer, deps Deps) (signalsync.TaskHandle, error) {
	return p.register(s, deps)
}

// Probe fetches the plan's endpoint once and returns the parsed payload.
func (p Plan) Probe(ctx context.Context, f signalsync.Fetcher, baseURL string) (any, error) {
	return p.probe(ctx, f, baseURL)
}

// SyncOptions returns the synchronizer options the config asks for.
func SyncOptions(cfg *Config) []signalsync.Option {
	opts := []signalsync.Option{
		signalsync.WithDefaultInterval(cfg.Interval.Duration()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, signalsync.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxConcurrency > 0 {
		opts = append(opts, signalsync.WithMaxConcurrency(cfg.MaxConcurrency))
	}
	if cfg.DashboardEnabled() {
		opts = append(opts, signalsync.WithDashboard(cfg.Port))
	}
	if cfg.Title != "" {
		opts = append(opts, signalsync.WithTitle(cfg.Title))
	}
	return opts
}

// BuildTasks registers every task and grid combination in cfg on s.
func BuildTasks(s *signalsync.Synchronizer, cfg *Config, deps Deps) ([]signalsync.TaskHandle, error) {
	plans, err := BuildPlans(cfg)
	if err != nil {
		return nil, err
	}

	handles := make([]signalsync.TaskHandle, 0, len(plans))
	for _, p := range plans {
		h, err := p.Register(s, deps)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", p.Name, err)
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// BuildPlans converts tasks and grids into plans. Grids expand via
// cartesian product, one plan per combination.
func BuildPlans(cfg *Config) ([]Plan, error) {
	prefix := defaultPrefix
	if cfg.Redis != nil {
		prefix = cfg.Redis.Prefix
	}

	var plans []Plan
	for _, tc := range cfg.Tasks {
		src := source{
			name:        tc.Name,
			path:        tc.Path,
			kind:        tc.Kind,
			sinks:       tc.Sinks,
			redisPrefix: prefix,
			opts:        endpointOptions(tc.Method, tc.Headers, tc.Body, tc.Timeout, tc.Interval),
		}
		p, err := src.plans()
		if err != nil {
			return nil, err
		}
		plans = append(plans, p...)
	}

	for _, gc := range cfg.Grids {
		src := source{
			name:        gc.Name,
			kind:        gc.Kind,
			sinks:       gc.Sinks,
			redisPrefix: prefix,
			opts:        endpointOptions(gc.Method, gc.Headers, nil, gc.Timeout, gc.Interval),
			grid: []signalsync.GridOption{
				signalsync.WithPathTemplate(gc.PathTemplate),
				signalsync.WithDimensions(gc.Dimensions),
			},
		}
		p, err := src.plans()
		if err != nil {
			return nil, err
		}
		plans = append(plans, p...)
	}
	return plans, nil
}

// source is a task or grid before its payload type is fixed.
type source struct {
	name        string
	path        string
	grid        []signalsync.GridOption
	kind        KindConfig
	sinks       []string
	redisPrefix string
	opts        []signalsync.EndpointOption
}

func (src source) plans() ([]Plan, error) {
	switch src.kind.Type {
	case KindSignals:
		return typedPlans(src, kindBinding[signals.SignalList]{
			parse: signals.ParseSignalList,
			console: func(w *console.Writer, task string, l *slog.Logger) signalsync.Sink[signals.SignalList] {
				return console.Signals(w, task, l)
			},
		})
	case KindBotStatus:
		return typedPlans(src, kindBinding[signals.BotStatus]{
			parse: signals.ParseBotStatus,
			console: func(w *console.Writer, task string, l *slog.Logger) signalsync.Sink[signals.BotStatus] {
				return console.BotStatus(w, task, l)
			},
		})
	case KindProfile:
		return typedPlans(src, kindBinding[signals.Profile]{
			parse: signals.ParseProfile,
			console: func(w *console.Writer, task string, l *slog.Logger) signalsync.Sink[signals.Profile] {
				return console.Profile(w, task, l)
			},
		})
	case KindJSON:
		return typedPlans(src, jsonBinding(signalsync.JSONPath[any](src.kind.Path)))
	case KindRaw:
		return typedPlans(src, jsonBinding(signalsync.JSON[json.RawMessage]()))
	}
	return nil, fmt.Errorf("task %q: unknown kind %q", src.name, src.kind.Type)
}

// kindBinding ties a payload type to its parse function and console layout.
type kindBinding[T any] struct {
	parse   signalsync.ParseFunc[T]
	console func(*console.Writer, string, *slog.Logger) signalsync.Sink[T]
}

func jsonBinding[T any](parse signalsync.ParseFunc[T]) kindBinding[T] {
	return kindBinding[T]{
		parse: parse,
		console: func(w *console.Writer, task string, l *slog.Logger) signalsync.Sink[T] {
			return console.JSON[T](w, task, l)
		},
	}
}

func typedPlans[T any](src source, k kindBinding[T]) ([]Plan, error) {
	var endpoints []signalsync.Endpoint[T]
	if src.grid != nil {
		opts := append(append([]signalsync.GridOption(nil), src.grid...), signalsync.WithEndpointOptions(src.opts...))
		eps, err := signalsync.NewEndpointGrid(src.name, k.parse, opts...)
		if err != nil {
			return nil, fmt.Errorf("grid %q: %w", src.name, err)
		}
		endpoints = eps
	} else {
		ep, err := signalsync.NewEndpoint(src.name, src.path, k.parse, src.opts...)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", src.name, err)
		}
		endpoints = []signalsync.Endpoint[T]{ep}
	}

	plans := make([]Plan, 0, len(endpoints))
	for _, ep := range endpoints {
		plans = append(plans, Plan{
			Name:  ep.Name(),
			Path:  ep.Path(),
			Kind:  src.kind,
			Sinks: src.sinks,
			register: func(s *signalsync.Synchronizer, deps Deps) (signalsync.TaskHandle, error) {
				sink, err := buildSink(s, ep.Name(), src, k, deps)
				if err != nil {
					return signalsync.TaskHandle{}, err
				}
				return signalsync.Register(s, signalsync.Task[T]{Endpoint: ep, Sink: sink})
			},
			probe: func(ctx context.Context, f signalsync.Fetcher, baseURL string) (any, error) {
				res := signalsync.Fetch(ctx, f, baseURL, ep)
				if !res.OK() {
					return nil, res.Err
				}
				return res.Payload, nil
			},
		})
	}
	return plans, nil
}

func buildSink[T any](s *signalsync.Synchronizer, task string, src source, k kindBinding[T], deps Deps) (signalsync.Sink[T], error) {
	sinks := make([]signalsync.Sink[T], 0, len(src.sinks))
	for _, name := range src.sinks {
		switch name {
		case SinkStore:
			sinks = append(sinks, signalsync.StoreSink[T](s, task))
		case SinkConsole:
			if deps.Console == nil {
				return nil, errors.New("sink console: no console writer configured")
			}
			sinks = append(sinks, k.console(deps.Console, task, deps.Logger))
		case SinkRedis:
			if deps.Redis == nil {
				return nil, errors.New("sink redis: no redis client configured")
			}
			sinks = append(sinks, redissink.New[T](deps.Redis, src.redisPrefix, task, deps.Logger))
		default:
			return nil, fmt.Errorf("unknown sink %q", name)
		}
	}

	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return signalsync.MultiSink(sinks...), nil
}

func endpointOptions(method string, headers map[string]string, body any, timeout, interval Duration) []signalsync.EndpointOption {
	var opts []signalsync.EndpointOption
	if method != "" {
		opts = append(opts, signalsync.WithMethod(method))
	}
	if len(headers) > 0 {
		opts = append(opts, signalsync.WithHeaders(mapToKeyValuePairs(headers)...))
	}
	if body != nil {
		opts = append(opts, signalsync.WithBody(body))
	}
	if timeout != 0 {
		opts = append(opts, signalsync.WithTimeout(timeout.Duration()))
	}
	if interval != 0 {
		opts = append(opts, signalsync.WithInterval(interval.Duration()))
	}
	return opts
}

// mapToKeyValuePairs flattens m into key, value pairs sorted by key.
func mapToKeyValuePairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
