// Package config loads SignalSync's YAML configuration.
//
// The CLI uses it to build registrations without writing Go. Example:
//
//	title: MiiCoin
//	base_url: http://localhost:5000
//	interval: 30s
//
//	auth:
//	  email: ${MIICOIN_EMAIL}
//	  password: ${MIICOIN_PASSWORD}
//
//	tasks:
//	  - name: signals
//	    path: /api/signals
//	    kind: signals
//	    sinks: [store, console]
//
//	grids:
//	  - name: signals
//	    path_template: "/api/signals?symbol={{.symbol}}"
//	    kind: signals
//	    dimensions:
//	      symbol: [BTC/USDT, ETH/USDT]
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// minInterval keeps a config file from hammering the backend.
const minInterval = 1 * time.Second

const (
	defaultPort     = 8080
	defaultInterval = 30 * time.Second
	defaultPrefix   = "signalsync"
)

// Sink names accepted in a task's sinks list.
const (
	SinkStore   = "store"
	SinkConsole = "console"
	SinkRedis   = "redis"
)

// Config is the root of a SignalSync config file.
type Config struct {
	// Title is the dashboard title. Empty keeps the server default.
	Title string `yaml:"title"`

	// Port is the dashboard port. Defaults to 8080; -1 disables the dashboard.
	Port int `yaml:"port"`

	// BaseURL is prepended to relative task paths.
	BaseURL string `yaml:"base_url"`

	// Interval is the default time between cycles. Defaults to 30s.
	Interval Duration `yaml:"interval"`

	// MaxConcurrency caps simultaneous fetches. Zero means unlimited.
	MaxConcurrency int `yaml:"max_concurrency"`

	// Auth, when set, logs in once before polling starts.
	Auth *AuthConfig `yaml:"auth"`

	// Redis is required when any task uses the redis sink.
	Redis *RedisConfig `yaml:"redis"`

	Tasks []TaskConfig `yaml:"tasks"`
	Grids []GridConfig `yaml:"grids"`
}

// AuthConfig holds the credentials for the backend's session login.
type AuthConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// RedisConfig points the redis sink at a server.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Prefix namespaces every key. Defaults to "signalsync".
	Prefix string `yaml:"prefix"`
}

// TaskConfig defines one polled path.
type TaskConfig struct {
	Name string `yaml:"name"`

	// Path is relative to base_url, or an absolute http(s) URL.
	Path string `yaml:"path"`

	// Kind selects the parse function. Defaults to raw.
	Kind KindConfig `yaml:"kind"`

	// Sinks lists where payloads go. Defaults to [store].
	Sinks []string `yaml:"sinks"`

	Method   string            `yaml:"method"`
	Headers  map[string]string `yaml:"headers"`
	Body     any               `yaml:"body"`
	Timeout  Duration          `yaml:"timeout"`
	Interval Duration          `yaml:"interval"`
}

// GridConfig expands a path template over every combination of its
// dimensions. Each combination becomes a task named "name (v1/v2)".
type GridConfig struct {
	Name         string              `yaml:"name"`
	PathTemplate string              `yaml:"path_template"`
	Dimensions   map[string][]string `yaml:"dimensions"`
	Kind         KindConfig          `yaml:"kind"`
	Sinks        []string            `yaml:"sinks"`
	Method       string              `yaml:"method"`
	Headers      map[string]string   `yaml:"headers"`
	Timeout      Duration            `yaml:"timeout"`
	Interval     Duration            `yaml:"interval"`
}

// Kinds of payload a task can parse.
const (
	KindSignals   = "signals"
	KindBotStatus = "bot_status"
	KindProfile   = "profile"
	KindRaw       = "raw"
	KindJSON      = "json"
)

// KindConfig selects how a response body is parsed.
//
// It accepts a shorthand string or an object:
//
//	kind: signals
//	kind: json:signals.0.price
//
//	kind:
//	  type: json
//	  path: signals.0.price
type KindConfig struct {
	// Type is one of signals, bot_status, profile, raw or json.
	Type string

	// Path is the dot-separated field for type json.
	Path string
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler for KindConfig.
func (k *KindConfig) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		return k.parseShorthand(s)
	case yaml.MappingNode:
		var raw struct {
			Type string `yaml:"type"`
			Path string `yaml:"path"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		k.Type = raw.Type
		k.Path = raw.Path
		return nil
	}
	return fmt.Errorf("kind must be a string or object, got %v", node.Kind)
}

func (k *KindConfig) parseShorthand(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if typ, path, ok := strings.Cut(s, ":"); ok {
		if typ != KindJSON {
			return fmt.Errorf("unknown kind %q", typ)
		}
		k.Type = KindJSON
		k.Path = path
		return nil
	}
	k.Type = s
	return nil
}

func (k KindConfig) String() string {
	if k.Type == KindJSON {
		return KindJSON + ":" + k.Path
	}
	return k.Type
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
// Group 1 is the name, group 2 the ":-default" part, group 3 the default.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment values.
// A variable that is unset and has no default is an error.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		sub := envVarPattern.FindStringSubmatch(match)
		name := sub[1]
		hasDefault := sub[2] != ""

		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		if hasDefault {
			return sub[3]
		}
		firstErr = fmt.Errorf("environment variable %q is not set", name)
		return match
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML config data, applies defaults, expands environment
// variables and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Interval == 0 {
		c.Interval = Duration(defaultInterval)
	}
	if c.Redis != nil && c.Redis.Prefix == "" {
		c.Redis.Prefix = defaultPrefix
	}
	for i := range c.Tasks {
		if c.Tasks[i].Kind.Type == "" {
			c.Tasks[i].Kind.Type = KindRaw
		}
		if len(c.Tasks[i].Sinks) == 0 {
			c.Tasks[i].Sinks = []string{SinkStore}
		}
	}
	for i := range c.Grids {
		if c.Grids[i].Kind.Type == "" {
			c.Grids[i].Kind.Type = KindRaw
		}
		if len(c.Grids[i].Sinks) == 0 {
			c.Grids[i].Sinks = []string{SinkStore}
		}
	}
}

// DashboardEnabled reports whether the config asks for the HTTP dashboard.
func (c *Config) DashboardEnabled() bool {
	return c.Port > 0
}

// TaskCount returns the number of tasks after grid expansion.
func (c *Config) TaskCount() int {
	n := len(c.Tasks)
	for _, g := range c.Grids {
		size := 1
		for _, vals := range g.Dimensions {
			size *= len(vals)
		}
		n += size
	}
	return n
}

func (c *Config) expandAndValidate() error {
	if c.Port < -1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535 (or -1 to disable), got %d", c.Port)
	}
	if c.Interval.Duration() < minInterval {
		return fmt.Errorf("interval must be at least %s, got %s", minInterval, c.Interval.Duration())
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency cannot be negative, got %d", c.MaxConcurrency)
	}

	if c.BaseURL != "" {
		expanded, err := expandEnvVars(c.BaseURL)
		if err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
		c.BaseURL = expanded
		if err := validateHTTPURL(c.BaseURL); err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
	}

	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateRedis(); err != nil {
		return err
	}

	names := make(map[string]struct{}, len(c.Tasks))
	for i := range c.Tasks {
		t := &c.Tasks[i]
		if t.Name == "" {
			return fmt.Errorf("tasks[%d]: name is required", i)
		}
		where := fmt.Sprintf("tasks[%d] (%s)", i, t.Name)
		if _, dup := names[t.Name]; dup {
			return fmt.Errorf("%s: duplicate task name", where)
		}
		names[t.Name] = struct{}{}

		if t.Path == "" {
			return fmt.Errorf("%s: path is required", where)
		}
		expanded, err := expandEnvVars(t.Path)
		if err != nil {
			return fmt.Errorf("%s: path: %w", where, err)
		}
		t.Path = expanded
		if err := c.validatePath(t.Path); err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}

		if err := c.validateRequest(where, t.Method, t.Headers, t.Timeout, t.Interval, t.Kind, t.Sinks); err != nil {
			return err
		}
	}

	for i := range c.Grids {
		g := &c.Grids[i]
		if g.Name == "" {
			return fmt.Errorf("grids[%d]: name is required", i)
		}
		where := fmt.Sprintf("grids[%d] (%s)", i, g.Name)

		if g.PathTemplate == "" {
			return fmt.Errorf("%s: path_template is required", where)
		}
		expanded, err := expandEnvVars(g.PathTemplate)
		if err != nil {
			return fmt.Errorf("%s: path_template: %w", where, err)
		}
		g.PathTemplate = expanded

		if _, err := template.New("").Parse(g.PathTemplate); err != nil {
			return fmt.Errorf("%s: invalid path_template: %w", where, err)
		}
		if strings.HasPrefix(g.PathTemplate, "/") && c.BaseURL == "" {
			return fmt.Errorf("%s: relative path_template requires base_url", where)
		}

		if len(g.Dimensions) == 0 {
			return fmt.Errorf("%s: at least one dimension is required", where)
		}
		for dim, values := range g.Dimensions {
			if len(values) == 0 {
				return fmt.Errorf("%s: dimension %q has no values", where, dim)
			}
			seen := make(map[string]struct{}, len(values))
			for _, v := range values {
				if _, dup := seen[v]; dup {
					return fmt.Errorf("%s: dimension %q has duplicate value %q", where, dim, v)
				}
				seen[v] = struct{}{}
			}
		}

		if err := c.validateRequest(where, g.Method, g.Headers, g.Timeout, g.Interval, g.Kind, g.Sinks); err != nil {
			return err
		}
	}

	if len(c.Tasks) == 0 && len(c.Grids) == 0 {
		return errors.New("at least one task or grid must be defined")
	}
	return nil
}

func (c *Config) validateAuth() error {
	if c.Auth == nil {
		return nil
	}
	var err error
	if c.Auth.Email, err = expandEnvVars(c.Auth.Email); err != nil {
		return fmt.Errorf("auth.email: %w", err)
	}
	if c.Auth.Password, err = expandEnvVars(c.Auth.Password); err != nil {
		return fmt.Errorf("auth.password: %w", err)
	}
	if c.Auth.Email == "" || c.Auth.Password == "" {
		return errors.New("auth: email and password are required")
	}
	if c.BaseURL == "" {
		return errors.New("auth: base_url is required")
	}
	return nil
}

func (c *Config) validateRedis() error {
	if c.Redis == nil {
		return nil
	}
	var err error
	if c.Redis.Addr, err = expandEnvVars(c.Redis.Addr); err != nil {
		return fmt.Errorf("redis.addr: %w", err)
	}
	if c.Redis.Password, err = expandEnvVars(c.Redis.Password); err != nil {
		return fmt.Errorf("redis.password: %w", err)
	}
	if c.Redis.Addr == "" {
		return errors.New("redis: addr is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("redis: db cannot be negative, got %d", c.Redis.DB)
	}
	return nil
}

func (c *Config) validatePath(path string) error {
	if strings.HasPrefix(path, "/") {
		if c.BaseURL == "" {
			return errors.New("relative path requires base_url")
		}
		return nil
	}
	if err := validateHTTPURL(path); err != nil {
		return fmt.Errorf("path: %w", err)
	}
	return nil
}

// validateRequest checks the fields shared by tasks and grids.
func (c *Config) validateRequest(where, method string, headers map[string]string, timeout, interval Duration, kind KindConfig, sinks []string) error {
	for k, v := range headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("%s: headers[%s]: %w", where, k, err)
		}
		headers[k] = expanded
	}

	switch method {
	case "", "GET", "POST", "PUT", "DELETE":
	default:
		return fmt.Errorf("%s: method must be GET, POST, PUT, or DELETE", where)
	}

	if timeout != 0 && timeout.Duration() < time.Second {
		return fmt.Errorf("%s: timeout must be at least 1s if specified, got %s", where, timeout.Duration())
	}
	if interval != 0 {
		if interval.Duration() < minInterval {
			return fmt.Errorf("%s: interval must be at least %s, got %s", where, minInterval, interval.Duration())
		}
		if interval.Duration() > time.Hour {
			return fmt.Errorf("%s: interval must not exceed 1h, got %s", where, interval.Duration())
		}
	}

	switch kind.Type {
	case KindSignals, KindBotStatus, KindProfile, KindRaw:
	case KindJSON:
		if kind.Path == "" {
			return fmt.Errorf("%s: kind json requires a path", where)
		}
	default:
		return fmt.Errorf("%s: unknown kind %q", where, kind.Type)
	}

	seen := make(map[string]struct{}, len(sinks))
	for _, s := range sinks {
		switch s {
		case SinkStore, SinkConsole:
		case SinkRedis:
			if c.Redis == nil {
				return fmt.Errorf("%s: sink redis requires a redis section", where)
			}
		default:
			return fmt.Errorf("%s: unknown sink %q (expected store, console, or redis)", where, s)
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("%s: duplicate sink %q", where, s)
		}
		seen[s] = struct{}{}
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url must have a host")
	}
	return nil
}
