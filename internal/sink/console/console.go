// Package console renders payloads as text to a terminal or log file.
//
// It is the terminal counterpart of the dashboard panels: a signals list and
// a bot status block, laid out with text/template.
package console

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"text/template"

	"golang.org/x/text/unicode/norm"

	"github.com/miicoin/signalsync/signals"
)

// Writer serialises output from sinks rendering concurrently to one stream.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) write(p []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.w.Write(p)
	return err
}

var funcs = template.FuncMap{
	"upper": strings.ToUpper,
	"time": func(t signals.Timestamp) string {
		if t.IsZero() {
			return "-"
		}
		return t.UTC().Format("2006-01-02 15:04:05 UTC")
	},
	"json": func(v any) (string, error) {
		data, err := json.MarshalIndent(v, "", "  ")
		return string(data), err
	},
}

// Built-in templates. Each is executed with {Task, Payload}.
var (
	SignalsTemplate = template.Must(template.New("signals").Funcs(funcs).Parse(
		`== {{.Task}} ({{len .Payload.Signals}}) ==
{{range .Payload.Signals}}{{printf "%-14s" .Symbol}} {{printf "%-4s" (upper .Type)}}  Price: {{.Price}}  Time: {{time .Timestamp}}
{{else}}no signals
{{end}}`))

	BotStatusTemplate = template.Must(template.New("bot_status").Funcs(funcs).Parse(
		`== {{.Task}} ==
Status:        {{.Payload.Status}}
Active Trades: {{.Payload.ActiveTrades}}
Last Trade:    {{.Payload.LastTradeText}}
`))

	ProfileTemplate = template.Must(template.New("profile").Funcs(funcs).Parse(
		`== {{.Task}} ==
{{.Payload.Name}} <{{.Payload.Email}}>  last login: {{time .Payload.LastLogin}}
`))

	JSONTemplate = template.Must(template.New("json").Funcs(funcs).Parse(
		`== {{.Task}} ==
{{json .Payload}}
`))
)

// Sink renders payloads of type T through a template.
type Sink[T any] struct {
	out    *Writer
	task   string
	tmpl   *template.Template
	logger *slog.Logger
}

// New returns a sink that renders task's payloads with tmpl. logger may be
// nil.
func New[T any](out *Writer, task string, tmpl *template.Template, logger *slog.Logger) *Sink[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink[T]{out: out, task: task, tmpl: tmpl, logger: logger}
}

// Signals renders a [signals.SignalList].
func Signals(out *Writer, task string, logger *slog.Logger) *Sink[signals.SignalList] {
	return New[signals.SignalList](out, task, SignalsTemplate, logger)
}

// BotStatus renders a [signals.BotStatus].
func BotStatus(out *Writer, task string, logger *slog.Logger) *Sink[signals.BotStatus] {
	return New[signals.BotStatus](out, task, BotStatusTemplate, logger)
}

// Profile renders a [signals.Profile].
func Profile(out *Writer, task string, logger *slog.Logger) *Sink[signals.Profile] {
	return New[signals.Profile](out, task, ProfileTemplate, logger)
}

// JSON renders any payload as indented JSON.
func JSON[T any](out *Writer, task string, logger *slog.Logger) *Sink[T] {
	return New[T](out, task, JSONTemplate, logger)
}

// Target names the console panel the sink owns.
func (s *Sink[T]) Target() string { return "console:" + s.task }

// Render executes the template into a buffer and writes it in one call, so
// panels from different tasks never interleave. Output is NFC-normalised.
func (s *Sink[T]) Render(payload T) {
	var buf bytes.Buffer
	data := struct {
		Task    string
		Payload T
	}{Task: s.task, Payload: payload}

	if err := s.tmpl.Execute(&buf, data); err != nil {
		s.logger.Warn("console sink template failed", "task", s.task, "error", err)
		return
	}
	// backend strings may arrive decomposed; terminals want NFC
	if err := s.out.write(norm.NFC.Bytes(buf.Bytes())); err != nil {
		s.logger.Warn("console sink write failed", "task", s.task, "error", err)
	}
}
