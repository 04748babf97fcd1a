package console

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"text/template"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miicoin/signalsync/signals"
)

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func ts(t time.Time) signals.Timestamp { return signals.Timestamp{Time: t} }

func TestSignals_Golden(t *testing.T) {
	var buf bytes.Buffer
	sink := Signals(NewWriter(&buf), "signals", nil)

	sink.Render(signals.SignalList{
		Status: "success",
		Signals: []signals.Signal{
			{Symbol: "BTC/USDT", Type: "BUY", Price: 43250.5, Timestamp: ts(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))},
			{Symbol: "ETH/USDT", Type: "sell", Price: 2280, Timestamp: ts(time.UnixMilli(1708430400000))},
		},
	})

	golden(t).Assert(t, "signals", buf.Bytes())
}

func TestSignals_EmptyGolden(t *testing.T) {
	var buf bytes.Buffer
	Signals(NewWriter(&buf), "signals", nil).Render(signals.SignalList{Status: "success"})

	golden(t).Assert(t, "signals_empty", buf.Bytes())
}

func TestBotStatus_Golden(t *testing.T) {
	tests := []struct {
		name   string
		status signals.BotStatus
	}{
		{"bot_status", signals.BotStatus{Status: "running", ActiveTrades: 3, LastTrade: json.RawMessage(`"ETH/USDT SELL @ 2280"`)}},
		{"bot_status_idle", signals.BotStatus{Status: "running", LastTrade: json.RawMessage(`null`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			BotStatus(NewWriter(&buf), "bot_status", nil).Render(tt.status)
			golden(t).Assert(t, tt.name, buf.Bytes())
		})
	}
}

func TestProfile_Golden(t *testing.T) {
	var buf bytes.Buffer
	Profile(NewWriter(&buf), "profile", nil).Render(signals.Profile{ID: 7, Name: "Trader", Email: "trader@miicoin.io"})

	golden(t).Assert(t, "profile", buf.Bytes())
}

func TestJSON_Golden(t *testing.T) {
	var buf bytes.Buffer
	JSON[map[string]any](NewWriter(&buf), "raw", nil).Render(map[string]any{"status": "running", "active_trades": 0})

	golden(t).Assert(t, "json", buf.Bytes())
}

func TestSink_Target(t *testing.T) {
	assert.Equal(t, "console:signals", Signals(NewWriter(&bytes.Buffer{}), "signals", nil).Target())
}

func TestSink_TemplateErrorLogged(t *testing.T) {
	var out, logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	tmpl := template.Must(template.New("bad").Parse("{{.Payload.Missing}}"))
	New[signals.BotStatus](NewWriter(&out), "bot_status", tmpl, logger).Render(signals.BotStatus{})

	assert.Empty(t, out.String())
	assert.Contains(t, logs.String(), "console sink template failed")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestSink_WriteErrorLogged(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	BotStatus(NewWriter(failingWriter{}), "bot_status", logger).Render(signals.BotStatus{Status: "running"})

	assert.Contains(t, logs.String(), "disk full")
}

func TestWriter_ConcurrentRendersDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	out := NewWriter(&buf)
	sink := BotStatus(out, "bot_status", nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink.Render(signals.BotStatus{Status: "running"})
		}()
	}
	wg.Wait()

	blocks := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n== ")
	require.Len(t, blocks, 20)
	for _, b := range blocks {
		assert.Equal(t, 4, len(strings.Split(b, "\n")), "block %q", b)
	}
}

func TestSink_NormalisesToNFC(t *testing.T) {
	var buf bytes.Buffer
	// "Hélène" with combining acute accents
	name := "He\u0301le\u0300ne"
	Profile(NewWriter(&buf), "profile", nil).Render(signals.Profile{Name: name, Email: "h@miicoin.io"})

	assert.Contains(t, buf.String(), "H\u00e9l\u00e8ne <h@miicoin.io>")
	assert.NotContains(t, buf.String(), "\u0301")
}
