package signals

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Signal is one trading signal.
type Signal struct {
	Symbol    string    `json:"symbol"`
	Type      string    `json:"type"`
	Price     float64   `json:"price"`
	Timestamp Timestamp `json:"timestamp"`
}

// IsBuy reports whether the signal type is BUY, case-insensitively.
func (s Signal) IsBuy() bool { return strings.EqualFold(s.Type, "buy") }

// SignalList is the body of GET /api/signals.
type SignalList struct {
	Status  string   `json:"status"`
	Signals []Signal `json:"signals"`
}

// BotStatus is the body of GET /api/bot/status.
type BotStatus struct {
	Status       string `json:"status"`
	ActiveTrades int    `json:"active_trades"`

	// LastTrade is kept raw: the backend sends null, a string or an object.
	LastTrade json.RawMessage `json:"last_trade"`
}

// LastTradeText returns the last trade for display, or "None" when the
// backend reported nothing.
func (b BotStatus) LastTradeText() string {
	raw := bytes.TrimSpace(b.LastTrade)
	switch {
	case len(raw) == 0, bytes.Equal(raw, []byte("null")), bytes.Equal(raw, []byte("false")), bytes.Equal(raw, []byte(`""`)):
		return "None"
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// Profile is the user record returned by GET /auth/profile.
type Profile struct {
	ID         int       `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	ProfilePic *string   `json:"profile_pic,omitempty"`
	CreatedAt  Timestamp `json:"created_at"`
	LastLogin  Timestamp `json:"last_login"`
}
