package signals

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ParseSignalList decodes a /api/signals body. A body without a "signals"
// array is rejected; an empty array is a valid, empty list.
func ParseSignalList(body []byte) (SignalList, error) {
	var wire struct {
		Status  string    `json:"status"`
		Signals *[]Signal `json:"signals"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return SignalList{}, err
	}
	if wire.Signals == nil {
		return SignalList{}, errors.New("response has no signals array")
	}
	return SignalList{Status: wire.Status, Signals: *wire.Signals}, nil
}

// ParseBotStatus decodes a /api/bot/status body. The "status" field is
// required.
func ParseBotStatus(body []byte) (BotStatus, error) {
	var status BotStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return BotStatus{}, err
	}
	if status.Status == "" {
		return BotStatus{}, errors.New("response has no status field")
	}
	return status, nil
}

// ParseProfile decodes a /auth/profile body and returns the user.
func ParseProfile(body []byte) (Profile, error) {
	var wire struct {
		Status  string   `json:"status"`
		Message string   `json:"message"`
		User    *Profile `json:"user"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return Profile{}, err
	}
	if wire.Status == "error" {
		return Profile{}, errors.New(wire.Message)
	}
	if wire.User == nil {
		return Profile{}, fmt.Errorf("response has no user (status %q)", wire.Status)
	}
	return *wire.User, nil
}
