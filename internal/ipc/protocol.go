// Package ipc is the daemon control plane: newline-delimited JSON requests
// over a per-user unix socket.
package ipc

import (
	"errors"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Control commands understood by the voice daemon.
const (
	CommandStatus  = "status"
	CommandStart   = "start"
	CommandStop    = "stop"
	CommandToggle  = "toggle"
	CommandEnable  = "enable"
	CommandDisable = "disable"
	CommandSend    = "send"
)

// maxRequestBytes bounds one request line.
const maxRequestBytes = 64 << 10

var errMissingCommand = errors.New("missing command")

// Request is one control command. Text and Confidence are only read by send.
type Request struct {
	Command    string  `json:"command"`
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Command) == "" {
		return errMissingCommand
	}
	if r.Command == CommandSend && strings.TrimSpace(r.Text) == "" {
		return errors.New("send requires text")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return errors.New("confidence must be within [0, 1]")
	}
	return nil
}

// Response answers one Request. State is the session phase; Data carries a
// command-specific JSON payload such as the session state or an outcome.
type Response struct {
	OK      bool                `json:"ok"`
	State   string              `json:"state,omitempty"`
	Message string              `json:"message,omitempty"`
	Error   string              `json:"error,omitempty"`
	Data    jsoniter.RawMessage `json:"data,omitempty"`
}

func failure(format string, err error) Response {
	return Response{OK: false, Error: format + ": " + err.Error()}
}
