// ABOUTME: Wire message types for agent telemetry and the command stream.
// ABOUTME: CBOR integer keys play the role of field numbers.

package wire

import (
	"errors"
	"fmt"
)

// ErrEmptyResponse indicates a response body with no bytes at all.
var ErrEmptyResponse = errors.New("empty response")

// Message is implemented by every request message an agent can send.
type Message interface {
	// MessageName returns a short, stable name used in logs and metrics.
	MessageName() string
}

// AgentInfo describes an agent process and the environment it runs in.
type AgentInfo struct {
	Hostname     string            `cbor:"1,keyasint,omitempty"`
	IP           string            `cbor:"2,keyasint,omitempty"`
	Ports        string            `cbor:"3,keyasint,omitempty"`
	ServiceType  int32             `cbor:"4,keyasint,omitempty"`
	PID          int32             `cbor:"5,keyasint,omitempty"`
	AgentVersion string            `cbor:"6,keyasint,omitempty"`
	VMVersion    string            `cbor:"7,keyasint,omitempty"`
	StartTime    int64             `cbor:"8,keyasint,omitempty"`
	Container    bool              `cbor:"9,keyasint,omitempty"`
	Properties   map[string]string `cbor:"10,keyasint,omitempty"`
}

// MessageName implements Message.
func (*AgentInfo) MessageName() string { return "AgentInfo" }

// APIMetaData maps an API id to the method descriptor it stands for.
type APIMetaData struct {
	APIID   int32  `cbor:"1,keyasint"`
	APIInfo string `cbor:"2,keyasint,omitempty"`
	Line    int32  `cbor:"3,keyasint,omitempty"`
	Type    int32  `cbor:"4,keyasint,omitempty"`
}

// MessageName implements Message.
func (*APIMetaData) MessageName() string { return "ApiMetaData" }

// SQLMetaData maps a SQL id to the normalized SQL text.
type SQLMetaData struct {
	SQLID int32  `cbor:"1,keyasint"`
	SQL   string `cbor:"2,keyasint,omitempty"`
}

// MessageName implements Message.
func (*SQLMetaData) MessageName() string { return "SqlMetaData" }

// StringMetaData maps a string id to its value.
type StringMetaData struct {
	StringID    int32  `cbor:"1,keyasint"`
	StringValue string `cbor:"2,keyasint,omitempty"`
}

// MessageName implements Message.
func (*StringMetaData) MessageName() string { return "StringMetaData" }

// Result is the collector's answer to every request family.
type Result struct {
	Success bool   `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint,omitempty"`
}

// RawResult holds an undecoded Result exactly as it came off the wire.
type RawResult struct {
	raw []byte
}

// NewRawResult wraps already-encoded response bytes.
func NewRawResult(b []byte) *RawResult {
	return &RawResult{raw: b}
}

// Bytes returns the raw response body.
func (r *RawResult) Bytes() []byte {
	if r == nil {
		return nil
	}
	return r.raw
}

// Decode parses the raw body into a Result. A nil or empty body yields
// ErrEmptyResponse.
func (r *RawResult) Decode() (*Result, error) {
	if r == nil || len(r.raw) == 0 {
		return nil, ErrEmptyResponse
	}
	var res Result
	if err := Unmarshal(r.raw, &res); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	return &res, nil
}

// EncodeResult encodes res the way a collector sends it.
func EncodeResult(res *Result) ([]byte, error) {
	return Marshal(res)
}

// Command names understood by agents.
const (
	CommandEcho = "echo"
)

// Echo is a command payload bounced back unchanged by the agent.
type Echo struct {
	Message string `cbor:"1,keyasint"`
}

// Command is sent by the collector to a connected agent.
type Command struct {
	RequestID uint32 `cbor:"1,keyasint"`
	Echo      *Echo  `cbor:"2,keyasint,omitempty"`
}

// Handshake is the first frame an agent sends on the command stream.
type Handshake struct {
	SupportedCommands []string `cbor:"1,keyasint"`
}

// CommandReply is sent by the agent on the command stream. Exactly one of
// Handshake or a RequestID-bearing reply is set.
type CommandReply struct {
	RequestID uint32     `cbor:"1,keyasint,omitempty"`
	Handshake *Handshake `cbor:"2,keyasint,omitempty"`
	Echo      *Echo      `cbor:"3,keyasint,omitempty"`
	Error     string     `cbor:"4,keyasint,omitempty"`
}
