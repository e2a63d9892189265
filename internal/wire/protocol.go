// Package wire implements the text framing spoken with the runtime app: a
// hand-built HTTP-shaped request carrying base64 JSON in a header, and a
// loosely parsed HTTP-shaped response.
package wire

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ProtocolVersion identifies this framing. The runtime app does not see it.
const ProtocolVersion = 1

// Language is the script dialect understood by the runtime app.
const Language = "javascript"

const (
	TestPath    = "/test"
	InstallPath = "/install"
	DataHeader  = "data"
)

// Input is the positional argument list. Comma-separated raw input becomes a
// single nested sequence.
type Input struct {
	Flat   []string
	Nested [][]string
}

// MarshalJSON encodes either ["a"] or [["a","b"]].
func (in Input) MarshalJSON() ([]byte, error) {
	if in.Nested != nil {
		return json.Marshal(in.Nested)
	}
	if in.Flat == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(in.Flat)
}

// UnmarshalJSON accepts both shapes.
func (in *Input) UnmarshalJSON(b []byte) error {
	var nested [][]string
	if err := json.Unmarshal(b, &nested); err == nil && len(nested) > 0 {
		*in = Input{Nested: nested}
		return nil
	}
	var flat []string
	if err := json.Unmarshal(b, &flat); err != nil {
		return fmt.Errorf("input must be an array of strings or an array of string arrays: %w", err)
	}
	*in = Input{Flat: flat}
	return nil
}

// ParseInput shapes raw operator input. "a, b" becomes [["a","b"]], "x"
// becomes ["x"] and empty input becomes [""].
func ParseInput(raw string) Input {
	trimmed := strings.TrimSpace(raw)
	if !strings.Contains(trimmed, ",") {
		return Input{Flat: []string{trimmed}}
	}
	parts := strings.Split(trimmed, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return Input{Nested: [][]string{parts}}
}

// ExecutionRequest is the instruction payload for one script run.
type ExecutionRequest struct {
	IP       string `json:"ip"`
	Root     string `json:"root"`
	Language string `json:"language"`
	Script   string `json:"script"`
	Input    Input  `json:"input"`
}

// Validate checks the fields the runtime app requires. An empty script is
// sent as is; the runtime app reports what it makes of it.
func (r ExecutionRequest) Validate() error {
	switch {
	case r.IP == "":
		return errors.New("missing callback address")
	case r.Root == "":
		return errors.New("missing root")
	case r.Language == "":
		return errors.New("missing language")
	}
	return nil
}

// EncodePayload returns base64(JSON(v)), the value of the data header.
func EncodePayload(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DecodePayload reverses EncodePayload.
func DecodePayload(encoded string, v any) error {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return fmt.Errorf("decode %s header: %w", DataHeader, err)
	}
	return json.Unmarshal(b, v)
}

// BuildTestRequest renders the raw request text written to the socket.
func BuildTestRequest(host string, req ExecutionRequest) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid execution request: %w", err)
	}
	payload, err := EncodePayload(req)
	if err != nil {
		return nil, fmt.Errorf("encode execution request: %w", err)
	}

	var b strings.Builder
	b.WriteString("GET " + TestPath + " HTTP/1.1\r\n")
	b.WriteString("Host: " + host + "\r\n")
	b.WriteString("Connection: close\r\n")
	b.WriteString(DataHeader + ": " + payload + "\r\n")
	b.WriteString("\r\n")
	return []byte(b.String()), nil
}
