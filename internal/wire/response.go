package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Response is the decoded runtime app reply.
type Response struct {
	StatusLine string            `json:"-"`
	HTTPStatus int               `json:"-"`
	Headers    map[string]string `json:"-"`

	Status    int    `json:"status"`
	Result    string `json:"result"`
	Log       string `json:"log"`
	Exception string `json:"exception,omitempty"`

	Raw string `json:"-"`
}

// Succeeded reports whether the script ran without error.
func (r *Response) Succeeded() bool {
	return r.Status == 0
}

// PrettyResult re-parses Result as JSON and indents it. Non-JSON results are
// returned unchanged.
func (r *Response) PrettyResult() string {
	if strings.TrimSpace(r.Result) == "" {
		return ""
	}
	var v any
	if err := json.Unmarshal([]byte(r.Result), &v); err != nil {
		return r.Result
	}
	if s, ok := v.(string); ok {
		return s
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return r.Result
	}
	return string(out)
}

// DecodeError reports a reply that could not be decoded. Raw holds the full
// response text so the operator can still diagnose the remote side.
type DecodeError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode runtime response: %s: %v", e.Reason, e.Err)
	}
	return "decode runtime response: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DecodeResponse splits raw into head and body at the first blank line and
// parses the body as the runtime app's JSON result.
func DecodeResponse(raw []byte) (*Response, error) {
	text := string(raw)
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &DecodeError{Reason: "empty response", Raw: text}
	}

	head, body, ok := strings.Cut(text, "\r\n\r\n")
	if !ok {
		head, body, ok = strings.Cut(text, "\n\n")
	}
	if !ok {
		return nil, &DecodeError{Reason: "missing header terminator", Raw: text}
	}

	resp := &Response{Raw: text, Headers: map[string]string{}}
	lines := strings.Split(strings.ReplaceAll(head, "\r\n", "\n"), "\n")
	resp.StatusLine = strings.TrimSpace(lines[0])
	resp.HTTPStatus = parseStatusCode(resp.StatusLine)
	for _, line := range lines[1:] {
		name, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		resp.Headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}

	body = strings.TrimSpace(strings.ReplaceAll(body, "\x00", ""))
	if body == "" {
		return nil, &DecodeError{Reason: "empty body", Raw: text}
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, &DecodeError{Reason: "body is not a JSON object", Raw: text, Err: err}
	}
	statusRaw, ok := fields["status"]
	if !ok {
		return nil, &DecodeError{Reason: "body has no status field", Raw: text}
	}
	if err := json.Unmarshal(statusRaw, &resp.Status); err != nil {
		return nil, &DecodeError{Reason: "status is not an integer", Raw: text, Err: err}
	}
	resp.Result = stringField(fields["result"])
	resp.Log = stringField(fields["log"])
	resp.Exception = stringField(fields["exception"])
	return resp, nil
}

// stringField tolerates non-string values by keeping their JSON text.
func stringField(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func parseStatusCode(statusLine string) int {
	parts := strings.Fields(statusLine)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return 0
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0
	}
	return code
}
