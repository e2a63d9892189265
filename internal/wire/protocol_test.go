package wire

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
	}{
		{"a, b", `[["a","b"]]`},
		{"x", `["x"]`},
		{"  x  ", `["x"]`},
		{"", `[""]`},
		{"https://example.com/book/1,2", `[["https://example.com/book/1","2"]]`},
	}
	for _, tt := range tests {
		b, err := json.Marshal(ParseInput(tt.raw))
		if err != nil {
			t.Fatalf("marshal input %q: %v", tt.raw, err)
		}
		if string(b) != tt.want {
			t.Errorf("ParseInput(%q) encoded %s, want %s", tt.raw, b, tt.want)
		}
	}
}

func TestInputUnmarshalAcceptsBothShapes(t *testing.T) {
	t.Parallel()

	var nested Input
	if err := json.Unmarshal([]byte(`[["a","b"]]`), &nested); err != nil {
		t.Fatalf("unmarshal nested: %v", err)
	}
	if len(nested.Nested) != 1 || len(nested.Nested[0]) != 2 {
		t.Fatalf("unexpected nested input: %+v", nested)
	}

	var flat Input
	if err := json.Unmarshal([]byte(`["x"]`), &flat); err != nil {
		t.Fatalf("unmarshal flat: %v", err)
	}
	if len(flat.Flat) != 1 || flat.Flat[0] != "x" {
		t.Fatalf("unexpected flat input: %+v", flat)
	}

	var bad Input
	if err := json.Unmarshal([]byte(`{"a":1}`), &bad); err == nil {
		t.Fatal("expected error for object input")
	}
}

func TestBuildTestRequest(t *testing.T) {
	t.Parallel()

	req := ExecutionRequest{
		IP:       "http://192.168.1.20:8080",
		Root:     "myext/src",
		Language: Language,
		Script:   "function execute() { return Response.success(42); }",
		Input:    ParseInput("a, b"),
	}
	raw, err := BuildTestRequest("192.168.1.50", req)
	if err != nil {
		t.Fatalf("BuildTestRequest returned error: %v", err)
	}

	text := string(raw)
	if !strings.HasPrefix(text, "GET /test HTTP/1.1\r\nHost: 192.168.1.50\r\nConnection: close\r\ndata: ") {
		t.Fatalf("unexpected request head: %q", text)
	}
	if !strings.HasSuffix(text, "\r\n\r\n") {
		t.Fatalf("request must end with a blank line: %q", text)
	}

	lines := strings.Split(strings.TrimSuffix(text, "\r\n\r\n"), "\r\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 request lines, got %d: %q", len(lines), lines)
	}
	encoded := strings.TrimPrefix(lines[3], "data: ")

	var decoded map[string]any
	if err := DecodePayload(encoded, &decoded); err != nil {
		t.Fatalf("DecodePayload returned error: %v", err)
	}
	if decoded["ip"] != "http://192.168.1.20:8080" {
		t.Fatalf("unexpected ip: %v", decoded["ip"])
	}
	if decoded["root"] != "myext/src" {
		t.Fatalf("unexpected root: %v", decoded["root"])
	}
	if decoded["language"] != "javascript" {
		t.Fatalf("unexpected language: %v", decoded["language"])
	}
	input, _ := json.Marshal(decoded["input"])
	if string(input) != `[["a","b"]]` {
		t.Fatalf("unexpected input: %s", input)
	}
}

func TestBuildTestRequestValidates(t *testing.T) {
	t.Parallel()

	_, err := BuildTestRequest("10.0.0.1", ExecutionRequest{Root: "x/src", Language: Language, Script: "s"})
	if err == nil {
		t.Fatal("expected error for missing callback address")
	}
	if !strings.Contains(err.Error(), "callback") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBuildTestRequestSendsEmptyScript(t *testing.T) {
	t.Parallel()

	raw, err := BuildTestRequest("10.0.0.1", ExecutionRequest{
		IP:       "http://10.0.0.2:8070",
		Root:     "x/src",
		Language: Language,
		Input:    ParseInput(""),
	})
	if err != nil {
		t.Fatalf("BuildTestRequest returned error for empty script: %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(string(raw), "\r\n\r\n"), "\r\n")
	var decoded map[string]any
	if err := DecodePayload(strings.TrimPrefix(lines[3], "data: "), &decoded); err != nil {
		t.Fatalf("DecodePayload returned error: %v", err)
	}
	if script, ok := decoded["script"]; !ok || script != "" {
		t.Fatalf("expected empty script field, got %v (present %v)", script, ok)
	}
}
