package endpoint

import (
	"errors"
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"192.168.1.7", "http://192.168.1.7:8080"},
		{"https://10.0.0.5", "https://10.0.0.5:8080"},
		{"http://10.0.0.5", "http://10.0.0.5:8080"},
		{"http://10.0.0.5:9090", "http://10.0.0.5:9090"},
		{"https://10.0.0.5:9090", "https://10.0.0.5:9090"},
		{"10.0.0.5:9090", "http://10.0.0.5:9090"},
		{"  http://10.0.0.5:9090/ ", "http://10.0.0.5:9090"},
		{"phone.local", "http://phone.local:8080"},
		{"https://Phone.Local:8443", "https://phone.local:8443"},
		{"HTTP://10.0.0.5", "http://10.0.0.5:8080"},
		{"Https://10.0.0.5:9090", "https://10.0.0.5:9090"},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.input)
		if err != nil {
			t.Errorf("Normalize(%q) error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeRejectsInvalid(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"   ",
		"not a url",
		"ftp://x",
		"FTP://10.0.0.5",
		"://10.0.0.5",
		"http://",
		"http://10.0.0.5:0",
		"http://10.0.0.5:65536",
		"http://10.0.0.5:abc",
		"300.1.1.1",
		"10.0.0",
		"http://10.0.0.5:9090/test",
		"-bad-.host",
	}
	for _, in := range inputs {
		_, err := Normalize(in)
		if err == nil {
			t.Errorf("Normalize(%q) should have returned error", in)
			continue
		}
		if !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("Normalize(%q) error = %v, want ErrInvalidAddress", in, err)
		}
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		scheme := rapid.SampledFrom([]string{"", "http://", "https://"}).Draw(t, "scheme")
		host := fmt.Sprintf("%d.%d.%d.%d",
			rapid.IntRange(0, 255).Draw(t, "a"),
			rapid.IntRange(0, 255).Draw(t, "b"),
			rapid.IntRange(0, 255).Draw(t, "c"),
			rapid.IntRange(0, 255).Draw(t, "d"),
		)
		raw := scheme + host
		if rapid.Bool().Draw(t, "withPort") {
			raw += fmt.Sprintf(":%d", rapid.IntRange(1, 65535).Draw(t, "port"))
		}

		once, err := Normalize(raw)
		if err != nil {
			t.Fatalf("Normalize(%q) error: %v", raw, err)
		}
		twice, err := Normalize(once)
		if err != nil {
			t.Fatalf("Normalize(%q) error: %v", once, err)
		}
		if once != twice {
			t.Fatalf("not idempotent: %q -> %q -> %q", raw, once, twice)
		}
	})
}

func TestParseFields(t *testing.T) {
	t.Parallel()

	target, err := Parse("https://10.1.2.3:9000")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if target.Scheme != "https" || target.Host != "10.1.2.3" || target.Port != 9000 {
		t.Fatalf("unexpected target: %+v", target)
	}
	if got, want := target.HostPort(), "10.1.2.3:9000"; got != want {
		t.Fatalf("HostPort() = %q, want %q", got, want)
	}
	if !target.IsIPv4() {
		t.Fatal("expected IPv4 host")
	}
}

func TestBridgePort(t *testing.T) {
	t.Parallel()

	port, err := Target{Scheme: "http", Host: "10.0.0.5", Port: 8090}.BridgePort()
	if err != nil {
		t.Fatalf("BridgePort returned error: %v", err)
	}
	if port != 8080 {
		t.Fatalf("BridgePort() = %d, want 8080", port)
	}

	if _, err := (Target{Scheme: "http", Host: "10.0.0.5", Port: 10}).BridgePort(); err == nil {
		t.Fatal("expected error when target port leaves no bridge port")
	}
}
