package endpoint

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// DefaultPort is the runtime app port assumed when the operator omits one.
const DefaultPort = 8080

// BridgePortOffset is subtracted from the target port to derive the local
// file bridge port. Both ends agree on it without a handshake.
const BridgePortOffset = 10

// ErrInvalidAddress is returned for input that is not an IPv4 literal or
// hostname with an optional http(s) scheme and optional port.
var ErrInvalidAddress = errors.New("invalid runtime app address")

var (
	ipv4Pattern     = regexp.MustCompile(`^(?:\d{1,3}\.){3}\d{1,3}$`)
	hostnamePattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?(?:\.[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?)*$`)
)

// Target is the network address of the runtime app.
type Target struct {
	Scheme string
	Host   string
	Port   int
}

// String returns the canonical scheme://host:port form.
func (t Target) String() string {
	return fmt.Sprintf("%s://%s:%d", t.Scheme, t.Host, t.Port)
}

// HostPort returns host:port suitable for net.Dial.
func (t Target) HostPort() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// IsIPv4 reports whether the host is a dotted-quad literal.
func (t Target) IsIPv4() bool {
	ip := net.ParseIP(t.Host)
	return ip != nil && ip.To4() != nil
}

// BridgePort returns the port the local file bridge listens on.
func (t Target) BridgePort() (int, error) {
	port := t.Port - BridgePortOffset
	if port < 1 {
		return 0, fmt.Errorf("target port %d leaves no room for a bridge port (need > %d)", t.Port, BridgePortOffset)
	}
	return port, nil
}

// Parse validates raw operator input and returns the normalized target.
//
// Accepted shapes: "10.0.0.5", "10.0.0.5:9090", "http://10.0.0.5",
// "https://host.local:9090". A missing scheme defaults to http and a missing
// port defaults to DefaultPort.
func Parse(raw string) (Target, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return Target{}, fmt.Errorf("%w: address is empty", ErrInvalidAddress)
	}

	scheme := "http"
	if prefix, rest, ok := strings.Cut(value, "://"); ok {
		scheme = strings.ToLower(prefix)
		if scheme != "http" && scheme != "https" {
			return Target{}, fmt.Errorf("%w: unsupported scheme in %q (expected http:// or https://)", ErrInvalidAddress, raw)
		}
		value = rest
	}
	value = strings.TrimSuffix(value, "/")

	host := value
	port := DefaultPort
	if i := strings.LastIndexByte(value, ':'); i >= 0 {
		host = value[:i]
		p, err := strconv.Atoi(value[i+1:])
		if err != nil || p < 1 || p > 65535 {
			return Target{}, fmt.Errorf("%w: invalid port in %q", ErrInvalidAddress, raw)
		}
		port = p
	}

	if !validHost(host) {
		return Target{}, fmt.Errorf("%w: %q (expected formats: http://IP:PORT, https://IP:PORT, http://IP, https://IP, or IP)", ErrInvalidAddress, raw)
	}

	return Target{Scheme: scheme, Host: strings.ToLower(host), Port: port}, nil
}

// Normalize returns the canonical form of raw. It is idempotent.
func Normalize(raw string) (string, error) {
	t, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return t.String(), nil
}

func validHost(host string) bool {
	if ipv4Pattern.MatchString(host) {
		ip := net.ParseIP(host)
		return ip != nil && ip.To4() != nil
	}
	// All-numeric labels that failed the IPv4 check are malformed literals.
	if strings.Trim(host, "0123456789.") == "" {
		return false
	}
	return len(host) <= 253 && hostnamePattern.MatchString(host)
}
