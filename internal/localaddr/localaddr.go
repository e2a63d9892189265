// Package localaddr picks the local IPv4 address the runtime app should use
// to dial back into the file bridge.
package localaddr

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/charmbracelet/log"
)

// ErrNoCandidate is returned when no non-loopback IPv4 address is bound to
// any local interface.
var ErrNoCandidate = errors.New("no non-loopback IPv4 address found on local interfaces")

// DefaultPrefixOctets is how many leading octets of the target host are
// compared when checking for a shared subnet.
const DefaultPrefixOctets = 2

var virtualInterfacePatterns = []string{"vethernet", "virtual", "hyper-v", "wsl", "vmware", "virtualbox", "docker"}

// InterfaceAddr is one address bound to a named local interface.
type InterfaceAddr struct {
	Interface string
	IP        net.IP
}

// Candidate is a scored local IPv4 address.
type Candidate struct {
	Interface   string
	IP          string
	Private     bool
	PrefixMatch bool
	Virtual     bool
	Score       int
}

// Weights tunes candidate scoring. Only the relative ordering is meaningful.
type Weights struct {
	Private int
	Prefix  int
}

// DefaultWeights prefers private LAN addresses over prefix matches.
func DefaultWeights() Weights {
	return Weights{Private: 10, Prefix: 5}
}

// Resolver selects a callback address for a target host.
type Resolver struct {
	// Interfaces enumerates local addresses in a stable order. Defaults to
	// SystemInterfaces.
	Interfaces   func() ([]InterfaceAddr, error)
	Weights      Weights
	PrefixOctets int
	Logger       *log.Logger
}

// New returns a Resolver backed by the host's network interfaces.
func New(logger *log.Logger) *Resolver {
	return &Resolver{
		Interfaces:   SystemInterfaces,
		Weights:      DefaultWeights(),
		PrefixOctets: DefaultPrefixOctets,
		Logger:       logger,
	}
}

// Resolve returns the best-scoring candidate for targetHost. Ties go to the
// first candidate in enumeration order.
func (r *Resolver) Resolve(targetHost string) (Candidate, error) {
	candidates, err := r.Candidates(targetHost)
	if err != nil {
		return Candidate{}, err
	}
	best, err := Select(candidates)
	if err != nil {
		return Candidate{}, err
	}
	if r.Logger != nil {
		r.Logger.Debug("selected callback address",
			"ip", best.IP,
			"interface", best.Interface,
			"score", best.Score,
			"candidates", len(candidates),
		)
	}
	return best, nil
}

// Select picks the highest scoring candidate, ignoring virtual adapters
// unless nothing else is available. Ties go to the earliest candidate.
func Select(candidates []Candidate) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, ErrNoCandidate
	}
	pool := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.Virtual {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		pool = candidates
	}

	best := pool[0]
	for _, c := range pool[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	return best, nil
}

// Candidates lists every scored non-loopback IPv4 address.
func (r *Resolver) Candidates(targetHost string) ([]Candidate, error) {
	enumerate := r.Interfaces
	if enumerate == nil {
		enumerate = SystemInterfaces
	}
	addrs, err := enumerate()
	if err != nil {
		return nil, fmt.Errorf("enumerate network interfaces: %w", err)
	}

	prefix := hostPrefix(targetHost, r.prefixOctets())
	out := make([]Candidate, 0, len(addrs))
	for _, addr := range addrs {
		v4 := addr.IP.To4()
		if v4 == nil || v4.IsLoopback() {
			continue
		}
		ip := v4.String()
		c := Candidate{
			Interface:   addr.Interface,
			IP:          ip,
			Private:     IsPrivate(v4),
			PrefixMatch: prefix != "" && strings.HasPrefix(ip, prefix),
			Virtual:     isVirtualInterface(addr.Interface),
		}
		if c.Private {
			c.Score += r.Weights.Private
		}
		if c.PrefixMatch {
			c.Score += r.Weights.Prefix
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *Resolver) prefixOctets() int {
	if r.PrefixOctets < 1 || r.PrefixOctets > 3 {
		return DefaultPrefixOctets
	}
	return r.PrefixOctets
}

// IsPrivate reports whether ip is in 10.0.0.0/8, 172.16.0.0/12 or
// 192.168.0.0/16.
func IsPrivate(ip net.IP) bool {
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	switch {
	case v4[0] == 10:
		return true
	case v4[0] == 172 && v4[1] >= 16 && v4[1] <= 31:
		return true
	case v4[0] == 192 && v4[1] == 168:
		return true
	}
	return false
}

// CallbackURL formats the address the runtime app dials for file fetches.
func CallbackURL(ip string, port int) string {
	return fmt.Sprintf("http://%s:%d", ip, port)
}

// SystemInterfaces enumerates addresses bound to the host's interfaces.
func SystemInterfaces() ([]InterfaceAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []InterfaceAddr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil {
				continue
			}
			out = append(out, InterfaceAddr{Interface: iface.Name, IP: ip})
		}
	}
	return out, nil
}

// hostPrefix returns the first n dotted octets of host followed by a dot,
// or "" when host is not an IPv4 literal.
func hostPrefix(host string, n int) string {
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		return ""
	}
	parts := strings.Split(ip.To4().String(), ".")
	return strings.Join(parts[:n], ".") + "."
}

func isVirtualInterface(name string) bool {
	name = strings.ToLower(name)
	for _, pattern := range virtualInterfacePatterns {
		if strings.Contains(name, pattern) {
			return true
		}
	}
	return false
}
