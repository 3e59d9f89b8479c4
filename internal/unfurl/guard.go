package unfurl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
)

// ErrUnsafeURL marks targets the fetcher refuses to contact. Callers
// match it with errors.Is to distinguish policy rejections from
// ordinary fetch failures.
var ErrUnsafeURL = errors.New("url target not allowed")

var blockedHosts = map[string]struct{}{
	"localhost":                {},
	"0.0.0.0":                  {},
	"127.0.0.1":                {},
	"::1":                      {},
	"metadata.google.internal": {},
	"169.254.169.254":          {},
}

var blockedSuffixes = []string{".localhost", ".local", ".internal"}

// reservedNets covers loopback, RFC1918, link-local, CGNAT, benchmark,
// documentation, multicast and class E for IPv4, plus the IPv6
// unspecified, loopback, ULA, link-local and documentation ranges.
var reservedNets = mustParseCIDRs(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.0.0.0/24",
	"192.0.2.0/24",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"::/128",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
	"2001:db8::/32",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("unfurl: bad reserved CIDR %q: %v", cidr, err))
		}
		nets = append(nets, block)
	}
	return nets
}

type resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Guard enforces the SSRF policy in front of every outbound fetch,
// including each redirect hop. Hostname verdicts are cached for the
// process; entries are never invalidated because the decision is about
// the name's resolution policy, not a single lookup.
type Guard struct {
	resolver resolver

	mu        sync.Mutex
	decisions map[string]bool
}

func NewGuard() *Guard {
	return &Guard{
		resolver:  net.DefaultResolver,
		decisions: make(map[string]bool),
	}
}

// CheckURL rejects URLs the fetcher must not contact: non-HTTP schemes,
// embedded credentials, blocked hostnames, literal reserved addresses,
// and hostnames where any resolved address is reserved.
func (g *Guard) CheckURL(ctx context.Context, u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrUnsafeURL, u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("%w: credentials in url", ErrUnsafeURL)
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrUnsafeURL)
	}
	if _, ok := blockedHosts[host]; ok {
		return fmt.Errorf("%w: blocked host %q", ErrUnsafeURL, host)
	}
	for _, suffix := range blockedSuffixes {
		if strings.HasSuffix(host, suffix) {
			return fmt.Errorf("%w: blocked host %q", ErrUnsafeURL, host)
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		if isReserved(ip) {
			return fmt.Errorf("%w: reserved address %s", ErrUnsafeURL, ip)
		}
		return nil
	}

	safe, err := g.hostnameSafe(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", host, err)
	}
	if !safe {
		return fmt.Errorf("%w: %q resolves to a reserved address", ErrUnsafeURL, host)
	}
	return nil
}

// hostnameSafe resolves all A/AAAA records and rejects the host if any
// address is reserved, which closes the one-public-one-private DNS
// rebinding trick. Resolution failures are not cached.
func (g *Guard) hostnameSafe(ctx context.Context, host string) (bool, error) {
	g.mu.Lock()
	if safe, ok := g.decisions[host]; ok {
		g.mu.Unlock()
		return safe, nil
	}
	g.mu.Unlock()

	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return false, err
	}

	safe := len(addrs) > 0
	for _, addr := range addrs {
		if isReserved(addr.IP) {
			safe = false
			break
		}
	}

	g.mu.Lock()
	g.decisions[host] = safe
	g.mu.Unlock()
	return safe, nil
}

// isReserved unmaps IPv4-in-IPv6 addresses before matching so
// ::ffff:10.0.0.1 is judged as 10.0.0.1.
func isReserved(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, block := range reservedNets {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}
