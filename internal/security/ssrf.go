package security

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
)

var internalRanges = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"100.64.0.0/10", // carrier-grade NAT
	"169.254.0.0/16",
	"0.0.0.0/8",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

var blockedHosts = []string{
	"localhost",
	"localhost.localdomain",
	"ip6-localhost",
	"ip6-loopback",
	"metadata.google.internal",
	"kubernetes.default",
	"kubernetes.default.svc",
}

var internalNets []*net.IPNet

func init() {
	for _, cidr := range internalRanges {
		if _, network, err := net.ParseCIDR(cidr); err == nil {
			internalNets = append(internalNets, network)
		}
	}
}

// IsPrivateIP reports whether ip is loopback, private, link-local or unset
func IsPrivateIP(ip net.IP) bool {
	if ip == nil || ip.IsUnspecified() {
		return true
	}
	for _, network := range internalNets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// IsBlockedHostname reports whether hostname, or a parent domain of it, is on the blocklist
func IsBlockedHostname(hostname string) bool {
	hostname = strings.ToLower(strings.TrimSuffix(hostname, "."))
	for _, blocked := range blockedHosts {
		if hostname == blocked || strings.HasSuffix(hostname, "."+blocked) {
			return true
		}
	}
	return false
}

// ValidatePublicURL parses rawURL and rejects anything that is not an http(s)
// URL pointing at a public host. Hostnames are resolved; any internal address fails.
func ValidatePublicURL(ctx context.Context, rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("only http and https URLs are allowed")
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("URL must have a hostname")
	}
	if IsBlockedHostname(host) {
		return nil, fmt.Errorf("access to internal hostname '%s' is not allowed", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if IsPrivateIP(ip) {
			return nil, fmt.Errorf("access to private IP address '%s' is not allowed", host)
		}
		return u, nil
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		// unreachable hosts fail later at dial time
		return u, nil
	}
	for _, addr := range addrs {
		if IsPrivateIP(addr.IP) {
			return nil, fmt.Errorf("hostname '%s' resolves to private IP address '%s'", host, addr.IP)
		}
	}
	return u, nil
}

// DialControl is a net.Dialer Control hook that refuses connections to
// internal addresses. It catches redirects and DNS answers that change
// between validation and dial.
func DialControl(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	if IsPrivateIP(net.ParseIP(host)) {
		return fmt.Errorf("connection to internal address %s refused", host)
	}
	return nil
}
