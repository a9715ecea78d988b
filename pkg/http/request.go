package http

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/netip"
	"strings"
)

// IPConfig lists the proxies whose forwarding headers are believed
type IPConfig struct {
	TrustedProxies []string // CIDR ranges; invalid entries are skipped
}

// Client identifies the caller of a request
type Client struct {
	IP string
	// Fingerprint is a short hash of IP and User-Agent, recorded with failed logins
	Fingerprint string
}

// ResolveClient returns the caller of r. X-Forwarded-For and X-Real-IP are
// only honoured when the connection itself comes from a trusted proxy, so a
// direct client cannot spoof its address.
func ResolveClient(r *http.Request, config *IPConfig) Client {
	ip := peerAddr(r.RemoteAddr)
	if config.trusts(ip) {
		if forwarded, ok := forwardedAddr(r.Header); ok {
			ip = forwarded
		}
	}

	sum := sha256.Sum256([]byte(ip + ":" + r.UserAgent()))
	return Client{
		IP:          ip,
		Fingerprint: hex.EncodeToString(sum[:16]),
	}
}

// peerAddr strips the port from RemoteAddr
func peerAddr(remoteAddr string) string {
	if ap, err := netip.ParseAddrPort(remoteAddr); err == nil {
		return ap.Addr().Unmap().String()
	}
	if addr, err := netip.ParseAddr(remoteAddr); err == nil {
		return addr.Unmap().String()
	}
	if remoteAddr == "" {
		return "unknown"
	}
	return remoteAddr
}

// forwardedAddr returns the first valid address of X-Forwarded-For, else X-Real-IP
func forwardedAddr(h http.Header) (string, bool) {
	candidates := strings.Split(h.Get("X-Forwarded-For"), ",")
	candidates = append(candidates, h.Get("X-Real-IP"))

	for _, c := range candidates {
		if addr, err := netip.ParseAddr(strings.TrimSpace(c)); err == nil {
			return addr.Unmap().String(), true
		}
	}
	return "", false
}

func (c *IPConfig) trusts(ip string) bool {
	if c == nil || len(c.TrustedProxies) == 0 {
		return false
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}

	for _, cidr := range c.TrustedProxies {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			continue
		}
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
