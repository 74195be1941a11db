package ratelimit

import (
	"net"
	"net/netip"
	"strings"
)

// ClientID picks the identity a request is rate limited under: the first
// public address found in the Client-IP header, then in the X-Forwarded-For
// chain, and otherwise the connection's peer address.
func ClientID(clientIP, forwardedFor, remoteAddr string) string {
	if ip, ok := publicIP(clientIP); ok {
		return ip
	}
	for _, hop := range strings.Split(forwardedFor, ",") {
		if ip, ok := publicIP(hop); ok {
			return ip
		}
	}

	host := strings.TrimSpace(remoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap().String()
	}
	if host == "" {
		return "unknown"
	}
	return host
}

func publicIP(raw string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	addr = addr.Unmap()
	if !addr.IsGlobalUnicast() || addr.IsPrivate() {
		return "", false
	}
	return addr.String(), true
}
