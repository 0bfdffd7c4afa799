package security

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	ErrPrivateIP     = errors.New("endpoint points at a private address")
	ErrInvalidScheme = errors.New("only HTTPS endpoints are allowed")
	ErrMissingHost   = errors.New("endpoint has no host")
)

// ValidateEndpoint checks a generation API base URL before the API key is
// sent to it. Remote endpoints must use HTTPS and a public address. Loopback
// endpoints are allowed over plain HTTP for local proxies.
func ValidateEndpoint(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	host := parsed.Hostname()
	if host == "" {
		return ErrMissingHost
	}

	if isLoopbackHost(host) {
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return ErrInvalidScheme
		}
		return nil
	}

	if parsed.Scheme != "https" {
		return ErrInvalidScheme
	}

	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return ErrPrivateIP
	}
	return nil
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}

	if ip4 := ip.To4(); ip4 != nil {
		switch {
		case ip4[0] == 0: // 0.0.0.0/8
			return true
		case ip4[0] == 100 && ip4[1] >= 64 && ip4[1] <= 127: // 100.64.0.0/10 (CGNAT)
			return true
		case ip4[0] == 192 && ip4[1] == 0 && ip4[2] == 0: // 192.0.0.0/24
			return true
		case ip4[0] >= 224: // multicast and reserved
			return true
		}
	}

	return false
}
