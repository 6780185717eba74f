package probe

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// HostOf extracts the host part of a URL, host:port pair or bare host.
func HostOf(address string) string {
	address = strings.TrimSpace(address)
	if strings.Contains(address, "://") {
		if u, err := url.Parse(address); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	if h, _, err := net.SplitHostPort(address); err == nil {
		return h
	}
	return strings.Trim(address, "[]")
}

// IsURL reports whether address carries an http or https scheme.
func IsURL(address string) bool {
	a := strings.ToLower(strings.TrimSpace(address))
	return strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://")
}

// dialAddress returns host:port for address, using defaultPort when the
// address does not name one.
func dialAddress(address string, defaultPort int) string {
	address = strings.TrimSpace(address)
	if strings.Contains(address, "://") {
		if u, err := url.Parse(address); err == nil && u.Hostname() != "" {
			port := u.Port()
			if port == "" {
				switch u.Scheme {
				case "https":
					port = "443"
				case "http":
					port = "80"
				default:
					port = strconv.Itoa(defaultPort)
				}
			}
			return net.JoinHostPort(u.Hostname(), port)
		}
	}
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(strings.Trim(address, "[]"), strconv.Itoa(defaultPort))
}
