package domain

import (
	"errors"
	"net"
	"strings"
)

// NormalizeHostname reduces a tenant-supplied domain to its comparison
// key: scheme, "www." prefix, path and trailing slash are stripped and
// the result is lowercased. Ports are dropped except on loopback hosts,
// where they distinguish local development claims. IPv6 literals are
// accepted bare or in bracketed host:port form.
func NormalizeHostname(raw string) (string, error) {
	host := strings.ToLower(strings.TrimSpace(raw))
	if host == "" {
		return "", errors.New("hostname is required")
	}
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	host = strings.TrimPrefix(host, "www.")
	switch {
	case strings.HasPrefix(host, "["):
		end := strings.Index(host, "]")
		if end < 0 {
			return "", errors.New("unbalanced bracket in hostname")
		}
		addr := host[1:end]
		if !strings.Contains(addr, ":") || net.ParseIP(addr) == nil {
			return "", errors.New("invalid IPv6 literal")
		}
		port := host[end+1:]
		if port != "" && !strings.HasPrefix(port, ":") {
			return "", errors.New("invalid hostname")
		}
		if isLoopback(addr) && port != "" {
			host = "[" + addr + "]" + port
		} else {
			host = addr
		}
	case strings.Count(host, ":") > 1:
		// An unbracketed multi-colon host can only be an IPv6 literal.
		if net.ParseIP(host) == nil {
			return "", errors.New("invalid hostname")
		}
	default:
		if i := strings.LastIndex(host, ":"); i >= 0 {
			name := host[:i]
			if !isLoopback(name) {
				host = name
			}
		}
	}
	if host == "" {
		return "", errors.New("hostname is required")
	}
	if strings.ContainsAny(host, " \t\r\n") {
		return "", errors.New("whitespace is not allowed")
	}
	if len(host) > 255 {
		return "", errors.New("hostname too long")
	}
	return host, nil
}

func isLoopback(name string) bool {
	return name == "localhost" || name == "127.0.0.1" || name == "::1"
}
