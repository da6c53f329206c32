package storage

import (
	"net/url"
	"path/filepath"
	"strings"
)

// NormalizeSourceURL gives a source identifier a stable identity: lowercase
// host, no default port, no trailing slash. Local paths become absolute.
func NormalizeSourceURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if u, err := url.Parse(s); err == nil && u.Host != "" {
		u.Host = strings.ToLower(u.Host)
		if u.Scheme == "http" && u.Port() == "80" {
			u.Host = strings.TrimSuffix(u.Host, ":80")
		}
		if u.Scheme == "https" && u.Port() == "443" {
			u.Host = strings.TrimSuffix(u.Host, ":443")
		}
		if strings.HasSuffix(u.Path, "/") && len(u.Path) > 1 {
			u.Path = strings.TrimRight(u.Path, "/")
		}
		u.Fragment = ""
		return u.String()
	}
	if strings.Contains(s, "://") {
		return s
	}
	if abs, err := filepath.Abs(s); err == nil {
		return abs
	}
	return s
}
