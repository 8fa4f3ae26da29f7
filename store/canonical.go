package store

import (
	"errors"
	"net"
	"net/url"
	"path/filepath"
	"strings"
)

// Canonicalize gives the URL that identifies a remote document.
//
// The host is lowercased and the fragment is removed.  "http" becomes
// "https".  An explicit port 443, or 80 on an http URL, is dropped.
// Schemes other than http and https are rejected.
func Canonicalize(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	defaultPort := "443"
	switch strings.ToLower(u.Scheme) {
	case "https":
	case "http":
		defaultPort = "80"
		u.Scheme = "https"
	case "":
		return nil, errors.New("no scheme")
	default:
		return nil, errors.New("scheme " + u.Scheme + " not supported")
	}
	if u.Host == "" {
		return nil, errors.New("no host")
	}
	u.Host = strings.ToLower(u.Host)
	if host, port, err := net.SplitHostPort(u.Host); err == nil && (port == defaultPort || port == "443") {
		u.Host = host
	}
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""
	return u, nil
}

// localPath reports whether the reference is to a local file and, if
// so, gives the file's path.  A reference without a scheme is a path.
func localPath(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "file://") {
		u, err := url.Parse(raw)
		if err != nil {
			return strings.TrimPrefix(raw, "file://"), true
		}
		return filepath.Clean(u.Path), true
	}
	if strings.Contains(raw, "://") {
		return "", false
	}
	return filepath.Clean(raw), true
}

// queryParams gives the first value for each query parameter.
func queryParams(u *url.URL) map[string]string {
	q := u.Query()
	acc := make(map[string]string, len(q))
	for k, vs := range q {
		if 0 < len(vs) {
			acc[k] = vs[0]
		}
	}
	return acc
}
