package utils

import (
	"net/url"
	"strings"
)

const redacted = "xxxxx"

// urlSchemes are the connection string formats parsed as URLs.
var urlSchemes = []string{"redis://", "rediss://", "unix://", "mongodb://", "mongodb+srv://"}

// SanitizeConnectionString removes credentials from connection strings for safe logging
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	for _, scheme := range urlSchemes {
		if strings.HasPrefix(connStr, scheme) {
			return sanitizeURL(connStr, scheme)
		}
	}

	// Unknown formats: redact anything between ':' and '@' in the userinfo
	if at := strings.LastIndex(connStr, "@"); at != -1 {
		start := 0
		if i := strings.Index(connStr[:at], "://"); i != -1 {
			start = i + len("://")
		}
		if colonIdx := strings.Index(connStr[start:at], ":"); colonIdx != -1 {
			cut := start + colonIdx + 1
			return connStr[:cut] + redacted + connStr[at:]
		}
	}

	return connStr
}

func sanitizeURL(connStr, scheme string) string {
	parsedURL, err := url.Parse(connStr)
	if err != nil {
		return scheme + redacted
	}

	// go-redis also accepts the password as a query parameter
	q := parsedURL.Query()
	if q.Has("password") {
		q.Set("password", redacted)
		parsedURL.RawQuery = q.Encode()
	}

	return parsedURL.Redacted()
}

// SanitizeAddrs joins addresses for logging, dropping any userinfo.
func SanitizeAddrs(addrs []string) string {
	clean := make([]string, len(addrs))
	for i, addr := range addrs {
		if at := strings.LastIndex(addr, "@"); at != -1 {
			addr = addr[at+1:]
		}
		clean[i] = addr
	}
	return strings.Join(clean, ",")
}
