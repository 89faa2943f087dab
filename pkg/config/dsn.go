package config

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ParsedDatabaseURL holds the parsed components of a database connection URL.
type ParsedDatabaseURL struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	Options  map[string]string
}

// ParseDatabaseURL parses postgres:// and postgresql:// URLs.
func ParseDatabaseURL(rawURL string) (*ParsedDatabaseURL, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("database URL is empty")
	}

	u, err := url.Parse(strings.Replace(rawURL, "postgresql://", "postgres://", 1))
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if u.Scheme != "postgres" {
		return nil, fmt.Errorf("invalid database URL scheme: %s (expected postgres or postgresql)", u.Scheme)
	}

	p := &ParsedDatabaseURL{
		Host:     u.Hostname(),
		Port:     5432,
		Database: strings.TrimPrefix(u.Path, "/"),
		SSLMode:  "disable",
		Options:  make(map[string]string),
	}

	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid port in database URL: %w", err)
		}
		p.Port = port
	}

	if u.User != nil {
		p.User = u.User.Username()
		p.Password, _ = u.User.Password()
	}

	for key, values := range u.Query() {
		if len(values) == 0 {
			continue
		}
		if key == "sslmode" {
			p.SSLMode = values[0]
			continue
		}
		p.Options[key] = values[0]
	}

	return p, nil
}

// ToDSN converts the parsed URL to a libpq-style DSN string. Extra options are
// appended in key order so the output is stable.
func (p *ParsedDatabaseURL) ToDSN() string {
	var b strings.Builder
	fmt.Fprintf(&b, "host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)

	keys := make([]string, 0, len(p.Options))
	for k := range p.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, p.Options[k])
	}
	return b.String()
}
