package pg

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DSNConfig is the parsed form of a PostgreSQL connection URL.
type DSNConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	ApplicationName string
	ConnectTimeout  int // seconds

	ExtraParams map[string]string
}

// IsDSN reports whether dsn is a PostgreSQL connection URL.
func IsDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// ParseDSN parses a postgres:// or postgresql:// URL.
func ParseDSN(dsn string) (DSNConfig, error) {
	config := DSNConfig{
		ExtraParams: make(map[string]string),
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return config, fmt.Errorf("invalid DSN format: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return config, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	config.Host = u.Hostname()
	config.Port = 5432
	if u.Port() != "" {
		config.Port, err = strconv.Atoi(u.Port())
		if err != nil {
			return config, fmt.Errorf("invalid port: %s", u.Port())
		}
	}

	if u.User != nil {
		config.User = u.User.Username()
		config.Password, _ = u.User.Password()
	}

	if u.Path != "" && u.Path != "/" {
		config.Database = strings.TrimPrefix(u.Path, "/")
	}

	query := u.Query()
	config.SSLMode = query.Get("sslmode")
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}
	config.ApplicationName = query.Get("application_name")
	if s := query.Get("connect_timeout"); s != "" {
		config.ConnectTimeout, _ = strconv.Atoi(s)
	}

	known := map[string]bool{
		"sslmode":          true,
		"application_name": true,
		"connect_timeout":  true,
	}
	for key, values := range query {
		if !known[key] && len(values) > 0 {
			config.ExtraParams[key] = values[0]
		}
	}

	return config, nil
}

// Redact returns dsn with the password replaced, for logging. Strings that
// do not parse as URLs are returned as "<invalid dsn>".
func Redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "<invalid dsn>"
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
	}
	return u.String()
}
