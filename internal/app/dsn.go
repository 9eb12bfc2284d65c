package app

import (
	"net/url"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// dsnTarget is the credential-free description of a database DSN.
type dsnTarget struct {
	Type        string
	Host        string
	Port        int
	User        string
	Name        string
	SSLMode     string
	Path        string
	PasswordSet bool
}

func (d dsnTarget) fields() log.Fields {
	if d.Type == "sqlite" {
		return log.Fields{"db_type": d.Type, "db_path": d.Path}
	}
	return log.Fields{
		"db_type": d.Type,
		"db_host": d.Host,
		"db_port": d.Port,
		"db_name": d.Name,
	}
}

// describeDSN parses dsn for logging without exposing its password.
func describeDSN(dsn string) dsnTarget {
	trimmed := strings.TrimSpace(dsn)
	lowered := strings.ToLower(trimmed)
	if strings.HasPrefix(lowered, "file:") {
		pathPart := trimmed[len("file:"):]
		pathPart, _, _ = strings.Cut(pathPart, "?")
		return dsnTarget{Type: "sqlite", Path: strings.TrimSpace(pathPart)}
	}

	u, errParse := url.Parse(trimmed)
	if errParse != nil {
		return dsnTarget{Type: "unknown"}
	}
	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "postgres", "postgresql":
		port := 5432
		if rawPort := strings.TrimSpace(u.Port()); rawPort != "" {
			if parsedPort, errPort := strconv.Atoi(rawPort); errPort == nil {
				port = parsedPort
			}
		}
		target := dsnTarget{
			Type:    "postgres",
			Host:    strings.TrimSpace(u.Hostname()),
			Port:    port,
			Name:    strings.TrimSpace(strings.TrimPrefix(u.Path, "/")),
			SSLMode: strings.TrimSpace(u.Query().Get("sslmode")),
		}
		if target.SSLMode == "" {
			target.SSLMode = "disable"
		}
		if u.User != nil {
			target.User = strings.TrimSpace(u.User.Username())
			_, target.PasswordSet = u.User.Password()
		}
		return target
	default:
		return dsnTarget{Type: "unknown"}
	}
}
