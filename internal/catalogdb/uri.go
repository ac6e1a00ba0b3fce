package catalogdb

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/idxctl/idxctl/internal/catalogerr"
)

// URI is a parsed database-uri argument per spec.md §6: one of
// "[sqlite:]<path>", "mariadb:<server>:<user>[:<password>]", or
// "postgresql:<server>:<user>[:<password>]".
type URI struct {
	Backend  Backend
	Path     string // sqlite: file path
	Server   string // mariadb/postgresql: host[:port]
	User     string
	Password string
	HasPW    bool
}

// ParseURI parses a database-uri command-line argument.
func ParseURI(raw string) (URI, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return URI{}, catalogerr.New(catalogerr.ClassURIParse, "parse uri", fmt.Errorf("empty database uri"))
	}

	switch {
	case strings.HasPrefix(raw, "sqlite:"):
		return URI{Backend: BackendSQLite, Path: strings.TrimPrefix(raw, "sqlite:")}, nil
	case strings.HasPrefix(raw, "mariadb:"):
		return parseClientServerURI(BackendMariaDB, strings.TrimPrefix(raw, "mariadb:"))
	case strings.HasPrefix(raw, "postgresql:"):
		return parseClientServerURI(BackendPostgreSQL, strings.TrimPrefix(raw, "postgresql:"))
	default:
		// No recognized scheme: treat as a bare sqlite path, per spec.md §6
		// ("[sqlite:]<path>").
		return URI{Backend: BackendSQLite, Path: raw}, nil
	}
}

func parseClientServerURI(backend Backend, rest string) (URI, error) {
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return URI{}, catalogerr.New(catalogerr.ClassURIParse, "parse uri",
			fmt.Errorf("%s uri must have the form %s:<server>:<user>[:<password>]", backend, backend))
	}
	u := URI{Backend: backend, Server: parts[0], User: parts[1]}
	if len(parts) == 3 {
		u.Password = parts[2]
		u.HasPW = true
	}
	return u, nil
}

// ServerHostPort splits Server into host and port, applying the dialect's
// default port when none is given.
func (u URI) ServerHostPort(defaultPort int) (host string, port int) {
	host = u.Server
	port = defaultPort
	if idx := strings.LastIndex(u.Server, ":"); idx >= 0 {
		host = u.Server[:idx]
		if p, err := strconv.Atoi(u.Server[idx+1:]); err == nil {
			port = p
		}
	}
	return host, port
}

// PasswordOrEnv returns the URI's password, falling back to the backend's
// environment variable (IDXCTL_MARIADB_PASSWORD / IDXCTL_POSTGRESQL_PASSWORD)
// when the URI omitted one.
func (u URI) PasswordOrEnv() string {
	if u.HasPW {
		return u.Password
	}
	switch u.Backend {
	case BackendMariaDB:
		return os.Getenv("IDXCTL_MARIADB_PASSWORD")
	case BackendPostgreSQL:
		return os.Getenv("IDXCTL_POSTGRESQL_PASSWORD")
	default:
		return ""
	}
}

// DefaultLockTimeout is the connection-level wait applied while establishing
// a backend connection before the wait-forever policy of §5 takes over at
// the transaction-lock level.
const DefaultLockTimeout = 30 * time.Second
