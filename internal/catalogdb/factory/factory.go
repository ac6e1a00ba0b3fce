// Package factory resolves a parsed database-uri into a connected
// catalogdb.DB: it picks the Dialect, builds the driver name and DSN for
// that backend, and opens the connection pool. Each backend has one entry
// in this file's dialect and DSN registries, so adding a fourth dialect
// means adding an entry to each.
package factory

import (
	"context"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/idxctl/idxctl/internal/catalogdb"
	"github.com/idxctl/idxctl/internal/catalogdb/mariadialect"
	"github.com/idxctl/idxctl/internal/catalogdb/pgdialect"
	"github.com/idxctl/idxctl/internal/catalogdb/sqlitedialect"
	"github.com/idxctl/idxctl/internal/catalogerr"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// dsnBuilder produces the driver name and DSN for a URI.
type dsnBuilder func(u catalogdb.URI) (driverName, dsn string, err error)

var (
	dialectRegistry = map[catalogdb.Backend]catalogdb.Dialect{
		catalogdb.BackendSQLite:     sqlitedialect.New(),
		catalogdb.BackendMariaDB:    mariadialect.New(),
		catalogdb.BackendPostgreSQL: pgdialect.New(),
	}
	dsnRegistry = map[catalogdb.Backend]dsnBuilder{
		catalogdb.BackendSQLite:     sqliteDSN,
		catalogdb.BackendMariaDB:    mariaDSN,
		catalogdb.BackendPostgreSQL: postgresDSN,
	}
)

// Open parses raw as a database-uri (spec.md §6) and opens a connection to
// the backend it names, with the matching Dialect attached.
func Open(ctx context.Context, raw string) (*catalogdb.DB, error) {
	u, err := catalogdb.ParseURI(raw)
	if err != nil {
		return nil, err
	}
	return OpenURI(ctx, u)
}

// OpenURI opens a connection for an already-parsed URI.
func OpenURI(ctx context.Context, u catalogdb.URI) (*catalogdb.DB, error) {
	dialect, ok := dialectRegistry[u.Backend]
	if !ok {
		return nil, catalogerr.New(catalogerr.ClassInvalidArgument, "open catalog",
			fmt.Errorf("unsupported backend %s", u.Backend))
	}
	build, ok := dsnRegistry[u.Backend]
	if !ok {
		return nil, catalogerr.New(catalogerr.ClassInvalidArgument, "open catalog",
			fmt.Errorf("unsupported backend %s", u.Backend))
	}
	driverName, dsn, err := build(u)
	if err != nil {
		return nil, err
	}
	return catalogdb.Open(ctx, u, dialect, driverName, dsn)
}

// DialectFor returns the Dialect registered for backend. Nothing in this
// module calls it; the Importer uses the dialect attached to each open
// catalog.
func DialectFor(backend catalogdb.Backend) (catalogdb.Dialect, error) {
	d, ok := dialectRegistry[backend]
	if !ok {
		return nil, catalogerr.New(catalogerr.ClassInvalidArgument, "resolve dialect",
			fmt.Errorf("unsupported backend %s", backend))
	}
	return d, nil
}

// sqliteDSN asks the connection itself for what BeginExclusive needs rather
// than issuing it per-transaction: _txlock=immediate makes every BeginTx on
// this connection acquire SQLite's write lock up front (BEGIN IMMEDIATE),
// and _pragma=foreign_keys(1) turns on FK enforcement at connect time,
// since "PRAGMA foreign_keys" is a no-op once a transaction is already
// open.
func sqliteDSN(u catalogdb.URI) (string, string, error) {
	if u.Path == "" {
		return "", "", catalogerr.New(catalogerr.ClassURIParse, "sqlite dsn", fmt.Errorf("empty path"))
	}
	return "sqlite3", fmt.Sprintf("file:%s?_txlock=immediate&_pragma=foreign_keys(1)", u.Path), nil
}

func mariaDSN(u catalogdb.URI) (string, string, error) {
	host, port := u.ServerHostPort(3306)
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", host, port)
	cfg.User = u.User
	cfg.Passwd = u.PasswordOrEnv()
	cfg.DBName = "catalog"
	cfg.ParseTime = true
	cfg.MultiStatements = true
	return "mysql", cfg.FormatDSN(), nil
}

func postgresDSN(u catalogdb.URI) (string, string, error) {
	host, port := u.ServerHostPort(5432)
	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=catalog sslmode=prefer",
		host, port, u.User)
	if pw := u.PasswordOrEnv(); pw != "" {
		dsn += fmt.Sprintf(" password=%s", pw)
	}
	return "pgx", dsn, nil
}
