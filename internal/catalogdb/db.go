package catalogdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/idxctl/idxctl/internal/catalogerr"
)

// DB wraps a *sql.DB together with the dialect trait for the backend it is
// connected to. It performs query execution, transaction control, and
// dialect formatting; it has no knowledge of entities/storages/entries.
type DB struct {
	SQL     *sql.DB
	Dialect Dialect
	URI     URI
}

// Open connects to the backend named by uri, retrying transient connection
// failures (network hiccups against a client/server backend) with bounded
// exponential backoff before giving up. It does not run any schema DDL.
func Open(ctx context.Context, uri URI, dialect Dialect, driverName, dsn string) (*DB, error) {
	var sqlDB *sql.DB
	open := func() error {
		var err error
		sqlDB, err = sql.Open(driverName, dsn)
		if err != nil {
			return backoff.Permanent(err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, DefaultLockTimeout)
		defer cancel()
		if err := sqlDB.PingContext(pingCtx); err != nil {
			_ = sqlDB.Close()
			if isAuthError(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 15 * time.Second
	if err := backoff.Retry(open, backoff.WithContext(bo, ctx)); err != nil {
		class := catalogerr.ClassOpen
		if isAuthError(err) {
			class = catalogerr.ClassAuthorizationRequired
		}
		return nil, catalogerr.Newf(class, err, "open %s catalog", dialect.Backend())
	}

	return &DB{SQL: sqlDB, Dialect: dialect, URI: uri}, nil
}

// isAuthError recognizes the MariaDB and PostgreSQL wire-protocol messages
// for a rejected credential, so a missing password can be retried once
// after an interactive prompt instead of failing outright.
func isAuthError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Access denied") || // MariaDB ER_ACCESS_DENIED_ERROR
		strings.Contains(msg, "password authentication failed") || // PostgreSQL 28P01
		strings.Contains(msg, "SQLSTATE 28000") ||
		strings.Contains(msg, "SQLSTATE 28P01")
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.SQL.Close()
}

// Tx is an active exclusive transaction plus the dialect it runs against.
type Tx struct {
	SQL     *sql.Tx
	Dialect Dialect
}

// BeginExclusive starts an exclusive, wait-forever transaction per spec.md
// §5's transaction discipline. On SQLite this is BEGIN IMMEDIATE, requested
// once via the "_txlock=immediate" connection-string parameter (see
// factory.sqliteDSN) rather than per-transaction, since SQLite only honors
// the locking mode a connection was opened with; on the client/server
// backends it is a plain transaction with SERIALIZABLE-ish isolation left
// to the driver default, since those backends do not honor SQLite's
// locking-mode pragmas. Foreign-key enforcement is likewise a connect-time
// setting ("_pragma=foreign_keys(1)" in the same DSN): "PRAGMA
// foreign_keys" is a silent no-op once issued inside an open transaction.
func (db *DB) BeginExclusive(ctx context.Context) (*Tx, error) {
	var opts *sql.TxOptions
	tx, err := db.SQL.BeginTx(ctx, opts)
	if err != nil {
		return nil, catalogerr.New(catalogerr.ClassTransaction, "begin transaction", err)
	}
	return &Tx{SQL: tx, Dialect: db.Dialect}, nil
}

// WithExclusiveTx runs fn inside a fresh exclusive transaction, committing
// on success and rolling back (and returning the error) on any failure.
// This is the single choke point every mutating maintenance operation in
// internal/catalog runs through.
func (db *DB) WithExclusiveTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := db.BeginExclusive(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.SQL.Rollback()
		return err
	}
	if err := tx.SQL.Commit(); err != nil {
		return catalogerr.New(catalogerr.ClassTransaction, "commit transaction", err)
	}
	return nil
}

// ExecDDL runs DDL statements honoring the dialect's transaction rules:
// inside one exclusive transaction when the backend allows DDL in a
// transaction (embedded backend), or as separate statements outside any
// transaction otherwise (client/server backends), per spec.md §5.
func (db *DB) ExecDDL(ctx context.Context, stmts []string) error {
	if len(stmts) == 0 {
		return nil
	}
	if db.Dialect.CanDDLInTransaction() {
		return db.WithExclusiveTx(ctx, func(tx *Tx) error {
			for _, stmt := range stmts {
				if _, err := tx.SQL.ExecContext(ctx, stmt); err != nil {
					return catalogerr.Newf(catalogerr.ClassSchema, err, "execute DDL %q", firstLine(stmt))
				}
			}
			return nil
		})
	}
	for _, stmt := range stmts {
		if _, err := db.SQL.ExecContext(ctx, stmt); err != nil {
			return catalogerr.Newf(catalogerr.ClassSchema, err, "execute DDL %q", firstLine(stmt))
		}
	}
	return nil
}

// ExecDDLIgnoreErrors runs DDL statements and discards any error from each
// individual statement, matching the "force=true ignoring failures" drop
// semantics of spec.md §4.1.
func (db *DB) ExecDDLIgnoreErrors(ctx context.Context, stmts []string) {
	for _, stmt := range stmts {
		_, _ = db.SQL.ExecContext(ctx, stmt)
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	if len(s) > 80 {
		return s[:80] + "…"
	}
	return s
}

// BatchIDs splits ids into chunks of at most size elements, matching the
// "collect ids into an array (up to 4096 per batch)" pattern used
// throughout the Cleaner (§4.7) and Purger (§4.8).
func BatchIDs(ids []int64, size int) [][]int64 {
	if size <= 0 {
		size = len(ids)
	}
	var batches [][]int64
	for len(ids) > 0 {
		n := size
		if n > len(ids) {
			n = len(ids)
		}
		batches = append(batches, ids[:n])
		ids = ids[n:]
	}
	return batches
}

// InClause builds a "col IN (?,?,...)" fragment (using the dialect's
// placeholder syntax) plus the matching argument slice for ids.
func InClause(d Dialect, column string, ids []int64, startArg int) (string, []any) {
	if len(ids) == 0 {
		return "1=0", nil
	}
	args := make([]any, len(ids))
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id
		placeholders[i] = d.Placeholder(startArg + i)
	}
	clause := fmt.Sprintf("%s IN (", column)
	for i, p := range placeholders {
		if i > 0 {
			clause += ","
		}
		clause += p
	}
	clause += ")"
	return clause, args
}

// ValuesClause builds a "(p1,p2,...,pn)" placeholder group in the dialect's
// syntax, for INSERT statements that must stay dialect-agnostic because
// their destination is resolved at runtime (the Importer may write into
// any of the three backends).
func ValuesClause(d Dialect, n int) string {
	clause := "("
	for i := 0; i < n; i++ {
		if i > 0 {
			clause += ","
		}
		clause += d.Placeholder(i + 1)
	}
	return clause + ")"
}
