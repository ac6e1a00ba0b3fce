package catalogdb

import (
	"context"
	"database/sql"
)

// Backend identifies one of the three supported relational backends.
type Backend int

const (
	BackendSQLite Backend = iota
	BackendMariaDB
	BackendPostgreSQL
)

func (b Backend) String() string {
	switch b {
	case BackendSQLite:
		return "sqlite"
	case BackendMariaDB:
		return "mariadb"
	case BackendPostgreSQL:
		return "postgresql"
	default:
		return "unknown"
	}
}

// ObjectKind identifies one class of schema object for drop/create ordering.
type ObjectKind int

const (
	KindTable ObjectKind = iota
	KindView
	KindIndex
	KindTrigger
)

// Dialect is the per-backend trait named in spec.md §9 ("Design Notes"):
// {createFtsTables, populateFtsStorages, populateFtsEntries,
// buildFtsMatchPredicate, canDdlInTransaction, supportsAnalyzeCommand,
// deleteFtsByKey}, plus the DDL ordering methods needed by the Schema
// Manager (§4.1). Per-dialect text snippets are kept here, never spliced
// into user queries.
type Dialect interface {
	Backend() Backend

	// CreateTableStatements returns DDL in dependency order: leaves first.
	CreateTableStatements() []string
	// CreateViewStatements returns DDL for views, in dependency order.
	CreateViewStatements() []string
	// CreateIndexStatements returns DDL for indices not already declared in
	// CreateTableStatements. On backends that declare indices inline in the
	// table DDL, this returns an empty slice (create-indices becomes a
	// no-op for those, as spec.md §4.1 requires).
	CreateIndexStatements() []string
	// CreateTriggerStatements returns DDL for triggers.
	CreateTriggerStatements() []string

	// DropStatements returns DDL to drop every object of the given kind, in
	// root-first order (reverse of creation order).
	DropStatements(kind ObjectKind) []string

	// CreateFTSTables returns DDL needed to create the dialect's FTS
	// storage (empty for dialects, like MariaDB, that reuse the base
	// tables via MATCH...AGAINST).
	CreateFTSTables() []string
	// DropFTSTables returns DDL to drop FTS-specific tables.
	DropFTSTables() []string
	// PopulateFTSStorages copies (id, name) from non-deleted storages into
	// the dialect's FTS representation.
	PopulateFTSStorages(ctx context.Context, exec Execer) error
	// PopulateFTSEntries copies (id, name) from non-deleted entries into
	// the dialect's FTS representation.
	PopulateFTSEntries(ctx context.Context, exec Execer) error
	// DeleteFTSByKey removes the FTS row(s) keyed by the given base id from
	// the given FTS table ("FTS_storages" or "FTS_entries").
	DeleteFTSByKey(ctx context.Context, exec Execer, table string, id int64) error

	// BuildFTSMatchPredicate returns a dialect-specific boolean SQL
	// fragment (plus its bind args) matching rows whose name matches the
	// tokenized pattern, for the given table/column. An empty pattern
	// returns an empty predicate ("", nil), meaning unfiltered.
	BuildFTSMatchPredicate(table, column, pattern string) (predicate string, args []any)

	// CanDDLInTransaction reports whether DDL statements may run inside an
	// explicit transaction on this backend.
	CanDDLInTransaction() bool
	// SupportsAnalyzeCommand reports whether --optimize should also issue
	// an ANALYZE/OPTIMIZE command after reindexing.
	SupportsAnalyzeCommand() bool

	// Placeholder returns the positional bind-parameter marker for
	// argument index n (1-based), e.g. "?" for sqlite/MariaDB, "$1" for
	// PostgreSQL.
	Placeholder(n int) string

	// ExplainKeyword returns the keyword(s) prepended to a pass-through
	// query for --explain-query.
	ExplainKeyword() string
}

// Execer is the minimal subset of *sql.DB / *sql.Tx the dialect trait needs
// to populate FTS tables.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}
