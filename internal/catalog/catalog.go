// Package catalog implements the maintenance algorithms that enforce and
// restore the backup-index catalog's cross-table invariants: schema
// bootstrap, import, integrity checking, newest-entry projection, aggregate
// recomputation, orphan/duplicate cleanup, cascading purge, and FTS rebuild.
// It consumes internal/catalogdb as a typed relational API and has no
// knowledge of CLI parsing or console formatting.
package catalog

import (
	"context"

	"github.com/idxctl/idxctl/internal/catalogdb"
)

// Catalog is one open connection to a backup-index database, the unit every
// maintenance operation runs against.
type Catalog struct {
	db *catalogdb.DB
}

// Open wraps an already-connected catalogdb.DB. Connection establishment
// (URI parsing, dialect selection, retry) lives in catalogdb/factory; this
// constructor exists so callers that already hold a *catalogdb.DB (tests,
// cross-dialect import destinations) can build a Catalog directly.
func Open(db *catalogdb.DB) *Catalog {
	return &Catalog{db: db}
}

// Close releases the underlying connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// DB exposes the underlying typed relational API for components that need
// direct access (the Importer opens a second catalog as its source).
func (c *Catalog) DB() *catalogdb.DB {
	return c.db
}

func (c *Catalog) dialect() catalogdb.Dialect {
	return c.db.Dialect
}

// withTx runs fn inside one exclusive transaction on this catalog's
// connection, per spec.md §5's transaction discipline.
func (c *Catalog) withTx(ctx context.Context, fn func(tx *catalogdb.Tx) error) error {
	return c.db.WithExclusiveTx(ctx, fn)
}
