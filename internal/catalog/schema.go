package catalog

import (
	"context"
	"strings"

	"github.com/idxctl/idxctl/internal/catalogdb"
	"github.com/idxctl/idxctl/internal/catalogerr"
)

// CreateSchema applies the dialect's ordered CREATE TABLE list. When force
// is true it first drops triggers, indices, views, and tables (in that
// order, ignoring failures) so a damaged or half-built catalog can be
// recreated from nothing (spec.md §4.1).
func (c *Catalog) CreateSchema(ctx context.Context, force bool) error {
	if force {
		c.dropIgnoreErrors(ctx, catalogdb.KindTrigger)
		c.dropIgnoreErrors(ctx, catalogdb.KindIndex)
		c.dropIgnoreErrors(ctx, catalogdb.KindView)
		c.dropIgnoreErrors(ctx, catalogdb.KindTable)
	}
	if err := c.db.ExecDDL(ctx, c.dialect().CreateTableStatements()); err != nil {
		return err
	}
	if err := c.db.ExecDDL(ctx, c.dialect().CreateViewStatements()); err != nil {
		return err
	}
	return nil
}

func (c *Catalog) dropIgnoreErrors(ctx context.Context, kind catalogdb.ObjectKind) {
	c.db.ExecDDLIgnoreErrors(ctx, c.dialect().DropStatements(kind))
}

// DropTables drops every table (and the FTS tables that mirror them).
func (c *Catalog) DropTables(ctx context.Context) error {
	return c.db.ExecDDL(ctx, c.dialect().DropStatements(catalogdb.KindTable))
}

// DropViews drops every view.
func (c *Catalog) DropViews(ctx context.Context) error {
	return c.db.ExecDDL(ctx, c.dialect().DropStatements(catalogdb.KindView))
}

// DropIndices drops every index.
func (c *Catalog) DropIndices(ctx context.Context) error {
	return c.db.ExecDDL(ctx, c.dialect().DropStatements(catalogdb.KindIndex))
}

// DropTriggers drops every trigger.
func (c *Catalog) DropTriggers(ctx context.Context) error {
	return c.db.ExecDDL(ctx, c.dialect().DropStatements(catalogdb.KindTrigger))
}

// CreateTriggers drops and recreates every trigger inside one exclusive
// transaction, aborting on any failure.
func (c *Catalog) CreateTriggers(ctx context.Context) error {
	return c.withTx(ctx, func(tx *catalogdb.Tx) error {
		for _, stmt := range c.dialect().DropStatements(catalogdb.KindTrigger) {
			if _, err := tx.SQL.ExecContext(ctx, stmt); err != nil {
				return catalogerr.New(catalogerr.ClassSchema, "drop trigger", err)
			}
		}
		for _, stmt := range c.dialect().CreateTriggerStatements() {
			if _, err := tx.SQL.ExecContext(ctx, stmt); err != nil {
				return catalogerr.New(catalogerr.ClassSchema, "create trigger", err)
			}
		}
		return nil
	})
}

// CreateIndices drops and recreates every index inside one exclusive
// transaction. On the embedded and PostgreSQL backends this genuinely
// (re)creates the indices; MariaDB's CreateIndexStatements is empty because
// its indices are declared inline in the table DDL, so this call is a no-op
// there (spec.md §4.1). On PostgreSQL the drop list also names the two FTS
// GIN indices, which CreateIndexStatements does not recreate; they return
// with CreateFTSIndices.
func (c *Catalog) CreateIndices(ctx context.Context) error {
	return c.withTx(ctx, func(tx *catalogdb.Tx) error {
		for _, stmt := range c.dialect().DropStatements(catalogdb.KindIndex) {
			if _, err := tx.SQL.ExecContext(ctx, stmt); err != nil {
				return catalogerr.New(catalogerr.ClassSchema, "drop index", err)
			}
		}
		for _, stmt := range c.dialect().CreateIndexStatements() {
			if _, err := tx.SQL.ExecContext(ctx, stmt); err != nil {
				return catalogerr.New(catalogerr.ClassSchema, "create index", err)
			}
		}
		return nil
	})
}

// ListTables returns the names of every base table managed by the schema,
// as a fixed description of the dialect's DDL rather than an information_
// schema query, since §4.1 treats the table set as static per dialect.
func (c *Catalog) ListTables(ctx context.Context) ([]string, error) {
	return objectNames(c.dialect().DropStatements(catalogdb.KindTable), "DROP TABLE IF EXISTS "), nil
}

// ListIndices returns the names of every index the dialect declares.
func (c *Catalog) ListIndices(ctx context.Context) ([]string, error) {
	return objectNames(c.dialect().DropStatements(catalogdb.KindIndex), "DROP INDEX IF EXISTS "), nil
}

// ListTriggers returns the names of every trigger the dialect declares.
func (c *Catalog) ListTriggers(ctx context.Context) ([]string, error) {
	return objectNames(c.dialect().DropStatements(catalogdb.KindTrigger), "DROP TRIGGER IF EXISTS "), nil
}

func objectNames(dropStmts []string, prefix string) []string {
	names := make([]string, 0, len(dropStmts))
	for _, stmt := range dropStmts {
		if len(stmt) > len(prefix) && stmt[:len(prefix)] == prefix {
			name := stmt[len(prefix):]
			if i := strings.IndexByte(name, ' '); i >= 0 {
				name = name[:i]
			}
			names = append(names, name)
		}
	}
	return names
}
