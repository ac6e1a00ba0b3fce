package catalog

import (
	"context"

	"github.com/idxctl/idxctl/internal/catalogdb"
	"github.com/idxctl/idxctl/internal/catalogerr"
)

// CreateFTSIndices drops existing FTS tables, creates new ones, and
// repopulates them from storages and entries, all inside one exclusive
// transaction (spec.md §4.2). Partial FTS content left behind by an
// aborted attempt is harmless because the next rebuild discards and
// recreates from scratch.
func (c *Catalog) CreateFTSIndices(ctx context.Context) error {
	return c.withTx(ctx, func(tx *catalogdb.Tx) error {
		for _, stmt := range c.dialect().DropFTSTables() {
			if _, err := tx.SQL.ExecContext(ctx, stmt); err != nil {
				return catalogerr.New(catalogerr.ClassSchema, "drop fts table", err)
			}
		}
		for _, stmt := range c.dialect().CreateFTSTables() {
			if _, err := tx.SQL.ExecContext(ctx, stmt); err != nil {
				return catalogerr.New(catalogerr.ClassSchema, "create fts table", err)
			}
		}
		if err := c.dialect().PopulateFTSStorages(ctx, tx.SQL); err != nil {
			return catalogerr.New(catalogerr.ClassQuery, "populate FTS_storages", err)
		}
		if err := c.dialect().PopulateFTSEntries(ctx, tx.SQL); err != nil {
			return catalogerr.New(catalogerr.ClassQuery, "populate FTS_entries", err)
		}
		return nil
	})
}

// BuildStorageSearchPredicate returns the dialect-specific WHERE-clause
// fragment and bind arguments matching storages whose name matches pattern,
// AND-joining one prefix term per tokenized word. An empty pattern yields
// an empty, unfiltered predicate.
func (c *Catalog) BuildStorageSearchPredicate(pattern string) (string, []any) {
	return c.dialect().BuildFTSMatchPredicate("storages", "name", pattern)
}

// BuildEntrySearchPredicate is BuildStorageSearchPredicate for entries.
func (c *Catalog) BuildEntrySearchPredicate(pattern string) (string, []any) {
	return c.dialect().BuildFTSMatchPredicate("entries", "name", pattern)
}
