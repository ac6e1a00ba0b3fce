package catalog

import (
	"context"

	"github.com/idxctl/idxctl/internal/catalogdb"
	"github.com/idxctl/idxctl/internal/catalogerr"
)

// CleanReport counts the rows each Cleaner stage touched.
type CleanReport struct {
	OrphanRelationshipRows int64
	UnfragmentedEntries    int64
	MissingTypeRows        int64
	RepairedEntityIDs      int64
	UnnamedStorages        int64
	OutOfRangeStorages     int64
	OrphanEntities         int64
	EntitylessEntities     int64
	OrphanFTSRows          int64
	OrphanNewestRows       int64
	DuplicateStorages      int64
}

// Total sums every stage's row count.
func (r CleanReport) Total() int64 {
	return r.OrphanRelationshipRows + r.UnfragmentedEntries + r.MissingTypeRows +
		r.RepairedEntityIDs + r.UnnamedStorages + r.OutOfRangeStorages +
		r.OrphanEntities + r.EntitylessEntities + r.OrphanFTSRows +
		r.OrphanNewestRows + r.DuplicateStorages
}

const cleanBatchSize = 4096

// Clean runs the ten deletion/repair stages of spec.md §4.7 in order, each
// inside its own sequence of bounded transactions so a catalog with
// millions of orphaned rows never holds one transaction open for all of
// them. Stage failures stop the run; earlier stages' work is already
// committed and is not rolled back.
func (c *Catalog) Clean(ctx context.Context, prog *catalogdb.Progress) (CleanReport, error) {
	if prog == nil {
		prog = &catalogdb.Progress{}
	}
	var r CleanReport
	var err error

	if r.OrphanRelationshipRows, err = c.cleanOrphanRelationships(ctx, prog); err != nil {
		return r, err
	}
	if r.UnfragmentedEntries, err = c.cleanUnfragmentedEntries(ctx, prog); err != nil {
		return r, err
	}
	if r.MissingTypeRows, err = c.cleanMissingTypeRows(ctx, prog); err != nil {
		return r, err
	}
	if r.RepairedEntityIDs, err = c.repairMismatchedEntityIDs(ctx, prog); err != nil {
		return r, err
	}
	if r.UnnamedStorages, err = c.cleanByQuery(ctx, prog,
		`SELECT id FROM storages WHERE NOT deletedFlag AND (name IS NULL OR name = '') LIMIT `, "storages"); err != nil {
		return r, err
	}
	if r.OutOfRangeStorages, err = c.cleanByQuery(ctx, prog,
		`SELECT id FROM storages WHERE NOT deletedFlag AND (state < 0 OR state > `+literalInt(int(catalogdb.StorageStateMax))+`) LIMIT `, "storages"); err != nil {
		return r, err
	}
	if r.OrphanEntities, err = c.cleanByQuery(ctx, prog, `
		SELECT id FROM entities WHERE id != 0
		AND NOT EXISTS (SELECT 1 FROM entries en WHERE en.entityId = entities.id AND NOT en.deletedFlag)
		AND NOT EXISTS (SELECT 1 FROM entryNewest n WHERE n.entityId = entities.id)
		LIMIT `, "entities"); err != nil {
		return r, err
	}
	if r.EntitylessEntities, err = c.cleanByQuery(ctx, prog, `
		SELECT id FROM entities WHERE id != 0
		AND NOT EXISTS (SELECT 1 FROM storages s WHERE s.entityId = entities.id AND NOT s.deletedFlag)
		LIMIT `, "entities"); err != nil {
		return r, err
	}
	if r.OrphanFTSRows, err = c.cleanOrphanFTSRows(ctx, prog); err != nil {
		return r, err
	}
	if r.OrphanNewestRows, err = c.cleanByQuery(ctx, prog, `
		SELECT id FROM entryNewest WHERE NOT EXISTS (SELECT 1 FROM entries e WHERE e.id = entryNewest.entryId)
		LIMIT `, "entryNewest"); err != nil {
		return r, err
	}
	if r.DuplicateStorages, err = c.cleanDuplicateStorages(ctx, prog); err != nil {
		return r, err
	}
	return r, nil
}

// cleanOrphanRelationships is stage 1: entryFragments/directoryEntries/
// linkEntries/specialEntries whose storage is missing or name-empty.
func (c *Catalog) cleanOrphanRelationships(ctx context.Context, prog *catalogdb.Progress) (int64, error) {
	var total int64
	relTables := []string{"entryFragments", "directoryEntries", "linkEntries", "specialEntries"}
	for _, table := range relTables {
		n, err := c.cleanByQuery(ctx, prog, `
			SELECT `+table+`.id FROM `+table+`
			LEFT JOIN storages s ON s.id = `+table+`.storageId
			WHERE s.id IS NULL OR s.name IS NULL OR s.name = ''
			LIMIT `, table)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// cleanUnfragmentedEntries is stage 2: file/image/hardlink entries with no
// fragments.
func (c *Catalog) cleanUnfragmentedEntries(ctx context.Context, prog *catalogdb.Progress) (int64, error) {
	return c.cleanByQuery(ctx, prog, `
		SELECT e.id FROM entries e
		WHERE e.type IN (1,2,5) AND NOT e.deletedFlag
		AND NOT EXISTS (SELECT 1 FROM entryFragments f WHERE f.entryId = e.id)
		LIMIT `, "entries")
}

// cleanMissingTypeRows is stage 3: entries of each type lacking their
// type-row.
func (c *Catalog) cleanMissingTypeRows(ctx context.Context, prog *catalogdb.Progress) (int64, error) {
	typeTables := map[catalogdb.EntryType]string{
		catalogdb.EntryFile:      "fileEntries",
		catalogdb.EntryImage:     "imageEntries",
		catalogdb.EntryHardlink:  "hardlinkEntries",
		catalogdb.EntryDirectory: "directoryEntries",
		catalogdb.EntryLink:      "linkEntries",
		catalogdb.EntrySpecial:   "specialEntries",
	}
	var total int64
	for entryType, table := range typeTables {
		n, err := c.cleanByQuery(ctx, prog, `
			SELECT e.id FROM entries e
			WHERE e.type = `+placeholderInt(entryType)+` AND NOT e.deletedFlag
			AND NOT EXISTS (SELECT 1 FROM `+table+` t WHERE t.entryId = e.id)
			LIMIT `, "entries")
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// repairMismatchedEntityIDs is stage 4: entries whose entityId disagrees
// with their fragment's storage.entityId are repaired in place rather than
// deleted.
func (c *Catalog) repairMismatchedEntityIDs(ctx context.Context, prog *catalogdb.Progress) (int64, error) {
	var total int64
	for {
		type mismatch struct {
			entryID, correctEntityID int64
		}
		var batch []mismatch
		err := c.withTx(ctx, func(tx *catalogdb.Tx) error {
			rows, err := tx.SQL.QueryContext(ctx, `
				SELECT DISTINCT e.id, s.entityId FROM entries e
				JOIN entryFragments f ON f.entryId = e.id
				JOIN storages s ON s.id = f.storageId
				WHERE e.entityId != s.entityId
				LIMIT `+literalInt(cleanBatchSize))
			if err != nil {
				return catalogerr.New(catalogerr.ClassQuery, "collect entity mismatches", err)
			}
			for rows.Next() {
				var m mismatch
				if err := rows.Scan(&m.entryID, &m.correctEntityID); err != nil {
					rows.Close()
					return catalogerr.New(catalogerr.ClassQuery, "scan entity mismatch", err)
				}
				batch = append(batch, m)
			}
			if err := rows.Err(); err != nil {
				rows.Close()
				return err
			}
			rows.Close()
			for _, m := range batch {
				if _, err := tx.SQL.ExecContext(ctx,
					"UPDATE entries SET entityId = "+tx.Dialect.Placeholder(1)+" WHERE id = "+tx.Dialect.Placeholder(2),
					m.correctEntityID, m.entryID); err != nil {
					return catalogerr.New(catalogerr.ClassConstraint, "repair entry entityId", err)
				}
			}
			return nil
		})
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			return total, nil
		}
		total += int64(len(batch))
		prog.Advance(int64(len(batch)))
	}
}

// cleanOrphanFTSRows is stage 9: FTS rows whose base row is gone. Skipped
// entirely on MariaDB, which has no FTS mirror tables.
func (c *Catalog) cleanOrphanFTSRows(ctx context.Context, prog *catalogdb.Progress) (int64, error) {
	if c.dialect().Backend() == catalogdb.BackendMariaDB {
		return 0, nil
	}
	ftsKey := "rowid"
	if c.dialect().Backend() == catalogdb.BackendPostgreSQL {
		ftsKey = "id"
	}
	var total int64
	n, err := c.cleanByQueryKeyed(ctx, prog, `
		SELECT fs.`+ftsKey+` FROM FTS_storages fs
		WHERE NOT EXISTS (SELECT 1 FROM storages s WHERE s.id = fs.`+ftsKey+`) LIMIT `, "FTS_storages", ftsKey)
	if err != nil {
		return total, err
	}
	total += n
	n, err = c.cleanByQueryKeyed(ctx, prog, `
		SELECT fe.`+ftsKey+` FROM FTS_entries fe
		WHERE NOT EXISTS (SELECT 1 FROM entries e WHERE e.id = fe.`+ftsKey+`) LIMIT `, "FTS_entries", ftsKey)
	if err != nil {
		return total, err
	}
	total += n
	return total, nil
}

// cleanDuplicateStorages enumerates non-deleted storages ordered by name
// and soft-deletes every row whose name equals its predecessor's.
func (c *Catalog) cleanDuplicateStorages(ctx context.Context, prog *catalogdb.Progress) (int64, error) {
	var total int64
	return total, c.withTx(ctx, func(tx *catalogdb.Tx) error {
		rows, err := tx.SQL.QueryContext(ctx, `
			SELECT id, name FROM storages WHERE NOT deletedFlag AND name IS NOT NULL AND name != '' ORDER BY name, id`)
		if err != nil {
			return catalogerr.New(catalogerr.ClassQuery, "collect storages for duplicate cleanup", err)
		}
		type row struct {
			id   int64
			name string
		}
		var dupeIDs []int64
		var prev string
		first := true
		for rows.Next() {
			var rr row
			if err := rows.Scan(&rr.id, &rr.name); err != nil {
				rows.Close()
				return catalogerr.New(catalogerr.ClassQuery, "scan storage for duplicate cleanup", err)
			}
			if !first && rr.name == prev {
				dupeIDs = append(dupeIDs, rr.id)
			}
			prev = rr.name
			first = false
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, batch := range catalogdb.BatchIDs(dupeIDs, cleanBatchSize) {
			clause, args := catalogdb.InClause(tx.Dialect, "id", batch, 1)
			if _, err := tx.SQL.ExecContext(ctx, "UPDATE storages SET deletedFlag = true WHERE "+clause, args...); err != nil {
				return catalogerr.New(catalogerr.ClassConstraint, "soft-delete duplicate storage", err)
			}
			total += int64(len(batch))
			prog.Advance(int64(len(batch)))
		}
		return nil
	})
}

// cleanByQuery repeatedly collects up to cleanBatchSize ids matching
// selectIDs (which must end in "LIMIT ", to which the batch size is
// appended) and deletes them from table by id, looping until the
// collector returns zero rows. This is the shared "collect, then delete
// by id list" pattern every stage except the repair and duplicate stages
// follows.
func (c *Catalog) cleanByQuery(ctx context.Context, prog *catalogdb.Progress, selectIDs, table string) (int64, error) {
	return c.cleanByQueryKeyed(ctx, prog, selectIDs, table, "id")
}

// cleanByQueryKeyed is cleanByQuery generalized to a key column other than
// "id" (needed for FTS mirror tables, whose key is "rowid" on SQLite).
func (c *Catalog) cleanByQueryKeyed(ctx context.Context, prog *catalogdb.Progress, selectIDs, table, keyCol string) (int64, error) {
	var total int64
	for {
		var batch []int64
		err := c.withTx(ctx, func(tx *catalogdb.Tx) error {
			rows, err := tx.SQL.QueryContext(ctx, selectIDs+literalInt(cleanBatchSize))
			if err != nil {
				return catalogerr.Newf(catalogerr.ClassQuery, err, "collect %s cleanup batch", table)
			}
			for rows.Next() {
				var id int64
				if err := rows.Scan(&id); err != nil {
					rows.Close()
					return catalogerr.New(catalogerr.ClassQuery, "scan cleanup id", err)
				}
				batch = append(batch, id)
			}
			if err := rows.Err(); err != nil {
				rows.Close()
				return err
			}
			rows.Close()
			if len(batch) == 0 {
				return nil
			}
			clause, args := catalogdb.InClause(tx.Dialect, keyCol, batch, 1)
			if _, err := tx.SQL.ExecContext(ctx, "DELETE FROM "+table+" WHERE "+clause, args...); err != nil {
				return catalogerr.Newf(catalogerr.ClassConstraint, err, "delete %s cleanup batch", table)
			}
			return nil
		})
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			return total, nil
		}
		total += int64(len(batch))
		prog.Advance(int64(len(batch)))
	}
}
