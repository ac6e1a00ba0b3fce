package catalog

import (
	"context"
	"database/sql"

	"github.com/idxctl/idxctl/internal/catalogdb"
	"github.com/idxctl/idxctl/internal/catalogerr"
)

const purgeBatchSize = 4096

// typeTableByEntryType names the owning type-row table for each entry type.
// The Cleaner's stage-3 check keeps its own copy of this mapping.
var typeTableByEntryType = map[catalogdb.EntryType]string{
	catalogdb.EntryFile:      "fileEntries",
	catalogdb.EntryImage:     "imageEntries",
	catalogdb.EntryHardlink:  "hardlinkEntries",
	catalogdb.EntryDirectory: "directoryEntries",
	catalogdb.EntryLink:      "linkEntries",
	catalogdb.EntrySpecial:   "specialEntries",
}

// PurgeReport counts rows removed by a purge run.
type PurgeReport struct {
	StoragesPurged int64
	EntitiesPurged int64
	EntriesPurged  int64
	UUIDsPurged    int64
}

// PurgeStorages purges each storage id in one exclusive transaction per
// storage, following the ten-step algorithm of spec.md §4.8. An error on
// any storage aborts that storage's transaction and stops the whole run,
// returning the partial report for storages already committed.
func (c *Catalog) PurgeStorages(ctx context.Context, ids []int64, prog *catalogdb.Progress) (PurgeReport, error) {
	if prog == nil {
		prog = &catalogdb.Progress{}
	}
	prog.Start(int64(len(ids)))
	var r PurgeReport
	for _, id := range ids {
		purged, prunedUUID, err := c.purgeOneStorage(ctx, id)
		if err != nil {
			return r, err
		}
		if purged {
			r.StoragesPurged++
		}
		if prunedUUID {
			r.UUIDsPurged++
		}
		prog.Advance(1)
	}
	return r, nil
}

func (c *Catalog) purgeOneStorage(ctx context.Context, storageID int64) (purgedStorage, prunedUUID bool, outErr error) {
	err := c.withTx(ctx, func(tx *catalogdb.Tx) error {
		var entityID int64
		var jobUUID string
		err := tx.SQL.QueryRowContext(ctx, `
			SELECT s.entityId, e.jobUuid FROM storages s
			JOIN entities e ON e.id = s.entityId
			WHERE s.id = `+tx.Dialect.Placeholder(1), storageID).Scan(&entityID, &jobUUID)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return catalogerr.New(catalogerr.ClassQuery, "read storage for purge", err)
		}

		entryIDs, err := collectStorageEntryIDs(ctx, tx, storageID)
		if err != nil {
			return err
		}

		if err := deleteByColumn(ctx, tx, "entryFragments", "storageId", storageID); err != nil {
			return err
		}

		remaining, err := entriesStillFragmented(ctx, tx, entryIDs)
		if err != nil {
			return err
		}
		if err := purgeFTSForUnfragmentedEntries(ctx, tx, c.dialect(), entryIDs, remaining); err != nil {
			return err
		}

		for _, table := range []string{"directoryEntries", "linkEntries", "specialEntries"} {
			if err := deleteByColumn(ctx, tx, table, "storageId", storageID); err != nil {
				return err
			}
		}

		if err := deleteFTSStorageRow(ctx, tx, c.dialect(), storageID); err != nil {
			return err
		}

		if _, err := tx.SQL.ExecContext(ctx, "DELETE FROM storages WHERE id = "+tx.Dialect.Placeholder(1), storageID); err != nil {
			return catalogerr.New(catalogerr.ClassConstraint, "delete storage row", err)
		}

		for _, batch := range catalogdb.BatchIDs(unfragmentedOf(entryIDs, remaining), purgeBatchSize) {
			if err := deleteEntryRows(ctx, tx, batch); err != nil {
				return err
			}
		}

		if entityID != catalogdb.DefaultEntityID {
			empty, err := entityHasNoEntriesOrNewest(ctx, tx, entityID)
			if err != nil {
				return err
			}
			if empty {
				if _, err := tx.SQL.ExecContext(ctx, "DELETE FROM entities WHERE id = "+tx.Dialect.Placeholder(1), entityID); err != nil {
					return catalogerr.New(catalogerr.ClassConstraint, "delete entity row", err)
				}
			}
		}

		pruned, err := pruneUUIDIfUnreferenced(ctx, tx, jobUUID)
		if err != nil {
			return err
		}
		prunedUUID = pruned

		purgedStorage = true
		return nil
	})
	return purgedStorage, prunedUUID, err
}

// collectStorageEntryIDs is step 2: union of entryIds reachable from the
// storage via fragments, directoryEntries, linkEntries, specialEntries.
func collectStorageEntryIDs(ctx context.Context, tx *catalogdb.Tx, storageID int64) ([]int64, error) {
	d := tx.Dialect
	rows, err := tx.SQL.QueryContext(ctx, `
		SELECT entryId FROM entryFragments WHERE storageId = `+d.Placeholder(1)+`
		UNION SELECT entryId FROM directoryEntries WHERE storageId = `+d.Placeholder(2)+`
		UNION SELECT entryId FROM linkEntries WHERE storageId = `+d.Placeholder(3)+`
		UNION SELECT entryId FROM specialEntries WHERE storageId = `+d.Placeholder(4),
		storageID, storageID, storageID, storageID)
	if err != nil {
		return nil, catalogerr.New(catalogerr.ClassQuery, "collect storage entry ids", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, catalogerr.New(catalogerr.ClassQuery, "scan storage entry id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// entriesStillFragmented reports, for each of entryIDs, whether any
// entryFragments row still references it (queried after the storage's own
// fragments have already been deleted).
func entriesStillFragmented(ctx context.Context, tx *catalogdb.Tx, entryIDs []int64) (map[int64]bool, error) {
	remaining := make(map[int64]bool, len(entryIDs))
	for _, batch := range catalogdb.BatchIDs(entryIDs, purgeBatchSize) {
		clause, args := catalogdb.InClause(tx.Dialect, "entryId", batch, 1)
		rows, err := tx.SQL.QueryContext(ctx, "SELECT DISTINCT entryId FROM entryFragments WHERE "+clause, args...)
		if err != nil {
			return nil, catalogerr.New(catalogerr.ClassQuery, "check remaining fragments", err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, catalogerr.New(catalogerr.ClassQuery, "scan remaining fragment entry id", err)
			}
			remaining[id] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return remaining, nil
}

func unfragmentedOf(entryIDs []int64, remaining map[int64]bool) []int64 {
	var out []int64
	for _, id := range entryIDs {
		if !remaining[id] {
			out = append(out, id)
		}
	}
	return out
}

// purgeFTSForUnfragmentedEntries is step 4: delete each unfragmented
// entry's FTS_entries row (MariaDB has no such table and is a no-op).
func purgeFTSForUnfragmentedEntries(ctx context.Context, tx *catalogdb.Tx, d catalogdb.Dialect, entryIDs []int64, remaining map[int64]bool) error {
	if d.Backend() == catalogdb.BackendMariaDB {
		return nil
	}
	for _, id := range entryIDs {
		if remaining[id] {
			continue
		}
		if err := d.DeleteFTSByKey(ctx, tx.SQL, "FTS_entries", id); err != nil {
			return catalogerr.New(catalogerr.ClassConstraint, "delete FTS_entries row", err)
		}
	}
	return nil
}

func deleteFTSStorageRow(ctx context.Context, tx *catalogdb.Tx, d catalogdb.Dialect, storageID int64) error {
	if d.Backend() == catalogdb.BackendMariaDB {
		return nil
	}
	if err := d.DeleteFTSByKey(ctx, tx.SQL, "FTS_storages", storageID); err != nil {
		return catalogerr.New(catalogerr.ClassConstraint, "delete FTS_storages row", err)
	}
	return nil
}

func deleteByColumn(ctx context.Context, tx *catalogdb.Tx, table, column string, id int64) error {
	_, err := tx.SQL.ExecContext(ctx, "DELETE FROM "+table+" WHERE "+column+" = "+tx.Dialect.Placeholder(1), id)
	if err != nil {
		return catalogerr.Newf(catalogerr.ClassConstraint, err, "delete %s rows", table)
	}
	return nil
}

// deleteEntryRows deletes the entries rows in ids along with their
// type-rows (step 8). The type-row foreign keys reference entries, so
// they are deleted first.
func deleteEntryRows(ctx context.Context, tx *catalogdb.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	for _, table := range []string{"fileEntries", "imageEntries", "hardlinkEntries", "directoryEntries", "linkEntries", "specialEntries"} {
		clause, args := catalogdb.InClause(tx.Dialect, "entryId", ids, 1)
		if _, err := tx.SQL.ExecContext(ctx, "DELETE FROM "+table+" WHERE "+clause, args...); err != nil {
			return catalogerr.Newf(catalogerr.ClassConstraint, err, "delete %s type rows", table)
		}
	}
	clause, args := catalogdb.InClause(tx.Dialect, "id", ids, 1)
	if _, err := tx.SQL.ExecContext(ctx, "DELETE FROM entries WHERE "+clause, args...); err != nil {
		return catalogerr.New(catalogerr.ClassConstraint, "delete entries rows", err)
	}
	return nil
}

func entityHasNoEntriesOrNewest(ctx context.Context, tx *catalogdb.Tx, entityID int64) (bool, error) {
	var entryCount int64
	if err := tx.SQL.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entries WHERE entityId = "+tx.Dialect.Placeholder(1), entityID).Scan(&entryCount); err != nil {
		return false, catalogerr.New(catalogerr.ClassQuery, "count entity entries", err)
	}
	if entryCount > 0 {
		return false, nil
	}
	var newestCount int64
	if err := tx.SQL.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entryNewest WHERE entityId = "+tx.Dialect.Placeholder(1), entityID).Scan(&newestCount); err != nil {
		return false, catalogerr.New(catalogerr.ClassQuery, "count entity newest rows", err)
	}
	if newestCount > 0 {
		return false, nil
	}
	// The storage being purged is deleted before this check runs, but an
	// entity can own more than one storage; any sibling still referencing
	// entityId must keep the entity row alive too.
	var storageCount int64
	if err := tx.SQL.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM storages WHERE entityId = "+tx.Dialect.Placeholder(1), entityID).Scan(&storageCount); err != nil {
		return false, catalogerr.New(catalogerr.ClassQuery, "count entity storages", err)
	}
	return storageCount == 0, nil
}

// pruneUUIDIfUnreferenced deletes the uuids row for jobUUID if no entity
// references it any longer, and reports whether it did.
func pruneUUIDIfUnreferenced(ctx context.Context, tx *catalogdb.Tx, jobUUID string) (bool, error) {
	var count int64
	if err := tx.SQL.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entities WHERE jobUuid = "+tx.Dialect.Placeholder(1), jobUUID).Scan(&count); err != nil {
		return false, catalogerr.New(catalogerr.ClassQuery, "count entities referencing jobUuid", err)
	}
	if count > 0 {
		return false, nil
	}
	if _, err := tx.SQL.ExecContext(ctx,
		"DELETE FROM uuids WHERE jobUuid = "+tx.Dialect.Placeholder(1), jobUUID); err != nil {
		return false, catalogerr.New(catalogerr.ClassConstraint, "prune unreferenced uuid", err)
	}
	return true, nil
}

// PurgeEntities purges each entity id (ignoring the default entity 0),
// recursively purging the entity's storages first.
func (c *Catalog) PurgeEntities(ctx context.Context, ids []int64, prog *catalogdb.Progress) (PurgeReport, error) {
	if prog == nil {
		prog = &catalogdb.Progress{}
	}
	var r PurgeReport
	var targets []int64
	for _, id := range ids {
		if id != catalogdb.DefaultEntityID {
			targets = append(targets, id)
		}
	}
	prog.Start(int64(len(targets)))
	for _, entityID := range targets {
		storageIDs, err := c.entityStorageIDs(ctx, entityID)
		if err != nil {
			return r, err
		}
		sr, err := c.PurgeStorages(ctx, storageIDs, &catalogdb.NoProgress)
		if err != nil {
			return r, err
		}
		r.StoragesPurged += sr.StoragesPurged

		if err := c.purgeEntityRemainder(ctx, entityID, &r); err != nil {
			return r, err
		}
		prog.Advance(1)
	}
	return r, nil
}

func (c *Catalog) entityStorageIDs(ctx context.Context, entityID int64) ([]int64, error) {
	rows, err := c.db.SQL.QueryContext(ctx,
		"SELECT id FROM storages WHERE entityId = "+c.dialect().Placeholder(1), entityID)
	if err != nil {
		return nil, catalogerr.New(catalogerr.ClassQuery, "list entity storages", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, catalogerr.New(catalogerr.ClassQuery, "scan entity storage id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// purgeEntityRemainder deletes the entity's remaining entries in batches,
// its skippedEntries rows, the entity row itself if unreferenced, and
// prunes its jobUuid.
func (c *Catalog) purgeEntityRemainder(ctx context.Context, entityID int64, r *PurgeReport) error {
	for {
		var ids []int64
		err := c.withTx(ctx, func(tx *catalogdb.Tx) error {
			rows, err := tx.SQL.QueryContext(ctx,
				"SELECT id FROM entries WHERE entityId = "+tx.Dialect.Placeholder(1), entityID)
			if err != nil {
				return catalogerr.New(catalogerr.ClassQuery, "collect entity entries to purge", err)
			}
			for rows.Next() {
				var id int64
				if err := rows.Scan(&id); err != nil {
					rows.Close()
					return catalogerr.New(catalogerr.ClassQuery, "scan entity entry to purge", err)
				}
				ids = append(ids, id)
				if len(ids) >= purgeBatchSize {
					break
				}
			}
			if err := rows.Err(); err != nil {
				rows.Close()
				return err
			}
			rows.Close()
			if len(ids) == 0 {
				return nil
			}
			return deleteEntryRows(ctx, tx, ids)
		})
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			break
		}
		r.EntriesPurged += int64(len(ids))
	}

	var jobUUID string
	err := c.withTx(ctx, func(tx *catalogdb.Tx) error {
		if _, err := tx.SQL.ExecContext(ctx,
			"DELETE FROM skippedEntries WHERE entityId = "+tx.Dialect.Placeholder(1), entityID); err != nil {
			return catalogerr.New(catalogerr.ClassConstraint, "delete skipped entries", err)
		}

		row := tx.SQL.QueryRowContext(ctx, "SELECT jobUuid FROM entities WHERE id = "+tx.Dialect.Placeholder(1), entityID)
		if err := row.Scan(&jobUUID); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return catalogerr.New(catalogerr.ClassQuery, "read entity jobUuid", err)
		}

		empty, err := entityHasNoEntriesOrNewest(ctx, tx, entityID)
		if err != nil {
			return err
		}
		if empty {
			if _, err := tx.SQL.ExecContext(ctx, "DELETE FROM entities WHERE id = "+tx.Dialect.Placeholder(1), entityID); err != nil {
				return catalogerr.New(catalogerr.ClassConstraint, "delete entity row", err)
			}
			r.EntitiesPurged++
		}
		pruned, err := pruneUUIDIfUnreferenced(ctx, tx, jobUUID)
		if err != nil {
			return err
		}
		if pruned {
			r.UUIDsPurged++
		}
		return nil
	})
	return err
}

// PurgeDeletedStorages purges every storage with deletedFlag=true.
func (c *Catalog) PurgeDeletedStorages(ctx context.Context, prog *catalogdb.Progress) (PurgeReport, error) {
	ids, err := c.idsWhere(ctx, "storages", "deletedFlag")
	if err != nil {
		return PurgeReport{}, err
	}
	return c.PurgeStorages(ctx, ids, prog)
}

// PurgeDeletedEntities purges every entity with deletedFlag=true.
func (c *Catalog) PurgeDeletedEntities(ctx context.Context, prog *catalogdb.Progress) (PurgeReport, error) {
	ids, err := c.idsWhere(ctx, "entities", "deletedFlag")
	if err != nil {
		return PurgeReport{}, err
	}
	return c.PurgeEntities(ctx, ids, prog)
}

// PurgeWithError purges every storage in the error state that has not
// itself been soft-deleted.
func (c *Catalog) PurgeWithError(ctx context.Context, prog *catalogdb.Progress) (PurgeReport, error) {
	ids, err := c.idsWhere(ctx, "storages", "NOT deletedFlag AND state = "+literalInt(int(catalogdb.StorageStateError)))
	if err != nil {
		return PurgeReport{}, err
	}
	return c.PurgeStorages(ctx, ids, prog)
}

func (c *Catalog) idsWhere(ctx context.Context, table, predicate string) ([]int64, error) {
	rows, err := c.db.SQL.QueryContext(ctx, "SELECT id FROM "+table+" WHERE "+predicate)
	if err != nil {
		return nil, catalogerr.Newf(catalogerr.ClassQuery, err, "list %s for purge", table)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, catalogerr.New(catalogerr.ClassQuery, "scan purge id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
