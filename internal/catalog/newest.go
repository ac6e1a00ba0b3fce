package catalog

import (
	"context"
	"database/sql"

	"github.com/idxctl/idxctl/internal/catalogdb"
	"github.com/idxctl/idxctl/internal/catalogerr"
)

// newestCandidate is one row collected while scanning a storage's owned
// entries for the Newest-Entry Projector (spec.md §4.5).
type newestCandidate struct {
	entryID         int64
	uuidID          int64
	entityID        int64
	entryType       catalogdb.EntryType
	name            string
	timeLastChanged int64
	userID          int64
	groupID         int64
	permission      int64
	size            int64
}

// unionOwnedEntriesQuery collects every live entry a storage owns across
// the four relationship tables (fragments for file/image/hardlink, direct
// storageId for directory/link/special), ordered latest-first with entry
// id as the deterministic tie-break spec.md §9 recommends for equal
// timestamps.
const unionOwnedEntriesQuery = `
	SELECT e.id, e.uuidId, e.entityId, e.type, e.name, e.timeLastChanged, e.userId, e.groupId, e.permission, e.size
	FROM entries e
	JOIN entryFragments f ON f.entryId = e.id
	WHERE f.storageId = ? AND NOT e.deletedFlag
	UNION
	SELECT e.id, e.uuidId, e.entityId, e.type, e.name, e.timeLastChanged, e.userId, e.groupId, e.permission, e.size
	FROM entries e
	JOIN directoryEntries d ON d.entryId = e.id
	WHERE d.storageId = ? AND NOT e.deletedFlag
	UNION
	SELECT e.id, e.uuidId, e.entityId, e.type, e.name, e.timeLastChanged, e.userId, e.groupId, e.permission, e.size
	FROM entries e
	JOIN linkEntries l ON l.entryId = e.id
	WHERE l.storageId = ? AND NOT e.deletedFlag
	UNION
	SELECT e.id, e.uuidId, e.entityId, e.type, e.name, e.timeLastChanged, e.userId, e.groupId, e.permission, e.size
	FROM entries e
	JOIN specialEntries sp ON sp.entryId = e.id
	WHERE sp.storageId = ? AND NOT e.deletedFlag
	ORDER BY timeLastChanged DESC, id DESC`

// unionOwnedLiveEntriesQuery is unionOwnedEntriesQuery narrowed to a storage
// that is itself still live. addToNewest uses this variant so a storage
// that was just soft-deleted can never project a contribution back into
// entryNewest; removeFromNewest still needs the unfiltered query above to
// find the names a soft-deleted storage used to own, so the two cannot
// share one query.
const unionOwnedLiveEntriesQuery = `
	SELECT e.id, e.uuidId, e.entityId, e.type, e.name, e.timeLastChanged, e.userId, e.groupId, e.permission, e.size
	FROM entries e
	JOIN entryFragments f ON f.entryId = e.id
	JOIN storages s ON s.id = f.storageId
	WHERE f.storageId = ? AND NOT e.deletedFlag AND NOT s.deletedFlag
	UNION
	SELECT e.id, e.uuidId, e.entityId, e.type, e.name, e.timeLastChanged, e.userId, e.groupId, e.permission, e.size
	FROM entries e
	JOIN directoryEntries d ON d.entryId = e.id
	JOIN storages s ON s.id = d.storageId
	WHERE d.storageId = ? AND NOT e.deletedFlag AND NOT s.deletedFlag
	UNION
	SELECT e.id, e.uuidId, e.entityId, e.type, e.name, e.timeLastChanged, e.userId, e.groupId, e.permission, e.size
	FROM entries e
	JOIN linkEntries l ON l.entryId = e.id
	JOIN storages s ON s.id = l.storageId
	WHERE l.storageId = ? AND NOT e.deletedFlag AND NOT s.deletedFlag
	UNION
	SELECT e.id, e.uuidId, e.entityId, e.type, e.name, e.timeLastChanged, e.userId, e.groupId, e.permission, e.size
	FROM entries e
	JOIN specialEntries sp ON sp.entryId = e.id
	JOIN storages s ON s.id = sp.storageId
	WHERE sp.storageId = ? AND NOT e.deletedFlag AND NOT s.deletedFlag
	ORDER BY timeLastChanged DESC, id DESC`

// CreateNewest rebuilds entryNewest. An empty storageIDs performs a full
// rebuild: purge entryNewest in batches of 1000 inside one exclusive
// transaction, then addToNewest for every live storage. A non-empty
// storageIDs performs the incremental path: removeFromNewest then
// addToNewest for each given storage (spec.md §4.5).
func (c *Catalog) CreateNewest(ctx context.Context, storageIDs []int64, prog *catalogdb.Progress) error {
	if prog == nil {
		prog = &catalogdb.Progress{}
	}
	if len(storageIDs) == 0 {
		return c.rebuildNewest(ctx, prog)
	}
	prog.Start(int64(len(storageIDs)))
	return c.withTx(ctx, func(tx *catalogdb.Tx) error {
		for _, id := range storageIDs {
			if err := c.removeFromNewest(ctx, tx, id); err != nil {
				return err
			}
			if err := c.addToNewest(ctx, tx, id); err != nil {
				return err
			}
			prog.Advance(1)
		}
		return nil
	})
}

func (c *Catalog) rebuildNewest(ctx context.Context, prog *catalogdb.Progress) error {
	var storageIDs []int64
	rows, err := c.db.SQL.QueryContext(ctx, `SELECT id FROM storages WHERE NOT deletedFlag`)
	if err != nil {
		return catalogerr.New(catalogerr.ClassQuery, "list live storages", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return catalogerr.New(catalogerr.ClassQuery, "scan live storage id", err)
		}
		storageIDs = append(storageIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	prog.Start(int64(len(storageIDs)) + 1)
	return c.withTx(ctx, func(tx *catalogdb.Tx) error {
		if err := purgeNewestInBatches(ctx, tx); err != nil {
			return err
		}
		prog.Advance(1)
		for _, id := range storageIDs {
			if err := c.addToNewest(ctx, tx, id); err != nil {
				return err
			}
			prog.Advance(1)
		}
		return nil
	})
}

func purgeNewestInBatches(ctx context.Context, tx *catalogdb.Tx) error {
	for {
		var ids []int64
		rows, err := tx.SQL.QueryContext(ctx, "SELECT id FROM entryNewest LIMIT 1000")
		if err != nil {
			return catalogerr.New(catalogerr.ClassQuery, "collect entryNewest batch", err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return catalogerr.New(catalogerr.ClassQuery, "scan entryNewest id", err)
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
		if len(ids) == 0 {
			return nil
		}
		clause, args := catalogdb.InClause(tx.Dialect, "id", ids, 1)
		if _, err := tx.SQL.ExecContext(ctx, "DELETE FROM entryNewest WHERE "+clause, args...); err != nil {
			return catalogerr.New(catalogerr.ClassQuery, "purge entryNewest batch", err)
		}
	}
}

// addToNewest collects storageID's owned entries and, for each one whose
// timestamp beats the current newest row with the same name, replaces or
// inserts the newest row.
func (c *Catalog) addToNewest(ctx context.Context, tx *catalogdb.Tx, storageID int64) error {
	candidates, err := collectOwnedLiveEntries(ctx, tx, storageID)
	if err != nil {
		return err
	}
	for _, cand := range candidates {
		var existingID, existingTime int64
		err := tx.SQL.QueryRowContext(ctx, `SELECT entryId, timeLastChanged FROM entryNewest WHERE name = `+tx.Dialect.Placeholder(1),
			cand.name).Scan(&existingID, &existingTime)
		switch {
		case err == sql.ErrNoRows:
			if err := insertNewest(ctx, tx, cand); err != nil {
				return err
			}
		case err != nil:
			return catalogerr.New(catalogerr.ClassQuery, "lookup current newest", err)
		case cand.timeLastChanged > existingTime:
			if err := replaceNewest(ctx, tx, cand); err != nil {
				return err
			}
		}
	}
	return nil
}

// removeFromNewest drops storageID's contribution to entryNewest and
// replaces each affected name with the latest remaining contributor owned
// by some other live storage, if any.
func (c *Catalog) removeFromNewest(ctx context.Context, tx *catalogdb.Tx, storageID int64) error {
	owned, err := collectOwnedEntries(ctx, tx, storageID)
	if err != nil {
		return err
	}
	names := make(map[string]bool)
	for _, o := range owned {
		names[o.name] = true
	}
	for name := range names {
		if _, err := tx.SQL.ExecContext(ctx, `DELETE FROM entryNewest WHERE name = `+tx.Dialect.Placeholder(1), name); err != nil {
			return catalogerr.New(catalogerr.ClassQuery, "delete newest row", err)
		}
		replacement, err := latestContributorExcluding(ctx, tx, name, storageID)
		if err != nil {
			return err
		}
		if replacement != nil {
			if err := insertNewest(ctx, tx, *replacement); err != nil {
				return err
			}
		}
	}
	return nil
}

func collectOwnedEntries(ctx context.Context, tx *catalogdb.Tx, storageID int64) ([]newestCandidate, error) {
	rows, err := tx.SQL.QueryContext(ctx, unionOwnedEntriesQuery, storageID, storageID, storageID, storageID)
	if err != nil {
		return nil, catalogerr.New(catalogerr.ClassQuery, "collect owned entries", err)
	}
	defer rows.Close()
	var out []newestCandidate
	for rows.Next() {
		var cand newestCandidate
		if err := rows.Scan(&cand.entryID, &cand.uuidID, &cand.entityID, &cand.entryType, &cand.name,
			&cand.timeLastChanged, &cand.userID, &cand.groupID, &cand.permission, &cand.size); err != nil {
			return nil, catalogerr.New(catalogerr.ClassQuery, "scan owned entry", err)
		}
		out = append(out, cand)
	}
	return out, rows.Err()
}

// collectOwnedLiveEntries is collectOwnedEntries restricted to storageID
// being a live storage; it returns no rows at all once storageID has been
// soft-deleted.
func collectOwnedLiveEntries(ctx context.Context, tx *catalogdb.Tx, storageID int64) ([]newestCandidate, error) {
	rows, err := tx.SQL.QueryContext(ctx, unionOwnedLiveEntriesQuery, storageID, storageID, storageID, storageID)
	if err != nil {
		return nil, catalogerr.New(catalogerr.ClassQuery, "collect owned live entries", err)
	}
	defer rows.Close()
	var out []newestCandidate
	for rows.Next() {
		var cand newestCandidate
		if err := rows.Scan(&cand.entryID, &cand.uuidID, &cand.entityID, &cand.entryType, &cand.name,
			&cand.timeLastChanged, &cand.userID, &cand.groupID, &cand.permission, &cand.size); err != nil {
			return nil, catalogerr.New(catalogerr.ClassQuery, "scan owned live entry", err)
		}
		out = append(out, cand)
	}
	return out, rows.Err()
}

// latestContributorExcluding finds the latest-timestamped live entry with
// the given name, owned by some live storage other than excludeStorageID,
// across all four relationship tables.
func latestContributorExcluding(ctx context.Context, tx *catalogdb.Tx, name string, excludeStorageID int64) (*newestCandidate, error) {
	query := `
		SELECT e.id, e.uuidId, e.entityId, e.type, e.name, e.timeLastChanged, e.userId, e.groupId, e.permission, e.size
		FROM entries e
		JOIN entryFragments f ON f.entryId = e.id
		JOIN storages s ON s.id = f.storageId
		WHERE e.name = ` + tx.Dialect.Placeholder(1) + ` AND NOT e.deletedFlag AND NOT s.deletedFlag AND s.id != ` + tx.Dialect.Placeholder(2) + `
		UNION
		SELECT e.id, e.uuidId, e.entityId, e.type, e.name, e.timeLastChanged, e.userId, e.groupId, e.permission, e.size
		FROM entries e
		JOIN directoryEntries d ON d.entryId = e.id
		JOIN storages s ON s.id = d.storageId
		WHERE e.name = ` + tx.Dialect.Placeholder(3) + ` AND NOT e.deletedFlag AND NOT s.deletedFlag AND s.id != ` + tx.Dialect.Placeholder(4) + `
		UNION
		SELECT e.id, e.uuidId, e.entityId, e.type, e.name, e.timeLastChanged, e.userId, e.groupId, e.permission, e.size
		FROM entries e
		JOIN linkEntries l ON l.entryId = e.id
		JOIN storages s ON s.id = l.storageId
		WHERE e.name = ` + tx.Dialect.Placeholder(5) + ` AND NOT e.deletedFlag AND NOT s.deletedFlag AND s.id != ` + tx.Dialect.Placeholder(6) + `
		UNION
		SELECT e.id, e.uuidId, e.entityId, e.type, e.name, e.timeLastChanged, e.userId, e.groupId, e.permission, e.size
		FROM entries e
		JOIN specialEntries sp ON sp.entryId = e.id
		JOIN storages s ON s.id = sp.storageId
		WHERE e.name = ` + tx.Dialect.Placeholder(7) + ` AND NOT e.deletedFlag AND NOT s.deletedFlag AND s.id != ` + tx.Dialect.Placeholder(8) + `
		ORDER BY timeLastChanged DESC, id DESC`

	rows, err := tx.SQL.QueryContext(ctx, query,
		name, excludeStorageID, name, excludeStorageID, name, excludeStorageID, name, excludeStorageID)
	if err != nil {
		return nil, catalogerr.New(catalogerr.ClassQuery, "find replacement newest contributor", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	var cand newestCandidate
	if err := rows.Scan(&cand.entryID, &cand.uuidID, &cand.entityID, &cand.entryType, &cand.name,
		&cand.timeLastChanged, &cand.userID, &cand.groupID, &cand.permission, &cand.size); err != nil {
		return nil, catalogerr.New(catalogerr.ClassQuery, "scan replacement newest contributor", err)
	}
	return &cand, nil
}

func insertNewest(ctx context.Context, tx *catalogdb.Tx, cand newestCandidate) error {
	_, err := tx.SQL.ExecContext(ctx,
		"INSERT INTO entryNewest(uuidId, entityId, entryId, type, name, timeLastChanged, userId, groupId, permission, size, deletedFlag) VALUES "+
			catalogdb.ValuesClause(tx.Dialect, 11),
		cand.uuidID, cand.entityID, cand.entryID, cand.entryType, cand.name, cand.timeLastChanged,
		cand.userID, cand.groupID, cand.permission, cand.size, false)
	if err != nil {
		return catalogerr.Newf(catalogerr.ClassConstraint, err, "insert newest row for %q", cand.name)
	}
	return nil
}

func replaceNewest(ctx context.Context, tx *catalogdb.Tx, cand newestCandidate) error {
	_, err := tx.SQL.ExecContext(ctx, `
		UPDATE entryNewest SET
			uuidId = `+tx.Dialect.Placeholder(1)+`, entityId = `+tx.Dialect.Placeholder(2)+`, entryId = `+tx.Dialect.Placeholder(3)+`,
			type = `+tx.Dialect.Placeholder(4)+`, timeLastChanged = `+tx.Dialect.Placeholder(5)+`, userId = `+tx.Dialect.Placeholder(6)+`,
			groupId = `+tx.Dialect.Placeholder(7)+`, permission = `+tx.Dialect.Placeholder(8)+`, size = `+tx.Dialect.Placeholder(9)+`
		WHERE name = `+tx.Dialect.Placeholder(10),
		cand.uuidID, cand.entityID, cand.entryID, cand.entryType, cand.timeLastChanged,
		cand.userID, cand.groupID, cand.permission, cand.size, cand.name)
	if err != nil {
		return catalogerr.Newf(catalogerr.ClassConstraint, err, "replace newest row for %q", cand.name)
	}
	return nil
}
