package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/idxctl/idxctl/internal/catalogdb"
	"github.com/idxctl/idxctl/internal/catalogerr"
)

// schemaVersion is the integer stored in meta(name='version') identifying
// the shape of a catalog a source database was created with.
type schemaVersion int

const (
	versionUnsupportedMax schemaVersion = 5
	version6              schemaVersion = 6
	version7              schemaVersion = 7
	version8              schemaVersion = 8
)

// CurrentSchemaVersion is the version every supported importer migrates
// its source into; Import writes it to the destination's meta table.
// CreateSchema writes no meta row, so a freshly created catalog has no
// version until something is imported into it.
const CurrentSchemaVersion = 8

// versionCapabilities describes which schema features changed release to
// release. Versions 6 and 7 migrate through the same row-copy routine as 8;
// they differ only in which later tables/columns the source catalog has to
// read from, so rows the source never had are simply left at their
// zero-value defaults in the destination, to be filled in by
// CreateAggregates / CreateNewest after import.
type versionCapabilities struct {
	hasEntryNewest   bool
	hasNewestAggs    bool
	hasSkippedEntries bool
}

func capabilitiesFor(v schemaVersion) versionCapabilities {
	switch v {
	case version6:
		return versionCapabilities{}
	case version7:
		return versionCapabilities{hasEntryNewest: true}
	case version8:
		return versionCapabilities{hasEntryNewest: true, hasNewestAggs: true, hasSkippedEntries: true}
	default:
		return versionCapabilities{}
	}
}

// Import reads meta.version from src and migrates every live row into c,
// reporting progress via prog (sized ahead of time once row counts are
// known). Errors are fatal; c is left partially populated and callers that
// care must drop and recreate before retrying (spec.md §4.3).
func (c *Catalog) Import(ctx context.Context, src *Catalog, prog *catalogdb.Progress) error {
	if prog == nil {
		prog = &catalogdb.Progress{}
	}

	var raw string
	err := src.db.SQL.QueryRowContext(ctx, `SELECT value FROM meta WHERE name = 'version'`).Scan(&raw)
	if err != nil {
		return catalogerr.New(catalogerr.ClassSchema, "read source meta.version", err)
	}
	var v int
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil {
		return catalogerr.Newf(catalogerr.ClassUnknownVersion, err, "parse meta.version %q", raw)
	}
	version := schemaVersion(v)

	switch {
	case version <= versionUnsupportedMax:
		return catalogerr.Newf(catalogerr.ClassUnsupportedVersion, nil, "schema version %d is unsupported", v)
	case version != version6 && version != version7 && version != version8:
		return catalogerr.Newf(catalogerr.ClassUnknownVersion, nil, "unknown schema version %d", v)
	}

	caps := capabilitiesFor(version)

	total, err := countImportableRows(ctx, src.db.SQL)
	if err != nil {
		return err
	}
	prog.Start(total)

	return c.withTx(ctx, func(tx *catalogdb.Tx) error {
		if err := importUUIDs(ctx, src.db.SQL, tx, prog); err != nil {
			return err
		}
		if err := importEntities(ctx, src.db.SQL, tx, prog); err != nil {
			return err
		}
		if err := importStorages(ctx, src.db.SQL, tx, prog); err != nil {
			return err
		}
		if err := importEntries(ctx, src.db.SQL, tx, prog); err != nil {
			return err
		}
		if err := importFragmentsAndTypeRows(ctx, src.db.SQL, tx, prog); err != nil {
			return err
		}
		if caps.hasEntryNewest {
			if err := importEntryNewest(ctx, src.db.SQL, tx, prog); err != nil {
				return err
			}
		}
		if caps.hasSkippedEntries {
			if err := importSkippedEntries(ctx, src.db.SQL, tx, prog); err != nil {
				return err
			}
		}
		_, err := tx.SQL.ExecContext(ctx, upsertMetaSQL(tx.Dialect), "version", fmt.Sprintf("%d", CurrentSchemaVersion))
		if err != nil {
			return catalogerr.New(catalogerr.ClassSchema, "write destination meta.version", err)
		}
		return nil
	})
}

func upsertMetaSQL(d catalogdb.Dialect) string {
	switch d.Backend() {
	case catalogdb.BackendMariaDB:
		return "INSERT INTO meta(name, value) VALUES (?, ?) ON DUPLICATE KEY UPDATE value = VALUES(value)"
	case catalogdb.BackendPostgreSQL:
		return "INSERT INTO meta(name, value) VALUES ($1, $2) ON CONFLICT (name) DO UPDATE SET value = excluded.value"
	default:
		return "INSERT INTO meta(name, value) VALUES (?, ?) ON CONFLICT (name) DO UPDATE SET value = excluded.value"
	}
}

func countImportableRows(ctx context.Context, src *sql.DB) (int64, error) {
	tables := []string{"uuids", "entities", "storages", "entries", "entryFragments",
		"fileEntries", "imageEntries", "hardlinkEntries", "directoryEntries", "linkEntries", "specialEntries"}
	var total int64
	for _, t := range tables {
		var n int64
		if err := src.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", t)).Scan(&n); err != nil {
			return 0, catalogerr.Newf(catalogerr.ClassQuery, err, "count source %s", t)
		}
		total += n
	}
	return total, nil
}

func importUUIDs(ctx context.Context, src *sql.DB, dst *catalogdb.Tx, prog *catalogdb.Progress) error {
	rows, err := src.QueryContext(ctx, `SELECT id, jobUuid FROM uuids`)
	if err != nil {
		return catalogerr.New(catalogerr.ClassQuery, "read source uuids", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u catalogdb.UUID
		if err := rows.Scan(&u.ID, &u.JobUUID); err != nil {
			return catalogerr.New(catalogerr.ClassQuery, "scan source uuid", err)
		}
		if _, err := dst.SQL.ExecContext(ctx, "INSERT INTO uuids(id, jobUuid) VALUES "+catalogdb.ValuesClause(dst.Dialect, 2), u.ID, u.JobUUID); err != nil {
			return catalogerr.Newf(catalogerr.ClassConstraint, err, "insert uuid %d", u.ID)
		}
		prog.Advance(1)
	}
	return rows.Err()
}

func importEntities(ctx context.Context, src *sql.DB, dst *catalogdb.Tx, prog *catalogdb.Progress) error {
	rows, err := src.QueryContext(ctx, `
		SELECT id, uuidId, jobUuid, type, scheduleUuid, created, lockedCount, deletedFlag
		FROM entities WHERE NOT deletedFlag`)
	if err != nil {
		return catalogerr.New(catalogerr.ClassQuery, "read source entities", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e catalogdb.Entity
		var scheduleUUID sql.NullString
		if err := rows.Scan(&e.ID, &e.UUIDID, &e.JobUUID, &e.Type, &scheduleUUID, &e.Created, &e.LockedCount, &e.DeletedFlag); err != nil {
			return catalogerr.New(catalogerr.ClassQuery, "scan source entity", err)
		}
		_, err := dst.SQL.ExecContext(ctx,
			"INSERT INTO entities(id, uuidId, jobUuid, type, scheduleUuid, created, lockedCount, deletedFlag) VALUES "+catalogdb.ValuesClause(dst.Dialect, 8),
			e.ID, e.UUIDID, e.JobUUID, e.Type, scheduleUUID, e.Created, e.LockedCount, e.DeletedFlag)
		if err != nil {
			return catalogerr.Newf(catalogerr.ClassConstraint, err, "insert entity %d", e.ID)
		}
		prog.Advance(1)
	}
	return rows.Err()
}

func importStorages(ctx context.Context, src *sql.DB, dst *catalogdb.Tx, prog *catalogdb.Progress) error {
	rows, err := src.QueryContext(ctx, `
		SELECT id, uuidId, entityId, name, created, hostName, userName, comment, state, mode, lastChecked, errorMessage, deletedFlag
		FROM storages WHERE NOT deletedFlag`)
	if err != nil {
		return catalogerr.New(catalogerr.ClassQuery, "read source storages", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s catalogdb.Storage
		var hostName, userName, comment, errMsg sql.NullString
		if err := rows.Scan(&s.ID, &s.UUIDID, &s.EntityID, &s.Name, &s.Created, &hostName, &userName, &comment,
			&s.State, &s.Mode, &s.LastChecked, &errMsg, &s.DeletedFlag); err != nil {
			return catalogerr.New(catalogerr.ClassQuery, "scan source storage", err)
		}
		_, err := dst.SQL.ExecContext(ctx,
			"INSERT INTO storages(id, uuidId, entityId, name, created, hostName, userName, comment, state, mode, lastChecked, errorMessage, deletedFlag) VALUES "+catalogdb.ValuesClause(dst.Dialect, 13),
			s.ID, s.UUIDID, s.EntityID, s.Name, s.Created, hostName, userName, comment,
			s.State, s.Mode, s.LastChecked, errMsg, s.DeletedFlag)
		if err != nil {
			return catalogerr.Newf(catalogerr.ClassConstraint, err, "insert storage %d", s.ID)
		}
		prog.Advance(1)
	}
	return rows.Err()
}

func importEntries(ctx context.Context, src *sql.DB, dst *catalogdb.Tx, prog *catalogdb.Progress) error {
	rows, err := src.QueryContext(ctx, `
		SELECT id, uuidId, entityId, type, name, timeLastChanged, userId, groupId, permission, size, deletedFlag
		FROM entries WHERE NOT deletedFlag`)
	if err != nil {
		return catalogerr.New(catalogerr.ClassQuery, "read source entries", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e catalogdb.Entry
		if err := rows.Scan(&e.ID, &e.UUIDID, &e.EntityID, &e.Type, &e.Name, &e.TimeLastChanged,
			&e.UserID, &e.GroupID, &e.Permission, &e.Size, &e.DeletedFlag); err != nil {
			return catalogerr.New(catalogerr.ClassQuery, "scan source entry", err)
		}
		_, err := dst.SQL.ExecContext(ctx,
			"INSERT INTO entries(id, uuidId, entityId, type, name, timeLastChanged, userId, groupId, permission, size, deletedFlag) VALUES "+catalogdb.ValuesClause(dst.Dialect, 11),
			e.ID, e.UUIDID, e.EntityID, e.Type, e.Name, e.TimeLastChanged, e.UserID, e.GroupID, e.Permission, e.Size, e.DeletedFlag)
		if err != nil {
			return catalogerr.Newf(catalogerr.ClassConstraint, err, "insert entry %d", e.ID)
		}
		prog.Advance(1)
	}
	return rows.Err()
}

func importFragmentsAndTypeRows(ctx context.Context, src *sql.DB, dst *catalogdb.Tx, prog *catalogdb.Progress) error {
	frows, err := src.QueryContext(ctx, `SELECT id, storageId, entryId, fragOffset, size FROM entryFragments`)
	if err != nil {
		return catalogerr.New(catalogerr.ClassQuery, "read source entryFragments", err)
	}
	for frows.Next() {
		var f catalogdb.EntryFragment
		if err := frows.Scan(&f.ID, &f.StorageID, &f.EntryID, &f.Offset, &f.Size); err != nil {
			frows.Close()
			return catalogerr.New(catalogerr.ClassQuery, "scan source fragment", err)
		}
		if _, err := dst.SQL.ExecContext(ctx,
			"INSERT INTO entryFragments(id, storageId, entryId, fragOffset, size) VALUES "+catalogdb.ValuesClause(dst.Dialect, 5),
			f.ID, f.StorageID, f.EntryID, f.Offset, f.Size); err != nil {
			frows.Close()
			return catalogerr.Newf(catalogerr.ClassConstraint, err, "insert fragment %d", f.ID)
		}
		prog.Advance(1)
	}
	if err := frows.Err(); err != nil {
		frows.Close()
		return err
	}
	frows.Close()

	for _, spec := range []struct{ table, cols string }{
		{"fileEntries", "id, entryId, size"},
		{"imageEntries", "id, entryId, size"},
		{"hardlinkEntries", "id, entryId, size"},
	} {
		if err := copyRows3(ctx, src, dst, spec.table, prog); err != nil {
			return err
		}
	}
	for _, table := range []string{"directoryEntries", "linkEntries", "specialEntries"} {
		if err := copyRowsStorageEntry(ctx, src, dst, table, prog); err != nil {
			return err
		}
	}
	return nil
}

func copyRows3(ctx context.Context, src *sql.DB, dst *catalogdb.Tx, table string, prog *catalogdb.Progress) error {
	rows, err := src.QueryContext(ctx, fmt.Sprintf("SELECT id, entryId, size FROM %s", table))
	if err != nil {
		return catalogerr.Newf(catalogerr.ClassQuery, err, "read source %s", table)
	}
	defer rows.Close()
	for rows.Next() {
		var id, entryID, size int64
		if err := rows.Scan(&id, &entryID, &size); err != nil {
			return catalogerr.Newf(catalogerr.ClassQuery, err, "scan source %s", table)
		}
		if _, err := dst.SQL.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s(id, entryId, size) VALUES %s", table, catalogdb.ValuesClause(dst.Dialect, 3)), id, entryID, size); err != nil {
			return catalogerr.Newf(catalogerr.ClassConstraint, err, "insert %s %d", table, id)
		}
		prog.Advance(1)
	}
	return rows.Err()
}

func copyRowsStorageEntry(ctx context.Context, src *sql.DB, dst *catalogdb.Tx, table string, prog *catalogdb.Progress) error {
	rows, err := src.QueryContext(ctx, fmt.Sprintf("SELECT id, storageId, entryId FROM %s", table))
	if err != nil {
		return catalogerr.Newf(catalogerr.ClassQuery, err, "read source %s", table)
	}
	defer rows.Close()
	for rows.Next() {
		var id, storageID, entryID int64
		if err := rows.Scan(&id, &storageID, &entryID); err != nil {
			return catalogerr.Newf(catalogerr.ClassQuery, err, "scan source %s", table)
		}
		if _, err := dst.SQL.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s(id, storageId, entryId) VALUES %s", table, catalogdb.ValuesClause(dst.Dialect, 3)), id, storageID, entryID); err != nil {
			return catalogerr.Newf(catalogerr.ClassConstraint, err, "insert %s %d", table, id)
		}
		prog.Advance(1)
	}
	return rows.Err()
}

func importEntryNewest(ctx context.Context, src *sql.DB, dst *catalogdb.Tx, prog *catalogdb.Progress) error {
	rows, err := src.QueryContext(ctx, `
		SELECT id, uuidId, entityId, entryId, type, name, timeLastChanged, userId, groupId, permission, size, deletedFlag
		FROM entryNewest`)
	if err != nil {
		return catalogerr.New(catalogerr.ClassQuery, "read source entryNewest", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n catalogdb.EntryNewest
		var entryID int64
		if err := rows.Scan(&n.ID, &n.UUIDID, &n.EntityID, &entryID, &n.Type, &n.Name, &n.TimeLastChanged,
			&n.UserID, &n.GroupID, &n.Permission, &n.Size, &n.DeletedFlag); err != nil {
			return catalogerr.New(catalogerr.ClassQuery, "scan source entryNewest", err)
		}
		if _, err := dst.SQL.ExecContext(ctx,
			"INSERT INTO entryNewest(id, uuidId, entityId, entryId, type, name, timeLastChanged, userId, groupId, permission, size, deletedFlag) VALUES "+catalogdb.ValuesClause(dst.Dialect, 12),
			n.ID, n.UUIDID, n.EntityID, entryID, n.Type, n.Name, n.TimeLastChanged, n.UserID, n.GroupID, n.Permission, n.Size, n.DeletedFlag); err != nil {
			return catalogerr.Newf(catalogerr.ClassConstraint, err, "insert entryNewest %d", n.ID)
		}
		prog.Advance(1)
	}
	return rows.Err()
}

func importSkippedEntries(ctx context.Context, src *sql.DB, dst *catalogdb.Tx, prog *catalogdb.Progress) error {
	rows, err := src.QueryContext(ctx, `SELECT id, entityId, storageId, name, reason, created FROM skippedEntries`)
	if err != nil {
		return catalogerr.New(catalogerr.ClassQuery, "read source skippedEntries", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, entityID, created int64
		var storageID sql.NullInt64
		var name, reason string
		if err := rows.Scan(&id, &entityID, &storageID, &name, &reason, &created); err != nil {
			return catalogerr.New(catalogerr.ClassQuery, "scan source skippedEntries", err)
		}
		if _, err := dst.SQL.ExecContext(ctx,
			"INSERT INTO skippedEntries(id, entityId, storageId, name, reason, created) VALUES "+catalogdb.ValuesClause(dst.Dialect, 6),
			id, entityID, storageID, name, reason, created); err != nil {
			return catalogerr.Newf(catalogerr.ClassConstraint, err, "insert skippedEntries %d", id)
		}
		prog.Advance(1)
	}
	return rows.Err()
}
