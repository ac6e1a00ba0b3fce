package catalog

import (
	"context"
	"database/sql"

	"github.com/idxctl/idxctl/internal/catalogdb"
	"github.com/idxctl/idxctl/internal/catalogerr"
)

// CheckDepth selects how thoroughly CheckIntegrity examines the catalog.
type CheckDepth int

const (
	// CheckQuick validates structure only (every declared table exists and
	// is queryable).
	CheckQuick CheckDepth = iota
	// CheckForeignKeys additionally validates every foreign-key edge named
	// in the schema.
	CheckForeignKeys
	// CheckFull runs CheckForeignKeys plus the orphan and duplicate audits.
	CheckFull
)

// IntegrityReport summarizes one CheckIntegrity run.
type IntegrityReport struct {
	MissingTables []string
	BrokenFKs     []string
	Orphans       OrphanReport
	Duplicates    int64
}

// Total is the sum of every finding CheckIntegrity reports, used to decide
// pass/fail per spec.md §6 ("exit code reflects findings").
func (r IntegrityReport) Total() int64 {
	return int64(len(r.MissingTables)) + int64(len(r.BrokenFKs)) + r.Orphans.Total() + r.Duplicates
}

var requiredTables = []string{
	"meta", "uuids", "entities", "storages", "entries", "entryNewest", "entryFragments",
	"fileEntries", "imageEntries", "hardlinkEntries", "directoryEntries", "linkEntries",
	"specialEntries", "skippedEntries",
}

// CheckIntegrity runs the requested depth level and, for CheckFull, also
// the orphan and duplicate audits (spec.md §4.4). Individual sub-checks
// are reported and counted even when a later sub-check fails to run; the
// aggregate status is the sum of every finding (spec.md §7).
func (c *Catalog) CheckIntegrity(ctx context.Context, depth CheckDepth) (IntegrityReport, error) {
	var report IntegrityReport

	for _, table := range requiredTables {
		var one int
		err := c.db.SQL.QueryRowContext(ctx, "SELECT 1 FROM "+table+" LIMIT 1").Scan(&one)
		if err != nil && err != sql.ErrNoRows {
			report.MissingTables = append(report.MissingTables, table)
		}
	}
	if depth == CheckQuick {
		return report, nil
	}

	brokenFKs, err := c.checkForeignKeys(ctx)
	if err != nil {
		return report, err
	}
	report.BrokenFKs = brokenFKs
	if depth == CheckForeignKeys {
		return report, nil
	}

	orphans, err := c.CheckOrphans(ctx)
	if err != nil {
		return report, err
	}
	report.Orphans = orphans

	dupes, err := c.CheckDuplicates(ctx)
	if err != nil {
		return report, err
	}
	report.Duplicates = dupes
	return report, nil
}

// checkForeignKeys counts rows whose foreign key points at a row that does
// not exist, one label per broken edge that has at least one violation.
func (c *Catalog) checkForeignKeys(ctx context.Context) ([]string, error) {
	edges := []struct {
		label string
		query string
	}{
		{"entities.uuidId", `SELECT COUNT(*) FROM entities e LEFT JOIN uuids u ON u.id = e.uuidId WHERE u.id IS NULL`},
		{"storages.entityId", `SELECT COUNT(*) FROM storages s LEFT JOIN entities e ON e.id = s.entityId WHERE e.id IS NULL`},
		{"entries.entityId", `SELECT COUNT(*) FROM entries en LEFT JOIN entities e ON e.id = en.entityId WHERE e.id IS NULL`},
		{"entryFragments.storageId", `SELECT COUNT(*) FROM entryFragments f LEFT JOIN storages s ON s.id = f.storageId WHERE s.id IS NULL`},
		{"entryFragments.entryId", `SELECT COUNT(*) FROM entryFragments f LEFT JOIN entries en ON en.id = f.entryId WHERE en.id IS NULL`},
	}
	var broken []string
	for _, edge := range edges {
		var n int64
		if err := c.db.SQL.QueryRowContext(ctx, edge.query).Scan(&n); err != nil {
			return nil, catalogerr.Newf(catalogerr.ClassQuery, err, "check foreign key %s", edge.label)
		}
		if n > 0 {
			broken = append(broken, edge.label)
		}
	}
	return broken, nil
}

// OrphanReport counts rows violating invariants 1-8 of §3, one field per
// audit performed by CheckOrphans.
type OrphanReport struct {
	FragmentsWithoutStorageName int64
	FragmentedEntriesWithoutFragment int64
	EntriesWithoutTypeRow       int64
	FragmentEntityMismatch      int64
	StoragesWithoutName         int64
	StoragesOutOfRangeState     int64
	OrphanEntities              int64
	FTSStorageOrphans           int64
	FTSEntryOrphans             int64
	NewestWithoutEntry          int64
}

// Total sums every orphan count.
func (r OrphanReport) Total() int64 {
	return r.FragmentsWithoutStorageName + r.FragmentedEntriesWithoutFragment +
		r.EntriesWithoutTypeRow + r.FragmentEntityMismatch + r.StoragesWithoutName +
		r.StoragesOutOfRangeState + r.OrphanEntities + r.FTSStorageOrphans +
		r.FTSEntryOrphans + r.NewestWithoutEntry
}

// CheckOrphans counts rows that violate invariants 1-8 (spec.md §4.4).
func (c *Catalog) CheckOrphans(ctx context.Context) (OrphanReport, error) {
	var r OrphanReport
	queries := []struct {
		dest  *int64
		query string
	}{
		{&r.FragmentsWithoutStorageName, `
			SELECT COUNT(*) FROM entryFragments f
			JOIN storages s ON s.id = f.storageId
			WHERE s.name IS NULL OR s.name = ''`},
		{&r.FragmentedEntriesWithoutFragment, `
			SELECT COUNT(*) FROM entries e
			WHERE e.type IN (1,2,5) AND NOT e.deletedFlag
			AND NOT EXISTS (SELECT 1 FROM entryFragments f WHERE f.entryId = e.id)`},
		{&r.EntriesWithoutTypeRow, `
			SELECT
				(SELECT COUNT(*) FROM entries e WHERE e.type = 1 AND NOT e.deletedFlag AND NOT EXISTS (SELECT 1 FROM fileEntries t WHERE t.entryId = e.id)) +
				(SELECT COUNT(*) FROM entries e WHERE e.type = 2 AND NOT e.deletedFlag AND NOT EXISTS (SELECT 1 FROM imageEntries t WHERE t.entryId = e.id)) +
				(SELECT COUNT(*) FROM entries e WHERE e.type = 5 AND NOT e.deletedFlag AND NOT EXISTS (SELECT 1 FROM hardlinkEntries t WHERE t.entryId = e.id)) +
				(SELECT COUNT(*) FROM entries e WHERE e.type = 3 AND NOT e.deletedFlag AND NOT EXISTS (SELECT 1 FROM directoryEntries t WHERE t.entryId = e.id)) +
				(SELECT COUNT(*) FROM entries e WHERE e.type = 4 AND NOT e.deletedFlag AND NOT EXISTS (SELECT 1 FROM linkEntries t WHERE t.entryId = e.id)) +
				(SELECT COUNT(*) FROM entries e WHERE e.type = 6 AND NOT e.deletedFlag AND NOT EXISTS (SELECT 1 FROM specialEntries t WHERE t.entryId = e.id))`},
		{&r.FragmentEntityMismatch, `
			SELECT COUNT(DISTINCT e.id) FROM entries e
			JOIN entryFragments f ON f.entryId = e.id
			JOIN storages s ON s.id = f.storageId
			WHERE e.entityId != s.entityId`},
		{&r.StoragesWithoutName, `SELECT COUNT(*) FROM storages WHERE NOT deletedFlag AND (name IS NULL OR name = '')`},
		{&r.StoragesOutOfRangeState, `SELECT COUNT(*) FROM storages WHERE NOT deletedFlag AND (state < 0 OR state > 5)`},
		{&r.OrphanEntities, `
			SELECT COUNT(*) FROM entities e
			WHERE e.id != 0
			AND NOT EXISTS (SELECT 1 FROM entries en WHERE en.entityId = e.id AND NOT en.deletedFlag)
			AND NOT EXISTS (SELECT 1 FROM storages s WHERE s.entityId = e.id AND NOT s.deletedFlag)`},
		{&r.NewestWithoutEntry, `
			SELECT COUNT(*) FROM entryNewest n
			WHERE NOT EXISTS (SELECT 1 FROM entries e WHERE e.id = n.entryId)`},
	}
	for _, q := range queries {
		if err := c.db.SQL.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return r, catalogerr.New(catalogerr.ClassQuery, "orphan audit", err)
		}
	}

	// MariaDB has no FTS_storages/FTS_entries mirror tables (it matches
	// directly against the base tables' FULLTEXT indices), so invariant 8
	// has nothing to check there.
	if c.dialect().Backend() != catalogdb.BackendMariaDB {
		ftsKey := "rowid"
		if c.dialect().Backend() == catalogdb.BackendPostgreSQL {
			ftsKey = "id"
		}
		if err := c.db.SQL.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM FTS_storages fs
			WHERE NOT EXISTS (SELECT 1 FROM storages s WHERE s.id = fs.`+ftsKey+`)`).Scan(&r.FTSStorageOrphans); err != nil {
			return r, catalogerr.New(catalogerr.ClassQuery, "orphan audit: FTS_storages", err)
		}
		if err := c.db.SQL.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM FTS_entries fe
			WHERE NOT EXISTS (SELECT 1 FROM entries e WHERE e.id = fe.`+ftsKey+`)`).Scan(&r.FTSEntryOrphans); err != nil {
			return r, catalogerr.New(catalogerr.ClassQuery, "orphan audit: FTS_entries", err)
		}
	}
	return r, nil
}

// CheckDuplicates counts adjacent duplicate storage names among
// non-deleted storages ordered by name (the database collation), per
// spec.md §4.4.
func (c *Catalog) CheckDuplicates(ctx context.Context) (int64, error) {
	rows, err := c.db.SQL.QueryContext(ctx, `
		SELECT name FROM storages WHERE NOT deletedFlag AND name IS NOT NULL AND name != '' ORDER BY name`)
	if err != nil {
		return 0, catalogerr.New(catalogerr.ClassQuery, "duplicate audit", err)
	}
	defer rows.Close()

	var count int64
	var prev string
	first := true
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return 0, catalogerr.New(catalogerr.ClassQuery, "scan duplicate audit row", err)
		}
		if !first && name == prev {
			count++
		}
		prev = name
		first = false
	}
	return count, rows.Err()
}
