// Package sqlitedialect implements catalogdb.Dialect for the embedded file
// backend (spec.md §6: "[sqlite:]<path>"), using the pure-Go
// ncruces/go-sqlite3 driver and its native FTS5 module.
package sqlitedialect

import (
	"context"
	"fmt"

	"github.com/idxctl/idxctl/internal/catalogdb"
	"github.com/idxctl/idxctl/internal/catalogdb/fts"
)

// Dialect is the SQLite/embedded implementation of catalogdb.Dialect.
type Dialect struct{}

// New returns the embedded-backend dialect.
func New() *Dialect { return &Dialect{} }

func (Dialect) Backend() catalogdb.Backend { return catalogdb.BackendSQLite }

func (Dialect) Placeholder(int) string { return "?" }

func (Dialect) ExplainKeyword() string { return "EXPLAIN" }

func (Dialect) CanDDLInTransaction() bool { return true }

func (Dialect) SupportsAnalyzeCommand() bool { return true }

// CreateTableStatements returns DDL in FK-safe order: referenced tables
// (uuid, entity, storage, entry) before the tables that reference them.
func (Dialect) CreateTableStatements() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS meta (
			name  TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS uuids (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			jobUuid  TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS entities (
			id                        INTEGER PRIMARY KEY,
			uuidId                    INTEGER NOT NULL REFERENCES uuids(id),
			jobUuid                   TEXT NOT NULL,
			type                      INTEGER NOT NULL DEFAULT 0,
			scheduleUuid              TEXT,
			created                   INTEGER NOT NULL DEFAULT 0,
			lockedCount               INTEGER NOT NULL DEFAULT 0,
			deletedFlag               INTEGER NOT NULL DEFAULT 0,
			totalFileCount            INTEGER NOT NULL DEFAULT 0,
			totalImageCount           INTEGER NOT NULL DEFAULT 0,
			totalDirectoryCount       INTEGER NOT NULL DEFAULT 0,
			totalLinkCount            INTEGER NOT NULL DEFAULT 0,
			totalHardlinkCount        INTEGER NOT NULL DEFAULT 0,
			totalSpecialCount         INTEGER NOT NULL DEFAULT 0,
			totalFileSize             INTEGER NOT NULL DEFAULT 0,
			totalImageSize            INTEGER NOT NULL DEFAULT 0,
			totalHardlinkSize         INTEGER NOT NULL DEFAULT 0,
			totalEntryCount           INTEGER NOT NULL DEFAULT 0,
			totalEntrySize            INTEGER NOT NULL DEFAULT 0,
			totalFileCountNewest      INTEGER NOT NULL DEFAULT 0,
			totalImageCountNewest     INTEGER NOT NULL DEFAULT 0,
			totalDirectoryCountNewest INTEGER NOT NULL DEFAULT 0,
			totalLinkCountNewest      INTEGER NOT NULL DEFAULT 0,
			totalHardlinkCountNewest  INTEGER NOT NULL DEFAULT 0,
			totalSpecialCountNewest   INTEGER NOT NULL DEFAULT 0,
			totalFileSizeNewest       INTEGER NOT NULL DEFAULT 0,
			totalImageSizeNewest      INTEGER NOT NULL DEFAULT 0,
			totalHardlinkSizeNewest   INTEGER NOT NULL DEFAULT 0,
			totalEntryCountNewest     INTEGER NOT NULL DEFAULT 0,
			totalEntrySizeNewest      INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS storages (
			id                        INTEGER PRIMARY KEY,
			uuidId                    INTEGER NOT NULL REFERENCES uuids(id),
			entityId                  INTEGER NOT NULL REFERENCES entities(id),
			name                      TEXT,
			created                   INTEGER NOT NULL DEFAULT 0,
			hostName                  TEXT,
			userName                  TEXT,
			comment                   TEXT,
			state                     INTEGER NOT NULL DEFAULT 0,
			mode                      INTEGER NOT NULL DEFAULT 0,
			lastChecked               INTEGER NOT NULL DEFAULT 0,
			errorMessage              TEXT,
			deletedFlag               INTEGER NOT NULL DEFAULT 0,
			totalFileCount            INTEGER NOT NULL DEFAULT 0,
			totalImageCount           INTEGER NOT NULL DEFAULT 0,
			totalDirectoryCount       INTEGER NOT NULL DEFAULT 0,
			totalLinkCount            INTEGER NOT NULL DEFAULT 0,
			totalHardlinkCount        INTEGER NOT NULL DEFAULT 0,
			totalSpecialCount         INTEGER NOT NULL DEFAULT 0,
			totalFileSize             INTEGER NOT NULL DEFAULT 0,
			totalImageSize            INTEGER NOT NULL DEFAULT 0,
			totalHardlinkSize         INTEGER NOT NULL DEFAULT 0,
			totalEntryCount           INTEGER NOT NULL DEFAULT 0,
			totalEntrySize            INTEGER NOT NULL DEFAULT 0,
			totalFileCountNewest      INTEGER NOT NULL DEFAULT 0,
			totalImageCountNewest     INTEGER NOT NULL DEFAULT 0,
			totalDirectoryCountNewest INTEGER NOT NULL DEFAULT 0,
			totalLinkCountNewest      INTEGER NOT NULL DEFAULT 0,
			totalHardlinkCountNewest  INTEGER NOT NULL DEFAULT 0,
			totalSpecialCountNewest   INTEGER NOT NULL DEFAULT 0,
			totalFileSizeNewest       INTEGER NOT NULL DEFAULT 0,
			totalImageSizeNewest      INTEGER NOT NULL DEFAULT 0,
			totalHardlinkSizeNewest   INTEGER NOT NULL DEFAULT 0,
			totalEntryCountNewest     INTEGER NOT NULL DEFAULT 0,
			totalEntrySizeNewest      INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			id              INTEGER PRIMARY KEY,
			uuidId          INTEGER NOT NULL REFERENCES uuids(id),
			entityId        INTEGER NOT NULL REFERENCES entities(id),
			type            INTEGER NOT NULL DEFAULT 0,
			name            TEXT NOT NULL,
			timeLastChanged INTEGER NOT NULL DEFAULT 0,
			userId          INTEGER NOT NULL DEFAULT 0,
			groupId         INTEGER NOT NULL DEFAULT 0,
			permission      INTEGER NOT NULL DEFAULT 0,
			size            INTEGER NOT NULL DEFAULT 0,
			deletedFlag     INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS entryNewest (
			id              INTEGER PRIMARY KEY,
			uuidId          INTEGER NOT NULL,
			entityId        INTEGER NOT NULL,
			entryId         INTEGER NOT NULL,
			type            INTEGER NOT NULL DEFAULT 0,
			name            TEXT NOT NULL UNIQUE,
			timeLastChanged INTEGER NOT NULL DEFAULT 0,
			userId          INTEGER NOT NULL DEFAULT 0,
			groupId         INTEGER NOT NULL DEFAULT 0,
			permission      INTEGER NOT NULL DEFAULT 0,
			size            INTEGER NOT NULL DEFAULT 0,
			deletedFlag     INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS entryFragments (
			id        INTEGER PRIMARY KEY,
			storageId INTEGER NOT NULL REFERENCES storages(id),
			entryId   INTEGER NOT NULL REFERENCES entries(id),
			fragOffset INTEGER NOT NULL DEFAULT 0,
			size      INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS fileEntries (
			id      INTEGER PRIMARY KEY,
			entryId INTEGER NOT NULL UNIQUE REFERENCES entries(id),
			size    INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS imageEntries (
			id      INTEGER PRIMARY KEY,
			entryId INTEGER NOT NULL UNIQUE REFERENCES entries(id),
			size    INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS hardlinkEntries (
			id      INTEGER PRIMARY KEY,
			entryId INTEGER NOT NULL UNIQUE REFERENCES entries(id),
			size    INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS directoryEntries (
			id        INTEGER PRIMARY KEY,
			storageId INTEGER NOT NULL REFERENCES storages(id),
			entryId   INTEGER NOT NULL UNIQUE REFERENCES entries(id)
		)`,
		`CREATE TABLE IF NOT EXISTS linkEntries (
			id        INTEGER PRIMARY KEY,
			storageId INTEGER NOT NULL REFERENCES storages(id),
			entryId   INTEGER NOT NULL UNIQUE REFERENCES entries(id)
		)`,
		`CREATE TABLE IF NOT EXISTS specialEntries (
			id        INTEGER PRIMARY KEY,
			storageId INTEGER NOT NULL REFERENCES storages(id),
			entryId   INTEGER NOT NULL UNIQUE REFERENCES entries(id)
		)`,
		`CREATE TABLE IF NOT EXISTS skippedEntries (
			id       INTEGER PRIMARY KEY,
			entityId INTEGER NOT NULL REFERENCES entities(id),
			storageId INTEGER,
			name     TEXT NOT NULL,
			reason   TEXT,
			created  INTEGER NOT NULL DEFAULT 0
		)`,
	}
}

func (Dialect) CreateViewStatements() []string { return nil }

// CreateIndexStatements is not a no-op on the embedded backend: index
// creation is expressed as separate CREATE INDEX statements here because
// SQLite does not support inline named indices in CREATE TABLE, so
// create-indices actually (re)creates them, unlike the MariaDB dialect.
func (Dialect) CreateIndexStatements() []string {
	return []string{
		`CREATE INDEX IF NOT EXISTS idx_entities_uuidId ON entities(uuidId)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_deletedFlag ON entities(deletedFlag)`,
		`CREATE INDEX IF NOT EXISTS idx_storages_entityId ON storages(entityId)`,
		`CREATE INDEX IF NOT EXISTS idx_storages_name ON storages(name)`,
		`CREATE INDEX IF NOT EXISTS idx_storages_deletedFlag ON storages(deletedFlag)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_entityId ON entries(entityId)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_name ON entries(name)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_type ON entries(type)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_deletedFlag ON entries(deletedFlag)`,
		`CREATE INDEX IF NOT EXISTS idx_entryFragments_storageId ON entryFragments(storageId)`,
		`CREATE INDEX IF NOT EXISTS idx_entryFragments_entryId ON entryFragments(entryId)`,
		`CREATE INDEX IF NOT EXISTS idx_directoryEntries_storageId ON directoryEntries(storageId)`,
		`CREATE INDEX IF NOT EXISTS idx_linkEntries_storageId ON linkEntries(storageId)`,
		`CREATE INDEX IF NOT EXISTS idx_specialEntries_storageId ON specialEntries(storageId)`,
		`CREATE INDEX IF NOT EXISTS idx_entryNewest_name ON entryNewest(name)`,
		`CREATE INDEX IF NOT EXISTS idx_entryNewest_entryId ON entryNewest(entryId)`,
		`CREATE INDEX IF NOT EXISTS idx_skippedEntries_entityId ON skippedEntries(entityId)`,
	}
}

func (Dialect) CreateTriggerStatements() []string {
	return []string{
		// Keep entries' denormalized uuidId column in sync with the owning
		// entity when entries.entityId is repaired by the Cleaner (§4.7 step 4).
		`CREATE TRIGGER IF NOT EXISTS trg_entries_entityId_jobUuid
			AFTER UPDATE OF entityId ON entries
			BEGIN
				UPDATE entries SET uuidId = (SELECT uuidId FROM entities WHERE id = NEW.entityId)
				WHERE id = NEW.id;
			END`,
	}
}

var tableOrder = []string{
	"skippedEntries", "specialEntries", "linkEntries", "directoryEntries",
	"hardlinkEntries", "imageEntries", "fileEntries", "entryFragments",
	"entryNewest", "entries", "storages", "entities", "uuids", "meta",
}

var triggerNames = []string{"trg_entries_entityId_jobUuid"}

var indexNames = []string{
	"idx_entities_uuidId", "idx_entities_deletedFlag", "idx_storages_entityId",
	"idx_storages_name", "idx_storages_deletedFlag", "idx_entries_entityId",
	"idx_entries_name", "idx_entries_type", "idx_entries_deletedFlag",
	"idx_entryFragments_storageId", "idx_entryFragments_entryId",
	"idx_directoryEntries_storageId", "idx_linkEntries_storageId",
	"idx_specialEntries_storageId", "idx_entryNewest_name",
	"idx_entryNewest_entryId", "idx_skippedEntries_entityId",
}

// DropStatements returns DDL to drop every object of kind, leaf tables
// before the tables they reference so FK-aware backends (dolt-compatible
// modes, future strict builds) don't choke on a dangling reference.
func (d Dialect) DropStatements(kind catalogdb.ObjectKind) []string {
	switch kind {
	case catalogdb.KindTable:
		stmts := make([]string, 0, len(tableOrder)+2)
		stmts = append(stmts, `DROP TABLE IF EXISTS FTS_storages`, `DROP TABLE IF EXISTS FTS_entries`)
		for _, t := range tableOrder {
			stmts = append(stmts, fmt.Sprintf("DROP TABLE IF EXISTS %s", t))
		}
		return stmts
	case catalogdb.KindView:
		return nil
	case catalogdb.KindIndex:
		stmts := make([]string, 0, len(indexNames))
		for _, idx := range indexNames {
			stmts = append(stmts, fmt.Sprintf("DROP INDEX IF EXISTS %s", idx))
		}
		return stmts
	case catalogdb.KindTrigger:
		stmts := make([]string, 0, len(triggerNames))
		for _, trg := range triggerNames {
			stmts = append(stmts, fmt.Sprintf("DROP TRIGGER IF EXISTS %s", trg))
		}
		return stmts
	default:
		return nil
	}
}

// CreateFTSTables creates the FTS5 virtual tables backing FTS_storages and
// FTS_entries.
func (Dialect) CreateFTSTables() []string {
	return []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS FTS_storages USING fts5(name, content='', contentless_delete=1, tokenize='unicode61')`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS FTS_entries USING fts5(name, content='', contentless_delete=1, tokenize='unicode61')`,
	}
}

func (Dialect) DropFTSTables() []string {
	return []string{`DROP TABLE IF EXISTS FTS_storages`, `DROP TABLE IF EXISTS FTS_entries`}
}

// PopulateFTSStorages inserts (rowid,name) for every non-deleted storage.
// FTS5's content='' "contentless" tables are populated by inserting the
// rowid explicitly, which is how idxctl keeps FTS_storages.rowid aligned
// with storages.id for 1-to-1 correspondence (spec.md invariant 8).
func (Dialect) PopulateFTSStorages(ctx context.Context, exec catalogdb.Execer) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO FTS_storages(rowid, name)
		SELECT id, name FROM storages WHERE deletedFlag = 0 AND name IS NOT NULL AND name != ''`)
	return err
}

func (Dialect) PopulateFTSEntries(ctx context.Context, exec catalogdb.Execer) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO FTS_entries(rowid, name)
		SELECT id, name FROM entries WHERE deletedFlag = 0`)
	return err
}

func (Dialect) DeleteFTSByKey(ctx context.Context, exec catalogdb.Execer, table string, id int64) error {
	_, err := exec.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE rowid = ?", table), id)
	return err
}

// BuildFTSMatchPredicate tokenizes pattern and emits a "rowid IN (SELECT ...
// MATCH ?)" predicate against table's FTS5 mirror. table names the base
// relation ("storages" or "entries"); column is unused on this dialect
// since FTS5 content tables carry a single "name" column.
func (Dialect) BuildFTSMatchPredicate(table, _ string, pattern string) (string, []any) {
	tokens := fts.Tokenize(pattern)
	if len(tokens) == 0 {
		return "", nil
	}
	match := ""
	for i, t := range tokens {
		if i > 0 {
			match += " "
		}
		match += t + "*"
	}
	ftsTable := "FTS_" + table
	return fmt.Sprintf("%s.id IN (SELECT rowid FROM %s WHERE name MATCH ?)", table, ftsTable), []any{match}
}
