// Package pgdialect implements catalogdb.Dialect for PostgreSQL, using
// github.com/jackc/pgx/v5's database/sql adapter. Unlike MariaDB's inline
// MATCH...AGAINST, PostgreSQL gets its own FTS mirror tables (like SQLite)
// because to_tsvector needs a materialized tsvector column to index with
// GIN; the difference from SQLite is that the stored text is first passed
// through the shared tokenizer before being wrapped in to_tsvector.
package pgdialect

import (
	"context"
	"fmt"
	"strings"

	"github.com/idxctl/idxctl/internal/catalogdb"
	"github.com/idxctl/idxctl/internal/catalogdb/fts"
)

// Dialect is the PostgreSQL implementation of catalogdb.Dialect.
type Dialect struct{}

// New returns the PostgreSQL dialect.
func New() *Dialect { return &Dialect{} }

func (Dialect) Backend() catalogdb.Backend { return catalogdb.BackendPostgreSQL }

func (Dialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (Dialect) ExplainKeyword() string { return "EXPLAIN" }

// CanDDLInTransaction is false: as on MariaDB, catalogdb.DB.ExecDDL runs
// PostgreSQL schema DDL as separate statements outside any transaction.
func (Dialect) CanDDLInTransaction() bool { return false }

func (Dialect) SupportsAnalyzeCommand() bool { return true }

func (Dialect) CreateTableStatements() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS meta (
			name  TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS uuids (
			id      BIGSERIAL PRIMARY KEY,
			jobUuid TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS entities (
			id                        BIGINT PRIMARY KEY,
			uuidId                    BIGINT NOT NULL REFERENCES uuids(id),
			jobUuid                   TEXT NOT NULL,
			type                      INTEGER NOT NULL DEFAULT 0,
			scheduleUuid              TEXT,
			created                   BIGINT NOT NULL DEFAULT 0,
			lockedCount               BIGINT NOT NULL DEFAULT 0,
			deletedFlag               BOOLEAN NOT NULL DEFAULT FALSE,
			totalFileCount            BIGINT NOT NULL DEFAULT 0,
			totalImageCount           BIGINT NOT NULL DEFAULT 0,
			totalDirectoryCount       BIGINT NOT NULL DEFAULT 0,
			totalLinkCount            BIGINT NOT NULL DEFAULT 0,
			totalHardlinkCount        BIGINT NOT NULL DEFAULT 0,
			totalSpecialCount         BIGINT NOT NULL DEFAULT 0,
			totalFileSize             BIGINT NOT NULL DEFAULT 0,
			totalImageSize            BIGINT NOT NULL DEFAULT 0,
			totalHardlinkSize         BIGINT NOT NULL DEFAULT 0,
			totalEntryCount           BIGINT NOT NULL DEFAULT 0,
			totalEntrySize            BIGINT NOT NULL DEFAULT 0,
			totalFileCountNewest      BIGINT NOT NULL DEFAULT 0,
			totalImageCountNewest     BIGINT NOT NULL DEFAULT 0,
			totalDirectoryCountNewest BIGINT NOT NULL DEFAULT 0,
			totalLinkCountNewest      BIGINT NOT NULL DEFAULT 0,
			totalHardlinkCountNewest  BIGINT NOT NULL DEFAULT 0,
			totalSpecialCountNewest   BIGINT NOT NULL DEFAULT 0,
			totalFileSizeNewest       BIGINT NOT NULL DEFAULT 0,
			totalImageSizeNewest      BIGINT NOT NULL DEFAULT 0,
			totalHardlinkSizeNewest   BIGINT NOT NULL DEFAULT 0,
			totalEntryCountNewest     BIGINT NOT NULL DEFAULT 0,
			totalEntrySizeNewest      BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS storages (
			id                        BIGINT PRIMARY KEY,
			uuidId                    BIGINT NOT NULL REFERENCES uuids(id),
			entityId                  BIGINT NOT NULL REFERENCES entities(id),
			name                      TEXT,
			created                   BIGINT NOT NULL DEFAULT 0,
			hostName                  TEXT,
			userName                  TEXT,
			comment                   TEXT,
			state                     INTEGER NOT NULL DEFAULT 0,
			mode                      INTEGER NOT NULL DEFAULT 0,
			lastChecked               BIGINT NOT NULL DEFAULT 0,
			errorMessage              TEXT,
			deletedFlag               BOOLEAN NOT NULL DEFAULT FALSE,
			totalFileCount            BIGINT NOT NULL DEFAULT 0,
			totalImageCount           BIGINT NOT NULL DEFAULT 0,
			totalDirectoryCount       BIGINT NOT NULL DEFAULT 0,
			totalLinkCount            BIGINT NOT NULL DEFAULT 0,
			totalHardlinkCount        BIGINT NOT NULL DEFAULT 0,
			totalSpecialCount         BIGINT NOT NULL DEFAULT 0,
			totalFileSize             BIGINT NOT NULL DEFAULT 0,
			totalImageSize            BIGINT NOT NULL DEFAULT 0,
			totalHardlinkSize         BIGINT NOT NULL DEFAULT 0,
			totalEntryCount           BIGINT NOT NULL DEFAULT 0,
			totalEntrySize            BIGINT NOT NULL DEFAULT 0,
			totalFileCountNewest      BIGINT NOT NULL DEFAULT 0,
			totalImageCountNewest     BIGINT NOT NULL DEFAULT 0,
			totalDirectoryCountNewest BIGINT NOT NULL DEFAULT 0,
			totalLinkCountNewest      BIGINT NOT NULL DEFAULT 0,
			totalHardlinkCountNewest  BIGINT NOT NULL DEFAULT 0,
			totalSpecialCountNewest   BIGINT NOT NULL DEFAULT 0,
			totalFileSizeNewest       BIGINT NOT NULL DEFAULT 0,
			totalImageSizeNewest      BIGINT NOT NULL DEFAULT 0,
			totalHardlinkSizeNewest   BIGINT NOT NULL DEFAULT 0,
			totalEntryCountNewest     BIGINT NOT NULL DEFAULT 0,
			totalEntrySizeNewest      BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			id              BIGINT PRIMARY KEY,
			uuidId          BIGINT NOT NULL REFERENCES uuids(id),
			entityId        BIGINT NOT NULL REFERENCES entities(id),
			type            INTEGER NOT NULL DEFAULT 0,
			name            TEXT NOT NULL,
			timeLastChanged BIGINT NOT NULL DEFAULT 0,
			userId          BIGINT NOT NULL DEFAULT 0,
			groupId         BIGINT NOT NULL DEFAULT 0,
			permission      BIGINT NOT NULL DEFAULT 0,
			size            BIGINT NOT NULL DEFAULT 0,
			deletedFlag     BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS entryNewest (
			id              BIGINT PRIMARY KEY,
			uuidId          BIGINT NOT NULL,
			entityId        BIGINT NOT NULL,
			entryId         BIGINT NOT NULL,
			type            INTEGER NOT NULL DEFAULT 0,
			name            TEXT NOT NULL UNIQUE,
			timeLastChanged BIGINT NOT NULL DEFAULT 0,
			userId          BIGINT NOT NULL DEFAULT 0,
			groupId         BIGINT NOT NULL DEFAULT 0,
			permission      BIGINT NOT NULL DEFAULT 0,
			size            BIGINT NOT NULL DEFAULT 0,
			deletedFlag     BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS entryFragments (
			id        BIGINT PRIMARY KEY,
			storageId BIGINT NOT NULL REFERENCES storages(id),
			entryId   BIGINT NOT NULL REFERENCES entries(id),
			fragOffset BIGINT NOT NULL DEFAULT 0,
			size      BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS fileEntries (
			id      BIGINT PRIMARY KEY,
			entryId BIGINT NOT NULL UNIQUE REFERENCES entries(id),
			size    BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS imageEntries (
			id      BIGINT PRIMARY KEY,
			entryId BIGINT NOT NULL UNIQUE REFERENCES entries(id),
			size    BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS hardlinkEntries (
			id      BIGINT PRIMARY KEY,
			entryId BIGINT NOT NULL UNIQUE REFERENCES entries(id),
			size    BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS directoryEntries (
			id        BIGINT PRIMARY KEY,
			storageId BIGINT NOT NULL REFERENCES storages(id),
			entryId   BIGINT NOT NULL UNIQUE REFERENCES entries(id)
		)`,
		`CREATE TABLE IF NOT EXISTS linkEntries (
			id        BIGINT PRIMARY KEY,
			storageId BIGINT NOT NULL REFERENCES storages(id),
			entryId   BIGINT NOT NULL UNIQUE REFERENCES entries(id)
		)`,
		`CREATE TABLE IF NOT EXISTS specialEntries (
			id        BIGINT PRIMARY KEY,
			storageId BIGINT NOT NULL REFERENCES storages(id),
			entryId   BIGINT NOT NULL UNIQUE REFERENCES entries(id)
		)`,
		`CREATE TABLE IF NOT EXISTS skippedEntries (
			id        BIGINT PRIMARY KEY,
			entityId  BIGINT NOT NULL REFERENCES entities(id),
			storageId BIGINT,
			name      TEXT NOT NULL,
			reason    TEXT,
			created   BIGINT NOT NULL DEFAULT 0
		)`,
	}
}

func (Dialect) CreateViewStatements() []string { return nil }

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
		`CREATE OR REPLACE FUNCTION trg_entries_entityId_jobUuid_fn() RETURNS trigger AS $$
		BEGIN
			UPDATE entries SET uuidId = (SELECT uuidId FROM entities WHERE id = NEW.entityId) WHERE id = NEW.id;
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql`,
		`CREATE TRIGGER trg_entries_entityId_jobUuid
			AFTER UPDATE OF entityId ON entries
			FOR EACH ROW
			WHEN (NEW.entityId IS DISTINCT FROM OLD.entityId)
			EXECUTE FUNCTION trg_entries_entityId_jobUuid_fn()`,
	}
}

var tableOrder = []string{
	"skippedEntries", "specialEntries", "linkEntries", "directoryEntries",
	"hardlinkEntries", "imageEntries", "fileEntries", "entryFragments",
	"entryNewest", "entries", "storages", "entities", "uuids", "meta",
}

var indexNames = []string{
	"idx_entities_uuidId", "idx_entities_deletedFlag", "idx_storages_entityId",
	"idx_storages_name", "idx_storages_deletedFlag", "idx_entries_entityId",
	"idx_entries_name", "idx_entries_type", "idx_entries_deletedFlag",
	"idx_entryFragments_storageId", "idx_entryFragments_entryId",
	"idx_directoryEntries_storageId", "idx_linkEntries_storageId",
	"idx_specialEntries_storageId", "idx_entryNewest_name",
	"idx_entryNewest_entryId", "idx_skippedEntries_entityId",
	"idx_fts_storages_tsv", "idx_fts_entries_tsv",
}

func (Dialect) DropStatements(kind catalogdb.ObjectKind) []string {
	switch kind {
	case catalogdb.KindTable:
		stmts := make([]string, 0, len(tableOrder)+2)
		stmts = append(stmts, `DROP TABLE IF EXISTS FTS_storages`, `DROP TABLE IF EXISTS FTS_entries`)
		for _, t := range tableOrder {
			stmts = append(stmts, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", t))
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
		return []string{
			`DROP TRIGGER IF EXISTS trg_entries_entityId_jobUuid ON entries`,
			`DROP FUNCTION IF EXISTS trg_entries_entityId_jobUuid_fn()`,
		}
	default:
		return nil
	}
}

// CreateFTSTables creates the tsvector-backed mirror tables.
func (Dialect) CreateFTSTables() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS FTS_storages (id BIGINT PRIMARY KEY, name TEXT, tsv tsvector)`,
		`CREATE TABLE IF NOT EXISTS FTS_entries (id BIGINT PRIMARY KEY, name TEXT, tsv tsvector)`,
		`CREATE INDEX IF NOT EXISTS idx_fts_storages_tsv ON FTS_storages USING GIN(tsv)`,
		`CREATE INDEX IF NOT EXISTS idx_fts_entries_tsv ON FTS_entries USING GIN(tsv)`,
	}
}

func (Dialect) DropFTSTables() []string {
	return []string{`DROP TABLE IF EXISTS FTS_storages`, `DROP TABLE IF EXISTS FTS_entries`}
}

// PopulateFTSStorages tokenizes every non-deleted storage name in Go (via
// the shared fts.NormalizedForm helper) before wrapping it in
// to_tsvector, per spec.md §4.2's PostgreSQL rule. Doing the tokenization
// in application code rather than relying solely on to_tsvector's own
// parser keeps tokenization identical across all three dialects.
func (d Dialect) PopulateFTSStorages(ctx context.Context, exec catalogdb.Execer) error {
	return populateFTS(ctx, exec, "FTS_storages", "storages")
}

func (d Dialect) PopulateFTSEntries(ctx context.Context, exec catalogdb.Execer) error {
	return populateFTS(ctx, exec, "FTS_entries", "entries")
}

func populateFTS(ctx context.Context, exec catalogdb.Execer, ftsTable, baseTable string) error {
	rows, err := exec.QueryContext(ctx, fmt.Sprintf(
		"SELECT id, name FROM %s WHERE deletedFlag = FALSE AND name IS NOT NULL AND name != ''", baseTable))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	type row struct {
		id   int64
		name string
	}
	var batch []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.name); err != nil {
			return err
		}
		batch = append(batch, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range batch {
		normalized := fts.NormalizedForm(r.name)
		_, err := exec.ExecContext(ctx, fmt.Sprintf(
			"INSERT INTO %s(id, name, tsv) VALUES ($1, $2, to_tsvector('simple', $3)) ON CONFLICT (id) DO UPDATE SET name = excluded.name, tsv = excluded.tsv",
			ftsTable), r.id, r.name, normalized)
		if err != nil {
			return err
		}
	}
	return nil
}

func (Dialect) DeleteFTSByKey(ctx context.Context, exec catalogdb.Execer, table string, id int64) error {
	_, err := exec.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), id)
	return err
}

// BuildFTSMatchPredicate tokenizes pattern into prefix tsquery terms
// ("token:*") AND-joined, matched against the FTS mirror's tsv column.
func (Dialect) BuildFTSMatchPredicate(table, _ string, pattern string) (string, []any) {
	tokens := fts.Tokenize(pattern)
	if len(tokens) == 0 {
		return "", nil
	}
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t + ":*"
	}
	ftsTable := "FTS_" + table
	return fmt.Sprintf("%s.id IN (SELECT id FROM %s WHERE tsv @@ to_tsquery('simple', $1))", table, ftsTable),
		[]any{strings.Join(terms, " & ")}
}
