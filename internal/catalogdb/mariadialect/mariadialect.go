// Package mariadialect implements catalogdb.Dialect for MariaDB, using
// github.com/go-sql-driver/mysql. MariaDB has no auxiliary FTS tables to
// populate: full-text search runs directly against MATCH...AGAINST on the
// base tables' FULLTEXT indices declared inline in the table DDL.
package mariadialect

import (
	"context"
	"fmt"
	"strings"

	"github.com/idxctl/idxctl/internal/catalogdb"
	"github.com/idxctl/idxctl/internal/catalogdb/fts"
)

// Dialect is the MariaDB implementation of catalogdb.Dialect.
type Dialect struct{}

// New returns the MariaDB dialect.
func New() *Dialect { return &Dialect{} }

func (Dialect) Backend() catalogdb.Backend { return catalogdb.BackendMariaDB }

func (Dialect) Placeholder(int) string { return "?" }

func (Dialect) ExplainKeyword() string { return "EXPLAIN" }

// CanDDLInTransaction is false: MariaDB implicitly commits the surrounding
// transaction on DDL, so the Schema Manager runs DDL statements outside any
// explicit transaction on this backend (spec.md §5).
func (Dialect) CanDDLInTransaction() bool { return false }

func (Dialect) SupportsAnalyzeCommand() bool { return true }

func (Dialect) CreateTableStatements() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS meta (
			name  VARCHAR(128) PRIMARY KEY,
			value TEXT NOT NULL
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS uuids (
			id      BIGINT PRIMARY KEY AUTO_INCREMENT,
			jobUuid VARCHAR(64) NOT NULL UNIQUE
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS entities (
			id                        BIGINT PRIMARY KEY,
			uuidId                    BIGINT NOT NULL,
			jobUuid                   VARCHAR(64) NOT NULL,
			type                      INT NOT NULL DEFAULT 0,
			scheduleUuid              VARCHAR(64),
			created                   BIGINT NOT NULL DEFAULT 0,
			lockedCount               BIGINT NOT NULL DEFAULT 0,
			deletedFlag               TINYINT NOT NULL DEFAULT 0,
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
			totalEntrySizeNewest      BIGINT NOT NULL DEFAULT 0,
			KEY idx_entities_uuidId (uuidId),
			KEY idx_entities_deletedFlag (deletedFlag),
			CONSTRAINT fk_entities_uuid FOREIGN KEY (uuidId) REFERENCES uuids(id)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS storages (
			id                        BIGINT PRIMARY KEY,
			uuidId                    BIGINT NOT NULL,
			entityId                  BIGINT NOT NULL,
			name                      VARCHAR(1024),
			created                   BIGINT NOT NULL DEFAULT 0,
			hostName                  VARCHAR(255),
			userName                  VARCHAR(255),
			comment                   TEXT,
			state                     INT NOT NULL DEFAULT 0,
			mode                      INT NOT NULL DEFAULT 0,
			lastChecked               BIGINT NOT NULL DEFAULT 0,
			errorMessage              TEXT,
			deletedFlag               TINYINT NOT NULL DEFAULT 0,
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
			totalEntrySizeNewest      BIGINT NOT NULL DEFAULT 0,
			KEY idx_storages_entityId (entityId),
			KEY idx_storages_deletedFlag (deletedFlag),
			FULLTEXT KEY ftx_storages_name (name),
			CONSTRAINT fk_storages_uuid FOREIGN KEY (uuidId) REFERENCES uuids(id),
			CONSTRAINT fk_storages_entity FOREIGN KEY (entityId) REFERENCES entities(id)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS entries (
			id              BIGINT PRIMARY KEY,
			uuidId          BIGINT NOT NULL,
			entityId        BIGINT NOT NULL,
			type            INT NOT NULL DEFAULT 0,
			name            VARCHAR(2048) NOT NULL,
			timeLastChanged BIGINT NOT NULL DEFAULT 0,
			userId          BIGINT NOT NULL DEFAULT 0,
			groupId         BIGINT NOT NULL DEFAULT 0,
			permission      BIGINT NOT NULL DEFAULT 0,
			size            BIGINT NOT NULL DEFAULT 0,
			deletedFlag     TINYINT NOT NULL DEFAULT 0,
			KEY idx_entries_entityId (entityId),
			KEY idx_entries_name (name(255)),
			KEY idx_entries_type (type),
			KEY idx_entries_deletedFlag (deletedFlag),
			FULLTEXT KEY ftx_entries_name (name),
			CONSTRAINT fk_entries_uuid FOREIGN KEY (uuidId) REFERENCES uuids(id),
			CONSTRAINT fk_entries_entity FOREIGN KEY (entityId) REFERENCES entities(id)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS entryNewest (
			id              BIGINT PRIMARY KEY,
			uuidId          BIGINT NOT NULL,
			entityId        BIGINT NOT NULL,
			entryId         BIGINT NOT NULL,
			type            INT NOT NULL DEFAULT 0,
			name            VARCHAR(2048) NOT NULL,
			timeLastChanged BIGINT NOT NULL DEFAULT 0,
			userId          BIGINT NOT NULL DEFAULT 0,
			groupId         BIGINT NOT NULL DEFAULT 0,
			permission      BIGINT NOT NULL DEFAULT 0,
			size            BIGINT NOT NULL DEFAULT 0,
			deletedFlag     TINYINT NOT NULL DEFAULT 0,
			UNIQUE KEY uq_entryNewest_name (name(700)),
			KEY idx_entryNewest_entryId (entryId)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS entryFragments (
			id        BIGINT PRIMARY KEY,
			storageId BIGINT NOT NULL,
			entryId   BIGINT NOT NULL,
			fragOffset BIGINT NOT NULL DEFAULT 0,
			size      BIGINT NOT NULL DEFAULT 0,
			KEY idx_entryFragments_storageId (storageId),
			KEY idx_entryFragments_entryId (entryId),
			CONSTRAINT fk_entryFragments_storage FOREIGN KEY (storageId) REFERENCES storages(id),
			CONSTRAINT fk_entryFragments_entry FOREIGN KEY (entryId) REFERENCES entries(id)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS fileEntries (
			id      BIGINT PRIMARY KEY,
			entryId BIGINT NOT NULL UNIQUE,
			size    BIGINT NOT NULL DEFAULT 0,
			CONSTRAINT fk_fileEntries_entry FOREIGN KEY (entryId) REFERENCES entries(id)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS imageEntries (
			id      BIGINT PRIMARY KEY,
			entryId BIGINT NOT NULL UNIQUE,
			size    BIGINT NOT NULL DEFAULT 0,
			CONSTRAINT fk_imageEntries_entry FOREIGN KEY (entryId) REFERENCES entries(id)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS hardlinkEntries (
			id      BIGINT PRIMARY KEY,
			entryId BIGINT NOT NULL UNIQUE,
			size    BIGINT NOT NULL DEFAULT 0,
			CONSTRAINT fk_hardlinkEntries_entry FOREIGN KEY (entryId) REFERENCES entries(id)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS directoryEntries (
			id        BIGINT PRIMARY KEY,
			storageId BIGINT NOT NULL,
			entryId   BIGINT NOT NULL UNIQUE,
			KEY idx_directoryEntries_storageId (storageId),
			CONSTRAINT fk_directoryEntries_storage FOREIGN KEY (storageId) REFERENCES storages(id),
			CONSTRAINT fk_directoryEntries_entry FOREIGN KEY (entryId) REFERENCES entries(id)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS linkEntries (
			id        BIGINT PRIMARY KEY,
			storageId BIGINT NOT NULL,
			entryId   BIGINT NOT NULL UNIQUE,
			KEY idx_linkEntries_storageId (storageId),
			CONSTRAINT fk_linkEntries_storage FOREIGN KEY (storageId) REFERENCES storages(id),
			CONSTRAINT fk_linkEntries_entry FOREIGN KEY (entryId) REFERENCES entries(id)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS specialEntries (
			id        BIGINT PRIMARY KEY,
			storageId BIGINT NOT NULL,
			entryId   BIGINT NOT NULL UNIQUE,
			KEY idx_specialEntries_storageId (storageId),
			CONSTRAINT fk_specialEntries_storage FOREIGN KEY (storageId) REFERENCES storages(id),
			CONSTRAINT fk_specialEntries_entry FOREIGN KEY (entryId) REFERENCES entries(id)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS skippedEntries (
			id        BIGINT PRIMARY KEY,
			entityId  BIGINT NOT NULL,
			storageId BIGINT,
			name      VARCHAR(2048) NOT NULL,
			reason    VARCHAR(255),
			created   BIGINT NOT NULL DEFAULT 0,
			KEY idx_skippedEntries_entityId (entityId),
			CONSTRAINT fk_skippedEntries_entity FOREIGN KEY (entityId) REFERENCES entities(id)
		) ENGINE=InnoDB`,
	}
}

func (Dialect) CreateViewStatements() []string { return nil }

// CreateIndexStatements is a no-op: MariaDB indices (including the
// FULLTEXT ones) are declared inline in CreateTableStatements.
func (Dialect) CreateIndexStatements() []string { return nil }

func (Dialect) CreateTriggerStatements() []string {
	return []string{
		`CREATE TRIGGER trg_entries_entityId_jobUuid
			AFTER UPDATE ON entries
			FOR EACH ROW
			BEGIN
				IF NEW.entityId <> OLD.entityId THEN
					UPDATE entries SET uuidId = (SELECT uuidId FROM entities WHERE id = NEW.entityId) WHERE id = NEW.id;
				END IF;
			END`,
	}
}

var tableOrder = []string{
	"skippedEntries", "specialEntries", "linkEntries", "directoryEntries",
	"hardlinkEntries", "imageEntries", "fileEntries", "entryFragments",
	"entryNewest", "entries", "storages", "entities", "uuids", "meta",
}

func (Dialect) DropStatements(kind catalogdb.ObjectKind) []string {
	switch kind {
	case catalogdb.KindTable:
		stmts := make([]string, 0, len(tableOrder))
		for _, t := range tableOrder {
			stmts = append(stmts, fmt.Sprintf("DROP TABLE IF EXISTS %s", t))
		}
		return stmts
	case catalogdb.KindTrigger:
		return []string{`DROP TRIGGER IF EXISTS trg_entries_entityId_jobUuid`}
	default:
		return nil
	}
}

// CreateFTSTables/DropFTSTables/PopulateFTS* are no-ops: MariaDB searches
// the base tables' inline FULLTEXT indices directly.
func (Dialect) CreateFTSTables() []string { return nil }
func (Dialect) DropFTSTables() []string   { return nil }

func (Dialect) PopulateFTSStorages(context.Context, catalogdb.Execer) error { return nil }
func (Dialect) PopulateFTSEntries(context.Context, catalogdb.Execer) error  { return nil }
func (Dialect) DeleteFTSByKey(context.Context, catalogdb.Execer, string, int64) error {
	return nil
}

// BuildFTSMatchPredicate tokenizes pattern into wildcard-suffixed terms and
// AND-joins them via MariaDB's boolean-mode MATCH...AGAINST.
func (Dialect) BuildFTSMatchPredicate(table, column string, pattern string) (string, []any) {
	tokens := fts.Tokenize(pattern)
	if len(tokens) == 0 {
		return "", nil
	}
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = "+" + t + "*"
	}
	return fmt.Sprintf("MATCH(%s.%s) AGAINST (? IN BOOLEAN MODE)", table, column), []any{strings.Join(terms, " ")}
}
