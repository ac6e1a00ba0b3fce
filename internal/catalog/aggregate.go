package catalog

import (
	"context"
	"strconv"

	"github.com/idxctl/idxctl/internal/catalogdb"
	"github.com/idxctl/idxctl/internal/catalogerr"
)

// fragmentedKind describes one of the three entry types whose size rolls up
// through entryFragments rather than a direct count-only type table.
type fragmentedKind struct {
	entryType catalogdb.EntryType
	countCol  string
	sizeCol   string
}

// directKind describes one of the three entry types whose type-row is keyed
// directly by storageId, contributing a count but no size.
type directKind struct {
	entryType catalogdb.EntryType
	table     string
	countCol  string
}

var (
	fragmentedKinds = []fragmentedKind{
		{catalogdb.EntryFile, "totalFileCount", "totalFileSize"},
		{catalogdb.EntryImage, "totalImageCount", "totalImageSize"},
		{catalogdb.EntryHardlink, "totalHardlinkCount", "totalHardlinkSize"},
	}
	directKinds = []directKind{
		{catalogdb.EntryDirectory, "directoryEntries", "totalDirectoryCount"},
		{catalogdb.EntryLink, "linkEntries", "totalLinkCount"},
		{catalogdb.EntrySpecial, "specialEntries", "totalSpecialCount"},
	}
)

// AggregateEntities recomputes the twenty-two aggregate counters on each entity
// named in ids (or every live entity when ids is empty), one UPDATE per
// entity inside a single exclusive transaction (spec.md §4.6).
func (c *Catalog) AggregateEntities(ctx context.Context, ids []int64, prog *catalogdb.Progress) error {
	if prog == nil {
		prog = &catalogdb.Progress{}
	}
	return c.withTx(ctx, func(tx *catalogdb.Tx) error {
		targets, err := c.resolveAggregateTargets(ctx, tx, "entities", ids)
		if err != nil {
			return err
		}
		prog.Start(int64(len(targets)))
		for _, id := range targets {
			agg, err := computeEntityAggregates(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := updateAggregates(ctx, tx, "entities", id, agg); err != nil {
				return err
			}
			prog.Advance(1)
		}
		return nil
	})
}

// AggregateStorages is AggregateEntities for storages.
func (c *Catalog) AggregateStorages(ctx context.Context, ids []int64, prog *catalogdb.Progress) error {
	if prog == nil {
		prog = &catalogdb.Progress{}
	}
	return c.withTx(ctx, func(tx *catalogdb.Tx) error {
		targets, err := c.resolveAggregateTargets(ctx, tx, "storages", ids)
		if err != nil {
			return err
		}
		prog.Start(int64(len(targets)))
		for _, id := range targets {
			agg, err := computeStorageAggregates(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := updateAggregates(ctx, tx, "storages", id, agg); err != nil {
				return err
			}
			prog.Advance(1)
		}
		return nil
	})
}

func (c *Catalog) resolveAggregateTargets(ctx context.Context, tx *catalogdb.Tx, table string, ids []int64) ([]int64, error) {
	if len(ids) > 0 {
		return ids, nil
	}
	rows, err := tx.SQL.QueryContext(ctx, "SELECT id FROM "+table+" WHERE NOT deletedFlag")
	if err != nil {
		return nil, catalogerr.Newf(catalogerr.ClassQuery, err, "list live %s for aggregation", table)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, catalogerr.New(catalogerr.ClassQuery, "scan aggregate target id", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// aggregateRow names the twenty-two column values to write, in a fixed order
// matching the destination table's columns.
type aggregateRow struct {
	fileCount, imageCount, directoryCount, linkCount, hardlinkCount, specialCount int64
	fileSize, imageSize, hardlinkSize                                            int64
	entryCount, entrySize                                                        int64

	fileCountN, imageCountN, directoryCountN, linkCountN, hardlinkCountN, specialCountN int64
	fileSizeN, imageSizeN, hardlinkSizeN                                                int64
	entryCountN, entrySizeN                                                             int64
}

func computeEntityAggregates(ctx context.Context, tx *catalogdb.Tx, entityID int64) (aggregateRow, error) {
	var agg aggregateRow
	ph := tx.Dialect.Placeholder(1)

	for _, k := range fragmentedKinds {
		count, size, err := scanCountAndSize(ctx, tx, `
			SELECT COUNT(*), COALESCE(SUM(sub.sz),0) FROM (
				SELECT e.id, COALESCE((SELECT SUM(f.size) FROM entryFragments f WHERE f.entryId = e.id),0) AS sz
				FROM entries e WHERE e.entityId = `+ph+` AND e.type = `+placeholderInt(k.entryType)+` AND NOT e.deletedFlag
			) sub`, entityID)
		if err != nil {
			return agg, err
		}
		setEntityCount(&agg, k.countCol, count)
		setEntitySize(&agg, k.sizeCol, size)
		agg.entryCount += count
		agg.entrySize += size
	}
	for _, k := range directKinds {
		var count int64
		err := tx.SQL.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM entries e
			JOIN `+k.table+` t ON t.entryId = e.id
			WHERE e.entityId = `+ph+` AND NOT e.deletedFlag`, entityID).Scan(&count)
		if err != nil {
			return agg, catalogerr.New(catalogerr.ClassQuery, "aggregate direct entry count", err)
		}
		setEntityCount(&agg, k.countCol, count)
		agg.entryCount += count
	}

	for _, k := range fragmentedKinds {
		count, size, err := scanCountAndSize(ctx, tx, `
			SELECT COUNT(*), COALESCE(SUM(sub.sz),0) FROM (
				SELECT n.id, COALESCE((SELECT SUM(f.size) FROM entryFragments f WHERE f.entryId = n.entryId),0) AS sz
				FROM entryNewest n WHERE n.entityId = `+ph+` AND n.type = `+placeholderInt(k.entryType)+`
			) sub`, entityID)
		if err != nil {
			return agg, err
		}
		setEntityCountNewest(&agg, k.countCol, count)
		setEntitySizeNewest(&agg, k.sizeCol, size)
		agg.entryCountN += count
		agg.entrySizeN += size
	}
	for _, k := range directKinds {
		var count int64
		err := tx.SQL.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM entryNewest n
			JOIN `+k.table+` t ON t.entryId = n.entryId
			WHERE n.entityId = `+ph, entityID).Scan(&count)
		if err != nil {
			return agg, catalogerr.New(catalogerr.ClassQuery, "aggregate direct newest count", err)
		}
		setEntityCountNewest(&agg, k.countCol, count)
		agg.entryCountN += count
	}
	return agg, nil
}

func computeStorageAggregates(ctx context.Context, tx *catalogdb.Tx, storageID int64) (aggregateRow, error) {
	var agg aggregateRow
	ph := tx.Dialect.Placeholder(1)

	for _, k := range fragmentedKinds {
		var count, size int64
		err := tx.SQL.QueryRowContext(ctx, `
			SELECT COUNT(DISTINCT e.id), COALESCE(SUM(f.size),0) FROM entries e
			JOIN entryFragments f ON f.entryId = e.id
			WHERE f.storageId = `+ph+` AND e.type = `+placeholderInt(k.entryType)+` AND NOT e.deletedFlag`,
			storageID).Scan(&count, &size)
		if err != nil {
			return agg, catalogerr.New(catalogerr.ClassQuery, "aggregate storage fragment rollup", err)
		}
		setEntityCount(&agg, k.countCol, count)
		setEntitySize(&agg, k.sizeCol, size)
		agg.entryCount += count
		agg.entrySize += size
	}
	for _, k := range directKinds {
		var count int64
		err := tx.SQL.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM entries e
			JOIN `+k.table+` t ON t.entryId = e.id
			WHERE t.storageId = `+ph+` AND NOT e.deletedFlag`, storageID).Scan(&count)
		if err != nil {
			return agg, catalogerr.New(catalogerr.ClassQuery, "aggregate storage direct count", err)
		}
		setEntityCount(&agg, k.countCol, count)
		agg.entryCount += count
	}

	for _, k := range fragmentedKinds {
		var count, size int64
		err := tx.SQL.QueryRowContext(ctx, `
			SELECT COUNT(DISTINCT n.id), COALESCE(SUM(f.size),0) FROM entryNewest n
			JOIN entryFragments f ON f.entryId = n.entryId
			WHERE f.storageId = `+ph+` AND n.type = `+placeholderInt(k.entryType),
			storageID).Scan(&count, &size)
		if err != nil {
			// A newest join that matches nothing is not an error; treat any
			// failure here as a genuine query failure instead.
			return agg, catalogerr.New(catalogerr.ClassQuery, "aggregate storage newest fragment rollup", err)
		}
		setEntityCountNewest(&agg, k.countCol, count)
		setEntitySizeNewest(&agg, k.sizeCol, size)
		agg.entryCountN += count
		agg.entrySizeN += size
	}
	for _, k := range directKinds {
		var count int64
		err := tx.SQL.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM entryNewest n
			JOIN `+k.table+` t ON t.entryId = n.entryId
			WHERE t.storageId = `+ph, storageID).Scan(&count)
		if err != nil {
			return agg, catalogerr.New(catalogerr.ClassQuery, "aggregate storage direct newest count", err)
		}
		setEntityCountNewest(&agg, k.countCol, count)
		agg.entryCountN += count
	}
	return agg, nil
}

func scanCountAndSize(ctx context.Context, tx *catalogdb.Tx, query string, arg int64) (int64, int64, error) {
	var count, size int64
	if err := tx.SQL.QueryRowContext(ctx, query, arg).Scan(&count, &size); err != nil {
		return 0, 0, catalogerr.New(catalogerr.ClassQuery, "aggregate fragment rollup", err)
	}
	return count, size, nil
}

// placeholderInt renders an EntryType as a literal integer for embedding
// directly in a query string (type values are a small fixed enum, never
// user input, so this is not a bind-parameter concern).
func placeholderInt(t catalogdb.EntryType) string {
	return strconv.Itoa(int(t))
}

// literalInt renders a plain int as a literal for embedding directly in a
// query string, for constants such as batch sizes and state bounds that
// are never user input.
func literalInt(n int) string {
	return strconv.Itoa(n)
}

func setEntityCount(agg *aggregateRow, col string, v int64) {
	switch col {
	case "totalFileCount":
		agg.fileCount = v
	case "totalImageCount":
		agg.imageCount = v
	case "totalDirectoryCount":
		agg.directoryCount = v
	case "totalLinkCount":
		agg.linkCount = v
	case "totalHardlinkCount":
		agg.hardlinkCount = v
	case "totalSpecialCount":
		agg.specialCount = v
	}
}

func setEntitySize(agg *aggregateRow, col string, v int64) {
	switch col {
	case "totalFileSize":
		agg.fileSize = v
	case "totalImageSize":
		agg.imageSize = v
	case "totalHardlinkSize":
		agg.hardlinkSize = v
	}
}

func setEntityCountNewest(agg *aggregateRow, col string, v int64) {
	switch col {
	case "totalFileCount":
		agg.fileCountN = v
	case "totalImageCount":
		agg.imageCountN = v
	case "totalDirectoryCount":
		agg.directoryCountN = v
	case "totalLinkCount":
		agg.linkCountN = v
	case "totalHardlinkCount":
		agg.hardlinkCountN = v
	case "totalSpecialCount":
		agg.specialCountN = v
	}
}

func setEntitySizeNewest(agg *aggregateRow, col string, v int64) {
	switch col {
	case "totalFileSize":
		agg.fileSizeN = v
	case "totalImageSize":
		agg.imageSizeN = v
	case "totalHardlinkSize":
		agg.hardlinkSizeN = v
	}
}

func updateAggregates(ctx context.Context, tx *catalogdb.Tx, table string, id int64, agg aggregateRow) error {
	d := tx.Dialect
	query := "UPDATE " + table + " SET " +
		"totalFileCount = " + d.Placeholder(1) + ", totalImageCount = " + d.Placeholder(2) + ", " +
		"totalDirectoryCount = " + d.Placeholder(3) + ", totalLinkCount = " + d.Placeholder(4) + ", " +
		"totalHardlinkCount = " + d.Placeholder(5) + ", totalSpecialCount = " + d.Placeholder(6) + ", " +
		"totalFileSize = " + d.Placeholder(7) + ", totalImageSize = " + d.Placeholder(8) + ", " +
		"totalHardlinkSize = " + d.Placeholder(9) + ", totalEntryCount = " + d.Placeholder(10) + ", " +
		"totalEntrySize = " + d.Placeholder(11) + ", " +
		"totalFileCountNewest = " + d.Placeholder(12) + ", totalImageCountNewest = " + d.Placeholder(13) + ", " +
		"totalDirectoryCountNewest = " + d.Placeholder(14) + ", totalLinkCountNewest = " + d.Placeholder(15) + ", " +
		"totalHardlinkCountNewest = " + d.Placeholder(16) + ", totalSpecialCountNewest = " + d.Placeholder(17) + ", " +
		"totalFileSizeNewest = " + d.Placeholder(18) + ", totalImageSizeNewest = " + d.Placeholder(19) + ", " +
		"totalHardlinkSizeNewest = " + d.Placeholder(20) + ", totalEntryCountNewest = " + d.Placeholder(21) + ", " +
		"totalEntrySizeNewest = " + d.Placeholder(22) +
		" WHERE id = " + d.Placeholder(23)

	_, err := tx.SQL.ExecContext(ctx, query,
		agg.fileCount, agg.imageCount, agg.directoryCount, agg.linkCount, agg.hardlinkCount, agg.specialCount,
		agg.fileSize, agg.imageSize, agg.hardlinkSize, agg.entryCount, agg.entrySize,
		agg.fileCountN, agg.imageCountN, agg.directoryCountN, agg.linkCountN, agg.hardlinkCountN, agg.specialCountN,
		agg.fileSizeN, agg.imageSizeN, agg.hardlinkSizeN, agg.entryCountN, agg.entrySizeN,
		id)
	if err != nil {
		return catalogerr.Newf(catalogerr.ClassConstraint, err, "update %s aggregates for id %d", table, id)
	}
	return nil
}
