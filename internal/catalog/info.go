package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/idxctl/idxctl/internal/catalogdb"
	"github.com/idxctl/idxctl/internal/catalogerr"
)

// CatalogSummary is the overall index info report (spec.md §4.9).
type CatalogSummary struct {
	Backend        string
	SchemaVersion  string
	UUIDCount      int64
	EntityCount    int64
	StorageCount   int64
	EntryCount     int64
	TotalEntrySize int64
	SkippedCount   int64
}

// Summary gathers the overall index info report.
func (c *Catalog) Summary(ctx context.Context) (CatalogSummary, error) {
	var s CatalogSummary
	s.Backend = string(c.dialect().Backend())

	row := c.db.SQL.QueryRowContext(ctx, "SELECT value FROM meta WHERE name = "+c.dialect().Placeholder(1), "version")
	_ = row.Scan(&s.SchemaVersion)

	counts := []struct {
		dest  *int64
		query string
	}{
		{&s.UUIDCount, "SELECT COUNT(*) FROM uuids"},
		{&s.EntityCount, "SELECT COUNT(*) FROM entities WHERE NOT deletedFlag"},
		{&s.StorageCount, "SELECT COUNT(*) FROM storages WHERE NOT deletedFlag"},
		{&s.EntryCount, "SELECT COUNT(*) FROM entries WHERE NOT deletedFlag"},
		{&s.SkippedCount, "SELECT COUNT(*) FROM skippedEntries"},
	}
	for _, n := range counts {
		if err := c.db.SQL.QueryRowContext(ctx, n.query).Scan(n.dest); err != nil {
			return s, catalogerr.New(catalogerr.ClassQuery, "gather catalog summary", err)
		}
	}
	var size *int64
	if err := c.db.SQL.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(size),0) FROM entryFragments").Scan(&size); err != nil {
		return s, catalogerr.New(catalogerr.ClassQuery, "sum catalog size", err)
	}
	if size != nil {
		s.TotalEntrySize = *size
	}
	return s, nil
}

// PrintSummary writes the overall index info report in a line-oriented
// label/value format.
func PrintSummary(w io.Writer, s CatalogSummary) {
	fmt.Fprintf(w, "backend:        %s\n", s.Backend)
	fmt.Fprintf(w, "schema version: %s\n", s.SchemaVersion)
	fmt.Fprintf(w, "uuids:          %d\n", s.UUIDCount)
	fmt.Fprintf(w, "entities:       %d\n", s.EntityCount)
	fmt.Fprintf(w, "storages:       %d\n", s.StorageCount)
	fmt.Fprintf(w, "entries:        %d\n", s.EntryCount)
	fmt.Fprintf(w, "total size:     %s\n", humanize.IBytes(uint64(s.TotalEntrySize)))
	fmt.Fprintf(w, "skipped:        %d\n", s.SkippedCount)
}

// PrintUUIDs streams every uuids row as it is read, one line per row.
func (c *Catalog) PrintUUIDs(ctx context.Context, w io.Writer) error {
	rows, err := c.db.SQL.QueryContext(ctx, "SELECT id, jobUuid FROM uuids ORDER BY id")
	if err != nil {
		return catalogerr.New(catalogerr.ClassQuery, "list uuids", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var jobUUID string
		if err := rows.Scan(&id, &jobUUID); err != nil {
			return catalogerr.New(catalogerr.ClassQuery, "scan uuid row", err)
		}
		fmt.Fprintf(w, "%-6d %s\n", id, jobUUID)
	}
	return rows.Err()
}

// PrintEntities streams every entity row matching ids (or all, if empty),
// one line per row; soft-deleted rows are included and shown as deleted=true.
func (c *Catalog) PrintEntities(ctx context.Context, w io.Writer, ids []int64) error {
	query := "SELECT id, jobUuid, type, created, lockedCount, deletedFlag, totalEntryCount, totalEntrySize FROM entities"
	var args []any
	if len(ids) > 0 {
		clause, a := inClauseLocal(c, "id", ids)
		query += " WHERE " + clause
		args = a
	}
	query += " ORDER BY id"
	rows, err := c.db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return catalogerr.New(catalogerr.ClassQuery, "list entities", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, typ, created, locked, entryCount, entrySize int64
		var jobUUID string
		var deleted bool
		if err := rows.Scan(&id, &jobUUID, &typ, &created, &locked, &deleted, &entryCount, &entrySize); err != nil {
			return catalogerr.New(catalogerr.ClassQuery, "scan entity row", err)
		}
		fmt.Fprintf(w, "entity %d  job=%s  created=%s  locked=%d  deleted=%v  entries=%d  size=%s\n",
			id, jobUUID, formatLocalTime(created), locked, deleted, entryCount, humanize.IBytes(uint64(entrySize)))
	}
	return rows.Err()
}

// PrintStorages streams every storage row matching ids (or all, if empty).
func (c *Catalog) PrintStorages(ctx context.Context, w io.Writer, ids []int64) error {
	query := "SELECT id, name, created, state, hostName, totalEntryCount, totalEntrySize FROM storages"
	var args []any
	if len(ids) > 0 {
		clause, a := inClauseLocal(c, "id", ids)
		query += " WHERE " + clause
		args = a
	}
	query += " ORDER BY id"
	rows, err := c.db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return catalogerr.New(catalogerr.ClassQuery, "list storages", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, created, state, entryCount, entrySize int64
		var name, hostName sql.NullString
		if err := rows.Scan(&id, &name, &created, &state, &hostName, &entryCount, &entrySize); err != nil {
			return catalogerr.New(catalogerr.ClassQuery, "scan storage row", err)
		}
		fmt.Fprintf(w, "storage %d  %-30s  host=%-15s created=%s  state=%d  entries=%d  size=%s\n",
			id, name.String, hostName.String, formatLocalTime(created), state, entryCount, humanize.IBytes(uint64(entrySize)))
	}
	return rows.Err()
}

// PrintEntries streams every entry row matching ids (or all, if empty),
// optionally narrowed to one entry type (EntryAny meaning "every type").
func (c *Catalog) PrintEntries(ctx context.Context, w io.Writer, ids []int64, entryType catalogdb.EntryType) error {
	query := "SELECT id, name, type, timeLastChanged, size FROM entries"
	var args []any
	var clauses []string
	if len(ids) > 0 {
		clause, a := inClauseLocal(c, "id", ids)
		clauses = append(clauses, clause)
		args = append(args, a...)
	}
	if entryType != catalogdb.EntryAny {
		clauses = append(clauses, "type = "+c.dialect().Placeholder(len(args)+1))
		args = append(args, int(entryType))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"
	rows, err := c.db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return catalogerr.New(catalogerr.ClassQuery, "list entries", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, typ, changed, size int64
		var name string
		if err := rows.Scan(&id, &name, &typ, &changed, &size); err != nil {
			return catalogerr.New(catalogerr.ClassQuery, "scan entry row", err)
		}
		fmt.Fprintf(w, "entry %d  %-40s  type=%d  changed=%s  size=%s\n",
			id, name, typ, formatLocalTime(changed), humanize.IBytes(uint64(size)))
	}
	return rows.Err()
}

// PrintLostStorages streams every soft-deleted storage row: archives the
// cleaner has flagged gone but nothing has purged yet.
func (c *Catalog) PrintLostStorages(ctx context.Context, w io.Writer) error {
	rows, err := c.db.SQL.QueryContext(ctx,
		"SELECT id, name, created, hostName FROM storages WHERE deletedFlag ORDER BY id")
	if err != nil {
		return catalogerr.New(catalogerr.ClassQuery, "list lost storages", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, created int64
		var name, hostName sql.NullString
		if err := rows.Scan(&id, &name, &created, &hostName); err != nil {
			return catalogerr.New(catalogerr.ClassQuery, "scan lost storage row", err)
		}
		fmt.Fprintf(w, "lost storage %d  %-30s  host=%-15s created=%s\n",
			id, name.String, hostName.String, formatLocalTime(created))
	}
	return rows.Err()
}

// PrintLostEntries streams every entry whose owning storage row no longer
// exists: a fragment, directory, link, or special row referencing a
// storageId with no storages row at all (soft-deleted storages still count
// as present).
func (c *Catalog) PrintLostEntries(ctx context.Context, w io.Writer) error {
	query := `SELECT DISTINCT e.id, e.name, e.type FROM entries e
JOIN entryFragments f ON f.entryId = e.id
WHERE NOT EXISTS (SELECT 1 FROM storages s WHERE s.id = f.storageId)
UNION
SELECT DISTINCT e.id, e.name, e.type FROM entries e
JOIN directoryEntries d ON d.entryId = e.id
WHERE NOT EXISTS (SELECT 1 FROM storages s WHERE s.id = d.storageId)
UNION
SELECT DISTINCT e.id, e.name, e.type FROM entries e
JOIN linkEntries l ON l.entryId = e.id
WHERE NOT EXISTS (SELECT 1 FROM storages s WHERE s.id = l.storageId)
UNION
SELECT DISTINCT e.id, e.name, e.type FROM entries e
JOIN specialEntries sp ON sp.entryId = e.id
WHERE NOT EXISTS (SELECT 1 FROM storages s WHERE s.id = sp.storageId)
ORDER BY id`
	rows, err := c.db.SQL.QueryContext(ctx, query)
	if err != nil {
		return catalogerr.New(catalogerr.ClassQuery, "list lost entries", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, typ int64
		var name string
		if err := rows.Scan(&id, &name, &typ); err != nil {
			return catalogerr.New(catalogerr.ClassQuery, "scan lost entry row", err)
		}
		fmt.Fprintf(w, "lost entry %d  %-40s  type=%d\n", id, name, typ)
	}
	return rows.Err()
}

// PrintJobs streams per-job detail: the entity and live storage count each
// job uuid owns. jobs names jobUuid strings; an empty list prints every job.
func (c *Catalog) PrintJobs(ctx context.Context, w io.Writer, jobs []string) error {
	query := `SELECT u.id, u.jobUuid, e.id, e.created,
	(SELECT COUNT(*) FROM storages s WHERE s.entityId = e.id AND NOT s.deletedFlag) AS liveStorages
FROM uuids u
JOIN entities e ON e.jobUuid = u.jobUuid`
	var args []any
	if len(jobs) > 0 {
		parts := make([]string, len(jobs))
		for i, j := range jobs {
			parts[i] = "u.jobUuid = " + c.dialect().Placeholder(len(args)+1)
			args = append(args, j)
		}
		query += " WHERE " + strings.Join(parts, " OR ")
	}
	query += " ORDER BY u.id"
	rows, err := c.db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return catalogerr.New(catalogerr.ClassQuery, "list jobs", err)
	}
	defer rows.Close()
	for rows.Next() {
		var uuidID, entityID, created, liveStorages int64
		var jobUUID string
		if err := rows.Scan(&uuidID, &jobUUID, &entityID, &created, &liveStorages); err != nil {
			return catalogerr.New(catalogerr.ClassQuery, "scan job row", err)
		}
		fmt.Fprintf(w, "job %d  %s  entity=%d  created=%s  live storages=%d\n",
			uuidID, jobUUID, entityID, formatLocalTime(created), liveStorages)
	}
	return rows.Err()
}

// RunQuery runs a pass-through SQL statement and prints its result set:
// one pre-pass to compute column widths, then one row-print pass, matching
// the printer's two-pass convention for arbitrary result shapes.
func (c *Catalog) RunQuery(ctx context.Context, w io.Writer, sqlText string, args ...any) error {
	rows, err := c.db.SQL.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return catalogerr.New(catalogerr.ClassQuery, "run query", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return catalogerr.New(catalogerr.ClassQuery, "read query columns", err)
	}
	widths := make([]int, len(cols))
	for i, col := range cols {
		widths[i] = len(col)
	}

	var buffered [][]string
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return catalogerr.New(catalogerr.ClassQuery, "scan query row", err)
		}
		strs := make([]string, len(cols))
		for i, v := range vals {
			strs[i] = formatQueryValue(v)
			if len(strs[i]) > widths[i] {
				widths[i] = len(strs[i])
			}
		}
		buffered = append(buffered, strs)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	printQueryRow(w, cols, widths)
	for i := range cols {
		fmt.Fprint(w, strings.Repeat("-", widths[i]), "  ")
	}
	fmt.Fprintln(w)
	for _, row := range buffered {
		printQueryRow(w, row, widths)
	}
	return nil
}

func printQueryRow(w io.Writer, cells []string, widths []int) {
	for i, cell := range cells {
		fmt.Fprintf(w, "%-*s  ", widths[i], cell)
	}
	fmt.Fprintln(w)
}

func formatQueryValue(v any) string {
	if v == nil {
		return "NULL"
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}

func formatLocalTime(unixSeconds int64) string {
	if unixSeconds == 0 {
		return "-"
	}
	return time.Unix(unixSeconds, 0).In(time.Local).Format("2006-01-02 15:04:05")
}

func inClauseLocal(c *Catalog, column string, ids []int64) (string, []any) {
	args := make([]any, len(ids))
	parts := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id
		parts[i] = c.dialect().Placeholder(i + 1)
	}
	return column + " IN (" + strings.Join(parts, ",") + ")", args
}
