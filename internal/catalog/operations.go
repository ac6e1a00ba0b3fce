package catalog

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/idxctl/idxctl/internal/catalogdb"
	"github.com/idxctl/idxctl/internal/catalogdb/factory"
	"github.com/idxctl/idxctl/internal/catalogerr"
)

// IDList is a set of ids selected by an `=<id,...>` option; a nil slice
// means "all live rows" wherever that distinction applies.
type IDList []int64

// Operations captures the subset of maintenance steps one invocation
// requested, parsed from the option table of spec.md §6. cmd/idxctl builds
// one value of this type from flags and hands it to Run.
type Operations struct {
	DropTables   bool
	DropTriggers bool
	DropIndices  bool

	ImportURI string

	Create         bool
	CreateTriggers bool
	CreateIndices  bool
	CreateFTS      bool
	Force          bool

	CheckIntegrity  bool
	CheckOrphaned   bool
	CheckDuplicates bool
	Check           bool

	CreateNewest        bool
	CreateNewestIDs     IDList
	CreateAggregates    bool
	AggregateEntities   bool
	AggregateEntityIDs  IDList
	AggregateStorages   bool
	AggregateStorageIDs IDList

	CleanOrphaned  bool
	CleanDuplicate bool
	Clean          bool

	Purge          bool
	PurgeIDs       IDList
	PurgeWithError bool

	Optimize bool
	Reindex  bool
	Vacuum   bool
	VacuumTo string

	Info             bool
	InfoJobs         []string
	InfoEntities     IDList
	InfoStorages     IDList
	InfoEntries      IDList
	InfoEntryType    catalogdb.EntryType
	InfoLostStorages bool
	InfoLostEntries  bool

	Query        string
	ExplainQuery bool

	// Pipe indicates the pass-through query text was read from stdin rather
	// than given as trailing arguments; Run treats it identically to Query
	// once the caller has filled it in.
	Pipe bool

	// Transaction records the --transaction flag. Run does not read it:
	// every step keeps its own transaction boundaries on every backend, and
	// no lock is held across steps. cmd/idxctl logs a warning whenever it
	// is set.
	Transaction bool

	Quiet         bool
	Time          bool
	NoForeignKeys bool
}

// Run executes the operations requested by ops against db, in the fixed
// order §2 prescribes: drop, import, create, check, clean, newest,
// aggregate, purge, reorg, info, pass-through query. Any step failing
// aborts the remaining steps and returns that step's error.
func Run(ctx context.Context, db *catalogdb.DB, ops Operations, out io.Writer) error {
	c := Open(db)

	if ops.NoForeignKeys && db.Dialect.Backend() == catalogdb.BackendSQLite {
		if _, err := db.SQL.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
			return catalogerr.New(catalogerr.ClassSchema, "disable foreign keys", err)
		}
	}

	if ops.Time {
		started := time.Now()
		defer func() { fmt.Fprintf(out, "elapsed: %s\n", time.Since(started)) }()
	}

	if ops.DropTables || ops.DropTriggers || ops.DropIndices {
		if err := runDrop(ctx, c, ops, out); err != nil {
			return err
		}
	}

	if ops.ImportURI != "" {
		if err := runImport(ctx, c, ops, out); err != nil {
			return err
		}
	}

	if ops.Create || ops.CreateTriggers || ops.CreateIndices || ops.CreateFTS {
		if err := runCreate(ctx, c, ops, out); err != nil {
			return err
		}
	}

	if ops.CheckIntegrity || ops.CheckOrphaned || ops.CheckDuplicates || ops.Check {
		if err := runCheck(ctx, c, ops, out); err != nil {
			return err
		}
	}

	if ops.CleanOrphaned || ops.CleanDuplicate || ops.Clean {
		if err := runClean(ctx, c, ops, out); err != nil {
			return err
		}
	}

	if ops.CreateNewest {
		if err := step(out, ops.Quiet, "create-newest", func() error {
			return c.CreateNewest(ctx, ops.CreateNewestIDs, progressFor(ops.Quiet, out))
		}); err != nil {
			return err
		}
	}

	if ops.CreateAggregates || ops.AggregateEntities || ops.AggregateStorages {
		if err := runAggregate(ctx, c, ops, out); err != nil {
			return err
		}
	}

	if ops.Purge || ops.PurgeWithError {
		if err := runPurge(ctx, c, ops, out); err != nil {
			return err
		}
	}

	if ops.Optimize || ops.Reindex || ops.Vacuum {
		if err := runReorg(ctx, c, ops, out); err != nil {
			return err
		}
	}

	if ops.Info || len(ops.InfoJobs) > 0 || len(ops.InfoEntities) > 0 || len(ops.InfoStorages) > 0 ||
		len(ops.InfoEntries) > 0 || ops.InfoLostStorages || ops.InfoLostEntries {
		if err := runInfo(ctx, c, ops, out); err != nil {
			return err
		}
	}

	if ops.Query != "" {
		text := ops.Query
		if ops.ExplainQuery {
			text = c.dialect().ExplainKeyword() + " " + text
		}
		if err := c.RunQuery(ctx, out, text); err != nil {
			return err
		}
	}

	return nil
}

func runDrop(ctx context.Context, c *Catalog, ops Operations, out io.Writer) error {
	return step(out, ops.Quiet, "drop", func() error {
		if ops.DropTables {
			if err := c.DropTables(ctx); err != nil {
				return err
			}
		}
		if ops.DropTriggers {
			if err := c.DropTriggers(ctx); err != nil {
				return err
			}
		}
		if ops.DropIndices {
			if err := c.DropIndices(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func runImport(ctx context.Context, c *Catalog, ops Operations, out io.Writer) error {
	return step(out, ops.Quiet, "import", func() error {
		srcDB, err := factory.Open(ctx, ops.ImportURI)
		if err != nil {
			return err
		}
		src := Open(srcDB)
		defer src.Close()
		return c.Import(ctx, src, progressFor(ops.Quiet, out))
	})
}

func runCreate(ctx context.Context, c *Catalog, ops Operations, out io.Writer) error {
	return step(out, ops.Quiet, "create", func() error {
		if ops.Create {
			if err := c.CreateSchema(ctx, ops.Force); err != nil {
				return err
			}
		}
		if ops.CreateTriggers {
			if err := c.CreateTriggers(ctx); err != nil {
				return err
			}
		}
		if ops.CreateIndices {
			if err := c.CreateIndices(ctx); err != nil {
				return err
			}
		}
		if ops.CreateFTS {
			if err := c.CreateFTSIndices(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func runCheck(ctx context.Context, c *Catalog, ops Operations, out io.Writer) error {
	depth := CheckQuick
	switch {
	case ops.Check, ops.CheckOrphaned, ops.CheckDuplicates:
		depth = CheckFull
	case ops.CheckIntegrity:
		depth = CheckForeignKeys
	}
	var report IntegrityReport
	err := step(out, ops.Quiet, "check", func() error {
		var err error
		report, err = c.CheckIntegrity(ctx, depth)
		return err
	})
	if err != nil {
		return err
	}
	if report.Total() > 0 {
		fmt.Fprintf(out, "Warning: integrity check found %d issue(s)\n", report.Total())
		return catalogerr.New(catalogerr.ClassIntegrityViolation, "check-integrity", fmt.Errorf("%d finding(s)", report.Total()))
	}
	return nil
}

func runClean(ctx context.Context, c *Catalog, ops Operations, out io.Writer) error {
	return step(out, ops.Quiet, "clean", func() error {
		if ops.CleanDuplicate && !ops.Clean && !ops.CleanOrphaned {
			_, err := c.cleanDuplicateStorages(ctx, progressFor(ops.Quiet, out))
			return err
		}
		_, err := c.Clean(ctx, progressFor(ops.Quiet, out))
		return err
	})
}

func runAggregate(ctx context.Context, c *Catalog, ops Operations, out io.Writer) error {
	return step(out, ops.Quiet, "create-aggregates", func() error {
		if ops.CreateAggregates || ops.AggregateEntities {
			if err := c.AggregateEntities(ctx, ops.AggregateEntityIDs, progressFor(ops.Quiet, out)); err != nil {
				return err
			}
		}
		if ops.CreateAggregates || ops.AggregateStorages {
			if err := c.AggregateStorages(ctx, ops.AggregateStorageIDs, progressFor(ops.Quiet, out)); err != nil {
				return err
			}
		}
		return nil
	})
}

func runPurge(ctx context.Context, c *Catalog, ops Operations, out io.Writer) error {
	return step(out, ops.Quiet, "purge", func() error {
		if ops.PurgeWithError {
			if _, err := c.PurgeWithError(ctx, progressFor(ops.Quiet, out)); err != nil {
				return err
			}
		}
		if !ops.Purge {
			return nil
		}
		if len(ops.PurgeIDs) > 0 {
			_, err := c.PurgeStorages(ctx, ops.PurgeIDs, progressFor(ops.Quiet, out))
			return err
		}
		_, err := c.PurgeDeletedStorages(ctx, progressFor(ops.Quiet, out))
		return err
	})
}

func runReorg(ctx context.Context, c *Catalog, ops Operations, out io.Writer) error {
	return step(out, ops.Quiet, "reorg", func() error {
		if ops.Optimize && c.dialect().SupportsAnalyzeCommand() {
			if _, err := c.db.SQL.ExecContext(ctx, "ANALYZE"); err != nil {
				return catalogerr.New(catalogerr.ClassSchema, "optimize", err)
			}
		}
		if ops.Reindex {
			if _, err := c.db.SQL.ExecContext(ctx, "REINDEX"); err != nil {
				return catalogerr.New(catalogerr.ClassSchema, "reindex", err)
			}
		}
		if ops.Vacuum {
			vacuum := "VACUUM"
			if ops.VacuumTo != "" {
				vacuum += " INTO '" + ops.VacuumTo + "'"
			}
			if _, err := c.db.SQL.ExecContext(ctx, vacuum); err != nil {
				return catalogerr.New(catalogerr.ClassSchema, "vacuum", err)
			}
		}
		return nil
	})
}

func runInfo(ctx context.Context, c *Catalog, ops Operations, out io.Writer) error {
	return step(out, ops.Quiet, "info", func() error {
		if ops.Info {
			summary, err := c.Summary(ctx)
			if err != nil {
				return err
			}
			PrintSummary(out, summary)
		}
		if len(ops.InfoJobs) > 0 {
			if err := c.PrintJobs(ctx, out, ops.InfoJobs); err != nil {
				return err
			}
		}
		if len(ops.InfoEntities) > 0 {
			if err := c.PrintEntities(ctx, out, ops.InfoEntities); err != nil {
				return err
			}
		}
		if len(ops.InfoStorages) > 0 {
			if err := c.PrintStorages(ctx, out, ops.InfoStorages); err != nil {
				return err
			}
		}
		if ops.InfoLostStorages {
			if err := c.PrintLostStorages(ctx, out); err != nil {
				return err
			}
		}
		if len(ops.InfoEntries) > 0 {
			if err := c.PrintEntries(ctx, out, ops.InfoEntries, ops.InfoEntryType); err != nil {
				return err
			}
		}
		if ops.InfoLostEntries {
			if err := c.PrintLostEntries(ctx, out); err != nil {
				return err
			}
		}
		return nil
	})
}

// step runs fn, printing a "label... OK"/"label... FAIL!" progress line
// unless quiet is set (spec.md §7's user-visible failure convention).
func step(out io.Writer, quiet bool, label string, fn func() error) error {
	err := fn()
	if quiet {
		return err
	}
	if err != nil {
		fmt.Fprintf(out, "%s... FAIL!\n", label)
		fmt.Fprintf(out, "ERROR: %v\n", err)
		return err
	}
	fmt.Fprintf(out, "%s... OK\n", label)
	return nil
}

func progressFor(quiet bool, out io.Writer) *catalogdb.Progress {
	if quiet {
		return &catalogdb.NoProgress
	}
	return &catalogdb.Progress{
		Step: func(perMille int) {
			if perMille == 1000 {
				fmt.Fprintf(out, "  %d%%\n", perMille/10)
			}
		},
	}
}
