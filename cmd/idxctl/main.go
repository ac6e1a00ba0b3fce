// Command idxctl maintains a deduplicating backup system's catalog database:
// schema creation, cross-version import, integrity checks, the newest-entry
// projection, aggregate rollups, orphan cleanup, and storage/entity purge.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/idxctl/idxctl/internal/catalog"
	"github.com/idxctl/idxctl/internal/catalogdb"
	"github.com/idxctl/idxctl/internal/catalogdb/factory"
	"github.com/idxctl/idxctl/internal/catalogerr"
	"github.com/idxctl/idxctl/internal/config"
)

var (
	// rootCtx is the signal-aware context every step runs under, so an
	// interrupt mid-purge aborts at the next transaction boundary instead
	// of mid-write.
	rootCtx    context.Context
	rootCancel context.CancelFunc

	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "idxctl <database-uri> [sql-command...]",
	Short: "idxctl - backup catalog maintenance",
	Long: `idxctl opens a deduplicating backup system's catalog database and runs the
maintenance steps selected by its flags, in the fixed order: drop, import,
create, check, clean, newest, aggregate, purge, reorg, info, query.

The database-uri is one of:
  [sqlite:]<path>
  mariadb:<server>:<user>[:<password>]
  postgresql:<server>:<user>[:<password>]

Trailing arguments, or --pipe's stdin, are run as a pass-through SQL
statement once every other requested step has finished.`,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE:         runIdxctl,
}

func init() {
	bindFlags(rootCmd)
}

func bindFlags(cmd *cobra.Command) {
	f := cmd.Flags()

	f.StringVar(&configPath, "config", "", "Path to a TOML config file")

	f.BoolVar(&infoFlag, "info", false, "Print catalog summary")
	f.StringVar(&infoJobs, "info-jobs", "", "Print per-job detail (id|UUID,...)")
	f.StringVar(&infoEntities, "info-entities", "", "Print per-entity detail (id,...)")
	f.StringVar(&infoEntries, "info-entries", "", "Print per-entry detail (id|name,...)")
	f.StringVar(&infoEntryType, "entry-type", "", "Filter --info-entries by type (file, image, directory, link, hardlink, special)")
	f.StringVar(&infoStorages, "info-storages", "", "Print per-storage detail (id|name,...)")
	f.BoolVar(&infoLostStorages, "info-lost-storages", false, "Print soft-deleted storages")
	f.BoolVar(&infoLostEntries, "info-lost-entries", false, "Print entries whose storage is gone")

	f.BoolVar(&checkIntegrity, "check-integrity", false, "Validate foreign-key edges")
	f.BoolVar(&checkOrphaned, "check-orphaned", false, "Validate structure, foreign keys, orphan rows, and duplicate storage names")
	f.BoolVar(&checkDuplicates, "check-duplicates", false, "Validate adjacent-duplicate storage names (runs every integrity check)")
	f.BoolVar(&checkFlag, "check", false, "Run every integrity check")

	f.BoolVar(&createFlag, "create", false, "Create the schema")
	f.BoolVar(&createTriggers, "create-triggers", false, "Create triggers")
	f.BoolVar(&createIndices, "create-indices", false, "Create indices")
	f.BoolVar(&createFTS, "create-fts-indices", false, "Create full-text search indices")
	f.StringVar(&createNewest, "create-newest", "", "Project newest entries (empty = full rebuild, or storage-ids,...)")
	f.Lookup("create-newest").NoOptDefVal = " "
	f.StringVar(&createAggEnts, "create-aggregates-entities", "", "Recompute entity aggregates (empty = all, or entity-ids,...)")
	f.Lookup("create-aggregates-entities").NoOptDefVal = " "
	f.StringVar(&createAggStors, "create-aggregates-storages", "", "Recompute storage aggregates (empty = all, or storage-ids,...)")
	f.Lookup("create-aggregates-storages").NoOptDefVal = " "
	f.BoolVar(&createAggAll, "create-aggregates", false, "Recompute every entity and storage aggregate")

	f.BoolVar(&cleanOrphaned, "clean-orphaned", false, "Remove orphaned rows (also soft-deletes duplicate storages)")
	f.BoolVar(&cleanDuplicate, "clean-duplicates", false, "Soft-delete duplicate storages")
	f.BoolVar(&cleanFlag, "clean", false, "Run every cleanup stage")

	f.BoolVar(&purgeFlag, "purge", false, "Purge soft-deleted storages")
	f.BoolVar(&purgeWithError, "purge-with-error", false, "Purge storages left in an error state")

	f.BoolVar(&optimizeFlag, "optimize", false, "Run backend-specific ANALYZE")
	f.BoolVar(&reindexFlag, "reindex", false, "Rebuild indices")
	f.StringVar(&vacuumTo, "vacuum", "", "Compact the database (optionally into <file>)")
	f.Lookup("vacuum").NoOptDefVal = " "

	f.BoolVar(&dropTables, "drop-tables", false, "Drop every table")
	f.BoolVar(&dropTriggers, "drop-triggers", false, "Drop every trigger")
	f.BoolVar(&dropIndices, "drop-indices", false, "Drop every index")

	f.StringVar(&importURI, "import", "", "Import another catalog's rows from <uri>")

	f.BoolVar(&transactionFlag, "transaction", false, "Accepted but has no effect: each step keeps its own transaction (a warning is logged)")
	f.BoolVar(&noForeignKeys, "no-foreign-keys", false, "Disable foreign-key enforcement for this invocation")
	f.BoolVar(&forceFlag, "force", false, "Overwrite an existing schema on --create")
	f.BoolVar(&pipeFlag, "pipe", false, "Read the pass-through SQL statement from stdin")
	f.BoolVarP(&quietFlag, "quiet", "q", false, "Suppress step progress output")
	f.BoolVar(&timeFlag, "time", false, "Print elapsed time on exit")
	f.BoolVar(&explainQuery, "explain-query", false, "Prepend EXPLAIN to the pass-through query")
}

func runIdxctl(cmd *cobra.Command, args []string) error {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer rootCancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return catalogerr.New(catalogerr.ClassInvalidArgument, "load config", err)
	}
	if !cmd.Flags().Changed("quiet") && cfg.Quiet {
		quietFlag = true
	}

	level := slog.LevelWarn
	if !quietFlag {
		level = slog.LevelInfo
	}
	log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var uriArg string
	var query []string
	switch {
	case len(args) > 0:
		uriArg, query = args[0], args[1:]
	case cfg.DatabaseURI != "":
		uriArg = cfg.DatabaseURI
	default:
		return catalogerr.New(catalogerr.ClassInvalidArgument, "parse arguments",
			fmt.Errorf("missing database-uri (pass it as an argument or set database-uri in the config file)"))
	}
	if vacuumTo == " " {
		vacuumTo = ""
	}

	ops, err := buildOperations(query)
	if err != nil {
		return catalogerr.New(catalogerr.ClassInvalidArgument, "parse options", err)
	}
	if ops.Transaction {
		log.Warn("--transaction requested; each maintenance step still runs under its own lock scope")
	}

	db, err := openWithPasswordPrompt(rootCtx, uriArg)
	if err != nil {
		return err
	}
	defer db.Close()

	err = catalog.Run(rootCtx, db, ops, cmd.OutOrStdout())
	if err != nil {
		log.Error("maintenance run failed", "error", err)
	}
	return err
}

// openWithPasswordPrompt parses uriArg and opens it, prompting interactively
// for a password on an authorization failure against the client/server
// backends when the uri omitted one (spec.md §6).
func openWithPasswordPrompt(ctx context.Context, uriArg string) (*catalogdb.DB, error) {
	u, err := catalogdb.ParseURI(uriArg)
	if err != nil {
		return nil, err
	}

	db, err := factory.OpenURI(ctx, u)
	if err == nil {
		return db, nil
	}
	if u.Backend == catalogdb.BackendSQLite || u.HasPW || !catalogerr.Is(err, catalogerr.ClassAuthorizationRequired) {
		return nil, err
	}

	fmt.Fprintf(os.Stderr, "Password for %s@%s: ", u.User, u.Server)
	pw, readErr := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if readErr != nil {
		return nil, catalogerr.New(catalogerr.ClassAuthorizationRequired, "read password", readErr)
	}
	u.Password = string(pw)
	u.HasPW = true
	return factory.OpenURI(ctx, u)
}

// buildOperations assembles the Operations value Run consumes from the
// parsed flags and the trailing pass-through SQL arguments.
func buildOperations(query []string) (catalog.Operations, error) {
	var ops catalog.Operations
	var err error

	ops.Quiet = quietFlag
	ops.Time = timeFlag
	ops.NoForeignKeys = noForeignKeys
	ops.Transaction = transactionFlag
	ops.ExplainQuery = explainQuery
	ops.Force = forceFlag

	ops.DropTables = dropTables
	ops.DropTriggers = dropTriggers
	ops.DropIndices = dropIndices

	ops.ImportURI = importURI

	ops.Create = createFlag
	ops.CreateTriggers = createTriggers
	ops.CreateIndices = createIndices
	ops.CreateFTS = createFTS

	ops.CheckIntegrity = checkIntegrity
	ops.CheckOrphaned = checkOrphaned
	ops.CheckDuplicates = checkDuplicates
	ops.Check = checkFlag

	if rootCmd.Flags().Changed("create-newest") {
		ops.CreateNewest = true
		if ops.CreateNewestIDs, err = parseIDList(strings.TrimSpace(createNewest)); err != nil {
			return ops, err
		}
	}
	ops.CreateAggregates = createAggAll
	if rootCmd.Flags().Changed("create-aggregates-entities") {
		ops.AggregateEntities = true
		if ops.AggregateEntityIDs, err = parseIDList(strings.TrimSpace(createAggEnts)); err != nil {
			return ops, err
		}
	}
	if rootCmd.Flags().Changed("create-aggregates-storages") {
		ops.AggregateStorages = true
		if ops.AggregateStorageIDs, err = parseIDList(strings.TrimSpace(createAggStors)); err != nil {
			return ops, err
		}
	}

	ops.CleanOrphaned = cleanOrphaned
	ops.CleanDuplicate = cleanDuplicate
	ops.Clean = cleanFlag

	ops.Purge = purgeFlag
	ops.PurgeWithError = purgeWithError

	ops.Optimize = optimizeFlag
	ops.Reindex = reindexFlag
	ops.Vacuum = rootCmd.Flags().Changed("vacuum")
	ops.VacuumTo = vacuumTo

	ops.Info = infoFlag
	ops.InfoJobs = parseStringList(infoJobs)
	if ops.InfoEntities, err = parseIDList(infoEntities); err != nil {
		return ops, err
	}
	if ops.InfoEntries, err = parseIDList(infoEntries); err != nil {
		return ops, err
	}
	if ops.InfoEntryType, err = parseEntryTypeFlag(infoEntryType); err != nil {
		return ops, err
	}
	if ops.InfoStorages, err = parseIDList(infoStorages); err != nil {
		return ops, err
	}
	ops.InfoLostStorages = infoLostStorages
	ops.InfoLostEntries = infoLostEntries

	ops.Pipe = pipeFlag
	switch {
	case pipeFlag:
		raw, readErr := readAllStdin()
		if readErr != nil {
			return ops, readErr
		}
		ops.Query = raw
	case len(query) > 0:
		ops.Query = strings.Join(query, " ")
	}

	return ops, nil
}

func readAllStdin() (string, error) {
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(catalogerr.ExitCode(err))
	}
}
