// Package cmd implements the taskgraph command-line interface. Every query
// command writes JSON to stdout; diagnostics go to stderr.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aristath/taskgraph/internal/config"
	"github.com/aristath/taskgraph/internal/logger"
	"github.com/aristath/taskgraph/internal/persistence"
	"github.com/aristath/taskgraph/internal/store"
	"github.com/aristath/taskgraph/internal/taskfile"
)

// app holds the state shared by all subcommands of one invocation.
type app struct {
	tasksDir   string
	dbPath     string
	configPath string
	logLevel   string

	// projectConfig is the resolved project config path
	projectConfig string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "taskgraph",
		Short: "Dependency analysis for task files",
		Long: `taskgraph reads a set of task records with declared dependencies and
answers scheduling questions about them: which tasks are ready, which ones
conflict, what the critical path is and how the work splits into waves.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	// Global flags
	root.PersistentFlags().StringVarP(&a.tasksDir, "tasks", "t", "", "directory of task files (default from config, \"tasks\")")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database holding task records")
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "project config file (default .taskgraph/config.json)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newReadyCommand(a),
		newValidateCommand(a),
		newConflictsCommand(a),
		newCriticalPathCommand(a),
		newBottlenecksCommand(a),
		newWavesCommand(a),
		newStrandedCommand(a),
		newShowCommand(a),
		newScopeCommand(a),
		newGraphCommand(a),
		newStatusCommand(a),
		newImportCommand(a),
		newSimulateCommand(a),
		newWatchCommand(a),
		newConfigCommand(a),
	)
	return root
}

// setup loads configuration, applies flag overrides and sets up logging.
func (a *app) setup(cmd *cobra.Command) error {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath == "" {
		_, a.projectConfig, _ = config.DefaultPaths()
		cfg, err = config.LoadDefault()
	} else {
		a.projectConfig = a.configPath
		global, _, _ := config.DefaultPaths()
		cfg, err = config.Load(global, a.configPath)
	}
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("tasks") {
		cfg.TaskDir = a.tasksDir
	}
	if flags.Changed("db") {
		cfg.Database = a.dbPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	// Flag overrides go through the same checks as file values
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger.Setup(cfg.LogLevel, cmd.ErrOrStderr())
	return nil
}

// openDB opens the configured database, or returns nil when none is set.
func (a *app) openDB(ctx context.Context) (*persistence.SQLiteStore, error) {
	if a.cfg.Database == "" {
		return nil, nil
	}
	db, err := persistence.NewSQLiteStore(ctx, a.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", a.cfg.Database, err)
	}
	return db, nil
}

// source returns where task records come from: the database when one is
// configured, the task directory otherwise. The returned closer is never nil.
func (a *app) source(ctx context.Context) (store.Source, func(), error) {
	db, err := a.openDB(ctx)
	if err != nil {
		return nil, nil, err
	}
	if db != nil {
		return db, func() {
			if err := db.Close(); err != nil {
				a.logger.Warn("failed to close database", "error", err)
			}
		}, nil
	}
	return taskfile.Dir(a.cfg.TaskDir), func() {}, nil
}

// loadStore builds a task store from the configured source.
func (a *app) loadStore(ctx context.Context, opts ...store.Option) (*store.Store, error) {
	src, closeSrc, err := a.source(ctx)
	if err != nil {
		return nil, err
	}
	defer closeSrc()

	st := store.New(append([]store.Option{store.WithLogger(a.logger)}, opts...)...)
	if err := st.LoadFrom(ctx, src); err != nil {
		return nil, err
	}
	a.logger.Debug("tasks loaded", "tasks", st.Graph().Len())
	return st, nil
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	return reportError(stdout, stderr, err)
}
