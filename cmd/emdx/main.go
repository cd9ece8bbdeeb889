// Command emdx is the thin CLI boundary over the knowledge-base core:
// cobra parses flags and renders output; every operation it performs is
// a single call into internal/documents, internal/search, internal/tasks,
// internal/executor, or internal/recipes. No business logic lives in
// this package.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arockwell/emdx/internal/config"
	"github.com/arockwell/emdx/internal/documents"
	"github.com/arockwell/emdx/internal/eventbus"
	"github.com/arockwell/emdx/internal/executor"
	"github.com/arockwell/emdx/internal/search"
	"github.com/arockwell/emdx/internal/storage"
	"github.com/arockwell/emdx/internal/tasks"
	"github.com/arockwell/emdx/internal/types"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

// app bundles the lazily-opened core handles a command needs. It is built
// once in rootCmd's PersistentPreRunE and stored in the package-level
// theApp variable, which every subcommand's RunE closure reads.
type app struct {
	cfg   config.Config
	log   *zap.SugaredLogger
	db    *storage.DB
	docs  *documents.Store
	srch  *search.Store
	tasks *tasks.Store
	bus   *eventbus.Bus
	exec  *executor.Engine
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.log.Sync()
}

var (
	flagConfigDir string
	flagJSON      bool
	flagVerbose   bool

	theApp *app
)

func newLogger(verbose bool) *zap.SugaredLogger {
	var zcfg zap.Config
	if verbose {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.DisableStacktrace = true
	}
	l, err := zcfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

func bootstrap(ctx context.Context) (*app, error) {
	log := newLogger(flagVerbose)

	cfg, err := config.Load(flagConfigDir)
	if err != nil {
		return nil, types.WrapError(types.ErrKindStorageUnavailable, err, "load config")
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, types.WrapError(types.ErrKindStorageUnavailable, err, "create config/state/log directories")
	}

	db, err := storage.Open(ctx, cfg.DBPath, log)
	if err != nil {
		return nil, types.WrapError(types.ErrKindStorageUnavailable, err, "open database at %s", cfg.DBPath)
	}

	docs := documents.New(db, log)
	embedder := newHashEmbedder()
	srch := search.New(db, embedder)
	taskStore := tasks.New(db)
	bus := eventbus.New()

	runner := newCLIAgentRunner()
	vcs := newGHVcsHost()
	engine := executor.New(db, docs, cfg, bus, runner, vcs, log)
	if n, err := engine.ReconcileStartup(ctx); err != nil {
		log.Warnw("startup execution reconciliation failed", "error", err)
	} else if n > 0 {
		log.Infow("reconciled orphaned executions at startup", "count", n)
	}

	return &app{
		cfg:   cfg,
		log:   log,
		db:    db,
		docs:  docs,
		srch:  srch,
		tasks: taskStore,
		bus:   bus,
		exec:  engine,
	}, nil
}

// exitCodeFor maps an error kind to the exit-code contract external
// callers observe: 0 success, 1 generic failure, 2 invalid input, 124
// timeout, 130 cancelled.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var e *types.Error
	if !errors.As(err, &e) {
		return 1
	}
	switch e.Kind {
	case types.ErrKindInvalidInput:
		return 2
	case types.ErrKindTimeout:
		return 124
	case types.ErrKindKilled:
		return 130
	default:
		return 1
	}
}

// printResult renders v as JSON when --json is set, otherwise delegates
// to human, which is responsible for its own formatting.
func printResult(v any, human func()) error {
	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human()
	return nil
}

func fail(kind types.ErrorKind, format string, args ...any) error {
	return types.NewError(kind, format, args...)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "emdx",
		Short:         "emdx - local-first knowledge base and agent-execution platform",
		Long:          "emdx stores documents, tasks, and delegate-execution history in a single SQLite file and exposes save/find/task/delegate operations over it.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			cmd.SetContext(ctx)
			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			theApp = a
			go func() {
				<-ctx.Done()
				cancel()
			}()
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if theApp != nil {
				theApp.close()
			}
		},
	}

	root.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "override EMDX_CONFIG_DIR / default config directory")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "machine-readable JSON output")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose structured logging")

	if v := os.Getenv("EMDX_CONFIG_DIR"); v != "" && flagConfigDir == "" {
		flagConfigDir = v
	}

	root.AddCommand(
		newSaveCmd(), newViewCmd(), newEditCmd(), newDeleteCmd(),
		newRestoreCmd(), newPurgeCmd(), newArchiveCmd(), newUnarchiveCmd(),
		newFindCmd(), newListCmd(), newRecentCmd(), newSimilarCmd(), newAskCmd(), newContextCmd(),
		newTagCmd(),
		newTaskCmd(),
		newDelegateCmd(),
		newExecCmd(),
		newMaintainCmd(),
		newRecipeCmd(), newSkillCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("emdx version %s\n", Version)
			return nil
		},
	}
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCodeFor(err))
	}
}
