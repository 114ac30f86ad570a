package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmcdole/recents/internal/config"
	"github.com/mmcdole/recents/internal/domain"
	"github.com/mmcdole/recents/internal/launcher"
	"github.com/mmcdole/recents/internal/logging"
	"github.com/mmcdole/recents/internal/recents"
	"github.com/mmcdole/recents/internal/service"
	"github.com/mmcdole/recents/internal/source"
	"github.com/mmcdole/recents/internal/store"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// app holds what every command shares: flags, configuration, the logger,
// the store, and the services opened during the run.
type app struct {
	configPath string
	storageDir string
	jsonOut    bool

	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	services []*service.RecentsService
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "recents",
		Short: "Most-recently-used ordering for lists you fetch from elsewhere",
		Long: `recents remembers which records you opened and puts them first the next
time the list is fetched. The source decides what exists; recents only
decides the order.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.setup() },
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default ~/.config/recents/config.yaml)")
	root.PersistentFlags().StringVar(&a.storageDir, "storage-dir", "", "override the storage directory (\"-\" keeps everything in memory)")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print JSON")

	root.AddCommand(
		newListCmd(a),
		newSyncCmd(a),
		newTouchCmd(a),
		newAddCmd(a),
		newRemoveCmd(a),
		newPickCmd(a),
		newClearCmd(a),
		newNamespacesCmd(a),
	)
	return root
}

// setup loads configuration, the logger, and the store
func (a *app) setup() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	switch a.storageDir {
	case "":
	case "-":
		cfg.Storage.Dir = ""
	default:
		cfg.Storage.Dir = a.storageDir
	}
	a.cfg = cfg

	logger, err := logging.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = logging.NullLogger()
	}
	slog.SetDefault(logger)
	a.logger = logger

	st, err := store.Open(cfg.Storage.Dir)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	a.store = st
	logger.Debug("opened storage", "path", st.Path())
	return nil
}

// service opens the recents service of a namespace. observer may be nil.
func (a *app) service(name string, observer domain.PersistObserver) (*service.RecentsService, error) {
	ns, err := a.cfg.Namespace(name)
	if err != nil {
		return nil, err
	}

	var src domain.Source
	if ns.Source.Type != "" {
		if src, err = source.New(ns.Source, a.logger); err != nil {
			return nil, fmt.Errorf("namespace %s: %w", ns.Name, err)
		}
	}

	rec := recents.New(a.store, recents.Options{
		Namespace:      ns.Name,
		Limit:          ns.Limit,
		KeepDuplicates: ns.KeepDuplicates,
		PruneMissing:   ns.PruneMissing,
		Observer:       observer,
	}, a.logger)
	if err := rec.Init(); err != nil {
		return nil, err
	}

	opener := launcher.New(a.cfg.Open.Command, a.cfg.Open.Args, a.logger)
	svc := service.NewRecentsService(src, rec, opener, a.logger)
	a.services = append(a.services, svc)
	return svc, nil
}

// close flushes every service, then closes the store
func (a *app) close() error {
	var errs []error
	for _, svc := range a.services {
		if err := svc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to save %s: %w", svc.Namespace(), err))
		}
	}
	a.services = nil
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
		a.store = nil
	}
	return errors.Join(errs...)
}
