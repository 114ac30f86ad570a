package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mmcdole/recents/internal/config"
	"github.com/mmcdole/recents/internal/domain"
	"github.com/mmcdole/recents/internal/search"
	"github.com/mmcdole/recents/internal/service"
	"github.com/mmcdole/recents/internal/tui"
)

func newListCmd(a *app) *cobra.Command {
	var (
		query   string
		refresh bool
	)
	cmd := &cobra.Command{
		Use:   "list <namespace>",
		Short: "Print the list, most recently opened first",
		Long: `Print the cached list of a namespace, most recently opened first.

With --sync the source is fetched first. If the fetch fails the cached list
is still printed and the command exits non-zero.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(args[0], nil)
			if err != nil {
				return err
			}

			records := svc.Cached()
			var fetchErr error
			if refresh {
				records, fetchErr = svc.Refresh(cmd.Context())
			}
			records = search.Filter(query, records)

			if err := a.printRecords(cmd, records, svc.Entries()); err != nil {
				return err
			}
			return fetchErr
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "only show records fuzzy-matching the query")
	cmd.Flags().BoolVarP(&refresh, "sync", "s", false, "fetch the source before printing")
	return cmd
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <namespace>",
		Short: "Fetch the source and reconcile it with the recency index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(args[0], nil)
			if err != nil {
				return err
			}
			records, err := svc.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(cmd, map[string]any{
					"namespace": svc.Namespace(),
					"records":   len(records),
					"recent":    len(svc.Entries()),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d records, %d recent\n", svc.Namespace(), len(records), len(svc.Entries()))
			return nil
		},
	}
}

func newTouchCmd(a *app) *cobra.Command {
	var open bool
	cmd := &cobra.Command{
		Use:     "touch <namespace> <id>",
		Aliases: []string{"open"},
		Short:   "Mark a record as just opened",
		Long: `Mark a record as just opened so it sorts first.

The record must be cached or known to the source; unknown ids are fetched
once before giving up. Use "add" for records the source does not list.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(args[0], nil)
			if err != nil {
				return err
			}
			id := args[1]

			act := svc.Open
			if open {
				act = svc.Launch
			}

			rec, err := act(id)
			if errors.Is(err, domain.ErrNotFound) && svc.HasSource() {
				if _, ferr := svc.Refresh(cmd.Context()); ferr != nil {
					return fmt.Errorf("%w (refresh failed: %v)", err, ferr)
				}
				rec, err = act(id)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
			return a.printRecord(cmd, rec)
		},
	}
	cmd.Flags().BoolVarP(&open, "open", "o", false, "also open the record's url")
	return cmd
}

func newAddCmd(a *app) *cobra.Command {
	var (
		rec    domain.Record
		fields []string
	)
	cmd := &cobra.Command{
		Use:   "add <namespace> <id>",
		Short: "Add or update a record and mark it as just opened",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(args[0], nil)
			if err != nil {
				return err
			}
			rec.ID = strings.TrimSpace(args[1])
			if rec.Fields, err = parseFields(fields); err != nil {
				return err
			}
			if err := svc.Add(rec); err != nil {
				return err
			}
			return a.printRecord(cmd, rec)
		},
	}
	cmd.Flags().StringVarP(&rec.Title, "title", "t", "", "display title")
	cmd.Flags().StringVar(&rec.Subtitle, "subtitle", "", "secondary text")
	cmd.Flags().StringVarP(&rec.URL, "url", "u", "", "url to open")
	cmd.Flags().StringArrayVarP(&fields, "field", "f", nil, "extra key=value field (repeatable)")
	return cmd
}

func parseFields(kvs []string) (map[string]string, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	fields := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid field %q, want key=value", kv)
		}
		fields[strings.TrimSpace(k)] = v
	}
	return fields, nil
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <namespace> <id>...",
		Aliases: []string{"rm", "forget"},
		Short:   "Forget records",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(args[0], nil)
			if err != nil {
				return err
			}
			removed := make([]string, 0, len(args)-1)
			for _, id := range args[1:] {
				if svc.Forget(id) {
					removed = append(removed, id)
				}
			}
			if a.jsonOut {
				return a.printJSON(cmd, map[string]any{"removed": removed})
			}
			for _, id := range args[1:] {
				if slices.Contains(removed, id) {
					fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", id)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "not found %s\n", id)
				}
			}
			return nil
		},
	}
}

func newPickCmd(a *app) *cobra.Command {
	var open bool
	cmd := &cobra.Command{
		Use:   "pick <namespace>",
		Short: "Choose a record interactively",
		Long: `Show the cached list immediately, refresh it in the background, and
print the chosen record. The choice counts as opening it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stderr.Fd())) {
				return errors.New("pick needs an interactive terminal")
			}

			persisted := make(chan domain.PersistResult, 8)
			svc, err := a.service(args[0], tui.NewChannelObserver(persisted))
			if err != nil {
				return err
			}

			model := tui.NewModel(svc, persisted, a.logger)
			// Render on stderr so stdout carries only the choice.
			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithOutput(os.Stderr), tea.WithContext(cmd.Context()))
			final, err := p.Run()
			if err != nil {
				a.logger.Error("TUI error", "error", err)
				return fmt.Errorf("TUI error: %w", err)
			}

			rec, ok := final.(tui.Model).Chosen()
			if !ok {
				return nil
			}
			if open {
				if err := svc.OpenURL(rec); err != nil {
					return err
				}
			}
			return a.printRecord(cmd, rec)
		},
	}
	cmd.Flags().BoolVarP(&open, "open", "o", false, "open the chosen record's url")
	return cmd
}

func newClearCmd(a *app) *cobra.Command {
	var all, purge bool
	cmd := &cobra.Command{
		Use:   "clear [namespace]",
		Short: "Delete stored recency state",
		Long: `Delete the stored recency state of one namespace, or of all namespaces
with --all. --purge removes the whole storage directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case purge:
				if err := a.close(); err != nil {
					return err
				}
				if err := a.cfg.ClearCache(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", a.cfg.GetCachePath())
				return nil
			case all:
				if err := a.store.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "cleared all namespaces")
				return nil
			case len(args) == 1:
				if err := config.ValidateName(args[0]); err != nil {
					return err
				}
				name := config.NormalizeName(args[0])
				if err := service.ClearNamespace(a.store, name); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", name)
				return nil
			default:
				return errors.New("name a namespace or pass --all")
			}
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "clear every namespace")
	cmd.Flags().BoolVar(&purge, "purge", false, "remove the storage directory")
	return cmd
}

func newNamespacesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "namespaces",
		Aliases: []string{"ns"},
		Short:   "List configured and stored namespaces",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stored, err := service.StoredNamespaces(a.store)
			if err != nil {
				return err
			}

			type row struct {
				Name   string `json:"name"`
				Source string `json:"source,omitempty"`
				Stored bool   `json:"stored"`
			}
			byName := make(map[string]*row)
			for name, nc := range a.cfg.Namespaces {
				name = config.NormalizeName(name)
				byName[name] = &row{Name: name, Source: string(nc.Source.Type)}
			}
			for _, name := range stored {
				if r, ok := byName[name]; ok {
					r.Stored = true
				} else {
					byName[name] = &row{Name: name, Stored: true}
				}
			}

			rows := make([]row, 0, len(byName))
			for _, r := range byName {
				rows = append(rows, *r)
			}
			slices.SortFunc(rows, func(x, y row) int { return strings.Compare(x.Name, y.Name) })

			if a.jsonOut {
				return a.printJSON(cmd, rows)
			}
			tw := newTabWriter(cmd.OutOrStdout())
			fmt.Fprintln(tw, "NAME\tSOURCE\tSTORED")
			for _, r := range rows {
				src := r.Source
				if src == "" {
					src = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%t\n", r.Name, src, r.Stored)
			}
			return tw.Flush()
		},
	}
}
