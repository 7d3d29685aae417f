package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"

	"git.home.luguber.info/inful/pkgindex/internal/config"
	"git.home.luguber.info/inful/pkgindex/internal/eventstore"
	"git.home.luguber.info/inful/pkgindex/internal/foundation/errors"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit   int    `short:"n" help:"Number of runs to show" default:"20"`
	Package string `short:"P" help:"Show the skips and conflicts recorded for a package across runs"`
	RunID   string `arg:"" optional:"" name:"run-id" help:"Show the events of a single run"`
}

func (h *HistoryCmd) Run(global *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	if cfg.History.Database == "" {
		return errors.ConfigError("run history is disabled (set history.database)").Build()
	}

	ctx := context.Background()
	store, projection, err := openHistory(ctx, cfg.History.Database)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	switch {
	case h.RunID != "":
		events, err := store.GetByRunID(ctx, h.RunID)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return errors.NewError(errors.CategoryNotFound, "no events recorded for run").
				WithContext("run_id", h.RunID).
				Build()
		}
		return printEvents(global, events, false)
	case h.Package != "":
		events, err := store.GetByPackage(ctx, h.Package)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintf(global.out(), "Nothing recorded for %s\n", h.Package)
			return nil
		}
		return printEvents(global, events, true)
	}
	return h.printRuns(global, projection)
}

func (h *HistoryCmd) printRuns(global *Global, projection *eventstore.RunHistoryProjection) error {
	w := global.out()
	runs := projection.History()
	if active := projection.Active(); active != nil {
		runs = append([]*eventstore.RunSummary{active}, runs...)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}
	if h.Limit > 0 && len(runs) > h.Limit {
		runs = runs[:h.Limit]
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.RunID,
			r.Status,
			r.StartedAt.Local().Format(time.DateTime),
			r.Duration.Round(time.Millisecond).String(),
			fmt.Sprint(r.Packages),
			fmt.Sprint(len(r.Skipped)),
			fmt.Sprint(r.Conflicts),
		})
	}
	table := tablewriter.NewWriter(w)
	table.Header("Run", "Status", "Started", "Duration", "Packages", "Skipped", "Conflicts")
	if err := table.Bulk(rows); err != nil {
		return fmt.Errorf("render history: %w", err)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render history: %w", err)
	}
	return nil
}

func printEvents(global *Global, events []eventstore.Event, withRun bool) error {
	header := []any{"Time", "Event", "Payload"}
	if withRun {
		header = append([]any{"Run"}, header...)
	}
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		row := []string{
			e.Timestamp().Local().Format(time.DateTime),
			e.Type(),
			string(e.Payload()),
		}
		if withRun {
			row = append([]string{e.RunID()}, row...)
		}
		rows = append(rows, row)
	}
	table := tablewriter.NewWriter(global.out())
	table.Header(header...)
	if err := table.Bulk(rows); err != nil {
		return fmt.Errorf("render events: %w", err)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render events: %w", err)
	}
	return nil
}
