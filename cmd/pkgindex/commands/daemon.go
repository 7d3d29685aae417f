package commands

import (
	"log/slog"

	"git.home.luguber.info/inful/pkgindex/internal/daemon"
	"git.home.luguber.info/inful/pkgindex/internal/logfields"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	Selection `embed:""`
	KeepGoing bool `short:"k" help:"Drop failing packages instead of aborting" default:"true" negatable:""`
}

func (d *DaemonCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config, d.Selection)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	st, err := newStack(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer st.Close()

	dm, err := daemon.New(cfg, st.svc, daemon.Options{
		ConfigPath:   root.Config,
		KeepGoing:    d.KeepGoing,
		Board:        d.Board,
		PackagesFile: d.Packages,
		Metrics:      st.recorder,
		History:      st.projection,
	})
	if err != nil {
		return err
	}

	slog.Info("Starting daemon", logfields.Path(root.Config),
		slog.String("interval", cfg.Daemon.Interval),
		slog.String("cron", cfg.Daemon.Cron),
		slog.Bool("watch", cfg.Daemon.Watch))
	if err := dm.Run(ctx); err != nil {
		return err
	}
	slog.Info("Daemon stopped")
	return nil
}
