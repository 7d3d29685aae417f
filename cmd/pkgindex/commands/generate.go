package commands

import (
	"fmt"

	"git.home.luguber.info/inful/pkgindex/internal/build"
)

// GenerateCmd implements the 'generate' command.
type GenerateCmd struct {
	Selection `embed:""`
	KeepGoing bool `short:"k" help:"Drop failing packages instead of aborting"`
}

func (g *GenerateCmd) Run(global *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config, g.Selection)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	st, err := newStack(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := st.svc.Run(ctx, build.Request{Config: cfg, KeepGoing: g.KeepGoing})
	if res != nil {
		printResult(global, res)
	}
	return err
}

func printResult(global *Global, res *build.Result) {
	w := global.out()
	m := res.Manifest
	fmt.Fprintf(w, "Run %s finished: %s\n", res.RunID, res.Status)
	fmt.Fprintf(w, "  packages: %d indexed, %d skipped\n", m.Counts.Packages, m.Counts.Skipped)
	if res.CompileCommandsPath != "" {
		fmt.Fprintf(w, "  %s (%d entries)\n", res.CompileCommandsPath, m.Counts.CompileCommands)
	}
	if res.GnTargetsPath != "" {
		fmt.Fprintf(w, "  %s (%d targets)\n", res.GnTargetsPath, m.Counts.Targets)
	}
	if res.ReportPath != "" {
		fmt.Fprintf(w, "  report: %s\n", res.ReportPath)
	}
}
