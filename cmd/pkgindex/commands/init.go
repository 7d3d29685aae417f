package commands

import (
	"fmt"

	"git.home.luguber.info/inful/pkgindex/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool `help:"Overwrite existing configuration file"`
}

func (i *InitCmd) Run(global *Global, root *CLI) error {
	w := global.out()
	fmt.Fprintf(w, "Writing configuration to %s\n", root.Config)
	if err := config.Init(root.Config, i.Force); err != nil {
		return err
	}
	fmt.Fprintln(w, "Edit setup.cros_dir and setup.board, then run 'pkgindex generate'")
	return nil
}
