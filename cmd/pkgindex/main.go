package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/pkgindex/cmd/pkgindex/commands"
	"git.home.luguber.info/inful/pkgindex/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgindex/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("pkgindex"),
		kong.Description("Generate compile_commands.json and gn_targets.json for ChromiumOS packages."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)
	err := parser.Run(&commands.Global{Logger: slog.Default()}, cli)
	errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
}
