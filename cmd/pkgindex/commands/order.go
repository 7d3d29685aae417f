package commands

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"

	"git.home.luguber.info/inful/pkgindex/internal/conductor"
	"git.home.luguber.info/inful/pkgindex/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgindex/internal/packages"
)

// OrderCmd implements the 'order' command.
type OrderCmd struct {
	Selection `embed:""`
}

func (o *OrderCmd) Run(global *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config, o.Selection)
	if err != nil {
		return err
	}

	descs, err := packages.LoadDescriptors(cfg.Packages.File)
	if err != nil {
		return errors.WrapError(err, errors.CategoryValidation, "cannot load package list").
			WithContext("path", cfg.Packages.File).
			Build()
	}
	skip, err := packages.NewSkipList(cfg.Packages.Skip)
	if err != nil {
		return errors.WrapError(err, errors.CategoryConfig, "invalid skip pattern").Build()
	}
	sel := packages.Select(descs, skip)
	pkgs, err := packages.FromDescriptors(sel.Kept, cfg.Setup.BoardDir)
	if err != nil {
		return errors.WrapError(err, errors.CategoryValidation, "invalid package list").Build()
	}
	ordered, err := conductor.OrderPackages(pkgs)
	if err != nil {
		return err
	}

	w := global.out()
	table := tablewriter.NewWriter(w)
	table.Header("#", "Package", "Depends on")
	rows := make([][]string, 0, len(ordered))
	for i, p := range ordered {
		deps := make([]string, len(p.Dependencies))
		for j, d := range p.Dependencies {
			deps[j] = d.Name
		}
		rows = append(rows, []string{fmt.Sprint(i + 1), p.Name, strings.Join(deps, ", ")})
	}
	if err := table.Bulk(rows); err != nil {
		return fmt.Errorf("render order: %w", err)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render order: %w", err)
	}
	if len(sel.Dropped) > 0 {
		fmt.Fprintf(w, "%d unsupported packages left out\n", len(sel.Dropped))
	}
	return nil
}
