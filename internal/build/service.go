// Package build provides the index pipeline shared by the CLI and the daemon:
// load the package list, run the conductor, write the index files and record
// the run.
package build

import (
	"context"
	"time"

	"git.home.luguber.info/inful/pkgindex/internal/conductor"
	"git.home.luguber.info/inful/pkgindex/internal/config"
	"git.home.luguber.info/inful/pkgindex/internal/manifest"
	"git.home.luguber.info/inful/pkgindex/internal/packages"
)

// Service runs the index pipeline.
type Service interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// Request contains the inputs of one run.
type Request struct {
	Config *config.Config
	// KeepGoing drops failing packages instead of aborting. It is combined
	// with run.keep_going of the configuration.
	KeepGoing bool
}

// Status is the overall outcome of a run.
type Status string

const (
	StatusSuccess Status = "success"
	// StatusWarning means the run finished but dropped some packages.
	StatusWarning  Status = "warning"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Result describes a finished run. It is returned even when the run failed.
type Result struct {
	RunID    string
	Status   Status
	Manifest *manifest.RunManifest

	CompileCommandsPath string
	GnTargetsPath       string
	ManifestPath        string
	ReportPath          string

	// Index is nil when the conductor aborted.
	Index *conductor.Result
	// Dropped are the packages filtered out before the run, with the reason.
	Dropped map[string]packages.Support

	Duration time.Duration
}
