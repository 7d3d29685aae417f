package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
)

// CLIErrorAdapter turns the error returned by a command into a message on
// stderr and an exit code.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
	stderr  io.Writer
	exit    func(int)
}

// NewCLIErrorAdapter returns an adapter writing to os.Stderr. A nil logger
// means slog.Default().
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{verbose: verbose, logger: logger, stderr: os.Stderr, exit: os.Exit}
}

// ExitCodeFor is 0 for nil, 1 for errors that carry no category, and the
// category's code otherwise.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var c Categorized
	if _, ok := AsClassified(err); !ok && !errors.As(err, &c) {
		return 1
	}
	return GetCategory(err).ExitCode()
}

// FormatError shows only the message of a classified error unless verbose.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	if classified, ok := AsClassified(err); ok && !a.verbose {
		return "Error: " + classified.Message()
	}
	return fmt.Sprintf("Error: %v", err)
}

// HandleError logs err, prints it and exits. It returns for nil.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}
	if a.shouldLog(err) {
		a.log(err)
	}
	_, _ = fmt.Fprintln(a.stderr, a.FormatError(err))
	a.exit(a.ExitCodeFor(err))
}

func (a *CLIErrorAdapter) shouldLog(err error) bool {
	if classified, ok := AsClassified(err); ok && !a.verbose {
		return classified.severity == SeverityFatal
	}
	return true
}

func (a *CLIErrorAdapter) log(err error) {
	classified, ok := AsClassified(err)
	if !ok {
		a.logger.Error("Run failed",
			slog.String("category", string(GetCategory(err))),
			slog.String("error", err.Error()))
		return
	}

	level := slog.LevelError
	if classified.severity == SeverityWarning {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{slog.String("category", string(classified.category))}
	keys := make([]string, 0, len(classified.context))
	for k := range classified.context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, classified.context[k]))
	}
	if classified.cause != nil {
		attrs = append(attrs, slog.String("error", classified.cause.Error()))
	}
	a.logger.LogAttrs(context.Background(), level, classified.message, attrs...)
}
