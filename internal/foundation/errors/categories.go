package errors

// ErrorCategory routes an error to an exit code and a log level.
type ErrorCategory string

const (
	// Input problems: the configuration, the package list or a flag.
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryNotFound   ErrorCategory = "not_found"

	// Index generation: path translation, build dir merge, dependency graph.
	CategoryPath       ErrorCategory = "path"
	CategoryMerge      ErrorCategory = "merge"
	CategoryGraph      ErrorCategory = "graph"
	CategoryFileSystem ErrorCategory = "filesystem"

	// External systems.
	CategoryToolchain  ErrorCategory = "toolchain"
	CategoryEventStore ErrorCategory = "eventstore"
	CategoryNotify     ErrorCategory = "notify"

	CategoryRuntime  ErrorCategory = "runtime"
	CategoryDaemon   ErrorCategory = "daemon"
	CategoryInternal ErrorCategory = "internal"
)

var exitCodes = map[ErrorCategory]int{
	CategoryValidation: 2,
	CategoryConfig:     7,
	CategoryToolchain:  8,
	CategoryNotify:     8,
	CategoryInternal:   10,
	CategoryPath:       11,
	CategoryMerge:      11,
	CategoryGraph:      11,
	CategoryFileSystem: 11,
	CategoryNotFound:   11,
	CategoryDaemon:     12,
	CategoryRuntime:    12,
	CategoryEventStore: 12,
}

// ExitCode is the process exit status for errors of category c; 1 for
// unknown categories.
func (c ErrorCategory) ExitCode() int {
	if code, ok := exitCodes[c]; ok {
		return code
	}
	return 1
}

// ErrorSeverity tells how far an error reaches.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // stops the whole run
	SeverityError   ErrorSeverity = "error"   // fails the current package
	SeverityWarning ErrorSeverity = "warning" // output is degraded
)

// Categorized is implemented by domain error types that know their category
// without being a ClassifiedError, such as a dependency cycle.
type Categorized interface {
	error
	Category() ErrorCategory
}

// ErrorContext is structured detail attached to an error.
type ErrorContext map[string]any
