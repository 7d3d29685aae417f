// Package errors holds the classified errors used across pkgindex.
//
// A ClassifiedError carries a category, a severity and structured context.
// Domain packages with their own error types implement Categorized instead.
// The CLI adapter maps either kind to an exit code:
//
//	err := errors.ToolchainError("ninja compdb failed").
//		WithContext("package", pkg.Name).
//		WithCause(runErr).
//		Build()
package errors
