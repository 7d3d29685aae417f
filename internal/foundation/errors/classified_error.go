package errors

import (
	"errors"
	"fmt"
	"maps"
)

// ClassifiedError is an error with a category, a severity and context.
// Values are not modified once built.
type ClassifiedError struct {
	category ErrorCategory
	severity ErrorSeverity
	message  string
	cause    error
	context  ErrorContext
}

func (e *ClassifiedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.category, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.category, e.message)
}

func (e *ClassifiedError) Unwrap() error { return e.cause }

func (e *ClassifiedError) Category() ErrorCategory { return e.category }

func (e *ClassifiedError) Severity() ErrorSeverity { return e.severity }

// Message is the error text without category or cause.
func (e *ClassifiedError) Message() string { return e.message }

func (e *ClassifiedError) Context() ErrorContext { return e.context }

// WithContext returns a copy of e with key set.
func (e *ClassifiedError) WithContext(key string, value any) *ClassifiedError {
	next := *e
	next.context = maps.Clone(e.context)
	if next.context == nil {
		next.context = ErrorContext{}
	}
	next.context[key] = value
	return &next
}

// Is matches classified errors of the same category and message, so that
// package-level sentinels work with errors.Is after WithContext.
func (e *ClassifiedError) Is(target error) bool {
	other, ok := target.(*ClassifiedError)
	return ok && e.category == other.category && e.message == other.message
}

// AsClassified finds the first ClassifiedError in err's chain.
func AsClassified(err error) (*ClassifiedError, bool) {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified, true
	}
	return nil, false
}

// GetCategory extracts the category from an error chain. Domain errors
// implementing Categorized are honoured; anything else is CategoryInternal.
func GetCategory(err error) ErrorCategory {
	if classified, ok := AsClassified(err); ok {
		return classified.category
	}
	var categorized Categorized
	if errors.As(err, &categorized) {
		return categorized.Category()
	}
	return CategoryInternal
}

// HasCategory reports whether err is non-nil and of category.
func HasCategory(err error, category ErrorCategory) bool {
	return err != nil && GetCategory(err) == category
}
