package errors

// ErrorBuilder assembles a ClassifiedError.
type ErrorBuilder struct {
	err ClassifiedError
}

// NewError starts an error of category with severity SeverityError.
func NewError(category ErrorCategory, message string) *ErrorBuilder {
	return &ErrorBuilder{err: ClassifiedError{
		category: category,
		severity: SeverityError,
		message:  message,
		context:  ErrorContext{},
	}}
}

// WrapError starts an error caused by err.
func WrapError(err error, category ErrorCategory, message string) *ErrorBuilder {
	return NewError(category, message).WithCause(err)
}

func (b *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	b.err.cause = err
	return b
}

func (b *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	b.err.context[key] = value
	return b
}

func (b *ErrorBuilder) Fatal() *ErrorBuilder {
	b.err.severity = SeverityFatal
	return b
}

func (b *ErrorBuilder) Warning() *ErrorBuilder {
	b.err.severity = SeverityWarning
	return b
}

// Build returns the error. The builder must not be reused afterwards.
func (b *ErrorBuilder) Build() *ClassifiedError {
	err := b.err
	return &err
}

// Shorthands per category. Input and daemon problems stop the run.

func ConfigError(message string) *ErrorBuilder {
	return NewError(CategoryConfig, message).Fatal()
}

func ValidationError(message string) *ErrorBuilder {
	return NewError(CategoryValidation, message).Fatal()
}

// ToolchainError is for a failed cros_sdk, ninja or gn invocation.
func ToolchainError(message string) *ErrorBuilder {
	return NewError(CategoryToolchain, message)
}

func FileSystemError(message string) *ErrorBuilder {
	return NewError(CategoryFileSystem, message)
}

func RuntimeError(message string) *ErrorBuilder {
	return NewError(CategoryRuntime, message).Fatal()
}

func DaemonError(message string) *ErrorBuilder {
	return NewError(CategoryDaemon, message).Fatal()
}

func InternalError(message string) *ErrorBuilder {
	return NewError(CategoryInternal, message).Fatal()
}

// EventStoreError is for run history persistence failures.
func EventStoreError(message string) *ErrorBuilder {
	return NewError(CategoryEventStore, message)
}

func NotifyError(message string) *ErrorBuilder {
	return NewError(CategoryNotify, message)
}
