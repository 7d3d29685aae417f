package eventstore

import (
	"git.home.luguber.info/inful/pkgindex/internal/foundation/errors"
)

// Sentinel errors for run history persistence. Wrapped errors built with the
// same category and message match them through errors.Is.
var (
	ErrDatabaseOpenFailed     = errors.EventStoreError("could not open event store database").Build()
	ErrInitializeSchemaFailed = errors.EventStoreError("failed to initialize event store schema").Build()
	ErrEventAppendFailed      = errors.EventStoreError("failed to append event to store").Build()
	ErrEventQueryFailed       = errors.EventStoreError("failed to query events from store").Build()
	ErrEventScanFailed        = errors.EventStoreError("failed to scan event rows").Build()
	ErrMarshalPayloadFailed   = errors.EventStoreError("failed to marshal event payload").Build()
	ErrPruneFailed            = errors.EventStoreError("failed to prune old runs").Build()
)

func wrap(sentinel *errors.ClassifiedError, err error) error {
	return errors.WrapError(err, errors.CategoryEventStore, sentinel.Message()).Build()
}
