package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorBuilder(t *testing.T) {
	cause := errors.New("exit status 1")
	err := WrapError(cause, CategoryToolchain, "gn desc failed").
		Warning().
		WithContext("package", "chromeos-base/foo").
		Build()

	assert.Equal(t, CategoryToolchain, err.Category())
	assert.Equal(t, SeverityWarning, err.Severity())
	assert.Equal(t, "gn desc failed", err.Message())
	assert.Equal(t, ErrorContext{"package": "chromeos-base/foo"}, err.Context())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, SeverityFatal, ConfigError("x").Build().Severity())
}

func TestWrappedCategory(t *testing.T) {
	err := fmt.Errorf("loading: %w", ConfigError("test error").Build())
	classified, ok := AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, "test error", classified.Message())
	assert.True(t, HasCategory(err, CategoryConfig))
	assert.False(t, HasCategory(nil, CategoryConfig))
}

func TestWithContextCopies(t *testing.T) {
	base := NewError(CategoryPath, "not fixed").Build()
	derived := base.WithContext("package", "chromeos-base/foo")

	assert.NotContains(t, base.Context(), "package")
	assert.Equal(t, "chromeos-base/foo", derived.Context()["package"])
	assert.ErrorIs(t, derived, base)
	assert.NotErrorIs(t, derived, NewError(CategoryPath, "other").Build())
}

type graphError struct{}

func (graphError) Error() string           { return "cycle" }
func (graphError) Category() ErrorCategory { return CategoryGraph }

func TestGetCategoryHonoursDomainErrors(t *testing.T) {
	assert.Equal(t, CategoryGraph, GetCategory(fmt.Errorf("ordering: %w", graphError{})))
	assert.Equal(t, CategoryInternal, GetCategory(errors.New("plain")))
}
