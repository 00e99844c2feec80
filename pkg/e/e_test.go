package e

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassOf(t *testing.T) {
	base := errors.New("boom")

	assert.True(t, IsFatal(Fatal("MinioBlobStore.List", base)))
	assert.True(t, IsValidation(Validation("Matcher.matchOne", ErrMissingSKU)))
	assert.True(t, IsTransient(Transient("Downloader.Fetch", base)))

	// неклассифицированная ошибка считается временной
	assert.True(t, IsTransient(base))
	assert.False(t, IsFatal(nil))
}

func TestClassSurvivesWrap(t *testing.T) {
	err := Wrap("Locator.Locate", Fatal("list", ErrStorageUnavailable))

	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Equal(t, "Locator.Locate: list: storage unavailable", err.Error())
}

func TestProcessingError(t *testing.T) {
	err := NewProcessingError("abc123 source #2", "decode", fmt.Errorf("image: unknown format"))

	var pe *ProcessingError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "abc123 source #2", pe.Input)
	assert.Equal(t, "decode", pe.Stage)
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "abc123 source #2")
}
