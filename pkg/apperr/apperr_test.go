package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOfWrapped(t *testing.T) {
	base := NotFound("order")
	wrapped := fmt.Errorf("load: %w", base)

	assert.Equal(t, CodeNotFound, CodeOf(wrapped))
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsConflict(wrapped))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
}

func TestDuplicateIsConflict(t *testing.T) {
	err := Duplicate("payment")

	assert.True(t, IsConflict(err))
	assert.True(t, IsDuplicate(err))
	assert.True(t, IsDuplicate(Wrap(CodeDependency, err, "insert payment")))
	assert.Equal(t, "payment already exists: duplicate", err.Error())
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(CodeDependency, nil, "noop"))
}
