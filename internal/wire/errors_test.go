package wire

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsKindMatchesWrappedError(t *testing.T) {
	cause := errors.New("bolt: key not found")
	err := Errf(NotFound, "GetPairwise", cause, "pairwise %s", "did:1")

	assert.True(t, IsKind(err, NotFound))
	assert.False(t, IsKind(err, Conflict))

	wrapped := fmt.Errorf("higher level: %w", err)
	assert.True(t, IsKind(wrapped, NotFound))
}

func TestErrorStringIncludesOpAndKind(t *testing.T) {
	err := Errf(Conflict, "CreatePairwise", nil, "already exists")
	assert.Contains(t, err.Error(), "CreatePairwise")
	assert.Contains(t, err.Error(), "Conflict")
}

func TestIsKindFalseForPlainError(t *testing.T) {
	assert.False(t, IsKind(errors.New("plain"), Storage))
	assert.False(t, IsKind(nil, Storage))
}
