package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTransientError_ClassifiesAsTransient(t *testing.T) {
	err := NewTransientError("timeout dialing provider")
	assert.True(t, IsTransient(err))
	assert.False(t, IsPermanent(err))
	assert.Equal(t, "timeout dialing provider", err.Error())
}

func TestNewPermanentError_ClassifiesAsPermanent(t *testing.T) {
	err := NewPermanentError("invalid recipient")
	assert.True(t, IsPermanent(err))
	assert.False(t, IsTransient(err))
}

func TestProviderError_UnwrapExposesSentinel(t *testing.T) {
	err := NewTransientError("boom")
	assert.True(t, errors.Is(err, ErrTransientProvider))
	assert.False(t, errors.Is(err, ErrPermanentProvider))
}

func TestIsPermanentIsTransient_FalseForUnrelatedErrors(t *testing.T) {
	err := errors.New("something else")
	assert.False(t, IsPermanent(err))
	assert.False(t, IsTransient(err))
}

func TestTruncate_LeavesShortStringsUntouched(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 500))
}

func TestTruncate_CapsAtExactByteLength(t *testing.T) {
	s := ""
	for i := 0; i < 600; i++ {
		s += "a"
	}
	truncated := Truncate(s, 500)
	assert.Len(t, truncated, 500)
}

func TestTruncate_ExactLengthIsUnchanged(t *testing.T) {
	s := ""
	for i := 0; i < 500; i++ {
		s += "a"
	}
	assert.Equal(t, s, Truncate(s, 500))
}
