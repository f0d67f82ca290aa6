package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesByCode(t *testing.T) {
	err := Wrapf(fmt.Errorf("open: permission denied"), CodeSourceUnavailable, "chrome/Default")

	assert.True(t, Is(err, ErrSourceUnavailable))
	assert.False(t, Is(err, ErrSourceTimeout))
	assert.Contains(t, err.Error(), "chrome/Default")
	assert.Contains(t, err.Error(), "permission denied")
}

func TestIs_ThroughFmtWrap(t *testing.T) {
	inner := InvalidURLf("bad url %q", "::")
	wrapped := fmt.Errorf("canonicalize: %w", inner)

	assert.True(t, Is(wrapped, ErrInvalidURL))
	assert.Equal(t, CodeInvalidURL, CodeOf(wrapped))
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(fmt.Errorf("boom")))
}

func TestWithDetails_PreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(cause, CodeStoreWrite, "commit").WithDetails(map[string]int{"rows": 3})

	assert.Equal(t, cause, Unwrap(err))
	assert.Equal(t, map[string]int{"rows": 3}, err.Details)
}
