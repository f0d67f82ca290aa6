package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCopyURI(t *testing.T) {
	assert.Equal(t, "file:/tmp/stage/History?_query_only=1", copyURI("/tmp/stage/History"))
	assert.Equal(t, "file:/tmp/a%3Fb%23c/History?_query_only=1", copyURI("/tmp/a?b#c/History"))
	assert.Equal(t, "file:/tmp/50%25/History?_query_only=1", copyURI("/tmp/50%/History"))
}
