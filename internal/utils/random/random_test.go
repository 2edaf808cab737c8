package random

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHex(t *testing.T) {
	a, err := Hex(4)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{8}$`), a)

	b, err := Hex(4)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	empty, err := Hex(0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
