package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmWithForce(t *testing.T) {
	ok, err := ConfirmWithForce("Clear all fetch locks?", true)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsYes(t *testing.T) {
	for in, want := range map[string]bool{
		"y": true, "Y": true, "yes": true, " YES ": true,
		"": false, "n": false, "no": false, "yep": false,
	} {
		assert.Equal(t, want, isYes(in), "isYes(%q)", in)
	}
}
