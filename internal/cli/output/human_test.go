package output

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBytes(t *testing.T) {
	assert.Equal(t, "0 B", Bytes(0))
	assert.Equal(t, "4.0 KiB", Bytes(4096))
	assert.Equal(t, "1.5 GiB", Bytes(3<<29))
}

func TestAgo(t *testing.T) {
	assert.Equal(t, "-", Ago(time.Time{}))
	assert.Equal(t, "2 hours ago", Ago(time.Now().Add(-2*time.Hour)))
}
