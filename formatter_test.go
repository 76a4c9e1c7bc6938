package shoal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dbtestlabs/shoal/types"
)

func TestStatusString(t *testing.T) {
	assert.Contains(t, statusString(types.TestStatusPass), "pass")
	assert.Contains(t, statusString(types.TestStatusFail), "fail")
	assert.Contains(t, statusString(types.TestStatusError), "error")
	assert.Contains(t, statusString(types.TestStatusTimeout), "timeout")
	assert.Equal(t, "pending", statusString(types.TestStatusPending))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "-", formatDuration(-time.Second))
	assert.Equal(t, "1.23s", formatDuration(1234*time.Millisecond))
	assert.Equal(t, "0s", formatDuration(0))
	assert.Equal(t, "2m0s", formatDuration(2*time.Minute))
}
