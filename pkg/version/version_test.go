package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	assert.Equal(t, "boardroom dev (commit none, built unknown)", String())
	assert.Equal(t, Info{Version: "dev", Commit: "none", Date: "unknown"}, Get())
}
