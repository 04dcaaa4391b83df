package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	assert.Equal(t, "hilsim dev (commit unknown, built unknown)", String())

	old := Version
	t.Cleanup(func() { Version = old })
	Version = "1.2.0"
	assert.Contains(t, String(), "hilsim 1.2.0 ")
}
