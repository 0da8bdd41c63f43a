package debug_test

import (
	"testing"

	"github.com/lestrrat-go/sgml/internal/debug"
	"github.com/stretchr/testify/assert"
)

func TestGuardNilSafe(t *testing.T) {
	old := debug.Enabled
	debug.Enabled = false
	defer func() { debug.Enabled = old }()

	g := debug.IPrintf("should not panic even though tracing is off")
	assert.NotPanics(t, func() { g.IRelease("done") })

	var nilGuard *debug.Guard
	assert.NotPanics(t, func() { nilGuard.IRelease("done") })
}

func TestDoubleReleaseIsNoop(t *testing.T) {
	old := debug.Enabled
	debug.Enabled = true
	defer func() { debug.Enabled = old }()

	g := debug.IPrintf("scope")
	g.IRelease("first")
	assert.NotPanics(t, func() { g.IRelease("second") })
}
