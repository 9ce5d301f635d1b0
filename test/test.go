// Package test boots a kernel instance around a test body, which runs as
// the init process.
package test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kos/defs"
	"kos/kernel"
)

// Run boots a kernel on the local parameter set and runs body as init.
func Run(t *testing.T, body func()) {
	RunTarget(t, "local", body)
}

// RunTarget boots a kernel on the named parameter set.
func RunTarget(t *testing.T, target string, body func()) {
	defs.SetTarget(target)
	defer defs.SetTarget("local")
	status := kernel.Boot(func(argl int, args []byte) int {
		body()
		return 0
	}, 0, nil)
	assert.Equal(t, 0, status, "init status")
}
