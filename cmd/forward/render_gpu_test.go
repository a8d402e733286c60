//go:build gpu

package main

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// Needs a display and a Vulkan driver: go test -tags gpu ./cmd/forward
func TestRenderClearRecipe(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	err := run([]string{
		"-width", "320",
		"-height", "240",
		"-max-frames", "8",
		"-log-level", "debug",
		"recipes/clear.hcl",
	})
	require.NoError(t, err)
}
