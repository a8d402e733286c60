package dieselgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVulkanModeHas(t *testing.T) {
	assert.True(t, DefaultVulkanMode.Has(VulkanPresent))
	assert.True(t, DefaultVulkanMode.Has(VulkanGraphics|VulkanCompute))
	assert.False(t, VulkanCompute.Has(VulkanGraphics))
	assert.True(t, VulkanCompute.Has(VulkanNone))
}

func TestIntersectNames(t *testing.T) {
	enabled, missing := intersectNames(
		[]string{"VK_KHR_surface", "VK_KHR_xcb_surface\x00"},
		[]string{"VK_KHR_surface", "VK_KHR_xcb_surface\x00", "VK_EXT_debug_report"})
	assert.Equal(t, []string{"VK_KHR_surface\x00", "VK_KHR_xcb_surface\x00"}, enabled)
	assert.Equal(t, []string{"VK_EXT_debug_report"}, missing)

	enabled, missing = intersectNames(nil, nil)
	assert.Empty(t, enabled)
	assert.Empty(t, missing)
	assert.Equal(t, "main\x00", cString("main"))
	assert.Equal(t, "main\x00", cString("main\x00"))
}
