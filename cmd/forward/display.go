package main

import (
	"log/slog"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselgraph"
	"github.com/andewx/dieselgraph/graph"
)

// display hosts the Vulkan surface in a glfw window.
type display struct {
	window     *glfw.Window
	validation bool
	logger     *slog.Logger
}

var (
	_ dieselgraph.Application                    = (*display)(nil)
	_ dieselgraph.ApplicationSwapchainDimensions = (*display)(nil)
	_ dieselgraph.ApplicationVulkanLayers        = (*display)(nil)
	_ dieselgraph.ApplicationLogger              = (*display)(nil)
)

func newDisplay(window *glfw.Window, validation bool, logger *slog.Logger) *display {
	return &display{window: window, validation: validation, logger: logger}
}

func (d *display) VulkanSurface(instance vk.Instance) vk.Surface {
	ptr, err := d.window.CreateWindowSurface(instance, nil)
	if err != nil {
		d.logger.Error("failed to create vulkan window surface", "error", err)
		return vk.NullSurface
	}
	return vk.SurfaceFromPointer(ptr)
}

func (d *display) VulkanInstanceExtensions() []string {
	exts := d.window.GetRequiredInstanceExtensions()
	if d.validation {
		exts = append(exts, "VK_EXT_debug_report")
	}
	return exts
}

func (d *display) VulkanDeviceExtensions() []string {
	return []string{"VK_KHR_swapchain"}
}

func (d *display) VulkanLayers() []string {
	if d.validation {
		return []string{"VK_LAYER_KHRONOS_validation"}
	}
	return nil
}

// VulkanSwapchainDimensions reports the framebuffer size, which differs from the window
// size on high density displays.
func (d *display) VulkanSwapchainDimensions() *dieselgraph.SwapchainDimensions {
	w, h := d.window.GetFramebufferSize()
	return &dieselgraph.SwapchainDimensions{
		Width:  uint32(w),
		Height: uint32(h),
		Format: graph.FormatB8G8R8A8Unorm,
	}
}

func (d *display) VulkanLogger() *slog.Logger         { return d.logger }
func (d *display) VulkanDebug() bool                  { return d.validation }
func (d *display) VulkanAppName() string              { return "forward" }
func (d *display) VulkanAppVersion() vk.Version       { return dieselgraph.DefaultVulkanAppVersion }
func (d *display) VulkanAPIVersion() vk.Version       { return dieselgraph.DefaultVulkanAPIVersion }
func (d *display) VulkanMode() dieselgraph.VulkanMode { return dieselgraph.DefaultVulkanMode }
