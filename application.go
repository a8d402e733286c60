package dieselgraph

import (
	"log/slog"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselgraph/graph"
)

type VulkanMode uint32

const (
	VulkanCompute VulkanMode = 1 << iota
	VulkanGraphics
	VulkanPresent

	VulkanNone VulkanMode = 0
)

func (v VulkanMode) Has(mode VulkanMode) bool {
	return v&mode == mode
}

// Application describes the host of a Backend: what to enable and where to present.
type Application interface {
	VulkanAPIVersion() vk.Version
	VulkanAppVersion() vk.Version
	VulkanAppName() string
	VulkanMode() VulkanMode
	// VulkanSurface creates the presentation surface for instance.
	VulkanSurface(instance vk.Instance) vk.Surface
	VulkanInstanceExtensions() []string
	VulkanDeviceExtensions() []string
	VulkanDebug() bool

	// DECORATORS:
	// ApplicationSwapchainDimensions
	// ApplicationVulkanLayers
	// ApplicationLogger
}

// ApplicationSwapchainDimensions is consulted on creation and on every swapchain
// rebuild, for surfaces that leave the extent to the application.
type ApplicationSwapchainDimensions interface {
	VulkanSwapchainDimensions() *SwapchainDimensions
}

type ApplicationVulkanLayers interface {
	VulkanLayers() []string
}

type ApplicationLogger interface {
	VulkanLogger() *slog.Logger
}

var (
	DefaultVulkanAppVersion = vk.Version(vk.MakeVersion(1, 0, 0))
	DefaultVulkanAPIVersion = vk.Version(vk.MakeVersion(1, 0, 0))
	DefaultVulkanMode       = VulkanCompute | VulkanGraphics | VulkanPresent
)

// SwapchainDimensions describes the size and format of the swapchain.
type SwapchainDimensions struct {
	// Width of the swapchain.
	Width uint32
	// Height of the swapchain.
	Height uint32
	// Format is the preferred pixel format. The first supported surface format is used
	// when the surface does not offer it.
	Format graph.Format
}

func appLogger(app Application) *slog.Logger {
	if iface, ok := app.(ApplicationLogger); ok {
		if l := iface.VulkanLogger(); l != nil {
			return l
		}
	}
	return graph.Logger()
}
