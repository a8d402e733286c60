package dieselgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// Platform is an initialized Vulkan instance, device and queues for one Application.
type Platform struct {
	logger *slog.Logger

	instance      vk.Instance
	gpu           vk.PhysicalDevice
	device        vk.Device
	surface       vk.Surface
	debugCallback vk.DebugReportCallback

	graphicsQueueIndex uint32
	presentQueueIndex  uint32
	graphicsQueue      vk.Queue
	presentQueue       vk.Queue

	gpuProperties    vk.PhysicalDeviceProperties
	memoryProperties vk.PhysicalDeviceMemoryProperties
}

// NewPlatform creates the instance, selects the first GPU able to serve the
// application's mode and creates the logical device.
func NewPlatform(app Application) (*Platform, error) {
	p := &Platform{logger: appLogger(app)}
	if err := p.init(app); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

func (p *Platform) init(app Application) (err error) {
	defer checkErr(&err)

	layers := p.createInstance(app)
	if app.VulkanDebug() {
		ret := vk.CreateDebugReportCallback(p.instance, &vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: debugReporter(p.logger),
		}, nil, &p.debugCallback)
		orPanic(newError(ret))
		p.logger.Info("vulkan: debug report callback enabled")
	}

	mode := app.VulkanMode()
	if mode.Has(VulkanPresent) {
		p.surface = app.VulkanSurface(p.instance)
		if p.surface == vk.NullSurface {
			return errors.New("vulkan: present mode requires a surface")
		}
	}
	orPanic(p.pickDevice(mode))
	p.createDevice(app, layers)
	return nil
}

// enable intersects requested with what the platform offers and logs what is missing.
func (p *Platform) enable(kind string, available, requested []string) []string {
	enabled, missing := intersectNames(available, requested)
	if len(missing) > 0 {
		p.logger.Warn("vulkan: requested "+kind+" not available", "missing", missing)
	}
	p.logger.Debug("vulkan: enabling "+kind, "names", enabled)
	return enabled
}

// createInstance creates the instance and returns the enabled layers, which the device
// repeats for older loaders. Panics through orPanic.
func (p *Platform) createInstance(app Application) []string {
	available, err := instanceExtensions()
	orPanic(err)
	extensions := p.enable("instance extensions", available, app.VulkanInstanceExtensions())

	var layers []string
	if iface, ok := app.(ApplicationVulkanLayers); ok {
		available, err := instanceLayers()
		orPanic(err)
		layers = p.enable("layers", available, iface.VulkanLayers())
	}

	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			ApiVersion:         uint32(app.VulkanAPIVersion()),
			ApplicationVersion: uint32(app.VulkanAppVersion()),
			PApplicationName:   cString(app.VulkanAppName()),
			PEngineName:        cString("dieselgraph"),
		},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}, nil, &p.instance)
	orPanic(newError(ret))
	vk.InitInstance(p.instance)
	return layers
}

// pickDevice selects the first GPU with queue families serving mode.
func (p *Platform) pickDevice(mode VulkanMode) error {
	var count uint32
	if ret := vk.EnumeratePhysicalDevices(p.instance, &count, nil); isError(ret) {
		return newError(ret)
	}
	if count == 0 {
		return fmt.Errorf("%w: no GPU devices found", ErrNoDevice)
	}
	gpus := make([]vk.PhysicalDevice, count)
	if ret := vk.EnumeratePhysicalDevices(p.instance, &count, gpus); isError(ret) {
		return newError(ret)
	}

	for _, gpu := range gpus {
		graphics, present, ok := p.queueFamilies(gpu, mode)
		if !ok {
			continue
		}
		p.gpu, p.graphicsQueueIndex, p.presentQueueIndex = gpu, graphics, present
		vk.GetPhysicalDeviceProperties(p.gpu, &p.gpuProperties)
		p.gpuProperties.Deref()
		p.gpuProperties.Limits.Deref()
		vk.GetPhysicalDeviceMemoryProperties(p.gpu, &p.memoryProperties)
		p.memoryProperties.Deref()
		p.logger.Info("vulkan: selected GPU",
			"name", vk.ToString(p.gpuProperties.DeviceName[:]),
			"graphics_family", p.graphicsQueueIndex,
			"present_family", p.presentQueueIndex)
		return nil
	}
	return fmt.Errorf("%w: no queue family serves mode %d", ErrNoDevice, mode)
}

// createDevice creates the logical device with one queue per distinct family. Panics
// through orPanic.
func (p *Platform) createDevice(app Application, layers []string) {
	available, err := deviceExtensions(p.gpu)
	orPanic(err)
	extensions := p.enable("device extensions", available, app.VulkanDeviceExtensions())

	families := []uint32{p.graphicsQueueIndex}
	if p.HasSeparatePresentQueue() {
		families = append(families, p.presentQueueIndex)
	}
	queueInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, family := range families {
		queueInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	ret := vk.CreateDevice(p.gpu, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}, nil, &p.device)
	orPanic(newError(ret))

	vk.GetDeviceQueue(p.device, p.graphicsQueueIndex, 0, &p.graphicsQueue)
	p.presentQueue = p.graphicsQueue
	if p.HasSeparatePresentQueue() {
		vk.GetDeviceQueue(p.device, p.presentQueueIndex, 0, &p.presentQueue)
	}
}

// queueFamilies finds a family with every capability mode asks for, preferring one that
// can also present. Otherwise a separate present family is looked up.
func (p *Platform) queueFamilies(gpu vk.PhysicalDevice, mode VulkanMode) (graphics, present uint32, ok bool) {
	var queueCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &queueCount, nil)
	if queueCount == 0 {
		return 0, 0, false
	}
	queueProperties := make([]vk.QueueFamilyProperties, queueCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &queueCount, queueProperties)

	var required vk.QueueFlags
	if mode.Has(VulkanCompute) {
		required |= vk.QueueFlags(vk.QueueComputeBit)
	}
	if mode.Has(VulkanGraphics) {
		required |= vk.QueueFlags(vk.QueueGraphicsBit)
	}
	needsPresent := mode.Has(VulkanPresent)

	supportsPresent := func(i uint32) bool {
		if !needsPresent {
			return true
		}
		var supported vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(gpu, i, p.surface, &supported)
		return supported.B()
	}

	graphicsFound := false
	for i := uint32(0); i < queueCount; i++ {
		queueProperties[i].Deref()
		if queueProperties[i].QueueFlags&required != required {
			continue
		}
		if supportsPresent(i) {
			return i, i, true
		}
		if !graphicsFound {
			graphics, graphicsFound = i, true
		}
	}
	if !graphicsFound {
		return 0, 0, false
	}
	for i := uint32(0); i < queueCount; i++ {
		if supportsPresent(i) {
			return graphics, i, true
		}
	}
	return 0, 0, false
}

func (p *Platform) MemoryProperties() vk.PhysicalDeviceMemoryProperties {
	return p.memoryProperties
}

func (p *Platform) PhysicalDeviceProperties() vk.PhysicalDeviceProperties {
	return p.gpuProperties
}

func (p *Platform) PhysicalDevice() vk.PhysicalDevice {
	return p.gpu
}

func (p *Platform) Surface() vk.Surface {
	return p.surface
}

func (p *Platform) GraphicsQueueFamilyIndex() uint32 {
	return p.graphicsQueueIndex
}

func (p *Platform) PresentQueueFamilyIndex() uint32 {
	return p.presentQueueIndex
}

// HasSeparatePresentQueue is true when PresentQueueFamilyIndex differs from GraphicsQueueFamilyIndex.
func (p *Platform) HasSeparatePresentQueue() bool {
	return p.presentQueueIndex != p.graphicsQueueIndex
}

func (p *Platform) GraphicsQueue() vk.Queue {
	return p.graphicsQueue
}

func (p *Platform) PresentQueue() vk.Queue {
	return p.presentQueue
}

func (p *Platform) Instance() vk.Instance {
	return p.instance
}

func (p *Platform) Device() vk.Device {
	return p.device
}

// Destroy waits for the device and releases the device, surface and instance.
func (p *Platform) Destroy() {
	if p.device != nil {
		vk.DeviceWaitIdle(p.device)
		vk.DestroyDevice(p.device, nil)
		p.device = nil
	}
	if p.surface != vk.NullSurface {
		vk.DestroySurface(p.instance, p.surface, nil)
		p.surface = vk.NullSurface
	}
	if p.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(p.instance, p.debugCallback, nil)
		p.debugCallback = vk.NullDebugReportCallback
	}
	if p.instance != nil {
		vk.DestroyInstance(p.instance, nil)
		p.instance = nil
	}
}

// debugReporter maps debug report flags to log levels.
func debugReporter(logger *slog.Logger) func(vk.DebugReportFlags, vk.DebugReportObjectType,
	uint64, uint, int32, string, string, unsafe.Pointer) vk.Bool32 {
	return func(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
		object uint64, location uint, messageCode int32, pLayerPrefix string,
		pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

		level := slog.LevelInfo
		switch {
		case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
			level = slog.LevelError
		case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
			level = slog.LevelWarn
		case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
			level = slog.LevelDebug
		}
		logger.Log(context.Background(), level, "vulkan: "+pMessage, "layer", pLayerPrefix, "code", messageCode)
		return vk.Bool32(vk.False)
	}
}
