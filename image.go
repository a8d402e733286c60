package dieselgraph

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselgraph/graph"
)

// imageResource is an image, its memory and its default view. Swapchain images are
// borrowed: only their view belongs to the backend.
type imageResource struct {
	name   string
	image  vk.Image
	memory vk.DeviceMemory
	view   vk.ImageView
	owned  bool
}

func (b *Backend) createImage(desc graph.ImageDesc) (res *imageResource, err error) {
	defer checkErr(&err)
	device := b.platform.Device()
	format := convFormat(desc.Format)
	if format == vk.FormatUndefined {
		return nil, fmt.Errorf("image %q: %w: %s", desc.Name, graph.ErrUnsupportedFormat, desc.Format)
	}
	extent := convExtent(desc.Extent)

	var image vk.Image
	ret := vk.CreateImage(device, &vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        format,
		Extent:        vk.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       convSamples(desc.Samples),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         convImageUsage(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &image)
	orPanic(newError(ret))

	var memReqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device, image, &memReqs)
	memReqs.Deref()

	props := b.platform.MemoryProperties()
	memType, ok := uint32(0), false
	if desc.Usage&graph.UsageTransientAttachment != 0 {
		memType, ok = findMemoryType(props, memReqs.MemoryTypeBits,
			vk.MemoryPropertyDeviceLocalBit|vk.MemoryPropertyLazilyAllocatedBit)
	}
	if !ok {
		memType, ok = findMemoryType(props, memReqs.MemoryTypeBits, vk.MemoryPropertyDeviceLocalBit)
	}
	if !ok {
		vk.DestroyImage(device, image, nil)
		return nil, fmt.Errorf("image %q: no device local memory type", desc.Name)
	}

	var memory vk.DeviceMemory
	ret = vk.AllocateMemory(device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memType,
	}, nil, &memory)
	orPanic(newError(ret), func() {
		vk.DestroyImage(device, image, nil)
	})
	ret = vk.BindImageMemory(device, image, memory, 0)
	orPanic(newError(ret), func() {
		vk.FreeMemory(device, memory, nil)
		vk.DestroyImage(device, image, nil)
	})

	view, err := createImageView(device, image, format, convAspect(desc.Aspect))
	orPanic(err, func() {
		vk.FreeMemory(device, memory, nil)
		vk.DestroyImage(device, image, nil)
	})
	return &imageResource{
		name:   desc.Name,
		image:  image,
		memory: memory,
		view:   view,
		owned:  true,
	}, nil
}

func createImageView(device vk.Device, image vk.Image, format vk.Format, aspect vk.ImageAspectFlags) (vk.ImageView, error) {
	var view vk.ImageView
	ret := vk.CreateImageView(device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleR,
			G: vk.ComponentSwizzleG,
			B: vk.ComponentSwizzleB,
			A: vk.ComponentSwizzleA,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	}, nil, &view)
	if isError(ret) {
		return view, newError(ret)
	}
	return view, nil
}

func (b *Backend) destroyImage(res *imageResource) {
	device := b.platform.Device()
	vk.DestroyImageView(device, res.view, nil)
	if res.owned {
		vk.DestroyImage(device, res.image, nil)
		vk.FreeMemory(device, res.memory, nil)
	}
}

// depthFormats lists depth formats from the highest precision down.
var depthFormats = []graph.Format{
	graph.FormatD32SfloatS8Uint,
	graph.FormatD32Sfloat,
	graph.FormatD24UnormS8Uint,
	graph.FormatD16UnormS8Uint,
	graph.FormatD16Unorm,
}

// DepthFormat returns the most precise depth format usable as an optimal-tiling
// depth attachment.
func (b *Backend) DepthFormat() graph.Format {
	for _, f := range depthFormats {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(b.platform.PhysicalDevice(), convFormat(f), &props)
		props.Deref()
		if props.OptimalTilingFeatures&vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit) != 0 {
			return f
		}
	}
	return graph.FormatD16Unorm
}
