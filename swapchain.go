package dieselgraph

import (
	"context"
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselgraph/graph"
)

type swapchain struct {
	handle vk.Swapchain
	format vk.SurfaceFormat
	extent vk.Extent2D

	images []graph.Image
	views  []graph.ImageView
}

// graphSwapchain describes sc with the borrowed handles registered for its images.
func (sc *swapchain) graphSwapchain() graph.Swapchain {
	f, _ := graphFormat(sc.format.Format)
	return graph.Swapchain{
		Images: append([]graph.Image(nil), sc.images...),
		Views:  append([]graph.ImageView(nil), sc.views...),
		Format: f,
		Extent: graph.Extent{Width: sc.extent.Width, Height: sc.extent.Height},
	}
}

// Swapchain returns the current presentable images.
func (b *Backend) Swapchain() graph.Swapchain {
	if b.swapchain == nil {
		return graph.Swapchain{}
	}
	return b.swapchain.graphSwapchain()
}

func (b *Backend) dimensions() *SwapchainDimensions {
	if d, ok := b.app.(ApplicationSwapchainDimensions); ok {
		return d.VulkanSwapchainDimensions()
	}
	return nil
}

// chooseSurfaceFormat prefers the requested format, then the first one the graph can
// describe. A single undefined entry means the surface takes anything.
func chooseSurfaceFormat(formats []vk.SurfaceFormat, preferred graph.Format) (vk.SurfaceFormat, error) {
	want := convFormat(preferred)
	if want == vk.FormatUndefined {
		want = vk.FormatB8g8r8a8Unorm
	}
	if len(formats) == 1 && formats[0].Format == vk.FormatUndefined {
		f := formats[0]
		f.Format = want
		return f, nil
	}
	for _, f := range formats {
		if f.Format == want {
			return f, nil
		}
	}
	for _, f := range formats {
		if _, ok := graphFormat(f.Format); ok {
			return f, nil
		}
	}
	return vk.SurfaceFormat{}, ErrSurfaceFormat
}

// swapchainExtent follows the surface, or the application's dimensions clamped to the
// surface limits when the surface leaves the extent open.
func swapchainExtent(caps vk.SurfaceCapabilities, dims *SwapchainDimensions) vk.Extent2D {
	if caps.CurrentExtent.Width != vk.MaxUint32 {
		return caps.CurrentExtent
	}
	extent := caps.MinImageExtent
	if dims != nil {
		extent = vk.Extent2D{Width: dims.Width, Height: dims.Height}
	}
	extent.Width = clampUint32(extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	extent.Height = clampUint32(extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)
	return extent
}

func swapchainImageCount(caps vk.SurfaceCapabilities, desired uint32) uint32 {
	count := desired
	if count < caps.MinImageCount+1 {
		count = caps.MinImageCount + 1
	}
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

func clampUint32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}

// createSwapchain builds a swapchain for the surface, handing the previous one over as
// the old swapchain.
func (b *Backend) createSwapchain() (err error) {
	defer checkErr(&err)
	gpu := b.platform.PhysicalDevice()
	surface := b.platform.Surface()
	device := b.platform.Device()

	var caps vk.SurfaceCapabilities
	ret := vk.GetPhysicalDeviceSurfaceCapabilities(gpu, surface, &caps)
	orPanic(newError(ret))
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	var formatCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(gpu, surface, &formatCount, nil)
	formats := make([]vk.SurfaceFormat, formatCount)
	vk.GetPhysicalDeviceSurfaceFormats(gpu, surface, &formatCount, formats)
	for i := range formats {
		formats[i].Deref()
	}

	dims := b.dimensions()
	var preferred graph.Format
	if dims != nil {
		preferred = dims.Format
	}
	format, err := chooseSurfaceFormat(formats, preferred)
	orPanic(err)
	extent := swapchainExtent(caps, dims)

	// Figure out a suitable surface transform.
	preTransform := vk.SurfaceTransformIdentityBit
	if vk.SurfaceTransformFlagBits(caps.SupportedTransforms)&preTransform == 0 {
		preTransform = caps.CurrentTransform
	}

	// Find a supported composite alpha mode - one of these is guaranteed to be set
	compositeAlpha := vk.CompositeAlphaOpaqueBit
	for _, flag := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if caps.SupportedCompositeAlpha&vk.CompositeAlphaFlags(flag) != 0 {
			compositeAlpha = flag
			break
		}
	}

	old := vk.NullSwapchain
	if b.swapchain != nil {
		old = b.swapchain.handle
	}
	var handle vk.Swapchain
	ret = vk.CreateSwapchain(device, &vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         surface,
		MinImageCount:   swapchainImageCount(caps, b.FramesInFlight()),
		ImageFormat:     format.Format,
		ImageColorSpace: format.ColorSpace,
		ImageExtent:     extent,
		ImageUsage: vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit |
			vk.ImageUsageTransferDstBit),
		PreTransform:     preTransform,
		CompositeAlpha:   compositeAlpha,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
		// FIFO is the one present mode every driver must support.
		PresentMode:  vk.PresentModeFifo,
		OldSwapchain: old,
		Clipped:      vk.True,
	}, nil, &handle)
	orPanic(newError(ret))

	if b.swapchain != nil {
		b.releaseSwapchainImages(b.swapchain)
		vk.DestroySwapchain(device, old, nil)
		b.swapchain = nil
	}

	var imageCount uint32
	vk.GetSwapchainImages(device, handle, &imageCount, nil)
	images := make([]vk.Image, imageCount)
	vk.GetSwapchainImages(device, handle, &imageCount, images)

	sc := &swapchain{handle: handle, format: format, extent: extent}
	for i, img := range images {
		view, err := createImageView(device, img, format.Format, vk.ImageAspectFlags(vk.ImageAspectColorBit))
		orPanic(err, func() {
			b.releaseSwapchainImages(sc)
			vk.DestroySwapchain(device, handle, nil)
		})
		res := &imageResource{name: fmt.Sprintf("swapchain[%d]", i), image: img, view: view}
		sc.images = append(sc.images, graph.Image(b.images.add(res)))
		sc.views = append(sc.views, graph.ImageView(b.views.add(view)))
	}
	b.swapchain = sc
	b.logger.Info("vulkan: swapchain created",
		"images", imageCount, "format", format.Format, "extent", graph.Extent{Width: extent.Width, Height: extent.Height})
	return nil
}

// releaseSwapchainImages drops the framebuffers and views that reference sc's images.
func (b *Backend) releaseSwapchainImages(sc *swapchain) {
	for i := range sc.images {
		b.passes.PurgeView(sc.views[i])
		b.views.remove(uint64(sc.views[i]))
		if res, ok := b.images.remove(uint64(sc.images[i])); ok {
			b.destroyImage(res)
		}
	}
	sc.images, sc.views = nil, nil
}

// Recreate rebuilds the swapchain at the surface's current size. Every frame slot
// gets fresh semaphores since an out of date acquire may have left one signaled.
func (b *Backend) Recreate(ctx context.Context) (graph.Swapchain, error) {
	if err := ctx.Err(); err != nil {
		return graph.Swapchain{}, err
	}
	if err := b.WaitIdle(); err != nil {
		return graph.Swapchain{}, err
	}
	if err := b.createSwapchain(); err != nil {
		return graph.Swapchain{}, fmt.Errorf("recreate swapchain: %w", err)
	}
	for i, f := range b.frames {
		if err := f.ResetSemaphores(); err != nil {
			return graph.Swapchain{}, fmt.Errorf("frame %d semaphores: %w", i, err)
		}
	}
	return b.swapchain.graphSwapchain(), nil
}
