// Package dieselgraph is the Vulkan backend of the render graph. A Backend brings up
// an instance, device and swapchain for an Application and implements graph.Device and
// graph.Presenter on top of them.
package dieselgraph

import (
	"fmt"
	"log/slog"
	"sync"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselgraph/graph"
)

// Backend implements graph.Device and graph.Presenter with Vulkan.
type Backend struct {
	platform *Platform
	app      Application
	logger   *slog.Logger

	images          *handleTable[*imageResource]
	views           *handleTable[vk.ImageView]
	buffers         *handleTable[*hostBuffer]
	samplers        *handleTable[vk.Sampler]
	setLayouts      *handleTable[vk.DescriptorSetLayout]
	pipelineLayouts *handleTable[vk.PipelineLayout]
	sets            *handleTable[descriptorSet]
	cmds            *handleTable[vk.CommandBuffer]

	// cmdMu guards cmdIDs, the reverse of cmds.
	cmdMu  sync.Mutex
	cmdIDs map[vk.CommandBuffer]graph.CommandBuffer

	pools  *descriptorPools
	passes *renderPassCache

	swapchain *swapchain
	frames    []*frameContext
}

var (
	_ graph.Device    = (*Backend)(nil)
	_ graph.Presenter = (*Backend)(nil)
)

// NewBackend initializes Vulkan for app with framesInFlight frame slots (zero means
// graph.DefaultFramesInFlight) and creates the swapchain when app presents.
func NewBackend(app Application, framesInFlight uint32) (*Backend, error) {
	p, err := NewPlatform(app)
	if err != nil {
		return nil, err
	}
	b := &Backend{
		platform:        p,
		app:             app,
		logger:          appLogger(app),
		images:          newHandleTable[*imageResource](),
		views:           newHandleTable[vk.ImageView](),
		buffers:         newHandleTable[*hostBuffer](),
		samplers:        newHandleTable[vk.Sampler](),
		setLayouts:      newHandleTable[vk.DescriptorSetLayout](),
		pipelineLayouts: newHandleTable[vk.PipelineLayout](),
		sets:            newHandleTable[descriptorSet](),
		cmds:            newHandleTable[vk.CommandBuffer](),
		cmdIDs:          make(map[vk.CommandBuffer]graph.CommandBuffer),
		pools:           newDescriptorPools(p.Device()),
		passes:          newRenderPassCache(p.Device()),
	}
	if framesInFlight == 0 {
		framesInFlight = graph.DefaultFramesInFlight
	}
	if err := b.createFrames(framesInFlight); err != nil {
		b.Destroy()
		return nil, err
	}
	if app.VulkanMode().Has(VulkanPresent) {
		if err := b.createSwapchain(); err != nil {
			b.Destroy()
			return nil, err
		}
	}
	return b, nil
}

func (b *Backend) createFrames(n uint32) error {
	for i := uint32(0); i < n; i++ {
		f, err := newFrameContext(b.platform.Device(), b.platform.GraphicsQueueFamilyIndex())
		if err != nil {
			return fmt.Errorf("frame context %d: %w", i, err)
		}
		b.frames = append(b.frames, f)
	}
	return nil
}

func (b *Backend) destroyFrames() {
	for i, f := range b.frames {
		if err := f.Destroy(); err != nil {
			b.logger.Warn("vulkan: frame fences did not signal before destroy", "frame", i, "error", err)
		}
	}
	b.frames = nil
	b.cmds.drain()
	b.cmdMu.Lock()
	clear(b.cmdIDs)
	b.cmdMu.Unlock()
}

// SetFramesInFlight replaces the per-frame contexts with n new ones. It waits for the
// device to go idle first.
func (b *Backend) SetFramesInFlight(n uint32) error {
	if n == 0 {
		n = graph.DefaultFramesInFlight
	}
	if n == uint32(len(b.frames)) {
		return nil
	}
	if err := b.WaitIdle(); err != nil {
		return err
	}
	b.destroyFrames()
	return b.createFrames(n)
}

// FramesInFlight is the number of frame slots the backend was sized for.
func (b *Backend) FramesInFlight() uint32 {
	return uint32(len(b.frames))
}

func (b *Backend) Platform() *Platform {
	return b.platform
}

// Destroy waits for the device and releases everything the backend still holds,
// including objects the graph did not release.
func (b *Backend) Destroy() {
	if b.platform == nil {
		return
	}
	device := b.platform.Device()
	if device != nil {
		vk.DeviceWaitIdle(device)
		b.destroyFrames()
		if b.swapchain != nil {
			b.releaseSwapchainImages(b.swapchain)
			vk.DestroySwapchain(device, b.swapchain.handle, nil)
			b.swapchain = nil
		}
		b.passes.Destroy()
		for _, res := range b.images.drain() {
			b.destroyImage(res)
		}
		b.views.drain()
		for _, buf := range b.buffers.drain() {
			b.destroyBuffer(buf)
		}
		for _, s := range b.samplers.drain() {
			vk.DestroySampler(device, s, nil)
		}
		b.sets.drain()
		b.pools.Destroy()
		for _, l := range b.pipelineLayouts.drain() {
			vk.DestroyPipelineLayout(device, l, nil)
		}
		for _, l := range b.setLayouts.drain() {
			vk.DestroyDescriptorSetLayout(device, l, nil)
		}
	}
	b.platform.Destroy()
	b.platform = nil
}

func (b *Backend) WaitIdle() error {
	if ret := vk.DeviceWaitIdle(b.platform.Device()); isError(ret) {
		return newError(ret)
	}
	return nil
}

func (b *Backend) Limits() graph.Limits {
	limits := b.platform.PhysicalDeviceProperties().Limits
	return graph.Limits{
		MinUniformBufferOffsetAlignment: uint64(limits.MinUniformBufferOffsetAlignment),
		MinStorageBufferOffsetAlignment: uint64(limits.MinStorageBufferOffsetAlignment),
		MaxImageDimension2D:             limits.MaxImageDimension2D,
	}
}

func (b *Backend) CreateImage(desc graph.ImageDesc) (graph.Image, graph.ImageView, error) {
	res, err := b.createImage(desc)
	if err != nil {
		return 0, 0, err
	}
	return graph.Image(b.images.add(res)), graph.ImageView(b.views.add(res.view)), nil
}

func (b *Backend) DestroyImage(img graph.Image, view graph.ImageView) {
	b.passes.PurgeView(view)
	b.views.remove(uint64(view))
	res, ok := b.images.remove(uint64(img))
	if !ok {
		b.logger.Warn("vulkan: destroy of unknown image", "image", img)
		return
	}
	b.destroyImage(res)
}

func (b *Backend) CreateBuffer(desc graph.BufferDesc) (graph.Buffer, error) {
	buf, err := b.createBuffer(desc)
	if err != nil {
		return 0, err
	}
	return graph.Buffer(b.buffers.add(buf)), nil
}

func (b *Backend) DestroyBuffer(buf graph.Buffer) {
	if h, ok := b.buffers.remove(uint64(buf)); ok {
		b.destroyBuffer(h)
	}
}

func (b *Backend) WriteBuffer(buf graph.Buffer, offset uint64, data []byte) error {
	h, ok := b.buffers.get(uint64(buf))
	if !ok {
		return fmt.Errorf("write buffer %d: %w", buf, ErrUnknownHandle)
	}
	return h.write(offset, data)
}

func (b *Backend) CreateDescriptorSetLayout(bindings []graph.Binding) (graph.DescriptorSetLayout, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, bnd := range bindings {
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         bnd.Binding,
			DescriptorType:  convDescriptorKind(bnd.Kind),
			DescriptorCount: bnd.Count,
			StageFlags:      convShaderStages(bnd.Stages),
		}
	}
	var layout vk.DescriptorSetLayout
	ret := vk.CreateDescriptorSetLayout(b.platform.Device(), &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}, nil, &layout)
	if isError(ret) {
		return 0, newError(ret)
	}
	return graph.DescriptorSetLayout(b.setLayouts.add(layout)), nil
}

func (b *Backend) DestroyDescriptorSetLayout(layout graph.DescriptorSetLayout) {
	if l, ok := b.setLayouts.remove(uint64(layout)); ok {
		vk.DestroyDescriptorSetLayout(b.platform.Device(), l, nil)
	}
}

func (b *Backend) CreatePipelineLayout(sets []graph.DescriptorSetLayout) (graph.PipelineLayout, error) {
	layouts := make([]vk.DescriptorSetLayout, len(sets))
	for i, s := range sets {
		l, ok := b.setLayouts.get(uint64(s))
		if !ok {
			return 0, fmt.Errorf("pipeline layout set %d: %w", i, ErrUnknownHandle)
		}
		layouts[i] = l
	}
	var layout vk.PipelineLayout
	ret := vk.CreatePipelineLayout(b.platform.Device(), &vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(layouts)),
		PSetLayouts:    layouts,
	}, nil, &layout)
	if isError(ret) {
		return 0, newError(ret)
	}
	return graph.PipelineLayout(b.pipelineLayouts.add(layout)), nil
}

func (b *Backend) DestroyPipelineLayout(layout graph.PipelineLayout) {
	if l, ok := b.pipelineLayouts.remove(uint64(layout)); ok {
		vk.DestroyPipelineLayout(b.platform.Device(), l, nil)
	}
}

// PipelineLayout maps a graph pipeline layout handle to the Vulkan object.
func (b *Backend) PipelineLayout(layout graph.PipelineLayout) (vk.PipelineLayout, bool) {
	return b.pipelineLayouts.get(uint64(layout))
}

func (b *Backend) AllocateDescriptorSets(layout graph.DescriptorSetLayout, count int) ([]graph.DescriptorSet, error) {
	l, ok := b.setLayouts.get(uint64(layout))
	if !ok {
		return nil, fmt.Errorf("allocate descriptor sets: %w", ErrUnknownHandle)
	}
	out := make([]graph.DescriptorSet, 0, count)
	for i := 0; i < count; i++ {
		set, err := b.pools.Allocate(l)
		if err != nil {
			b.FreeDescriptorSets(out)
			return nil, err
		}
		out = append(out, graph.DescriptorSet(b.sets.add(set)))
	}
	return out, nil
}

func (b *Backend) FreeDescriptorSets(sets []graph.DescriptorSet) {
	list := make([]descriptorSet, 0, len(sets))
	for _, s := range sets {
		if set, ok := b.sets.remove(uint64(s)); ok {
			list = append(list, set)
		}
	}
	if len(list) > 0 {
		b.pools.Free(list)
	}
}

// UpdateDescriptorSets applies writes in one vkUpdateDescriptorSets call. Writes that
// name unknown handles are dropped with a warning.
func (b *Backend) UpdateDescriptorSets(writes []graph.DescriptorWrite) {
	out := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		set, ok := b.sets.get(uint64(w.Set))
		if !ok {
			b.logger.Warn("vulkan: descriptor write to unknown set", "set", w.Set, "binding", w.Binding)
			continue
		}
		vw := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set.set,
			DstBinding:      w.Binding,
			DstArrayElement: w.Element,
			DescriptorCount: 1,
			DescriptorType:  convDescriptorKind(w.Kind),
		}
		switch w.Kind {
		case graph.DescriptorUniformBuffer, graph.DescriptorStorageBuffer:
			buf, ok := b.buffers.get(uint64(w.Buffer))
			if !ok {
				b.logger.Warn("vulkan: descriptor write of unknown buffer", "buffer", w.Buffer)
				continue
			}
			vw.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buf.buffer,
				Offset: vk.DeviceSize(w.Offset),
				Range:  vk.DeviceSize(w.Range),
			}}
		default:
			view, ok := b.views.get(uint64(w.View))
			if !ok {
				b.logger.Warn("vulkan: descriptor write of unknown view", "view", w.View)
				continue
			}
			info := vk.DescriptorImageInfo{ImageView: view, ImageLayout: convLayout(w.Layout)}
			if w.Kind == graph.DescriptorCombinedImageSampler {
				sampler, ok := b.samplers.get(uint64(w.Sampler))
				if !ok {
					b.logger.Warn("vulkan: descriptor write of unknown sampler", "sampler", w.Sampler)
					continue
				}
				info.Sampler = sampler
			}
			vw.PImageInfo = []vk.DescriptorImageInfo{info}
		}
		out = append(out, vw)
	}
	if len(out) == 0 {
		return
	}
	vk.UpdateDescriptorSets(b.platform.Device(), uint32(len(out)), out, 0, nil)
}

// CreateSampler creates a clamped sampler, linear when linear is true.
func (b *Backend) CreateSampler(linear bool) (graph.Sampler, error) {
	filter := vk.FilterNearest
	if linear {
		filter = vk.FilterLinear
	}
	var sampler vk.Sampler
	ret := vk.CreateSampler(b.platform.Device(), &vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    filter,
		MinFilter:    filter,
		MipmapMode:   vk.SamplerMipmapModeNearest,
		AddressModeU: vk.SamplerAddressModeClampToEdge,
		AddressModeV: vk.SamplerAddressModeClampToEdge,
		AddressModeW: vk.SamplerAddressModeClampToEdge,
		MaxLod:       1,
		BorderColor:  vk.BorderColorFloatOpaqueBlack,
	}, nil, &sampler)
	if isError(ret) {
		return 0, newError(ret)
	}
	return graph.Sampler(b.samplers.add(sampler)), nil
}

func (b *Backend) DestroySampler(s graph.Sampler) {
	if sampler, ok := b.samplers.remove(uint64(s)); ok {
		vk.DestroySampler(b.platform.Device(), sampler, nil)
	}
}
