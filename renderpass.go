package dieselgraph

import (
	"fmt"
	"strings"
	"sync"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselgraph/graph"
)

// renderPassLayout is the Vulkan description of one graph rendering scope. Attachments
// are ordered color, depth, then resolve targets; views follows the same order.
type renderPassLayout struct {
	attachments []vk.AttachmentDescription
	color       []vk.AttachmentReference
	resolve     []vk.AttachmentReference
	depth       *vk.AttachmentReference
	views       []graph.ImageView
	clears      []vk.ClearValue
}

// describeRenderPass lays info out as a single-subpass render pass. The graph has
// already transitioned every attachment, so initial and final layouts equal the
// required layout. Resolve targets are fully overwritten: they start undefined and end
// in the color attachment layout the graph assumes after the scope.
func describeRenderPass(info *graph.RenderingInfo) *renderPassLayout {
	l := &renderPassLayout{}
	add := func(a graph.RenderingAttachment, depth bool) uint32 {
		layout := convLayout(a.Layout)
		desc := vk.AttachmentDescription{
			Format:         convFormat(a.Format),
			Samples:        convSamples(a.Samples),
			LoadOp:         convLoadOp(a.Load),
			StoreOp:        convStoreOp(a.Store),
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  layout,
			FinalLayout:    layout,
		}
		if depth && a.Format.HasStencil() {
			desc.StencilLoadOp = desc.LoadOp
			desc.StencilStoreOp = desc.StoreOp
		}
		l.attachments = append(l.attachments, desc)
		l.views = append(l.views, a.View)
		l.clears = append(l.clears, convClear(a, depth))
		return uint32(len(l.attachments) - 1)
	}

	for _, a := range info.Color {
		idx := add(a, false)
		l.color = append(l.color, vk.AttachmentReference{
			Attachment: idx,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}
	if info.Depth != nil {
		idx := add(*info.Depth, true)
		l.depth = &vk.AttachmentReference{
			Attachment: idx,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	resolving := false
	for _, a := range info.Color {
		if a.Resolve != graph.ResolveNone {
			resolving = true
		}
	}
	if !resolving {
		return l
	}
	for _, a := range info.Color {
		if a.Resolve == graph.ResolveNone {
			l.resolve = append(l.resolve, vk.AttachmentReference{Attachment: vk.MaxUint32})
			continue
		}
		l.attachments = append(l.attachments, vk.AttachmentDescription{
			Format:         convFormat(a.Format),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpDontCare,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		})
		l.views = append(l.views, a.ResolveView)
		l.clears = append(l.clears, vk.NewClearValue([]float32{0, 0, 0, 0}))
		l.resolve = append(l.resolve, vk.AttachmentReference{
			Attachment: uint32(len(l.attachments) - 1),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}
	return l
}

// renderPassKey identifies render pass compatibility plus load and store behavior.
func renderPassKey(info *graph.RenderingInfo) string {
	var sb strings.Builder
	write := func(a graph.RenderingAttachment) {
		fmt.Fprintf(&sb, "%d/%d/%d/%d/%d/%d;", a.Format, a.Samples, a.Load, a.Store, a.Layout, a.Resolve)
	}
	for _, a := range info.Color {
		write(a)
	}
	sb.WriteString("|")
	if info.Depth != nil {
		write(*info.Depth)
	}
	return sb.String()
}

type framebuffer struct {
	handle vk.Framebuffer
	views  []graph.ImageView
}

// renderPassCache creates render passes and framebuffers on first use and keeps them
// until the views they reference are destroyed.
type renderPassCache struct {
	device vk.Device

	mu           sync.Mutex
	passes       map[string]vk.RenderPass
	framebuffers map[string]*framebuffer
}

func newRenderPassCache(device vk.Device) *renderPassCache {
	return &renderPassCache{
		device:       device,
		passes:       make(map[string]vk.RenderPass),
		framebuffers: make(map[string]*framebuffer),
	}
}

// RenderPass returns the render pass for info, creating it if needed.
func (c *renderPassCache) RenderPass(info *graph.RenderingInfo) (vk.RenderPass, *renderPassLayout, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renderPass(info)
}

func (c *renderPassCache) renderPass(info *graph.RenderingInfo) (vk.RenderPass, *renderPassLayout, error) {
	layout := describeRenderPass(info)
	key := renderPassKey(info)
	if rp, ok := c.passes[key]; ok {
		return rp, layout, nil
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    uint32(len(layout.color)),
		PColorAttachments:       layout.color,
		PResolveAttachments:     layout.resolve,
		PDepthStencilAttachment: layout.depth,
	}
	var rp vk.RenderPass
	ret := vk.CreateRenderPass(c.device, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(layout.attachments)),
		PAttachments:    layout.attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}, nil, &rp)
	if isError(ret) {
		return rp, nil, fmt.Errorf("render pass for %q: %w", info.Pass, newError(ret))
	}
	c.passes[key] = rp
	return rp, layout, nil
}

// Framebuffer returns the render pass and framebuffer for info. resolve maps graph view
// handles to Vulkan views.
func (c *renderPassCache) Framebuffer(info *graph.RenderingInfo,
	resolve func(graph.ImageView) (vk.ImageView, bool)) (vk.RenderPass, vk.Framebuffer, *renderPassLayout, error) {

	c.mu.Lock()
	defer c.mu.Unlock()

	var none vk.Framebuffer
	rp, layout, err := c.renderPass(info)
	if err != nil {
		return rp, none, nil, err
	}
	var sb strings.Builder
	sb.WriteString(renderPassKey(info))
	fmt.Fprintf(&sb, "@%dx%d", info.Extent.Width, info.Extent.Height)
	for _, v := range layout.views {
		fmt.Fprintf(&sb, ",%d", v)
	}
	key := sb.String()
	if fb, ok := c.framebuffers[key]; ok {
		return rp, fb.handle, layout, nil
	}

	views := make([]vk.ImageView, len(layout.views))
	for i, id := range layout.views {
		v, ok := resolve(id)
		if !ok {
			return rp, none, nil, fmt.Errorf("framebuffer for %q: view %d: %w", info.Pass, id, ErrUnknownHandle)
		}
		views[i] = v
	}
	var handle vk.Framebuffer
	ret := vk.CreateFramebuffer(c.device, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           info.Extent.Width,
		Height:          info.Extent.Height,
		Layers:          1,
	}, nil, &handle)
	if isError(ret) {
		return rp, none, nil, fmt.Errorf("framebuffer for %q: %w", info.Pass, newError(ret))
	}
	c.framebuffers[key] = &framebuffer{handle: handle, views: layout.views}
	return rp, handle, layout, nil
}

// PurgeView destroys every framebuffer that references view.
func (c *renderPassCache) PurgeView(view graph.ImageView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, fb := range c.framebuffers {
		for _, v := range fb.views {
			if v == view {
				vk.DestroyFramebuffer(c.device, fb.handle, nil)
				delete(c.framebuffers, key)
				break
			}
		}
	}
}

func (c *renderPassCache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, fb := range c.framebuffers {
		vk.DestroyFramebuffer(c.device, fb.handle, nil)
		delete(c.framebuffers, key)
	}
	for key, rp := range c.passes {
		vk.DestroyRenderPass(c.device, rp, nil)
		delete(c.passes, key)
	}
}
