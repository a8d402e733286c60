package dieselgraph

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselgraph/graph"
)

func (b *Backend) view(v graph.ImageView) (vk.ImageView, bool) {
	return b.views.get(uint64(v))
}

// RenderPass returns the render pass compatible with info, for building pipelines that
// draw inside that pass.
func (b *Backend) RenderPass(info *graph.RenderingInfo) (vk.RenderPass, error) {
	rp, _, err := b.passes.RenderPass(info)
	return rp, err
}

// BeginSecondary begins a secondary command buffer from worker's pool that continues
// the render pass instance of info.
func (b *Backend) BeginSecondary(frame uint32, worker int, info *graph.RenderingInfo) (graph.CommandBuffer, error) {
	f, err := b.frame(frame)
	if err != nil {
		return 0, err
	}
	ring, err := f.secondary(worker)
	if err != nil {
		return 0, err
	}
	rp, fb, _, err := b.passes.Framebuffer(info, b.view)
	if err != nil {
		return 0, err
	}
	cb, err := ring.begin(&vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit |
			vk.CommandBufferUsageOneTimeSubmitBit),
		PInheritanceInfo: []vk.CommandBufferInheritanceInfo{{
			SType:       vk.StructureTypeCommandBufferInheritanceInfo,
			RenderPass:  rp,
			Subpass:     0,
			Framebuffer: fb,
		}},
	})
	if err != nil {
		return 0, fmt.Errorf("begin secondary for %q: %w", info.Pass, err)
	}
	return b.commandID(cb), nil
}

func (b *Backend) EndCommandBuffer(cmd graph.CommandBuffer) error {
	cb, ok := b.cmds.get(uint64(cmd))
	if !ok {
		return fmt.Errorf("end command buffer %d: %w", cmd, ErrUnknownHandle)
	}
	if ret := vk.EndCommandBuffer(cb); isError(ret) {
		return newError(ret)
	}
	return nil
}

// PipelineBarrier records all barriers in one call with the union of their stages.
// Nothing is recorded when any barrier names an unknown image.
func (b *Backend) PipelineBarrier(cmd graph.CommandBuffer, barriers []graph.ImageBarrier) error {
	cb, ok := b.cmds.get(uint64(cmd))
	if !ok {
		return fmt.Errorf("pipeline barrier on command buffer %d: %w", cmd, ErrUnknownHandle)
	}
	if len(barriers) == 0 {
		return nil
	}
	var src, dst vk.PipelineStageFlags
	out := make([]vk.ImageMemoryBarrier, 0, len(barriers))
	for _, br := range barriers {
		res, ok := b.images.get(uint64(br.Image))
		if !ok {
			return fmt.Errorf("barrier on image %d: %w", br.Image, ErrUnknownHandle)
		}
		src |= convStage(br.SrcStage, vk.PipelineStageTopOfPipeBit)
		dst |= convStage(br.DstStage, vk.PipelineStageBottomOfPipeBit)
		out = append(out, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       convAccess(br.SrcAccess),
			DstAccessMask:       convAccess(br.DstAccess),
			OldLayout:           convLayout(br.OldLayout),
			NewLayout:           convLayout(br.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               res.image,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: convAspect(br.Aspect),
				LevelCount: 1,
				LayerCount: 1,
			},
		})
	}
	vk.CmdPipelineBarrier(cb, src, dst, 0, 0, nil, 0, nil, uint32(len(out)), out)
	return nil
}

// BeginRendering begins the render pass instance of info. Its contents are recorded
// in secondary command buffers.
func (b *Backend) BeginRendering(cmd graph.CommandBuffer, info *graph.RenderingInfo) error {
	cb, ok := b.cmds.get(uint64(cmd))
	if !ok {
		return fmt.Errorf("begin rendering %q on command buffer %d: %w", info.Pass, cmd, ErrUnknownHandle)
	}
	rp, fb, layout, err := b.passes.Framebuffer(info, b.view)
	if err != nil {
		return fmt.Errorf("begin rendering %q: %w", info.Pass, err)
	}
	vk.CmdBeginRenderPass(cb, &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: convExtent(info.Extent),
		},
		ClearValueCount: uint32(len(layout.clears)),
		PClearValues:    layout.clears,
	}, vk.SubpassContentsSecondaryCommandBuffers)
	return nil
}

func (b *Backend) ExecuteCommands(cmd graph.CommandBuffer, secondaries []graph.CommandBuffer) {
	cb, ok := b.cmds.get(uint64(cmd))
	if !ok || len(secondaries) == 0 {
		return
	}
	list := make([]vk.CommandBuffer, 0, len(secondaries))
	for _, s := range secondaries {
		if sc, ok := b.cmds.get(uint64(s)); ok {
			list = append(list, sc)
		}
	}
	vk.CmdExecuteCommands(cb, uint32(len(list)), list)
}

func (b *Backend) EndRendering(cmd graph.CommandBuffer) {
	if cb, ok := b.cmds.get(uint64(cmd)); ok {
		vk.CmdEndRenderPass(cb)
	}
}

func (b *Backend) BindDescriptorSets(cmd graph.CommandBuffer, point graph.BindPoint,
	layout graph.PipelineLayout, first uint32, sets []graph.DescriptorSet) {

	cb, ok := b.cmds.get(uint64(cmd))
	if !ok || len(sets) == 0 {
		return
	}
	pl, ok := b.pipelineLayouts.get(uint64(layout))
	if !ok {
		b.logger.Warn("vulkan: bind with unknown pipeline layout", "layout", layout)
		return
	}
	list := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		set, ok := b.sets.get(uint64(s))
		if !ok {
			b.logger.Warn("vulkan: bind of unknown descriptor set", "set", s)
			return
		}
		list[i] = set.set
	}
	vk.CmdBindDescriptorSets(cb, convBindPoint(point), pl, first, uint32(len(list)), list, 0, nil)
}
