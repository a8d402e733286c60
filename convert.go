package dieselgraph

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselgraph/graph"
)

var formats = map[graph.Format]vk.Format{
	graph.FormatUndefined:              vk.FormatUndefined,
	graph.FormatR8G8B8A8Unorm:          vk.FormatR8g8b8a8Unorm,
	graph.FormatR8G8B8A8Srgb:           vk.FormatR8g8b8a8Srgb,
	graph.FormatB8G8R8A8Unorm:          vk.FormatB8g8r8a8Unorm,
	graph.FormatB8G8R8A8Srgb:           vk.FormatB8g8r8a8Srgb,
	graph.FormatR16G16B16A16Sfloat:     vk.FormatR16g16b16a16Sfloat,
	graph.FormatR32G32B32A32Sfloat:     vk.FormatR32g32b32a32Sfloat,
	graph.FormatA2B10G10R10UnormPack32: vk.FormatA2b10g10r10UnormPack32,
	graph.FormatD16Unorm:               vk.FormatD16Unorm,
	graph.FormatD32Sfloat:              vk.FormatD32Sfloat,
	graph.FormatD16UnormS8Uint:         vk.FormatD16UnormS8Uint,
	graph.FormatD24UnormS8Uint:         vk.FormatD24UnormS8Uint,
	graph.FormatD32SfloatS8Uint:        vk.FormatD32SfloatS8Uint,
}

func convFormat(f graph.Format) vk.Format {
	return formats[f]
}

// graphFormat maps a Vulkan format back; ok is false for formats the graph does not know.
func graphFormat(f vk.Format) (graph.Format, bool) {
	for gf, vf := range formats {
		if vf == f && gf != graph.FormatUndefined {
			return gf, true
		}
	}
	return graph.FormatUndefined, false
}

func convLayout(l graph.Layout) vk.ImageLayout {
	switch l {
	case graph.LayoutGeneral:
		return vk.ImageLayoutGeneral
	case graph.LayoutColorAttachmentOptimal:
		return vk.ImageLayoutColorAttachmentOptimal
	case graph.LayoutDepthAttachmentOptimal:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case graph.LayoutShaderReadOnlyOptimal:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case graph.LayoutTransferSrcOptimal:
		return vk.ImageLayoutTransferSrcOptimal
	case graph.LayoutTransferDstOptimal:
		return vk.ImageLayoutTransferDstOptimal
	case graph.LayoutPresentSrc:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

var stageBits = []struct {
	g graph.Stage
	v vk.PipelineStageFlagBits
}{
	{graph.StageTopOfPipe, vk.PipelineStageTopOfPipeBit},
	{graph.StageVertexShader, vk.PipelineStageVertexShaderBit},
	{graph.StageFragmentShader, vk.PipelineStageFragmentShaderBit},
	{graph.StageEarlyFragmentTests, vk.PipelineStageEarlyFragmentTestsBit},
	{graph.StageLateFragmentTests, vk.PipelineStageLateFragmentTestsBit},
	{graph.StageColorAttachmentOutput, vk.PipelineStageColorAttachmentOutputBit},
	{graph.StageComputeShader, vk.PipelineStageComputeShaderBit},
	{graph.StageTransfer, vk.PipelineStageTransferBit},
	{graph.StageBottomOfPipe, vk.PipelineStageBottomOfPipeBit},
}

// convStage converts a stage mask. An empty mask becomes fallback, since Vulkan rejects
// zero stage masks in barriers.
func convStage(s graph.Stage, fallback vk.PipelineStageFlagBits) vk.PipelineStageFlags {
	var out vk.PipelineStageFlags
	for _, b := range stageBits {
		if s&b.g != 0 {
			out |= vk.PipelineStageFlags(b.v)
		}
	}
	if out == 0 {
		out = vk.PipelineStageFlags(fallback)
	}
	return out
}

var accessBits = []struct {
	g graph.Access
	v vk.AccessFlagBits
}{
	{graph.AccessColorAttachmentRead, vk.AccessColorAttachmentReadBit},
	{graph.AccessColorAttachmentWrite, vk.AccessColorAttachmentWriteBit},
	{graph.AccessDepthStencilAttachmentRead, vk.AccessDepthStencilAttachmentReadBit},
	{graph.AccessDepthStencilAttachmentWrite, vk.AccessDepthStencilAttachmentWriteBit},
	{graph.AccessShaderRead, vk.AccessShaderReadBit},
	{graph.AccessShaderWrite, vk.AccessShaderWriteBit},
	{graph.AccessTransferRead, vk.AccessTransferReadBit},
	{graph.AccessTransferWrite, vk.AccessTransferWriteBit},
	{graph.AccessMemoryRead, vk.AccessMemoryReadBit},
	{graph.AccessMemoryWrite, vk.AccessMemoryWriteBit},
}

func convAccess(a graph.Access) vk.AccessFlags {
	var out vk.AccessFlags
	for _, b := range accessBits {
		if a&b.g != 0 {
			out |= vk.AccessFlags(b.v)
		}
	}
	return out
}

func convAspect(a graph.Aspect) vk.ImageAspectFlags {
	var out vk.ImageAspectFlags
	if a&graph.AspectColor != 0 {
		out |= vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	if a&graph.AspectDepth != 0 {
		out |= vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	if a&graph.AspectStencil != 0 {
		out |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	return out
}

// convSamples relies on VkSampleCountFlagBits being numerically equal to the count.
func convSamples(s graph.SampleCount) vk.SampleCountFlagBits {
	if s == 0 {
		return vk.SampleCount1Bit
	}
	return vk.SampleCountFlagBits(s)
}

func convImageUsage(u graph.ImageUsage) vk.ImageUsageFlags {
	var out vk.ImageUsageFlags
	for _, b := range []struct {
		g graph.ImageUsage
		v vk.ImageUsageFlagBits
	}{
		{graph.UsageColorAttachment, vk.ImageUsageColorAttachmentBit},
		{graph.UsageDepthStencilAttachment, vk.ImageUsageDepthStencilAttachmentBit},
		{graph.UsageSampled, vk.ImageUsageSampledBit},
		{graph.UsageStorage, vk.ImageUsageStorageBit},
		{graph.UsageTransientAttachment, vk.ImageUsageTransientAttachmentBit},
		{graph.UsageTransferSrc, vk.ImageUsageTransferSrcBit},
		{graph.UsageTransferDst, vk.ImageUsageTransferDstBit},
	} {
		if u&b.g != 0 {
			out |= vk.ImageUsageFlags(b.v)
		}
	}
	return out
}

func convBufferUsage(u graph.BufferUsage) vk.BufferUsageFlags {
	var out vk.BufferUsageFlags
	if u&graph.BufferUniform != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
	if u&graph.BufferStorage != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	}
	return out
}

func convDescriptorKind(k graph.DescriptorKind) vk.DescriptorType {
	switch k {
	case graph.DescriptorStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case graph.DescriptorCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler
	case graph.DescriptorSampledImage:
		return vk.DescriptorTypeSampledImage
	case graph.DescriptorStorageImage:
		return vk.DescriptorTypeStorageImage
	}
	return vk.DescriptorTypeUniformBuffer
}

func convShaderStages(s graph.ShaderStage) vk.ShaderStageFlags {
	var out vk.ShaderStageFlags
	if s&graph.ShaderVertex != 0 {
		out |= vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	}
	if s&graph.ShaderFragment != 0 {
		out |= vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	}
	if s&graph.ShaderCompute != 0 {
		out |= vk.ShaderStageFlags(vk.ShaderStageComputeBit)
	}
	return out
}

func convLoadOp(op graph.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case graph.LoadOpClear:
		return vk.AttachmentLoadOpClear
	case graph.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	}
	return vk.AttachmentLoadOpDontCare
}

func convStoreOp(op graph.StoreOp) vk.AttachmentStoreOp {
	if op == graph.StoreOpStore {
		return vk.AttachmentStoreOpStore
	}
	return vk.AttachmentStoreOpDontCare
}

func convBindPoint(p graph.BindPoint) vk.PipelineBindPoint {
	if p == graph.BindCompute {
		return vk.PipelineBindPointCompute
	}
	return vk.PipelineBindPointGraphics
}

func convClear(a graph.RenderingAttachment, depth bool) vk.ClearValue {
	if depth {
		return vk.NewClearDepthStencil(a.Clear.Depth, a.Clear.Stencil)
	}
	c := a.Clear.Color
	return vk.NewClearValue(c[:])
}

func convExtent(e graph.Extent) vk.Extent2D {
	return vk.Extent2D{Width: e.Width, Height: e.Height}
}
