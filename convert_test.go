package dieselgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselgraph/graph"
)

func TestFormatsRoundTrip(t *testing.T) {
	for gf, vf := range formats {
		if gf == graph.FormatUndefined {
			continue
		}
		back, ok := graphFormat(vf)
		require.True(t, ok, "%s", gf)
		assert.Equal(t, gf, back)
	}
	_, ok := graphFormat(vk.FormatUndefined)
	assert.False(t, ok)
	_, ok = graphFormat(vk.FormatR8Unorm)
	assert.False(t, ok)
}

func TestConvLayout(t *testing.T) {
	assert.Equal(t, vk.ImageLayoutDepthStencilAttachmentOptimal, convLayout(graph.LayoutDepthAttachmentOptimal))
	assert.Equal(t, vk.ImageLayoutPresentSrc, convLayout(graph.LayoutPresentSrc))
	assert.Equal(t, vk.ImageLayoutUndefined, convLayout(graph.LayoutUndefined))
}

func TestConvStage(t *testing.T) {
	tests := []struct {
		name     string
		in       graph.Stage
		fallback vk.PipelineStageFlagBits
		want     vk.PipelineStageFlags
	}{
		{
			name:     "empty uses fallback",
			in:       graph.StageNone,
			fallback: vk.PipelineStageTopOfPipeBit,
			want:     vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		},
		{
			name:     "single",
			in:       graph.StageColorAttachmentOutput,
			fallback: vk.PipelineStageBottomOfPipeBit,
			want:     vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		},
		{
			name:     "fragment tests",
			in:       graph.StageEarlyFragmentTests | graph.StageLateFragmentTests,
			fallback: vk.PipelineStageTopOfPipeBit,
			want: vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit) |
				vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, convStage(tt.in, tt.fallback))
		})
	}
}

func TestConvAccessAndAspect(t *testing.T) {
	assert.Zero(t, convAccess(graph.AccessNone))
	assert.Equal(t,
		vk.AccessFlags(vk.AccessColorAttachmentReadBit)|vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
		convAccess(graph.AccessColorAttachmentRead|graph.AccessColorAttachmentWrite))
	assert.Equal(t,
		vk.ImageAspectFlags(vk.ImageAspectDepthBit)|vk.ImageAspectFlags(vk.ImageAspectStencilBit),
		convAspect(graph.AspectDepth|graph.AspectStencil))
}

func TestConvSamples(t *testing.T) {
	assert.Equal(t, vk.SampleCount1Bit, convSamples(0))
	assert.Equal(t, vk.SampleCount1Bit, convSamples(1))
	assert.Equal(t, vk.SampleCount4Bit, convSamples(4))
	assert.Equal(t, vk.SampleCount64Bit, convSamples(64))
}

func TestConvClear(t *testing.T) {
	a := graph.RenderingAttachment{Clear: graph.ClearValue{Color: [4]float32{0.1, 0.2, 0.3, 1}, Depth: 1, Stencil: 7}}
	assert.Equal(t, vk.NewClearValue([]float32{0.1, 0.2, 0.3, 1}), convClear(a, false))
	assert.Equal(t, vk.NewClearDepthStencil(1, 7), convClear(a, true))
}

func TestConvUsage(t *testing.T) {
	assert.Equal(t,
		vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)|vk.ImageUsageFlags(vk.ImageUsageTransientAttachmentBit),
		convImageUsage(graph.UsageColorAttachment|graph.UsageTransientAttachment))
	assert.Equal(t, vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit), convBufferUsage(graph.BufferStorage))
	assert.Equal(t, vk.DescriptorTypeCombinedImageSampler, convDescriptorKind(graph.DescriptorCombinedImageSampler))
	assert.Equal(t,
		vk.ShaderStageFlags(vk.ShaderStageVertexBit)|vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		convShaderStages(graph.ShaderAllGraphics))
}

func TestFindMemoryType(t *testing.T) {
	var props vk.PhysicalDeviceMemoryProperties
	props.MemoryTypeCount = 3
	props.MemoryTypes[0].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	props.MemoryTypes[1].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)
	props.MemoryTypes[2].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)

	want := vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	i, ok := findMemoryType(props, 0b111, want)
	require.True(t, ok)
	assert.Equal(t, uint32(2), i)

	_, ok = findMemoryType(props, 0b011, want)
	assert.False(t, ok, "type 2 is excluded by the type bits")
}
