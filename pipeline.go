package dieselgraph

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselgraph/graph"
)

// PipelineBuilder assembles a graphics pipeline without vertex input for one pass.
// Viewport and scissor are dynamic so the pipeline survives swapchain resizes.
type PipelineBuilder struct {
	shaderStages         []vk.PipelineShaderStageCreateInfo
	inputAssembly        vk.PipelineInputAssemblyStateCreateInfo
	rasterizer           vk.PipelineRasterizationStateCreateInfo
	colorBlendAttachment vk.PipelineColorBlendAttachmentState
	depthTest            bool
	depthWrite           bool
}

// NewPipelineBuilder starts a triangle list pipeline for program: no culling, no
// blending and no depth test.
func NewPipelineBuilder(program *ShaderProgram) *PipelineBuilder {
	return &PipelineBuilder{
		shaderStages: []vk.PipelineShaderStageCreateInfo{
			{
				SType:  vk.StructureTypePipelineShaderStageCreateInfo,
				Stage:  vk.ShaderStageVertexBit,
				Module: program.Vertex,
				PName:  cString("main"),
			},
			{
				SType:  vk.StructureTypePipelineShaderStageCreateInfo,
				Stage:  vk.ShaderStageFragmentBit,
				Module: program.Fragment,
				PName:  cString("main"),
			},
		},
		inputAssembly: vk.PipelineInputAssemblyStateCreateInfo{
			SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology:               vk.PrimitiveTopologyTriangleList,
			PrimitiveRestartEnable: vk.False,
		},
		rasterizer: vk.PipelineRasterizationStateCreateInfo{
			SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
			DepthClampEnable:        vk.False,
			RasterizerDiscardEnable: vk.False,
			PolygonMode:             vk.PolygonModeFill,
			CullMode:                vk.CullModeFlags(vk.CullModeNone),
			FrontFace:               vk.FrontFaceCounterClockwise,
			LineWidth:               1.0,
		},
		colorBlendAttachment: vk.PipelineColorBlendAttachmentState{
			BlendEnable: vk.False,
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
				vk.ColorComponentBBit | vk.ColorComponentABit),
		},
	}
}

// WithAlphaBlend enables straight alpha blending on every color attachment.
func (p *PipelineBuilder) WithAlphaBlend() *PipelineBuilder {
	p.colorBlendAttachment.BlendEnable = vk.True
	p.colorBlendAttachment.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
	p.colorBlendAttachment.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
	p.colorBlendAttachment.ColorBlendOp = vk.BlendOpAdd
	p.colorBlendAttachment.SrcAlphaBlendFactor = vk.BlendFactorOne
	p.colorBlendAttachment.DstAlphaBlendFactor = vk.BlendFactorZero
	p.colorBlendAttachment.AlphaBlendOp = vk.BlendOpAdd
	return p
}

func (p *PipelineBuilder) WithCullMode(mode vk.CullModeFlagBits) *PipelineBuilder {
	p.rasterizer.CullMode = vk.CullModeFlags(mode)
	return p
}

func (p *PipelineBuilder) WithTopology(t vk.PrimitiveTopology) *PipelineBuilder {
	p.inputAssembly.Topology = t
	return p
}

// WithDepth enables the depth test with a less-or-equal compare. It has no effect on
// passes without a depth attachment.
func (p *PipelineBuilder) WithDepth(write bool) *PipelineBuilder {
	p.depthTest = true
	p.depthWrite = write
	return p
}

// Build creates the pipeline for the render pass of info with layout.
func (p *PipelineBuilder) Build(b *Backend, layout graph.PipelineLayout, info *graph.RenderingInfo) (vk.Pipeline, error) {
	var none vk.Pipeline
	pl, ok := b.PipelineLayout(layout)
	if !ok {
		return none, fmt.Errorf("pipeline for %q: layout %d: %w", info.Pass, layout, ErrUnknownHandle)
	}
	rp, err := b.RenderPass(info)
	if err != nil {
		return none, err
	}

	attachments := make([]vk.PipelineColorBlendAttachmentState, len(info.Color))
	for i := range attachments {
		attachments[i] = p.colorBlendAttachment
	}
	samples := vk.SampleCount1Bit
	if len(info.Color) > 0 {
		samples = convSamples(info.Color[0].Samples)
	} else if info.Depth != nil {
		samples = convSamples(info.Depth.Samples)
	}

	depthState := vk.PipelineDepthStencilStateCreateInfo{
		SType:          vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthCompareOp: vk.CompareOpLessOrEqual,
		MinDepthBounds: 0,
		MaxDepthBounds: 1,
	}
	if info.Depth != nil && p.depthTest {
		depthState.DepthTestEnable = vk.True
		if p.depthWrite {
			depthState.DepthWriteEnable = vk.True
		}
	}

	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: samples,
		MinSampleShading:     1.0,
	}
	blendState := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
	}
	dynamic := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamic)),
		PDynamicStates:    dynamic,
	}

	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateGraphicsPipelines(b.platform.Device(), nil, 1, []vk.GraphicsPipelineCreateInfo{{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(p.shaderStages)),
		PStages:             p.shaderStages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &p.inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &p.rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthState,
		PColorBlendState:    &blendState,
		PDynamicState:       &dynamicState,
		Layout:              pl,
		RenderPass:          rp,
		Subpass:             0,
	}}, nil, pipelines)
	if isError(ret) {
		return none, fmt.Errorf("pipeline for %q: %w", info.Pass, newError(ret))
	}
	return pipelines[0], nil
}

func (b *Backend) DestroyPipeline(p vk.Pipeline) {
	vk.DestroyPipeline(b.platform.Device(), p, nil)
}

// SetViewport sets a full-extent viewport and scissor on cmd.
func SetViewport(cmd vk.CommandBuffer, extent graph.Extent) {
	vk.CmdSetViewport(cmd, 0, 1, []vk.Viewport{{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}})
	vk.CmdSetScissor(cmd, 0, 1, []vk.Rect2D{{Extent: convExtent(extent)}})
}
