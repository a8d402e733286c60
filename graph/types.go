package graph

import (
	"fmt"
	"strings"
)

// Handles are opaque backend-assigned identifiers. Zero is the null handle.
type (
	Image               uint64
	ImageView           uint64
	Sampler             uint64
	Buffer              uint64
	DescriptorSetLayout uint64
	DescriptorSet       uint64
	PipelineLayout      uint64
	CommandBuffer       uint64
)

// Format is an image pixel format.
type Format uint32

const (
	FormatUndefined Format = iota
	FormatR8G8B8A8Unorm
	FormatR8G8B8A8Srgb
	FormatB8G8R8A8Unorm
	FormatB8G8R8A8Srgb
	FormatR16G16B16A16Sfloat
	FormatR32G32B32A32Sfloat
	FormatA2B10G10R10UnormPack32
	FormatD16Unorm
	FormatD32Sfloat
	FormatD16UnormS8Uint
	FormatD24UnormS8Uint
	FormatD32SfloatS8Uint
)

var formatNames = map[Format]string{
	FormatUndefined:              "undefined",
	FormatR8G8B8A8Unorm:          "r8g8b8a8_unorm",
	FormatR8G8B8A8Srgb:           "r8g8b8a8_srgb",
	FormatB8G8R8A8Unorm:          "b8g8r8a8_unorm",
	FormatB8G8R8A8Srgb:           "b8g8r8a8_srgb",
	FormatR16G16B16A16Sfloat:     "r16g16b16a16_sfloat",
	FormatR32G32B32A32Sfloat:     "r32g32b32a32_sfloat",
	FormatA2B10G10R10UnormPack32: "a2b10g10r10_unorm_pack32",
	FormatD16Unorm:               "d16_unorm",
	FormatD32Sfloat:              "d32_sfloat",
	FormatD16UnormS8Uint:         "d16_unorm_s8_uint",
	FormatD24UnormS8Uint:         "d24_unorm_s8_uint",
	FormatD32SfloatS8Uint:        "d32_sfloat_s8_uint",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", uint32(f))
}

// IsDepth reports whether f is a depth or depth-stencil format.
func (f Format) IsDepth() bool {
	switch f {
	case FormatD16Unorm, FormatD32Sfloat, FormatD16UnormS8Uint, FormatD24UnormS8Uint, FormatD32SfloatS8Uint:
		return true
	}
	return false
}

// HasStencil reports whether f carries a stencil component.
func (f Format) HasStencil() bool {
	switch f {
	case FormatD16UnormS8Uint, FormatD24UnormS8Uint, FormatD32SfloatS8Uint:
		return true
	}
	return false
}

// IsColor reports whether f is a known color format.
func (f Format) IsColor() bool {
	_, known := formatNames[f]
	return known && f != FormatUndefined && !f.IsDepth()
}

// ParseFormat maps a lower-case format name such as "b8g8r8a8_unorm" to a Format.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, name := range formatNames {
		if name == s {
			return f, nil
		}
	}
	return FormatUndefined, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// SampleCount is the number of samples per pixel. Zero is treated as one.
type SampleCount uint32

func (s SampleCount) normalize() SampleCount {
	if s == 0 {
		return 1
	}
	return s
}

// Access is a bit mask of memory accesses.
type Access uint32

const (
	AccessNone                Access = 0
	AccessColorAttachmentRead Access = 1 << iota
	AccessColorAttachmentWrite
	AccessDepthStencilAttachmentRead
	AccessDepthStencilAttachmentWrite
	AccessShaderRead
	AccessShaderWrite
	AccessTransferRead
	AccessTransferWrite
	AccessMemoryRead
	AccessMemoryWrite
)

// Stage is a bit mask of pipeline stages.
type Stage uint32

const (
	StageNone      Stage = 0
	StageTopOfPipe Stage = 1 << iota
	StageVertexShader
	StageFragmentShader
	StageEarlyFragmentTests
	StageLateFragmentTests
	StageColorAttachmentOutput
	StageComputeShader
	StageTransfer
	StageBottomOfPipe
)

// Layout is an image layout.
type Layout uint32

const (
	LayoutUndefined Layout = iota
	LayoutGeneral
	LayoutColorAttachmentOptimal
	LayoutDepthAttachmentOptimal
	LayoutShaderReadOnlyOptimal
	LayoutTransferSrcOptimal
	LayoutTransferDstOptimal
	LayoutPresentSrc
)

func (l Layout) String() string {
	switch l {
	case LayoutUndefined:
		return "undefined"
	case LayoutGeneral:
		return "general"
	case LayoutColorAttachmentOptimal:
		return "color_attachment_optimal"
	case LayoutDepthAttachmentOptimal:
		return "depth_attachment_optimal"
	case LayoutShaderReadOnlyOptimal:
		return "shader_read_only_optimal"
	case LayoutTransferSrcOptimal:
		return "transfer_src_optimal"
	case LayoutTransferDstOptimal:
		return "transfer_dst_optimal"
	case LayoutPresentSrc:
		return "present_src"
	}
	return fmt.Sprintf("layout(%d)", uint32(l))
}

// Aspect selects the planes of an image a barrier or view covers.
type Aspect uint32

const (
	AspectColor Aspect = 1 << iota
	AspectDepth
	AspectStencil
)

type LoadOp uint8

const (
	LoadOpClear LoadOp = iota
	LoadOpLoad
	LoadOpDontCare
)

func (op LoadOp) String() string {
	switch op {
	case LoadOpClear:
		return "clear"
	case LoadOpLoad:
		return "load"
	}
	return "dont_care"
}

type StoreOp uint8

const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

type ResolveMode uint8

const (
	ResolveNone ResolveMode = iota
	ResolveAverage
)

// SizeKind says how an attachment's logical size maps to pixels.
type SizeKind uint8

const (
	SizeSwapchainRelative SizeKind = iota
	SizeAbsolute
	SizeRelative
)

func (k SizeKind) String() string {
	switch k {
	case SizeSwapchainRelative:
		return "swapchain_relative"
	case SizeAbsolute:
		return "absolute"
	case SizeRelative:
		return "relative"
	}
	return fmt.Sprintf("size_kind(%d)", uint8(k))
}

// ParseSizeKind accepts the names printed by SizeKind.String.
func ParseSizeKind(s string) (SizeKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "swapchain_relative":
		return SizeSwapchainRelative, nil
	case "absolute":
		return SizeAbsolute, nil
	case "relative":
		return SizeRelative, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedSizeKind, s)
}

// ContainerKind is the physical backing of an attachment container.
type ContainerKind uint8

const (
	KindSingle ContainerKind = iota
	KindPerSwapchainImage
	KindPerFrame
)

func (k ContainerKind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindPerSwapchainImage:
		return "per_swapchain_image"
	case KindPerFrame:
		return "per_frame"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

type DescriptorKind uint8

const (
	DescriptorUniformBuffer DescriptorKind = iota
	DescriptorStorageBuffer
	DescriptorCombinedImageSampler
	DescriptorSampledImage
	DescriptorStorageImage
)

func (k DescriptorKind) isBuffer() bool {
	return k == DescriptorUniformBuffer || k == DescriptorStorageBuffer
}

// ParseDescriptorKind maps recipe names ("uniform", "storage", "combined_image_sampler",
// "sampled_image", "storage_image") to a DescriptorKind.
func ParseDescriptorKind(s string) (DescriptorKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "uniform", "uniform_buffer":
		return DescriptorUniformBuffer, nil
	case "storage", "storage_buffer":
		return DescriptorStorageBuffer, nil
	case "", "combined_image_sampler":
		return DescriptorCombinedImageSampler, nil
	case "sampled_image":
		return DescriptorSampledImage, nil
	case "storage_image":
		return DescriptorStorageImage, nil
	}
	return 0, fmt.Errorf("unknown descriptor kind %q", s)
}

// ShaderStage is a bit mask of shader stages a binding is visible to.
type ShaderStage uint32

const (
	ShaderVertex ShaderStage = 1 << iota
	ShaderFragment
	ShaderCompute

	ShaderAllGraphics = ShaderVertex | ShaderFragment
)

// ParseShaderStages folds stage names ("vertex", "fragment", "compute", "all_graphics").
func ParseShaderStages(names []string) (ShaderStage, error) {
	var stages ShaderStage
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "vertex":
			stages |= ShaderVertex
		case "fragment":
			stages |= ShaderFragment
		case "compute":
			stages |= ShaderCompute
		case "all_graphics":
			stages |= ShaderAllGraphics
		default:
			return 0, fmt.Errorf("unknown shader stage %q", n)
		}
	}
	return stages, nil
}

type ImageUsage uint32

const (
	UsageColorAttachment ImageUsage = 1 << iota
	UsageDepthStencilAttachment
	UsageSampled
	UsageStorage
	UsageTransientAttachment
	UsageTransferSrc
	UsageTransferDst
)

type BufferUsage uint32

const (
	BufferUniform BufferUsage = 1 << iota
	BufferStorage
)

type BindPoint uint8

const (
	BindGraphics BindPoint = iota
	BindCompute
)

// Queue selects the queue a primary command buffer is recorded for.
type Queue uint8

const (
	QueueGraphics Queue = iota
	QueueCompute
)

// Extent is a 2D size in pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// ClearValue holds both color and depth/stencil clear values; the attachment's
// format decides which half is used.
type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}
