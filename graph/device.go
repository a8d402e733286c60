package graph

import "context"

// ImageDesc describes an engine-owned image and its default view.
type ImageDesc struct {
	Name    string
	Format  Format
	Extent  Extent
	Samples SampleCount
	Usage   ImageUsage
	Aspect  Aspect
}

// BufferDesc describes a host-visible buffer.
type BufferDesc struct {
	Name  string
	Size  uint64
	Usage BufferUsage
}

// Limits are the device limits the graph sizes per-frame buffer blocks with.
type Limits struct {
	MinUniformBufferOffsetAlignment uint64
	MinStorageBufferOffsetAlignment uint64
	// MaxImageDimension2D bounds attachment width and height. Zero means no limit
	// beyond uint32.
	MaxImageDimension2D uint32
}

// Binding is one entry of a descriptor set layout.
type Binding struct {
	Binding uint32
	Kind    DescriptorKind
	Count   uint32
	Stages  ShaderStage
}

// DescriptorWrite points one array element of a binding at a buffer range or an image.
type DescriptorWrite struct {
	Set     DescriptorSet
	Binding uint32
	Element uint32
	Kind    DescriptorKind

	Buffer Buffer
	Offset uint64
	Range  uint64

	View    ImageView
	Sampler Sampler
	Layout  Layout
}

// ImageBarrier is a single image memory barrier.
type ImageBarrier struct {
	Image     Image
	Aspect    Aspect
	SrcStage  Stage
	DstStage  Stage
	SrcAccess Access
	DstAccess Access
	OldLayout Layout
	NewLayout Layout
}

// RenderingAttachment is one attachment of a rendering scope. For multi-sample color
// attachments View is the transient image and ResolveView the resolve target.
type RenderingAttachment struct {
	View          ImageView
	Layout        Layout
	Format        Format
	Samples       SampleCount
	Resolve       ResolveMode
	ResolveView   ImageView
	ResolveLayout Layout
	Load          LoadOp
	Store         StoreOp
	Clear         ClearValue
}

// RenderingInfo describes the rendering scope of one pass for one frame.
type RenderingInfo struct {
	Pass   string
	Extent Extent
	Color  []RenderingAttachment
	Depth  *RenderingAttachment
}

// Allocator creates and destroys engine-owned memory objects.
type Allocator interface {
	Limits() Limits
	CreateImage(desc ImageDesc) (Image, ImageView, error)
	DestroyImage(img Image, view ImageView)
	CreateBuffer(desc BufferDesc) (Buffer, error)
	DestroyBuffer(buf Buffer)
	// WriteBuffer copies data into a host-visible buffer. It must not block on the GPU.
	WriteBuffer(buf Buffer, offset uint64, data []byte) error
}

// DescriptorAllocator manages descriptor set layouts, pipeline layouts and sets.
type DescriptorAllocator interface {
	CreateDescriptorSetLayout(bindings []Binding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(layout DescriptorSetLayout)
	CreatePipelineLayout(sets []DescriptorSetLayout) (PipelineLayout, error)
	DestroyPipelineLayout(layout PipelineLayout)
	AllocateDescriptorSets(layout DescriptorSetLayout, count int) ([]DescriptorSet, error)
	FreeDescriptorSets(sets []DescriptorSet)
	// UpdateDescriptorSets applies a batch of writes. It must not wait for the device.
	UpdateDescriptorSets(writes []DescriptorWrite)
}

// Recorder records commands.
type Recorder interface {
	// BeginSecondary returns a secondary command buffer in the recording state that
	// continues the rendering scope described by info. Buffers obtained with different
	// worker indices may be recorded concurrently.
	BeginSecondary(frame uint32, worker int, info *RenderingInfo) (CommandBuffer, error)
	EndCommandBuffer(cmd CommandBuffer) error
	// PipelineBarrier fails without recording anything when a barrier names an image
	// the backend does not know.
	PipelineBarrier(cmd CommandBuffer, barriers []ImageBarrier) error
	// BeginRendering fails when the rendering scope of info cannot be begun; nothing
	// is recorded then.
	BeginRendering(cmd CommandBuffer, info *RenderingInfo) error
	ExecuteCommands(cmd CommandBuffer, secondaries []CommandBuffer)
	EndRendering(cmd CommandBuffer)
	BindDescriptorSets(cmd CommandBuffer, point BindPoint, layout PipelineLayout, first uint32, sets []DescriptorSet)
}

// Device is everything the render graph needs from a graphics backend.
type Device interface {
	Allocator
	DescriptorAllocator
	Recorder
	WaitIdle() error
}

// Swapchain is the borrowed presentable image chain.
type Swapchain struct {
	Images []Image
	Views  []ImageView
	Format Format
	Extent Extent
}

// SwapchainStatus is the outcome of an acquire or present.
// Suboptimal and OutOfDate are recoverable and are never reported as errors.
type SwapchainStatus uint8

const (
	SwapchainOK SwapchainStatus = iota
	SwapchainSuboptimal
	SwapchainOutOfDate
)

func (s SwapchainStatus) Invalid() bool {
	return s != SwapchainOK
}

func (s SwapchainStatus) String() string {
	switch s {
	case SwapchainOK:
		return "ok"
	case SwapchainSuboptimal:
		return "suboptimal"
	case SwapchainOutOfDate:
		return "out_of_date"
	}
	return "unknown"
}

// Presenter owns per-frame synchronization objects and the swapchain.
type Presenter interface {
	// WaitFrame blocks until the GPU finished the previous use of frame slot frame.
	WaitFrame(ctx context.Context, frame uint32) error
	AcquireImage(ctx context.Context, frame uint32) (uint32, SwapchainStatus, error)
	// BeginPrimary resets and begins the primary command buffer of frame for queue.
	BeginPrimary(frame uint32, queue Queue) (CommandBuffer, error)
	// Submit ends and submits cmd. Graphics submissions wait on the frame's acquire
	// semaphore (and compute semaphore when compute was submitted this frame) and signal
	// the frame's fence and render-complete semaphore.
	Submit(frame uint32, queue Queue, cmd CommandBuffer) error
	Present(frame uint32, image uint32) (SwapchainStatus, error)
	// Recreate rebuilds the swapchain after invalidation and returns the new images.
	Recreate(ctx context.Context) (Swapchain, error)
}
