package graph

// AttachmentDecl declares one color or depth attachment of a pass.
//
// An empty Input declares a write-only attachment backed by a new container. A non-empty
// Input names an attachment written earlier; the pass then reads and writes the same
// physical image, which must have the same size and size kind.
type AttachmentDecl struct {
	Name     string
	Input    string
	Size     [2]float32
	SizeKind SizeKind
	Format   Format
	Samples  SampleCount
	Clear    ClearValue
	// PerFrame backs the attachment with one image per frame in flight.
	PerFrame bool
}

// BufferInput declares a per-frame buffer bound through a descriptor set.
// Size is the raw size of one array element.
type BufferInput struct {
	Name    string
	Binding uint32
	Count   uint32
	Kind    DescriptorKind
	Stages  ShaderStage
	Size    uint64
}

// TextureBinding is an image view, sampler and layout bound to a texture input.
type TextureBinding struct {
	View    ImageView
	Sampler Sampler
	Layout  Layout
}

// TextureInput declares a texture binding initialised with Default at build time.
type TextureInput struct {
	Name    string
	Binding uint32
	Count   uint32
	Kind    DescriptorKind
	Stages  ShaderStage
	Default TextureBinding
}

// PassRecipe declares one pass. Hooks may implement any of BeginFrameHook, UpdateHook,
// RenderHook, ComputeHook and BuildHook.
type PassRecipe struct {
	Name     string
	Color    []AttachmentDecl
	Depth    *AttachmentDecl
	Buffers  []BufferInput
	Textures []TextureInput
	Hooks    any
}

// Recipe declares a whole graph.
type Recipe struct {
	// Backbuffer is the attachment presented at the end of every frame.
	Backbuffer string
	// SwapchainOutputs are attachment names backed by swapchain images. Backbuffer is
	// always included.
	SwapchainOutputs []string
	// Buffers are graph-global inputs bound at set 0 for every pass.
	Buffers []BufferInput
	Passes  []PassRecipe
	Hooks   any
}

func (p *PassRecipe) attachments() []AttachmentDecl {
	decls := make([]AttachmentDecl, 0, len(p.Color)+1)
	decls = append(decls, p.Color...)
	if p.Depth != nil {
		decls = append(decls, *p.Depth)
	}
	return decls
}
