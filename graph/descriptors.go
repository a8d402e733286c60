package graph

import (
	"fmt"
	"log/slog"
	"sort"
)

// makeAlignUp rounds a up to the next multiple of align.
func makeAlignUp(a, align uint64) uint64 {
	if align == 0 {
		return a
	}
	m := a % align
	if m == 0 {
		return a
	}
	return a - m + align
}

// bufferBlock is the backing of one buffer input: a single buffer holding one block per
// frame in flight. Array element e of frame f starts at BlockSize*f + Stride*e.
type bufferBlock struct {
	Input     BufferInput
	Buffer    Buffer
	Stride    uint64
	BlockSize uint64
}

func (b *bufferBlock) offset(frame, element uint32) uint64 {
	return b.BlockSize*uint64(frame) + b.Stride*uint64(element)
}

// BufferBlock is the byte range of a buffer input owned by one frame slot.
type BufferBlock struct {
	Buffer Buffer
	Offset uint64
	Size   uint64
}

// DescriptorSets is the graph-global half of the descriptor state: set 0 and the
// pipeline layout that only contains it. Per-pass state lives on each Pass.
type DescriptorSets struct {
	GraphLayout         DescriptorSetLayout
	GraphPipelineLayout PipelineLayout
	// Graph holds one set 0 per frame in flight.
	Graph []DescriptorSet

	blocks map[string]*bufferBlock
}

// DescriptorSetBuilder creates layouts, buffers and sets for the graph and its passes and
// writes their initial contents in one batch.
type DescriptorSetBuilder struct {
	dev    Device
	frames uint32
	limits Limits
	logger *slog.Logger
	writes []DescriptorWrite
}

func NewDescriptorSetBuilder(dev Device, frames uint32, logger *slog.Logger) *DescriptorSetBuilder {
	if logger == nil {
		logger = Logger()
	}
	return &DescriptorSetBuilder{dev: dev, frames: frames, limits: dev.Limits(), logger: logger}
}

// Build creates set 0 from global and set 1 for every pass. Handles are stored as soon as
// they are created so a failed build can be torn down by the caller.
func (b *DescriptorSetBuilder) Build(global []BufferInput, passes []*Pass, ds *DescriptorSets) error {
	globalBuffers, _, bindings := b.resolve("graph", global, nil)
	layout, err := b.dev.CreateDescriptorSetLayout(bindings)
	if err != nil {
		return fmt.Errorf("graph descriptor set layout: %w", err)
	}
	ds.GraphLayout = layout
	if ds.GraphPipelineLayout, err = b.dev.CreatePipelineLayout([]DescriptorSetLayout{layout}); err != nil {
		return fmt.Errorf("graph pipeline layout: %w", err)
	}
	if ds.Graph, err = b.dev.AllocateDescriptorSets(layout, int(b.frames)); err != nil {
		return fmt.Errorf("graph descriptor sets: %w", err)
	}
	ds.blocks = make(map[string]*bufferBlock, len(globalBuffers))
	for _, in := range globalBuffers {
		blk, err := b.buffer("graph", in)
		if err != nil {
			return err
		}
		ds.blocks[in.Name] = blk
		b.writeBuffer(ds.Graph, blk)
	}

	for _, p := range passes {
		if err := b.buildPass(ds, p); err != nil {
			return fmt.Errorf("pass %q: %w", p.Name, err)
		}
	}

	if len(b.writes) > 0 {
		b.dev.UpdateDescriptorSets(b.writes)
	}
	b.logger.Debug("descriptor sets written", "writes", len(b.writes), "passes", len(passes))
	b.writes = nil
	return nil
}

func (b *DescriptorSetBuilder) buildPass(ds *DescriptorSets, p *Pass) error {
	buffers, textures, bindings := b.resolve(p.Name, p.Buffers, p.Textures)
	layout, err := b.dev.CreateDescriptorSetLayout(bindings)
	if err != nil {
		return fmt.Errorf("descriptor set layout: %w", err)
	}
	p.SetLayout = layout
	if p.PipelineLayout, err = b.dev.CreatePipelineLayout([]DescriptorSetLayout{ds.GraphLayout, layout}); err != nil {
		return fmt.Errorf("pipeline layout: %w", err)
	}

	p.blocks = make(map[string]*bufferBlock, len(buffers))
	p.textures = make(map[string]TextureInput, len(textures))
	if len(buffers) == 0 && len(textures) == 0 {
		return nil
	}
	if p.Sets, err = b.dev.AllocateDescriptorSets(layout, int(b.frames)); err != nil {
		return fmt.Errorf("descriptor sets: %w", err)
	}
	for _, in := range buffers {
		blk, err := b.buffer(p.Name, in)
		if err != nil {
			return err
		}
		p.blocks[in.Name] = blk
		b.writeBuffer(p.Sets, blk)
	}
	for _, in := range textures {
		p.textures[in.Name] = in
		for f := range p.Sets {
			for e := uint32(0); e < arrayCount(in.Count); e++ {
				b.writes = append(b.writes, textureWrite(p.Sets[f], in, e, in.Default))
			}
		}
	}
	return nil
}

// resolve merges buffer and texture declarations by binding index. A later declaration
// of the same binding replaces the earlier one.
func (b *DescriptorSetBuilder) resolve(scope string, buffers []BufferInput, textures []TextureInput) ([]BufferInput, []TextureInput, []Binding) {
	type owner struct {
		texture bool
		index   int
		name    string
	}
	owners := make(map[uint32]owner)
	bindings := make(map[uint32]Binding)
	claim := func(o owner, bind Binding) {
		if prev, ok := owners[bind.Binding]; ok {
			b.logger.Debug("descriptor binding overridden", "scope", scope,
				"binding", bind.Binding, "previous", prev.name, "input", o.name)
		}
		owners[bind.Binding] = o
		bindings[bind.Binding] = bind
	}
	for i, in := range buffers {
		claim(owner{index: i, name: in.Name}, Binding{Binding: in.Binding, Kind: in.Kind, Count: arrayCount(in.Count), Stages: in.Stages})
	}
	for i, in := range textures {
		claim(owner{texture: true, index: i, name: in.Name}, Binding{Binding: in.Binding, Kind: in.Kind, Count: arrayCount(in.Count), Stages: in.Stages})
	}

	var keptBuffers []BufferInput
	var keptTextures []TextureInput
	for i, in := range buffers {
		if o := owners[in.Binding]; !o.texture && o.index == i {
			keptBuffers = append(keptBuffers, in)
		}
	}
	for i, in := range textures {
		if o := owners[in.Binding]; o.texture && o.index == i {
			keptTextures = append(keptTextures, in)
		}
	}

	sorted := make([]Binding, 0, len(bindings))
	for _, bind := range bindings {
		sorted = append(sorted, bind)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Binding < sorted[j].Binding })
	return keptBuffers, keptTextures, sorted
}

func (b *DescriptorSetBuilder) buffer(scope string, in BufferInput) (*bufferBlock, error) {
	if !in.Kind.isBuffer() {
		return nil, fmt.Errorf("buffer input %q: descriptor kind %d is not a buffer kind", in.Name, in.Kind)
	}
	if in.Size == 0 {
		return nil, fmt.Errorf("buffer input %q: size must be positive", in.Name)
	}
	align, usage := b.limits.MinUniformBufferOffsetAlignment, BufferUniform
	if in.Kind == DescriptorStorageBuffer {
		align, usage = b.limits.MinStorageBufferOffsetAlignment, BufferStorage
	}
	stride := makeAlignUp(in.Size, align)
	blk := &bufferBlock{
		Input:     in,
		Stride:    stride,
		BlockSize: stride * uint64(arrayCount(in.Count)),
	}
	buf, err := b.dev.CreateBuffer(BufferDesc{
		Name:  scope + "." + in.Name,
		Size:  blk.BlockSize * uint64(b.frames),
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("buffer input %q: %w", in.Name, err)
	}
	blk.Buffer = buf
	return blk, nil
}

func (b *DescriptorSetBuilder) writeBuffer(sets []DescriptorSet, blk *bufferBlock) {
	for f := range sets {
		for e := uint32(0); e < arrayCount(blk.Input.Count); e++ {
			b.writes = append(b.writes, DescriptorWrite{
				Set:     sets[f],
				Binding: blk.Input.Binding,
				Element: e,
				Kind:    blk.Input.Kind,
				Buffer:  blk.Buffer,
				Offset:  blk.offset(uint32(f), e),
				Range:   blk.Stride,
			})
		}
	}
}

func textureWrite(set DescriptorSet, in TextureInput, element uint32, tex TextureBinding) DescriptorWrite {
	layout := tex.Layout
	if layout == LayoutUndefined {
		layout = LayoutShaderReadOnlyOptimal
	}
	return DescriptorWrite{
		Set:     set,
		Binding: in.Binding,
		Element: element,
		Kind:    in.Kind,
		View:    tex.View,
		Sampler: tex.Sampler,
		Layout:  layout,
	}
}

func arrayCount(c uint32) uint32 {
	if c == 0 {
		return 1
	}
	return c
}
