package graph

import (
	"fmt"
	"slices"
)

// AttachmentSlot is one attachment binding of a pass: the container it resolved to and
// the state the pass requires the image to be in.
type AttachmentSlot struct {
	Name      string
	Container int
	Depth     bool
	Required  TrackedState
	Aspect    Aspect
	Load      LoadOp
	Store     StoreOp
	Clear     ClearValue
}

// Pass is a built pass in execution order.
type Pass struct {
	// Index is the execution position, Declared the position in the recipe.
	Index    int
	Declared int
	Name     string
	Slots    []AttachmentSlot
	Extent   Extent
	Samples  SampleCount

	Buffers  []BufferInput
	Textures []TextureInput

	SetLayout      DescriptorSetLayout
	PipelineLayout PipelineLayout
	// Sets holds one descriptor set per frame in flight, or nil when the pass has no inputs.
	Sets []DescriptorSet

	hooks    any
	blocks   map[string]*bufferBlock
	textures map[string]TextureInput
}

// Hooks returns the hook value the pass was declared with.
func (p *Pass) Hooks() any {
	return p.hooks
}

func colorSlotState() TrackedState {
	return TrackedState{
		Access: AccessColorAttachmentWrite,
		Layout: LayoutColorAttachmentOptimal,
		Stage:  StageColorAttachmentOutput,
	}
}

func depthSlotState() TrackedState {
	return TrackedState{
		Access: AccessDepthStencilAttachmentWrite | AccessDepthStencilAttachmentRead,
		Layout: LayoutDepthAttachmentOptimal,
		Stage:  StageEarlyFragmentTests | StageLateFragmentTests,
	}
}

func newSlot(d AttachmentDecl, c *AttachmentContainer, load LoadOp) AttachmentSlot {
	s := AttachmentSlot{
		Name:      d.Name,
		Container: c.Index,
		Depth:     c.Format.IsDepth(),
		Aspect:    c.Aspect,
		Load:      load,
		Store:     StoreOpStore,
		Clear:     d.Clear,
	}
	if s.Depth {
		s.Required = depthSlotState()
	} else {
		s.Required = colorSlotState()
	}
	return s
}

// orderPasses returns recipe indices in execution order. A pass runs after every pass
// that writes an attachment it names as input; otherwise declaration order is kept.
func orderPasses(passes []PassRecipe) ([]int, error) {
	n := len(passes)
	writer := make(map[string]int)
	names := make(map[string]int, n)
	for i := range passes {
		p := &passes[i]
		if p.Name == "" {
			return nil, fmt.Errorf("pass %d declared without a name", i)
		}
		if j, dup := names[p.Name]; dup {
			return nil, fmt.Errorf("duplicate pass name %q (passes %d and %d)", p.Name, j, i)
		}
		names[p.Name] = i
		for _, a := range p.attachments() {
			if j, dup := writer[a.Name]; dup {
				return nil, fmt.Errorf("%w: %q is declared by passes %q and %q",
					ErrDuplicateAttachment, a.Name, passes[j].Name, p.Name)
			}
			writer[a.Name] = i
		}
	}

	dependents := make([][]int, n)
	indegree := make([]int, n)
	for i := range passes {
		p := &passes[i]
		for _, a := range p.attachments() {
			if a.Input == "" {
				continue
			}
			j, ok := writer[a.Input]
			if !ok {
				return nil, fmt.Errorf("%w: pass %q attachment %q reads %q", ErrUnknownInput, p.Name, a.Name, a.Input)
			}
			if j == i {
				return nil, fmt.Errorf("pass %q attachment %q reads %q from the same pass: self-referential edge not allowed",
					p.Name, a.Name, a.Input)
			}
			if !slices.Contains(dependents[j], i) {
				dependents[j] = append(dependents[j], i)
				indegree[i]++
			}
		}
	}

	order := make([]int, 0, n)
	done := make([]bool, n)
	for len(order) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			break
		}
		done[next] = true
		order = append(order, next)
		for _, d := range dependents[next] {
			indegree[d]--
		}
	}
	if len(order) < n {
		for i := range passes {
			if !done[i] {
				return nil, fmt.Errorf("%w involving pass %q", ErrCycle, passes[i].Name)
			}
		}
	}
	return order, nil
}
