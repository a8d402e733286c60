package graph

import (
	"fmt"
	"log/slog"
	"math"
)

// TrackedState is the last known GPU access, layout and stage of a physical image.
type TrackedState struct {
	Access Access
	Layout Layout
	Stage  Stage
}

// UndefinedState is the baseline every resource returns to once per frame.
var UndefinedState = TrackedState{Access: AccessNone, Layout: LayoutUndefined, Stage: StageTopOfPipe}

// Ownership tells the registry whether it may destroy a resource's image.
type Ownership uint8

const (
	// Owned images were allocated by the registry and are destroyed by it.
	Owned Ownership = iota
	// Borrowed images belong to the swapchain and are never destroyed by the registry.
	Borrowed
)

func (o Ownership) String() string {
	if o == Borrowed {
		return "borrowed"
	}
	return "owned"
}

// AttachmentResource is one physical image/view pair and its tracked state.
type AttachmentResource struct {
	Image     Image
	View      ImageView
	Ownership Ownership
	State     TrackedState
}

// AttachmentContainer owns the physical resources behind a chain of aliased attachments.
type AttachmentContainer struct {
	Index int
	// Name is the attachment that created the container; LastWriter the one that
	// most recently wrote it.
	Name       string
	LastWriter string

	Kind     ContainerKind
	Format   Format
	SizeKind SizeKind
	Size     [2]float32
	Extent   Extent
	Samples  SampleCount
	Usage    ImageUsage
	Aspect   Aspect

	Resources []*AttachmentResource
	// Transient is the multi-sample image rendered into when Samples > 1 on a color
	// attachment; Resources then hold the resolve targets.
	Transient *AttachmentResource
}

// Resource selects the resource for a swapchain image and frame slot according to Kind.
func (c *AttachmentContainer) Resource(image, frame uint32) *AttachmentResource {
	switch c.Kind {
	case KindPerSwapchainImage:
		return c.Resources[image]
	case KindPerFrame:
		return c.Resources[frame]
	}
	return c.Resources[0]
}

// Multisampled reports whether the container renders through a transient image.
func (c *AttachmentContainer) Multisampled() bool {
	return c.Transient != nil
}

// Registry resolves attachment declarations into containers.
type Registry struct {
	dev            Allocator
	swapchain      Swapchain
	framesInFlight uint32
	outputs        map[string]struct{}
	logger         *slog.Logger

	containers []*AttachmentContainer
	// writers maps the last writer name of every container to its index.
	writers map[string]int
	// names maps every declared attachment name to its container.
	names map[string]int
	// consumed maps a writer name to the attachment that aliased it.
	consumed map[string]string
}

// NewRegistry creates an empty registry. Attachments named in outputs are backed by
// the swapchain images.
func NewRegistry(dev Allocator, sc Swapchain, framesInFlight uint32, outputs []string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = Logger()
	}
	r := &Registry{
		dev:            dev,
		swapchain:      sc,
		framesInFlight: framesInFlight,
		outputs:        make(map[string]struct{}, len(outputs)),
		logger:         logger,
		writers:        make(map[string]int),
		names:          make(map[string]int),
		consumed:       make(map[string]string),
	}
	for _, name := range outputs {
		r.outputs[name] = struct{}{}
	}
	return r
}

// Containers returns all containers in creation order.
func (r *Registry) Containers() []*AttachmentContainer {
	return r.containers
}

// Container returns the container at index i.
func (r *Registry) Container(i int) *AttachmentContainer {
	return r.containers[i]
}

// Lookup returns the container index any attachment name resolved to.
func (r *Registry) Lookup(name string) (int, bool) {
	i, ok := r.names[name]
	return i, ok
}

// CreateOrAlias resolves a declaration to a container index and the load op the
// declaring pass must use: Clear for a new container, Load for an alias.
func (r *Registry) CreateOrAlias(d AttachmentDecl) (int, LoadOp, error) {
	if d.Name == "" {
		return -1, LoadOpDontCare, fmt.Errorf("attachment declared without a name")
	}
	if _, dup := r.names[d.Name]; dup {
		return -1, LoadOpDontCare, fmt.Errorf("%w: %q", ErrDuplicateAttachment, d.Name)
	}
	d.Size = normalizeSize(d.SizeKind, d.Size)

	if d.Input == "" {
		idx, err := r.create(d)
		if err != nil {
			return -1, LoadOpDontCare, err
		}
		return idx, LoadOpClear, nil
	}

	idx, ok := r.writers[d.Input]
	if !ok {
		if by, taken := r.consumed[d.Input]; taken {
			return -1, LoadOpDontCare, fmt.Errorf("%w: %q reads %q, which was already aliased by %q",
				ErrUnknownInput, d.Name, d.Input, by)
		}
		return -1, LoadOpDontCare, fmt.Errorf("%w: %q reads %q", ErrUnknownInput, d.Name, d.Input)
	}
	c := r.containers[idx]
	if c.SizeKind != d.SizeKind || c.Size != d.Size {
		return -1, LoadOpDontCare, fmt.Errorf("%w: %q is %s %v but its input %q is %s %v",
			ErrAliasMismatch, d.Name, d.SizeKind, d.Size, d.Input, c.SizeKind, c.Size)
	}
	if d.Format != FormatUndefined && d.Format != c.Format {
		return -1, LoadOpDontCare, fmt.Errorf("%w: %q has format %s but its input %q has %s",
			ErrAliasMismatch, d.Name, d.Format, d.Input, c.Format)
	}

	delete(r.writers, d.Input)
	r.writers[d.Name] = idx
	r.consumed[d.Input] = d.Name
	r.names[d.Name] = idx
	c.LastWriter = d.Name
	r.logger.Debug("attachment aliased", "name", d.Name, "input", d.Input, "container", idx)
	return idx, LoadOpLoad, nil
}

func (r *Registry) create(d AttachmentDecl) (int, error) {
	kind := KindSingle
	if _, ok := r.outputs[d.Name]; ok {
		kind = KindPerSwapchainImage
		if d.Format == FormatUndefined {
			d.Format = r.swapchain.Format
		}
		if d.Format != r.swapchain.Format {
			return -1, fmt.Errorf("%w: swapchain output %q declared as %s but the swapchain is %s",
				ErrUnsupportedFormat, d.Name, d.Format, r.swapchain.Format)
		}
	} else if d.PerFrame {
		kind = KindPerFrame
	}

	usage, aspect, err := attachmentUsage(d.Format)
	if err != nil {
		return -1, fmt.Errorf("attachment %q: %w", d.Name, err)
	}
	c := &AttachmentContainer{
		Index:      len(r.containers),
		Name:       d.Name,
		LastWriter: d.Name,
		Kind:       kind,
		Format:     d.Format,
		SizeKind:   d.SizeKind,
		Size:       d.Size,
		Samples:    d.Samples.normalize(),
		Usage:      usage,
		Aspect:     aspect,
	}
	if err := r.allocate(c); err != nil {
		return -1, fmt.Errorf("attachment %q: %w", d.Name, err)
	}

	r.containers = append(r.containers, c)
	r.writers[d.Name] = c.Index
	r.names[d.Name] = c.Index
	r.logger.Debug("attachment created", "name", d.Name, "container", c.Index,
		"kind", c.Kind, "format", c.Format, "extent", c.Extent, "samples", c.Samples)
	return c.Index, nil
}

// allocate fills c.Extent, c.Resources and c.Transient for the current swapchain.
func (r *Registry) allocate(c *AttachmentContainer) error {
	if c.Kind == KindPerSwapchainImage {
		c.Extent = r.swapchain.Extent
		c.Resources = make([]*AttachmentResource, len(r.swapchain.Images))
		for i := range r.swapchain.Images {
			c.Resources[i] = &AttachmentResource{
				Image:     r.swapchain.Images[i],
				View:      r.swapchain.Views[i],
				Ownership: Borrowed,
				State:     UndefinedState,
			}
		}
	} else {
		extent, err := r.extentOf(c.SizeKind, c.Size)
		if err != nil {
			return err
		}
		c.Extent = extent

		count := uint32(1)
		if c.Kind == KindPerFrame {
			count = r.framesInFlight
		}
		samples := SampleCount(1)
		if c.Format.IsDepth() {
			samples = c.Samples
		}
		c.Resources = make([]*AttachmentResource, 0, count)
		for i := uint32(0); i < count; i++ {
			img, view, err := r.dev.CreateImage(ImageDesc{
				Name:    fmt.Sprintf("%s[%d]", c.Name, i),
				Format:  c.Format,
				Extent:  c.Extent,
				Samples: samples,
				Usage:   c.Usage,
				Aspect:  c.Aspect,
			})
			if err != nil {
				r.free(c)
				return fmt.Errorf("create image: %w", err)
			}
			c.Resources = append(c.Resources, &AttachmentResource{
				Image: img, View: view, Ownership: Owned, State: UndefinedState,
			})
		}
	}

	if c.Samples > 1 && !c.Format.IsDepth() {
		img, view, err := r.dev.CreateImage(ImageDesc{
			Name:    c.Name + "[msaa]",
			Format:  c.Format,
			Extent:  c.Extent,
			Samples: c.Samples,
			Usage:   UsageColorAttachment | UsageTransientAttachment,
			Aspect:  AspectColor,
		})
		if err != nil {
			r.free(c)
			return fmt.Errorf("create transient image: %w", err)
		}
		c.Transient = &AttachmentResource{Image: img, View: view, Ownership: Owned, State: UndefinedState}
	}
	return nil
}

// free releases every resource of c through the ownership-aware path.
func (r *Registry) free(c *AttachmentContainer) {
	for _, res := range c.Resources {
		r.release(res)
	}
	c.Resources = nil
	if c.Transient != nil {
		r.release(c.Transient)
		c.Transient = nil
	}
}

func (r *Registry) release(res *AttachmentResource) {
	switch res.Ownership {
	case Owned:
		r.dev.DestroyImage(res.Image, res.View)
	case Borrowed:
		// destroyed together with the swapchain
	}
}

// Recreate adapts the registry to a new swapchain. Swapchain-backed containers rebind
// to the new images; swapchain-relative containers are reallocated at the new extent.
func (r *Registry) Recreate(sc Swapchain) error {
	r.swapchain = sc
	for _, c := range r.containers {
		if c.Kind != KindPerSwapchainImage && c.SizeKind != SizeSwapchainRelative {
			continue
		}
		r.free(c)
		if err := r.allocate(c); err != nil {
			return fmt.Errorf("recreate attachment %q: %w", c.Name, err)
		}
		r.logger.Debug("attachment recreated", "name", c.Name, "extent", c.Extent)
	}
	return nil
}

// Destroy releases all containers.
func (r *Registry) Destroy() {
	for _, c := range r.containers {
		r.free(c)
	}
	r.containers = nil
	r.writers = make(map[string]int)
	r.names = make(map[string]int)
	r.consumed = make(map[string]string)
}

func (r *Registry) extentOf(kind SizeKind, size [2]float32) (Extent, error) {
	var base [2]float64
	switch kind {
	case SizeSwapchainRelative:
		base = [2]float64{float64(r.swapchain.Extent.Width), float64(r.swapchain.Extent.Height)}
	case SizeAbsolute:
		base = [2]float64{1, 1}
	case SizeRelative:
		return Extent{}, fmt.Errorf("%w: relative sizing is not implemented", ErrUnsupportedSizeKind)
	default:
		return Extent{}, fmt.Errorf("%w: %s", ErrUnsupportedSizeKind, kind)
	}

	limit := uint32(math.MaxUint32)
	if m := r.dev.Limits().MaxImageDimension2D; m > 0 {
		limit = m
	}
	var dims [2]uint32
	for i, factor := range size {
		f := float64(factor)
		if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
			return Extent{}, fmt.Errorf("%w: %s size %v", ErrInvalidSize, kind, size)
		}
		v := math.Floor(base[i] * f)
		if v < 1 {
			return Extent{}, fmt.Errorf("%w: %s size %v resolves to an empty extent", ErrInvalidSize, kind, size)
		}
		if v > float64(limit) {
			return Extent{}, fmt.Errorf("%w: %s size %v exceeds the maximum dimension %d", ErrInvalidSize, kind, size, limit)
		}
		dims[i] = uint32(v)
	}
	return Extent{Width: dims[0], Height: dims[1]}, nil
}

// normalizeSize treats an unset swapchain-relative factor as full size.
func normalizeSize(kind SizeKind, size [2]float32) [2]float32 {
	if kind == SizeSwapchainRelative && size == [2]float32{} {
		return [2]float32{1, 1}
	}
	return size
}

func attachmentUsage(f Format) (ImageUsage, Aspect, error) {
	switch {
	case f.IsColor():
		return UsageColorAttachment | UsageSampled | UsageTransferSrc, AspectColor, nil
	case f.IsDepth():
		aspect := AspectDepth
		if f.HasStencil() {
			aspect |= AspectStencil
		}
		return UsageDepthStencilAttachment | UsageSampled, aspect, nil
	}
	return 0, 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
}
