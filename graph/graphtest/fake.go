// Package graphtest provides an in-memory Device and Presenter that record every call,
// for testing render graphs without a GPU.
package graphtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/andewx/dieselgraph/graph"
)

// Call is one recorded command.
type Call struct {
	Op          string
	Barriers    []graph.ImageBarrier
	Info        *graph.RenderingInfo
	Secondaries []graph.CommandBuffer
	Point       graph.BindPoint
	Layout      graph.PipelineLayout
	First       uint32
	Sets        []graph.DescriptorSet
}

// Secondary describes a secondary command buffer handed out by BeginSecondary.
type Secondary struct {
	Cmd    graph.CommandBuffer
	Frame  uint32
	Worker int
	Info   *graph.RenderingInfo
	Ended  bool
}

// Device is a fake graph.Device. Handles are allocated from one counter starting at 1.
// All methods are safe for concurrent use.
type Device struct {
	mu   sync.Mutex
	next uint64

	DeviceLimits graph.Limits

	Images          map[graph.Image]graph.ImageDesc
	Buffers         map[graph.Buffer]graph.BufferDesc
	Data            map[graph.Buffer][]byte
	SetLayouts      map[graph.DescriptorSetLayout][]graph.Binding
	PipelineLayouts map[graph.PipelineLayout][]graph.DescriptorSetLayout
	Sets            map[graph.DescriptorSet]graph.DescriptorSetLayout

	// WriteBatches holds every UpdateDescriptorSets call in order.
	WriteBatches [][]graph.DescriptorWrite
	Commands     map[graph.CommandBuffer][]Call
	Secondaries  []*Secondary
	// Destroyed lists images passed to DestroyImage, including ones the device never
	// created.
	Destroyed []graph.Image
	// Foreign counts DestroyImage calls for images this device did not create.
	Foreign int

	WaitIdleN  int
	CreateImgN int

	// FailImage, when set, makes CreateImage fail for matching descriptors.
	FailImage func(graph.ImageDesc) bool
	// FailRendering, when set, makes BeginRendering fail for matching scopes.
	FailRendering func(*graph.RenderingInfo) bool
	// FailBarrier, when set, makes PipelineBarrier fail when any barrier matches.
	FailBarrier func(graph.ImageBarrier) bool
}

// ErrInjected is returned by calls failed through the Fail* hooks.
var ErrInjected = errors.New("graphtest: injected failure")

func NewDevice() *Device {
	return &Device{
		DeviceLimits: graph.Limits{
			MinUniformBufferOffsetAlignment: 256,
			MinStorageBufferOffsetAlignment: 64,
			MaxImageDimension2D:             16384,
		},
		Images:          make(map[graph.Image]graph.ImageDesc),
		Buffers:         make(map[graph.Buffer]graph.BufferDesc),
		Data:            make(map[graph.Buffer][]byte),
		SetLayouts:      make(map[graph.DescriptorSetLayout][]graph.Binding),
		PipelineLayouts: make(map[graph.PipelineLayout][]graph.DescriptorSetLayout),
		Sets:            make(map[graph.DescriptorSet]graph.DescriptorSetLayout),
		Commands:        make(map[graph.CommandBuffer][]Call),
	}
}

func (d *Device) handle() uint64 {
	d.next++
	return d.next
}

// Handle allocates a fresh handle value, for tests that need foreign objects such as
// samplers or swapchain images.
func (d *Device) Handle() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle()
}

// NewSwapchain returns a swapchain of n images the device does not own.
func (d *Device) NewSwapchain(n int, format graph.Format, extent graph.Extent) graph.Swapchain {
	sc := graph.Swapchain{Format: format, Extent: extent}
	for i := 0; i < n; i++ {
		sc.Images = append(sc.Images, graph.Image(d.Handle()))
		sc.Views = append(sc.Views, graph.ImageView(d.Handle()))
	}
	return sc
}

func (d *Device) Limits() graph.Limits {
	return d.DeviceLimits
}

func (d *Device) CreateImage(desc graph.ImageDesc) (graph.Image, graph.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CreateImgN++
	if d.FailImage != nil && d.FailImage(desc) {
		return 0, 0, fmt.Errorf("create image %q: out of device memory", desc.Name)
	}
	img := graph.Image(d.handle())
	view := graph.ImageView(d.handle())
	d.Images[img] = desc
	return img, view, nil
}

func (d *Device) DestroyImage(img graph.Image, _ graph.ImageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Destroyed = append(d.Destroyed, img)
	if _, ok := d.Images[img]; !ok {
		d.Foreign++
		return
	}
	delete(d.Images, img)
}

// LiveImages returns the number of images created and not yet destroyed.
func (d *Device) LiveImages() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Images)
}

func (d *Device) CreateBuffer(desc graph.BufferDesc) (graph.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := graph.Buffer(d.handle())
	d.Buffers[buf] = desc
	d.Data[buf] = make([]byte, desc.Size)
	return buf, nil
}

func (d *Device) DestroyBuffer(buf graph.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.Buffers, buf)
	delete(d.Data, buf)
}

func (d *Device) WriteBuffer(buf graph.Buffer, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	mem, ok := d.Data[buf]
	if !ok {
		return fmt.Errorf("write to unknown buffer %d", buf)
	}
	if offset+uint64(len(data)) > uint64(len(mem)) {
		return fmt.Errorf("write [%d, %d) outside buffer of %d bytes", offset, offset+uint64(len(data)), len(mem))
	}
	copy(mem[offset:], data)
	return nil
}

func (d *Device) CreateDescriptorSetLayout(bindings []graph.Binding) (graph.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := graph.DescriptorSetLayout(d.handle())
	d.SetLayouts[l] = bindings
	return l, nil
}

func (d *Device) DestroyDescriptorSetLayout(l graph.DescriptorSetLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.SetLayouts, l)
}

func (d *Device) CreatePipelineLayout(sets []graph.DescriptorSetLayout) (graph.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range sets {
		if _, ok := d.SetLayouts[s]; !ok {
			return 0, fmt.Errorf("unknown descriptor set layout %d", s)
		}
	}
	l := graph.PipelineLayout(d.handle())
	d.PipelineLayouts[l] = sets
	return l, nil
}

func (d *Device) DestroyPipelineLayout(l graph.PipelineLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.PipelineLayouts, l)
}

func (d *Device) AllocateDescriptorSets(layout graph.DescriptorSetLayout, count int) ([]graph.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.SetLayouts[layout]; !ok {
		return nil, fmt.Errorf("unknown descriptor set layout %d", layout)
	}
	sets := make([]graph.DescriptorSet, count)
	for i := range sets {
		sets[i] = graph.DescriptorSet(d.handle())
		d.Sets[sets[i]] = layout
	}
	return sets, nil
}

func (d *Device) FreeDescriptorSets(sets []graph.DescriptorSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range sets {
		delete(d.Sets, s)
	}
}

func (d *Device) UpdateDescriptorSets(writes []graph.DescriptorWrite) {
	d.mu.Lock()
	defer d.mu.Unlock()
	batch := make([]graph.DescriptorWrite, len(writes))
	copy(batch, writes)
	d.WriteBatches = append(d.WriteBatches, batch)
}

func (d *Device) record(cmd graph.CommandBuffer, c Call) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Commands[cmd] = append(d.Commands[cmd], c)
}

func (d *Device) BeginSecondary(frame uint32, worker int, info *graph.RenderingInfo) (graph.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cmd := graph.CommandBuffer(d.handle())
	d.Secondaries = append(d.Secondaries, &Secondary{Cmd: cmd, Frame: frame, Worker: worker, Info: info})
	d.Commands[cmd] = nil
	return cmd, nil
}

func (d *Device) EndCommandBuffer(cmd graph.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.Secondaries {
		if s.Cmd == cmd {
			s.Ended = true
			return nil
		}
	}
	return errors.New("end of unknown secondary command buffer")
}

func (d *Device) PipelineBarrier(cmd graph.CommandBuffer, barriers []graph.ImageBarrier) error {
	if d.FailBarrier != nil {
		for _, b := range barriers {
			if d.FailBarrier(b) {
				return fmt.Errorf("barrier on image %d: %w", b.Image, ErrInjected)
			}
		}
	}
	d.record(cmd, Call{Op: "barrier", Barriers: append([]graph.ImageBarrier(nil), barriers...)})
	return nil
}

func (d *Device) BeginRendering(cmd graph.CommandBuffer, info *graph.RenderingInfo) error {
	if d.FailRendering != nil && d.FailRendering(info) {
		return fmt.Errorf("begin rendering %q: %w", info.Pass, ErrInjected)
	}
	d.record(cmd, Call{Op: "begin_rendering", Info: info})
	return nil
}

func (d *Device) ExecuteCommands(cmd graph.CommandBuffer, secondaries []graph.CommandBuffer) {
	d.record(cmd, Call{Op: "execute", Secondaries: append([]graph.CommandBuffer(nil), secondaries...)})
}

func (d *Device) EndRendering(cmd graph.CommandBuffer) {
	d.record(cmd, Call{Op: "end_rendering"})
}

func (d *Device) BindDescriptorSets(cmd graph.CommandBuffer, point graph.BindPoint, layout graph.PipelineLayout, first uint32, sets []graph.DescriptorSet) {
	d.record(cmd, Call{Op: "bind", Point: point, Layout: layout, First: first, Sets: append([]graph.DescriptorSet(nil), sets...)})
}

// Draw records a marker call, for render hooks under test.
func (d *Device) Draw(cmd graph.CommandBuffer, what string) {
	d.record(cmd, Call{Op: "draw " + what})
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.WaitIdleN++
	return nil
}

// Calls returns a copy of the calls recorded into cmd.
func (d *Device) Calls(cmd graph.CommandBuffer) []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.Commands[cmd]...)
}

// Barriers returns every barrier recorded into cmd, flattened in order.
func (d *Device) Barriers(cmd graph.CommandBuffer) []graph.ImageBarrier {
	var out []graph.ImageBarrier
	for _, c := range d.Calls(cmd) {
		out = append(out, c.Barriers...)
	}
	return out
}

// Submission is one Presenter.Submit call.
type Submission struct {
	Frame uint32
	Queue graph.Queue
	Cmd   graph.CommandBuffer
}

// Presenter is a fake graph.Presenter over a Device. Acquire hands out images
// round-robin. Queued statuses are consumed one per call; an empty queue reports OK.
type Presenter struct {
	Device    *Device
	Swapchain graph.Swapchain

	AcquireStatus []graph.SwapchainStatus
	PresentStatus []graph.SwapchainStatus
	// NextExtent is the extent of the swapchain returned by the next Recreate. Zero
	// keeps the current extent.
	NextExtent graph.Extent

	// Log lists presenter calls, e.g. "wait 0", "acquire 0", "submit 0 graphics".
	Log         []string
	Submissions []Submission
	Presented   []uint32
	Recreated   int

	nextImage uint32
}

func NewPresenter(d *Device, images int, format graph.Format, extent graph.Extent) *Presenter {
	return &Presenter{Device: d, Swapchain: d.NewSwapchain(images, format, extent)}
}

func (p *Presenter) logf(format string, args ...any) {
	p.Log = append(p.Log, fmt.Sprintf(format, args...))
}

func pop(q *[]graph.SwapchainStatus) graph.SwapchainStatus {
	if len(*q) == 0 {
		return graph.SwapchainOK
	}
	s := (*q)[0]
	*q = (*q)[1:]
	return s
}

func (p *Presenter) WaitFrame(ctx context.Context, frame uint32) error {
	p.logf("wait %d", frame)
	return ctx.Err()
}

func (p *Presenter) AcquireImage(_ context.Context, frame uint32) (uint32, graph.SwapchainStatus, error) {
	p.logf("acquire %d", frame)
	status := pop(&p.AcquireStatus)
	if status.Invalid() {
		return 0, status, nil
	}
	img := p.nextImage
	p.nextImage = (p.nextImage + 1) % uint32(len(p.Swapchain.Images))
	return img, status, nil
}

func (p *Presenter) BeginPrimary(frame uint32, queue graph.Queue) (graph.CommandBuffer, error) {
	p.logf("begin %d %s", frame, queueName(queue))
	return graph.CommandBuffer(p.Device.Handle()), nil
}

func (p *Presenter) Submit(frame uint32, queue graph.Queue, cmd graph.CommandBuffer) error {
	p.logf("submit %d %s", frame, queueName(queue))
	p.Submissions = append(p.Submissions, Submission{Frame: frame, Queue: queue, Cmd: cmd})
	return nil
}

func (p *Presenter) Present(frame, image uint32) (graph.SwapchainStatus, error) {
	p.logf("present %d %d", frame, image)
	p.Presented = append(p.Presented, image)
	return pop(&p.PresentStatus), nil
}

func (p *Presenter) Recreate(context.Context) (graph.Swapchain, error) {
	p.logf("recreate")
	extent := p.Swapchain.Extent
	if p.NextExtent != (graph.Extent{}) {
		extent = p.NextExtent
	}
	p.Swapchain = p.Device.NewSwapchain(len(p.Swapchain.Images), p.Swapchain.Format, extent)
	p.Recreated++
	p.nextImage = 0
	return p.Swapchain, nil
}

// LastSubmission returns the most recent submission to queue.
func (p *Presenter) LastSubmission(queue graph.Queue) (Submission, bool) {
	for i := len(p.Submissions) - 1; i >= 0; i-- {
		if p.Submissions[i].Queue == queue {
			return p.Submissions[i], true
		}
	}
	return Submission{}, false
}

func queueName(q graph.Queue) string {
	if q == graph.QueueCompute {
		return "compute"
	}
	return "graphics"
}
