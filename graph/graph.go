// Package graph turns declarative pass recipes into ordered, synchronized GPU command
// streams executed once per frame across a fixed number of frames in flight.
//
// A Graph is built once from a Recipe. At frame time the Executor drives it:
// wait for the frame slot, acquire a swapchain image, run update hooks, record every
// pass with the barriers it needs, transition the backbuffer for presentation, submit
// and present. The graph talks to the GPU only through the Device and Presenter
// interfaces.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/andewx/dieselgraph/internal/ctxlog"
)

// DefaultFramesInFlight is used when Config.FramesInFlight is zero.
const DefaultFramesInFlight = 3

// Config tunes a Graph.
type Config struct {
	// FramesInFlight is the number of frames whose GPU work may overlap.
	FramesInFlight uint32
	// RecordWorkers is the number of goroutines recording pass command buffers.
	// Values below one mean one.
	RecordWorkers int
	// Logger overrides the package logger.
	Logger *slog.Logger
}

// Graph is a built render graph. Graph methods are not safe for concurrent use;
// hooks run on goroutines owned by the graph.
type Graph struct {
	dev    Device
	cfg    Config
	logger *slog.Logger

	swapchain   Swapchain
	initialized bool
	built       bool

	registry   *Registry
	barriers   *BarrierScheduler
	sets       DescriptorSets
	passes     []*Pass
	byName     map[string]*Pass
	backbuffer int
	hooks      any
	hasCompute bool
}

// New creates an empty graph on dev.
func New(dev Device, cfg Config) *Graph {
	if cfg.FramesInFlight == 0 {
		cfg.FramesInFlight = DefaultFramesInFlight
	}
	if cfg.RecordWorkers < 1 {
		cfg.RecordWorkers = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = Logger()
	}
	return &Graph{
		dev:      dev,
		cfg:      cfg,
		logger:   logger,
		barriers: NewBarrierScheduler(),
	}
}

// Init records the swapchain the graph renders to.
func (g *Graph) Init(sc Swapchain) error {
	if len(sc.Images) == 0 || len(sc.Images) != len(sc.Views) {
		return fmt.Errorf("swapchain must have matching non-empty image and view lists (%d images, %d views)",
			len(sc.Images), len(sc.Views))
	}
	g.swapchain = sc
	g.initialized = true
	return nil
}

// Build resolves attachments, orders passes, creates descriptor state and runs build
// hooks. On error nothing created by the call is left alive and the graph is unusable
// until a successful Build.
func (g *Graph) Build(ctx context.Context, r Recipe) (err error) {
	if !g.initialized {
		return errors.New("render graph built before Init")
	}
	if g.built {
		g.logger.Warn("render graph already built, rebuilding")
		g.teardown()
	}
	defer func() {
		if err != nil {
			g.teardown()
		}
	}()
	if r.Backbuffer == "" {
		return errors.New("recipe has no backbuffer")
	}

	order, err := orderPasses(r.Passes)
	if err != nil {
		return fmt.Errorf("error ordering passes: %w", err)
	}
	g.logger.Debug("passes ordered", "order", order)

	outputs := append(slices.Clone(r.SwapchainOutputs), r.Backbuffer)
	g.registry = NewRegistry(g.dev, g.swapchain, g.cfg.FramesInFlight, outputs, g.logger)
	g.byName = make(map[string]*Pass, len(order))
	g.hooks = r.Hooks

	for pos, i := range order {
		pr := &r.Passes[i]
		p := &Pass{
			Index:    pos,
			Declared: i,
			Name:     pr.Name,
			Buffers:  pr.Buffers,
			Textures: pr.Textures,
			hooks:    pr.Hooks,
		}
		g.passes = append(g.passes, p)
		g.byName[p.Name] = p
		for _, d := range pr.attachments() {
			idx, load, err := g.registry.CreateOrAlias(d)
			if err != nil {
				return fmt.Errorf("pass %q: %w", p.Name, err)
			}
			p.Slots = append(p.Slots, newSlot(d, g.registry.Container(idx), load))
		}
		if err := g.resolveRenderArea(p); err != nil {
			return err
		}
		if _, ok := p.hooks.(ComputeHook); ok {
			g.hasCompute = true
		}
	}

	bb, ok := g.registry.Lookup(r.Backbuffer)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoBackbuffer, r.Backbuffer)
	}
	if c := g.registry.Container(bb); c.Kind != KindPerSwapchainImage {
		return fmt.Errorf("backbuffer %q resolves to %s container %q, not the swapchain", r.Backbuffer, c.Kind, c.Name)
	}
	g.backbuffer = bb

	builder := NewDescriptorSetBuilder(g.dev, g.cfg.FramesInFlight, g.logger)
	if err := builder.Build(r.Buffers, g.passes, &g.sets); err != nil {
		return fmt.Errorf("error building descriptor sets: %w", err)
	}

	g.built = true
	if h, ok := g.hooks.(BuildHook); ok {
		if err := h.OnBuild(ctx, BuildContext{Graph: g}); err != nil {
			g.built = false
			return fmt.Errorf("graph build hook: %w", err)
		}
	}
	for _, p := range g.passes {
		if h, ok := p.hooks.(BuildHook); ok {
			if err := h.OnBuild(ctx, BuildContext{Graph: g, Pass: p}); err != nil {
				g.built = false
				return fmt.Errorf("pass %q build hook: %w", p.Name, err)
			}
		}
	}

	g.logger.Info("render graph built", "passes", len(g.passes),
		"containers", len(g.registry.Containers()), "frames_in_flight", g.cfg.FramesInFlight)
	return nil
}

// resolveRenderArea checks that all attachments of p share one extent and sample count.
func (g *Graph) resolveRenderArea(p *Pass) error {
	for i, s := range p.Slots {
		c := g.registry.Container(s.Container)
		if i == 0 {
			p.Extent, p.Samples = c.Extent, c.Samples
			continue
		}
		if c.Extent != p.Extent {
			return fmt.Errorf("%w: pass %q attachment %q is %s, expected %s",
				ErrExtentMismatch, p.Name, s.Name, c.Extent, p.Extent)
		}
		if c.Samples != p.Samples {
			return fmt.Errorf("pass %q attachment %q has %d samples, expected %d",
				p.Name, s.Name, c.Samples, p.Samples)
		}
	}
	return nil
}

// BeginFrame runs begin-frame hooks, graph first, then passes in execution order.
func (g *Graph) BeginFrame(ctx context.Context, frame uint32) {
	info := FrameInfo{Graph: g, Frame: frame, Image: NoImage}
	if h, ok := g.hooks.(BeginFrameHook); ok {
		h.OnBeginFrame(ctx, info)
	}
	for _, p := range g.passes {
		if h, ok := p.hooks.(BeginFrameHook); ok {
			h.OnBeginFrame(ctx, info)
		}
	}
}

// Update runs update hooks, graph first, then passes in execution order.
func (g *Graph) Update(ctx context.Context, frame, image uint32) error {
	info := FrameInfo{Graph: g, Frame: frame, Image: image}
	if h, ok := g.hooks.(UpdateHook); ok {
		if err := h.OnUpdate(ctx, info); err != nil {
			return fmt.Errorf("graph update: %w", err)
		}
	}
	for _, p := range g.passes {
		if h, ok := p.hooks.(UpdateHook); ok {
			if err := h.OnUpdate(ctx, info); err != nil {
				return fmt.Errorf("pass %q update: %w", p.Name, err)
			}
		}
	}
	return nil
}

// EndFrame runs update hooks and records the frame into the primary command buffer cmd.
func (g *Graph) EndFrame(ctx context.Context, cmd CommandBuffer, frame, image uint32) error {
	if err := g.Update(ctx, frame, image); err != nil {
		return err
	}
	return g.Record(ctx, cmd, frame, image)
}

// HasCompute reports whether any pass records compute work.
func (g *Graph) HasCompute() bool {
	return g.hasCompute
}

// RecordCompute records the compute hooks of all passes into cmd.
func (g *Graph) RecordCompute(ctx context.Context, cmd CommandBuffer, frame, image uint32) error {
	if !g.built {
		return ErrNotBuilt
	}
	for _, p := range g.passes {
		h, ok := p.hooks.(ComputeHook)
		if !ok {
			continue
		}
		g.bindSets(cmd, BindCompute, p, frame)
		rc := RenderContext{FrameInfo: FrameInfo{Graph: g, Frame: frame, Image: image}, Pass: p, Cmd: cmd}
		if err := h.OnCompute(ctx, rc); err != nil {
			return fmt.Errorf("pass %q compute: %w", p.Name, err)
		}
	}
	return nil
}

// Record records every pass into cmd: barriers, rendering scope, the pass's secondary
// command buffer, and finally the backbuffer transition to the present layout.
func (g *Graph) Record(ctx context.Context, cmd CommandBuffer, frame, image uint32) error {
	if !g.built {
		return ErrNotBuilt
	}
	g.barriers.BeginFrame()

	infos := make([]*RenderingInfo, len(g.passes))
	for i, p := range g.passes {
		infos[i] = g.renderingInfo(p, frame, image)
	}
	secondaries, err := g.recordSecondaries(ctx, frame, image, infos)
	if err != nil {
		return err
	}

	logger := ctxlog.FromContext(ctx)
	for i, p := range g.passes {
		if barriers := g.passBarriers(p, frame, image); len(barriers) > 0 {
			logger.Debug("pass barriers", "pass", p.Name, "count", len(barriers))
			if err := g.dev.PipelineBarrier(cmd, barriers); err != nil {
				return fmt.Errorf("pass %q: %w", p.Name, err)
			}
		}
		if len(p.Slots) == 0 {
			continue
		}
		if err := g.dev.BeginRendering(cmd, infos[i]); err != nil {
			return fmt.Errorf("pass %q: %w", p.Name, err)
		}
		if secondaries[i] != 0 {
			g.dev.ExecuteCommands(cmd, []CommandBuffer{secondaries[i]})
		}
		g.dev.EndRendering(cmd)
		for _, s := range p.Slots {
			if c := g.registry.Container(s.Container); c.Transient != nil {
				g.barriers.Assume(c.Resource(image, frame), s.Required)
			}
		}
	}

	bb := g.registry.Container(g.backbuffer).Resource(image, frame)
	if err := g.dev.PipelineBarrier(cmd, []ImageBarrier{g.barriers.Present(bb)}); err != nil {
		return fmt.Errorf("present barrier: %w", err)
	}
	return nil
}

func (g *Graph) recordSecondaries(ctx context.Context, frame, image uint32, infos []*RenderingInfo) ([]CommandBuffer, error) {
	out := make([]CommandBuffer, len(g.passes))
	workers := min(g.cfg.RecordWorkers, len(g.passes))
	if workers == 0 {
		return out, nil
	}
	grp, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		grp.Go(func() error {
			for i := w; i < len(g.passes); i += workers {
				if err := gctx.Err(); err != nil {
					return err
				}
				cmd, err := g.recordPass(gctx, g.passes[i], infos[i], frame, image, w)
				if err != nil {
					return err
				}
				out[i] = cmd
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Graph) recordPass(ctx context.Context, p *Pass, info *RenderingInfo, frame, image uint32, worker int) (CommandBuffer, error) {
	h, ok := p.hooks.(RenderHook)
	if !ok || len(p.Slots) == 0 {
		return 0, nil
	}
	cmd, err := g.dev.BeginSecondary(frame, worker, info)
	if err != nil {
		return 0, fmt.Errorf("pass %q: begin secondary: %w", p.Name, err)
	}
	g.bindSets(cmd, BindGraphics, p, frame)
	rc := RenderContext{FrameInfo: FrameInfo{Graph: g, Frame: frame, Image: image}, Pass: p, Cmd: cmd}
	if err := h.OnRender(ctx, rc); err != nil {
		return 0, fmt.Errorf("pass %q render: %w", p.Name, err)
	}
	if err := g.dev.EndCommandBuffer(cmd); err != nil {
		return 0, fmt.Errorf("pass %q: end secondary: %w", p.Name, err)
	}
	return cmd, nil
}

// bindSets binds set 0 and, when the pass has inputs, set 1.
func (g *Graph) bindSets(cmd CommandBuffer, point BindPoint, p *Pass, frame uint32) {
	g.dev.BindDescriptorSets(cmd, point, p.PipelineLayout, 0, []DescriptorSet{g.sets.Graph[frame]})
	if p.Sets != nil {
		g.dev.BindDescriptorSets(cmd, point, p.PipelineLayout, 1, []DescriptorSet{p.Sets[frame]})
	}
}

func (g *Graph) passBarriers(p *Pass, frame, image uint32) []ImageBarrier {
	var out []ImageBarrier
	for _, s := range p.Slots {
		c := g.registry.Container(s.Container)
		res := c.Resource(image, frame)
		if c.Transient != nil {
			res = c.Transient
		}
		if b, ok := g.barriers.Transition(res, s.Required, s.Aspect); ok {
			out = append(out, b)
		}
	}
	return out
}

// RenderingInfo describes the rendering scope of p for a frame slot and swapchain
// image. Build hooks use it to create pipelines compatible with the pass.
func (g *Graph) RenderingInfo(p *Pass, frame, image uint32) *RenderingInfo {
	return g.renderingInfo(p, frame, image)
}

func (g *Graph) renderingInfo(p *Pass, frame, image uint32) *RenderingInfo {
	info := &RenderingInfo{Pass: p.Name, Extent: p.Extent}
	for _, s := range p.Slots {
		c := g.registry.Container(s.Container)
		res := c.Resource(image, frame)
		att := RenderingAttachment{
			View:    res.View,
			Layout:  s.Required.Layout,
			Format:  c.Format,
			Samples: p.Samples,
			Load:    s.Load,
			Store:   s.Store,
			Clear:   s.Clear,
		}
		if c.Transient != nil {
			att.View = c.Transient.View
			att.Resolve = ResolveAverage
			att.ResolveView = res.View
			att.ResolveLayout = s.Required.Layout
		}
		if s.Depth {
			info.Depth = &att
		} else {
			info.Color = append(info.Color, att)
		}
	}
	return info
}

// OnSwapchainInvalidated rebinds swapchain-backed attachments to sc and reallocates
// swapchain-relative ones. The caller must have waited for the device to go idle.
func (g *Graph) OnSwapchainInvalidated(sc Swapchain) error {
	if err := g.Init(sc); err != nil {
		return err
	}
	if !g.built {
		return nil
	}
	if err := g.registry.Recreate(sc); err != nil {
		return err
	}
	for _, p := range g.passes {
		if err := g.resolveRenderArea(p); err != nil {
			return err
		}
	}
	g.logger.Info("render graph resized", "extent", sc.Extent, "images", len(sc.Images))
	return nil
}

// Destroy releases every resource the graph created. Borrowed swapchain images are
// left to their owner.
func (g *Graph) Destroy() {
	g.teardown()
}

func (g *Graph) teardown() {
	for _, p := range g.passes {
		for _, blk := range p.blocks {
			g.dev.DestroyBuffer(blk.Buffer)
		}
		if p.Sets != nil {
			g.dev.FreeDescriptorSets(p.Sets)
		}
		if p.PipelineLayout != 0 {
			g.dev.DestroyPipelineLayout(p.PipelineLayout)
		}
		if p.SetLayout != 0 {
			g.dev.DestroyDescriptorSetLayout(p.SetLayout)
		}
	}
	for _, blk := range g.sets.blocks {
		g.dev.DestroyBuffer(blk.Buffer)
	}
	if g.sets.Graph != nil {
		g.dev.FreeDescriptorSets(g.sets.Graph)
	}
	if g.sets.GraphPipelineLayout != 0 {
		g.dev.DestroyPipelineLayout(g.sets.GraphPipelineLayout)
	}
	if g.sets.GraphLayout != 0 {
		g.dev.DestroyDescriptorSetLayout(g.sets.GraphLayout)
	}
	if g.registry != nil {
		g.registry.Destroy()
	}
	g.sets = DescriptorSets{}
	g.passes = nil
	g.byName = nil
	g.registry = nil
	g.hooks = nil
	g.hasCompute = false
	g.built = false
	g.barriers = NewBarrierScheduler()
}

// FramesInFlight returns the number of frame slots.
func (g *Graph) FramesInFlight() uint32 {
	return g.cfg.FramesInFlight
}

// Swapchain returns the swapchain the graph currently renders to.
func (g *Graph) Swapchain() Swapchain {
	return g.swapchain
}

// Passes returns the built passes in execution order.
func (g *Graph) Passes() []*Pass {
	return g.passes
}

// Pass returns the built pass called name.
func (g *Graph) Pass(name string) (*Pass, bool) {
	p, ok := g.byName[name]
	return p, ok
}

// Registry returns the attachment registry of a built graph.
func (g *Graph) Registry() *Registry {
	return g.registry
}

// Backbuffer returns the container presented every frame.
func (g *Graph) Backbuffer() *AttachmentContainer {
	return g.registry.Container(g.backbuffer)
}

// DescriptorSets returns the graph-global descriptor state.
func (g *Graph) DescriptorSets() *DescriptorSets {
	return &g.sets
}

func (g *Graph) checkFrame(frame uint32) error {
	if frame >= g.cfg.FramesInFlight {
		return fmt.Errorf("%w: frame %d of %d", ErrFrameOutOfRange, frame, g.cfg.FramesInFlight)
	}
	return nil
}

func (g *Graph) block(pass, input string, frame uint32) (*bufferBlock, error) {
	if !g.built {
		return nil, ErrNotBuilt
	}
	if err := g.checkFrame(frame); err != nil {
		return nil, err
	}
	blocks := g.sets.blocks
	if pass != "" {
		p, ok := g.byName[pass]
		if !ok {
			return nil, fmt.Errorf("no pass named %q", pass)
		}
		blocks = p.blocks
	}
	blk, ok := blocks[input]
	if !ok {
		return nil, fmt.Errorf("%w: %q in scope %q", ErrUnknownInputName, input, pass)
	}
	return blk, nil
}

// BufferBlock returns the range of buffer input owned by frame. An empty pass selects
// graph-global inputs.
func (g *Graph) BufferBlock(pass, input string, frame uint32) (BufferBlock, error) {
	blk, err := g.block(pass, input, frame)
	if err != nil {
		return BufferBlock{}, err
	}
	return BufferBlock{Buffer: blk.Buffer, Offset: blk.offset(frame, 0), Size: blk.BlockSize}, nil
}

// WriteBuffer copies data into frame's block of a buffer input. It never waits for the
// GPU; callers write only the block of the frame being updated.
func (g *Graph) WriteBuffer(pass, input string, frame uint32, data []byte) error {
	blk, err := g.block(pass, input, frame)
	if err != nil {
		return err
	}
	if uint64(len(data)) > blk.BlockSize {
		return fmt.Errorf("write of %d bytes overflows %q block of %d bytes", len(data), input, blk.BlockSize)
	}
	return g.dev.WriteBuffer(blk.Buffer, blk.offset(frame, 0), data)
}

// WriteTexture rebinds one element of a texture input for frame. The write is applied
// immediately and without waiting, so it must target the frame being updated.
func (g *Graph) WriteTexture(pass, input string, frame, element uint32, tex TextureBinding) error {
	if !g.built {
		return ErrNotBuilt
	}
	if err := g.checkFrame(frame); err != nil {
		return err
	}
	p, ok := g.byName[pass]
	if !ok {
		return fmt.Errorf("no pass named %q", pass)
	}
	in, ok := p.textures[input]
	if !ok {
		return fmt.Errorf("%w: %q in pass %q", ErrUnknownInputName, input, pass)
	}
	if element >= arrayCount(in.Count) {
		return fmt.Errorf("texture %q element %d out of range [0, %d)", input, element, arrayCount(in.Count))
	}
	g.dev.UpdateDescriptorSets([]DescriptorWrite{textureWrite(p.Sets[frame], in, element, tex)})
	return nil
}
