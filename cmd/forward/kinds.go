package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/loov/hrtime"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselgraph"
	"github.com/andewx/dieselgraph/graph"
	"github.com/andewx/dieselgraph/recipe"
)

// frameUniform is the layout of the graph-global "frame" uniform block (std140).
type frameUniform struct {
	Proj   mgl32.Mat4
	View   mgl32.Mat4
	Time   float32
	Aspect float32
	_      [2]float32
}

// kinds creates the hooks of the pass kinds the demo understands and owns the Vulkan
// objects those hooks create.
type kinds struct {
	backend *dieselgraph.Backend
	logger  *slog.Logger
	// dir resolves relative shader paths, normally the recipe's directory.
	dir   string
	start time.Duration

	mu        sync.Mutex
	pipelines []vk.Pipeline
	programs  []*dieselgraph.ShaderProgram
}

func newKinds(backend *dieselgraph.Backend, dir string, logger *slog.Logger) *kinds {
	return &kinds{backend: backend, dir: dir, logger: logger, start: hrtime.Now()}
}

func (k *kinds) registry() *recipe.Registry {
	r := recipe.NewRegistry(k.logger)
	r.Register("frame", k.frame)
	r.Register("clear", k.clear)
	r.Register("camera", k.clear)
	r.Register("fullscreen", k.fullscreen)
	return r
}

// seconds is the time since the demo started.
func (k *kinds) seconds() float32 {
	return float32((hrtime.Now() - k.start).Seconds())
}

func (k *kinds) destroy() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, p := range k.pipelines {
		k.backend.DestroyPipeline(p)
	}
	for _, p := range k.programs {
		k.backend.DestroyProgram(p)
	}
	k.pipelines, k.programs = nil, nil
}

// frameHooks fills the "frame" uniform with an orbiting camera.
type frameHooks struct {
	k      *kinds
	buffer string
	fov    float32
	radius float32
	speed  float32
}

func (k *kinds) frame(_ context.Context, spec recipe.PassSpec) (any, error) {
	p := spec.Params
	return &frameHooks{
		k:      k,
		buffer: p.Str("buffer", "frame"),
		fov:    p.Float("fov", 60),
		radius: p.Float("radius", 3),
		speed:  p.Float("speed", 0.5),
	}, nil
}

func (h *frameHooks) OnUpdate(ctx context.Context, f graph.FrameInfo) error {
	extent := f.Graph.Swapchain().Extent
	aspect := float32(1)
	if extent.Height > 0 {
		aspect = float32(extent.Width) / float32(extent.Height)
	}
	t := h.k.seconds()
	angle := float64(t * h.speed)
	eye := mgl32.Vec3{
		h.radius * float32(math.Cos(angle)),
		1,
		h.radius * float32(math.Sin(angle)),
	}
	u := frameUniform{
		Proj:   dieselgraph.VulkanProjectionMat(mgl32.Perspective(mgl32.DegToRad(h.fov), aspect, 0.1, 100)),
		View:   mgl32.LookAtV(eye, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}),
		Time:   t,
		Aspect: aspect,
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &u); err != nil {
		return err
	}
	return f.Graph.WriteBuffer("", h.buffer, f.Frame, buf.Bytes())
}

// clearHooks clears the first color attachment to a color that pulses over time.
type clearHooks struct {
	k      *kinds
	color  []float32
	pulse  float32
	period float32
}

func (k *kinds) clear(_ context.Context, spec recipe.PassSpec) (any, error) {
	p := spec.Params
	color := p.List("color", []float32{0.1, 0.2, 0.3, 1})
	if len(color) != 4 {
		return nil, fmt.Errorf("color takes four components, got %d", len(color))
	}
	period := p.Float("period", 4)
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %v", period)
	}
	return &clearHooks{k: k, color: color, pulse: p.Float("pulse", 0.25), period: period}, nil
}

func (h *clearHooks) OnRender(ctx context.Context, rc graph.RenderContext) error {
	cmd, ok := h.k.backend.CommandBuffer(rc.Cmd)
	if !ok {
		return fmt.Errorf("command buffer %d: %w", rc.Cmd, dieselgraph.ErrUnknownHandle)
	}
	s := 1 + h.pulse*float32(math.Sin(2*math.Pi*float64(h.k.seconds()/h.period)))
	rgba := []float32{h.color[0] * s, h.color[1] * s, h.color[2] * s, h.color[3]}
	extent := rc.Pass.Extent
	vk.CmdClearAttachments(cmd, 1, []vk.ClearAttachment{{
		AspectMask:      vk.ImageAspectFlags(vk.ImageAspectColorBit),
		ColorAttachment: 0,
		ClearValue:      vk.NewClearValue(rgba),
	}}, 1, []vk.ClearRect{{
		Rect: vk.Rect2D{
			Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
		},
		LayerCount: 1,
	}})
	return nil
}

// fullscreenHooks draws one triangle covering the render area with a pipeline built
// from the pass's vertex and fragment shaders.
type fullscreenHooks struct {
	k        *kinds
	vertex   string
	fragment string
	blend    bool
	pipeline vk.Pipeline
}

func (k *kinds) fullscreen(_ context.Context, spec recipe.PassSpec) (any, error) {
	p := spec.Params
	h := &fullscreenHooks{
		k:        k,
		vertex:   p.Str("vertex", "shaders/fullscreen.vert.spv"),
		fragment: p.Str("fragment", ""),
		blend:    p.Bool("blend", false),
	}
	if h.fragment == "" {
		return nil, fmt.Errorf("pass %q: fragment shader path is required", spec.Pass)
	}
	return h, nil
}

func (k *kinds) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(k.dir, p)
}

func (h *fullscreenHooks) OnBuild(ctx context.Context, bc graph.BuildContext) error {
	if bc.Pass == nil {
		return fmt.Errorf("fullscreen kind must be used on a pass")
	}
	k := h.k
	program, err := k.backend.LoadProgram(k.path(h.vertex), k.path(h.fragment))
	if err != nil {
		return err
	}
	k.mu.Lock()
	k.programs = append(k.programs, program)
	k.mu.Unlock()

	b := dieselgraph.NewPipelineBuilder(program)
	if h.blend {
		b.WithAlphaBlend()
	}
	info := bc.Graph.RenderingInfo(bc.Pass, 0, 0)
	pipeline, err := b.Build(k.backend, bc.Pass.PipelineLayout, info)
	if err != nil {
		return err
	}
	k.mu.Lock()
	k.pipelines = append(k.pipelines, pipeline)
	k.mu.Unlock()
	h.pipeline = pipeline
	k.logger.Debug("fullscreen pipeline built", "pass", bc.Pass.Name, "fragment", h.fragment)
	return nil
}

func (h *fullscreenHooks) OnRender(ctx context.Context, rc graph.RenderContext) error {
	cmd, ok := h.k.backend.CommandBuffer(rc.Cmd)
	if !ok {
		return fmt.Errorf("command buffer %d: %w", rc.Cmd, dieselgraph.ErrUnknownHandle)
	}
	vk.CmdBindPipeline(cmd, vk.PipelineBindPointGraphics, h.pipeline)
	dieselgraph.SetViewport(cmd, rc.Pass.Extent)
	vk.CmdDraw(cmd, 3, 1, 0, 0)
	return nil
}
