package graph_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andewx/dieselgraph/graph"
	"github.com/andewx/dieselgraph/graph/graphtest"
)

func newTestExecutor(t *testing.T, recipe func(*graphtest.Device, *journal) graph.Recipe) (*graph.Executor, *graph.Graph, *graphtest.Device, *graphtest.Presenter, *journal) {
	t.Helper()
	g, dev, p := newTestGraph(t, graph.Config{})
	log := &journal{}
	require.NoError(t, g.Build(context.Background(), recipe(dev, log)))
	return graph.NewExecutor(g, p), g, dev, p, log
}

func forwardRecipe(dev *graphtest.Device, log *journal) graph.Recipe {
	return graph.Recipe{
		Backbuffer: "color",
		Buffers:    []graph.BufferInput{{Name: "camera", Kind: graph.DescriptorUniformBuffer, Size: 64}},
		Passes: []graph.PassRecipe{{
			Name:  "main",
			Color: []graph.AttachmentDecl{color("color", "")},
			Depth: depth("depth"),
			Hooks: &drawHooks{name: "main", dev: dev, log: log},
		}},
	}
}

func TestExecutorRendersFrames(t *testing.T) {
	ex, g, _, p, _ := newTestExecutor(t, forwardRecipe)

	var frames, images []uint32
	for i := 0; i < 4; i++ {
		res, err := ex.RenderFrame(context.Background())
		require.NoError(t, err)
		assert.False(t, res.Skipped)
		assert.Equal(t, graph.SwapchainOK, res.Status)
		frames = append(frames, res.Frame)
		images = append(images, res.Image)
	}
	assert.Equal(t, []uint32{0, 1, 2, 0}, frames)
	assert.Equal(t, []uint32{0, 1, 2, 0}, images)
	assert.Equal(t, uint64(4), ex.FrameCount())
	assert.Equal(t, uint32(3), g.FramesInFlight())

	assert.Equal(t, []string{"wait 0", "acquire 0", "begin 0 graphics", "submit 0 graphics", "present 0 0"}, p.Log[:5])
	require.Len(t, p.Submissions, 4)
	for _, s := range p.Submissions {
		assert.Equal(t, graph.QueueGraphics, s.Queue)
	}
}

func TestExecutorSkipsSuboptimalAcquire(t *testing.T) {
	ex, g, dev, p, log := newTestExecutor(t, forwardRecipe)
	p.AcquireStatus = []graph.SwapchainStatus{graph.SwapchainSuboptimal}

	res, err := ex.RenderFrame(context.Background())
	require.NoError(t, err, "a suboptimal swapchain is not an error")
	assert.True(t, res.Skipped)
	assert.Equal(t, graph.SwapchainSuboptimal, res.Status)
	assert.Equal(t, uint32(graph.NoImage), res.Image)
	assert.True(t, ex.Invalid())
	assert.Zero(t, ex.FrameCount())

	assert.Equal(t, []string{"wait 0", "acquire 0"}, p.Log)
	assert.Empty(t, p.Submissions)
	assert.Empty(t, dev.Secondaries)
	assert.Empty(t, log.list(), "no hooks run for a skipped frame")

	res, err = ex.RenderFrame(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, uint32(0), res.Frame)
	assert.False(t, ex.Invalid())
	assert.Equal(t, uint64(1), ex.FrameCount())
	assert.Equal(t, 1, p.Recreated)
	assert.Equal(t, 1, dev.WaitIdleN)
	assert.Zero(t, dev.Foreign)
	assert.Equal(t, p.Swapchain.Images[0], g.Backbuffer().Resources[0].Image)
	require.Len(t, p.Submissions, 1)
}

func TestExecutorOutOfDatePresent(t *testing.T) {
	ex, _, _, p, _ := newTestExecutor(t, forwardRecipe)
	p.PresentStatus = []graph.SwapchainStatus{graph.SwapchainOutOfDate}

	res, err := ex.RenderFrame(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, graph.SwapchainOutOfDate, res.Status)
	assert.True(t, ex.Invalid())
	assert.Equal(t, uint64(1), ex.FrameCount())

	res, err = ex.RenderFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), res.Frame)
	assert.Equal(t, 1, p.Recreated)
	assert.False(t, ex.Invalid())
}

func TestExecutorResize(t *testing.T) {
	ex, g, dev, p, _ := newTestExecutor(t, forwardRecipe)
	_, err := ex.RenderFrame(context.Background())
	require.NoError(t, err)

	resized := graph.Extent{Width: 1280, Height: 720}
	p.NextExtent = resized
	ex.Invalidate()
	_, err = ex.RenderFrame(context.Background())
	require.NoError(t, err)

	main, _ := g.Pass("main")
	assert.Equal(t, resized, main.Extent)
	assert.Equal(t, resized, g.Swapchain().Extent)
	d := g.Registry().Container(main.Slots[1].Container)
	assert.Equal(t, resized, dev.Images[d.Resources[0].Image].Extent)
	assert.Equal(t, 1, dev.LiveImages())
}

func TestExecutorCompute(t *testing.T) {
	ex, g, dev, p, _ := newTestExecutor(t, func(dev *graphtest.Device, log *journal) graph.Recipe {
		r := forwardRecipe(dev, log)
		r.Passes = append(r.Passes, graph.PassRecipe{
			Name:    "simulate",
			Buffers: []graph.BufferInput{{Name: "particles", Kind: graph.DescriptorStorageBuffer, Stages: graph.ShaderCompute, Size: 4096}},
			Hooks:   computeHooks{dev: dev},
		})
		return r
	})
	require.True(t, g.HasCompute())

	_, err := ex.RenderFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"wait 0", "acquire 0",
		"begin 0 compute", "submit 0 compute",
		"begin 0 graphics", "submit 0 graphics",
		"present 0 0",
	}, p.Log)

	sub, ok := p.LastSubmission(graph.QueueCompute)
	require.True(t, ok)
	sim, _ := g.Pass("simulate")
	calls := dev.Calls(sub.Cmd)
	assert.Equal(t, []string{"bind", "bind", "draw dispatch simulate"}, ops(calls))
	assert.Equal(t, graph.BindCompute, calls[1].Point)
	assert.Equal(t, uint32(1), calls[1].First)
	assert.Equal(t, []graph.DescriptorSet{sim.Sets[0]}, calls[1].Sets)

	gfx, _ := p.LastSubmission(graph.QueueGraphics)
	for _, c := range dev.Calls(gfx.Cmd) {
		if c.Info != nil {
			assert.NotEqual(t, "simulate", c.Info.Pass, "compute-only pass opened a rendering scope")
		}
	}
}

func TestExecutorFrameSlotIsolation(t *testing.T) {
	ex, g, dev, _, _ := newTestExecutor(t, func(dev *graphtest.Device, log *journal) graph.Recipe {
		history := color("history", "")
		history.Format = graph.FormatR16G16B16A16Sfloat
		history.PerFrame = true
		return graph.Recipe{
			Backbuffer: "color",
			Passes: []graph.PassRecipe{
				{
					Name:    "taa",
					Color:   []graph.AttachmentDecl{history},
					Buffers: []graph.BufferInput{{Name: "jitter", Kind: graph.DescriptorUniformBuffer, Size: 16}},
					Hooks:   &drawHooks{name: "taa", dev: dev, log: log},
				},
				{Name: "main", Color: []graph.AttachmentDecl{color("color", "")}},
			},
		}
	})
	taa, _ := g.Pass("taa")
	history := g.Registry().Container(taa.Slots[0].Container)
	n := int(g.FramesInFlight())

	var resources []*graph.AttachmentResource
	var offsets []uint64
	for i := 0; i < 2*n+1; i++ {
		res, err := ex.RenderFrame(context.Background())
		require.NoError(t, err)
		resources = append(resources, history.Resource(res.Image, res.Frame))
		blk, err := g.BufferBlock("taa", "jitter", res.Frame)
		require.NoError(t, err)
		offsets = append(offsets, blk.Offset)
	}

	for f := 0; f+n < len(resources); f++ {
		assert.Same(t, resources[f], resources[f+n], "frame %d and %d must share a slot", f, f+n)
		assert.NotSame(t, resources[f], resources[f+1], "adjacent frames %d and %d alias", f, f+1)
		assert.Equal(t, offsets[f], offsets[f+n])
		assert.NotEqual(t, offsets[f], offsets[f+1])
	}

	bound := map[uint32]graph.DescriptorSet{}
	for _, s := range dev.Secondaries {
		for _, c := range dev.Calls(s.Cmd) {
			if c.Op == "bind" && c.First == 1 {
				if prev, ok := bound[s.Frame]; ok {
					assert.Equal(t, prev, c.Sets[0])
				}
				bound[s.Frame] = c.Sets[0]
				assert.Equal(t, taa.Sets[s.Frame], c.Sets[0])
			}
		}
	}
	assert.Len(t, bound, n)
}

func TestExecutorCanceled(t *testing.T) {
	ex, _, _, p, _ := newTestExecutor(t, forwardRecipe)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ex.RenderFrame(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, p.Submissions)
	assert.Zero(t, ex.FrameCount())
}
