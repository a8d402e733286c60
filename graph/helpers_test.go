package graph_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/andewx/dieselgraph/graph"
	"github.com/andewx/dieselgraph/graph/graphtest"
)

var testExtent = graph.Extent{Width: 800, Height: 600}

const testFormat = graph.FormatB8G8R8A8Unorm

func newTestGraph(t *testing.T, cfg graph.Config) (*graph.Graph, *graphtest.Device, *graphtest.Presenter) {
	t.Helper()
	dev := graphtest.NewDevice()
	p := graphtest.NewPresenter(dev, 3, testFormat, testExtent)
	g := graph.New(dev, cfg)
	require.NoError(t, g.Init(p.Swapchain))
	return g, dev, p
}

func color(name, input string) graph.AttachmentDecl {
	return graph.AttachmentDecl{
		Name:     name,
		Input:    input,
		SizeKind: graph.SizeSwapchainRelative,
		Size:     [2]float32{1, 1},
		Format:   testFormat,
	}
}

func depth(name string) *graph.AttachmentDecl {
	return &graph.AttachmentDecl{
		Name:     name,
		SizeKind: graph.SizeSwapchainRelative,
		Size:     [2]float32{1, 1},
		Format:   graph.FormatD32Sfloat,
	}
}

// journal collects hook invocations from concurrently running hooks.
type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, fmt.Sprintf(format, args...))
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

// drawHooks implements every per-frame hook and draws a marker in OnRender.
type drawHooks struct {
	name string
	dev  *graphtest.Device
	log  *journal
	err  error
}

func (h *drawHooks) OnBeginFrame(_ context.Context, f graph.FrameInfo) {
	h.log.add("begin %s %d", h.name, f.Frame)
}

func (h *drawHooks) OnUpdate(_ context.Context, f graph.FrameInfo) error {
	h.log.add("update %s %d", h.name, f.Frame)
	return nil
}

func (h *drawHooks) OnRender(_ context.Context, rc graph.RenderContext) error {
	if h.err != nil {
		return h.err
	}
	h.dev.Draw(rc.Cmd, h.name)
	h.log.add("render %s", h.name)
	return nil
}

// computeHooks only dispatches compute work.
type computeHooks struct {
	dev *graphtest.Device
}

func (h computeHooks) OnCompute(_ context.Context, rc graph.RenderContext) error {
	h.dev.Draw(rc.Cmd, "dispatch "+rc.Pass.Name)
	return nil
}

// buildHooks records OnBuild calls.
type buildHooks struct {
	log *journal
	err error
}

func (h buildHooks) OnBuild(_ context.Context, bc graph.BuildContext) error {
	if bc.Pass == nil {
		h.log.add("build graph")
	} else {
		h.log.add("build %s", bc.Pass.Name)
	}
	return h.err
}

func ops(calls []graphtest.Call) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Op
	}
	return out
}
