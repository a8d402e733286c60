package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andewx/dieselgraph/graph"
)

var colorWrite = graph.TrackedState{
	Access: graph.AccessColorAttachmentWrite,
	Layout: graph.LayoutColorAttachmentOptimal,
	Stage:  graph.StageColorAttachmentOutput,
}

func TestTransitionIdempotent(t *testing.T) {
	s := graph.NewBarrierScheduler()
	res := &graph.AttachmentResource{Image: 7, State: graph.UndefinedState}

	b, ok := s.Transition(res, colorWrite, graph.AspectColor)
	require.True(t, ok)
	assert.Equal(t, graph.Image(7), b.Image)
	assert.Equal(t, graph.LayoutUndefined, b.OldLayout)
	assert.Equal(t, graph.LayoutColorAttachmentOptimal, b.NewLayout)
	assert.Equal(t, colorWrite, res.State)

	_, ok = s.Transition(res, colorWrite, graph.AspectColor)
	assert.False(t, ok, "second transition to the same state must not emit a barrier")
}

func TestTransitionChain(t *testing.T) {
	s := graph.NewBarrierScheduler()
	res := &graph.AttachmentResource{Image: 1, State: graph.UndefinedState}
	read := graph.TrackedState{
		Access: graph.AccessShaderRead,
		Layout: graph.LayoutShaderReadOnlyOptimal,
		Stage:  graph.StageFragmentShader,
	}

	_, ok := s.Transition(res, colorWrite, graph.AspectColor)
	require.True(t, ok)
	b, ok := s.Transition(res, read, graph.AspectColor)
	require.True(t, ok)
	assert.Equal(t, graph.ImageBarrier{
		Image:     1,
		Aspect:    graph.AspectColor,
		SrcStage:  graph.StageColorAttachmentOutput,
		DstStage:  graph.StageFragmentShader,
		SrcAccess: graph.AccessColorAttachmentWrite,
		DstAccess: graph.AccessShaderRead,
		OldLayout: graph.LayoutColorAttachmentOptimal,
		NewLayout: graph.LayoutShaderReadOnlyOptimal,
	}, b)
}

func TestBeginFrameResetsTouched(t *testing.T) {
	s := graph.NewBarrierScheduler()
	touched := &graph.AttachmentResource{Image: 1, State: graph.UndefinedState}
	untouched := &graph.AttachmentResource{Image: 2, State: colorWrite}

	s.Transition(touched, colorWrite, graph.AspectColor)
	s.BeginFrame()
	assert.Equal(t, graph.UndefinedState, touched.State)
	assert.Equal(t, colorWrite, untouched.State)

	_, ok := s.Transition(touched, colorWrite, graph.AspectColor)
	assert.True(t, ok, "every frame starts from the undefined baseline")
}

func TestPresentIsUnconditional(t *testing.T) {
	s := graph.NewBarrierScheduler()
	res := &graph.AttachmentResource{Image: 3, State: graph.UndefinedState}

	for i := 0; i < 2; i++ {
		b := s.Present(res)
		assert.Equal(t, graph.LayoutPresentSrc, b.NewLayout)
		assert.Equal(t, graph.StageBottomOfPipe, b.DstStage)
		assert.Equal(t, graph.UndefinedState, res.State)
	}

	s.Transition(res, colorWrite, graph.AspectColor)
	b := s.Present(res)
	assert.Equal(t, graph.LayoutColorAttachmentOptimal, b.OldLayout)
	assert.Equal(t, graph.AccessColorAttachmentWrite, b.SrcAccess)
}

func TestAssume(t *testing.T) {
	s := graph.NewBarrierScheduler()
	res := &graph.AttachmentResource{Image: 4, State: graph.UndefinedState}
	s.Assume(res, colorWrite)
	_, ok := s.Transition(res, colorWrite, graph.AspectColor)
	assert.False(t, ok)

	s.BeginFrame()
	assert.Equal(t, graph.UndefinedState, res.State)
}
