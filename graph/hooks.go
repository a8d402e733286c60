package graph

import "context"

// FrameInfo identifies the frame a hook runs for.
type FrameInfo struct {
	Graph *Graph
	// Frame is the frame-in-flight slot, in [0, FramesInFlight).
	Frame uint32
	// Image is the acquired swapchain image index.
	Image uint32
}

// RenderContext is handed to recording hooks. Cmd is a secondary command buffer for
// OnRender and the compute primary buffer for OnCompute; descriptor sets of the pass are
// already bound.
type RenderContext struct {
	FrameInfo
	Pass *Pass
	Cmd  CommandBuffer
}

// BuildContext is handed to OnBuild. Pass is nil for graph-level hooks.
type BuildContext struct {
	Graph *Graph
	Pass  *Pass
}

type BeginFrameHook interface {
	OnBeginFrame(ctx context.Context, f FrameInfo)
}

// UpdateHook writes per-frame data (uniform blocks, descriptor rewrites) for slot f.Frame.
type UpdateHook interface {
	OnUpdate(ctx context.Context, f FrameInfo) error
}

// RenderHook records draw commands inside the pass's rendering scope.
type RenderHook interface {
	OnRender(ctx context.Context, rc RenderContext) error
}

// ComputeHook records dispatches into the frame's compute command buffer.
type ComputeHook interface {
	OnCompute(ctx context.Context, rc RenderContext) error
}

// BuildHook runs once after the graph is built, typically to create pipelines against
// the pass's pipeline layout. An error aborts Build.
type BuildHook interface {
	OnBuild(ctx context.Context, bc BuildContext) error
}
