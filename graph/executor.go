package graph

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/andewx/dieselgraph/internal/ctxlog"
)

// NoImage is the image index reported for frames that never acquired one.
const NoImage = math.MaxUint32

// FrameResult describes one call to Executor.RenderFrame.
type FrameResult struct {
	Frame   uint32
	Image   uint32
	Skipped bool
	Status  SwapchainStatus
}

// Executor drives a built graph through the per-frame protocol against a Presenter.
type Executor struct {
	graph     *Graph
	presenter Presenter
	logger    *slog.Logger

	frameCount uint64
	invalid    bool
}

func NewExecutor(g *Graph, p Presenter) *Executor {
	return &Executor{graph: g, presenter: p, logger: g.logger}
}

// Invalidate marks the swapchain stale; the next frame recreates it before rendering.
// Window resize callbacks call this.
func (e *Executor) Invalidate() {
	e.invalid = true
}

// Invalid reports whether the swapchain must be recreated before the next frame.
func (e *Executor) Invalid() bool {
	return e.invalid
}

// FrameCount is the number of frames submitted so far.
func (e *Executor) FrameCount() uint64 {
	return e.frameCount
}

// Frame returns the frame slot the next RenderFrame uses.
func (e *Executor) Frame() uint32 {
	return uint32(e.frameCount % uint64(e.graph.FramesInFlight()))
}

// RenderFrame renders and presents one frame. A frame whose swapchain image could not
// be used is reported as skipped: nothing is recorded or submitted, the frame counter
// does not advance and the swapchain is recreated on the next call.
func (e *Executor) RenderFrame(ctx context.Context) (FrameResult, error) {
	if e.invalid {
		if err := e.recreate(ctx); err != nil {
			return FrameResult{Image: NoImage}, err
		}
	}

	frame := e.Frame()
	logger := e.logger.With("frame", frame, "frame_count", e.frameCount)
	ctx = ctxlog.WithLogger(ctx, logger)
	res := FrameResult{Frame: frame, Image: NoImage}

	if err := e.presenter.WaitFrame(ctx, frame); err != nil {
		return res, fmt.Errorf("wait for frame %d: %w", frame, err)
	}

	image, status, err := e.presenter.AcquireImage(ctx, frame)
	res.Status = status
	if err != nil {
		return res, fmt.Errorf("acquire image: %w", err)
	}
	if status.Invalid() {
		logger.Warn("swapchain image unusable, skipping frame", "status", status)
		e.invalid = true
		res.Skipped = true
		return res, nil
	}
	res.Image = image

	g := e.graph
	g.BeginFrame(ctx, frame)
	if err := g.Update(ctx, frame, image); err != nil {
		return res, err
	}

	if g.HasCompute() {
		cmd, err := e.presenter.BeginPrimary(frame, QueueCompute)
		if err != nil {
			return res, fmt.Errorf("begin compute commands: %w", err)
		}
		if err := g.RecordCompute(ctx, cmd, frame, image); err != nil {
			return res, err
		}
		if err := e.presenter.Submit(frame, QueueCompute, cmd); err != nil {
			return res, fmt.Errorf("submit compute: %w", err)
		}
	}

	cmd, err := e.presenter.BeginPrimary(frame, QueueGraphics)
	if err != nil {
		return res, fmt.Errorf("begin graphics commands: %w", err)
	}
	if err := g.Record(ctx, cmd, frame, image); err != nil {
		return res, err
	}
	if err := e.presenter.Submit(frame, QueueGraphics, cmd); err != nil {
		return res, fmt.Errorf("submit graphics: %w", err)
	}

	status, err = e.presenter.Present(frame, image)
	res.Status = status
	if err != nil {
		return res, fmt.Errorf("present: %w", err)
	}
	if status.Invalid() {
		logger.Debug("swapchain stale after present", "status", status)
		e.invalid = true
	}
	e.frameCount++
	return res, nil
}

func (e *Executor) recreate(ctx context.Context) error {
	if err := e.graph.dev.WaitIdle(); err != nil {
		return fmt.Errorf("wait idle before swapchain recreation: %w", err)
	}
	sc, err := e.presenter.Recreate(ctx)
	if err != nil {
		return fmt.Errorf("recreate swapchain: %w", err)
	}
	if err := e.graph.OnSwapchainInvalidated(sc); err != nil {
		return fmt.Errorf("rebuild attachments: %w", err)
	}
	e.invalid = false
	e.logger.Info("swapchain recreated", "extent", sc.Extent)
	return nil
}
