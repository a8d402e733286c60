package dieselgraph

import (
	"context"
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselgraph/graph"
)

func (b *Backend) frame(frame uint32) (*frameContext, error) {
	if int(frame) >= len(b.frames) {
		return nil, fmt.Errorf("frame slot %d of %d", frame, len(b.frames))
	}
	return b.frames[frame], nil
}

// commandID returns the graph handle of cb, issuing one on first sight. Recycled
// buffers keep their handle.
func (b *Backend) commandID(cb vk.CommandBuffer) graph.CommandBuffer {
	b.cmdMu.Lock()
	defer b.cmdMu.Unlock()
	if id, ok := b.cmdIDs[cb]; ok {
		return id
	}
	id := graph.CommandBuffer(b.cmds.add(cb))
	b.cmdIDs[cb] = id
	return id
}

// CommandBuffer maps a graph command buffer handle to the Vulkan object, for hooks
// that record draws.
func (b *Backend) CommandBuffer(cmd graph.CommandBuffer) (vk.CommandBuffer, bool) {
	return b.cmds.get(uint64(cmd))
}

func (b *Backend) WaitFrame(ctx context.Context, frame uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := b.frame(frame)
	if err != nil {
		return err
	}
	return f.Reset()
}

func swapchainStatus(ret vk.Result) (graph.SwapchainStatus, error) {
	switch ret {
	case vk.Success:
		return graph.SwapchainOK, nil
	case vk.Suboptimal:
		return graph.SwapchainSuboptimal, nil
	case vk.ErrorOutOfDate:
		return graph.SwapchainOutOfDate, nil
	}
	return graph.SwapchainOK, newError(ret)
}

func (b *Backend) AcquireImage(ctx context.Context, frame uint32) (uint32, graph.SwapchainStatus, error) {
	if err := ctx.Err(); err != nil {
		return 0, graph.SwapchainOK, err
	}
	f, err := b.frame(frame)
	if err != nil {
		return 0, graph.SwapchainOK, err
	}
	if b.swapchain == nil {
		return 0, graph.SwapchainOutOfDate, nil
	}
	var index uint32
	ret := vk.AcquireNextImage(b.platform.Device(), b.swapchain.handle, vk.MaxUint64,
		f.acquireSemaphore, vk.NullFence, &index)
	status, err := swapchainStatus(ret)
	return index, status, err
}

func (b *Backend) BeginPrimary(frame uint32, queue graph.Queue) (graph.CommandBuffer, error) {
	f, err := b.frame(frame)
	if err != nil {
		return 0, err
	}
	cb, err := f.primary(queue == graph.QueueCompute)
	if err != nil {
		return 0, err
	}
	return b.commandID(cb), nil
}

// Submit ends cmd and submits it on the graphics queue, which also serves compute.
func (b *Backend) Submit(frame uint32, queue graph.Queue, cmd graph.CommandBuffer) error {
	f, err := b.frame(frame)
	if err != nil {
		return err
	}
	cb, ok := b.cmds.get(uint64(cmd))
	if !ok {
		return fmt.Errorf("submit command buffer %d: %w", cmd, ErrUnknownHandle)
	}
	if ret := vk.EndCommandBuffer(cb); isError(ret) {
		return newError(ret)
	}
	fence, err := f.fences.next()
	if err != nil {
		return err
	}

	info := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb},
	}
	if queue == graph.QueueCompute {
		info.SignalSemaphoreCount = 1
		info.PSignalSemaphores = []vk.Semaphore{f.computeSemaphore}
	} else {
		waits := []vk.Semaphore{f.acquireSemaphore}
		stages := []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)}
		if f.computePending {
			waits = append(waits, f.computeSemaphore)
			stages = append(stages, vk.PipelineStageFlags(vk.PipelineStageVertexInputBit))
		}
		info.WaitSemaphoreCount = uint32(len(waits))
		info.PWaitSemaphores = waits
		info.PWaitDstStageMask = stages
		info.SignalSemaphoreCount = 1
		info.PSignalSemaphores = []vk.Semaphore{f.releaseSemaphore}
	}

	ret := vk.QueueSubmit(b.platform.GraphicsQueue(), 1, []vk.SubmitInfo{info}, fence)
	if isError(ret) {
		return newError(ret)
	}
	if queue == graph.QueueCompute {
		f.computePending = true
	} else {
		f.computePending = false
	}
	return nil
}

func (b *Backend) Present(frame uint32, image uint32) (graph.SwapchainStatus, error) {
	f, err := b.frame(frame)
	if err != nil {
		return graph.SwapchainOK, err
	}
	if b.swapchain == nil {
		return graph.SwapchainOutOfDate, nil
	}
	ret := vk.QueuePresent(b.platform.PresentQueue(), &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{f.releaseSemaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{b.swapchain.handle},
		PImageIndices:      []uint32{image},
	})
	return swapchainStatus(ret)
}
