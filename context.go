package dieselgraph

import (
	"sync"

	vk "github.com/vulkan-go/vulkan"
)

// frameContext holds everything owned by one frame-in-flight slot. Command buffers of a
// slot are recycled once its fences have signaled.
type frameContext struct {
	device      vk.Device
	queueFamily uint32

	fences   *fenceRing
	graphics *commandRing
	compute  *commandRing

	// mu guards growth of workers; each ring is then used by one recording goroutine.
	mu      sync.Mutex
	workers []*commandRing

	acquireSemaphore vk.Semaphore
	releaseSemaphore vk.Semaphore
	computeSemaphore vk.Semaphore
	computePending   bool
}

func newFrameContext(device vk.Device, queueFamily uint32) (f *frameContext, err error) {
	defer checkErr(&err)

	f = &frameContext{
		device:      device,
		queueFamily: queueFamily,
		fences:      newFenceRing(device),
	}
	f.graphics, err = newCommandRing(device, vk.CommandBufferLevelPrimary, queueFamily)
	orPanic(err)
	f.compute, err = newCommandRing(device, vk.CommandBufferLevelPrimary, queueFamily)
	orPanic(err, f.graphics.destroy)
	orPanic(f.createSemaphores(), func() { f.Destroy() })
	return f, nil
}

// Reset waits for the slot's previous submissions and recycles its command buffers.
func (f *frameContext) Reset() error {
	if err := f.fences.wait(); err != nil {
		return err
	}
	f.graphics.recycle()
	f.compute.recycle()
	f.mu.Lock()
	for _, r := range f.workers {
		r.recycle()
	}
	f.mu.Unlock()
	f.computePending = false
	return nil
}

// primary begins a one-shot primary buffer for the queue kind.
func (f *frameContext) primary(compute bool) (vk.CommandBuffer, error) {
	ring := f.graphics
	if compute {
		ring = f.compute
	}
	return ring.begin(&vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})
}

// secondary returns the secondary command ring of worker, creating it on first use.
func (f *frameContext) secondary(worker int) (*commandRing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.workers) <= worker {
		r, err := newCommandRing(f.device, vk.CommandBufferLevelSecondary, f.queueFamily)
		if err != nil {
			return nil, err
		}
		f.workers = append(f.workers, r)
	}
	return f.workers[worker], nil
}

func (f *frameContext) semaphores() []*vk.Semaphore {
	return []*vk.Semaphore{&f.acquireSemaphore, &f.releaseSemaphore, &f.computeSemaphore}
}

func (f *frameContext) createSemaphores() error {
	for _, sem := range f.semaphores() {
		ret := vk.CreateSemaphore(f.device, &vk.SemaphoreCreateInfo{
			SType: vk.StructureTypeSemaphoreCreateInfo,
		}, nil, sem)
		if isError(ret) {
			return newError(ret)
		}
	}
	return nil
}

func (f *frameContext) destroySemaphores() {
	for _, sem := range f.semaphores() {
		if *sem != vk.NullSemaphore {
			vk.DestroySemaphore(f.device, *sem, nil)
			*sem = vk.NullSemaphore
		}
	}
}

// ResetSemaphores replaces the slot's semaphores. An acquire that reported a stale
// swapchain may leave the acquire semaphore signaled with no waiter. The device must be idle.
func (f *frameContext) ResetSemaphores() error {
	f.destroySemaphores()
	f.computePending = false
	return f.createSemaphores()
}

// Destroy releases the slot. The returned error only reports fences that failed to
// signal; everything is destroyed regardless.
func (f *frameContext) Destroy() error {
	err := f.fences.destroy()
	if f.graphics != nil {
		f.graphics.destroy()
	}
	if f.compute != nil {
		f.compute.destroy()
	}
	for _, r := range f.workers {
		r.destroy()
	}
	f.workers = nil
	f.destroySemaphores()
	return err
}
