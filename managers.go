package dieselgraph

import vk "github.com/vulkan-go/vulkan"

// fenceRing hands out the fences of one frame slot. Fences are created on demand and
// reused once wait has seen them all signal. Not safe for concurrent use.
type fenceRing struct {
	device vk.Device
	fences []vk.Fence
	used   int
}

func newFenceRing(device vk.Device) *fenceRing {
	return &fenceRing{device: device}
}

// wait blocks until every fence handed out since the last wait has signaled, then
// makes them available again.
func (r *fenceRing) wait() error {
	if r.used == 0 {
		return nil
	}
	pending := r.fences[:r.used]
	if ret := vk.WaitForFences(r.device, uint32(len(pending)), pending, vk.True, vk.MaxUint64); isError(ret) {
		return newError(ret)
	}
	if ret := vk.ResetFences(r.device, uint32(len(pending)), pending); isError(ret) {
		return newError(ret)
	}
	r.used = 0
	return nil
}

// next returns an unsignaled fence for one queue submission.
func (r *fenceRing) next() (vk.Fence, error) {
	if r.used < len(r.fences) {
		r.used++
		return r.fences[r.used-1], nil
	}
	var fence vk.Fence
	ret := vk.CreateFence(r.device, &vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}, nil, &fence)
	if isError(ret) {
		return vk.NullFence, newError(ret)
	}
	r.fences = append(r.fences, fence)
	r.used++
	return fence, nil
}

// destroy releases the fences even when waiting on them failed; the error is returned
// for logging.
func (r *fenceRing) destroy() error {
	err := r.wait()
	for _, fence := range r.fences {
		vk.DestroyFence(r.device, fence, nil)
	}
	r.fences = nil
	r.used = 0
	return err
}

// commandRing owns one command pool and recycles its buffers every frame. Each ring is
// used by a single goroutine at a time.
type commandRing struct {
	device  vk.Device
	pool    vk.CommandPool
	level   vk.CommandBufferLevel
	buffers []vk.CommandBuffer
	used    int
}

func newCommandRing(device vk.Device, level vk.CommandBufferLevel, queueFamily uint32) (*commandRing, error) {
	var pool vk.CommandPool
	ret := vk.CreateCommandPool(device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: queueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}, nil, &pool)
	if isError(ret) {
		return nil, newError(ret)
	}
	return &commandRing{device: device, pool: pool, level: level}, nil
}

// recycle marks every buffer reusable. The slot's fences must have signaled.
func (r *commandRing) recycle() {
	r.used = 0
}

// begin returns a buffer in the recording state, reusing one from an earlier frame
// when available.
func (r *commandRing) begin(info *vk.CommandBufferBeginInfo) (vk.CommandBuffer, error) {
	var cb vk.CommandBuffer
	if r.used < len(r.buffers) {
		cb = r.buffers[r.used]
		ret := vk.ResetCommandBuffer(cb, vk.CommandBufferResetFlags(vk.CommandBufferResetReleaseResourcesBit))
		if isError(ret) {
			return nil, newError(ret)
		}
	} else {
		out := make([]vk.CommandBuffer, 1)
		ret := vk.AllocateCommandBuffers(r.device, &vk.CommandBufferAllocateInfo{
			SType:              vk.StructureTypeCommandBufferAllocateInfo,
			CommandPool:        r.pool,
			Level:              r.level,
			CommandBufferCount: 1,
		}, out)
		if isError(ret) {
			return nil, newError(ret)
		}
		cb = out[0]
		r.buffers = append(r.buffers, cb)
	}
	r.used++
	if ret := vk.BeginCommandBuffer(cb, info); isError(ret) {
		return nil, newError(ret)
	}
	return cb, nil
}

func (r *commandRing) destroy() {
	if len(r.buffers) > 0 {
		vk.FreeCommandBuffers(r.device, r.pool, uint32(len(r.buffers)), r.buffers)
	}
	vk.DestroyCommandPool(r.device, r.pool, nil)
	r.buffers = nil
}
