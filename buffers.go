package dieselgraph

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselgraph/graph"
)

// hostBuffer is a host-visible, coherent buffer that stays mapped for its lifetime,
// so writes never wait on the GPU.
type hostBuffer struct {
	name   string
	buffer vk.Buffer
	memory vk.DeviceMemory
	size   uint64
	mapped unsafe.Pointer
}

func (b *Backend) createBuffer(desc graph.BufferDesc) (buf *hostBuffer, err error) {
	defer checkErr(&err)
	if desc.Size == 0 {
		return nil, fmt.Errorf("buffer %q: zero size", desc.Name)
	}
	device := b.platform.Device()

	var buffer vk.Buffer
	ret := vk.CreateBuffer(device, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Usage:       convBufferUsage(desc.Usage),
		Size:        vk.DeviceSize(desc.Size),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &buffer)
	orPanic(newError(ret))

	// Ask device about its memory requirements.
	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, buffer, &memReqs)
	memReqs.Deref()

	memType, ok := findMemoryType(b.platform.MemoryProperties(), memReqs.MemoryTypeBits,
		vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if !ok {
		vk.DestroyBuffer(device, buffer, nil)
		return nil, fmt.Errorf("buffer %q: no host visible coherent memory type", desc.Name)
	}

	// Allocate device memory and bind to the buffer.
	var memory vk.DeviceMemory
	ret = vk.AllocateMemory(device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memType,
	}, nil, &memory)
	orPanic(newError(ret), func() {
		vk.DestroyBuffer(device, buffer, nil)
	})
	release := func() {
		vk.FreeMemory(device, memory, nil)
		vk.DestroyBuffer(device, buffer, nil)
	}
	orPanic(newError(vk.BindBufferMemory(device, buffer, memory, 0)), release)

	var mapped unsafe.Pointer
	ret = vk.MapMemory(device, memory, 0, vk.DeviceSize(desc.Size), 0, &mapped)
	orPanic(newError(ret), release)

	return &hostBuffer{
		name:   desc.Name,
		buffer: buffer,
		memory: memory,
		size:   desc.Size,
		mapped: mapped,
	}, nil
}

func (h *hostBuffer) write(offset uint64, data []byte) error {
	if offset > h.size || uint64(len(data)) > h.size-offset {
		return fmt.Errorf("buffer %q: write of %d bytes at offset %d exceeds size %d",
			h.name, len(data), offset, h.size)
	}
	if len(data) == 0 {
		return nil
	}
	if n := vk.Memcopy(unsafe.Add(h.mapped, offset), data); n != len(data) {
		return fmt.Errorf("buffer %q: copied %d of %d bytes", h.name, n, len(data))
	}
	return nil
}

func (b *Backend) destroyBuffer(h *hostBuffer) {
	device := b.platform.Device()
	vk.UnmapMemory(device, h.memory)
	vk.FreeMemory(device, h.memory, nil)
	vk.DestroyBuffer(device, h.buffer, nil)
}
