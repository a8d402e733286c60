package dieselgraph

import (
	"sync"

	vk "github.com/vulkan-go/vulkan"
)

// descriptorPoolSets is the number of sets each pool in a descriptorPools can hold.
const descriptorPoolSets = 64

// descriptorPools hands out descriptor sets from a growing list of pools. A new pool is
// created when the newest one runs out.
type descriptorPools struct {
	device vk.Device

	mu    sync.Mutex
	pools []vk.DescriptorPool
}

type descriptorSet struct {
	set  vk.DescriptorSet
	pool vk.DescriptorPool
}

func newDescriptorPools(device vk.Device) *descriptorPools {
	return &descriptorPools{device: device}
}

// poolSizes gives every pool room for descriptorPoolSets sets of a few bindings each.
func poolSizes() []vk.DescriptorPoolSize {
	kinds := []vk.DescriptorType{
		vk.DescriptorTypeUniformBuffer,
		vk.DescriptorTypeStorageBuffer,
		vk.DescriptorTypeCombinedImageSampler,
		vk.DescriptorTypeSampledImage,
		vk.DescriptorTypeStorageImage,
	}
	sizes := make([]vk.DescriptorPoolSize, len(kinds))
	for i, k := range kinds {
		sizes[i] = vk.DescriptorPoolSize{Type: k, DescriptorCount: descriptorPoolSets * 4}
	}
	return sizes
}

func (d *descriptorPools) grow() (vk.DescriptorPool, error) {
	sizes := poolSizes()
	var pool vk.DescriptorPool
	ret := vk.CreateDescriptorPool(d.device, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       descriptorPoolSets,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}, nil, &pool)
	if isError(ret) {
		return pool, newError(ret)
	}
	d.pools = append(d.pools, pool)
	return pool, nil
}

// Allocate allocates one set of layout.
func (d *descriptorPools) Allocate(layout vk.DescriptorSetLayout) (descriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pools) == 0 {
		if _, err := d.grow(); err != nil {
			return descriptorSet{}, err
		}
	}
	pool := d.pools[len(d.pools)-1]
	set, ret := d.allocate(pool, layout)
	if ret == vk.ErrorOutOfPoolMemory || ret == vk.ErrorFragmentedPool {
		var err error
		if pool, err = d.grow(); err != nil {
			return descriptorSet{}, err
		}
		set, ret = d.allocate(pool, layout)
	}
	if isError(ret) {
		return descriptorSet{}, newError(ret)
	}
	return descriptorSet{set: set, pool: pool}, nil
}

func (d *descriptorPools) allocate(pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, vk.Result) {
	var set vk.DescriptorSet
	ret := vk.AllocateDescriptorSets(d.device, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}, &set)
	return set, ret
}

// Free returns sets to the pools they came from.
func (d *descriptorPools) Free(sets []descriptorSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	byPool := make(map[vk.DescriptorPool][]vk.DescriptorSet)
	for _, s := range sets {
		byPool[s.pool] = append(byPool[s.pool], s.set)
	}
	for pool, list := range byPool {
		vk.FreeDescriptorSets(d.device, pool, uint32(len(list)), &list[0])
	}
}

func (d *descriptorPools) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, pool := range d.pools {
		vk.DestroyDescriptorPool(d.device, pool, nil)
	}
	d.pools = nil
}
