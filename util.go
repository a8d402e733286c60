package dieselgraph

import (
	"strings"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// enumerate runs a Vulkan count-then-fill query and returns the names of the results.
func enumerate[T any](query func(count *uint32, out []T) vk.Result, name func(*T) string) ([]string, error) {
	var count uint32
	if ret := query(&count, nil); isError(ret) {
		return nil, newError(ret)
	}
	list := make([]T, count)
	if ret := query(&count, list); isError(ret) {
		return nil, newError(ret)
	}
	names := make([]string, 0, count)
	for i := range list[:count] {
		names = append(names, name(&list[i]))
	}
	return names, nil
}

func extensionName(ext *vk.ExtensionProperties) string {
	ext.Deref()
	return vk.ToString(ext.ExtensionName[:])
}

func layerName(layer *vk.LayerProperties) string {
	layer.Deref()
	return vk.ToString(layer.LayerName[:])
}

func instanceExtensions() ([]string, error) {
	return enumerate(func(count *uint32, out []vk.ExtensionProperties) vk.Result {
		return vk.EnumerateInstanceExtensionProperties("", count, out)
	}, extensionName)
}

func instanceLayers() ([]string, error) {
	return enumerate(vk.EnumerateInstanceLayerProperties, layerName)
}

func deviceExtensions(gpu vk.PhysicalDevice) ([]string, error) {
	return enumerate(func(count *uint32, out []vk.ExtensionProperties) vk.Result {
		return vk.EnumerateDeviceExtensionProperties(gpu, "", count, out)
	}, extensionName)
}

// findMemoryType returns the first memory type allowed by typeBits that has all of want.
func findMemoryType(props vk.PhysicalDeviceMemoryProperties, typeBits uint32, want vk.MemoryPropertyFlagBits) (uint32, bool) {
	for i := uint32(0); i < props.MemoryTypeCount && i < vk.MaxMemoryTypes; i++ {
		if typeBits&(1<<i) == 0 {
			continue
		}
		props.MemoryTypes[i].Deref()
		flags := props.MemoryTypes[i].PropertyFlags
		if flags&vk.MemoryPropertyFlags(want) == vk.MemoryPropertyFlags(want) {
			return i, true
		}
	}
	return 0, false
}

// intersectNames splits requested into the names available offers, NUL-terminated for
// Vulkan, and the ones it lacks.
func intersectNames(available, requested []string) (enabled, missing []string) {
	have := make(map[string]struct{}, len(available))
	for _, name := range available {
		have[strings.TrimRight(name, "\x00")] = struct{}{}
	}
	for _, name := range requested {
		name = strings.TrimRight(name, "\x00")
		if _, ok := have[name]; ok {
			enabled = append(enabled, cString(name))
		} else {
			missing = append(missing, name)
		}
	}
	return enabled, missing
}

// cString terminates s with NUL as the binding expects for C strings.
func cString(s string) string {
	if strings.HasSuffix(s, "\x00") {
		return s
	}
	return s + "\x00"
}

// sliceUint32 reinterprets SPIR-V bytes as the words Vulkan expects. len(data) must be a
// multiple of four.
func sliceUint32(data []byte) []uint32 {
	if len(data) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}
