package dieselgraph

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	vk "github.com/vulkan-go/vulkan"
)

const spirvMagic = 0x07230203

// ErrNotSPIRV is returned for shader code that is not a SPIR-V binary.
var ErrNotSPIRV = errors.New("not a SPIR-V module")

// ShaderProgram is a vertex and fragment shader pair.
type ShaderProgram struct {
	Vertex   vk.ShaderModule
	Fragment vk.ShaderModule
}

func checkSPIRV(code []byte) error {
	if len(code) < 4 || len(code)%4 != 0 {
		return fmt.Errorf("%w: %d bytes", ErrNotSPIRV, len(code))
	}
	if binary.LittleEndian.Uint32(code) != spirvMagic {
		return fmt.Errorf("%w: bad magic %#x", ErrNotSPIRV, binary.LittleEndian.Uint32(code))
	}
	return nil
}

// CreateShaderModule creates a shader module from SPIR-V code.
func (b *Backend) CreateShaderModule(code []byte) (vk.ShaderModule, error) {
	var module vk.ShaderModule
	if err := checkSPIRV(code); err != nil {
		return module, err
	}
	// Vulkan expects to receive type uint32 data
	ret := vk.CreateShaderModule(b.platform.Device(), &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    sliceUint32(code),
	}, nil, &module)
	if isError(ret) {
		return module, newError(ret)
	}
	return module, nil
}

// LoadShaderModule reads a SPIR-V file and creates a shader module from it.
func (b *Backend) LoadShaderModule(path string) (vk.ShaderModule, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		var none vk.ShaderModule
		return none, err
	}
	module, err := b.CreateShaderModule(code)
	if err != nil {
		return module, fmt.Errorf("shader %s: %w", path, err)
	}
	return module, nil
}

// LoadProgram loads the vertex and fragment shaders of a program.
func (b *Backend) LoadProgram(vertexPath, fragmentPath string) (*ShaderProgram, error) {
	vert, err := b.LoadShaderModule(vertexPath)
	if err != nil {
		return nil, err
	}
	frag, err := b.LoadShaderModule(fragmentPath)
	if err != nil {
		vk.DestroyShaderModule(b.platform.Device(), vert, nil)
		return nil, err
	}
	return &ShaderProgram{Vertex: vert, Fragment: frag}, nil
}

// DestroyProgram releases the modules of p. Pipelines built from it stay valid.
func (b *Backend) DestroyProgram(p *ShaderProgram) {
	device := b.platform.Device()
	vk.DestroyShaderModule(device, p.Vertex, nil)
	vk.DestroyShaderModule(device, p.Fragment, nil)
}
