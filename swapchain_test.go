package dieselgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselgraph/graph"
)

func TestChooseSurfaceFormat(t *testing.T) {
	srgb := vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	unorm := vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	unknown := vk.SurfaceFormat{Format: vk.FormatR5g6b5UnormPack16, ColorSpace: vk.ColorSpaceSrgbNonlinear}

	tests := []struct {
		name      string
		formats   []vk.SurfaceFormat
		preferred graph.Format
		want      vk.Format
		wantErr   error
	}{
		{name: "preferred", formats: []vk.SurfaceFormat{unorm, srgb}, preferred: graph.FormatB8G8R8A8Srgb, want: vk.FormatB8g8r8a8Srgb},
		{name: "first known", formats: []vk.SurfaceFormat{unknown, srgb}, preferred: graph.FormatR8G8B8A8Unorm, want: vk.FormatB8g8r8a8Srgb},
		{name: "no preference", formats: []vk.SurfaceFormat{srgb, unorm}, want: vk.FormatB8g8r8a8Unorm},
		{
			name:      "undefined means any",
			formats:   []vk.SurfaceFormat{{Format: vk.FormatUndefined}},
			preferred: graph.FormatR8G8B8A8Srgb,
			want:      vk.FormatR8g8b8a8Srgb,
		},
		{name: "nothing usable", formats: []vk.SurfaceFormat{unknown}, wantErr: ErrSurfaceFormat},
		{name: "empty", wantErr: ErrSurfaceFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := chooseSurfaceFormat(tt.formats, tt.preferred)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Format)
		})
	}
}

func TestSwapchainExtent(t *testing.T) {
	caps := vk.SurfaceCapabilities{
		CurrentExtent:  vk.Extent2D{Width: 800, Height: 600},
		MinImageExtent: vk.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: vk.Extent2D{Width: 4096, Height: 4096},
	}
	assert.Equal(t, vk.Extent2D{Width: 800, Height: 600}, swapchainExtent(caps, &SwapchainDimensions{Width: 10, Height: 10}))

	caps.CurrentExtent = vk.Extent2D{Width: vk.MaxUint32, Height: vk.MaxUint32}
	assert.Equal(t, vk.Extent2D{Width: 1280, Height: 720}, swapchainExtent(caps, &SwapchainDimensions{Width: 1280, Height: 720}))
	assert.Equal(t, vk.Extent2D{Width: 4096, Height: 1}, swapchainExtent(caps, &SwapchainDimensions{Width: 9000, Height: 0}))
	assert.Equal(t, vk.Extent2D{Width: 1, Height: 1}, swapchainExtent(caps, nil))
}

func TestSwapchainImageCount(t *testing.T) {
	tests := []struct {
		name     string
		min, max uint32
		desired  uint32
		want     uint32
	}{
		{name: "above minimum", min: 2, max: 8, desired: 3, want: 3},
		{name: "raised to minimum plus one", min: 3, max: 8, desired: 2, want: 4},
		{name: "capped", min: 2, max: 3, desired: 5, want: 3},
		{name: "no maximum", min: 2, max: 0, desired: 6, want: 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps := vk.SurfaceCapabilities{MinImageCount: tt.min, MaxImageCount: tt.max}
			assert.Equal(t, tt.want, swapchainImageCount(caps, tt.desired))
		})
	}
}

func TestSwapchainStatus(t *testing.T) {
	tests := []struct {
		ret     vk.Result
		want    graph.SwapchainStatus
		wantErr bool
	}{
		{ret: vk.Success, want: graph.SwapchainOK},
		{ret: vk.Suboptimal, want: graph.SwapchainSuboptimal},
		{ret: vk.ErrorOutOfDate, want: graph.SwapchainOutOfDate},
		{ret: vk.ErrorDeviceLost, wantErr: true},
	}
	for _, tt := range tests {
		got, err := swapchainStatus(tt.ret)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
