package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andewx/dieselgraph/graph"
	"github.com/andewx/dieselgraph/graph/graphtest"
)

func newTestRegistry(t *testing.T, outputs ...string) (*graph.Registry, *graphtest.Device, graph.Swapchain) {
	t.Helper()
	dev := graphtest.NewDevice()
	sc := dev.NewSwapchain(3, testFormat, testExtent)
	return graph.NewRegistry(dev, sc, 2, outputs, nil), dev, sc
}

func TestCreateOrAliasWriteOnly(t *testing.T) {
	tests := []struct {
		name      string
		decl      graph.AttachmentDecl
		outputs   []string
		kind      graph.ContainerKind
		resources int
		extent    graph.Extent
	}{
		{
			name:      "single swapchain relative",
			decl:      graph.AttachmentDecl{Name: "hdr", SizeKind: graph.SizeSwapchainRelative, Size: [2]float32{0.5, 0.5}, Format: graph.FormatR16G16B16A16Sfloat},
			kind:      graph.KindSingle,
			resources: 1,
			extent:    graph.Extent{Width: 400, Height: 300},
		},
		{
			name:      "unset factor means full size",
			decl:      graph.AttachmentDecl{Name: "hdr", Format: graph.FormatR16G16B16A16Sfloat},
			kind:      graph.KindSingle,
			resources: 1,
			extent:    testExtent,
		},
		{
			name:      "absolute",
			decl:      graph.AttachmentDecl{Name: "shadow", SizeKind: graph.SizeAbsolute, Size: [2]float32{2048, 2048}, Format: graph.FormatD32Sfloat},
			kind:      graph.KindSingle,
			resources: 1,
			extent:    graph.Extent{Width: 2048, Height: 2048},
		},
		{
			name:      "swapchain output",
			decl:      graph.AttachmentDecl{Name: "final"},
			outputs:   []string{"final"},
			kind:      graph.KindPerSwapchainImage,
			resources: 3,
			extent:    testExtent,
		},
		{
			name:      "per frame",
			decl:      graph.AttachmentDecl{Name: "history", Format: graph.FormatR8G8B8A8Unorm, PerFrame: true},
			kind:      graph.KindPerFrame,
			resources: 2,
			extent:    testExtent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newTestRegistry(t, tt.outputs...)
			idx, load, err := r.CreateOrAlias(tt.decl)
			require.NoError(t, err)
			assert.Equal(t, graph.LoadOpClear, load)
			require.Len(t, r.Containers(), 1)

			c := r.Container(idx)
			assert.Equal(t, tt.kind, c.Kind)
			assert.Len(t, c.Resources, tt.resources)
			assert.Equal(t, tt.extent, c.Extent)
			assert.Equal(t, tt.decl.Name, c.LastWriter)
		})
	}
}

func TestCreateOrAliasChain(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	base := graph.AttachmentDecl{Name: "a", Format: graph.FormatR8G8B8A8Unorm}
	idx, _, err := r.CreateOrAlias(base)
	require.NoError(t, err)

	next := base
	next.Name, next.Input = "b", "a"
	got, load, err := r.CreateOrAlias(next)
	require.NoError(t, err)
	assert.Equal(t, idx, got)
	assert.Equal(t, graph.LoadOpLoad, load)

	// "a" is no longer the last writer.
	again := base
	again.Name, again.Input = "c", "a"
	_, _, err = r.CreateOrAlias(again)
	require.ErrorIs(t, err, graph.ErrUnknownInput)
	assert.Contains(t, err.Error(), `already aliased by "b"`)

	again.Input = "b"
	got, _, err = r.CreateOrAlias(again)
	require.NoError(t, err)
	assert.Equal(t, idx, got)
	assert.Equal(t, "c", r.Container(idx).LastWriter)
	assert.Len(t, r.Containers(), 1)

	_, _, err = r.CreateOrAlias(graph.AttachmentDecl{Name: "b", Format: graph.FormatR8G8B8A8Unorm})
	assert.ErrorIs(t, err, graph.ErrDuplicateAttachment)
}

func TestRecreateKeepsBorrowedImages(t *testing.T) {
	r, dev, sc := newTestRegistry(t, "final")
	_, _, err := r.CreateOrAlias(graph.AttachmentDecl{Name: "final"})
	require.NoError(t, err)
	_, _, err = r.CreateOrAlias(graph.AttachmentDecl{Name: "depth", Format: graph.FormatD24UnormS8Uint})
	require.NoError(t, err)
	_, _, err = r.CreateOrAlias(graph.AttachmentDecl{
		Name: "msaa", Format: graph.FormatR8G8B8A8Unorm, Samples: 8,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, dev.LiveImages(), "depth, msaa resolve target and msaa transient")

	depth := r.Container(1)
	assert.Equal(t, graph.AspectDepth|graph.AspectStencil, depth.Aspect)

	next := dev.NewSwapchain(2, testFormat, graph.Extent{Width: 640, Height: 480})
	require.NoError(t, r.Recreate(next))
	assert.Zero(t, dev.Foreign)
	for _, img := range sc.Images {
		assert.NotContains(t, dev.Destroyed, img)
	}
	assert.Len(t, r.Container(0).Resources, 2)
	assert.Equal(t, 3, dev.LiveImages())
	assert.Equal(t, graph.Extent{Width: 640, Height: 480}, r.Container(2).Extent)
	assert.NotNil(t, r.Container(2).Transient)

	r.Destroy()
	assert.Zero(t, dev.LiveImages())
	assert.Zero(t, dev.Foreign)
}

func TestCreateFailureReleasesPartialAllocation(t *testing.T) {
	r, dev, _ := newTestRegistry(t)
	dev.FailImage = func(d graph.ImageDesc) bool { return d.Samples > 1 }

	_, _, err := r.CreateOrAlias(graph.AttachmentDecl{Name: "msaa", Format: graph.FormatR8G8B8A8Unorm, Samples: 4})
	require.Error(t, err)
	assert.Zero(t, dev.LiveImages())
	assert.Empty(t, r.Containers())
}
