package dieselgraph

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselgraph/graph"
)

func colorAttachment(view graph.ImageView, load graph.LoadOp) graph.RenderingAttachment {
	return graph.RenderingAttachment{
		View:    view,
		Layout:  graph.LayoutColorAttachmentOptimal,
		Format:  graph.FormatB8G8R8A8Unorm,
		Samples: 1,
		Load:    load,
		Store:   graph.StoreOpStore,
	}
}

func depthAttachment(view graph.ImageView, format graph.Format) *graph.RenderingAttachment {
	return &graph.RenderingAttachment{
		View:    view,
		Layout:  graph.LayoutDepthAttachmentOptimal,
		Format:  format,
		Samples: 1,
		Load:    graph.LoadOpClear,
		Store:   graph.StoreOpDontCare,
		Clear:   graph.ClearValue{Depth: 1},
	}
}

func TestDescribeRenderPassColorDepth(t *testing.T) {
	info := &graph.RenderingInfo{
		Pass:   "scene",
		Extent: graph.Extent{Width: 640, Height: 480},
		Color:  []graph.RenderingAttachment{colorAttachment(11, graph.LoadOpClear)},
		Depth:  depthAttachment(12, graph.FormatD32Sfloat),
	}
	l := describeRenderPass(info)

	require.Len(t, l.attachments, 2)
	assert.Equal(t, []graph.ImageView{11, 12}, l.views)
	assert.Len(t, l.clears, 2)
	assert.Empty(t, l.resolve)

	color := l.attachments[0]
	assert.Equal(t, vk.FormatB8g8r8a8Unorm, color.Format)
	assert.Equal(t, vk.AttachmentLoadOpClear, color.LoadOp)
	assert.Equal(t, vk.ImageLayoutColorAttachmentOptimal, color.InitialLayout)
	assert.Equal(t, vk.ImageLayoutColorAttachmentOptimal, color.FinalLayout)

	depth := l.attachments[1]
	assert.Equal(t, vk.ImageLayoutDepthStencilAttachmentOptimal, depth.InitialLayout)
	assert.Equal(t, vk.AttachmentStoreOpDontCare, depth.StoreOp)
	assert.Equal(t, vk.AttachmentLoadOpDontCare, depth.StencilLoadOp, "no stencil plane")

	require.NotNil(t, l.depth)
	assert.Equal(t, uint32(1), l.depth.Attachment)
	assert.Equal(t, []vk.AttachmentReference{{Attachment: 0, Layout: vk.ImageLayoutColorAttachmentOptimal}}, l.color)
}

func TestDescribeRenderPassStencil(t *testing.T) {
	info := &graph.RenderingInfo{Depth: depthAttachment(3, graph.FormatD24UnormS8Uint)}
	l := describeRenderPass(info)
	require.Len(t, l.attachments, 1)
	assert.Equal(t, vk.AttachmentLoadOpClear, l.attachments[0].StencilLoadOp)
	assert.Equal(t, vk.AttachmentStoreOpDontCare, l.attachments[0].StencilStoreOp)
	assert.Empty(t, l.color)
}

func TestDescribeRenderPassResolve(t *testing.T) {
	msaa := colorAttachment(21, graph.LoadOpClear)
	msaa.Samples = 4
	msaa.Resolve = graph.ResolveAverage
	msaa.ResolveView = 22
	msaa.ResolveLayout = graph.LayoutColorAttachmentOptimal
	plain := colorAttachment(23, graph.LoadOpLoad)
	plain.Samples = 4

	info := &graph.RenderingInfo{
		Color: []graph.RenderingAttachment{msaa, plain},
		Depth: depthAttachment(24, graph.FormatD32Sfloat),
	}
	l := describeRenderPass(info)

	// color, color, depth, then the one resolve target
	require.Len(t, l.attachments, 4)
	assert.Equal(t, []graph.ImageView{21, 23, 24, 22}, l.views)
	assert.Equal(t, vk.SampleCount4Bit, l.attachments[0].Samples)

	target := l.attachments[3]
	assert.Equal(t, vk.SampleCount1Bit, target.Samples)
	assert.Equal(t, vk.ImageLayoutUndefined, target.InitialLayout)
	assert.Equal(t, vk.ImageLayoutColorAttachmentOptimal, target.FinalLayout)
	assert.Equal(t, vk.AttachmentStoreOpStore, target.StoreOp)

	want := []vk.AttachmentReference{
		{Attachment: 3, Layout: vk.ImageLayoutColorAttachmentOptimal},
		{Attachment: vk.MaxUint32},
	}
	if diff := cmp.Diff(want, l.resolve, cmpopts.IgnoreUnexported(vk.AttachmentReference{})); diff != "" {
		t.Errorf("resolve references mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderPassKey(t *testing.T) {
	base := &graph.RenderingInfo{
		Pass:   "a",
		Extent: graph.Extent{Width: 100, Height: 100},
		Color:  []graph.RenderingAttachment{colorAttachment(1, graph.LoadOpClear)},
	}
	sameShape := &graph.RenderingInfo{
		Pass:   "b",
		Extent: graph.Extent{Width: 300, Height: 200},
		Color:  []graph.RenderingAttachment{colorAttachment(9, graph.LoadOpClear)},
	}
	loaded := &graph.RenderingInfo{
		Color: []graph.RenderingAttachment{colorAttachment(1, graph.LoadOpLoad)},
	}
	withDepth := &graph.RenderingInfo{
		Color: []graph.RenderingAttachment{colorAttachment(1, graph.LoadOpClear)},
		Depth: depthAttachment(2, graph.FormatD32Sfloat),
	}

	assert.Equal(t, renderPassKey(base), renderPassKey(sameShape), "views, names and extents do not matter")
	assert.NotEqual(t, renderPassKey(base), renderPassKey(loaded))
	assert.NotEqual(t, renderPassKey(base), renderPassKey(withDepth))
}
