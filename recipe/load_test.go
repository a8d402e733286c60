package recipe_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/andewx/dieselgraph/graph"
	"github.com/andewx/dieselgraph/recipe"
)

type stubHooks struct {
	spec recipe.PassSpec
}

func testOptions() recipe.Options {
	kinds := recipe.NewRegistry(nil)
	for _, k := range []string{"frame", "camera", "fullscreen"} {
		kinds.Register(k, func(_ context.Context, spec recipe.PassSpec) (any, error) {
			return &stubHooks{spec: spec}, nil
		})
	}
	return recipe.Options{
		SwapchainFormat: graph.FormatB8G8R8A8Srgb,
		DepthFormat:     graph.FormatD32Sfloat,
		Variables:       map[string]cty.Value{"debug": cty.True},
		Kinds:           kinds,
		Textures:        map[string]graph.TextureBinding{"white": {View: 11, Sampler: 12}},
	}
}

func TestLoadFile(t *testing.T) {
	f, err := recipe.LoadFile(context.Background(), "testdata/forward.hcl", testOptions())
	require.NoError(t, err)

	assert.Equal(t, uint32(2), f.FramesInFlight)
	assert.Equal(t, 2, f.RecordWorkers)
	assert.Equal(t, float32(1.5), f.Params.Float("exposure", 0))
	assert.Equal(t, "forward", f.Params.Str("title", ""))

	r := f.Recipe
	assert.Equal(t, "backbuffer", r.Backbuffer)
	want := []graph.BufferInput{{
		Name: "frame", Binding: 0, Kind: graph.DescriptorUniformBuffer,
		Stages: graph.ShaderVertex | graph.ShaderFragment, Size: 192,
	}}
	if diff := cmp.Diff(want, r.Buffers); diff != "" {
		t.Errorf("graph buffers mismatch (-want +got):\n%s", diff)
	}
	graphHooks, ok := r.Hooks.(*stubHooks)
	require.True(t, ok)
	assert.Equal(t, "frame", graphHooks.spec.Kind)
	assert.Empty(t, graphHooks.spec.Pass)

	require.Len(t, r.Passes, 2)
	scene := r.Passes[0]
	wantScene := graph.PassRecipe{
		Name: "scene",
		Color: []graph.AttachmentDecl{{
			Name: "hdr", SizeKind: graph.SizeSwapchainRelative, Size: [2]float32{1, 1},
			Format: graph.FormatR16G16B16A16Sfloat, Samples: 4,
			Clear: graph.ClearValue{Color: [4]float32{0.1, 0.2, 0.3, 1}},
		}},
		Depth: &graph.AttachmentDecl{
			Name: "depth", Format: graph.FormatD32Sfloat, Samples: 4,
			Clear: graph.ClearValue{Depth: 1},
		},
		Buffers: []graph.BufferInput{{
			Name: "objects", Count: 8, Kind: graph.DescriptorStorageBuffer, Stages: graph.ShaderVertex, Size: 64,
		}},
		Hooks: scene.Hooks,
	}
	if diff := cmp.Diff(wantScene, scene, cmp.AllowUnexported(stubHooks{})); diff != "" {
		t.Errorf("scene pass mismatch (-want +got):\n%s", diff)
	}

	sh := scene.Hooks.(*stubHooks)
	assert.Equal(t, "scene", sh.spec.Pass)
	assert.Equal(t, 60, sh.spec.Params.Int("fov", 0))
	assert.Equal(t, float32(0.1), sh.spec.Params.Float("near", 0))
	assert.Equal(t, []float32{0, 1, -3}, sh.spec.Params.List("eye", nil))
	assert.True(t, sh.spec.Params.Bool("debug", false))
	assert.Equal(t, float32(1.5), sh.spec.Params.Float("exposure", 0), "pass params fall back to graph params")

	tonemap := r.Passes[1]
	require.Len(t, tonemap.Color, 1)
	assert.Equal(t, graph.FormatB8G8R8A8Srgb, tonemap.Color[0].Format)
	assert.Equal(t, [4]float32{0, 0, 0, 1}, tonemap.Color[0].Clear.Color)
	require.Len(t, tonemap.Textures, 1)
	assert.Equal(t, graph.TextureInput{
		Name: "hdr", Kind: graph.DescriptorCombinedImageSampler, Stages: graph.ShaderFragment,
		Default: graph.TextureBinding{View: 11, Sampler: 12},
	}, tonemap.Textures[0])
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "syntax",
			src:  `graph {`,
			want: "failed to parse",
		},
		{
			name: "missing graph block",
			src:  `pass "a" {}`,
			want: "no graph block",
		},
		{
			name: "missing backbuffer",
			src:  `graph {}`,
			want: "failed to decode",
		},
		{
			name: "unknown format",
			src: `graph { backbuffer = "b" }
pass "a" {
  color "b" { format = "rgb565" }
}`,
			want: "unsupported render attachment format",
		},
		{
			name: "depth format on color",
			src: `graph { backbuffer = "b" }
pass "a" {
  color "b" { format = depth.format }
}`,
			want: "cannot be used as a color attachment",
		},
		{
			name: "bad sample count",
			src: `graph { backbuffer = "b" }
pass "a" {
  color "b" { samples = 3 }
}`,
			want: "sample count 3",
		},
		{
			name: "bad size",
			src: `graph { backbuffer = "b" }
pass "a" {
  color "b" { size = [1, 1, 1] }
}`,
			want: "two components",
		},
		{
			name: "negative size",
			src: `graph { backbuffer = "b" }
pass "a" {
  color "b" {
    size_kind = "absolute"
    size      = [-1, 64]
  }
}`,
			want: "invalid attachment size",
		},
		{
			name: "oversized size",
			src: `graph { backbuffer = "b" }
pass "a" {
  color "b" {
    size_kind = "absolute"
    size      = [5e10, 64]
  }
}`,
			want: "invalid attachment size",
		},
		{
			name: "bad size kind",
			src: `graph { backbuffer = "b" }
pass "a" {
  color "b" { size_kind = "percent" }
}`,
			want: "unsupported attachment size kind",
		},
		{
			name: "unknown kind",
			src: `graph { backbuffer = "b" }
pass "a" { kind = "raytrace" }`,
			want: `unknown pass kind "raytrace"`,
		},
		{
			name: "texture kind on buffer",
			src: `graph {
  backbuffer = "b"
  buffer "x" {
    binding = 0
    kind    = "sampled_image"
    size    = 4
  }
}`,
			want: "not a buffer kind",
		},
		{
			name: "unknown texture default",
			src: `graph { backbuffer = "b" }
pass "a" {
  texture "t" {
    binding = 1
    default = "black"
  }
}`,
			want: `unknown default "black"`,
		},
		{
			name: "params not an object",
			src: `graph {
  backbuffer = "b"
  params     = "loud"
}`,
			want: "must be an object",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := recipe.Parse(context.Background(), []byte(tt.src), "test.hcl", testOptions())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseFactoryError(t *testing.T) {
	opts := testOptions()
	boom := errors.New("shader missing")
	opts.Kinds.Register("broken", func(context.Context, recipe.PassSpec) (any, error) { return nil, boom })

	_, err := recipe.Parse(context.Background(), []byte(`graph { backbuffer = "b" }
pass "a" { kind = "broken" }`), "test.hcl", opts)
	require.ErrorIs(t, err, boom)
}

func TestRegistryKeepsFirst(t *testing.T) {
	r := recipe.NewRegistry(nil)
	first := func(context.Context, recipe.PassSpec) (any, error) { return "first", nil }
	second := func(context.Context, recipe.PassSpec) (any, error) { return "second", nil }

	assert.True(t, r.Register("blit", first))
	assert.False(t, r.Register("blit", second))
	assert.True(t, r.Register("clear", second))

	f, ok := r.Lookup("blit")
	require.True(t, ok)
	got, err := f(context.Background(), recipe.PassSpec{})
	require.NoError(t, err)
	assert.Equal(t, "first", got)
	assert.Equal(t, []string{"blit", "clear"}, r.Kinds())
}
