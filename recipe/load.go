// Package recipe loads render graph recipes from HCL files.
//
// A recipe file holds one graph block and any number of pass blocks:
//
//	graph {
//	  backbuffer = "backbuffer"
//	  buffer "frame" {
//	    binding = 0
//	    kind    = "uniform"
//	    stages  = ["vertex", "fragment"]
//	    size    = 192
//	  }
//	}
//
//	pass "scene" {
//	  kind = "camera"
//	  color "backbuffer" {
//	    clear = [0.1, 0.1, 0.1, 1]
//	  }
//	  depth "depth" {
//	    format = depth.format
//	  }
//	  params = { fov = 60 }
//	}
//
// Expressions may reference swapchain.format, depth.format and the caller's variables
// under var. The kind attribute selects a Factory that produces the pass hooks.
package recipe

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/andewx/dieselgraph/graph"
	"github.com/andewx/dieselgraph/internal/ctxlog"
)

type fileRoot struct {
	Graph  *graphBlock  `hcl:"graph,block"`
	Passes []*passBlock `hcl:"pass,block"`
}

type graphBlock struct {
	Backbuffer       string         `hcl:"backbuffer"`
	SwapchainOutputs []string       `hcl:"swapchain_outputs,optional"`
	FramesInFlight   int            `hcl:"frames_in_flight,optional"`
	RecordWorkers    int            `hcl:"record_workers,optional"`
	Kind             string         `hcl:"kind,optional"`
	Params           hcl.Expression `hcl:"params,optional"`
	Buffers          []*bufferBlock `hcl:"buffer,block"`
}

type passBlock struct {
	Name     string             `hcl:"name,label"`
	Kind     string             `hcl:"kind,optional"`
	Params   hcl.Expression     `hcl:"params,optional"`
	Color    []*attachmentBlock `hcl:"color,block"`
	Depth    *attachmentBlock   `hcl:"depth,block"`
	Buffers  []*bufferBlock     `hcl:"buffer,block"`
	Textures []*textureBlock    `hcl:"texture,block"`
}

type attachmentBlock struct {
	Name     string    `hcl:"name,label"`
	Input    string    `hcl:"input,optional"`
	SizeKind string    `hcl:"size_kind,optional"`
	Size     []float64 `hcl:"size,optional"`
	Format   string    `hcl:"format,optional"`
	Samples  int       `hcl:"samples,optional"`
	Clear    []float64 `hcl:"clear,optional"`
	PerFrame bool      `hcl:"per_frame,optional"`
}

type bufferBlock struct {
	Name    string   `hcl:"name,label"`
	Binding int      `hcl:"binding"`
	Count   int      `hcl:"count,optional"`
	Kind    string   `hcl:"kind,optional"`
	Stages  []string `hcl:"stages,optional"`
	Size    int      `hcl:"size"`
}

type textureBlock struct {
	Name    string   `hcl:"name,label"`
	Binding int      `hcl:"binding"`
	Count   int      `hcl:"count,optional"`
	Kind    string   `hcl:"kind,optional"`
	Stages  []string `hcl:"stages,optional"`
	Default string   `hcl:"default,optional"`
}

// Options supplies what a recipe file may refer to.
type Options struct {
	SwapchainFormat graph.Format
	DepthFormat     graph.Format
	// Variables are exposed to expressions as var.<name>.
	Variables map[string]cty.Value
	// Kinds resolves pass kinds. A recipe naming a kind requires it.
	Kinds *Registry
	// Textures resolves texture default names.
	Textures map[string]graph.TextureBinding
}

// File is a loaded recipe.
type File struct {
	Recipe graph.Recipe
	// FramesInFlight and RecordWorkers are zero when the file leaves them to the caller.
	FramesInFlight uint32
	RecordWorkers  int
	Params         *Params
}

// LoadFile reads and decodes the recipe at path.
func LoadFile(ctx context.Context, path string, opts Options) (*File, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading recipe: %w", err)
	}
	return Parse(ctx, src, path, opts)
}

// Parse decodes recipe source. filename is used in diagnostics only.
func Parse(ctx context.Context, src []byte, filename string, opts Options) (*File, error) {
	logger := ctxlog.FromContext(ctx).With("recipe", filename)

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse recipe %s: %w", filename, diags)
	}

	evalCtx := opts.evalContext()
	var root fileRoot
	if diags := gohcl.DecodeBody(hclFile.Body, evalCtx, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode recipe %s: %w", filename, diags)
	}
	if root.Graph == nil {
		return nil, fmt.Errorf("recipe %s has no graph block", filename)
	}

	out := &File{}
	gb := root.Graph
	if gb.FramesInFlight < 0 || gb.RecordWorkers < 0 {
		return nil, fmt.Errorf("recipe %s: frames_in_flight and record_workers must not be negative", filename)
	}
	out.FramesInFlight = uint32(gb.FramesInFlight)
	out.RecordWorkers = gb.RecordWorkers

	params, err := decodeParams("graph", gb.Params, evalCtx)
	if err != nil {
		return nil, err
	}
	out.Params = params
	out.Recipe.Backbuffer = gb.Backbuffer
	out.Recipe.SwapchainOutputs = gb.SwapchainOutputs
	for _, b := range gb.Buffers {
		in, err := b.input()
		if err != nil {
			return nil, fmt.Errorf("graph: %w", err)
		}
		out.Recipe.Buffers = append(out.Recipe.Buffers, in)
	}
	if out.Recipe.Hooks, err = opts.hooks(ctx, PassSpec{Kind: gb.Kind, Params: params}); err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}

	for _, pb := range root.Passes {
		pr, err := pb.recipe(ctx, opts, evalCtx, params)
		if err != nil {
			return nil, fmt.Errorf("pass %q: %w", pb.Name, err)
		}
		out.Recipe.Passes = append(out.Recipe.Passes, pr)
	}

	logger.Debug("recipe loaded", "passes", len(out.Recipe.Passes), "buffers", len(out.Recipe.Buffers))
	return out, nil
}

func (o Options) evalContext() *hcl.EvalContext {
	vars := map[string]cty.Value{
		"swapchain": cty.ObjectVal(map[string]cty.Value{"format": cty.StringVal(o.SwapchainFormat.String())}),
		"depth":     cty.ObjectVal(map[string]cty.Value{"format": cty.StringVal(o.DepthFormat.String())}),
	}
	if len(o.Variables) > 0 {
		vars["var"] = cty.ObjectVal(o.Variables)
	} else {
		vars["var"] = cty.EmptyObjectVal
	}
	return &hcl.EvalContext{Variables: vars}
}

func (o Options) hooks(ctx context.Context, spec PassSpec) (any, error) {
	if spec.Kind == "" {
		return nil, nil
	}
	if o.Kinds == nil {
		return nil, fmt.Errorf("kind %q given but no pass kinds are registered", spec.Kind)
	}
	f, ok := o.Kinds.Lookup(spec.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown pass kind %q (registered: %v)", spec.Kind, o.Kinds.Kinds())
	}
	hooks, err := f(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("kind %q: %w", spec.Kind, err)
	}
	return hooks, nil
}

func decodeParams(name string, expr hcl.Expression, evalCtx *hcl.EvalContext) (*Params, error) {
	if expr == nil {
		return NewParams(name), nil
	}
	v, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return nil, fmt.Errorf("params of %q: %w", name, diags)
	}
	return ParamsFromValue(name, v)
}

func (pb *passBlock) recipe(ctx context.Context, opts Options, evalCtx *hcl.EvalContext, graphParams *Params) (graph.PassRecipe, error) {
	pr := graph.PassRecipe{Name: pb.Name}
	for _, c := range pb.Color {
		d, err := c.decl(false)
		if err != nil {
			return pr, err
		}
		pr.Color = append(pr.Color, d)
	}
	if pb.Depth != nil {
		d, err := pb.Depth.decl(true)
		if err != nil {
			return pr, err
		}
		pr.Depth = &d
	}
	for _, b := range pb.Buffers {
		in, err := b.input()
		if err != nil {
			return pr, err
		}
		pr.Buffers = append(pr.Buffers, in)
	}
	for _, tb := range pb.Textures {
		in, err := tb.input(opts.Textures)
		if err != nil {
			return pr, err
		}
		pr.Textures = append(pr.Textures, in)
	}

	params, err := decodeParams(pb.Name, pb.Params, evalCtx)
	if err != nil {
		return pr, err
	}
	params.Parent = graphParams
	if pr.Hooks, err = opts.hooks(ctx, PassSpec{Pass: pb.Name, Kind: pb.Kind, Params: params}); err != nil {
		return pr, err
	}
	return pr, nil
}

func (a *attachmentBlock) decl(isDepth bool) (graph.AttachmentDecl, error) {
	d := graph.AttachmentDecl{Name: a.Name, Input: a.Input, PerFrame: a.PerFrame}
	var err error
	if d.SizeKind, err = graph.ParseSizeKind(a.SizeKind); err != nil {
		return d, fmt.Errorf("attachment %q: %w", a.Name, err)
	}
	switch len(a.Size) {
	case 0:
	case 2:
		for _, v := range a.Size {
			if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 || v > math.MaxUint32 {
				return d, fmt.Errorf("attachment %q: %w: component %v must be positive and finite", a.Name, graph.ErrInvalidSize, v)
			}
		}
		d.Size = [2]float32{float32(a.Size[0]), float32(a.Size[1])}
	default:
		return d, fmt.Errorf("attachment %q: size needs two components, got %d", a.Name, len(a.Size))
	}
	if a.Format != "" {
		if d.Format, err = graph.ParseFormat(a.Format); err != nil {
			return d, fmt.Errorf("attachment %q: %w", a.Name, err)
		}
		if d.Format.IsDepth() != isDepth {
			return d, fmt.Errorf("attachment %q: format %s cannot be used as a %s attachment", a.Name, d.Format, kindName(isDepth))
		}
	}
	switch s := a.Samples; s {
	case 0, 1, 2, 4, 8, 16, 32, 64:
		d.Samples = graph.SampleCount(s)
	default:
		return d, fmt.Errorf("attachment %q: sample count %d is not a power of two up to 64", a.Name, s)
	}

	if isDepth {
		d.Clear.Depth = 1
		switch len(a.Clear) {
		case 0:
		case 1, 2:
			d.Clear.Depth = float32(a.Clear[0])
			if len(a.Clear) == 2 {
				d.Clear.Stencil = uint32(a.Clear[1])
			}
		default:
			return d, fmt.Errorf("depth attachment %q: clear takes [depth] or [depth, stencil]", a.Name)
		}
		return d, nil
	}
	switch len(a.Clear) {
	case 0:
	case 4:
		for i, v := range a.Clear {
			d.Clear.Color[i] = float32(v)
		}
	default:
		return d, fmt.Errorf("color attachment %q: clear takes four components, got %d", a.Name, len(a.Clear))
	}
	return d, nil
}

func kindName(isDepth bool) string {
	if isDepth {
		return "depth"
	}
	return "color"
}

func (b *bufferBlock) input() (graph.BufferInput, error) {
	in := graph.BufferInput{Name: b.Name, Binding: uint32(b.Binding), Count: uint32(b.Count), Size: uint64(b.Size)}
	if b.Binding < 0 || b.Count < 0 || b.Size <= 0 {
		return in, fmt.Errorf("buffer %q: binding and count must not be negative and size must be positive", b.Name)
	}
	kind := b.Kind
	if kind == "" {
		kind = "uniform"
	}
	var err error
	if in.Kind, err = graph.ParseDescriptorKind(kind); err != nil {
		return in, fmt.Errorf("buffer %q: %w", b.Name, err)
	}
	if in.Kind != graph.DescriptorUniformBuffer && in.Kind != graph.DescriptorStorageBuffer {
		return in, fmt.Errorf("buffer %q: kind %q is not a buffer kind", b.Name, kind)
	}
	if in.Stages, err = stages(b.Stages); err != nil {
		return in, fmt.Errorf("buffer %q: %w", b.Name, err)
	}
	return in, nil
}

func (t *textureBlock) input(textures map[string]graph.TextureBinding) (graph.TextureInput, error) {
	in := graph.TextureInput{Name: t.Name, Binding: uint32(t.Binding), Count: uint32(t.Count)}
	if t.Binding < 0 || t.Count < 0 {
		return in, fmt.Errorf("texture %q: binding and count must not be negative", t.Name)
	}
	var err error
	if in.Kind, err = graph.ParseDescriptorKind(t.Kind); err != nil {
		return in, fmt.Errorf("texture %q: %w", t.Name, err)
	}
	if in.Kind == graph.DescriptorUniformBuffer || in.Kind == graph.DescriptorStorageBuffer {
		return in, fmt.Errorf("texture %q: kind %q is a buffer kind", t.Name, t.Kind)
	}
	if in.Stages, err = stages(t.Stages); err != nil {
		return in, fmt.Errorf("texture %q: %w", t.Name, err)
	}
	if t.Default != "" {
		tex, ok := textures[t.Default]
		if !ok {
			return in, fmt.Errorf("texture %q: unknown default %q", t.Name, t.Default)
		}
		in.Default = tex
	}
	return in, nil
}

// stages defaults to all graphics stages.
func stages(names []string) (graph.ShaderStage, error) {
	if len(names) == 0 {
		return graph.ShaderAllGraphics, nil
	}
	return graph.ParseShaderStages(names)
}
