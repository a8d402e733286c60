package recipe

import (
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Params is the property bag handed to pass factories. Values missing from a pass fall
// back to its Parent, normally the graph-level params.
type Params struct {
	Name    string
	Strings map[string]string
	Ints    map[string]int
	Bools   map[string]bool
	Floats  map[string]float32
	Lists   map[string][]float32
	Parent  *Params
}

func NewParams(name string) *Params {
	return &Params{
		Name:    name,
		Strings: make(map[string]string),
		Ints:    make(map[string]int),
		Bools:   make(map[string]bool),
		Floats:  make(map[string]float32),
		Lists:   make(map[string][]float32),
	}
}

// ParamsFromValue decodes an HCL object into Params. Whole numbers are stored both as
// ints and floats; lists must hold numbers.
func ParamsFromValue(name string, v cty.Value) (*Params, error) {
	p := NewParams(name)
	if v.IsNull() {
		return p, nil
	}
	if !v.IsKnown() {
		return nil, fmt.Errorf("params of %q are not known at load time", name)
	}
	ty := v.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, fmt.Errorf("params of %q must be an object, got %s", name, ty.FriendlyName())
	}
	for key, val := range v.AsValueMap() {
		if err := p.set(key, val); err != nil {
			return nil, fmt.Errorf("params of %q: %w", name, err)
		}
	}
	return p, nil
}

func (p *Params) set(key string, val cty.Value) error {
	if val.IsNull() {
		return nil
	}
	ty := val.Type()
	switch {
	case ty == cty.String:
		p.Strings[key] = val.AsString()
	case ty == cty.Bool:
		p.Bools[key] = val.True()
	case ty == cty.Number:
		var f float32
		if err := gocty.FromCtyValue(val, &f); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		p.Floats[key] = f
		if bf := val.AsBigFloat(); bf.IsInt() {
			var i int
			if err := gocty.FromCtyValue(val, &i); err == nil {
				p.Ints[key] = i
			}
		}
	case ty.IsTupleType() || ty.IsListType():
		list := make([]float32, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			var f float32
			if err := gocty.FromCtyValue(ev, &f); err != nil {
				return fmt.Errorf("%s: list elements must be numbers: %w", key, err)
			}
			list = append(list, f)
		}
		p.Lists[key] = list
	default:
		return fmt.Errorf("%s: unsupported value type %s", key, ty.FriendlyName())
	}
	return nil
}

func (p *Params) Str(key, def string) string {
	for q := p; q != nil; q = q.Parent {
		if v, ok := q.Strings[key]; ok {
			return v
		}
	}
	return def
}

func (p *Params) Int(key string, def int) int {
	for q := p; q != nil; q = q.Parent {
		if v, ok := q.Ints[key]; ok {
			return v
		}
	}
	return def
}

func (p *Params) Bool(key string, def bool) bool {
	for q := p; q != nil; q = q.Parent {
		if v, ok := q.Bools[key]; ok {
			return v
		}
	}
	return def
}

func (p *Params) Float(key string, def float32) float32 {
	for q := p; q != nil; q = q.Parent {
		if v, ok := q.Floats[key]; ok {
			return v
		}
	}
	return def
}

// List returns the number list stored under key, or def.
func (p *Params) List(key string, def []float32) []float32 {
	for q := p; q != nil; q = q.Parent {
		if v, ok := q.Lists[key]; ok {
			return v
		}
	}
	return def
}

// Keys lists the keys set directly on p, sorted.
func (p *Params) Keys() []string {
	seen := make(map[string]struct{})
	for k := range p.Strings {
		seen[k] = struct{}{}
	}
	for k := range p.Bools {
		seen[k] = struct{}{}
	}
	for k := range p.Floats {
		seen[k] = struct{}{}
	}
	for k := range p.Lists {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
