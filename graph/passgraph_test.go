package graph

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pass declares a pass writing each attachment; "name<input" aliases input.
func pass(name string, writes ...string) PassRecipe {
	p := PassRecipe{Name: name}
	for _, w := range writes {
		var d AttachmentDecl
		if n, in, ok := strings.Cut(w, "<"); ok {
			d = AttachmentDecl{Name: n, Input: in}
		} else {
			d = AttachmentDecl{Name: w}
		}
		p.Color = append(p.Color, d)
	}
	return p
}

func TestOrderPasses(t *testing.T) {
	tests := []struct {
		name   string
		passes []PassRecipe
		want   []int
		err    error
	}{
		{
			name:   "declaration order without inputs",
			passes: []PassRecipe{pass("a", "x"), pass("b", "y"), pass("c", "z")},
			want:   []int{0, 1, 2},
		},
		{
			name:   "reader after writer",
			passes: []PassRecipe{pass("post", "out<scene"), pass("scene", "scene"), pass("ui", "ui")},
			want:   []int{1, 0, 2},
		},
		{
			name: "chain declared backwards",
			passes: []PassRecipe{
				pass("c", "c<b"),
				pass("b", "b<a"),
				pass("a", "a"),
			},
			want: []int{2, 1, 0},
		},
		{
			name:   "lowest declared ready pass first",
			passes: []PassRecipe{pass("late", "l<e"), pass("other", "o"), pass("early", "e")},
			want:   []int{1, 2, 0},
		},
		{
			name:   "cycle",
			passes: []PassRecipe{pass("a", "x<y"), pass("b", "y<x")},
			err:    ErrCycle,
		},
		{
			name:   "unknown input",
			passes: []PassRecipe{pass("a", "x<nowhere")},
			err:    ErrUnknownInput,
		},
		{
			name:   "duplicate attachment",
			passes: []PassRecipe{pass("a", "x"), pass("b", "x")},
			err:    ErrDuplicateAttachment,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := orderPasses(tt.passes)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOrderPassesRejectsMalformed(t *testing.T) {
	_, err := orderPasses([]PassRecipe{pass("a", "x"), pass("a", "y")})
	assert.ErrorContains(t, err, "duplicate pass name")

	_, err = orderPasses([]PassRecipe{pass("", "x")})
	assert.ErrorContains(t, err, "without a name")

	_, err = orderPasses([]PassRecipe{pass("a", "x", "y<x")})
	assert.ErrorContains(t, err, "self-referential")
}

func TestAlignUp(t *testing.T) {
	for _, align := range []uint64{1, 4, 16, 64, 256} {
		for _, size := range []uint64{1, 3, 15, 16, 17, 63, 64, 65, 100, 255, 256, 257, 1000} {
			t.Run(fmt.Sprintf("%d/%d", size, align), func(t *testing.T) {
				block := makeAlignUp(size, align)
				assert.GreaterOrEqual(t, block, size)
				assert.Zero(t, block%align)
				assert.Less(t, block, size+align)
			})
		}
	}
	assert.Equal(t, uint64(100), makeAlignUp(100, 0))
}

func TestBufferBlockOffset(t *testing.T) {
	blk := &bufferBlock{Input: BufferInput{Count: 4}, Stride: 256, BlockSize: 1024}
	assert.Equal(t, uint64(0), blk.offset(0, 0))
	assert.Equal(t, uint64(768), blk.offset(0, 3))
	assert.Equal(t, uint64(2048+256), blk.offset(2, 1))
}
