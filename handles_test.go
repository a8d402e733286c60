package dieselgraph

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleTable(t *testing.T) {
	tbl := newHandleTable[string]()
	a := tbl.add("a")
	b := tbl.add("b")
	assert.NotZero(t, a)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, tbl.len())

	v, ok := tbl.get(a)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	_, ok = tbl.get(0)
	assert.False(t, ok, "zero is never issued")

	v, ok = tbl.remove(a)
	require.True(t, ok)
	assert.Equal(t, "a", v)
	_, ok = tbl.remove(a)
	assert.False(t, ok)

	c := tbl.add("c")
	assert.NotEqual(t, a, c, "handles are not reused")

	all := tbl.drain()
	sort.Strings(all)
	assert.Equal(t, []string{"b", "c"}, all)
	assert.Zero(t, tbl.len())
}

func TestHandleTableConcurrent(t *testing.T) {
	tbl := newHandleTable[int]()
	const workers, per = 8, 100
	var wg sync.WaitGroup
	handles := make([][]uint64, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < per; i++ {
				handles[w] = append(handles[w], tbl.add(w*per+i))
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for w, hs := range handles {
		for i, h := range hs {
			require.False(t, seen[h], "handle %d issued twice", h)
			seen[h] = true
			v, ok := tbl.get(h)
			require.True(t, ok)
			assert.Equal(t, w*per+i, v)
		}
	}
	assert.Equal(t, workers*per, tbl.len())
}
