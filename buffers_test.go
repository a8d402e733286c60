package dieselgraph

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostBufferWrite(t *testing.T) {
	backing := make([]byte, 16)
	h := &hostBuffer{name: "frame", size: uint64(len(backing)), mapped: unsafe.Pointer(&backing[0])}

	require.NoError(t, h.write(4, []byte{1, 2, 3, 4}))
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 2, 3, 4, 0, 0, 0, 0, 0, 0, 0, 0}, backing)

	require.NoError(t, h.write(12, []byte{9, 9, 9, 9}), "write ending at the last byte")
	require.NoError(t, h.write(16, nil), "empty write at the end")

	tests := []struct {
		name   string
		offset uint64
		data   []byte
	}{
		{name: "overflows end", offset: 14, data: []byte{1, 2, 3}},
		{name: "offset past end", offset: 17},
		{name: "too large", offset: 0, data: make([]byte, 17)},
		{name: "offset wraps", offset: ^uint64(0), data: []byte{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorContains(t, h.write(tt.offset, tt.data), "exceeds size")
		})
	}
}
