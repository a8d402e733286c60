package dieselgraph

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckSPIRV(t *testing.T) {
	valid := binary.LittleEndian.AppendUint32(nil, spirvMagic)
	valid = binary.LittleEndian.AppendUint32(valid, 0x00010000)

	assert.NoError(t, checkSPIRV(valid))
	assert.ErrorIs(t, checkSPIRV(nil), ErrNotSPIRV)
	assert.ErrorIs(t, checkSPIRV(valid[:6]), ErrNotSPIRV)
	assert.ErrorIs(t, checkSPIRV([]byte("#version 450\n\x00\x00\x00")), ErrNotSPIRV)
	assert.Len(t, sliceUint32(valid), 2)
}
