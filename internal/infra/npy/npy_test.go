package npy

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader_AlignedAndTerminated(t *testing.T) {
	for _, shape := range [][]int{{}, {5}, {2, 3}, {10, 44, 3}} {
		h, err := Header(Float64, shape)
		require.NoError(t, err)

		assert.Equal(t, []byte("\x93NUMPY\x01\x00"), h[:8])
		assert.Zero(t, len(h)%64, "shape=%v", shape)
		assert.Equal(t, byte('\n'), h[len(h)-1])

		hlen := binary.LittleEndian.Uint16(h[8:10])
		assert.Equal(t, len(h)-10, int(hlen))
	}
}

func TestHeader_ShapeTuple(t *testing.T) {
	h, err := Header(Float32, []int{7})
	require.NoError(t, err)
	assert.Contains(t, string(h), "'shape': (7,), }")
	assert.Contains(t, string(h), "'descr': '<f4'")

	h, err = Header(Int64, []int{2, 0, 3})
	require.NoError(t, err)
	assert.Contains(t, string(h), "'shape': (2, 0, 3), }")
	assert.Contains(t, string(h), "'fortran_order': False")
}

func TestHeader_Invalid(t *testing.T) {
	_, err := Header(DType("|u1"), []int{1})
	assert.Error(t, err)
	_, err = Header(Float64, []int{-1})
	assert.Error(t, err)
}

func TestEncodeDecode_Float64(t *testing.T) {
	a := Array{DType: Float64, Shape: []int{2, 1, 3}, Data: []float64{1, 2, 3, 4.5, -5, 6e10}}
	b, err := Marshal(a)
	require.NoError(t, err)

	got, err := Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestEncode_Float32Bytes(t *testing.T) {
	b, err := Marshal(Array{DType: Float32, Shape: []int{1, 3}, Data: []float64{1, 2, 0.5}})
	require.NoError(t, err)

	// header 共 128 字节（64 对齐），之后是 3 个 float32。
	require.Len(t, b, 128+12)
	assert.Equal(t, []byte{0, 0, 0x80, 0x3f}, b[128:132])
	assert.Equal(t, []byte{0, 0, 0, 0x40}, b[132:136])
	assert.Equal(t, []byte{0, 0, 0, 0x3f}, b[136:140])
}

func TestEncode_Int64AndEmpty(t *testing.T) {
	b, err := Marshal(Array{DType: Int64, Shape: []int{3}, Data: []float64{1, 17, 42}})
	require.NoError(t, err)
	got, err := Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 17, 42}, got.Data)

	b, err = Marshal(Array{DType: Float32, Shape: []int{0, 3}, Data: nil})
	require.NoError(t, err)
	assert.Len(t, b, 128)
	got, err = Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3}, got.Shape)
	assert.Empty(t, got.Data)
}

func TestEncode_ShapeMismatch(t *testing.T) {
	_, err := Marshal(Array{DType: Float64, Shape: []int{2, 3}, Data: []float64{1}})
	assert.Error(t, err)
}

func TestDecode_NotNPY(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("PK\x03\x04not npy")))
	assert.ErrorIs(t, err, ErrNotNPY)
}
