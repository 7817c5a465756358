package codec

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZstd(t *testing.T) {
	data := bytes.Repeat([]byte("ActorLink "), 200)

	compressed := CompressZstd(data)
	assert.True(t, IsZstd(compressed))
	assert.Less(t, len(compressed), len(data))

	out, err := DecompressIf(compressed)
	require.NoError(t, err)
	assert.Equal(t, data, out)

	plain, err := DecompressIf(data)
	require.NoError(t, err)
	assert.Equal(t, data, plain, "uncompressed input passes through")

	_, err = DecompressZstd(append([]byte{0x28, 0xB5, 0x2F, 0xFD}, 0xFF, 0xFF))
	assert.Error(t, err)
}

func TestLZ4(t *testing.T) {
	t.Run("compressible", func(t *testing.T) {
		data := bytes.Repeat([]byte{1, 2, 3, 4}, 1024)
		packed := CompressLZ4(data)
		assert.Equal(t, lz4Block, packed[0])

		out, err := DecompressLZ4(packed)
		require.NoError(t, err)
		assert.Equal(t, data, out)
	})

	t.Run("incompressible stays raw", func(t *testing.T) {
		data := []byte{9, 1, 7}
		packed := CompressLZ4(data)
		assert.Equal(t, lz4Raw, packed[0])

		out, err := DecompressLZ4(packed)
		require.NoError(t, err)
		assert.Equal(t, data, out)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := DecompressLZ4([]byte{1})
		assert.Error(t, err)
	})
}

func TestCBORDeterministic(t *testing.T) {
	a, err := Marshal(map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)
	b, err := Marshal(map[string]int{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var got map[string]int
	require.NoError(t, Unmarshal(a, &got))
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, got)
}

func TestBinaryRoundTrip(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.BigEndian, binary.LittleEndian} {
		t.Run(order.String(), func(t *testing.T) {
			w := NewWriter(order)
			w.Header("TEST", 2)
			w.U8(7)
			w.U32(0xDEADBEEF)
			w.F64(1.5)
			w.Bool(true)
			w.String("Enemy_Lizal")
			w.Pad(16)
			assert.Zero(t, w.Len()%16)

			r, version, err := ReadHeader(w.Bytes(), "TEST")
			require.NoError(t, err)
			assert.Equal(t, uint16(2), version)
			assert.Equal(t, order, r.Order())
			assert.Equal(t, uint8(7), r.U8())
			assert.Equal(t, uint32(0xDEADBEEF), r.U32())
			assert.Equal(t, 1.5, r.F64())
			assert.True(t, r.Bool())
			assert.Equal(t, "Enemy_Lizal", r.String())
			require.NoError(t, r.Err())
		})
	}
}

func TestReaderErrors(t *testing.T) {
	_, _, err := ReadHeader([]byte("NOPE\xfe\xff\x00\x01"), "TEST")
	assert.Error(t, err)

	_, _, err = ReadHeader([]byte("TEST\x12\x34\x00\x01"), "TEST")
	assert.Error(t, err)

	r := NewReader([]byte{0, 0, 0, 9, 'a'}, binary.BigEndian)
	assert.Equal(t, "", r.String())
	assert.ErrorIs(t, r.Err(), ErrShortBuffer)
	assert.Zero(t, r.U32(), "reads after a failure return zero values")

	r = NewReader([]byte{0, 0, 0, 200}, binary.BigEndian)
	assert.Zero(t, r.Count(4))
	assert.ErrorIs(t, r.Err(), ErrShortBuffer)
}
