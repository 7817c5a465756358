package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// zstdMagic opens every zstd frame.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// zstd.Encoder and zstd.Decoder are safe for concurrent use through
// EncodeAll and DecodeAll, so one of each serves the whole process.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// IsZstd reports whether data starts with a zstd frame header.
func IsZstd(data []byte) bool {
	return bytes.HasPrefix(data, zstdMagic)
}

// CompressZstd compresses data into a single zstd frame.
func CompressZstd(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2+len(zstdMagic)))
}

// DecompressZstd decodes a zstd frame.
func DecompressZstd(data []byte) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}

// DecompressIf decodes data when it carries a zstd header and returns it
// unchanged otherwise.
func DecompressIf(data []byte) ([]byte, error) {
	if !IsZstd(data) {
		return data, nil
	}
	return DecompressZstd(data)
}

// lz4 blocks are framed as a flag byte, the uvarint uncompressed length,
// then the payload. Flag 0 stores the payload raw when lz4 cannot shrink it.
const (
	lz4Raw   byte = 0
	lz4Block byte = 1
)

var errShortLZ4 = errors.New("lz4: truncated block header")

// CompressLZ4 compresses data with lz4 block compression.
func CompressLZ4(data []byte) []byte {
	header := make([]byte, 1+binary.MaxVarintLen64)
	n := binary.PutUvarint(header[1:], uint64(len(data)))
	header = header[:1+n]

	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, dst, nil)
	if err != nil || written == 0 || written >= len(data) {
		header[0] = lz4Raw
		return append(header, data...)
	}
	header[0] = lz4Block
	return append(header, dst[:written]...)
}

// DecompressLZ4 reverses CompressLZ4.
func DecompressLZ4(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, errShortLZ4
	}
	size, n := binary.Uvarint(data[1:])
	if n <= 0 {
		return nil, errShortLZ4
	}
	payload := data[1+n:]
	switch data[0] {
	case lz4Raw:
		if uint64(len(payload)) != size {
			return nil, fmt.Errorf("lz4: raw block is %d bytes, header says %d", len(payload), size)
		}
		return payload, nil
	case lz4Block:
		out := make([]byte, size)
		read, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if uint64(read) != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("lz4: unknown block flag %d", data[0])
	}
}
