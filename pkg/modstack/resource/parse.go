package resource

import (
	"fmt"

	"github.com/jamesainslie/modstack/pkg/modstack/codec"
	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

// minStructuredSize is the smallest payload worth inspecting; anything
// shorter is kept as Binary.
const minStructuredSize = 0x10

// Archive extensions that are never unpacked for merging. Their members
// are addressed only through the archive as a whole.
var opaqueArchiveExts = map[string]bool{
	"arc":   true,
	"sarc":  true,
	"genvb": true,
}

// Parse turns native bytes read for name into a Value. Compressed data
// is decompressed first. Data whose magic is not a known schema is kept
// as Binary rather than rejected.
func Parse(name string, data []byte) (Value, error) {
	raw, err := codec.DecompressIf(data)
	if err != nil {
		return nil, types.NewPathError("parse", name, types.ErrParse, err)
	}
	if types.Stem(name) == "Dummy" || len(raw) < minStructuredSize {
		return Binary(raw), nil
	}

	doc, known, err := DecodeDocument(raw)
	if err != nil {
		return nil, types.NewPathError("parse", name, types.ErrParse, err)
	}
	if known {
		return doc, nil
	}

	if string(raw[:4]) == MagicArchive && !opaqueArchiveExts[types.Ext(name)] {
		a, err := DecodeArchive(raw)
		if err != nil {
			return nil, types.NewPathError("parse", name, types.ErrParse, err)
		}
		return a, nil
	}
	return Binary(raw), nil
}

// Serialize encodes v natively for byte order e, compressing it when
// name marks the resource as compressed. Archives are re-packed from
// the member bytes they carry.
func Serialize(name string, v Value, e types.Endian) ([]byte, error) {
	var raw []byte
	switch v := v.(type) {
	case Binary:
		raw = v
	case Document:
		raw = EncodeDocument(v, e)
	case *Archive:
		if !v.HasData() {
			return nil, types.NewPathError("serialize", name, types.ErrSchemaMismatch,
				fmt.Errorf("archive diff has no member data"))
		}
		raw = EncodeArchive(v.Files(), v.Alignment, e)
	default:
		return nil, types.NewPathError("serialize", name, types.ErrSchemaMismatch, fmt.Errorf("unknown value %T", v))
	}
	return CompressIf(name, raw), nil
}

// CompressIf zstd-compresses data when name marks it as compressed.
func CompressIf(name string, data []byte) []byte {
	if types.IsCompressed(name) {
		return codec.CompressZstd(data)
	}
	return data
}
