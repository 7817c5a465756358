package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		endian Endian
		want   string
	}{
		{name: "wiiu content root", input: "content/Actor/Pack/Enemy.sbactorpack", endian: Big, want: "Actor/Pack/Enemy.bactorpack"},
		{name: "wiiu aoc root", input: "aoc/0010/Map/MainField/A-1.smubin", endian: Big, want: "Aoc/0010/Map/MainField/A-1.mubin"},
		{name: "windows separators", input: `content\System\Version.txt`, endian: Big, want: "System/Version.txt"},
		{name: "switch base root", input: "01007EF00011E000/romfs/Pack/Dungeon000.pack", endian: Little, want: "Pack/Dungeon000.pack"},
		{name: "switch dlc root", input: "01007EF00011F001/romfs/Pack/AocMainField.pack", endian: Little, want: "Aoc/0010/Pack/AocMainField.pack"},
		{name: "atmosphere root", input: "atmosphere/contents/01007EF00011E000/romfs/Actor/x.byml", endian: Little, want: "Actor/x.byml"},
		{name: "already canonical", input: "Actor/ActorInfo.product.sbyml", endian: Big, want: "Actor/ActorInfo.product.byml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Canonicalize(tt.input, tt.endian))
		})
	}
}

func TestIsCompressed(t *testing.T) {
	assert.True(t, IsCompressed("Actor/Pack/Enemy.sbactorpack"))
	assert.True(t, IsCompressed("System/Resource/ResourceSizeTable.product.srsizetable"))
	assert.False(t, IsCompressed("Pack/Dungeon000.pack"))
	assert.False(t, IsCompressed("Layout/Common.sarc"))
	assert.False(t, IsCompressed("Sound/x.s"))
}

func TestStemAndExt(t *testing.T) {
	assert.Equal(t, "ActorInfo", Stem("Actor/ActorInfo.product.byml"))
	assert.Equal(t, "byml", Ext("Actor/ActorInfo.product.byml"))
	assert.Equal(t, "", Ext("Makefile"))
}

func TestNestedPath(t *testing.T) {
	p := ParseNestedPath("Pack/Title.pack//Actor/Pack/Player.bactorpack//Actor/Physics/Player.bphysics")
	assert.Equal(t, 2, p.Depth())
	assert.Equal(t, "Actor/Physics/Player.bphysics", p.Leaf())

	parent, ok := p.Parent()
	require.True(t, ok)
	assert.Equal(t, "Pack/Title.pack//Actor/Pack/Player.bactorpack", parent.String())

	root := ParseNestedPath("Pack/Title.pack")
	_, ok = root.Parent()
	assert.False(t, ok)
	assert.Equal(t, "Pack/Title.pack//Actor/x.bxml", root.Nest("Actor/x.bxml").String())
	assert.Equal(t, "Pack/Title.pack", root.String(), "Nest must not alias the receiver")
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "content/Actor/Pack/Enemy.sbactorpack", OutputPath("Actor/Pack/Enemy.sbactorpack", Big))
	assert.Equal(t, "aoc/0010/Map/A-1.smubin", OutputPath("Aoc/0010/Map/A-1.smubin", Big))
	assert.Equal(t, "01007EF00011F001/romfs/Pack/AocMainField.pack", OutputPath("Aoc/0010/Pack/AocMainField.pack", Little))
	assert.Equal(t, "01007EF00011E000/romfs/"+SizeTablePath, OutputPath(SizeTablePath, Little))
}

func TestParseEndian(t *testing.T) {
	e, err := ParseEndian("Switch")
	require.NoError(t, err)
	assert.Equal(t, Little, e)

	e, err = ParseEndian("wiiu")
	require.NoError(t, err)
	assert.Equal(t, Big, e)

	_, err = ParseEndian("ps5")
	assert.Error(t, err)
}

func TestPathError(t *testing.T) {
	cause := errors.New("unexpected EOF")
	inner := NewPathError("parse", "Actor/x.bxml", ErrParse, cause)
	outer := NewPathError("merge", "Pack/Title.pack", ErrParse, fmt.Errorf("member: %w", inner))

	assert.ErrorIs(t, outer, ErrParse)
	assert.ErrorIs(t, outer, cause)
	assert.NotErrorIs(t, outer, ErrNotFound)
	assert.Equal(t, "parse Actor/x.bxml: parse error: unexpected EOF", inner.Error())

	path, ok := ErrorPath(outer)
	require.True(t, ok)
	assert.Equal(t, "Actor/x.bxml", path)

	pe, ok := InnermostPathError(outer)
	require.True(t, ok)
	assert.Same(t, inner, pe)
	_, ok = InnermostPathError(errors.New("plain"))
	assert.False(t, ok)

	bare := NewPathError("resolve", "x", ErrNotFound, nil)
	assert.ErrorIs(t, bare, ErrNotFound)
	assert.Equal(t, "resolve x: resource not found", bare.Error())
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{input: "512", want: 512},
		{input: "100K", want: 100 * KiB},
		{input: "10MiB", want: 10 * MiB},
		{input: "1.5G", want: GiB + GiB/2},
		{input: "lots", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSize)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0 B", FormatSize(0))
	assert.Equal(t, "1.0 KiB", FormatSize(1024))
	assert.Equal(t, "0 B", FormatSize(-5))
}
