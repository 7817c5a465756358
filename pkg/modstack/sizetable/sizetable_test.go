package sizetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

func TestApplyNeverShrinks(t *testing.T) {
	tbl := New()
	for _, size := range []uint32{10, 7, 15} {
		tbl.Apply([]Candidate{{Path: "Actor/Pack/Enemy.bactorpack", Size: size}})
	}
	got, ok := tbl.Get("Actor/Pack/Enemy.bactorpack")
	require.True(t, ok)
	assert.Equal(t, uint32(15), got)

	assert.Equal(t, 0, tbl.Apply([]Candidate{{Path: "Actor/Pack/Enemy.bactorpack", Size: 3}}))
	assert.Equal(t, 1, tbl.Apply([]Candidate{{Path: "Actor/Pack/Other.bactorpack", Size: 3}}))
}

func TestExcluded(t *testing.T) {
	tbl := New()
	changed := tbl.Apply([]Candidate{
		{Path: "Pack/Title.pack", Size: 100},
		{Path: "System/Version.txt", Size: 100},
		{Path: "Message/Msg_USen.product.msbt", Size: 100},
		{Path: "Actor/x.frec", Size: 100},
	})
	assert.Equal(t, 1, changed)
	assert.Equal(t, 1, tbl.Len())
	assert.True(t, Excluded("Sound/Resource/Stream/x.BFSTM"))
	assert.False(t, Excluded("Actor/x.frec"))
}

func TestRemove(t *testing.T) {
	tbl := New()
	tbl.Set("a", 1)
	tbl.SetNamed("b", 2)

	assert.True(t, tbl.Remove("a"))
	assert.True(t, tbl.Remove("b"))
	assert.False(t, tbl.Remove("a"), "removed entries are gone, not zeroed")
	_, ok := tbl.Get("a")
	assert.False(t, ok)
	assert.Zero(t, tbl.Len())
}

func TestNamedEntriesTakePrecedence(t *testing.T) {
	tbl := New()
	tbl.SetNamed("Map/x.mubin", 40)
	tbl.Set("Map/x.mubin", 50)

	got, _ := tbl.Get("Map/x.mubin")
	assert.Equal(t, uint32(50), got)
	assert.Equal(t, 1, tbl.Len(), "Set updates the named entry in place")
}

func TestEncodeDecode(t *testing.T) {
	tbl := New()
	tbl.Set("Actor/x.frec", 1024)
	tbl.Set("Actor/y.frec", 2048)
	tbl.SetNamed("Map/x.mubin", 4096)

	for _, e := range []types.Endian{types.Big, types.Little} {
		t.Run(e.String(), func(t *testing.T) {
			data := tbl.Encode(e)
			assert.Equal(t, Magic, string(data[:4]))

			got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tbl, got)
			assert.Equal(t, data, got.Encode(e), "encoding is deterministic")
		})
	}

	t.Run("truncated", func(t *testing.T) {
		data := tbl.Encode(types.Big)
		_, err := Decode(data[:len(data)-3])
		assert.Error(t, err)
	})

	t.Run("wrong magic", func(t *testing.T) {
		_, err := Decode([]byte("PACK\xfe\xff\x00\x01\x00\x00\x00\x00\x00\x00\x00\x00"))
		assert.Error(t, err)
	})
}

func TestClone(t *testing.T) {
	tbl := New()
	tbl.Set("a", 1)
	c := tbl.Clone()
	c.Set("a", 2)
	got, _ := tbl.Get("a")
	assert.Equal(t, uint32(1), got)
}
