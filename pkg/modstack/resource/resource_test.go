package resource_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/modstack/pkg/modstack/codec"
	"github.com/jamesainslie/modstack/pkg/modstack/resource"
	"github.com/jamesainslie/modstack/pkg/modstack/tree"
	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

func actorTable() *resource.TableDoc {
	d := resource.NewTableDoc()
	d.Rows.Set("Enemy_Lizal", tree.NewRecord().Set("hp", tree.Int(40)).Set("instSize", tree.Int(2048)))
	d.Rows.Set("Enemy_Moblin", tree.NewRecord().Set("hp", tree.Int(60)))
	return d
}

func sampleDocs() []resource.Document {
	params := tree.NewList().SetObject(tree.HashName("General"),
		tree.NewObject().Put("Life", tree.Int(100)).Put("Name", tree.String("Lizalfos")))
	return []resource.Document{
		&resource.ParamDoc{Root: params},
		&resource.RecordDoc{Record: tree.NewRecord().Set("name", tree.String("A")).Set("hp", tree.Int(10))},
		actorTable(),
		resource.NewListDoc("Player", "GameROMPlayer", "Obj_Sign"),
		resource.NewFlagDoc("IsGet_Obj_Bow", "Clear_Dungeon000", "IsPlayed_Demo101"),
	}
}

func TestDocumentNativeRoundTrip(t *testing.T) {
	for _, doc := range sampleDocs() {
		for _, e := range []types.Endian{types.Big, types.Little} {
			t.Run(doc.Magic()+"/"+e.String(), func(t *testing.T) {
				data := resource.EncodeDocument(doc, e)
				assert.Equal(t, doc.Magic(), string(data[:4]))

				got, known, err := resource.DecodeDocument(data)
				require.NoError(t, err)
				require.True(t, known)
				assert.True(t, got.Equal(doc))
			})
		}
	}
}

func TestDocumentRoundTripLaw(t *testing.T) {
	base := actorTable()
	other := actorTable()
	other.Rows.Set("Enemy_Lizal", tree.NewRecord().Set("hp", tree.Int(80)).Set("instSize", tree.Int(2048)))
	other.Rows.Set("Enemy_Bokoblin", tree.NewRecord().Set("hp", tree.Int(13)))

	gone := resource.NewTableDoc()
	gone.Rows.Set("Enemy_Lizal", tree.NewRecord().Set("hp", tree.Int(40)).Set("instSize", tree.Int(2048)))

	for _, target := range []*resource.TableDoc{other, gone, base} {
		diff, err := base.DiffDoc(target)
		require.NoError(t, err)
		merged, err := base.MergeDoc(diff)
		require.NoError(t, err)
		assert.True(t, merged.Equal(target))

		_, ok := merged.(*resource.TableDoc).Rows.Entry("Enemy_Moblin")
		if target == gone {
			assert.False(t, ok, "deleted rows leave no tombstone")
		}
	}
}

func TestSchemaMismatch(t *testing.T) {
	docs := sampleDocs()

	_, err := docs[0].MergeDoc(docs[1])
	assert.ErrorIs(t, err, types.ErrSchemaMismatch)

	_, err = resource.Merge(resource.Binary("x"), docs[2])
	assert.ErrorIs(t, err, types.ErrSchemaMismatch)

	_, err = resource.Diff(resource.NewArchive(4), resource.Binary("x"))
	assert.ErrorIs(t, err, types.ErrSchemaMismatch)

	_, err = resource.Merge(nil, resource.Binary("x"))
	assert.ErrorIs(t, err, types.ErrSchemaMismatch)
}

func TestBinaryMergeReplaces(t *testing.T) {
	out, err := resource.Merge(resource.Binary("base"), resource.Binary("mod"))
	require.NoError(t, err)
	assert.Equal(t, resource.Binary("mod"), out)

	d, err := resource.Diff(resource.Binary("base"), resource.Binary("mod"))
	require.NoError(t, err)
	assert.Equal(t, resource.Binary("mod"), d)
}

func TestArchive(t *testing.T) {
	files := []resource.ArchiveFile{
		{Name: "Actor/Physics/Lizal.bphysics", Data: []byte("@@physics-body@@")},
		{Name: "Actor/ActorLink/Lizal.bxml", Data: []byte{1, 2, 3, 4, 5}},
	}

	for _, e := range []types.Endian{types.Big, types.Little} {
		t.Run(e.String(), func(t *testing.T) {
			data := resource.EncodeArchive(files, 16, e)

			a, err := resource.DecodeArchive(data)
			require.NoError(t, err)
			assert.Equal(t, uint32(16), a.Alignment)
			assert.ElementsMatch(t, []string{"Actor/Physics/Lizal.bphysics", "Actor/ActorLink/Lizal.bxml"}, a.Names())

			for _, f := range files {
				body, ok := a.MemberData(f.Name)
				require.True(t, ok)
				assert.Equal(t, f.Data, body)
				assert.Zero(t, bytes.Index(data, body)%16, "member data is aligned")
			}

			again := resource.EncodeArchive(a.Files(), a.Alignment, e)
			assert.Equal(t, data, again, "encoding is independent of input order")
		})
	}

	t.Run("membership diff", func(t *testing.T) {
		base, err := resource.DecodeArchive(resource.EncodeArchive([]resource.ArchiveFile{
			{Name: "x", Data: []byte("1")}, {Name: "y", Data: []byte("2")},
		}, 4, types.Big))
		require.NoError(t, err)

		diff := resource.NewArchive(4)
		diff.Members.Add("z")
		diff.Members.Delete("y")

		merged := base.Merge(diff)
		assert.ElementsMatch(t, []string{"x", "z"}, merged.Names())
		_, ok := merged.MemberData("y")
		assert.False(t, ok)
		_, ok = merged.MemberData("x")
		assert.True(t, ok)
	})

	t.Run("truncated", func(t *testing.T) {
		data := resource.EncodeArchive(files, 4, types.Big)
		_, err := resource.DecodeArchive(data[:len(data)-2])
		assert.Error(t, err)
	})
}

func TestParse(t *testing.T) {
	table := resource.EncodeDocument(actorTable(), types.Big)
	archive := resource.EncodeArchive([]resource.ArchiveFile{{Name: "a.bxml", Data: bytes.Repeat([]byte{7}, 32)}}, 4, types.Little)
	opaque := bytes.Repeat([]byte{0xAB}, 64)

	tests := []struct {
		name string
		path string
		data []byte
		want string
	}{
		{name: "document", path: "Actor/ActorInfo.product.byml", data: table, want: resource.MagicTable},
		{name: "compressed document", path: "Actor/ActorInfo.product.sbyml", data: codec.CompressZstd(table), want: resource.MagicTable},
		{name: "archive", path: "Actor/Pack/Lizal.bactorpack", data: archive, want: "archive"},
		{name: "opaque archive extension", path: "Layout/Common.sarc", data: archive, want: "binary"},
		{name: "unknown bytes", path: "Model/Lizal.bfres", data: opaque, want: "binary"},
		{name: "dummy stem", path: "Actor/Dummy.byml", data: table, want: "binary"},
		{name: "too short", path: "Actor/x.byml", data: []byte("FREC"), want: "binary"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := resource.Parse(tt.path, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resource.KindName(v))
		})
	}

	t.Run("malformed document", func(t *testing.T) {
		_, err := resource.Parse("Actor/x.byml", table[:len(table)-1])
		assert.ErrorIs(t, err, types.ErrParse)
		path, ok := types.ErrorPath(err)
		require.True(t, ok)
		assert.Equal(t, "Actor/x.byml", path)
	})

	t.Run("bad compression", func(t *testing.T) {
		_, err := resource.Parse("Actor/x.sbyml", append([]byte{0x28, 0xB5, 0x2F, 0xFD}, opaque...))
		assert.ErrorIs(t, err, types.ErrParse)
	})
}

func TestSerialize(t *testing.T) {
	doc := actorTable()

	data, err := resource.Serialize("Actor/ActorInfo.product.sbyml", doc, types.Little)
	require.NoError(t, err)
	assert.True(t, codec.IsZstd(data))

	v, err := resource.Parse("Actor/ActorInfo.product.sbyml", data)
	require.NoError(t, err)
	assert.True(t, resource.Equal(doc, v))

	raw, err := resource.Serialize("Actor/ActorInfo.product.byml", doc, types.Little)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xFEFF), binary.LittleEndian.Uint16(raw[4:6]))

	_, err = resource.Serialize("Pack/x.pack", resource.NewArchive(4), types.Big)
	assert.ErrorIs(t, err, types.ErrSchemaMismatch)
}

func TestMarshalValue(t *testing.T) {
	record := tree.NewRecord().Set("hp", tree.Int(12)).Set("shield", tree.Null)
	table := resource.NewTableDoc()
	table.Rows.Set("a", record)
	table.Rows.SetDeleted("b", tree.NewRecord())

	arc := resource.NewArchive(8)
	arc.Members.Add("x")
	arc.Members.Delete("y")

	values := []resource.Value{
		resource.Binary{0, 1, 2},
		&resource.RecordDoc{Record: record},
		table,
		arc,
	}
	for _, d := range sampleDocs() {
		values = append(values, d)
	}

	for _, v := range values {
		t.Run(resource.KindName(v), func(t *testing.T) {
			data, err := resource.MarshalValue(v)
			require.NoError(t, err)
			got, err := resource.UnmarshalValue(data)
			require.NoError(t, err)
			assert.True(t, resource.Equal(v, got))
		})
	}

	_, err := resource.UnmarshalValue([]byte{0x82, 0x63, 'b', 'a', 'd', 0xf6})
	assert.Error(t, err)
}
