package layer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/modstack/pkg/modstack/codec"
	"github.com/jamesainslie/modstack/pkg/modstack/resource"
	"github.com/jamesainslie/modstack/pkg/modstack/store"
	"github.com/jamesainslie/modstack/pkg/modstack/tree"
	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func record(kv ...any) *resource.RecordDoc {
	r := tree.NewRecord()
	for i := 0; i < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1].(tree.Value))
	}
	return &resource.RecordDoc{Record: r}
}

func doc(d resource.Document) []byte { return resource.EncodeDocument(d, types.Big) }

var opaque = []byte("sixteen+ bytes of sound data")

// writeTree lays out a wiiu deployment-shaped tree below root.
func writeTree(t *testing.T, root string, files map[string][]byte) {
	t.Helper()
	for name, data := range files {
		writeFile(t, filepath.Join(root, filepath.FromSlash(name)), data)
	}
}

func baseFiles() map[string][]byte {
	title := resource.EncodeArchive([]resource.ArchiveFile{
		{Name: "Actor/x.frec", Data: doc(record("v", tree.Int(1)))},
		{Name: "Actor/y.bin", Data: []byte("member y payload bytes")},
	}, 4, types.Big)
	return map[string][]byte{
		"content/Actor/ActorInfo.product.sfrec": codec.CompressZstd(doc(record(
			"name", tree.String("A"), "hp", tree.Int(10), "shield", tree.Bool(true)))),
		"content/Pack/Title.pack": title,
		"content/Sound/a.bin":     opaque,
	}
}

func modFiles() map[string][]byte {
	title := resource.EncodeArchive([]resource.ArchiveFile{
		{Name: "Actor/x.frec", Data: doc(record("v", tree.Int(2)))},
		{Name: "Actor/z.bin", Data: []byte("member z, new in the mod")},
	}, 4, types.Big)
	return map[string][]byte{
		"content/Actor/ActorInfo.product.sfrec": codec.CompressZstd(doc(record(
			"name", tree.String("A"), "hp", tree.Int(12)))),
		"content/Pack/Title.pack": title,
		"content/Sound/a.bin":     opaque,
		"content/Actor/New.bin":   []byte("a resource the base lacks"),
	}
}

func baseStore(t *testing.T) *store.Store {
	t.Helper()
	dump := t.TempDir()
	writeTree(t, dump, baseFiles())
	src := store.NewDirSource(filepath.Join(dump, "content"), "", "", types.Big)
	return store.New(src, store.Options{Endian: types.Big})
}

func TestEntryPathRoundTrip(t *testing.T) {
	tests := []struct {
		parts []string
		file  string
		key   string
	}{
		{[]string{"Actor/Pack/Enemy.sbactorpack"}, "content/Actor/Pack/Enemy.sbactorpack", "Actor/Pack/Enemy.bactorpack"},
		{[]string{"Aoc/0010/Map/A-1.smubin"}, "aoc/Map/A-1.smubin", "Aoc/0010/Map/A-1.mubin"},
		{[]string{"Pack/Title.pack", "Actor/Pack/P.sbactorpack", "Actor/Physics/P.bphysics"},
			"content/Pack/Title.pack.d/Actor/Pack/P.sbactorpack.d/Actor/Physics/P.bphysics",
			"Pack/Title.pack//Actor/Pack/P.sbactorpack//Actor/Physics/P.bphysics"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			assert.Equal(t, tt.file, entryPath(tt.parts))
			name, key, ok := entryKey(tt.file, types.Big)
			require.True(t, ok)
			assert.Equal(t, tt.parts[0], name)
			assert.Equal(t, tt.key, key)
		})
	}

	_, _, ok := entryKey("meta.yml", types.Big)
	assert.False(t, ok)
}

func TestMetaChecks(t *testing.T) {
	m := Meta{Name: "m", API: "1.0.3", Platform: "wiiu", Groups: []OptionGroup{
		{Name: "Difficulty", Required: true, Options: []string{"easy", "hard"}},
		{Name: "Extras", Options: []string{"music"}},
	}}

	assert.NoError(t, m.CheckAPI())
	assert.ErrorIs(t, Meta{API: "v2.0.0"}.CheckAPI(), ErrIncompatible)
	assert.ErrorIs(t, Meta{API: "v1.1.0"}.CheckAPI(), ErrIncompatible)
	assert.ErrorIs(t, Meta{API: "latest"}.CheckAPI(), ErrIncompatible)

	assert.NoError(t, m.CheckPlatform(types.Big))
	assert.ErrorIs(t, m.CheckPlatform(types.Little), ErrPlatformMismatch)
	assert.NoError(t, Meta{}.CheckPlatform(types.Little))

	assert.NoError(t, m.CheckOptions([]string{"hard", "music"}))
	assert.ErrorIs(t, m.CheckOptions([]string{"music"}), ErrOptionRequired)
	assert.ErrorIs(t, m.CheckOptions([]string{"easy", "nightmare"}), ErrUnknownOption)
}

func TestPackAndOpen(t *testing.T) {
	ctx := context.Background()
	base := baseStore(t)

	modDir := t.TempDir()
	writeTree(t, modDir, modFiles())

	pkg := filepath.Join(t.TempDir(), "mod.zip")
	w, err := Create(pkg, Meta{Name: "Harder Lizalfos", Version: "1.2.0"}, types.Big)
	require.NoError(t, err)
	stats, err := Pack(ctx, base, modDir, w, PackOptions{Endian: types.Big})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, PackStats{Changed: 2, Added: 1, Unchanged: 1}, stats)

	l, err := Open(pkg, OpenOptions{Index: 3, Endian: types.Big})
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, "Harder Lizalfos", l.Name())
	assert.Equal(t, 3, l.Index)
	assert.Equal(t, []string{"Actor/ActorInfo.product.frec", "Actor/New.bin", "Pack/Title.pack"}, l.Manifest().Paths())

	name, ok := l.StoredName("Actor/ActorInfo.product.frec")
	require.True(t, ok)
	assert.Equal(t, "Actor/ActorInfo.product.sfrec", name)

	providers := l.Providers()
	require.Len(t, providers, 1)
	main := providers[0]

	t.Run("record diff", func(t *testing.T) {
		v, ok, err := main.Get("Actor/ActorInfo.product.frec")
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, resource.Equal(record("hp", tree.Int(12), "shield", tree.Null), v))
	})

	t.Run("archive membership", func(t *testing.T) {
		v, ok, err := main.Get("Pack/Title.pack")
		require.NoError(t, err)
		require.True(t, ok)
		a := v.(*resource.Archive)
		assert.True(t, a.Members.IsDeleted("Actor/y.bin"))
		assert.True(t, a.Members.Contains("Actor/z.bin"))
		assert.False(t, a.Members.Contains("Actor/x.frec"))
	})

	t.Run("changed member", func(t *testing.T) {
		v, ok, err := main.Get("Pack/Title.pack//Actor/x.frec")
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, resource.Equal(record("v", tree.Int(2)), v))
	})

	t.Run("added member and file are whole", func(t *testing.T) {
		v, ok, err := main.Get("Pack/Title.pack//Actor/z.bin")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, resource.Binary("member z, new in the mod"), v)

		v, ok, err = main.Get("Actor/New.bin")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, resource.Binary("a resource the base lacks"), v)
	})

	t.Run("untouched", func(t *testing.T) {
		_, ok, err := main.Get("Sound/a.bin")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestOptions(t *testing.T) {
	pkg := filepath.Join(t.TempDir(), "opts.zip")
	meta := Meta{Name: "opts", Groups: []OptionGroup{{Name: "Extras", Options: []string{"b", "a"}}}}
	w, err := Create(pkg, meta, types.Little)
	require.NoError(t, err)
	require.NoError(t, w.Put("", []string{"Actor/x.frec"}, record("v", tree.Int(1))))
	require.NoError(t, w.Put("a", []string{"Actor/x.frec"}, record("v", tree.Int(2))))
	require.NoError(t, w.Put("b", []string{"Aoc/0010/y.frec"}, record("w", tree.Int(3))))
	assert.ErrorIs(t, w.Put("c", []string{"z"}, resource.Binary("z")), ErrUnknownOption)
	assert.Error(t, w.Put("", []string{"Actor/x.frec"}, resource.Binary("dup")))
	require.NoError(t, w.Close())

	l, err := Open(pkg, OpenOptions{Endian: types.Little, Options: []string{"a", "b"}})
	require.NoError(t, err)
	defer l.Close()

	var names []string
	for _, p := range l.Providers() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"opts", "opts/b", "opts/a"}, names, "options follow declaration order")
	assert.Equal(t, []string{"Actor/x.frec", "Aoc/0010/y.frec"}, l.Union().Paths())

	_, err = Open(pkg, OpenOptions{Endian: types.Big})
	assert.ErrorIs(t, err, ErrPlatformMismatch)
}

func TestOpenDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, MetaFile), []byte("api: v1.0.0\n"))
	body, err := resource.MarshalValue(resource.Binary("loose layer value"))
	require.NoError(t, err)
	writeFile(t, filepath.Join(dir, "content", "Sound", "a.bin"), codec.CompressZstd(body))

	l, err := Open(dir, OpenOptions{Endian: types.Big})
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(dir), l.Name())
	assert.Equal(t, []string{"Sound/a.bin"}, l.Manifest().Paths(), "manifest derived from files")

	v, ok, err := l.Providers()[0].Get("Sound/a.bin")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, resource.Binary("loose layer value"), v)
	assert.NoError(t, l.Close())
}
