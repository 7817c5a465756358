package unpack

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/modstack/pkg/modstack/codec"
	"github.com/jamesainslie/modstack/pkg/modstack/layer"
	"github.com/jamesainslie/modstack/pkg/modstack/manifest"
	"github.com/jamesainslie/modstack/pkg/modstack/resource"
	"github.com/jamesainslie/modstack/pkg/modstack/runlock"
	"github.com/jamesainslie/modstack/pkg/modstack/sizetable"
	"github.com/jamesainslie/modstack/pkg/modstack/store"
	"github.com/jamesainslie/modstack/pkg/modstack/tree"
	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

const (
	infoName  = "Actor/ActorInfo.product.sfrec"
	infoCanon = "Actor/ActorInfo.product.frec"
	titlePack = "Pack/Title.pack"
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

func encode(d resource.Document) []byte { return resource.EncodeDocument(d, types.Big) }

func opaque(s string) resource.Binary { return resource.Binary("opaque payload: " + s) }

// baseDump lays out a big-endian dump and returns a store over it:
//
//	Actor/ActorInfo.product.sfrec   {name:A, hp:10, shield:true}
//	Pack/Title.pack                 {Actor/x.frec: {v:1}, Actor/y.bin}
//	Sound/A.bin, Sound/Extra/B.bin, Sound/C.bin
//	System/Resource/ResourceSizeTable.product.srsizetable
func baseDump(t *testing.T) *store.Store {
	t.Helper()
	content := filepath.Join(t.TempDir(), "content")

	writeFile(t, filepath.Join(content, infoName), codec.CompressZstd(encode(
		record("name", tree.String("A"), "hp", tree.Int(10), "shield", tree.Bool(true)))))

	writeFile(t, filepath.Join(content, titlePack), resource.EncodeArchive([]resource.ArchiveFile{
		{Name: "Actor/x.frec", Data: encode(record("v", tree.Int(1)))},
		{Name: "Actor/y.bin", Data: opaque("y")},
	}, 4, types.Big))

	for _, name := range []string{"Sound/A.bin", "Sound/Extra/B.bin", "Sound/C.bin"} {
		writeFile(t, filepath.Join(content, filepath.FromSlash(name)), opaque(name))
	}

	tbl := sizetable.New()
	tbl.Set(infoCanon, 1<<20)
	tbl.Set("Sound/A.bin", 4)
	writeFile(t, filepath.Join(content, filepath.FromSlash(types.SizeTablePath)),
		codec.CompressZstd(tbl.Encode(types.Big)))

	return store.New(store.NewDirSource(content, "", "", types.Big), store.Options{Endian: types.Big})
}

type entry struct {
	parts []string
	value resource.Value
}

// writeLayer packages entries as a layer and returns its path.
func writeLayer(t *testing.T, name string, entries ...entry) string {
	t.Helper()
	pkg := filepath.Join(t.TempDir(), name+".zip")
	w, err := layer.Create(pkg, layer.Meta{Name: name, Version: "1.0.0"}, types.Big)
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, w.Put("", e.parts, e.value))
	}
	require.NoError(t, w.Close())
	return pkg
}

func apply(t *testing.T, base *store.Store, out string, opts Options, layers ...string) (*Report, error) {
	t.Helper()
	var refs []LayerRef
	for _, l := range layers {
		refs = append(refs, LayerRef{Path: l})
	}
	u := New(base,
		Target{Dir: out, Order: types.Big, Transfer: "copy"},
		Profile{Target: types.Big, Stack: refs},
		opts)
	return u.Run(context.Background())
}

func readOutput(t *testing.T, out, name string) resource.Value {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(out, filepath.FromSlash(types.OutputPath(name, types.Big))))
	require.NoError(t, err)
	v, err := resource.Parse(name, data)
	require.NoError(t, err)
	return v
}

func readSizeTable(t *testing.T, out string) *sizetable.Table {
	t.Helper()
	v := readOutput(t, out, types.SizeTablePath)
	tbl, err := sizetable.Decode(v.(resource.Binary))
	require.NoError(t, err)
	return tbl
}

func TestRecordScenario(t *testing.T) {
	base := baseDump(t)
	out := t.TempDir()
	mod := writeLayer(t, "tougher", entry{[]string{infoName}, record("hp", tree.Int(12), "shield", tree.Null)})

	report, err := apply(t, base, out, Options{}, mod)
	require.NoError(t, err)

	got := readOutput(t, out, infoName)
	assert.True(t, resource.Equal(record("name", tree.String("A"), "hp", tree.Int(12)), got),
		"shield is removed and hp replaced")

	require.Len(t, report.Files, 1)
	f := report.Files[0]
	assert.Equal(t, infoCanon, f.Path)
	assert.Equal(t, infoName, f.Name)
	assert.Equal(t, resource.MagicRecord, f.Kind)
	assert.Equal(t, 1, f.Providers)
	assert.False(t, f.Added)

	deployed, err := manifest.Load(filepath.Join(out, manifest.DeployFile))
	require.NoError(t, err)
	assert.Equal(t, []string{infoCanon}, deployed.Paths())
	assert.Equal(t, infoName, deployed.Name(infoCanon))
}

func TestFoldOrder(t *testing.T) {
	base := baseDump(t)
	out := t.TempDir()
	first := writeLayer(t, "first", entry{[]string{infoName}, record("hp", tree.Int(12), "speed", tree.Int(3))})
	second := writeLayer(t, "second", entry{[]string{infoName}, record("hp", tree.Int(15), "armor", tree.Int(7))})

	report, err := apply(t, base, out, Options{}, first, second)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, report.Layers)
	assert.Equal(t, 2, report.Files[0].Providers)

	want := record("name", tree.String("A"), "hp", tree.Int(15), "shield", tree.Bool(true),
		"speed", tree.Int(3), "armor", tree.Int(7))
	assert.True(t, resource.Equal(want, readOutput(t, out, infoName)), "later layer wins; disjoint keys are unioned")
}

func TestArchiveRecursion(t *testing.T) {
	base := baseDump(t)
	out := t.TempDir()

	membership := resource.NewArchive(4)
	membership.Members.Delete("Actor/y.bin")
	mod := writeLayer(t, "archive",
		entry{[]string{titlePack}, membership},
		entry{[]string{titlePack, "Actor/x.frec"}, record("v", tree.Int(2))},
	)

	report, err := apply(t, base, out, Options{}, mod)
	require.NoError(t, err)
	assert.Equal(t, "archive", report.Files[0].Kind)

	a, ok := readOutput(t, out, titlePack).(*resource.Archive)
	require.True(t, ok)
	assert.Equal(t, []string{"Actor/x.frec"}, a.Names())

	data, ok := a.MemberData("Actor/x.frec")
	require.True(t, ok)
	x, err := resource.Parse("Actor/x.frec", data)
	require.NoError(t, err)
	assert.True(t, resource.Equal(record("v", tree.Int(2)), x))
}

func TestArchiveAddedMember(t *testing.T) {
	base := baseDump(t)
	out := t.TempDir()

	membership := resource.NewArchive(4)
	membership.Members.Add("Actor/z.sfrec")
	mod := writeLayer(t, "adds-member",
		entry{[]string{titlePack}, membership},
		entry{[]string{titlePack, "Actor/z.sfrec"}, resource.Binary(encode(record("z", tree.Int(1))))},
	)
	tweak := writeLayer(t, "tweaks-member",
		entry{[]string{titlePack, "Actor/z.sfrec"}, record("z", tree.Int(5))},
	)

	_, err := apply(t, base, out, Options{}, mod, tweak)
	require.NoError(t, err)

	a := readOutput(t, out, titlePack).(*resource.Archive)
	assert.ElementsMatch(t, []string{"Actor/x.frec", "Actor/y.bin", "Actor/z.sfrec"}, a.Names())

	data, _ := a.MemberData("Actor/z.sfrec")
	assert.True(t, codec.IsZstd(data), "compressed member names are recompressed")
	z, err := resource.Parse("Actor/z.sfrec", data)
	require.NoError(t, err)
	assert.True(t, resource.Equal(record("z", tree.Int(5)), z))

	y, _ := a.MemberData("Actor/y.bin")
	assert.Equal(t, []byte(opaque("y")), y, "untouched members are copied verbatim")
}

func TestBinaryLastLayerWins(t *testing.T) {
	base := baseDump(t)
	out := t.TempDir()
	first := writeLayer(t, "first", entry{[]string{"Sound/A.bin"}, opaque("first")})
	second := writeLayer(t, "second", entry{[]string{"Sound/A.bin"}, opaque("second")})

	_, err := apply(t, base, out, Options{}, first, second)
	require.NoError(t, err)
	assert.Equal(t, opaque("second"), readOutput(t, out, "Sound/A.bin"))
}

func TestAddedResource(t *testing.T) {
	base := baseDump(t)
	out := t.TempDir()
	added := resource.Binary(encode(record("new", tree.Bool(true))))
	first := writeLayer(t, "adds", entry{[]string{"Actor/New.sfrec"}, added})
	second := writeLayer(t, "edits", entry{[]string{"Actor/New.sfrec"}, record("extra", tree.Int(1))})

	report, err := apply(t, base, out, Options{}, first, second)
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.True(t, report.Files[0].Added)
	assert.Equal(t, 1, report.Added())

	got := readOutput(t, out, "Actor/New.sfrec")
	assert.True(t, resource.Equal(record("new", tree.Bool(true), "extra", tree.Int(1)), got))

	size, ok := readSizeTable(t, out).Get("Actor/New.frec")
	require.True(t, ok)
	assert.Equal(t, uint32(report.Files[0].RawSize), size)
}

func TestSizeTableNeverShrinks(t *testing.T) {
	base := baseDump(t)
	out := t.TempDir()
	mod := writeLayer(t, "grows",
		entry{[]string{infoName}, record("hp", tree.Int(12))},
		entry{[]string{"Sound/A.bin"}, opaque("a longer replacement than before")},
	)

	report, err := apply(t, base, out, Options{}, mod)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SizeTable.Updated, "only the grown entry changes")

	tbl := readSizeTable(t, out)
	size, _ := tbl.Get(infoCanon)
	assert.Equal(t, uint32(1<<20), size, "a recorded size is never reduced")
	size, _ = tbl.Get("Sound/A.bin")
	assert.Equal(t, uint32(len(opaque("a longer replacement than before"))), size)
}

func TestSizeTableRecordsMergedMembers(t *testing.T) {
	base := baseDump(t)
	out := t.TempDir()
	mod := writeLayer(t, "grows-member",
		entry{[]string{titlePack, "Actor/x.frec"}, record("v", tree.Int(2), "extra", tree.String("grown"))},
	)

	report, err := apply(t, base, out, Options{}, mod)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SizeTable.Updated, "the archive itself is excluded")

	tbl := readSizeTable(t, out)
	size, ok := tbl.Get("Actor/x.frec")
	require.True(t, ok, "a merged member gets an entry")
	assert.Equal(t, uint32(len(encode(record("v", tree.Int(2), "extra", tree.String("grown"))))), size)

	_, ok = tbl.Get("Actor/y.bin")
	assert.False(t, ok, "untouched members are not recorded")
}

func TestOrphanRemoval(t *testing.T) {
	base := baseDump(t)
	out := t.TempDir()
	all := writeLayer(t, "all",
		entry{[]string{"Sound/A.bin"}, opaque("a'")},
		entry{[]string{"Sound/Extra/B.bin"}, opaque("b'")},
		entry{[]string{"Sound/C.bin"}, opaque("c'")},
		entry{[]string{"Actor/Orphan.bin"}, opaque("added")},
	)
	_, err := apply(t, base, out, Options{}, all)
	require.NoError(t, err)
	orphanFile := filepath.Join(out, "content", "Sound", "Extra", "B.bin")
	require.FileExists(t, orphanFile)
	_, ok := readSizeTable(t, out).Get("Actor/Orphan.bin")
	require.True(t, ok)

	fewer := writeLayer(t, "fewer",
		entry{[]string{"Sound/A.bin"}, opaque("a'")},
		entry{[]string{"Sound/C.bin"}, opaque("c'")},
	)
	report, err := apply(t, base, out, Options{}, fewer)
	require.NoError(t, err)

	assert.Equal(t, []string{"Actor/Orphan.bin", "Sound/Extra/B.bin"}, report.Removed)
	assert.NoFileExists(t, orphanFile)
	assert.NoDirExists(t, filepath.Join(out, "content", "Sound", "Extra"), "empty directories are pruned")
	assert.FileExists(t, filepath.Join(out, "content", "Sound", "A.bin"))

	deployed, err := manifest.Load(filepath.Join(out, manifest.DeployFile))
	require.NoError(t, err)
	assert.Equal(t, []string{"Sound/A.bin", "Sound/C.bin"}, deployed.Paths())

	_, ok = readSizeTable(t, out).Get("Actor/Orphan.bin")
	assert.False(t, ok, "entries of removed resources are deleted")
	assert.Equal(t, 2, report.SizeTable.Removed, "orphans without a base entry lose theirs")
}

func TestFailFast(t *testing.T) {
	tests := []struct {
		name  string
		entry entry
		kind  error
		path  string
	}{
		{
			name:  "schema mismatch",
			entry: entry{[]string{"Sound/A.bin"}, record("v", tree.Int(1))},
			kind:  types.ErrSchemaMismatch,
			path:  "Sound/A.bin",
		},
		{
			name:  "diff without base",
			entry: entry{[]string{"Actor/Missing.frec"}, record("v", tree.Int(1))},
			kind:  types.ErrNotFound,
			path:  "Actor/Missing.frec",
		},
		{
			name:  "member diff on opaque member",
			entry: entry{[]string{titlePack, "Actor/y.bin"}, record("v", tree.Int(1))},
			kind:  types.ErrSchemaMismatch,
			path:  titlePack + "//Actor/y.bin",
		},
		{
			name:  "entry nested below the archive depth cap",
			entry: entry{[]string{titlePack, "A.pack", "B.pack", "c.bin"}, opaque("deep")},
			kind:  types.ErrDepthExceeded,
			path:  titlePack + "//A.pack//B.pack//c.bin",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := baseDump(t)
			out := t.TempDir()
			mod := writeLayer(t, "broken", tt.entry)

			_, err := apply(t, base, out, Options{}, mod)
			require.ErrorIs(t, err, tt.kind)
			path, ok := types.ErrorPath(err)
			require.True(t, ok)
			assert.Equal(t, tt.path, path)
			assert.NoFileExists(t, filepath.Join(out, manifest.DeployFile), "a failed run records no deployment")
		})
	}
}

func TestLayerOpenFailure(t *testing.T) {
	base := baseDump(t)
	_, err := apply(t, base, t.TempDir(), Options{}, filepath.Join(t.TempDir(), "missing.zip"))
	assert.Error(t, err)
}

func TestPendingRun(t *testing.T) {
	base := baseDump(t)
	out := t.TempDir()
	mod := writeLayer(t, "mod",
		entry{[]string{infoName}, record("hp", tree.Int(12))},
		entry{[]string{"Sound/A.bin"}, opaque("a'")},
	)
	_, err := apply(t, base, out, Options{}, mod)
	require.NoError(t, err)

	pending := &manifest.Pending{}
	pending.Change("Sound/A.bin")
	require.NoError(t, pending.Save(out))

	report, err := apply(t, base, out, Options{Pending: true}, mod)
	require.NoError(t, err)
	assert.Equal(t, ModePending, report.Mode)
	require.Len(t, report.Files, 1)
	assert.Equal(t, "Sound/A.bin", report.Files[0].Path)
	assert.NoFileExists(t, filepath.Join(out, manifest.PendingFile))

	deployed, err := manifest.Load(filepath.Join(out, manifest.DeployFile))
	require.NoError(t, err)
	assert.Equal(t, []string{infoCanon, "Sound/A.bin"}, deployed.Paths())
	assert.Equal(t, infoName, deployed.Name(infoCanon), "names of paths not re-merged are kept")

	size, _ := readSizeTable(t, out).Get(infoCanon)
	assert.Equal(t, uint32(1<<20), size)
}

func TestHistoryRecorded(t *testing.T) {
	base := baseDump(t)
	out := t.TempDir()
	hist, err := manifest.NewHistory(t.TempDir())
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mod := writeLayer(t, "mod", entry{[]string{infoName}, record("hp", tree.Int(12))})
	report, err := apply(t, base, out, Options{History: hist, Now: func() time.Time { return now }}, mod)
	require.NoError(t, err)
	require.NotEmpty(t, report.HistoryID)

	e, err := hist.Get(report.HistoryID)
	require.NoError(t, err)
	assert.Equal(t, manifest.OpApply, e.Operation)
	assert.Equal(t, []string{"mod"}, e.Layers)
	require.Len(t, e.Files, 1)
	assert.Equal(t, infoCanon, e.Files[0].Path)
	assert.NotEmpty(t, e.SizeTable)
}

func TestRunGuards(t *testing.T) {
	base := baseDump(t)

	t.Run("locked output", func(t *testing.T) {
		out := t.TempDir()
		lock, err := runlock.Acquire(out)
		require.NoError(t, err)
		defer lock.Release()

		_, err = apply(t, base, out, Options{})
		assert.ErrorIs(t, err, runlock.ErrLocked)
	})

	t.Run("platform mismatch", func(t *testing.T) {
		u := New(base, Target{Dir: t.TempDir(), Order: types.Big}, Profile{Target: types.Little}, Options{})
		_, err := u.Run(context.Background())
		assert.ErrorIs(t, err, ErrPlatformMismatch)
	})
}

func TestNoLayersWritesBaseSizeTable(t *testing.T) {
	base := baseDump(t)
	out := t.TempDir()

	report, err := apply(t, base, out, Options{})
	require.NoError(t, err)
	assert.Empty(t, report.Files)
	assert.Equal(t, 2, readSizeTable(t, out).Len())
}
