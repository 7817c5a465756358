package unpack

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jamesainslie/modstack/pkg/modstack/codec"
	"github.com/jamesainslie/modstack/pkg/modstack/resource"
	"github.com/jamesainslie/modstack/pkg/modstack/sizetable"
	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

// reconcileSizeTable records the uncompressed size of every written
// file and of every archive member a layer touched, and writes the
// table. It continues from the table of the previous deployment, or
// starts from the base table on the first run, so recorded sizes never
// shrink across runs. Orphans lose their
// entries unless the base table has one. It returns the encoded table.
func (r *run) reconcileSizeTable(files []FileResult, members []sizetable.Candidate,
	orphans []string) ([]byte, SizeTableStats, error) {
	base, err := r.baseSizeTable()
	if err != nil {
		return nil, SizeTableStats{}, err
	}

	tbl, ok, err := r.deployedSizeTable()
	if err != nil {
		return nil, SizeTableStats{}, err
	}
	if !ok {
		tbl = base.Clone()
	}

	cands := make([]sizetable.Candidate, 0, len(files)+len(members))
	for _, f := range files {
		cands = append(cands, sizetable.Candidate{Path: f.Path, Size: uint32(f.RawSize)})
	}
	cands = append(cands, members...)
	stats := SizeTableStats{Updated: tbl.Apply(cands)}

	for _, p := range orphans {
		if _, ok := base.Get(p); ok {
			continue
		}
		if tbl.Remove(p) {
			stats.Removed++
		}
	}
	stats.Entries = tbl.Len()

	raw := tbl.Encode(r.endian)
	if err := r.writeOutput(types.SizeTablePath, resource.CompressIf(types.SizeTablePath, raw)); err != nil {
		return nil, stats, err
	}
	return raw, stats, nil
}

// baseSizeTable returns the base game's table, or an empty one when the
// dump has none.
func (r *run) baseSizeTable() (*sizetable.Table, error) {
	canon := types.Canonicalize(types.SizeTablePath, r.endian)
	v, err := r.base.Resolve(r.ctx, canon)
	if errors.Is(err, types.ErrNotFound) {
		logger.Warn("base dump has no size table; starting empty", "path", canon)
		return sizetable.New(), nil
	}
	if err != nil {
		return nil, err
	}
	b, ok := v.(resource.Binary)
	if !ok {
		return nil, types.NewPathError("read size table", canon, types.ErrSchemaMismatch,
			fmt.Errorf("got %s", resource.KindName(v)))
	}
	t, err := sizetable.Decode(b)
	if err != nil {
		return nil, types.NewPathError("read size table", canon, types.ErrParse, err)
	}
	return t, nil
}

// deployedSizeTable reads the table written by the previous run.
func (r *run) deployedSizeTable() (*sizetable.Table, bool, error) {
	abs := filepath.Join(r.root, filepath.FromSlash(types.OutputPath(types.SizeTablePath, r.endian)))
	data, err := os.ReadFile(abs)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, types.NewPathError("read size table", abs, types.ErrIO, err)
	}
	raw, err := codec.DecompressIf(data)
	if err != nil {
		return nil, false, types.NewPathError("read size table", abs, types.ErrParse, err)
	}
	t, err := sizetable.Decode(raw)
	if err != nil {
		return nil, false, types.NewPathError("read size table", abs, types.ErrParse, err)
	}
	return t, true, nil
}
