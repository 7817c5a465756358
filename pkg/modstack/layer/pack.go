package layer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jamesainslie/modstack/pkg/modstack/codec"
	"github.com/jamesainslie/modstack/pkg/modstack/resource"
	"github.com/jamesainslie/modstack/pkg/modstack/store"
	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

// PackOptions configures Pack.
type PackOptions struct {
	Endian types.Endian
	// Option packs into an option directory instead of the main content.
	Option string
}

// PackStats counts what Pack wrote.
type PackStats struct {
	Changed   int
	Added     int
	Unchanged int
}

// Pack diffs the loose mod tree at modDir, laid out like a deployment
// root, against base and writes one value per changed resource to w.
// Documents are stored as diffs and archives as membership diffs with
// their changed members below them. Resources the base lacks are stored
// whole.
func Pack(ctx context.Context, base store.Resolver, modDir string, w *Writer, opts PackOptions) (PackStats, error) {
	roots := make([]string, 2)
	for i, dir := range []string{opts.Endian.ContentRoot(), opts.Endian.AocRoot()} {
		abs := filepath.Join(modDir, filepath.FromSlash(dir))
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			roots[i] = abs
		}
	}
	if roots[0] == "" && roots[1] == "" {
		return PackStats{}, fmt.Errorf("%s has neither %s nor %s", modDir, opts.Endian.ContentRoot(), opts.Endian.AocRoot())
	}
	src := store.NewDirSource(roots[0], "", roots[1], opts.Endian)

	p := &packer{w: w, option: opts.Option}
	err := store.ReadAll(ctx, src, func(f store.File, data []byte) error {
		modV, err := resource.Parse(f.Name, data)
		if err != nil {
			return err
		}
		baseV, err := base.Resolve(ctx, f.Canon)
		switch {
		case errors.Is(err, types.ErrNotFound):
			p.stats.Added++
			return p.putWhole([]string{f.Name}, data)
		case err != nil:
			return err
		}

		changed, err := p.diff([]string{f.Name}, baseV, modV, data)
		if err != nil {
			return err
		}
		if changed {
			p.stats.Changed++
		} else {
			p.stats.Unchanged++
		}
		return nil
	})
	logger.Info("packed layer", "changed", p.stats.Changed, "added", p.stats.Added, "unchanged", p.stats.Unchanged)
	return p.stats, err
}

type packer struct {
	w      *Writer
	option string
	stats  PackStats
}

func (p *packer) putWhole(parts []string, data []byte) error {
	raw, err := codec.DecompressIf(data)
	if err != nil {
		return types.NewPathError("pack", types.NestedPath{Parts: parts}.String(), types.ErrParse, err)
	}
	return p.w.Put(p.option, parts, resource.Binary(raw))
}

// diff writes the change from baseV to modV and reports whether there
// was one. modData is the mod's stored bytes for modV.
func (p *packer) diff(parts []string, baseV, modV resource.Value, modData []byte) (bool, error) {
	np := types.NestedPath{Parts: parts}
	if np.Depth() >= types.MaxArchiveDepth {
		return false, types.NewPathError("pack", np.String(), types.ErrDepthExceeded, nil)
	}

	switch b := baseV.(type) {
	case resource.Binary:
		raw, err := codec.DecompressIf(modData)
		if err != nil {
			return false, types.NewPathError("pack", np.String(), types.ErrParse, err)
		}
		if bytes.Equal(b, raw) {
			return false, nil
		}
		return true, p.w.Put(p.option, parts, resource.Binary(raw))

	case resource.Document:
		if resource.Equal(b, modV) {
			return false, nil
		}
		d, err := resource.Diff(b, modV)
		if err != nil {
			return false, types.NewPathError("pack", np.String(), types.ErrSchemaMismatch, err)
		}
		return true, p.w.Put(p.option, parts, d)

	case *resource.Archive:
		m, ok := modV.(*resource.Archive)
		if !ok {
			return false, types.NewPathError("pack", np.String(), types.ErrSchemaMismatch,
				fmt.Errorf("archive replaced by %s", resource.KindName(modV)))
		}
		return p.diffArchive(parts, b, m)

	default:
		return false, types.NewPathError("pack", np.String(), types.ErrSchemaMismatch,
			fmt.Errorf("unknown value %s", resource.KindName(baseV)))
	}
}

func (p *packer) diffArchive(parts []string, base, mod *resource.Archive) (bool, error) {
	var changed bool
	for _, f := range mod.Files() {
		memberParts := append(parts[:len(parts):len(parts)], f.Name)
		baseData, ok := base.MemberData(f.Name)
		if !ok {
			if err := p.putWhole(memberParts, f.Data); err != nil {
				return false, err
			}
			changed = true
			continue
		}
		if bytes.Equal(baseData, f.Data) {
			continue
		}
		bv, err := resource.Parse(f.Name, baseData)
		if err != nil {
			return false, err
		}
		mv, err := resource.Parse(f.Name, f.Data)
		if err != nil {
			return false, err
		}
		c, err := p.diff(memberParts, bv, mv, f.Data)
		if err != nil {
			return false, err
		}
		changed = changed || c
	}

	membership := base.Diff(mod)
	if membership.Alignment == base.Alignment && !hasEntries(membership) {
		return changed, nil
	}
	return true, p.w.Put(p.option, parts, membership)
}

func hasEntries(a *resource.Archive) bool {
	for range a.Members.Entries() {
		return true
	}
	return false
}
