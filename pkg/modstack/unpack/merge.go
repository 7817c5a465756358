package unpack

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/modstack/pkg/modstack/resource"
	"github.com/jamesainslie/modstack/pkg/modstack/sizetable"
	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

// merged is a serialized merge result.
type merged struct {
	// raw is the uncompressed native encoding.
	raw []byte
	// data is raw compressed as the stored name requires.
	data []byte
	kind string
	// members holds the uncompressed sizes of the archive members a
	// layer touched, at any depth.
	members []sizetable.Candidate
}

// collect returns every provider's value for key in load order.
// Providers that do not touch key are skipped.
func (r *run) collect(key types.NestedPath) ([]resource.Value, error) {
	var out []resource.Value
	for _, p := range r.providers {
		v, ok, err := p.Get(key.String())
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// merge folds diffs onto base and serializes the result under name.
// viaStore reports whether base is the store's value, in which case the
// members of an archive are resolved through the store as well.
func (r *run) merge(ctx context.Context, key types.NestedPath, name string, base resource.Value,
	diffs []resource.Value, viaStore bool) (merged, error) {
	if key.Depth() >= types.MaxArchiveDepth {
		return merged{}, types.NewPathError("merge", key.String(), types.ErrDepthExceeded, nil)
	}

	acc := base
	for _, d := range diffs {
		next, replaced, err := fold(key, name, acc, d)
		if err != nil {
			return merged{}, err
		}
		acc = next
		if replaced {
			viaStore = false
		}
	}

	var (
		raw     []byte
		members []sizetable.Candidate
	)
	switch v := acc.(type) {
	case nil:
		return merged{}, types.NewPathError("merge", key.String(), types.ErrNotFound, nil)
	case resource.Binary:
		raw = v
	case resource.Document:
		raw = resource.EncodeDocument(v, r.endian)
	case *resource.Archive:
		var err error
		if raw, members, err = r.repack(ctx, key, v, viaStore); err != nil {
			return merged{}, err
		}
	default:
		return merged{}, types.NewPathError("merge", key.String(), types.ErrSchemaMismatch,
			fmt.Errorf("unknown value %s", resource.KindName(acc)))
	}
	return merged{raw: raw, data: resource.CompressIf(name, raw), kind: resource.KindName(acc), members: members}, nil
}

// fold applies one layer value to acc. A Binary value on a structured
// or missing base is a whole resource the layer added or replaced; it
// is parsed and becomes the new base. It reports whether that happened.
func fold(key types.NestedPath, name string, acc, d resource.Value) (resource.Value, bool, error) {
	if b, ok := d.(resource.Binary); ok {
		if _, isBinary := acc.(resource.Binary); !isBinary {
			v, err := resource.Parse(name, b)
			if err != nil {
				return nil, false, err
			}
			return v, true, nil
		}
	}
	if acc == nil {
		return nil, false, types.NewPathError("merge", key.String(), types.ErrNotFound,
			errors.New("layer holds a diff but there is no base to apply it to"))
	}
	v, err := resource.Merge(acc, d)
	if err != nil {
		return nil, false, types.NewPathError("merge", key.String(), types.ErrSchemaMismatch, err)
	}
	return v, false, nil
}

// repack merges every live member of a and encodes the archive in the
// target byte order. Members merge in parallel. It also returns the size
// candidates of the members a layer touched.
func (r *run) repack(ctx context.Context, key types.NestedPath, a *resource.Archive,
	viaStore bool) ([]byte, []sizetable.Candidate, error) {
	names := a.Names()
	files := make([]resource.ArchiveFile, len(names))
	sizes := make([][]sizetable.Candidate, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.MemberWorkers)
	for i, m := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, cands, err := r.mergeMember(gctx, key.Nest(m), m, a, viaStore)
			if err != nil {
				return err
			}
			files[i] = resource.ArchiveFile{Name: m, Data: data}
			sizes[i] = cands
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	var members []sizetable.Candidate
	for _, c := range sizes {
		members = append(members, c...)
	}
	return resource.EncodeArchive(files, a.Alignment, r.endian), members, nil
}

// mergeMember returns the stored bytes of member m of parent. Members
// no layer touches are copied verbatim unless they are archives, whose
// own members may still be touched. A member gets a size candidate when
// a layer touched it or anything below it.
func (r *run) mergeMember(ctx context.Context, key types.NestedPath, m string, parent *resource.Archive,
	viaStore bool) ([]byte, []sizetable.Candidate, error) {
	raw, hasData := parent.MemberData(m)

	diffs, err := r.collect(key)
	if err != nil {
		return nil, nil, err
	}

	if len(diffs) == 0 {
		if !hasData {
			return nil, nil, types.NewPathError("merge", key.String(), types.ErrNotFound,
				errors.New("archive member has neither data nor a layer value"))
		}
		// Layers cannot address anything below the depth cap.
		if key.Depth()+1 >= types.MaxArchiveDepth {
			return raw, nil, nil
		}
		v, err := resource.Parse(m, raw)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := v.(*resource.Archive); !ok {
			return raw, nil, nil
		}
	}

	var base resource.Value
	switch {
	case viaStore:
		base, err = r.base.Resolve(ctx, key.String())
		if errors.Is(err, types.ErrNotFound) {
			base, err = nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
	case hasData:
		if base, err = resource.Parse(m, raw); err != nil {
			return nil, nil, err
		}
	}

	res, err := r.merge(ctx, key, m, base, diffs, viaStore)
	if err != nil {
		return nil, nil, err
	}
	cands := res.members
	if len(diffs) > 0 || len(cands) > 0 {
		cands = append(cands, sizetable.Candidate{
			Path: types.Canonicalize(m, r.endian),
			Size: uint32(len(res.raw)),
		})
	}
	return res.data, cands, nil
}
