// Package unpack folds every enabled mod layer onto the base game files
// and writes the merged resources, the size table and the deployment
// manifest to an output directory.
//
// A run proceeds in four steps:
//
//  1. Open the layers in load order and union their manifests.
//  2. Remove orphans: paths the previous deployment produced that no
//     enabled layer touches any more.
//  3. Merge every remaining path in parallel. Archives are merged member
//     by member and repacked.
//  4. Reconcile the size table and record the deployment.
//
// The first error aborts the run. Files already written are left in
// place and are corrected by the next run.
package unpack

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/modstack/pkg/modstack/layer"
	"github.com/jamesainslie/modstack/pkg/modstack/logging"
	"github.com/jamesainslie/modstack/pkg/modstack/manifest"
	"github.com/jamesainslie/modstack/pkg/modstack/prune"
	"github.com/jamesainslie/modstack/pkg/modstack/runlock"
	"github.com/jamesainslie/modstack/pkg/modstack/sizetable"
	"github.com/jamesainslie/modstack/pkg/modstack/store"
	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

var logger = logging.Get("unpack")

// Deployment is the destination of a run.
type Deployment interface {
	// Root is the output directory.
	Root() string
	// Endian is the byte order resources are written in.
	Endian() types.Endian
	// Method is how the finished output is transferred to the game
	// (copy, hardlink or symlink). The transfer itself happens outside
	// this package; the method is recorded with the run.
	Method() string
}

// Settings selects what a run merges.
type Settings interface {
	// Platform is the active target.
	Platform() types.Endian
	// Layers lists the enabled layers, lowest priority first.
	Layers() []LayerRef
}

// LayerRef is one enabled layer and its enabled options.
type LayerRef struct {
	Path    string
	Options []string
}

// Target is a Deployment backed by plain values.
type Target struct {
	Dir      string
	Order    types.Endian
	Transfer string
}

func (t Target) Root() string         { return t.Dir }
func (t Target) Endian() types.Endian { return t.Order }
func (t Target) Method() string       { return t.Transfer }

// Profile is a Settings backed by plain values.
type Profile struct {
	Target types.Endian
	Stack  []LayerRef
}

func (p Profile) Platform() types.Endian { return p.Target }
func (p Profile) Layers() []LayerRef     { return p.Stack }

// ErrPlatformMismatch means the deployment and the settings target
// different platforms.
var ErrPlatformMismatch = errors.New("deployment and settings target different platforms")

// Options tunes a run.
type Options struct {
	// Workers bounds the paths merged at once. Zero uses NumCPU.
	Workers int
	// MemberWorkers bounds parallel member merges inside one archive.
	// Zero uses Workers.
	MemberWorkers int
	// Orphans selects how orphaned files are removed.
	Orphans prune.Method
	// Pending restricts the merge to the output's pending log.
	Pending bool
	// History, when set, records the run.
	History *manifest.History
	// Now is the clock used for the report. Nil uses time.Now.
	Now func() time.Time
}

// Unpacker runs merges against one base store. It holds no state
// between runs, so one Unpacker may serve several sequential runs;
// concurrent runs need separate stores.
type Unpacker struct {
	base     *store.Store
	deploy   Deployment
	settings Settings
	opts     Options
}

// New returns an Unpacker merging the layers of settings onto base and
// writing into deploy.
func New(base *store.Store, deploy Deployment, settings Settings, opts Options) *Unpacker {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.MemberWorkers <= 0 {
		opts.MemberWorkers = opts.Workers
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Unpacker{base: base, deploy: deploy, settings: settings, opts: opts}
}

// Run performs one apply.
func (u *Unpacker) Run(ctx context.Context) (*Report, error) {
	e := u.deploy.Endian()
	if u.settings.Platform() != e {
		return nil, fmt.Errorf("%w: %s vs %s", ErrPlatformMismatch, e, u.settings.Platform())
	}
	root := u.deploy.Root()

	lock, err := runlock.Acquire(root)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("releasing run lock", "error", err)
		}
	}()

	start := u.opts.Now()
	layers, err := u.openLayers()
	defer closeLayers(layers)
	if err != nil {
		return nil, err
	}

	r := &run{
		Unpacker: u,
		ctx:      ctx,
		endian:   e,
		root:     root,
		layers:   layers,
		dirs:     make(map[string]bool),
		names:    make(map[string]string),
	}
	for _, l := range layers {
		r.providers = append(r.providers, l.Providers()...)
	}

	report := &Report{
		Output:   root,
		Platform: e.String(),
		Method:   u.deploy.Method(),
		Mode:     ModeFull,
	}
	for _, l := range layers {
		report.Layers = append(report.Layers, l.Name())
	}
	if u.opts.Pending {
		report.Mode = ModePending
	}

	union := r.union()
	previous, err := manifest.Load(filepath.Join(root, manifest.DeployFile))
	if err != nil {
		return nil, err
	}

	var pending *manifest.Pending
	if u.opts.Pending {
		if pending, err = manifest.LoadPending(root); err != nil {
			return nil, err
		}
	}

	orphans := previous.Difference(union)
	if pending != nil {
		for _, p := range pending.Delete {
			if !union.Contains(p) && !slices.Contains(orphans, p) {
				orphans = append(orphans, p)
			}
		}
		slices.Sort(orphans)
	}
	if report.Removed, err = r.removeOrphans(previous, orphans); err != nil {
		return nil, err
	}

	work := union.Paths()
	if pending != nil {
		work = pendingWork(union, previous, pending)
	}
	logger.Info("merging", "paths", len(work), "layers", len(layers), "orphans", len(report.Removed))

	var members []sizetable.Candidate
	if report.Files, members, err = r.mergeAll(work); err != nil {
		return nil, err
	}

	tableData, tableStats, err := r.reconcileSizeTable(report.Files, members, orphans)
	if err != nil {
		return nil, err
	}
	report.SizeTable = tableStats

	deployed := union.WithNames(r.storedNames(union, previous))
	if err := deployed.Save(filepath.Join(root, manifest.DeployFile)); err != nil {
		return nil, fmt.Errorf("recording deployment: %w", err)
	}
	if pending != nil {
		if err := manifest.ClearPending(root); err != nil {
			return nil, err
		}
	}

	report.Duration = u.opts.Now().Sub(start)
	if u.opts.History != nil {
		entry, err := u.opts.History.Log(report.historyRun(tableData))
		if err != nil {
			return nil, fmt.Errorf("recording history: %w", err)
		}
		report.HistoryID = entry.ID
	}

	logger.Info("apply finished", "written", len(report.Files), "removed", len(report.Removed),
		"duration", report.Duration)
	return report, nil
}

// openLayers opens every enabled layer. Layers opened before a failure
// are returned so the caller can close them.
func (u *Unpacker) openLayers() ([]*layer.Layer, error) {
	var out []*layer.Layer
	for i, ref := range u.settings.Layers() {
		l, err := layer.Open(ref.Path, layer.OpenOptions{
			Index:   i,
			Endian:  u.deploy.Endian(),
			Options: ref.Options,
		})
		if err != nil {
			return out, fmt.Errorf("opening layer %s: %w", ref.Path, err)
		}
		out = append(out, l)
	}
	return out, nil
}

func closeLayers(layers []*layer.Layer) {
	for _, l := range layers {
		if err := l.Close(); err != nil {
			logger.Warn("closing layer", "layer", l.Name(), "error", err)
		}
	}
}

// pendingWork lists the paths a pending run merges: logged changes that
// some layer still provides, plus paths new since the last deployment.
func pendingWork(union, previous *manifest.Manifest, pending *manifest.Pending) []string {
	var work []string
	for _, p := range pending.Files {
		if union.Contains(p) {
			work = append(work, p)
		}
	}
	work = append(work, union.Difference(previous)...)
	slices.Sort(work)
	return slices.Compact(work)
}

// run is the state of one Run.
type run struct {
	*Unpacker
	ctx       context.Context
	endian    types.Endian
	root      string
	layers    []*layer.Layer
	providers []layer.Provider

	dirMu sync.Mutex
	dirs  map[string]bool

	nameMu sync.Mutex
	names  map[string]string
}

func (r *run) union() *manifest.Manifest {
	ms := make([]*manifest.Manifest, 0, len(r.layers))
	for _, l := range r.layers {
		ms = append(ms, l.Union())
	}
	u := manifest.Union(ms...)
	canonTable := types.Canonicalize(types.SizeTablePath, r.endian)
	if u.Contains(canonTable) {
		logger.Warn("ignoring size table provided by a layer", "path", canonTable)
		return manifest.New(slices.DeleteFunc(u.Paths(), func(p string) bool { return p == canonTable })...)
	}
	return u
}

// storedName picks the root-relative file name a merged top-level path
// is written under: the base's name when the base has the file loose,
// else the name of the last layer that provides it.
func (r *run) storedName(canon string) string {
	if f, ok := r.base.Name(canon); ok {
		return f.Name
	}
	for _, l := range slices.Backward(r.layers) {
		if n, ok := l.StoredName(canon); ok {
			return n
		}
	}
	return canon
}

// storedNames returns the names written this run, plus names recorded
// by the previous deployment for paths not re-merged.
func (r *run) storedNames(union, prev *manifest.Manifest) map[string]string {
	out := make(map[string]string, union.Len())
	for p := range union.All() {
		r.nameMu.Lock()
		n, ok := r.names[p]
		r.nameMu.Unlock()
		if !ok {
			n = prev.Name(p)
			if n == p {
				n = r.storedName(p)
			}
		}
		out[p] = n
	}
	return out
}

// removeOrphans deletes the output files of orphans and prunes the
// directories left empty.
func (r *run) removeOrphans(previous *manifest.Manifest, orphans []string) ([]string, error) {
	if len(orphans) == 0 {
		return nil, nil
	}
	pr := prune.New(r.root, r.opts.Orphans)
	var removed []string
	for _, canon := range orphans {
		rel := types.OutputPath(previous.Name(canon), r.endian)
		ok, err := pr.Remove(rel)
		if err != nil {
			return removed, types.NewPathError("remove orphan", canon, types.ErrIO, err)
		}
		if ok {
			logger.Debug("removed orphan", "path", canon)
		}
		removed = append(removed, canon)
	}
	return removed, nil
}

// writeOutput writes data to the output file of stored name name.
func (r *run) writeOutput(name string, data []byte) error {
	abs := filepath.Join(r.root, filepath.FromSlash(types.OutputPath(name, r.endian)))
	if err := r.ensureDir(filepath.Dir(abs)); err != nil {
		return err
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return types.NewPathError("write", name, types.ErrIO, err)
	}
	return nil
}

// ensureDir creates dir once per run.
func (r *run) ensureDir(dir string) error {
	r.dirMu.Lock()
	defer r.dirMu.Unlock()
	if r.dirs[dir] {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.NewPathError("mkdir", dir, types.ErrIO, err)
	}
	r.dirs[dir] = true
	return nil
}

// mergeAll merges every path in work with bounded parallelism. It
// returns the written files sorted by path and the size candidates of
// the archive members layers touched.
func (r *run) mergeAll(work []string) ([]FileResult, []sizetable.Candidate, error) {
	g, ctx := errgroup.WithContext(r.ctx)
	g.SetLimit(r.opts.Workers)

	var (
		mu      sync.Mutex
		members []sizetable.Candidate
	)
	results := make([]FileResult, 0, len(work))
	for _, canon := range work {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, cands, err := r.mergeTop(ctx, canon)
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, res)
			members = append(members, cands...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	slices.SortFunc(results, func(a, b FileResult) int { return cmp.Compare(a.Path, b.Path) })
	return results, members, nil
}

// mergeTop merges one top-level path and writes the result.
func (r *run) mergeTop(ctx context.Context, canon string) (FileResult, []sizetable.Candidate, error) {
	key := types.NestedPath{Parts: []string{canon}}

	base, err := r.base.Resolve(ctx, canon)
	switch {
	case errors.Is(err, types.ErrNotFound):
		base = nil
	case err != nil:
		return FileResult{}, nil, err
	}
	name := r.storedName(canon)

	diffs, err := r.collect(key)
	if err != nil {
		return FileResult{}, nil, err
	}
	m, err := r.merge(ctx, key, name, base, diffs, true)
	if err != nil {
		return FileResult{}, nil, err
	}
	if err := r.writeOutput(name, m.data); err != nil {
		return FileResult{}, nil, err
	}

	r.nameMu.Lock()
	r.names[canon] = name
	r.nameMu.Unlock()

	return FileResult{
		Path:      canon,
		Name:      name,
		Kind:      m.kind,
		Size:      int64(len(m.data)),
		RawSize:   int64(len(m.raw)),
		Providers: len(diffs),
		Added:     base == nil,
	}, m.members, nil
}
