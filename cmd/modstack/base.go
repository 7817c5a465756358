package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jamesainslie/modstack/pkg/modstack/config"
	"github.com/jamesainslie/modstack/pkg/modstack/store"
	"github.com/jamesainslie/modstack/pkg/modstack/tuner"
	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

// base is an opened game dump with its caches.
type base struct {
	store  *store.Store
	endian types.Endian
	tuned  tuner.OptimalConfig

	closers []func() error
}

func (b *base) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

// dumpSource builds the source the configured dump reads from. Loose
// directories take priority over the packed dump.
func dumpSource(c *config.Config, e types.Endian) (store.Source, func() error, error) {
	var (
		srcs   store.OverlaySource
		closer = func() error { return nil }
	)
	if c.Dump.Content != "" {
		srcs = append(srcs, store.NewDirSource(c.Dump.Content, c.Dump.Update, c.Dump.Aoc, e))
	}
	if c.Dump.Packed != "" {
		zs, err := store.OpenZipSource(c.Dump.Packed, e)
		if err != nil {
			return nil, nil, err
		}
		srcs = append(srcs, zs)
		closer = zs.Close
	}
	if len(srcs) == 1 {
		return srcs[0], closer, nil
	}
	return srcs, closer, nil
}

// openBase opens the dump named by c. withIndex loads the parent index;
// a missing index only limits resolution to loose files.
func openBase(c *config.Config, withIndex bool) (*base, error) {
	e, err := c.Endian()
	if err != nil {
		return nil, err
	}
	if c.Dump.Content == "" && c.Dump.Packed == "" {
		return nil, fmt.Errorf("%w: dump.content or dump.packed is required", config.ErrInvalidConfig)
	}

	res, err := tuner.Detect()
	if err != nil {
		printVerbose("resource detection failed, using defaults: %v", err)
	}
	b := &base{
		endian: e,
		tuned:  tuner.CalculateWithOverrides(res, c.Unpack.Workers, c.Cache.Capacity),
	}
	printVerbose("tuned: %d merge workers, %d member workers, cache %d",
		b.tuned.MergeWorkers, b.tuned.MemberWorkers, b.tuned.CacheCapacity)

	src, closeSrc, err := dumpSource(c, e)
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, closeSrc)

	opts := store.Options{
		Endian: e,
		Cache:  store.NewCache(b.tuned.CacheCapacity, c.Cache.IdleTimeout),
	}
	if withIndex {
		ix, err := store.LoadIndex(c.Index)
		switch {
		case errors.Is(err, os.ErrNotExist):
			printInfo("No parent index at %s; run 'modstack index' to resolve archived resources.", c.Index)
		case err != nil:
			_ = b.Close()
			return nil, err
		default:
			opts.Index = ix
		}
	}
	if c.Cache.Persistent {
		dc, err := store.OpenDiskCache(c.Cache.Path)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("failed to open cache: %w", err)
		}
		b.closers = append(b.closers, dc.Close)
		opts.Disk = dc
	}

	b.store = store.New(src, opts)
	return b, nil
}
