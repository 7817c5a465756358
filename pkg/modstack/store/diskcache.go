package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/zeebo/blake3"

	"github.com/jamesainslie/modstack/pkg/modstack/codec"
	"github.com/jamesainslie/modstack/pkg/modstack/resource"
)

// DiskCacheVersion is part of every key; bumping it orphans old entries.
const DiskCacheVersion = 1

// keySeparator separates the canonical path from the content digest.
const keySeparator = '\x00'

// ErrCacheMiss is returned when the disk cache has no entry.
var ErrCacheMiss = errors.New("cache entry not found")

// DiskCache persists parsed base documents across runs. Entries are keyed
// by canonical path and the BLAKE3 digest of the raw bytes they were
// parsed from, so a changed dump never serves a stale parse.
type DiskCache struct {
	db *badger.DB
}

// OpenDiskCache opens or creates a disk cache in dir.
func OpenDiskCache(dir string) (*DiskCache, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening disk cache: %w", err)
	}
	return &DiskCache{db: db}, nil
}

// Close closes the cache.
func (c *DiskCache) Close() error {
	return c.db.Close()
}

// diskKey builds <version><canon>\x00<blake3(raw)>.
func diskKey(canon string, raw []byte) []byte {
	sum := blake3.Sum256(raw)
	key := make([]byte, 0, 1+len(canon)+1+len(sum))
	key = append(key, DiskCacheVersion)
	key = append(key, canon...)
	key = append(key, keySeparator)
	return append(key, sum[:]...)
}

// Get returns the document parsed earlier from raw for canon.
func (c *DiskCache) Get(canon string, raw []byte) (resource.Document, error) {
	var doc resource.Document
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(diskKey(canon, raw))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrCacheMiss
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			doc, err = decodeCached(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Put stores doc as the parse of raw for canon.
func (c *DiskCache) Put(canon string, raw []byte, doc resource.Document) error {
	body, err := resource.MarshalValue(doc)
	if err != nil {
		return err
	}
	val := codec.CompressLZ4(body)
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(diskKey(canon, raw), val)
	})
}

func decodeCached(val []byte) (resource.Document, error) {
	body, err := codec.DecompressLZ4(val)
	if err != nil {
		return nil, err
	}
	v, err := resource.UnmarshalValue(body)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(resource.Document)
	if !ok {
		return nil, fmt.Errorf("cached value is %s, not a document", resource.KindName(v))
	}
	return doc, nil
}

// DiskStats summarizes the cache contents.
type DiskStats struct {
	Entries int64
	Bytes   int64
}

// Stats counts entries and their stored size.
func (c *DiskCache) Stats() (DiskStats, error) {
	var st DiskStats
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			st.Entries++
			st.Bytes += it.Item().EstimatedSize()
		}
		return nil
	})
	return st, err
}

// Clear removes every entry.
func (c *DiskCache) Clear() error {
	return c.db.DropAll()
}
