package pmbackend

import "github.com/pmbackend/pmbackend/internal/base"

// Iterator enumerates every live block in one region as of the moment it
// was opened: a read-only snapshot, not a live view — blocks written,
// updated, or removed after Open returns are not reflected, mirroring the
// original's pmb_iter_open contract ("designed to enumerate all objects on
// opening time").
type Iterator struct {
	store  *Store
	region Region
	ids    []ID
	pos    int
}

// Iterator opens a snapshot iterator over region. The scan is a single
// linear pass over the region's address space, same cost as Phase R2
// recovery's live-set scan but unsharded: iterators are expected to be rare
// compared to Put/Get traffic, so there is no parallel fast path for it.
func (s *Store) Iterator(region Region) *Iterator {
	first, last := s.pool.Layout.FirstID(), s.pool.Layout.LastID()
	maxKeyLen := s.opts.MaxKeyLen
	if region == RegionMeta {
		maxKeyLen = s.opts.MetaMaxKeyLen
	}

	var ids []ID
	for id := first; id <= last; id++ {
		buf := s.pool.Direct(id)
		if buf == nil {
			continue
		}
		_, _, r, ok := s.pool.Layout.BlockOffset(id)
		if !ok || r != region {
			continue
		}
		h := base.DecodeHeader(buf)
		key, val := base.Spans(region, buf, h, maxKeyLen)
		if base.IsLive(h, key, val) {
			ids = append(ids, id)
		}
	}

	return &Iterator{store: s, region: region, ids: ids, pos: 0}
}

// Valid reports whether the iterator still has a current position in its
// snapshot. The block there may have been retired since Open (see Get).
func (it *Iterator) Valid() bool {
	return it.pos < len(it.ids)
}

// Pos reports the iterator's current zero-based position within its
// snapshot.
func (it *Iterator) Pos() uint64 { return uint64(it.pos) }

// Next advances to the next live block. Calling Next past the end is a
// no-op; Valid reports false afterward.
func (it *Iterator) Next() {
	if it.pos < len(it.ids) {
		it.pos++
	}
}

// Get returns the current position's id, key, and value. It fails with
// ErrNotFound if the block was retired between Open and this call (the
// snapshot contract only guarantees id stability, not liveness forever).
func (it *Iterator) Get() (id ID, key, val []byte, err error) {
	if !it.Valid() {
		return 0, nil, nil, base.Wrapf(base.ErrNotFound, "iterator: no current position")
	}
	id = it.ids[it.pos]
	key, val, err = it.store.Get(id)
	return id, key, val, err
}

// Close releases the iterator's snapshot. It never fails; the method exists
// to mirror pmb_iter_close and give callers a defer-friendly symmetric API.
func (it *Iterator) Close() error {
	it.ids = nil
	return nil
}
